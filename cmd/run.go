package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/promptwatch/internal/config"
	"github.com/fakeyudi/promptwatch/internal/hostexec"
	"github.com/fakeyudi/promptwatch/internal/metrics"
	"github.com/fakeyudi/promptwatch/internal/monitor"
	"github.com/fakeyudi/promptwatch/internal/record"
	"github.com/fakeyudi/promptwatch/internal/session"
)

// reloadDebounce collapses the burst of events an editor save produces.
const reloadDebounce = 500 * time.Millisecond

var (
	runMetricsAddr string
	runStorage     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Monitor host terminals in the foreground and store captured prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		if runMetricsAddr != "" {
			c.MetricsAddr = runMetricsAddr
		}
		if runStorage != "" {
			c.Storage = runStorage
		}
		if err := c.Validate(); err != nil {
			return err
		}

		store, err := session.NewSnapshotStore()
		if err != nil {
			return err
		}
		if snap, err := loadLiveSnapshot(store); err == nil && snap.PID != os.Getpid() {
			return fmt.Errorf("monitor already running (pid %d)", snap.PID)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bridge, err := newBridge(c, logger)
		if err != nil {
			return err
		}
		pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		if err := bridge.Ping(pingCtx); err != nil {
			logger.Warn("host bridge unavailable, monitor will keep retrying", "transport", c.Transport, "error", err)
		}
		cancel()

		repo, err := openRepository(ctx, c)
		if err != nil {
			return fmt.Errorf("opening prompt store: %w", err)
		}
		defer repo.Close()

		m := metrics.New()
		if c.MetricsAddr != "" {
			srv := serveMetrics(c.MetricsAddr, m, logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}

		d, err := newDaemon(c, bridge, repo, m, store, logger)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Monitoring started (pid %d). Press Ctrl-C to stop.\n", os.Getpid())
		err = d.run(ctx, watchedConfigDirs())
		fmt.Fprintln(cmd.OutOrStdout(), "Monitoring stopped.")
		return err
	},
}

// serveMetrics exposes m on addr under /metrics.
func serveMetrics(addr string, m *metrics.Metrics, log *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	log.Info("serving metrics", "addr", addr)
	return srv
}

// daemon owns the coordinator and the single monitor the run command keeps
// alive, restarting it when configuration changes.
type daemon struct {
	cfg   config.Config
	coord *monitor.Coordinator
	store session.SnapshotStore
	log   *slog.Logger
	id    string
}

func newDaemon(c config.Config, bridge *hostexec.Bridge, repo record.Repository, m *metrics.Metrics, store session.SnapshotStore, log *slog.Logger) (*daemon, error) {
	coord, err := monitor.NewCoordinator(monitor.Deps{
		Bridge:     bridge,
		Repository: repo,
		Metrics:    m,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}
	return &daemon{cfg: c, coord: coord, store: store, log: log.With("component", "daemon")}, nil
}

// start launches a monitor for the current configuration.
func (d *daemon) start(ctx context.Context) error {
	opts, err := monitorOptions(d.cfg)
	if err != nil {
		return err
	}
	id, err := d.coord.Start(ctx, opts)
	if err != nil {
		return err
	}
	d.id = id
	d.log.Info("monitor started", "monitor_id", id, "interval", opts.ScanInterval)
	return nil
}

// reload re-reads configuration and restarts the monitor. An invalid
// configuration leaves the current monitor running.
func (d *daemon) reload(ctx context.Context) error {
	next, err := loadConfig()
	if err != nil {
		return err
	}
	// Settings the bridge and store were opened with stay fixed until restart.
	next.Transport, next.HelperImage = d.cfg.Transport, d.cfg.HelperImage
	next.Storage, next.DatabasePath = d.cfg.Storage, d.cfg.DatabasePath
	next.MongoURI, next.MongoDatabase = d.cfg.MongoURI, d.cfg.MongoDatabase
	next.MetricsAddr = d.cfg.MetricsAddr
	if err := next.Validate(); err != nil {
		return err
	}
	if _, err := monitorOptions(next); err != nil {
		return err
	}

	prev := d.cfg
	d.cfg = next
	if d.id != "" {
		if err := d.coord.Stop(d.id); err != nil && !errors.Is(err, monitor.ErrUnknownMonitor) {
			d.log.Warn("stopping monitor for reload", "monitor_id", d.id, "error", err)
		}
		d.coord.ClearInactive()
		d.id = ""
	}
	if err := d.start(ctx); err != nil {
		d.cfg = prev
		return errors.Join(err, d.start(ctx))
	}
	return nil
}

// writeSnapshot publishes every monitor's report for status and view.
func (d *daemon) writeSnapshot() error {
	snap := &session.Snapshot{PID: os.Getpid(), UpdatedAt: time.Now().UTC()}
	for _, r := range d.coord.List() {
		snap.Monitors = append(snap.Monitors, r.Snapshot())
	}
	return d.store.Save(snap)
}

// run starts the monitor and serves snapshots and config reloads until ctx
// is done. dirs are watched for configuration changes.
func (d *daemon) run(ctx context.Context, dirs []string) error {
	defer func() {
		if err := d.coord.Close(); err != nil {
			d.log.Warn("closing coordinator", "error", err)
		}
		if err := d.store.Delete(); err != nil {
			d.log.Warn("removing status snapshot", "error", err)
		}
	}()

	if err := d.start(ctx); err != nil {
		return err
	}
	if err := d.writeSnapshot(); err != nil {
		d.log.Warn("writing status snapshot", "error", err)
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		d.log.Warn("config watching disabled", "error", err)
	} else {
		defer watcher.Close()
		for _, dir := range dirs {
			if err := watcher.Add(dir); err != nil {
				d.log.Debug("not watching config dir", "dir", dir, "error", err)
			}
		}
		events, watchErrs = watcher.Events, watcher.Errors
	}

	ticker := time.NewTicker(d.cfg.ScanInterval.Duration)
	defer ticker.Stop()
	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := d.writeSnapshot(); err != nil {
				d.log.Warn("writing status snapshot", "error", err)
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !isConfigFile(ev.Name) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				debounce = time.After(reloadDebounce)
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			d.log.Warn("config watcher", "error", err)
		case <-debounce:
			debounce = nil
			if err := d.reload(ctx); err != nil {
				d.log.Error("config reload failed, keeping previous settings", "error", err)
				continue
			}
			ticker.Reset(d.cfg.ScanInterval.Duration)
			d.log.Info("configuration reloaded", "monitor_id", d.id)
			if err := d.writeSnapshot(); err != nil {
				d.log.Warn("writing status snapshot", "error", err)
			}
		}
	}
}

// watchedConfigDirs returns the directories holding the global config, the
// project config and the env file.
func watchedConfigDirs() []string {
	var dirs []string
	if p, err := config.GlobalPath(); err == nil {
		dirs = append(dirs, filepath.Dir(p))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	if envFile != "" {
		if abs, err := filepath.Abs(envFile); err == nil {
			dirs = append(dirs, filepath.Dir(abs))
		}
	}
	return dirs
}

// isConfigFile reports whether path names a file that affects configuration.
func isConfigFile(path string) bool {
	switch filepath.Base(path) {
	case "config.json", config.ProjectFile:
		return true
	}
	return envFile != "" && filepath.Base(path) == filepath.Base(envFile)
}

func init() {
	runCmd.Flags().StringVar(&runMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")
	runCmd.Flags().StringVar(&runStorage, "storage", "", "prompt store: sqlite, mongo or memory (overrides config)")
	rootCmd.AddCommand(runCmd)
}
