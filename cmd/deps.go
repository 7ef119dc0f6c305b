package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/fakeyudi/promptwatch/internal/capture"
	"github.com/fakeyudi/promptwatch/internal/config"
	"github.com/fakeyudi/promptwatch/internal/hostexec"
	"github.com/fakeyudi/promptwatch/internal/monitor"
	"github.com/fakeyudi/promptwatch/internal/processor"
	"github.com/fakeyudi/promptwatch/internal/record"
	"github.com/fakeyudi/promptwatch/internal/session"
)

// newBridge builds the host command bridge for c. Tests replace it.
var newBridge = func(c config.Config, log *slog.Logger) (*hostexec.Bridge, error) {
	policy, err := hostexec.NewPolicy(c.AllowList)
	if err != nil {
		return nil, fmt.Errorf("invalid allow-list: %w", err)
	}
	var runner hostexec.Runner
	switch c.Transport {
	case "local":
		runner = &hostexec.LocalRunner{}
	default:
		runner = hostexec.NewDockerRunner(c.HelperImage, log)
	}
	return hostexec.NewBridge(runner, policy, log), nil
}

// openRepository opens the record store selected by c.Storage.
func openRepository(ctx context.Context, c config.Config) (record.Repository, error) {
	switch c.Storage {
	case "memory":
		return record.NewMemoryRepository(), nil
	case "mongo":
		if c.MongoURI == "" {
			return nil, errors.New("mongo storage needs mongo_uri (or PROMPTWATCH_MONGO_URI)")
		}
		return record.NewMongoRepository(ctx, c.MongoURI, c.MongoDatabase)
	case "", "sqlite":
		path := c.DatabasePath
		if path == "" {
			dir, err := session.DataDir()
			if err != nil {
				return nil, fmt.Errorf("resolving data directory: %w", err)
			}
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating data directory: %w", err)
			}
			path = filepath.Join(dir, "prompts.db")
		}
		return record.NewSQLiteRepository(path)
	default:
		return nil, fmt.Errorf("unknown storage %q", c.Storage)
	}
}

// monitorOptions maps configuration onto monitor options.
func monitorOptions(c config.Config) (monitor.Options, error) {
	method, err := capture.ParseMethod(c.CaptureMethod)
	if err != nil {
		return monitor.Options{}, err
	}
	flush := true
	if c.FlushOpen != nil {
		flush = *c.FlushOpen
	}
	turns, err := processor.NewPolicy(c.HumanPattern, c.AssistantPattern, c.ShellPromptPattern, flush)
	if err != nil {
		return monitor.Options{}, err
	}
	return monitor.Options{
		ScanInterval:   c.ScanInterval.Duration,
		CaptureTimeout: c.CaptureTimeout.Duration,
		CaptureMethod:  method,
		BufferSize:     c.BufferSize,
		DedupCacheSize: c.DedupCacheSize,
		DedupRetention: c.DedupRetention.Duration,
		HistorySize:    c.HistorySize,
		Turns:          turns,
		ProjectName:    c.ProjectName,
		ProjectGoal:    c.ProjectGoal,
		AllowList:      c.AllowList,
		Labels:         c.Labels,
	}, nil
}

// signalProcess delivers sig to pid. Tests replace it.
var signalProcess = func(pid int, sig os.Signal) error {
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Signal(sig)
}

// processAlive reports whether pid names a running process.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return signalProcess(pid, syscall.Signal(0)) == nil
}

// loadLiveSnapshot returns the running monitor's snapshot. A snapshot left
// behind by a process that no longer exists is removed and reported as
// session.ErrNoSnapshot.
func loadLiveSnapshot(store session.SnapshotStore) (*session.Snapshot, error) {
	snap, err := store.Load()
	if err != nil {
		return nil, err
	}
	if !processAlive(snap.PID) {
		_ = store.Delete()
		return nil, session.ErrNoSnapshot
	}
	return snap, nil
}
