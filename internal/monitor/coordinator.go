// Package monitor runs terminal monitor instances: each one repeatedly
// scans for sessions, captures their output, extracts conversations and
// stores them.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/fakeyudi/promptwatch/internal/hostexec"
	"github.com/fakeyudi/promptwatch/internal/metrics"
	"github.com/fakeyudi/promptwatch/internal/record"
)

// ErrUnknownMonitor is returned for ids the coordinator never issued or
// has already cleared.
var ErrUnknownMonitor = errors.New("unknown monitor")

// Deps are the collaborators shared by every instance.
type Deps struct {
	Bridge     *hostexec.Bridge
	Repository record.Repository
	Metrics    *metrics.Metrics // optional
	Logger     *slog.Logger
	Now        func() time.Time
}

// Coordinator owns the registry of monitor instances and the scheduler
// that drives them.
type Coordinator struct {
	deps      Deps
	log       *slog.Logger
	scheduler gocron.Scheduler

	mu        sync.Mutex
	instances map[string]*Instance
}

// NewCoordinator starts a scheduler with no instances.
func NewCoordinator(deps Deps) (*Coordinator, error) {
	if deps.Bridge == nil {
		return nil, errors.New("monitor: bridge is required")
	}
	if deps.Repository == nil {
		return nil, errors.New("monitor: repository is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}
	scheduler.Start()

	return &Coordinator{
		deps:      deps,
		log:       deps.Logger.With("component", "coordinator"),
		scheduler: scheduler,
		instances: map[string]*Instance{},
	}, nil
}

// Start launches a new instance and returns its id. The first tick runs
// immediately; later ticks follow every ScanInterval and never overlap.
// The instance outlives ctx; use Stop to end it.
func (c *Coordinator) Start(ctx context.Context, opts Options) (string, error) {
	if err := opts.validate(); err != nil {
		return "", fmt.Errorf("invalid monitor options: %w", err)
	}
	opts = opts.withDefaults()

	exec := c.deps.Bridge
	if len(opts.AllowList) > 0 {
		policy, err := hostexec.NewPolicy(opts.AllowList)
		if err != nil {
			return "", fmt.Errorf("invalid allow-list: %w", err)
		}
		exec = exec.WithPolicy(policy)
	}

	inst := newInstance(ctx, exec, c.deps, opts)
	job, err := c.scheduler.NewJob(
		gocron.DurationJob(opts.ScanInterval),
		gocron.NewTask(inst.tick),
		gocron.WithName("monitor_"+inst.id),
		gocron.WithTags(inst.id),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		inst.cancel()
		return "", fmt.Errorf("scheduling monitor: %w", err)
	}
	inst.jobID = job.ID()

	c.mu.Lock()
	c.instances[inst.id] = inst
	c.mu.Unlock()

	inst.activate()
	c.deps.Metrics.MonitorStarted()
	c.log.Info("monitor started", "monitor_id", inst.id, "interval", opts.ScanInterval, "method", opts.CaptureMethod)
	return inst.id, nil
}

func (c *Coordinator) lookup(id string) (*Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	inst, ok := c.instances[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMonitor, id)
	}
	return inst, nil
}

// Stop ends an instance. Stopping a stopped instance is a no-op.
func (c *Coordinator) Stop(id string) error {
	inst, err := c.lookup(id)
	if err != nil {
		return err
	}
	c.stopInstance(inst)
	return nil
}

func (c *Coordinator) stopInstance(inst *Instance) {
	if err := c.scheduler.RemoveJob(inst.jobID); err != nil && !errors.Is(err, gocron.ErrJobNotFound) {
		c.log.Warn("removing monitor job", "monitor_id", inst.id, "error", err)
	}
	if inst.stop() {
		c.deps.Metrics.MonitorStopped()
	}
}

// Status reports one instance.
func (c *Coordinator) Status(id string) (Report, error) {
	inst, err := c.lookup(id)
	if err != nil {
		return Report{}, err
	}
	return inst.report(), nil
}

// List reports every instance, oldest first.
func (c *Coordinator) List() []Report {
	c.mu.Lock()
	insts := make([]*Instance, 0, len(c.instances))
	for _, inst := range c.instances {
		insts = append(insts, inst)
	}
	c.mu.Unlock()

	reports := make([]Report, 0, len(insts))
	for _, inst := range insts {
		reports = append(reports, inst.report())
	}
	sort.SliceStable(reports, func(a, b int) bool {
		if reports[a].StartTime.Equal(reports[b].StartTime) {
			return reports[a].ID < reports[b].ID
		}
		return reports[a].StartTime.Before(reports[b].StartTime)
	})
	return reports
}

// ClearInactive stops and forgets every Stopped or Error instance and
// returns how many were removed.
func (c *Coordinator) ClearInactive() int {
	c.mu.Lock()
	var inactive []*Instance
	for id, inst := range c.instances {
		if inst.isInactive() {
			inactive = append(inactive, inst)
			delete(c.instances, id)
		}
	}
	c.mu.Unlock()

	for _, inst := range inactive {
		c.stopInstance(inst)
	}
	return len(inactive)
}

// Close stops every instance and shuts the scheduler down.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	insts := make([]*Instance, 0, len(c.instances))
	for _, inst := range c.instances {
		insts = append(insts, inst)
	}
	c.mu.Unlock()

	for _, inst := range insts {
		c.stopInstance(inst)
	}
	if err := c.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("shutting down scheduler: %w", err)
	}
	return nil
}
