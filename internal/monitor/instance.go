package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fakeyudi/promptwatch/internal/capture"
	"github.com/fakeyudi/promptwatch/internal/convstore"
	"github.com/fakeyudi/promptwatch/internal/detect"
	"github.com/fakeyudi/promptwatch/internal/device"
	"github.com/fakeyudi/promptwatch/internal/hostexec"
	"github.com/fakeyudi/promptwatch/internal/logging"
	"github.com/fakeyudi/promptwatch/internal/metrics"
	"github.com/fakeyudi/promptwatch/internal/processor"
	"github.com/fakeyudi/promptwatch/internal/session"
	"github.com/fakeyudi/promptwatch/internal/tracker"
)

// Status is a monitor instance's lifecycle state.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
)

// Instance is one running scan, capture, process and store loop. Its
// tracker, buffers and dedup cache belong to it alone.
type Instance struct {
	id      string
	opts    Options
	log     *slog.Logger
	now     func() time.Time
	metrics *metrics.Metrics

	ctx    context.Context
	cancel context.CancelFunc
	jobID  uuid.UUID

	tracker   *tracker.Tracker
	capturer  *capture.Capturer
	processor *processor.Processor
	adapter   *convstore.Adapter

	mu        sync.Mutex
	status    Status
	startTime time.Time
	stoppedAt *time.Time
	buffers   map[string]*capture.Buffer
	processed map[string]uint64 // buffer offset at the last processing pass
	lastErr   error

	sessionsSeen    int64
	stored          int64
	duplicates      int64
	storeFailures   int64
	captureFailures int64
	errorCount      int64
}

func newInstance(parent context.Context, exec hostexec.Executor, deps Deps, opts Options) *Instance {
	id := uuid.NewString()
	log := logging.WithMonitor(deps.Logger, id).With("component", "monitor")
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))

	inst := &Instance{
		id:        id,
		opts:      opts,
		log:       log,
		now:       deps.Now,
		metrics:   deps.Metrics,
		ctx:       ctx,
		cancel:    cancel,
		capturer:  capture.NewCapturer(exec, log),
		processor: processor.New(opts.Turns),
		adapter: convstore.NewAdapter(deps.Repository, convstore.Options{
			CacheSize: opts.DedupCacheSize,
			Retention: opts.DedupRetention,
			Logger:    log,
		}),
		status:    StatusInitializing,
		startTime: deps.Now(),
		buffers:   map[string]*capture.Buffer{},
		processed: map[string]uint64{},
	}
	inst.tracker = tracker.New(detect.New(exec, log), device.NewIdentifier(exec, log), tracker.Options{
		HistorySize: opts.HistorySize,
		OnOpened:    inst.sessionOpened,
		OnClosed:    inst.sessionClosed,
		Now:         deps.Now,
	}, log)
	return inst
}

// ID returns the instance id.
func (i *Instance) ID() string {
	return i.id
}

func (i *Instance) sessionOpened(s *session.TerminalSession) {
	i.mu.Lock()
	i.buffers[s.ID] = capture.NewBuffer(i.opts.BufferSize)
	i.processed[s.ID] = 0
	i.sessionsSeen++
	i.mu.Unlock()
	i.metrics.SessionOpened()
}

func (i *Instance) sessionClosed(s *session.TerminalSession) {
	i.mu.Lock()
	delete(i.buffers, s.ID)
	delete(i.processed, s.ID)
	i.mu.Unlock()
	for _, dev := range s.Devices {
		i.capturer.Forget(dev)
	}
	i.adapter.Forget(s.ID)
	i.metrics.SessionClosed()
}

// tick runs one pass of the loop. A panic is recovered and recorded
// against this instance only.
func (i *Instance) tick() {
	defer func() {
		if r := recover(); r != nil {
			i.fail(fmt.Errorf("monitor iteration panicked: %v", r))
		}
	}()
	i.step(i.ctx)
}

// step scans, then captures, processes and stores each active session in
// turn.
func (i *Instance) step(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := i.tracker.Scan(ctx)
	i.metrics.Scan(err == nil)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, hostexec.ErrUnreachable) {
			i.fail(err)
		} else {
			i.retain(err)
		}
		return
	}
	i.healthy()

	sessions := i.tracker.Sessions()
	i.metrics.SetActiveSessions(i.id, len(sessions))
	for _, s := range sessions {
		if ctx.Err() != nil {
			return
		}
		i.captureSession(ctx, s)
	}
}

func (i *Instance) captureSession(ctx context.Context, s *session.TerminalSession) {
	if !s.Readable {
		return
	}
	i.mu.Lock()
	buf := i.buffers[s.ID]
	i.mu.Unlock()
	if buf == nil {
		return
	}

	for _, dev := range s.Devices {
		res := i.capturer.Capture(ctx, dev, i.opts.CaptureTimeout, i.opts.CaptureMethod)
		i.metrics.Capture(res.Method.String(), string(res.Status))
		if res.Status != capture.StatusSuccess {
			i.mu.Lock()
			i.captureFailures++
			i.mu.Unlock()
			continue
		}
		if res.Content != "" {
			_, _ = buf.WriteString(res.Content)
		}
	}
	i.processSession(ctx, s, buf)
}

// processSession extracts conversations from buf when it changed since the
// last pass and stores them.
func (i *Instance) processSession(ctx context.Context, s *session.TerminalSession, buf *capture.Buffer) {
	offset := buf.Offset()
	i.mu.Lock()
	last, ok := i.processed[s.ID]
	if !ok || last == offset {
		i.mu.Unlock()
		return
	}
	i.processed[s.ID] = offset
	i.mu.Unlock()

	res := i.processor.Process(buf.String())
	if len(res.Pairs) == 0 {
		return
	}
	log := logging.WithSession(i.log, s.ID, s.PID)
	prov := convstore.Provenance{
		MonitorID:   i.id,
		Device:      s.PrimaryDevice(),
		ProjectName: i.opts.ProjectName,
		ProjectGoal: i.opts.ProjectGoal,
		Labels:      i.opts.Labels,
	}
	for _, pair := range res.Pairs {
		conv := convstore.Conversation{
			SessionID:    s.ID,
			Prompt:       pair.Prompt,
			Response:     pair.Response,
			TerminalType: s.TerminalType,
			Timestamp:    i.now(),
		}
		rec, outcome := i.adapter.Store(ctx, conv, prov)
		i.metrics.Conversation(outcome.String())

		i.mu.Lock()
		switch outcome {
		case convstore.OutcomeStored:
			i.stored++
		case convstore.OutcomeDuplicate:
			i.duplicates++
		default:
			i.storeFailures++
		}
		i.mu.Unlock()
		if rec != nil {
			log.Info("conversation stored", "record_id", rec.ID)
		}
	}
}

// fail moves the instance to Error and keeps err.
func (i *Instance) fail(err error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.lastErr = err
	i.errorCount++
	if i.status != StatusStopped {
		i.status = StatusError
	}
	i.log.Error("monitor iteration failed", "error", err)
}

// retain keeps err without changing the status.
func (i *Instance) retain(err error) {
	i.mu.Lock()
	i.lastErr = err
	i.mu.Unlock()
}

// healthy returns an Error instance to Active after a successful scan.
func (i *Instance) healthy() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status == StatusError {
		i.status = StatusActive
		i.log.Info("monitor recovered", "last_error", i.lastErr)
	}
}

func (i *Instance) activate() {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.status == StatusInitializing {
		i.status = StatusActive
	}
}

// stop cancels the instance and drops its session state. It reports false
// when the instance was already stopped.
func (i *Instance) stop() bool {
	i.mu.Lock()
	if i.status == StatusStopped {
		i.mu.Unlock()
		return false
	}
	i.status = StatusStopped
	at := i.now()
	i.stoppedAt = &at
	i.mu.Unlock()

	i.cancel()
	i.tracker.Reset()

	i.mu.Lock()
	i.buffers = map[string]*capture.Buffer{}
	i.processed = map[string]uint64{}
	i.mu.Unlock()
	i.metrics.ForgetMonitor(i.id)
	i.log.Info("monitor stopped")
	return true
}

func (i *Instance) isInactive() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status == StatusStopped || i.status == StatusError
}

// Report is a point-in-time view of one instance.
type Report struct {
	ID                  string
	Status              Status
	StartTime           time.Time
	StoppedAt           *time.Time
	Uptime              time.Duration
	ActiveSessions      int
	SessionsSeen        int64
	ConversationsStored int64
	DuplicatesSkipped   int64
	StoreFailures       int64
	CaptureFailures     int64
	ErrorCount          int64
	Error               error
	Sessions            []*session.TerminalSession
	Closed              []*session.TerminalSession
}

func (i *Instance) report() Report {
	sessions := i.tracker.Sessions()
	closed := i.tracker.Closed()

	i.mu.Lock()
	defer i.mu.Unlock()
	end := i.now()
	if i.stoppedAt != nil {
		end = *i.stoppedAt
	}
	r := Report{
		ID:                  i.id,
		Status:              i.status,
		StartTime:           i.startTime,
		Uptime:              end.Sub(i.startTime),
		ActiveSessions:      len(sessions),
		SessionsSeen:        i.sessionsSeen,
		ConversationsStored: i.stored,
		DuplicatesSkipped:   i.duplicates,
		StoreFailures:       i.storeFailures,
		CaptureFailures:     i.captureFailures,
		ErrorCount:          i.errorCount,
		Error:               i.lastErr,
		Sessions:            sessions,
		Closed:              closed,
	}
	if i.stoppedAt != nil {
		at := *i.stoppedAt
		r.StoppedAt = &at
	}
	return r
}

// Snapshot converts r to the on-disk status form.
func (r Report) Snapshot() session.MonitorSnapshot {
	ms := session.MonitorSnapshot{
		ID:                  r.ID,
		Status:              string(r.Status),
		StartTime:           r.StartTime,
		Uptime:              r.Uptime,
		ActiveSessions:      r.ActiveSessions,
		SessionsSeen:        r.SessionsSeen,
		ConversationsStored: r.ConversationsStored,
		ErrorCount:          r.ErrorCount,
		Sessions:            r.Sessions,
		Closed:              r.Closed,
	}
	if r.Error != nil {
		ms.Error = r.Error.Error()
	}
	return ms
}
