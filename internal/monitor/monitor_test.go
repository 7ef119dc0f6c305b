package monitor

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fakeyudi/promptwatch/internal/capture"
	"github.com/fakeyudi/promptwatch/internal/detect"
	"github.com/fakeyudi/promptwatch/internal/hostexec"
	"github.com/fakeyudi/promptwatch/internal/hostexec/hostexectest"
	"github.com/fakeyudi/promptwatch/internal/processor"
	"github.com/fakeyudi/promptwatch/internal/record"
)

const psHeader = "USER PID %CPU %MEM VSZ RSS TTY STAT START TIME COMMAND\n"

const psWithShell = psHeader + `root 1 0.0 0.1 1000 100 ? Ss 09:00 0:01 /sbin/init
dev 100 0.0 0.1 1000 100 pts/3 Ss 09:00 0:00 -bash
`

const conversation = "Human: What is Go?\nAssistant: A language.\n$ \n"

// host scripts a single bash session on /dev/pts/3. Each listing pops the
// next entry of listings; once they run out the last one repeats.
type host struct {
	*hostexectest.Runner

	mu       sync.Mutex
	listings []hostexectest.Response
}

func newHost(listings ...hostexectest.Response) *host {
	h := &host{Runner: hostexectest.New(), listings: listings}
	h.OnFunc(detect.ListCommand, func(string) hostexectest.Response {
		h.mu.Lock()
		defer h.mu.Unlock()
		resp := h.listings[0]
		if len(h.listings) > 1 {
			h.listings = h.listings[1:]
		}
		return resp
	})
	h.On("lsof -p 100 | grep -E 'tty|pts'", hostexectest.Response{
		Stdout: "bash 100 dev 0u CHR 136,3 0t0 6 /dev/pts/3\nbash 100 dev 1u CHR 136,3 0t0 6 /dev/pts/3\n",
	})
	h.On("timeout 1 head -c 0 /dev/pts/3", hostexectest.Response{})
	h.On("cat /proc/100/environ", hostexectest.Response{Stdout: "HOME=/home/dev\x00TERM=xterm-256color\x00"})
	h.On("timeout 1 cat /dev/pts/3", hostexectest.Response{Stdout: conversation, ExitCode: 124})
	return h
}

func testDeps(h *host, repo record.Repository) Deps {
	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return Deps{
		Bridge:     h.Bridge(),
		Repository: repo,
		Now:        func() time.Time { return clock },
	}
}

func testOptions() Options {
	return Options{CaptureMethod: capture.MethodDirect, ProjectName: "demo"}.withDefaults()
}

func TestStepCapturesAndStoresOnce(t *testing.T) {
	h := newHost(
		hostexectest.Response{Stdout: psWithShell},
		hostexectest.Response{Stdout: psWithShell},
		hostexectest.Response{Stdout: psHeader},
	)
	repo := record.NewMemoryRepository()
	deps := testDeps(h, repo)
	inst := newInstance(context.Background(), deps.Bridge, deps, testOptions())
	inst.activate()
	ctx := context.Background()

	inst.step(ctx)
	r := inst.report()
	if r.ActiveSessions != 1 || r.ConversationsStored != 1 || r.SessionsSeen != 1 {
		t.Fatalf("after first tick: %+v", r)
	}
	if r.Sessions[0].TerminalType != "xterm-256color" {
		t.Errorf("TerminalType = %q", r.Sessions[0].TerminalType)
	}

	recs, err := repo.List(ctx, record.ListOptions{})
	if err != nil || len(recs) != 1 {
		t.Fatalf("List = %v, %v", recs, err)
	}
	got := recs[0]
	if got.PromptText != "What is Go?" || got.ResponseText != "A language." || got.ProjectName != "demo" {
		t.Errorf("record = %+v", got)
	}
	if got.Metadata[record.MetaMonitorID] != inst.ID() || got.Metadata[record.MetaDevice] != "/dev/pts/3" {
		t.Errorf("metadata = %v", got.Metadata)
	}

	// The same exchange is captured again and must not be stored twice.
	inst.step(ctx)
	r = inst.report()
	if r.ConversationsStored != 1 || r.DuplicatesSkipped == 0 {
		t.Fatalf("after second tick: stored=%d duplicates=%d", r.ConversationsStored, r.DuplicatesSkipped)
	}
	if repo.Len() != 1 {
		t.Errorf("repository holds %d records", repo.Len())
	}

	// The shell exits.
	inst.step(ctx)
	r = inst.report()
	if r.ActiveSessions != 0 || len(r.Closed) != 1 || r.Status != StatusActive {
		t.Errorf("after close: %+v", r)
	}
	inst.mu.Lock()
	buffers := len(inst.buffers)
	inst.mu.Unlock()
	if buffers != 0 {
		t.Errorf("%d buffers left after session closed", buffers)
	}
}

func TestStepSkipsUnchangedBuffer(t *testing.T) {
	h := newHost(hostexectest.Response{Stdout: psWithShell})
	h.On("timeout 1 cat /dev/pts/3", hostexectest.Response{ExitCode: 124})
	deps := testDeps(h, record.NewMemoryRepository())
	inst := newInstance(context.Background(), deps.Bridge, deps, testOptions())

	inst.step(context.Background())
	inst.step(context.Background())
	r := inst.report()
	if r.ConversationsStored != 0 || r.DuplicatesSkipped != 0 || r.CaptureFailures != 0 {
		t.Errorf("report = %+v", r)
	}
}

// A reply still streaming when a tick captures it is stored as it stood,
// and again once it completes. With FlushOpen off only the finished turn
// is kept.
func TestStepStreamedReply(t *testing.T) {
	for _, tc := range []struct {
		name      string
		flushOpen bool
		want      []string
	}{
		{"flush open", true, []string{"Lightweight", "Lightweight threads."}},
		{"closed turns only", false, []string{"Lightweight threads."}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHost(hostexectest.Response{Stdout: psWithShell})
			repo := record.NewMemoryRepository()
			deps := testDeps(h, repo)
			opts := testOptions()
			turns, err := processor.NewPolicy("", "", "", tc.flushOpen)
			if err != nil {
				t.Fatalf("NewPolicy: %v", err)
			}
			opts.Turns = turns
			inst := newInstance(context.Background(), deps.Bridge, deps, opts)
			ctx := context.Background()

			h.On("timeout 1 cat /dev/pts/3", hostexectest.Response{
				Stdout:   "Human: Explain goroutines\nAssistant: Lightweight",
				ExitCode: 124,
			})
			inst.step(ctx)
			h.On("timeout 1 cat /dev/pts/3", hostexectest.Response{Stdout: " threads.\n$ \n", ExitCode: 124})
			inst.step(ctx)

			recs, err := repo.List(ctx, record.ListOptions{})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			var got []string
			for _, r := range recs {
				got = append(got, r.ResponseText)
			}
			sort.Strings(got)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Errorf("stored responses = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestUnreachableBridgeSetsErrorAndRecovers(t *testing.T) {
	h := newHost(
		hostexectest.Response{Err: hostexec.ErrUnreachable},
		hostexectest.Response{Stdout: psWithShell},
	)
	deps := testDeps(h, record.NewMemoryRepository())
	inst := newInstance(context.Background(), deps.Bridge, deps, testOptions())
	inst.activate()

	inst.step(context.Background())
	r := inst.report()
	if r.Status != StatusError || r.ErrorCount != 1 || !errors.Is(r.Error, hostexec.ErrUnreachable) {
		t.Fatalf("after failure: status=%s errors=%d err=%v", r.Status, r.ErrorCount, r.Error)
	}

	inst.step(context.Background())
	r = inst.report()
	if r.Status != StatusActive || r.Error == nil || r.ActiveSessions != 1 {
		t.Errorf("after recovery: status=%s err=%v active=%d", r.Status, r.Error, r.ActiveSessions)
	}
}

func TestOtherScanFailureKeepsStatus(t *testing.T) {
	h := newHost(hostexectest.Response{ExitCode: 2, Stderr: "ps: bad option"})
	deps := testDeps(h, record.NewMemoryRepository())
	inst := newInstance(context.Background(), deps.Bridge, deps, testOptions())
	inst.activate()

	inst.step(context.Background())
	r := inst.report()
	var exitErr *hostexec.ExitError
	if r.Status != StatusActive || r.ErrorCount != 0 || !errors.As(r.Error, &exitErr) {
		t.Errorf("status=%s errors=%d err=%v", r.Status, r.ErrorCount, r.Error)
	}
}

// panickyRepo fails in a way no component expects.
type panickyRepo struct {
	*record.MemoryRepository
}

func (panickyRepo) FindBySession(context.Context, string) ([]*record.PromptRecord, error) {
	panic("index corrupted")
}

func TestTickRecoversPanic(t *testing.T) {
	h := newHost(hostexectest.Response{Stdout: psWithShell})
	deps := testDeps(h, panickyRepo{record.NewMemoryRepository()})
	inst := newInstance(context.Background(), deps.Bridge, deps, testOptions())
	inst.activate()

	inst.tick()
	r := inst.report()
	if r.Status != StatusError || r.ErrorCount != 1 || r.Error == nil || !strings.Contains(r.Error.Error(), "index corrupted") {
		t.Errorf("status=%s errors=%d err=%v", r.Status, r.ErrorCount, r.Error)
	}
}

func TestOptionsValidate(t *testing.T) {
	if err := (Options{ScanInterval: -time.Second, BufferSize: -1}).validate(); err == nil {
		t.Error("expected error for negative values")
	}
	if err := (Options{}).validate(); err != nil {
		t.Errorf("zero options: %v", err)
	}
	o := Options{}.withDefaults()
	if o.ScanInterval != DefaultScanInterval || o.Turns.Human == nil {
		t.Errorf("defaults = %+v", o)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCoordinatorLifecycle(t *testing.T) {
	h := newHost(hostexectest.Response{Stdout: psWithShell})
	repo := record.NewMemoryRepository()
	c, err := NewCoordinator(Deps{Bridge: h.Bridge(), Repository: repo})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	defer c.Close()

	opts := Options{ScanInterval: 20 * time.Millisecond, CaptureMethod: capture.MethodDirect}
	id, err := c.Start(context.Background(), opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitFor(t, "a stored conversation", func() bool {
		r, err := c.Status(id)
		return err == nil && r.ConversationsStored == 1
	})

	if err := c.Stop(id); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := c.Stop(id); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	r, _ := c.Status(id)
	if r.Status != StatusStopped || r.StoppedAt == nil || r.ActiveSessions != 0 {
		t.Errorf("after Stop: %+v", r)
	}

	// Let any command already in flight at Stop settle before counting.
	time.Sleep(50 * time.Millisecond)
	calls := len(h.Calls())
	time.Sleep(100 * time.Millisecond)
	if after := len(h.Calls()); after != calls {
		t.Errorf("%d host commands ran after Stop", after-calls)
	}

	if err := c.Stop("nope"); !errors.Is(err, ErrUnknownMonitor) {
		t.Errorf("Stop(unknown) = %v", err)
	}
	if _, err := c.Status("nope"); !errors.Is(err, ErrUnknownMonitor) {
		t.Errorf("Status(unknown) = %v", err)
	}
	if n := c.ClearInactive(); n != 1 {
		t.Errorf("ClearInactive = %d, want 1", n)
	}
	if len(c.List()) != 0 {
		t.Errorf("List after clear = %v", c.List())
	}
}

func TestCoordinatorListOrder(t *testing.T) {
	h := newHost(hostexectest.Response{Stdout: psHeader})
	c, err := NewCoordinator(Deps{Bridge: h.Bridge(), Repository: record.NewMemoryRepository()})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	defer c.Close()

	first, _ := c.Start(context.Background(), Options{ScanInterval: time.Hour})
	time.Sleep(5 * time.Millisecond)
	second, _ := c.Start(context.Background(), Options{ScanInterval: time.Hour})

	reports := c.List()
	if len(reports) != 2 || reports[0].ID != first || reports[1].ID != second {
		t.Errorf("List order = %v", reports)
	}
	if reports[0].Status != StatusActive {
		t.Errorf("status = %s", reports[0].Status)
	}
}

func TestStartRejectsBadOptions(t *testing.T) {
	h := newHost(hostexectest.Response{Stdout: psHeader})
	c, err := NewCoordinator(Deps{Bridge: h.Bridge(), Repository: record.NewMemoryRepository()})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	defer c.Close()

	if _, err := c.Start(context.Background(), Options{ScanInterval: -1}); err == nil {
		t.Error("negative interval accepted")
	}
	if _, err := c.Start(context.Background(), Options{AllowList: []string{"("}}); err == nil {
		t.Error("bad allow-list accepted")
	}
	if len(c.List()) != 0 {
		t.Error("rejected start registered an instance")
	}
}

func TestNewCoordinatorRequiresDeps(t *testing.T) {
	if _, err := NewCoordinator(Deps{}); err == nil {
		t.Error("expected error without bridge")
	}
}
