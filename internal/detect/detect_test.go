package detect_test

import (
	"context"
	"errors"
	"testing"

	"github.com/fakeyudi/promptwatch/internal/detect"
	"github.com/fakeyudi/promptwatch/internal/hostexec"
	"github.com/fakeyudi/promptwatch/internal/hostexec/hostexectest"
)

const listing = `USER PID %CPU %MEM VSZ RSS TTY STAT START TIME COMMAND
root 1 0.0 0.1 1000 100 ? Ss 09:00 0:01 /sbin/init
dev 100 0.0 0.1 1000 100 pts/0 Ss 09:00 0:00 -zsh
dev 101 0.0 0.1 1000 100 pts/0 R+ 09:00 0:00 ps auxww
`

func TestListSessions(t *testing.T) {
	runner := hostexectest.New().On(detect.ListCommand, hostexectest.Response{Stdout: listing})
	d := detect.New(runner.Bridge(), nil)

	all, err := d.ListSessions(context.Background(), false)
	if err != nil {
		t.Fatalf("ListSessions(all): %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d processes, want 3", len(all))
	}

	interactive, err := d.ListSessions(context.Background(), true)
	if err != nil {
		t.Fatalf("ListSessions(interactive): %v", err)
	}
	if len(interactive) != 1 || interactive[0].PID != 100 {
		t.Errorf("interactive = %+v, want only pid 100", interactive)
	}
}

func TestListSessionsBridgeFailure(t *testing.T) {
	runner := hostexectest.New().On(detect.ListCommand, hostexectest.Response{Err: hostexec.ErrUnreachable})
	d := detect.New(runner.Bridge(), nil)

	_, err := d.ListSessions(context.Background(), true)
	if !errors.Is(err, hostexec.ErrUnreachable) {
		t.Errorf("ListSessions() error = %v, want ErrUnreachable", err)
	}
}
