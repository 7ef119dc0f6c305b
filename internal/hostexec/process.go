package hostexec

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// maxOutputBytes caps what a single command may return.
const maxOutputBytes = 4 << 20

// runProcess runs argv and collects its output. The returned error is
// non-nil only when the process could not be run or ctx ended first; a
// non-zero exit is reported through Output.ExitCode.
func runProcess(ctx context.Context, argv []string, configure func(*exec.Cmd)) (Output, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = time.Second
	if configure != nil {
		configure(cmd)
	}

	stdout := newCappedBuffer(maxOutputBytes)
	stderr := newCappedBuffer(64 << 10)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	out := Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ctx.Err() != nil {
		return out, ctx.Err()
	}
	if err != nil {
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			out.ExitCode = ee.ExitCode()
			return out, nil
		}
		return out, err
	}
	return out, nil
}

type cappedBuffer struct {
	max int
	buf bytes.Buffer
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{max: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	remain := b.max - b.buf.Len()
	if remain <= 0 {
		return len(p), nil
	}
	if len(p) > remain {
		b.buf.Write(p[:remain])
		return len(p), nil
	}
	return b.buf.Write(p)
}

func (b *cappedBuffer) Bytes() []byte {
	return b.buf.Bytes()
}
