package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/fakeyudi/promptwatch/internal/capture"
	"github.com/fakeyudi/promptwatch/internal/convstore"
	"github.com/fakeyudi/promptwatch/internal/processor"
	"github.com/fakeyudi/promptwatch/internal/tracker"
)

// DefaultScanInterval is the time between ticks.
const DefaultScanInterval = 5 * time.Second

// Options configures one monitor instance. Zero values take defaults.
type Options struct {
	ScanInterval   time.Duration
	CaptureTimeout time.Duration
	CaptureMethod  capture.Method
	BufferSize     int
	DedupCacheSize int
	DedupRetention time.Duration
	HistorySize    int
	// AllowList replaces the bridge's command patterns for this instance.
	AllowList []string
	// Turns is the conversation policy; a zero Policy means the default.
	Turns       processor.Policy
	ProjectName string
	ProjectGoal string
	Labels      []string
}

func (o Options) withDefaults() Options {
	if o.ScanInterval == 0 {
		o.ScanInterval = DefaultScanInterval
	}
	if o.CaptureTimeout == 0 {
		o.CaptureTimeout = capture.DefaultTimeout
	}
	if o.BufferSize == 0 {
		o.BufferSize = capture.DefaultBufferSize
	}
	if o.DedupCacheSize == 0 {
		o.DedupCacheSize = convstore.DefaultCacheSize
	}
	if o.DedupRetention == 0 {
		o.DedupRetention = convstore.DefaultRetention
	}
	if o.HistorySize == 0 {
		o.HistorySize = tracker.DefaultHistorySize
	}
	if o.Turns.Human == nil || o.Turns.Assistant == nil || o.Turns.ShellPrompt == nil {
		o.Turns = processor.DefaultPolicy()
	}
	return o
}

func (o Options) validate() error {
	var errs []error
	if o.ScanInterval < 0 {
		errs = append(errs, fmt.Errorf("scan interval must be positive, got %s", o.ScanInterval))
	}
	if o.CaptureTimeout < 0 {
		errs = append(errs, fmt.Errorf("capture timeout must be positive, got %s", o.CaptureTimeout))
	}
	if o.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("buffer size must be positive, got %d", o.BufferSize))
	}
	if o.DedupCacheSize < 0 {
		errs = append(errs, fmt.Errorf("dedup cache size must be positive, got %d", o.DedupCacheSize))
	}
	if o.DedupRetention < 0 {
		errs = append(errs, fmt.Errorf("dedup retention must be positive, got %s", o.DedupRetention))
	}
	if o.HistorySize < 0 {
		errs = append(errs, fmt.Errorf("history size must be positive, got %d", o.HistorySize))
	}
	return errors.Join(errs...)
}
