package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// State is the driver's lifecycle stage.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailurePolicy decides what a failed agent task does to the run.
type FailurePolicy int

const (
	// FailAbort aborts the run on the first failed task. In parallel mode the
	// remaining tasks of the cycle are cancelled and the failure surfaces
	// once they have all returned.
	FailAbort FailurePolicy = iota
	// FailIsolate logs the failure, records it, and keeps going. Orders the
	// agent submitted before failing stay in the cycle.
	FailIsolate
)

func (p FailurePolicy) String() string {
	if p == FailIsolate {
		return "isolate"
	}
	return "abort"
}

// ParseFailurePolicy parses "abort" or "isolate". Empty means abort.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return FailAbort, nil
	case "isolate":
		return FailIsolate, nil
	default:
		return FailAbort, fmt.Errorf("unknown failure policy %q", s)
	}
}

// Config controls a simulation run.
type Config struct {
	Cycles        int
	Parallel      bool
	Workers       int           // 0 = runtime.GOMAXPROCS(0)
	TaskTimeout   time.Duration // 0 = no per-task deadline
	FailurePolicy FailurePolicy
	ResultsPath   string
	PartialExport bool // on abort, export collected snapshots to PartialPath(ResultsPath)
}

// DefaultConfig returns the stock run configuration.
func DefaultConfig() Config {
	return Config{
		Cycles:        100,
		Parallel:      true,
		FailurePolicy: FailAbort,
		ResultsPath:   "results.json",
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.Cycles < 0 {
		errs = append(errs, fmt.Errorf("cycles must be non-negative, got %d", c.Cycles))
	}
	if c.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be non-negative, got %d", c.Workers))
	}
	if c.TaskTimeout < 0 {
		errs = append(errs, fmt.Errorf("task timeout must be non-negative, got %s", c.TaskTimeout))
	}
	if c.ResultsPath == "" {
		errs = append(errs, errors.New("results path is required"))
	}
	return errors.Join(errs...)
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// PartialPath returns the file a partial export is written to:
// results.json becomes results.partial.json.
func PartialPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".partial" + ext
}

// Result summarizes a finished or aborted run.
type Result struct {
	Cycles      int           `json:"cycles"` // cycles fully completed
	Failures    []TaskFailure `json:"-"`
	Duration    time.Duration `json:"duration"`
	ResultsPath string        `json:"results_path,omitempty"`
	Partial     bool          `json:"partial"`
}
