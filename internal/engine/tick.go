// Package engine provides the cycle-based simulation driver: dispatch of
// agent work, the end-of-cycle barrier, the environment transition and the
// snapshot, repeated for a configured number of cycles.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/talgya/market-abm/internal/world"
)

// Engine drives one environment through one run.
type Engine struct {
	env   world.Environment
	cfg   Config
	state atomic.Int32

	mu       sync.Mutex
	failures []TaskFailure

	// Callbacks, populated during setup and invoked on the driver goroutine.
	OnCycle    func(snap world.Snapshot) // after each snapshot
	OnComplete func(res *Result)         // after a successful export
}

// New creates an engine for env.
func New(env world.Environment, cfg Config) (*Engine, error) {
	if env == nil {
		return nil, errors.New("engine: nil environment")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine: invalid config: %w", err)
	}
	return &Engine{env: env, cfg: cfg}, nil
}

// State returns the current lifecycle stage. Safe for concurrent use.
func (e *Engine) State() State {
	return State(e.state.Load())
}

// Config returns the run configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Environment returns the environment being driven.
func (e *Engine) Environment() world.Environment {
	return e.env
}

// Failures returns the isolated task failures recorded so far.
// Safe for concurrent use.
func (e *Engine) Failures() []TaskFailure {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]TaskFailure(nil), e.failures...)
}

// Run executes the configured cycles and exports the snapshot history once.
// Any fatal error aborts before the export; the returned Result is non-nil
// in that case too and describes how far the run got. Cancelling ctx aborts
// at the next cycle boundary.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if !e.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyRun
	}

	start := time.Now()
	res := &Result{}
	slog.Info("simulation started",
		"cycles", e.cfg.Cycles,
		"agents", len(e.env.Agents()),
		"parallel", e.cfg.Parallel,
		"workers", e.cfg.workers(),
		"failure_policy", e.cfg.FailurePolicy.String(),
	)

	for c := 0; c < e.cfg.Cycles; c++ {
		if err := ctx.Err(); err != nil {
			return e.abort(res, start, fmt.Errorf("cycle %d: %w", e.env.Cycle(), err))
		}
		if err := e.RunCycle(ctx); err != nil {
			return e.abort(res, start, err)
		}
		res.Cycles++
	}

	if err := e.env.ExportResults(e.cfg.ResultsPath); err != nil {
		e.state.Store(int32(StateFailed))
		res.Duration = time.Since(start)
		res.Failures = e.Failures()
		return res, fmt.Errorf("export results: %w", err)
	}

	e.state.Store(int32(StateCompleted))
	res.Duration = time.Since(start)
	res.Failures = e.Failures()
	res.ResultsPath = e.cfg.ResultsPath
	slog.Info("simulation completed",
		"cycles", res.Cycles,
		"price", e.env.Price(),
		"failures", len(res.Failures),
		"duration", res.Duration,
		"results", res.ResultsPath,
	)

	if e.OnComplete != nil {
		e.OnComplete(res)
	}
	return res, nil
}

// RunCycle runs one cycle: dispatch, barrier, transition, snapshot. A
// failed dispatch discards the cycle's orders and skips the transition.
func (e *Engine) RunCycle(ctx context.Context) error {
	switch e.State() {
	case StateCompleted, StateFailed:
		return ErrAlreadyRun
	}

	cycle := e.env.Cycle()
	failures, err := e.dispatch(ctx, cycle)
	if err != nil {
		e.env.DiscardOrders()
		return err
	}
	for _, f := range failures {
		slog.Warn("agent task failed", "cycle", f.Cycle, "agent", f.AgentID, "phase", f.Phase, "err", f.Err)
	}
	if len(failures) > 0 {
		e.mu.Lock()
		e.failures = append(e.failures, failures...)
		e.mu.Unlock()
	}

	if err := e.env.AdvanceState(); err != nil {
		return fmt.Errorf("advance state: %w", err)
	}
	snap := e.env.CollectSnapshot()
	slog.Debug("cycle completed", "cycle", snap.Cycle, "price", e.env.Price())

	if e.OnCycle != nil {
		e.OnCycle(snap)
	}
	return nil
}

func (e *Engine) abort(res *Result, start time.Time, cause error) (*Result, error) {
	e.state.Store(int32(StateFailed))
	res.Duration = time.Since(start)
	res.Failures = e.Failures()

	if e.cfg.PartialExport {
		path := PartialPath(e.cfg.ResultsPath)
		if err := e.env.ExportResults(path); err != nil {
			slog.Error("partial export failed", "path", path, "err", err)
		} else {
			res.ResultsPath = path
			res.Partial = true
			slog.Warn("partial results exported", "path", path, "cycles", res.Cycles)
		}
	}

	slog.Error("simulation aborted", "cycles", res.Cycles, "err", cause)
	return res, cause
}
