package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/market-abm/internal/agents"
)

// dispatch runs every agent's decide+act once for the cycle and returns
// only after all of them have returned. Under FailIsolate the failures come
// back sorted by agent ID; under FailAbort the first failure is the error.
func (e *Engine) dispatch(ctx context.Context, cycle int) ([]TaskFailure, error) {
	roster := e.env.Agents()
	if e.cfg.Parallel && len(roster) > 1 {
		return e.dispatchParallel(ctx, cycle, roster)
	}
	return e.dispatchSequential(ctx, cycle, roster)
}

func (e *Engine) dispatchSequential(ctx context.Context, cycle int, roster []agents.Agent) ([]TaskFailure, error) {
	var failures []TaskFailure
	for _, a := range roster {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := e.runTask(ctx, cycle, a)
		if err == nil {
			continue
		}
		if e.cfg.FailurePolicy == FailAbort {
			return nil, err
		}
		failures = append(failures, asFailure(err, cycle, a.ID()))
	}
	return failures, nil
}

func (e *Engine) dispatchParallel(ctx context.Context, cycle int, roster []agents.Agent) ([]TaskFailure, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.workers())

	var (
		mu       sync.Mutex
		failures []TaskFailure
	)
	for _, a := range roster {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := e.runTask(gctx, cycle, a)
			if err == nil {
				return nil
			}
			if e.cfg.FailurePolicy == FailAbort {
				return err
			}
			mu.Lock()
			failures = append(failures, asFailure(err, cycle, a.ID()))
			mu.Unlock()
			return nil
		})
	}

	// Barrier.
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slices.SortFunc(failures, func(a, b TaskFailure) int {
		return cmp.Compare(a.AgentID, b.AgentID)
	})
	return failures, nil
}

// runTask runs one agent's unit of work under the per-task deadline.
// Errors, panics and overruns all come back as *TaskFailure.
func (e *Engine) runTask(ctx context.Context, cycle int, a agents.Agent) (err error) {
	id := a.ID()
	phase := "decide"

	tctx := ctx
	if e.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		tctx, cancel = context.WithTimeout(ctx, e.cfg.TaskTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = &TaskFailure{Cycle: cycle, AgentID: id, Phase: phase, Err: fmt.Errorf("%w: %v", ErrAgentPanic, r)}
		}
	}()

	if err := a.Decide(tctx, e.env); err != nil {
		return e.taskFailure(ctx, tctx, cycle, id, phase, err)
	}
	phase = "act"
	if err := a.Act(tctx, e.env); err != nil {
		return e.taskFailure(ctx, tctx, cycle, id, phase, err)
	}
	if ctx.Err() == nil && tctx.Err() != nil {
		return &TaskFailure{Cycle: cycle, AgentID: id, Phase: phase, Err: ErrTaskTimeout}
	}
	return nil
}

// taskFailure attributes a deadline error to the per-task timeout when the
// parent context is still live.
func (e *Engine) taskFailure(ctx, tctx context.Context, cycle int, id agents.AgentID, phase string, err error) error {
	if ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w: %w", ErrTaskTimeout, err)
	}
	return &TaskFailure{Cycle: cycle, AgentID: id, Phase: phase, Err: err}
}

func asFailure(err error, cycle int, id agents.AgentID) TaskFailure {
	var tf *TaskFailure
	if errors.As(err, &tf) {
		return *tf
	}
	return TaskFailure{Cycle: cycle, AgentID: id, Err: err}
}
