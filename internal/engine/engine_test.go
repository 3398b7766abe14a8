package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/talgya/market-abm/internal/agents"
	"github.com/talgya/market-abm/internal/world"
)

// funcAgent runs the supplied closures as its decide and act steps.
type funcAgent struct {
	agents.Base
	decide func(ctx context.Context, w agents.World) error
	act    func(ctx context.Context, w agents.World) error
}

func newFuncAgent(id agents.AgentID) *funcAgent {
	return &funcAgent{Base: agents.NewBase(id, "test")}
}

func (a *funcAgent) Decide(ctx context.Context, w agents.World) error {
	if a.decide == nil {
		return nil
	}
	return a.decide(ctx, w)
}

func (a *funcAgent) Act(ctx context.Context, w agents.World) error {
	if a.act == nil {
		return nil
	}
	return a.act(ctx, w)
}

// recordingEnv logs the driver's calls into the environment.
type recordingEnv struct {
	*world.General
	calls []string
}

func (r *recordingEnv) AdvanceState() error {
	r.calls = append(r.calls, "advance")
	return r.General.AdvanceState()
}

func (r *recordingEnv) CollectSnapshot() world.Snapshot {
	r.calls = append(r.calls, "snapshot")
	return r.General.CollectSnapshot()
}

func (r *recordingEnv) ExportResults(path string) error {
	r.calls = append(r.calls, "export")
	return r.General.ExportResults(path)
}

func newGeneral(t *testing.T, seed int64, p world.GeneralParams) *world.General {
	t.Helper()
	env, err := world.NewGeneral(seed, p)
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func testConfig(t *testing.T, cycles int, parallel bool) Config {
	cfg := DefaultConfig()
	cfg.Cycles = cycles
	cfg.Parallel = parallel
	cfg.Workers = 4
	cfg.ResultsPath = filepath.Join(t.TempDir(), "results.json")
	return cfg
}

func mustRun(t *testing.T, env world.Environment, cfg Config) *Result {
	t.Helper()
	eng, err := New(env, cfg)
	if err != nil {
		t.Fatal(err)
	}
	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return res
}

// populate adds a mixed roster whose behavior depends on price history and
// per-agent random sources.
func populate(t *testing.T, env world.Environment, seed int64) {
	t.Helper()
	sp := agents.NewSpawner(seed)
	kinds := []agents.Constructor{
		func(id agents.AgentID, _ int64) (agents.Agent, error) {
			return agents.NewTrend(id, agents.SignalParams{Cash: 6000, K: 0.12})
		},
		func(id agents.AgentID, _ int64) (agents.Agent, error) {
			return agents.NewContrarian(id, agents.SignalParams{Cash: 6000, K: 0.10})
		},
		func(id agents.AgentID, s int64) (agents.Agent, error) {
			return agents.NewNoise(id, s, agents.NoiseParams{Cash: 1000, Position: 20, MaxLot: 4, BuyProb: 0.55})
		},
		func(id agents.AgentID, _ int64) (agents.Agent, error) {
			return agents.NewFundamentalist(id, agents.DefaultFundamentalistParams())
		},
	}
	for _, build := range kinds {
		batch, err := sp.Spawn(8, 0, build)
		if err != nil {
			t.Fatal(err)
		}
		for _, a := range batch {
			env.AddAgent(a)
		}
	}
}

func pricePath(t *testing.T, parallel bool) []float64 {
	env := newGeneral(t, 21, world.DefaultGeneralParams())
	populate(t, env, 21)
	mustRun(t, env, testConfig(t, 120, parallel))
	return env.History().Prices
}

func TestSnapshotCountEqualsCycles(t *testing.T) {
	for _, n := range []int{0, 1, 7} {
		for _, parallel := range []bool{false, true} {
			env := newGeneral(t, 1, world.DefaultGeneralParams())
			populate(t, env, 1)
			cfg := testConfig(t, n, parallel)
			res := mustRun(t, env, cfg)

			snaps, err := world.ReadSnapshots(cfg.ResultsPath)
			if err != nil {
				t.Fatal(err)
			}
			if len(snaps) != n || res.Cycles != n {
				t.Errorf("n=%d parallel=%v: %d snapshots, %d cycles", n, parallel, len(snaps), res.Cycles)
			}
		}
	}
}

func TestSequentialRunsAreBitIdentical(t *testing.T) {
	a, b := pricePath(t, false), pricePath(t, false)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("price %d differs: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestParallelMatchesSequential(t *testing.T) {
	seq := pricePath(t, false)
	for trial := 0; trial < 5; trial++ {
		par := pricePath(t, true)
		if len(par) != len(seq) {
			t.Fatalf("length %d vs %d", len(par), len(seq))
		}
		for i := range seq {
			if seq[i] != par[i] {
				t.Fatalf("trial %d: price %d differs: %v vs %v", trial, i, seq[i], par[i])
			}
		}
	}
}

func TestZeroOrderScenario(t *testing.T) {
	env := newGeneral(t, 1, world.GeneralParams{InitialPrice: 100})
	a := newFuncAgent(1)
	a.act = func(_ context.Context, w agents.World) error {
		w.SubmitOrder(1, 0)
		return nil
	}
	env.AddAgent(a)
	mustRun(t, env, testConfig(t, 5, true))

	h := env.History()
	if len(h.Prices) != 5 {
		t.Fatalf("expected 5 prices, got %d", len(h.Prices))
	}
	for i := range h.Prices {
		if h.Prices[i] != 100 || h.Imbalance[i] != 0 {
			t.Errorf("cycle %d: price %v imbalance %v", i, h.Prices[i], h.Imbalance[i])
		}
	}
}

func TestOpposingOrdersNetToZero(t *testing.T) {
	env := newGeneral(t, 1, world.DefaultGeneralParams())
	for id, q := range map[agents.AgentID]float64{1: 10, 2: -10} {
		a := newFuncAgent(id)
		q := q
		a.act = func(_ context.Context, w agents.World) error {
			w.SubmitOrder(a.ID(), q)
			return nil
		}
		env.AddAgent(a)
	}
	mustRun(t, env, testConfig(t, 20, true))
	for i, v := range env.History().Imbalance {
		if v != 0 {
			t.Fatalf("cycle %d: imbalance %v", i, v)
		}
	}
}

func TestEmptyRosterStillTransitions(t *testing.T) {
	env := newGeneral(t, 9, world.DefaultGeneralParams())
	res := mustRun(t, env, testConfig(t, 10, true))
	if res.Cycles != 10 || len(env.PriceHistory()) != 10 {
		t.Fatalf("expected 10 cycles, got %d (history %d)", res.Cycles, len(env.PriceHistory()))
	}
	if env.Price() == 100 {
		t.Error("expected model noise to move the price")
	}
}

func TestCallOrdering(t *testing.T) {
	env := &recordingEnv{General: newGeneral(t, 1, world.DefaultGeneralParams())}
	mustRun(t, env, testConfig(t, 3, true))

	want := []string{"advance", "snapshot", "advance", "snapshot", "advance", "snapshot", "export"}
	if len(env.calls) != len(want) {
		t.Fatalf("calls = %v", env.calls)
	}
	for i := range want {
		if env.calls[i] != want[i] {
			t.Fatalf("call %d = %s, want %s (%v)", i, env.calls[i], want[i], env.calls)
		}
	}
}

func TestBarrierPrecedesTransition(t *testing.T) {
	env := newGeneral(t, 1, world.DefaultGeneralParams())
	var done atomic.Int64
	const n = 50
	for i := 1; i <= n; i++ {
		a := newFuncAgent(agents.AgentID(i))
		a.act = func(context.Context, agents.World) error {
			time.Sleep(time.Duration(i%5) * time.Millisecond)
			done.Add(1)
			return nil
		}
		env.AddAgent(a)
	}

	eng, err := New(env, testConfig(t, 4, true))
	if err != nil {
		t.Fatal(err)
	}
	eng.OnCycle = func(s world.Snapshot) {
		if got := done.Load(); got != int64(n*s.Cycle) {
			t.Errorf("cycle %d: transition saw %d finished tasks, want %d", s.Cycle, got, n*s.Cycle)
		}
	}
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestAbortSequentialStopsAtFirstFailure(t *testing.T) {
	env := newGeneral(t, 1, world.DefaultGeneralParams())
	boom := errors.New("boom")
	var later atomic.Int64

	failing := newFuncAgent(1)
	failing.decide = func(_ context.Context, w agents.World) error {
		if w.Cycle() == 2 {
			return boom
		}
		return nil
	}
	after := newFuncAgent(2)
	after.act = func(_ context.Context, w agents.World) error {
		if w.Cycle() == 2 {
			later.Add(1)
		}
		return nil
	}
	env.AddAgent(failing)
	env.AddAgent(after)

	cfg := testConfig(t, 5, false)
	eng, _ := New(env, cfg)
	res, err := eng.Run(context.Background())

	var tf *TaskFailure
	if !errors.As(err, &tf) || !errors.Is(err, boom) {
		t.Fatalf("expected TaskFailure wrapping boom, got %v", err)
	}
	if tf.Cycle != 2 || tf.AgentID != 1 || tf.Phase != "decide" {
		t.Errorf("unexpected failure %+v", tf)
	}
	if later.Load() != 0 {
		t.Error("agent after the failure ran in the failing cycle")
	}
	if res.Cycles != 2 || eng.State() != StateFailed {
		t.Errorf("cycles=%d state=%s", res.Cycles, eng.State())
	}
	if _, err := os.Stat(cfg.ResultsPath); !os.IsNotExist(err) {
		t.Error("results exported after abort")
	}
}

func TestAbortParallelSurfacesFailure(t *testing.T) {
	env := newGeneral(t, 1, world.DefaultGeneralParams())
	boom := errors.New("boom")
	for i := 1; i <= 20; i++ {
		a := newFuncAgent(agents.AgentID(i))
		if i == 7 {
			a.act = func(context.Context, agents.World) error { return boom }
		}
		env.AddAgent(a)
	}
	cfg := testConfig(t, 3, true)
	eng, _ := New(env, cfg)
	res, err := eng.Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if res.Cycles != 0 || len(env.PriceHistory()) != 0 {
		t.Error("transition ran after a failed dispatch")
	}
	if _, err := os.Stat(cfg.ResultsPath); !os.IsNotExist(err) {
		t.Error("results exported after abort")
	}
}

func TestIsolateRecordsAndContinues(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		env := newGeneral(t, 1, world.DefaultGeneralParams())
		bad := newFuncAgent(3)
		bad.act = func(_ context.Context, w agents.World) error {
			w.SubmitOrder(3, 1)
			return errors.New("flaky")
		}
		good := newFuncAgent(4)
		good.act = func(_ context.Context, w agents.World) error {
			w.SubmitOrder(4, 2)
			return nil
		}
		env.AddAgent(bad)
		env.AddAgent(good)

		cfg := testConfig(t, 6, parallel)
		cfg.FailurePolicy = FailIsolate
		res := mustRun(t, env, cfg)

		if len(res.Failures) != 6 {
			t.Fatalf("parallel=%v: expected 6 failures, got %d", parallel, len(res.Failures))
		}
		for i, f := range res.Failures {
			if f.AgentID != 3 || f.Cycle != i || f.Phase != "act" {
				t.Errorf("unexpected failure %+v", f)
			}
		}
		for i, v := range env.History().Imbalance {
			if v != 3 {
				t.Errorf("cycle %d: imbalance %v, want 3", i, v)
			}
		}
	}
}

func TestPanicBecomesTaskFailure(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		env := newGeneral(t, 1, world.DefaultGeneralParams())
		a := newFuncAgent(5)
		a.decide = func(context.Context, agents.World) error { panic("bad state") }
		env.AddAgent(a)
		env.AddAgent(newFuncAgent(6))

		eng, _ := New(env, testConfig(t, 2, parallel))
		_, err := eng.Run(context.Background())
		var tf *TaskFailure
		if !errors.Is(err, ErrAgentPanic) || !errors.As(err, &tf) || tf.AgentID != 5 {
			t.Fatalf("parallel=%v: expected panic failure for agent 5, got %v", parallel, err)
		}
	}
}

func TestTaskTimeout(t *testing.T) {
	cases := map[string]func(ctx context.Context, w agents.World) error{
		"honors context": func(ctx context.Context, _ agents.World) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
		"ignores context": func(context.Context, agents.World) error {
			time.Sleep(50 * time.Millisecond)
			return nil
		},
	}
	for name, decide := range cases {
		t.Run(name, func(t *testing.T) {
			env := newGeneral(t, 1, world.DefaultGeneralParams())
			a := newFuncAgent(1)
			a.decide = decide
			env.AddAgent(a)

			cfg := testConfig(t, 1, true)
			cfg.TaskTimeout = 10 * time.Millisecond
			eng, _ := New(env, cfg)
			_, err := eng.Run(context.Background())
			if !errors.Is(err, ErrTaskTimeout) {
				t.Fatalf("expected ErrTaskTimeout, got %v", err)
			}
		})
	}
}

func TestBaseAgentIsNotImplemented(t *testing.T) {
	env := newGeneral(t, 1, world.DefaultGeneralParams())
	base := agents.NewBase(1, "")
	env.AddAgent(&base)

	eng, _ := New(env, testConfig(t, 1, false))
	if _, err := eng.Run(context.Background()); !errors.Is(err, agents.ErrNotImplemented) {
		t.Fatalf("expected ErrNotImplemented, got %v", err)
	}
}

func TestPartialExport(t *testing.T) {
	env := newGeneral(t, 1, world.DefaultGeneralParams())
	a := newFuncAgent(1)
	a.decide = func(_ context.Context, w agents.World) error {
		if w.Cycle() == 3 {
			return errors.New("boom")
		}
		return nil
	}
	env.AddAgent(a)

	cfg := testConfig(t, 10, false)
	cfg.PartialExport = true
	eng, _ := New(env, cfg)
	res, err := eng.Run(context.Background())
	if err == nil {
		t.Fatal("expected failure")
	}
	if !res.Partial || res.ResultsPath != PartialPath(cfg.ResultsPath) {
		t.Fatalf("unexpected result %+v", res)
	}
	snaps, err := world.ReadSnapshots(res.ResultsPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 3 {
		t.Errorf("expected 3 partial snapshots, got %d", len(snaps))
	}
	if _, err := os.Stat(cfg.ResultsPath); !os.IsNotExist(err) {
		t.Error("full results written for an aborted run")
	}
}

func TestCancelledContext(t *testing.T) {
	env := newGeneral(t, 1, world.DefaultGeneralParams())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := testConfig(t, 5, true)
	eng, _ := New(env, cfg)
	if _, err := eng.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, err := os.Stat(cfg.ResultsPath); !os.IsNotExist(err) {
		t.Error("results exported after cancellation")
	}
}

func TestRunOnlyOnce(t *testing.T) {
	env := newGeneral(t, 1, world.DefaultGeneralParams())
	eng, _ := New(env, testConfig(t, 1, false))
	completed := false
	eng.OnComplete = func(*Result) { completed = true }

	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !completed || eng.State() != StateCompleted {
		t.Fatalf("completed=%v state=%s", completed, eng.State())
	}
	if _, err := eng.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("expected ErrAlreadyRun, got %v", err)
	}
	if err := eng.RunCycle(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Fatalf("expected ErrAlreadyRun from RunCycle, got %v", err)
	}
}

func TestConfigValidation(t *testing.T) {
	env := newGeneral(t, 1, world.DefaultGeneralParams())
	cfg := DefaultConfig()
	cfg.Cycles = -1
	if _, err := New(env, cfg); err == nil {
		t.Error("expected error for negative cycles")
	}
	cfg = DefaultConfig()
	cfg.ResultsPath = ""
	if _, err := New(env, cfg); err == nil {
		t.Error("expected error for empty results path")
	}
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("expected error for nil environment")
	}
}

func TestParseFailurePolicy(t *testing.T) {
	for in, want := range map[string]FailurePolicy{"": FailAbort, "abort": FailAbort, "Isolate": FailIsolate} {
		got, err := ParseFailurePolicy(in)
		if err != nil || got != want {
			t.Errorf("%q: got %v, %v", in, got, err)
		}
	}
	if _, err := ParseFailurePolicy("retry"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestPartialPath(t *testing.T) {
	if got := PartialPath("out/results.json"); got != "out/results.partial.json" {
		t.Errorf("got %q", got)
	}
	if got := PartialPath("results"); got != "results.partial" {
		t.Errorf("got %q", got)
	}
}
