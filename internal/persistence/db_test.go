package persistence

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/talgya/market-abm/internal/agents"
	"github.com/talgya/market-abm/internal/export"
	"github.com/talgya/market-abm/internal/world"
)

func openTest(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func steppedREIT(t *testing.T, cycles int) *world.REIT {
	t.Helper()
	env, err := world.NewREIT(7, world.DefaultREITParams())
	if err != nil {
		t.Fatal(err)
	}
	f, err := agents.NewFundamentalist(1, agents.DefaultFundamentalistParams())
	if err != nil {
		t.Fatal(err)
	}
	env.AddAgent(f)
	for i := 0; i < cycles; i++ {
		if err := env.AdvanceState(); err != nil {
			t.Fatal(err)
		}
		env.CollectSnapshot()
	}
	return env
}

func TestArchiveRoundTrip(t *testing.T) {
	db := openTest(t)
	env := steppedREIT(t, 5)

	m := export.NewManifest(time.Now())
	m.Name = "fii"
	m.Environment = "reit"
	m.Cycles = 5
	m.CompletedCycles = 5
	if err := db.SaveRunArchive(m, env); err != nil {
		t.Fatal(err)
	}

	prices, err := db.RunSeries(m.RunID, "price")
	if err != nil {
		t.Fatal(err)
	}
	want := env.History().Prices
	if len(prices) != len(want) {
		t.Fatalf("expected %d prices, got %d", len(want), len(prices))
	}
	for i := range want {
		if prices[i] != want[i] {
			t.Errorf("price %d = %v, want %v", i, prices[i], want[i])
		}
	}
	divs, err := db.RunSeries(m.RunID, "dividend")
	if err != nil || len(divs) != 5 {
		t.Errorf("expected 5 dividends, got %d (%v)", len(divs), err)
	}

	snaps, err := db.RunSnapshots(m.RunID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(snaps) != 3 || snaps[0].Cycle != 3 || snaps[2].Cycle != 5 {
		t.Fatalf("unexpected snapshots %+v", snaps)
	}
	if snaps[0].WorldState["price"] != env.Snapshots()[2].WorldState["price"] {
		t.Error("world state not preserved")
	}
	if len(snaps[0].AgentStates) != 1 {
		t.Errorf("expected 1 agent state, got %d", len(snaps[0].AgentStates))
	}

	last, err := db.GetMeta("last_run")
	if err != nil || last != m.RunID {
		t.Errorf("last_run = %q (%v)", last, err)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	db := openTest(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		m := export.NewManifest(base.Add(time.Duration(i) * time.Hour))
		m.Name = "run"
		m.Partial = i == 1
		if err := db.SaveRun(m); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, m.RunID)
	}

	runs, err := db.Runs(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Fatalf("unexpected runs %+v", runs)
	}
	if !runs[1].Partial {
		t.Error("partial flag lost")
	}
}

func TestSaveSeriesReplaces(t *testing.T) {
	db := openTest(t)
	if err := db.SaveSeries("r1", "price", []float64{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := db.SaveSeries("r1", "price", []float64{4}); err != nil {
		t.Fatal(err)
	}
	got, err := db.RunSeries("r1", "price")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != 4 {
		t.Errorf("got %v", got)
	}
}

func TestGetMetaMissing(t *testing.T) {
	db := openTest(t)
	if _, err := db.GetMeta("nope"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("expected sql.ErrNoRows, got %v", err)
	}
}
