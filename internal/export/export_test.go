package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/market-abm/internal/engine"
	"github.com/talgya/market-abm/internal/metrics"
	"github.com/talgya/market-abm/internal/world"
)

func TestRunDir(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	dir, err := RunDir(base, "FII", now)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dir) != "FII_20250304-050607" {
		t.Errorf("got %s", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Errorf("run dir not created: %v", err)
	}
}

func TestWriteSeries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	if err := WriteSeries(path, "price", []float64{100, 101.5}); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	want := [][]string{{"idx", "price"}, {"0", "100"}, {"1", "101.5"}}
	if len(rows) != len(want) {
		t.Fatalf("got %v", rows)
	}
	for i := range want {
		if strings.Join(rows[i], ",") != strings.Join(want[i], ",") {
			t.Errorf("row %d = %v, want %v", i, rows[i], want[i])
		}
	}
}

func TestWriteRun(t *testing.T) {
	dir := t.TempDir()
	h := world.History{Prices: []float64{100, 101, 102}, Imbalance: []float64{0, 1, 2}}
	m := NewManifest(time.Now())
	m.Name = "geral"
	m.Finish(&engine.Result{
		Cycles:   3,
		Duration: 1500 * time.Millisecond,
		Failures: []engine.TaskFailure{{Cycle: 1, AgentID: 4, Phase: "act", Err: errors.New("flaky")}},
	}, nil)

	if err := WriteRun(dir, h, metrics.Summarize(h.Prices, map[string]float64{"depth": 300}), m); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{PricesFile, ImbalanceFile, MetricsFile, ManifestFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, DividendsFile)); !os.IsNotExist(err) {
		t.Error("dividends written without a dividend series")
	}

	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		t.Fatal(err)
	}
	var got Manifest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatal(err)
	}
	if got.RunID == "" || got.CompletedCycles != 3 || got.DurationSeconds != 1.5 {
		t.Errorf("unexpected manifest %+v", got)
	}
	if len(got.Failures) != 1 || got.Failures[0].AgentID != 4 || got.Failures[0].Error != "flaky" {
		t.Errorf("unexpected failures %+v", got.Failures)
	}
}

func TestManifestRecordsAbort(t *testing.T) {
	m := NewManifest(time.Now())
	m.Finish(&engine.Result{Cycles: 2, Partial: true, ResultsPath: "r.partial.json"}, errors.New("boom"))
	if m.Error != "boom" || !m.Partial || m.CompletedCycles != 2 {
		t.Errorf("unexpected manifest %+v", m)
	}
	if NewManifest(time.Now()).RunID == m.RunID {
		t.Error("run ids should be unique")
	}
}
