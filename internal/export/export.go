// Package export writes a run's output directory: CSV series, metrics and
// the run manifest next to the snapshot history.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/talgya/market-abm/internal/metrics"
	"github.com/talgya/market-abm/internal/world"
)

// File names inside a run directory.
const (
	ResultsFile   = "results.json"
	PricesFile    = "prices.csv"
	ImbalanceFile = "imbalance.csv"
	DividendsFile = "dividends.csv"
	MetricsFile   = "metrics.json"
	ManifestFile  = "manifest.json"
)

// RunDir creates and returns <dir>/<tag>_<timestamp>.
func RunDir(dir, tag string, now time.Time) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_%s", tag, now.Format("20060102-150405")))
	if err := os.MkdirAll(path, 0755); err != nil {
		return "", fmt.Errorf("failed to create run dir: %w", err)
	}
	return path, nil
}

// WriteSeries writes values as a two-column CSV: idx,<header>.
func WriteSeries(path, header string, values []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"idx", header}); err != nil {
		return err
	}
	for i, v := range values {
		if err := w.Write([]string{strconv.Itoa(i), strconv.FormatFloat(v, 'g', -1, 64)}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return f.Close()
}

// WriteJSON writes v as indented JSON.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteRun writes the series, metrics and manifest of a run into dir.
// The dividend series is written only when the model produced one.
func WriteRun(dir string, h world.History, report metrics.Report, m *Manifest) error {
	if err := WriteSeries(filepath.Join(dir, PricesFile), "price", h.Prices); err != nil {
		return err
	}
	if err := WriteSeries(filepath.Join(dir, ImbalanceFile), "quantity", h.Imbalance); err != nil {
		return err
	}
	if len(h.Dividends) > 0 {
		if err := WriteSeries(filepath.Join(dir, DividendsFile), "dividend", h.Dividends); err != nil {
			return err
		}
	}
	if err := WriteJSON(filepath.Join(dir, MetricsFile), report); err != nil {
		return err
	}
	if err := WriteJSON(filepath.Join(dir, ManifestFile), m); err != nil {
		return err
	}
	slog.Info("run outputs saved", "dir", dir, "run_id", m.RunID)
	return nil
}
