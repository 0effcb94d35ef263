package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// Artifact file names. Column names and ascending date order are part of
// the contract with downstream chart and report consumers.
const (
	VolumeFile       = "daily_total_volume.csv"
	CategoryFile     = "daily_category_volume.csv"
	TopFile          = "top_categories.csv"
	SyncReportFile   = "sync_report.json"
	ManifestFile     = "manifest.json"
	averagePrecision = 2
)

// RollingColumn names the trailing-total column for a window of the given
// length, e.g. "rolling_7d_volume".
func RollingColumn(window int) string {
	return fmt.Sprintf("rolling_%dd_volume", window)
}

// AverageColumn names the moving-average column, e.g. "ma_7d_volume".
func AverageColumn(window int) string {
	return fmt.Sprintf("ma_%dd_volume", window)
}

// WriteVolume writes the total-volume series computed over window days.
func (r *RunDir) WriteVolume(rows []domain.DailyVolumeRow, window int) error {
	return r.writeCSV(VolumeFile, []string{"date", "total_volume", RollingColumn(window), "window_days"}, len(rows), func(i int) []string {
		row := rows[i]
		return []string{
			domain.FormatDate(row.Date),
			strconv.FormatInt(row.TotalVolume, 10),
			strconv.FormatInt(row.TrailingVolume, 10),
			strconv.Itoa(row.WindowDays),
		}
	})
}

// WriteCategories writes the per-category series.
func (r *RunDir) WriteCategories(rows []domain.CategoryVolumeRow, window int) error {
	return r.writeCSV(CategoryFile, []string{"date", "category", "volume", AverageColumn(window), "window_days"}, len(rows), func(i int) []string {
		row := rows[i]
		return []string{
			domain.FormatDate(row.Date),
			string(row.Category),
			strconv.FormatInt(row.Volume, 10),
			formatAverage(row.TrailingAverage),
			strconv.Itoa(row.WindowDays),
		}
	})
}

// WriteTopCategories writes the current ranking.
func (r *RunDir) WriteTopCategories(ranks []domain.CategoryRank, window int) error {
	return r.writeCSV(TopFile, []string{"rank", "category", AverageColumn(window)}, len(ranks), func(i int) []string {
		rank := ranks[i]
		return []string{
			strconv.Itoa(rank.Rank),
			string(rank.Category),
			formatAverage(rank.TrailingAverage),
		}
	})
}

// WriteSyncReport stores the dispatcher's structured report.
func (r *RunDir) WriteSyncReport(report domain.SyncReport) error {
	return r.writeJSON(SyncReportFile, report)
}

// Manifest summarises one run.
type Manifest struct {
	RunID         string    `json:"run_id"`
	RunDir        string    `json:"run_dir"`
	GeneratedAt   time.Time `json:"generated_at"`
	SnapshotCount int       `json:"snapshot_count"`
	FirstDate     string    `json:"first_date"`
	LastDate      string    `json:"last_date"`
	WindowDays    int       `json:"window_days"`
	TopN          int       `json:"top_n"`
	Files         []string  `json:"files"`
}

// NewManifest describes a run over the given volume series.
func NewManifest(now time.Time, rows []domain.DailyVolumeRow, windowDays, topN int) Manifest {
	m := Manifest{
		RunID:         uuid.NewString(),
		GeneratedAt:   now.UTC(),
		SnapshotCount: len(rows),
		WindowDays:    windowDays,
		TopN:          topN,
	}
	if len(rows) > 0 {
		m.FirstDate = domain.FormatDate(rows[0].Date)
		m.LastDate = domain.FormatDate(rows[len(rows)-1].Date)
	}
	return m
}

// WriteManifest writes m, listing every artifact written before it.
func (r *RunDir) WriteManifest(m Manifest) error {
	m.RunDir = r.Name
	m.Files = r.Files()
	return r.writeJSON(ManifestFile, m)
}

func (r *RunDir) writeCSV(name string, header []string, n int, row func(i int) []string) error {
	f, err := r.create(name)
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("report: write %s header: %w", name, err)
	}
	for i := 0; i < n; i++ {
		if err := w.Write(row(i)); err != nil {
			f.Close()
			return fmt.Errorf("report: write %s row %d: %w", name, i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("report: flush %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", name, err)
	}
	return nil
}

func (r *RunDir) writeJSON(name string, v any) error {
	f, err := r.create(name)
	if err != nil {
		return err
	}
	if err := encodeJSON(f, v); err != nil {
		f.Close()
		return fmt.Errorf("report: write %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("report: close %s: %w", name, err)
	}
	return nil
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatAverage(v float64) string {
	return strconv.FormatFloat(v, 'f', averagePrecision, 64)
}
