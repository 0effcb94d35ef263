package aggregate

import "github.com/alanyoungcy/kalshitracker/internal/domain"

// Volume produces one row per summarized day with the trailing sum over
// the snapshot-bearing days in [d-(window-1), d]. Days without a snapshot
// are absent from the window, never counted as zero. days must be sorted
// ascending with one entry per date, as Summarize returns them.
func Volume(days []DaySummary, window int) []domain.DailyVolumeRow {
	if window < 1 {
		window = 1
	}

	rows := make([]domain.DailyVolumeRow, 0, len(days))
	var sum int64
	lo := 0
	for i, d := range days {
		sum += d.Total
		start := windowStart(d.Date, window)
		for days[lo].Date.Before(start) {
			sum -= days[lo].Total
			lo++
		}
		rows = append(rows, domain.DailyVolumeRow{
			Date:           d.Date,
			TotalVolume:    d.Total,
			TrailingVolume: sum,
			WindowDays:     i - lo + 1,
		})
	}
	return rows
}
