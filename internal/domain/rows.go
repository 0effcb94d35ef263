package domain

import "time"

// DailyVolumeRow is one row of the total-volume time series.
type DailyVolumeRow struct {
	Date        time.Time
	TotalVolume int64
	// TrailingVolume sums TotalVolume over the snapshot-bearing days in
	// [Date-(window-1), Date].
	TrailingVolume int64
	// WindowDays counts the snapshot-bearing days that contributed to
	// TrailingVolume. Values below the window length indicate gaps.
	WindowDays int
}

// CategoryVolumeRow is one row of the per-category time series. Rows exist
// only for (date, category) pairs with non-zero volume.
type CategoryVolumeRow struct {
	Date            time.Time
	Category        Category
	Volume          int64
	TrailingAverage float64
	WindowDays      int
}

// CategoryRank is a category's position in the top-N ranking.
type CategoryRank struct {
	Rank            int
	Category        Category
	TrailingAverage float64
}
