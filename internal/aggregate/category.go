package aggregate

import (
	"sort"

	"github.com/alanyoungcy/kalshitracker/internal/domain"
)

// CategoryResult is the category time series plus the current ranking.
type CategoryResult struct {
	Rows []domain.CategoryVolumeRow
	Top  []domain.CategoryRank
}

// Categories buckets each day's volume by category and computes a trailing
// moving average over the snapshot-bearing days in the window. Rows exist
// only for (date, category) pairs with non-zero volume, ordered by date
// then category. Top ranks categories by their average at the latest
// summarized date, highest first, ties broken by name; categories with a
// zero average are not ranked. topN <= 0 ranks every category.
func Categories(days []DaySummary, window, topN int) CategoryResult {
	if window < 1 {
		window = 1
	}

	var res CategoryResult
	sums := make(map[domain.Category]int64)
	lo := 0
	for i, d := range days {
		for c, v := range d.ByCategory {
			sums[c] += v
		}
		start := windowStart(d.Date, window)
		for days[lo].Date.Before(start) {
			for c, v := range days[lo].ByCategory {
				sums[c] -= v
			}
			lo++
		}
		n := i - lo + 1

		for _, c := range sortedCategories(d.ByCategory) {
			res.Rows = append(res.Rows, domain.CategoryVolumeRow{
				Date:            d.Date,
				Category:        c,
				Volume:          d.ByCategory[c],
				TrailingAverage: float64(sums[c]) / float64(n),
				WindowDays:      n,
			})
		}

		if i == len(days)-1 {
			res.Top = rank(sums, n, topN)
		}
	}
	return res
}

func rank(sums map[domain.Category]int64, n, topN int) []domain.CategoryRank {
	type entry struct {
		category domain.Category
		sum      int64
	}
	var entries []entry
	for c, s := range sums {
		if s > 0 {
			entries = append(entries, entry{category: c, sum: s})
		}
	}
	// Every average shares the same denominator, so ranking by sum is exact.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].sum != entries[j].sum {
			return entries[i].sum > entries[j].sum
		}
		return entries[i].category < entries[j].category
	})
	if topN > 0 && len(entries) > topN {
		entries = entries[:topN]
	}

	out := make([]domain.CategoryRank, 0, len(entries))
	for i, e := range entries {
		out = append(out, domain.CategoryRank{
			Rank:            i + 1,
			Category:        e.category,
			TrailingAverage: float64(e.sum) / float64(n),
		})
	}
	return out
}

func sortedCategories(m map[domain.Category]int64) []domain.Category {
	out := make([]domain.Category, 0, len(m))
	for c, v := range m {
		if v > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
