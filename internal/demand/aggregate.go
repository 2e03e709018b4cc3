package demand

import (
	"sort"
	"time"

	"eiademand/internal/core"
)

type groupKey struct {
	period   time.Time
	category string
}

// GroupSum sums valueCol per distinct (period, category) pair and returns one
// row per pair, ordered by period then category. Invalid values contribute
// nothing; rows with an invalid period or without a category are skipped.
// The result has the period column, categoryCol and outCol.
func GroupSum(t core.Table, categoryCol, valueCol, outCol string) core.Table {
	sums := map[groupKey]float64{}
	labels := map[groupKey]string{}
	var keys []groupKey
	for _, r := range t.Rows {
		if !r.Period.Valid {
			continue
		}
		cat, ok := r.Label(categoryCol)
		if !ok {
			continue
		}
		k := groupKey{period: r.Period.Time.UTC(), category: cat}
		if _, seen := sums[k]; !seen {
			keys = append(keys, k)
			sums[k] = 0
			labels[k], _ = r.Label(core.ColumnPeriod)
		}
		if n := r.Number(valueCol); n.Valid {
			sums[k] += n.Value
		}
	}

	sort.SliceStable(keys, func(i, j int) bool {
		if !keys[i].period.Equal(keys[j].period) {
			return keys[i].period.Before(keys[j].period)
		}
		return keys[i].category < keys[j].category
	})

	out := core.Table{
		Columns: []string{core.ColumnPeriod, categoryCol, outCol},
		Rows:    make([]core.Row, 0, len(keys)),
	}
	for _, k := range keys {
		out.Rows = append(out.Rows, core.Row{
			Period:  core.Period{Time: k.period, Valid: true},
			Labels:  map[string]string{core.ColumnPeriod: labels[k], categoryCol: k.category},
			Numbers: map[string]core.Number{outCol: core.ValidNumber(sums[k])},
		})
	}
	return out
}

// Totals sums valueCol per category across all rows, in first-seen category
// order. Invalid values count as zero; rows without a category are ignored.
func Totals(t core.Table, categoryCol, valueCol string) []core.CategoryTotal {
	index := map[string]int{}
	var totals []core.CategoryTotal
	for _, r := range t.Rows {
		cat, ok := r.Label(categoryCol)
		if !ok {
			continue
		}
		i, seen := index[cat]
		if !seen {
			i = len(totals)
			index[cat] = i
			totals = append(totals, core.CategoryTotal{Category: cat})
		}
		if n := r.Number(valueCol); n.Valid {
			totals[i].Total += n.Value
		}
	}
	return totals
}

// TopNByTotal keeps the rows of the n categories with the largest totals of
// valueCol. Ties are broken by first appearance in t. Row order is preserved.
// n must be at least 1; an n above the number of categories keeps them all.
func TopNByTotal(t core.Table, categoryCol, valueCol string, n int) (core.Table, core.TopSet, error) {
	if n < 1 {
		return core.Table{}, nil, core.InvalidArgument("top_n must be at least 1, got %d", n)
	}

	totals := Totals(t, categoryCol, valueCol)
	sort.SliceStable(totals, func(i, j int) bool {
		return totals[i].Total > totals[j].Total
	})
	if len(totals) > n {
		totals = totals[:n]
	}

	keep := make(map[string]struct{}, len(totals))
	for _, ct := range totals {
		keep[ct.Category] = struct{}{}
	}

	out := core.Table{Columns: append([]string(nil), t.Columns...)}
	for _, r := range t.Rows {
		cat, ok := r.Label(categoryCol)
		if !ok {
			continue
		}
		if _, selected := keep[cat]; selected {
			out.Rows = append(out.Rows, r.Clone())
		}
	}
	return out, core.TopSet(totals), nil
}

// Series converts a grouped table into chart points sorted by period, then
// category. Rows with an invalid period are left out.
func Series(t core.Table, categoryCol, valueCol string) []core.Aggregate {
	points := make([]core.Aggregate, 0, len(t.Rows))
	for _, r := range t.Rows {
		if !r.Period.Valid {
			continue
		}
		cat, _ := r.Label(categoryCol)
		points = append(points, core.Aggregate{
			Period:   r.Period.Time,
			Category: cat,
			Demand:   r.Number(valueCol).Value,
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].Period.Equal(points[j].Period) {
			return points[i].Period.Before(points[j].Period)
		}
		return points[i].Category < points[j].Category
	})
	return points
}
