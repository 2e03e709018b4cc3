package demand

import (
	"errors"
	"math/rand"
	"reflect"
	"sort"
	"strconv"
	"testing"
	"time"

	"eiademand/internal/core"
)

func categoryTable(col string, cats []string, demand []float64) core.Table {
	t := core.Table{Columns: []string{col, core.ColumnDemand}}
	for i, c := range cats {
		t.Rows = append(t.Rows, core.Row{
			Labels:  map[string]string{col: c},
			Numbers: map[string]core.Number{core.ColumnDemand: core.ValidNumber(demand[i])},
		})
	}
	return t
}

func categoriesOf(t core.Table, col string) []string {
	cats := t.Categories(col)
	sort.Strings(cats)
	return cats
}

func sumOf(t core.Table, col string) float64 {
	var s float64
	for _, r := range t.Rows {
		if n := r.Number(col); n.Valid {
			s += n.Value
		}
	}
	return s
}

func TestTopNByTotal_KeepsLargestCategories(t *testing.T) {
	in := categoryTable("type-name",
		[]string{"coal", "coal", "solar", "gas", "gas", "wind"},
		[]float64{5, 5, 12, 7, 4, 1})

	out, top, err := TopNByTotal(in, "type-name", core.ColumnDemand, 2)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	if got := categoriesOf(out, "type-name"); !reflect.DeepEqual(got, []string{"gas", "solar"}) {
		t.Fatalf("categories: %v", got)
	}
	if s := sumOf(out, core.ColumnDemand); s != 23 {
		t.Fatalf("sum: %v", s)
	}
	if len(top) != 2 || top[0].Category != "solar" || top[0].Total != 12 || top[1].Category != "gas" {
		t.Fatalf("top set: %+v", top)
	}
}

func TestTopNByTotal_PreservesRowOrder(t *testing.T) {
	in := categoryTable("c", []string{"a", "b", "a", "c", "b"}, []float64{1, 10, 2, 0.5, 10})
	out, _, err := TopNByTotal(in, "c", core.ColumnDemand, 2)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	var order []string
	for _, r := range out.Rows {
		v, _ := r.Label("c")
		order = append(order, v)
	}
	if !reflect.DeepEqual(order, []string{"a", "b", "a", "b"}) {
		t.Fatalf("order: %v", order)
	}
}

func TestTopNByTotal_TiesKeepFirstSeen(t *testing.T) {
	in := categoryTable("c", []string{"x", "y", "z"}, []float64{3, 3, 3})
	_, top, _ := TopNByTotal(in, "c", core.ColumnDemand, 2)
	if len(top) != 2 || top[0].Category != "x" || top[1].Category != "y" {
		t.Fatalf("tie-break: %+v", top)
	}
}

func TestTopNByTotal_InvalidN(t *testing.T) {
	in := categoryTable("c", []string{"x"}, []float64{1})
	for _, n := range []int{0, -1, -100} {
		if _, _, err := TopNByTotal(in, "c", core.ColumnDemand, n); !errors.Is(err, core.ErrInvalidArgument) {
			t.Fatalf("n=%d: expected invalid argument, got %v", n, err)
		}
	}
}

func TestTopNByTotal_NLargerThanCategories(t *testing.T) {
	in := categoryTable("c", []string{"x", "y"}, []float64{1, 2})
	out, top, err := TopNByTotal(in, "c", core.ColumnDemand, 15)
	if err != nil {
		t.Fatalf("top n: %v", err)
	}
	if out.Len() != 2 || len(top) != 2 {
		t.Fatalf("rows=%d top=%d", out.Len(), len(top))
	}
}

func TestTopNByTotal_InvalidValuesCountAsZero(t *testing.T) {
	in := categoryTable("c", []string{"x", "y"}, []float64{1, 0})
	in.Rows[1].Numbers[core.ColumnDemand] = core.Number{}
	in.Rows = append(in.Rows, core.Row{Labels: map[string]string{"c": "y"}, Numbers: map[string]core.Number{core.ColumnDemand: core.ValidNumber(0.5)}})

	_, top, _ := TopNByTotal(in, "c", core.ColumnDemand, 1)
	if len(top) != 1 || top[0].Category != "x" {
		t.Fatalf("top: %+v", top)
	}
}

// No excluded category may outrank an included one, and the selection never
// exceeds min(n, distinct categories).
func TestTopNByTotal_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		nCats := 1 + rng.Intn(8)
		var cats []string
		var vals []float64
		for i := 0; i < 5+rng.Intn(40); i++ {
			cats = append(cats, "c"+strconv.Itoa(rng.Intn(nCats)))
			vals = append(vals, float64(rng.Intn(1000)))
		}
		in := categoryTable("c", cats, vals)
		n := 1 + rng.Intn(10)

		out, _, err := TopNByTotal(in, "c", core.ColumnDemand, n)
		if err != nil {
			t.Fatalf("top n: %v", err)
		}

		distinct := len(in.Categories("c"))
		kept := out.Categories("c")
		if len(kept) > n || len(kept) > distinct {
			t.Fatalf("kept %d categories, n=%d distinct=%d", len(kept), n, distinct)
		}

		totals := map[string]float64{}
		for _, ct := range Totals(in, "c", core.ColumnDemand) {
			totals[ct.Category] = ct.Total
		}
		keptSet := map[string]bool{}
		minKept := -1.0
		for _, c := range kept {
			keptSet[c] = true
			if minKept < 0 || totals[c] < minKept {
				minKept = totals[c]
			}
		}
		for c, total := range totals {
			if !keptSet[c] && total > minKept {
				t.Fatalf("excluded %s (%v) outranks kept minimum %v", c, total, minKept)
			}
		}
	}
}

func day(d int) core.Period {
	return core.Period{Time: time.Date(2026, 2, d, 0, 0, 0, 0, time.UTC), Valid: true}
}

func TestGroupSum(t *testing.T) {
	mk := func(p core.Period, cat string, v core.Number) core.Row {
		labels := map[string]string{"period": p.Format("2006-01-02")}
		if cat != "" {
			labels["type-name"] = cat
		}
		return core.Row{Period: p, Labels: labels, Numbers: map[string]core.Number{"value": v}}
	}
	in := core.Table{
		Columns: []string{"period", "type-name", "value"},
		Rows: []core.Row{
			mk(day(2), "Solar", core.ValidNumber(4)),
			mk(day(1), "Coal", core.ValidNumber(1)),
			mk(day(1), "Coal", core.ValidNumber(2)),
			mk(day(1), "Coal", core.Number{}),
			mk(day(2), "Coal", core.ValidNumber(3)),
			mk(core.Period{}, "Coal", core.ValidNumber(100)),
			mk(day(2), "", core.ValidNumber(100)),
			mk(day(3), "Wind", core.Number{}),
		},
	}

	out := GroupSum(in, "type-name", "value", core.ColumnDemand)

	type agg struct {
		day  int
		cat  string
		dmnd float64
	}
	var got []agg
	for _, r := range out.Rows {
		c, _ := r.Label("type-name")
		got = append(got, agg{r.Period.Day(), c, r.Number(core.ColumnDemand).Value})
	}
	want := []agg{{1, "Coal", 3}, {2, "Coal", 3}, {2, "Solar", 4}, {3, "Wind", 0}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	if !reflect.DeepEqual(out.Columns, []string{"period", "type-name", core.ColumnDemand}) {
		t.Fatalf("columns: %v", out.Columns)
	}
	if p, _ := out.Rows[0].Label("period"); p != "2026-02-01" {
		t.Fatalf("period label: %q", p)
	}
}

func TestSeries(t *testing.T) {
	in := core.Table{Rows: []core.Row{
		{Period: day(2), Labels: map[string]string{"c": "b"}, Numbers: map[string]core.Number{"d": core.ValidNumber(2)}},
		{Period: day(1), Labels: map[string]string{"c": "a"}, Numbers: map[string]core.Number{"d": core.ValidNumber(1)}},
		{Period: core.Period{}, Labels: map[string]string{"c": "a"}},
	}}
	pts := Series(in, "c", "d")
	if len(pts) != 2 || pts[0].Category != "a" || pts[1].Demand != 2 {
		t.Fatalf("series: %+v", pts)
	}
}
