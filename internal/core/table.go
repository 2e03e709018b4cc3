package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Well-known column names of the EIA electricity datasets.
const (
	ColumnPeriod   = "period"
	ColumnValue    = "value"
	ColumnTimezone = "timezone"
	ColumnDemand   = "Demand"
)

type (
	// Record is one raw API record as decoded from the response body.
	Record map[string]any

	// Number is a numeric field that may have failed to parse.
	Number struct {
		Value float64
		Valid bool
	}

	// Period is a calendar timestamp that may have failed to parse.
	Period struct {
		time.Time
		Valid bool
	}

	// Row is one observation. Labels holds string columns, Numbers holds
	// typed numeric columns added by normalization.
	Row struct {
		Period  Period
		Labels  map[string]string
		Numbers map[string]Number
	}

	// Table is an ordered sequence of rows sharing a set of columns.
	Table struct {
		Columns []string
		Rows    []Row
	}

	// Aggregate is the summed demand of one category for one period.
	Aggregate struct {
		Period   time.Time `json:"date"`
		Category string    `json:"category"`
		Demand   float64   `json:"demand"`
	}

	// CategoryTotal is the summed demand of one category over the whole window.
	CategoryTotal struct {
		Category string  `json:"category"`
		Total    float64 `json:"total"`
	}

	// TopSet is the ordered list of categories kept by a top-N selection.
	TopSet []CategoryTotal
)

// ValidNumber wraps a parsed value.
func ValidNumber(v float64) Number { return Number{Value: v, Valid: true} }

// Label returns the string value of a column and whether the row has it.
func (r Row) Label(col string) (string, bool) {
	v, ok := r.Labels[col]
	return v, ok
}

// Number returns the numeric value of a column; missing columns are invalid.
func (r Row) Number(col string) Number {
	return r.Numbers[col]
}

// Clone returns a deep copy of the row.
func (r Row) Clone() Row {
	out := Row{Period: r.Period}
	if r.Labels != nil {
		out.Labels = make(map[string]string, len(r.Labels))
		for k, v := range r.Labels {
			out.Labels[k] = v
		}
	}
	if r.Numbers != nil {
		out.Numbers = make(map[string]Number, len(r.Numbers))
		for k, v := range r.Numbers {
			out.Numbers[k] = v
		}
	}
	return out
}

func (t Table) Len() int { return len(t.Rows) }

func (t Table) IsEmpty() bool { return len(t.Rows) == 0 }

// HasColumn reports whether the table carries a column with this name.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// WithColumn returns the columns plus name, if not already present.
func (t Table) WithColumn(name string) []string {
	cols := make([]string, len(t.Columns), len(t.Columns)+1)
	copy(cols, t.Columns)
	if !t.HasColumn(name) {
		cols = append(cols, name)
	}
	return cols
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]Row, len(t.Rows)),
	}
	for i, r := range t.Rows {
		out.Rows[i] = r.Clone()
	}
	return out
}

// Categories returns the distinct values of col in first-seen order.
func (t Table) Categories(col string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range t.Rows {
		v, ok := r.Label(col)
		if !ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// TableFromRecords flattens raw records into a table of string columns.
// The column set is the union of all record keys in first-seen order;
// a nil value leaves the field unset for that row. Nested objects and
// arrays are not expanded into dotted columns; they are kept as one JSON
// string column.
func TableFromRecords(records []Record) Table {
	t := Table{Rows: make([]Row, 0, len(records))}
	seen := map[string]struct{}{}
	for _, rec := range records {
		row := Row{Labels: make(map[string]string, len(rec))}
		for _, k := range sortedKeys(rec) {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				t.Columns = append(t.Columns, k)
			}
			if s, ok := stringify(rec[k]); ok {
				row.Labels[k] = s
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func stringify(v any) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		if x {
			return "true", true
		}
		return "false", true
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x), true
		}
		return strings.TrimSpace(string(b)), true
	}
}

func sortedKeys(rec Record) []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
