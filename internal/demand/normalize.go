// Package demand turns raw EIA tables into chart-ready demand series:
// field parsing, unit scaling, timezone filtering, grouping and top-N selection.
// Every operation returns a new table and leaves its input untouched.
package demand

import (
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"eiademand/internal/core"
)

// EasternTimezone is the timezone label used by the EIA region datasets.
const EasternTimezone = "eastern"

var periodLayouts = []string{
	"2006-01-02",
	"2006-01-02T15",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01",
}

// ParsePeriod parses an EIA period string. The second result is false when
// no supported layout matches.
func ParsePeriod(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ParseValue parses a decimal number. NaN, infinities, values outside the
// float64 range and anything that is not a plain decimal (optionally with
// exponent) are rejected.
func ParseValue(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f := d.InexactFloat64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParsePeriodAndValue types the period and value columns of every row.
// A field that fails to parse is marked invalid; no row is dropped.
func ParsePeriodAndValue(t core.Table) core.Table {
	out := t.Clone()
	out.Columns = out.WithColumn(core.ColumnValue)
	for i := range out.Rows {
		row := &out.Rows[i]
		if row.Numbers == nil {
			row.Numbers = map[string]core.Number{}
		}

		raw, _ := row.Label(core.ColumnPeriod)
		if ts, ok := ParsePeriod(raw); ok {
			row.Period = core.Period{Time: ts, Valid: true}
		} else {
			row.Period = core.Period{}
		}

		raw, _ = row.Label(core.ColumnValue)
		if v, ok := ParseValue(raw); ok {
			row.Numbers[core.ColumnValue] = core.ValidNumber(v)
		} else {
			row.Numbers[core.ColumnValue] = core.Number{}
		}
	}
	return out
}

// InvalidCounts reports how many rows carry an invalid period or value.
func InvalidCounts(t core.Table) (periods, values int) {
	for _, r := range t.Rows {
		if !r.Period.Valid {
			periods++
		}
		if !r.Number(core.ColumnValue).Valid {
			values++
		}
	}
	return periods, values
}

// ConvertUnits selects the demand column for unit. For GWh a value_gwh
// column holding value/1000 is added; for MWh the value column is used as is.
// Any other unit is rejected with core.ErrInvalidArgument.
func ConvertUnits(t core.Table, unit core.Unit) (core.Table, core.Scale, error) {
	return ConvertColumn(t, core.ColumnValue, unit)
}

// ConvertColumn is ConvertUnits for an arbitrary source column.
func ConvertColumn(t core.Table, valueCol string, unit core.Unit) (core.Table, core.Scale, error) {
	switch unit {
	case core.MWh:
		return t.Clone(), core.Scale{Unit: core.MWh, Column: valueCol, Label: core.MWh.Label()}, nil
	case core.GWh:
		scaled := valueCol + "_gwh"
		out := t.Clone()
		out.Columns = out.WithColumn(scaled)
		for i := range out.Rows {
			row := &out.Rows[i]
			if row.Numbers == nil {
				row.Numbers = map[string]core.Number{}
			}
			src := row.Number(valueCol)
			if src.Valid {
				row.Numbers[scaled] = core.ValidNumber(src.Value / 1000.0)
			} else {
				row.Numbers[scaled] = core.Number{}
			}
		}
		return out, core.Scale{Unit: core.GWh, Column: scaled, Label: core.GWh.Label()}, nil
	default:
		return core.Table{}, core.Scale{}, core.InvalidArgument("unsupported unit %q: must be one of [MWh GWh]", unit)
	}
}

// FilterToTimezone keeps the rows whose timezone equals zone, ignoring case.
// A table without a timezone column is returned unchanged.
func FilterToTimezone(t core.Table, zone string) core.Table {
	return FilterToTimezoneColumn(t, zone, core.ColumnTimezone)
}

// FilterToTimezoneColumn is FilterToTimezone for a custom column name.
func FilterToTimezoneColumn(t core.Table, zone, column string) core.Table {
	if !t.HasColumn(column) {
		return t.Clone()
	}
	want := strings.ToLower(zone)
	out := core.Table{Columns: append([]string(nil), t.Columns...)}
	for _, r := range t.Rows {
		v, ok := r.Label(column)
		if !ok || strings.ToLower(v) != want {
			continue
		}
		out.Rows = append(out.Rows, r.Clone())
	}
	return out
}
