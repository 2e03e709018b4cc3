package core

import "strings"

type Unit string

const (
	MWh Unit = "MWh"
	GWh Unit = "GWh"
)

// Scale names the column holding demand in the chosen unit and its axis label.
type Scale struct {
	Unit   Unit
	Column string
	Label  string
}

// ParseUnit accepts the two supported units, case-insensitively.
func ParseUnit(s string) (Unit, error) {
	switch {
	case strings.EqualFold(strings.TrimSpace(s), string(MWh)):
		return MWh, nil
	case strings.EqualFold(strings.TrimSpace(s), string(GWh)):
		return GWh, nil
	default:
		return "", InvalidArgument("unsupported unit %q: must be one of [MWh GWh]", s)
	}
}

func (u Unit) IsValid() bool {
	return u == MWh || u == GWh
}

// Label returns the axis label used for demand in this unit.
func (u Unit) Label() string {
	return "Demand (" + string(u) + ")"
}
