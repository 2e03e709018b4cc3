package http

import (
	"net/url"
	"strconv"
	"strings"

	"eiademand/internal/core"
	"eiademand/internal/services"
)

// Defaults fill the demand query parameters a client leaves out.
type Defaults struct {
	Dataset     string
	Start       string
	End         string
	Unit        core.Unit
	TopN        int
	EasternOnly bool
}

// ParseDemandQuery builds a service request from the query string of
// GET /api/demand. Only syntax is checked here; the service validates ranges.
func ParseDemandQuery(query url.Values, d Defaults) (services.Request, error) {
	req := services.Request{
		Dataset:     d.Dataset,
		Start:       d.Start,
		End:         d.End,
		Unit:        d.Unit,
		TopN:        d.TopN,
		EasternOnly: d.EasternOnly,
	}

	if v := sanitizeInput(query.Get("dataset")); v != "" {
		req.Dataset = v
	}
	if v := sanitizeInput(query.Get("start")); v != "" {
		req.Start = v
	}
	if v := sanitizeInput(query.Get("end")); v != "" {
		req.End = v
	}
	if v := sanitizeInput(query.Get("units")); v != "" {
		unit, err := core.ParseUnit(v)
		if err != nil {
			return services.Request{}, err
		}
		req.Unit = unit
	}
	if v := sanitizeInput(query.Get("top")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return services.Request{}, core.InvalidArgument("top %q must be an integer", v)
		}
		req.TopN = n
	}
	if v := sanitizeInput(query.Get("eastern")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return services.Request{}, core.InvalidArgument("eastern %q must be true or false", v)
		}
		req.EasternOnly = b
	}
	if v := sanitizeInput(query.Get("refresh")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return services.Request{}, core.InvalidArgument("refresh %q must be true or false", v)
		}
		req.Refresh = b
	}

	if req.Dataset == "" {
		return services.Request{}, core.InvalidArgument("dataset is required")
	}
	return req, nil
}

// sanitizeInput trims whitespace and drops control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
