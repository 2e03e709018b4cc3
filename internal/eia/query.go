package eia

import (
	"net/url"
	"sort"
	"strconv"
)

const (
	DefaultPageLength = 5000
	DefaultFrequency  = "daily"
)

// Query holds the parameters of one paginated EIA request. The offset is
// not part of it: the pager supplies it per page.
type Query struct {
	APIKey        string
	Frequency     string
	DataColumn    string
	Start         string
	End           string
	SortColumn    string
	SortDirection string
	Length        int
	// Facets adds facets[<name>][]=<value> filters.
	Facets map[string][]string
}

// NewQuery returns the query used for the daily datasets: value column,
// ascending by period, default page length.
func NewQuery(apiKey, start, end string) Query {
	return Query{
		APIKey:        apiKey,
		Frequency:     DefaultFrequency,
		DataColumn:    "value",
		Start:         start,
		End:           end,
		SortColumn:    "period",
		SortDirection: "asc",
		Length:        DefaultPageLength,
	}
}

// PageLength returns the effective page length.
func (q Query) PageLength() int {
	if q.Length <= 0 {
		return DefaultPageLength
	}
	return q.Length
}

// Values encodes the query for the page starting at offset.
func (q Query) Values(offset int) url.Values {
	v := url.Values{}
	if q.APIKey != "" {
		v.Set("api_key", q.APIKey)
	}
	if q.Frequency != "" {
		v.Set("frequency", q.Frequency)
	}
	if q.DataColumn != "" {
		v.Set("data[0]", q.DataColumn)
	}
	if q.Start != "" {
		v.Set("start", q.Start)
	}
	if q.End != "" {
		v.Set("end", q.End)
	}
	if q.SortColumn != "" {
		v.Set("sort[0][column]", q.SortColumn)
		dir := q.SortDirection
		if dir == "" {
			dir = "asc"
		}
		v.Set("sort[0][direction]", dir)
	}
	names := make([]string, 0, len(q.Facets))
	for name := range q.Facets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, val := range q.Facets[name] {
			v.Add("facets["+name+"][]", val)
		}
	}
	v.Set("offset", strconv.Itoa(offset))
	v.Set("length", strconv.Itoa(q.PageLength()))
	return v
}
