package core

import (
	"fmt"
	"sort"
	"strings"
)

const EIABaseURL = "https://api.eia.gov/v2/electricity/rto"

// Dataset describes one EIA route and how its records are charted.
type Dataset struct {
	Name           string `yaml:"name" json:"name"`
	Endpoint       string `yaml:"endpoint" json:"endpoint"`
	CategoryColumn string `yaml:"category_column" json:"category_column"`
	CategoryLabel  string `yaml:"category_label" json:"category_label"`
	Title          string `yaml:"title" json:"title"`
	// Facets are extra facet filters sent with every page request.
	Facets map[string][]string `yaml:"facets,omitempty" json:"facets,omitempty"`
}

// Built-in datasets.
var (
	FuelTypeDataset = Dataset{
		Name:           "fuel-type",
		Endpoint:       EIABaseURL + "/daily-fuel-type-data/data/",
		CategoryColumn: "type-name",
		CategoryLabel:  "Fuel type",
		Title:          "Electricity demand by fuel type",
	}
	RegionDataset = Dataset{
		Name:           "region",
		Endpoint:       EIABaseURL + "/daily-region-data/data/",
		CategoryColumn: "respondent",
		CategoryLabel:  "Region",
		Title:          "U.S. electricity demand by region",
	}
)

func (d Dataset) Validate() error {
	var problems []string
	if strings.TrimSpace(d.Name) == "" {
		problems = append(problems, "name is required")
	}
	if !strings.HasPrefix(d.Endpoint, "http://") && !strings.HasPrefix(d.Endpoint, "https://") {
		problems = append(problems, fmt.Sprintf("endpoint %q must be an http(s) URL", d.Endpoint))
	}
	if strings.TrimSpace(d.CategoryColumn) == "" {
		problems = append(problems, "category_column is required")
	}
	if len(problems) > 0 {
		return fmt.Errorf("dataset %q: %s", d.Name, strings.Join(problems, "; "))
	}
	return nil
}

// Catalog is the set of datasets the service can chart, keyed by name.
type Catalog map[string]Dataset

// DefaultCatalog returns the built-in datasets.
func DefaultCatalog() Catalog {
	return Catalog{
		FuelTypeDataset.Name: FuelTypeDataset,
		RegionDataset.Name:   RegionDataset,
	}
}

func (c Catalog) Get(name string) (Dataset, error) {
	d, ok := c[strings.TrimSpace(name)]
	if !ok {
		return Dataset{}, fmt.Errorf("%w: %q", ErrUnknownDataset, name)
	}
	return d, nil
}

// Names returns the dataset names in sorted order.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for n := range c {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// List returns the datasets sorted by name.
func (c Catalog) List() []Dataset {
	out := make([]Dataset, 0, len(c))
	for _, n := range c.Names() {
		out = append(out, c[n])
	}
	return out
}
