package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"eiademand/internal/cache"
	"eiademand/internal/core"
	"eiademand/internal/demand"
	applog "eiademand/internal/log"
	"eiademand/internal/report"
)

const (
	dateLayout = "2006-01-02"
	MaxTopN    = 15

	// DefaultFetchTimeout bounds one shared paginated fetch.
	DefaultFetchTimeout = 10 * time.Minute

	// NoDataWarning is shown when the window yields no usable rows.
	NoDataWarning = "No data returned. Check dates/API key."
)

// Fetcher retrieves every raw record of a dataset for a date window.
type Fetcher interface {
	FetchDataset(ctx context.Context, ds core.Dataset, apiKey, start, end string, length int) ([]core.Record, error)
}

// ReportPublisher receives a summary of each non-empty report.
type ReportPublisher interface {
	PublishReport(ctx context.Context, msg *report.Message) error
}

// SeriesWriter stores the aggregated series of each non-empty report.
type SeriesWriter interface {
	WriteSeries(ctx context.Context, dataset string, scale core.Scale, easternOnly bool, points []core.Aggregate) error
}

// RecordStore is a second cache level for raw records, shared between
// instances. Its failures count as misses.
type RecordStore interface {
	GetRecords(ctx context.Context, key string) ([]core.Record, bool, error)
	SetRecords(ctx context.Context, key string, records []core.Record) error
	DeleteRecords(ctx context.Context, key string) error
}

// Request selects a dataset, a date window and how the result is shaped.
type Request struct {
	Dataset     string
	Start       string
	End         string
	Unit        core.Unit
	TopN        int
	EasternOnly bool
	// Refresh drops the cached window before loading.
	Refresh bool
}

// Report is the chart-ready result of one request.
type Report struct {
	Dataset     core.Dataset
	Start       string
	End         string
	Scale       core.Scale
	EasternOnly bool
	Top         core.TopSet
	Points      []core.Aggregate
	Empty       bool
	Warning     string

	// Diagnostics of the normalization step.
	FetchedRows    int
	InvalidPeriods int
	InvalidValues  int
}

// Categories returns the selected categories in rank order.
func (r Report) Categories() []string {
	out := make([]string, 0, len(r.Top))
	for _, ct := range r.Top {
		out = append(out, ct.Category)
	}
	return out
}

// DemandService loads EIA datasets through a bounded cache and turns them into
// top-N demand reports.
type DemandService struct {
	fetcher      Fetcher
	apiKey       string
	pageLength   int
	fetchTimeout time.Duration
	datasets     core.Catalog
	cache        *cache.LRUCache[core.Table]
	group        singleflight.Group
	shared       RecordStore
	publishers   []ReportPublisher
	writer       SeriesWriter
	logger       *applog.Logger
}

type Option func(*DemandService)

// WithPublisher adds a destination for report summaries. It may be given
// more than once.
func WithPublisher(p ReportPublisher) Option {
	return func(s *DemandService) { s.publishers = append(s.publishers, p) }
}

func WithSeriesWriter(w SeriesWriter) Option {
	return func(s *DemandService) { s.writer = w }
}

func WithRecordStore(rs RecordStore) Option {
	return func(s *DemandService) { s.shared = rs }
}

func WithLogger(l *applog.Logger) Option {
	return func(s *DemandService) {
		if l != nil {
			s.logger = l.WithComponent(applog.ComponentDemand)
		}
	}
}

func WithPageLength(n int) Option {
	return func(s *DemandService) { s.pageLength = n }
}

// WithFetchTimeout bounds a shared fetch, which outlives the caller that
// started it.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *DemandService) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

func NewDemandService(fetcher Fetcher, apiKey string, datasets core.Catalog, c *cache.LRUCache[core.Table], opts ...Option) *DemandService {
	if datasets == nil {
		datasets = core.DefaultCatalog()
	}
	if c == nil {
		c = cache.NewLRUCache[core.Table](64, time.Hour)
	}
	s := &DemandService{
		fetcher:      fetcher,
		apiKey:       apiKey,
		fetchTimeout: DefaultFetchTimeout,
		datasets:     datasets,
		cache:        c,
		logger:       applog.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Datasets returns the configured datasets sorted by name.
func (s *DemandService) Datasets() []core.Dataset {
	return s.datasets.List()
}

// Validate checks a request against the configured datasets.
func (s *DemandService) Validate(req Request) error {
	if _, err := s.datasets.Get(req.Dataset); err != nil {
		return err
	}
	return ValidateWindow(req)
}

// ValidateWindow checks the dataset-independent fields of a request.
func ValidateWindow(req Request) error {
	start, err := time.Parse(dateLayout, req.Start)
	if err != nil {
		return core.InvalidArgument("start date %q must be YYYY-MM-DD", req.Start)
	}
	end, err := time.Parse(dateLayout, req.End)
	if err != nil {
		return core.InvalidArgument("end date %q must be YYYY-MM-DD", req.End)
	}
	if end.Before(start) {
		return core.InvalidArgument("end date %s is before start date %s", req.End, req.Start)
	}
	if !req.Unit.IsValid() {
		return core.InvalidArgument("unsupported unit %q: must be one of [MWh GWh]", req.Unit)
	}
	if req.TopN < 1 || req.TopN > MaxTopN {
		return core.InvalidArgument("top %d must be between 1 and %d", req.TopN, MaxTopN)
	}
	return nil
}

func (s *DemandService) cacheKey(dataset, start, end string) string {
	return cache.Key(cache.Fingerprint(s.apiKey), dataset, start, end)
}

// Load returns the raw table of a dataset window. Results are cached per
// (credential, dataset, start, end), locally and in the shared record store
// when one is set; concurrent identical loads share one fetch. The shared
// fetch is detached from the caller that started it, so one caller going
// away does not fail the others; each caller still returns on its own ctx.
func (s *DemandService) Load(ctx context.Context, dataset, start, end string) (core.Table, error) {
	ds, err := s.datasets.Get(dataset)
	if err != nil {
		return core.Table{}, err
	}

	key := s.cacheKey(ds.Name, start, end)
	if t, ok := s.cache.Get(key); ok {
		s.logger.DebugContext(ctx, "Cache hit", applog.NewFields().WithWindow(ds.Name, start, end).ToSlice()...)
		return t, nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()

		if t, ok := s.cache.Get(key); ok {
			return t, nil
		}
		if records, ok := s.loadShared(ctx, key); ok {
			t := core.TableFromRecords(records)
			s.cache.Set(key, t)
			return t, nil
		}
		records, err := s.fetcher.FetchDataset(ctx, ds, s.apiKey, start, end, s.pageLength)
		if err != nil {
			return nil, err
		}
		t := core.TableFromRecords(records)
		s.cache.Set(key, t)
		s.storeShared(ctx, key, records)
		return t, nil
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return core.Table{}, ctx.Err()
	}
	v, err, shared := res.Val, res.Err, res.Shared
	if err != nil {
		applog.LogError(ctx, "Dataset fetch failed", err, applog.ComponentDemand, applog.OpFetch,
			applog.NewFields().WithWindow(ds.Name, start, end))
		return core.Table{}, err
	}

	t := v.(core.Table)
	s.logger.InfoContext(ctx, "Dataset loaded",
		append(applog.NewFields().WithWindow(ds.Name, start, end).ToSlice(),
			applog.FieldRows, t.Len(),
			"shared", shared)...)
	return t, nil
}

// Build loads a dataset window and runs the full pipeline: parse, optional
// eastern-time filter, unit conversion, per-(period, category) sum, top-N.
// An empty window yields an empty report with a warning, not an error.
func (s *DemandService) Build(ctx context.Context, req Request) (Report, error) {
	if err := s.Validate(req); err != nil {
		return Report{}, err
	}
	ds, _ := s.datasets.Get(req.Dataset)

	if req.Refresh {
		s.Invalidate(ctx, ds.Name, req.Start, req.End)
	}

	raw, err := s.Load(ctx, ds.Name, req.Start, req.End)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		Dataset:     ds,
		Start:       req.Start,
		End:         req.End,
		Scale:       core.Scale{Unit: req.Unit, Label: req.Unit.Label()},
		EasternOnly: req.EasternOnly,
		FetchedRows: raw.Len(),
	}

	tbl := demand.ParsePeriodAndValue(raw)
	rep.InvalidPeriods, rep.InvalidValues = demand.InvalidCounts(tbl)

	if req.EasternOnly {
		tbl = demand.FilterToTimezone(tbl, demand.EasternTimezone)
	}

	tbl, scale, err := demand.ConvertUnits(tbl, req.Unit)
	if err != nil {
		return Report{}, err
	}
	rep.Scale = scale

	grouped := demand.GroupSum(tbl, ds.CategoryColumn, scale.Column, core.ColumnDemand)
	if grouped.IsEmpty() {
		rep.Empty = true
		rep.Warning = NoDataWarning
		s.logger.WarnContext(ctx, "Report is empty",
			append(applog.NewFields().WithWindow(ds.Name, req.Start, req.End).ToSlice(),
				applog.FieldRows, raw.Len())...)
		return rep, nil
	}

	top, set, err := demand.TopNByTotal(grouped, ds.CategoryColumn, core.ColumnDemand, req.TopN)
	if err != nil {
		return Report{}, err
	}
	rep.Top = set
	rep.Points = demand.Series(top, ds.CategoryColumn, core.ColumnDemand)

	s.logger.InfoContext(ctx, "Report built",
		append(applog.NewFields().WithWindow(ds.Name, req.Start, req.End).WithOperation(applog.OpAggregate).ToSlice(),
			applog.FieldUnit, string(scale.Unit),
			applog.FieldTopN, req.TopN,
			"points", len(rep.Points),
			"invalid_periods", rep.InvalidPeriods,
			"invalid_values", rep.InvalidValues)...)

	s.publish(ctx, rep)
	return rep, nil
}

// BuildAll builds the same window for several datasets concurrently. Each
// dataset's pages are still fetched sequentially. The first failure cancels
// the rest.
func (s *DemandService) BuildAll(ctx context.Context, req Request, datasets []string) ([]Report, error) {
	if len(datasets) == 0 {
		return nil, core.InvalidArgument("no datasets requested")
	}
	for _, name := range datasets {
		r := req
		r.Dataset = name
		if err := s.Validate(r); err != nil {
			return nil, err
		}
	}

	reports := make([]Report, len(datasets))
	g, gctx := errgroup.WithContext(ctx)
	for i, name := range datasets {
		i := i
		r := req
		r.Dataset = name
		g.Go(func() error {
			rep, err := s.Build(gctx, r)
			if err != nil {
				return err
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// CacheStats reports the fetch cache counters.
func (s *DemandService) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// Invalidate drops the cached window of a dataset from both cache levels.
func (s *DemandService) Invalidate(ctx context.Context, dataset, start, end string) {
	key := s.cacheKey(strings.TrimSpace(dataset), start, end)
	s.cache.Delete(key)
	if s.shared != nil {
		if err := s.shared.DeleteRecords(ctx, key); err != nil {
			s.logger.WarnContext(ctx, "Shared cache delete failed",
				append(applog.NewFields().WithWindow(dataset, start, end).ToSlice(), applog.FieldError, err)...)
		}
	}
}

func (s *DemandService) loadShared(ctx context.Context, key string) ([]core.Record, bool) {
	if s.shared == nil {
		return nil, false
	}
	records, ok, err := s.shared.GetRecords(ctx, key)
	if err != nil {
		s.logger.WarnContext(ctx, "Shared cache read failed", applog.FieldError, err)
		return nil, false
	}
	return records, ok
}

func (s *DemandService) storeShared(ctx context.Context, key string, records []core.Record) {
	if s.shared == nil {
		return
	}
	if err := s.shared.SetRecords(ctx, key, records); err != nil {
		s.logger.WarnContext(ctx, "Shared cache write failed", applog.FieldError, err)
	}
}

// publish hands the summary to every publisher and the series to the writer.
// Failures are logged; the report is still returned to the caller.
func (s *DemandService) publish(ctx context.Context, r Report) {
	fields := applog.NewFields().WithWindow(r.Dataset.Name, r.Start, r.End)

	if len(s.publishers) > 0 {
		msg := report.NewMessage(r.Dataset.Name, r.Start, r.End, r.Scale.Unit, r.EasternOnly, r.Top, len(r.Points))
		for _, p := range s.publishers {
			if err := p.PublishReport(ctx, msg); err != nil {
				applog.LogError(ctx, "Failed to publish report summary", err, applog.ComponentDemand, applog.OpPublish, fields)
			}
		}
	}

	if s.writer != nil {
		if err := s.writer.WriteSeries(ctx, r.Dataset.Name, r.Scale, r.EasternOnly, r.Points); err != nil {
			applog.LogError(ctx, "Failed to write report series", err, applog.ComponentDemand, applog.OpWrite, fields)
		}
	}
}

// IsFetchError reports whether err came from the upstream API.
func IsFetchError(err error) bool {
	var fe *core.FetchError
	return errors.As(err, &fe)
}

// Describe renders a one-line summary of a report for logs and the CLI.
func Describe(r Report) string {
	if r.Empty {
		return fmt.Sprintf("%s %s..%s: %s", r.Dataset.Name, r.Start, r.End, r.Warning)
	}
	return fmt.Sprintf("%s %s..%s: %d categories, %d points (%s)",
		r.Dataset.Name, r.Start, r.End, len(r.Top), len(r.Points), r.Scale.Unit)
}
