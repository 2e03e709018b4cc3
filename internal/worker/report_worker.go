package worker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"eiademand/internal/amqp"
	"eiademand/internal/cache"
	applog "eiademand/internal/log"
	"eiademand/internal/report"
)

// Summary is the most recent report seen for one dataset.
type Summary struct {
	Dataset     string
	Start       string
	End         string
	Unit        string
	TopCategory string
	TopTotal    float64
	Categories  int
	ReceivedAt  time.Time
	MessageID   string
}

// ReportWorker consumes report summaries, skipping redelivered messages, and
// keeps the latest summary per dataset.
type ReportWorker struct {
	mu     sync.RWMutex
	latest map[string]Summary
	seen   *cache.LRUCache[struct{}]
	logger *applog.Logger
	now    func() time.Time
}

func NewReportWorker(logger *applog.Logger, dedupeSize int, dedupeTTL time.Duration) *ReportWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ReportWorker{
		latest: make(map[string]Summary),
		seen:   cache.NewLRUCache[struct{}](dedupeSize, dedupeTTL),
		logger: logger.WithComponent(applog.ComponentReport),
		now:    time.Now,
	}
}

// Seen exposes the dedupe cache so a cache.Manager can sweep it.
func (w *ReportWorker) Seen() *cache.LRUCache[struct{}] {
	return w.seen
}

// HandleReport records one summary. Malformed messages fail permanently.
func (w *ReportWorker) HandleReport(ctx context.Context, msg *report.Message) error {
	if _, err := uuid.Parse(msg.ID); err != nil {
		return fmt.Errorf("report message id %q: %w", msg.ID, amqp.ErrPermanent)
	}
	if msg.Dataset == "" {
		return fmt.Errorf("report message %s has no dataset: %w", msg.ID, amqp.ErrPermanent)
	}
	if !msg.Unit.IsValid() {
		return fmt.Errorf("report message %s unit %q: %w", msg.ID, msg.Unit, amqp.ErrPermanent)
	}

	if _, dup := w.seen.Get(msg.ID); dup {
		w.logger.DebugContext(ctx, "Skipping duplicate report message", "id", msg.ID)
		return nil
	}
	w.seen.Set(msg.ID, struct{}{})

	s := Summary{
		Dataset:    msg.Dataset,
		Start:      msg.Start,
		End:        msg.End,
		Unit:       string(msg.Unit),
		Categories: len(msg.TopCategories),
		ReceivedAt: w.now(),
		MessageID:  msg.ID,
	}
	if len(msg.TopCategories) > 0 {
		s.TopCategory = msg.TopCategories[0].Category
		s.TopTotal = msg.TopCategories[0].Total
	}

	w.mu.Lock()
	w.latest[msg.Dataset] = s
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "Demand report received",
		append(applog.NewFields().WithWindow(msg.Dataset, msg.Start, msg.End).ToSlice(),
			applog.FieldUnit, s.Unit,
			"top_category", s.TopCategory,
			"top_total", s.TopTotal,
			"categories", s.Categories,
			"points", msg.Points)...)
	return nil
}

// Latest returns the last summary recorded for dataset.
func (w *ReportWorker) Latest(dataset string) (Summary, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	s, ok := w.latest[dataset]
	return s, ok
}

// Summaries returns the latest summary of every dataset, sorted by dataset.
func (w *ReportWorker) Summaries() []Summary {
	w.mu.RLock()
	out := make([]Summary, 0, len(w.latest))
	for _, s := range w.latest {
		out = append(out, s)
	}
	w.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Dataset < out[j].Dataset })
	return out
}

// LogDigest writes one line per dataset with its latest summary.
func (w *ReportWorker) LogDigest(ctx context.Context) {
	for _, s := range w.Summaries() {
		w.logger.InfoContext(ctx, "Latest demand report",
			append(applog.NewFields().WithWindow(s.Dataset, s.Start, s.End).ToSlice(),
				"top_category", s.TopCategory,
				"received_at", s.ReceivedAt.Format(time.RFC3339))...)
	}
}
