package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"eiademand/internal/amqp"
	"eiademand/internal/core"
	"eiademand/internal/report"
)

func newMessage(dataset string) *report.Message {
	return report.NewMessage(dataset, "2026-02-09", "2026-02-16", core.MWh, true,
		core.TopSet{{Category: "PJM", Total: 4100}, {Category: "NYIS", Total: 900}}, 14)
}

func TestReportWorker_HandleReport(t *testing.T) {
	w := NewReportWorker(nil, 16, time.Hour)
	fixed := time.Date(2026, time.February, 17, 8, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return fixed }

	msg := newMessage("region")
	if err := w.HandleReport(context.Background(), msg); err != nil {
		t.Fatalf("HandleReport() error = %v", err)
	}

	s, ok := w.Latest("region")
	if !ok {
		t.Fatal("expected a summary for region")
	}
	if s.TopCategory != "PJM" || s.TopTotal != 4100 || s.Categories != 2 || !s.ReceivedAt.Equal(fixed) {
		t.Errorf("summary = %+v", s)
	}
	if _, ok := w.Latest("fuel-type"); ok {
		t.Error("unexpected summary for fuel-type")
	}
}

func TestReportWorker_SkipsDuplicates(t *testing.T) {
	w := NewReportWorker(nil, 16, time.Hour)
	msg := newMessage("region")
	if err := w.HandleReport(context.Background(), msg); err != nil {
		t.Fatalf("first HandleReport() error = %v", err)
	}

	dup := *msg
	dup.TopCategories = []core.CategoryTotal{{Category: "MISO", Total: 1}}
	if err := w.HandleReport(context.Background(), &dup); err != nil {
		t.Fatalf("duplicate HandleReport() error = %v", err)
	}
	if s, _ := w.Latest("region"); s.TopCategory != "PJM" {
		t.Errorf("duplicate overwrote summary: %+v", s)
	}
}

func TestReportWorker_RejectsMalformed(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *report.Message)
	}{
		{"bad id", func(m *report.Message) { m.ID = "x" }},
		{"no dataset", func(m *report.Message) { m.Dataset = "" }},
		{"bad unit", func(m *report.Message) { m.Unit = "kWh" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewReportWorker(nil, 16, time.Hour)
			msg := newMessage("region")
			tt.mutate(msg)
			if err := w.HandleReport(context.Background(), msg); !errors.Is(err, amqp.ErrPermanent) {
				t.Errorf("HandleReport() error = %v, want permanent", err)
			}
		})
	}
}

func TestReportWorker_Summaries(t *testing.T) {
	w := NewReportWorker(nil, 16, time.Hour)
	for _, ds := range []string{"region", "fuel-type", "interchange"} {
		if err := w.HandleReport(context.Background(), newMessage(ds)); err != nil {
			t.Fatalf("HandleReport(%s) error = %v", ds, err)
		}
	}
	got := w.Summaries()
	if len(got) != 3 || got[0].Dataset != "fuel-type" || got[2].Dataset != "region" {
		t.Errorf("Summaries() = %+v", got)
	}
	w.LogDigest(context.Background())
}
