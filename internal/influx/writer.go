// Package influx writes aggregated demand series to InfluxDB v2.
package influx

import (
	"context"
	"fmt"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"eiademand/internal/core"
	applog "eiademand/internal/log"
)

const measurement = "electricity_demand"

// Config selects the InfluxDB server and destination bucket.
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// Writer stores every point of a built report as one InfluxDB point.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	bucket   string
	logger   *applog.Logger
}

// NewWriter creates the client and verifies that the server answers.
func NewWriter(ctx context.Context, cfg Config, logger *applog.Logger) (*Writer, error) {
	if logger == nil {
		logger = applog.Discard()
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	ok, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to InfluxDB %s: %w", cfg.URL, err)
	}
	if !ok {
		client.Close()
		return nil, fmt.Errorf("connect to InfluxDB %s: server not ready", cfg.URL)
	}

	return &Writer{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket:   cfg.Bucket,
		logger:   logger.WithComponent(applog.ComponentInflux),
	}, nil
}

// WriteSeries writes one point per (period, category). Rewriting the same
// window overwrites the previous values since the series key and time match.
func (w *Writer) WriteSeries(ctx context.Context, dataset string, scale core.Scale, easternOnly bool, points []core.Aggregate) error {
	if len(points) == 0 {
		return nil
	}

	batch := make([]*write.Point, 0, len(points))
	for _, p := range points {
		batch = append(batch, newPoint(dataset, scale, easternOnly, p))
	}

	if err := w.writeAPI.WritePoint(ctx, batch...); err != nil {
		return fmt.Errorf("write %d points of %s: %w", len(batch), dataset, err)
	}

	w.logger.DebugContext(ctx, "Series written",
		applog.FieldDataset, dataset,
		applog.FieldOperation, applog.OpWrite,
		"bucket", w.bucket,
		"points", len(batch))
	return nil
}

func newPoint(dataset string, scale core.Scale, easternOnly bool, p core.Aggregate) *write.Point {
	return write.NewPoint(
		measurement,
		map[string]string{
			"dataset":      dataset,
			"category":     p.Category,
			"unit":         string(scale.Unit),
			"eastern_only": strconv.FormatBool(easternOnly),
		},
		map[string]interface{}{
			"demand": p.Demand,
		},
		p.Period,
	)
}

func (w *Writer) Close() {
	w.client.Close()
}
