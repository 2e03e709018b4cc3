package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"eiademand/internal/cache"
	"eiademand/internal/cli"
	"eiademand/internal/core"
	"eiademand/internal/eia"
	applog "eiademand/internal/log"
	"eiademand/internal/services"
)

func main() {
	cli.LoadEnvFile()
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run builds the requested reports and returns the process exit code, so
// that deferred cleanup runs on every path.
func run(args []string, stdout io.Writer) int {
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	fs := flag.NewFlagSet("demand-report", flag.ContinueOnError)
	datasets := fs.String("datasets", strings.Join(cfg.Datasets.Names(), ","), "comma-separated dataset names")
	start := fs.String("start", cfg.DefaultStart, "first day of the window (YYYY-MM-DD)")
	end := fs.String("end", cfg.DefaultEnd, "last day of the window (YYYY-MM-DD)")
	units := fs.String("units", cfg.DefaultUnits, "MWh or GWh")
	top := fs.Int("top", cfg.DefaultTopN, "number of categories to keep")
	eastern := fs.Bool("eastern", cfg.DefaultEasternOnly, "keep only Eastern-time rows")
	publish := fs.Bool("publish", true, "send reports to the configured AMQP, Kafka and InfluxDB sinks")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	unit, err := core.ParseUnit(*units)
	if err != nil {
		logger.Error("Invalid units", applog.FieldError, err)
		return 2
	}

	opts := []services.Option{
		services.WithLogger(logger),
		services.WithPageLength(cfg.EIAPageLength),
	}
	sinks := cli.SetupSinks(cfg, logger, *publish)
	defer sinks.Close()
	opts = append(opts, sinks.Options()...)

	client := eia.NewClient(eia.WithPageTimeout(cfg.EIAPageTimeout), eia.WithLogger(logger))
	svc := services.NewDemandService(client, cfg.EIAAPIKey, cfg.Datasets,
		cache.NewLRUCache[core.Table](cfg.CacheMaxEntries, cfg.CacheTTL), opts...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	req := services.Request{
		Start:       *start,
		End:         *end,
		Unit:        unit,
		TopN:        *top,
		EasternOnly: *eastern,
	}
	reports, err := svc.BuildAll(ctx, req, splitList(*datasets))
	if err != nil {
		if services.IsFetchError(err) {
			fmt.Fprintln(os.Stderr, services.NoDataWarning)
		}
		logger.Error("Report failed", applog.FieldError, err)
		return 1
	}

	for _, r := range reports {
		logger.Info(services.Describe(r))
		if err := writeReport(stdout, r); err != nil {
			logger.Error("Failed to write report", applog.FieldError, err)
			return 1
		}
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// writeReport prints one report as a date-by-category table with a totals row.
func writeReport(w io.Writer, r services.Report) error {
	fmt.Fprintf(w, "%s (%s, %s to %s)\n", r.Dataset.Title, r.Scale.Label, r.Start, r.End)
	if r.Empty {
		_, err := fmt.Fprintf(w, "  %s\n\n", r.Warning)
		return err
	}

	cats := r.Categories()
	byDay := make(map[string]map[string]float64)
	var days []string
	for _, p := range r.Points {
		d := p.Period.UTC().Format("2006-01-02")
		if _, ok := byDay[d]; !ok {
			byDay[d] = make(map[string]float64)
			days = append(days, d)
		}
		byDay[d][p.Category] += p.Demand
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "date\t%s\t\n", strings.Join(cats, "\t"))
	for _, d := range days {
		row := make([]string, len(cats))
		for i, c := range cats {
			if v, ok := byDay[d][c]; ok {
				row[i] = formatDemand(v)
			} else {
				row[i] = "-"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t\n", d, strings.Join(row, "\t"))
	}
	totals := make([]string, len(r.Top))
	for i, ct := range r.Top {
		totals[i] = formatDemand(ct.Total)
	}
	fmt.Fprintf(tw, "total\t%s\t\n", strings.Join(totals, "\t"))
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w)
	return err
}

func formatDemand(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
