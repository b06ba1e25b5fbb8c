package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"

	"gold-rate-bot/internal/chart"
	"gold-rate-bot/internal/storage"
)

// Export renders historical report samples as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	samples, err := store.ListSamplesBetween(ctx, from, to)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		a.Logger.Info().Msg("no samples found for export window")
		return nil
	}

	downsampled := downsampleSamples(samples, opts.MaxPoints)
	a.Logger.Info().Int("total", len(samples)).Int("exported", len(downsampled)).Msg("exporting samples")

	if opts.CSVPath != "" {
		if err := writeSamplesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSamplesPNG(opts.PNGPath, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsampleSamples(samples []storage.ReportSample, max int) []storage.ReportSample {
	if max <= 0 || len(samples) <= max {
		return samples
	}

	result := make([]storage.ReportSample, 0, max)
	step := float64(len(samples)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(samples) {
			idx = len(samples) - 1
		}
		result = append(result, samples[idx])
	}
	return result
}

func writeSamplesCSV(path string, samples []storage.ReportSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"cycle_ts",
		"gold_ounce_usd",
		"silver_ounce_usd",
		"btc_usd",
		"eth_usd",
		"xrp_usd",
		"usd_per_eur_100",
		"usd_per_gbp_100",
		"unit_21k_usd",
		"bar_1kg_usd",
		"silver_bar_1kg_usd",
		"status",
		"error",
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, sample := range samples {
		errMsg := ""
		if sample.Error != nil {
			errMsg = *sample.Error
		}
		record := []string{
			sample.CycleTS.Format(time.RFC3339),
			csvDecimal(sample.GoldOunceUSD),
			csvDecimal(sample.SilverOunceUSD),
			csvDecimal(sample.BTCUSD),
			csvDecimal(sample.ETHUSD),
			csvDecimal(sample.XRPUSD),
			csvDecimal(sample.USDPerEUR100),
			csvDecimal(sample.USDPerGBP100),
			csvDecimal(sample.Unit21KUSD),
			csvDecimal(sample.Bar1KgUSD),
			csvDecimal(sample.SilverBar1KgUSD),
			sample.Status,
			errMsg,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSamplesPNG(path string, samples []storage.ReportSample) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	png, err := chart.RenderGoldHistory(samples)
	if err != nil {
		return err
	}

	return os.WriteFile(path, png, 0o644)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// csvDecimal renders a nullable column as its exact stored text, empty when
// NULL.
func csvDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}
