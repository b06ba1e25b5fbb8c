package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"gold-rate-bot/internal/report"
	"gold-rate-bot/internal/storage"
)

type sampleLister interface {
	ListRecentSamples(ctx context.Context, limit int) ([]storage.ReportSample, error)
}

type deliveryLister interface {
	ListRecentDeliveries(ctx context.Context, limit int) ([]storage.DeliveryRecord, error)
}

// Show prints recent report cycles, or recent delivery outcomes with
// --deliveries.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Deliveries {
		return a.showDeliveries(ctx, store, opts.Limit)
	}
	return a.showSamples(ctx, store, opts.Limit)
}

func (a *App) showSamples(ctx context.Context, store sampleLister, limit int) error {
	samples, err := store.ListRecentSamples(ctx, limit)
	if err != nil {
		return err
	}
	if len(samples) == 0 {
		fmt.Fprintln(os.Stdout, "no samples found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Cycle (UTC)\tGold oz\tSilver oz\tBTC\t21K 5g\t1Kg bar\tStatus\tError")

	for _, sample := range samples {
		errMsg := ""
		if sample.Error != nil {
			errMsg = sanitizeInline(*sample.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			sample.CycleTS.UTC().Format(time.RFC3339),
			showDecimal(sample.GoldOunceUSD, 2),
			showDecimal(sample.SilverOunceUSD, 2),
			showDecimal(sample.BTCUSD, 2),
			showDecimal(sample.Unit21KUSD, 2),
			showDecimal(sample.Bar1KgUSD, 2),
			sample.Status,
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

func (a *App) showDeliveries(ctx context.Context, store deliveryLister, limit int) error {
	records, err := store.ListRecentDeliveries(ctx, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(os.Stdout, "no deliveries found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Cycle (UTC)\tAttempts\tOutcome\tError")

	for _, rec := range records {
		errMsg := ""
		if rec.Error != nil {
			errMsg = sanitizeInline(*rec.Error)
		}
		fmt.Fprintf(
			writer,
			"%s\t%d\t%s\t%s\n",
			rec.CycleTS.UTC().Format(time.RFC3339),
			rec.Attempts,
			rec.Outcome,
			errMsg,
		)
	}

	writer.Flush()
	return nil
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}

func showDecimal(d *decimal.Decimal, places int32) string {
	if d == nil {
		return report.NA
	}
	return d.StringFixed(places)
}
