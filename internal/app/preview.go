package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gold-rate-bot/internal/ratesource"
	"gold-rate-bot/internal/report"
	"gold-rate-bot/internal/service"
)

// Preview fetches live quotes and prints the rendered report to stdout
// without touching the chat network.
func (a *App) Preview(ctx context.Context) error {
	metals, crypto, fx := a.newSources()

	raw := ratesource.FetchAll(ctx, metals, crypto, fx)
	if chainlink := a.newChainlink(); chainlink != nil {
		raw.Crypto = chainlink.Fill(ctx, raw.Crypto)
	}
	if raw.Empty() {
		return errors.New("all upstreams failed; nothing to preview")
	}

	in := service.BuildInput(raw, a.Config.ReportZone(), a.Config.Report.Footer)
	fmt.Fprint(os.Stdout, report.Build(in))
	return nil
}
