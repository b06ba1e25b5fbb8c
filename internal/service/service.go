package service

import (
	"context"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"gold-rate-bot/internal/chart"
	"gold-rate-bot/internal/config"
	"gold-rate-bot/internal/delivery"
	"gold-rate-bot/internal/pricing"
	"gold-rate-bot/internal/ratesource"
	"gold-rate-bot/internal/report"
	"gold-rate-bot/internal/scheduler"
	"gold-rate-bot/internal/storage"
	"gold-rate-bot/internal/transport"
)

// ReportSender delivers a rendered report and reports attempts made.
type ReportSender interface {
	Send(ctx context.Context, payload delivery.Payload) (int, error)
}

// Options carry cycle behaviour derived from configuration.
type Options struct {
	Policy       string
	Zone         *time.Location
	Footer       string
	ChartEnabled bool
	ChartPoints  int
}

// Service orchestrates one report cycle: readiness gate, parallel fetch,
// normalisation, formatting, delivery, and optional persistence.
type Service struct {
	sched     *scheduler.Scheduler
	metals    ratesource.MetalsSource
	crypto    ratesource.CryptoSource
	fx        ratesource.FXSource
	chainlink *ratesource.Chainlink

	tr         transport.Transport
	sender     ReportSender
	samples    storage.SampleStore
	deliveries storage.DeliveryStore

	logger zerolog.Logger
	opts   Options

	inflight atomic.Int32
}

// New constructs the report service. Stores may be nil (stateless mode);
// chainlink may be nil (no on-chain fallback).
func New(
	sched *scheduler.Scheduler,
	metals ratesource.MetalsSource,
	crypto ratesource.CryptoSource,
	fx ratesource.FXSource,
	chainlink *ratesource.Chainlink,
	tr transport.Transport,
	sender ReportSender,
	samples storage.SampleStore,
	deliveries storage.DeliveryStore,
	opts Options,
	logger zerolog.Logger,
) *Service {
	if opts.Zone == nil {
		opts.Zone = time.FixedZone("UTC+3", 3*3600)
	}
	if opts.Policy == "" {
		opts.Policy = config.PolicyDegrade
	}
	return &Service{
		sched:      sched,
		metals:     metals,
		crypto:     crypto,
		fx:         fx,
		chainlink:  chainlink,
		tr:         tr,
		sender:     sender,
		samples:    samples,
		deliveries: deliveries,
		logger:     logger.With().Str("component", "service").Logger(),
		opts:       opts,
	}
}

// Run begins the scheduled posting loop.
func (s *Service) Run(ctx context.Context) error {
	return s.sched.Run(ctx, s.Cycle)
}

// Cycle 执行一次完整的报价-渲染-投递流程。Every firing is independent:
// nothing is queued across cycles and a failed cycle only logs.
func (s *Service) Cycle(ctx context.Context, tick time.Time) error {
	if n := s.inflight.Add(1); n > 1 {
		// Overlap is tolerated, not serialised; surfacing it is enough.
		s.logger.Warn().Int32("in_flight", n).Msg("cycle overlaps a previous run still in flight")
	}
	defer s.inflight.Add(-1)

	if state := s.tr.State(); state != transport.StateOpen {
		s.logger.Debug().Stringer("state", state).Msg("connection not open; skipping cycle")
		return nil
	}

	raw := ratesource.FetchAll(ctx, s.metals, s.crypto, s.fx)
	if s.chainlink != nil {
		raw.Crypto = s.chainlink.Fill(ctx, raw.Crypto)
	}

	if raw.Empty() {
		s.logger.Warn().Msg("all upstreams failed; skipping cycle")
		return nil
	}
	if s.opts.Policy == config.PolicySkip && raw.Partial() {
		s.logger.Warn().
			Bool("metals", raw.Metals != nil).
			Bool("crypto", raw.Crypto != nil).
			Bool("fx", raw.FX != nil).
			Msg("upstream failed and policy is skip; skipping cycle")
		s.persistSample(ctx, tick, raw, pricing.Denominations{}, "skipped")
		return nil
	}

	in := BuildInput(raw, s.opts.Zone, s.opts.Footer)
	text := report.Build(in)

	payload := delivery.Payload{Text: text}
	if s.opts.ChartEnabled {
		if png := s.renderChart(ctx); png != nil {
			payload.PNG = png
		}
	}

	attempts, err := s.sender.Send(ctx, payload)
	s.persistSample(ctx, tick, raw, in.Denoms, sampleStatus(raw))
	s.persistDelivery(ctx, tick, attempts, err)
	if err != nil {
		s.logger.Error().Err(err).Int("attempts", attempts).Msg("cycle delivery failed")
		return err
	}

	s.logger.Info().
		Time("fetched_at", raw.FetchedAt).
		Bool("partial", raw.Partial()).
		Msg("report posted")
	return nil
}

// BuildInput localises one cycle's raw quotes into formatter input. Missing
// sources surface as NaN or nil fields, never as zeros.
func BuildInput(raw ratesource.RawQuote, zone *time.Location, footer string) report.Input {
	goldOunce, silverOunce := math.NaN(), math.NaN()
	if raw.Metals != nil {
		goldOunce = raw.Metals.GoldOunceUSD
		silverOunce = raw.Metals.SilverOunceUSD
	}

	in := report.Input{
		Now:            raw.FetchedAt.In(zone),
		GoldOunceUSD:   goldOunce,
		SilverOunceUSD: silverOunce,
		Denoms:         pricing.Normalize(goldOunce, silverOunce),
		USDPerEUR100:   math.NaN(),
		USDPerGBP100:   math.NaN(),
		Footer:         footer,
	}
	if raw.Crypto != nil {
		in.BTCUSD = raw.Crypto.BTCUSD
		in.ETHUSD = raw.Crypto.ETHUSD
		in.XRPUSD = raw.Crypto.XRPUSD
	}
	if raw.FX != nil {
		in.USDPerEUR100 = raw.FX.USDPerEUR100
		in.USDPerGBP100 = raw.FX.USDPerGBP100
	}
	return in
}

func (s *Service) renderChart(ctx context.Context) []byte {
	if s.samples == nil || s.opts.ChartPoints < 2 {
		return nil
	}
	recent, err := s.samples.ListRecentSamples(ctx, s.opts.ChartPoints)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to load history for chart")
		return nil
	}
	png, err := chart.RenderGoldHistory(recent)
	if err != nil {
		if err != chart.ErrNotEnoughData {
			s.logger.Warn().Err(err).Msg("failed to render chart")
		}
		return nil
	}
	return png
}

func (s *Service) persistSample(ctx context.Context, tick time.Time, raw ratesource.RawQuote, denoms pricing.Denominations, status string) {
	if s.samples == nil {
		return
	}

	sample := storage.ReportSample{
		CycleTS: tick.UTC().Truncate(time.Second),
		Status:  status,
	}
	if raw.Metals != nil {
		sample.GoldOunceUSD = storage.DecimalFromFloat(raw.Metals.GoldOunceUSD)
		sample.SilverOunceUSD = storage.DecimalFromFloat(raw.Metals.SilverOunceUSD)
	}
	if raw.Crypto != nil {
		sample.BTCUSD = storage.DecimalFromPtr(raw.Crypto.BTCUSD)
		sample.ETHUSD = storage.DecimalFromPtr(raw.Crypto.ETHUSD)
		sample.XRPUSD = storage.DecimalFromPtr(raw.Crypto.XRPUSD)
	}
	if raw.FX != nil {
		sample.USDPerEUR100 = storage.DecimalFromFloat(raw.FX.USDPerEUR100)
		sample.USDPerGBP100 = storage.DecimalFromFloat(raw.FX.USDPerGBP100)
	}
	sample.Unit21KUSD = storage.DecimalFromFloat(denoms.Unit21KUSD)
	sample.Bar1KgUSD = storage.DecimalFromFloat(denoms.Bar1KgUSD)
	sample.SilverBar1KgUSD = storage.DecimalFromFloat(denoms.SilverBar1KgUSD)

	if err := s.samples.UpsertReportSample(ctx, sample); err != nil {
		s.logger.Error().Err(err).Time("cycle", tick).Msg("failed to upsert report sample")
	}
}

func (s *Service) persistDelivery(ctx context.Context, tick time.Time, attempts int, sendErr error) {
	if s.deliveries == nil {
		return
	}

	rec := storage.DeliveryRecord{
		CycleTS:  tick.UTC().Truncate(time.Second),
		Attempts: attempts,
		Outcome:  "delivered",
	}
	if sendErr != nil {
		rec.Outcome = "failed"
		msg := sendErr.Error()
		rec.Error = &msg
	}

	if _, err := s.deliveries.InsertDelivery(ctx, rec); err != nil {
		s.logger.Error().Err(err).Time("cycle", tick).Msg("failed to persist delivery record")
	}
}

func sampleStatus(raw ratesource.RawQuote) string {
	if raw.Partial() {
		return "partial"
	}
	return "complete"
}
