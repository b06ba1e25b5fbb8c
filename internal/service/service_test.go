package service

import (
	"context"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gold-rate-bot/internal/config"
	"gold-rate-bot/internal/delivery"
	"gold-rate-bot/internal/ratesource"
	"gold-rate-bot/internal/storage"
	"gold-rate-bot/internal/transport"
)

type stubSources struct {
	metals *ratesource.MetalsQuote
	crypto *ratesource.CryptoQuote
	fx     *ratesource.FXQuote
}

func (s stubSources) FetchMetals(context.Context) *ratesource.MetalsQuote { return s.metals }
func (s stubSources) FetchCrypto(context.Context) *ratesource.CryptoQuote { return s.crypto }
func (s stubSources) FetchFX(context.Context) *ratesource.FXQuote         { return s.fx }

type stubTransport struct {
	state transport.State
}

func (t *stubTransport) SendText(context.Context, string) error          { return nil }
func (t *stubTransport) SendPhoto(context.Context, []byte, string) error { return nil }
func (t *stubTransport) State() transport.State                          { return t.state }
func (t *stubTransport) StateChanges() <-chan transport.State            { return nil }
func (t *stubTransport) Close()                                          {}

type stubSender struct {
	calls    int
	last     delivery.Payload
	attempts int
	err      error
}

func (s *stubSender) Send(_ context.Context, payload delivery.Payload) (int, error) {
	s.calls++
	s.last = payload
	return s.attempts, s.err
}

type recordingSampleStore struct {
	upserts []storage.ReportSample
	recent  []storage.ReportSample
}

func (r *recordingSampleStore) UpsertReportSample(_ context.Context, sample storage.ReportSample) error {
	r.upserts = append(r.upserts, sample)
	return nil
}

func (r *recordingSampleStore) ListSamplesBetween(context.Context, time.Time, time.Time) ([]storage.ReportSample, error) {
	return nil, nil
}

func (r *recordingSampleStore) ListRecentSamples(context.Context, int) ([]storage.ReportSample, error) {
	return r.recent, nil
}

func (r *recordingSampleStore) CountSamples(context.Context) (int64, error) {
	return int64(len(r.upserts)), nil
}

type recordingDeliveryStore struct {
	inserts []storage.DeliveryRecord
}

func (r *recordingDeliveryStore) InsertDelivery(_ context.Context, rec storage.DeliveryRecord) (storage.DeliveryRecord, error) {
	r.inserts = append(r.inserts, rec)
	return rec, nil
}

func (r *recordingDeliveryStore) ListRecentDeliveries(context.Context, int) ([]storage.DeliveryRecord, error) {
	return r.inserts, nil
}

func ptr(v float64) *float64 { return &v }

func newTestService(src stubSources, tr transport.Transport, sender ReportSender, samples storage.SampleStore, deliveries storage.DeliveryStore, policy string) *Service {
	return New(
		nil,
		src, src, src,
		nil,
		tr,
		sender,
		samples,
		deliveries,
		Options{Policy: policy},
		zerolog.Nop(),
	)
}

func TestCycleSkipsWhenNotConnected(t *testing.T) {
	src := stubSources{
		metals: &ratesource.MetalsQuote{GoldOunceUSD: 2650, SilverOunceUSD: 31},
	}
	sender := &stubSender{attempts: 1}
	svc := newTestService(src, &stubTransport{state: transport.StateConnecting}, sender, nil, nil, config.PolicyDegrade)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("未就绪时应静默跳过: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("未就绪时不应投递, 实际调用 %d 次", sender.calls)
	}
}

func TestCycleSkipsWhenAllSourcesFail(t *testing.T) {
	sender := &stubSender{attempts: 1}
	svc := newTestService(stubSources{}, &stubTransport{state: transport.StateOpen}, sender, nil, nil, config.PolicyDegrade)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("全部来源失败应跳过而非报错: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("全部来源失败时不应投递, 实际调用 %d 次", sender.calls)
	}
}

func TestCycleDegradesOnPartialFailure(t *testing.T) {
	src := stubSources{
		metals: &ratesource.MetalsQuote{GoldOunceUSD: 2650, SilverOunceUSD: 31},
		fx:     &ratesource.FXQuote{USDPerEUR100: 108.5, USDPerGBP100: math.NaN()},
	}
	sender := &stubSender{attempts: 1}
	svc := newTestService(src, &stubTransport{state: transport.StateOpen}, sender, nil, nil, config.PolicyDegrade)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("降级策略下部分失败不应报错: %v", err)
	}
	if sender.calls != 1 {
		t.Fatalf("降级策略下应照常投递, 实际调用 %d 次", sender.calls)
	}
	for _, want := range []string{"Gold ounce: $2650.00", "BTC: N/A", "100 EUR: $108.50", "100 GBP: N/A"} {
		if !strings.Contains(sender.last.Text, want) {
			t.Fatalf("降级报文缺少 %q:\n%s", want, sender.last.Text)
		}
	}
}

func TestCycleSkipPolicyHoldsBackPartialReport(t *testing.T) {
	src := stubSources{
		metals: &ratesource.MetalsQuote{GoldOunceUSD: 2650, SilverOunceUSD: 31},
	}
	sender := &stubSender{attempts: 1}
	samples := &recordingSampleStore{}
	svc := newTestService(src, &stubTransport{state: transport.StateOpen}, sender, samples, nil, config.PolicySkip)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("跳过策略下不应报错: %v", err)
	}
	if sender.calls != 0 {
		t.Fatalf("跳过策略下部分失败不应投递, 实际调用 %d 次", sender.calls)
	}
	if len(samples.upserts) != 1 || samples.upserts[0].Status != "skipped" {
		t.Fatalf("跳过的周期仍应留痕, 实际: %+v", samples.upserts)
	}
}

func TestCyclePersistsSampleAndDelivery(t *testing.T) {
	src := stubSources{
		metals: &ratesource.MetalsQuote{GoldOunceUSD: 2650, SilverOunceUSD: 31},
		crypto: &ratesource.CryptoQuote{BTCUSD: ptr(109250.55), ETHUSD: ptr(3890.10), XRPUSD: ptr(2.3456)},
		fx:     &ratesource.FXQuote{USDPerEUR100: 108.5, USDPerGBP100: 126.9},
	}
	sender := &stubSender{attempts: 1}
	samples := &recordingSampleStore{}
	deliveries := &recordingDeliveryStore{}
	svc := newTestService(src, &stubTransport{state: transport.StateOpen}, sender, samples, deliveries, config.PolicyDegrade)

	tick := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	if err := svc.Cycle(context.Background(), tick); err != nil {
		t.Fatalf("完整周期不应报错: %v", err)
	}

	if len(samples.upserts) != 1 {
		t.Fatalf("应落库一条样本, 实际 %d 条", len(samples.upserts))
	}
	sample := samples.upserts[0]
	if sample.Status != "complete" {
		t.Fatalf("全量成功时状态应为 complete, 实际 %q", sample.Status)
	}
	if !sample.CycleTS.Equal(tick) {
		t.Fatalf("样本周期时间不符: %v", sample.CycleTS)
	}
	if sample.GoldOunceUSD == nil || sample.GoldOunceUSD.String() != "2650" {
		t.Fatalf("金价落库不符: %v", sample.GoldOunceUSD)
	}
	if sample.Unit21KUSD == nil {
		t.Fatal("换算面额应随样本落库")
	}

	if len(deliveries.inserts) != 1 {
		t.Fatalf("应落库一条投递记录, 实际 %d 条", len(deliveries.inserts))
	}
	rec := deliveries.inserts[0]
	if rec.Outcome != "delivered" || rec.Attempts != 1 {
		t.Fatalf("投递记录不符: %+v", rec)
	}
}

func TestCycleReturnsDeliveryError(t *testing.T) {
	src := stubSources{
		metals: &ratesource.MetalsQuote{GoldOunceUSD: 2650, SilverOunceUSD: 31},
		crypto: &ratesource.CryptoQuote{BTCUSD: ptr(109250.55)},
		fx:     &ratesource.FXQuote{USDPerEUR100: 108.5, USDPerGBP100: 126.9},
	}
	sender := &stubSender{attempts: 3, err: delivery.ErrExhausted}
	deliveries := &recordingDeliveryStore{}
	svc := newTestService(src, &stubTransport{state: transport.StateOpen}, sender, nil, deliveries, config.PolicyDegrade)

	err := svc.Cycle(context.Background(), time.Now())
	if err == nil {
		t.Fatal("投递失败应向上返回错误")
	}
	if len(deliveries.inserts) != 1 || deliveries.inserts[0].Outcome != "failed" || deliveries.inserts[0].Attempts != 3 {
		t.Fatalf("失败的投递也应留痕: %+v", deliveries.inserts)
	}
}

func TestCycleMissingMetalsKeepsSilverIndependent(t *testing.T) {
	src := stubSources{
		crypto: &ratesource.CryptoQuote{BTCUSD: ptr(109250.55)},
		fx:     &ratesource.FXQuote{USDPerEUR100: 108.5, USDPerGBP100: 126.9},
	}
	sender := &stubSender{attempts: 1}
	svc := newTestService(src, &stubTransport{state: transport.StateOpen}, sender, nil, nil, config.PolicyDegrade)

	if err := svc.Cycle(context.Background(), time.Now()); err != nil {
		t.Fatalf("缺少贵金属来源不应中断周期: %v", err)
	}
	for _, want := range []string{"Gold ounce: N/A", "21K 5g unit: N/A", "1Kg bar: N/A", "BTC: $109,250.55"} {
		if !strings.Contains(sender.last.Text, want) {
			t.Fatalf("报文缺少 %q:\n%s", want, sender.last.Text)
		}
	}
}
