package app

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"gold-rate-bot/internal/config"
	"gold-rate-bot/internal/delivery"
	"gold-rate-bot/internal/logging"
	"gold-rate-bot/internal/ratesource"
	"gold-rate-bot/internal/scheduler"
	"gold-rate-bot/internal/service"
	"gold-rate-bot/internal/storage"
	"gold-rate-bot/internal/transport"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logging.Component(logger, "app")}
}

func (a *App) newSources() (ratesource.MetalsSource, ratesource.CryptoSource, ratesource.FXSource) {
	metals := ratesource.NewMetals(ratesource.MetalsOptions{
		BaseURL:   a.Config.Rates.Metals.BaseURL,
		UserAgent: a.Config.Rates.Metals.UserAgent,
		Timeout:   a.Config.Rates.Metals.RequestTimeout,
	}, a.Logger)

	crypto := ratesource.NewCrypto(ratesource.CryptoOptions{
		BaseURL: a.Config.Rates.Crypto.BaseURL,
		Timeout: a.Config.Rates.Crypto.RequestTimeout,
	}, a.Logger)

	fx := ratesource.NewFX(ratesource.FXOptions{
		BaseURL: a.Config.Rates.FX.BaseURL,
		Timeout: a.Config.Rates.FX.RequestTimeout,
	}, a.Logger)

	return metals, crypto, fx
}

func (a *App) newChainlink() *ratesource.Chainlink {
	if !a.Config.Rates.Chainlink.Enabled {
		return nil
	}
	cfg := a.Config.Rates.Chainlink
	return ratesource.NewChainlink(ratesource.ChainlinkOptions{
		RPCURL:     cfg.RPCURL,
		ETHUSDFeed: cfg.ETHUSDFeed,
		BTCUSDFeed: cfg.BTCUSDFeed,
		Timeout:    cfg.RequestTimeout,
	}, a.Logger)
}

func (a *App) newTransport() (*transport.Telegram, error) {
	cfg := a.Config.Telegram
	return transport.NewTelegram(transport.TelegramOptions{
		BotToken:       cfg.BotToken,
		ChatID:         cfg.ChatID,
		APIBase:        cfg.APIBase,
		ReconnectDelay: cfg.ReconnectDelay,
		RequestTimeout: cfg.RequestTimeout,
		HealthInterval: cfg.HealthInterval,
	}, a.Logger)
}

func (a *App) newSender(tr transport.Transport) *delivery.Sender {
	return delivery.NewSender(tr, delivery.Options{
		Attempts: a.Config.Delivery.Attempts,
		Delay:    a.Config.Delivery.Delay,
	}, a.Logger)
}

func (a *App) serviceOptions() service.Options {
	return service.Options{
		Policy:       a.Config.Report.OnPartialFailure,
		Zone:         a.Config.ReportZone(),
		Footer:       a.Config.Report.Footer,
		ChartEnabled: a.Config.Chart.Enabled,
		ChartPoints:  a.Config.Chart.HistoryPoints,
	}
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// watchConnection logs transport state transitions and cancels the run when
// the session becomes terminal (revoked bot token).
func (a *App) watchConnection(tr transport.Transport, cancel context.CancelFunc) {
	for state := range tr.StateChanges() {
		a.Logger.Info().Stringer("state", state).Msg("connection state changed")
		if state == transport.StateLoggedOut {
			a.Logger.Error().Msg("bot token revoked; shutting down")
			cancel()
			return
		}
	}
}

// Run executes the long-running posting service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	tr, err := a.newTransport()
	if err != nil {
		return err
	}
	go a.watchConnection(tr, cancel)
	tr.Start()
	defer tr.Close()

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		RunAtStart:   a.Config.Scheduler.RunAtStart,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	metals, crypto, fx := a.newSources()

	var sampleStore storage.SampleStore
	var deliveryStore storage.DeliveryStore
	if store != nil {
		sampleStore = store
		deliveryStore = store
	}

	svc := service.New(
		sched,
		metals, crypto, fx,
		a.newChainlink(),
		tr,
		a.newSender(tr),
		sampleStore,
		deliveryStore,
		a.serviceOptions(),
		a.Logger,
	)

	a.Logger.Info().Msg("starting posting service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("posting service stopped")
	return nil
}

// PostOnce runs a single report cycle immediately and exits. It waits for
// the connection to open before firing.
func (a *App) PostOnce(ctx context.Context, wait time.Duration) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	tr, err := a.newTransport()
	if err != nil {
		return err
	}
	go a.watchConnection(tr, cancel)
	tr.Start()
	defer tr.Close()

	if err := waitForOpen(ctx, tr, wait); err != nil {
		return err
	}

	metals, crypto, fx := a.newSources()

	var sampleStore storage.SampleStore
	var deliveryStore storage.DeliveryStore
	if store != nil {
		sampleStore = store
		deliveryStore = store
	}

	svc := service.New(
		nil,
		metals, crypto, fx,
		a.newChainlink(),
		tr,
		a.newSender(tr),
		sampleStore,
		deliveryStore,
		a.serviceOptions(),
		a.Logger,
	)

	return svc.Cycle(ctx, time.Now().UTC())
}

func waitForOpen(ctx context.Context, tr transport.Transport, wait time.Duration) error {
	if wait <= 0 {
		wait = 30 * time.Second
	}
	deadline := time.NewTimer(wait)
	defer deadline.Stop()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		switch tr.State() {
		case transport.StateOpen:
			return nil
		case transport.StateLoggedOut:
			return errors.New("bot token revoked")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("connection did not open within %s", wait)
		case <-ticker.C:
		}
	}
}

// ExportOptions hold parameters for exporting historical samples.
type ExportOptions struct {
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit      int
	Deliveries bool
}
