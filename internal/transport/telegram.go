package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramOptions parameterise the Telegram transport.
type TelegramOptions struct {
	BotToken       string
	ChatID         string
	APIBase        string
	ReconnectDelay time.Duration
	RequestTimeout time.Duration
	HealthInterval time.Duration
}

// watch outcomes for the connection manager loop.
type dropReason int

const (
	dropStopped dropReason = iota
	dropConnection
	dropLoggedOut
)

// Telegram drives one bot connection to one fixed chat. The manager loop is
// an explicit state machine: disconnected -> connecting -> open, back to
// disconnected on a dropped connection, and terminal on an authorization
// failure (revoked token). 不使用递归重连, 避免连接抖动时栈无限增长。
type Telegram struct {
	opts       TelegramOptions
	logger     zerolog.Logger
	endpoint   string
	httpClient *http.Client

	chatID  int64  // numeric destination
	channel string // "@channel" destination, when not numeric

	state   atomic.Int32
	changes chan State
	stopCh  chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegram validates options and builds the transport. Start must be
// called before the transport can reach StateOpen.
func NewTelegram(opts TelegramOptions, logger zerolog.Logger) (*Telegram, error) {
	if opts.BotToken == "" {
		return nil, errors.New("telegram.bot_token 必须配置")
	}
	if opts.ChatID == "" {
		return nil, errors.New("telegram.chat_id 必须配置")
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.HealthInterval <= 0 {
		opts.HealthInterval = 30 * time.Second
	}

	base := strings.TrimRight(opts.APIBase, "/")
	if base == "" {
		base = "https://api.telegram.org"
	}

	t := &Telegram{
		opts:       opts,
		logger:     logger.With().Str("component", "telegram_transport").Logger(),
		endpoint:   base + "/bot%s/%s",
		httpClient: &http.Client{Timeout: opts.RequestTimeout},
		changes:    make(chan State, 8),
		stopCh:     make(chan struct{}),
	}

	if id, err := strconv.ParseInt(opts.ChatID, 10, 64); err == nil {
		t.chatID = id
	} else if strings.HasPrefix(opts.ChatID, "@") {
		t.channel = opts.ChatID
	} else {
		return nil, fmt.Errorf("telegram.chat_id %q is neither numeric nor @channel", opts.ChatID)
	}

	return t, nil
}

// Start launches the connection manager loop.
func (t *Telegram) Start() {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.manage()
	}()
}

func (t *Telegram) manage() {
	for {
		select {
		case <-t.stopCh:
			t.setState(StateDisconnected)
			return
		default:
		}

		t.setState(StateConnecting)
		bot, err := tgbotapi.NewBotAPIWithClient(t.opts.BotToken, t.endpoint, t.httpClient)
		if err != nil {
			if isLoggedOut(err) {
				t.logger.Error().Err(err).Msg("bot token rejected; manual re-authentication required")
				t.setState(StateLoggedOut)
				return
			}
			t.logger.Warn().Err(err).Dur("retry_in", t.opts.ReconnectDelay).Msg("connect failed")
			t.setState(StateDisconnected)
			if !t.sleep(t.opts.ReconnectDelay) {
				return
			}
			continue
		}

		t.mu.Lock()
		t.bot = bot
		t.mu.Unlock()
		t.setState(StateOpen)
		t.logger.Info().Str("bot", bot.Self.UserName).Msg("connected")

		reason := t.watch(bot)

		t.mu.Lock()
		t.bot = nil
		t.mu.Unlock()

		switch reason {
		case dropStopped:
			t.setState(StateDisconnected)
			return
		case dropLoggedOut:
			t.logger.Error().Msg("session logged out; manual re-authentication required")
			t.setState(StateLoggedOut)
			return
		default:
			t.logger.Warn().Dur("retry_in", t.opts.ReconnectDelay).Msg("connection lost; reconnecting")
			t.setState(StateDisconnected)
			if !t.sleep(t.opts.ReconnectDelay) {
				return
			}
		}
	}
}

// watch polls the API until the connection drops or the transport stops.
func (t *Telegram) watch(bot *tgbotapi.BotAPI) dropReason {
	ticker := time.NewTicker(t.opts.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return dropStopped
		case <-ticker.C:
			if _, err := bot.GetMe(); err != nil {
				if isLoggedOut(err) {
					return dropLoggedOut
				}
				t.logger.Warn().Err(err).Msg("health check failed")
				return dropConnection
			}
		}
	}
}

func (t *Telegram) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

// SendText posts a plain text message to the fixed destination.
func (t *Telegram) SendText(ctx context.Context, text string) error {
	bot, err := t.openBot()
	if err != nil {
		return err
	}

	var msg tgbotapi.MessageConfig
	if t.channel != "" {
		msg = tgbotapi.NewMessageToChannel(t.channel, text)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, text)
	}
	msg.DisableWebPagePreview = true

	_, err = bot.Send(msg)
	return err
}

// SendPhoto posts a PNG with caption to the fixed destination.
func (t *Telegram) SendPhoto(ctx context.Context, png []byte, caption string) error {
	bot, err := t.openBot()
	if err != nil {
		return err
	}

	file := tgbotapi.FileBytes{Name: "report.png", Bytes: png}
	var msg tgbotapi.PhotoConfig
	if t.channel != "" {
		msg = tgbotapi.NewPhotoToChannel(t.channel, file)
	} else {
		msg = tgbotapi.NewPhoto(t.chatID, file)
	}
	msg.Caption = caption

	_, err = bot.Send(msg)
	return err
}

func (t *Telegram) openBot() (*tgbotapi.BotAPI, error) {
	if t.State() != StateOpen {
		return nil, ErrNotConnected
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.bot == nil {
		return nil, ErrNotConnected
	}
	return t.bot, nil
}

// State returns the current connection state. Readers may observe a state
// that is one transition stale; the per-cycle readiness check tolerates it.
func (t *Telegram) State() State {
	return State(t.state.Load())
}

// StateChanges exposes transitions for observability. Slow consumers lose
// intermediate transitions rather than blocking the manager.
func (t *Telegram) StateChanges() <-chan State {
	return t.changes
}

func (t *Telegram) setState(s State) {
	if State(t.state.Swap(int32(s))) == s {
		return
	}
	select {
	case t.changes <- s:
	default:
	}
}

// Close stops the manager loop and waits for it to exit.
func (t *Telegram) Close() {
	t.once.Do(func() {
		close(t.stopCh)
		t.wg.Wait()
		close(t.changes)
	})
}

func isLoggedOut(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized
	}
	return strings.Contains(err.Error(), "Unauthorized")
}

var _ Transport = (*Telegram)(nil)
