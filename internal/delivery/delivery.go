package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"gold-rate-bot/internal/transport"
)

var (
	// ErrNotReady means the transport was not open; no attempt was made.
	ErrNotReady = errors.New("delivery: transport not ready")
	// ErrExhausted means every attempt failed. 本周期放弃, 等待下一次调度。
	ErrExhausted = errors.New("delivery: attempts exhausted")
)

// Payload is one report to deliver. A non-nil PNG switches delivery to the
// photo-with-caption path; Text is the caption in that case.
type Payload struct {
	Text string
	PNG  []byte
}

// Options bound the retry loop.
type Options struct {
	Attempts int
	Delay    time.Duration
}

// Sender delivers payloads to the transport's fixed destination with
// bounded retry. Failed cycles are never queued; the next scheduler tick
// starts fresh.
type Sender struct {
	tr     transport.Transport
	opts   Options
	logger zerolog.Logger
}

// NewSender constructs a Sender.
func NewSender(tr transport.Transport, opts Options, logger zerolog.Logger) *Sender {
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.Delay <= 0 {
		opts.Delay = 3 * time.Second
	}
	return &Sender{
		tr:     tr,
		opts:   opts,
		logger: logger.With().Str("component", "delivery").Logger(),
	}
}

// Send attempts delivery up to the configured bound with a fixed delay
// between attempts, and reports how many attempts were made. A transport
// that is not open short-circuits with zero attempts.
func (s *Sender) Send(ctx context.Context, payload Payload) (int, error) {
	if state := s.tr.State(); state != transport.StateOpen {
		s.logger.Debug().Stringer("state", state).Msg("transport not open; skipping delivery")
		return 0, ErrNotReady
	}

	var lastErr error
	for attempt := 1; attempt <= s.opts.Attempts; attempt++ {
		err := s.deliver(ctx, payload)
		if err == nil {
			s.logger.Info().Int("attempt", attempt).Bool("photo", payload.PNG != nil).Msg("report delivered")
			return attempt, nil
		}
		lastErr = err
		s.logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", s.opts.Attempts).Msg("delivery attempt failed")

		if attempt == s.opts.Attempts {
			break
		}
		timer := time.NewTimer(s.opts.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempt, ctx.Err()
		case <-timer.C:
		}
	}

	return s.opts.Attempts, fmt.Errorf("%w after %d attempts: %v", ErrExhausted, s.opts.Attempts, lastErr)
}

func (s *Sender) deliver(ctx context.Context, payload Payload) error {
	if payload.PNG != nil {
		return s.tr.SendPhoto(ctx, payload.PNG, payload.Text)
	}
	return s.tr.SendText(ctx, payload.Text)
}
