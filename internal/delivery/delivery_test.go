package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"gold-rate-bot/internal/transport"
)

// fakeTransport counts send calls and fails a configurable number of times.
type fakeTransport struct {
	state      transport.State
	failTimes  int
	textCalls  int
	photoCalls int
}

func (f *fakeTransport) SendText(ctx context.Context, text string) error {
	f.textCalls++
	if f.failTimes > 0 {
		f.failTimes--
		return errors.New("send rejected")
	}
	return nil
}

func (f *fakeTransport) SendPhoto(ctx context.Context, png []byte, caption string) error {
	f.photoCalls++
	if f.failTimes > 0 {
		f.failTimes--
		return errors.New("send rejected")
	}
	return nil
}

func (f *fakeTransport) State() transport.State               { return f.state }
func (f *fakeTransport) StateChanges() <-chan transport.State { return nil }
func (f *fakeTransport) Close()                               {}

func newSender(tr transport.Transport) *Sender {
	return NewSender(tr, Options{Attempts: 3, Delay: time.Millisecond}, zerolog.Nop())
}

func TestSendFirstAttemptSucceeds(t *testing.T) {
	tr := &fakeTransport{state: transport.StateOpen}
	attempts, err := newSender(tr).Send(context.Background(), Payload{Text: "report"})
	if err != nil {
		t.Fatalf("首次成功不应报错: %v", err)
	}
	if attempts != 1 || tr.textCalls != 1 {
		t.Fatalf("应恰好尝试 1 次, attempts=%d calls=%d", attempts, tr.textCalls)
	}
}

func TestSendRetriesThenSucceeds(t *testing.T) {
	tr := &fakeTransport{state: transport.StateOpen, failTimes: 2}
	attempts, err := newSender(tr).Send(context.Background(), Payload{Text: "report"})
	if err != nil {
		t.Fatalf("第三次成功不应报错: %v", err)
	}
	if attempts != 3 || tr.textCalls != 3 {
		t.Fatalf("应尝试 3 次, attempts=%d calls=%d", attempts, tr.textCalls)
	}
}

func TestSendWaitsConfiguredDelayBetweenAttempts(t *testing.T) {
	tr := &fakeTransport{state: transport.StateOpen, failTimes: 2}
	sender := NewSender(tr, Options{Attempts: 3, Delay: 30 * time.Millisecond}, zerolog.Nop())

	start := time.Now()
	attempts, err := sender.Send(context.Background(), Payload{Text: "report"})
	elapsed := time.Since(start)

	if err != nil || attempts != 3 {
		t.Fatalf("第三次应成功, attempts=%d err=%v", attempts, err)
	}
	// Two retries means two full inter-attempt waits.
	if elapsed < 60*time.Millisecond {
		t.Fatalf("重试间隔未生效, 总耗时仅 %v", elapsed)
	}
}

func TestSendExhaustsExactlyN(t *testing.T) {
	tr := &fakeTransport{state: transport.StateOpen, failTimes: 100}
	attempts, err := newSender(tr).Send(context.Background(), Payload{Text: "report"})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("应返回 ErrExhausted, 实际 %v", err)
	}
	// Exactly the configured bound: never more, never fewer.
	if attempts != 3 || tr.textCalls != 3 {
		t.Fatalf("应恰好尝试 3 次, attempts=%d calls=%d", attempts, tr.textCalls)
	}
}

func TestSendSkipsWhenNotReady(t *testing.T) {
	for _, state := range []transport.State{
		transport.StateDisconnected,
		transport.StateConnecting,
		transport.StateLoggedOut,
	} {
		tr := &fakeTransport{state: state}
		attempts, err := newSender(tr).Send(context.Background(), Payload{Text: "report"})
		if !errors.Is(err, ErrNotReady) {
			t.Fatalf("state=%s 应返回 ErrNotReady, 实际 %v", state, err)
		}
		if attempts != 0 || tr.textCalls != 0 || tr.photoCalls != 0 {
			t.Fatalf("state=%s 不应有任何发送尝试", state)
		}
	}
}

func TestSendPhotoPath(t *testing.T) {
	tr := &fakeTransport{state: transport.StateOpen}
	_, err := newSender(tr).Send(context.Background(), Payload{Text: "caption", PNG: []byte{1}})
	if err != nil {
		t.Fatalf("图片发送应成功: %v", err)
	}
	if tr.photoCalls != 1 || tr.textCalls != 0 {
		t.Fatalf("应走图片通道, photo=%d text=%d", tr.photoCalls, tr.textCalls)
	}
}

func TestSendHonorsContextBetweenAttempts(t *testing.T) {
	tr := &fakeTransport{state: transport.StateOpen, failTimes: 100}
	sender := NewSender(tr, Options{Attempts: 3, Delay: time.Second}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	attempts, err := sender.Send(ctx, Payload{Text: "report"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("取消后应返回 context.Canceled, 实际 %v", err)
	}
	if attempts != 1 {
		t.Fatalf("取消发生在第一次重试等待中, attempts=%d", attempts)
	}
}
