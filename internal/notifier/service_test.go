package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wovbot/internal/eventbus"
	kit "wovbot/internal/transport"
	logx "wovbot/pkg/logx"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []string
	failures int // fail this many calls first
	calls    int
	block    chan struct{}
}

func (f *fakeSender) SendText(ctx context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return kit.MessageRef{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return kit.MessageRef{}, errors.New("telegram: 502")
	}
	f.sent = append(f.sent, text)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) snapshot() ([]string, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...), f.calls
}

func fastConfig() Config {
	return Config{
		Enabled:       true,
		Workers:       1,
		QueueSize:     4,
		RatePerSec:    1000,
		RetryMax:      2,
		RetryBase:     time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNotifyDelivers(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	svc := New(fastConfig(), snd, logx.Nop(), bus)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if err := svc.Notify(context.Background(), kit.Notification{Target: kit.ChatTarget{ChatID: 7}, Text: "hello"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { sent, _ := snd.snapshot(); return len(sent) == 1 })

	ev := <-events
	if ev.Type != eventbus.NotifierSent {
		t.Fatalf("event = %s", ev.Type)
	}
	if hist := svc.Snapshot(); len(hist) != 1 || hist[0].Attempts != 1 || hist[0].ChatID != 7 {
		t.Fatalf("history = %+v", hist)
	}
}

func TestNotifyRetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{failures: 2}
	svc := New(fastConfig(), snd, logx.Nop(), nil)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	if err := svc.Notify(context.Background(), kit.Notification{Text: "retry me"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	waitFor(t, func() bool { sent, _ := snd.snapshot(); return len(sent) == 1 })
	if _, calls := snd.snapshot(); calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestNotifyGivesUpAfterRetryMax(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{failures: 100}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()
	svc := New(fastConfig(), snd, logx.Nop(), bus)
	svc.Start(context.Background())
	defer svc.Stop(context.Background())

	_ = svc.Notify(context.Background(), kit.Notification{Text: "doomed"})
	select {
	case ev := <-events:
		if ev.Type != eventbus.NotifierFailed {
			t.Fatalf("event = %s", ev.Type)
		}
		if data := ev.Data.(NotificationEvent); data.Attempts != 3 || data.Error == "" {
			t.Fatalf("event data = %+v", data)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no failure event")
	}
	if _, calls := snd.snapshot(); calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestNotifyQueueFull(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{block: make(chan struct{})}
	cfg := fastConfig()
	cfg.QueueSize = 1
	svc := New(cfg, snd, logx.Nop(), nil)
	svc.Start(context.Background())

	n := kit.Notification{Text: "x"}
	var full bool
	for i := 0; i < 10; i++ {
		if err := svc.Notify(context.Background(), n); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("expected ErrQueueFull with a blocked worker")
	}
	close(snd.block)
	svc.Stop(context.Background())
}

func TestNotifyStates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	disabled := New(Config{Enabled: false}, &fakeSender{}, logx.Nop(), nil)
	disabled.Start(ctx)
	if err := disabled.Notify(ctx, kit.Notification{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("disabled: err = %v", err)
	}

	notStarted := New(fastConfig(), &fakeSender{}, logx.Nop(), nil)
	if err := notStarted.Notify(ctx, kit.Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("not started: err = %v", err)
	}

	svc := New(fastConfig(), &fakeSender{}, logx.Nop(), nil)
	svc.Start(ctx)
	if err := svc.Notify(ctx, kit.Notification{Text: "  "}); err == nil {
		t.Fatal("empty text should be rejected")
	}
	svc.Stop(ctx)
	if err := svc.Notify(ctx, kit.Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("stopped: err = %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := svc.Notify(cancelled, kit.Notification{Text: "x"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled: err = %v", err)
	}
}

func TestStopDrainsQueue(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	cfg := fastConfig()
	cfg.QueueSize = 16
	svc := New(cfg, snd, logx.Nop(), nil)
	svc.Start(context.Background())
	for i := 0; i < 5; i++ {
		if err := svc.Notify(context.Background(), kit.Notification{Text: "m"}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	svc.Stop(ctx)
	if sent, _ := snd.snapshot(); len(sent) != 5 {
		t.Fatalf("sent = %d, want 5", len(sent))
	}

	// Restart after a clean stop works.
	svc.Start(context.Background())
	defer svc.Stop(context.Background())
	if err := svc.Notify(context.Background(), kit.Notification{Text: "again"}); err != nil {
		t.Fatalf("Notify after restart: %v", err)
	}
}

func TestRetryDelayBounds(t *testing.T) {
	t.Parallel()
	cfg := Config{RetryBase: 100 * time.Millisecond, RetryMaxDelay: time.Second}
	for attempt := 1; attempt <= 10; attempt++ {
		d := retryDelay(cfg, attempt)
		if d <= 0 || d > cfg.RetryMaxDelay {
			t.Fatalf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
	if d := retryDelay(cfg, 1); d < 70*time.Millisecond || d > 130*time.Millisecond {
		t.Fatalf("first delay %v not within jitter", d)
	}
}
