package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"wovbot/internal/eventbus"
	logx "wovbot/pkg/logx"
)

func TestSubmitDoesNotBlockOnHandler(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	release := make(chan struct{})
	started := make(chan struct{})

	begin := time.Now()
	if err := s.Submit(Task{ID: "1", Name: "slow", Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if time.Since(begin) > time.Second {
		t.Fatal("Submit blocked on handler")
	}
	<-started
	if got := s.Snapshot().InFlight; got != 1 {
		t.Fatalf("InFlight = %d, want 1", got)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Close()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	snap := s.Snapshot()
	if snap.InFlight != 0 || snap.Succeeded != 1 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestFailuresAndPanicsAreRecorded(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	s := New(Config{HistorySize: 1}, logx.Nop(), bus)
	_ = s.Submit(Task{ID: "a", Name: "err", Run: func(ctx context.Context) error { return errors.New("bad") }})
	_ = s.Submit(Task{ID: "b", Name: "panic", Run: func(ctx context.Context) error { panic("boom") }})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Close()
	if err := s.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	snap := s.Snapshot()
	if snap.Failed != 2 {
		t.Fatalf("Failed = %d, want 2", snap.Failed)
	}
	if len(snap.History) != 1 {
		t.Fatalf("history len = %d, want 1 (bounded)", len(snap.History))
	}
	for i := 0; i < 2; i++ {
		e := <-events
		if e.Type != eventbus.TaskDone {
			t.Fatalf("event type = %q", e.Type)
		}
		if te, ok := e.Data.(TaskEvent); !ok || te.Error == "" {
			t.Fatalf("event data = %#v", e.Data)
		}
	}
}

func TestSubmitAfterClose(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	s.Close()
	err := s.Submit(Task{Name: "late", Run: func(ctx context.Context) error { return nil }})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Submit after Close = %v, want ErrStopped", err)
	}
}
