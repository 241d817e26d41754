package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wovbot/internal/config"
	kit "wovbot/internal/transport"
)

type fakeAdapter struct {
	out     chan<- kit.Update
	replies chan string
}

func (f *fakeAdapter) Start(_ context.Context, out chan<- kit.Update) error {
	f.out = out
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	select {
	case f.replies <- text:
	default:
	}
	return kit.MessageRef{ChatID: to.ChatID}, nil
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	body := fmt.Sprintf(`{
  "telegram": {"token": "123:abc", "owner_user_ids": [42], "group_log": "-1001"},
  "logging": {"level": "error", "console": true},
  "scheduler": {"enabled": true, "tick_interval": "1s", "timezone": "UTC"},
  "storage": {"driver": "sqlite", "path": %q}
}`, filepath.Join(dir, "jobs.db"))
	p := filepath.Join(dir, "config.json")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func startApp(t *testing.T, cfgPath string) (*App, *fakeAdapter) {
	t.Helper()
	ad := &fakeAdapter{replies: make(chan string, 16)}
	a, err := NewApp(cfgPath, WithAdapter(ad))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return a, ad
}

// waitReply skips other traffic (the startup announcement) until a reply
// containing want arrives.
func waitReply(t *testing.T, ad *fakeAdapter, want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case r := <-ad.replies:
			if strings.Contains(r, want) {
				return
			}
		case <-deadline:
			t.Fatalf("no reply containing %q", want)
		}
	}
}

func TestJobsSurviveRestart(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())

	a, ad := startApp(t, cfgPath)
	ad.out <- kit.Update{Message: &kit.Message{ChatID: 5, FromID: 42, Text: `/addjob notify 1h {"text":"hourly"}`}}
	waitReply(t, ad, "added")
	jobs := a.Scheduler().Jobs()
	if len(jobs) != 1 {
		t.Fatalf("jobs = %d", len(jobs))
	}
	id := jobs[0].Definition.ID

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopAppStop); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	b, _ := startApp(t, cfgPath)
	defer func() { _ = b.Stop(ctx, StopAppStop) }()
	reloaded := b.Scheduler().Jobs()
	if len(reloaded) != 1 || reloaded[0].Definition.ID != id {
		t.Fatalf("reloaded = %+v", reloaded)
	}
	if got := string(reloaded[0].Definition.Args); !strings.Contains(got, "hourly") {
		t.Fatalf("args = %s", got)
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(p, []byte(`{"telegram":{"token":""},"scheduler":{"timezone":"Nowhere/City"}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := NewApp(p, WithAdapter(&fakeAdapter{}))
	if err == nil || !strings.Contains(err.Error(), "telegram.token") || !strings.Contains(err.Error(), "scheduler.timezone") {
		t.Fatalf("err = %v", err)
	}
}

func TestConfigMapping(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Telegram: config.TelegramConfig{GroupLog: " -100123 "},
		Logging:  config.LoggingConfig{Telegram: config.LoggingTelegram{ThreadID: 9}},
	}

	if got := mapLogTarget(cfg); got != (kit.ChatTarget{ChatID: -100123, ThreadID: 9}) {
		t.Fatalf("log target = %+v", got)
	}
	cfg.Telegram.GroupLog = "@channel"
	if got := mapLogTarget(cfg); got != (kit.ChatTarget{}) {
		t.Fatalf("malformed group should give zero target, got %+v", got)
	}

	sc, err := mapSchedulerConfig(cfg)
	if err != nil || sc.TickInterval != time.Minute {
		t.Fatalf("scheduler = %+v, %v", sc, err)
	}

	st, err := mapStorageConfig(cfg)
	if err != nil || st.Driver != "memory" {
		t.Fatalf("storage = %+v, %v", st, err)
	}
	cfg.Storage = &config.StorageConfig{Driver: " SQLite ", Path: "x.db", BusyTimeout: "2s"}
	st, err = mapStorageConfig(cfg)
	if err != nil || st.Driver != "sqlite" || st.BusyTimeout != 2*time.Second {
		t.Fatalf("storage = %+v, %v", st, err)
	}

	nc, err := mapNotifierConfig(cfg)
	if err != nil || !nc.Enabled || nc.RetryBase != 500*time.Millisecond || nc.RetryMaxDelay != 10*time.Second {
		t.Fatalf("default notifier = %+v, %v", nc, err)
	}
	cfg.Notifier = &config.NotifierConfig{Enabled: false, RetryBase: "1s"}
	nc, err = mapNotifierConfig(cfg)
	if err != nil || nc.Enabled || nc.RetryBase != time.Second {
		t.Fatalf("notifier = %+v, %v", nc, err)
	}
	cfg.Notifier.RetryBase = "often"
	if _, err := mapNotifierConfig(cfg); err == nil {
		t.Fatal("expected duration error")
	}

	if sd := mapSystemdConfig(cfg); sd.Notify || sd.Watchdog {
		t.Fatalf("systemd = %+v", sd)
	}
}
