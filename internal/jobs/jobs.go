// Package jobs holds the handlers compiled into the bot. They are
// registered by name at startup; stored job definitions refer to them.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"wovbot/internal/task/scheduler"
	kit "wovbot/internal/transport"
	logx "wovbot/pkg/logx"
)

const (
	Ping   = "ping"
	Notify = "notify"
)

// Notifier is the async delivery path used by the notify job.
type Notifier interface {
	Notify(ctx context.Context, n kit.Notification) error
}

// Deps are the collaborators the built-in jobs need.
type Deps struct {
	Log      logx.Logger
	Notifier Notifier
	// DefaultTarget receives notify jobs that do not name a chat (the log group).
	DefaultTarget kit.ChatTarget
}

// NotifyArgs are the args of the notify job.
type NotifyArgs struct {
	ChatID   int64  `json:"chat_id,omitempty"`
	ThreadID int    `json:"thread_id,omitempty"`
	Text     string `json:"text"`
}

// Register installs the built-in jobs.
func Register(reg *scheduler.Registry, deps Deps) error {
	if deps.Log.IsZero() {
		deps.Log = logx.Nop()
	}
	if err := reg.Register(Ping, NewPing(deps.Log)); err != nil {
		return err
	}
	return reg.Register(Notify, NewNotify(deps))
}

// PingJob logs a heartbeat on every run.
type PingJob struct {
	log  logx.Logger
	runs atomic.Uint64
}

func NewPing(log logx.Logger) *PingJob { return &PingJob{log: log} }

func (p *PingJob) Run(context.Context, json.RawMessage) error {
	n := p.runs.Add(1)
	p.log.Info("pong", logx.String("job", Ping), logx.Uint64("runs", n), logx.Time("at", time.Now()))
	return nil
}

// Runs reports how many times the job ran since startup.
func (p *PingJob) Runs() uint64 { return p.runs.Load() }

// NotifyJob sends a chat message through the notifier.
type NotifyJob struct {
	log      logx.Logger
	notifier Notifier
	fallback kit.ChatTarget
}

func NewNotify(deps Deps) *NotifyJob {
	return &NotifyJob{log: deps.Log, notifier: deps.Notifier, fallback: deps.DefaultTarget}
}

var errNoTarget = errors.New("notify: no chat_id and no default chat configured")

func (j *NotifyJob) Run(ctx context.Context, raw json.RawMessage) error {
	args, err := scheduler.DecodeArgs[NotifyArgs](raw)
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	text := strings.TrimSpace(args.Text)
	if text == "" {
		return errors.New("notify: text is required")
	}
	target := kit.ChatTarget{ChatID: args.ChatID, ThreadID: args.ThreadID}
	if target.ChatID == 0 {
		target = j.fallback
	}
	if target.ChatID == 0 {
		return errNoTarget
	}
	if j.notifier == nil {
		return errors.New("notify: notifier not configured")
	}
	if err := j.notifier.Notify(ctx, kit.Notification{
		Target:  target,
		Text:    text,
		Options: &kit.SendOptions{DisablePreview: true},
	}); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	j.log.Debug("notification queued", logx.String("job", Notify), logx.Int64("chat_id", target.ChatID), logx.Int("thread_id", target.ThreadID))
	return nil
}
