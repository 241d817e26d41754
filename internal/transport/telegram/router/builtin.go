package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"wovbot/internal/task/scheduler"
)

// SchedulerPort is the part of the scheduler the chat commands drive.
type SchedulerPort interface {
	Snapshot() scheduler.Snapshot
	AddJob(ctx context.Context, name string, sched scheduler.Schedule, args json.RawMessage) (scheduler.JobDefinition, error)
	RemoveJob(ctx context.Context, id uuid.UUID) error
}

// BuiltinCommands returns the bot's own commands. Job management commands
// are only included when sched is non-nil.
func BuiltinCommands(sched SchedulerPort, now func() time.Time) []Command {
	if now == nil {
		now = time.Now
	}
	cmds := []Command{{
		Name:        "ping",
		Description: "check that the bot is alive",
		Usage:       "/ping",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, fmt.Sprintf("🏓 pong <code>%s</code>", time.Since(req.Received).Round(time.Microsecond)))
		},
	}}
	if sched == nil {
		return cmds
	}

	jc := jobCommands{sched: sched, now: now}
	return append(cmds,
		Command{
			Name:        "jobs",
			Description: "list scheduled jobs",
			Usage:       "/jobs",
			Handle:      jc.list,
		},
		Command{
			Name:        "jobnames",
			Description: "list job names that can be scheduled",
			Usage:       "/jobnames",
			Handle:      jc.names,
		},
		Command{
			Name:        "addjob",
			Description: "schedule a registered job",
			Usage: "/addjob <name> <schedule> [json-args]\n" +
				"/addjob ping 5m\n" +
				"/addjob ping \"*/10 * * * *\"\n" +
				"/addjob notify in:30m {\"text\":\"stand up\"}\n" +
				"/addjob notify \"at:2026-12-31 23:59\" {\"chat_id\":-100123,\"text\":\"🎆\"}",
			Access: AccessOwnerOnly,
			Handle: jc.add,
		},
		Command{
			Name:        "rmjob",
			Aliases:     []string{"deljob"},
			Description: "remove a scheduled job",
			Usage:       "/rmjob <id>",
			Access:      AccessOwnerOnly,
			Handle:      jc.remove,
		},
	)
}

type jobCommands struct {
	sched SchedulerPort
	now   func() time.Time
}

func (j jobCommands) list(ctx context.Context, req *Request) error {
	snap := j.sched.Snapshot()
	if len(snap.Jobs) == 0 {
		return req.Reply(ctx, "no scheduled jobs")
	}
	lines := []string{fmt.Sprintf("🗓 <b>Jobs</b> (%d, tz %s)", len(snap.Jobs), escape(snap.Timezone))}
	for _, job := range snap.Jobs {
		d := job.Definition
		lines = append(lines, "",
			"<b>"+escape(d.Name)+"</b> <code>"+d.ID.String()+"</code>",
			"schedule: <code>"+escape(d.Schedule.String())+"</code>",
			"next: "+job.NextRun.Format(time.DateTime),
		)
		if job.LastRun != nil {
			lines = append(lines, "last: "+job.LastRun.Format(time.DateTime))
		}
		if args := string(d.Args); args != "" && args != "null" {
			lines = append(lines, "args: <code>"+escape(args)+"</code>")
		}
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

func (j jobCommands) names(ctx context.Context, req *Request) error {
	names := j.sched.Snapshot().Registered
	if len(names) == 0 {
		return req.Reply(ctx, "no jobs registered")
	}
	lines := make([]string, 0, len(names)+1)
	lines = append(lines, "<b>Registered jobs</b>")
	for _, n := range names {
		lines = append(lines, "• <code>"+escape(n)+"</code>")
	}
	return req.Reply(ctx, strings.Join(lines, "\n"))
}

const quoteHint = "quote schedules that contain spaces, e.g. <code>\"@every 5m\"</code>"

func (j jobCommands) add(ctx context.Context, req *Request) error {
	toks, argsJSON := cutTokens(req.RawArgs, 2)
	if len(toks) != 2 {
		return req.Reply(ctx, "usage: <code>/addjob &lt;name&gt; &lt;schedule&gt; [json-args]</code>")
	}

	sched, err := scheduler.ParseSchedule(toks[1], j.now())
	if err != nil {
		msg := "invalid schedule: " + escape(err.Error())
		if argsJSON != "" {
			msg += "\n" + quoteHint
		}
		return req.Reply(ctx, msg)
	}
	var args json.RawMessage
	if argsJSON != "" {
		if !json.Valid([]byte(argsJSON)) {
			return req.Reply(ctx, "args must be valid JSON, e.g. <code>{\"text\":\"hi\"}</code> or <code>\"hi\"</code>\n"+quoteHint)
		}
		args = json.RawMessage(argsJSON)
	}

	def, err := j.sched.AddJob(ctx, toks[0], sched, args)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		return req.Reply(ctx, "unknown job <code>"+escape(toks[0])+"</code>, see /jobnames")
	case errors.Is(err, scheduler.ErrInvalidSchedule), errors.Is(err, scheduler.ErrInvalidArgs):
		return req.Reply(ctx, escape(err.Error()))
	case err != nil:
		return err
	}

	msg := fmt.Sprintf("✅ added <b>%s</b>\nid: <code>%s</code>\nschedule: <code>%s</code>",
		escape(def.Name), def.ID, escape(def.Schedule.String()))
	if next, ok := def.Schedule.NextRun(j.now()); ok {
		msg += "\nnext: " + next.Format(time.DateTime)
	} else {
		msg += "\n⚠️ this schedule will never fire"
	}
	return req.Reply(ctx, msg)
}

func (j jobCommands) remove(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, "usage: <code>/rmjob &lt;id&gt;</code>")
	}
	id, err := uuid.Parse(req.Args[0])
	if err != nil {
		return req.Reply(ctx, "invalid job id")
	}
	err = j.sched.RemoveJob(ctx, id)
	switch {
	case errors.Is(err, scheduler.ErrNotFound):
		return req.Reply(ctx, "job not scheduled (removed from storage if it was there)")
	case err != nil:
		return err
	}
	return req.Reply(ctx, "🗑 removed <code>"+id.String()+"</code>")
}
