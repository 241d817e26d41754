package scheduler

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobDefinition is the durable record of one scheduled job instance.
// Several definitions may share a Name with different args or schedules.
type JobDefinition struct {
	ID        uuid.UUID       `json:"id"`
	Name      string          `json:"name"`
	Schedule  Schedule        `json:"schedule"`
	CreatedAt time.Time       `json:"created_at"`
	Args      json.RawMessage `json:"args"`
}

// ScheduledJob is a live schedule entry. NextRun is always set; an entry
// without a next run is removed instead.
type ScheduledJob struct {
	Definition JobDefinition
	LastRun    *time.Time
	NextRun    time.Time
}

func (j *ScheduledJob) clone() ScheduledJob {
	cp := *j
	if j.LastRun != nil {
		t := *j.LastRun
		cp.LastRun = &t
	}
	cp.Definition.Args = append(json.RawMessage(nil), j.Definition.Args...)
	return cp
}

// normalizeArgs maps empty input to JSON null and rejects invalid JSON.
func normalizeArgs(args json.RawMessage) (json.RawMessage, bool) {
	if len(args) == 0 {
		return json.RawMessage("null"), true
	}
	if !json.Valid(args) {
		return nil, false
	}
	return append(json.RawMessage(nil), args...), true
}
