package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskSessionSweep deletes expired session rows.
	TaskSessionSweep = "session:sweep"
	// TaskStatsInvalidate drops cached dashboards.
	TaskStatsInvalidate = "stats:invalidate"
)

// SchedulePayload carries scheduling metadata shared by periodic tasks.
type SchedulePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

func newScheduledTask(taskType string, at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SchedulePayload{ScheduledFor: at.UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault)), nil
}

// NewSessionSweepTask constructs a session sweep task.
func NewSessionSweepTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskSessionSweep, at)
}

// NewStatsInvalidateTask constructs a dashboard cache invalidation task.
func NewStatsInvalidateTask(at time.Time) (*asynq.Task, error) {
	return newScheduledTask(TaskStatsInvalidate, at)
}

func decodeSchedule(t *asynq.Task) (SchedulePayload, error) {
	var payload SchedulePayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
