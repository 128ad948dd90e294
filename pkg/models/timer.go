package models

import "time"

// TimerStatus is the status of a persisted timer.
type TimerStatus string

const (
	TimerStatusWaiting   TimerStatus = "waiting"
	TimerStatusFired     TimerStatus = "fired"
	TimerStatusCancelled TimerStatus = "cancelled"
)

const TimerTypeDelay = "delay"

// Timer is the fire-time record created by a delay node when it suspends a run.
type Timer struct {
	ID          string      `json:"id"`
	ExecutionID string      `json:"execution_id"`
	NodeID      string      `json:"node_id"`
	TimerType   string      `json:"timer_type"`
	FireAt      time.Time   `json:"fire_at"`
	Status      TimerStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	FiredAt     *time.Time  `json:"fired_at,omitempty"`
}

// IsDue reports whether the timer is waiting and its fire time has elapsed at now.
func (t *Timer) IsDue(now time.Time) bool {
	return t.Status == TimerStatusWaiting && !t.FireAt.After(now)
}
