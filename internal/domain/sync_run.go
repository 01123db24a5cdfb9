package domain

import "time"

const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

type SyncRun struct {
	ID              string    `json:"id"`
	Collection      string    `json:"collection"`
	Variant         string    `json:"variant"`
	Status          string    `json:"status"`
	FailedPhase     string    `json:"failedPhase,omitempty"`
	Error           string    `json:"error,omitempty"`
	Created         int       `json:"created"`
	Updated         int       `json:"updated"`
	Unchanged       int       `json:"unchanged"`
	Skipped         int       `json:"skipped"`
	Stale           int       `json:"stale"`
	Deactivated     int       `json:"deactivated"`
	CleanupFailures int       `json:"cleanupFailures"`
	StartedAt       time.Time `json:"startedAt"`
	FinishedAt      time.Time `json:"finishedAt"`
}
