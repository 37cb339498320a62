package models

import (
	"encoding/json"
	"time"
)

type RunKind string

const (
	RunKindSync    RunKind = "sync"
	RunKindCleanup RunKind = "cleanup"
)

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one recorded sync or cleanup execution. Counts holds the full
// run report as JSON so the history survives report shape changes.
type Run struct {
	ID         string          `json:"id" db:"id"`
	Kind       RunKind         `json:"kind" db:"kind"`
	StartedAt  time.Time       `json:"started_at" db:"started_at"`
	FinishedAt *time.Time      `json:"finished_at" db:"finished_at"`
	Status     RunStatus       `json:"status" db:"status"`
	Error      string          `json:"error,omitempty" db:"error"`
	Counts     json.RawMessage `json:"counts,omitempty" db:"counts"`
}
