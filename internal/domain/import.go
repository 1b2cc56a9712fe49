package domain

import "time"

type ImportState string

const (
	ImportIdle      ImportState = "idle"
	ImportRunning   ImportState = "running"
	ImportSucceeded ImportState = "succeeded"
	ImportFailed    ImportState = "failed"
)

// ImportStatus describes the most recent CSV import.
type ImportStatus struct {
	State      ImportState `json:"state"`
	Source     string      `json:"source,omitempty"`
	StartedAt  *time.Time  `json:"startedAt,omitempty"`
	FinishedAt *time.Time  `json:"finishedAt,omitempty"`
	Rows       int64       `json:"rows"`
	Inserted   int64       `json:"inserted"`
	Skipped    int64       `json:"skipped"`
	Error      string      `json:"error,omitempty"`
}
