package models

import "time"

// TableReport summarizes one table's stage-to-production promotion
type TableReport struct {
	Table      string        `json:"table"`
	Strategy   string        `json:"strategy"`
	StagedRows int64         `json:"staged_rows"`
	Written    int64         `json:"written"`
	Deleted    int64         `json:"deleted"`
	Duration   time.Duration `json:"duration"`
}

// RefreshReport records which refresh path a materialized view took
type RefreshReport struct {
	View     string        `json:"view"`
	Mode     string        `json:"mode"` // "concurrent" or "blocking"
	Duration time.Duration `json:"duration"`
}

// RunReport summarizes a full synchronization run.
// Published to Redis for the dashboard after every run.
type RunReport struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Tables     []TableReport   `json:"tables"`
	Refreshes  []RefreshReport `json:"refreshes"`
	Succeeded  bool            `json:"succeeded"`
	Error      string          `json:"error,omitempty"`
}

// TotalWritten returns the number of rows written across all tables
func (r *RunReport) TotalWritten() int64 {
	var n int64
	for _, t := range r.Tables {
		n += t.Written
	}
	return n
}
