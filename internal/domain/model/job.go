package model

import "time"

// JobStatus is the lifecycle state of a queued analysis.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether the job finished.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// Job is one queued analysis request.
type Job struct {
	RunID      string
	Request    AnalysisRequest
	EnqueuedAt time.Time
}
