package jobstore

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusUploading  Status = "uploading"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusUploading,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Active reports whether s describes a job still moving through the pipeline.
func (s Status) Active() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusUploading:
		return true
	default:
		return false
	}
}

// Result captures the outcome of a completed job.
type Result struct {
	URL        string  `json:"url"`
	Duration   float64 `json:"duration,omitempty"`
	Resolution string  `json:"resolution,omitempty"`
	Format     string  `json:"format,omitempty"`
}

// JobError is the structured failure persisted on a failed job.
type JobError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobRecord is one logical unit of work tracked from admission to terminal
// status. Progress is stage-relative and resets to 0 on each stage
// transition.
type JobRecord struct {
	JobID        string            `json:"jobId"`
	Status       Status            `json:"status"`
	Progress     int               `json:"progress"`
	FileType     string            `json:"fileType,omitempty"`
	OriginalName string            `json:"originalName,omitempty"`
	FileSize     int64             `json:"fileSize,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Result       *Result           `json:"result,omitempty"`
	Error        *JobError         `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
	CompletedAt  *time.Time        `json:"completedAt,omitempty"`
	FailedAt     *time.Time        `json:"failedAt,omitempty"`
	CancelledAt  *time.Time        `json:"cancelledAt,omitempty"`
}

// SetProgress clamps value to 0-100 and never moves backwards within a stage.
func (r *JobRecord) SetProgress(value int) {
	if value < 0 {
		value = 0
	}
	if value > 100 {
		value = 100
	}
	if value > r.Progress {
		r.Progress = value
	}
}

// BeginStage moves the record into status with stage-relative progress reset.
func (r *JobRecord) BeginStage(status Status) {
	r.Status = status
	r.Progress = 0
	r.Error = nil
}
