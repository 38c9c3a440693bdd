package entity

import "time"

// Job is one video-processing request owned by a user
type Job struct {
	ID                   string     `json:"id"`
	UserID               string     `json:"user_id"`
	Status               string     `json:"status"`
	ProgressStep         string     `json:"progress_step"`
	ProgressPct          int        `json:"progress_pct"`
	VideoFilename        string     `json:"video_filename"`
	VideoMime            string     `json:"video_mime"`
	VideoSizeBytes       int64      `json:"video_size_bytes"`
	VideoStorageKey      string     `json:"video_storage_key"`
	DetectedReceiptCount int        `json:"detected_receipt_count"`
	NeedsReviewCount     int        `json:"needs_review_count"`
	TotalAmountSum       int64      `json:"total_amount_sum"`
	DegradedFrameCount   int        `json:"degraded_frame_count"`
	ErrorCode            string     `json:"error_code,omitempty"`
	ErrorMessage         string     `json:"error_message,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
	StartedAt            *time.Time `json:"started_at,omitempty"`
	FinishedAt           *time.Time `json:"finished_at,omitempty"`
}

// IsTerminal reports whether the job has reached completed, failed or canceled
func (j *Job) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCanceled:
		return true
	}
	return false
}

// IsCancelable reports whether the job may still be canceled
func (j *Job) IsCancelable() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusProcessing
}

// JobProgress is the set of fields written together when a pipeline step advances
type JobProgress struct {
	Step                 string
	Pct                  int
	DetectedReceiptCount *int
}

// JobSummary holds the aggregate values derived from a job's receipts
type JobSummary struct {
	ReceiptCount     int   `json:"receipt_count"`
	NeedsReviewCount int   `json:"needs_review_count"`
	TotalAmountSum   int64 `json:"total_amount_sum"`
}

// JobFilter narrows job listings
type JobFilter struct {
	Status string
	Limit  int
	Offset int
}
