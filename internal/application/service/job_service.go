package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/dispatcher"
	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/application/workflow"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Upload limits
const (
	MaxVideoSizeBytes = 200 * 1024 * 1024
	DefaultVideoMime  = "video/mp4"

	defaultListLimit = 20
	maxListLimit     = 100
)

var allowedVideoMimes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/x-msvideo": true,
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9.\-_]`)

// UploadRequest describes a video the client is about to upload
type UploadRequest struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Mime     string `json:"mime"`
}

// UploadTicket tells the client where to PUT the video
type UploadTicket struct {
	UploadURL  string    `json:"upload_url"`
	StorageKey string    `json:"storage_key"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// CreateJobInput references a video already present in the videos bucket
type CreateJobInput struct {
	StorageKey string `json:"storage_key"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
	Mime       string `json:"mime"`
}

// JobList is one page of a user's jobs
type JobList struct {
	Jobs  []*entity.Job `json:"jobs"`
	Total int           `json:"total"`
}

// JobService manages the user-facing side of jobs
type JobService interface {
	// PresignUpload validates the video and issues a signed upload URL for it
	PresignUpload(ctx context.Context, userID string, req UploadRequest) (*UploadTicket, error)

	// CreateJob inserts a queued job and returns without waiting for processing
	CreateJob(ctx context.Context, userID string, in CreateJobInput) (*entity.Job, error)

	GetJob(ctx context.Context, userID, jobID string) (*entity.Job, error)
	ListJobs(ctx context.Context, userID string, filter entity.JobFilter) (*JobList, error)

	// CancelJob moves a queued or processing job to canceled
	CancelJob(ctx context.Context, userID, jobID string) (*entity.Job, error)
}

type jobServiceImpl struct {
	jobs       port.JobRepository
	blobs      port.BlobStore
	lifecycle  workflow.Engine
	dispatcher dispatcher.Dispatcher
	uploadTTL  time.Duration
	logger     Logger
	now        func() time.Time
}

// NewJobService creates a new JobService
func NewJobService(
	jobs port.JobRepository,
	blobs port.BlobStore,
	lifecycle workflow.Engine,
	d dispatcher.Dispatcher,
	uploadTTL time.Duration,
	logger Logger,
) JobService {
	if uploadTTL <= 0 {
		uploadTTL = 15 * time.Minute
	}
	return &jobServiceImpl{
		jobs:       jobs,
		blobs:      blobs,
		lifecycle:  lifecycle,
		dispatcher: d,
		uploadTTL:  uploadTTL,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *jobServiceImpl) PresignUpload(ctx context.Context, userID string, req UploadRequest) (*UploadTicket, error) {
	if req.Filename == "" || req.Size <= 0 || req.Mime == "" {
		return nil, entity.NewValidationError("MISSING_PARAMS", "filename, size and mime are required")
	}
	if err := validateVideo(req.Size, req.Mime); err != nil {
		return nil, err
	}

	safeName := unsafeFilenameChars.ReplaceAllString(req.Filename, "_")
	key := fmt.Sprintf("%s/%d/%s", userID, s.now().UnixMilli(), safeName)

	url, err := s.blobs.SignedUploadURL(ctx, entity.BucketVideos, key, s.uploadTTL)
	if err != nil {
		s.logger.Error("Failed to presign upload", "error", err, "user_id", userID)
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	return &UploadTicket{
		UploadURL:  url,
		StorageKey: entity.BucketVideos + "/" + key,
		ExpiresAt:  s.now().Add(s.uploadTTL).UTC(),
	}, nil
}

func (s *jobServiceImpl) CreateJob(ctx context.Context, userID string, in CreateJobInput) (*entity.Job, error) {
	if in.StorageKey == "" || in.Filename == "" {
		return nil, entity.NewValidationError("MISSING_PARAMS", "storage_key and filename are required")
	}
	if in.Mime == "" {
		in.Mime = DefaultVideoMime
	}
	if err := validateVideo(in.Size, in.Mime); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(in.StorageKey, entity.BucketVideos+"/"+userID+"/") {
		return nil, entity.NewValidationError("INVALID_STORAGE_KEY", "storage_key must point to the caller's uploaded video")
	}

	job := &entity.Job{
		UserID:          userID,
		Status:          entity.JobStatusQueued,
		VideoFilename:   in.Filename,
		VideoMime:       in.Mime,
		VideoSizeBytes:  in.Size,
		VideoStorageKey: in.StorageKey,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.Error("Failed to create job", "error", err, "user_id", userID)
		return nil, err
	}

	s.logger.Info("Job queued", "job_id", job.ID, "user_id", userID, "video", in.StorageKey)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeJobQueued, job.ID, userID, map[string]interface{}{
			"video_storage_key": job.VideoStorageKey,
		}))
	}

	return job, nil
}

func (s *jobServiceImpl) GetJob(ctx context.Context, userID, jobID string) (*entity.Job, error) {
	return loadOwnedJob(ctx, s.jobs, userID, jobID)
}

func (s *jobServiceImpl) ListJobs(ctx context.Context, userID string, filter entity.JobFilter) (*JobList, error) {
	if filter.Status != "" && !isJobStatus(filter.Status) {
		return nil, entity.NewValidationError("INVALID_STATUS", fmt.Sprintf("unknown job status %q", filter.Status))
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	jobs, err := s.jobs.List(ctx, userID, filter)
	if err != nil {
		s.logger.Error("Failed to list jobs", "error", err, "user_id", userID)
		return nil, err
	}
	total, err := s.jobs.Count(ctx, userID, filter.Status)
	if err != nil {
		s.logger.Error("Failed to count jobs", "error", err, "user_id", userID)
		return nil, err
	}
	return &JobList{Jobs: jobs, Total: total}, nil
}

func (s *jobServiceImpl) CancelJob(ctx context.Context, userID, jobID string) (*entity.Job, error) {
	job, err := loadOwnedJob(ctx, s.jobs, userID, jobID)
	if err != nil {
		return nil, err
	}
	if !job.IsCancelable() {
		return nil, entity.ErrJobNotCancelable
	}

	ok, err := s.lifecycle.Cancel(ctx, job)
	if err != nil {
		s.logger.Error("Failed to cancel job", "error", err, "job_id", jobID)
		return nil, err
	}
	if !ok {
		// the job finished between the read and the conditional update
		return nil, entity.ErrJobNotCancelable
	}

	s.logger.Info("Job canceled", "job_id", jobID, "user_id", userID)
	return job, nil
}

func validateVideo(size int64, mime string) error {
	if size < 0 {
		return entity.NewValidationError("INVALID_SIZE", "size must not be negative")
	}
	if size > MaxVideoSizeBytes {
		return entity.NewValidationError("VIDEO_TOO_LARGE", "video must be 200MB or smaller")
	}
	if !allowedVideoMimes[mime] {
		return entity.NewValidationError("UNSUPPORTED_FORMAT", "only MP4, MOV and AVI videos are supported")
	}
	return nil
}

func isJobStatus(s string) bool {
	switch s {
	case entity.JobStatusQueued, entity.JobStatusProcessing, entity.JobStatusCompleted,
		entity.JobStatusFailed, entity.JobStatusCanceled:
		return true
	}
	return false
}

// loadOwnedJob returns ErrNotFound for a missing job and ErrForbidden for another user's job
func loadOwnedJob(ctx context.Context, jobs port.JobRepository, userID, jobID string) (*entity.Job, error) {
	job, err := jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, entity.ErrNotFound
	}
	if job.UserID != userID {
		return nil, entity.ErrForbidden
	}
	return job, nil
}
