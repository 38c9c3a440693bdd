package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/dispatcher"
	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/event"
)

// DefaultDownloadTTL is how long an export download link stays valid
const DefaultDownloadTTL = time.Hour

// ExportRequest selects the output format of an export
type ExportRequest struct {
	Format               string `json:"format"`
	CreditAccountDefault string `json:"credit_account_default"`
}

// ExportResult is returned after an export file was generated and stored
type ExportResult struct {
	ExportID    string    `json:"export_id"`
	DownloadURL string    `json:"download_url"`
	RowCount    int       `json:"row_count"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ExportService produces spreadsheet exports of a completed job
type ExportService interface {
	CreateExport(ctx context.Context, userID, jobID string, req ExportRequest) (*ExportResult, error)
	ListExports(ctx context.Context, userID, jobID string) ([]*entity.Export, error)
}

type exportServiceImpl struct {
	jobs        port.JobRepository
	receipts    port.ReceiptRepository
	exports     port.ExportRepository
	blobs       port.BlobStore
	renderer    port.ExportRenderer
	dispatcher  dispatcher.Dispatcher
	downloadTTL time.Duration
	logger      Logger
	now         func() time.Time
}

// NewExportService creates a new ExportService
func NewExportService(
	jobs port.JobRepository,
	receipts port.ReceiptRepository,
	exports port.ExportRepository,
	blobs port.BlobStore,
	renderer port.ExportRenderer,
	d dispatcher.Dispatcher,
	downloadTTL time.Duration,
	logger Logger,
) ExportService {
	if downloadTTL <= 0 {
		downloadTTL = DefaultDownloadTTL
	}
	return &exportServiceImpl{
		jobs:        jobs,
		receipts:    receipts,
		exports:     exports,
		blobs:       blobs,
		renderer:    renderer,
		dispatcher:  d,
		downloadTTL: downloadTTL,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *exportServiceImpl) CreateExport(ctx context.Context, userID, jobID string, req ExportRequest) (*ExportResult, error) {
	job, err := loadOwnedJob(ctx, s.jobs, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != entity.JobStatusCompleted {
		return nil, entity.ErrJobNotReady
	}

	format := req.Format
	if format == "" {
		format = entity.ExportFormatXLSX
	}
	if format != entity.ExportFormatXLSX && format != entity.ExportFormatCSV {
		return nil, entity.NewValidationError("INVALID_FORMAT", fmt.Sprintf("unsupported export format %q", req.Format))
	}
	creditDefault := strings.TrimSpace(req.CreditAccountDefault)
	if creditDefault == "" {
		creditDefault = entity.DefaultCreditAccount
	}

	receipts, err := s.receipts.ListByJob(ctx, jobID, entity.ReceiptFilter{})
	if err != nil {
		s.logger.Error("Failed to load receipts for export", "error", err, "job_id", jobID)
		return nil, err
	}

	generatedAt := s.now()
	content, contentType, err := s.renderer.Render(format, port.ExportDocument{
		Receipts:             receipts,
		CreditAccountDefault: creditDefault,
		GeneratedAt:          generatedAt,
	})
	if err != nil {
		s.logger.Error("Failed to render export", "error", err, "job_id", jobID, "format", format)
		return nil, fmt.Errorf("render %s: %w", format, err)
	}

	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(generatedAt.Format("2006-01-02T15:04:05.000Z"))
	key := fmt.Sprintf("%s/%s/%s.%s", userID, jobID, stamp, format)

	storageKey, err := s.blobs.Upload(ctx, entity.BucketExports, key, content, contentType)
	if err != nil {
		s.logger.Error("Failed to upload export", "error", err, "job_id", jobID)
		return nil, fmt.Errorf("upload export: %w", err)
	}

	record := &entity.Export{
		JobID:                jobID,
		UserID:               userID,
		Format:               format,
		TemplateVersion:      entity.ExportTemplateVersion,
		CreditAccountDefault: creditDefault,
		FileStorageKey:       storageKey,
		RowCount:             len(receipts),
	}
	if err := s.exports.Create(ctx, record); err != nil {
		s.logger.Error("Failed to record export", "error", err, "job_id", jobID)
		return nil, err
	}

	url, err := s.blobs.SignedURL(ctx, entity.BucketExports, key, s.downloadTTL)
	if err != nil {
		s.logger.Error("Failed to sign export URL", "error", err, "export_id", record.ID)
		return nil, fmt.Errorf("sign export url: %w", err)
	}

	s.logger.Info("Export created",
		"export_id", record.ID,
		"job_id", jobID,
		"format", format,
		"rows", record.RowCount)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeExportCreated, jobID, userID, map[string]interface{}{
			"export_id": record.ID,
			"format":    format,
			"row_count": record.RowCount,
		}))
	}

	return &ExportResult{
		ExportID:    record.ID,
		DownloadURL: url,
		RowCount:    record.RowCount,
		ExpiresAt:   generatedAt.Add(s.downloadTTL),
	}, nil
}

func (s *exportServiceImpl) ListExports(ctx context.Context, userID, jobID string) ([]*entity.Export, error) {
	if _, err := loadOwnedJob(ctx, s.jobs, userID, jobID); err != nil {
		return nil, err
	}
	return s.exports.ListByJob(ctx, jobID)
}
