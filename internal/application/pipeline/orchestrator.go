package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/application/workflow"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	domainwf "github.com/garyjia/receipt-scan/internal/domain/workflow"
	"go.uber.org/zap"
)

// RuleMatcher is the slice of the rule engine the pipeline needs
type RuleMatcher interface {
	Lookup(ctx context.Context, userID, storeName string) (*entity.Rule, error)
	RecordHit(ctx context.Context, rule *entity.Rule) error
}

// Config holds orchestrator settings
type Config struct {
	CreditAccount string
	ImageBucket   string
}

// Deps groups the collaborators of the orchestrator
type Deps struct {
	Jobs       port.JobRepository
	Receipts   port.ReceiptRepository
	Blobs      port.BlobStore
	Workspace  port.Workspace
	Sampler    port.FrameSampler
	Detector   *DetectionStage
	Extractor  *ExtractionStage
	Classifier *ClassificationStage
	Rules      RuleMatcher
	Aggregator *Aggregator
	Lifecycle  workflow.Engine
	Logger     *zap.Logger
}

// Orchestrator runs one claimed job from video to classified receipts
type Orchestrator struct {
	Deps
	cfg Config
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	if cfg.CreditAccount == "" {
		cfg.CreditAccount = entity.DefaultCreditAccount
	}
	if cfg.ImageBucket == "" {
		cfg.ImageBucket = entity.BucketReceiptImages
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{Deps: deps, cfg: cfg}
}

// Run processes a job that is already in the processing state.
// Fatal errors and panics move the job to failed. A job canceled mid-run
// stops at the next frame boundary and keeps its canceled status.
func (o *Orchestrator) Run(ctx context.Context, job *entity.Job) (err error) {
	logger := o.Logger.With(zap.String("job_id", job.ID), zap.String("user_id", job.UserID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fatal(entity.ErrorCodePipeline, fmt.Errorf("panic: %v", r))
		}
		if err != nil {
			o.finishWithError(ctx, logger, job, err)
		}
	}()

	dir, release, err := o.Workspace.Acquire(ctx, job.ID)
	if err != nil {
		return fatal(entity.ErrorCodePipeline, err)
	}
	defer release()

	logger.Info("Pipeline started")

	// Step 1: download the source video
	if err := o.advance(ctx, job, domainwf.StepFrameExtract, nil); err != nil {
		return err
	}
	videoPath, err := o.downloadVideo(ctx, job, dir)
	if err != nil {
		return fatal(entity.ErrorCodeVideoDownload, err)
	}

	// Step 2: sample frames
	frames, err := o.Sampler.ExtractFrames(ctx, videoPath, filepath.Join(dir, "frames"))
	if err != nil {
		return fatal(entity.ErrorCodeFrameExtraction, err)
	}
	logger.Info("Frames extracted", zap.Int("frames", len(frames)))
	if err := o.advance(ctx, job, domainwf.StepDetect, nil); err != nil {
		return err
	}

	// Step 3: detection over every frame, in order
	var accepted []string
	for _, frame := range frames {
		if err := o.heartbeat(ctx, job); err != nil {
			return err
		}
		image, err := os.ReadFile(frame)
		if err != nil {
			return fatal(entity.ErrorCodePipeline, fmt.Errorf("failed to read frame: %w", err))
		}
		if o.Detector.Detect(ctx, image).Accepted() {
			accepted = append(accepted, frame)
		}
	}
	detected := len(accepted)
	job.DetectedReceiptCount = detected
	logger.Info("Receipts detected", zap.Int("accepted", detected), zap.Int("frames", len(frames)))
	if err := o.advance(ctx, job, domainwf.StepOCR, &detected); err != nil {
		return err
	}

	// Step 4: extraction, classification and persistence per accepted frame
	degraded := 0
	for i, frame := range accepted {
		if err := o.heartbeat(ctx, job); err != nil {
			return err
		}
		if err := o.ingest(ctx, logger, job, i+1, frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			var fe *FatalError
			if errors.As(err, &fe) {
				return err
			}
			degraded++
			if errors.Is(err, errImageNotStored) {
				logger.Warn("Receipt saved without image",
					zap.Int("receipt_index", i+1),
					zap.Error(err))
			} else {
				logger.Error("Receipt ingest failed, continuing",
					zap.Int("receipt_index", i+1),
					zap.Error(err))
			}
			if incErr := o.Jobs.IncrementDegraded(ctx, job.ID); incErr != nil {
				logger.Error("Failed to record degraded frame", zap.Error(incErr))
			}
		}
	}

	// Step 5: final aggregates and completion
	summary, err := o.Aggregator.Recompute(ctx, job.ID)
	if err != nil {
		return fatal(entity.ErrorCodePipeline, err)
	}
	job.NeedsReviewCount = summary.NeedsReviewCount
	job.TotalAmountSum = summary.TotalAmountSum
	job.DegradedFrameCount = degraded

	if err := o.advance(ctx, job, domainwf.StepClassify, &detected); err != nil {
		return err
	}
	if err := o.advance(ctx, job, domainwf.StepExportReady, nil); err != nil {
		return err
	}

	var code, message string
	if degraded > 0 {
		code = entity.ErrorCodePartialIngest
		message = fmt.Sprintf("%d of %d receipts were not fully saved", degraded, detected)
	}
	ok, err := o.Lifecycle.Complete(ctx, job, code, message)
	if err != nil {
		return fatal(entity.ErrorCodePipeline, err)
	}
	if !ok {
		logger.Info("Job left processing before completion, result not recorded")
		return nil
	}

	logger.Info("Pipeline completed",
		zap.Int("receipts", summary.ReceiptCount),
		zap.Int("needs_review", summary.NeedsReviewCount),
		zap.Int64("total_amount", summary.TotalAmountSum),
		zap.Int("degraded", degraded))
	return nil
}

// errImageNotStored marks a receipt persisted without its frame image
var errImageNotStored = errors.New("receipt image not stored")

// ingest turns one accepted frame into a persisted receipt. A failed image
// upload still persists the receipt and then reports errImageNotStored.
func (o *Orchestrator) ingest(ctx context.Context, logger *zap.Logger, job *entity.Job, index int, frame string) error {
	image, err := os.ReadFile(frame)
	if err != nil {
		return fmt.Errorf("failed to read frame: %w", err)
	}

	result := o.Extractor.Extract(ctx, image)

	account, taxCategory := o.classify(ctx, logger, job.UserID, result)

	key := fmt.Sprintf("%s/%s/%d.jpg", job.UserID, job.ID, index)
	storageKey, uploadErr := o.Blobs.Upload(ctx, o.cfg.ImageBucket, key, image, "image/jpeg")
	if uploadErr != nil {
		storageKey = ""
	}

	receipt := BuildReceipt(ReceiptDraft{
		JobID:           job.ID,
		UserID:          job.UserID,
		Index:           index,
		ImageStorageKey: storageKey,
		OCR:             result,
		Account:         account,
		TaxCategory:     taxCategory,
		CreditAccount:   o.cfg.CreditAccount,
	})

	if err := o.Receipts.Create(ctx, receipt); err != nil {
		return err
	}

	if _, err := o.Aggregator.Recompute(ctx, job.ID); err != nil {
		logger.Warn("Summary refresh after receipt create failed", zap.Error(err))
	}
	if uploadErr != nil {
		return fmt.Errorf("%w: %v", errImageNotStored, uploadErr)
	}
	return nil
}

// classify prefers a learned rule for the store and falls back to the model
func (o *Orchestrator) classify(ctx context.Context, logger *zap.Logger, userID string, result OCRResult) (Classification, string) {
	if result.StoreName != nil && o.Rules != nil {
		rule, err := o.Rules.Lookup(ctx, userID, *result.StoreName)
		if err != nil {
			logger.Warn("Rule lookup failed, using classifier", zap.Error(err))
		}
		if rule != nil {
			if err := o.Rules.RecordHit(ctx, rule); err != nil {
				logger.Warn("Failed to record rule hit", zap.String("rule_id", rule.ID), zap.Error(err))
			}
			tax := ""
			if rule.TaxCategory != nil {
				tax = *rule.TaxCategory
			}
			return Classification{
				DebitAccount: rule.DebitAccount,
				Confidence:   RuleConfidence,
				Reason:       "rule",
			}, tax
		}
	}

	return o.Classifier.Classify(ctx, port.ClassificationInput{
		StoreName:   result.StoreName,
		TotalAmount: result.TotalAmount,
		TaxHint:     result.TaxHint,
		TextPrefix:  result.RawText,
	}), ""
}

func (o *Orchestrator) downloadVideo(ctx context.Context, job *entity.Job, dir string) (string, error) {
	bucket, key, ok := strings.Cut(job.VideoStorageKey, "/")
	if !ok || bucket == "" || key == "" {
		return "", fmt.Errorf("malformed video storage key %q", job.VideoStorageKey)
	}

	data, err := o.Blobs.Download(ctx, bucket, key)
	if err != nil {
		return "", err
	}

	ext := filepath.Ext(key)
	if ext == "" {
		ext = ".mp4"
	}
	path := filepath.Join(dir, "input"+ext)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write video: %w", err)
	}
	return path, nil
}

// advance persists a step change. A refused write means the job is no
// longer processing, which stops the run.
func (o *Orchestrator) advance(ctx context.Context, job *entity.Job, step domainwf.Step, detected *int) error {
	ok, err := o.Jobs.UpdateProgress(ctx, job.ID, entity.JobProgress{
		Step:                 step.String(),
		Pct:                  step.Pct(),
		DetectedReceiptCount: detected,
	})
	if err != nil {
		return fatal(entity.ErrorCodePipeline, err)
	}
	if !ok {
		return o.checkActive(ctx, job)
	}
	job.ProgressStep = step.String()
	job.ProgressPct = step.Pct()
	return nil
}

// checkActive returns ErrJobStopped once the stored job left processing
func (o *Orchestrator) checkActive(ctx context.Context, job *entity.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current, err := o.Jobs.GetByID(ctx, job.ID)
	if err != nil {
		return fatal(entity.ErrorCodePipeline, err)
	}
	if current == nil || current.Status != entity.JobStatusProcessing {
		return ErrJobStopped
	}
	return nil
}

// heartbeat refreshes updated_at at a frame boundary so a long detection
// or extraction loop is not mistaken for a stalled job. It returns
// ErrJobStopped once the job left processing.
func (o *Orchestrator) heartbeat(ctx context.Context, job *entity.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ok, err := o.Jobs.Touch(ctx, job.ID)
	if err != nil {
		return fatal(entity.ErrorCodePipeline, err)
	}
	if !ok {
		return ErrJobStopped
	}
	return nil
}

func (o *Orchestrator) finishWithError(ctx context.Context, logger *zap.Logger, job *entity.Job, runErr error) {
	if errors.Is(runErr, ErrJobStopped) {
		logger.Info("Pipeline stopped, job no longer processing")
		return
	}

	code := entity.ErrorCodePipeline
	var fe *FatalError
	if errors.As(runErr, &fe) {
		code = fe.Code
	}

	// the run context may already be canceled by shutdown
	failCtx := context.WithoutCancel(ctx)
	logger.Error("Pipeline failed", zap.String("error_code", code), zap.Error(runErr))

	if _, err := o.Lifecycle.Fail(failCtx, job, code, runErr.Error()); err != nil {
		logger.Error("Failed to mark job failed", zap.Error(err))
	}
}
