package pipeline

import (
	"context"
	"math"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"go.uber.org/zap"
)

// DetectionThreshold is the minimum confidence for a receipt verdict to be accepted
const DetectionThreshold = 0.6

// Detection is the normalized verdict for one frame
type Detection struct {
	Verdict    string
	Confidence float64
}

// Accepted reports whether the frame goes on to extraction
func (d Detection) Accepted() bool {
	return d.Verdict == entity.VerdictReceipt && d.Confidence >= DetectionThreshold
}

// DetectionStage decides whether a frame shows a receipt
type DetectionStage struct {
	inference port.Inference
	cfg       StageConfig
	logger    *zap.Logger
}

// NewDetectionStage creates a detection stage
func NewDetectionStage(inference port.Inference, cfg StageConfig, logger *zap.Logger) *DetectionStage {
	return &DetectionStage{inference: inference, cfg: cfg, logger: logger}
}

// Detect never fails. Any provider error, timeout or unusable answer yields {none, 0}.
func (s *DetectionStage) Detect(ctx context.Context, image []byte) Detection {
	res, err := callWithRetry(ctx, s.cfg, s.logger, "detect", func(ctx context.Context) (*port.DetectionResult, error) {
		return s.inference.Detect(ctx, image)
	})
	if err != nil || res == nil {
		s.logger.Warn("Detection degraded to none", zap.Error(err))
		return Detection{Verdict: entity.VerdictNone}
	}

	switch res.Verdict {
	case entity.VerdictReceipt, entity.VerdictPartial, entity.VerdictNone:
	default:
		s.logger.Warn("Unknown detection verdict", zap.String("verdict", res.Verdict))
		return Detection{Verdict: entity.VerdictNone}
	}

	return Detection{Verdict: res.Verdict, Confidence: clamp01(res.Confidence)}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
