package pipeline

import (
	"context"
	"errors"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"go.uber.org/zap"
)

const (
	// TextPrefixRunes bounds how much raw OCR text reaches the classifier
	TextPrefixRunes = 200

	// FallbackConfidence is reported when classification could not run
	FallbackConfidence = 0.3

	// RuleConfidence is reported when a learned rule decided the account
	RuleConfidence = 1.0
)

// Classification is the account decision for one receipt
type Classification struct {
	DebitAccount           string
	DebitAccountCandidate2 *string
	Confidence             float64
	Reason                 string
}

// ClassificationStage suggests a debit account for receipts without a matching rule
type ClassificationStage struct {
	inference port.Inference
	cfg       StageConfig
	logger    *zap.Logger
}

// NewClassificationStage creates a classification stage
func NewClassificationStage(inference port.Inference, cfg StageConfig, logger *zap.Logger) *ClassificationStage {
	return &ClassificationStage{inference: inference, cfg: cfg, logger: logger}
}

// Classify never fails. Provider failure yields その他 with confidence 0.3.
func (s *ClassificationStage) Classify(ctx context.Context, in port.ClassificationInput) Classification {
	in.TextPrefix = truncateRunes(in.TextPrefix, TextPrefixRunes)

	res, err := callWithRetry(ctx, s.cfg, s.logger, "classify", func(ctx context.Context) (*port.ClassificationResult, error) {
		return s.inference.ClassifyAccount(ctx, in)
	})
	if err != nil || res == nil {
		s.logger.Warn("Classification degraded to fallback account", zap.Error(err))
		reason := "API呼び出し失敗"
		if errors.Is(err, port.ErrMalformedResponse) {
			reason = "AI判定失敗"
		}
		return Classification{
			DebitAccount: entity.FallbackAccount,
			Confidence:   FallbackConfidence,
			Reason:       reason,
		}
	}

	out := Classification{
		DebitAccount: res.DebitAccount,
		Confidence:   clamp01(res.Confidence),
		Reason:       res.Reason,
	}
	if !entity.IsAccountCategory(out.DebitAccount) {
		s.logger.Warn("Classifier returned unknown account", zap.String("account", res.DebitAccount))
		out.DebitAccount = entity.FallbackAccount
	}
	if c := res.DebitAccountCandidate2; c != nil && entity.IsAccountCategory(*c) && *c != out.DebitAccount {
		v := *c
		out.DebitAccountCandidate2 = &v
	}

	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
