package pipeline

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/ocr"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

// OCRResult holds the normalized fields read from one receipt image.
// Nil pointers mean the field could not be read.
type OCRResult struct {
	Date          *string
	StoreName     *string
	TotalAmount   *int64
	TaxHint       *string
	InvoiceNumber *string
	RawText       string
	Confidence    float64
}

// ExtractionStage reads structured fields from an accepted receipt image
type ExtractionStage struct {
	inference port.Inference
	cfg       StageConfig
	logger    *zap.Logger
}

// NewExtractionStage creates an extraction stage
func NewExtractionStage(inference port.Inference, cfg StageConfig, logger *zap.Logger) *ExtractionStage {
	return &ExtractionStage{inference: inference, cfg: cfg, logger: logger}
}

// Extract never fails. On provider failure every field is unknown and confidence is 0.
func (s *ExtractionStage) Extract(ctx context.Context, image []byte) OCRResult {
	res, err := callWithRetry(ctx, s.cfg, s.logger, "extract", func(ctx context.Context) (*port.ExtractionResult, error) {
		return s.inference.ExtractFields(ctx, image)
	})
	if err != nil || res == nil {
		s.logger.Warn("Extraction degraded to unknown fields", zap.Error(err))
		return OCRResult{}
	}
	return NormalizeExtraction(res)
}

// NormalizeExtraction applies the amount, date and text policies to a raw provider answer
func NormalizeExtraction(res *port.ExtractionResult) OCRResult {
	out := OCRResult{
		StoreName:  cleanText(res.StoreName),
		TaxHint:    cleanText(res.TaxInfo),
		RawText:    res.RawText,
		Confidence: clamp01(res.Confidence),
	}

	if res.Date != nil {
		if d, ok := ocr.ParseDate(*res.Date); ok {
			out.Date = &d
		}
	}

	candidates := make([]json.RawMessage, 0, len(res.TotalAmountCandidates)+1)
	if len(res.TotalAmount) > 0 {
		candidates = append(candidates, res.TotalAmount)
	}
	candidates = append(candidates, res.TotalAmountCandidates...)
	if total, err := ocr.PickTotal(candidates...); err == nil {
		out.TotalAmount = total
	}

	if inv := cleanText(res.InvoiceNumber); inv != nil {
		v := strings.ToUpper(strings.NewReplacer("-", "", " ", "").Replace(norm.NFKC.String(*inv)))
		out.InvoiceNumber = &v
	}

	return out
}

func cleanText(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" || strings.EqualFold(v, "null") {
		return nil
	}
	return &v
}
