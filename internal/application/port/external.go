package port

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/garyjia/receipt-scan/internal/domain/entity"
)

// ErrMalformedResponse marks a provider answer that could not be parsed or
// did not match the expected JSON shape
var ErrMalformedResponse = errors.New("malformed inference response")

// DetectionResult is the raw verdict returned by an inference provider
type DetectionResult struct {
	Verdict    string  `json:"verdict"`
	Confidence float64 `json:"confidence"`
}

// ExtractionResult is the raw OCR payload returned by an inference provider.
// Amount fields stay raw so that numeric and string renderings can both be parsed.
type ExtractionResult struct {
	Date                  *string           `json:"date"`
	StoreName             *string           `json:"store_name"`
	TotalAmount           json.RawMessage   `json:"total_amount"`
	TotalAmountCandidates []json.RawMessage `json:"total_amount_candidates"`
	TaxInfo               *string           `json:"tax_info"`
	InvoiceNumber         *string           `json:"invoice_number"`
	RawText               string            `json:"ocr_raw_text"`
	Confidence            float64           `json:"confidence"`
}

// ClassificationInput is the context handed to account classification
type ClassificationInput struct {
	StoreName   *string
	TotalAmount *int64
	TaxHint     *string
	TextPrefix  string
}

// ClassificationResult is the raw account suggestion of an inference provider
type ClassificationResult struct {
	DebitAccount           string  `json:"debit_account"`
	DebitAccountCandidate2 *string `json:"debit_account_candidate2"`
	Confidence             float64 `json:"confidence"`
	Reason                 string  `json:"reason"`
}

// Inference defines the AI operations used by the pipeline stages.
// Implementations return errors freely; stages convert them to soft defaults.
type Inference interface {
	Detect(ctx context.Context, image []byte) (*DetectionResult, error)
	ExtractFields(ctx context.Context, image []byte) (*ExtractionResult, error)
	ClassifyAccount(ctx context.Context, in ClassificationInput) (*ClassificationResult, error)
	Name() string
}

// FrameSampler turns a video file into an ordered list of JPEG frame paths
type FrameSampler interface {
	ExtractFrames(ctx context.Context, videoPath, outDir string) ([]string, error)
}

// Notifier delivers a short text message to an operator channel
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// ExportDocument is everything a spreadsheet renderer needs
type ExportDocument struct {
	Receipts             []*entity.Receipt
	CreditAccountDefault string
	GeneratedAt          time.Time
}

// ExportRenderer turns a job's receipts into a downloadable file
type ExportRenderer interface {
	Render(format string, doc ExportDocument) (content []byte, contentType string, err error)
}
