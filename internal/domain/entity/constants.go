package entity

// Job status constants
const (
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
	JobStatusCanceled   = "canceled"
)

// Error codes recorded on failed or degraded jobs
const (
	ErrorCodeVideoDownload   = "VIDEO_DOWNLOAD_FAILED"
	ErrorCodeFrameExtraction = "FRAME_EXTRACTION_FAILED"
	ErrorCodePipeline        = "PIPELINE_ERROR"
	ErrorCodePartialIngest   = "PARTIAL_INGEST"
	ErrorCodeStaleJob        = "STALE_JOB"
)

// Invoice flag constants
const (
	InvoiceFlagYes     = "yes"
	InvoiceFlagNo      = "no"
	InvoiceFlagUnknown = "unknown"
)

// Payment method constants
const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransit  = "transit"
	PaymentTransfer = "transfer"
	PaymentUnknown  = "unknown"
)

// Detection verdicts
const (
	VerdictReceipt = "receipt"
	VerdictPartial = "partial"
	VerdictNone    = "none"
)

// Export formats
const (
	ExportFormatXLSX = "xlsx"
	ExportFormatCSV  = "csv"
)

// Sentinels written when a field could not be read from the receipt
const (
	UnknownDate  = "1900-01-01"
	UnknownStore = "不明"
)

// Receipt defaults
const (
	DefaultCreditAccount = "現金"
	DefaultTaxCategory   = "課税10%"
	FallbackAccount      = "その他"
)

// Storage buckets
const (
	BucketVideos        = "videos"
	BucketReceiptImages = "receipt-images"
	BucketExports       = "exports"
)

// ExportTemplateVersion identifies the column layout of generated exports
const ExportTemplateVersion = "yayo-01"

// AccountCategories is the closed set of debit accounts a receipt may be classified into
var AccountCategories = []string{
	"消耗品費",
	"交際費",
	"会議費",
	"旅費交通費",
	"通信費",
	"車両費",
	"水道光熱費",
	"地代家賃",
	"広告宣伝費",
	"新聞図書費",
	"事務用品費",
	"修繕費",
	"外注費",
	FallbackAccount,
}

// IsAccountCategory reports whether name is one of AccountCategories
func IsAccountCategory(name string) bool {
	for _, c := range AccountCategories {
		if c == name {
			return true
		}
	}
	return false
}

// IsValidInvoiceFlag reports whether flag is a known invoice flag
func IsValidInvoiceFlag(flag string) bool {
	switch flag {
	case InvoiceFlagYes, InvoiceFlagNo, InvoiceFlagUnknown:
		return true
	}
	return false
}

// IsValidPaymentMethod reports whether method is a known payment method
func IsValidPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCard, PaymentTransit, PaymentTransfer, PaymentUnknown:
		return true
	}
	return false
}
