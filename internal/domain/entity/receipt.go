package entity

import (
	"fmt"
	"time"
)

// Receipt is one accepted receipt image plus its extracted and final fields
type Receipt struct {
	ID              string `json:"id"`
	JobID           string `json:"job_id"`
	UserID          string `json:"user_id"`
	ReceiptIndex    int    `json:"receipt_index"`
	EvidenceID      string `json:"evidence_id"`
	ImageStorageKey string `json:"image_storage_key"`

	OCRTextRaw    string  `json:"ocr_text_raw"`
	OCRConfidence float64 `json:"ocr_confidence"`

	ExtractedDate          *string `json:"extracted_date"`
	ExtractedStoreName     *string `json:"extracted_store_name"`
	ExtractedTotalAmount   *int64  `json:"extracted_total_amount"`
	ExtractedInvoiceNumber *string `json:"extracted_invoice_number"`
	ExtractedTaxHint       *string `json:"extracted_tax_hint"`

	FinalDate        string  `json:"final_date"`
	FinalStoreName   string  `json:"final_store_name"`
	FinalTotalAmount int64   `json:"final_total_amount"`
	InvoiceNumber    *string `json:"invoice_number"`
	InvoiceFlag      string  `json:"invoice_flag"`
	PaymentMethod    string  `json:"payment_method"`

	DebitAccount           string  `json:"debit_account"`
	DebitAccountCandidate2 *string `json:"debit_account_candidate2"`
	AccountConfidence      float64 `json:"account_confidence"`
	CreditAccount          string  `json:"credit_account"`
	TaxCategory            string  `json:"tax_category"`
	PartnerName            string  `json:"partner_name"`
	Description            string  `json:"description"`
	Memo                   *string `json:"memo"`

	NeedsReview   bool     `json:"needs_review"`
	ReviewReasons []string `json:"review_reasons"`
	EditedByUser  bool     `json:"edited_by_user"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EvidenceID builds the evidence identifier for the index-th receipt of a job
func EvidenceID(jobID string, index int) string {
	return fmt.Sprintf("%s_F%04d", jobID, index)
}

// BuildDescription composes the journal description line
func BuildDescription(date, store, debitAccount string) string {
	if date == "" || date == UnknownDate {
		date = "日付不明"
	}
	if store == "" || store == UnknownStore {
		store = "店名不明"
	}
	return fmt.Sprintf("%s %s %s", date, store, debitAccount)
}

// ReceiptPatch carries the user-editable fields of a receipt; nil fields are left untouched
type ReceiptPatch struct {
	FinalDate        *string `json:"final_date"`
	FinalStoreName   *string `json:"final_store_name"`
	FinalTotalAmount *int64  `json:"final_total_amount"`
	InvoiceNumber    *string `json:"invoice_number"`
	InvoiceFlag      *string `json:"invoice_flag"`
	PaymentMethod    *string `json:"payment_method"`
	DebitAccount     *string `json:"debit_account"`
	CreditAccount    *string `json:"credit_account"`
	TaxCategory      *string `json:"tax_category"`
	PartnerName      *string `json:"partner_name"`
	Description      *string `json:"description"`
	Memo             *string `json:"memo"`
}

// Receipt sort orders
const (
	ReceiptSortDateDesc         = "date_desc"
	ReceiptSortAmountDesc       = "amount_desc"
	ReceiptSortNeedsReviewFirst = "needs_review_first"
)

// ReceiptFilter narrows receipt listings within a job
type ReceiptFilter struct {
	NeedsReview  *bool
	InvoiceFlag  string
	DebitAccount string
	Sort         string
}
