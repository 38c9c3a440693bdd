package pipeline

import (
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/review"
)

// ReceiptDraft collects everything the pipeline learned about one accepted frame
type ReceiptDraft struct {
	JobID           string
	UserID          string
	Index           int
	ImageStorageKey string
	OCR             OCRResult
	Account         Classification
	TaxCategory     string
	CreditAccount   string
}

// BuildReceipt applies creation defaults and evaluates review reasons
func BuildReceipt(d ReceiptDraft) *entity.Receipt {
	finalDate := entity.UnknownDate
	if d.OCR.Date != nil {
		finalDate = *d.OCR.Date
	}
	finalStore := entity.UnknownStore
	if d.OCR.StoreName != nil {
		finalStore = *d.OCR.StoreName
	}
	var finalAmount int64
	if d.OCR.TotalAmount != nil {
		finalAmount = *d.OCR.TotalAmount
	}

	credit := d.CreditAccount
	if credit == "" {
		credit = entity.DefaultCreditAccount
	}
	tax := d.TaxCategory
	if tax == "" {
		tax = entity.DefaultTaxCategory
	}

	rc := &entity.Receipt{
		JobID:           d.JobID,
		UserID:          d.UserID,
		ReceiptIndex:    d.Index,
		EvidenceID:      entity.EvidenceID(d.JobID, d.Index),
		ImageStorageKey: d.ImageStorageKey,

		OCRTextRaw:    d.OCR.RawText,
		OCRConfidence: d.OCR.Confidence,

		ExtractedDate:          d.OCR.Date,
		ExtractedStoreName:     d.OCR.StoreName,
		ExtractedTotalAmount:   d.OCR.TotalAmount,
		ExtractedInvoiceNumber: d.OCR.InvoiceNumber,
		ExtractedTaxHint:       d.OCR.TaxHint,

		FinalDate:        finalDate,
		FinalStoreName:   finalStore,
		FinalTotalAmount: finalAmount,
		InvoiceNumber:    d.OCR.InvoiceNumber,
		InvoiceFlag:      entity.InvoiceFlagUnknown,
		PaymentMethod:    entity.PaymentUnknown,

		DebitAccount:           d.Account.DebitAccount,
		DebitAccountCandidate2: d.Account.DebitAccountCandidate2,
		AccountConfidence:      d.Account.Confidence,
		CreditAccount:          credit,
		TaxCategory:            tax,
		PartnerName:            finalStore,
		Description:            entity.BuildDescription(finalDate, finalStore, d.Account.DebitAccount),
	}

	accountConfidence := d.Account.Confidence
	rc.ReviewReasons = review.Evaluate(review.Input{
		FinalDate:         rc.FinalDate,
		FinalStoreName:    rc.FinalStoreName,
		FinalTotalAmount:  rc.FinalTotalAmount,
		InvoiceFlag:       rc.InvoiceFlag,
		InvoiceNumber:     rc.InvoiceNumber,
		OCRConfidence:     rc.OCRConfidence,
		AccountConfidence: &accountConfidence,
	})
	rc.NeedsReview = review.NeedsReview(rc.ReviewReasons)

	return rc
}
