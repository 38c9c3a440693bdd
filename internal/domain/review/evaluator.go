// Package review decides whether a receipt needs human review and why.
package review

import (
	"regexp"
	"strings"

	"github.com/garyjia/receipt-scan/internal/domain/entity"
)

// Reason codes, declared in canonical output order
const (
	ReasonDateMissing               = "date_missing"
	ReasonStoreMissing              = "store_missing"
	ReasonAmountMissing             = "amount_missing"
	ReasonInvoiceUnknown            = "invoice_unknown"
	ReasonLowConfidence             = "low_confidence"
	ReasonDebitAccountLowConfidence = "debit_account_low_confidence"
	ReasonInvalidInvoiceNumber      = "invalid_invoice_number"
)

// Thresholds below which a confidence value is flagged
const (
	OCRConfidenceThreshold     = 0.6
	AccountConfidenceThreshold = 0.7
)

var canonicalOrder = []string{
	ReasonDateMissing,
	ReasonStoreMissing,
	ReasonAmountMissing,
	ReasonInvoiceUnknown,
	ReasonLowConfidence,
	ReasonDebitAccountLowConfidence,
	ReasonInvalidInvoiceNumber,
}

var invoiceNumberPattern = regexp.MustCompile(`^T\d{13}$`)

// Input is the subset of receipt state the evaluator looks at.
// AccountConfidence is nil when re-evaluating after a user edit.
type Input struct {
	FinalDate         string
	FinalStoreName    string
	FinalTotalAmount  int64
	InvoiceFlag       string
	InvoiceNumber     *string
	OCRConfidence     float64
	AccountConfidence *float64
}

// Evaluate returns the review reasons for in, in canonical order without duplicates.
// An empty result means the receipt does not need review.
func Evaluate(in Input) []string {
	hit := make(map[string]bool, len(canonicalOrder))

	if in.FinalDate == "" || in.FinalDate == entity.UnknownDate {
		hit[ReasonDateMissing] = true
	}
	if strings.TrimSpace(in.FinalStoreName) == "" || in.FinalStoreName == entity.UnknownStore {
		hit[ReasonStoreMissing] = true
	}
	if in.FinalTotalAmount <= 0 {
		hit[ReasonAmountMissing] = true
	}
	if in.InvoiceFlag == entity.InvoiceFlagUnknown {
		hit[ReasonInvoiceUnknown] = true
	}
	if in.OCRConfidence < OCRConfidenceThreshold {
		hit[ReasonLowConfidence] = true
	}
	if in.AccountConfidence != nil && *in.AccountConfidence < AccountConfidenceThreshold {
		hit[ReasonDebitAccountLowConfidence] = true
	}
	if in.InvoiceNumber != nil && *in.InvoiceNumber != "" && !invoiceNumberPattern.MatchString(*in.InvoiceNumber) {
		hit[ReasonInvalidInvoiceNumber] = true
	}

	return Normalize(keys(hit))
}

// Normalize deduplicates reasons and sorts them into canonical order.
// Unknown codes are kept after the known ones in first-seen order.
func Normalize(reasons []string) []string {
	seen := make(map[string]bool, len(reasons))
	for _, r := range reasons {
		seen[r] = true
	}

	out := make([]string, 0, len(seen))
	for _, r := range canonicalOrder {
		if seen[r] {
			out = append(out, r)
			delete(seen, r)
		}
	}
	for _, r := range reasons {
		if seen[r] {
			out = append(out, r)
			delete(seen, r)
		}
	}
	return out
}

// NeedsReview is true iff reasons is non-empty
func NeedsReview(reasons []string) bool {
	return len(reasons) > 0
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
