package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/review"
	"golang.org/x/text/unicode/norm"
)

// SummaryRecomputer refreshes a job's aggregate fields from its receipts
type SummaryRecomputer interface {
	Recompute(ctx context.Context, jobID string) (*entity.JobSummary, error)
}

// ReceiptList is a filtered view of a job's receipts plus totals over that view
type ReceiptList struct {
	Receipts []*entity.Receipt `json:"receipts"`
	Summary  entity.JobSummary `json:"summary"`
}

// ReceiptService exposes review and correction of receipts
type ReceiptService interface {
	ListReceipts(ctx context.Context, userID, jobID string, filter entity.ReceiptFilter) (*ReceiptList, error)
	GetReceipt(ctx context.Context, userID, receiptID string) (*entity.Receipt, error)

	// UpdateReceipt applies a user edit, recomputes review reasons and job
	// aggregates, and learns a rule when the debit account changed
	UpdateReceipt(ctx context.Context, userID, receiptID string, patch entity.ReceiptPatch) (*entity.Receipt, error)

	DeleteReceipt(ctx context.Context, userID, receiptID string) error
}

type receiptServiceImpl struct {
	jobs       port.JobRepository
	receipts   port.ReceiptRepository
	aggregator SummaryRecomputer
	rules      RuleEngine
	txManager  port.TransactionManager
	logger     Logger
}

// NewReceiptService creates a new ReceiptService
func NewReceiptService(
	jobs port.JobRepository,
	receipts port.ReceiptRepository,
	aggregator SummaryRecomputer,
	rules RuleEngine,
	txManager port.TransactionManager,
	logger Logger,
) ReceiptService {
	return &receiptServiceImpl{
		jobs:       jobs,
		receipts:   receipts,
		aggregator: aggregator,
		rules:      rules,
		txManager:  txManager,
		logger:     logger,
	}
}

func (s *receiptServiceImpl) ListReceipts(ctx context.Context, userID, jobID string, filter entity.ReceiptFilter) (*ReceiptList, error) {
	if _, err := loadOwnedJob(ctx, s.jobs, userID, jobID); err != nil {
		return nil, err
	}
	if filter.InvoiceFlag != "" && !entity.IsValidInvoiceFlag(filter.InvoiceFlag) {
		return nil, entity.NewValidationError("INVALID_INVOICE_FLAG", fmt.Sprintf("unknown invoice flag %q", filter.InvoiceFlag))
	}
	switch filter.Sort {
	case "", entity.ReceiptSortDateDesc, entity.ReceiptSortAmountDesc, entity.ReceiptSortNeedsReviewFirst:
	default:
		return nil, entity.NewValidationError("INVALID_SORT", fmt.Sprintf("unknown sort %q", filter.Sort))
	}
	if filter.Sort == "" {
		filter.Sort = entity.ReceiptSortDateDesc
	}

	receipts, err := s.receipts.ListByJob(ctx, jobID, filter)
	if err != nil {
		s.logger.Error("Failed to list receipts", "error", err, "job_id", jobID)
		return nil, err
	}

	list := &ReceiptList{Receipts: receipts}
	for _, r := range receipts {
		list.Summary.ReceiptCount++
		list.Summary.TotalAmountSum += r.FinalTotalAmount
		if r.NeedsReview {
			list.Summary.NeedsReviewCount++
		}
	}
	return list, nil
}

func (s *receiptServiceImpl) GetReceipt(ctx context.Context, userID, receiptID string) (*entity.Receipt, error) {
	return s.loadOwned(ctx, userID, receiptID)
}

func (s *receiptServiceImpl) UpdateReceipt(ctx context.Context, userID, receiptID string, patch entity.ReceiptPatch) (*entity.Receipt, error) {
	receipt, err := s.loadOwned(ctx, userID, receiptID)
	if err != nil {
		return nil, err
	}
	if err := validatePatch(&patch); err != nil {
		return nil, err
	}

	previousAccount := receipt.DebitAccount
	applyPatch(receipt, patch)

	receipt.ReviewReasons = review.Evaluate(review.Input{
		FinalDate:        receipt.FinalDate,
		FinalStoreName:   receipt.FinalStoreName,
		FinalTotalAmount: receipt.FinalTotalAmount,
		InvoiceFlag:      receipt.InvoiceFlag,
		InvoiceNumber:    receipt.InvoiceNumber,
		OCRConfidence:    receipt.OCRConfidence,
	})
	receipt.NeedsReview = review.NeedsReview(receipt.ReviewReasons)
	receipt.EditedByUser = true
	receipt.UpdatedAt = time.Now().UTC()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.receipts.Update(txCtx, receipt); err != nil {
			return fmt.Errorf("update receipt: %w", err)
		}
		if _, err := s.aggregator.Recompute(txCtx, receipt.JobID); err != nil {
			return fmt.Errorf("recompute job summary: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to update receipt", "error", err, "receipt_id", receiptID)
		return nil, err
	}

	s.logger.Info("Receipt updated",
		"receipt_id", receiptID,
		"job_id", receipt.JobID,
		"needs_review", receipt.NeedsReview)

	if receipt.DebitAccount != previousAccount && s.rules != nil && receipt.FinalStoreName != entity.UnknownStore {
		tax := receipt.TaxCategory
		if _, err := s.rules.Learn(ctx, userID, receipt.FinalStoreName, receipt.DebitAccount, &tax); err != nil {
			s.logger.Error("Failed to learn rule from edit", "error", err, "receipt_id", receiptID)
		}
	}

	return receipt, nil
}

func (s *receiptServiceImpl) DeleteReceipt(ctx context.Context, userID, receiptID string) error {
	receipt, err := s.loadOwned(ctx, userID, receiptID)
	if err != nil {
		return err
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.receipts.Delete(txCtx, receiptID); err != nil {
			return fmt.Errorf("delete receipt: %w", err)
		}
		if _, err := s.aggregator.Recompute(txCtx, receipt.JobID); err != nil {
			return fmt.Errorf("recompute job summary: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to delete receipt", "error", err, "receipt_id", receiptID)
		return err
	}

	s.logger.Info("Receipt deleted", "receipt_id", receiptID, "job_id", receipt.JobID)
	return nil
}

func (s *receiptServiceImpl) loadOwned(ctx context.Context, userID, receiptID string) (*entity.Receipt, error) {
	receipt, err := s.receipts.GetByID(ctx, receiptID)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		return nil, entity.ErrNotFound
	}
	if receipt.UserID != userID {
		return nil, entity.ErrForbidden
	}
	return receipt, nil
}

// validatePatch rejects malformed values and normalizes the ones it keeps
func validatePatch(p *entity.ReceiptPatch) error {
	if p.FinalDate != nil {
		d := strings.TrimSpace(*p.FinalDate)
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return entity.NewValidationError("INVALID_DATE", "final_date must be YYYY-MM-DD")
		}
		p.FinalDate = &d
	}
	if p.FinalStoreName != nil {
		name := strings.TrimSpace(*p.FinalStoreName)
		if name == "" {
			return entity.NewValidationError("INVALID_STORE_NAME", "final_store_name must not be empty")
		}
		p.FinalStoreName = &name
	}
	if p.FinalTotalAmount != nil && *p.FinalTotalAmount < 0 {
		return entity.NewValidationError("INVALID_AMOUNT", "final_total_amount must not be negative")
	}
	if p.InvoiceFlag != nil && !entity.IsValidInvoiceFlag(*p.InvoiceFlag) {
		return entity.NewValidationError("INVALID_INVOICE_FLAG", fmt.Sprintf("unknown invoice flag %q", *p.InvoiceFlag))
	}
	if p.PaymentMethod != nil && !entity.IsValidPaymentMethod(*p.PaymentMethod) {
		return entity.NewValidationError("INVALID_PAYMENT_METHOD", fmt.Sprintf("unknown payment method %q", *p.PaymentMethod))
	}
	if p.DebitAccount != nil && !entity.IsAccountCategory(*p.DebitAccount) {
		return entity.NewValidationError("INVALID_DEBIT_ACCOUNT", fmt.Sprintf("unknown debit account %q", *p.DebitAccount))
	}
	if p.CreditAccount != nil && strings.TrimSpace(*p.CreditAccount) == "" {
		return entity.NewValidationError("INVALID_CREDIT_ACCOUNT", "credit_account must not be empty")
	}
	if p.TaxCategory != nil && strings.TrimSpace(*p.TaxCategory) == "" {
		return entity.NewValidationError("INVALID_TAX_CATEGORY", "tax_category must not be empty")
	}
	if p.InvoiceNumber != nil {
		v := strings.ToUpper(strings.TrimSpace(norm.NFKC.String(*p.InvoiceNumber)))
		p.InvoiceNumber = &v
	}
	return nil
}

// applyPatch copies patched fields onto r. Description and partner name
// follow the date, store and account while they still hold generated values.
func applyPatch(r *entity.Receipt, p entity.ReceiptPatch) {
	generatedDescription := r.Description == entity.BuildDescription(r.FinalDate, r.FinalStoreName, r.DebitAccount)
	partnerFollowsStore := r.PartnerName == r.FinalStoreName

	if p.FinalDate != nil {
		r.FinalDate = *p.FinalDate
	}
	if p.FinalStoreName != nil {
		r.FinalStoreName = *p.FinalStoreName
	}
	if p.FinalTotalAmount != nil {
		r.FinalTotalAmount = *p.FinalTotalAmount
	}
	if p.InvoiceNumber != nil {
		if *p.InvoiceNumber == "" {
			r.InvoiceNumber = nil
		} else {
			v := *p.InvoiceNumber
			r.InvoiceNumber = &v
		}
	}
	if p.InvoiceFlag != nil {
		r.InvoiceFlag = *p.InvoiceFlag
	}
	if p.PaymentMethod != nil {
		r.PaymentMethod = *p.PaymentMethod
	}
	if p.DebitAccount != nil {
		r.DebitAccount = *p.DebitAccount
	}
	if p.CreditAccount != nil {
		r.CreditAccount = *p.CreditAccount
	}
	if p.TaxCategory != nil {
		r.TaxCategory = *p.TaxCategory
	}

	switch {
	case p.PartnerName != nil:
		r.PartnerName = *p.PartnerName
	case partnerFollowsStore:
		r.PartnerName = r.FinalStoreName
	}

	switch {
	case p.Description != nil:
		r.Description = *p.Description
	case generatedDescription:
		r.Description = entity.BuildDescription(r.FinalDate, r.FinalStoreName, r.DebitAccount)
	}

	if p.Memo != nil {
		if *p.Memo == "" {
			r.Memo = nil
		} else {
			v := *p.Memo
			r.Memo = &v
		}
	}
}
