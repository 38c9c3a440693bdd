package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/infrastructure/persistence/sqlite"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const receiptColumns = `
	id, job_id, user_id, receipt_index, evidence_id, image_storage_key,
	ocr_text_raw, ocr_confidence,
	extracted_date, extracted_store_name, extracted_total_amount,
	extracted_invoice_number, extracted_tax_hint,
	final_date, final_store_name, final_total_amount,
	invoice_number, invoice_flag, payment_method,
	debit_account, debit_account_candidate2, account_confidence,
	credit_account, tax_category, partner_name, description, memo,
	needs_review, review_reasons, edited_by_user,
	created_at, updated_at`

// ReceiptRepository implements port.ReceiptRepository
type ReceiptRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *sql.DB, logger *zap.Logger) *ReceiptRepository {
	return &ReceiptRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a receipt
func (r *ReceiptRepository) Create(ctx context.Context, receipt *entity.Receipt) error {
	if receipt.ID == "" {
		receipt.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	receipt.CreatedAt = now
	receipt.UpdatedAt = now

	reasons, err := encodeReasons(receipt.ReviewReasons)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO receipts (` + receiptColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.getExecutor(ctx).ExecContext(ctx, query,
		receipt.ID,
		receipt.JobID,
		receipt.UserID,
		receipt.ReceiptIndex,
		receipt.EvidenceID,
		receipt.ImageStorageKey,
		receipt.OCRTextRaw,
		receipt.OCRConfidence,
		nullString(receipt.ExtractedDate),
		nullString(receipt.ExtractedStoreName),
		nullInt64(receipt.ExtractedTotalAmount),
		nullString(receipt.ExtractedInvoiceNumber),
		nullString(receipt.ExtractedTaxHint),
		receipt.FinalDate,
		receipt.FinalStoreName,
		receipt.FinalTotalAmount,
		nullString(receipt.InvoiceNumber),
		receipt.InvoiceFlag,
		receipt.PaymentMethod,
		receipt.DebitAccount,
		nullString(receipt.DebitAccountCandidate2),
		receipt.AccountConfidence,
		receipt.CreditAccount,
		receipt.TaxCategory,
		receipt.PartnerName,
		receipt.Description,
		nullString(receipt.Memo),
		receipt.NeedsReview,
		reasons,
		receipt.EditedByUser,
		receipt.CreatedAt,
		receipt.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create receipt",
			zap.String("job_id", receipt.JobID),
			zap.Int("receipt_index", receipt.ReceiptIndex),
			zap.Error(err))
		return fmt.Errorf("failed to create receipt: %w", err)
	}

	return nil
}

// GetByID returns the receipt or nil when it does not exist
func (r *ReceiptRepository) GetByID(ctx context.Context, id string) (*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE id = ?`

	receipt, err := scanReceipt(r.getExecutor(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get receipt by ID",
			zap.String("id", id),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}

	return receipt, nil
}

// ListByJob returns the receipts of a job filtered and sorted as requested
func (r *ReceiptRepository) ListByJob(ctx context.Context, jobID string, filter entity.ReceiptFilter) ([]*entity.Receipt, error) {
	query := `SELECT ` + receiptColumns + ` FROM receipts WHERE job_id = ?`
	args := []interface{}{jobID}

	if filter.NeedsReview != nil {
		query += ` AND needs_review = ?`
		args = append(args, *filter.NeedsReview)
	}
	if filter.InvoiceFlag != "" {
		query += ` AND invoice_flag = ?`
		args = append(args, filter.InvoiceFlag)
	}
	if filter.DebitAccount != "" {
		query += ` AND debit_account = ?`
		args = append(args, filter.DebitAccount)
	}

	switch filter.Sort {
	case entity.ReceiptSortDateDesc:
		query += ` ORDER BY final_date DESC, receipt_index ASC`
	case entity.ReceiptSortAmountDesc:
		query += ` ORDER BY final_total_amount DESC, receipt_index ASC`
	case entity.ReceiptSortNeedsReviewFirst:
		query += ` ORDER BY needs_review DESC, receipt_index ASC`
	default:
		query += ` ORDER BY receipt_index ASC`
	}

	rows, err := r.getExecutor(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list receipts",
			zap.String("job_id", jobID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to list receipts: %w", err)
	}
	defer rows.Close()

	var receipts []*entity.Receipt
	for rows.Next() {
		receipt, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		receipts = append(receipts, receipt)
	}
	return receipts, rows.Err()
}

// Update writes every user-editable and derived field of a receipt
func (r *ReceiptRepository) Update(ctx context.Context, receipt *entity.Receipt) error {
	receipt.UpdatedAt = time.Now().UTC()

	reasons, err := encodeReasons(receipt.ReviewReasons)
	if err != nil {
		return err
	}

	query := `
		UPDATE receipts
		SET final_date = ?, final_store_name = ?, final_total_amount = ?,
			invoice_number = ?, invoice_flag = ?, payment_method = ?,
			debit_account = ?, debit_account_candidate2 = ?, account_confidence = ?,
			credit_account = ?, tax_category = ?, partner_name = ?, description = ?, memo = ?,
			needs_review = ?, review_reasons = ?, edited_by_user = ?,
			updated_at = ?
		WHERE id = ?
	`

	result, err := r.getExecutor(ctx).ExecContext(ctx, query,
		receipt.FinalDate,
		receipt.FinalStoreName,
		receipt.FinalTotalAmount,
		nullString(receipt.InvoiceNumber),
		receipt.InvoiceFlag,
		receipt.PaymentMethod,
		receipt.DebitAccount,
		nullString(receipt.DebitAccountCandidate2),
		receipt.AccountConfidence,
		receipt.CreditAccount,
		receipt.TaxCategory,
		receipt.PartnerName,
		receipt.Description,
		nullString(receipt.Memo),
		receipt.NeedsReview,
		reasons,
		receipt.EditedByUser,
		receipt.UpdatedAt,
		receipt.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update receipt",
			zap.String("id", receipt.ID),
			zap.Error(err))
		return fmt.Errorf("failed to update receipt: %w", err)
	}
	if ok, err := affected(result); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("receipt %s: %w", receipt.ID, entity.ErrNotFound)
	}

	return nil
}

// Delete removes a receipt
func (r *ReceiptRepository) Delete(ctx context.Context, id string) error {
	result, err := r.getExecutor(ctx).ExecContext(ctx, `DELETE FROM receipts WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete receipt",
			zap.String("id", id),
			zap.Error(err))
		return fmt.Errorf("failed to delete receipt: %w", err)
	}
	if ok, err := affected(result); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("receipt %s: %w", id, entity.ErrNotFound)
	}

	return nil
}

func (r *ReceiptRepository) getExecutor(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

func scanReceipt(row rowScanner) (*entity.Receipt, error) {
	var rc entity.Receipt
	var extractedDate, extractedStore, extractedInvoice, extractedTax sql.NullString
	var extractedAmount sql.NullInt64
	var invoiceNumber, candidate2, memo sql.NullString
	var reasons string

	err := row.Scan(
		&rc.ID,
		&rc.JobID,
		&rc.UserID,
		&rc.ReceiptIndex,
		&rc.EvidenceID,
		&rc.ImageStorageKey,
		&rc.OCRTextRaw,
		&rc.OCRConfidence,
		&extractedDate,
		&extractedStore,
		&extractedAmount,
		&extractedInvoice,
		&extractedTax,
		&rc.FinalDate,
		&rc.FinalStoreName,
		&rc.FinalTotalAmount,
		&invoiceNumber,
		&rc.InvoiceFlag,
		&rc.PaymentMethod,
		&rc.DebitAccount,
		&candidate2,
		&rc.AccountConfidence,
		&rc.CreditAccount,
		&rc.TaxCategory,
		&rc.PartnerName,
		&rc.Description,
		&memo,
		&rc.NeedsReview,
		&reasons,
		&rc.EditedByUser,
		&rc.CreatedAt,
		&rc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rc.ExtractedDate = stringPtr(extractedDate)
	rc.ExtractedStoreName = stringPtr(extractedStore)
	rc.ExtractedTotalAmount = int64Ptr(extractedAmount)
	rc.ExtractedInvoiceNumber = stringPtr(extractedInvoice)
	rc.ExtractedTaxHint = stringPtr(extractedTax)
	rc.InvoiceNumber = stringPtr(invoiceNumber)
	rc.DebitAccountCandidate2 = stringPtr(candidate2)
	rc.Memo = stringPtr(memo)

	if err := json.Unmarshal([]byte(reasons), &rc.ReviewReasons); err != nil {
		return nil, fmt.Errorf("failed to decode review reasons: %w", err)
	}

	return &rc, nil
}

func encodeReasons(reasons []string) (string, error) {
	if reasons == nil {
		reasons = []string{}
	}
	b, err := json.Marshal(reasons)
	if err != nil {
		return "", fmt.Errorf("failed to encode review reasons: %w", err)
	}
	return string(b), nil
}

// Verify interface compliance
var _ port.ReceiptRepository = (*ReceiptRepository)(nil)
