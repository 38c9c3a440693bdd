package service

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/review"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeRuleEngine struct {
	learned []string
	err     error
}

func (f *fakeRuleEngine) Lookup(ctx context.Context, userID, storeName string) (*entity.Rule, error) {
	return nil, nil
}

func (f *fakeRuleEngine) RecordHit(ctx context.Context, r *entity.Rule) error { return nil }

func (f *fakeRuleEngine) Learn(ctx context.Context, userID, storeName, debitAccount string, taxCategory *string) (*entity.Rule, error) {
	f.learned = append(f.learned, storeName+"="+debitAccount)
	return &entity.Rule{ID: "rule-1"}, f.err
}

func (f *fakeRuleEngine) ListRules(ctx context.Context, userID string) ([]*entity.Rule, error) {
	return nil, nil
}

func (f *fakeRuleEngine) DeleteRule(ctx context.Context, userID, id string) error { return nil }

func storedReceipt() *entity.Receipt {
	return &entity.Receipt{
		ID:               "r-1",
		JobID:            "job-1",
		UserID:           "user-1",
		ReceiptIndex:     1,
		OCRConfidence:    0.55,
		FinalDate:        "2024-04-15",
		FinalStoreName:   "スターバックス",
		FinalTotalAmount: 650,
		InvoiceFlag:      entity.InvoiceFlagUnknown,
		PaymentMethod:    entity.PaymentUnknown,
		DebitAccount:     "会議費",
		CreditAccount:    entity.DefaultCreditAccount,
		TaxCategory:      entity.DefaultTaxCategory,
		PartnerName:      "スターバックス",
		Description:      entity.BuildDescription("2024-04-15", "スターバックス", "会議費"),
		NeedsReview:      true,
		ReviewReasons:    []string{review.ReasonInvoiceUnknown, review.ReasonLowConfidence},
	}
}

type receiptFixture struct {
	jobs     *mockJobRepo
	receipts *mockReceiptRepo
	agg      *mockAggregator
	rules    *fakeRuleEngine
	tx       *passthroughTx
	svc      ReceiptService
}

func newReceiptFixture() *receiptFixture {
	f := &receiptFixture{
		jobs:     &mockJobRepo{},
		receipts: &mockReceiptRepo{},
		agg:      &mockAggregator{},
		rules:    &fakeRuleEngine{},
		tx:       &passthroughTx{},
	}
	f.svc = NewReceiptService(f.jobs, f.receipts, f.agg, f.rules, f.tx, nopLogger{})
	return f
}

func ptr[T any](v T) *T { return &v }

func TestReceiptService_UpdateRecomputesReasons(t *testing.T) {
	f := newReceiptFixture()
	f.receipts.On("GetByID", mock.Anything, "r-1").Return(storedReceipt(), nil)
	f.receipts.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.agg.On("Recompute", mock.Anything, "job-1").Return(&entity.JobSummary{}, nil)

	updated, err := f.svc.UpdateReceipt(context.Background(), "user-1", "r-1", entity.ReceiptPatch{
		InvoiceFlag: ptr(entity.InvoiceFlagYes),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{review.ReasonLowConfidence}, updated.ReviewReasons, "stored OCR confidence still applies")
	assert.True(t, updated.NeedsReview)
	assert.True(t, updated.EditedByUser)
	assert.Equal(t, 1, f.tx.calls)
	assert.Empty(t, f.rules.learned, "account unchanged")
	f.agg.AssertExpectations(t)
}

func TestReceiptService_UpdateIgnoresAccountConfidence(t *testing.T) {
	f := newReceiptFixture()
	stored := storedReceipt()
	stored.OCRConfidence = 0.9
	stored.AccountConfidence = 0.3
	f.receipts.On("GetByID", mock.Anything, "r-1").Return(stored, nil)
	f.receipts.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.agg.On("Recompute", mock.Anything, "job-1").Return(&entity.JobSummary{}, nil)

	updated, err := f.svc.UpdateReceipt(context.Background(), "user-1", "r-1", entity.ReceiptPatch{
		InvoiceFlag: ptr(entity.InvoiceFlagNo),
	})
	require.NoError(t, err)
	assert.Empty(t, updated.ReviewReasons)
	assert.False(t, updated.NeedsReview)
}

func TestReceiptService_UpdateLearnsRuleOnAccountChange(t *testing.T) {
	f := newReceiptFixture()
	f.receipts.On("GetByID", mock.Anything, "r-1").Return(storedReceipt(), nil)
	f.receipts.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.agg.On("Recompute", mock.Anything, "job-1").Return(&entity.JobSummary{}, nil)

	updated, err := f.svc.UpdateReceipt(context.Background(), "user-1", "r-1", entity.ReceiptPatch{
		DebitAccount: ptr("交際費"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"スターバックス=交際費"}, f.rules.learned)
	assert.Equal(t, "2024-04-15 スターバックス 交際費", updated.Description, "generated description follows the account")
}

func TestReceiptService_RuleLearningFailureIsSoft(t *testing.T) {
	f := newReceiptFixture()
	f.rules.err = errors.New("database is locked")
	f.receipts.On("GetByID", mock.Anything, "r-1").Return(storedReceipt(), nil)
	f.receipts.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.agg.On("Recompute", mock.Anything, "job-1").Return(&entity.JobSummary{}, nil)

	_, err := f.svc.UpdateReceipt(context.Background(), "user-1", "r-1", entity.ReceiptPatch{DebitAccount: ptr("交際費")})
	assert.NoError(t, err)
}

func TestReceiptService_UpdateKeepsUserDescription(t *testing.T) {
	f := newReceiptFixture()
	stored := storedReceipt()
	stored.Description = "打ち合わせ"
	stored.PartnerName = "スタバ本社"
	f.receipts.On("GetByID", mock.Anything, "r-1").Return(stored, nil)
	f.receipts.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.agg.On("Recompute", mock.Anything, "job-1").Return(&entity.JobSummary{}, nil)

	updated, err := f.svc.UpdateReceipt(context.Background(), "user-1", "r-1", entity.ReceiptPatch{
		FinalStoreName: ptr("ドトール"),
	})
	require.NoError(t, err)
	assert.Equal(t, "打ち合わせ", updated.Description)
	assert.Equal(t, "スタバ本社", updated.PartnerName)
}

func TestReceiptService_UpdateValidation(t *testing.T) {
	tests := []struct {
		name  string
		patch entity.ReceiptPatch
		code  string
	}{
		{"bad date", entity.ReceiptPatch{FinalDate: ptr("2024/04/15")}, "INVALID_DATE"},
		{"impossible date", entity.ReceiptPatch{FinalDate: ptr("2024-02-30")}, "INVALID_DATE"},
		{"negative amount", entity.ReceiptPatch{FinalTotalAmount: ptr(int64(-1))}, "INVALID_AMOUNT"},
		{"invoice flag", entity.ReceiptPatch{InvoiceFlag: ptr("maybe")}, "INVALID_INVOICE_FLAG"},
		{"payment method", entity.ReceiptPatch{PaymentMethod: ptr("bitcoin")}, "INVALID_PAYMENT_METHOD"},
		{"debit account", entity.ReceiptPatch{DebitAccount: ptr("雑費")}, "INVALID_DEBIT_ACCOUNT"},
		{"empty store", entity.ReceiptPatch{FinalStoreName: ptr(" ")}, "INVALID_STORE_NAME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newReceiptFixture()
			f.receipts.On("GetByID", mock.Anything, "r-1").Return(storedReceipt(), nil)

			_, err := f.svc.UpdateReceipt(context.Background(), "user-1", "r-1", tt.patch)

			var ve *entity.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.code, ve.Code)
			f.receipts.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		})
	}
}

func TestReceiptService_InvalidInvoiceNumberFlagged(t *testing.T) {
	f := newReceiptFixture()
	stored := storedReceipt()
	stored.OCRConfidence = 0.9
	f.receipts.On("GetByID", mock.Anything, "r-1").Return(stored, nil)
	f.receipts.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.agg.On("Recompute", mock.Anything, "job-1").Return(&entity.JobSummary{}, nil)

	updated, err := f.svc.UpdateReceipt(context.Background(), "user-1", "r-1", entity.ReceiptPatch{
		InvoiceFlag:   ptr(entity.InvoiceFlagYes),
		InvoiceNumber: ptr("t12345"),
	})
	require.NoError(t, err)
	assert.Equal(t, "T12345", *updated.InvoiceNumber)
	assert.Equal(t, []string{review.ReasonInvalidInvoiceNumber}, updated.ReviewReasons)
}

func TestReceiptService_UpdateRollsBackOnAggregateFailure(t *testing.T) {
	f := newReceiptFixture()
	f.receipts.On("GetByID", mock.Anything, "r-1").Return(storedReceipt(), nil)
	f.receipts.On("Update", mock.Anything, mock.Anything).Return(nil)
	f.agg.On("Recompute", mock.Anything, "job-1").Return(nil, errors.New("disk I/O error"))

	_, err := f.svc.UpdateReceipt(context.Background(), "user-1", "r-1", entity.ReceiptPatch{DebitAccount: ptr("交際費")})
	require.Error(t, err)
	assert.Empty(t, f.rules.learned)
}

func TestReceiptService_Ownership(t *testing.T) {
	f := newReceiptFixture()
	f.receipts.On("GetByID", mock.Anything, "r-1").Return(storedReceipt(), nil)
	f.receipts.On("GetByID", mock.Anything, "missing").Return(nil, nil)
	ctx := context.Background()

	_, err := f.svc.GetReceipt(ctx, "user-2", "r-1")
	assert.ErrorIs(t, err, entity.ErrForbidden)

	_, err = f.svc.UpdateReceipt(ctx, "user-2", "r-1", entity.ReceiptPatch{})
	assert.ErrorIs(t, err, entity.ErrForbidden)

	assert.ErrorIs(t, f.svc.DeleteReceipt(ctx, "user-1", "missing"), entity.ErrNotFound)
}

func TestReceiptService_DeleteReaggregates(t *testing.T) {
	f := newReceiptFixture()
	f.receipts.On("GetByID", mock.Anything, "r-1").Return(storedReceipt(), nil)
	f.receipts.On("Delete", mock.Anything, "r-1").Return(nil)
	f.agg.On("Recompute", mock.Anything, "job-1").Return(&entity.JobSummary{}, nil)

	require.NoError(t, f.svc.DeleteReceipt(context.Background(), "user-1", "r-1"))
	f.receipts.AssertExpectations(t)
	f.agg.AssertExpectations(t)
}

func TestReceiptService_ListReceipts(t *testing.T) {
	f := newReceiptFixture()
	f.jobs.On("GetByID", mock.Anything, "job-1").Return(&entity.Job{ID: "job-1", UserID: "user-1"}, nil)
	needs := true
	f.receipts.On("ListByJob", mock.Anything, "job-1", entity.ReceiptFilter{NeedsReview: &needs, Sort: entity.ReceiptSortDateDesc}).
		Return([]*entity.Receipt{
			{ID: "a", FinalTotalAmount: 1000, NeedsReview: true},
			{ID: "b", FinalTotalAmount: 2000, NeedsReview: true},
		}, nil)

	list, err := f.svc.ListReceipts(context.Background(), "user-1", "job-1", entity.ReceiptFilter{NeedsReview: &needs})
	require.NoError(t, err)
	assert.Len(t, list.Receipts, 2)
	assert.Equal(t, entity.JobSummary{ReceiptCount: 2, NeedsReviewCount: 2, TotalAmountSum: 3000}, list.Summary)

	_, err = f.svc.ListReceipts(context.Background(), "user-1", "job-1", entity.ReceiptFilter{Sort: "random"})
	assert.ErrorIs(t, err, entity.ErrValidation)

	_, err = f.svc.ListReceipts(context.Background(), "user-2", "job-1", entity.ReceiptFilter{})
	assert.ErrorIs(t, err, entity.ErrForbidden)
}
