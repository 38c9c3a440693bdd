package service

import (
	"context"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/stretchr/testify/mock"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// passthroughTx runs fn directly
type passthroughTx struct{ calls int }

func (p *passthroughTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

type mockJobRepo struct{ mock.Mock }

func (m *mockJobRepo) Create(ctx context.Context, job *entity.Job) error {
	return m.Called(ctx, job).Error(0)
}

func (m *mockJobRepo) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	args := m.Called(ctx, id)
	job, _ := args.Get(0).(*entity.Job)
	return job, args.Error(1)
}

func (m *mockJobRepo) List(ctx context.Context, userID string, filter entity.JobFilter) ([]*entity.Job, error) {
	args := m.Called(ctx, userID, filter)
	jobs, _ := args.Get(0).([]*entity.Job)
	return jobs, args.Error(1)
}

func (m *mockJobRepo) Count(ctx context.Context, userID, status string) (int, error) {
	args := m.Called(ctx, userID, status)
	return args.Int(0), args.Error(1)
}

func (m *mockJobRepo) ListQueued(ctx context.Context, limit int) ([]*entity.Job, error) {
	args := m.Called(ctx, limit)
	jobs, _ := args.Get(0).([]*entity.Job)
	return jobs, args.Error(1)
}

func (m *mockJobRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.Job, error) {
	args := m.Called(ctx, before, limit)
	jobs, _ := args.Get(0).([]*entity.Job)
	return jobs, args.Error(1)
}

func (m *mockJobRepo) UpdateProgress(ctx context.Context, id string, p entity.JobProgress) (bool, error) {
	args := m.Called(ctx, id, p)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepo) Transition(ctx context.Context, id string, t port.JobTransition) (bool, error) {
	args := m.Called(ctx, id, t)
	return args.Bool(0), args.Error(1)
}

func (m *mockJobRepo) RefreshSummary(ctx context.Context, id string) (*entity.JobSummary, error) {
	args := m.Called(ctx, id)
	s, _ := args.Get(0).(*entity.JobSummary)
	return s, args.Error(1)
}

func (m *mockJobRepo) IncrementDegraded(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockJobRepo) Touch(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type mockReceiptRepo struct{ mock.Mock }

func (m *mockReceiptRepo) Create(ctx context.Context, r *entity.Receipt) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReceiptRepo) GetByID(ctx context.Context, id string) (*entity.Receipt, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*entity.Receipt)
	return r, args.Error(1)
}

func (m *mockReceiptRepo) ListByJob(ctx context.Context, jobID string, filter entity.ReceiptFilter) ([]*entity.Receipt, error) {
	args := m.Called(ctx, jobID, filter)
	rs, _ := args.Get(0).([]*entity.Receipt)
	return rs, args.Error(1)
}

func (m *mockReceiptRepo) Update(ctx context.Context, r *entity.Receipt) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockReceiptRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type mockRuleRepo struct{ mock.Mock }

func (m *mockRuleRepo) GetByKey(ctx context.Context, userID, key string) (*entity.Rule, error) {
	args := m.Called(ctx, userID, key)
	r, _ := args.Get(0).(*entity.Rule)
	return r, args.Error(1)
}

func (m *mockRuleRepo) IncrementHit(ctx context.Context, id string, usedAt time.Time) error {
	return m.Called(ctx, id, usedAt).Error(0)
}

func (m *mockRuleRepo) Upsert(ctx context.Context, r *entity.Rule) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRuleRepo) List(ctx context.Context, userID string) ([]*entity.Rule, error) {
	args := m.Called(ctx, userID)
	rs, _ := args.Get(0).([]*entity.Rule)
	return rs, args.Error(1)
}

func (m *mockRuleRepo) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRuleRepo) GetByID(ctx context.Context, id string) (*entity.Rule, error) {
	args := m.Called(ctx, id)
	r, _ := args.Get(0).(*entity.Rule)
	return r, args.Error(1)
}

type mockExportRepo struct{ mock.Mock }

func (m *mockExportRepo) Create(ctx context.Context, e *entity.Export) error {
	return m.Called(ctx, e).Error(0)
}

func (m *mockExportRepo) ListByJob(ctx context.Context, jobID string) ([]*entity.Export, error) {
	args := m.Called(ctx, jobID)
	es, _ := args.Get(0).([]*entity.Export)
	return es, args.Error(1)
}

type mockBlobStore struct{ mock.Mock }

func (m *mockBlobStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	args := m.Called(ctx, bucket, key)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockBlobStore) Upload(ctx context.Context, bucket, key string, content []byte, contentType string) (string, error) {
	args := m.Called(ctx, bucket, key, content, contentType)
	return args.String(0), args.Error(1)
}

func (m *mockBlobStore) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockBlobStore) SignedUploadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, bucket, key, ttl)
	return args.String(0), args.Error(1)
}

type mockRenderer struct{ mock.Mock }

func (m *mockRenderer) Render(format string, doc port.ExportDocument) ([]byte, string, error) {
	args := m.Called(format, doc)
	b, _ := args.Get(0).([]byte)
	return b, args.String(1), args.Error(2)
}

type mockEngine struct{ mock.Mock }

func (m *mockEngine) Start(ctx context.Context, job *entity.Job) (bool, error) {
	args := m.Called(ctx, job)
	return args.Bool(0), args.Error(1)
}

func (m *mockEngine) Complete(ctx context.Context, job *entity.Job, code, message string) (bool, error) {
	args := m.Called(ctx, job, code, message)
	return args.Bool(0), args.Error(1)
}

func (m *mockEngine) Fail(ctx context.Context, job *entity.Job, code, message string) (bool, error) {
	args := m.Called(ctx, job, code, message)
	return args.Bool(0), args.Error(1)
}

func (m *mockEngine) Cancel(ctx context.Context, job *entity.Job) (bool, error) {
	args := m.Called(ctx, job)
	if args.Bool(0) {
		job.Status = entity.JobStatusCanceled
	}
	return args.Bool(0), args.Error(1)
}

type mockAggregator struct{ mock.Mock }

func (m *mockAggregator) Recompute(ctx context.Context, jobID string) (*entity.JobSummary, error) {
	args := m.Called(ctx, jobID)
	s, _ := args.Get(0).(*entity.JobSummary)
	return s, args.Error(1)
}
