package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type exportFixture struct {
	jobs     *mockJobRepo
	receipts *mockReceiptRepo
	exports  *mockExportRepo
	blobs    *mockBlobStore
	renderer *mockRenderer
	svc      *exportServiceImpl
}

func newExportFixture(status string) *exportFixture {
	f := &exportFixture{
		jobs:     &mockJobRepo{},
		receipts: &mockReceiptRepo{},
		exports:  &mockExportRepo{},
		blobs:    &mockBlobStore{},
		renderer: &mockRenderer{},
	}
	f.jobs.On("GetByID", mock.Anything, "job-1").Return(&entity.Job{ID: "job-1", UserID: "user-1", Status: status}, nil)
	f.svc = NewExportService(f.jobs, f.receipts, f.exports, f.blobs, f.renderer, nil, 0, nopLogger{}).(*exportServiceImpl)
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 9, 30, 15, 123000000, time.UTC) }
	return f
}

func TestExportService_CreateExport(t *testing.T) {
	tests := []struct {
		name        string
		req         ExportRequest
		format      string
		contentType string
		wantKey     string
		wantCredit  string
	}{
		{
			name:        "defaults to xlsx",
			req:         ExportRequest{},
			format:      entity.ExportFormatXLSX,
			contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			wantKey:     "user-1/job-1/2024-05-01T09-30-15-123Z.xlsx",
			wantCredit:  entity.DefaultCreditAccount,
		},
		{
			name:        "csv with credit default",
			req:         ExportRequest{Format: "csv", CreditAccountDefault: "普通預金"},
			format:      entity.ExportFormatCSV,
			contentType: "text/csv",
			wantKey:     "user-1/job-1/2024-05-01T09-30-15-123Z.csv",
			wantCredit:  "普通預金",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExportFixture(entity.JobStatusCompleted)
			rows := []*entity.Receipt{{ID: "a"}, {ID: "b"}, {ID: "c"}}
			f.receipts.On("ListByJob", mock.Anything, "job-1", entity.ReceiptFilter{}).Return(rows, nil)
			f.renderer.On("Render", tt.format, mock.MatchedBy(func(doc port.ExportDocument) bool {
				return len(doc.Receipts) == 3 && doc.CreditAccountDefault == tt.wantCredit
			})).Return([]byte("file"), tt.contentType, nil)
			f.blobs.On("Upload", mock.Anything, entity.BucketExports, tt.wantKey, []byte("file"), tt.contentType).
				Return("exports/"+tt.wantKey, nil)
			f.exports.On("Create", mock.Anything, mock.MatchedBy(func(e *entity.Export) bool {
				return e.Format == tt.format &&
					e.RowCount == 3 &&
					e.TemplateVersion == entity.ExportTemplateVersion &&
					e.FileStorageKey == "exports/"+tt.wantKey
			})).Run(func(args mock.Arguments) {
				args.Get(1).(*entity.Export).ID = "exp-1"
			}).Return(nil)
			f.blobs.On("SignedURL", mock.Anything, entity.BucketExports, tt.wantKey, time.Hour).
				Return("http://localhost/blobs/exports/signed", nil)

			res, err := f.svc.CreateExport(context.Background(), "user-1", "job-1", tt.req)
			require.NoError(t, err)

			assert.Equal(t, "exp-1", res.ExportID)
			assert.Equal(t, 3, res.RowCount)
			assert.Equal(t, "http://localhost/blobs/exports/signed", res.DownloadURL)
			assert.Equal(t, f.svc.now().Add(time.Hour), res.ExpiresAt)
			f.blobs.AssertExpectations(t)
			f.exports.AssertExpectations(t)
		})
	}
}

func TestExportService_Rejects(t *testing.T) {
	t.Run("job not completed", func(t *testing.T) {
		f := newExportFixture(entity.JobStatusProcessing)
		_, err := f.svc.CreateExport(context.Background(), "user-1", "job-1", ExportRequest{})
		assert.ErrorIs(t, err, entity.ErrJobNotReady)
	})

	t.Run("unknown format", func(t *testing.T) {
		f := newExportFixture(entity.JobStatusCompleted)
		_, err := f.svc.CreateExport(context.Background(), "user-1", "job-1", ExportRequest{Format: "pdf"})
		require.ErrorIs(t, err, entity.ErrValidation)
		assert.True(t, strings.Contains(err.Error(), "INVALID_FORMAT"))
	})

	t.Run("other user", func(t *testing.T) {
		f := newExportFixture(entity.JobStatusCompleted)
		_, err := f.svc.CreateExport(context.Background(), "user-2", "job-1", ExportRequest{})
		assert.ErrorIs(t, err, entity.ErrForbidden)

		_, err = f.svc.ListExports(context.Background(), "user-2", "job-1")
		assert.ErrorIs(t, err, entity.ErrForbidden)
	})
}

func TestExportService_ListExports(t *testing.T) {
	f := newExportFixture(entity.JobStatusCompleted)
	f.exports.On("ListByJob", mock.Anything, "job-1").Return([]*entity.Export{{ID: "exp-1"}}, nil)

	exports, err := f.svc.ListExports(context.Background(), "user-1", "job-1")
	require.NoError(t, err)
	require.Len(t, exports, 1)
	assert.Equal(t, "exp-1", exports[0].ID)
}
