package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/dispatcher"
	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/event"
	domainwf "github.com/garyjia/receipt-scan/internal/domain/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockJobRepo struct {
	mock.Mock
}

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

func (m *mockJobRepo) UpdateProgress(ctx context.Context, id string, progress entity.JobProgress) (bool, error) {
	args := m.Called(ctx, id, progress)
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

type recordingHandler struct {
	mu     sync.Mutex
	events []*event.Event
	done   chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{done: make(chan struct{}, 8)}
}

func (h *recordingHandler) handle(ctx context.Context, evt *event.Event) error {
	h.mu.Lock()
	h.events = append(h.events, evt)
	h.mu.Unlock()
	h.done <- struct{}{}
	return nil
}

func (h *recordingHandler) wait(t *testing.T) *event.Event {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(time.Second):
		t.Fatal("event not dispatched")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.events[len(h.events)-1]
}

func TestEngine_CancelUsesEveryPermittedSource(t *testing.T) {
	repo := &mockJobRepo{}
	repo.On("Transition", mock.Anything, "job-1", port.JobTransition{
		From: []string{entity.JobStatusQueued, entity.JobStatusProcessing},
		To:   entity.JobStatusCanceled,
	}).Return(true, nil)

	d := dispatcher.NewDispatcher()
	rec := newRecordingHandler()
	d.Subscribe(event.TypeJobCanceled, rec.handle)

	engine := NewEngine(repo, WithDispatcher(d))
	job := &entity.Job{ID: "job-1", UserID: "user-1", Status: entity.JobStatusQueued}

	ok, err := engine.Cancel(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entity.JobStatusCanceled, job.Status)

	evt := rec.wait(t)
	assert.Equal(t, "job-1", evt.JobID)
	assert.Equal(t, "user-1", evt.UserID)
	assert.Equal(t, entity.JobStatusQueued, evt.GetPayloadString("previous_status"))
	repo.AssertExpectations(t)
}

func TestEngine_RejectsInvalidTrigger(t *testing.T) {
	repo := &mockJobRepo{}
	engine := NewEngine(repo)

	tests := []struct {
		name string
		run  func(job *entity.Job) (bool, error)
		from string
	}{
		{"cancel completed", func(j *entity.Job) (bool, error) { return engine.Cancel(context.Background(), j) }, entity.JobStatusCompleted},
		{"complete queued", func(j *entity.Job) (bool, error) { return engine.Complete(context.Background(), j, "", "") }, entity.JobStatusQueued},
		{"start processing", func(j *entity.Job) (bool, error) { return engine.Start(context.Background(), j) }, entity.JobStatusProcessing},
		{"fail canceled", func(j *entity.Job) (bool, error) { return engine.Fail(context.Background(), j, "X", "") }, entity.JobStatusCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := tt.run(&entity.Job{ID: "job-1", Status: tt.from})
			assert.False(t, ok)
			assert.ErrorIs(t, err, domainwf.ErrInvalidTransition)
		})
	}
	repo.AssertNotCalled(t, "Transition", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_LostRaceIsNotAnError(t *testing.T) {
	repo := &mockJobRepo{}
	repo.On("Transition", mock.Anything, "job-1", mock.MatchedBy(func(tr port.JobTransition) bool {
		return tr.To == entity.JobStatusCompleted
	})).Return(false, nil)

	engine := NewEngine(repo)
	job := &entity.Job{ID: "job-1", Status: entity.JobStatusProcessing}

	ok, err := engine.Complete(context.Background(), job, "", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, entity.JobStatusProcessing, job.Status, "local copy untouched when the store refused")
}

func TestEngine_FailRecordsErrorCode(t *testing.T) {
	repo := &mockJobRepo{}
	repo.On("Transition", mock.Anything, "job-1", port.JobTransition{
		From:         []string{entity.JobStatusQueued, entity.JobStatusProcessing},
		To:           entity.JobStatusFailed,
		ErrorCode:    entity.ErrorCodeFrameExtraction,
		ErrorMessage: "ffmpeg exited 1",
	}).Return(true, nil)

	d := dispatcher.NewDispatcher()
	rec := newRecordingHandler()
	d.Subscribe(event.TypeJobFailed, rec.handle)

	engine := NewEngine(repo, WithDispatcher(d))
	job := &entity.Job{ID: "job-1", UserID: "user-1", Status: entity.JobStatusProcessing}

	ok, err := engine.Fail(context.Background(), job, entity.ErrorCodeFrameExtraction, "ffmpeg exited 1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, entity.ErrorCodeFrameExtraction, job.ErrorCode)

	evt := rec.wait(t)
	assert.Equal(t, entity.ErrorCodeFrameExtraction, evt.GetPayloadString("error_code"))
}
