package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/dispatcher"
	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/application/workflow"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/garyjia/receipt-scan/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// queueRepo hands out queued jobs once each
type queueRepo struct {
	port.JobRepository
	mu     sync.Mutex
	queued []*entity.Job
	stale  []*entity.Job
	before time.Time
}

func (r *queueRepo) ListQueued(ctx context.Context, limit int) ([]*entity.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := limit
	if n > len(r.queued) {
		n = len(r.queued)
	}
	out := r.queued[:n]
	r.queued = r.queued[n:]
	return out, nil
}

func (r *queueRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.Job, error) {
	r.before = before
	return r.stale, nil
}

func (r *queueRepo) push(jobs ...*entity.Job) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queued = append(r.queued, jobs...)
}

type mockEngine struct {
	workflow.Engine
	mock.Mock
}

func (m *mockEngine) Start(ctx context.Context, job *entity.Job) (bool, error) {
	args := m.Called(ctx, job)
	return args.Bool(0), args.Error(1)
}

func (m *mockEngine) Fail(ctx context.Context, job *entity.Job, code, message string) (bool, error) {
	args := m.Called(ctx, job, code, message)
	return args.Bool(0), args.Error(1)
}

type processorFunc func(ctx context.Context, job *entity.Job) error

func (f processorFunc) Run(ctx context.Context, job *entity.Job) error { return f(ctx, job) }

type stubWorker struct {
	name     string
	startErr error
	log      *[]string
}

func (w *stubWorker) Start(ctx context.Context) error {
	*w.log = append(*w.log, "start "+w.name)
	return w.startErr
}

func (w *stubWorker) Stop() error {
	*w.log = append(*w.log, "stop "+w.name)
	return nil
}

func (w *stubWorker) Name() string { return w.name }

func TestWorkerManager_OrderedStartReverseStop(t *testing.T) {
	var log []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&stubWorker{name: "a", log: &log})
	m.Register(&stubWorker{name: "b", log: &log})

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.Equal(t, []string{"start a", "start b", "stop b", "stop a"}, log)
}

func TestWorkerManager_StartFailureRollsBack(t *testing.T) {
	var log []string
	m := NewWorkerManager(zap.NewNop())
	m.Register(&stubWorker{name: "a", log: &log})
	m.Register(&stubWorker{name: "b", log: &log, startErr: errors.New("port in use")})

	err := m.StartAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start b")
	assert.Equal(t, []string{"start a", "start b", "stop a"}, log)
	assert.False(t, m.IsRunning())
}

func TestJobRunner_ProcessesClaimedJobs(t *testing.T) {
	repo := &queueRepo{}
	repo.push(&entity.Job{ID: "job-1"}, &entity.Job{ID: "job-2"}, &entity.Job{ID: "job-3"})

	engine := &mockEngine{}
	engine.On("Start", mock.Anything, mock.MatchedBy(func(j *entity.Job) bool { return j.ID != "job-2" })).Return(true, nil)
	// another instance claimed job-2 first
	engine.On("Start", mock.Anything, mock.MatchedBy(func(j *entity.Job) bool { return j.ID == "job-2" })).Return(false, nil)

	var (
		mu   sync.Mutex
		ran  []string
		done = make(chan struct{}, 3)
	)
	proc := processorFunc(func(ctx context.Context, job *entity.Job) error {
		mu.Lock()
		ran = append(ran, job.ID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})

	r := NewJobRunner(JobRunnerConfig{PollInterval: time.Hour, BatchSize: 10, Concurrency: 2}, repo, engine, proc, zap.NewNop())
	require.NoError(t, r.Start(context.Background()))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	require.NoError(t, r.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"job-1", "job-3"}, ran)
}

func TestJobRunner_BoundsConcurrency(t *testing.T) {
	repo := &queueRepo{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		repo.push(&entity.Job{ID: id})
	}
	engine := &mockEngine{}
	engine.On("Start", mock.Anything, mock.Anything).Return(true, nil)

	var running, peak, total int32
	release := make(chan struct{})
	proc := processorFunc(func(ctx context.Context, job *entity.Job) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		atomic.AddInt32(&total, 1)
		return nil
	})

	r := NewJobRunner(JobRunnerConfig{PollInterval: 10 * time.Millisecond, BatchSize: 5, Concurrency: 2}, repo, engine, proc, zap.NewNop())
	require.NoError(t, r.Start(context.Background()))

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(2), atomic.LoadInt32(&running))
	close(release)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&total) == 5 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Stop())
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestJobRunner_StopCancelsAfterGrace(t *testing.T) {
	repo := &queueRepo{}
	repo.push(&entity.Job{ID: "slow"})
	engine := &mockEngine{}
	engine.On("Start", mock.Anything, mock.Anything).Return(true, nil)

	started := make(chan struct{})
	canceled := make(chan struct{})
	proc := processorFunc(func(ctx context.Context, job *entity.Job) error {
		close(started)
		<-ctx.Done()
		close(canceled)
		return ctx.Err()
	})

	r := NewJobRunner(JobRunnerConfig{PollInterval: time.Hour, Concurrency: 1, ShutdownGrace: 20 * time.Millisecond}, repo, engine, proc, zap.NewNop())
	require.NoError(t, r.Start(context.Background()))
	<-started

	require.NoError(t, r.Stop())
	select {
	case <-canceled:
	default:
		t.Fatal("running job was not canceled")
	}
}

func TestJobRunner_WakesOnQueuedEvent(t *testing.T) {
	repo := &queueRepo{}
	engine := &mockEngine{}
	engine.On("Start", mock.Anything, mock.Anything).Return(true, nil)

	ran := make(chan string, 1)
	proc := processorFunc(func(ctx context.Context, job *entity.Job) error {
		ran <- job.ID
		return nil
	})

	r := NewJobRunner(JobRunnerConfig{PollInterval: time.Hour}, repo, engine, proc, zap.NewNop())
	d := dispatcher.NewDispatcher()
	r.Register(d)
	require.NoError(t, r.Start(context.Background()))

	// let the initial poll find an empty queue
	time.Sleep(20 * time.Millisecond)
	repo.push(&entity.Job{ID: "fresh"})
	d.Dispatch(context.Background(), event.NewEvent(event.TypeJobQueued, "fresh", "user-1", nil))

	select {
	case id := <-ran:
		assert.Equal(t, "fresh", id)
	case <-time.After(2 * time.Second):
		t.Fatal("queued event did not wake the runner")
	}
	require.NoError(t, r.Stop())
	require.NoError(t, d.Close())
}

func TestStaleSweeper_Sweep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo := &queueRepo{stale: []*entity.Job{
		{ID: "stuck", UpdatedAt: now.Add(-2 * time.Hour)},
		{ID: "finished-meanwhile", UpdatedAt: now.Add(-time.Hour)},
		{ID: "db-error", UpdatedAt: now.Add(-time.Hour)},
	}}

	engine := &mockEngine{}
	engine.On("Fail", mock.Anything, mock.MatchedBy(func(j *entity.Job) bool { return j.ID == "stuck" }),
		entity.ErrorCodeStaleJob, "no progress since 2024-05-01T10:00:00Z").Return(true, nil)
	engine.On("Fail", mock.Anything, mock.MatchedBy(func(j *entity.Job) bool { return j.ID == "finished-meanwhile" }),
		entity.ErrorCodeStaleJob, mock.Anything).Return(false, nil)
	engine.On("Fail", mock.Anything, mock.MatchedBy(func(j *entity.Job) bool { return j.ID == "db-error" }),
		entity.ErrorCodeStaleJob, mock.Anything).Return(false, errors.New("database is locked"))

	s, err := NewStaleSweeper(StaleSweeperConfig{MaxAge: 30 * time.Minute}, repo, engine, zap.NewNop())
	require.NoError(t, err)
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, now.Add(-30*time.Minute), repo.before)
	engine.AssertNumberOfCalls(t, "Fail", 3)
}

func TestStaleSweeper_Schedule(t *testing.T) {
	_, err := NewStaleSweeper(StaleSweeperConfig{Schedule: "every now and then"}, &queueRepo{}, &mockEngine{}, zap.NewNop())
	assert.Error(t, err)

	s, err := NewStaleSweeper(StaleSweeperConfig{}, &queueRepo{}, &mockEngine{}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, DefaultStaleSweeperConfig().Schedule, s.config.Schedule)

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop())
}
