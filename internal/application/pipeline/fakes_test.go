package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/garyjia/receipt-scan/internal/application/port"
	"github.com/garyjia/receipt-scan/internal/domain/entity"
	"github.com/stretchr/testify/mock"
)

// store is an in-memory job and receipt store with the same conditional
// semantics as the SQLite repositories
type store struct {
	mu       sync.Mutex
	jobs     map[string]*entity.Job
	receipts map[string]*entity.Receipt
	failOn   map[int]bool // receipt indexes whose Create fails
	// onProgress runs after each accepted progress write
	onProgress func(step string)
	// touches counts accepted heartbeats per job
	touches map[string]int
}

func newStore() *store {
	return &store{
		jobs:     make(map[string]*entity.Job),
		receipts: make(map[string]*entity.Receipt),
		failOn:   make(map[int]bool),
		touches:  make(map[string]int),
	}
}

func (s *store) Create(ctx context.Context, job *entity.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *store) GetByID(ctx context.Context, id string) (*entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (s *store) List(ctx context.Context, userID string, filter entity.JobFilter) ([]*entity.Job, error) {
	return nil, errors.New("not used")
}

func (s *store) Count(ctx context.Context, userID, status string) (int, error) {
	return 0, errors.New("not used")
}

func (s *store) ListQueued(ctx context.Context, limit int) ([]*entity.Job, error) {
	return nil, errors.New("not used")
}

func (s *store) ListStale(ctx context.Context, before time.Time, limit int) ([]*entity.Job, error) {
	return nil, errors.New("not used")
}

func (s *store) UpdateProgress(ctx context.Context, id string, p entity.JobProgress) (bool, error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.Status != entity.JobStatusProcessing || job.ProgressPct > p.Pct {
		s.mu.Unlock()
		return false, nil
	}
	job.ProgressStep = p.Step
	job.ProgressPct = p.Pct
	if p.DetectedReceiptCount != nil {
		job.DetectedReceiptCount = *p.DetectedReceiptCount
	}
	hook := s.onProgress
	s.mu.Unlock()

	if hook != nil {
		hook(p.Step)
	}
	return true, nil
}

func (s *store) Transition(ctx context.Context, id string, t port.JobTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, nil
	}
	for _, from := range t.From {
		if job.Status == from {
			job.Status = t.To
			if t.ErrorCode != "" {
				job.ErrorCode = t.ErrorCode
				job.ErrorMessage = t.ErrorMessage
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *store) RefreshSummary(ctx context.Context, id string) (*entity.JobSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, entity.ErrNotFound
	}
	var summary entity.JobSummary
	for _, r := range s.receipts {
		if r.JobID != id {
			continue
		}
		summary.ReceiptCount++
		summary.TotalAmountSum += r.FinalTotalAmount
		if r.NeedsReview {
			summary.NeedsReviewCount++
		}
	}
	job.NeedsReviewCount = summary.NeedsReviewCount
	job.TotalAmountSum = summary.TotalAmountSum
	return &summary, nil
}

func (s *store) IncrementDegraded(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok {
		job.DegradedFrameCount++
	}
	return nil
}

func (s *store) Touch(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok || job.Status != entity.JobStatusProcessing {
		return false, nil
	}
	job.UpdatedAt = time.Now()
	s.touches[id]++
	return true, nil
}

func (s *store) setStatus(id, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Status = status
}

func (s *store) job(id string) entity.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

func (s *store) receiptsOf(jobID string) []*entity.Receipt {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entity.Receipt
	for _, r := range s.receipts {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceiptIndex < out[j].ReceiptIndex })
	return out
}

// receiptStore exposes the receipt half of store as a port.ReceiptRepository
type receiptStore struct{ *store }

func (r receiptStore) Create(ctx context.Context, receipt *entity.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failOn[receipt.ReceiptIndex] {
		return errors.New("disk I/O error")
	}
	receipt.ID = fmt.Sprintf("r-%d", receipt.ReceiptIndex)
	r.receipts[receipt.ID] = receipt
	return nil
}

func (r receiptStore) GetByID(ctx context.Context, id string) (*entity.Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.receipts[id], nil
}

func (r receiptStore) ListByJob(ctx context.Context, jobID string, filter entity.ReceiptFilter) ([]*entity.Receipt, error) {
	return r.receiptsOf(jobID), nil
}

func (r receiptStore) Update(ctx context.Context, receipt *entity.Receipt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts[receipt.ID] = receipt
	return nil
}

func (r receiptStore) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.receipts, id)
	return nil
}

// mockInference is a testify mock of port.Inference
type mockInference struct {
	mock.Mock
}

func (m *mockInference) Detect(ctx context.Context, image []byte) (*port.DetectionResult, error) {
	args := m.Called(ctx, string(image))
	res, _ := args.Get(0).(*port.DetectionResult)
	return res, args.Error(1)
}

func (m *mockInference) ExtractFields(ctx context.Context, image []byte) (*port.ExtractionResult, error) {
	args := m.Called(ctx, string(image))
	res, _ := args.Get(0).(*port.ExtractionResult)
	return res, args.Error(1)
}

func (m *mockInference) ClassifyAccount(ctx context.Context, in port.ClassificationInput) (*port.ClassificationResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*port.ClassificationResult)
	return res, args.Error(1)
}

func (m *mockInference) Name() string { return "mock" }

type memBlobs struct {
	mu          sync.Mutex
	objects     map[string][]byte
	downloadErr error
	uploadErr   error
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte)}
}

func (b *memBlobs) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.downloadErr != nil {
		return nil, b.downloadErr
	}
	data, ok := b.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return data, nil
}

func (b *memBlobs) Upload(ctx context.Context, bucket, key string, content []byte, contentType string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploadErr != nil {
		return "", b.uploadErr
	}
	b.objects[bucket+"/"+key] = content
	return bucket + "/" + key, nil
}

func (b *memBlobs) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://example.test/" + bucket + "/" + key, nil
}

func (b *memBlobs) SignedUploadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return "https://example.test/upload/" + bucket + "/" + key, nil
}

type tempWorkspace struct {
	root     string
	released bool
	dir      string
}

func (w *tempWorkspace) Acquire(ctx context.Context, jobID string) (string, func(), error) {
	dir := filepath.Join(w.root, jobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", nil, err
	}
	w.dir = dir
	return dir, func() {
		w.released = true
		_ = os.RemoveAll(dir)
	}, nil
}

// fakeSampler writes one file per entry of frames, whose content doubles
// as the key mockInference matches on
type fakeSampler struct {
	frames []string
	err    error
	panic  bool
}

func (s *fakeSampler) ExtractFrames(ctx context.Context, videoPath, outDir string) ([]string, error) {
	if s.panic {
		panic("sampler exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	if _, err := os.Stat(videoPath); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, err
	}
	var paths []string
	for i, content := range s.frames {
		p := filepath.Join(outDir, fmt.Sprintf("frame_%06d.jpg", i+1))
		if err := os.WriteFile(p, []byte(content), 0644); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

type memRules struct {
	mu    sync.Mutex
	rules map[string]*entity.Rule // keyed by exact store name for tests
	hits  map[string]int
}

func (r *memRules) Lookup(ctx context.Context, userID, storeName string) (*entity.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rules[storeName], nil
}

func (r *memRules) RecordHit(ctx context.Context, rule *entity.Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hits == nil {
		r.hits = make(map[string]int)
	}
	r.hits[rule.ID]++
	return nil
}
