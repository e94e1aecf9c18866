package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/config"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/store"
)

type fakeStore struct {
	jobs    map[string]*models.Job
	results map[string]models.AnalysisResult
	similar map[string][]models.SimilarCase
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:    make(map[string]*models.Job),
		results: make(map[string]models.AnalysisResult),
		similar: make(map[string][]models.SimilarCase),
	}
}

func (f *fakeStore) CreateJob(_ context.Context, p store.CreateJobParams) (models.Job, error) {
	f.nextID++
	job := models.Job{
		ID:       fmt.Sprintf("job-%d", f.nextID),
		Filename: p.Filename,
		FilePath: p.FilePath,
		Status:   models.StatusQueued,
		FileSize: p.FileSize,
	}
	f.jobs[job.ID] = &job
	return job, nil
}

func (f *fakeStore) GetJob(_ context.Context, id string) (models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return models.Job{}, apperrors.ErrNotFound
	}
	return *job, nil
}

func (f *fakeStore) ListJobs(_ context.Context, filter *models.Status, limit, _ int) ([]models.Job, error) {
	var out []models.Job
	for _, job := range f.jobs {
		if filter != nil && job.Status != *filter {
			continue
		}
		out = append(out, *job)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateStatus(_ context.Context, id string, next models.Status, errorMessage *string) error {
	job, ok := f.jobs[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	if !job.Status.CanTransitionTo(next) {
		return apperrors.ErrInvalidTransition
	}
	job.Status = next
	job.ErrorMessage = errorMessage
	return nil
}

func (f *fakeStore) ReprocessJob(_ context.Context, id string) (models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return models.Job{}, apperrors.ErrNotFound
	}
	if !job.Status.Terminal() {
		return models.Job{}, apperrors.ErrJobBusy
	}
	job.Status = models.StatusQueued
	job.Progress = 0
	job.ErrorMessage = nil
	delete(f.results, id)
	delete(f.similar, id)
	return *job, nil
}

func (f *fakeStore) GetResult(_ context.Context, jobID string) (models.AnalysisResult, error) {
	res, ok := f.results[jobID]
	if !ok {
		return models.AnalysisResult{}, apperrors.ErrNotFound
	}
	return res, nil
}

func (f *fakeStore) ListSimilarCases(_ context.Context, jobID string) ([]models.SimilarCase, error) {
	return f.similar[jobID], nil
}

type fakeJobQueue struct {
	enqueued  []string
	queued    map[string]bool
	cancelled []string
}

func (f *fakeJobQueue) Enqueue(_ context.Context, jobID string) error {
	f.enqueued = append(f.enqueued, jobID)
	if f.queued == nil {
		f.queued = make(map[string]bool)
	}
	f.queued[jobID] = true
	return nil
}

func (f *fakeJobQueue) Remove(_ context.Context, jobID string) (int64, error) {
	if f.queued[jobID] {
		delete(f.queued, jobID)
		return 1, nil
	}
	return 0, nil
}

func (f *fakeJobQueue) RequestCancel(_ context.Context, jobID string) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

type fakeUploads struct{ refs map[string][]byte }

func (f *fakeUploads) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	if f.refs == nil {
		f.refs = make(map[string][]byte)
	}
	f.refs[key] = body
	return "local://" + key, nil
}

type fakeAPIEmbedder struct{}

func (fakeAPIEmbedder) Embed(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fakeSearcher struct {
	matches   []models.CaseMatch
	solutions []models.KnowledgeBaseEntry
}

func (f *fakeSearcher) FindSimilar(context.Context, []float32) ([]models.CaseMatch, error) {
	return f.matches, nil
}

func (f *fakeSearcher) FetchSolutions(context.Context, string, float64) ([]models.KnowledgeBaseEntry, error) {
	return f.solutions, nil
}

type testServer struct {
	store    *fakeStore
	queue    *fakeJobQueue
	searcher *fakeSearcher
	handler  http.Handler
}

func newTestServer() *testServer {
	ts := &testServer{
		store:    newFakeStore(),
		queue:    &fakeJobQueue{},
		searcher: &fakeSearcher{},
	}
	cfg := config.Config{MaxUploadBytes: 1 << 20}
	srv := New(cfg, ts.store, ts.queue, &fakeUploads{}, fakeAPIEmbedder{}, ts.searcher, nil)
	ts.handler = srv.Router()
	return ts
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	_, _ = fw.Write(content)
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadAccepted(t *testing.T) {
	ts := newTestServer()
	body, contentType := multipartBody(t, "logs.zip", []byte("PK fake archive bytes"))

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	var resp uploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != models.StatusQueued {
		t.Fatalf("new job status = %s, want queued", resp.Status)
	}
	if len(ts.queue.enqueued) != 1 || ts.queue.enqueued[0] != resp.JobID {
		t.Fatalf("job not enqueued: %v", ts.queue.enqueued)
	}
}

func TestUploadRejectsNonZip(t *testing.T) {
	ts := newTestServer()
	body, contentType := multipartBody(t, "logs.tar.gz", []byte("data"))

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(ts.queue.enqueued) != 0 {
		t.Fatalf("rejected upload must not enqueue")
	}
}

func TestUploadRejectsMissingFile(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xxx")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetJobNotFound(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestListJobsStatusFilter(t *testing.T) {
	ts := newTestServer()
	ts.store.jobs["a"] = &models.Job{ID: "a", Status: models.StatusQueued}
	ts.store.jobs["b"] = &models.Job{ID: "b", Status: models.StatusFailed}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=failed", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Jobs []models.Job `json:"jobs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Jobs) != 1 || resp.Jobs[0].ID != "b" {
		t.Fatalf("filter not applied: %+v", resp.Jobs)
	}
}

func TestListJobsBadStatus(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=bogus", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetResultsConvertsConfidence(t *testing.T) {
	ts := newTestServer()
	ts.store.jobs["done"] = &models.Job{ID: "done", Status: models.StatusCompleted}
	ts.store.results["done"] = models.AnalysisResult{
		JobID:       "done",
		Confidence:  0.87,
		ProcessedAt: time.Now(),
	}
	ts.store.similar["done"] = []models.SimilarCase{{JobID: "done", CaseID: "KB_001", SimilarityScore: 0.95}}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/done/results", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp resultResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Confidence != 87 {
		t.Fatalf("confidence = %f, want percentage 87", resp.Confidence)
	}
	if len(resp.SimilarCases) != 1 {
		t.Fatalf("similar cases missing: %+v", resp.SimilarCases)
	}
}

func TestGetResultsPendingJob(t *testing.T) {
	ts := newTestServer()
	ts.store.jobs["pending"] = &models.Job{ID: "pending", Status: models.StatusEmbedding}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/pending/results", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 until a result exists", rec.Code)
	}
}

func TestReprocessFailedJob(t *testing.T) {
	ts := newTestServer()
	msg := "stage ai_analysis failed: model unavailable"
	ts.store.jobs["f"] = &models.Job{ID: "f", Status: models.StatusFailed, ErrorMessage: &msg}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/f/reprocess", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if ts.store.jobs["f"].Status != models.StatusQueued {
		t.Fatalf("job not reset to queued: %s", ts.store.jobs["f"].Status)
	}
	if len(ts.queue.enqueued) != 1 {
		t.Fatalf("reprocessed job not enqueued")
	}
}

func TestReprocessRunningJobConflicts(t *testing.T) {
	ts := newTestServer()
	ts.store.jobs["r"] = &models.Job{ID: "r", Status: models.StatusRetrieving}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/r/reprocess", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCancelQueuedJob(t *testing.T) {
	ts := newTestServer()
	ts.store.jobs["q"] = &models.Job{ID: "q", Status: models.StatusQueued}
	ts.queue.queued = map[string]bool{"q": true}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/q/cancel", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if ts.store.jobs["q"].Status != models.StatusFailed {
		t.Fatalf("queued cancel should fail the job, got %s", ts.store.jobs["q"].Status)
	}
}

func TestCancelRunningJobIsCooperative(t *testing.T) {
	ts := newTestServer()
	ts.store.jobs["r"] = &models.Job{ID: "r", Status: models.StatusAIAnalysis}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/r/cancel", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if len(ts.queue.cancelled) != 1 || ts.queue.cancelled[0] != "r" {
		t.Fatalf("cancel flag not requested: %v", ts.queue.cancelled)
	}
	if ts.store.jobs["r"].Status != models.StatusAIAnalysis {
		t.Fatalf("running job should keep its status until the worker stops")
	}
}

func TestCancelCompletedJobConflicts(t *testing.T) {
	ts := newTestServer()
	ts.store.jobs["c"] = &models.Job{ID: "c", Status: models.StatusCompleted}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/c/cancel", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestSearchSimilar(t *testing.T) {
	ts := newTestServer()
	ts.searcher.matches = []models.CaseMatch{
		{Case: models.KnowledgeBaseEntry{CaseID: "KB_001", Title: "Database Connection Timeout Resolution"}, Similarity: 0.93},
		{Case: models.KnowledgeBaseEntry{CaseID: "KB_002", Title: "Memory Usage Optimization"}, Similarity: 0.81},
	}

	body := strings.NewReader(`{"query": "database timeout errors", "limit": 1}`)
	req := httptest.NewRequest(http.MethodPost, "/api/search/similar", body)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Matches []searchMatch `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Matches) != 1 || resp.Matches[0].Case.CaseID != "KB_001" {
		t.Fatalf("limit or ordering wrong: %+v", resp.Matches)
	}
}

func TestSearchSimilarRequiresQuery(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest(http.MethodPost, "/api/search/similar", strings.NewReader(`{"query": "  "}`))
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSolutionsBadSuccessRate(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/api/knowledge-base/solutions?min_success_rate=2", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
