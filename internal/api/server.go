// Package api exposes the REST surface: archive upload, job inspection,
// result retrieval, similarity search, and knowledge-base browsing.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shanojpillai/intelligent-log-analyzer/internal/apperrors"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/config"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/models"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/ratelimit"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/store"
	"github.com/shanojpillai/intelligent-log-analyzer/internal/telemetry"
)

// JobStore is the persistence surface the handlers need.
type JobStore interface {
	CreateJob(ctx context.Context, p store.CreateJobParams) (models.Job, error)
	GetJob(ctx context.Context, id string) (models.Job, error)
	ListJobs(ctx context.Context, filterStatus *models.Status, limit, offset int) ([]models.Job, error)
	UpdateStatus(ctx context.Context, id string, next models.Status, errorMessage *string) error
	ReprocessJob(ctx context.Context, id string) (models.Job, error)
	GetResult(ctx context.Context, jobID string) (models.AnalysisResult, error)
	ListSimilarCases(ctx context.Context, jobID string) ([]models.SimilarCase, error)
}

// JobQueue covers the queue operations reachable from HTTP.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID string) error
	Remove(ctx context.Context, jobID string) (int64, error)
	RequestCancel(ctx context.Context, jobID string) error
}

// Uploads stores raw archives and returns a durable reference.
type Uploads interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// Embedder vectorizes free-text queries for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher answers similarity and solution queries over the knowledge base.
type Searcher interface {
	FindSimilar(ctx context.Context, embedding []float32) ([]models.CaseMatch, error)
	FetchSolutions(ctx context.Context, category string, minSuccessRate float64) ([]models.KnowledgeBaseEntry, error)
}

// Server wires HTTP handlers for the analyzer API.
type Server struct {
	cfg      config.Config
	store    JobStore
	queue    JobQueue
	uploads  Uploads
	embedder Embedder
	searcher Searcher
	limiter  *ratelimit.TokenBucket
}

// New constructs the API server.
func New(cfg config.Config, st JobStore, q JobQueue, uploads Uploads, emb Embedder, searcher Searcher, limiter *ratelimit.TokenBucket) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		queue:    q,
		uploads:  uploads,
		embedder: emb,
		searcher: searcher,
		limiter:  limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/results", s.handleGetResults)
		r.Post("/jobs/{id}/reprocess", s.handleReprocess)
		r.Post("/jobs/{id}/cancel", s.handleCancel)
		r.Post("/search/similar", s.handleSearchSimilar)
		r.Get("/knowledge-base/solutions", s.handleSolutions)
	})
	return r
}

type uploadResponse struct {
	JobID    string        `json:"job_id"`
	Filename string        `json:"filename"`
	Status   models.Status `json:"status"`
	FileSize int64         `json:"file_size"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		key := "rl:upload:" + clientKey(r)
		allowed, _, err := s.limiter.Allow(r.Context(), key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "rate limit error")
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			writeError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".zip") {
		writeError(w, http.StatusBadRequest, "only .zip archives are accepted")
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "upload truncated or too large")
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "empty upload")
		return
	}

	key := fmt.Sprintf("uploads/%d_%s", time.Now().UnixNano(), filepath.Base(header.Filename))
	ref, err := s.uploads.Put(r.Context(), key, data, "application/zip")
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage unavailable")
		return
	}

	job, err := s.store.CreateJob(r.Context(), store.CreateJobParams{
		Filename: filepath.Base(header.Filename),
		FilePath: ref,
		FileSize: int64(len(data)),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not create job")
		return
	}

	if err := s.queue.Enqueue(r.Context(), job.ID); err != nil {
		msg := "enqueue failed: " + err.Error()
		_ = s.store.UpdateStatus(r.Context(), job.ID, models.StatusFailed, &msg)
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	telemetry.JobsSubmitted.Inc()

	writeJSON(w, http.StatusAccepted, uploadResponse{
		JobID:    job.ID,
		Filename: job.Filename,
		Status:   job.Status,
		FileSize: job.FileSize,
	})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var filter *models.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := models.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter = &status
	}
	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 200 {
		limit = 50
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	jobs, err := s.store.ListJobs(r.Context(), filter, limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not list jobs")
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// resultResponse presents the stored result with confidence as a percentage.
// The persisted value stays a [0,1] fraction.
type resultResponse struct {
	JobID                string               `json:"job_id"`
	FilesProcessed       int                  `json:"files_processed"`
	IssuesFound          int                  `json:"issues_found"`
	Confidence           float64              `json:"confidence"`
	KeyFindings          []string             `json:"key_findings"`
	SeverityDistribution map[string]int       `json:"severity_distribution"`
	AIAnalysis           models.AIPayload     `json:"ai_analysis"`
	SimilarCases         []models.SimilarCase `json:"similar_cases"`
	ProcessedAt          time.Time            `json:"processed_at"`
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.store.GetResult(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	similar, err := s.store.ListSimilarCases(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load similar cases")
		return
	}
	if similar == nil {
		similar = []models.SimilarCase{}
	}

	writeJSON(w, http.StatusOK, resultResponse{
		JobID:                res.JobID,
		FilesProcessed:       res.FilesProcessed,
		IssuesFound:          res.IssuesFound,
		Confidence:           res.Confidence * 100,
		KeyFindings:          res.KeyFindings,
		SeverityDistribution: res.SeverityDistribution,
		AIAnalysis:           res.AIAnalysis,
		SimilarCases:         similar,
		ProcessedAt:          res.ProcessedAt,
	})
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.ReprocessJob(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if err := s.queue.Enqueue(r.Context(), job.ID); err != nil {
		msg := "enqueue failed: " + err.Error()
		_ = s.store.UpdateStatus(r.Context(), job.ID, models.StatusFailed, &msg)
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	telemetry.JobsSubmitted.Inc()
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.store.GetJob(r.Context(), id)
	if err != nil {
		writeAppError(w, err)
		return
	}
	if job.Status.Terminal() {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}

	removed, err := s.queue.Remove(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	if removed > 0 {
		msg := "canceled before processing"
		if err := s.store.UpdateStatus(r.Context(), id, models.StatusFailed, &msg); err != nil {
			writeAppError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "canceled"})
		return
	}

	// Already dispatched: flag it and let the worker stop between stages.
	if err := s.queue.RequestCancel(r.Context(), id); err != nil {
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel_requested"})
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchMatch struct {
	Case       models.KnowledgeBaseEntry `json:"case"`
	Similarity float64                   `json:"similarity"`
}

func (s *Server) handleSearchSimilar(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	vector, err := s.embedder.Embed(r.Context(), req.Query)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "embedding backend unavailable")
		return
	}
	matches, err := s.searcher.FindSimilar(r.Context(), vector)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "vector index unavailable")
		return
	}
	if req.Limit > 0 && len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}

	out := make([]searchMatch, 0, len(matches))
	for _, m := range matches {
		out = append(out, searchMatch{Case: m.Case, Similarity: m.Similarity})
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": out})
}

func (s *Server) handleSolutions(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	minRate := 0.0
	if raw := r.URL.Query().Get("min_success_rate"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 || v > 1 {
			writeError(w, http.StatusBadRequest, "min_success_rate must be in [0,1]")
			return
		}
		minRate = v
	}

	entries, err := s.searcher.FetchSolutions(r.Context(), category, minRate)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not load solutions")
		return
	}
	if entries == nil {
		entries = []models.KnowledgeBaseEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"solutions": entries})
}

func clientKey(r *http.Request) string {
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		return strings.TrimSpace(strings.Split(v, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

// writeAppError maps the error taxonomy onto HTTP statuses.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, apperrors.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrJobBusy):
		writeError(w, http.StatusConflict, "job has an active run")
	case errors.Is(err, apperrors.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
