package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/veritaslabs/oraclebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueue struct {
	jobs []domain.ResolutionJob
	err  error
}

func (f *fakeQueue) Enqueue(ctx context.Context, job domain.ResolutionJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeQueue) Next(ctx context.Context) (domain.ResolutionJob, error) {
	return domain.ResolutionJob{}, context.Canceled
}

type fakeAttempts struct {
	rows []domain.Attempt
	err  error
}

func (f *fakeAttempts) Record(ctx context.Context, a domain.Attempt) error { return nil }

func (f *fakeAttempts) Latest(ctx context.Context, marketID string) (domain.Attempt, error) {
	if f.err != nil {
		return domain.Attempt{}, f.err
	}
	for i := len(f.rows) - 1; i >= 0; i-- {
		if f.rows[i].MarketID == marketID {
			return f.rows[i], nil
		}
	}
	return domain.Attempt{}, domain.ErrNotFound
}

func (f *fakeAttempts) History(ctx context.Context, marketID string, limit int) ([]domain.Attempt, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.Attempt
	for _, a := range f.rows {
		if a.MarketID == marketID {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeEvidenceStore struct {
	pkg *domain.EvidencePackage
	err error
}

func (f *fakeEvidenceStore) Store(ctx context.Context, pkg *domain.EvidencePackage) (string, error) {
	return "", errors.New("read only")
}

func (f *fakeEvidenceStore) Retrieve(ctx context.Context, cid string) (*domain.EvidencePackage, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.pkg, nil
}

func (f *fakeEvidenceStore) Verify(ctx context.Context, cid string) (bool, error) {
	return f.err == nil, nil
}

// route dispatches through a mux so PathValue is populated.
func route(pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestTriggerEnqueuesJob(t *testing.T) {
	queue := &fakeQueue{}
	h := NewResolutionHandler(queue, &fakeAttempts{}, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/resolutions",
		strings.NewReader(`{"market_id":"mkt-42"}`))
	rec := route("POST /api/resolutions", h.Trigger, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].MarketID != "mkt-42" {
		t.Errorf("enqueued jobs = %+v", queue.jobs)
	}
	if queue.jobs[0].ID == "" {
		t.Error("job ID not assigned")
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["market_id"] != "mkt-42" {
		t.Errorf("body = %v", body)
	}
}

func TestTriggerRejectsBadRequests(t *testing.T) {
	h := NewResolutionHandler(&fakeQueue{}, nil, testLogger())

	for name, payload := range map[string]string{
		"empty market": `{"market_id":""}`,
		"bad json":     `{market`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/api/resolutions", strings.NewReader(payload))
		rec := route("POST /api/resolutions", h.Trigger, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", name, rec.Code)
		}
	}
}

func TestTriggerQueueFailure(t *testing.T) {
	h := NewResolutionHandler(&fakeQueue{err: errors.New("redis down")}, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/resolutions",
		strings.NewReader(`{"market_id":"mkt-42"}`))
	rec := route("POST /api/resolutions", h.Trigger, req)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestHistoryReturnsAttemptTrail(t *testing.T) {
	done := true
	attempts := &fakeAttempts{rows: []domain.Attempt{
		{ID: "a1", MarketID: "mkt-42", Stage: domain.StageGasGate, ErrorKind: "gas_too_high",
			Confidence: 9100, EvidenceCID: "sha256-aaaa", CreatedAt: time.Now()},
		{ID: "a2", MarketID: "mkt-42", Stage: domain.StageDone, Outcome: &done,
			Confidence: 9100, EvidenceCID: "sha256-aaaa", TxHash: "0xfeed", CreatedAt: time.Now()},
		{ID: "a3", MarketID: "other", Stage: domain.StageDone, CreatedAt: time.Now()},
	}}
	h := NewResolutionHandler(&fakeQueue{}, attempts, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/resolutions/mkt-42", nil)
	rec := route("GET /api/resolutions/{marketID}", h.History, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}

	var body struct {
		MarketID string            `json:"market_id"`
		Attempts []attemptResponse `json:"attempts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.MarketID != "mkt-42" || len(body.Attempts) != 2 {
		t.Fatalf("body = %+v", body)
	}
	if body.Attempts[0].Stage != "gas_gate" || body.Attempts[0].Succeeded {
		t.Errorf("first attempt = %+v", body.Attempts[0])
	}
	if !body.Attempts[1].Succeeded || body.Attempts[1].Outcome == nil || !*body.Attempts[1].Outcome {
		t.Errorf("second attempt = %+v", body.Attempts[1])
	}
}

func TestLatestNotFound(t *testing.T) {
	h := NewResolutionHandler(&fakeQueue{}, &fakeAttempts{}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/resolutions/mkt-42/latest", nil)
	rec := route("GET /api/resolutions/{marketID}/latest", h.Latest, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestEvidenceGetNotFound(t *testing.T) {
	h := NewEvidenceHandler(&fakeEvidenceStore{err: domain.ErrNotFound}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/evidence/sha256-dead", nil)
	rec := route("GET /api/evidence/{cid}", h.Get, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestEvidenceGetReturnsPackage(t *testing.T) {
	pkg := &domain.EvidencePackage{Version: "1.0", MarketID: "mkt-42"}
	h := NewEvidenceHandler(&fakeEvidenceStore{pkg: pkg}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/evidence/sha256-aaaa", nil)
	rec := route("GET /api/evidence/{cid}", h.Get, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var got domain.EvidencePackage
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.MarketID != "mkt-42" {
		t.Errorf("package = %+v", got)
	}
}

func TestHealthCheckDegraded(t *testing.T) {
	checks := map[string]HealthFunc{
		"redis":    func(ctx context.Context) error { return nil },
		"postgres": func(ctx context.Context) error { return errors.New("connection refused") },
	}
	h := NewHealthHandler(checks, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := route("GET /api/health", h.HealthCheck, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "degraded" || body.Dependencies["redis"] != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestHealthCheckAllHealthy(t *testing.T) {
	h := NewHealthHandler(map[string]HealthFunc{
		"redis": func(ctx context.Context) error { return nil },
	}, testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := route("GET /api/health", h.HealthCheck, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
