package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/analytics"
	gwhandler "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gateway/handler"
	gwmw "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gateway/middleware"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/internal/gateway/ratelimit"
	apperrors "github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Symptom-Diagnosis-Engine/pkg/proto"
)

type fakeService struct {
	diagnoseErr error
	gotDiagnose proto.DiagnoseRequest
}

func (f *fakeService) Diagnose(_ context.Context, req proto.DiagnoseRequest) (proto.DiagnoseResponse, error) {
	f.gotDiagnose = req
	if f.diagnoseErr != nil {
		return proto.DiagnoseResponse{}, f.diagnoseErr
	}
	return proto.DiagnoseResponse{
		Action:      proto.ActionDirectReport,
		Confidence:  92,
		TopDiseases: []proto.Candidate{{Name: "Fungal Infection", Probability: 92}},
		Report:      &proto.Report{Disease: "Fungal Infection", TriageLevel: proto.TriageMinimal},
	}, nil
}

func (f *fakeService) Ask(_ context.Context, req proto.AskRequest) (proto.AskResponse, error) {
	if len(req.QAHistory) != req.QuestionNumber {
		return proto.AskResponse{}, apperrors.ContractViolation("Expected %d Q&A pairs in history, got %d", req.QuestionNumber, len(req.QAHistory))
	}
	return proto.AskResponse{Action: proto.ActionNeedsNarrowing, Question: "Any fever?", QuestionNumber: req.QuestionNumber + 1}, nil
}

func (f *fakeService) Finalize(context.Context, proto.FinalizeRequest) (proto.FinalizeResponse, error) {
	return proto.FinalizeResponse{Action: proto.ActionDirectReport, Report: &proto.Report{Disease: "Acne"}}, nil
}

func (f *fakeService) Symptoms() proto.SymptomsResponse {
	return proto.SymptomsResponse{Count: 2, Symptoms: []string{"chills", "itching"}}
}

func newServer(t *testing.T, svc *fakeService, opts Options) http.Handler {
	t.Helper()
	limiter := ratelimit.New(time.Minute)
	t.Cleanup(limiter.Close)
	checker := health.NewChecker()
	return New(gwhandler.New(svc), analytics.NewHandler(analytics.NewAggregator(nil)), checker, limiter, metrics.NewUnregistered(), opts)
}

func do(h http.Handler, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (msg, kind string) {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body["error"], body["kind"]
}

func TestDiagnoseRoute(t *testing.T) {
	svc := &fakeService{}
	h := newServer(t, svc, Options{})
	rec := do(h, http.MethodPost, "/api/v1/diagnose", `{"symptoms":["itching"],"history":"none","extra":1}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id not echoed")
	}
	var resp proto.DiagnoseResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Action != proto.ActionDirectReport || resp.Report.Disease != "Fungal Infection" {
		t.Fatalf("resp = %+v", resp)
	}
	if svc.gotDiagnose.History != "none" || len(svc.gotDiagnose.Symptoms) != 1 {
		t.Fatalf("request not passed through: %+v", svc.gotDiagnose)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		svc    *fakeService
		path   string
		body   string
		status int
		kind   string
	}{
		{"contract violation", &fakeService{}, "/api/v1/ask", `{"question_number":2,"qa_history":[{"question":"q","answer":"a"}]}`, http.StatusBadRequest, "contract_violation"},
		{"classifier down", &fakeService{diagnoseErr: apperrors.CollaboratorFailure("classifier", context.DeadlineExceeded)}, "/api/v1/diagnose", `{"symptoms":["x"]}`, http.StatusBadGateway, "collaborator_failure"},
		{"bad json", &fakeService{}, "/api/v1/diagnose", `{"symptoms":`, http.StatusBadRequest, "invalid_input"},
		{"too large", &fakeService{}, "/api/v1/finalize", `{"symptoms":["` + strings.Repeat("a", 2048) + `"]}`, http.StatusRequestEntityTooLarge, "invalid_input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newServer(t, tt.svc, Options{MaxBodyBytes: 1024})
			rec := do(h, http.MethodPost, tt.path, tt.body, nil)
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.status, rec.Body)
			}
			if _, kind := decodeError(t, rec); kind != tt.kind {
				t.Fatalf("kind = %q, want %q", kind, tt.kind)
			}
		})
	}
}

func TestContractViolationMessage(t *testing.T) {
	h := newServer(t, &fakeService{}, Options{})
	rec := do(h, http.MethodPost, "/api/v1/ask", `{"question_number":2,"qa_history":[{"question":"q","answer":"a"}]}`, nil)
	if msg, _ := decodeError(t, rec); msg != "Expected 2 Q&A pairs in history, got 1" {
		t.Fatalf("message = %q", msg)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newServer(t, &fakeService{}, Options{AllowOrigins: []string{"http://localhost:3000"}})
	rec := do(h, http.MethodOptions, "/api/v1/diagnose", "", map[string]string{"Origin": "http://localhost:3000"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatal("origin not allowed")
	}

	rec = do(h, http.MethodGet, "/api/v1/symptoms", "", map[string]string{"Origin": "http://evil.example"})
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin allowed")
	}
}

func doFrom(h http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/symptoms", nil)
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitPerClient(t *testing.T) {
	h := newServer(t, &fakeService{}, Options{RateLimit: 2})
	for i := 0; i < 2; i++ {
		if rec := doFrom(h, "203.0.113.7:4000", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, rec.Code)
		}
	}
	rec := doFrom(h, "203.0.113.7:4001", "")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("status = %d retry-after = %q", rec.Code, rec.Header().Get("Retry-After"))
	}
	if _, kind := decodeError(t, rec); kind != "rate_limited" {
		t.Fatalf("kind = %q", kind)
	}
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	req.RemoteAddr = "203.0.113.7:4002"
	health := httptest.NewRecorder()
	h.ServeHTTP(health, req)
	if health.Code != http.StatusOK {
		t.Fatalf("health should bypass the limiter, got %d", health.Code)
	}
	if rec := doFrom(h, "198.51.100.1:4000", ""); rec.Code != http.StatusOK {
		t.Fatalf("other client limited: %d", rec.Code)
	}
}

func TestRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	h := newServer(t, &fakeService{}, Options{RateLimit: 2})
	allowed := 0
	for i := 0; i < 50; i++ {
		forged := "10.1." + strconv.Itoa(i/250) + "." + strconv.Itoa(i%250)
		if rec := doFrom(h, "203.0.113.9:5000", forged); rec.Code == http.StatusOK {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("%d of 50 requests allowed from one peer, want 2", allowed)
	}
}

func TestRateLimitTrustsConfiguredProxy(t *testing.T) {
	h := newServer(t, &fakeService{}, Options{RateLimit: 1, TrustedProxies: []string{"10.0.0.0/8"}})
	if rec := doFrom(h, "10.0.0.5:6000", "198.51.100.20, 10.0.0.9"); rec.Code != http.StatusOK {
		t.Fatalf("first client status = %d", rec.Code)
	}
	if rec := doFrom(h, "10.0.0.5:6001", "198.51.100.21"); rec.Code != http.StatusOK {
		t.Fatalf("second client behind the proxy limited: %d", rec.Code)
	}
	if rec := doFrom(h, "10.0.0.6:6000", "198.51.100.20"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("repeat client through another proxy = %d, want 429", rec.Code)
	}
}

func TestClientResolver(t *testing.T) {
	trusted := gwmw.NewClientResolver([]string{"10.0.0.0/8", "192.168.1.1", "not-an-ip"})
	tests := []struct {
		name   string
		remote string
		xff    string
		want   string
	}{
		{"untrusted peer ignores header", "203.0.113.1:80", "1.2.3.4", "203.0.113.1"},
		{"trusted peer uses header", "10.2.3.4:80", "1.2.3.4", "1.2.3.4"},
		{"rightmost untrusted hop", "192.168.1.1:80", "6.6.6.6, 1.2.3.4, 10.0.0.1", "1.2.3.4"},
		{"trusted peer without header", "10.2.3.4:80", "", "10.2.3.4"},
		{"all hops trusted", "10.2.3.4:80", "10.0.0.1", "10.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := trusted.ClientIP(req); got != tt.want {
				t.Fatalf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}

type fakeCache struct{ calls int }

func (c *fakeCache) Invalidate(context.Context) (int64, error) {
	c.calls++
	return 3, nil
}

func TestCacheInvalidateRoute(t *testing.T) {
	if rec := do(newServer(t, &fakeService{}, Options{}), http.MethodPost, "/api/v1/cache/invalidate", "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("route should be absent without a cache, got %d", rec.Code)
	}

	cache := &fakeCache{}
	h := newServer(t, &fakeService{}, Options{Cache: cache})
	rec := do(h, http.MethodPost, "/api/v1/cache/invalidate", "", nil)
	if rec.Code != http.StatusOK || cache.calls != 1 {
		t.Fatalf("status = %d calls = %d", rec.Code, cache.calls)
	}
	var body struct {
		RemoteDeleted int64 `json:"remote_deleted"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || body.RemoteDeleted != 3 {
		t.Fatalf("body = %+v err = %v", body, err)
	}
}

func TestReadOnlyRoutes(t *testing.T) {
	h := newServer(t, &fakeService{}, Options{})
	rec := do(h, http.MethodGet, "/api/v1/symptoms", "", nil)
	var s proto.SymptomsResponse
	if err := json.NewDecoder(rec.Body).Decode(&s); err != nil || s.Count != 2 {
		t.Fatalf("symptoms = %+v err = %v", s, err)
	}
	if rec := do(h, http.MethodGet, "/api/v1/analytics", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("analytics status = %d", rec.Code)
	}
	if rec := do(h, http.MethodGet, "/health/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("ready status = %d", rec.Code)
	}
	if rec := do(h, http.MethodPost, "/api/v1/symptoms", "", nil); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST symptoms status = %d", rec.Code)
	}
}
