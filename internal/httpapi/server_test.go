package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/spigell/resume-screener/internal/ai"
	"github.com/spigell/resume-screener/internal/audit"
	"github.com/spigell/resume-screener/internal/extract"
	"github.com/spigell/resume-screener/internal/queue"
	"github.com/spigell/resume-screener/internal/screening"
	"github.com/spigell/resume-screener/internal/store/memory"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const answer = `{"score": 74, "seniority": "mid", "summary": "Good fit", "matchedSkills": ["go"], "missingSkills": []}`

type stubGateway struct {
	err error
}

func (s *stubGateway) Generate(context.Context, ai.Prompt) (*ai.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ai.Response{Text: answer, Provider: "stub", Model: "stub-1"}, nil
}

func (s *stubGateway) Provider() string { return "stub" }
func (s *stubGateway) Model() string    { return "stub-1" }

type fakeEnqueuer struct {
	requests []queue.Request
}

func (f *fakeEnqueuer) Publish(_ context.Context, req queue.Request) error {
	f.requests = append(f.requests, req)
	return nil
}

type harness struct {
	server  *Server
	store   *memory.Store
	gateway *stubGateway
	svc     *screening.Service
	owner   screening.Principal
}

func newHarness(t *testing.T, cfg Config, enqueuer Enqueuer) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.New()
	gw := &stubGateway{}
	svc, err := screening.NewService(screening.Deps{
		Store:   store,
		Catalog: store,
		Gateway: gw,
		Audit:   audit.New(store, zap.NewNop()),
		Logger:  zap.NewNop(),
	}, screening.Config{})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	return &harness{
		server:  New(svc, extract.New(zap.NewNop()), enqueuer, cfg, zap.NewNop()),
		store:   store,
		gateway: gw,
		svc:     svc,
		owner:   screening.Principal{OwnerID: "user-1"},
	}
}

func (h *harness) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerUserID, h.owner.OwnerID)
	req.Header.Set(headerUserEmail, "user@example.com")
	req.Header.Set(headerUserRole, "recruiter")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (h *harness) seed(t *testing.T) (*screening.Job, *screening.Resume) {
	t.Helper()
	ctx := context.Background()

	job, err := h.svc.CreateJob(ctx, h.owner, screening.JobInput{
		Title:       "Go Developer",
		Description: "Write Go services and maintain them.",
	})
	if err != nil {
		t.Fatalf("create job: %v", err)
	}
	resume, err := h.svc.CreateResume(ctx, h.owner, screening.ResumeInput{Text: strings.Repeat("Experienced Go developer. ", 12)})
	if err != nil {
		t.Fatalf("create resume: %v", err)
	}
	return job, resume
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthNeedsNoIdentity(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get(headerRequestID) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestMissingIdentityIsUnauthorized(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/evaluate", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestEvaluateAndReview(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	job, resume := h.seed(t)

	rec := h.do(t, http.MethodPost, "/api/evaluate", evaluateRequest{JobID: job.ID, ResumeID: resume.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var eval screening.Evaluation
	decode(t, rec, &eval)
	if eval.Score != 74 || eval.Status != screening.StatusNew {
		t.Fatalf("unexpected evaluation %+v", eval)
	}

	rec = h.do(t, http.MethodGet, "/api/evaluate/"+eval.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on get, got %d", rec.Code)
	}

	status := "interview"
	rec = h.do(t, http.MethodPatch, "/api/evaluate/"+eval.ID, patchRequest{Status: &status})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on patch, got %d: %s", rec.Code, rec.Body.String())
	}

	bogus := "archived"
	rec = h.do(t, http.MethodPatch, "/api/evaluate/"+eval.ID, patchRequest{Status: &bogus})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodGet, "/api/audit?entityType=evaluation&entityId="+eval.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on audit, got %d", rec.Code)
	}
	var events []audit.Event
	decode(t, rec, &events)
	if len(events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(events))
	}
	if events[0].Message != "Status changed: new → interview" {
		t.Fatalf("unexpected message %q", events[0].Message)
	}
	if events[0].IP != "203.0.113.7" || events[0].Actor.Email != "user@example.com" {
		t.Fatalf("expected request metadata on audit event, got ip=%q email=%q", events[0].IP, events[0].Actor.Email)
	}

	rec = h.do(t, http.MethodGet, "/api/evaluate?limit=abc", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestEvaluateMapsProviderErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		hint   bool
	}{
		{name: "quota", err: ai.NewError(ai.KindQuotaExceeded, "stub", errors.New("billing")), status: http.StatusPaymentRequired, hint: true},
		{name: "rate limited", err: ai.NewError(ai.KindRateLimited, "stub", nil), status: http.StatusTooManyRequests, hint: true},
		{name: "timeout", err: ai.NewError(ai.KindTimeout, "stub", context.DeadlineExceeded), status: http.StatusGatewayTimeout},
		{name: "provider", err: ai.NewError(ai.KindProvider, "stub", errors.New("500")), status: http.StatusBadGateway, hint: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, nil)
			job, resume := h.seed(t)
			h.gateway.err = tt.err

			rec := h.do(t, http.MethodPost, "/api/evaluate", evaluateRequest{JobID: job.ID, ResumeID: resume.ID})
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var body map[string]any
			decode(t, rec, &body)
			if _, ok := body["hint"]; ok != tt.hint {
				t.Fatalf("expected hint=%v, got body %v", tt.hint, body)
			}
		})
	}
}

func TestEvaluateUnknownResumeIsNotFound(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	job, _ := h.seed(t)

	rec := h.do(t, http.MethodPost, "/api/evaluate", evaluateRequest{JobID: job.ID, ResumeID: "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestBatchResponseShape(t *testing.T) {
	h := newHarness(t, Config{}, nil)
	job, resume := h.seed(t)

	rec := h.do(t, http.MethodPost, "/api/evaluate/batch", map[string]any{
		"jobId":     job.ID,
		"resumeIds": []string{resume.ID, "missing"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		OK      bool              `json:"ok"`
		Count   int               `json:"count"`
		Results []json.RawMessage `json:"results"`
	}
	decode(t, rec, &body)
	if !body.OK || body.Count != 2 {
		t.Fatalf("unexpected batch body %s", rec.Body.String())
	}

	var marker map[string]string
	if err := json.Unmarshal(body.Results[1], &marker); err != nil {
		t.Fatalf("decode marker: %v", err)
	}
	if marker["resumeId"] != "missing" || marker["error"] == "" {
		t.Fatalf("unexpected failure marker %v", marker)
	}

	rec = h.do(t, http.MethodPost, "/api/evaluate/batch", map[string]any{
		"jobId": job.ID, "resumeIds": []string{resume.ID}, "max": 0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for max=0, got %d", rec.Code)
	}
}

func TestEvaluationEndpointsAreRateLimited(t *testing.T) {
	h := newHarness(t, Config{RequestsPerMinute: 1}, nil)
	job, resume := h.seed(t)

	first := h.do(t, http.MethodPost, "/api/evaluate", evaluateRequest{JobID: job.ID, ResumeID: resume.ID})
	if first.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}
	second := h.do(t, http.MethodPost, "/api/evaluate", evaluateRequest{JobID: job.ID, ResumeID: resume.ID})
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}

	list := h.do(t, http.MethodGet, "/api/evaluate", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("expected listing to be unthrottled, got %d", list.Code)
	}
}

func TestEnqueue(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		h := newHarness(t, Config{}, nil)
		rec := h.do(t, http.MethodPost, "/api/evaluate/queue", map[string]any{"jobId": "j", "resumeIds": []string{"r"}})
		if rec.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rec.Code)
		}
	})

	t.Run("queued", func(t *testing.T) {
		enq := &fakeEnqueuer{}
		h := newHarness(t, Config{}, enq)
		job, resume := h.seed(t)

		rec := h.do(t, http.MethodPost, "/api/evaluate/queue", map[string]any{"jobId": job.ID, "resumeIds": []string{resume.ID}, "max": 5})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
		}
		if len(enq.requests) != 1 || enq.requests[0].Max != 5 || enq.requests[0].OwnerID != "user-1" {
			t.Fatalf("unexpected queued requests %+v", enq.requests)
		}
	})
}

func TestJobsEndpoints(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	rec := h.do(t, http.MethodPost, "/api/jobs", screening.JobInput{Title: "G", Description: "short"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	rec = h.do(t, http.MethodPost, "/api/jobs", screening.JobInput{Title: "Platform Engineer", Description: "Own the Kubernetes platform end to end."})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/api/jobs", nil)
	var jobs []screening.Job
	decode(t, rec, &jobs)
	if len(jobs) != 1 || jobs[0].Title != "Platform Engineer" {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	rec = h.do(t, http.MethodGet, "/api/jobs/"+jobs[0].ID, nil)
	var job screening.Job
	decode(t, rec, &job)
	if job.ID != jobs[0].ID {
		t.Fatalf("expected job %s, got %s", jobs[0].ID, job.ID)
	}

	rec = h.do(t, http.MethodGet, "/api/jobs/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func docxUpload(t *testing.T, text string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	files := map[string]string{
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8"?><w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>` +
			text + `</w:t></w:r></w:p></w:body></w:document>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8"?><Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"></Relationships>`,
	}
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		_, _ = w.Write([]byte(body))
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func (h *harness) upload(t *testing.T, filename, contentType string, data []byte) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part := make(textproto.MIMEHeader)
	part.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	part.Set("Content-Type", contentType)
	w, err := mw.CreatePart(part)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	_, _ = w.Write(data)
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/resumes", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(headerUserID, h.owner.OwnerID)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestUploadResume(t *testing.T) {
	h := newHarness(t, Config{}, nil)

	long := strings.Repeat("Go engineer with distributed systems experience. ", 6)
	rec := h.upload(t, "cv.docx", "application/octet-stream", docxUpload(t, long))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = h.do(t, http.MethodGet, "/api/resumes", nil)
	var resumes []screening.Resume
	decode(t, rec, &resumes)
	if len(resumes) != 1 || resumes[0].Filename != "cv.docx" || resumes[0].Text != "" {
		t.Fatalf("unexpected resumes %+v", resumes)
	}

	rec = h.upload(t, "cv.docx", extract.MimeDOCX, docxUpload(t, "too short"))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short text, got %d", rec.Code)
	}

	rec = h.upload(t, "cv.txt", "text/plain", []byte(long))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported type, got %d", rec.Code)
	}
}

func TestClientIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name    string
		forward string
		remote  string
		want    string
	}{
		{name: "forwarded chain", forward: "198.51.100.1, 10.0.0.2", remote: "10.0.0.2:1234", want: "198.51.100.1"},
		{name: "remote only", remote: "192.0.2.5:5555", want: "192.0.2.5"},
		{name: "blank forwarded", forward: " ", remote: "192.0.2.6:1", want: "192.0.2.6"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			c.Request.RemoteAddr = tt.remote
			if tt.forward != "" {
				c.Request.Header.Set("X-Forwarded-For", tt.forward)
			}
			if got := clientIP(c); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
