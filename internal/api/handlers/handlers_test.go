package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/yoockh/veriview/internal/analysis"
	"github.com/yoockh/veriview/internal/api/handlers"
	"github.com/yoockh/veriview/internal/api/routes"
	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/logger"
	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/repositories/memory"
	"github.com/yoockh/veriview/internal/services"
	"github.com/yoockh/veriview/internal/storage"
	"github.com/yoockh/veriview/internal/utils"
)

type fakeDebate struct {
	gotPhase models.Phase
	gotClip  string
	video    services.VideoResult
	err      error
}

func (f *fakeDebate) Start(_ context.Context, topic, position string) (*services.DebateStartResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.DebateStartResponse{DebateID: "d1", Topic: topic, Position: models.Stance(position), AIOpeningText: "안녕하세요.", State: 1}, nil
}

func (f *fakeDebate) SubmitTurn(_ context.Context, id string, phase models.Phase, clip io.Reader) (*services.DebateTurnResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(clip)
	f.gotPhase, f.gotClip = phase, string(b)
	return &services.DebateTurnResponse{DebateID: id, Phase: phase, UserText: "hello", State: 3}, nil
}

func (f *fakeDebate) AIVideo(_ context.Context, req services.AIVideoRequest) (services.VideoResult, error) {
	f.gotPhase = req.Phase
	return f.video, f.err
}

func (f *fakeDebate) Get(_ context.Context, id string) (*models.Session, error) {
	return &models.Session{SessionID: id, Kind: models.KindDebate}, f.err
}

type fakeInterview struct {
	gotType models.QuestionType
}

func (f *fakeInterview) Start(_ context.Context, category string) (*services.InterviewQuestion, error) {
	if category != "ICT" {
		return nil, utils.E(utils.CodeInvalidArgument, "fake", "unknown job category", nil)
	}
	return &services.InterviewQuestion{InterviewID: "i1", Category: category, QuestionType: models.QuestionIntro, QuestionText: "자기소개"}, nil
}

func (f *fakeInterview) CurrentQuestion(_ context.Context, id string) (*services.InterviewQuestion, error) {
	return &services.InterviewQuestion{InterviewID: id, QuestionType: models.QuestionFit, QuestionText: "지원 동기"}, nil
}

func (f *fakeInterview) SubmitAnswer(_ context.Context, id string, q models.QuestionType, _ io.Reader) (*services.InterviewAnswerResponse, error) {
	f.gotType = q
	return &services.InterviewAnswerResponse{InterviewID: id, QuestionType: q, State: 1}, nil
}

func (f *fakeInterview) QuestionVideo(context.Context, string) (services.VideoResult, error) {
	return services.VideoResult{}, utils.E(utils.CodeNotFound, "fake", "session not found", utils.ErrSessionNotFound)
}

func (f *fakeInterview) Get(_ context.Context, id string) (*models.Session, error) {
	return &models.Session{SessionID: id, Kind: models.KindInterview}, nil
}

type fakeStatus struct{ demoted bool }

func (f fakeStatus) Policy() string { return "auto" }
func (f fakeStatus) Status() map[string]analysis.ComponentStatus {
	return map[string]analysis.ComponentStatus{"face": {Variant: "stub", Demoted: f.demoted}}
}

func newRouter(t *testing.T, d *fakeDebate, i *fakeInterview, auth routes.Auth) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := logger.Discard()
	store, err := storage.NewContentStore(t.TempDir(), time.Hour, time.Hour, log)
	if err != nil {
		t.Fatal(err)
	}
	r := gin.New()
	routes.RegisterRoutes(r, routes.Deps{
		Health:    handlers.NewHealthHandler(fakeStatus{}, false, nil),
		Debate:    handlers.NewDebateHandler(d, 1<<20),
		Interview: handlers.NewInterviewHandler(i, 1<<20),
		Admin:     handlers.NewAdminHandler(store, memory.NewSessionRepo(), memory.NewScoreRepo(), nil, log),
		Auth:      auth,
	})
	return r
}

func multipartBody(t *testing.T, field, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile(field, "clip.mp4")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = fw.Write([]byte(content))
	_ = w.Close()
	return &buf, w.FormDataContentType()
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestDebateStart(t *testing.T) {
	r := newRouter(t, &fakeDebate{}, &fakeInterview{}, routes.Auth{})

	rec := do(r, httptest.NewRequest(http.MethodPost, "/debate/start", strings.NewReader(`{"topic":"기본소득","position":"PRO"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["debate_id"] != "d1" || body["ai_opening_text"] == "" {
		t.Errorf("unexpected body %v", body)
	}

	rec = do(r, httptest.NewRequest(http.MethodPost, "/debate/start", strings.NewReader(`{"topic":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestDebateSubmitTurnRouting(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		field  string
		status int
		phase  models.Phase
	}{
		{"opening", "/debate/d1/opening-video", "video", http.StatusOK, models.PhaseOpening},
		{"hyphenated phase", "/debate/d1/counter-rebuttal-video", "video", http.StatusOK, models.PhaseCounterRebuttal},
		{"file alias", "/debate/d1/closing-video", "file", http.StatusOK, models.PhaseClosing},
		{"unknown phase", "/debate/d1/recess-video", "video", http.StatusNotFound, ""},
		{"missing clip", "/debate/d1/opening-video", "other", http.StatusBadRequest, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDebate{}
			r := newRouter(t, d, &fakeInterview{}, routes.Auth{})
			body, ct := multipartBody(t, tt.field, "clip-bytes")
			req := httptest.NewRequest(http.MethodPost, tt.path, body)
			req.Header.Set("Content-Type", ct)

			rec := do(r, req)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body)
			}
			if tt.phase != "" && (d.gotPhase != tt.phase || d.gotClip != "clip-bytes") {
				t.Errorf("service got phase=%q clip=%q", d.gotPhase, d.gotClip)
			}
		})
	}
}

func TestDebateErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   utils.Code
	}{
		{utils.E(utils.CodeConflict, "x", "session is closed", utils.ErrSessionClosed), http.StatusConflict, utils.CodeConflict},
		{utils.E(utils.CodeNotFound, "x", "session not found", utils.ErrSessionNotFound), http.StatusNotFound, utils.CodeNotFound},
		{utils.E(utils.CodeTimeout, "x", "turn deadline exceeded", utils.ErrTurnTimeout), http.StatusGatewayTimeout, utils.CodeTimeout},
		{utils.E(utils.CodeTooLarge, "x", "clip too large", utils.ErrMedia), http.StatusRequestEntityTooLarge, utils.CodeTooLarge},
	}
	for _, tt := range tests {
		r := newRouter(t, &fakeDebate{err: tt.err}, &fakeInterview{}, routes.Auth{})
		body, ct := multipartBody(t, "video", "x")
		req := httptest.NewRequest(http.MethodPost, "/debate/d1/opening-video", body)
		req.Header.Set("Content-Type", ct)
		rec := do(r, req)
		var e handlers.APIError
		_ = json.Unmarshal(rec.Body.Bytes(), &e)
		if rec.Code != tt.status || e.Code != tt.code {
			t.Errorf("%v: got %d %s", tt.err, rec.Code, e.Code)
		}
	}
}

func TestAIVideo(t *testing.T) {
	t.Run("fallback text", func(t *testing.T) {
		d := &fakeDebate{video: services.VideoResult{
			Text:         "상대측 주장을 들었지만",
			FallbackText: "상대측 주장을 들었지만",
			Err:          &avatar.RenderError{Reason: avatar.ReasonAuth},
		}}
		r := newRouter(t, d, &fakeInterview{}, routes.Auth{})
		rec := do(r, httptest.NewRequest(http.MethodPost, "/debate/ai-rebuttal-video", strings.NewReader(`{"debate_id":"d1"}`)))
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		var body map[string]any
		_ = json.Unmarshal(rec.Body.Bytes(), &body)
		if body["fallback_text"] != "상대측 주장을 들었지만" || body["error"] == nil {
			t.Errorf("unexpected body %v", body)
		}
		if d.gotPhase != models.PhaseRebuttal {
			t.Errorf("unexpected phase %q", d.gotPhase)
		}
	})

	t.Run("clip", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.mp4")
		_ = os.WriteFile(path, []byte("mp4"), 0o644)
		r := newRouter(t, &fakeDebate{video: services.VideoResult{Path: path}}, &fakeInterview{}, routes.Auth{})
		rec := do(r, httptest.NewRequest(http.MethodPost, "/debate/ai-opening-video", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "mp4" {
			t.Fatalf("unexpected response %d %q", rec.Code, rec.Body)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "video/mp4" {
			t.Errorf("unexpected content type %q", ct)
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		r := newRouter(t, &fakeDebate{}, &fakeInterview{}, routes.Auth{})
		if rec := do(r, httptest.NewRequest(http.MethodPost, "/debate/ai-nap-video", nil)); rec.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rec.Code)
		}
	})
}

func TestInterviewRoutes(t *testing.T) {
	i := &fakeInterview{}
	r := newRouter(t, &fakeDebate{}, i, routes.Auth{})

	rec := do(r, httptest.NewRequest(http.MethodPost, "/interview/start", strings.NewReader(`{"type":"ICT"}`)))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"first_question"`) {
		t.Fatalf("unexpected start response %d %s", rec.Code, rec.Body)
	}
	if rec := do(r, httptest.NewRequest(http.MethodPost, "/interview/start", strings.NewReader(`{"type":"chef"}`))); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
	if rec := do(r, httptest.NewRequest(http.MethodGet, "/interview/i1/question", nil)); !strings.Contains(rec.Body.String(), `"question_type":"FIT"`) {
		t.Errorf("unexpected question %s", rec.Body)
	}

	body, ct := multipartBody(t, "video", "x")
	req := httptest.NewRequest(http.MethodPost, "/interview/i1/tech/answer-video", body)
	req.Header.Set("Content-Type", ct)
	if rec := do(r, req); rec.Code != http.StatusOK || i.gotType != models.QuestionTech {
		t.Errorf("unexpected answer response %d type=%s", rec.Code, i.gotType)
	}

	if rec := do(r, httptest.NewRequest(http.MethodPost, "/interview/i1/question-video", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := handlers.NewHealthHandler(fakeStatus{demoted: true}, true, map[string]func(context.Context) error{
		"redis": func(context.Context) error { return nil },
	})
	r.GET("/health", h.Health)

	rec := do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body struct {
		Status   string                     `json:"status"`
		Services map[string]json.RawMessage `json:"services"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "degraded" {
		t.Errorf("demoted analyzer should report degraded, got %s", body.Status)
	}
	for _, k := range []string{"face", "avatar", "redis", "analyzer_policy"} {
		if _, ok := body.Services[k]; !ok {
			t.Errorf("missing service %q", k)
		}
	}
}

func TestAdminGuard(t *testing.T) {
	hash, err := utils.HashToken("s3cret")
	if err != nil {
		t.Fatal(err)
	}
	r := newRouter(t, &fakeDebate{}, &fakeInterview{}, routes.Auth{AdminTokenHash: hash})

	if rec := do(r, httptest.NewRequest(http.MethodGet, "/admin/storage", nil)); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/storage", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	if rec := do(r, req); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for a bad token, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/storage", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if rec := do(r, req); rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"cache_files"`) {
		t.Errorf("unexpected storage response %d %s", rec.Code, rec.Body)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/sessions/d1/scores?limit=x", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	if rec := do(r, req); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for a bad limit, got %d", rec.Code)
	}

	// no credentials configured: admin routes are not mounted
	open := newRouter(t, &fakeDebate{}, &fakeInterview{}, routes.Auth{})
	if rec := do(open, httptest.NewRequest(http.MethodGet, "/admin/storage", nil)); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAdminDeleteSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	log := logger.Discard()
	ctx := context.Background()
	store, err := storage.NewContentStore(t.TempDir(), time.Hour, time.Hour, log)
	if err != nil {
		t.Fatal(err)
	}
	sessions := memory.NewSessionRepo()
	if err := sessions.Create(ctx, &models.Session{SessionID: "d9", Kind: models.KindDebate, Status: models.StatusClosed}); err != nil {
		t.Fatal(err)
	}
	clip, _, err := store.SaveClip(models.KindDebate, "d9", "closing", strings.NewReader("final"), 0)
	if err != nil {
		t.Fatal(err)
	}

	const secret = "jwt-test-secret"
	r := gin.New()
	routes.RegisterRoutes(r, routes.Deps{
		Health:    handlers.NewHealthHandler(fakeStatus{}, false, nil),
		Debate:    handlers.NewDebateHandler(&fakeDebate{}, 1<<20),
		Interview: handlers.NewInterviewHandler(&fakeInterview{}, 1<<20),
		Admin:     handlers.NewAdminHandler(store, sessions, nil, nil, log),
		Auth:      routes.Auth{JWTSecret: secret},
	})
	bearer := func(role string) string {
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "u1", "exp": time.Now().Add(time.Hour).Unix(),
			"app_metadata": map[string]any{"role": role},
		}).SignedString([]byte(secret))
		if err != nil {
			t.Fatal(err)
		}
		return "Bearer " + tok
	}
	call := func(method, path, role string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		req.Header.Set("Authorization", bearer(role))
		return do(r, req)
	}

	if rec := call(http.MethodGet, "/admin/storage", "operator"); rec.Code != http.StatusOK {
		t.Errorf("operators may read storage, got %d", rec.Code)
	}
	if rec := call(http.MethodDelete, "/admin/sessions/d9", "operator"); rec.Code != http.StatusForbidden {
		t.Errorf("operators may not delete, got %d", rec.Code)
	}
	if rec := call(http.MethodDelete, "/admin/cache", "operator"); rec.Code != http.StatusForbidden {
		t.Errorf("operators may not clear the cache, got %d", rec.Code)
	}

	if rec := call(http.MethodDelete, "/admin/sessions/d9", "admin"); rec.Code != http.StatusOK {
		t.Fatalf("delete status %d: %s", rec.Code, rec.Body)
	}
	if _, err := sessions.Get(ctx, "d9"); err == nil {
		t.Error("session record should be gone")
	}
	if _, err := os.Stat(filepath.Dir(clip)); !os.IsNotExist(err) {
		t.Error("session directory should be gone")
	}
	if rec := call(http.MethodDelete, "/admin/sessions/d9", "admin"); rec.Code != http.StatusNotFound {
		t.Errorf("second delete should be 404, got %d", rec.Code)
	}
}
