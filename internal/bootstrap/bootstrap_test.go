package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/yoockh/veriview/config"
	"github.com/yoockh/veriview/internal/logger"
	"github.com/yoockh/veriview/internal/utils"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Port:           "0",
		LogLevel:       "error",
		DataRoot:       t.TempDir(),
		Avatar:         config.AvatarConfig{Disabled: true, ProGender: "male"},
		ClipSizeCap:    1 << 20,
		FrameCap:       5,
		TurnDeadline:   5 * time.Second,
		CacheExpiry:    time.Hour,
		SessionRetain:  time.Hour,
		InactivityTTL:  time.Hour,
		RetentionEvery: time.Hour,
		AnalyzerPolicy: config.PolicyStub,
		Language:       "ko",
		WorkerCap:      1,
	}
}

func TestNew_InMemory(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := New(ctx, testConfig(t), logger.Discard())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer app.Close()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if app.Renderer.Enabled() {
		t.Fatal("renderer should be disabled")
	}
	if len(app.Checks) != 0 {
		t.Fatalf("no backing service checks expected, got %d", len(app.Checks))
	}

	w := httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health status %d", w.Code)
	}
	var health struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &health)
	if health.Status != "ok" {
		t.Fatalf("stub policy should report ok, got %q", health.Status)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/debate/start", strings.NewReader(`{"topic":"AI가 일자리를 대체할 것인가","position":"PRO"}`))
	req.Header.Set("Content-Type", "application/json")
	app.Router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("start status %d: %s", w.Code, w.Body.String())
	}
	var started struct {
		DebateID string `json:"debate_id"`
		Opening  string `json:"ai_opening_text"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &started)
	if started.DebateID == "" || started.Opening == "" {
		t.Fatalf("unexpected start response: %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/debate/"+started.DebateID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status %d", w.Code)
	}

	// no JWT secret and no admin token: admin routes are not mounted
	w = httptest.NewRecorder()
	app.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/storage", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("admin status %d, want 404", w.Code)
	}
}

func TestOpen_UnreachableRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	_, err := Open(context.Background(), cfg, logger.Discard())
	if err == nil {
		t.Fatal("expected error")
	}
	if !utils.IsCode(err, utils.CodeUnavailable) {
		t.Fatalf("expected UNAVAILABLE, got %v", err)
	}
}

func TestNewRenderer_BadProfilesFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Avatar.ProfilesFile = cfg.DataRoot + "/missing.yaml"

	res, err := Open(context.Background(), cfg, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer res.Close()
	if _, err := res.NewRenderer(); err == nil {
		t.Fatal("expected profiles error")
	}
}
