package avatar

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/yoockh/veriview/internal/logger"
	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/storage"
)

type fakeRemote struct {
	srv        *httptest.Server
	submits    atomic.Int64
	failFirst  int64 // submits answered with 502 before succeeding
	authStatus int   // when set, every submit answers with it
	lastInput  atomic.Value
}

func newFakeRemote(t *testing.T, failFirst int64, authStatus int) *fakeRemote {
	t.Helper()
	f := &fakeRemote{failFirst: failFirst, authStatus: authStatus}
	mux := http.NewServeMux()
	mux.HandleFunc("/talks", func(w http.ResponseWriter, r *http.Request) {
		n := f.submits.Add(1)
		if f.authStatus != 0 {
			w.WriteHeader(f.authStatus)
			w.Write([]byte(`{"kind":"AuthorizationError"}`))
			return
		}
		if n <= f.failFirst {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Basic ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req talkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.lastInput.Store(req.Script.Input)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":"tlk_1","status":"created"}`))
	})
	mux.HandleFunc("/talks/tlk_1", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "done", "result_url": "http://" + r.Host + "/results/tlk_1.mp4"})
	})
	mux.HandleFunc("/results/tlk_1.mp4", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("fake-mp4-bytes"))
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func testProfiles() Profiles {
	return DefaultProfiles(ProfileOptions{
		InterviewerVoice: "ko-KR-InJoonNeural",
		ProVoice:         "ko-KR-BongJinNeural",
		ConVoice:         "ko-KR-JiMinNeural",
		ProGender:        "male",
	})
}

func newTestRenderer(t *testing.T, f *fakeRemote) (*Renderer, *storage.ContentStore) {
	t.Helper()
	store, err := storage.NewContentStore(t.TempDir(), time.Hour, time.Hour, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	var remote Remote
	if f != nil {
		c := NewClient(f.srv.URL, "user:pass", logger.Discard())
		c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
		remote = c
	}
	r := NewRenderer(RendererOptions{
		Remote:   remote,
		Store:    store,
		Profiles: testProfiles(),
		Deadline: 5 * time.Second,
		Log:      logger.Discard(),
	})
	return r, store
}

func TestRender_CacheHitSkipsRemote(t *testing.T) {
	f := newFakeRemote(t, 0, 0)
	r, _ := newTestRenderer(t, f)
	ctx := context.Background()

	first, err := r.Render(ctx, "Hello.", RoleCon, "opening")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Render(ctx, "Hello.", RoleCon, "opening")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected the same path, got %s and %s", first, second)
	}
	if n := f.submits.Load(); n != 1 {
		t.Errorf("expected exactly one remote submit, got %d", n)
	}
	b, _ := os.ReadFile(second)
	if string(b) != "fake-mp4-bytes" {
		t.Errorf("unexpected clip bytes %q", b)
	}
	if !strings.Contains(first, filepath.Join("cache", "debates", "opening")) {
		t.Errorf("debate render should live under cache/debates/opening, got %s", first)
	}
}

func TestRender_ConcurrentCallersShareOneJob(t *testing.T) {
	f := newFakeRemote(t, 0, 0)
	r, _ := newTestRenderer(t, f)

	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = r.Render(context.Background(), "동시에 요청된 발화입니다.", RolePro, "rebuttal")
		}(i)
	}
	wg.Wait()

	for i := range paths {
		if errs[i] != nil {
			t.Fatalf("caller %d failed: %v", i, errs[i])
		}
		if paths[i] != paths[0] {
			t.Errorf("caller %d got a different path", i)
		}
	}
	if n := f.submits.Load(); n != 1 {
		t.Errorf("expected one remote submit, got %d", n)
	}
}

func TestRender_AuthFailureFallsBack(t *testing.T) {
	f := newFakeRemote(t, 0, http.StatusUnauthorized)
	r, store := newTestRenderer(t, f)

	_, err := r.Render(context.Background(), "상대측 주장을 들었지만", RoleCon, "opening")
	re, ok := AsRenderError(err)
	if !ok {
		t.Fatalf("expected RenderError, got %v", err)
	}
	if re.Reason != ReasonAuth {
		t.Errorf("expected auth reason, got %s", re.Reason)
	}
	if re.Text != "상대측 주장을 들었지만" {
		t.Errorf("expected the utterance as fallback text, got %q", re.Text)
	}
	if n := f.submits.Load(); n != 1 {
		t.Errorf("auth failures must not be retried, got %d submits", n)
	}
	info, _ := store.Info()
	if info.CacheFiles != 0 {
		t.Errorf("no clip should be cached, found %d", info.CacheFiles)
	}
}

func TestRender_QuotaIsTerminal(t *testing.T) {
	f := newFakeRemote(t, 0, http.StatusPaymentRequired)
	r, _ := newTestRenderer(t, f)

	_, err := r.Render(context.Background(), "text", RolePro, "closing")
	if re, ok := AsRenderError(err); !ok || re.Reason != ReasonQuota {
		t.Fatalf("expected quota RenderError, got %v", err)
	}
}

func TestRender_RetriesTransientSubmit(t *testing.T) {
	f := newFakeRemote(t, 2, 0)
	r, _ := newTestRenderer(t, f)

	if _, err := r.Render(context.Background(), "retry me", RolePro, "opening"); err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if n := f.submits.Load(); n != 3 {
		t.Errorf("expected 3 submit attempts, got %d", n)
	}

	f2 := newFakeRemote(t, 5, 0)
	r2, _ := newTestRenderer(t, f2)
	_, err := r2.Render(context.Background(), "retry me", RolePro, "opening")
	if re, ok := AsRenderError(err); !ok || re.Reason != ReasonTransient {
		t.Fatalf("expected transient RenderError, got %v", err)
	}
	if n := f2.submits.Load(); n != 3 {
		t.Errorf("expected attempts capped at 3, got %d", n)
	}
}

func TestRender_TruncatesScript(t *testing.T) {
	f := newFakeRemote(t, 0, 0)
	r, _ := newTestRenderer(t, f)

	long := strings.Repeat("가", 700)
	if _, err := r.Render(context.Background(), long, RoleInterviewer, "INTRO"); err != nil {
		t.Fatal(err)
	}
	got, _ := f.lastInput.Load().(string)
	if utf8.RuneCountInString(got) != MaxScriptRunes {
		t.Errorf("expected %d runes, got %d", MaxScriptRunes, utf8.RuneCountInString(got))
	}
}

func TestRender_DisabledAndEmpty(t *testing.T) {
	r, _ := newTestRenderer(t, nil)
	if r.Enabled() {
		t.Fatal("renderer without remote should be disabled")
	}
	_, err := r.Render(context.Background(), "hello there", RolePro, "opening")
	if re, ok := AsRenderError(err); !ok || re.Reason != ReasonDisabled || re.Text != "hello there" {
		t.Errorf("expected disabled RenderError with text, got %v", err)
	}
	_, err = r.Render(context.Background(), "   ", RolePro, "opening")
	if re, ok := AsRenderError(err); !ok || re.Reason != ReasonEmpty {
		t.Errorf("expected empty RenderError, got %v", err)
	}
}

func TestCacheKey(t *testing.T) {
	p := testProfiles()
	a := CacheKey("Hello.", p[RoleCon], "opening")
	if a != CacheKey("Hello.", p[RoleCon], "opening") {
		t.Error("keys must be deterministic")
	}
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	for _, other := range []string{
		CacheKey("Hello.", p[RoleCon], "closing"),
		CacheKey("Hello.", p[RolePro], "opening"),
		CacheKey("Hello!", p[RoleCon], "opening"),
	} {
		if other == a {
			t.Error("distinct inputs must give distinct keys")
		}
	}
}

func TestProfiles(t *testing.T) {
	p := DefaultProfiles(ProfileOptions{ProVoice: "pv", ConVoice: "cv", ProGender: "female"})
	if p[RolePro].Gender != "female" || p[RoleCon].Gender != "male" {
		t.Errorf("CON should take the other gender: %+v", p)
	}
	if !strings.Contains(p[RolePro].SourceURL, "Sarah") || !strings.Contains(p[RoleCon].SourceURL, "David") {
		t.Errorf("unexpected presenters %s / %s", p[RolePro].SourceURL, p[RoleCon].SourceURL)
	}
	if RoleForStance(models.StanceCon) != RoleCon || RoleForStance(models.StancePro) != RolePro {
		t.Error("unexpected stance mapping")
	}

	path := filepath.Join(t.TempDir(), "profiles.yaml")
	body := "profiles:\n  - role: interviewer\n    voice_id: ko-KR-SunHiNeural\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadProfiles(path, testProfiles())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded[RoleInterviewer].VoiceID != "ko-KR-SunHiNeural" {
		t.Errorf("expected override, got %s", loaded[RoleInterviewer].VoiceID)
	}
	if loaded[RolePro].VoiceID != "ko-KR-BongJinNeural" {
		t.Errorf("unrelated roles must keep their voice, got %s", loaded[RolePro].VoiceID)
	}

	if err := os.WriteFile(path, []byte("profiles:\n  - role: narrator\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfiles(path, testProfiles()); err == nil {
		t.Error("expected unknown role to fail")
	}
}

func TestWait_PollStatusCodes(t *testing.T) {
	tests := []struct {
		name      string
		codes     []int // status answers in order; past the end the talk is done
		want      Reason
		wantPolls int64
	}{
		{"payment required fails fast", []int{http.StatusPaymentRequired}, ReasonQuota, 1},
		{"rate limited keeps polling", []int{http.StatusTooManyRequests, http.StatusTooManyRequests}, "", 3},
		{"server error keeps polling", []int{http.StatusBadGateway}, "", 2},
		{"auth fails fast", []int{http.StatusForbidden}, ReasonAuth, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var polls atomic.Int64
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := polls.Add(1)
				if int(n) <= len(tt.codes) {
					w.WriteHeader(tt.codes[n-1])
					return
				}
				json.NewEncoder(w).Encode(map[string]string{"status": "done", "result_url": "http://example.invalid/x.mp4"})
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "user:pass", logger.Discard())
			c.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			url, err := c.Wait(ctx, "tlk_1")
			if tt.want == "" {
				if err != nil || url == "" {
					t.Fatalf("expected result url, got %q %v", url, err)
				}
			} else {
				re, ok := AsRenderError(err)
				if !ok || re.Reason != tt.want {
					t.Fatalf("expected %s render error, got %v", tt.want, err)
				}
			}
			if n := polls.Load(); n != tt.wantPolls {
				t.Errorf("polled %d times, want %d", n, tt.wantPolls)
			}
		})
	}
}
