package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/storage"
	"github.com/yoockh/veriview/internal/utils"
)

// opsEnv points the CLI at a throwaway data root with every external store
// unset.
func opsEnv(t *testing.T) string {
	t.Helper()
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, "VERIVIEW_") {
			key := kv[:strings.Index(kv, "=")]
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	root := t.TempDir()
	t.Setenv("VERIVIEW_DATA_ROOT", root)
	t.Setenv("VERIVIEW_AVATAR_DISABLED", "true")
	t.Setenv("VERIVIEW_ANALYZER_POLICY", "stub")
	return root
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var out, errOut bytes.Buffer
	code := Execute(context.Background(), args, &out, &errOut)
	return code, out.String(), errOut.String()
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"config", fmt.Errorf("%w: missing key", utils.ErrConfig), ExitConfig},
		{"wrapped config", utils.E(utils.CodeInvalidArgument, "op", "bad policy", utils.ErrConfig), ExitConfig},
		{"analyzer", utils.E(utils.CodeUnavailable, "op", "face", utils.ErrAnalyzerUnavailable), ExitDependency},
		{"store down", utils.E(utils.CodeUnavailable, "op", "mongo connect", errors.New("refused")), ExitDependency},
		{"render auth", &avatar.RenderError{Reason: avatar.ReasonAuth}, ExitConfig},
		{"render quota", &avatar.RenderError{Reason: avatar.ReasonQuota}, ExitDependency},
		{"interrupted", fmt.Errorf("sweep: %w", context.Canceled), ExitInterrupted},
		{"other", errors.New("boom"), ExitConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Fatalf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCheck_StubPolicy(t *testing.T) {
	opsEnv(t)

	code, out, errOut := run(t, "check")
	if code != ExitOK {
		t.Fatalf("exit %d, stderr %s", code, errOut)
	}
	if !strings.Contains(out, "analyzer policy: stub") {
		t.Fatalf("missing policy line: %s", out)
	}
	for _, c := range []string{"asr", "face", "prosody"} {
		if !strings.Contains(out, c) {
			t.Fatalf("missing %s status: %s", c, out)
		}
	}
}

func TestCheck_MissingAvatarKey(t *testing.T) {
	opsEnv(t)
	t.Setenv("VERIVIEW_AVATAR_DISABLED", "false")

	code, _, errOut := run(t, "check")
	if code != ExitConfig {
		t.Fatalf("exit %d, want %d (%s)", code, ExitConfig, errOut)
	}
	if !strings.Contains(errOut, "avatar api key") {
		t.Fatalf("stderr should name the missing key: %s", errOut)
	}
}

func TestCheck_NativeAnalyzerUnavailable(t *testing.T) {
	opsEnv(t)
	t.Setenv("VERIVIEW_ANALYZER_POLICY", "native")
	t.Setenv("VERIVIEW_OPENFACE_PATH", filepath.Join(t.TempDir(), "missing-FeatureExtraction"))

	code, _, errOut := run(t, "check")
	if code != ExitDependency {
		t.Fatalf("exit %d, want %d (%s)", code, ExitDependency, errOut)
	}
}

func TestCheck_UnreachableStore(t *testing.T) {
	opsEnv(t)
	t.Setenv("VERIVIEW_REDIS_URL", "redis://127.0.0.1:1/0")

	code, _, errOut := run(t, "check")
	if code != ExitDependency {
		t.Fatalf("exit %d, want %d (%s)", code, ExitDependency, errOut)
	}
}

func TestStorageInfoAndClear(t *testing.T) {
	root := opsEnv(t)

	cached := filepath.Join(root, "cache", "debates", "opening", "abc.mp4")
	if err := os.MkdirAll(filepath.Dir(cached), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cached, []byte("mp4"), 0o644); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := run(t, "storage", "info")
	if code != ExitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	var info storage.Info
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("info is not json: %v\n%s", err, out)
	}
	if info.CacheFiles != 1 || info.CacheBytes != 3 {
		t.Fatalf("unexpected info: %+v", info)
	}

	code, out, errOut = run(t, "storage", "clear")
	if code != ExitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, "removed 1") {
		t.Fatalf("unexpected clear output: %s", out)
	}
	if _, err := os.Stat(cached); !os.IsNotExist(err) {
		t.Fatalf("cached clip should be gone, stat err %v", err)
	}
}

func TestExpire_EmptyStore(t *testing.T) {
	opsEnv(t)

	code, out, errOut := run(t, "expire")
	if code != ExitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if !strings.Contains(out, `"sessions_expired": 0`) {
		t.Fatalf("unexpected report: %s", out)
	}
}

func TestRender_AuthFailure(t *testing.T) {
	opsEnv(t)
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"kind":"AuthorizationError"}`))
	}))
	defer srv.Close()
	t.Setenv("VERIVIEW_AVATAR_DISABLED", "false")
	t.Setenv("VERIVIEW_AVATAR_API_KEY", "user:wrong")
	t.Setenv("VERIVIEW_AVATAR_BASE_URL", srv.URL)

	code, out, errOut := run(t, "render", "--role", "pro", "--phase", "opening", "AI는 생산성을 높입니다.")
	if code != ExitConfig {
		t.Fatalf("exit %d, want %d (%s)", code, ExitConfig, errOut)
	}
	if out != "" {
		t.Fatalf("nothing should be printed on failure: %q", out)
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("auth failures are not retried, got %d calls", n)
	}
}

func TestRender_UnknownRole(t *testing.T) {
	opsEnv(t)
	code, _, _ := run(t, "render", "--role", "judge", "hello")
	if code != ExitConfig {
		t.Fatalf("exit %d, want %d", code, ExitConfig)
	}
}

func TestHashToken(t *testing.T) {
	const token = "ops-admin-token-0123"
	code, out, errOut := run(t, "hash-token", token)
	if code != ExitOK {
		t.Fatalf("exit %d: %s", code, errOut)
	}
	if err := utils.CheckToken(strings.TrimSpace(out), token); err != nil {
		t.Fatalf("printed hash does not verify: %v", err)
	}

	if code, _, _ := run(t, "hash-token", "short"); code != ExitConfig {
		t.Fatalf("short token exit %d, want %d", code, ExitConfig)
	}
}
