package services

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yoockh/veriview/internal/analysis"
	"github.com/yoockh/veriview/internal/analysis/face"
	"github.com/yoockh/veriview/internal/analysis/prosody"
	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/cache"
	"github.com/yoockh/veriview/internal/events"
	"github.com/yoockh/veriview/internal/logger"
	"github.com/yoockh/veriview/internal/media"
	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/providers/stt"
	"github.com/yoockh/veriview/internal/repositories"
	"github.com/yoockh/veriview/internal/repositories/memory"
	"github.com/yoockh/veriview/internal/storage"
	"github.com/yoockh/veriview/internal/utils"
	"github.com/yoockh/veriview/internal/workers"
)

// fakeSplitter treats the clip bytes as the audio track. Clips starting with
// "corrupt" are undecodable and clips starting with "slow" hang until the
// context ends.
type fakeSplitter struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSplitter) Split(ctx context.Context, clipPath, audioOut, framesDir string) (*media.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	b, err := os.ReadFile(clipPath)
	if err != nil {
		return nil, err
	}
	switch {
	case bytes.HasPrefix(b, []byte("corrupt")):
		return nil, utils.E(utils.CodeInvalidArgument, "fake.Split", "undecodable", utils.ErrMedia)
	case bytes.HasPrefix(b, []byte("slow")):
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := os.WriteFile(audioOut, b, 0o644); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(framesDir, 0o755); err != nil {
		return nil, err
	}
	frame := filepath.Join(framesDir, "f.jpg")
	if err := os.WriteFile(frame, []byte("jpg"), 0o644); err != nil {
		return nil, err
	}
	return &media.Result{AudioPath: audioOut, Frames: []string{frame}, Duration: 3}, nil
}

func (f *fakeSplitter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// echoASR transcribes an audio file as its own contents.
type echoASR struct{}

func (echoASR) Name() string { return "echo" }
func (echoASR) Close() error { return nil }
func (echoASR) Transcribe(ctx context.Context, audioPath string) (models.Transcript, error) {
	b, err := os.ReadFile(audioPath)
	if err != nil {
		return models.Transcript{}, err
	}
	return stt.Assemble([]models.Segment{{Text: string(b)}}, "ko"), nil
}

type fakeRenderer struct {
	mu    sync.Mutex
	err   error
	calls []renderCall
}

type renderCall struct {
	Text  string
	Role  avatar.Role
	Phase string
}

func (f *fakeRenderer) Render(_ context.Context, text string, role avatar.Role, phase string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, renderCall{text, role, phase})
	if f.err != nil {
		return "", f.err
	}
	return "/cache/" + phase + ".mp4", nil
}

func (f *fakeRenderer) last() renderCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []workers.RenderJob
}

func (q *recordingQueue) Enqueue(job workers.RenderJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return true
}

func (q *recordingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type harness struct {
	deps     Deps
	splitter *fakeSplitter
	renderer *fakeRenderer
	queue    *recordingQueue
	hub      *events.Hub
	sessions repositories.SessionRepository
	scores   repositories.ScoreRepository
	store    *storage.ContentStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := logger.Discard()

	sup, err := analysis.Load(context.Background(), analysis.PolicyStub, analysis.Candidates{
		ProsodyStub: prosody.Stub{},
		FaceStub:    face.Stub{},
		ASRStub:     echoASR{},
	}, log)
	if err != nil {
		t.Fatal(err)
	}
	store, err := storage.NewContentStore(t.TempDir(), time.Hour, time.Hour, log)
	if err != nil {
		t.Fatal(err)
	}

	h := &harness{
		splitter: &fakeSplitter{},
		renderer: &fakeRenderer{},
		queue:    &recordingQueue{},
		hub:      events.NewHub(),
		sessions: memory.NewSessionRepo(),
		scores:   memory.NewScoreRepo(),
		store:    store,
	}
	h.deps = Deps{
		Sessions: h.sessions,
		Scores:   h.scores,
		Pipeline: NewPipeline(PipelineOptions{
			Splitter:  h.splitter,
			Analyzers: sup,
			Store:     store,
			Cache:     cache.NewMemory(),
			Workers:   2,
			Log:       log,
		}),
		Store:        store,
		Renderer:     h.renderer,
		Renders:      h.queue,
		Events:       h.hub,
		Utterances:   Templates{},
		ClipSizeCap:  1 << 20,
		TurnDeadline: 5 * time.Second,
		Log:          log,
	}
	return h
}

func clip(s string) io.Reader { return strings.NewReader(s) }

func expectCode(t *testing.T, err error, code utils.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if !utils.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}
