package workers

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/events"
	"github.com/yoockh/veriview/internal/models"
)

// RenderJob asks for an utterance to be rendered ahead of the client's request.
type RenderJob struct {
	SessionID string
	Kind      models.SessionKind
	Phase     string
	Role      avatar.Role
	Text      string
}

type Renderer interface {
	Render(ctx context.Context, text string, role avatar.Role, phase string) (string, error)
}

// RenderPool prefetches avatar clips on NumWorkers goroutines so that the
// follow-up video request usually hits the cache.
type RenderPool struct {
	Renderer   Renderer
	Events     events.Publisher
	NumWorkers int
	QueueSize  int
	Logger     *logrus.Logger

	mu     sync.Mutex
	closed bool
	jobs   chan RenderJob
	wg     sync.WaitGroup
}

func (p *RenderPool) Start(ctx context.Context) error {
	if p.Renderer == nil {
		return errors.New("RenderPool missing dependency: Renderer must be set")
	}
	if p.NumWorkers <= 0 {
		p.NumWorkers = 2
	}
	if p.QueueSize <= 0 {
		p.QueueSize = 64
	}
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	if p.Events == nil {
		p.Events = events.Nop{}
	}
	p.mu.Lock()
	p.jobs = make(chan RenderJob, p.QueueSize)
	p.mu.Unlock()

	for i := 0; i < p.NumWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx, "render-"+strconv.Itoa(i+1))
	}
	return nil
}

// Enqueue never blocks; a full queue drops the job and the clip is rendered
// on demand instead. Jobs offered after Stop are rejected.
func (p *RenderPool) Enqueue(job RenderJob) bool {
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.jobs == nil {
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		p.Logger.WithFields(logrus.Fields{"session_id": job.SessionID, "phase": job.Phase}).Warn("render queue full, prefetch dropped")
		return false
	}
}

// Stop rejects further jobs, lets the workers drain the queue and waits for
// them. Call it before cancelling the context given to Start, otherwise the
// drained jobs fail with a cancelled render.
func (p *RenderPool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		if p.jobs != nil {
			close(p.jobs)
		}
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *RenderPool) run(ctx context.Context, worker string) {
	defer p.wg.Done()
	for job := range p.jobs {
		p.handle(ctx, worker, job)
	}
}

func (p *RenderPool) handle(ctx context.Context, worker string, job RenderJob) {
	log := p.Logger.WithFields(logrus.Fields{
		"worker":     worker,
		"session_id": job.SessionID,
		"phase":      job.Phase,
		"role":       job.Role,
	})

	path, err := p.Renderer.Render(ctx, job.Text, job.Role, job.Phase)
	if err != nil {
		data := map[string]any{"error": err.Error(), "fallback_text": job.Text}
		if re, ok := avatar.AsRenderError(err); ok {
			data["reason"] = re.Reason
		}
		log.WithError(err).Warn("render prefetch failed")
		_ = p.Events.Publish(ctx, events.New(events.TypeRenderFailed, job.Kind, job.SessionID, job.Phase, data))
		return
	}
	log.Debug("render prefetched")
	_ = p.Events.Publish(ctx, events.New(events.TypeRenderReady, job.Kind, job.SessionID, job.Phase, map[string]any{"clip": filepath.Base(path)}))
}
