package avatar

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/yoockh/veriview/internal/media"
	"github.com/yoockh/veriview/internal/models"
)

const DefaultDeadline = 180 * time.Second

// Store is the part of the content store the renderer writes through.
type Store interface {
	Get(kind models.SessionKind, phase, key string) (string, bool)
	Put(kind models.SessionKind, phase, key, src string) (string, error)
}

// Renderer produces avatar clips for utterances, caching by content hash and
// coalescing concurrent requests for the same key into one remote job.
type Renderer struct {
	remote   Remote // nil when rendering is disabled
	store    Store
	profiles Profiles
	prober   media.Prober
	limiter  *rate.Limiter
	deadline time.Duration
	log      *logrus.Logger

	group   singleflight.Group
	submits atomic.Int64
}

type RendererOptions struct {
	Remote     Remote
	Store      Store
	Profiles   Profiles
	Prober     media.Prober
	SubmitRate float64
	Deadline   time.Duration
	Log        *logrus.Logger
}

func NewRenderer(o RendererOptions) *Renderer {
	if o.Log == nil {
		o.Log = logrus.New()
	}
	if o.Deadline <= 0 {
		o.Deadline = DefaultDeadline
	}
	limit := rate.Inf
	if o.SubmitRate > 0 {
		limit = rate.Limit(o.SubmitRate)
	}
	return &Renderer{
		remote:   o.Remote,
		store:    o.Store,
		profiles: o.Profiles,
		prober:   o.Prober,
		limiter:  rate.NewLimiter(limit, 1),
		deadline: o.Deadline,
		log:      o.Log,
	}
}

// CacheKey is the blake2b-256 hex digest of text, speaker profile and phase.
func CacheKey(text string, p Profile, phase string) string {
	h, _ := blake2b.New256(nil)
	io.WriteString(h, text)
	h.Write([]byte{0})
	io.WriteString(h, p.Key())
	h.Write([]byte{0})
	io.WriteString(h, phase)
	return hex.EncodeToString(h.Sum(nil))
}

// Submits counts remote job submissions since start.
func (r *Renderer) Submits() int64 { return r.submits.Load() }

func (r *Renderer) Enabled() bool { return r.remote != nil }

func (r *Renderer) Profile(role Role) (Profile, bool) {
	p, ok := r.profiles[role]
	return p, ok
}

// Cached reports the stored clip for (text, role, phase) without rendering.
func (r *Renderer) Cached(text string, role Role, phase string) (string, bool) {
	p, ok := r.profiles[role]
	if !ok {
		return "", false
	}
	return r.store.Get(role.Kind(), phase, CacheKey(strings.TrimSpace(text), p, phase))
}

// Render returns the path of an MP4 for text spoken by role. Failures are
// *RenderError values carrying the utterance text.
func (r *Renderer) Render(ctx context.Context, text string, role Role, phase string) (string, error) {
	text = strings.TrimSpace(text)
	path, err := r.render(ctx, text, role, phase)
	if err != nil {
		re, ok := AsRenderError(err)
		if !ok {
			re = renderErr(ReasonRemote, err)
		}
		out := *re
		out.Text = text
		return "", &out
	}
	return path, nil
}

func (r *Renderer) render(ctx context.Context, text string, role Role, phase string) (string, error) {
	if text == "" {
		return "", renderErr(ReasonEmpty, errors.New("no text to render"))
	}
	profile, ok := r.profiles[role]
	if !ok {
		return "", renderErr(ReasonRemote, fmt.Errorf("unknown speaker role %q", role))
	}
	kind := role.Kind()
	key := CacheKey(text, profile, phase)

	if p, ok := r.store.Get(kind, phase, key); ok {
		return p, nil
	}
	if r.remote == nil {
		return "", renderErr(ReasonDisabled, errors.New("avatar rendering is disabled"))
	}

	ch := r.group.DoChan(key, func() (any, error) {
		if p, ok := r.store.Get(kind, phase, key); ok {
			return p, nil
		}
		// detached so waiting callers are not cut off when the first one leaves
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.deadline)
		defer cancel()
		return r.renderRemote(rctx, text, profile, kind, key, phase)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", renderErr(ReasonDeadline, ctx.Err())
	}
}

func (r *Renderer) renderRemote(ctx context.Context, text string, profile Profile, kind models.SessionKind, key, phase string) (string, error) {
	log := r.log.WithFields(logrus.Fields{"cache_key": key, "phase": phase, "role": profile.Role})
	started := time.Now()

	if err := r.limiter.Wait(ctx); err != nil {
		return "", renderErr(ReasonDeadline, err)
	}
	r.submits.Add(1)
	talkID, err := r.remote.Submit(ctx, Job{SourceURL: profile.SourceURL, VoiceID: profile.VoiceID, Text: text})
	if err != nil {
		log.WithError(err).Warn("avatar submit failed")
		return "", deadlineOr(ctx, err)
	}
	log = log.WithField("talk_id", talkID)

	resultURL, err := r.remote.Wait(ctx, talkID)
	if err != nil {
		log.WithError(err).Warn("avatar render failed")
		return "", deadlineOr(ctx, err)
	}

	tmp, err := os.CreateTemp("", "veriview-render-*.mp4")
	if err != nil {
		return "", renderErr(ReasonRemote, err)
	}
	defer os.Remove(tmp.Name())
	n, err := r.remote.Download(ctx, resultURL, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = renderErr(ReasonRemote, cerr)
	}
	if err != nil {
		return "", deadlineOr(ctx, err)
	}
	if n == 0 {
		return "", renderErr(ReasonEmpty, errors.New("downloaded clip is empty"))
	}
	if r.prober != nil {
		if d, err := r.prober.Duration(ctx, tmp.Name()); err == nil && d <= 0 {
			return "", renderErr(ReasonEmpty, errors.New("downloaded clip has no duration"))
		}
	}

	path, err := r.store.Put(kind, phase, key, tmp.Name())
	if err != nil {
		return "", renderErr(ReasonRemote, err)
	}
	log.WithFields(logrus.Fields{"bytes": n, "elapsed_ms": time.Since(started).Milliseconds()}).Info("avatar rendered")
	return path, nil
}

func deadlineOr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return renderErr(ReasonDeadline, ctx.Err())
	}
	return err
}
