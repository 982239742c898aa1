package services

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/events"
	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/repositories"
	"github.com/yoockh/veriview/internal/storage"
	"github.com/yoockh/veriview/internal/utils"
	"github.com/yoockh/veriview/internal/workers"
)

// Renderer produces avatar clips; failures are *avatar.RenderError.
type Renderer interface {
	Render(ctx context.Context, text string, role avatar.Role, phase string) (string, error)
}

// RenderQueue accepts prefetch jobs without blocking.
type RenderQueue interface {
	Enqueue(job workers.RenderJob) bool
}

// Deps are shared by the debate and interview coordinators.
type Deps struct {
	Sessions   repositories.SessionRepository
	Scores     repositories.ScoreRepository // optional
	Pipeline   *Pipeline
	Store      *storage.ContentStore
	Renderer   Renderer
	Renders    RenderQueue // optional
	Events     events.Publisher
	Utterances UtteranceGenerator
	Locks      *utils.KeyedMutex // shared with the retention sweep and admin delete

	ClipSizeCap   int64
	TurnDeadline  time.Duration
	SessionRetain time.Duration
	Log           *logrus.Logger
}

const warnTurnDeadline = "분석 시간이 초과되었습니다. 다시 시도해주세요."

// dialogue holds the plumbing both state machines share.
type dialogue struct {
	Deps
}

func newDialogue(d Deps) *dialogue {
	if d.Log == nil {
		d.Log = logrus.New()
	}
	if d.Events == nil {
		d.Events = events.Nop{}
	}
	if d.Utterances == nil {
		d.Utterances = Templates{}
	}
	if d.TurnDeadline <= 0 {
		d.TurnDeadline = 300 * time.Second
	}
	if d.SessionRetain <= 0 {
		d.SessionRetain = 7 * 24 * time.Hour
	}
	if d.Locks == nil {
		d.Locks = utils.NewKeyedMutex()
	}
	return &dialogue{Deps: d}
}

func (d *dialogue) load(ctx context.Context, op string, kind models.SessionKind, id string) (*models.Session, error) {
	if id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session id is required", nil)
	}
	s, err := d.Sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "session not found", utils.ErrSessionNotFound)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load session", err)
	}
	if s.Kind != kind {
		return nil, utils.E(utils.CodeNotFound, op, "session not found", utils.ErrSessionNotFound)
	}
	return s, nil
}

func (d *dialogue) touch(s *models.Session) {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	s.ExpiresAt = now.Add(d.SessionRetain)
}

func (d *dialogue) create(ctx context.Context, op string, s *models.Session) error {
	d.touch(s)
	if err := d.Sessions.Create(ctx, s); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to create session", err)
	}
	return nil
}

func (d *dialogue) save(ctx context.Context, op string, s *models.Session) error {
	d.touch(s)
	if err := d.Sessions.Save(ctx, s); err != nil {
		return utils.E(utils.CodeInternal, op, "failed to save session", err)
	}
	return nil
}

func (d *dialogue) publish(ctx context.Context, e events.Event) {
	if err := d.Events.Publish(ctx, e); err != nil {
		d.Log.WithError(err).WithFields(logrus.Fields{"session_id": e.SessionID, "event": e.Type}).Warn("event publish failed")
	}
}

func closedErr(op string) error {
	return utils.E(utils.CodeConflict, op, "session is closed", utils.ErrSessionClosed)
}

func orderErr(op, msg string) error {
	return utils.E(utils.CodeConflict, op, msg, utils.ErrPhaseOrder)
}

// scoreTurn stores the upload and runs the pipeline under the turn deadline.
// On expiry a partial turn is persisted unless a complete one already
// exists, and the caller gets ErrTurnTimeout.
func (d *dialogue) scoreTurn(ctx context.Context, op string, s *models.Session, phase string, clip io.Reader) (*TurnResult, TurnInput, error) {
	in := TurnInput{Kind: s.Kind, SessionID: s.SessionID, Phase: phase}
	if clip == nil {
		return nil, in, utils.E(utils.CodeInvalidArgument, op, "video file is required", utils.ErrMedia)
	}
	path, digest, err := d.Store.SaveClip(s.Kind, s.SessionID, phase, clip, d.ClipSizeCap)
	if err != nil {
		return nil, in, err
	}
	in.ClipPath, in.Digest = path, digest

	tctx, cancel := context.WithTimeout(ctx, d.TurnDeadline)
	defer cancel()
	res, err := d.Pipeline.Run(tctx, in)
	if err == nil {
		return res, in, nil
	}
	if !errors.Is(err, utils.ErrTurnTimeout) {
		return nil, in, err
	}

	d.Log.WithFields(logrus.Fields{"session_id": s.SessionID, "phase": phase}).Warn("turn deadline exceeded")
	if existing := s.TurnFor(phase); existing == nil || !existing.Complete {
		s.PutTurn(models.Turn{
			Phase:      phase,
			ClipPath:   path,
			ClipDigest: digest,
			Warnings:   []string{warnTurnDeadline},
			CreatedAt:  time.Now().UTC(),
		})
		sctx, scancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer scancel()
		if serr := d.save(sctx, op, s); serr != nil {
			d.Log.WithError(serr).Warn("partial turn not persisted")
		}
	}
	return nil, in, err
}

func (d *dialogue) completeTurn(in TurnInput, res *TurnResult) models.Turn {
	return models.Turn{
		Phase:             in.Phase,
		ClipPath:          in.ClipPath,
		AudioPath:         res.AudioPath,
		ClipDigest:        in.Digest,
		Transcript:        res.Transcript,
		Prosody:           res.Prosody,
		Face:              res.Face,
		Scores:            res.Scores,
		Degraded:          res.Degraded,
		DegradedAnalyzers: res.DegradedAnalyzers,
		Warnings:          res.Warnings,
		Complete:          true,
		CreatedAt:         time.Now().UTC(),
	}
}

// afterTurn records analytics and announces the result. Failures here never
// fail the turn.
func (d *dialogue) afterTurn(ctx context.Context, s *models.Session, in TurnInput, res *TurnResult) {
	if d.Scores != nil {
		if err := d.Scores.Insert(ctx, ScoreLog(in, s.Topic, res)); err != nil {
			d.Log.WithError(err).WithField("session_id", s.SessionID).Warn("score history insert failed")
		}
	}
	d.publish(ctx, events.New(events.TypeTurnScored, s.Kind, s.SessionID, in.Phase, map[string]any{
		"scores":   res.Scores,
		"degraded": res.Degraded,
	}))
	if res.Degraded {
		d.publish(ctx, events.New(events.TypeTurnDegraded, s.Kind, s.SessionID, in.Phase, map[string]any{
			"analyzers": res.DegradedAnalyzers,
			"warnings":  res.Warnings,
		}))
	}
}

func (d *dialogue) prefetch(s *models.Session, phase, text string, role avatar.Role) {
	if d.Renders == nil || text == "" {
		return
	}
	d.Renders.Enqueue(workers.RenderJob{SessionID: s.SessionID, Kind: s.Kind, Phase: phase, Role: role, Text: text})
}

// mirrorFinal uploads the last recording of a closed session when a mirror
// is configured.
func (d *dialogue) mirrorFinal(ctx context.Context, s *models.Session, clipPath string) {
	if clipPath == "" {
		return
	}
	uri, err := d.Store.MirrorClip(ctx, s.Kind, s.SessionID, clipPath)
	if err != nil {
		d.Log.WithError(err).WithField("session_id", s.SessionID).Warn("final recording mirror failed")
		return
	}
	if uri != "" {
		d.Log.WithFields(logrus.Fields{"session_id": s.SessionID, "object": uri}).Info("final recording mirrored")
	}
}

// VideoResult is a rendered clip or, when rendering failed, the text to show.
type VideoResult struct {
	Path         string
	Text         string
	FallbackText string
	Err          *avatar.RenderError
}

func (d *dialogue) renderVideo(ctx context.Context, text string, role avatar.Role, phase string) VideoResult {
	out := VideoResult{Text: text}
	if d.Renderer == nil {
		out.FallbackText = text
		out.Err = &avatar.RenderError{Reason: avatar.ReasonDisabled, Text: text}
		return out
	}
	path, err := d.Renderer.Render(ctx, text, role, phase)
	if err != nil {
		re, ok := avatar.AsRenderError(err)
		if !ok {
			re = &avatar.RenderError{Reason: avatar.ReasonRemote, Text: text, Err: err}
		}
		out.FallbackText = re.Text
		if out.FallbackText == "" {
			out.FallbackText = text
		}
		out.Err = re
		return out
	}
	out.Path = path
	return out
}
