package services

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/events"
	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/utils"
)

type DebateService interface {
	Start(ctx context.Context, topic, position string) (*DebateStartResponse, error)
	SubmitTurn(ctx context.Context, debateID string, phase models.Phase, clip io.Reader) (*DebateTurnResponse, error)
	AIVideo(ctx context.Context, req AIVideoRequest) (VideoResult, error)
	Get(ctx context.Context, debateID string) (*models.Session, error)
}

type DebateStartResponse struct {
	DebateID      string        `json:"debate_id"`
	Topic         string        `json:"topic"`
	Position      models.Stance `json:"position"`
	AIPosition    models.Stance `json:"ai_position"`
	AIOpeningText string        `json:"ai_opening_text"`
	State         int           `json:"state"`
}

type DebateTurnResponse struct {
	DebateID string       `json:"debate_id"`
	Phase    models.Phase `json:"phase"`
	UserText string       `json:"user_text"`
	models.RubricScore
	Degraded          bool     `json:"degraded"`
	DegradedAnalyzers []string `json:"degraded_analyzers,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`

	AINextPhase models.Phase `json:"ai_next_phase,omitempty"`
	AINextText  string       `json:"ai_next_text,omitempty"`
	State       int          `json:"state"`
	Closed      bool         `json:"closed"`
}

// AIVideoRequest asks for the AI's line in phase. Position is the stance the
// AI argues; when empty it is taken from the session, else CON.
type AIVideoRequest struct {
	DebateID string
	Phase    models.Phase
	Topic    string
	Position string
	Text     string
}

// debateStep is one row of the debate transition table: the user turn the
// session waits on in state Await and the AI line emitted after it.
type debateStep struct {
	Phase models.Phase
	Await int
	Next  models.Phase
}

var debateTable = []debateStep{
	{Phase: models.PhaseOpening, Await: 1, Next: models.PhaseRebuttal},
	{Phase: models.PhaseRebuttal, Await: 3, Next: models.PhaseCounterRebuttal},
	{Phase: models.PhaseCounterRebuttal, Await: 5, Next: models.PhaseClosing},
	{Phase: models.PhaseClosing, Await: 7},
}

// debateFinal is the terminal state after the closing statement.
const debateFinal = 8

func stepFor(p models.Phase) (debateStep, bool) {
	for _, st := range debateTable {
		if st.Phase == p {
			return st, true
		}
	}
	return debateStep{}, false
}

type debateService struct {
	*dialogue
}

func NewDebateService(d Deps) DebateService {
	return &debateService{dialogue: newDialogue(d)}
}

func (s *debateService) Start(ctx context.Context, topic, position string) (*DebateStartResponse, error) {
	const op = "DebateService.Start"

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "topic is required", nil)
	}
	stance, ok := models.ParseStance(position)
	if !ok {
		return nil, utils.E(utils.CodeInvalidArgument, op, "position must be PRO or CON", nil)
	}
	ai := stance.Opposite()
	text, source := s.Utterances.Next(ctx, topic, ai, models.PhaseOpening, "")

	sess := &models.Session{
		SessionID: uuid.NewString(),
		Kind:      models.KindDebate,
		Topic:     topic,
		Stance:    stance,
		State:     debateTable[0].Await,
		Phase:     string(models.PhaseOpening),
		Status:    models.StatusActive,
		Utterances: []models.Utterance{{
			Phase:   string(models.PhaseOpening),
			Text:    text,
			Speaker: string(ai),
		}},
	}
	if err := s.create(ctx, op, sess); err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{
		"debate_id": sess.SessionID,
		"position":  stance,
		"source":    source,
	}).Info("debate started")
	s.publish(ctx, events.New(events.TypeSessionStarted, sess.Kind, sess.SessionID, sess.Phase, map[string]any{
		"topic":    topic,
		"position": stance,
	}))
	s.prefetch(sess, sess.Phase, text, avatar.RoleForStance(ai))

	return &DebateStartResponse{
		DebateID:      sess.SessionID,
		Topic:         topic,
		Position:      stance,
		AIPosition:    ai,
		AIOpeningText: text,
		State:         sess.State,
	}, nil
}

func (s *debateService) SubmitTurn(ctx context.Context, debateID string, phase models.Phase, clip io.Reader) (*DebateTurnResponse, error) {
	const op = "DebateService.SubmitTurn"

	step, ok := stepFor(phase)
	if !ok {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unknown debate phase", nil)
	}

	unlock := s.Locks.Lock(debateID)
	defer unlock()

	sess, err := s.load(ctx, op, models.KindDebate, debateID)
	if err != nil {
		return nil, err
	}
	if sess.Closed() {
		return nil, closedErr(op)
	}

	// The awaited phase is new; the phase right before it may be resubmitted.
	resubmit := false
	switch {
	case sess.State == step.Await:
	case sess.State == step.Await+2:
		resubmit = true
	case sess.State < step.Await:
		return nil, orderErr(op, "phase is not open yet")
	default:
		return nil, orderErr(op, "phase already passed")
	}

	var previous string
	if t := sess.TurnFor(string(phase)); t != nil {
		previous = t.Transcript.Text
	}

	res, in, err := s.scoreTurn(ctx, op, sess, string(phase), clip)
	if err != nil {
		return nil, err
	}
	sess.PutTurn(s.completeTurn(in, res))

	ai := sess.Stance.Opposite()
	out := &DebateTurnResponse{
		DebateID:          sess.SessionID,
		Phase:             phase,
		UserText:          res.Transcript.Text,
		RubricScore:       res.Scores,
		Degraded:          res.Degraded,
		DegradedAnalyzers: res.DegradedAnalyzers,
		Warnings:          res.Warnings,
	}

	rendered := false
	if step.Next != "" {
		u := sess.UtteranceFor(string(step.Next))
		if !resubmit || u == nil || previous != res.Transcript.Text {
			text, source := s.Utterances.Next(ctx, sess.Topic, ai, step.Next, res.Transcript.Text)
			sess.PutUtterance(models.Utterance{Phase: string(step.Next), Text: text, Speaker: string(ai)})
			s.Log.WithFields(logrus.Fields{"debate_id": sess.SessionID, "phase": step.Next, "source": source}).Debug("ai utterance generated")
			rendered = true
			u = sess.UtteranceFor(string(step.Next))
		}
		sess.State = step.Await + 2
		sess.Phase = string(step.Next)
		out.AINextPhase = step.Next
		out.AINextText = u.Text
	} else {
		sess.State = debateFinal
		sess.Status = models.StatusClosed
	}

	if err := s.save(ctx, op, sess); err != nil {
		return nil, err
	}
	out.State = sess.State
	out.Closed = sess.Closed()

	s.afterTurn(ctx, sess, in, res)
	if rendered {
		s.prefetch(sess, string(step.Next), out.AINextText, avatar.RoleForStance(ai))
	}
	if out.Closed {
		s.publish(ctx, events.New(events.TypeSessionClosed, sess.Kind, sess.SessionID, string(phase), map[string]any{"reason": "completed"}))
		s.mirrorFinal(ctx, sess, in.ClipPath)
	}

	s.Log.WithFields(logrus.Fields{
		"debate_id": sess.SessionID,
		"phase":     phase,
		"state":     sess.State,
		"resubmit":  resubmit,
	}).Info("debate turn recorded")
	return out, nil
}

func (s *debateService) AIVideo(ctx context.Context, req AIVideoRequest) (VideoResult, error) {
	const op = "DebateService.AIVideo"

	if _, ok := stepFor(req.Phase); !ok {
		return VideoResult{}, utils.E(utils.CodeInvalidArgument, op, "unknown debate phase", nil)
	}

	topic, text := strings.TrimSpace(req.Topic), strings.TrimSpace(req.Text)
	position := models.StanceCon
	var sess *models.Session
	if req.DebateID != "" {
		var err error
		if sess, err = s.load(ctx, op, models.KindDebate, req.DebateID); err != nil {
			return VideoResult{}, err
		}
		position = sess.Stance.Opposite()
		if topic == "" {
			topic = sess.Topic
		}
	}
	if req.Position != "" {
		p, ok := models.ParseStance(req.Position)
		if !ok {
			return VideoResult{}, utils.E(utils.CodeInvalidArgument, op, "position must be PRO or CON", nil)
		}
		position = p
	}
	if text == "" && sess != nil && sess.Stance.Opposite() == position {
		if u := sess.UtteranceFor(string(req.Phase)); u != nil {
			text = u.Text
		}
	}
	if text == "" {
		if topic == "" {
			return VideoResult{}, utils.E(utils.CodeInvalidArgument, op, "text or topic is required", nil)
		}
		text = DebateLine(req.Phase, topic, position, "")
	}

	out := s.renderVideo(ctx, text, avatar.RoleForStance(position), string(req.Phase))
	if out.Err != nil {
		s.Log.WithError(out.Err).WithFields(logrus.Fields{"debate_id": req.DebateID, "phase": req.Phase}).Warn("avatar render failed, returning text")
		if sess != nil {
			s.publish(ctx, events.New(events.TypeRenderFailed, models.KindDebate, sess.SessionID, string(req.Phase), map[string]any{
				"reason":        out.Err.Reason,
				"fallback_text": out.FallbackText,
			}))
		}
		return out, nil
	}
	if sess != nil {
		s.recordVideoKey(ctx, sess.SessionID, string(req.Phase), text, filepath.Base(out.Path))
	}
	return out, nil
}

// recordVideoKey remembers the rendered clip on the matching utterance.
func (s *debateService) recordVideoKey(ctx context.Context, id, phase, text, key string) {
	const op = "DebateService.recordVideoKey"
	unlock := s.Locks.Lock(id)
	defer unlock()

	sess, err := s.load(ctx, op, models.KindDebate, id)
	if err != nil {
		return
	}
	u := sess.UtteranceFor(phase)
	if u == nil || u.Text != text || u.VideoKey == key {
		return
	}
	u.VideoKey = key
	if err := s.save(ctx, op, sess); err != nil {
		s.Log.WithError(err).WithField("debate_id", id).Warn("video key not saved")
	}
}

func (s *debateService) Get(ctx context.Context, debateID string) (*models.Session, error) {
	return s.load(ctx, "DebateService.Get", models.KindDebate, debateID)
}
