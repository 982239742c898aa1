package services

import (
	"context"
	"io"
	"slices"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/events"
	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/rubric"
	"github.com/yoockh/veriview/internal/utils"
)

type InterviewService interface {
	Start(ctx context.Context, category string) (*InterviewQuestion, error)
	CurrentQuestion(ctx context.Context, interviewID string) (*InterviewQuestion, error)
	SubmitAnswer(ctx context.Context, interviewID string, qtype models.QuestionType, clip io.Reader) (*InterviewAnswerResponse, error)
	QuestionVideo(ctx context.Context, interviewID string) (VideoResult, error)
	Get(ctx context.Context, interviewID string) (*models.Session, error)
}

// InterviewQuestion is the question the session currently waits on, or the
// closing feedback once it is over.
type InterviewQuestion struct {
	InterviewID     string              `json:"interview_id"`
	Category        string              `json:"job_category"`
	QuestionType    models.QuestionType `json:"question_type,omitempty"`
	QuestionText    string              `json:"question_text,omitempty"`
	State           int                 `json:"state"`
	Closed          bool                `json:"closed"`
	ClosingFeedback string              `json:"closing_feedback,omitempty"`
}

type InterviewAnswerResponse struct {
	InterviewID  string              `json:"interview_id"`
	QuestionType models.QuestionType `json:"question_type"`
	UserText     string              `json:"user_text"`
	models.RubricScore
	Degraded          bool     `json:"degraded"`
	DegradedAnalyzers []string `json:"degraded_analyzers,omitempty"`
	Warnings          []string `json:"warnings,omitempty"`

	NextQuestionType models.QuestionType `json:"next_question_type,omitempty"`
	NextQuestionText string              `json:"next_question_text,omitempty"`
	ClosingFeedback  string              `json:"closing_feedback,omitempty"`
	State            int                 `json:"state"`
	Closed           bool                `json:"closed"`
}

type interviewService struct {
	*dialogue
}

func NewInterviewService(d Deps) InterviewService {
	return &interviewService{dialogue: newDialogue(d)}
}

func questionIndex(q models.QuestionType) int {
	return slices.Index(models.QuestionTypes, q)
}

func putQuestion(s *models.Session, q models.Question) {
	for i := range s.Questions {
		if s.Questions[i].Type == q.Type {
			s.Questions[i] = q
			return
		}
	}
	s.Questions = append(s.Questions, q)
}

func questionText(s *models.Session, q models.QuestionType) string {
	for _, x := range s.Questions {
		if x.Type == string(q) {
			return x.Text
		}
	}
	return ""
}

func view(s *models.Session) *InterviewQuestion {
	out := &InterviewQuestion{
		InterviewID: s.SessionID,
		Category:    s.Topic,
		State:       s.State,
		Closed:      s.Closed(),
	}
	if out.Closed {
		out.ClosingFeedback = s.ClosingFeedback
		return out
	}
	out.QuestionType = models.QuestionType(s.Phase)
	out.QuestionText = questionText(s, out.QuestionType)
	return out
}

func (s *interviewService) Start(ctx context.Context, category string) (*InterviewQuestion, error) {
	const op = "InterviewService.Start"

	cat, ok := models.ParseJobCategory(category)
	if !ok {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unknown job category", nil)
	}
	first := models.QuestionTypes[0]
	sess := &models.Session{
		SessionID: uuid.NewString(),
		Kind:      models.KindInterview,
		Topic:     cat,
		Phase:     string(first),
		Status:    models.StatusActive,
		Questions: []models.Question{{Type: string(first), Text: Question(cat, first)}},
	}
	if err := s.create(ctx, op, sess); err != nil {
		return nil, err
	}

	s.Log.WithFields(logrus.Fields{"interview_id": sess.SessionID, "category": cat}).Info("interview started")
	s.publish(ctx, events.New(events.TypeSessionStarted, sess.Kind, sess.SessionID, sess.Phase, map[string]any{"job_category": cat}))
	s.prefetch(sess, sess.Phase, sess.Questions[0].Text, avatar.RoleInterviewer)
	return view(sess), nil
}

func (s *interviewService) CurrentQuestion(ctx context.Context, interviewID string) (*InterviewQuestion, error) {
	sess, err := s.load(ctx, "InterviewService.CurrentQuestion", models.KindInterview, interviewID)
	if err != nil {
		return nil, err
	}
	return view(sess), nil
}

func (s *interviewService) SubmitAnswer(ctx context.Context, interviewID string, qtype models.QuestionType, clip io.Reader) (*InterviewAnswerResponse, error) {
	const op = "InterviewService.SubmitAnswer"

	idx := questionIndex(qtype)
	if idx < 0 {
		return nil, utils.E(utils.CodeInvalidArgument, op, "unknown question type", nil)
	}

	unlock := s.Locks.Lock(interviewID)
	defer unlock()

	sess, err := s.load(ctx, op, models.KindInterview, interviewID)
	if err != nil {
		return nil, err
	}
	if sess.Closed() {
		return nil, closedErr(op)
	}
	current := questionIndex(models.QuestionType(sess.Phase))
	if idx > current {
		return nil, orderErr(op, "question has not been asked yet")
	}

	res, in, err := s.scoreTurn(ctx, op, sess, string(qtype), clip)
	if err != nil {
		return nil, err
	}
	res.Scores.ContentScore = rubric.ContentScore(res.Transcript.Text)
	sess.PutTurn(s.completeTurn(in, res))

	out := &InterviewAnswerResponse{
		InterviewID:       sess.SessionID,
		QuestionType:      qtype,
		UserText:          res.Transcript.Text,
		RubricScore:       res.Scores,
		Degraded:          res.Degraded,
		DegradedAnalyzers: res.DegradedAnalyzers,
		Warnings:          res.Warnings,
	}

	var asked *models.Question
	switch {
	case idx < current:
		// A re-answered TECH question changes the pending follow-up.
		if qtype == models.QuestionTech && models.QuestionType(sess.Phase) == models.QuestionFollowup {
			q := models.Question{Type: string(models.QuestionFollowup), Text: Followup(res.Transcript.Text)}
			if q.Text != questionText(sess, models.QuestionFollowup) {
				putQuestion(sess, q)
				asked = &q
			}
		}
	case qtype == models.QuestionFollowup:
		sess.ClosingFeedback = ClosingScript(s.sessionMean(sess))
		sess.Status = models.StatusClosed
	default:
		next := models.QuestionTypes[idx+1]
		q := models.Question{Type: string(next), Text: Question(sess.Topic, next)}
		if next == models.QuestionFollowup {
			q.Text = Followup(res.Transcript.Text)
		}
		putQuestion(sess, q)
		sess.Phase = string(next)
		asked = &q
	}
	sess.State = sess.Progress()

	if err := s.save(ctx, op, sess); err != nil {
		return nil, err
	}

	out.State = sess.State
	out.Closed = sess.Closed()
	out.ClosingFeedback = sess.ClosingFeedback
	if !out.Closed {
		out.NextQuestionType = models.QuestionType(sess.Phase)
		out.NextQuestionText = questionText(sess, out.NextQuestionType)
	}

	s.afterTurn(ctx, sess, in, res)
	if asked != nil {
		s.prefetch(sess, asked.Type, asked.Text, avatar.RoleInterviewer)
	}
	if out.Closed {
		s.publish(ctx, events.New(events.TypeSessionClosed, sess.Kind, sess.SessionID, string(qtype), map[string]any{
			"reason":           "completed",
			"closing_feedback": sess.ClosingFeedback,
		}))
		s.mirrorFinal(ctx, sess, in.ClipPath)
	}

	s.Log.WithFields(logrus.Fields{
		"interview_id":  sess.SessionID,
		"question_type": qtype,
		"state":         sess.State,
	}).Info("interview answer recorded")
	return out, nil
}

// sessionMean averages the per-answer axis means of every complete turn.
func (s *interviewService) sessionMean(sess *models.Session) float64 {
	var means []float64
	for _, t := range sess.Turns {
		if t.Complete {
			means = append(means, t.Scores.Mean())
		}
	}
	return utils.Mean(means)
}

func (s *interviewService) QuestionVideo(ctx context.Context, interviewID string) (VideoResult, error) {
	const op = "InterviewService.QuestionVideo"

	sess, err := s.load(ctx, op, models.KindInterview, interviewID)
	if err != nil {
		return VideoResult{}, err
	}
	text, phase := questionText(sess, models.QuestionType(sess.Phase)), sess.Phase
	if sess.Closed() {
		text, phase = sess.ClosingFeedback, "feedback"
	}
	if text == "" {
		return VideoResult{}, utils.E(utils.CodeNotFound, op, "nothing to render", nil)
	}

	out := s.renderVideo(ctx, text, avatar.RoleInterviewer, phase)
	if out.Err != nil {
		s.Log.WithError(out.Err).WithField("interview_id", interviewID).Warn("avatar render failed, returning text")
		s.publish(ctx, events.New(events.TypeRenderFailed, sess.Kind, sess.SessionID, phase, map[string]any{
			"reason":        out.Err.Reason,
			"fallback_text": out.FallbackText,
		}))
	}
	return out, nil
}

func (s *interviewService) Get(ctx context.Context, interviewID string) (*models.Session, error) {
	return s.load(ctx, "InterviewService.Get", models.KindInterview, interviewID)
}
