package models

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SessionKind string

const (
	KindDebate    SessionKind = "debate"
	KindInterview SessionKind = "interview"
)

type Stance string

const (
	StancePro Stance = "PRO"
	StanceCon Stance = "CON"
)

func (s Stance) Opposite() Stance {
	if s == StancePro {
		return StanceCon
	}
	return StancePro
}

func ParseStance(v string) (Stance, bool) {
	switch Stance(strings.ToUpper(strings.TrimSpace(v))) {
	case StancePro:
		return StancePro, true
	case StanceCon:
		return StanceCon, true
	}
	return "", false
}

const (
	StatusActive  = "active"
	StatusClosed  = "closed"
	StatusExpired = "expired"
)

type Session struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"-"`
	SessionID string             `bson:"session_id" json:"session_id"`
	Kind      SessionKind        `bson:"kind" json:"kind"`

	// Topic is the debate topic or the interview job category.
	Topic  string `bson:"topic" json:"topic"`
	Stance Stance `bson:"stance,omitempty" json:"stance,omitempty"`

	// State is the state machine index: S0..S8 for debates, answers recorded for interviews.
	State  int    `bson:"state" json:"state"`
	Phase  string `bson:"phase" json:"phase"` // phase or question type the session waits on
	Status string `bson:"status" json:"status"`

	Turns      []Turn      `bson:"turns" json:"turns"`
	Utterances []Utterance `bson:"utterances" json:"utterances"`
	Questions  []Question  `bson:"questions,omitempty" json:"questions,omitempty"`

	ClosingFeedback string `bson:"closing_feedback,omitempty" json:"closing_feedback,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"` // for TTL index
}

func (s *Session) Closed() bool { return s.Status != StatusActive }

// TurnFor returns the stored turn for phase, or nil.
func (s *Session) TurnFor(phase string) *Turn {
	for i := range s.Turns {
		if s.Turns[i].Phase == phase {
			return &s.Turns[i]
		}
	}
	return nil
}

// PutTurn replaces the turn with the same phase or appends a new one.
func (s *Session) PutTurn(t Turn) {
	for i := range s.Turns {
		if s.Turns[i].Phase == t.Phase {
			t.Index = s.Turns[i].Index
			s.Turns[i] = t
			return
		}
	}
	t.Index = len(s.Turns)
	s.Turns = append(s.Turns, t)
}

func (s *Session) UtteranceFor(phase string) *Utterance {
	for i := range s.Utterances {
		if s.Utterances[i].Phase == phase {
			return &s.Utterances[i]
		}
	}
	return nil
}

func (s *Session) PutUtterance(u Utterance) {
	for i := range s.Utterances {
		if s.Utterances[i].Phase == u.Phase {
			s.Utterances[i] = u
			return
		}
	}
	s.Utterances = append(s.Utterances, u)
}

// CompletedTurns counts turns with every analysis field populated.
func (s *Session) CompletedTurns() int {
	n := 0
	for _, t := range s.Turns {
		if t.Complete {
			n++
		}
	}
	return n
}

// Utterance is one AI-side line of the dialogue.
type Utterance struct {
	Phase    string `bson:"phase" json:"phase"`
	Text     string `bson:"text" json:"text"`
	Speaker  string `bson:"speaker" json:"speaker"`
	VideoKey string `bson:"video_key,omitempty" json:"video_key,omitempty"`
}

type Question struct {
	Type string `bson:"type" json:"question_type"`
	Text string `bson:"text" json:"question_text"`
}

// Clone returns a deep copy so stored sessions never alias caller memory.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Turns = make([]Turn, len(s.Turns))
	for i, t := range s.Turns {
		out.Turns[i] = t.clone()
	}
	out.Utterances = append([]Utterance(nil), s.Utterances...)
	out.Questions = append([]Question(nil), s.Questions...)
	return &out
}

// Progress is the state machine position implied by the recorded answers:
// two steps per debate turn, one per interview answer.
func (s *Session) Progress() int {
	if s.Kind == KindDebate {
		return 2 * s.CompletedTurns()
	}
	return s.CompletedTurns()
}
