package models

type Axis string

const (
	AxisInitiative     Axis = "initiative"
	AxisCollaborative  Axis = "collaborative"
	AxisCommunication  Axis = "communication"
	AxisLogic          Axis = "logic"
	AxisProblemSolving Axis = "problem_solving"
	AxisVoice          Axis = "voice"
	AxisAction         Axis = "action"
)

// Axes lists the rubric axes in feedback order.
var Axes = []Axis{
	AxisInitiative, AxisCollaborative, AxisCommunication, AxisLogic,
	AxisProblemSolving, AxisVoice, AxisAction,
}

type RubricScore struct {
	Initiative     float64 `bson:"initiative_score" json:"initiative_score"`
	Collaborative  float64 `bson:"collaborative_score" json:"collaborative_score"`
	Communication  float64 `bson:"communication_score" json:"communication_score"`
	Logic          float64 `bson:"logic_score" json:"logic_score"`
	ProblemSolving float64 `bson:"problem_solving_score" json:"problem_solving_score"`
	Voice          float64 `bson:"voice_score" json:"voice_score"`
	Action         float64 `bson:"action_score" json:"action_score"`

	InitiativeFeedback     string `bson:"initiative_feedback" json:"initiative_feedback"`
	CollaborativeFeedback  string `bson:"collaborative_feedback" json:"collaborative_feedback"`
	CommunicationFeedback  string `bson:"communication_feedback" json:"communication_feedback"`
	LogicFeedback          string `bson:"logic_feedback" json:"logic_feedback"`
	ProblemSolvingFeedback string `bson:"problem_solving_feedback" json:"problem_solving_feedback"`
	VoiceFeedback          string `bson:"voice_feedback" json:"voice_feedback"`
	ActionFeedback         string `bson:"action_feedback" json:"action_feedback"`

	Feedback     string `bson:"feedback" json:"feedback"`
	SampleAnswer string `bson:"sample_answer" json:"sample_answer"`

	Emotions      []Emotion `bson:"emotions,omitempty" json:"emotions,omitempty"`
	VoiceComments []string  `bson:"voice_comments,omitempty" json:"voice_comments,omitempty"`
	FaceComments  []string  `bson:"face_comments,omitempty" json:"face_comments,omitempty"`

	// ContentScore is only filled for interview answers.
	ContentScore float64 `bson:"content_score,omitempty" json:"content_score,omitempty"`

	// Default marks the fixed "nothing to analyse" score set.
	Default bool `bson:"default" json:"default"`
}

// AxisFeedback returns the short feedback text of one axis.
func (r RubricScore) AxisFeedback(a Axis) string {
	switch a {
	case AxisInitiative:
		return r.InitiativeFeedback
	case AxisCollaborative:
		return r.CollaborativeFeedback
	case AxisCommunication:
		return r.CommunicationFeedback
	case AxisLogic:
		return r.LogicFeedback
	case AxisProblemSolving:
		return r.ProblemSolvingFeedback
	case AxisVoice:
		return r.VoiceFeedback
	case AxisAction:
		return r.ActionFeedback
	}
	return ""
}

// Score returns the value of one axis.
func (r RubricScore) Score(a Axis) float64 {
	switch a {
	case AxisInitiative:
		return r.Initiative
	case AxisCollaborative:
		return r.Collaborative
	case AxisCommunication:
		return r.Communication
	case AxisLogic:
		return r.Logic
	case AxisProblemSolving:
		return r.ProblemSolving
	case AxisVoice:
		return r.Voice
	case AxisAction:
		return r.Action
	}
	return 0
}

func (r *RubricScore) Set(a Axis, v float64, feedback string) {
	switch a {
	case AxisInitiative:
		r.Initiative, r.InitiativeFeedback = v, feedback
	case AxisCollaborative:
		r.Collaborative, r.CollaborativeFeedback = v, feedback
	case AxisCommunication:
		r.Communication, r.CommunicationFeedback = v, feedback
	case AxisLogic:
		r.Logic, r.LogicFeedback = v, feedback
	case AxisProblemSolving:
		r.ProblemSolving, r.ProblemSolvingFeedback = v, feedback
	case AxisVoice:
		r.Voice, r.VoiceFeedback = v, feedback
	case AxisAction:
		r.Action, r.ActionFeedback = v, feedback
	}
}

func (r RubricScore) Mean() float64 {
	var s float64
	for _, a := range Axes {
		s += r.Score(a)
	}
	return s / float64(len(Axes))
}

type Emotion struct {
	Key        string  `bson:"key" json:"key"`
	Name       string  `bson:"name" json:"name"`
	Confidence float64 `bson:"confidence" json:"confidence"`
	Weight     float64 `bson:"weight" json:"weight"`
}
