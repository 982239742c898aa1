package models

import "strings"

type Phase string

const (
	PhaseOpening         Phase = "opening"
	PhaseRebuttal        Phase = "rebuttal"
	PhaseCounterRebuttal Phase = "counter_rebuttal"
	PhaseClosing         Phase = "closing"
)

// DebatePhases is the fixed debate order.
var DebatePhases = []Phase{PhaseOpening, PhaseRebuttal, PhaseCounterRebuttal, PhaseClosing}

// ParsePhase accepts the underscore form and the hyphenated URL form.
func ParsePhase(v string) (Phase, bool) {
	v = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), "-", "_")
	for _, p := range DebatePhases {
		if string(p) == v {
			return p, true
		}
	}
	return "", false
}

// PhaseIndex is the 1-based position of p in the debate, 0 if unknown.
func PhaseIndex(p Phase) int {
	for i, x := range DebatePhases {
		if x == p {
			return i + 1
		}
	}
	return 0
}

type QuestionType string

const (
	QuestionIntro       QuestionType = "INTRO"
	QuestionFit         QuestionType = "FIT"
	QuestionPersonality QuestionType = "PERSONALITY"
	QuestionTech        QuestionType = "TECH"
	QuestionFollowup    QuestionType = "FOLLOWUP"
)

var QuestionTypes = []QuestionType{QuestionIntro, QuestionFit, QuestionPersonality, QuestionTech, QuestionFollowup}

func ParseQuestionType(v string) (QuestionType, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, q := range QuestionTypes {
		if string(q) == v {
			return q, true
		}
	}
	return "", false
}

// Job categories accepted by interview start.
var JobCategories = []string{"ICT", "BM", "SM", "PS", "RND", "ARD", "MM"}

func ParseJobCategory(v string) (string, bool) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, c := range JobCategories {
		if c == v {
			return c, true
		}
	}
	return "", false
}
