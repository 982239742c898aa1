// Package rubric turns a transcript, a prosody vector and a face vector into
// the seven-axis score set with Korean coaching feedback. Scoring is total:
// every input yields all seven axes clamped to [0, 5].
package rubric

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/utils"
)

const (
	// MinTranscriptRunes is the length at or below which a transcript is too
	// short to score.
	MinTranscriptRunes = 10
	// DefaultAxisScore is assigned to every axis when there is nothing to score.
	DefaultAxisScore = 1.0

	baseline = 3.0
	maxScore = 5.0

	DefaultSampleAnswer = "구체적인 근거와 예시를 들어 논리적으로 설명하는 것이 좋습니다."
)

var (
	initiativePos    = []string{"AU01", "AU02", "AU05", "AU12", "AU25"}
	initiativeNeg    = []string{"AU15", "AU28"}
	collaborativePos = []string{"AU06", "AU12"}
	collaborativeNeg = []string{"AU09", "AU10", "AU14"}
)

type Scorer struct {
	SampleAnswer string
}

func New(sampleAnswer string) *Scorer {
	if strings.TrimSpace(sampleAnswer) == "" {
		sampleAnswer = DefaultSampleAnswer
	}
	return &Scorer{SampleAnswer: sampleAnswer}
}

// Defaults is the fixed score set for an empty or too-short transcript, with
// NoAnalysisFeedback as its overall feedback.
func (s *Scorer) Defaults() models.RubricScore {
	r := models.RubricScore{Default: true, Feedback: NoAnalysisFeedback, SampleAnswer: s.SampleAnswer}
	for _, a := range models.Axes {
		r.Set(a, DefaultAxisScore, axisTexts[a].negative)
	}
	return r
}

// TooShort reports whether text falls under the scoring threshold.
func TooShort(text string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(text)) <= MinTranscriptRunes
}

func (s *Scorer) Score(tr models.Transcript, p models.ProsodyVector, f models.FaceVector) models.RubricScore {
	text := strings.TrimSpace(tr.Text)
	if text == "" {
		return s.Defaults()
	}
	if TooShort(text) {
		r := s.Defaults()
		r.Feedback = TooShortFeedback
		return r
	}
	c := ComputeComposites(p)
	words := len(strings.Fields(text))
	runes := utf8.RuneCountInString(text)

	r := models.RubricScore{SampleAnswer: s.SampleAnswer}

	initiative := baseline + f.Confidence + meanAU(f, initiativePos) - meanAU(f, initiativeNeg)
	if words > 50 {
		initiative += 0.5
	}

	collaborative := baseline + meanAU(f, collaborativePos) - meanAU(f, collaborativeNeg)
	if containsAny(text, cooperationLemmas) {
		collaborative++
	}

	communication := baseline + c.Clarity
	if runes > 20 {
		communication++
	}
	if p.PauseFrequency > 5 {
		communication -= 0.5
	}

	logic := baseline
	if containsAny(text, logicLemmas) {
		logic++
	}

	problemSolving := baseline
	if containsAny(text, solutionLemmas) {
		problemSolving++
	}

	voice := baseline + c.Stability + 0.5*c.Energy
	action := baseline - math.Abs(f.GazeX) - math.Abs(f.GazeY)

	for a, v := range map[models.Axis]float64{
		models.AxisInitiative:     initiative,
		models.AxisCollaborative:  collaborative,
		models.AxisCommunication:  communication,
		models.AxisLogic:          logic,
		models.AxisProblemSolving: problemSolving,
		models.AxisVoice:          voice,
		models.AxisAction:         action,
	} {
		v = utils.Round(utils.Clamp(v, 0, maxScore), 2)
		r.Set(a, v, axisFeedback(a, v))
	}
	if runes <= 20 {
		r.CommunicationFeedback = shortAnswerFeedback
	}

	r.Emotions = DetectEmotions(f)
	r.VoiceComments = VoiceFeedback(p, c)
	r.FaceComments = FaceFeedback(f)
	r.Feedback = overallFeedback(r)
	return r
}

// meanAU weights each unit 1/len(set).
func meanAU(f models.FaceVector, set []string) float64 {
	var s float64
	for _, au := range set {
		s += f.AU(au)
	}
	return s / float64(len(set))
}

// ContentScore rates an interview answer's substance on [0, 5].
func ContentScore(text string) float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return 2.0
	}
	score := baseline
	switch words := len(strings.Fields(text)); {
	case words > 50:
		score += 1.0
	case words > 30:
		score += 0.5
	}
	if containsAny(text, concretenessMarkers) {
		score += 0.5
	}
	return math.Min(score, maxScore)
}
