package rubric

import (
	"strings"

	"github.com/yoockh/veriview/internal/models"
)

const (
	// NoAnalysisFeedback is the overall feedback when nothing was transcribed.
	NoAnalysisFeedback = "분석 결과 또는 텍스트가 없습니다."
	// TooShortFeedback is the overall feedback when speech was transcribed but
	// is at or under MinTranscriptRunes.
	TooShortFeedback = "답변이 너무 짧아 평가하기 어렵습니다. 조금 더 길게 말씀해주세요."

	shortAnswerFeedback = "답변이 짧음"
)

type axisText struct {
	label    string
	positive string
	negative string
}

var axisTexts = map[models.Axis]axisText{
	models.AxisInitiative:     {"적극성", "적극적", "소극적"},
	models.AxisCollaborative:  {"협력", "협력적", "개선 필요"},
	models.AxisCommunication:  {"의사소통", "명확", "불명확"},
	models.AxisLogic:          {"논리", "논리적", "논리 부족"},
	models.AxisProblemSolving: {"문제해결", "우수", "개선 필요"},
	models.AxisVoice:          {"목소리", "안정적", "불안정"},
	models.AxisAction:         {"행동", "안정적", "시선 불안정"},
}

// axisFeedback is positive only above the 3.0 no-evidence baseline.
func axisFeedback(a models.Axis, score float64) string {
	t := axisTexts[a]
	if score > 3 {
		return t.positive
	}
	return t.negative
}

// AxisLabel is the Korean display name of an axis.
func AxisLabel(a models.Axis) string { return axisTexts[a].label }

// VoiceFeedback renders coaching lines from composite voice signals.
func VoiceFeedback(p models.ProsodyVector, c Composites) []string {
	var out []string
	switch {
	case c.Stability > 0.7:
		out = append(out, "목소리가 매우 안정적입니다. 신뢰감을 주는 톤입니다.")
	case c.Stability > 0.5:
		out = append(out, "목소리가 대체로 안정적이나, 조금 더 일정한 톤을 유지해보세요.")
	default:
		out = append(out, "목소리의 떨림이 감지됩니다. 심호흡을 하고 편안하게 말해보세요.")
	}
	if c.Clarity > 0.7 {
		out = append(out, "발음이 명확하고 전달력이 좋습니다.")
	} else {
		out = append(out, "발음을 더 또렷하게 하면 전달력이 향상될 것입니다.")
	}
	switch {
	case c.Energy > 0.8:
		out = append(out, "열정적이고 활기찬 목소리입니다.")
	case c.Energy > 0.5:
		out = append(out, "적절한 에너지 레벨입니다.")
	default:
		out = append(out, "조금 더 활기차게 말해보세요. 목소리에 힘을 실어보세요.")
	}
	switch {
	case c.Pace > 0.9:
		out = append(out, "말하는 속도가 적절합니다.")
	case c.Pace > 0.6:
		out = append(out, "말하는 속도가 약간 빠르거나 느립니다. 조절해보세요.")
	default:
		out = append(out, "말하는 속도가 너무 빠르거나 느립니다. 적절한 속도를 유지하세요.")
	}
	if p.PauseFrequency > 5 {
		out = append(out, "말을 자주 멈추는 편입니다. 더 유창하게 이어서 말해보세요.")
	}
	if p.AvgSilenceLength > 1 {
		out = append(out, "침묵 구간이 깁니다. 생각을 정리하되 너무 오래 멈추지 마세요.")
	}
	return out
}

// FaceFeedback renders coaching lines from action unit intensities.
func FaceFeedback(f models.FaceVector) []string {
	var out []string
	switch {
	case f.AU("AU06") > ActiveAU && f.AU("AU12") > ActiveAU:
		out = append(out, "진정한 미소가 감지되어 호감도가 높습니다.")
	case f.AU("AU12") > ActiveAU:
		out = append(out, "미소를 짓고 있지만, 더 자연스러운 미소를 지어보세요.")
	default:
		out = append(out, "미소가 부족합니다. 입꼬리를 살짝 올려보세요.")
	}
	switch {
	case f.AU("AU01") > ActiveAU || f.AU("AU02") > ActiveAU:
		out = append(out, "적극적인 관심을 보이는 표정이 좋습니다.")
	case f.AU("AU04") > ActiveAU:
		out = append(out, "눈썹이 찌푸려져 있습니다. 더 밝은 표정을 지어보세요.")
	}
	if f.AU("AU23") > ActiveAU {
		out = append(out, "입술이 긴장되어 있습니다. 편안하게 이완시켜보세요.")
	}
	if f.AU("AU28") > ActiveAU {
		out = append(out, "불안한 모습이 보입니다. 자신감 있게 대답해보세요.")
	}
	return out
}

// overallFeedback lists every axis in fixed order, then the coaching lines.
func overallFeedback(r models.RubricScore) string {
	parts := make([]string, 0, len(models.Axes))
	for _, a := range models.Axes {
		parts = append(parts, AxisLabel(a)+": "+r.AxisFeedback(a))
	}
	var b strings.Builder
	b.WriteString(strings.Join(parts, ", "))
	for _, line := range append(append([]string{}, r.VoiceComments...), r.FaceComments...) {
		b.WriteString(" ")
		b.WriteString(line)
	}
	return b.String()
}
