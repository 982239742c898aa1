package services

import (
	"fmt"
	"strings"

	"github.com/yoockh/veriview/internal/models"
)

// debateLines holds the fixed AI lines per phase and speaking stance.
var debateLines = map[models.Phase]map[models.Stance]string{
	models.PhaseOpening: {
		models.StancePro: "안녕하세요. 저는 %[1]s에 대해 찬성하는 입장입니다. %[1]s은 우리 사회에 긍정적인 변화를 가져올 것입니다.",
		models.StanceCon: "안녕하세요. 저는 %[1]s에 대해 신중한 접근이 필요하다고 생각합니다. 여러 부작용을 고려해야 합니다.",
	},
	models.PhaseRebuttal: {
		models.StancePro: "상대측 주장을 들었지만, %[1]s의 긍정적 측면이 더 크다고 생각합니다.",
		models.StanceCon: "상대측 의견에도 일리가 있지만, %[1]s의 위험성을 간과해서는 안됩니다.",
	},
	models.PhaseCounterRebuttal: {
		models.StancePro: "추가로 말씀드리면, %[1]s은 장기적으로 더 큰 이익을 가져올 것입니다.",
		models.StanceCon: "또한 %[1]s이 가져올 수 있는 사회적 문제도 고려해야 합니다.",
	},
	models.PhaseClosing: {
		models.StancePro: "결론적으로 %[1]s은 우리가 받아들여야 할 변화입니다.",
		models.StanceCon: "정리하면, %[1]s에 대해서는 더 신중한 검토가 필요합니다.",
	},
}

const defaultDebateLine = "%s에 대한 제 입장을 말씀드렸습니다."

const quotedRunes = 30

// DebateLine is the template utterance for the AI speaking stance in phase.
// A rebuttal quotes the start of the user's last statement and a counter
// rebuttal acknowledges it.
func DebateLine(phase models.Phase, topic string, stance models.Stance, userText string) string {
	tmpl, ok := debateLines[phase][stance]
	if !ok {
		return fmt.Sprintf(defaultDebateLine, topic)
	}
	line := fmt.Sprintf(tmpl, topic)

	userText = strings.TrimSpace(userText)
	if userText == "" {
		return line
	}
	switch phase {
	case models.PhaseRebuttal:
		r := []rune(userText)
		if len(r) > quotedRunes {
			r = r[:quotedRunes]
		}
		return fmt.Sprintf("'%s...'라는 의견에 대해, %s", string(r), line)
	case models.PhaseCounterRebuttal:
		return "반론에 대한 의견 감사합니다. 하지만 " + line
	}
	return line
}

var generalQuestions = map[models.QuestionType]string{
	models.QuestionIntro:       "자기소개를 간단히 해주세요.",
	models.QuestionFit:         "이 직무에 지원한 이유는 무엇인가요?",
	models.QuestionPersonality: "본인의 강점과 약점은 무엇인가요?",
	models.QuestionTech:        "최근에 관심을 가지고 있는 기술 트렌드가 있다면 설명해주세요.",
}

var categoryQuestions = map[string]map[models.QuestionType]string{
	"ICT": {
		models.QuestionIntro:       "IT 분야에서의 경험과 함께 자기소개를 해주세요.",
		models.QuestionFit:         "%s 분야에서 본인이 가장 관심있는 세부 분야는 무엇인가요?",
		models.QuestionPersonality: "팀 프로젝트에서 갈등이 발생했을 때 어떻게 해결했는지 경험을 말씀해주세요.",
		models.QuestionTech:        "최근 IT 기술 중 가장 주목하고 있는 기술과 그 이유를 설명해주세요.",
	},
	"BM": {
		models.QuestionIntro:       "경영/관리직 경험과 함께 자기소개를 해주세요.",
		models.QuestionFit:         "경영/관리직에서 가장 중요하다고 생각하는 역량은 무엇인가요?",
		models.QuestionPersonality: "리더십을 발휘했던 경험에 대해 말씀해주세요.",
		models.QuestionTech:        "경영/관리 분야에서 최근 디지털 전환의 흐름에 대해 어떻게 생각하시나요?",
	},
}

// Follow-up templates chosen from the latest answer.
const (
	FollowupProject    = "그 프로젝트에서 가장 어려웠던 점과 어떻게 해결했는지 설명해주실 수 있을까요?"
	FollowupExperience = "그 경험을 통해 어떤 교훈을 얻으셨나요?"
	FollowupGeneric    = "방금 답변해주신 내용에 대해 좀 더 구체적인 사례나 경험을 말씀해주실 수 있을까요?"
)

// Question returns the pooled question for a job category. FOLLOWUP is not
// pooled; see Followup.
func Question(category string, q models.QuestionType) string {
	if pool, ok := categoryQuestions[category]; ok {
		if text, ok := pool[q]; ok {
			if strings.Contains(text, "%s") {
				return fmt.Sprintf(text, category)
			}
			return text
		}
	}
	if text, ok := generalQuestions[q]; ok {
		return text
	}
	return generalQuestions[models.QuestionIntro]
}

// Followup derives the follow-up question from the latest transcript.
func Followup(transcript string) string {
	t := strings.ToLower(transcript)
	switch {
	case strings.Contains(t, "프로젝트") || strings.Contains(t, "project"):
		return FollowupProject
	case strings.Contains(t, "경험") || strings.Contains(t, "experience"):
		return FollowupExperience
	}
	return FollowupGeneric
}

// ClosingScript is the interviewer's last line, chosen by mean axis score.
func ClosingScript(mean float64) string {
	var opening, body string
	switch {
	case mean >= 4.5:
		opening = "수고하셨습니다. 매우 우수한 면접이었습니다."
		body = "전반적으로 매우 훌륭한 답변이었습니다. 자신감 있고 논리적인 답변이 인상적이었습니다."
	case mean >= 4.0:
		opening = "수고하셨습니다. 좋은 면접이었습니다."
		body = "좋은 답변이었습니다. 조금 더 구체적인 예시를 들어주시면 더 좋을 것 같습니다."
	case mean >= 3.5:
		opening = "수고하셨습니다. 양호한 면접이었습니다."
		body = "적절한 답변이었습니다. 답변의 구조를 더 체계적으로 정리하시면 좋겠습니다."
	default:
		opening = "수고하셨습니다. 개선할 부분이 있었습니다."
		body = "답변에 개선이 필요합니다. 질문의 요점을 파악하고 간결하게 답변하는 연습이 필요합니다."
	}
	return opening + " " + body
}
