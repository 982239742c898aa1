package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/providers/llm"
)

// UtteranceGenerator writes the AI side of a debate.
type UtteranceGenerator interface {
	// Next returns the AI line for phase and where it came from ("llm" or "template").
	Next(ctx context.Context, topic string, aiStance models.Stance, phase models.Phase, userText string) (string, string)
}

const (
	SourceTemplate = "template"
	SourceLLM      = "llm"
)

// Templates is the fixed-script generator.
type Templates struct{}

func (Templates) Next(_ context.Context, topic string, aiStance models.Stance, phase models.Phase, userText string) (string, string) {
	return DebateLine(phase, topic, aiStance, userText), SourceTemplate
}

// LLMUtterances asks the model for rebuttal, counter rebuttal and closing
// lines and falls back to Templates on any error. Openings are always scripted.
type LLMUtterances struct {
	Provider llm.Provider
	Timeout  time.Duration
	Log      *logrus.Logger
}

var phaseNames = map[models.Phase]string{
	models.PhaseOpening:         "입론",
	models.PhaseRebuttal:        "반론",
	models.PhaseCounterRebuttal: "재반론",
	models.PhaseClosing:         "최종 변론",
}

func debatePrompt(topic string, aiStance models.Stance, phase models.Phase, userText string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "토론 주제: %s\n", topic)
	fmt.Fprintf(&b, "당신의 입장: %s\n", aiStance)
	fmt.Fprintf(&b, "현재 단계: %s\n\n", phaseNames[phase])
	if strings.TrimSpace(userText) != "" {
		fmt.Fprintf(&b, "상대방의 발언:\n%s\n\n", userText)
	}
	b.WriteString("요구사항:\n")
	b.WriteString("1. 상대방 발언의 핵심을 짚고 논리적으로 대응할 것\n")
	b.WriteString("2. 구체적인 근거를 하나 이상 제시할 것\n")
	b.WriteString("3. 한국어로 3문장 이내, 400자 이내로 작성할 것\n\n")
	b.WriteString("발언만 출력하세요:")
	return b.String()
}

func (g *LLMUtterances) Next(ctx context.Context, topic string, aiStance models.Stance, phase models.Phase, userText string) (string, string) {
	if g.Provider == nil || phase == models.PhaseOpening {
		return Templates{}.Next(ctx, topic, aiStance, phase, userText)
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	text, err := llm.Collect(cctx, g.Provider, debatePrompt(topic, aiStance, phase, userText))
	if err != nil {
		if g.Log != nil {
			g.Log.WithError(err).WithField("phase", phase).Warn("llm utterance failed, using template")
		}
		return Templates{}.Next(ctx, topic, aiStance, phase, userText)
	}
	return text, SourceLLM
}
