package rubric

import "strings"

// Lemma sets are matched as lower-cased substrings so inflections
// ("collaborate", "collaboration", "logical") share one stem.
var (
	cooperationLemmas = []string{"협력", "협업", "cooperat", "collaborat"}
	logicLemmas       = []string{"논리", "근거", "logic", "reason", "evidence"}
	solutionLemmas    = []string{"해결", "solv", "solution"}

	concretenessMarkers = []string{"예를 들어", "구체적으로", "실제로", "경험", "사례", "for example", "specifically"}
)

func containsAny(text string, lemmas []string) bool {
	lower := strings.ToLower(text)
	for _, l := range lemmas {
		if strings.Contains(lower, l) {
			return true
		}
	}
	return false
}
