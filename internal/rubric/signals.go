package rubric

import (
	"math"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/utils"
)

// Composites are derived voice signals, each in [0, 1].
type Composites struct {
	Stability float64 `json:"stability"`
	Clarity   float64 `json:"clarity"`
	Energy    float64 `json:"energy"`
	Pace      float64 `json:"pace"`
	Fluency   float64 `json:"fluency"`
}

func ComputeComposites(p models.ProsodyVector) Composites {
	return Composites{
		Stability: utils.Clamp(1-p.PitchStd/100, 0, 1),
		Clarity:   utils.Clamp(math.Min(1, p.SpectralCentroidMean/3000)*p.HarmonicRatio, 0, 1),
		Energy:    utils.Clamp(math.Min(1, p.RMSMean/0.4)*(1+p.EmotionalIntensity), 0, 1),
		Pace:      pace(p.Tempo),
		Fluency:   utils.Clamp(p.SpeechRatio*(1-math.Min(1, p.SilenceVariation)), 0, 1),
	}
}

// pace buckets tempo; boundaries belong to the higher bucket.
func pace(tempo float64) float64 {
	switch {
	case tempo >= 100 && tempo <= 140:
		return 1.0
	case tempo >= 90 && tempo <= 150:
		return 0.7
	default:
		return 0.4
	}
}

type emotionPattern struct {
	key      string
	name     string
	required []string
	optional []string
	weight   float64
}

// ActiveAU is the intensity an action unit must exceed to count as present.
const ActiveAU = 0.5

var emotionPatterns = []emotionPattern{
	{"genuine_smile", "진정한 미소", []string{"AU06", "AU12"}, []string{"AU25"}, 1.5},
	{"polite_smile", "사회적 미소", []string{"AU12"}, []string{"AU25"}, 1.0},
	{"concentration", "집중", []string{"AU04"}, []string{"AU07", "AU23"}, 1.2},
	{"interest", "관심/호기심", []string{"AU01", "AU05"}, []string{"AU02"}, 1.3},
	{"confusion", "혼란/의문", []string{"AU04", "AU07"}, []string{"AU09", "AU17"}, 0.8},
	{"stress", "스트레스/긴장", []string{"AU07", "AU23"}, []string{"AU04", "AU17"}, 0.7},
}

// DetectEmotions reports the AU patterns whose required units are all active.
func DetectEmotions(f models.FaceVector) []models.Emotion {
	var out []models.Emotion
	for _, p := range emotionPatterns {
		ok := true
		for _, au := range p.required {
			if f.AU(au) <= ActiveAU {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		conf := 0.8
		for _, au := range p.optional {
			if f.AU(au) > ActiveAU {
				conf = 1.0
				break
			}
		}
		out = append(out, models.Emotion{Key: p.key, Name: p.name, Confidence: conf, Weight: p.weight})
	}
	return out
}
