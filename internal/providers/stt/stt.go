package stt

import (
	"context"
	"strings"

	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/utils"
)

// Provider turns a 16 kHz mono WAV file into a transcript.
// Empty speech yields an empty transcript, not an error.
type Provider interface {
	Transcribe(ctx context.Context, audioPath string) (models.Transcript, error)
	Name() string
	Close() error
}

// DefaultSegmentConfidence applies when a segment carries no log-probability.
const DefaultSegmentConfidence = 0.75

// SegmentConfidence maps avg_logprob from [-1, 0] linearly onto [0, 1].
func SegmentConfidence(s models.Segment) float64 {
	if s.AvgLogprob == nil {
		return DefaultSegmentConfidence
	}
	return utils.Clamp(1+*s.AvgLogprob, 0, 1)
}

// Assemble joins segment texts and averages their confidence.
func Assemble(segments []models.Segment, language string) models.Transcript {
	out := models.Transcript{Language: language}
	parts := make([]string, 0, len(segments))
	var confs []float64
	for _, s := range segments {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		out.Segments = append(out.Segments, s)
		parts = append(parts, s.Text)
		confs = append(confs, SegmentConfidence(s))
	}
	out.Text = strings.Join(parts, " ")
	out.Confidence = utils.Mean(confs)
	return out
}

func logprob(v float64) *float64 { return &v }
