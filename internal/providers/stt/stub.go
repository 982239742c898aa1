package stt

import (
	"context"

	"github.com/yoockh/veriview/internal/models"
)

// Stub returns Text for every clip; empty unless a caller opts in.
type Stub struct {
	Text     string
	Language string
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) Close() error { return nil }

func (s *Stub) Transcribe(ctx context.Context, audioPath string) (models.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return models.Transcript{}, err
	}
	if s.Text == "" {
		return models.Transcript{Language: s.Language}, nil
	}
	return Assemble([]models.Segment{{Text: s.Text}}, s.Language), nil
}
