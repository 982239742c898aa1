package prosody

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/models"
)

// Native decodes the turn's WAV and runs Extract. Any failure yields the
// default vector with degraded set; it never returns an error.
type Native struct {
	Log *logrus.Logger
}

func NewNative(log *logrus.Logger) *Native {
	if log == nil {
		log = logrus.New()
	}
	return &Native{Log: log}
}

func (n *Native) Name() string { return "prosody-native" }

func (n *Native) Analyze(ctx context.Context, audioPath string) (models.ProsodyVector, bool) {
	if audioPath == "" || ctx.Err() != nil {
		return models.DefaultProsody(), true
	}
	samples, sr, err := ReadWAV(audioPath)
	if err != nil {
		n.Log.WithError(err).WithField("audio", audioPath).Warn("prosody: unreadable audio, using defaults")
		return models.DefaultProsody(), true
	}
	v, err := Extract(samples, sr)
	if err != nil {
		n.Log.WithError(err).WithField("audio", audioPath).Warn("prosody: extraction failed, using defaults")
		return models.DefaultProsody(), true
	}
	return v, false
}

// Stub returns a fixed plausible vector. It is a configured variant, not a
// failure, so it never reports degraded unless the audio is missing.
type Stub struct{}

func (Stub) Name() string { return "prosody-stub" }

func (Stub) Analyze(_ context.Context, audioPath string) (models.ProsodyVector, bool) {
	if audioPath == "" {
		return models.DefaultProsody(), true
	}
	return models.DefaultProsody(), false
}
