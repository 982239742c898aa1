package prosody

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/yoockh/veriview/internal/logger"
	"github.com/yoockh/veriview/internal/models"
)

const testRate = 16000

func tone(freq, seconds, amp float64) []float64 {
	n := int(seconds * testRate)
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

func writeWAV(t *testing.T, samples []float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "turn.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := EncodeWAV(f, samples, testRate); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtract_SineTone(t *testing.T) {
	v, err := Extract(tone(220, 1, 0.5), testRate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.PitchMean < 215 || v.PitchMean > 225 {
		t.Errorf("expected pitch near 220Hz, got %.2f", v.PitchMean)
	}
	if v.PitchRange > 5 {
		t.Errorf("expected a steady pitch, range %.2f", v.PitchRange)
	}
	if v.VolumeConsistency < 0.95 {
		t.Errorf("expected consistent volume, got %.3f", v.VolumeConsistency)
	}
	if v.SpeechRatio < 0.99 {
		t.Errorf("expected all frames voiced, got %.3f", v.SpeechRatio)
	}
	if v.FluencyScore != 1 {
		t.Errorf("expected full fluency, got %.3f", v.FluencyScore)
	}
	if v.SpeakingRateWPM != 60 {
		t.Errorf("expected wpm clamped to 60, got %.1f", v.SpeakingRateWPM)
	}
	if v.ZCRMean < 0.02 || v.ZCRMean > 0.035 {
		t.Errorf("unexpected zcr %.4f", v.ZCRMean)
	}
	if v.SpectralCentroidMean <= 0 || v.SpectralCentroidMean > 1000 {
		t.Errorf("unexpected centroid %.1f", v.SpectralCentroidMean)
	}
	if v.HarmonicRatio < 0.8 {
		t.Errorf("expected a harmonic signal, got %.3f", v.HarmonicRatio)
	}
	if len(v.MFCCMean) != models.MFCCCount {
		t.Errorf("expected %d mfcc, got %d", models.MFCCCount, len(v.MFCCMean))
	}
	if v.Tempo < 30 || v.Tempo > 300 {
		t.Errorf("tempo out of range: %.1f", v.Tempo)
	}
}

func TestExtract_Pauses(t *testing.T) {
	var x []float64
	x = append(x, tone(200, 0.5, 0.5)...)
	x = append(x, make([]float64, testRate/2)...)
	x = append(x, tone(200, 0.5, 0.5)...)

	v, err := Extract(x, testRate)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.AvgSilenceLength < 0.4 || v.AvgSilenceLength > 0.6 {
		t.Errorf("expected ~0.5s pause, got %.3f", v.AvgSilenceLength)
	}
	if math.Abs(v.PauseFrequency-1/1.5) > 0.01 {
		t.Errorf("expected one pause over 1.5s, got %.3f", v.PauseFrequency)
	}
	if v.SpeechRatio < 0.6 || v.SpeechRatio > 0.7 {
		t.Errorf("unexpected speech ratio %.3f", v.SpeechRatio)
	}
	if v.FluencyScore >= 1 || v.FluencyScore <= 0 {
		t.Errorf("expected reduced fluency, got %.3f", v.FluencyScore)
	}
}

func TestExtract_Failures(t *testing.T) {
	if _, err := Extract(make([]float64, testRate), testRate); !errors.Is(err, ErrSilent) {
		t.Errorf("expected ErrSilent, got %v", err)
	}
	if _, err := Extract(tone(220, 0.01, 0.5), testRate); !errors.Is(err, ErrTooShort) {
		t.Errorf("expected ErrTooShort, got %v", err)
	}
}

func TestNative_Analyze(t *testing.T) {
	a := NewNative(logger.Discard())
	ctx := context.Background()

	v, degraded := a.Analyze(ctx, writeWAV(t, tone(180, 1, 0.4)))
	if degraded {
		t.Fatal("expected a clean analysis")
	}
	if v.PitchMean < 170 || v.PitchMean > 190 {
		t.Errorf("expected pitch near 180Hz, got %.2f", v.PitchMean)
	}

	v, degraded = a.Analyze(ctx, filepath.Join(t.TempDir(), "missing.wav"))
	if !degraded {
		t.Error("expected degraded for a missing file")
	}
	if v.PitchMean != models.DefaultProsody().PitchMean {
		t.Errorf("expected default vector, got %+v", v)
	}

	_, degraded = a.Analyze(ctx, writeWAV(t, make([]float64, testRate)))
	if !degraded {
		t.Error("expected degraded for silence")
	}
}

func TestStub_Analyze(t *testing.T) {
	if _, degraded := (Stub{}).Analyze(context.Background(), "clip.wav"); degraded {
		t.Error("stub should not be degraded")
	}
	if _, degraded := (Stub{}).Analyze(context.Background(), ""); !degraded {
		t.Error("stub without audio should be degraded")
	}
}

func TestDecodeWAV_Rejects(t *testing.T) {
	if _, _, err := DecodeWAV(bytes.NewReader([]byte("not a wav file at all"))); err == nil {
		t.Error("expected error for garbage input")
	}

	var buf bytes.Buffer
	if err := EncodeWAV(&buf, tone(440, 0.1, 0.3), testRate); err != nil {
		t.Fatal(err)
	}
	samples, sr, err := DecodeWAV(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sr != testRate || len(samples) != testRate/10 {
		t.Errorf("unexpected decode: sr=%d n=%d", sr, len(samples))
	}
}
