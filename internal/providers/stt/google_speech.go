package stt

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"golang.org/x/sync/errgroup"

	"github.com/yoockh/veriview/internal/models"
)

// syncAudioLimit stays under the one minute synchronous Recognize accepts.
const syncAudioLimit = 55 * time.Second

// GoogleSpeech transcribes with Cloud Speech-to-Text. Audio longer than
// MaxChunk is split and the pieces are recognized in parallel.
type GoogleSpeech struct {
	c *speech.Client

	Language    string
	MaxChunk    time.Duration
	Parallelism int
}

func NewGoogleSpeech(ctx context.Context, language string) (*GoogleSpeech, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GoogleSpeech{c: c, Language: language, MaxChunk: syncAudioLimit, Parallelism: 4}, nil
}

func (g *GoogleSpeech) Name() string { return "google-speech" }

func (g *GoogleSpeech) Close() error { return g.c.Close() }

func (g *GoogleSpeech) Transcribe(ctx context.Context, audioPath string) (models.Transcript, error) {
	raw, err := os.ReadFile(audioPath)
	if err != nil {
		return models.Transcript{}, err
	}
	pcm, err := parseWAV(raw)
	if err != nil {
		return models.Transcript{}, err
	}
	if len(pcm.Data) == 0 {
		return Assemble(nil, g.Language), nil
	}

	maxChunk := g.MaxChunk
	if maxChunk <= 0 || maxChunk > syncAudioLimit {
		maxChunk = syncAudioLimit
	}
	pieces := pcm.chunks(maxChunk)
	results := make([][]models.Segment, len(pieces))

	eg, egctx := errgroup.WithContext(ctx)
	if g.Parallelism > 0 {
		eg.SetLimit(g.Parallelism)
	}
	offset := 0.0
	for i, piece := range pieces {
		base := offset
		offset += pcm.seconds(len(piece))
		eg.Go(func() error {
			segs, err := g.recognize(egctx, pcm, piece, base)
			if err != nil {
				return fmt.Errorf("chunk %d of %d: %w", i+1, len(pieces), err)
			}
			results[i] = segs
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return models.Transcript{}, err
	}

	var segs []models.Segment
	for _, r := range results {
		segs = append(segs, r...)
	}
	return Assemble(segs, g.Language), nil
}

// recognize sends one piece of raw PCM; base shifts its segment times to the
// piece's position in the whole recording.
func (g *GoogleSpeech) recognize(ctx context.Context, pcm pcmAudio, piece []byte, base float64) ([]models.Segment, error) {
	resp, err := g.c.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz:            int32(pcm.SampleRate),
			AudioChannelCount:          int32(pcm.Channels),
			LanguageCode:               LanguageTag(g.Language),
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: piece},
		},
	})
	if err != nil {
		return nil, err
	}
	return segmentsFrom(resp.Results, base), nil
}

func segmentsFrom(results []*speechpb.SpeechRecognitionResult, base float64) []models.Segment {
	var segs []models.Segment
	start := base
	for _, r := range results {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		end := start
		if r.ResultEndTime != nil {
			end = base + r.ResultEndTime.AsDuration().Seconds()
		}
		seg := models.Segment{Text: alt.Transcript, Start: start, End: end}
		// the API reports a probability; stored in log-probability form
		// so every variant shares one confidence mapping
		if alt.Confidence > 0 {
			seg.AvgLogprob = logprob(float64(alt.Confidence) - 1)
		}
		segs = append(segs, seg)
		start = end
	}
	return segs
}

// LanguageTag expands short codes to BCP-47 tags the Speech API expects.
func LanguageTag(lang string) string {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", "ko", "ko-kr":
		return "ko-KR"
	case "en", "en-us":
		return "en-US"
	case "id", "id-id":
		return "id-ID"
	case "ja", "ja-jp":
		return "ja-JP"
	default:
		return lang
	}
}
