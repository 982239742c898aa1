package models

import "time"

type Turn struct {
	Index int    `bson:"index" json:"index"`
	Phase string `bson:"phase" json:"phase"`

	ClipPath   string `bson:"clip_path,omitempty" json:"clip_path,omitempty"`
	AudioPath  string `bson:"audio_path,omitempty" json:"audio_path,omitempty"`
	ClipDigest string `bson:"clip_digest,omitempty" json:"clip_digest,omitempty"`

	Transcript Transcript    `bson:"transcript" json:"transcript"`
	Prosody    ProsodyVector `bson:"prosody" json:"prosody"`
	Face       FaceVector    `bson:"face" json:"face"`
	Scores     RubricScore   `bson:"scores" json:"scores"`

	// Degraded is set when any analyzer fell back to its default vector.
	Degraded          bool     `bson:"degraded" json:"degraded"`
	DegradedAnalyzers []string `bson:"degraded_analyzers,omitempty" json:"degraded_analyzers,omitempty"`
	Warnings          []string `bson:"warnings,omitempty" json:"warnings,omitempty"`

	AIText       string `bson:"ai_text,omitempty" json:"ai_text,omitempty"`
	AIVideoKey   string `bson:"ai_video_key,omitempty" json:"ai_video_key,omitempty"`
	FallbackText string `bson:"fallback_text,omitempty" json:"fallback_text,omitempty"`

	Complete  bool      `bson:"complete" json:"complete"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type Segment struct {
	Text       string   `bson:"text" json:"text"`
	Start      float64  `bson:"t_start" json:"t_start"`
	End        float64  `bson:"t_end" json:"t_end"`
	AvgLogprob *float64 `bson:"avg_logprob,omitempty" json:"avg_logprob,omitempty"`
}

type Transcript struct {
	Text       string    `bson:"text" json:"text"`
	Segments   []Segment `bson:"segments,omitempty" json:"segments,omitempty"`
	Confidence float64   `bson:"confidence" json:"confidence"`
	Language   string    `bson:"language,omitempty" json:"language,omitempty"`
}

func (t Turn) clone() Turn {
	t.Transcript.Segments = append([]Segment(nil), t.Transcript.Segments...)
	t.Prosody.MFCCMean = append([]float64(nil), t.Prosody.MFCCMean...)
	if t.Face.AUs != nil {
		aus := make(map[string]float64, len(t.Face.AUs))
		for k, v := range t.Face.AUs {
			aus[k] = v
		}
		t.Face.AUs = aus
	}
	t.Scores.Emotions = append([]Emotion(nil), t.Scores.Emotions...)
	t.Scores.VoiceComments = append([]string(nil), t.Scores.VoiceComments...)
	t.Scores.FaceComments = append([]string(nil), t.Scores.FaceComments...)
	t.DegradedAnalyzers = append([]string(nil), t.DegradedAnalyzers...)
	t.Warnings = append([]string(nil), t.Warnings...)
	return t
}
