package models

// ProsodyVector holds turn-level voice features. Frequencies in Hz, durations in seconds.
type ProsodyVector struct {
	PitchMean  float64 `bson:"pitch_mean" json:"pitch_mean"`
	PitchStd   float64 `bson:"pitch_std" json:"pitch_std"`
	PitchRange float64 `bson:"pitch_range" json:"pitch_range"`

	RMSMean float64 `bson:"rms_mean" json:"rms_mean"`
	RMSStd  float64 `bson:"rms_std" json:"rms_std"`

	Tempo float64 `bson:"tempo" json:"tempo"`

	SpectralCentroidMean float64   `bson:"spectral_centroid_mean" json:"spectral_centroid_mean"`
	SpectralCentroidStd  float64   `bson:"spectral_centroid_std" json:"spectral_centroid_std"`
	ZCRMean              float64   `bson:"zcr_mean" json:"zcr_mean"`
	ZCRStd               float64   `bson:"zcr_std" json:"zcr_std"`
	MFCCMean             []float64 `bson:"mfcc_mean" json:"mfcc_mean"`
	SpectralRolloffMean  float64   `bson:"spectral_rolloff_mean" json:"spectral_rolloff_mean"`
	SpectralContrastMean float64   `bson:"spectral_contrast_mean" json:"spectral_contrast_mean"`

	HarmonicRatio      float64 `bson:"harmonic_ratio" json:"harmonic_ratio"`
	AmplitudeVariation float64 `bson:"amplitude_variation" json:"amplitude_variation"`
	EmotionalIntensity float64 `bson:"emotional_intensity" json:"emotional_intensity"`

	SpeechRatio           float64 `bson:"speech_ratio" json:"speech_ratio"`
	AvgSilenceLength      float64 `bson:"avg_silence_length" json:"avg_silence_length"`
	SilenceVariation      float64 `bson:"silence_variation" json:"silence_variation"`
	SpeakingRateVariation float64 `bson:"speaking_rate_variation" json:"speaking_rate_variation"`
	PauseFrequency        float64 `bson:"pause_frequency" json:"pause_frequency"`
	SpeakingRateWPM       float64 `bson:"speaking_rate_wpm" json:"speaking_rate_wpm"`
	VolumeConsistency     float64 `bson:"volume_consistency" json:"volume_consistency"`
	FluencyScore          float64 `bson:"fluency_score" json:"fluency_score"`
}

const MFCCCount = 13

// DefaultProsody is emitted when the audio track cannot be analysed.
func DefaultProsody() ProsodyVector {
	return ProsodyVector{
		PitchMean:             150,
		PitchStd:              30,
		PitchRange:            100,
		RMSMean:               0.3,
		RMSStd:                0.1,
		Tempo:                 120,
		SpectralCentroidMean:  2000,
		SpectralCentroidStd:   500,
		ZCRMean:               0.05,
		ZCRStd:                0.02,
		MFCCMean:              make([]float64, MFCCCount),
		SpectralRolloffMean:   3000,
		SpectralContrastMean:  20,
		HarmonicRatio:         0.7,
		AmplitudeVariation:    0.2,
		EmotionalIntensity:    0.14,
		SpeechRatio:           0.8,
		AvgSilenceLength:      0.5,
		SilenceVariation:      0.2,
		SpeakingRateVariation: 0.1,
		PauseFrequency:        2,
		SpeakingRateWPM:       150,
		VolumeConsistency:     0.8,
		FluencyScore:          0.85,
	}
}

// FaceAUs is the fixed set of action units extracted per frame.
var FaceAUs = []string{
	"AU01", "AU02", "AU04", "AU05", "AU06", "AU07", "AU09", "AU10",
	"AU12", "AU14", "AU15", "AU17", "AU20", "AU23", "AU25", "AU26", "AU28",
}

// FaceFrame is one analysed video frame.
type FaceFrame struct {
	Confidence float64
	GazeX      float64
	GazeY      float64
	AUs        map[string]float64
}

// FaceVector is the turn-level mean over frames that passed detection.
type FaceVector struct {
	Confidence float64            `bson:"detection_confidence" json:"detection_confidence"`
	GazeX      float64            `bson:"gaze_angle_x" json:"gaze_angle_x"`
	GazeY      float64            `bson:"gaze_angle_y" json:"gaze_angle_y"`
	AUs        map[string]float64 `bson:"aus" json:"aus"`
	Frames     int                `bson:"frames" json:"frames"`
}

func (f FaceVector) AU(name string) float64 {
	if f.AUs == nil {
		return 0
	}
	return f.AUs[name]
}

// DefaultFace is emitted when no frame passes detection.
func DefaultFace() FaceVector {
	aus := make(map[string]float64, len(FaceAUs))
	for _, au := range FaceAUs {
		aus[au] = 0
	}
	return FaceVector{AUs: aus}
}
