package face

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/models"
)

// MinConfidence is the per-frame detection threshold for aggregation.
const MinConfidence = 0.2

// Aggregate averages frames whose detection confidence passes MinConfidence.
// ok is false when none pass and the default vector is returned.
func Aggregate(frames []models.FaceFrame) (models.FaceVector, bool) {
	out := models.FaceVector{AUs: make(map[string]float64, len(models.FaceAUs))}
	for _, au := range models.FaceAUs {
		out.AUs[au] = 0
	}
	for _, f := range frames {
		if f.Confidence < MinConfidence {
			continue
		}
		out.Frames++
		out.Confidence += f.Confidence
		out.GazeX += f.GazeX
		out.GazeY += f.GazeY
		for _, au := range models.FaceAUs {
			out.AUs[au] += f.AUs[au]
		}
	}
	if out.Frames == 0 {
		return models.DefaultFace(), false
	}
	n := float64(out.Frames)
	out.Confidence /= n
	out.GazeX /= n
	out.GazeY /= n
	for au := range out.AUs {
		out.AUs[au] /= n
	}
	return out, true
}

// OpenFace runs the FeatureExtraction binary over a directory of frames.
type OpenFace struct {
	BinPath string
	Log     *logrus.Logger
}

func NewOpenFace(binPath string, log *logrus.Logger) *OpenFace {
	if binPath == "" {
		binPath = "FeatureExtraction"
	}
	if log == nil {
		log = logrus.New()
	}
	return &OpenFace{BinPath: binPath, Log: log}
}

func (o *OpenFace) Name() string { return "face-openface" }

func (o *OpenFace) Available() bool {
	_, err := exec.LookPath(o.BinPath)
	return err == nil
}

func (o *OpenFace) Analyze(ctx context.Context, framesDir string, frames []string) (models.FaceVector, bool) {
	if len(frames) == 0 || framesDir == "" {
		return models.DefaultFace(), true
	}
	outDir := filepath.Join(framesDir, "openface")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		o.Log.WithError(err).Warn("face: cannot create output dir")
		return models.DefaultFace(), true
	}
	defer os.RemoveAll(outDir)

	cmd := exec.CommandContext(ctx, o.BinPath,
		"-fdir", framesDir, "-out_dir", outDir, "-of", "frames", "-aus", "-gaze", "-q")
	if out, err := cmd.CombinedOutput(); err != nil {
		o.Log.WithError(err).WithField("output", tail(string(out))).Warn("face: detector failed, using defaults")
		return models.DefaultFace(), true
	}

	f, err := os.Open(filepath.Join(outDir, "frames.csv"))
	if err != nil {
		o.Log.WithError(err).Warn("face: detector produced no csv")
		return models.DefaultFace(), true
	}
	defer f.Close()

	rows, err := ParseCSV(f)
	if err != nil {
		o.Log.WithError(err).Warn("face: unreadable detector csv")
		return models.DefaultFace(), true
	}
	v, ok := Aggregate(rows)
	return v, !ok
}

// ParseCSV reads detector output keyed by header names. Headers may carry
// leading spaces; AU intensity columns end in _r.
func ParseCSV(r io.Reader) ([]models.FaceFrame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("face csv header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	ci, ok := idx["confidence"]
	if !ok {
		return nil, errors.New("face csv: no confidence column")
	}

	var frames []models.FaceFrame
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("face csv row: %w", err)
		}
		get := func(col string) float64 {
			i, ok := idx[col]
			if !ok || i >= len(rec) {
				return 0
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err != nil {
				return 0
			}
			return v
		}
		if ci >= len(rec) {
			continue
		}
		fr := models.FaceFrame{
			Confidence: get("confidence"),
			GazeX:      get("gaze_angle_x"),
			GazeY:      get("gaze_angle_y"),
			AUs:        make(map[string]float64, len(models.FaceAUs)),
		}
		for _, au := range models.FaceAUs {
			fr.AUs[au] = get(au + "_r")
		}
		frames = append(frames, fr)
	}
	return frames, nil
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 300 {
		return s[len(s)-300:]
	}
	return s
}

// Stub returns a fixed plausible vector when frames exist.
type Stub struct{}

func (Stub) Name() string { return "face-stub" }

func (Stub) Analyze(_ context.Context, _ string, frames []string) (models.FaceVector, bool) {
	if len(frames) == 0 {
		return models.DefaultFace(), true
	}
	v := models.DefaultFace()
	v.Confidence = 0.9
	v.GazeX, v.GazeY = 0.1, 0.1
	v.AUs["AU01"] = 1.2
	v.AUs["AU02"] = 0.8
	v.Frames = len(frames)
	return v, false
}
