package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/internal/utils"
)

const (
	SampleRate       = 16000
	DefaultMaxFrames = 30
)

// Result is the split of one clip. NoMedia is the sentinel for a missing decoder:
// downstream analyzers then emit their default vectors.
type Result struct {
	AudioPath string
	Frames    []string
	Duration  float64
	NoMedia   bool
	NoAudio   bool
}

type Splitter interface {
	Split(ctx context.Context, clipPath, audioOut, framesDir string) (*Result, error)
}

// Prober reports media duration in seconds.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	MaxFrames   int
	MaxBytes    int64
	Log         *logrus.Logger
}

func NewFFmpeg(ffmpegPath, ffprobePath string, maxFrames int, maxBytes int64, log *logrus.Logger) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	if log == nil {
		log = logrus.New()
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, MaxFrames: maxFrames, MaxBytes: maxBytes, Log: log}
}

// Available reports whether the decoder binary can be found.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.FFmpegPath)
	return err == nil
}

func (f *FFmpeg) canMeasure() bool {
	_, err := exec.LookPath(f.FFprobePath)
	return err == nil
}

func (f *FFmpeg) Split(ctx context.Context, clipPath, audioOut, framesDir string) (*Result, error) {
	const op = "Media.Split"

	if err := CheckClip(clipPath, f.MaxBytes); err != nil {
		return nil, err
	}
	if !f.Available() {
		return &Result{NoMedia: true}, nil
	}

	out := &Result{}
	if d, err := f.Duration(ctx, clipPath); err == nil {
		out.Duration = d
	}

	if err := os.MkdirAll(filepath.Dir(audioOut), 0o755); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to create audio dir", err)
	}
	stderr, err := f.run(ctx, f.FFmpegPath,
		"-y", "-v", "error", "-i", clipPath,
		"-vn", "-ac", "1", "-ar", strconv.Itoa(SampleRate), "-acodec", "pcm_s16le",
		audioOut,
	)
	switch {
	case err == nil:
		out.AudioPath = audioOut
	case isNoStream(stderr):
		out.NoAudio = true
		_ = os.Remove(audioOut)
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		_ = os.Remove(audioOut)
		return nil, utils.E(utils.CodeInvalidArgument, op, "clip could not be decoded", fmt.Errorf("%w: %s", utils.ErrMedia, lastLine(stderr)))
	}

	frames, err := f.sampleFrames(ctx, clipPath, framesDir, out.Duration)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.Log.WithError(err).WithField("clip", clipPath).Warn("frame sampling failed")
	}
	out.Frames = frames
	return out, nil
}

// CheckClip validates existence and size before any decoding.
func CheckClip(clipPath string, maxBytes int64) error {
	const op = "Media.CheckClip"

	st, err := os.Stat(clipPath)
	if err != nil {
		return utils.E(utils.CodeInvalidArgument, op, "clip not found", fmt.Errorf("%w: %v", utils.ErrMedia, err))
	}
	if st.IsDir() || st.Size() == 0 {
		return utils.E(utils.CodeInvalidArgument, op, "clip is empty", utils.ErrMedia)
	}
	if maxBytes > 0 && st.Size() > maxBytes {
		return utils.E(utils.CodeTooLarge, op, fmt.Sprintf("clip exceeds %d bytes", maxBytes), utils.ErrMedia)
	}
	return nil
}

// sampleFrames extracts up to MaxFrames JPEGs at a uniform rate across the clip.
func (f *FFmpeg) sampleFrames(ctx context.Context, clipPath, dir string, duration float64) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	rate := 1.0
	if duration > 0 {
		rate = float64(f.MaxFrames) / duration
	}
	stderr, err := f.run(ctx, f.FFmpegPath,
		"-y", "-v", "error", "-i", clipPath,
		"-vf", "fps="+strconv.FormatFloat(rate, 'f', 4, 64),
		"-frames:v", strconv.Itoa(f.MaxFrames),
		"-q:v", "3",
		filepath.Join(dir, "frame_%04d.jpg"),
	)
	if err != nil && !isNoStream(stderr) {
		return nil, fmt.Errorf("ffmpeg frames: %s", lastLine(stderr))
	}
	frames, _ := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	sort.Strings(frames)
	if len(frames) > f.MaxFrames {
		frames = frames[:f.MaxFrames]
	}
	return frames, nil
}

func (f *FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	if !f.canMeasure() {
		return 0, errors.New("ffprobe not available")
	}
	cmd := exec.CommandContext(ctx, f.FFprobePath,
		"-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path,
	)
	b, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}
	d, err := strconv.ParseFloat(strings.TrimSpace(string(b)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe duration %q: %w", strings.TrimSpace(string(b)), err)
	}
	return d, nil
}

func (f *FFmpeg) run(ctx context.Context, bin string, args ...string) (string, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.String(), err
}

func isNoStream(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "does not contain any stream") ||
		strings.Contains(s, "matches no streams") ||
		strings.Contains(s, "output file does not contain any stream")
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		return s[i+1:]
	}
	if s == "" {
		return "decoder failed"
	}
	return s
}
