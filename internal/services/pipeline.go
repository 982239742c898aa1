package services

import (
	"context"
	"encoding/json"
	"errors"
	"runtime"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"gorm.io/datatypes"

	"github.com/yoockh/veriview/internal/analysis"
	"github.com/yoockh/veriview/internal/cache"
	"github.com/yoockh/veriview/internal/media"
	"github.com/yoockh/veriview/internal/models"
	"github.com/yoockh/veriview/internal/providers/stt"
	"github.com/yoockh/veriview/internal/rubric"
	"github.com/yoockh/veriview/internal/storage"
	"github.com/yoockh/veriview/internal/utils"
)

// Analyzers is the part of the analysis supervisor the pipeline reads.
type Analyzers interface {
	Prosody() analysis.ProsodyAnalyzer
	Face() analysis.FaceAnalyzer
	ASR() stt.Provider
}

// TurnInput identifies one uploaded clip.
type TurnInput struct {
	Kind      models.SessionKind
	SessionID string
	Phase     string
	ClipPath  string
	Digest    string
}

// TurnResult is the joined output of the analyzers and the scorer.
type TurnResult struct {
	Transcript        models.Transcript    `json:"transcript"`
	Prosody           models.ProsodyVector `json:"prosody"`
	Face              models.FaceVector    `json:"face"`
	Scores            models.RubricScore   `json:"scores"`
	AudioPath         string               `json:"audio_path,omitempty"`
	Degraded          bool                 `json:"degraded"`
	DegradedAnalyzers []string             `json:"degraded_analyzers,omitempty"`
	Warnings          []string             `json:"warnings,omitempty"`
}

func (r *TurnResult) degrade(analyzer, warning string) {
	r.Degraded = true
	if !slices.Contains(r.DegradedAnalyzers, analyzer) {
		r.DegradedAnalyzers = append(r.DegradedAnalyzers, analyzer)
	}
	if warning != "" {
		r.Warnings = append(r.Warnings, warning)
	}
}

// Warning texts surfaced with degraded turns.
const (
	WarnUndecodable  = "영상을 분석할 수 없어 기본값으로 채점했습니다."
	WarnNoDecoder    = "미디어 디코더를 사용할 수 없어 기본값으로 채점했습니다."
	WarnNoAudio      = "음성 트랙이 없어 음성 분석을 건너뛰었습니다."
	WarnNoFace       = "얼굴이 감지되지 않아 표정 분석 기본값을 사용했습니다."
	WarnASRFailed    = "음성 인식에 실패했습니다."
	WarnProsodyEmpty = "음성 특성을 추출하지 못해 기본값을 사용했습니다."
)

type PipelineOptions struct {
	Splitter  media.Splitter
	Analyzers Analyzers
	Scorer    *rubric.Scorer
	Store     *storage.ContentStore
	Cache     cache.Cache
	CacheTTL  time.Duration
	// Workers caps concurrent CPU-bound analysis across all sessions.
	Workers int
	Log     *logrus.Logger
}

// Pipeline fans one clip out to ASR, prosody and face analysis in parallel
// and joins the results into a rubric score.
type Pipeline struct {
	splitter  media.Splitter
	analyzers Analyzers
	scorer    *rubric.Scorer
	store     *storage.ContentStore
	cache     cache.Cache
	cacheTTL  time.Duration
	sem       *semaphore.Weighted
	log       *logrus.Logger
}

func NewPipeline(o PipelineOptions) *Pipeline {
	workers := runtime.NumCPU()
	if o.Workers > 0 && o.Workers < workers {
		workers = o.Workers
	}
	if o.Scorer == nil {
		o.Scorer = rubric.New("")
	}
	if o.Log == nil {
		o.Log = logrus.New()
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 24 * time.Hour
	}
	return &Pipeline{
		splitter:  o.Splitter,
		analyzers: o.Analyzers,
		scorer:    o.Scorer,
		store:     o.Store,
		cache:     o.Cache,
		cacheTTL:  o.CacheTTL,
		sem:       semaphore.NewWeighted(int64(workers)),
		log:       o.Log,
	}
}

// Run analyses the clip. Analyzer failures degrade the result instead of
// failing it; only an expired context or an oversized clip is an error.
func (p *Pipeline) Run(ctx context.Context, in TurnInput) (*TurnResult, error) {
	const op = "Pipeline.Run"
	log := p.log.WithFields(logrus.Fields{"session_id": in.SessionID, "phase": in.Phase, "kind": in.Kind})

	key := cache.TurnKey(in.SessionID, in.Phase, in.Digest)
	if p.cache != nil && in.Digest != "" {
		var cached TurnResult
		if ok, err := p.cache.GetJSON(ctx, key, &cached); err == nil && ok {
			log.Debug("turn result served from cache")
			return &cached, nil
		} else if err != nil {
			log.WithError(err).Warn("turn cache read failed")
		}
	}

	tp, err := p.store.TurnPaths(in.Kind, in.SessionID, in.Phase)
	if err != nil {
		return nil, err
	}
	defer p.store.CleanTurn(in.Kind, in.SessionID, in.Phase)

	res := &TurnResult{}
	split, err := p.split(ctx, in.ClipPath, tp)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, timeoutErr(op, ctx.Err())
	case utils.IsCode(err, utils.CodeTooLarge):
		return nil, err
	case errors.Is(err, utils.ErrMedia):
		log.WithError(err).Warn("clip undecodable, using default vectors")
		res.Warnings = append(res.Warnings, WarnUndecodable)
		split = &media.Result{NoMedia: true}
	default:
		return nil, utils.E(utils.CodeInternal, op, "failed to split clip", err)
	}
	if split.NoMedia && len(res.Warnings) == 0 {
		res.Warnings = append(res.Warnings, WarnNoDecoder)
	}
	if split.NoAudio {
		res.Warnings = append(res.Warnings, WarnNoAudio)
	}
	res.AudioPath = split.AudioPath

	var (
		tr          models.Transcript
		asrErr      error
		pv          models.ProsodyVector
		pDegraded   bool
		fv          models.FaceVector
		fDegraded   bool
		asrDegraded = split.AudioPath == ""
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if split.AudioPath == "" {
			return nil
		}
		return p.withWorker(gctx, func() {
			tr, asrErr = p.analyzers.ASR().Transcribe(gctx, split.AudioPath)
		})
	})
	g.Go(func() error {
		return p.withWorker(gctx, func() {
			pv, pDegraded = p.analyzers.Prosody().Analyze(gctx, split.AudioPath)
		})
	})
	g.Go(func() error {
		return p.withWorker(gctx, func() {
			fv, fDegraded = p.analyzers.Face().Analyze(gctx, tp.Frames, split.Frames)
		})
	})
	if err := g.Wait(); err != nil || ctx.Err() != nil {
		return nil, timeoutErr(op, errors.Join(err, ctx.Err()))
	}

	if asrErr != nil {
		log.WithError(asrErr).Warn("transcription failed")
		tr = models.Transcript{}
		res.degrade("asr", WarnASRFailed)
	} else if asrDegraded {
		res.degrade("asr", "")
	}
	if pDegraded {
		pv = models.DefaultProsody()
		res.degrade("prosody", prosodyWarning(split))
	}
	if fDegraded {
		fv = models.DefaultFace()
		res.degrade("face", WarnNoFace)
	}

	res.Transcript = tr
	res.Prosody = pv
	res.Face = fv
	res.Scores = p.scorer.Score(tr, pv, fv)

	if p.cache != nil && in.Digest != "" {
		if err := p.cache.SetJSON(ctx, key, res, p.cacheTTL); err != nil {
			log.WithError(err).Warn("turn cache write failed")
		}
	}
	log.WithFields(logrus.Fields{
		"degraded":   res.Degraded,
		"transcript": len([]rune(tr.Text)),
		"default":    res.Scores.Default,
	}).Info("turn scored")
	return res, nil
}

func prosodyWarning(split *media.Result) string {
	if split.AudioPath == "" {
		return ""
	}
	return WarnProsodyEmpty
}

// split runs the decoder inside the worker pool.
func (p *Pipeline) split(ctx context.Context, clip string, tp storage.TurnPaths) (*media.Result, error) {
	var (
		res *media.Result
		err error
	)
	if werr := p.withWorker(ctx, func() {
		res, err = p.splitter.Split(ctx, clip, tp.Audio, tp.Frames)
	}); werr != nil {
		return nil, werr
	}
	return res, err
}

func (p *Pipeline) withWorker(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	fn()
	return nil
}

func timeoutErr(op string, err error) error {
	return utils.E(utils.CodeTimeout, op, "turn deadline exceeded", errors.Join(utils.ErrTurnTimeout, err))
}

// ScoreLog builds the analytics row for a scored turn.
func ScoreLog(in TurnInput, topic string, res *TurnResult) *models.TurnScoreLog {
	s := res.Scores
	row := &models.TurnScoreLog{
		ID:             uuid.NewString(),
		SessionID:      in.SessionID,
		Kind:           string(in.Kind),
		Phase:          in.Phase,
		Topic:          topic,
		Transcript:     res.Transcript.Text,
		Confidence:     res.Transcript.Confidence,
		Initiative:     s.Initiative,
		Collaborative:  s.Collaborative,
		Communication:  s.Communication,
		Logic:          s.Logic,
		ProblemSolving: s.ProblemSolving,
		Voice:          s.Voice,
		Action:         s.Action,
		Degraded:       res.Degraded,
		CreatedAt:      time.Now().UTC(),
	}
	for _, e := range s.Emotions {
		row.Emotions = append(row.Emotions, e.Key)
	}

	feedback := map[string]any{"overall": s.Feedback, "warnings": res.Warnings}
	for _, a := range models.Axes {
		feedback[string(a)] = axisFeedbackText(s, a)
	}
	if b, err := json.Marshal(feedback); err == nil {
		row.Feedback = datatypes.JSON(b)
	}

	mfcc := make([]float32, models.MFCCCount)
	for i := 0; i < len(mfcc) && i < len(res.Prosody.MFCCMean); i++ {
		mfcc[i] = float32(res.Prosody.MFCCMean[i])
	}
	row.MFCC = pgvector.NewVector(mfcc)
	return row
}

func axisFeedbackText(s models.RubricScore, a models.Axis) string {
	switch a {
	case models.AxisInitiative:
		return s.InitiativeFeedback
	case models.AxisCollaborative:
		return s.CollaborativeFeedback
	case models.AxisCommunication:
		return s.CommunicationFeedback
	case models.AxisLogic:
		return s.LogicFeedback
	case models.AxisProblemSolving:
		return s.ProblemSolvingFeedback
	case models.AxisVoice:
		return s.VoiceFeedback
	case models.AxisAction:
		return s.ActionFeedback
	}
	return ""
}
