package bootstrap

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/config"
	"github.com/yoockh/veriview/internal/analysis"
	"github.com/yoockh/veriview/internal/analysis/face"
	"github.com/yoockh/veriview/internal/analysis/prosody"
	"github.com/yoockh/veriview/internal/api/handlers"
	"github.com/yoockh/veriview/internal/api/middleware"
	"github.com/yoockh/veriview/internal/api/routes"
	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/media"
	"github.com/yoockh/veriview/internal/providers/llm"
	"github.com/yoockh/veriview/internal/providers/stt"
	"github.com/yoockh/veriview/internal/rubric"
	"github.com/yoockh/veriview/internal/services"
	"github.com/yoockh/veriview/internal/utils"
	"github.com/yoockh/veriview/internal/workers"
)

// App is the fully wired HTTP service.
type App struct {
	*Resources

	Analyzers *analysis.Supervisor
	Renderer  *avatar.Renderer
	Debate    services.DebateService
	Interview services.InterviewService
	Router    *gin.Engine

	renders   *workers.RenderPool
	retention *workers.RetentionWorker
	cancel    context.CancelFunc
}

// LoadAnalyzers offers the native and stub variant of every analyzer to the
// supervisor, which resolves them under the configured policy.
func (r *Resources) LoadAnalyzers(ctx context.Context) (*analysis.Supervisor, error) {
	cfg := r.Config
	c := analysis.Candidates{
		Prosody:     prosody.NewNative(r.Log),
		ProsodyStub: prosody.Stub{},
		Face:        face.NewOpenFace(cfg.OpenFacePath, r.Log),
		FaceStub:    face.Stub{},
		ASRStub:     &stt.Stub{Text: cfg.ASRStubText, Language: cfg.Language},
	}
	switch {
	case cfg.GoogleSpeech:
		gs, err := stt.NewGoogleSpeech(ctx, cfg.Language)
		if err != nil {
			// the supervisor treats a missing native ASR as unusable under "native"
			r.Log.WithError(err).Warn("google speech client unavailable")
			break
		}
		c.ASR = gs
	case cfg.ASRURL != "":
		c.ASR = stt.NewWhisperHTTP(cfg.ASRURL, cfg.Language)
	}

	sup, err := analysis.Load(ctx, cfg.AnalyzerPolicy, c, r.Log)
	if err != nil {
		if c.ASR != nil {
			_ = c.ASR.Close()
		}
		return nil, err
	}
	// the supervisor closes the ASR it selected
	if c.ASR != nil && sup.ASR() != c.ASR {
		_ = c.ASR.Close()
	}
	r.closers = append(r.closers, sup.Close)
	return sup, nil
}

func (r *Resources) utterances(ctx context.Context) services.UtteranceGenerator {
	cfg := r.Config
	if cfg.VertexProject == "" {
		return services.Templates{}
	}
	g, err := llm.NewVertexGemini(ctx, cfg.VertexProject, cfg.VertexLocation, cfg.VertexModel)
	if err != nil {
		r.Log.WithError(err).Warn("vertex ai unavailable; using scripted utterances")
		return services.Templates{}
	}
	r.closers = append(r.closers, g.Close)
	r.Log.WithField("model", cfg.VertexModel).Info("ai utterances generated by vertex ai")
	return &services.LLMUtterances{Provider: g, Timeout: 20 * time.Second, Log: r.Log}
}

// New opens the backing stores, loads the analyzers and builds the router.
// Workers are not running until Start.
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	res, err := Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	app := &App{Resources: res}
	if err := app.wire(ctx); err != nil {
		_ = res.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wire(ctx context.Context) error {
	cfg, log := a.Config, a.Log

	sup, err := a.LoadAnalyzers(ctx)
	if err != nil {
		return err
	}
	a.Analyzers = sup

	if a.Renderer, err = a.NewRenderer(); err != nil {
		return err
	}

	a.renders = &workers.RenderPool{
		Renderer:   a.Renderer,
		Events:     a.Events,
		NumWorkers: 2,
		Logger:     log,
	}
	locks := utils.NewKeyedMutex()
	a.retention = &workers.RetentionWorker{
		Sessions:   a.Sessions,
		Store:      a.Store,
		Events:     a.Events,
		Locks:      locks,
		Inactivity: cfg.InactivityTTL,
		Every:      cfg.RetentionEvery,
		Logger:     log,
	}

	pipeline := services.NewPipeline(services.PipelineOptions{
		Splitter:  media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, cfg.FrameCap, cfg.ClipSizeCap, log),
		Analyzers: sup,
		Scorer:    rubric.New(cfg.SampleAnswer),
		Store:     a.Store,
		Cache:     a.Cache,
		CacheTTL:  cfg.CacheExpiry,
		Workers:   cfg.WorkerCap,
		Log:       log,
	})
	deps := services.Deps{
		Sessions:      a.Sessions,
		Scores:        a.Scores,
		Pipeline:      pipeline,
		Store:         a.Store,
		Renderer:      a.Renderer,
		Events:        a.Events,
		Utterances:    a.utterances(ctx),
		Locks:         locks,
		ClipSizeCap:   cfg.ClipSizeCap,
		TurnDeadline:  cfg.TurnDeadline,
		SessionRetain: cfg.SessionRetain,
		Log:           log,
	}
	if a.Renderer.Enabled() {
		deps.Renders = a.renders
	}
	a.Debate = services.NewDebateService(deps)
	a.Interview = services.NewInterviewService(deps)

	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger(log))
	r.MaxMultipartMemory = 32 << 20

	routes.RegisterRoutes(r, routes.Deps{
		Health:    handlers.NewHealthHandler(sup, a.Renderer.Enabled(), a.Checks),
		Debate:    handlers.NewDebateHandler(a.Debate, cfg.ClipSizeCap),
		Interview: handlers.NewInterviewHandler(a.Interview, cfg.ClipSizeCap),
		Admin:     handlers.NewAdminHandler(a.Store, a.Sessions, a.Scores, locks, log),
		WS:        handlers.NewWSHandler(a.Sessions, a.Bus, cfg.AllowedOrigins, log),
		Auth: routes.Auth{
			JWTSecret:      cfg.JWTSecret,
			JWTIssuer:      cfg.JWTIssuer,
			JWTAudience:    cfg.JWTAudience,
			AdminTokenHash: cfg.AdminTokenHash,
		},
	})
	a.Router = r
	return nil
}

// Start launches the render prefetch pool and the retention worker. They run
// until Close, or until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)
	if a.Renderer.Enabled() {
		if err := a.renders.Start(ctx); err != nil {
			return err
		}
	}
	a.retention.Start(ctx)
	return nil
}

// Close drains the render pool while its context is still live, stops the
// retention worker and releases every connection.
func (a *App) Close() error {
	if a.renders != nil {
		a.renders.Stop()
	}
	if a.cancel != nil {
		a.cancel()
	}
	return a.Resources.Close()
}
