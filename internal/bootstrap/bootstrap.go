package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/veriview/config"
	"github.com/yoockh/veriview/internal/avatar"
	"github.com/yoockh/veriview/internal/cache"
	"github.com/yoockh/veriview/internal/events"
	"github.com/yoockh/veriview/internal/media"
	"github.com/yoockh/veriview/internal/repositories"
	"github.com/yoockh/veriview/internal/repositories/memory"
	mongorepo "github.com/yoockh/veriview/internal/repositories/mongo"
	"github.com/yoockh/veriview/internal/repositories/postgres"
	"github.com/yoockh/veriview/internal/storage"
	"github.com/yoockh/veriview/internal/utils"
)

// Resources are the backing stores shared by the HTTP server and the ops CLI.
// Every optional store falls back to an in-process variant when unconfigured.
type Resources struct {
	Config *config.Config
	Log    *logrus.Logger

	Store    *storage.ContentStore
	Sessions repositories.SessionRepository
	Scores   repositories.ScoreRepository // in-memory without postgres
	Cache    cache.Cache
	Events   events.Publisher
	Bus      events.Subscriber

	// Checks are run by /health and `veriview-ops check`.
	Checks map[string]func(context.Context) error

	closers []func() error
}

func dependency(op, msg string, err error) error {
	return utils.E(utils.CodeUnavailable, op, msg, err)
}

// Open connects every configured backing store. A store that is configured
// but unreachable is an error; nothing is silently replaced by memory.
func Open(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Resources, error) {
	const op = "Bootstrap.Open"

	r := &Resources{Config: cfg, Log: log, Checks: map[string]func(context.Context) error{}}
	ok := false
	defer func() {
		if !ok {
			_ = r.Close()
		}
	}()

	store, err := storage.NewContentStore(cfg.DataRoot, cfg.CacheExpiry, cfg.SessionRetain, log)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to open content store", err)
	}
	r.Store = store

	if cfg.GCSBucket != "" {
		m, err := storage.NewGCSMirror(ctx, cfg.GCSBucket, cfg.GCSPrefix)
		if err != nil {
			return nil, dependency(op, "gcs client", err)
		}
		r.closers = append(r.closers, m.Close)
		r.Store = store.WithMirror(m)
		log.WithFields(logrus.Fields{"bucket": cfg.GCSBucket, "prefix": cfg.GCSPrefix}).Info("final recordings mirrored to gcs")
	}

	if err := r.openSessions(ctx, cfg); err != nil {
		return nil, err
	}
	if err := r.openScores(cfg); err != nil {
		return nil, err
	}
	if err := r.openRedis(ctx, cfg); err != nil {
		return nil, err
	}
	if err := r.openNATS(cfg); err != nil {
		return nil, err
	}

	ok = true
	return r, nil
}

func (r *Resources) openSessions(ctx context.Context, cfg *config.Config) error {
	const op = "Bootstrap.Sessions"
	if cfg.MongoURI == "" {
		r.Sessions = memory.NewSessionRepo()
		r.Log.Warn("mongo uri not set; sessions are kept in memory")
		return nil
	}
	if err := config.InitMongo(ctx, cfg.MongoOptions()); err != nil {
		return dependency(op, "mongo connect", err)
	}
	client := config.MongoClient
	r.closers = append(r.closers, func() error { return client.Disconnect(context.Background()) })
	if err := config.EnsureMongoIndexes(cfg.MongoDB); err != nil {
		return dependency(op, "mongo indexes", err)
	}
	r.Sessions = mongorepo.NewSessionRepo(client.Database(cfg.MongoDB))
	r.Checks["mongo"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }
	r.Log.Info("mongo connected")
	return nil
}

func (r *Resources) openScores(cfg *config.Config) error {
	const op = "Bootstrap.Scores"
	if cfg.PostgresURI == "" {
		r.Scores = memory.NewScoreRepo()
		return nil
	}
	if err := config.InitPostgres(cfg.PostgresURI); err != nil {
		return dependency(op, "postgres connect", err)
	}
	sqlDB, err := config.PostgresDB.DB()
	if err != nil {
		return dependency(op, "postgres pool", err)
	}
	r.closers = append(r.closers, sqlDB.Close)
	r.Scores = postgres.NewScoreRepo(config.PostgresDB)
	r.Checks["postgres"] = sqlDB.PingContext
	r.Log.Info("postgres connected")
	return nil
}

func (r *Resources) openRedis(ctx context.Context, cfg *config.Config) error {
	const op = "Bootstrap.Redis"
	if cfg.RedisURL == "" {
		hub := events.NewHub()
		r.Cache = cache.NewMemory()
		r.Events = hub
		r.Bus = hub
		return nil
	}
	if err := config.InitRedis(ctx, cfg.RedisOptions()); err != nil {
		if config.RedisClient != nil {
			_ = config.RedisClient.Close()
		}
		return dependency(op, "redis connect", err)
	}
	rdb := config.RedisClient
	r.closers = append(r.closers, rdb.Close)
	bus := events.NewRedisBus(rdb, r.Log)
	r.Cache = cache.NewRedisCache(rdb)
	r.Events = bus
	r.Bus = bus
	r.Checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	r.Log.Info("redis connected")
	return nil
}

func (r *Resources) openNATS(cfg *config.Config) error {
	const op = "Bootstrap.NATS"
	if cfg.NatsURL == "" {
		return nil
	}
	if err := config.InitNATS(cfg.NatsURL, cfg.NatsToken, r.Log); err != nil {
		return dependency(op, "nats connect", err)
	}
	nc := config.NatsConn
	r.closers = append(r.closers, func() error { return nc.Drain() })
	r.Events = events.Fanout{r.Events, events.NewNATSPublisher(nc)}
	r.Checks["nats"] = func(context.Context) error {
		if !nc.IsConnected() {
			return errors.New("nats not connected")
		}
		return nil
	}
	r.Log.Info("nats connected")
	return nil
}

// NewRenderer builds the avatar renderer. With rendering disabled it still
// serves cache hits and reports ReasonDisabled for misses.
func (r *Resources) NewRenderer() (*avatar.Renderer, error) {
	const op = "Bootstrap.Renderer"
	cfg := r.Config

	profiles := avatar.DefaultProfiles(avatar.ProfileOptions{
		InterviewerVoice: cfg.Avatar.InterviewerVoice,
		ProVoice:         cfg.Avatar.ProVoice,
		ConVoice:         cfg.Avatar.ConVoice,
		ProGender:        cfg.Avatar.ProGender,
	})
	if cfg.Avatar.ProfilesFile != "" {
		p, err := avatar.LoadProfiles(filepath.Clean(cfg.Avatar.ProfilesFile), profiles)
		if err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "speaker profiles", fmt.Errorf("%w: %v", utils.ErrConfig, err))
		}
		profiles = p
	}

	var remote avatar.Remote
	if !cfg.Avatar.Disabled {
		remote = avatar.NewClient(cfg.Avatar.BaseURL, cfg.Avatar.APIKey, r.Log)
	}
	return avatar.NewRenderer(avatar.RendererOptions{
		Remote:     remote,
		Store:      r.Store,
		Profiles:   profiles,
		Prober:     media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, cfg.FrameCap, cfg.ClipSizeCap, r.Log),
		SubmitRate: cfg.Avatar.SubmitRate,
		Deadline:   cfg.Avatar.PollDeadline,
		Log:        r.Log,
	}), nil
}

// Close releases connections in reverse order of opening.
func (r *Resources) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}
