package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/yoockh/veriview/internal/utils"
)

// Analyzer selection policies.
const (
	PolicyNative = "native"
	PolicyStub   = "stub"
	PolicyAuto   = "auto"
)

type AvatarConfig struct {
	Disabled   bool
	APIKey     string
	BaseURL    string
	SubmitRate float64 // submissions per second

	InterviewerVoice string
	ProVoice         string
	ConVoice         string
	ProGender        string // male|female, CON takes the other
	ProfilesFile     string

	PollDeadline time.Duration
}

type Config struct {
	Port     string
	LogLevel string
	DataRoot string

	Avatar AvatarConfig

	ClipSizeCap    int64
	FrameCap       int
	TurnDeadline   time.Duration
	CacheExpiry    time.Duration
	SessionRetain  time.Duration
	InactivityTTL  time.Duration
	RetentionEvery time.Duration
	AnalyzerPolicy string
	Language       string
	WorkerCap      int

	FFmpegPath   string
	FFprobePath  string
	OpenFacePath string
	ASRURL       string
	ASRStubText  string
	GoogleSpeech bool
	SampleAnswer string

	MongoURI         string
	MongoDB          string
	MongoMaxPool     uint64
	MongoTimeout     time.Duration
	MongoForceTLS12  bool
	MongoInsecureTLS bool
	PostgresURI      string
	RedisURL         string
	RedisPoolSize    int
	RedisTimeout     time.Duration
	NatsURL          string
	NatsToken        string
	GCSBucket        string
	GCSPrefix        string

	VertexProject  string
	VertexLocation string
	VertexModel    string

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// AdminTokenHash is a bcrypt hash of a static admin bearer token, used
	// for /admin when no JWT secret is configured.
	AdminTokenHash string
	AllowedOrigins []string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("data_root", "data")

	v.SetDefault("avatar_disabled", false)
	v.SetDefault("avatar_api_key", "")
	v.SetDefault("avatar_base_url", "https://api.d-id.com")
	v.SetDefault("avatar_submit_rate", 2.0)
	v.SetDefault("voice_interviewer", "ko-KR-InJoonNeural")
	v.SetDefault("voice_pro", "ko-KR-BongJinNeural")
	v.SetDefault("voice_con", "ko-KR-JiMinNeural")
	v.SetDefault("avatar_pro_gender", "male")
	v.SetDefault("avatar_profiles_file", "")
	v.SetDefault("avatar_deadline_seconds", 180)

	v.SetDefault("clip_size_cap", 100<<20)
	v.SetDefault("frame_cap", 30)
	v.SetDefault("turn_deadline_seconds", 300)
	v.SetDefault("cache_expiry_seconds", 24*60*60)
	v.SetDefault("session_retention_seconds", 7*24*60*60)
	v.SetDefault("inactivity_seconds", 2*60*60)
	v.SetDefault("retention_interval_seconds", 10*60)
	v.SetDefault("analyzer_policy", PolicyAuto)
	v.SetDefault("language", "ko")
	v.SetDefault("worker_cap", 4)

	v.SetDefault("ffmpeg_path", "ffmpeg")
	v.SetDefault("ffprobe_path", "ffprobe")
	v.SetDefault("openface_path", "FeatureExtraction")
	v.SetDefault("asr_url", "")
	v.SetDefault("asr_stub_text", "")
	v.SetDefault("google_speech", false)
	v.SetDefault("sample_answer", "구체적인 근거와 예시를 들어 논리적으로 설명하는 것이 좋습니다.")

	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_db", "veriview")
	v.SetDefault("mongo_max_pool", 10)
	v.SetDefault("mongo_timeout_seconds", 20)
	v.SetDefault("mongo_force_tls12", false)
	v.SetDefault("mongo_insecure_tls", false)
	v.SetDefault("postgres_uri", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("redis_pool_size", 0) // go-redis default
	v.SetDefault("redis_timeout_seconds", 5)
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_token", "")
	v.SetDefault("gcs_bucket", "")
	v.SetDefault("gcs_prefix", "")

	v.SetDefault("vertex_project", "")
	v.SetDefault("vertex_location", "asia-northeast3")
	v.SetDefault("vertex_model", "gemini-1.5-flash")

	v.SetDefault("jwt_secret", "")
	v.SetDefault("jwt_issuer", "")
	v.SetDefault("jwt_audience", "")
	v.SetDefault("admin_token_hash", "")
	v.SetDefault("allowed_origins", "")
}

// Load reads .env (best effort), an optional YAML file named by VERIVIEW_CONFIG,
// then VERIVIEW_* environment variables. Environment wins over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("VERIVIEW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", utils.ErrConfig, file, err)
		}
	}

	cfg := &Config{
		Port:     v.GetString("port"),
		LogLevel: v.GetString("log_level"),
		DataRoot: v.GetString("data_root"),
		Avatar: AvatarConfig{
			Disabled:         v.GetBool("avatar_disabled"),
			APIKey:           v.GetString("avatar_api_key"),
			BaseURL:          strings.TrimRight(v.GetString("avatar_base_url"), "/"),
			SubmitRate:       v.GetFloat64("avatar_submit_rate"),
			InterviewerVoice: v.GetString("voice_interviewer"),
			ProVoice:         v.GetString("voice_pro"),
			ConVoice:         v.GetString("voice_con"),
			ProGender:        strings.ToLower(v.GetString("avatar_pro_gender")),
			ProfilesFile:     v.GetString("avatar_profiles_file"),
			PollDeadline:     seconds(v, "avatar_deadline_seconds"),
		},
		ClipSizeCap:    v.GetInt64("clip_size_cap"),
		FrameCap:       v.GetInt("frame_cap"),
		TurnDeadline:   seconds(v, "turn_deadline_seconds"),
		CacheExpiry:    seconds(v, "cache_expiry_seconds"),
		SessionRetain:  seconds(v, "session_retention_seconds"),
		InactivityTTL:  seconds(v, "inactivity_seconds"),
		RetentionEvery: seconds(v, "retention_interval_seconds"),
		AnalyzerPolicy: strings.ToLower(v.GetString("analyzer_policy")),
		Language:       v.GetString("language"),
		WorkerCap:      v.GetInt("worker_cap"),

		FFmpegPath:   v.GetString("ffmpeg_path"),
		FFprobePath:  v.GetString("ffprobe_path"),
		OpenFacePath: v.GetString("openface_path"),
		ASRURL:       v.GetString("asr_url"),
		ASRStubText:  v.GetString("asr_stub_text"),
		GoogleSpeech: v.GetBool("google_speech"),
		SampleAnswer: v.GetString("sample_answer"),

		MongoURI:         v.GetString("mongo_uri"),
		MongoDB:          v.GetString("mongo_db"),
		MongoMaxPool:     v.GetUint64("mongo_max_pool"),
		MongoTimeout:     seconds(v, "mongo_timeout_seconds"),
		MongoForceTLS12:  v.GetBool("mongo_force_tls12"),
		MongoInsecureTLS: v.GetBool("mongo_insecure_tls"),
		PostgresURI:      v.GetString("postgres_uri"),
		RedisURL:         v.GetString("redis_url"),
		RedisPoolSize:    v.GetInt("redis_pool_size"),
		RedisTimeout:     seconds(v, "redis_timeout_seconds"),
		NatsURL:          v.GetString("nats_url"),
		NatsToken:        v.GetString("nats_token"),
		GCSBucket:        v.GetString("gcs_bucket"),
		GCSPrefix:        v.GetString("gcs_prefix"),

		VertexProject:  v.GetString("vertex_project"),
		VertexLocation: v.GetString("vertex_location"),
		VertexModel:    v.GetString("vertex_model"),

		JWTSecret:   v.GetString("jwt_secret"),
		JWTIssuer:   v.GetString("jwt_issuer"),
		JWTAudience: v.GetString("jwt_audience"),

		AdminTokenHash: v.GetString("admin_token_hash"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),
	}
	return cfg, nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func seconds(v *viper.Viper, key string) time.Duration {
	return time.Duration(v.GetInt64(key)) * time.Second
}

// Validate reports startup-fatal problems wrapped in utils.ErrConfig.
func (c *Config) Validate() error {
	var problems []string

	if !c.Avatar.Disabled && strings.TrimSpace(c.Avatar.APIKey) == "" {
		problems = append(problems, "avatar api key is required (set VERIVIEW_AVATAR_API_KEY or VERIVIEW_AVATAR_DISABLED=true)")
	}
	if !c.Avatar.Disabled && c.Avatar.BaseURL == "" {
		problems = append(problems, "avatar base url is required")
	}
	switch c.AnalyzerPolicy {
	case PolicyNative, PolicyStub, PolicyAuto:
	default:
		problems = append(problems, fmt.Sprintf("analyzer policy %q must be native, stub or auto", c.AnalyzerPolicy))
	}
	switch c.Avatar.ProGender {
	case "male", "female":
	default:
		problems = append(problems, fmt.Sprintf("avatar pro gender %q must be male or female", c.Avatar.ProGender))
	}
	if c.ClipSizeCap <= 0 {
		problems = append(problems, "clip size cap must be positive")
	}
	if c.FrameCap <= 0 {
		problems = append(problems, "frame cap must be positive")
	}
	if c.TurnDeadline <= 0 {
		problems = append(problems, "turn deadline must be positive")
	}
	if c.CacheExpiry <= 0 || c.SessionRetain <= 0 {
		problems = append(problems, "cache expiry and session retention must be positive")
	}
	if c.Language == "" {
		problems = append(problems, "transcription language is required")
	}
	if c.MongoInsecureTLS && !c.MongoForceTLS12 {
		problems = append(problems, "mongo insecure tls only applies with mongo force tls12")
	}
	if c.RedisPoolSize < 0 {
		problems = append(problems, "redis pool size must not be negative")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", utils.ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}
