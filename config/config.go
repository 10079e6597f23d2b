package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is the resolved runtime configuration of the relay.
type Config struct {
	Port                 int           `validate:"min=1,max=65535"`
	N8NWebhookURL        string        // validated by the dispatcher; a bad value only degrades uploads
	SharedSecretKey      string        // empty makes every /api route answer 500
	PublicBaseURL        string        `validate:"required,url"`
	RequireCallbackToken bool
	JobRetention         time.Duration `validate:"gt=0"`
	SweepInterval        time.Duration `validate:"gt=0"`
	DispatchTimeout      time.Duration `validate:"gt=0"`
	DownloadTimeout      time.Duration `validate:"gt=0"`
	DispatchWorkers      int           `validate:"min=1"`
	DispatchQueueSize    int           `validate:"min=1"`
	UploadDir            string        `validate:"required"`
	CompletedDir         string        `validate:"required"`
	MaxUploadMB          int           `validate:"min=1"`
	LogLevel             string        `validate:"oneof=trace debug info warn warning error fatal panic"`
	LogFormat            string        `validate:"oneof=json text"`

	SupabaseURL        string `validate:"omitempty,url"`
	SupabaseServiceKey string `validate:"required_with=SupabaseURL"`
	SupabaseJobsTable  string `validate:"required"`
}

// MirrorEnabled reports whether job snapshots should be replicated to Supabase.
func (c Config) MirrorEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseServiceKey != ""
}

// MaxUploadBytes is the request body limit derived from MaxUploadMB.
func (c Config) MaxUploadBytes() int {
	return c.MaxUploadMB << 20
}

// Load reads envFile when it exists, then the process environment, and
// validates the result. Variables already set in the environment win over
// the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var errs []string
	port := getEnvInt("PORT", 5000, &errs)
	cfg := Config{
		Port:                 port,
		N8NWebhookURL:        strings.TrimSpace(os.Getenv("N8N_WEBHOOK_URL")),
		SharedSecretKey:      os.Getenv("SHARED_SECRET_KEY"),
		PublicBaseURL:        strings.TrimRight(getEnv("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", port)), "/"),
		RequireCallbackToken: getEnvBool("REQUIRE_CALLBACK_TOKEN", false, &errs),
		JobRetention:         getEnvDuration("JOB_RETENTION", 24*time.Hour, &errs),
		SweepInterval:        getEnvDuration("SWEEP_INTERVAL", time.Hour, &errs),
		DispatchTimeout:      getEnvDuration("DISPATCH_TIMEOUT", 30*time.Minute, &errs),
		DownloadTimeout:      getEnvDuration("DOWNLOAD_TIMEOUT", 60*time.Second, &errs),
		DispatchWorkers:      getEnvInt("DISPATCH_WORKERS", 8, &errs),
		DispatchQueueSize:    getEnvInt("DISPATCH_QUEUE_SIZE", 100, &errs),
		UploadDir:            getEnv("UPLOAD_DIR", "./uploads"),
		CompletedDir:         getEnv("COMPLETED_DIR", "./completed"),
		MaxUploadMB:          getEnvInt("MAX_UPLOAD_MB", 50, &errs),
		LogLevel:             strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:            strings.ToLower(getEnv("LOG_FORMAT", "json")),
		SupabaseURL:          os.Getenv("SUPABASE_URL"),
		SupabaseServiceKey:   os.Getenv("SUPABASE_SERVICE_KEY"),
		SupabaseJobsTable:    getEnv("SUPABASE_JOBS_TABLE", "relay_jobs"),
	}
	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}

	if err := validator.New().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on the '%s' tag", fe.Field(), fe.Tag()))
			}
			return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int, errs *[]string) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be an integer, got %q", key, raw))
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool, errs *[]string) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be a boolean, got %q", key, raw))
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration, errs *[]string) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s must be a duration like 30m, got %q", key, raw))
		return fallback
	}
	return d
}
