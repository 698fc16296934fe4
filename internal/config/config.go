package config

import (
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// App holds the runtime configuration loaded from the environment.
type App struct {
	Env      string
	HTTPPort string
	LogLevel string
	Location *time.Location

	BackendURL     string
	BackendTimeout time.Duration

	DraftBackend   string
	DraftPath      string
	DraftRetention time.Duration
	ReaperSchedule string
	SessionIdleTTL time.Duration

	RedisAddr   string
	DatabaseURL string

	JWTIssuer     string
	JWTSigningKey string
	AccessTTL     time.Duration

	QueueBackend    string
	QueueKey        string
	RateLimitPerMin int
	ExportDir       string

	// Warnings collects fallbacks taken while loading; the caller logs them
	// once a logger exists.
	Warnings []string
}

var defaults = map[string]any{
	"APP_ENV":            "dev",
	"HTTP_PORT":          "8081",
	"LOG_LEVEL":          "info",
	"TIMEZONE":           "Asia/Kolkata",
	"BACKEND_URL":        "http://localhost:5000",
	"BACKEND_TIMEOUT":    "15s",
	"DRAFT_BACKEND":      "sqlite",
	"DRAFT_PATH":         "./data/drafts.db",
	"DRAFT_RETENTION":    "720h",
	"REAPER_SCHEDULE":    "15 2 * * *",
	"SESSION_IDLE_TTL":   "12h",
	"REDIS_ADDR":         "localhost:6379",
	"DATABASE_URL":       "",
	"JWT_ISSUER":         "faculty-portal",
	"JWT_SIGNING_KEY":    "dev-signing-secret-change",
	"ACCESS_TTL":         "12h",
	"QUEUE_BACKEND":      "memory",
	"QUEUE_KEY":          "attendance:commits",
	"RATE_LIMIT_PER_MIN": 120,
	"EXPORT_DIR":         "./exports",
}

// Load returns application config. A .env file in the working directory (or
// the file named by DOTENV) is read first; real environment variables win.
func Load() App {
	return load(viper.New())
}

func load(v *viper.Viper) App {
	var warnings []string

	dotenv := os.Getenv("DOTENV")
	if dotenv == "" {
		dotenv = ".env"
	}
	if _, err := os.Stat(dotenv); err == nil {
		if err := godotenv.Load(dotenv); err != nil {
			warnings = append(warnings, fmt.Sprintf("could not load %s: %v", dotenv, err))
		}
	}

	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	r := reader{v: v}
	cfg := App{
		Env:             v.GetString("APP_ENV"),
		HTTPPort:        v.GetString("HTTP_PORT"),
		LogLevel:        strings.ToLower(v.GetString("LOG_LEVEL")),
		Location:        r.location("TIMEZONE"),
		BackendURL:      strings.TrimRight(v.GetString("BACKEND_URL"), "/"),
		BackendTimeout:  r.duration("BACKEND_TIMEOUT"),
		DraftBackend:    r.oneOf("DRAFT_BACKEND", "sqlite", "redis", "memory"),
		DraftPath:       v.GetString("DRAFT_PATH"),
		DraftRetention:  r.duration("DRAFT_RETENTION"),
		ReaperSchedule:  v.GetString("REAPER_SCHEDULE"),
		SessionIdleTTL:  r.duration("SESSION_IDLE_TTL"),
		RedisAddr:       v.GetString("REDIS_ADDR"),
		DatabaseURL:     v.GetString("DATABASE_URL"),
		JWTIssuer:       v.GetString("JWT_ISSUER"),
		JWTSigningKey:   v.GetString("JWT_SIGNING_KEY"),
		AccessTTL:       r.duration("ACCESS_TTL"),
		QueueBackend:    r.oneOf("QUEUE_BACKEND", "redis", "memory"),
		QueueKey:        v.GetString("QUEUE_KEY"),
		RateLimitPerMin: r.int("RATE_LIMIT_PER_MIN"),
		ExportDir:       v.GetString("EXPORT_DIR"),
	}
	cfg.Warnings = append(warnings, r.warnings...)
	return cfg
}

// Production reports whether the app runs with production settings.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

type reader struct {
	v        *viper.Viper
	warnings []string
}

func (r *reader) warn(format string, args ...any) {
	r.warnings = append(r.warnings, fmt.Sprintf(format, args...))
}

func (r *reader) fallback(key string) string {
	return fmt.Sprint(defaults[key])
}

func (r *reader) duration(key string) time.Duration {
	raw := r.v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		fb, _ := time.ParseDuration(r.fallback(key))
		r.warn("invalid duration for %s: %q, using fallback %s", key, raw, fb)
		return fb
	}
	return d
}

func (r *reader) int(key string) int {
	raw := r.v.GetString(key)
	var parsed int
	if _, err := fmt.Sscanf(raw, "%d", &parsed); err != nil || parsed <= 0 {
		fb := defaults[key].(int)
		r.warn("invalid int for %s: %q, using fallback %d", key, raw, fb)
		return fb
	}
	return parsed
}

func (r *reader) location(key string) *time.Location {
	name := r.v.GetString(key)
	loc, err := time.LoadLocation(name)
	if err != nil {
		r.warn("unknown timezone %q for %s, using UTC", name, key)
		return time.UTC
	}
	return loc
}

func (r *reader) oneOf(key string, allowed ...string) string {
	val := strings.ToLower(r.v.GetString(key))
	for _, a := range allowed {
		if val == a {
			return val
		}
	}
	fb := r.fallback(key)
	r.warn("unsupported value for %s: %q, using %s", key, val, fb)
	return fb
}
