// Package config loads judge engine configuration from the process
// environment (and an optional .env file), following the same
// getEnv/getEnvInt fallback convention the rest of the stack uses.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the immutable value constructed once at process startup and
// threaded explicitly into every component that needs it — no package
// level mutable configuration state.
type Config struct {
	Environment string
	LogLevel    string

	APIHost string
	APIPort int

	DatabaseURL string

	MaxWorkers           int
	MaxMemoryMB          int64
	MaxWallTimeMS        int64
	EnableNetwork        bool
	CompilationTimeoutMS int64

	// MaxCPUTimeMS is read from MAX_CPU_TIME_MS but not currently enforced:
	// the sandbox bounds CPU via the container's NanoCPUs share, not a
	// CPU-time ulimit, and Docker's API has no direct per-exec CPU-time
	// cutoff to wire this into. Kept as accepted, inert configuration so
	// operators setting it get a recognized (if unenforced) knob rather
	// than an "unknown variable" surprise.
	MaxCPUTimeMS int64

	DockerHost  string
	ImagePrefix string
}

// Load reads configuration from the environment. It attempts to load a
// .env file first (ignoring a missing file, matching the teacher's
// best-effort convention), then applies getEnv-style defaults.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Environment: GetEnvironment(),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		APIHost: getEnv("API_HOST", "0.0.0.0"),
		APIPort: getEnvInt("API_PORT", 8000),

		DatabaseURL: getEnv("DATABASE_URL", "judge.db"),

		MaxWorkers:           getEnvInt("MAX_WORKERS", 4),
		MaxMemoryMB:          getEnvInt64("MAX_MEMORY_MB", 128),
		MaxCPUTimeMS:         getEnvInt64("MAX_CPU_TIME_MS", 10000),
		MaxWallTimeMS:        getEnvInt64("MAX_WALL_TIME_MS", 10000),
		EnableNetwork:        getEnvBool("ENABLE_NETWORK", false),
		CompilationTimeoutMS: getEnvInt64("COMPILATION_TIMEOUT_MS", 30000),

		DockerHost:  getEnv("DOCKER_HOST", "unix:///var/run/docker.sock"),
		ImagePrefix: getEnv("JUDGE_IMAGE_PREFIX", ""),
	}
}

// GetEnvironment resolves the deployment environment name, falling back
// across a few common env var names before defaulting to "development".
func GetEnvironment() string {
	for _, key := range []string{"ENVIRONMENT", "ENV", "APP_ENV", "GO_ENV"} {
		if v := os.Getenv(key); v != "" {
			return strings.ToLower(v)
		}
	}
	return "development"
}

// ImageOverride returns a per-language image override if
// JUDGE_IMAGE_<LANG> is set, e.g. JUDGE_IMAGE_PYTHON3.
func ImageOverride(languageID string) (string, bool) {
	key := "JUDGE_IMAGE_" + strings.ToUpper(languageID)
	v := os.Getenv(key)
	return v, v != ""
}

// MaxWallTime returns the configured wall-clock ceiling as a duration.
func (c Config) MaxWallTime() time.Duration {
	return time.Duration(c.MaxWallTimeMS) * time.Millisecond
}

// CompilationTimeout returns the configured compile-phase ceiling.
func (c Config) CompilationTimeout() time.Duration {
	return time.Duration(c.CompilationTimeoutMS) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
