package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/afroluxe/concierge/internal/audio"
	"github.com/afroluxe/concierge/internal/live"
)

// Config contains all runtime settings for the concierge service.
type Config struct {
	BindAddr              string
	ShutdownTimeout       time.Duration
	CallInactivityTimeout time.Duration
	MetricsNamespace      string

	AllowAnyOrigin bool

	GeminiAPIKey  string
	LiveEndpoint  string
	LiveModel     string
	SendQueueSize int

	CaptureSampleRate   int
	PlaybackSampleRate  int
	CaptureFrameSamples int

	PersonaPath string
	DatabaseURL string

	SummaryModel   string
	SummaryEnabled bool
	HistoryLimit   int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "concierge"),
		AllowAnyOrigin:   false,
		GeminiAPIKey:     stringsTrimSpace("GEMINI_API_KEY"),
		LiveEndpoint:     envOrDefault("LIVE_ENDPOINT", live.DefaultEndpoint),
		// Default to the native-audio realtime model the agent was tuned on.
		LiveModel:             envOrDefault("LIVE_MODEL", "models/gemini-2.5-flash-native-audio-preview-09-2025"),
		SendQueueSize:         live.DefaultSendQueueSize,
		CaptureSampleRate:     audio.CaptureSampleRate,
		PlaybackSampleRate:    audio.PlaybackSampleRate,
		CaptureFrameSamples:   audio.CaptureFrameSamples,
		PersonaPath:           stringsTrimSpace("PERSONA_PATH"),
		DatabaseURL:           stringsTrimSpace("DATABASE_URL"),
		SummaryModel:          envOrDefault("SUMMARY_MODEL", "gemini-2.5-flash"),
		HistoryLimit:          50,
		ShutdownTimeout:       15 * time.Second,
		CallInactivityTimeout: 2 * time.Minute,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.CallInactivityTimeout, err = durationFromEnv("APP_CALL_INACTIVITY_TIMEOUT", cfg.CallInactivityTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.SendQueueSize, err = intFromEnv("LIVE_SEND_QUEUE_SIZE", cfg.SendQueueSize)
	if err != nil {
		return Config{}, err
	}
	cfg.CaptureFrameSamples, err = intFromEnv("CAPTURE_FRAME_SAMPLES", cfg.CaptureFrameSamples)
	if err != nil {
		return Config{}, err
	}
	cfg.HistoryLimit, err = intFromEnv("APP_HISTORY_LIMIT", cfg.HistoryLimit)
	if err != nil {
		return Config{}, err
	}
	cfg.SummaryEnabled, err = boolFromEnv("SUMMARY_ENABLED", cfg.GeminiAPIKey != "")
	if err != nil {
		return Config{}, err
	}

	if cfg.GeminiAPIKey == "" {
		return Config{}, fmt.Errorf("GEMINI_API_KEY is required")
	}
	if cfg.CallInactivityTimeout < 5*time.Second {
		return Config{}, fmt.Errorf("APP_CALL_INACTIVITY_TIMEOUT must be at least 5s")
	}
	if cfg.SendQueueSize <= 0 {
		return Config{}, fmt.Errorf("LIVE_SEND_QUEUE_SIZE must be positive")
	}
	if cfg.CaptureFrameSamples <= 0 {
		return Config{}, fmt.Errorf("CAPTURE_FRAME_SAMPLES must be positive")
	}
	if cfg.HistoryLimit <= 0 {
		return Config{}, fmt.Errorf("APP_HISTORY_LIMIT must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
