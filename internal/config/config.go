// Package config handles session service configuration
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr   string
	ScoringURL string // base URL of the external scoring backend
	DBPath     string
	AdminEmail string // fallback candidate email when the resume payload has none

	// Camera
	VirtualCameraSignatures []string
	PreviewFPS              float64 // Hz
	FrameWidth              int     // ideal capture resolution
	FrameHeight             int

	// Presence analysis
	CascadePath      string  // facial cascade file; empty or unreadable selects the luma fallback
	AnalyzerInterval float64 // seconds

	// Speech
	SampleRate   int
	LanguageCode string
	TTSVoice     string

	// Session
	DefaultTimerMinutes int
}

func Load() *Config {
	// Optional .env for local development; env vars win.
	_ = godotenv.Load()

	return &Config{
		HTTPAddr:   getEnv("HTTP_ADDR", ":8000"),
		ScoringURL: getEnv("SCORING_URL", "http://localhost:8800"),
		DBPath:     getEnv("DB_PATH", "sessions.db"),
		AdminEmail: getEnv("ADMIN_EMAIL", ""),

		VirtualCameraSignatures: getEnvList("VIRTUAL_CAMERA_SIGNATURES", []string{
			"virtual", "obs", "droidcam", "snap camera", "manycam", "xsplit", "camo",
		}),
		PreviewFPS:  getEnvFloat("PREVIEW_FPS", 30.0),
		FrameWidth:  getEnvInt("FRAME_WIDTH", 640),
		FrameHeight: getEnvInt("FRAME_HEIGHT", 360),

		CascadePath:      getEnv("FACE_CASCADE_PATH", ""),
		AnalyzerInterval: getEnvFloat("ANALYZER_INTERVAL", 1.0),

		SampleRate:   getEnvInt("SAMPLE_RATE", 16000),
		LanguageCode: getEnv("LANGUAGE_CODE", "en-US"),
		TTSVoice:     getEnv("TTS_VOICE", ""),

		DefaultTimerMinutes: getEnvInt("DEFAULT_TIMER_MINUTES", 7),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvList(key string, def []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if t := strings.TrimSpace(p); t != "" {
				result = append(result, t)
			}
		}
		return result
	}
	return def
}
