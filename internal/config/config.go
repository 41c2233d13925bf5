package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all environment-derived settings.
type Config struct {
	Port string

	MongoURI      string
	MongoDatabase string

	// DataDir is the root for session recordings and dropped audio.
	DataDir string

	// InferenceEngine selects the speech backend: "whisperx" (sidecar),
	// "google" (Cloud Speech) or "mock".
	InferenceEngine string

	// InferenceURL is the base URL of the speech inference sidecar.
	InferenceURL string
	BatchSize    int
	MinSpeakers  int
	MaxSpeakers  int

	SampleRate  int
	OpusBitrate string

	OllamaURL     string
	OpenAIKey     string
	OpenAIBaseURL string
	GeminiKey     string

	// WatchDir, when set, is observed for dropped audio files that are
	// transcribed under a fresh session.
	WatchDir string
}

// Load reads .env (if present) and assembles the configuration.
func Load() *Config {
	godotenv.Load()

	dataDir := getEnv("DATA_DIR", "./data")

	return &Config{
		Port:            getEnv("PORT", "8080"),
		MongoURI:        getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:   getEnv("MONGODB_DATABASE", "mnemosyne"),
		DataDir:         dataDir,
		InferenceEngine: getEnv("INFERENCE_ENGINE", "whisperx"),

		InferenceURL:  getEnv("INFERENCE_URL", "http://localhost:9000"),
		BatchSize:     getEnvInt("WHISPER_BATCH_SIZE", 16),
		MinSpeakers:   getEnvInt("MIN_SPEAKERS", 1),
		MaxSpeakers:   getEnvInt("MAX_SPEAKERS", 10),
		SampleRate:    getEnvInt("CAPTURE_SAMPLE_RATE", 48000),
		OpusBitrate:   getEnv("OPUS_BITRATE", "64k"),
		OllamaURL:     getEnv("OLLAMA_URL", "http://localhost:11434"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		GeminiKey:     os.Getenv("GEMINI_API_KEY"),
		WatchDir:      os.Getenv("WATCH_DIR"),
	}
}

// RecordingsDir returns the directory holding a session's raw and
// encoded audio.
func (c *Config) RecordingsDir(sessionID string) string {
	return filepath.Join(c.DataDir, "recordings", sessionID)
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
