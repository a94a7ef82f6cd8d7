package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Modes for obtaining transcripts.
const (
	// ModeTelephony lets the telephony provider transcribe the recording and
	// deliver the text through the transcription callback webhook.
	ModeTelephony = "telephony"
	// ModeSelf downloads the recording and runs the speech adapter locally.
	ModeSelf = "self"
)

// Config holds all environment-driven settings.
type Config struct {
	HTTPPort      string
	DBPath        string
	RecordingsDir string
	EnableWatcher bool
	Environment   string

	WorkerCount   int
	QueueSize     int
	JobTimeoutSec int

	// Telephony credentials and recording behavior.
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioNumber      string
	TranscriptionMode string
	RecordMaxSeconds  int
	RecordFinishKey   string
	GreetingPrompt    string
	ThankYouPrompt    string

	// External service credentials.
	MapsAPIKey    string
	GeminiAPIKey  string
	GeminiModel   string
	SpeechAPIKey  string
	SpeechBaseURL string
	SpeechModel   string
	SupabaseURL   string
	SupabaseKey   string

	// Fallback centroid used when geocoding fails for a found address.
	FallbackLat float64
	FallbackLng float64

	// Urgent-report alert webhook.
	AlertWebhookURL string
	AlertBotID      string
}

type fileConfig struct {
	HTTPPort         string    `yaml:"http_port"`
	DBPath           string    `yaml:"db_path"`
	RecordingsDir    string    `yaml:"recordings_dir"`
	RecordMaxSeconds *int      `yaml:"record_max_seconds"`
	RecordFinishKey  string    `yaml:"record_finish_key"`
	GreetingPrompt   string    `yaml:"greeting_prompt"`
	ThankYouPrompt   string    `yaml:"thank_you_prompt"`
	FallbackCentroid []float64 `yaml:"fallback_centroid"`
}

const (
	defaultGreeting = "Thank you for calling the city reporting line. Please describe the issue and its location after the tone. Press pound when you are finished."
	defaultThankYou = "Thank you. Your report has been received and will be reviewed shortly. Goodbye."

	// Davis, CA city centroid.
	defaultFallbackLat = 38.5449
	defaultFallbackLng = -121.7405
)

// Load reads configuration from environment, an optional .env file, and an
// optional YAML config file. Env always wins over the file.
func Load() Config {
	_ = godotenv.Load()

	fileCfg := loadFileConfig(getenv("CONFIG_PATH", filepath.Join("config", "config.yaml")))

	cfg := Config{
		HTTPPort:      firstNonEmpty(os.Getenv("PORT"), fileCfg.HTTPPort, "8080"),
		DBPath:        firstNonEmpty(os.Getenv("DB_PATH"), fileCfg.DBPath, "./reports.db"),
		RecordingsDir: firstNonEmpty(os.Getenv("RECORDINGS_DIR"), fileCfg.RecordingsDir, "./recordings"),
		EnableWatcher: getenvBool("ENABLE_WATCHER", false),
		Environment:   getenv("ENVIRONMENT", "local"),

		WorkerCount:   clampInt(getenvInt("WORKER_COUNT", 4), 1, 64),
		QueueSize:     clampInt(getenvInt("QUEUE_SIZE", 128), 8, 1024),
		JobTimeoutSec: clampInt(getenvInt("JOB_TIMEOUT_SEC", 120), 10, 900),

		TwilioAccountSID:  os.Getenv("TWILIO_ACCOUNTSID"),
		TwilioAuthToken:   os.Getenv("TWILIO_AUTHTOKEN"),
		TwilioNumber:      os.Getenv("TWILIO_NUMBER"),
		TranscriptionMode: getenv("TRANSCRIPTION_MODE", ModeSelf),
		RecordMaxSeconds:  clampInt(getenvInt("RECORD_MAX_SECONDS", 30), 5, 300),
		RecordFinishKey:   firstNonEmpty(os.Getenv("RECORD_FINISH_KEY"), fileCfg.RecordFinishKey, "#"),
		GreetingPrompt:    firstNonEmpty(os.Getenv("GREETING_PROMPT"), fileCfg.GreetingPrompt, defaultGreeting),
		ThankYouPrompt:    firstNonEmpty(os.Getenv("THANK_YOU_PROMPT"), fileCfg.ThankYouPrompt, defaultThankYou),

		MapsAPIKey:    os.Getenv("GOOGLE_MAPS_API_KEY"),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   getenv("GEMINI_MODEL", "gemini-2.5-flash"),
		SpeechAPIKey:  os.Getenv("SPEECH_API_KEY"),
		SpeechBaseURL: strings.TrimRight(getenv("SPEECH_BASE_URL", "https://api.openai.com"), "/"),
		SpeechModel:   getenv("SPEECH_MODEL", "whisper-1"),
		SupabaseURL:   strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
		SupabaseKey:   os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),

		FallbackLat: defaultFallbackLat,
		FallbackLng: defaultFallbackLng,

		AlertWebhookURL: os.Getenv("ALERT_WEBHOOK_URL"),
		AlertBotID:      os.Getenv("ALERT_BOT_ID"),
	}

	if len(fileCfg.FallbackCentroid) == 2 {
		cfg.FallbackLat = fileCfg.FallbackCentroid[0]
		cfg.FallbackLng = fileCfg.FallbackCentroid[1]
	}
	if v := os.Getenv("FALLBACK_LAT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FallbackLat = f
		}
	}
	if v := os.Getenv("FALLBACK_LNG"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.FallbackLng = f
		}
	}

	if fileCfg.RecordMaxSeconds != nil && *fileCfg.RecordMaxSeconds > 0 && os.Getenv("RECORD_MAX_SECONDS") == "" {
		cfg.RecordMaxSeconds = clampInt(*fileCfg.RecordMaxSeconds, 5, 300)
	}

	if cfg.TranscriptionMode != ModeTelephony && cfg.TranscriptionMode != ModeSelf {
		log.Printf("unknown TRANSCRIPTION_MODE=%q, using %q", cfg.TranscriptionMode, ModeSelf)
		cfg.TranscriptionMode = ModeSelf
	}

	log.Printf("config: port=%s db=%s mode=%s workers=%d env=%s",
		cfg.HTTPPort, cfg.DBPath, cfg.TranscriptionMode, cfg.WorkerCount, cfg.Environment)
	return cfg
}

// JobTimeout returns the per-job enrichment deadline.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSec) * time.Second
}

func loadFileConfig(path string) fileConfig {
	var cfg fileConfig
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return cfg
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Printf("config file %s unreadable: %v (using defaults)", path, err)
		return fileConfig{}
	}
	return cfg
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func clampInt(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// Now returns a UTC timestamp truncated to seconds for stable archive rows.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
