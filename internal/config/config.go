// Package config centralizes how VaultScribe reads environment variables and
// exposes them as strongly typed Go values.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents runtime configuration shared by every binary. Each binary
// only reads the fields it needs and validates those via Require* helpers.
type Config struct {
	Address        string
	MaxFileSize    int64
	AllowedTypes   []string
	SigningSecret  []byte
	SignedURLTTL   time.Duration
	ProcessingPool int
	DataDir        string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	S3Endpoint       string
	S3AccessKey      string
	S3SecretKey      string
	S3Region         string
	S3UseSSL         bool
	AudioBucket      string
	TranscriptBucket string

	SpeechAPIKey      string
	SpeechBaseURL     string
	SpeechModel       string
	QueryFinalModel   string
	SubmitRatePerSec  float64
	CallTimeout       time.Duration
	PollInterval      time.Duration
	MaxPollDuration   time.Duration
	DefaultLanguage   string
	DefaultSpeakers   int
	SummaryTemplates  string
	SummaryParallel   int
	PollLeaseTTL      time.Duration
	AMQPURL           string
	StatusQueue       string
	LogLevel          string
	LogFormat         string
	CORSAllowedOrigin []string
}

const (
	// 200 << 20 equals 200 * 2^20 bytes.
	defaultAddress       = ":8080"
	defaultMaxFileSize   = 200 << 20 // 200 MiB
	defaultAllowedTypes  = "audio/mpeg,audio/mp3,audio/wav,audio/x-wav,audio/ogg,audio/webm,audio/x-m4a,audio/mp4,audio/flac,video/mp4,video/webm,video/quicktime"
	defaultSignedTTL     = 5 * time.Minute
	defaultWorkerCount   = 2
	defaultRedisAddr     = "127.0.0.1:6379"
	defaultS3Region      = "us-east-1"
	defaultSpeechBaseURL = "https://api.assemblyai.com"
	defaultSpeechModel   = "best"
	defaultFinalModel    = "anthropic/claude-3-5-sonnet"
	defaultSubmitRate    = 2.0
	defaultCallTimeout   = 60 * time.Second
	defaultPollInterval  = 3 * time.Second
	defaultMaxPoll       = 2 * time.Hour
	defaultLanguage      = "en"
	defaultSpeakers      = 2
	defaultLeaseTTL      = 30 * time.Second
	defaultStatusQueue   = "transcription.status"
)

// Load reads an optional .env file and then the environment, falling back to
// defaults for unset keys. Values already present in the environment win over
// the file. Malformed numbers, booleans and durations are reported as errors.
func Load() (*Config, error) {
	loadEnvFile()
	p := &envParser{}
	cfg := &Config{
		Address:        readEnv("VAULTSCRIBE_ADDRESS", defaultAddress),
		MaxFileSize:    p.parseInt64("VAULTSCRIBE_MAX_FILE_BYTES", defaultMaxFileSize),
		AllowedTypes:   parseList("VAULTSCRIBE_ALLOWED_TYPES", defaultAllowedTypes),
		SigningSecret:  parseSecret("VAULTSCRIBE_SIGNING_SECRET"),
		SignedURLTTL:   p.parseDuration("VAULTSCRIBE_SIGNED_TTL", defaultSignedTTL),
		ProcessingPool: p.parseInt("VAULTSCRIBE_WORKERS", defaultWorkerCount),
		DataDir:        readEnv("VAULTSCRIBE_DATA_DIR", ""),

		DatabaseURL:   readEnv("DATABASE_URL", ""),
		RedisAddr:     readEnv("REDIS_ADDR", defaultRedisAddr),
		RedisPassword: readEnv("REDIS_PASSWORD", ""),
		RedisDB:       p.parseInt("REDIS_DB", 0),

		S3Endpoint:       readEnv("S3_ENDPOINT", ""),
		S3AccessKey:      readEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:      readEnv("S3_SECRET_KEY", ""),
		S3Region:         readEnv("S3_REGION", defaultS3Region),
		S3UseSSL:         p.parseBool("S3_USE_SSL", false),
		AudioBucket:      readEnv("S3_AUDIO_BUCKET", "audio"),
		TranscriptBucket: readEnv("S3_TRANSCRIPT_BUCKET", "transcripts"),

		SpeechAPIKey:      readEnv("ASSEMBLYAI_API_KEY", ""),
		SpeechBaseURL:     readEnv("ASSEMBLYAI_BASE_URL", defaultSpeechBaseURL),
		SpeechModel:       readEnv("ASSEMBLYAI_SPEECH_MODEL", defaultSpeechModel),
		QueryFinalModel:   readEnv("LEMUR_FINAL_MODEL", defaultFinalModel),
		SubmitRatePerSec:  p.parseFloat("SPEECH_SUBMIT_RATE", defaultSubmitRate),
		CallTimeout:       p.parseDuration("SPEECH_CALL_TIMEOUT", defaultCallTimeout),
		PollInterval:      p.parseDuration("POLL_INTERVAL", defaultPollInterval),
		MaxPollDuration:   p.parseDuration("MAX_POLL_DURATION", defaultMaxPoll),
		DefaultLanguage:   readEnv("DEFAULT_LANGUAGE", defaultLanguage),
		DefaultSpeakers:   p.parseInt("DEFAULT_SPEAKERS", defaultSpeakers),
		SummaryTemplates:  readEnv("SUMMARY_TEMPLATES_FILE", ""),
		SummaryParallel:   p.parseInt("SUMMARY_PARALLELISM", 1),
		PollLeaseTTL:      p.parseDuration("POLL_LEASE_TTL", defaultLeaseTTL),
		AMQPURL:           readEnv("RABBITMQ_URL", ""),
		StatusQueue:       readEnv("STATUS_QUEUE", defaultStatusQueue),
		LogLevel:          readEnv("LOG_LEVEL", "info"),
		LogFormat:         readEnv("LOG_FORMAT", "text"),
		CORSAllowedOrigin: parseList("CORS_ALLOWED_ORIGINS", "*"),
	}
	if err := p.err(); err != nil {
		return nil, err
	}
	if cfg.SigningSecret == nil {
		cfg.SigningSecret = randomSecret()
	}
	if cfg.ProcessingPool <= 0 {
		cfg.ProcessingPool = defaultWorkerCount
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = defaultMaxFileSize
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = defaultSignedTTL
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if cfg.SummaryParallel <= 0 {
		cfg.SummaryParallel = 1
	}
	if cfg.PollLeaseTTL < cfg.PollInterval*2 {
		cfg.PollLeaseTTL = cfg.PollInterval * 2
	}
	return cfg, nil
}

// RequireSpeech reports missing provider credentials.
func (c *Config) RequireSpeech() error {
	if c.SpeechAPIKey == "" {
		return errors.New("ASSEMBLYAI_API_KEY is required")
	}
	return nil
}

// RequireBackends reports missing settings for the database/queue/blob stack
// used by the api and worker binaries.
func (c *Config) RequireBackends() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.RedisAddr == "" {
		missing = append(missing, "REDIS_ADDR")
	}
	if c.S3Endpoint == "" {
		missing = append(missing, "S3_ENDPOINT")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func loadEnvFile() {
	path := readEnv("VAULTSCRIBE_ENV_FILE", ".env")
	// godotenv.Load never overrides variables that are already set.
	_ = godotenv.Load(path)
}

func readEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func parseList(key, def string) []string {
	val := readEnv(key, def)
	out := strings.Split(val, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

// envParser records every malformed value so Load can report them together
// instead of silently using defaults.
type envParser struct {
	errs []error
}

func (p *envParser) lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return v, ok && v != ""
}

func (p *envParser) invalid(key, value string, err error) {
	p.errs = append(p.errs, fmt.Errorf("invalid %s=%q: %w", key, value, err))
}

func (p *envParser) err() error {
	return errors.Join(p.errs...)
}

func (p *envParser) parseInt64(key string, def int64) int64 {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		p.invalid(key, v, err)
		return def
	}
	return parsed
}

func (p *envParser) parseInt(key string, def int) int {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		p.invalid(key, v, err)
		return def
	}
	return parsed
}

func (p *envParser) parseFloat(key string, def float64) float64 {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.invalid(key, v, err)
		return def
	}
	return parsed
}

func (p *envParser) parseBool(key string, def bool) bool {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		p.invalid(key, v, err)
		return def
	}
	return parsed
}

// parseDuration accepts time.ParseDuration input such as "5m" or "30s".
func (p *envParser) parseDuration(key string, def time.Duration) time.Duration {
	v, ok := p.lookup(key)
	if !ok {
		return def
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		p.invalid(key, v, err)
		return def
	}
	return parsed
}

func parseSecret(key string) []byte {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return []byte(v)
	}
	return nil
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return []byte(hex.EncodeToString([]byte("fallbacksecret")))
	}
	return buf
}
