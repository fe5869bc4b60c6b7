package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	Blobs    BlobConfig
	Capture  CaptureConfig
	Summary  SummaryConfig
	AI       ArkConfig
	LogLevel string
}

type ServerConfig struct {
	Addr           string
	Environment    string   // ENV: production, development, etc.
	Host           string   // Raw HOST env (e.g. https://api.example.com)
	AllowedHost    string   // Hostname only for strict host check (production only)
	AllowedOrigins []string // from ALLOWED_ORIGINS or FRONTEND_URL(s)
	// UploadsPerMinute limits upload requests per client IP.
	UploadsPerMinute int
	// EventsRelay fans entry events out over Redis pub/sub so every
	// instance can serve /ws/events.
	EventsRelay bool
}

// IsProduction returns true when ENV is set to "production".
func (c ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

type StorageConfig struct {
	RedisURI    string
	MongoURI    string
	PostgresURI string
	SQLitePath  string
	// UserStore is postgres, sqlite or memory.
	UserStore string
	// SessionStore is redis or memory.
	SessionStore string
	// EntryStore is memory, redis, mongo, badger or file.
	EntryStore   string
	BadgerDir    string
	EntryFileDir string
}

type BlobConfig struct {
	// Store is memory, disk or cloudinary.
	Store               string
	Dir                 string
	MaxUploadBytes      int64
	CloudinaryName      string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

type CaptureConfig struct {
	Timeslice time.Duration
	Tick      time.Duration
}

type SummaryConfig struct {
	// Generator is mock or llm.
	Generator     string
	MinDelay      time.Duration
	MaxDelay      time.Duration
	FailureRate   float64
	TemplatesFile string
	Timeout       time.Duration
}

// ArkConfig holds the chat model settings for the llm generator.
type ArkConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled reports whether the credentials and model are present.
func (c ArkConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the config.
func (c ArkConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("ark credentials or model missing: set ARK_API_KEY (or ARK_ACCESS_KEY and ARK_SECRET_KEY) and ARK_MODEL")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	})
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}
	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}
	blobs, err := loadBlobConfig()
	if err != nil {
		return nil, err
	}
	capture, err := loadCaptureConfig()
	if err != nil {
		return nil, err
	}
	summary, err := loadSummaryConfig()
	if err != nil {
		return nil, err
	}
	ai, err := loadArkConfig()
	if err != nil {
		return nil, err
	}
	if summary.Generator == "llm" && !ai.Enabled() {
		return nil, fmt.Errorf("SUMMARY_GENERATOR=llm requires ARK_MODEL and ark credentials")
	}

	return &Config{
		Server:   server,
		Storage:  storage,
		Blobs:    blobs,
		Capture:  capture,
		Summary:  summary,
		AI:       ai,
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}, nil
}

func loadServerConfig() (ServerConfig, error) {
	env := strings.ToLower(getEnv("ENV", "development"))
	host := getEnv("HOST", "http://localhost:8080")

	port := getEnv("PORT", "8080")
	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}
	addr := port
	if !strings.Contains(port, ":") {
		addr = ":" + port
	}

	// AllowedHost is only set in production; host check is skipped in development
	var allowedHost string
	if env == "production" {
		allowedHost = hostname(host)
	}

	uploads, err := parseIntEnv("RATE_LIMIT_UPLOADS_PER_MIN", 10)
	if err != nil {
		return ServerConfig{}, err
	}
	relay, err := parseBoolEnv("EVENTS_REDIS_RELAY", false)
	if err != nil {
		return ServerConfig{}, err
	}

	return ServerConfig{
		Addr:             addr,
		Environment:      env,
		Host:             host,
		AllowedHost:      allowedHost,
		AllowedOrigins:   allowedOrigins(host),
		UploadsPerMinute: uploads,
		EventsRelay:      relay,
	}, nil
}

// allowedOrigins takes ALLOWED_ORIGINS, falling back to the FRONTEND_URL
// variables. When HOST is a backend subdomain the bare and www origins of
// its parent domain are added too.
func allowedOrigins(host string) []string {
	origins := parseList(getEnv("ALLOWED_ORIGINS", ""))
	if len(origins) == 0 {
		for _, u := range []string{getEnv("FRONTEND_URL", "http://localhost:3000"), getEnv("FRONTEND_URL_2", ""), getEnv("FRONTEND_URL_3", "")} {
			if u != "" {
				origins = append(origins, u)
			}
		}
	}

	h := hostname(host)
	if h != "" && h != "localhost" {
		parts := strings.Split(h, ".")
		if len(parts) > 2 {
			domain := strings.Join(parts[1:], ".")
			for _, origin := range []string{"https://" + domain, "https://www." + domain} {
				if !containsOrigin(origins, origin) {
					origins = append(origins, origin)
				}
			}
		}
	}
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	return origins
}

// hostname strips the scheme, path and port from a HOST value.
func hostname(host string) string {
	for _, prefix := range []string{"https://", "http://"} {
		host = strings.TrimPrefix(host, prefix)
	}
	if idx := strings.Index(host, "/"); idx != -1 {
		host = host[:idx]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	return strings.TrimSpace(host)
}

func loadStorageConfig() (StorageConfig, error) {
	cfg := StorageConfig{
		RedisURI:     getEnv("REDIS_URI", "redis://localhost:6379/0"),
		MongoURI:     getEnv("MONGODB_URI", getEnv("MONGO_URI", "mongodb://localhost:27017/daily_journal")),
		PostgresURI:  getEnv("POSTGRES_URI", "postgres://localhost:5432/daily_journal?sslmode=disable"),
		SQLitePath:   getEnv("SQLITE_PATH", "data/journal.db"),
		UserStore:    strings.ToLower(getEnv("USER_STORE", "sqlite")),
		SessionStore: strings.ToLower(getEnv("SESSION_STORE", "memory")),
		EntryStore:   strings.ToLower(getEnv("ENTRY_STORE", "memory")),
		BadgerDir:    getEnv("BADGER_DIR", "data/entries.badger"),
		EntryFileDir: getEnv("ENTRY_FILE_DIR", "data/entries"),
	}
	if err := oneOf("USER_STORE", cfg.UserStore, "postgres", "sqlite", "memory"); err != nil {
		return StorageConfig{}, err
	}
	if err := oneOf("SESSION_STORE", cfg.SessionStore, "redis", "memory"); err != nil {
		return StorageConfig{}, err
	}
	if err := oneOf("ENTRY_STORE", cfg.EntryStore, "memory", "redis", "mongo", "badger", "file"); err != nil {
		return StorageConfig{}, err
	}
	return cfg, nil
}

func loadBlobConfig() (BlobConfig, error) {
	maxUpload, err := parseInt64Env("MAX_UPLOAD_BYTES", 100*1024*1024)
	if err != nil {
		return BlobConfig{}, err
	}
	if maxUpload <= 0 {
		return BlobConfig{}, fmt.Errorf("invalid MAX_UPLOAD_BYTES value %d: must be positive", maxUpload)
	}
	cfg := BlobConfig{
		Store:               strings.ToLower(getEnv("BLOB_STORE", "memory")),
		Dir:                 getEnv("BLOB_DIR", "data/blobs"),
		MaxUploadBytes:      maxUpload,
		CloudinaryName:      getEnv("CLOUDINARY_CLOUD_NAME", ""),
		CloudinaryAPIKey:    getEnv("CLOUDINARY_API_KEY", ""),
		CloudinaryAPISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "daily-journal"),
	}
	if err := oneOf("BLOB_STORE", cfg.Store, "memory", "disk", "cloudinary"); err != nil {
		return BlobConfig{}, err
	}
	if cfg.Store == "cloudinary" && (cfg.CloudinaryName == "" || cfg.CloudinaryAPIKey == "" || cfg.CloudinaryAPISecret == "") {
		return BlobConfig{}, fmt.Errorf("BLOB_STORE=cloudinary requires CLOUDINARY_CLOUD_NAME, CLOUDINARY_API_KEY and CLOUDINARY_API_SECRET")
	}
	return cfg, nil
}

func loadCaptureConfig() (CaptureConfig, error) {
	timeslice, err := parseDurationEnv("CAPTURE_TIMESLICE", time.Second)
	if err != nil {
		return CaptureConfig{}, err
	}
	tick, err := parseDurationEnv("CAPTURE_TICK", time.Second)
	if err != nil {
		return CaptureConfig{}, err
	}
	return CaptureConfig{Timeslice: timeslice, Tick: tick}, nil
}

func loadSummaryConfig() (SummaryConfig, error) {
	minDelay, err := parseDurationEnv("SUMMARY_MIN_DELAY", 2*time.Second)
	if err != nil {
		return SummaryConfig{}, err
	}
	maxDelay, err := parseDurationEnv("SUMMARY_MAX_DELAY", 4*time.Second)
	if err != nil {
		return SummaryConfig{}, err
	}
	if maxDelay < minDelay {
		return SummaryConfig{}, fmt.Errorf("SUMMARY_MAX_DELAY (%s) is below SUMMARY_MIN_DELAY (%s)", maxDelay, minDelay)
	}
	rate, err := parseFloatEnv("SUMMARY_FAILURE_RATE", 0)
	if err != nil {
		return SummaryConfig{}, err
	}
	if rate < 0 || rate > 1 {
		return SummaryConfig{}, fmt.Errorf("invalid SUMMARY_FAILURE_RATE value %v: must be within [0,1]", rate)
	}
	timeout, err := parseDurationEnv("SUMMARY_TIMEOUT", time.Minute)
	if err != nil {
		return SummaryConfig{}, err
	}
	cfg := SummaryConfig{
		Generator:     strings.ToLower(getEnv("SUMMARY_GENERATOR", "mock")),
		MinDelay:      minDelay,
		MaxDelay:      maxDelay,
		FailureRate:   rate,
		TemplatesFile: getEnv("SUMMARY_TEMPLATES_FILE", ""),
		Timeout:       timeout,
	}
	if err := oneOf("SUMMARY_GENERATOR", cfg.Generator, "mock", "llm"); err != nil {
		return SummaryConfig{}, err
	}
	return cfg, nil
}

func loadArkConfig() (ArkConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return ArkConfig{}, err
	}
	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return ArkConfig{}, err
	}
	return ArkConfig{
		APIKey:      getEnv("ARK_API_KEY", ""),
		AccessKey:   getEnv("ARK_ACCESS_KEY", ""),
		SecretKey:   getEnv("ARK_SECRET_KEY", ""),
		Model:       getEnv("ARK_MODEL", ""),
		BaseURL:     getEnv("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnv("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid %s value %q: want one of %s", key, value, strings.Join(allowed, ", "))
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsOrigin(list []string, o string) bool {
	o = strings.ToLower(o)
	for _, v := range list {
		if strings.ToLower(strings.TrimSpace(v)) == o {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	v, err := parseOptionalIntEnv(key)
	if err != nil || v == nil {
		return defaultValue, err
	}
	return *v, nil
}

func parseInt64Env(key string, defaultValue int64) (int64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	val, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseFloatEnv(key string, defaultValue float64) (float64, error) {
	v, err := parseOptionalFloatEnv(key)
	if err != nil || v == nil {
		return defaultValue, err
	}
	return *v, nil
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return nil, nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}
