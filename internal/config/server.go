package config

import (
	"path/filepath"
	"strings"
	"time"
)

type Server struct {
	Host        string `validate:"required"`
	Port        int    `validate:"min=1,max=65535"`
	TLSCertFile string
	TLSKeyFile  string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	LogFormat string `validate:"oneof=json text"`
	LogLevel  string

	OpenRouterAPIKey  string `validate:"required"`
	OpenRouterModel   string `validate:"required"`
	OpenRouterBaseURL string `validate:"required,url"`
	InferenceTimeout  time.Duration
	ExtractImageText  bool
	ImageHashing      bool
	ImageHashTimeout  time.Duration

	CacheBackend string `validate:"oneof=memory file badger redis postgres"`
	CacheFile    string
	CacheDir     string
	CacheHotSize int `validate:"min=0"`
	RedisAddr    string
	RedisPrefix  string
	DatabaseURL  string `validate:"required_if=CacheBackend postgres"`

	APIKey          string
	RateLimitPerMin int `validate:"min=0"`
	RoutePrefix     string
}

var serverKeys = map[string]string{
	"Host":              "HOST",
	"Port":              "PORT",
	"LogFormat":         "ANSWER_SERVER_LOG_FORMAT",
	"OpenRouterAPIKey":  "OPENROUTER_API_KEY",
	"OpenRouterModel":   "OPENROUTER_MODEL",
	"OpenRouterBaseURL": "OPENROUTER_BASE_URL",
	"CacheBackend":      "ANSWER_CACHE_BACKEND",
	"CacheHotSize":      "ANSWER_CACHE_HOT_SIZE",
	"DatabaseURL":       "DATABASE_URL",
	"RateLimitPerMin":   "ANSWER_SERVER_RATE_LIMIT_PER_MIN",
}

// LoadServer reads the answer server settings. A missing provider key or a
// postgres backend without DATABASE_URL is a ConfigurationError.
func LoadServer() (Server, error) {
	databaseURL := strings.TrimSpace(envOrDefault("DATABASE_URL", ""))
	defaultBackend := "file"
	if databaseURL != "" {
		defaultBackend = "postgres"
	}

	cfg := Server{
		Host:        envOrDefault("HOST", "0.0.0.0"),
		Port:        intOrDefault("PORT", 8000),
		TLSCertFile: strings.TrimSpace(envOrDefault("TLS_CERT_FILE", "")),
		TLSKeyFile:  strings.TrimSpace(envOrDefault("TLS_KEY_FILE", "")),

		ReadTimeout:     durationOrDefault("ANSWER_SERVER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    durationOrDefault("ANSWER_SERVER_WRITE_TIMEOUT", 120*time.Second),
		IdleTimeout:     durationOrDefault("ANSWER_SERVER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: durationOrDefault("ANSWER_SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),

		LogFormat: strings.ToLower(envOrDefault("ANSWER_SERVER_LOG_FORMAT", "json")),
		LogLevel:  envOrDefault("LOG_LEVEL", "info"),

		OpenRouterAPIKey:  strings.TrimSpace(envOrDefault("OPENROUTER_API_KEY", "")),
		OpenRouterModel:   envOrDefault("OPENROUTER_MODEL", "openrouter/auto"),
		OpenRouterBaseURL: envOrDefault("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
		InferenceTimeout:  durationOrDefault("OPENROUTER_TIMEOUT", 90*time.Second),
		ExtractImageText:  boolOrDefault("ANSWER_EXTRACT_IMAGE_TEXT", false),
		ImageHashing:      boolOrDefault("ANSWER_IMAGE_HASHING", true),
		ImageHashTimeout:  durationOrDefault("ANSWER_IMAGE_HASH_TIMEOUT", 15*time.Second),

		CacheBackend: strings.ToLower(envOrDefault("ANSWER_CACHE_BACKEND", defaultBackend)),
		CacheFile:    envOrDefault("ANSWER_CACHE_FILE", filepath.Join(jphwDir(), "answers.json")),
		CacheDir:     envOrDefault("ANSWER_CACHE_DIR", filepath.Join(jphwDir(), "answers.badger")),
		CacheHotSize: intOrDefault("ANSWER_CACHE_HOT_SIZE", 1024),
		RedisAddr:    envOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPrefix:  envOrDefault("ANSWER_CACHE_REDIS_PREFIX", "formfill:answers"),
		DatabaseURL:  databaseURL,

		APIKey:          strings.TrimSpace(envOrDefault("ANSWER_SERVER_API_KEY", "")),
		RateLimitPerMin: intOrDefault("ANSWER_SERVER_RATE_LIMIT_PER_MIN", 0),
		RoutePrefix:     envOrDefault("ANSWER_SERVER_ROUTE_PREFIX", "/jphw"),
	}
	if err := validate.Struct(cfg); err != nil {
		return Server{}, validationError(err, serverKeys)
	}
	return cfg, nil
}

// TLSEnabled reports whether both certificate and key are configured.
func (s Server) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// TLSPartial reports that only one of certificate and key is configured,
// in which case the server falls back to plain HTTP.
func (s Server) TLSPartial() bool {
	return (s.TLSCertFile == "") != (s.TLSKeyFile == "")
}
