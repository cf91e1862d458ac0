package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultServerURL = "https://jphw.crabdance.com/jphw"

type Client struct {
	ServerURL       string `yaml:"server_url" validate:"required,url"`
	Headless        bool   `yaml:"headless"`
	Browser         string `yaml:"browser" validate:"oneof=chromium remote"`
	ProfileDir      string `yaml:"profile_dir" validate:"required"`
	CDPURL          string `yaml:"cdp_url" validate:"required_if=Browser remote"`
	ChromePath      string `yaml:"chrome_path"`
	ScreenshotDir   string `yaml:"screenshot_dir"`
	Confirm         string `yaml:"confirm" validate:"oneof=always except-submit interactive"`
	CredentialsFile string `yaml:"credentials_file" validate:"required"`
	AnswerAPIKey    string `yaml:"answer_api_key"`
	LogLevel        string `yaml:"log_level"`
}

var clientKeys = map[string]string{
	"ServerURL":       "SERVER_URL",
	"Browser":         "FORMFILL_BROWSER",
	"ProfileDir":      "FORMFILL_PROFILE_DIR",
	"CDPURL":          "FORMFILL_CDP_URL",
	"Confirm":         "FORMFILL_CONFIRM",
	"CredentialsFile": "FORMFILL_CREDENTIALS_FILE",
}

// DefaultClient is the configuration with no file and no environment.
func DefaultClient() Client {
	dir := jphwDir()
	return Client{
		ServerURL:       DefaultServerURL,
		Browser:         "chromium",
		ProfileDir:      filepath.Join(dir, "chromium-profile"),
		Confirm:         "interactive",
		CredentialsFile: filepath.Join(dir, "credentials.json"),
		LogLevel:        "info",
	}
}

// LoadClient layers defaults, the YAML file named by FORMFILL_CONFIG_FILE and
// the environment, in increasing precedence. Flags are applied by the caller
// followed by Validate.
func LoadClient() (Client, error) {
	cfg := DefaultClient()
	if path := strings.TrimSpace(os.Getenv("FORMFILL_CONFIG_FILE")); path != "" {
		var err error
		if cfg, err = mergeFile(cfg, path); err != nil {
			return Client{}, err
		}
	}

	cfg.ServerURL = envOrDefault("SERVER_URL", cfg.ServerURL)
	cfg.Headless = boolOrDefault("FORMFILL_HEADLESS", cfg.Headless)
	cfg.Browser = strings.ToLower(envOrDefault("FORMFILL_BROWSER", cfg.Browser))
	cfg.ProfileDir = firstEnv(cfg.ProfileDir, "PLAYWRIGHT_PROFILE_DIR", "FORMFILL_PROFILE_DIR")
	cfg.CDPURL = envOrDefault("FORMFILL_CDP_URL", cfg.CDPURL)
	cfg.ChromePath = envOrDefault("FORMFILL_CHROME_PATH", cfg.ChromePath)
	cfg.ScreenshotDir = envOrDefault("FORMFILL_SCREENSHOT_DIR", cfg.ScreenshotDir)
	cfg.Confirm = strings.ToLower(envOrDefault("FORMFILL_CONFIRM", cfg.Confirm))
	cfg.CredentialsFile = envOrDefault("FORMFILL_CREDENTIALS_FILE", cfg.CredentialsFile)
	cfg.AnswerAPIKey = envOrDefault("FORMFILL_ANSWER_API_KEY", cfg.AnswerAPIKey)
	cfg.LogLevel = envOrDefault("LOG_LEVEL", cfg.LogLevel)
	return cfg, nil
}

// Validate checks the final client configuration, after flags.
func (c Client) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(err, clientKeys)
	}
	return nil
}

// mergeFile overlays the non-zero values of a YAML file onto cfg.
func mergeFile(cfg Client, path string) (Client, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Client{}, &ConfigurationError{Key: "FORMFILL_CONFIG_FILE", Reason: "file not found: " + path}
		}
		return Client{}, fmt.Errorf("read config file: %w", err)
	}
	var file Client
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return Client{}, fmt.Errorf("decode config file %s: %w", path, err)
	}

	overlay := func(dst *string, value string) {
		if strings.TrimSpace(value) != "" {
			*dst = value
		}
	}
	overlay(&cfg.ServerURL, file.ServerURL)
	overlay(&cfg.Browser, file.Browser)
	overlay(&cfg.ProfileDir, file.ProfileDir)
	overlay(&cfg.CDPURL, file.CDPURL)
	overlay(&cfg.ChromePath, file.ChromePath)
	overlay(&cfg.ScreenshotDir, file.ScreenshotDir)
	overlay(&cfg.Confirm, file.Confirm)
	overlay(&cfg.CredentialsFile, file.CredentialsFile)
	overlay(&cfg.AnswerAPIKey, file.AnswerAPIKey)
	overlay(&cfg.LogLevel, file.LogLevel)
	if file.Headless {
		cfg.Headless = true
	}
	return cfg, nil
}
