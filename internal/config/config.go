// Package config holds runtime configuration for the gateway and the autocrop CLI.
// Flag parsing is done in cmd/*; this package is data plus environment loading.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/teslashibe/go-posterface/pkg/oracle"
)

// Default configuration values.
const (
	DefaultPort       = "3001"
	DefaultLogLevel   = "info"
	DefaultUploadDir  = "./public/uploads"
	DefaultGatewayURL = "http://localhost:3001"
)

// Config holds all configuration for the posterface services.
type Config struct {
	// HTTP listen port for the gateway.
	Port string

	// Logging
	LogLevel string // debug, info, warn, error
	LogFile  string // Optional rotating log file, empty for stdout only

	// Detector selects and configures the face detection backend.
	Detector oracle.Config

	// Uploads
	UploadDir     string // Where accepted uploads are written
	PublicBaseURL string // Base for resolving relative image URLs, e.g. http://localhost:3001

	// GatewayURL is where the autocrop CLI sends crop requests.
	GatewayURL string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:       DefaultPort,
		LogLevel:   DefaultLogLevel,
		Detector:   oracle.DefaultConfig(),
		UploadDir:  DefaultUploadDir,
		GatewayURL: DefaultGatewayURL,
	}
}

// LoadDotEnv loads a .env file into the process environment outside
// production. A missing file is not an error.
func LoadDotEnv(files ...string) error {
	if os.Getenv("GO_ENV") == "production" {
		return nil
	}
	if len(files) == 0 {
		files = []string{".env"}
	}

	var present []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat %s: %w", f, err)
		}
	}
	if len(present) == 0 {
		return nil
	}
	if err := godotenv.Load(present...); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// LoadEnvConfig applies environment overrides.
// Call this after flag parsing; unset variables leave fields untouched.
func (c *Config) LoadEnvConfig() error {
	setString(&c.Port, "PORT")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFile, "LOG_FILE")
	setString(&c.UploadDir, "UPLOAD_DIR")
	setString(&c.PublicBaseURL, "PUBLIC_BASE_URL")
	setString(&c.GatewayURL, "GATEWAY_URL")

	if v := os.Getenv("DETECTOR_BACKEND"); v != "" {
		c.Detector.Backend = oracle.Backend(strings.ToLower(v))
	}
	if v := os.Getenv("DETECTOR_FALLBACK"); v != "" {
		c.Detector.Fallback = ParseBackends(v)
	}
	setString(&c.Detector.Python, "DETECTOR_PYTHON")
	setString(&c.Detector.Script, "DETECTOR_SCRIPT")
	setString(&c.Detector.YuNetModel, "YUNET_MODEL")
	setString(&c.Detector.PigoCascade, "PIGO_CASCADE")
	setString(&c.Detector.GoogleAPIKey, "GOOGLE_API_KEY")

	if v := os.Getenv("DETECTOR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &ConfigError{Field: "Detector.Timeout", Message: fmt.Sprintf("DETECTOR_TIMEOUT %q is not a duration", v)}
		}
		c.Detector.Timeout = d
	}
	if v := os.Getenv("DETECTOR_STDIN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ConfigError{Field: "Detector.Stdin", Message: fmt.Sprintf("DETECTOR_STDIN %q is not a boolean", v)}
		}
		c.Detector.Stdin = b
	}
	return nil
}

// Validate checks that required configuration is present and well formed.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Port)
	if err != nil || port <= 0 || port > 65535 {
		return &ConfigError{Field: "Port", Message: fmt.Sprintf("PORT %q is not a valid port", c.Port)}
	}
	if c.UploadDir == "" {
		return &ConfigError{Field: "UploadDir", Message: "UPLOAD_DIR must not be empty"}
	}
	if c.PublicBaseURL != "" {
		if err := checkAbsURL(c.PublicBaseURL); err != nil {
			return &ConfigError{Field: "PublicBaseURL", Message: "PUBLIC_BASE_URL " + err.Error()}
		}
	}
	if err := checkAbsURL(c.GatewayURL); err != nil {
		return &ConfigError{Field: "GatewayURL", Message: "GATEWAY_URL " + err.Error()}
	}
	if err := c.Detector.Validate(); err != nil {
		return &ConfigError{Field: "Detector", Message: err.Error()}
	}
	return nil
}

// Addr returns the listen address for Port.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Message
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func checkAbsURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%q is not a URL: %v", raw, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q must be an absolute http(s) URL", raw)
	}
	return nil
}

// ParseBackends splits a comma-separated backend list, e.g. "yunet, pigo".
func ParseBackends(v string) []oracle.Backend {
	var out []oracle.Backend
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, oracle.Backend(strings.ToLower(part)))
		}
	}
	return out
}
