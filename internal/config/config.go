// Package config loads the command-line tool's configuration from defaults,
// an optional JSON or YAML file and TWSTOCK_* environment variables, in that
// order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"twstock"
	"twstock/fetch"
	"twstock/request"
)

type Client struct {
	TimeoutSec      int               `json:"timeout_sec" yaml:"timeout_sec"`
	UserAgent       string            `json:"user_agent" yaml:"user_agent"`
	HistoryFormat   string            `json:"history_format" yaml:"history_format"`
	MaxConcurrency  int               `json:"max_concurrency" yaml:"max_concurrency"`
	MaxBatch        int               `json:"max_batch" yaml:"max_batch"`
	MaxBodyBytes    int64             `json:"max_body_bytes" yaml:"max_body_bytes"`
	DuplicatePolicy string            `json:"duplicate_policy" yaml:"duplicate_policy"`
	Headers         map[string]string `json:"headers" yaml:"headers"`
}

type Log struct {
	Level string `json:"level" yaml:"level"`
	// Format is "json" or "text".
	Format string `json:"format" yaml:"format"`
	// Output is "stderr", "stdout" or a file path.
	Output     string `json:"output" yaml:"output"`
	MaxAgeDays int    `json:"max_age_days" yaml:"max_age_days"`
}

type Config struct {
	Client    Client            `json:"client" yaml:"client"`
	Endpoints request.Endpoints `json:"endpoints" yaml:"endpoints"`
	Log       Log               `json:"log" yaml:"log"`
	// Securities are quoted when the command line names none.
	Securities []string `json:"securities" yaml:"securities"`
}

func Default() Config {
	return Config{
		Client: Client{
			TimeoutSec:      15,
			HistoryFormat:   "html",
			MaxConcurrency:  1,
			MaxBatch:        fetch.DefaultMaxBatch,
			MaxBodyBytes:    fetch.DefaultMaxBodyBytes,
			DuplicatePolicy: fetch.RejectConflicting.String(),
		},
		Endpoints:  request.DefaultEndpoints(),
		Log:        Log{Level: "info", Format: "text", Output: "stderr"},
		Securities: []string{"tse:2330"},
	}
}

// defaultFiles are tried in order when no path is given.
var defaultFiles = []string{"twstock.yaml", "twstock.yml", "twstock.json"}

// Load reads the config file at path. If path is empty the default file names
// are tried; a missing file yields the defaults. Environment variables
// override the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		for _, f := range defaultFiles {
			if _, err := os.Stat(f); err == nil {
				path = f
				break
			}
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := unmarshal(path, b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("environment: %w", err)
	}
	return cfg, nil
}

func unmarshal(path string, b []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return yaml.Unmarshal(b, cfg)
	case ".json":
		return json.Unmarshal(b, cfg)
	default:
		return fmt.Errorf("unsupported config extension %q", ext)
	}
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("TWSTOCK_TIMEOUT_SEC"); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err != nil || x <= 0 {
			return fmt.Errorf("TWSTOCK_TIMEOUT_SEC=%q: want a positive integer", v)
		}
		cfg.Client.TimeoutSec = x
	}
	if v := os.Getenv("TWSTOCK_USER_AGENT"); v != "" {
		cfg.Client.UserAgent = v
	}
	if v := os.Getenv("TWSTOCK_HISTORY_FORMAT"); v != "" {
		cfg.Client.HistoryFormat = v
	}
	if v := os.Getenv("TWSTOCK_MAX_CONCURRENCY"); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err != nil || x <= 0 {
			return fmt.Errorf("TWSTOCK_MAX_CONCURRENCY=%q: want a positive integer", v)
		}
		cfg.Client.MaxConcurrency = x
	}
	if v := os.Getenv("TWSTOCK_MAX_BATCH"); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err != nil || x <= 0 {
			return fmt.Errorf("TWSTOCK_MAX_BATCH=%q: want a positive integer", v)
		}
		cfg.Client.MaxBatch = x
	}
	if v := os.Getenv("TWSTOCK_MAX_BODY_BYTES"); v != "" {
		var x int64
		if _, err := fmt.Sscanf(v, "%d", &x); err != nil || x <= 0 {
			return fmt.Errorf("TWSTOCK_MAX_BODY_BYTES=%q: want a positive integer", v)
		}
		cfg.Client.MaxBodyBytes = x
	}
	if v := os.Getenv("TWSTOCK_DUPLICATE_POLICY"); v != "" {
		cfg.Client.DuplicatePolicy = v
	}
	if v := os.Getenv("TWSTOCK_REALTIME_URL"); v != "" {
		cfg.Endpoints.Realtime = v
	}
	if v := os.Getenv("TWSTOCK_LISTED_HISTORY_URL"); v != "" {
		cfg.Endpoints.ListedHistory = v
	}
	if v := os.Getenv("TWSTOCK_OTC_HISTORY_URL"); v != "" {
		cfg.Endpoints.OTCHistory = v
	}
	if v := os.Getenv("TWSTOCK_LISTING_URL"); v != "" {
		cfg.Endpoints.Listing = v
	}
	if v := os.Getenv("TWSTOCK_SECURITIES"); v != "" {
		cfg.Securities = splitCSV(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("LOG_OUTPUT"); v != "" {
		cfg.Log.Output = v
	}
	return nil
}

// ClientConfig converts the file settings into a twstock.Config.
func (c Config) ClientConfig(logger logrus.FieldLogger) (twstock.Config, error) {
	format, err := request.ParseFormat(c.Client.HistoryFormat)
	if err != nil {
		return twstock.Config{}, err
	}
	policy, err := fetch.ParseDuplicatePolicy(c.Client.DuplicatePolicy)
	if err != nil {
		return twstock.Config{}, err
	}
	var header http.Header
	if len(c.Client.Headers) > 0 {
		header = make(http.Header, len(c.Client.Headers))
		for k, v := range c.Client.Headers {
			header.Set(k, v)
		}
	}
	return twstock.Config{
		Endpoints:       c.Endpoints,
		Timeout:         time.Duration(c.Client.TimeoutSec) * time.Second,
		UserAgent:       c.Client.UserAgent,
		HistoryFormat:   format,
		MaxConcurrency:  c.Client.MaxConcurrency,
		MaxBatch:        c.Client.MaxBatch,
		MaxBodyBytes:    c.Client.MaxBodyBytes,
		DuplicatePolicy: policy,
		Header:          header,
		Logger:          logger,
	}, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
