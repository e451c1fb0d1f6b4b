package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"twstock/fetch"
	"twstock/internal/config"
	"twstock/request"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_YAML(t *testing.T) {
	t.Parallel()

	// Arrange: a YAML file overriding part of the client section
	path := writeFile(t, "twstock.yaml", `
client:
  timeout_sec: 5
  history_format: json
  max_concurrency: 4
  duplicate_policy: keep-last
  headers:
    accept-language: zh-TW
endpoints:
  realtime: http://mis.example.test/quote
securities: [tse:2330, otc:6488]
log:
  level: debug
`)

	// Act: load
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// Assert: file values win, untouched fields keep their defaults
	require.Equal(t, 5, cfg.Client.TimeoutSec)
	require.Equal(t, "json", cfg.Client.HistoryFormat)
	require.Equal(t, 4, cfg.Client.MaxConcurrency)
	require.Equal(t, fetch.DefaultMaxBatch, cfg.Client.MaxBatch)
	require.Equal(t, "http://mis.example.test/quote", cfg.Endpoints.Realtime)
	require.Equal(t, request.DefaultListingURL, cfg.Endpoints.Listing)
	require.Equal(t, []string{"tse:2330", "otc:6488"}, cfg.Securities)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_JSON(t *testing.T) {
	t.Parallel()

	// Arrange: a JSON file
	path := writeFile(t, "twstock.json", `{"client":{"max_batch":20},"log":{"format":"json"}}`)

	// Act: load
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// Assert: parsed
	require.Equal(t, 20, cfg.Client.MaxBatch)
	require.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		body string
	}{
		{name: "unknown extension", file: "twstock.toml", body: "a = 1"},
		{name: "broken yaml", file: "twstock.yml", body: "client: [unterminated"},
		{name: "broken json", file: "twstock.json", body: "{"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act: load
			_, err := config.Load(writeFile(t, tt.file, tt.body))

			// Assert: rejected
			require.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()

	// Act: load a path that does not exist
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	// Assert: defaults
	require.Equal(t, config.Default().Client, cfg.Client)
}

func TestLoad_Env(t *testing.T) {
	// Arrange: environment overrides on top of a file
	path := writeFile(t, "twstock.yaml", "client:\n  max_concurrency: 2\n")
	t.Setenv("TWSTOCK_MAX_CONCURRENCY", "6")
	t.Setenv("TWSTOCK_SECURITIES", " 2330, otc:6488 ,,")
	t.Setenv("TWSTOCK_LISTING_URL", "http://isin.example.test/list")
	t.Setenv("LOG_LEVEL", "warn")

	// Act: load
	cfg, err := config.Load(path)
	require.NoError(t, err)

	// Assert: the environment wins
	require.Equal(t, 6, cfg.Client.MaxConcurrency)
	require.Equal(t, []string{"2330", "otc:6488"}, cfg.Securities)
	require.Equal(t, "http://isin.example.test/list", cfg.Endpoints.Listing)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestLoad_EnvInvalid(t *testing.T) {
	// Arrange: a non-numeric timeout
	t.Setenv("TWSTOCK_TIMEOUT_SEC", "soon")

	// Act: load
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))

	// Assert: rejected with the variable named
	require.ErrorContains(t, err, "TWSTOCK_TIMEOUT_SEC")
}

func TestConfig_ClientConfig(t *testing.T) {
	t.Parallel()

	// Arrange: a config with every client field set
	cfg := config.Default()
	cfg.Client.TimeoutSec = 3
	cfg.Client.UserAgent = "custom/2"
	cfg.Client.HistoryFormat = "json"
	cfg.Client.DuplicatePolicy = "reject"
	cfg.Client.Headers = map[string]string{"accept-language": "zh-TW"}

	// Act: convert
	out, err := cfg.ClientConfig(nil)
	require.NoError(t, err)

	// Assert: every field carried over
	require.Equal(t, 3*time.Second, out.Timeout)
	require.Equal(t, "custom/2", out.UserAgent)
	require.Equal(t, request.FormatJSON, out.HistoryFormat)
	require.Equal(t, fetch.Reject, out.DuplicatePolicy)
	require.Equal(t, "zh-TW", out.Header.Get("Accept-Language"))
	require.Equal(t, request.DefaultEndpoints(), out.Endpoints)
}

func TestConfig_ClientConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "format", mutate: func(c *config.Config) { c.Client.HistoryFormat = "csv" }},
		{name: "policy", mutate: func(c *config.Config) { c.Client.DuplicatePolicy = "first" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: one bad field
			cfg := config.Default()
			tt.mutate(&cfg)

			// Act: convert
			_, err := cfg.ClientConfig(nil)

			// Assert: rejected
			require.Error(t, err)
		})
	}
}
