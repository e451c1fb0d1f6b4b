// Package twstock fetches Taiwan stock market data from the public TWSE, TPEx
// and MIS web endpoints: real-time quotes, monthly daily-trading history and
// the lists of listed and OTC securities.
//
//	client, err := twstock.New(twstock.Config{Timeout: 10 * time.Second})
//	if err != nil {
//		return err
//	}
//	sec, _ := stock.ListedSecurity("2330")
//	quote, err := client.Realtime().Fetch(ctx, sec)
//
// Errors are classified with the sentinels in package stock; use errors.Is or
// stock.KindOf to branch on them.
package twstock

import (
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"twstock/fetch"
	"twstock/internal/httpx"
	"twstock/request"
)

// HTTPClient describes an HTTP client. *http.Client satisfies it.
type HTTPClient = fetch.HTTPClient

// DuplicatePolicy decides what happens to repeated trading days in history.
type DuplicatePolicy = fetch.DuplicatePolicy

const (
	RejectConflicting = fetch.RejectConflicting
	Reject            = fetch.Reject
	KeepLast          = fetch.KeepLast
)

// DefaultTimeout applies when neither Timeout nor HTTPClient is set.
const DefaultTimeout = 15 * time.Second

// Config configures a Client. The zero value targets the production endpoints.
type Config struct {
	Endpoints request.Endpoints
	// HTTPClient replaces the default transport. Timeout and UserAgent are
	// ignored when it is set.
	HTTPClient HTTPClient
	Timeout    time.Duration
	UserAgent  string
	// HistoryFormat selects the TWSE history page format. Defaults to HTML.
	HistoryFormat request.Format
	// MaxConcurrency bounds concurrent requests within one call. Defaults to 1.
	MaxConcurrency int
	// MaxBatch is how many securities go into one real-time request.
	MaxBatch int
	// MaxBodyBytes bounds response bodies. Defaults to 8 MiB.
	MaxBodyBytes    int64
	DuplicatePolicy DuplicatePolicy
	// Header is sent with every request.
	Header http.Header
	Logger logrus.FieldLogger
}

// Option overrides a Config field.
type Option func(*Config)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c HTTPClient) Option {
	return func(cfg *Config) { cfg.HTTPClient = c }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(cfg *Config) { cfg.Logger = l }
}

// WithEndpoints sets the exchange endpoints.
func WithEndpoints(e request.Endpoints) Option {
	return func(cfg *Config) { cfg.Endpoints = e }
}

// WithHeader adds headers to every request.
func WithHeader(header http.Header) Option {
	return func(cfg *Config) {
		if cfg.Header == nil {
			cfg.Header = http.Header{}
		}
		for key, values := range header {
			for _, value := range values {
				cfg.Header.Add(key, value)
			}
		}
	}
}

// Client is safe for concurrent use. Clients share nothing with each other.
type Client struct {
	realtime *fetch.RealtimeFetcher
	history  *fetch.HistoryFetcher
	list     *fetch.ListFetcher
	core     *fetch.Client
}

// New builds a Client from cfg and opts.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.Header = cfg.Header.Clone()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("negative timeout %s", cfg.Timeout)
	}
	if cfg.MaxBodyBytes < 0 {
		return nil, fmt.Errorf("negative body limit %d", cfg.MaxBodyBytes)
	}
	switch cfg.HistoryFormat {
	case 0, request.FormatHTML, request.FormatJSON:
	default:
		return nil, fmt.Errorf("unsupported history format %s", cfg.HistoryFormat)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc := httpx.New(timeout, cfg.MaxConcurrency)
		if cfg.UserAgent != "" {
			hc.UserAgent = cfg.UserAgent
		}
		httpClient = hc
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	fc := fetch.NewClient(
		fetch.WithHTTPClient(httpClient),
		fetch.WithEndpoints(cfg.Endpoints),
		fetch.WithHeader(cfg.Header),
		fetch.WithMaxBodyBytes(cfg.MaxBodyBytes),
		fetch.WithLogger(logger),
	)
	history := fetch.HistoryConfig{
		Format:         cfg.HistoryFormat,
		MaxConcurrency: cfg.MaxConcurrency,
		Duplicates:     cfg.DuplicatePolicy,
	}
	return &Client{
		realtime: fetch.NewRealtimeFetcher(fc, cfg.MaxBatch, cfg.MaxConcurrency),
		history:  fetch.NewHistoryFetcher(fc, history),
		list:     fetch.NewListFetcher(fc),
		core:     fc,
	}, nil
}

// Realtime returns the real-time quote fetcher.
func (c *Client) Realtime() *fetch.RealtimeFetcher { return c.realtime }

// History returns the daily history fetcher.
func (c *Client) History() *fetch.HistoryFetcher { return c.history }

// List returns the securities list fetcher.
func (c *Client) List() *fetch.ListFetcher { return c.list }

// Endpoints returns the endpoints in use, defaults filled in.
func (c *Client) Endpoints() request.Endpoints { return c.core.Endpoints() }
