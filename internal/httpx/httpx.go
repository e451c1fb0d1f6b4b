// Package httpx provides the default HTTP transport.
package httpx

import (
	"net"
	"net/http"
	"time"
)

const DefaultUserAgent = "twstock/1.0"

// Client is a small wrapper around http.Client with sane defaults. It
// satisfies twstock.HTTPClient.
type Client struct {
	HTTP      *http.Client
	UserAgent string
	Headers   map[string]string
}

// New builds a client whose transport keeps at most maxConns connections per
// host, matching the fetchers' concurrency. TWSE blocks addresses that open
// many parallel connections. ISIN and TPEx are slow to send headers.
func New(timeout time.Duration, maxConns int) *Client {
	if maxConns < 1 {
		maxConns = 1
	}
	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		// MIS, TWSE, TPEx and ISIN are separate hosts.
		MaxIdleConns:          4 * maxConns,
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		ForceAttemptHTTP2:     true,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
	}
	return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: DefaultUserAgent}
}

// Do sets the user agent and default headers unless the request already has
// them, then sends it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}
	for k, v := range c.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return c.HTTP.Do(req)
}
