// Package fetch runs the fetch-decode-parse pipeline against the exchange
// endpoints. Every call is stateless: no caching and no internal retries.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"twstock/request"
	"twstock/stock"
	"twstock/textdecode"
)

// HTTPClient describes an HTTP client.
//
//go:generate mockgen -package=fetch_test -destination=mock_http_client_test.go -source=client.go HTTPClient
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DefaultMaxBodyBytes bounds how much of a response body is read.
const DefaultMaxBodyBytes = 8 << 20

// Client holds what every fetcher shares: the transport, the request builder
// and the logger.
type Client struct {
	// builder builds requests against the configured endpoints.
	builder request.Builder
	// httpClient performs the requests.
	httpClient HTTPClient
	// header contains additional headers to be sent with each request.
	header http.Header
	// maxBodyBytes bounds response bodies.
	maxBodyBytes int64
	logger       logrus.FieldLogger
}

// ClientOption is a configuration option for the Client.
type ClientOption func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithEndpoints sets the exchange endpoints. Empty fields keep the defaults.
func WithEndpoints(e request.Endpoints) ClientOption {
	return func(c *Client) {
		c.builder = request.NewBuilder(e)
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// WithMaxBodyBytes bounds response bodies; larger responses fail.
func WithMaxBodyBytes(n int64) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.maxBodyBytes = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a Client using http.DefaultClient and the production
// endpoints unless options say otherwise.
func NewClient(options ...ClientOption) *Client {
	var client = &Client{
		builder:      request.NewBuilder(request.Endpoints{}),
		httpClient:   http.DefaultClient,
		header:       http.Header{},
		maxBodyBytes: DefaultMaxBodyBytes,
		logger:       logrus.StandardLogger(),
	}
	for _, option := range options {
		option(client)
	}
	return client
}

// Endpoints returns the endpoints requests are sent to.
func (c *Client) Endpoints() request.Endpoints { return c.builder.Endpoints() }

// rawResponse is a successful response read into memory.
type rawResponse struct {
	body        []byte
	contentType string
	status      int
}

var errBodyTooLarge = errors.New("response body exceeds limit")

// send performs d and reads the body. Non-2xx statuses become an
// *stock.UpstreamError; transport failures a *stock.TransportError.
func (c *Client) send(ctx context.Context, log logrus.FieldLogger, d request.Descriptor) (rawResponse, error) {
	req, err := d.NewRequest(ctx)
	if err != nil {
		return rawResponse{}, err
	}
	for key, values := range c.header {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	log = log.WithField("url", req.URL.String())
	start := time.Now()
	log.Debug("sending request")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return rawResponse{}, transportError(ctx, "performing request", req.URL.String(), err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, c.maxBodyBytes+1))
	if err != nil {
		return rawResponse{}, transportError(ctx, "reading response", req.URL.String(), err)
	}
	if int64(len(body)) > c.maxBodyBytes {
		return rawResponse{}, stock.NewTransportError("reading response", req.URL.String(),
			fmt.Errorf("%w: %d bytes", errBodyTooLarge, c.maxBodyBytes), false, false)
	}

	log = log.WithFields(logrus.Fields{
		"status":  res.StatusCode,
		"bytes":   len(body),
		"elapsed": time.Since(start).String(),
	})

	switch {
	case res.StatusCode >= 200 && res.StatusCode < 300:
		log.Debug("received response")

	case res.StatusCode == http.StatusTooManyRequests,
		res.StatusCode == http.StatusForbidden,
		res.StatusCode == http.StatusServiceUnavailable:
		log.Warn("rate limited")
		return rawResponse{}, &stock.UpstreamError{Status: res.StatusCode, Message: statusMessage(res.StatusCode, body)}

	default:
		log.Warn("unexpected status code")
		return rawResponse{}, &stock.UpstreamError{Status: res.StatusCode, Message: statusMessage(res.StatusCode, body)}
	}

	return rawResponse{body: body, contentType: res.Header.Get("Content-Type"), status: res.StatusCode}, nil
}

// decode turns a response into text using the descriptor's encoding.
func decode(raw rawResponse, d request.Descriptor, opts ...textdecode.Option) (textdecode.Text, error) {
	opts = append([]textdecode.Option{textdecode.WithContentType(raw.contentType)}, opts...)
	return textdecode.Decode(raw.body, d.Encoding, opts...)
}

const statusSnippet = 256

func statusMessage(status int, body []byte) string {
	msg := http.StatusText(status)
	if len(body) > 0 {
		if len(body) > statusSnippet {
			body = body[:statusSnippet]
		}
		msg += ": " + strings.ToValidUTF8(string(body), "?")
	}
	return msg
}

// transportError classifies err as a timeout, a cancellation or a plain
// transport failure. The original error stays reachable through Unwrap.
func transportError(ctx context.Context, op, url string, err error) error {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded)
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		timeout = true
	}
	canceled := errors.Is(err, context.Canceled)
	switch ctx.Err() {
	case context.DeadlineExceeded:
		timeout = true
	case context.Canceled:
		canceled = true
	}
	return stock.NewTransportError(op, url, err, timeout, canceled)
}
