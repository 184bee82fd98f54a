package client

import (
	"log/slog"
	"net/http"
	"time"
)

// Client is the authenticated JSON API. Every call goes through a Transport,
// so an expired access token is refreshed and the call re-sent once.
type Client struct {
	requester
}

type Option func(*config)

type config struct {
	base    http.RoundTripper
	timeout time.Duration
	logger  *slog.Logger
}

// WithBaseTransport sets the transport requests are finally sent through.
func WithBaseTransport(base http.RoundTripper) Option {
	return func(c *config) { c.base = base }
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *config) { c.timeout = timeout }
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

func New(
	baseURL string,
	source TokenSource,
	acquirer TokenAcquirer,
	opts ...Option,
) *Client {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	transport := &Transport{
		Base:    cfg.base,
		Tokens:  source,
		Refresh: acquirer,
		Logger:  cfg.logger,
	}
	return &Client{requester{
		baseURL: baseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.timeout,
		},
	}}
}

// HTTPClient exposes the authenticated http.Client for calls outside the
// typed API.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}
