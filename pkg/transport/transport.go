// Package transport provides the pooled HTTP client shared by feedback delivery and heartbeats.
package transport

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/http2"
)

//go:generate mockgen -source=transport.go -destination=../../mocks/mocktransport/transport_mock.gen.go -package mocktransport

// UserAgent is sent with every request.
const UserAgent = "PatchworkMCP-Go/1.0"

// Doer sends a single HTTP request.
// *http.Client implements Doer and is safe for concurrent use.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config specifies the client timeouts.
type Config struct {
	// ConnectTimeout limits dialing a new connection.
	ConnectTimeout time.Duration
	// ResponseTimeout limits waiting for response headers after the request is written.
	ResponseTimeout time.Duration
	// Timeout limits the whole exchange, including reading the body.
	Timeout time.Duration
	// MaxIdleConnsPerHost limits pooled idle connections to the remote service.
	MaxIdleConnsPerHost int
}

// DefaultConfig returns the timeouts used by the collection service clients.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:      2 * time.Second,
		ResponseTimeout:     5 * time.Second,
		Timeout:             15 * time.Second,
		MaxIdleConnsPerHost: 10,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = d.ResponseTimeout
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxIdleConnsPerHost <= 0 {
		c.MaxIdleConnsPerHost = d.MaxIdleConnsPerHost
	}
	return c
}

// New returns a pooled HTTP client with HTTP/2 enabled for TLS endpoints.
func New(cfg Config) (*http.Client, error) {
	cfg = cfg.withDefaults()

	t := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: cfg.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   cfg.ConnectTimeout + cfg.ResponseTimeout,
		ResponseHeaderTimeout: cfg.ResponseTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}

	if _, err := http2.ConfigureTransports(t); err != nil {
		return nil, errors.Wrap(err, "failed to configure HTTP/2")
	}

	return &http.Client{
		Timeout:   cfg.Timeout,
		Transport: t,
	}, nil
}

var (
	sharedOnce   sync.Once
	sharedClient *http.Client
)

// Shared returns a process-wide client created once on first use.
func Shared() *http.Client {
	sharedOnce.Do(func() {
		c, err := New(DefaultConfig())
		if err != nil {
			// HTTP/2 could not be configured, fall back to HTTP/1.1 only
			c = &http.Client{Timeout: DefaultConfig().Timeout}
		}
		sharedClient = c
	})
	return sharedClient
}
