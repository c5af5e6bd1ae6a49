// Package middleware provides the component a server owns for the lifetime of its process:
// it reports heartbeats in the background and submits feedback on behalf of the host,
// returning the structured response of the collection service.
package middleware

import (
	"context"
	"encoding/json"

	"github.com/effective-security/patchwork/delivery"
	"github.com/effective-security/patchwork/heartbeat"
	"github.com/effective-security/patchwork/pkg/config"
	"github.com/effective-security/patchwork/pkg/transport"
	"github.com/effective-security/patchwork/tools"
	"github.com/effective-security/xlog"
	"github.com/tidwall/sjson"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/patchwork", "middleware")

// FeedbackPath is appended to the API URL
const FeedbackPath = "/api/v1/feedback/"

// Middleware owns the heartbeat reporter and the alternate feedback path.
type Middleware struct {
	cfg       config.Config
	toolNames []string
	doer      transport.Doer
	policy    delivery.Policy
	sleep     delivery.SleepFunc

	reporter *heartbeat.Reporter
	sender   *delivery.Sender
}

// Option configures the Middleware
type Option func(*Middleware)

// WithConfig replaces the configuration read from the environment,
// a nil cfg keeps the environment configuration.
func WithConfig(cfg *config.Config) Option {
	return func(m *Middleware) {
		if cfg != nil {
			m.cfg = *cfg
		}
	}
}

// WithAPIURL overrides the API base URL.
func WithAPIURL(u string) Option {
	return func(m *Middleware) {
		m.cfg.APIURL = config.TrimURL(u)
	}
}

// WithAPIKey overrides the API key.
func WithAPIKey(key string) Option {
	return func(m *Middleware) {
		m.cfg.APIKey = key
	}
}

// WithServerSlug overrides the server slug.
func WithServerSlug(slug string) Option {
	return func(m *Middleware) {
		m.cfg.ServerSlug = slug
	}
}

// WithToolNames sets the tool inventory reported by heartbeats.
func WithToolNames(names ...string) Option {
	return func(m *Middleware) {
		m.toolNames = append(m.toolNames, names...)
	}
}

// WithTools sets the tool inventory reported by heartbeats from the tools.
func WithTools(list ...tools.ITool) Option {
	return func(m *Middleware) {
		m.toolNames = append(m.toolNames, tools.Names(list...)...)
	}
}

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(doer transport.Doer) Option {
	return func(m *Middleware) {
		m.doer = doer
	}
}

// WithPolicy replaces the feedback delivery policy.
func WithPolicy(p delivery.Policy) Option {
	return func(m *Middleware) {
		m.policy = p
	}
}

// WithSleep replaces the wait between delivery attempts, used in tests.
func WithSleep(fn delivery.SleepFunc) Option {
	return func(m *Middleware) {
		m.sleep = fn
	}
}

// New returns Middleware configured from the environment and the options.
func New(opts ...Option) *Middleware {
	m := &Middleware{
		cfg:    *config.FromEnv(),
		policy: delivery.MiddlewarePolicy(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.cfg.APIURL == "" {
		m.cfg.APIURL = config.DefaultAPIURL
	}
	if m.doer == nil {
		hc, err := transport.New(m.cfg.Transport())
		if err != nil {
			logger.KV(xlog.WARNING, "reason", "transport", "err", err.Error())
			m.doer = transport.Shared()
		} else {
			m.doer = hc
		}
	}

	m.reporter = heartbeat.New(heartbeat.FromConfig(&m.cfg, m.toolNames), m.doer)
	m.sender = delivery.New(m.doer, m.policy).WithSleep(m.sleep)
	return m
}

// StartMiddleware creates and starts the Middleware.
// The Middleware is returned with the error when the heartbeat could not start,
// feedback can still be sent.
func StartMiddleware(ctx context.Context, toolNames []string, opts ...Option) (*Middleware, error) {
	m := New(append(opts, WithToolNames(toolNames...))...)
	if err := m.Start(ctx); err != nil {
		return m, err
	}
	return m, nil
}

// Config returns the effective configuration.
func (m *Middleware) Config() config.Config {
	return m.cfg
}

// Reporter returns the heartbeat reporter.
func (m *Middleware) Reporter() *heartbeat.Reporter {
	return m.reporter
}

// Start starts the heartbeat loop.
func (m *Middleware) Start(ctx context.Context) error {
	if err := m.reporter.Start(ctx); err != nil {
		return err
	}
	logger.ContextKV(ctx, xlog.INFO, "status", "started", "server", m.cfg.ServerSlug)
	return nil
}

// Stop stops the heartbeat loop.
func (m *Middleware) Stop() {
	m.reporter.Stop()
}

// SetToolNames replaces the tool inventory reported by heartbeats.
func (m *Middleware) SetToolNames(names []string) {
	m.reporter.SetToolNames(names)
}

// SendFeedback sends the feedback fields as provided, with server_slug added,
// and returns the decoded response of the server.
// nil is returned when the feedback was not delivered.
func (m *Middleware) SendFeedback(ctx context.Context, fb map[string]any) map[string]any {
	if fb == nil {
		fb = map[string]any{}
	}
	payload, err := json.Marshal(fb)
	if err == nil {
		payload, err = sjson.SetBytes(payload, "server_slug", m.cfg.ServerSlug)
	}
	if err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"tag", m.sender.Policy().FallbackTag,
			"reason", "marshal:"+err.Error(),
		)
		return nil
	}

	res := m.sender.Deliver(ctx, &delivery.Request{
		URL:     m.cfg.APIURL + FeedbackPath,
		APIKey:  m.cfg.APIKey,
		Payload: payload,
	})
	if res.Outcome != delivery.Delivered {
		return nil
	}

	out := map[string]any{}
	if len(res.Body) > 0 {
		if err := json.Unmarshal(res.Body, &out); err != nil {
			logger.ContextKV(ctx, xlog.DEBUG, "reason", "decode", "err", err.Error())
			out = map[string]any{}
		}
	}
	return out
}
