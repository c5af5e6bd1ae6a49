// Package client sends feedback events to the collection service on behalf of the feedback tool.
//
// SendFeedback never fails: the returned message tells the agent whether the
// feedback was recorded, or logged locally because it could not be delivered.
package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/effective-security/patchwork/delivery"
	"github.com/effective-security/patchwork/feedback"
	"github.com/effective-security/patchwork/pkg/config"
	"github.com/effective-security/patchwork/pkg/transport"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/patchwork", "client")

// FeedbackPath is appended to the base URL
const FeedbackPath = "/api/v1/feedback/"

// Messages returned to the agent
const (
	MessageDelivered   = "Thank you. Your feedback has been recorded and will be used to improve this server's capabilities."
	MessageNotSent     = "Feedback could not be delivered and was logged. (Server returned %d)"
	MessageUnreachable = "Feedback could not be delivered and was logged. (Server unreachable)"
)

// Client delivers feedback events.
// Client is safe for concurrent use.
type Client struct {
	cfg    config.Config
	doer   transport.Doer
	policy delivery.Policy
	sleep  delivery.SleepFunc
	sender *delivery.Sender
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(doer transport.Doer) ClientOption {
	return func(c *Client) {
		c.doer = doer
	}
}

// WithPolicy replaces the delivery policy.
func WithPolicy(p delivery.Policy) ClientOption {
	return func(c *Client) {
		c.policy = p
	}
}

// WithSleep replaces the wait between attempts, used in tests.
func WithSleep(fn delivery.SleepFunc) ClientOption {
	return func(c *Client) {
		c.sleep = fn
	}
}

// New returns Client.
// If cfg is nil, the configuration is read from the environment.
func New(cfg *config.Config, opts ...ClientOption) *Client {
	if cfg == nil {
		cfg = config.FromEnv()
	}
	c := &Client{
		cfg:    *cfg,
		policy: delivery.ClientPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.doer == nil {
		hc, err := transport.New(c.cfg.Transport())
		if err != nil {
			logger.KV(xlog.WARNING, "reason", "transport", "err", err.Error())
			c.doer = transport.Shared()
		} else {
			c.doer = hc
		}
	}
	c.sender = delivery.New(c.doer, c.policy).WithSleep(c.sleep)
	return c
}

// Option overrides a configuration value for a single call.
type Option func(*callOptions)

type callOptions struct {
	baseURL    string
	apiKey     *string
	serverSlug string
}

// WithBaseURL overrides the base URL.
func WithBaseURL(u string) Option {
	return func(o *callOptions) {
		o.baseURL = u
	}
}

// WithAPIKey overrides the API key,
// an empty key disables the Authorization header.
func WithAPIKey(key string) Option {
	return func(o *callOptions) {
		o.apiKey = &key
	}
}

// WithServerSlug overrides the server slug.
func WithServerSlug(slug string) Option {
	return func(o *callOptions) {
		o.serverSlug = slug
	}
}

// SendFeedback sends the loosely typed tool arguments,
// and returns the message for the agent.
func (c *Client) SendFeedback(ctx context.Context, args map[string]any, opts ...Option) string {
	return c.Send(ctx, feedback.FromArguments(args), opts...)
}

// Send sends the feedback request, and returns the message for the agent.
func (c *Client) Send(ctx context.Context, req *feedback.Request, opts ...Option) string {
	res := c.Deliver(ctx, req, opts...)
	return Message(res)
}

// Deliver sends the feedback request, and returns the delivery result.
func (c *Client) Deliver(ctx context.Context, req *feedback.Request, opts ...Option) *delivery.Result {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}

	baseURL := config.TrimURL(values.StringsCoalesce(o.baseURL, c.cfg.URL, config.DefaultURL))
	apiKey := c.cfg.APIKey
	if o.apiKey != nil {
		apiKey = *o.apiKey
	}
	slug := values.StringsCoalesce(o.serverSlug, c.cfg.Slug())

	if req != nil {
		if err := req.Validate(); err != nil {
			// the server decides, values are sent as provided
			logger.ContextKV(ctx, xlog.DEBUG, "reason", "validate", "err", err.Error())
		}
	}

	ev := feedback.NewEvent(req, slug)
	payload, err := json.Marshal(ev)
	if err != nil {
		// not reachable with string fields
		return &delivery.Result{Outcome: delivery.LoggedFallback, Reason: "marshal:" + err.Error(), Err: err}
	}

	return c.sender.Deliver(ctx, &delivery.Request{
		URL:     baseURL + FeedbackPath,
		APIKey:  apiKey,
		Payload: payload,
	})
}

// Message returns the agent facing message for the delivery result.
func Message(res *delivery.Result) string {
	switch {
	case res.Outcome == delivery.Delivered:
		return MessageDelivered
	case res.StatusCode != 0:
		return fmt.Sprintf(MessageNotSent, res.StatusCode)
	default:
		return MessageUnreachable
	}
}
