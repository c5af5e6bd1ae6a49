// Package heartbeat reports server liveness and its tool inventory to the collection service.
package heartbeat

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/delivery"
	"github.com/effective-security/patchwork/pkg/config"
	"github.com/effective-security/patchwork/pkg/metricskey"
	"github.com/effective-security/patchwork/pkg/transport"
	"github.com/effective-security/x/values"
	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/patchwork", "heartbeat")

// Path is appended to the base URL
const Path = "/api/v1/heartbeat/"

// Payload is the heartbeat request body.
type Payload struct {
	ServerSlug string   `json:"server_slug"`
	ToolCount  int      `json:"tool_count"`
	ToolNames  []string `json:"tool_names"`
}

// Config of the Reporter
type Config struct {
	BaseURL    string
	APIKey     string
	ServerSlug string
	ToolNames  []string
	// Interval between heartbeats, 60s by default
	Interval time.Duration
	// Timeout of a single heartbeat request, 10s by default
	Timeout time.Duration
}

// FromConfig returns the reporter configuration.
func FromConfig(cfg *config.Config, toolNames []string) Config {
	return Config{
		BaseURL:    cfg.APIURL,
		APIKey:     cfg.APIKey,
		ServerSlug: cfg.ServerSlug,
		ToolNames:  toolNames,
		Interval:   cfg.HeartbeatInterval(),
		Timeout:    cfg.HeartbeatTimeout(),
	}
}

// Reporter sends periodic heartbeats in the background.
type Reporter struct {
	client  transport.Doer
	baseURL string
	apiKey  string
	slug    string

	interval time.Duration
	timeout  time.Duration

	lock      sync.Mutex
	toolNames []string
	cancel    context.CancelFunc
	done      chan struct{}
}

// New returns Reporter.
// If client is nil, the shared HTTP client is used.
func New(cfg Config, client transport.Doer) *Reporter {
	if client == nil {
		client = transport.Shared()
	}
	return &Reporter{
		client:    client,
		baseURL:   config.TrimURL(values.StringsCoalesce(cfg.BaseURL, config.DefaultAPIURL)),
		apiKey:    cfg.APIKey,
		slug:      cfg.ServerSlug,
		interval:  defaultDuration(cfg.Interval, config.DefaultHeartbeatIntervalSeconds*time.Second),
		timeout:   defaultDuration(cfg.Timeout, config.DefaultHeartbeatTimeoutSeconds*time.Second),
		toolNames: slices.Clone(cfg.ToolNames),
	}
}

// SetToolNames replaces the tool inventory reported by the next heartbeat.
func (r *Reporter) SetToolNames(names []string) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.toolNames = slices.Clone(names)
}

// Payload returns the body of the next heartbeat.
func (r *Reporter) Payload() *Payload {
	r.lock.Lock()
	defer r.lock.Unlock()
	names := slices.Clone(r.toolNames)
	if names == nil {
		names = []string{}
	}
	return &Payload{
		ServerSlug: r.slug,
		ToolCount:  len(names),
		ToolNames:  names,
	}
}

// Start begins sending heartbeats: the first one immediately,
// then every interval until Stop is called or ctx is done.
// Start returns an error wrapping delivery.ErrConfigurationMissing without
// sending anything if the API key or the server slug is not configured.
func (r *Reporter) Start(ctx context.Context) error {
	if err := r.checkConfig(); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"reason", "not_started",
			"api_key_set", r.apiKey != "",
			"server_slug_set", r.slug != "",
		)
		return err
	}

	r.lock.Lock()
	if r.cancel != nil {
		select {
		case <-r.done:
			// the loop exited with its parent context
			r.cancel()
		default:
			r.lock.Unlock()
			return nil
		}
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.lock.Unlock()

	logger.ContextKV(ctx, xlog.INFO,
		"status", "started",
		"server", r.slug,
		"interval", r.interval.String(),
	)

	go r.run(loopCtx, done)
	return nil
}

func (r *Reporter) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := r.SendOnce(ctx); err != nil {
			logger.ContextKV(ctx, xlog.DEBUG, "reason", "send", "err", err.Error())
		}
		timer.Reset(r.interval)
	}
}

// Stop cancels the loop and waits for it to exit,
// no heartbeat is sent after Stop returns.
// Stop is safe to call multiple times.
func (r *Reporter) Stop() {
	r.lock.Lock()
	cancel := r.cancel
	done := r.done
	r.cancel = nil
	r.done = nil
	r.lock.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	logger.KV(xlog.INFO, "status", "stopped", "server", r.slug)
}

// Running returns true if the loop is active.
func (r *Reporter) Running() bool {
	r.lock.Lock()
	done := r.done
	r.lock.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

func (r *Reporter) checkConfig() error {
	if r.apiKey == "" || r.slug == "" {
		return errors.Wrap(delivery.ErrConfigurationMissing, "heartbeat requires API key and server slug")
	}
	return nil
}

// SendOnce sends a single heartbeat.
// It returns an error wrapping delivery.ErrConfigurationMissing without
// sending anything if the API key or the server slug is not configured.
func (r *Reporter) SendOnce(ctx context.Context) error {
	if err := r.checkConfig(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	body, err := json.Marshal(r.Payload())
	if err != nil {
		return errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+Path, bytes.NewReader(body))
	if err != nil {
		return errors.WithStack(err)
	}
	delivery.SetHeaders(req, r.apiKey)

	resp, err := r.client.Do(req)
	if err != nil {
		metricskey.StatsHeartbeatFailed.IncrCounter(1, r.slug)
		return errors.Mark(errors.Wrap(err, "heartbeat failed"), delivery.ErrTransientNetwork)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if !delivery.Is2xx(resp.StatusCode) {
		metricskey.StatsHeartbeatFailed.IncrCounter(1, r.slug)
		return errors.Mark(errors.Errorf("heartbeat returned %d", resp.StatusCode), delivery.ErrTerminalStatus)
	}

	metricskey.StatsHeartbeatSent.IncrCounter(1, r.slug)
	return nil
}

func defaultDuration(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
