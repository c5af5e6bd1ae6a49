package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/pkg/metricskey"
	"github.com/effective-security/patchwork/pkg/transport"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/patchwork", "delivery")

// maxResponseBody limits the response body kept on Result
const maxResponseBody = 1 << 20

// Outcome of a delivery
type Outcome int

const (
	// Delivered means the server accepted the payload
	Delivered Outcome = iota
	// LoggedFallback means the payload was written to the log instead
	LoggedFallback
)

// String returns the outcome name.
func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "logged_fallback"
}

// Result describes a completed delivery.
type Result struct {
	Outcome Outcome
	// StatusCode of the last response, or 0 if no response was received
	StatusCode int
	// Attempts made
	Attempts int
	// Body of the successful response
	Body []byte
	// Reason is the fallback reason: status_<code>, unreachable:<err> or canceled:<err>
	Reason string
	// Err is the classified error of the last attempt
	Err error
}

// Unreachable returns true if the fallback was caused by a transport error.
func (r *Result) Unreachable() bool {
	return r.Outcome == LoggedFallback && r.StatusCode == 0
}

// SleepFunc waits for d, or returns the context error.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Request is a single payload to deliver.
type Request struct {
	URL     string
	APIKey  string
	Payload []byte
}

// Sender delivers payloads according to the Policy.
// Sender is safe for concurrent use.
type Sender struct {
	client transport.Doer
	policy Policy
	sleep  SleepFunc
}

// New returns Sender
func New(client transport.Doer, policy Policy) *Sender {
	if client == nil {
		client = transport.Shared()
	}
	return &Sender{
		client: client,
		policy: policy.normalize(),
		sleep:  Sleep,
	}
}

// WithSleep replaces the wait between attempts.
func (s *Sender) WithSleep(fn SleepFunc) *Sender {
	if fn != nil {
		s.sleep = fn
	}
	return s
}

// Policy returns the delivery policy.
func (s *Sender) Policy() Policy {
	return s.policy
}

// Deliver sends the payload, retrying per the policy.
// The payload is logged with the fallback tag when it is not delivered.
func (s *Sender) Deliver(ctx context.Context, req *Request) *Result {
	started := time.Now()
	path := s.policy.Path
	defer metricskey.PerfFeedbackDelivery.MeasureSince(started, path)

	// the same key on every attempt lets the server drop duplicates
	idempotencyKey := uuid.NewString()

	res := &Result{Outcome: LoggedFallback}
	for attempt := 1; attempt <= s.policy.MaxAttempts; attempt++ {
		res.Attempts = attempt

		status, body, err := s.attempt(ctx, req, idempotencyKey)
		res.StatusCode = status
		res.Err = err

		if err == nil {
			res.Outcome = Delivered
			res.Body = body
			metricskey.StatsFeedbackDelivered.IncrCounter(1, path)
			logger.ContextKV(ctx, xlog.DEBUG,
				"status", "delivered",
				"path", path,
				"code", status,
				"attempts", attempt,
			)
			return res
		}

		if ctx.Err() != nil {
			res.Reason = "canceled:" + ctx.Err().Error()
			break
		}
		if status != 0 {
			res.Reason = fmt.Sprintf("status_%d", status)
		} else {
			res.Reason = "unreachable:" + errors.Cause(err).Error()
		}

		if !IsRetryable(err) || attempt == s.policy.MaxAttempts {
			break
		}

		wait := s.policy.Backoff(attempt)
		logger.ContextKV(ctx, xlog.DEBUG,
			"status", "retry",
			"path", path,
			"attempt", attempt,
			"wait", wait.String(),
			"err", err.Error(),
		)
		metricskey.StatsFeedbackRetried.IncrCounter(1, path)

		if serr := s.sleep(ctx, wait); serr != nil {
			res.Reason = "canceled:" + serr.Error()
			res.Err = errors.WithStack(serr)
			break
		}
	}

	s.fallback(ctx, req, res)
	return res
}

func (s *Sender) attempt(ctx context.Context, req *Request, idempotencyKey string) (int, []byte, error) {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return 0, nil, networkError(err)
	}
	SetHeaders(hreq, req.APIKey)
	hreq.Header.Set("Idempotency-Key", idempotencyKey)

	resp, err := s.client.Do(hreq)
	if err != nil {
		return 0, nil, networkError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"reason", "read_body",
			"status", resp.StatusCode,
			"read", len(body),
			"err", err.Error(),
		)
	}

	switch {
	case s.policy.IsSuccess(resp.StatusCode):
		return resp.StatusCode, body, nil
	case s.policy.IsRetryable(resp.StatusCode):
		return resp.StatusCode, nil, statusError(ErrRetryableStatus, resp.StatusCode)
	default:
		return resp.StatusCode, nil, statusError(ErrTerminalStatus, resp.StatusCode)
	}
}

func (s *Sender) fallback(ctx context.Context, req *Request, res *Result) {
	metricskey.StatsFeedbackFailed.IncrCounter(1, s.policy.Path)

	var payload bytes.Buffer
	if err := json.Compact(&payload, req.Payload); err != nil {
		payload.Reset()
		payload.Write(req.Payload)
	}

	logger.ContextKV(ctx, xlog.WARNING,
		"tag", s.policy.FallbackTag,
		"reason", res.Reason,
		"attempts", res.Attempts,
		"payload", payload.String(),
	)
}

// SetHeaders sets the headers of the collection service requests,
// Authorization is set only when apiKey is not empty.
func SetHeaders(r *http.Request, apiKey string) {
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("User-Agent", transport.UserAgent)
	if apiKey != "" {
		r.Header.Set("Authorization", "Bearer "+apiKey)
	}
}
