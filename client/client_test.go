package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/client"
	"github.com/effective-security/patchwork/delivery"
	"github.com/effective-security/patchwork/feedback"
	"github.com/effective-security/patchwork/internal/logcapture"
	"github.com/effective-security/patchwork/mocks/mocktransport"
	"github.com/effective-security/patchwork/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type server struct {
	*httptest.Server

	lock    sync.Mutex
	status  int
	calls   int
	headers []http.Header
	events  []map[string]any
}

func newServer(t *testing.T, status int) *server {
	s := &server{status: status}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, client.FeedbackPath, r.URL.Path)

		var ev map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&ev))

		s.lock.Lock()
		s.calls++
		s.headers = append(s.headers, r.Header.Clone())
		s.events = append(s.events, ev)
		status := s.status
		s.lock.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *server) count() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.calls
}

func (s *server) header(i int) http.Header {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.headers[i]
}

func (s *server) event(i int) map[string]any {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.events[i]
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}

func TestSendFeedback_Delivered(t *testing.T) {
	logs := logcapture.Capture(t)
	srv := newServer(t, http.StatusCreated)

	c := client.New(&config.Config{
		URL:        srv.URL + "/",
		APIKey:     "team-key",
		ServerSlug: "acme",
	}, client.WithSleep(noSleep))

	msg := c.SendFeedback(context.Background(), map[string]any{
		"what_i_needed":   "bulk export",
		"what_i_tried":    "export",
		"tools_available": `["export","list"]`,
	})
	assert.Equal(t, client.MessageDelivered, msg)
	assert.Equal(t, "Thank you. Your feedback has been recorded and will be used to improve this server's capabilities.", msg)

	require.Equal(t, 1, srv.count())
	assert.Equal(t, "Bearer team-key", srv.header(0).Get("Authorization"))
	ev := srv.event(0)
	assert.Equal(t, "acme", ev["server_slug"])
	assert.Equal(t, "bulk export", ev["what_i_needed"])
	assert.Equal(t, "other", ev["gap_type"])
	assert.Equal(t, []any{"export", "list"}, ev["tools_available"])
	assert.Equal(t, "", ev["suggestion"])
	assert.Len(t, ev, 11)
	assert.Equal(t, 0, logs.Count(delivery.ClientFallbackTag))
}

func TestSend_Overrides(t *testing.T) {
	logcapture.Capture(t)
	srv := newServer(t, http.StatusCreated)

	c := client.New(&config.Config{
		URL:        "http://localhost:1",
		APIKey:     "team-key",
		ServerSlug: "acme",
	}, client.WithSleep(noSleep))

	msg := c.Send(context.Background(),
		&feedback.Request{WhatINeeded: "a", WhatITried: "b"},
		client.WithBaseURL(srv.URL+"//"),
		client.WithAPIKey(""),
		client.WithServerSlug("override"),
	)
	assert.Equal(t, client.MessageDelivered, msg)
	require.Equal(t, 1, srv.count())
	assert.Empty(t, srv.header(0).Get("Authorization"))
	assert.Equal(t, "override", srv.event(0)["server_slug"])

	msg = c.Send(context.Background(),
		&feedback.Request{WhatINeeded: "a", WhatITried: "b"},
		client.WithBaseURL(srv.URL),
		client.WithAPIKey("call-key"),
	)
	assert.Equal(t, client.MessageDelivered, msg)
	assert.Equal(t, "Bearer call-key", srv.header(1).Get("Authorization"))
	assert.Equal(t, "acme", srv.event(1)["server_slug"])
}

func TestSend_UnknownSlug(t *testing.T) {
	logcapture.Capture(t)
	t.Setenv(config.EnvServerSlug, "")
	t.Setenv(config.EnvAPIKey, "")
	srv := newServer(t, http.StatusCreated)
	t.Setenv(config.EnvURL, srv.URL)

	c := client.New(nil, client.WithSleep(noSleep))
	msg := c.Send(context.Background(), &feedback.Request{WhatINeeded: "a", WhatITried: "b"})
	assert.Equal(t, client.MessageDelivered, msg)
	assert.Equal(t, "unknown", srv.event(0)["server_slug"])
	assert.Empty(t, srv.header(0).Get("Authorization"))
}

func TestSend_ServerError(t *testing.T) {
	logs := logcapture.Capture(t)
	srv := newServer(t, http.StatusServiceUnavailable)

	c := client.New(&config.Config{URL: srv.URL}, client.WithSleep(noSleep))
	msg := c.Send(context.Background(), &feedback.Request{WhatINeeded: "a", WhatITried: "b"})
	assert.Equal(t, "Feedback could not be delivered and was logged. (Server returned 503)", msg)
	assert.Equal(t, 3, srv.count())
	assert.Equal(t, 1, logs.Count(delivery.ClientFallbackTag))
}

func TestSend_Terminal(t *testing.T) {
	logs := logcapture.Capture(t)
	srv := newServer(t, http.StatusNotFound)

	c := client.New(&config.Config{URL: srv.URL}, client.WithSleep(noSleep))
	msg := c.Send(context.Background(), &feedback.Request{WhatINeeded: "a", WhatITried: "b"})
	assert.Equal(t, "Feedback could not be delivered and was logged. (Server returned 404)", msg)
	assert.Equal(t, 1, srv.count())
	assert.Equal(t, 1, logs.Count(delivery.ClientFallbackTag))
}

func TestSend_Unreachable(t *testing.T) {
	logs := logcapture.Capture(t)
	ctrl := gomock.NewController(t)
	doer := mocktransport.NewMockDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Return(nil, errors.New("dial tcp: connection refused")).Times(3)

	c := client.New(&config.Config{URL: "http://localhost:1"},
		client.WithHTTPClient(doer),
		client.WithSleep(noSleep),
	)
	msg := c.Send(context.Background(), &feedback.Request{WhatINeeded: "a", WhatITried: "b"})
	assert.Equal(t, client.MessageUnreachable, msg)
	assert.Equal(t, "Feedback could not be delivered and was logged. (Server unreachable)", msg)

	out := logs.String()
	assert.Equal(t, 1, logs.Count(delivery.ClientFallbackTag), out)
	assert.Contains(t, out, "unreachable:dial tcp: connection refused")
}

func TestSend_VerbatimValues(t *testing.T) {
	logcapture.Capture(t)
	srv := newServer(t, http.StatusCreated)
	c := client.New(&config.Config{URL: srv.URL}, client.WithSleep(noSleep))

	for i := range 10 {
		req := feedback.Request{}.Fake().(*feedback.Request)
		req.WhatINeeded = "  " + req.WhatINeeded + "\n"

		msg := c.Send(context.Background(), req)
		require.Equal(t, client.MessageDelivered, msg)

		ev := srv.event(i)
		assert.Equal(t, req.WhatINeeded, ev["what_i_needed"])
		assert.Equal(t, req.WhatITried, ev["what_i_tried"])
		assert.Equal(t, string(req.GapType), ev["gap_type"])
		assert.Equal(t, string(req.Resolution), ev["resolution"])
		assert.Equal(t, req.SessionID, ev["session_id"])
	}
}

func TestMessage(t *testing.T) {
	assert.Equal(t, client.MessageDelivered, client.Message(&delivery.Result{Outcome: delivery.Delivered, StatusCode: 201}))
	assert.Equal(t, "Feedback could not be delivered and was logged. (Server returned 429)",
		client.Message(&delivery.Result{Outcome: delivery.LoggedFallback, StatusCode: 429}))
	assert.Equal(t, client.MessageUnreachable, client.Message(&delivery.Result{Outcome: delivery.LoggedFallback}))
}
