package heartbeat_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/patchwork/delivery"
	"github.com/effective-security/patchwork/heartbeat"
	"github.com/effective-security/patchwork/internal/logcapture"
	"github.com/effective-security/patchwork/mocks/mocktransport"
	"github.com/effective-security/patchwork/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type collector struct {
	*httptest.Server

	lock     sync.Mutex
	status   int
	payloads []heartbeat.Payload
	auth     []string
}

func newCollector(t *testing.T, status int) *collector {
	c := &collector{status: status}
	c.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, heartbeat.Path, r.URL.Path)

		var p heartbeat.Payload
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))

		c.lock.Lock()
		c.payloads = append(c.payloads, p)
		c.auth = append(c.auth, r.Header.Get("Authorization"))
		status := c.status
		c.lock.Unlock()

		w.WriteHeader(status)
	}))
	t.Cleanup(c.Close)
	return c
}

func (c *collector) count() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.payloads)
}

func (c *collector) last() (heartbeat.Payload, string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	i := len(c.payloads) - 1
	return c.payloads[i], c.auth[i]
}

func TestStart_MissingConfiguration(t *testing.T) {
	logs := logcapture.Capture(t)
	ctrl := gomock.NewController(t)
	// no calls are expected
	doer := mocktransport.NewMockDoer(ctrl)

	for _, cfg := range []heartbeat.Config{
		{ServerSlug: "srv"},
		{APIKey: "key"},
		{},
	} {
		r := heartbeat.New(cfg, doer)
		err := r.Start(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, delivery.ErrConfigurationMissing))
		assert.False(t, r.Running())
		r.Stop()
	}
	assert.Equal(t, 3, logs.Count("not_started"))
}

func TestReporter_Loop(t *testing.T) {
	logcapture.Capture(t)
	srv := newCollector(t, http.StatusOK)

	r := heartbeat.New(heartbeat.Config{
		BaseURL:    srv.URL + "/",
		APIKey:     "key",
		ServerSlug: "srv",
		ToolNames:  []string{"search", "export"},
		Interval:   20 * time.Millisecond,
		Timeout:    time.Second,
	}, srv.Client())

	require.NoError(t, r.Start(context.Background()))
	// second start is a no-op
	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Running())

	assert.Eventually(t, func() bool { return srv.count() >= 1 }, time.Second, 5*time.Millisecond)
	p, auth := srv.last()
	assert.Equal(t, "srv", p.ServerSlug)
	assert.Equal(t, 2, p.ToolCount)
	assert.Equal(t, []string{"search", "export"}, p.ToolNames)
	assert.Equal(t, "Bearer key", auth)

	r.SetToolNames([]string{"one"})
	assert.Eventually(t, func() bool {
		p, _ := srv.last()
		return p.ToolCount == 1
	}, time.Second, 5*time.Millisecond)

	r.Stop()
	assert.False(t, r.Running())
	// let a request canceled by Stop reach the handler
	time.Sleep(50 * time.Millisecond)
	sent := srv.count()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, sent, srv.count())

	// idempotent
	r.Stop()
}

func TestReporter_StopBeforeInterval(t *testing.T) {
	logcapture.Capture(t)
	srv := newCollector(t, http.StatusOK)

	r := heartbeat.New(heartbeat.Config{
		BaseURL:    srv.URL,
		APIKey:     "key",
		ServerSlug: "srv",
		Interval:   time.Hour,
	}, srv.Client())

	require.NoError(t, r.Start(context.Background()))
	assert.Eventually(t, func() bool { return srv.count() == 1 }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		r.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Equal(t, 1, srv.count())

	p, _ := srv.last()
	assert.Equal(t, 0, p.ToolCount)
	assert.NotNil(t, p.ToolNames)
}

func TestReporter_FailuresContinue(t *testing.T) {
	logs := logcapture.Capture(t)
	srv := newCollector(t, http.StatusInternalServerError)

	r := heartbeat.New(heartbeat.Config{
		BaseURL:    srv.URL,
		APIKey:     "key",
		ServerSlug: "srv",
		Interval:   10 * time.Millisecond,
	}, srv.Client())

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Eventually(t, func() bool { return srv.count() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, r.Running())
	assert.Contains(t, logs.String(), "heartbeat returned 500")
}

func TestReporter_ParentCanceled(t *testing.T) {
	logcapture.Capture(t)
	srv := newCollector(t, http.StatusOK)

	ctx, cancel := context.WithCancel(context.Background())
	r := heartbeat.New(heartbeat.Config{
		BaseURL:    srv.URL,
		APIKey:     "key",
		ServerSlug: "srv",
		Interval:   10 * time.Millisecond,
	}, srv.Client())
	require.NoError(t, r.Start(ctx))

	cancel()
	assert.Eventually(t, func() bool { return !r.Running() }, time.Second, 5*time.Millisecond)
	r.Stop()
}

func TestReporter_RestartAfterParentCanceled(t *testing.T) {
	logcapture.Capture(t)
	srv := newCollector(t, http.StatusOK)

	ctx, cancel := context.WithCancel(context.Background())
	r := heartbeat.New(heartbeat.Config{
		BaseURL:    srv.URL,
		APIKey:     "key",
		ServerSlug: "srv",
		Interval:   10 * time.Millisecond,
	}, srv.Client())
	require.NoError(t, r.Start(ctx))
	assert.Eventually(t, func() bool { return srv.count() >= 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.Eventually(t, func() bool { return !r.Running() }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Start(context.Background()))
	assert.True(t, r.Running())
	sent := srv.count()
	assert.Eventually(t, func() bool { return srv.count() > sent }, time.Second, 5*time.Millisecond)

	r.Stop()
	assert.False(t, r.Running())
}

func TestSendOnce_MissingConfiguration(t *testing.T) {
	ctrl := gomock.NewController(t)
	// no calls are expected
	doer := mocktransport.NewMockDoer(ctrl)

	for _, cfg := range []heartbeat.Config{
		{BaseURL: "http://localhost", ServerSlug: "srv"},
		{BaseURL: "http://localhost", APIKey: "key"},
		{},
	} {
		err := heartbeat.New(cfg, doer).SendOnce(context.Background())
		require.Error(t, err)
		assert.True(t, errors.Is(err, delivery.ErrConfigurationMissing))
	}
}

func TestSendOnce(t *testing.T) {
	srv := newCollector(t, http.StatusAccepted)
	r := heartbeat.New(heartbeat.Config{BaseURL: srv.URL, APIKey: "key", ServerSlug: "srv"}, srv.Client())
	require.NoError(t, r.SendOnce(context.Background()))

	srv.lock.Lock()
	srv.status = http.StatusUnauthorized
	srv.lock.Unlock()

	err := r.SendOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, delivery.ErrTerminalStatus))

	ctrl := gomock.NewController(t)
	doer := mocktransport.NewMockDoer(ctrl)
	doer.EXPECT().Do(gomock.Any()).Return(nil, errors.New("connection refused"))

	err = heartbeat.New(heartbeat.Config{APIKey: "key", ServerSlug: "srv"}, doer).SendOnce(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, delivery.ErrTransientNetwork))
}

func TestFromConfig(t *testing.T) {
	cfg := &config.Config{
		APIURL:                   "https://api.example.com",
		APIKey:                   "k",
		ServerSlug:               "s",
		HeartbeatIntervalSeconds: 5,
	}
	hc := heartbeat.FromConfig(cfg, []string{"a"})
	assert.Equal(t, "https://api.example.com", hc.BaseURL)
	assert.Equal(t, "k", hc.APIKey)
	assert.Equal(t, "s", hc.ServerSlug)
	assert.Equal(t, []string{"a"}, hc.ToolNames)
	assert.Equal(t, 5*time.Second, hc.Interval)
	assert.Equal(t, 10*time.Second, hc.Timeout)
}
