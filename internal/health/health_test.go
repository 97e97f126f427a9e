package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/promptpack/api-go/internal/config"
	"github.com/example/promptpack/api-go/internal/logging"
	"github.com/example/promptpack/api-go/internal/model"
)

// hangingServer accepts requests and never answers them.
func hangingServer(t *testing.T) *httptest.Server {
	t.Helper()
	done := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-done:
		}
	}))
	t.Cleanup(func() {
		close(done)
		srv.Close()
	})
	return srv
}

func statusServer(t *testing.T, code int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestCheckAllReportsEachCollaborator(t *testing.T) {
	ollama := statusServer(t, http.StatusOK, `{"version":"0.5.1"}`)
	frontend := statusServer(t, http.StatusNotFound, "")
	nginx := statusServer(t, http.StatusBadGateway, "")

	c := NewChecker(Config{Collaborators: []Collaborator{
		{Name: "ollama", URL: ollama.URL, Timeout: time.Second, ExpectOK: true, Info: true},
		{Name: "frontend", URL: frontend.URL, Timeout: time.Second},
		{Name: "nginx", URL: nginx.URL, Timeout: time.Second},
	}}, logging.Discard())

	report := c.CheckAll(context.Background())

	assert.True(t, report.Self)
	require.Len(t, report.Collaborators, 3)

	o := report.Collaborators["ollama"]
	assert.True(t, o.Reachable)
	assert.Equal(t, http.StatusOK, o.StatusCode)
	assert.Equal(t, map[string]any{"version": "0.5.1"}, o.Payload)

	assert.True(t, report.Collaborators["frontend"].Reachable, "4xx still counts as reachable")
	assert.False(t, report.Collaborators["nginx"].Reachable)
	assert.Equal(t, http.StatusBadGateway, report.Collaborators["nginx"].StatusCode)
}

func TestCheckAllExpectOKRejectsOtherStatuses(t *testing.T) {
	srv := statusServer(t, http.StatusNoContent, "")
	c := NewChecker(Config{Collaborators: []Collaborator{
		{Name: "strict", URL: srv.URL, Timeout: time.Second, ExpectOK: true},
	}}, logging.Discard())

	assert.False(t, c.CheckAll(context.Background()).Collaborators["strict"].Reachable)
}

func TestCheckAllBoundedBySlowestTimeout(t *testing.T) {
	hang := hangingServer(t)
	ok := statusServer(t, http.StatusOK, "")
	const timeout = 200 * time.Millisecond

	c := NewChecker(Config{Collaborators: []Collaborator{
		{Name: "dead", URL: hang.URL, Timeout: timeout},
		{Name: "dead2", URL: hang.URL, Timeout: timeout},
		{Name: "alive", URL: ok.URL, Timeout: timeout},
	}}, logging.Discard())

	start := time.Now()
	report := c.CheckAll(context.Background())
	elapsed := time.Since(start)

	assert.Less(t, elapsed, timeout+300*time.Millisecond, "probes must run in parallel")
	assert.False(t, report.Collaborators["dead"].Reachable)
	assert.Equal(t, model.ErrProbeTimeout.Error(), report.Collaborators["dead"].Error)
	assert.False(t, report.Collaborators["dead2"].Reachable)
	assert.True(t, report.Collaborators["alive"].Reachable)
}

func TestCheckAllUnreachable(t *testing.T) {
	c := NewChecker(Config{Collaborators: []Collaborator{
		{Name: "gone", URL: "http://127.0.0.1:1", Timeout: time.Second},
	}}, logging.Discard())

	res := c.CheckAll(context.Background()).Collaborators["gone"]
	assert.False(t, res.Reachable)
	assert.Equal(t, model.ErrProbeUnreachable.Error(), res.Error)
	assert.Zero(t, res.StatusCode)
}

func TestCheckAllNonJSONInfoPayloadIsIgnored(t *testing.T) {
	srv := statusServer(t, http.StatusOK, "<html>")
	c := NewChecker(Config{Collaborators: []Collaborator{
		{Name: "web", URL: srv.URL, Timeout: time.Second, Info: true},
	}}, logging.Discard())

	res := c.CheckAll(context.Background()).Collaborators["web"]
	assert.True(t, res.Reachable)
	assert.Nil(t, res.Payload)
}

func TestHealthReportJSON(t *testing.T) {
	ts := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	c := NewChecker(Config{Collaborators: []Collaborator{
		{Name: "ollama", URL: "http://127.0.0.1:1", Timeout: time.Second},
	}}, logging.Discard())
	c.now = func() time.Time { return ts }

	raw, err := json.Marshal(c.CheckAll(context.Background()))
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	assert.Equal(t, map[string]any{"ok": true}, body["backend"])
	assert.Equal(t, "2026-10-18T12:00:00Z", body["time"])
	ollama := body["ollama"].(map[string]any)
	assert.Equal(t, false, ollama["ok"])
	assert.NotContains(t, ollama, "version")
}

func TestFromConfig(t *testing.T) {
	cfg := config.Config{
		ProbeTimeout: 750 * time.Millisecond,
		Collaborators: []config.Collaborator{
			{Name: "ollama", URL: "http://ollama", Expect: config.ExpectOK, Info: true},
			{Name: "nginx", URL: "http://nginx", TimeoutMs: 100},
		},
	}
	got := FromConfig(cfg)
	assert.Equal(t, []Collaborator{
		{Name: "ollama", URL: "http://ollama", Timeout: 750 * time.Millisecond, ExpectOK: true, Info: true},
		{Name: "nginx", URL: "http://nginx", Timeout: 100 * time.Millisecond},
	}, got.Collaborators)
}
