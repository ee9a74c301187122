package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arden/peercall/internal/app"
	"github.com/arden/peercall/internal/config"
	"github.com/arden/peercall/internal/core"
	"github.com/arden/peercall/internal/domain"
	"github.com/arden/peercall/internal/media"
)

type nopSender struct{}

func (nopSender) Send(domain.Envelope) error { return nil }
func (nopSender) Close()                     {}

type nopProvider struct{}

func (nopProvider) Acquire(context.Context, media.Constraints) (*media.Bundle, error) {
	return media.NewBundle(nil, func() {}), nil
}

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	orch := app.NewOrchestrator(context.Background(), app.OrchestratorConfig{
		LocalID:     "a1",
		Provider:    nopProvider{},
		Sender:      nopSender{},
		NewLink:     func() (core.MediaLink, error) { return nil, nil },
		Constraints: media.DefaultConstraints(),
	})
	t.Cleanup(orch.PeerGone)
	return SetupRouter(&config.Config{Mode: "release"}, orch)
}

func TestStatusEndpoint(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var snap app.StatusSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, core.StatusIdle, snap.Status)
	assert.Empty(t, snap.LastError)
}

func TestControlEndpoints(t *testing.T) {
	r := testRouter(t)

	// No media bundle yet: toggles report disabled.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/controls/mic", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"micEnabled":false}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/controls/video", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"videoEnabled":false}`, w.Body.String())
}

func TestRestartEndpoint(t *testing.T) {
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/restart", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
}
