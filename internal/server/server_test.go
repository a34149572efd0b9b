package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/modlens/modlens/internal/core"
	"github.com/modlens/modlens/internal/core/engine"
	"github.com/modlens/modlens/internal/server/handlers"
)

type stubFetcher struct{}

func (stubFetcher) FetchOne(ctx context.Context, key string) (*core.ModPayload, error) {
	return &core.ModPayload{Key: key, Title: "Stub " + key}, nil
}

func newTestServer(t *testing.T) (*Server, *engine.SyncController) {
	t.Helper()

	scheduler := &engine.FetchScheduler{
		Bucket:        engine.NewTokenBucket(10, 1),
		Cache:         engine.NewMetadataCache(),
		Upstream:      stubFetcher{},
		TTL:           time.Minute,
		SweepInterval: time.Minute,
	}
	controller := engine.NewSyncController(scheduler, time.Minute)
	t.Cleanup(controller.Stop)

	srv := New("localhost", 0, controller, handlers.NewHealthManager("test"))
	return srv, controller
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestBackgroundFetchStatusEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/background-fetch", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			IsRunning   bool `json:"isRunning"`
			TokenBucket struct {
				Tokens              float64 `json:"tokens"`
				Capacity            int     `json:"capacity"`
				RefillRatePerSecond float64 `json:"refillRatePerSecond"`
			} `json:"tokenBucket"`
			CanMakeRequest bool `json:"canMakeRequest"`
			RateLimited    bool `json:"rateLimited"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))

	require.True(t, body.Success)
	require.False(t, body.Data.IsRunning)
	require.Equal(t, 10, body.Data.TokenBucket.Capacity)
	require.Equal(t, float64(1), body.Data.TokenBucket.RefillRatePerSecond)
	require.True(t, body.Data.CanMakeRequest)
	require.False(t, body.Data.RateLimited)
}

func TestBackgroundFetchStartStop(t *testing.T) {
	srv, controller := newTestServer(t)

	rec := doRequest(srv, http.MethodPost, "/background-fetch", `{"action":"start"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var started struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	require.True(t, started.Success)
	require.NotEmpty(t, started.Message)
	require.True(t, controller.Status().Running)

	// Starting twice is a no-op.
	rec = doRequest(srv, http.MethodPost, "/background-fetch", `{"action":"start"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, controller.Status().Running)

	rec = doRequest(srv, http.MethodPost, "/background-fetch", `{"action":"stop"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.False(t, controller.Status().Running)
}

func TestBackgroundFetchInvalidAction(t *testing.T) {
	srv, controller := newTestServer(t)

	controller.Start()
	require.True(t, controller.Status().Running)

	rec := doRequest(srv, http.MethodPost, "/background-fetch", `{"action":"bogus"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
	require.Contains(t, body.Error, "Invalid action")

	require.True(t, controller.Status().Running, "a rejected action must not change running state")
}

func TestBackgroundFetchMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodDelete, "/background-fetch", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, "GET, POST", rec.Header().Get("Allow"))

	var body struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.Success)
}

func TestModsUnknownKeyAnswersPending(t *testing.T) {
	srv, controller := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/mods/3000", "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	var body struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)

	// The triggered on-demand fetch resolves shortly after.
	require.Eventually(t, func() bool {
		record := controller.Record("3000")
		return record != nil && record.FetchState == core.FetchStateFresh
	}, 2*time.Second, 5*time.Millisecond)

	rec = doRequest(srv, http.MethodGet, "/mods/3000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Stub 3000")
}

func TestNotFoundEnvelope(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/does-not-exist", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")
}

func TestVersionEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_version")
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(srv, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "healthy")
}
