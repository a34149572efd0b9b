package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modlens/modlens/internal/core"
)

func newTestClient(handler http.HandlerFunc) (*WorkshopClient, func()) {
	server := httptest.NewServer(handler)
	client := &WorkshopClient{
		Client:  server.Client(),
		BaseURL: server.URL,
		APIKey:  "test-key",
	}
	return client, server.Close
}

func TestWorkshopFetchSuccess(t *testing.T) {
	var gotQuery string
	client, cleanup := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"response": {
				"publishedfiledetails": [{
					"result": 1,
					"title": "Better Roads",
					"description": "Improved road textures",
					"file_size": 1048576,
					"time_updated": 1767225600,
					"subscriptions": 1200,
					"tags": [{"tag": "roads"}, {"tag": "textures"}]
				}]
			}
		}`))
	})
	defer cleanup()

	payload, err := client.FetchOne(context.Background(), "2001")
	require.NoError(t, err)
	require.Equal(t, "2001", payload.Key)
	require.Equal(t, "Better Roads", payload.Title)
	require.Equal(t, int64(1048576), payload.FileSize)
	require.NotNil(t, payload.UpdatedAt)
	require.Equal(t, []string{"roads", "textures"}, payload.Extra["tags"])
	require.Equal(t, int64(1200), payload.Extra["subscriptions"])

	require.Contains(t, gotQuery, "publishedfileid=2001")
	require.Contains(t, gotQuery, "key=test-key")
}

func TestWorkshopFetchResultCodeFailure(t *testing.T) {
	client, cleanup := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"response": {"publishedfiledetails": [{"result": 9}]}}`))
	})
	defer cleanup()

	_, err := client.FetchOne(context.Background(), "2001")
	var upstream *core.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, core.ErrorKindPermanent, upstream.Kind)
}

func TestWorkshopFetchThrottled(t *testing.T) {
	client, cleanup := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	defer cleanup()

	_, err := client.FetchOne(context.Background(), "2001")
	var upstream *core.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, core.ErrorKindRateLimited, upstream.Kind)
	require.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	require.Contains(t, upstream.Message, "30s")
	require.True(t, core.IsRetryable(err))
}

func TestWorkshopFetchNotFound(t *testing.T) {
	client, cleanup := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	defer cleanup()

	_, err := client.FetchOne(context.Background(), "9999")
	var upstream *core.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, core.ErrorKindPermanent, upstream.Kind)
	require.False(t, core.IsRetryable(err))
}

func TestWorkshopFetchServerError(t *testing.T) {
	client, cleanup := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer cleanup()

	_, err := client.FetchOne(context.Background(), "2001")
	var upstream *core.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, core.ErrorKindTransient, upstream.Kind)
	require.True(t, core.IsRetryable(err))
}

func TestWorkshopFetchNetworkError(t *testing.T) {
	client := &WorkshopClient{BaseURL: "http://127.0.0.1:1"}

	_, err := client.FetchOne(context.Background(), "2001")
	var upstream *core.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, core.ErrorKindTransient, upstream.Kind)
}

func TestWorkshopFetchEmptyKey(t *testing.T) {
	client := &WorkshopClient{}

	_, err := client.FetchOne(context.Background(), "  ")
	var upstream *core.UpstreamError
	require.ErrorAs(t, err, &upstream)
	require.Equal(t, core.ErrorKindPermanent, upstream.Kind)
}

func TestRetryAfterHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	require.Zero(t, retryAfterHeader(resp))

	resp.Header.Set("Retry-After", "42")
	require.Equal(t, 42, int(retryAfterHeader(resp).Seconds()))

	resp.Header.Set("Retry-After", "not-a-number")
	require.Zero(t, retryAfterHeader(resp))
}

func TestUpstreamErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &core.UpstreamError{Kind: core.ErrorKindTransient, Message: "request failed", Err: inner}
	require.ErrorIs(t, err, inner)
}
