package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/modlens/modlens/internal/core"
)

const detailsPath = "/published-file/v1/details"

// WorkshopClient fetches published-file metadata for a single mod key from a
// Workshop-style HTTP API. It implements the engine's Fetcher contract.
type WorkshopClient struct {
	Client  *http.Client
	BaseURL string
	APIKey  string
}

// FetchOne retrieves metadata for key. Failures are classified so the
// scheduler can tell transient errors (retried with backoff) from permanent
// ones (recorded, not retried) and from upstream throttling.
func (c *WorkshopClient) FetchOne(ctx context.Context, key string) (*core.ModPayload, error) {
	if c == nil {
		return nil, errors.New("workshop client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	value := strings.TrimSpace(key)
	if value == "" {
		return nil, &core.UpstreamError{Kind: core.ErrorKindPermanent, Message: "mod key is required"}
	}

	base := c.baseURL()
	endpoint := base.ResolveReference(&url.URL{Path: detailsPath})
	query := endpoint.Query()
	query.Set("publishedfileid", value)
	if c.APIKey != "" {
		query.Set("key", c.APIKey)
	}
	endpoint.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, &core.UpstreamError{Kind: core.ErrorKindPermanent, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")

	client := c.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &core.UpstreamError{Kind: core.ErrorKindTransient, Message: "workshop request failed", Err: err}
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup on HTTP response body

	switch {
	case resp.StatusCode == http.StatusOK:
		return c.parsePayload(value, resp)
	case resp.StatusCode == http.StatusTooManyRequests:
		wait := retryAfterHeader(resp)
		return nil, &core.UpstreamError{
			Kind:       core.ErrorKindRateLimited,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("workshop throttled, retry in %s", wait.Round(time.Second)),
		}
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden:
		return nil, &core.UpstreamError{
			Kind:       core.ErrorKindPermanent,
			StatusCode: resp.StatusCode,
			Message:    "workshop rejected request",
		}
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, &core.UpstreamError{
			Kind:       core.ErrorKindTransient,
			StatusCode: resp.StatusCode,
			Message:    "workshop server error",
		}
	default:
		return nil, &core.UpstreamError{
			Kind:       core.ErrorKindTransient,
			StatusCode: resp.StatusCode,
			Message:    "unexpected workshop response",
		}
	}
}

func (c *WorkshopClient) parsePayload(key string, resp *http.Response) (*core.ModPayload, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &core.UpstreamError{Kind: core.ErrorKindTransient, Message: "read workshop response", Err: err}
	}

	doc := gjson.GetBytes(body, "response.publishedfiledetails.0")
	if !doc.Exists() {
		doc = gjson.ParseBytes(body)
	}

	// Some deployments report per-item failure inside a 200 envelope.
	if result := doc.Get("result"); result.Exists() && result.Int() != 1 {
		return nil, &core.UpstreamError{
			Kind:       core.ErrorKindPermanent,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("workshop result code %d", result.Int()),
		}
	}

	payload := &core.ModPayload{
		Key:         key,
		Title:       doc.Get("title").String(),
		Description: doc.Get("description").String(),
		FileSize:    doc.Get("file_size").Int(),
	}

	if updated := doc.Get("time_updated"); updated.Exists() && updated.Int() > 0 {
		ts := time.Unix(updated.Int(), 0).UTC()
		payload.UpdatedAt = &ts
	}

	extra := map[string]any{}
	if tags := doc.Get("tags.#.tag"); tags.Exists() {
		values := make([]string, 0, len(tags.Array()))
		for _, tag := range tags.Array() {
			if tag.String() != "" {
				values = append(values, tag.String())
			}
		}
		if len(values) > 0 {
			extra["tags"] = values
		}
	}
	if subs := doc.Get("subscriptions"); subs.Exists() {
		extra["subscriptions"] = subs.Int()
	}
	if len(extra) > 0 {
		payload.Extra = extra
	}

	return payload, nil
}

func (c *WorkshopClient) baseURL() *url.URL {
	if c != nil && c.BaseURL != "" {
		if parsed, err := url.Parse(c.BaseURL); err == nil {
			return parsed
		}
	}
	parsed, _ := url.Parse("https://api.steampowered.com")
	return parsed
}

func retryAfterHeader(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}

	value := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
