// Package lokiq queries Loki with LogQL over a lookback window.
package lokiq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultTimeout = 15 * time.Second
	DefaultLimit   = 20
	DefaultSince   = 5 * time.Minute
)

// Entry is one log line with its stream labels, timestamp in nanoseconds.
type Entry struct {
	Timestamp string
	Labels    map[string]string
	Line      string
}

// Client is a Loki query_range client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given Loki base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
}

type queryResponse struct {
	Status string `json:"status"`
	Data   struct {
		ResultType string `json:"resultType"`
		Result     []struct {
			Stream map[string]string `json:"stream"`
			Values [][]string        `json:"values"`
		} `json:"result"`
	} `json:"data"`
}

// Query returns up to limit entries matching the LogQL expression within the
// lookback window, newest first.
func (c *Client) Query(ctx context.Context, logql string, limit int, since time.Duration) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if since <= 0 {
		since = DefaultSince
	}

	params := url.Values{
		"query": {logql},
		"limit": {strconv.Itoa(limit)},
		"since": {since.String()},
	}
	u := fmt.Sprintf("%s/loki/api/v1/query_range?%s", c.baseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loki API %d: %s", resp.StatusCode, string(body))
	}

	var parsed queryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	var entries []Entry
	for _, stream := range parsed.Data.Result {
		for _, v := range stream.Values {
			if len(v) != 2 {
				continue
			}
			entries = append(entries, Entry{Timestamp: v[0], Labels: stream.Stream, Line: v[1]})
		}
	}

	// Nanosecond timestamps are fixed width in practice, so a string sort
	// orders them correctly.
	sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp > entries[j].Timestamp })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// FormatEntries renders log entries into compact text for model consumption.
func FormatEntries(entries []Entry) string {
	if len(entries) == 0 {
		return "no log entries found"
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		ns := labelOr(e.Labels, "k8s_namespace_name", "?")
		pod := labelOr(e.Labels, "k8s_pod_name", "?")
		line := e.Line
		if len(line) > 200 {
			line = line[:200]
		}
		lines = append(lines, fmt.Sprintf("[%s/%s] %s", ns, pod, line))
	}
	return strings.Join(lines, "\n")
}

func labelOr(labels map[string]string, key, fallback string) string {
	if v, ok := labels[key]; ok && v != "" {
		return v
	}
	return fallback
}
