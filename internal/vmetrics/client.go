// Package vmetrics queries VictoriaMetrics with PromQL instant queries.
package vmetrics

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

const DefaultTimeout = 10 * time.Second

// Sample is one vector element of an instant query result. Value keeps the
// wire string; use Float for numeric comparisons.
type Sample struct {
	Labels map[string]string
	Value  string
}

// Float parses the sample value.
func (s Sample) Float() (float64, error) {
	return strconv.ParseFloat(s.Value, 64)
}

// Client is a VictoriaMetrics instant-query client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given VictoriaMetrics base URL.
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
			Metric map[string]string `json:"metric"`
			Value  []interface{}     `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

// Query executes one instant PromQL query and returns the result vector.
func (c *Client) Query(ctx context.Context, promql string) ([]Sample, error) {
	u := fmt.Sprintf("%s/api/v1/query?%s", c.baseURL, url.Values{"query": {promql}}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics API %d: %s", resp.StatusCode, string(body))
	}

	var parsed queryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	samples := make([]Sample, 0, len(parsed.Data.Result))
	for _, r := range parsed.Data.Result {
		value := "?"
		if len(r.Value) == 2 {
			if s, ok := r.Value[1].(string); ok {
				value = s
			}
		}
		samples = append(samples, Sample{Labels: r.Metric, Value: value})
	}
	return samples, nil
}

// FormatSamples renders a result vector into compact text for model
// consumption.
func FormatSamples(samples []Sample) string {
	if len(samples) == 0 {
		return "no data"
	}
	lines := make([]string, 0, len(samples))
	for _, s := range samples {
		name := s.Labels["__name__"]
		keys := make([]string, 0, len(s.Labels))
		for k := range s.Labels {
			if k != "__name__" {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s=%s", k, s.Labels[k]))
		}
		if len(pairs) > 0 {
			lines = append(lines, fmt.Sprintf("%s{%s} = %s", name, strings.Join(pairs, ", "), s.Value))
		} else {
			lines = append(lines, fmt.Sprintf("%s = %s", name, s.Value))
		}
	}
	return strings.Join(lines, "\n")
}
