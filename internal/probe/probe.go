// Package probe performs HTTP(S) endpoint health probes, either directly or
// through the Traefik ingress with a Host header (the in-cluster resolver
// cannot resolve the public hostnames).
package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

const DefaultTimeout = 10 * time.Second

// Result of one probe. Probe failures are data, not errors.
type Result struct {
	URL            string
	Healthy        bool
	StatusCode     int
	ResponseTimeMS int64
	Error          string
}

// newClient builds the probe HTTP client. Redirects are followed and TLS
// verification is disabled: the ingress serves internal certificates.
func newClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
}

// Check probes url and reports whether it answered 200.
func Check(ctx context.Context, url string) Result {
	return fetch(ctx, url, "")
}

// CheckViaIngress probes host through the Traefik ingress URL by setting the
// Host header.
func CheckViaIngress(ctx context.Context, host, ingressURL string) Result {
	return fetch(ctx, ingressURL, host)
}

func fetch(ctx context.Context, url, hostHeader string) Result {
	result := Result{URL: url}
	if hostHeader != "" {
		result.URL = fmt.Sprintf("https://%s (via %s)", hostHeader, url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	if hostHeader != "" {
		req.Host = hostHeader
	}

	start := time.Now()
	resp, err := newClient().Do(req)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = resp.StatusCode
	result.ResponseTimeMS = time.Since(start).Milliseconds()
	result.Healthy = resp.StatusCode == http.StatusOK
	if !result.Healthy {
		result.Error = fmt.Sprintf("HTTP %d", resp.StatusCode)
	}
	return result
}
