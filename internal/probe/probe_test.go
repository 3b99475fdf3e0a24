package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := Check(context.Background(), server.URL)
	assert.True(t, result.Healthy)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Empty(t, result.Error)
}

func TestCheckUnhealthyStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	result := Check(context.Background(), server.URL)
	assert.False(t, result.Healthy)
	assert.Equal(t, "HTTP 502", result.Error)
}

func TestCheckConnectionRefused(t *testing.T) {
	result := Check(context.Background(), "http://127.0.0.1:1")
	assert.False(t, result.Healthy)
	assert.NotEmpty(t, result.Error)
}

func TestCheckViaIngressSetsHostHeader(t *testing.T) {
	var gotHost string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHost = r.Host
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := CheckViaIngress(context.Background(), "workflows.example.test", server.URL)
	assert.True(t, result.Healthy)
	assert.Equal(t, "workflows.example.test", gotHost)
	assert.Contains(t, result.URL, "workflows.example.test")
}
