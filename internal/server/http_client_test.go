package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/mlit-mcp/mlit-mcp/internal/config"
)

func TestNewUpstreamClientUsesConfigTimeout(t *testing.T) {
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			HTTPTimeout:    config.Duration(45 * time.Second),
			MaxConcurrency: 3,
		},
	}

	client := NewUpstreamClient(cfg)
	if client.Timeout != 45*time.Second {
		t.Fatalf("expected timeout 45s, got %s", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("expected *http.Transport, got %T", client.Transport)
	}
	if transport.MaxConnsPerHost != 3 {
		t.Fatalf("expected MaxConnsPerHost 3, got %d", transport.MaxConnsPerHost)
	}
	if transport == defaultTransport {
		t.Fatalf("transport must be cloned per client")
	}
}

func TestNewUpstreamClientDefaults(t *testing.T) {
	client := NewUpstreamClient(nil)
	if client.Timeout != 15*time.Second {
		t.Fatalf("expected default timeout 15s, got %s", client.Timeout)
	}
}
