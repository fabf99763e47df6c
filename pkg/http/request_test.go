package http

import (
	"net/http/httptest"
	"testing"
)

func TestExtractClientIP_RemoteAddrOnly(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "203.0.113.7:51234"

	ip := ExtractClientIP(r, nil)
	if ip != "203.0.113.7" {
		t.Errorf("expected 203.0.113.7, got %s", ip)
	}
}

func TestExtractClientIP_ForwardedIgnoredFromUntrustedPeer(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "203.0.113.7:51234"
	r.Header.Set("X-Forwarded-For", "198.51.100.9")

	// No trusted proxies configured: the header must not be honored.
	ip := ExtractClientIP(r, &IPConfig{})
	if ip != "203.0.113.7" {
		t.Errorf("expected RemoteAddr to win over spoofable header, got %s", ip)
	}
}

func TestExtractClientIP_ForwardedFromTrustedProxy(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.5")

	ip := ExtractClientIP(r, &IPConfig{TrustedProxies: []string{"10.0.0.0/8"}})
	if ip != "198.51.100.9" {
		t.Errorf("expected first forwarded IP, got %s", ip)
	}
}

func TestExtractClientIP_RealIPFallback(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set("X-Real-IP", "198.51.100.10")

	ip := ExtractClientIP(r, &IPConfig{TrustedProxies: []string{"10.0.0.0/8"}})
	if ip != "198.51.100.10" {
		t.Errorf("expected X-Real-IP value, got %s", ip)
	}
}

func TestExtractClientIP_InvalidForwardedValue(t *testing.T) {
	r := httptest.NewRequest("POST", "/auth/login", nil)
	r.RemoteAddr = "10.0.0.5:443"
	r.Header.Set("X-Forwarded-For", "not-an-ip")

	ip := ExtractClientIP(r, &IPConfig{TrustedProxies: []string{"10.0.0.0/8"}})
	if ip != "10.0.0.5" {
		t.Errorf("expected fallback to RemoteAddr, got %s", ip)
	}
}
