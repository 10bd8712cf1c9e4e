package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	proxies, err := NewTrustedProxies([]string{"172.16.0.0/12", "203.0.113.99"})
	if err != nil {
		t.Fatalf("new trusted proxies: %v", err)
	}

	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		realIP     string
		proxies    *TrustedProxies
		want       string
	}{
		{
			name:       "no trusted proxies means peer address only",
			remoteAddr: "198.51.100.7:50211",
			forwarded:  "192.0.2.40",
			realIP:     "192.0.2.41",
			want:       "198.51.100.7",
		},
		{
			name:       "trusted peer honors forwarded-for",
			remoteAddr: "172.16.4.2:443",
			forwarded:  "192.0.2.40",
			proxies:    proxies,
			want:       "192.0.2.40",
		},
		{
			name:       "chain walks past trusted hops",
			remoteAddr: "172.16.4.2:443",
			forwarded:  "192.0.2.40, 172.17.0.1",
			proxies:    proxies,
			want:       "192.0.2.40",
		},
		{
			name:       "garbage forwarded-for falls back to real-ip",
			remoteAddr: "172.16.4.2:443",
			forwarded:  "not-an-ip",
			realIP:     "192.0.2.55",
			proxies:    proxies,
			want:       "192.0.2.55",
		},
		{
			name:       "fully trusted chain keeps the origin hop",
			remoteAddr: "172.16.4.2:443",
			forwarded:  "172.18.0.9, 172.19.0.9",
			proxies:    proxies,
			want:       "172.18.0.9",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "http://review.internal/", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if tc.realIP != "" {
				req.Header.Set("X-Real-IP", tc.realIP)
			}
			if got := ClientIP(req, tc.proxies); got != tc.want {
				t.Fatalf("client ip = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNewTrustedProxies(t *testing.T) {
	if _, err := NewTrustedProxies([]string{"172.16.0.0/12", "203.0.113.99"}); err != nil {
		t.Fatalf("valid entries rejected: %v", err)
	}
	if trusted, err := NewTrustedProxies(nil); err != nil || trusted != nil {
		t.Fatalf("empty input: trusted = %v, err = %v", trusted, err)
	}
	if _, err := NewTrustedProxies([]string{"not-a-cidr/xx"}); err == nil {
		t.Fatal("invalid entry accepted")
	}
}
