package netguard

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"muehle-agent/internal/domain"
)

func TestIsPrivateIP(t *testing.T) {
	for _, s := range []string{"10.0.0.1", "172.31.255.255", "192.168.1.1", "127.0.0.1", "169.254.1.1", "::1", "fd00::1", "::ffff:127.0.0.1"} {
		if !IsPrivateIP(net.ParseIP(s)) {
			t.Errorf("IsPrivateIP(%s) = false", s)
		}
	}
	for _, s := range []string{"8.8.8.8", "1.1.1.1", "2607:f8b0:4004:800::200e"} {
		if IsPrivateIP(net.ParseIP(s)) {
			t.Errorf("IsPrivateIP(%s) = true", s)
		}
	}
}

func TestCheckURL(t *testing.T) {
	tests := []struct {
		url string
		ok  bool
	}{
		{"https://example.com/guest.wasm", true},
		{"http://8.8.8.8/guest.wasm", true},
		{"http://127.0.0.1:8080/guest.wasm", false},
		{"http://[::1]/guest.wasm", false},
		{"file:///etc/passwd", false},
		{"ftp://example.com/guest.wasm", false},
		{"http:///guest.wasm", false},
	}
	for _, tt := range tests {
		err := CheckURL(tt.url)
		if tt.ok && err != nil {
			t.Errorf("CheckURL(%q) = %v", tt.url, err)
		}
		if !tt.ok && !errors.Is(err, domain.ErrURLBlocked) {
			t.Errorf("CheckURL(%q) = %v, want ErrURLBlocked", tt.url, err)
		}
	}
}

func TestClientRefusesLoopback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer ts.Close()

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL, nil)
	resp, err := Client().Do(req)
	if err == nil {
		resp.Body.Close()
		t.Fatal("request to loopback succeeded")
	}
	if !errors.Is(err, domain.ErrURLBlocked) {
		t.Errorf("err = %v, want ErrURLBlocked", err)
	}
}
