package endpoint

import (
	"errors"
	"testing"
)

func TestValidate_AcceptsPublicEndpoints(t *testing.T) {
	urls := []string{
		"https://hooks.example.com/planner",
		"http://api.example.org:8443/v1/webhook",
		"https://203.0.113.10/notify",
		"https://172.15.0.1/edge-of-range", // 172.15 is public, only 172.16-31 are private
		"https://172.32.0.1/edge-of-range",
	}

	for _, u := range urls {
		if err := Validate(u); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidate_RejectsDisallowedDestinations(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"file protocol", "file:///etc/passwd"},
		{"ftp protocol", "ftp://ftp.example.com/drop"},
		{"gopher protocol", "gopher://example.com"},
		{"localhost", "http://localhost:3000/hook"},
		{"localhost uppercase", "http://LOCALHOST/hook"},
		{"loopback ip", "http://127.0.0.1/hook"},
		{"all zeros", "http://0.0.0.0:8080/hook"},
		{"cloud metadata", "http://169.254.169.254/latest/meta-data/"},
		{"rfc1918 10/8", "https://10.0.0.5/internal"},
		{"rfc1918 10/8 deep", "https://10.255.1.2/internal"},
		{"rfc1918 172.16/12 low", "https://172.16.0.1/internal"},
		{"rfc1918 172.16/12 high", "https://172.31.99.1/internal"},
		{"rfc1918 192.168/16", "https://192.168.1.50/internal"},
		{"empty host", "https:///path-only"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.url)
			if err == nil {
				t.Fatalf("Validate(%q) = nil, want error", tt.url)
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("error is %T, want *ValidationError", err)
			}
			if verr.Reason == "" {
				t.Error("validation error should carry a human-readable reason")
			}
		})
	}
}
