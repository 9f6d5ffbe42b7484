// Package endpoint gates webhook destinations before a configuration is
// persisted. It rejects anything that could reach the local host, private
// networks, or cloud metadata services.
package endpoint

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError explains why a destination was rejected.
type ValidationError struct {
	URL    string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid webhook endpoint %q: %s", e.URL, e.Reason)
}

var (
	loopbackHosts = map[string]bool{
		"localhost": true,
		"127.0.0.1": true,
		"0.0.0.0":   true,
	}

	// RFC1918 ranges, matched on the hostname string.
	privatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^10\.`),
		regexp.MustCompile(`^172\.(1[6-9]|2[0-9]|3[0-1])\.`),
		regexp.MustCompile(`^192\.168\.`),
	}
)

const metadataHost = "169.254.169.254"

// Validate checks that a candidate URL is an acceptable webhook
// destination. It runs at configuration-authoring time; execution does not
// re-validate, so a DNS change between authoring and delivery is an
// accepted residual risk.
func Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return &ValidationError{URL: rawURL, Reason: "not a parseable URL"}
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return &ValidationError{URL: rawURL, Reason: fmt.Sprintf("protocol %q is not allowed (only http and https)", u.Scheme)}
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return &ValidationError{URL: rawURL, Reason: "missing host"}
	}

	if loopbackHosts[host] {
		return &ValidationError{URL: rawURL, Reason: "loopback addresses are not allowed"}
	}
	if host == metadataHost {
		return &ValidationError{URL: rawURL, Reason: "cloud metadata endpoints are not allowed"}
	}
	for _, p := range privatePatterns {
		if p.MatchString(host) {
			return &ValidationError{URL: rawURL, Reason: "private network addresses are not allowed"}
		}
	}

	return nil
}
