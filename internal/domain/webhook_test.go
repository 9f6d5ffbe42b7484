package domain

import (
	"errors"
	"testing"
	"time"
)

func validConfig() WebhookConfig {
	return WebhookConfig{
		Enabled:        true,
		URL:            "https://hooks.example.com/planner",
		Method:         "POST",
		Authentication: Authentication{Type: AuthNone},
		RetryPolicy:    RetryPolicy{MaxRetries: 3, RetryDelayMs: 60000},
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := WebhookConfig{URL: "https://hooks.example.com"}
	cfg.ApplyDefaults()

	if cfg.Method != "POST" {
		t.Errorf("default method = %q, want POST", cfg.Method)
	}
	if cfg.RetryPolicy.MaxRetries != DefaultMaxRetries {
		t.Errorf("default max_retries = %d, want %d", cfg.RetryPolicy.MaxRetries, DefaultMaxRetries)
	}
	if cfg.RetryPolicy.RetryDelayMs != DefaultRetryDelayMs {
		t.Errorf("default retry_delay_ms = %d, want %d", cfg.RetryPolicy.RetryDelayMs, DefaultRetryDelayMs)
	}
	if cfg.Authentication.Type != AuthNone {
		t.Errorf("default auth type = %q, want none", cfg.Authentication.Type)
	}
	if cfg.RetryPolicy.Delay() != time.Minute {
		t.Errorf("default delay = %v, want 1m", cfg.RetryPolicy.Delay())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*WebhookConfig)
		wantField string
	}{
		{"valid", func(c *WebhookConfig) {}, ""},
		{"missing url", func(c *WebhookConfig) { c.URL = "" }, "url"},
		{"garbage url", func(c *WebhookConfig) { c.URL = "not a url" }, "url"},
		{"delete method", func(c *WebhookConfig) { c.Method = "DELETE" }, "method"},
		{"head method", func(c *WebhookConfig) { c.Method = "HEAD" }, "method"},
		{"negative offset", func(c *WebhookConfig) { c.TriggerOffsetMinutes = -5 }, "trigger_offset_minutes"},
		{"negative retries", func(c *WebhookConfig) { c.RetryPolicy.MaxRetries = -1 }, "retry_policy.max_retries"},
		{"bearer without token", func(c *WebhookConfig) {
			c.Authentication = Authentication{Type: AuthBearer}
		}, "authentication.token"},
		{"basic without username", func(c *WebhookConfig) {
			c.Authentication = Authentication{Type: AuthBasic}
		}, "authentication.username"},
		{"api key without header name", func(c *WebhookConfig) {
			c.Authentication = Authentication{Type: AuthAPIKey, APIKey: "k"}
		}, "authentication.api_key_header"},
		{"unknown auth type", func(c *WebhookConfig) {
			c.Authentication = Authentication{Type: "oauth2"}
		}, "authentication.type"},
		{"unknown trigger event", func(c *WebhookConfig) {
			c.TriggerEvents = []TriggerEvent{"archived"}
		}, "trigger_events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}

			var cerr *ConfigError
			if !errors.As(err, &cerr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cerr.Field != tt.wantField {
				t.Errorf("error field = %q, want %q", cerr.Field, tt.wantField)
			}
		})
	}
}

func TestAllowsStatus(t *testing.T) {
	cfg := validConfig()

	if !cfg.AllowsStatus("completed") {
		t.Error("empty status filter should allow everything")
	}

	cfg.TriggerStatuses = []string{TaskStatusCompleted, TaskStatusCancelled}
	if !cfg.AllowsStatus("completed") || !cfg.AllowsStatus("cancelled") {
		t.Error("listed statuses should be allowed")
	}
	if cfg.AllowsStatus("pending") {
		t.Error("unlisted status should be rejected")
	}
}

func TestRedacted(t *testing.T) {
	cfg := validConfig()
	cfg.Authentication = Authentication{
		Type:         AuthAPIKey,
		APIKey:       "sk-live-12345",
		APIKeyHeader: "X-Api-Key",
	}

	red := cfg.Redacted()
	if red.Authentication.APIKey != "[redacted]" {
		t.Errorf("redacted api key = %q", red.Authentication.APIKey)
	}
	if red.Authentication.APIKeyHeader != "X-Api-Key" {
		t.Error("header name should survive redaction")
	}
	if cfg.Authentication.APIKey != "sk-live-12345" {
		t.Error("redaction mutated the original")
	}
}

func TestEventTriggerTime(t *testing.T) {
	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	ev := Event{
		StartDate: start,
		WebhookConfig: &WebhookConfig{
			TriggerOffsetMinutes: 15,
		},
	}

	want := start.Add(-15 * time.Minute)
	if got := ev.TriggerTime(); !got.Equal(want) {
		t.Errorf("TriggerTime = %v, want %v", got, want)
	}

	ev.WebhookConfig.TriggerOffsetMinutes = 0
	if got := ev.TriggerTime(); !got.Equal(start) {
		t.Errorf("zero offset TriggerTime = %v, want start_date %v", got, start)
	}
}
