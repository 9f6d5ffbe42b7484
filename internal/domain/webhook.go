package domain

import (
	"fmt"
	"net/url"
	"time"
)

// AuthType identifies how an outbound request is authenticated.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
	AuthAPIKey AuthType = "api_key"
)

// TriggerEvent is a task lifecycle moment that can fire a webhook.
type TriggerEvent string

const (
	TriggerCompleted     TriggerEvent = "completed"
	TriggerStatusChanged TriggerEvent = "status_changed"
	TriggerCreated       TriggerEvent = "created"
	TriggerUpdated       TriggerEvent = "updated"
	TriggerDeleted       TriggerEvent = "deleted"

	// TriggerScheduled is the trigger event reported for time-driven
	// event deliveries (the scanner path).
	TriggerScheduled TriggerEvent = "scheduled"

	// TriggerTest marks one-shot test deliveries.
	TriggerTest TriggerEvent = "test"
)

const (
	DefaultMaxRetries   = 3
	DefaultRetryDelayMs = 60000
)

var allowedMethods = map[string]bool{
	"GET":   true,
	"POST":  true,
	"PUT":   true,
	"PATCH": true,
}

// MethodAllowed reports whether an HTTP method may be used for webhook
// deliveries. The set is deliberately narrow for scheduled automation.
func MethodAllowed(method string) bool {
	return allowedMethods[method]
}

// Authentication carries credentials for outbound requests. Credentials
// never live in the generic header bag so they stay out of the ledger.
type Authentication struct {
	Type         AuthType `json:"type"`
	Token        string   `json:"token,omitempty"`
	Username     string   `json:"username,omitempty"`
	Password     string   `json:"password,omitempty"`
	APIKey       string   `json:"api_key,omitempty"`
	APIKeyHeader string   `json:"api_key_header,omitempty"`
}

// RetryPolicy bounds the delivery retry chain. Delays are fixed, not
// exponential.
type RetryPolicy struct {
	MaxRetries   int `json:"max_retries"`
	RetryDelayMs int `json:"retry_delay_ms"`
}

// Delay returns the wait between attempts.
func (p RetryPolicy) Delay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}

// WebhookConfig is the declarative description of a target endpoint, its
// auth, and its trigger policy. It is attached 1:1 to an event or a task
// and persisted as JSONB on the owning row.
type WebhookConfig struct {
	Enabled        bool              `json:"enabled"`
	URL            string            `json:"url"`
	Method         string            `json:"method"`
	Headers        map[string]string `json:"headers,omitempty"`
	Body           map[string]any    `json:"body,omitempty"`
	Authentication Authentication    `json:"authentication"`
	RetryPolicy    RetryPolicy       `json:"retry_policy"`

	// Event-specific: fire N minutes before start_date (0 = at start).
	TriggerOffsetMinutes int `json:"trigger_offset_minutes,omitempty"`

	// Task-specific.
	TriggerEvents   []TriggerEvent `json:"trigger_events,omitempty"`
	TriggerStatuses []string       `json:"trigger_statuses,omitempty"`

	// Condition is an optional expression evaluated against the delivery
	// payload for task triggers. Empty means always fire.
	Condition string `json:"condition,omitempty"`
}

// ApplyDefaults fills method and retry policy defaults on a freshly
// authored configuration.
func (c *WebhookConfig) ApplyDefaults() {
	if c.Method == "" {
		c.Method = "POST"
	}
	if c.RetryPolicy.MaxRetries == 0 {
		c.RetryPolicy.MaxRetries = DefaultMaxRetries
	}
	if c.RetryPolicy.RetryDelayMs == 0 {
		c.RetryPolicy.RetryDelayMs = DefaultRetryDelayMs
	}
	if c.Authentication.Type == "" {
		c.Authentication.Type = AuthNone
	}
}

// Validate checks structural validity of the configuration. Endpoint
// reachability rules live in the endpoint package.
func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return &ConfigError{Field: "url", Reason: "url is required"}
	}
	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return &ConfigError{Field: "url", Reason: "url is not a valid URL"}
	}
	if !MethodAllowed(c.Method) {
		return &ConfigError{Field: "method", Reason: fmt.Sprintf("method %q is not supported (allowed: GET, POST, PUT, PATCH)", c.Method)}
	}
	if c.TriggerOffsetMinutes < 0 {
		return &ConfigError{Field: "trigger_offset_minutes", Reason: "negative trigger offsets are not supported"}
	}
	if c.RetryPolicy.MaxRetries < 0 {
		return &ConfigError{Field: "retry_policy.max_retries", Reason: "max_retries must not be negative"}
	}
	if c.RetryPolicy.RetryDelayMs < 0 {
		return &ConfigError{Field: "retry_policy.retry_delay_ms", Reason: "retry_delay_ms must not be negative"}
	}

	switch c.Authentication.Type {
	case AuthNone:
	case AuthBearer:
		if c.Authentication.Token == "" {
			return &ConfigError{Field: "authentication.token", Reason: "bearer auth requires a token"}
		}
	case AuthBasic:
		if c.Authentication.Username == "" {
			return &ConfigError{Field: "authentication.username", Reason: "basic auth requires a username"}
		}
	case AuthAPIKey:
		if c.Authentication.APIKey == "" {
			return &ConfigError{Field: "authentication.api_key", Reason: "api_key auth requires a key"}
		}
		if c.Authentication.APIKeyHeader == "" {
			return &ConfigError{Field: "authentication.api_key_header", Reason: "api_key auth requires a header name"}
		}
	default:
		return &ConfigError{Field: "authentication.type", Reason: fmt.Sprintf("unknown authentication type %q", c.Authentication.Type)}
	}

	for _, ev := range c.TriggerEvents {
		switch ev {
		case TriggerCompleted, TriggerStatusChanged, TriggerCreated, TriggerUpdated, TriggerDeleted:
		default:
			return &ConfigError{Field: "trigger_events", Reason: fmt.Sprintf("unknown trigger event %q", ev)}
		}
	}

	return nil
}

// WantsEvent reports whether the configuration subscribes to the given
// task trigger event.
func (c *WebhookConfig) WantsEvent(ev TriggerEvent) bool {
	for _, e := range c.TriggerEvents {
		if e == ev {
			return true
		}
	}
	return false
}

// AllowsStatus reports whether the resulting task status qualifies. An
// empty TriggerStatuses set means all statuses qualify.
func (c *WebhookConfig) AllowsStatus(status string) bool {
	if len(c.TriggerStatuses) == 0 {
		return true
	}
	for _, s := range c.TriggerStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Redacted returns a copy safe for status responses: credential material
// is replaced with a marker, everything else is preserved.
func (c WebhookConfig) Redacted() WebhookConfig {
	out := c
	if out.Authentication.Token != "" {
		out.Authentication.Token = "[redacted]"
	}
	if out.Authentication.Password != "" {
		out.Authentication.Password = "[redacted]"
	}
	if out.Authentication.APIKey != "" {
		out.Authentication.APIKey = "[redacted]"
	}
	return out
}

// ConfigError is a structural configuration failure, surfaced
// synchronously at authoring time and never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid webhook configuration: %s: %s", e.Field, e.Reason)
}
