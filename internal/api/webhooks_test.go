package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/plannerhq/webhook-engine/internal/curl"
	"github.com/plannerhq/webhook-engine/internal/domain"
	"github.com/plannerhq/webhook-engine/internal/worker"
)

func testHandler() *WebhookHandler {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	deliverer := worker.NewDeliverer(worker.Config{Timeout: 2 * time.Second, TestTimeout: 2 * time.Second}, nil, nil, nil, nil, nil, logger)
	return NewWebhookHandler(nil, deliverer, logger)
}

func TestParseCurl_BearerCommand(t *testing.T) {
	h := testHandler()

	body := `{"command": "curl -X POST https://api.example.com/notify -H 'Authorization: Bearer tok123' -H 'Content-Type: application/json' -d '{\"msg\": \"hi\"}'"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/parse-curl", strings.NewReader(body))
	rec := httptest.NewRecorder()

	h.ParseCurl(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var draft curl.Draft
	if err := json.Unmarshal(rec.Body.Bytes(), &draft); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if draft.URL != "https://api.example.com/notify" {
		t.Errorf("url = %q", draft.URL)
	}
	if draft.Method != "POST" {
		t.Errorf("method = %q, want POST", draft.Method)
	}
	if draft.Authentication.Type != domain.AuthBearer {
		t.Errorf("auth type = %q, want bearer", draft.Authentication.Type)
	}
	if draft.Authentication.Token != "tok123" {
		t.Errorf("token = %q, want tok123", draft.Authentication.Token)
	}
}

func TestParseCurl_RejectsUnparseable(t *testing.T) {
	h := testHandler()

	tests := []struct {
		name    string
		command string
	}{
		{"empty", ""},
		{"no url", "curl -X POST -H 'Content-Type: application/json'"},
		{"delete method", "curl -X DELETE https://api.example.com/thing"},
		{"private target", "curl https://192.168.1.10/hook"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, _ := json.Marshal(map[string]string{"command": tt.command})
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/parse-curl", strings.NewReader(string(body)))
			rec := httptest.NewRecorder()

			h.ParseCurl(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestTestWebhook_DeliversOnce(t *testing.T) {
	var received int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	h := testHandler()

	reqBody, _ := json.Marshal(map[string]any{
		"config": map[string]any{
			"enabled": true,
			"url":     server.URL,
			"method":  "POST",
			// Retries configured high: test deliveries must ignore them
			"retry_policy": map[string]int{"max_retries": 5, "retry_delay_ms": 1},
		},
		"sample": map[string]any{"title": "Dry run"},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/test", strings.NewReader(string(reqBody)))
	rec := httptest.NewRecorder()

	h.Test(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result worker.TestResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if !result.Success {
		t.Errorf("test delivery failed: %s", result.Error)
	}
	if result.StatusCode == nil || *result.StatusCode != http.StatusOK {
		t.Errorf("status code = %v, want 200", result.StatusCode)
	}
	if received != 1 {
		t.Errorf("endpoint received %d requests, want 1", received)
	}
}

func TestTestWebhook_RejectsBlockedTarget(t *testing.T) {
	h := testHandler()

	reqBody, _ := json.Marshal(map[string]any{
		"config": map[string]any{
			"enabled": true,
			"url":     "http://169.254.169.254/latest/meta-data",
			"method":  "GET",
		},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/test", strings.NewReader(string(reqBody)))
	rec := httptest.NewRecorder()

	h.Test(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for a metadata endpoint target", rec.Code)
	}
}
