package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"testing"

	config "github.com/offboardpro/offboardpro/api/config"
)

// Remote HTTP integration tests against a deployed instance.
// Skipped unless INTEGRATION_BASE_URL is set.

func remoteBaseURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in -short mode")
	}
	ensureConfig(t)
	if config.AppConfig.IntegrationBaseURL == "" {
		t.Skip("INTEGRATION_BASE_URL not set")
	}
	return config.AppConfig.IntegrationBaseURL
}

func TestCreateOrderHTTP_Remote_Integration(t *testing.T) {
	base := remoteBaseURL(t)

	payload := map[string]any{"amount": -1}
	b, _ := json.Marshal(payload)
	resp, err := http.Post(base+"/api/razorpay", "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative amount, got %d", resp.StatusCode)
	}
}

func TestEntitlementRequiresAuthHTTP_Remote_Integration(t *testing.T) {
	base := remoteBaseURL(t)

	resp, err := http.Get(base + "/api/entitlement")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
}

func TestPaymentWebhookHTTP_Remote_Integration(t *testing.T) {
	base := remoteBaseURL(t)

	req, _ := http.NewRequest(http.MethodPost, base+"/api/payments/webhook", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "application/json")
	// Intentionally omit the signature header to get an error response
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 when missing signature, got %d", resp.StatusCode)
	}
}

func TestHealthzHTTP_Remote_Integration(t *testing.T) {
	base := remoteBaseURL(t)

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected healthy deployment, got %d", resp.StatusCode)
	}
}
