// Package api_test runs HTTP-level smoke tests using net/http/httptest.
// These tests do NOT require a PostgreSQL database. They verify:
//   - Gin router routing and middleware wiring
//   - Request validation error responses (400)
//   - Gateway key middleware (401 without key, 401 with wrong key)
//   - Identity header requirements (401 without X-Customer-ID)
//   - Response format consistency (success/error envelope)
//   - CORS preflight handling
package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hashcard/treasury/internal/api"
	"github.com/hashcard/treasury/internal/config"
)

const testAPIKey = "test-gateway-key"

// ── Test helpers ──────────────────────────────────────────────────────────────

func testCfg() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Env:    "development",
			Port:   "8080",
			APIKey: testAPIKey,
		},
	}
}

// buildTestRouter creates a Gin engine with nil services.  Every request in
// this file is rejected by middleware or request validation before a service
// would be touched.
func buildTestRouter(t *testing.T) http.Handler {
	t.Helper()
	return api.SetupRouter(api.RouterDeps{
		CardSvc:     nil,
		SwapSvc:     nil,
		VerifierSvc: nil,
		CashoutSvc:  nil,
		Cfg:         testCfg(),
	})
}

func do(t *testing.T, h http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf *bytes.Buffer
	if body != "" {
		buf = bytes.NewBufferString(body)
	} else {
		buf = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var m map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&m); err != nil {
		t.Fatalf("response is not valid JSON: %v, body: %s", err, rr.Body.String())
	}
	return m
}

func asCustomer() map[string]string {
	return map[string]string{
		"X-API-Key":     testAPIKey,
		"X-Customer-ID": "11111111-1111-1111-1111-111111111111",
	}
}

// ── /health ───────────────────────────────────────────────────────────────────

func TestHealthEndpoint(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code != http.StatusOK {
		t.Errorf("GET /health = %d, want 200", rr.Code)
	}
}

func TestHealth_NoAPIKeyRequired(t *testing.T) {
	h := buildTestRouter(t)
	// /health sits outside the /api group on purpose
	rr := do(t, h, http.MethodGet, "/health", "", nil)
	if rr.Code == http.StatusUnauthorized {
		t.Error("GET /health must not require the gateway key")
	}
}

// ── Gateway key middleware ────────────────────────────────────────────────────

func TestAPIKey_Missing_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	for _, path := range []string{"/api/swaps", "/api/cashouts"} {
		rr := do(t, h, http.MethodPost, path, `{}`, nil)
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("POST %s without key = %d, want 401", path, rr.Code)
		}
	}
}

func TestAPIKey_Wrong_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/swaps", `{}`, map[string]string{
		"X-API-Key": "not-the-key",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/swaps with wrong key = %d, want 401", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["success"] != false {
		t.Errorf("response.success should be false on error, got %v", body["success"])
	}
}

// ── Identity headers ──────────────────────────────────────────────────────────

func TestSwapCreate_NoCustomerIdentity_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/swaps", `{"side":"BUY_BTC"}`, map[string]string{
		"X-API-Key": testAPIKey,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/swaps without X-Customer-ID = %d, want 401", rr.Code)
	}
}

func TestCardActivate_NoMerchantIdentity_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	// Customer identity alone is not enough for activation
	rr := do(t, h, http.MethodPost, "/api/cards/activate", `{"code":"HC-TEST"}`, asCustomer())
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("POST /api/cards/activate without X-Merchant-ID = %d, want 401", rr.Code)
	}
}

func TestCashoutGet_NoCustomerIdentity_Returns401(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/cashouts/11111111-1111-1111-1111-111111111111", "", map[string]string{
		"X-API-Key": testAPIKey,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("GET /api/cashouts/:id without identity = %d, want 401", rr.Code)
	}
}

// ── Request validation ────────────────────────────────────────────────────────

func TestSwapCreate_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/swaps", `{}`, asCustomer())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/swaps empty body = %d, want 400", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["code"] == nil {
		t.Errorf("error envelope missing 'code', got: %v", body)
	}
}

func TestCardRedeem_MissingCode(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/cards/redeem", `{}`, asCustomer())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/cards/redeem empty body = %d, want 400", rr.Code)
	}
}

func TestPaymentVerify_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/payments/verify", `{}`, asCustomer())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/payments/verify empty body = %d, want 400", rr.Code)
	}
}

func TestPaymentVerify_BadOrderID(t *testing.T) {
	h := buildTestRouter(t)
	payload := `{"order_id":"not-a-uuid","tx_hash":"0xabc"}`
	rr := do(t, h, http.MethodPost, "/api/payments/verify", payload, asCustomer())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/payments/verify bad uuid = %d, want 400", rr.Code)
	}
}

func TestSwapGet_BadID(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodGet, "/api/swaps/not-a-uuid", "", asCustomer())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("GET /api/swaps/not-a-uuid = %d, want 400", rr.Code)
	}
}

func TestCashoutCreate_MissingFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/cashouts", `{}`, asCustomer())
	if rr.Code != http.StatusBadRequest {
		t.Errorf("POST /api/cashouts empty body = %d, want 400", rr.Code)
	}
}

// ── Error envelope format ─────────────────────────────────────────────────────

func TestErrorEnvelope_HasRequiredFields(t *testing.T) {
	h := buildTestRouter(t)
	rr := do(t, h, http.MethodPost, "/api/swaps", `{}`, asCustomer())
	body := decodeBody(t, rr)

	for _, field := range []string{"success", "error", "code"} {
		if _, ok := body[field]; !ok {
			t.Errorf("error envelope missing field %q, got: %v", field, body)
		}
	}
	if body["success"] != false {
		t.Errorf("error envelope.success = %v, want false", body["success"])
	}
}

// ── CORS headers ──────────────────────────────────────────────────────────────

func TestCORSOptionsRequest(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/swaps", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// OPTIONS should return 204 (no content) in dev mode
	if rr.Code != http.StatusNoContent && rr.Code != http.StatusOK {
		t.Errorf("OPTIONS /api/swaps = %d, want 204 or 200", rr.Code)
	}
	allow := rr.Header().Get("Access-Control-Allow-Methods")
	if !strings.Contains(allow, "POST") {
		t.Errorf("Access-Control-Allow-Methods missing POST, got %q", allow)
	}
}

func TestCORSAllowOrigin_Dev(t *testing.T) {
	h := buildTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	// In dev mode, CORS origin should be wildcard
	origin := rr.Header().Get("Access-Control-Allow-Origin")
	if origin != "*" {
		t.Errorf("Dev CORS origin = %q, want *", origin)
	}
}
