package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"polisdesk/backend/internal/domain"
	"polisdesk/backend/internal/service"
	"polisdesk/backend/internal/store/memory"
)

// newTestAPI builds a full API with an in-memory store, real AuthManager and
// real Service so handler tests exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded()
	svc := service.New(repo, nil, nil, service.Options{DefaultStoreID: "main-office", AgencyName: "Полис-Деск"})
	auth := NewAuthManager("test-secret-key", time.Hour, "123456", repo)

	return New(svc, auth, "*")
}

// mustHashPassword generates a bcrypt hash of the given password or fails the test.
func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

// doJSON sends an authenticated request with a CSRF token attached.
func doJSON(t *testing.T, handler http.Handler, method, path, token, csrf string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestHandleLogin_Success(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "admin123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["access_token"] == "" || body["access_token"] == nil {
		t.Fatalf("expected access_token in response, got %v", body)
	}
}

func TestHandleLogin_InvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	payload, _ := json.Marshal(map[string]string{
		"username": "admin",
		"password": "wrongpassword",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleCatalog_RequiresAuth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/catalog", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestHandleCatalog_WithValidToken(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "agent", "agent123")

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/catalog", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	var body domain.CatalogResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Products) == 0 || len(body.Services) == 0 {
		t.Fatalf("expected seeded catalog, got %+v", body)
	}
}

func TestAgentCannotReadAuditLogs(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "agent", "agent123")

	rec := doJSON(t, api.Handler(), http.MethodGet, "/api/v1/audit-logs", token, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestShiftOpenCloseOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "agent", "agent123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/shifts/open", token, csrf, map[string]any{
		"actual_opening_balance": "0",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var opened domain.ShiftResponse
	if err := json.NewDecoder(rec.Body).Decode(&opened); err != nil {
		t.Fatalf("decode open: %v", err)
	}
	if opened.Shift.UserID != "agent" || opened.Shift.Status != domain.ShiftStatusOpen {
		t.Fatalf("unexpected shift %+v", opened.Shift)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/shifts/open", token, csrf, map[string]any{
		"actual_opening_balance": "0",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second open: expected 409, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/shifts/prepare-close", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("prepare-close: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var form domain.ShiftCloseForm
	if err := json.NewDecoder(rec.Body).Decode(&form); err != nil {
		t.Fatalf("decode form: %v", err)
	}
	if form.State != "closing" || !form.ExpectedClosingBalance.IsZero() {
		t.Fatalf("unexpected close form %+v", form)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/shifts/close", token, csrf, map[string]any{
		"actual_closing_balance": "0",
		"amount_to_keep":         "0",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var closed domain.ShiftCloseResponse
	if err := json.NewDecoder(rec.Body).Decode(&closed); err != nil {
		t.Fatalf("decode close: %v", err)
	}
	if closed.Shift.Status != domain.ShiftStatusClosed {
		t.Fatalf("expected closed shift, got %q", closed.Shift.Status)
	}
	if closed.ReportURL != "/api/v1/shifts/"+opened.Shift.ID+"/report" {
		t.Fatalf("unexpected report url %q", closed.ReportURL)
	}

	rec = doJSON(t, handler, http.MethodGet, closed.ReportURL, token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("report: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Fatalf("expected text/html report, got %q", ct)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/shifts/"+opened.Shift.ID+"/financials", token, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("financials: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/shifts/active", token, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("active after close: expected 404, got %d", rec.Code)
	}
}

func TestShiftCloseNamesMissingField(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()
	token := loginAs(t, api, "agent", "agent123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/shifts/open", token, csrf, map[string]any{
		"actual_opening_balance": "0",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("open: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/shifts/close", token, csrf, map[string]any{
		"amount_to_keep": "0",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["field"] != "actual_closing_balance" {
		t.Fatalf("expected field actual_closing_balance, got %+v", body)
	}
}

func TestSaleWithoutShiftReturns404(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "agent", "agent123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/sales", token, csrf, map[string]any{
		"payment_method": "cash",
		"services":       []map[string]any{{"service_id": "svc-copy", "quantity": 2}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without open shift, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestQuoteSaleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	token := loginAs(t, api, "agent", "agent123")
	csrf := fetchCSRFToken(t, api)

	rec := doJSON(t, api.Handler(), http.MethodPost, "/api/v1/sales/quote", token, csrf, map[string]any{
		"payment_method":   "cash",
		"services":         []map[string]any{{"service_id": "svc-copy", "quantity": 3}},
		"rounding_enabled": true,
		"rounding_step":    100,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var quote domain.SaleQuoteResponse
	if err := json.NewDecoder(rec.Body).Decode(&quote); err != nil {
		t.Fatalf("decode quote: %v", err)
	}
	if quote.Totals.Subtotal.StringFixed(2) != "60.00" || quote.Totals.RoundingAmount.StringFixed(2) != "40.00" {
		t.Fatalf("unexpected totals %+v", quote.Totals)
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "req-42" {
		t.Fatalf("expected echoed request id, got %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Fatalf("expected generated uuid request id, got %q", got)
	}
}

func TestPathID(t *testing.T) {
	cases := []struct {
		path   string
		want   string
		wantOK bool
	}{
		{"/api/v1/shifts/shift-1/report", "shift-1", true},
		{"/api/v1/shifts//report", "", false},
		{"/api/v1/shifts/a/b/report", "", false},
		{"/api/v1/shifts/shift-1/financials", "", false},
	}
	for _, tc := range cases {
		got, ok := pathID(tc.path, "/api/v1/shifts/", "/report")
		if got != tc.want || ok != tc.wantOK {
			t.Fatalf("pathID(%q) = %q, %v; want %q, %v", tc.path, got, ok, tc.want, tc.wantOK)
		}
	}
}

// TestMustHashPassword verifies that the test helper produces valid bcrypt hashes
// (used to confirm test infrastructure is sound).
func TestMustHashPassword(t *testing.T) {
	hash := mustHashPassword(t, "secret")
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("secret")); err != nil {
		t.Fatalf("hash verification failed: %v", err)
	}
}
