package httpapi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"bazar/backend/internal/domain"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	env := newTestAPI(t, Options{})
	rec, _ := env.do(t, http.MethodGet, "/healthz", "", nil)

	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := rec.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestAPI(t, Options{AllowedOrigin: "https://bazar.example"})
	req := httptest.NewRequest(http.MethodOptions, "/api/products", nil)
	req.Header.Set("Origin", "https://bazar.example")
	rec := httptest.NewRecorder()

	env.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://bazar.example" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	env := newTestAPI(t, Options{LoginRateLimit: 3})

	for i := 1; i <= 4; i++ {
		rec, _ := env.do(t, http.MethodPost, "/api/auth/login", "", domain.LoginRequest{Username: "admin", Password: "wrong-pass"})
		if i <= 3 && rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i, rec.Code)
		}
		if i == 4 && rec.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 4 expected 429, got %d", rec.Code)
		}
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	env := newTestAPI(t, Options{})
	veryLong := strings.Repeat("a", maxBodyBytes+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	rec, resp := env.do(t, http.MethodPost, "/api/auth/login", "", body)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for too large body, got %d", rec.Code)
	}
	if resp.Message != "request body too large" {
		t.Fatalf("unexpected message %q", resp.Message)
	}
}

func TestEmptyBodyRejected(t *testing.T) {
	env := newTestAPI(t, Options{})
	rec, body := env.do(t, http.MethodPost, "/api/auth/login", "", nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if !strings.Contains(body.Message, "request body is required") {
		t.Fatalf("unexpected message %q", body.Message)
	}
}

func TestBearerTokenParsing(t *testing.T) {
	cases := map[string]struct {
		header string
		want   string
		ok     bool
	}{
		"missing":      {header: "", ok: false},
		"basic scheme": {header: "Basic abc", ok: false},
		"lower case":   {header: "bearer abc.def", want: "abc.def", ok: true},
		"empty token":  {header: "Bearer   ", ok: false},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		got, ok := bearerToken(req)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("%s: got (%q, %v), want (%q, %v)", name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestInternalErrorsHideDetailInProduction(t *testing.T) {
	for _, production := range []bool{false, true} {
		env := newTestAPI(t, Options{Production: production})
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()

		env.api.writeError(rec, req, fmt.Errorf("database exploded"))

		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("expected 500, got %d", rec.Code)
		}
		leaked := strings.Contains(rec.Body.String(), "database exploded")
		if leaked == production {
			t.Fatalf("production=%v: detail leaked=%v", production, leaked)
		}
	}
}
