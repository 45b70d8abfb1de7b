package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"relive.org/internal/auth"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header  string
		token   string
		wantErr bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", false},
		{"bearer abc.def.ghi", "abc.def.ghi", false},
		{"  Bearer   spaced  ", "spaced", false},
		{"", "", true},
		{"Basic dXNlcjpwYXNz", "", true},
		{"Bearer ", "", true},
		{"abc.def.ghi", "", true},
	}
	for _, tc := range cases {
		token, err := extractBearerToken(tc.header)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("header %q: expected error, got token %q", tc.header, token)
			}
			continue
		}
		if err != nil {
			t.Fatalf("header %q: %v", tc.header, err)
		}
		if token != tc.token {
			t.Fatalf("header %q: got %q, want %q", tc.header, token, tc.token)
		}
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	gate := requireRole(auth.RoleShelter)(next)

	// No principal on the context.
	rec := httptest.NewRecorder()
	gate.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no principal: status %d", rec.Code)
	}

	// Wrong role.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	ctx := auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "u1", Role: auth.RoleDonor})
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("wrong role: status %d", rec.Code)
	}

	// Matching role passes through.
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	ctx = auth.ContextWithPrincipal(req.Context(), auth.Principal{UserID: "u2", Role: auth.RoleShelter})
	rec = httptest.NewRecorder()
	gate.ServeHTTP(rec, req.WithContext(ctx))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("matching role: status %d", rec.Code)
	}
}
