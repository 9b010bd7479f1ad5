package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onnwee/swipestack/internal/auth"
)

func TestRequireAuth(t *testing.T) {
	svc := auth.NewJWTService(auth.Config{Secret: "test-secret-test-secret-test-secret"})
	access, err := svc.GenerateAccessToken("user-7")
	if err != nil {
		t.Fatal(err)
	}
	refresh, err := svc.GenerateRefreshToken("user-7")
	if err != nil {
		t.Fatal(err)
	}

	var gotUser string
	handler := RequireAuth(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = GetUserID(r.Context())
	}))

	tests := []struct {
		name     string
		method   string
		header   string
		query    string
		wantCode int
	}{
		{"bearer header", http.MethodPost, "Bearer " + access, "", http.StatusOK},
		{"lowercase scheme", http.MethodPost, "bearer " + access, "", http.StatusOK},
		{"query on GET", http.MethodGet, "", "?access_token=" + access, http.StatusOK},
		{"query ignored on POST", http.MethodPost, "", "?access_token=" + access, http.StatusUnauthorized},
		{"missing", http.MethodGet, "", "", http.StatusUnauthorized},
		{"basic scheme", http.MethodGet, "Basic dXNlcjpwYXNz", "", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "Bearer nope", "", http.StatusUnauthorized},
		{"refresh token", http.MethodGet, "Bearer " + refresh, "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotUser = ""
			req := httptest.NewRequest(tt.method, "/v1/discovery"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			if tt.wantCode == http.StatusOK && gotUser != "user-7" {
				t.Errorf("user id = %q, want user-7", gotUser)
			}
			if tt.wantCode == http.StatusUnauthorized && rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("missing WWW-Authenticate header")
			}
		})
	}
}
