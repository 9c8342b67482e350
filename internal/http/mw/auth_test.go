package mw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/refresh-agent/internal/auth"
	"github.com/jmylchreest/refresh-agent/internal/logging"
)

func TestUserClaims_HasScope(t *testing.T) {
	tests := []struct {
		name    string
		scopes  []string
		pattern string
		want    bool
	}{
		{
			name:    "exact match",
			scopes:  []string{"refresh:control", "refresh:read"},
			pattern: "refresh:control",
			want:    true,
		},
		{
			name:    "no match",
			scopes:  []string{"refresh:read"},
			pattern: "refresh:control",
			want:    false,
		},
		{
			name:    "wildcard pattern",
			scopes:  []string{"refresh:read"},
			pattern: "refresh:*",
			want:    true,
		},
		{
			name:    "wildcard grant",
			scopes:  []string{"refresh:*"},
			pattern: "refresh:control",
			want:    true,
		},
		{
			name:    "wildcard grant other namespace",
			scopes:  []string{"admin:*"},
			pattern: "refresh:control",
			want:    false,
		},
		{
			name:    "empty scopes",
			scopes:  []string{},
			pattern: "refresh:control",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := &UserClaims{Scopes: tt.scopes}
			if got := claims.HasScope(tt.pattern); got != tt.want {
				t.Errorf("HasScope(%q) = %v, want %v", tt.pattern, got, tt.want)
			}
		})
	}

	t.Run("nil claims", func(t *testing.T) {
		var claims *UserClaims
		if claims.HasScope("refresh:control") {
			t.Error("HasScope() on nil claims = true")
		}
	})
}

func TestGetUserClaims(t *testing.T) {
	t.Run("claims present", func(t *testing.T) {
		expected := &UserClaims{Subject: "panel"}
		ctx := context.WithValue(context.Background(), UserClaimsKey, expected)

		claims := GetUserClaims(ctx)
		if claims == nil || claims.Subject != expected.Subject {
			t.Errorf("GetUserClaims() = %+v, want %+v", claims, expected)
		}
		if Subject(ctx) != "panel" {
			t.Errorf("Subject() = %q, want panel", Subject(ctx))
		}
	})

	t.Run("claims absent", func(t *testing.T) {
		if claims := GetUserClaims(context.Background()); claims != nil {
			t.Errorf("GetUserClaims() = %+v, want nil", claims)
		}
		if Subject(context.Background()) != "" {
			t.Error("Subject() without claims is not empty")
		}
	})
}

func TestAuth(t *testing.T) {
	verifier := auth.NewVerifier("s3cret")
	mustIssue := func(scopes ...string) string {
		t.Helper()
		token, err := verifier.IssueToken("panel", scopes, time.Hour)
		if err != nil {
			t.Fatalf("IssueToken() error = %v", err)
		}
		return token
	}

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		cfg        AuthConfig
		header     string
		wantStatus int
	}{
		{
			name:       "valid token",
			cfg:        AuthConfig{Verifier: verifier, RequiredScope: ScopeControl},
			header:     "Bearer " + mustIssue(ScopeControl),
			wantStatus: http.StatusOK,
		},
		{
			name:       "bare token",
			cfg:        AuthConfig{Verifier: verifier},
			header:     mustIssue(),
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing header",
			cfg:        AuthConfig{Verifier: verifier},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "forged token",
			cfg:        AuthConfig{Verifier: auth.NewVerifier("other")},
			header:     "Bearer " + mustIssue(ScopeControl),
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing scope",
			cfg:        AuthConfig{Verifier: verifier, RequiredScope: ScopeControl},
			header:     "Bearer " + mustIssue("refresh:read"),
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "not configured",
			cfg:        AuthConfig{},
			header:     "Bearer " + mustIssue(ScopeControl),
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodPost, "/v1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()

			Auth(tt.cfg)(next).ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && seen != "panel" {
				t.Errorf("subject = %q, want panel", seen)
			}
		})
	}
}

func TestLogContext(t *testing.T) {
	var got string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = logging.GetRequestID(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	middleware.RequestID(LogContext(next)).ServeHTTP(httptest.NewRecorder(), req)

	if got == "" {
		t.Error("request id not copied into logging context")
	}
}
