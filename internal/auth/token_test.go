package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestVerifier(secret string, now time.Time) *Verifier {
	v := NewVerifier(secret)
	v.now = func() time.Time { return now }
	return v
}

func TestControlClaims_GetScopes(t *testing.T) {
	tests := []struct {
		name  string
		scope string
		want  []string
	}{
		{"single", "refresh", []string{"refresh"}},
		{"several", "refresh  admin", []string{"refresh", "admin"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := (&ControlClaims{Scope: tt.scope}).GetScopes()
			if len(got) != len(tt.want) {
				t.Fatalf("GetScopes() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("GetScopes()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestVerifier_RoundTrip(t *testing.T) {
	v := newTestVerifier("s3cret", epoch)

	token, err := v.IssueToken("panel", []string{"refresh"}, time.Hour)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	claims, err := v.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Subject != "panel" || claims.Scope != "refresh" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != Issuer {
		t.Errorf("Issuer = %q, want %q", claims.Issuer, Issuer)
	}
}

func TestVerifier_Expired(t *testing.T) {
	issuer := newTestVerifier("s3cret", epoch)
	token, err := issuer.IssueToken("panel", nil, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	later := newTestVerifier("s3cret", epoch.Add(time.Hour))
	if _, err := later.VerifyToken(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("VerifyToken() error = %v, want ErrTokenExpired", err)
	}
}

func TestVerifier_NoExpiry(t *testing.T) {
	token, err := newTestVerifier("s3cret", epoch).IssueToken("panel", nil, 0)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if _, err := newTestVerifier("s3cret", epoch.Add(24*365*time.Hour)).VerifyToken(token); err != nil {
		t.Errorf("VerifyToken() error = %v, want nil", err)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v := newTestVerifier("s3cret", epoch)

	wrongSecret, _ := newTestVerifier("other", epoch).IssueToken("panel", nil, time.Hour)

	foreign, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, ControlClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else", Subject: "panel"},
	}).SignedString([]byte("s3cret"))

	anonymous, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, ControlClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer},
	}).SignedString([]byte("s3cret"))

	unsigned, _ := jwt.NewWithClaims(jwt.SigningMethodNone, ControlClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: Issuer, Subject: "panel"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"wrong secret", wrongSecret, ErrInvalidToken},
		{"foreign issuer", foreign, ErrInvalidToken},
		{"missing subject", anonymous, ErrMissingClaims},
		{"alg none", unsigned, ErrInvalidToken},
		{"garbage", "not.a.token", ErrInvalidToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.VerifyToken(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("VerifyToken() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestVerifier_NoSecret(t *testing.T) {
	v := NewVerifier("")
	if _, err := v.IssueToken("panel", nil, 0); !errors.Is(err, ErrNoSecret) {
		t.Errorf("IssueToken() error = %v, want ErrNoSecret", err)
	}
	if _, err := v.VerifyToken("a.b.c"); !errors.Is(err, ErrNoSecret) {
		t.Errorf("VerifyToken() error = %v, want ErrNoSecret", err)
	}
}
