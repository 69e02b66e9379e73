package admin

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testSecret = []byte("admin-secret")

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	if err != nil {
		t.Fatalf("SignedString error = %v", err)
	}
	return s
}

func validClaims() jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   "ops@example.com",
		Issuer:    "flowops",
		Audience:  jwt.ClaimStrings{"admin"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
}

func TestGuard_Verify(t *testing.T) {
	g := NewGuard(GuardConfig{Secret: testSecret, Issuer: "flowops", Audience: "admin"})

	expired := validClaims()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Hour))
	wrongIssuer := validClaims()
	wrongIssuer.Issuer = "someone-else"
	wrongAudience := validClaims()
	wrongAudience.Audience = jwt.ClaimStrings{"billing"}

	tests := []struct {
		name    string
		header  string
		wantErr error
	}{
		{"valid", "Bearer " + sign(t, jwt.SigningMethodHS256, testSecret, validClaims()), nil},
		{"missing", "", ErrMissingCredentials},
		{"not bearer", "Basic abc", ErrMissingCredentials},
		{"garbage", "Bearer not-a-jwt", ErrTokenMalformed},
		{"expired", "Bearer " + sign(t, jwt.SigningMethodHS256, testSecret, expired), ErrTokenExpired},
		{"wrong key", "Bearer " + sign(t, jwt.SigningMethodHS256, []byte("other"), validClaims()), ErrInvalidCredentials},
		{"wrong issuer", "Bearer " + sign(t, jwt.SigningMethodHS256, testSecret, wrongIssuer), ErrInvalidCredentials},
		{"wrong audience", "Bearer " + sign(t, jwt.SigningMethodHS256, testSecret, wrongAudience), ErrInvalidCredentials},
		{"none alg", "Bearer " + sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, validClaims()), ErrInvalidCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, err := g.Verify(tt.header)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Verify error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && subject != "ops@example.com" {
				t.Errorf("subject = %q, want ops@example.com", subject)
			}
		})
	}
}

func TestGuard_ProtectsStatusRoutes(t *testing.T) {
	h := newTestHandler(t, newSource(), GuardConfig{Secret: testSecret})
	token := "Bearer " + sign(t, jwt.SigningMethodHS256, testSecret, validClaims())

	for _, path := range []string{"/status/health", "/status/breakers", "/status/metrics", "/status/executions", "/metrics"} {
		if rec := get(h, path); rec.Code != http.StatusUnauthorized {
			t.Errorf("%s without token = %d, want 401", path, rec.Code)
		}
		if rec := get(h, path, token); rec.Code != http.StatusOK {
			t.Errorf("%s with token = %d, want 200", path, rec.Code)
		}
	}

	if rec := get(h, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d, want 200 without token", rec.Code)
	}
	if rec := get(h, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz = %d, want 200 without token", rec.Code)
	}
}

func TestGuard_PrincipalInContext(t *testing.T) {
	g := NewGuard(GuardConfig{Secret: testSecret})
	var seen string
	h := g.Wrap(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = PrincipalFromContext(r.Context())
	}))

	get(h, "/", "Bearer "+sign(t, jwt.SigningMethodHS256, testSecret, validClaims()))
	if seen != "ops@example.com" {
		t.Errorf("principal = %q, want ops@example.com", seen)
	}
}

func TestGuard_Disabled(t *testing.T) {
	g := NewGuard(GuardConfig{})
	if g.Enabled() {
		t.Error("Enabled() = true without a secret")
	}
}
