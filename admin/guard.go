package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// GuardConfig configures bearer-token verification.
type GuardConfig struct {
	// Secret is the HMAC key. Empty disables the guard.
	Secret []byte

	// Issuer is the expected token issuer (iss claim).
	Issuer string

	// Audience is the expected token audience (aud claim).
	Audience string
}

type principalKey struct{}

// PrincipalFromContext returns the subject of the verified token, if any.
func PrincipalFromContext(ctx context.Context) string {
	p, _ := ctx.Value(principalKey{}).(string)
	return p
}

// Guard verifies HMAC-signed JWT bearer tokens.
type Guard struct {
	config GuardConfig
	parser *jwt.Parser
}

// NewGuard creates a guard. A guard with an empty secret admits everything.
func NewGuard(config GuardConfig) *Guard {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Audience != "" {
		opts = append(opts, jwt.WithAudience(config.Audience))
	}
	return &Guard{config: config, parser: jwt.NewParser(opts...)}
}

// Enabled reports whether tokens are checked.
func (g *Guard) Enabled() bool {
	return len(g.config.Secret) > 0
}

// Verify checks the Authorization header value and returns the subject.
func (g *Guard) Verify(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredentials
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return "", ErrMissingCredentials
	}
	token = strings.TrimSpace(token)

	claims := jwt.RegisteredClaims{}
	parsed, err := g.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return g.config.Secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "", ErrTokenMalformed
	case err != nil || !parsed.Valid:
		return "", ErrInvalidCredentials
	}
	return claims.Subject, nil
}

// Wrap rejects requests without a valid token with 401.
func (g *Guard) Wrap(next http.Handler) http.Handler {
	if !g.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := g.Verify(r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="flowops"`)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, subject)))
	})
}
