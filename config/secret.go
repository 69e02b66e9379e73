package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
)

// ErrSecretUnresolved is returned when a secret reference cannot be resolved.
var ErrSecretUnresolved = errors.New("config: secret unresolved")

// SecretProvider resolves references for one provider name.
//
// Implementations must be safe for concurrent use and must not log secret values.
type SecretProvider interface {
	Name() string
	Resolve(ctx context.Context, ref string) (string, error)
}

// SecretResolver resolves values of the form secretref:<provider>:<ref>,
// either as the whole value or inline, e.g. "Bearer secretref:file:/run/token".
// The file and env providers are always available.
type SecretResolver struct {
	providers map[string]SecretProvider
}

// NewSecretResolver creates a resolver with the built-in providers plus
// the given ones. A later provider replaces an earlier one with the same name.
func NewSecretResolver(providers ...SecretProvider) *SecretResolver {
	r := &SecretResolver{providers: make(map[string]SecretProvider)}
	r.Register(FileSecrets{})
	r.Register(EnvSecrets{})
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *SecretResolver) Register(p SecretProvider) {
	if p == nil {
		return
	}
	r.providers[p.Name()] = p
}

var secretRefPattern = regexp.MustCompile(`secretref:([^:\s]+):(\S+)`)

// ParseSecretRef splits a whole-value reference into provider and ref.
func ParseSecretRef(value string) (provider, ref string, ok bool) {
	m := secretRefPattern.FindStringSubmatchIndex(value)
	if m == nil || m[0] != 0 || m[1] != len(value) {
		return "", "", false
	}
	return value[m[2]:m[3]], value[m[4]:m[5]], true
}

// ResolveValue replaces every reference in value. Values without references
// are returned unchanged.
func (r *SecretResolver) ResolveValue(ctx context.Context, value string) (string, error) {
	matches := secretRefPattern.FindAllStringSubmatchIndex(value, -1)
	out := value
	for i := len(matches) - 1; i >= 0; i-- {
		m := matches[i]
		resolved, err := r.resolve(ctx, value[m[2]:m[3]], value[m[4]:m[5]])
		if err != nil {
			return "", err
		}
		out = out[:m[0]] + resolved + out[m[1]:]
	}
	return out, nil
}

func (r *SecretResolver) resolve(ctx context.Context, name, ref string) (string, error) {
	p, ok := r.providers[name]
	if !ok {
		return "", fmt.Errorf("%w: provider %q is not registered", ErrSecretUnresolved, name)
	}
	v, err := p.Resolve(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrSecretUnresolved, name, err)
	}
	if v == "" {
		return "", fmt.Errorf("%w: %s returned an empty value", ErrSecretUnresolved, name)
	}
	return v, nil
}

// ResolveSecrets resolves references in the admin JWT secret and the
// service endpoints. The services slice is copied before it is changed.
func (c *Config) ResolveSecrets(ctx context.Context, r *SecretResolver) error {
	if r == nil {
		r = NewSecretResolver()
	}
	secret, err := r.ResolveValue(ctx, c.Admin.JWT.Secret)
	if err != nil {
		return fmt.Errorf("%w: admin.jwt.secret: %w", ErrInvalidConfig, err)
	}
	c.Admin.JWT.Secret = secret

	c.Services = slices.Clone(c.Services)
	for i := range c.Services {
		endpoint, err := r.ResolveValue(ctx, c.Services[i].Endpoint)
		if err != nil {
			return fmt.Errorf("%w: services[%s].endpoint: %w", ErrInvalidConfig, c.Services[i].ID, err)
		}
		c.Services[i].Endpoint = endpoint
	}
	return nil
}

// FileSecrets reads a secret from the file named by ref, trimming
// surrounding whitespace.
type FileSecrets struct{}

func (FileSecrets) Name() string { return "file" }

func (FileSecrets) Resolve(_ context.Context, ref string) (string, error) {
	b, err := os.ReadFile(ref)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

// EnvSecrets reads a secret from the environment variable named by ref.
type EnvSecrets struct{}

func (EnvSecrets) Name() string { return "env" }

func (EnvSecrets) Resolve(_ context.Context, ref string) (string, error) {
	v, ok := os.LookupEnv(ref)
	if !ok {
		return "", fmt.Errorf("environment variable %s is not set", ref)
	}
	return v, nil
}
