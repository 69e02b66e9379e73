package cache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spaolacci/murmur3"
)

// Keyer derives cache keys for downstream calls.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key from the service type, operation and request.
	Key(serviceType, operation string, request any) (string, error)
}

// DefaultKeyer generates murmur3 based cache keys.
type DefaultKeyer struct{}

var _ Keyer = (*DefaultKeyer)(nil)

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key.
// Format: cache:<serviceType>:<operation>:<hash>
// where hash is the 128-bit murmur3 of the canonical JSON request, in hex.
func (k *DefaultKeyer) Key(serviceType, operation string, request any) (string, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, request); err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize request: %w", err)
	}

	h1, h2 := murmur3.Sum128(buf.Bytes())
	return fmt.Sprintf("cache:%s:%s:%016x%016x", serviceType, operation, h1, h2), nil
}

// writeCanonical writes v as JSON with object keys sorted at every level.
func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			name, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(name)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		// encoding/json sorts keys of typed maps on its own.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}
