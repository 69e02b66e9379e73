package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnvStrict expands environment variables in s.
//
// Semantics:
//   - `${VAR}` is replaced by the value of VAR.
//   - If VAR is missing from the environment, it errors.
//   - `$$` emits a literal `$` (escape hatch).
//   - Anything else, including workflow references like `${steps.id}`, is
//     left untouched.
func ExpandEnvStrict(s string) (string, error) {
	const dollarSentinel = "\x00FLOWOPS_CONFIG_DOLLAR\x00"
	s = strings.ReplaceAll(s, "$$", dollarSentinel)

	missing := make(map[string]struct{})
	for _, match := range envVarPattern.FindAllStringSubmatch(s, -1) {
		key := match[1]
		if _, ok := os.LookupEnv(key); !ok {
			missing[key] = struct{}{}
		}
	}
	if len(missing) > 0 {
		keys := make([]string, 0, len(missing))
		for k := range missing {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", fmt.Errorf("%w: missing required environment variables: %s", ErrInvalidConfig, strings.Join(keys, ", "))
	}

	s = envVarPattern.ReplaceAllStringFunc(s, func(m string) string {
		return os.Getenv(m[2 : len(m)-1])
	})
	s = strings.ReplaceAll(s, dollarSentinel, "$")
	return s, nil
}
