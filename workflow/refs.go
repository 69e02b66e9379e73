package workflow

import "strings"

// scope is what ${...} references resolve against.
type scope struct {
	params map[string]any
	steps  map[string]any
}

// buildPayload merges workflow params with step parameters, the latter
// winning, and resolves references in the step parameters.
func buildPayload(step StepDefinition, sc scope) map[string]any {
	payload := make(map[string]any, len(sc.params)+len(step.Parameters))
	for k, v := range sc.params {
		payload[k] = v
	}
	for k, v := range step.Parameters {
		payload[k] = sc.resolve(v)
	}
	return payload
}

// resolve replaces a whole-string reference with the referenced value and
// descends into maps and slices. Unresolvable references are left as is.
func (sc scope) resolve(v any) any {
	switch val := v.(type) {
	case string:
		if out, ok := sc.lookup(val); ok {
			return out
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = sc.resolve(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sc.resolve(item)
		}
		return out
	default:
		return v
	}
}

func (sc scope) lookup(s string) (any, bool) {
	if len(s) < 4 || !strings.HasPrefix(s, "${") || !strings.HasSuffix(s, "}") {
		return nil, false
	}
	path := strings.Split(s[2:len(s)-1], ".")
	if len(path) < 2 {
		return nil, false
	}

	var root map[string]any
	switch path[0] {
	case "steps":
		root = sc.steps
	case "params":
		root = sc.params
	default:
		return nil, false
	}

	cur, ok := root[path[1]]
	if !ok {
		return nil, false
	}
	for _, field := range path[2:] {
		m, isMap := cur.(map[string]any)
		if !isMap {
			return nil, false
		}
		if cur, ok = m[field]; !ok {
			return nil, false
		}
	}
	return cur, true
}
