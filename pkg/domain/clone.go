package domain

import "encoding/json"

// CloneObject deep-copies a decoded JSON object. Nil stays nil.
func CloneObject(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneList deep-copies a decoded JSON array. Nil stays nil.
func CloneList(in []any) []any {
	if in == nil {
		return nil
	}
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies any value produced by encoding/json decoding.
// Scalars (including json.Number) are immutable and returned as is.
func CloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		return CloneObject(typed)
	case BrokerConfig:
		return typed.Clone()
	case []any:
		return CloneList(typed)
	case []string:
		return cloneStrings(typed)
	case json.RawMessage:
		out := make(json.RawMessage, len(typed))
		copy(out, typed)
		return out
	default:
		return v
	}
}
