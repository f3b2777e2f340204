package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// asObject returns payload as a JSON object or a validation error.
func asObject(entity domain.EntityType, payload any) (map[string]any, error) {
	obj, ok := payload.(map[string]any)
	if !ok || obj == nil {
		return nil, domain.ValidationError{Entity: entity, Reasons: []string{"payload must be a JSON object"}}
	}
	return copyObject(obj), nil
}

func copyObject(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

// recordObject renders a stored record as a JSON object so a partial payload
// can be merged over it.
func recordObject(record any) (map[string]any, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var out map[string]any
	if err := unmarshalNumbers(data, &out); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return out, nil
}

// mergeObject overlays the top-level fields of patch onto base.
func mergeObject(base, patch map[string]any) map[string]any {
	out := copyObject(base)
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// decodeRecord converts a validated object into its typed record.
func decodeRecord(entity domain.EntityType, obj map[string]any, target any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return domain.ValidationError{Entity: entity, Reasons: []string{err.Error()}}
	}
	if err := unmarshalNumbers(data, target); err != nil {
		return domain.ValidationError{Entity: entity, Reasons: []string{err.Error()}}
	}
	return nil
}

// checkKey rejects a payload whose key field names a different record.
func checkKey(entity domain.EntityType, obj map[string]any, id string) error {
	raw, ok := obj[entity.KeyField()]
	if !ok {
		return nil
	}
	if value, isString := raw.(string); isString && value == id {
		return nil
	}
	return domain.ValidationError{Entity: entity, Reasons: []string{entity.KeyField() + " cannot be changed"}}
}

func unmarshalNumbers(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(target)
}

// Query holds exact-match list filters keyed by field name.
type Query map[string]string

// Value returns the filter for field and whether it was supplied.
func (q Query) Value(field string) (string, bool) {
	if q == nil {
		return "", false
	}
	v, ok := q[field]
	return v, ok
}

func matchChatID(value *int64, raw string) bool {
	if value == nil {
		return false
	}
	want, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	return err == nil && want == *value
}

func matchRole(role, raw string) bool {
	return strings.EqualFold(role, strings.TrimSpace(raw))
}

func sameIDSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]string(nil), a...)
	y := append([]string(nil), b...)
	sort.Strings(x)
	sort.Strings(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}

func removeID(values []string, id string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func stringsFrom(raw any) ([]string, bool) {
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
