// Package schema validates inbound catalog payloads against embedded JSON
// Schemas before they reach the store.
package schema

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// Kind names one payload shape.
type Kind string

// Supported payload kinds.
const (
	KindService      Kind = "service"
	KindDevice       Kind = "device"
	KindDoctor       Kind = "doctor"
	KindDoctorCreate Kind = "doctor_create"
	KindPatient      Kind = "patient"
	KindBroker       Kind = "broker"
)

// Entity returns the entity type a kind validates.
func (k Kind) Entity() domain.EntityType {
	switch k {
	case KindService:
		return domain.EntityService
	case KindDevice:
		return domain.EntityDevice
	case KindDoctor, KindDoctorCreate:
		return domain.EntityDoctor
	case KindPatient:
		return domain.EntityPatient
	case KindBroker:
		return domain.EntityBroker
	default:
		return ""
	}
}

// KindFor returns the replace-time kind of a collection entity.
func KindFor(entity domain.EntityType) (Kind, bool) {
	switch entity {
	case domain.EntityService:
		return KindService, true
	case domain.EntityDevice:
		return KindDevice, true
	case domain.EntityDoctor:
		return KindDoctor, true
	case domain.EntityPatient:
		return KindPatient, true
	case domain.EntityBroker:
		return KindBroker, true
	default:
		return "", false
	}
}

//go:embed schemas/*.json
var schemaFS embed.FS

// Validator holds the compiled schemas. It is safe for concurrent use.
type Validator struct {
	schemas map[Kind]*gojsonschema.Schema
}

// New compiles every embedded schema.
func New() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	v := &Validator{schemas: make(map[Kind]*gojsonschema.Schema, len(entries))}
	for _, entry := range entries {
		name := entry.Name()
		data, err := schemaFS.ReadFile(path.Join("schemas", name))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		v.schemas[Kind(strings.TrimSuffix(name, ".json"))] = compiled
	}
	return v, nil
}

// MustNew is New for wiring code that cannot recover from a broken build.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Kinds lists the compiled kinds in lexical order.
func (v *Validator) Kinds() []Kind {
	out := make([]Kind, 0, len(v.schemas))
	for k := range v.schemas {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks payload against the schema for kind. Failures are
// reported as domain.ValidationError listing every offending field.
func (v *Validator) Validate(kind Kind, payload any) error {
	compiled, ok := v.schemas[kind]
	if !ok {
		return fmt.Errorf("schema %q not registered", kind)
	}
	entity := kind.Entity()
	if _, isObject := payload.(map[string]any); !isObject {
		return domain.ValidationError{Entity: entity, Reasons: []string{"payload must be a JSON object"}}
	}
	result, err := compiled.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return domain.ValidationError{Entity: entity, Reasons: []string{err.Error()}}
	}
	if result.Valid() {
		return nil
	}
	reasons := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		field := desc.Field()
		if desc.Type() == "required" || desc.Type() == "additional_property_not_allowed" {
			field = strings.TrimPrefix(fmt.Sprintf("%s.%v", field, desc.Details()["property"]), "(root).")
		}
		reasons = append(reasons, fmt.Sprintf("%s: %s", field, desc.Description()))
	}
	sort.Strings(reasons)
	return domain.ValidationError{Entity: entity, Reasons: reasons}
}

// Valid reports whether payload satisfies the schema for kind.
func (v *Validator) Valid(kind Kind, payload any) bool {
	return v.Validate(kind, payload) == nil
}
