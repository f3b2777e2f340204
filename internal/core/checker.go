package core

import (
	"context"
	"fmt"

	"github.com/almecha/GlucoseIoT/internal/infra/persistence/memory"
	"github.com/almecha/GlucoseIoT/internal/schema"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// CheckReport summarizes an offline inspection of a stored catalog document.
type CheckReport struct {
	// Repairs lists what loading the document would change.
	Repairs []string
	// Invalid lists records that fail their schema.
	Invalid []string
	// Violations lists rule findings on the loaded document.
	Violations []Violation
	// Schemas lists the schema kinds the records were checked against.
	Schemas []schema.Kind
}

// OK reports whether the document loads unchanged and passes every check.
func (r CheckReport) OK() bool {
	return len(r.Repairs) == 0 && len(r.Invalid) == 0 && len(r.Violations) == 0
}

// CheckDocument decodes data the way the store would at startup, then
// validates every record against its schema and evaluates engine over the
// result. A nil validator uses the embedded schemas.
func CheckDocument(ctx context.Context, data []byte, defaults Metadata, engine *RulesEngine, v *schema.Validator) (CheckReport, error) {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	if v == nil {
		var err error
		if v, err = schema.New(); err != nil {
			return CheckReport{}, err
		}
	}
	doc, notes := memory.DecodeDocument(data, defaults)
	report := CheckReport{Repairs: notes, Schemas: v.Kinds()}

	check := func(entity domain.EntityType, key string, record any) error {
		kind, ok := schema.KindFor(entity)
		if !ok {
			return fmt.Errorf("no schema for %s", entity)
		}
		obj, err := recordObject(record)
		if err != nil {
			return err
		}
		if err := v.Validate(kind, obj); err != nil {
			report.Invalid = append(report.Invalid, fmt.Sprintf("%s %s: %v", kind.Entity().Label(), key, err))
		}
		return nil
	}
	for _, s := range doc.Services {
		if err := check(EntityService, s.ServiceID, s); err != nil {
			return CheckReport{}, err
		}
	}
	for _, d := range doc.Devices {
		if err := check(EntityDevice, d.DeviceID, d); err != nil {
			return CheckReport{}, err
		}
	}
	for _, d := range doc.Doctors {
		if err := check(EntityDoctor, d.UserID, d); err != nil {
			return CheckReport{}, err
		}
	}
	for _, p := range doc.Patients {
		if err := check(EntityPatient, p.UserID, p); err != nil {
			return CheckReport{}, err
		}
	}

	store := memory.NewStore(engine)
	store.ImportState(doc)
	changes := []domain.Change{
		{Entity: EntityService}, {Entity: EntityDevice},
		{Entity: EntityDoctor}, {Entity: EntityPatient},
	}
	err := store.View(ctx, func(view domain.TransactionView) error {
		res, err := engine.Evaluate(ctx, view, changes)
		if err != nil {
			return err
		}
		report.Violations = res.Violations
		return nil
	})
	if err != nil {
		return CheckReport{}, fmt.Errorf("evaluate rules: %w", err)
	}
	return report, nil
}
