// Package memory provides the transactional in-memory catalog store. Every
// mutation is staged on a private clone, checked by the rules engine, flushed
// to the configured persister and only then swapped in as the committed state.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Service aliases domain.Service.
	Service = domain.Service
	// Device aliases domain.Device.
	Device = domain.Device
	// Doctor aliases domain.Doctor.
	Doctor = domain.Doctor
	// Patient aliases domain.Patient.
	Patient = domain.Patient
	// Document aliases domain.Document, the persisted shape of the state.
	Document = domain.Document
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	meta     domain.Metadata
	services collection[Service]
	devices  collection[Device]
	doctors  collection[Doctor]
	patients collection[Patient]
}

func newMemoryState() memoryState {
	return stateFromDocument(Document{})
}

func stateFromDocument(doc Document) memoryState {
	doc.Normalize()
	return memoryState{
		meta:     doc.Meta(),
		services: newCollection(doc.Services),
		devices:  newCollection(doc.Devices),
		doctors:  newCollection(doc.Doctors),
		patients: newCollection(doc.Patients),
	}
}

func (s memoryState) clone() memoryState {
	return memoryState{
		meta:     s.meta.Clone(),
		services: s.services.clone(),
		devices:  s.devices.clone(),
		doctors:  s.doctors.clone(),
		patients: s.patients.clone(),
	}
}

func (s memoryState) document() Document {
	meta := s.meta.Clone()
	doc := Document{
		CatalogURL:    meta.CatalogURL,
		Broker:        meta.Broker,
		ProjectOwners: meta.ProjectOwners,
		ProjectName:   meta.ProjectName,
		LastUpdate:    meta.LastUpdate,
		Services:      s.services.list(),
		Devices:       s.devices.list(),
		Doctors:       s.doctors.list(),
		Patients:      s.patients.list(),
	}
	doc.Normalize()
	return doc
}

// Store provides an in-memory transactional store for the catalog.
type Store struct {
	mu        sync.RWMutex
	state     memoryState
	engine    *RulesEngine
	persister domain.Persister
	nowFn     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithPersister flushes every committed document to p before it becomes visible.
func WithPersister(p domain.Persister) Option {
	return func(s *Store) { s.persister = p }
}

// WithClock overrides the time source used for server-assigned timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore hydrates the store from its persister. Missing or damaged input
// never fails: the recoverable parts are kept, defaults fill the rest, and
// the healed document is written back once. A persister that cannot be read
// is a PersistenceError and nothing is written back. The returned notes
// describe every repair that was applied.
func (s *Store) Restore(ctx context.Context, defaults domain.Metadata) ([]string, error) {
	var raw []byte
	if s.persister != nil {
		data, err := s.persister.Load(ctx)
		if err != nil {
			return nil, domain.PersistenceError{Op: "load", Err: err}
		}
		raw = data
	}
	doc, notes := DecodeDocument(raw, defaults)

	s.mu.Lock()
	defer s.mu.Unlock()
	if doc.LastUpdate == "" {
		doc.LastUpdate = domain.FormatTimestamp(s.nowFn())
	}
	if s.persister != nil {
		if err := s.persister.Save(ctx, doc); err != nil {
			return notes, domain.PersistenceError{Op: "save", Err: err}
		}
	}
	s.state = stateFromDocument(doc)
	return notes, nil
}

// ExportState clones the current document for external persistence.
func (s *Store) ExportState() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.document()
}

// ImportState replaces the store state with the healed form of doc. It does
// not touch the persister.
func (s *Store) ImportState(doc Document) []string {
	healed, notes := Heal(doc)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateFromDocument(healed)
	return notes
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The copy is committed only when fn succeeds, no blocking rule
// fires, and the persister accepted the resulting document. The write lock
// is held for the whole sequence so mutations are serialized.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}
	if len(tx.changes) == 0 {
		return Result{}, nil
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	tx.state.meta.LastUpdate = domain.FormatTimestamp(tx.now)
	if s.persister != nil {
		if err := s.persister.Save(ctx, tx.state.document()); err != nil {
			return result, domain.PersistenceError{Op: "save", Err: err}
		}
	}
	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()

	return fn(newTransactionView(&snapshot))
}

// transactionView exposes a read-only snapshot to rules and readers.
type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListServices returns all services in registration order.
func (v transactionView) ListServices() []Service { return v.state.services.list() }

// ListDevices returns all devices in registration order.
func (v transactionView) ListDevices() []Device { return v.state.devices.list() }

// ListDoctors returns all doctors in registration order.
func (v transactionView) ListDoctors() []Doctor { return v.state.doctors.list() }

// ListPatients returns all patients in registration order.
func (v transactionView) ListPatients() []Patient { return v.state.patients.list() }

// FindService retrieves a service by ID.
func (v transactionView) FindService(id string) (Service, bool) { return v.state.services.find(id) }

// FindDevice retrieves a device by ID.
func (v transactionView) FindDevice(id string) (Device, bool) { return v.state.devices.find(id) }

// FindDoctor retrieves a doctor by ID.
func (v transactionView) FindDoctor(id string) (Doctor, bool) { return v.state.doctors.find(id) }

// FindPatient retrieves a patient by ID.
func (v transactionView) FindPatient(id string) (Patient, bool) { return v.state.patients.find(id) }

// Metadata returns the catalog-level fields.
func (v transactionView) Metadata() domain.Metadata { return v.state.meta.Clone() }

// Document returns the full document as it would be persisted.
func (v transactionView) Document() Document { return v.state.document() }
