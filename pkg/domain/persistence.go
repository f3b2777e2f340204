package domain

import (
	"context"
	"time"
)

// Transaction exposes the mutations a store must support within one atomic
// scope. Every change is staged and becomes visible only if the whole
// transaction commits.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time
	FindService(id string) (Service, bool)
	FindDevice(id string) (Device, bool)
	FindDoctor(id string) (Doctor, bool)
	FindPatient(id string) (Patient, bool)
	ListDoctors() []Doctor
	ListPatients() []Patient
	CreateService(Service) (Service, error)
	UpdateService(id string, mutator func(*Service) error) (Service, error)
	DeleteService(id string) error
	CreateDevice(Device) (Device, error)
	UpdateDevice(id string, mutator func(*Device) error) (Device, error)
	DeleteDevice(id string) error
	CreateDoctor(Doctor) (Doctor, error)
	UpdateDoctor(id string, mutator func(*Doctor) error) (Doctor, error)
	DeleteDoctor(id string) error
	CreatePatient(Patient) (Patient, error)
	UpdatePatient(id string, mutator func(*Patient) error) (Patient, error)
	DeletePatient(id string) error
	ReplaceBroker(BrokerConfig) BrokerConfig
}

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	RuleView
	Metadata() Metadata
	Document() Document
}

// PersistentStore is the abstraction the service layer depends on.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}

// Persister is a durable backend for the whole document. Load returns nil
// bytes when nothing has been stored yet. Save must be atomic: either the new
// document is durable or the previous one is left intact.
type Persister interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, doc Document) error
}
