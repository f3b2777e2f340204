package memory

import (
	"time"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// transaction represents a mutation set applied to a cloned store state.
type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

func (tx *transaction) stamp() string {
	return domain.FormatTimestamp(tx.now)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// Now returns the timestamp shared by every mutation in the transaction.
func (tx *transaction) Now() time.Time { return tx.now }

// FindService exposes service lookup within the transaction scope.
func (tx *transaction) FindService(id string) (Service, bool) { return tx.state.services.find(id) }

// FindDevice exposes device lookup within the transaction scope.
func (tx *transaction) FindDevice(id string) (Device, bool) { return tx.state.devices.find(id) }

// FindDoctor exposes doctor lookup within the transaction scope.
func (tx *transaction) FindDoctor(id string) (Doctor, bool) { return tx.state.doctors.find(id) }

// FindPatient exposes patient lookup within the transaction scope.
func (tx *transaction) FindPatient(id string) (Patient, bool) { return tx.state.patients.find(id) }

// ListDoctors returns the staged doctors in list order.
func (tx *transaction) ListDoctors() []Doctor { return tx.state.doctors.list() }

// ListPatients returns the staged patients in list order.
func (tx *transaction) ListPatients() []Patient { return tx.state.patients.list() }

func createRecord[T record[T]](tx *transaction, c *collection[T], entity domain.EntityType, item T) (T, error) {
	var zero T
	if item.Key() == "" {
		return zero, domain.ValidationError{Entity: entity, Reasons: []string{entity.KeyField() + " is required"}}
	}
	if !c.insert(item) {
		return zero, domain.ConflictError{Entity: entity, ID: item.Key()}
	}
	tx.recordChange(Change{Entity: entity, Action: domain.ActionCreate, After: item.Clone()})
	return item.Clone(), nil
}

func updateRecord[T record[T]](tx *transaction, c *collection[T], entity domain.EntityType, id string, mutator func(*T) error, finalize func(*T)) (T, error) {
	var zero T
	current, ok := c.find(id)
	if !ok {
		return zero, domain.NotFoundError{Entity: entity, ID: id}
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return zero, err
	}
	finalize(&current)
	c.replace(id, current)
	tx.recordChange(Change{Entity: entity, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

func deleteRecord[T record[T]](tx *transaction, c *collection[T], entity domain.EntityType, id string) error {
	removed, ok := c.remove(id)
	if !ok {
		return domain.NotFoundError{Entity: entity, ID: id}
	}
	tx.recordChange(Change{Entity: entity, Action: domain.ActionDelete, Before: removed})
	return nil
}

// CreateService stores a new service and stamps its registration time.
func (tx *transaction) CreateService(s Service) (Service, error) {
	s.Timestamp = tx.stamp()
	if s.MQTTSub == nil {
		s.MQTTSub = []string{}
	}
	if s.MQTTPub == nil {
		s.MQTTPub = []string{}
	}
	return createRecord(tx, &tx.state.services, domain.EntityService, s)
}

// UpdateService mutates an existing service. The key cannot change.
func (tx *transaction) UpdateService(id string, mutator func(*Service) error) (Service, error) {
	return updateRecord(tx, &tx.state.services, domain.EntityService, id, mutator, func(s *Service) {
		s.ServiceID = id
		s.Timestamp = tx.stamp()
	})
}

// DeleteService removes a service.
func (tx *transaction) DeleteService(id string) error {
	return deleteRecord(tx, &tx.state.services, domain.EntityService, id)
}

// CreateDevice stores a new device; its lastUpdate doubles as the heartbeat.
func (tx *transaction) CreateDevice(d Device) (Device, error) {
	d.LastUpdate = tx.stamp()
	return createRecord(tx, &tx.state.devices, domain.EntityDevice, d)
}

// UpdateDevice mutates an existing device and refreshes its heartbeat.
func (tx *transaction) UpdateDevice(id string, mutator func(*Device) error) (Device, error) {
	return updateRecord(tx, &tx.state.devices, domain.EntityDevice, id, mutator, func(d *Device) {
		d.DeviceID = id
		d.LastUpdate = tx.stamp()
	})
}

// DeleteDevice removes a device.
func (tx *transaction) DeleteDevice(id string) error {
	return deleteRecord(tx, &tx.state.devices, domain.EntityDevice, id)
}

// CreateDoctor stores a new doctor.
func (tx *transaction) CreateDoctor(d Doctor) (Doctor, error) {
	d.LastUpdate = tx.stamp()
	if d.PatientsID == nil {
		d.PatientsID = []string{}
	}
	return createRecord(tx, &tx.state.doctors, domain.EntityDoctor, d)
}

// UpdateDoctor mutates an existing doctor.
func (tx *transaction) UpdateDoctor(id string, mutator func(*Doctor) error) (Doctor, error) {
	return updateRecord(tx, &tx.state.doctors, domain.EntityDoctor, id, mutator, func(d *Doctor) {
		d.UserID = id
		d.LastUpdate = tx.stamp()
		if d.PatientsID == nil {
			d.PatientsID = []string{}
		}
	})
}

// DeleteDoctor removes a doctor. Callers reassign its patients first.
func (tx *transaction) DeleteDoctor(id string) error {
	return deleteRecord(tx, &tx.state.doctors, domain.EntityDoctor, id)
}

// CreatePatient stores a new patient.
func (tx *transaction) CreatePatient(p Patient) (Patient, error) {
	p.LastUpdate = tx.stamp()
	normalizePatient(&p)
	return createRecord(tx, &tx.state.patients, domain.EntityPatient, p)
}

// UpdatePatient mutates an existing patient.
func (tx *transaction) UpdatePatient(id string, mutator func(*Patient) error) (Patient, error) {
	return updateRecord(tx, &tx.state.patients, domain.EntityPatient, id, mutator, func(p *Patient) {
		p.UserID = id
		p.LastUpdate = tx.stamp()
		normalizePatient(p)
	})
}

// DeletePatient removes a patient. Callers detach it from its doctor first.
func (tx *transaction) DeletePatient(id string) error {
	return deleteRecord(tx, &tx.state.patients, domain.EntityPatient, id)
}

// ReplaceBroker swaps the broker configuration object wholesale.
func (tx *transaction) ReplaceBroker(cfg domain.BrokerConfig) domain.BrokerConfig {
	before := tx.state.meta.Broker.Clone()
	tx.state.meta.Broker = cfg.Clone()
	tx.recordChange(Change{Entity: domain.EntityBroker, Action: domain.ActionUpdate, Before: before, After: cfg.Clone()})
	return cfg.Clone()
}

func normalizePatient(p *Patient) {
	if p.UserInformation == nil {
		p.UserInformation = map[string]any{}
	}
	if p.ThresholdParameters == nil {
		p.ThresholdParameters = map[string]any{}
	}
	if p.ConnectedDevices == nil {
		p.ConnectedDevices = []any{}
	}
	if p.ThingspeakInfo == nil {
		p.ThingspeakInfo = map[string]any{}
	}
	if p.DashboardInfo == nil {
		p.DashboardInfo = map[string]any{}
	}
}
