package core

import (
	"context"
	"fmt"
	"time"

	"github.com/almecha/GlucoseIoT/internal/schema"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

const managedPatientsMessage = "patients_id is managed through patient assignment"

// ListDoctors returns doctors matching q without their password hashes.
func (s *Service) ListDoctors(ctx context.Context, q Query) ([]Doctor, error) {
	var out []Doctor
	err := s.view(ctx, "list_doctors", func(v domain.TransactionView) error {
		out = []Doctor{}
		for _, d := range v.ListDoctors() {
			if doctorMatches(d, q) {
				out = append(out, d.Sanitized())
			}
		}
		return nil
	})
	return out, err
}

// GetDoctor returns one doctor without its password hash.
func (s *Service) GetDoctor(ctx context.Context, id string) (Doctor, error) {
	var out Doctor
	err := s.view(ctx, "get_doctor", func(v domain.TransactionView) error {
		d, ok := v.FindDoctor(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityDoctor, ID: id}
		}
		out = d.Sanitized()
		return nil
	})
	return out, err
}

// CreateDoctor registers a doctor. The payload carries either a bcrypt
// password_hash or a plaintext password, which is hashed here before the
// store is locked. patients_id must be empty: patients join a doctor only
// through their own doctorID.
func (s *Service) CreateDoctor(ctx context.Context, payload any) (Doctor, error) {
	var doctor Doctor
	obj, err := asObject(EntityDoctor, payload)
	if err == nil {
		err = s.applyPassword(obj)
	}
	if err == nil {
		err = s.validator.Validate(schema.KindDoctorCreate, obj)
	}
	if err == nil {
		err = decodeRecord(EntityDoctor, obj, &doctor)
	}
	if err == nil && len(doctor.PatientsID) > 0 {
		err = domain.IntegrityError{Message: managedPatientsMessage + " and must be empty on creation"}
	}
	if err != nil {
		s.reject(ctx, "create_doctor", err)
		return Doctor{}, err
	}
	var created Doctor
	err = s.run(ctx, "create_doctor", func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateDoctor(doctor)
		return err
	})
	return created.Sanitized(), err
}

// ReplaceDoctor merges payload over the stored doctor. The role is fixed
// after creation and patients_id may only be echoed back unchanged.
func (s *Service) ReplaceDoctor(ctx context.Context, id string, payload any) (Doctor, error) {
	patch, err := asObject(EntityDoctor, payload)
	if err == nil {
		err = s.applyPassword(patch)
	}
	if err != nil {
		s.reject(ctx, "replace_doctor", err)
		return Doctor{}, err
	}
	var updated Doctor
	err = s.run(ctx, "replace_doctor", func(tx domain.Transaction) error {
		current, ok := tx.FindDoctor(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityDoctor, ID: id}
		}
		if raw, ok := patch["role"]; ok {
			if role, _ := raw.(string); role != current.Role {
				return domain.ValidationError{Entity: EntityDoctor, Reasons: []string{"role cannot be changed"}}
			}
		}
		if raw, ok := patch["patients_id"]; ok {
			if ids, isList := stringsFrom(raw); isList && !sameIDSet(ids, current.PatientsID) {
				return domain.IntegrityError{Message: managedPatientsMessage + " and cannot be edited directly"}
			}
		}
		var next Doctor
		if err := s.mergeRecord(schema.KindDoctor, id, current, patch, &next); err != nil {
			return err
		}
		next.PatientsID = current.PatientsID
		var err error
		updated, err = tx.UpdateDoctor(id, func(d *Doctor) error {
			*d = next
			return nil
		})
		return err
	})
	return updated.Sanitized(), err
}

// DeleteDoctor removes a doctor. Its patients move to the first
// MasterDoctor in list order other than the deleted doctor; without one
// they become unassigned.
func (s *Service) DeleteDoctor(ctx context.Context, id string) error {
	return s.run(ctx, "delete_doctor", func(tx domain.Transaction) error {
		doctor, ok := tx.FindDoctor(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityDoctor, ID: id}
		}
		fallbackID := ""
		for _, d := range tx.ListDoctors() {
			if d.UserID != id && d.IsMaster() {
				fallbackID = d.UserID
				break
			}
		}
		var moved []string
		for _, pid := range doctor.PatientsID {
			if _, ok := tx.FindPatient(pid); !ok {
				continue
			}
			if _, err := tx.UpdatePatient(pid, func(p *Patient) error {
				if fallbackID == "" {
					p.DoctorID = nil
					return nil
				}
				target := fallbackID
				p.DoctorID = &target
				return nil
			}); err != nil {
				return err
			}
			moved = append(moved, pid)
		}
		if fallbackID != "" && len(moved) > 0 {
			if _, err := tx.UpdateDoctor(fallbackID, func(d *Doctor) error {
				for _, pid := range moved {
					if !d.HasPatient(pid) {
						d.PatientsID = append(d.PatientsID, pid)
					}
				}
				return nil
			}); err != nil {
				return err
			}
		}
		return tx.DeleteDoctor(id)
	})
}

// ListPatients returns patients matching q.
func (s *Service) ListPatients(ctx context.Context, q Query) ([]Patient, error) {
	var out []Patient
	err := s.view(ctx, "list_patients", func(v domain.TransactionView) error {
		out = []Patient{}
		for _, p := range v.ListPatients() {
			if patientMatches(p, q) {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// GetPatient returns one patient.
func (s *Service) GetPatient(ctx context.Context, id string) (Patient, error) {
	var out Patient
	err := s.view(ctx, "get_patient", func(v domain.TransactionView) error {
		p, ok := v.FindPatient(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityPatient, ID: id}
		}
		out = p
		return nil
	})
	return out, err
}

// CreatePatient registers a patient and appends it to its doctor's
// patients_id in the same transaction.
func (s *Service) CreatePatient(ctx context.Context, payload any) (Patient, error) {
	var patient Patient
	obj, err := s.validObject(schema.KindPatient, payload)
	if err == nil {
		err = decodeRecord(EntityPatient, obj, &patient)
	}
	if err != nil {
		s.reject(ctx, "create_patient", err)
		return Patient{}, err
	}
	var created Patient
	err = s.run(ctx, "create_patient", func(tx domain.Transaction) error {
		if _, exists := tx.FindPatient(patient.UserID); exists {
			return domain.ConflictError{Entity: EntityPatient, ID: patient.UserID}
		}
		doctorID, err := resolveDoctor(tx, patient.DoctorID)
		if err != nil {
			return err
		}
		if created, err = tx.CreatePatient(patient); err != nil {
			return err
		}
		return attachPatient(tx, doctorID, patient.UserID)
	})
	return created, err
}

// ReplacePatient merges payload over the stored patient. A changed
// doctorID moves the patient between the two doctors' patients_id lists.
func (s *Service) ReplacePatient(ctx context.Context, id string, payload any) (Patient, error) {
	patch, err := asObject(EntityPatient, payload)
	if err != nil {
		s.reject(ctx, "replace_patient", err)
		return Patient{}, err
	}
	var updated Patient
	err = s.run(ctx, "replace_patient", func(tx domain.Transaction) error {
		current, ok := tx.FindPatient(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityPatient, ID: id}
		}
		var next Patient
		if err := s.mergeRecord(schema.KindPatient, id, current, patch, &next); err != nil {
			return err
		}
		if !sameDoctor(current.DoctorID, next.DoctorID) {
			newID, err := resolveDoctor(tx, next.DoctorID)
			if err != nil {
				return err
			}
			if current.DoctorID != nil {
				if err := detachPatient(tx, *current.DoctorID, id); err != nil {
					return err
				}
			}
			if err := attachPatient(tx, newID, id); err != nil {
				return err
			}
		}
		var err error
		updated, err = tx.UpdatePatient(id, func(p *Patient) error {
			*p = next
			return nil
		})
		return err
	})
	return updated, err
}

// DeletePatient detaches a patient from its doctor and removes it.
func (s *Service) DeletePatient(ctx context.Context, id string) error {
	return s.run(ctx, "delete_patient", func(tx domain.Transaction) error {
		p, ok := tx.FindPatient(id)
		if !ok {
			return domain.NotFoundError{Entity: EntityPatient, ID: id}
		}
		if p.DoctorID != nil {
			if err := detachPatient(tx, *p.DoctorID, id); err != nil {
				return err
			}
		}
		return tx.DeletePatient(id)
	})
}

// ListUsers returns the read-only union of doctors followed by patients.
func (s *Service) ListUsers(ctx context.Context, q Query) ([]any, error) {
	var out []any
	err := s.view(ctx, "list_users", func(v domain.TransactionView) error {
		out = []any{}
		if _, byDoctor := q.Value("doctorID"); !byDoctor {
			for _, d := range v.ListDoctors() {
				if doctorMatches(d, q) {
					out = append(out, d.Sanitized())
				}
			}
		}
		for _, p := range v.ListPatients() {
			if patientMatches(p, q) {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

// GetUser looks id up among doctors first, then patients.
func (s *Service) GetUser(ctx context.Context, id string) (any, error) {
	var out any
	err := s.view(ctx, "get_user", func(v domain.TransactionView) error {
		if d, ok := v.FindDoctor(id); ok {
			out = d.Sanitized()
			return nil
		}
		if p, ok := v.FindPatient(id); ok {
			out = p
			return nil
		}
		return domain.NotFoundError{Entity: EntityUser, ID: id}
	})
	return out, err
}

// Login checks a doctor's password against the stored bcrypt hash. The
// comparison runs after the snapshot is released.
func (s *Service) Login(ctx context.Context, userID, password string) (Doctor, error) {
	start := time.Now()
	if userID == "" || password == "" {
		err := domain.ValidationError{Reasons: []string{"userID and password are required"}}
		s.finish(ctx, "login", start, err)
		return Doctor{}, err
	}
	var doctor Doctor
	found := false
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		doctor, found = v.FindDoctor(userID)
		return nil
	})
	if err == nil {
		if !found {
			s.hasher.burn(password)
			err = domain.NotFoundError{Entity: EntityDoctor, ID: userID}
		} else {
			err = s.hasher.Compare(doctor.PasswordHash, password)
		}
	}
	s.finish(ctx, "login", start, err)
	if err != nil {
		return Doctor{}, err
	}
	return doctor.Sanitized(), nil
}

// applyPassword replaces a plaintext password field with its bcrypt hash.
func (s *Service) applyPassword(obj map[string]any) error {
	raw, ok := obj["password"]
	if !ok {
		return nil
	}
	if _, both := obj["password_hash"]; both {
		return domain.ValidationError{Entity: EntityDoctor, Reasons: []string{"send either password or password_hash, not both"}}
	}
	password, isString := raw.(string)
	if !isString || password == "" {
		return domain.ValidationError{Entity: EntityDoctor, Reasons: []string{"password must be a non-empty string"}}
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	delete(obj, "password")
	obj["password_hash"] = hash
	return nil
}

func resolveDoctor(tx domain.Transaction, id *string) (string, error) {
	if id == nil || *id == "" {
		return "", domain.IntegrityError{Message: "Patient must be assigned to an existing doctor"}
	}
	if _, ok := tx.FindDoctor(*id); !ok {
		return "", domain.IntegrityError{Message: fmt.Sprintf("Doctor with ID '%s' does not exist", *id)}
	}
	return *id, nil
}

func attachPatient(tx domain.Transaction, doctorID, patientID string) error {
	_, err := tx.UpdateDoctor(doctorID, func(d *Doctor) error {
		if !d.HasPatient(patientID) {
			d.PatientsID = append(d.PatientsID, patientID)
		}
		return nil
	})
	return err
}

func detachPatient(tx domain.Transaction, doctorID, patientID string) error {
	d, ok := tx.FindDoctor(doctorID)
	if !ok || !d.HasPatient(patientID) {
		return nil
	}
	_, err := tx.UpdateDoctor(doctorID, func(d *Doctor) error {
		d.PatientsID = removeID(d.PatientsID, patientID)
		return nil
	})
	return err
}

func sameDoctor(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func doctorMatches(d Doctor, q Query) bool {
	if v, ok := q.Value("userID"); ok && d.UserID != v {
		return false
	}
	if v, ok := q.Value("role"); ok && !matchRole(d.Role, v) {
		return false
	}
	if v, ok := q.Value("telegram_chat_id"); ok && !matchChatID(d.TelegramChatID, v) {
		return false
	}
	return true
}

func patientMatches(p Patient, q Query) bool {
	if v, ok := q.Value("userID"); ok && p.UserID != v {
		return false
	}
	if v, ok := q.Value("role"); ok && !matchRole(p.Role, v) {
		return false
	}
	if v, ok := q.Value("doctorID"); ok && (p.DoctorID == nil || *p.DoctorID != v) {
		return false
	}
	if v, ok := q.Value("telegram_chat_id"); ok && !matchChatID(p.TelegramChatID, v) {
		return false
	}
	return true
}
