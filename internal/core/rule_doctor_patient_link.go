package core

import (
	"context"
	"fmt"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

const doctorPatientLinkRuleName = "doctor_patient_link"

// DoctorPatientLinkRule keeps the doctor/patient relation consistent in both
// directions: every assigned patient is listed by its doctor, and every
// listed patient points back at the listing doctor.
func DoctorPatientLinkRule() domain.Rule {
	return doctorPatientLinkRule{}
}

type doctorPatientLinkRule struct{}

func (doctorPatientLinkRule) Name() string { return doctorPatientLinkRuleName }

func (doctorPatientLinkRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if !touchesUsers(changes) {
		return res, nil
	}

	doctors := view.ListDoctors()
	doctorIndex := make(map[string]domain.Doctor, len(doctors))
	for _, d := range doctors {
		doctorIndex[d.UserID] = d
	}
	patients := view.ListPatients()
	patientIndex := make(map[string]domain.Patient, len(patients))
	for _, p := range patients {
		patientIndex[p.UserID] = p
	}

	for _, p := range patients {
		if p.DoctorID == nil {
			continue
		}
		d, ok := doctorIndex[*p.DoctorID]
		if !ok {
			res.Violations = append(res.Violations, linkViolation(domain.EntityPatient, p.UserID,
				fmt.Sprintf("patient %s references missing doctor %s", p.UserID, *p.DoctorID)))
			continue
		}
		if !d.HasPatient(p.UserID) {
			res.Violations = append(res.Violations, linkViolation(domain.EntityPatient, p.UserID,
				fmt.Sprintf("doctor %s does not list patient %s", d.UserID, p.UserID)))
		}
	}

	for _, d := range doctors {
		seen := make(map[string]struct{}, len(d.PatientsID))
		for _, pid := range d.PatientsID {
			if _, dup := seen[pid]; dup {
				res.Violations = append(res.Violations, linkViolation(domain.EntityDoctor, d.UserID,
					fmt.Sprintf("doctor %s lists patient %s more than once", d.UserID, pid)))
				continue
			}
			seen[pid] = struct{}{}
			p, ok := patientIndex[pid]
			if !ok {
				res.Violations = append(res.Violations, linkViolation(domain.EntityDoctor, d.UserID,
					fmt.Sprintf("doctor %s lists missing patient %s", d.UserID, pid)))
				continue
			}
			if !p.AssignedTo(d.UserID) {
				res.Violations = append(res.Violations, linkViolation(domain.EntityDoctor, d.UserID,
					fmt.Sprintf("doctor %s lists patient %s assigned elsewhere", d.UserID, pid)))
			}
		}
	}
	return res, nil
}

func touchesUsers(changes []domain.Change) bool {
	for _, change := range changes {
		if change.Entity == domain.EntityDoctor || change.Entity == domain.EntityPatient {
			return true
		}
	}
	return false
}

func linkViolation(entity domain.EntityType, id, message string) domain.Violation {
	return domain.Violation{
		Rule:     doctorPatientLinkRuleName,
		Severity: domain.SeverityBlock,
		Message:  message,
		Entity:   entity,
		EntityID: id,
	}
}
