package core

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/almecha/GlucoseIoT/internal/infra/persistence/memory"
	"github.com/almecha/GlucoseIoT/pkg/domain"
)

func newCatalog(t *testing.T, opts ...Option) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore(NewDefaultRulesEngine())
	opts = append([]Option{WithPasswordHasher(NewPasswordHasher(bcrypt.MinCost))}, opts...)
	return NewService(store, opts...), store
}

func payload(t *testing.T, raw string) any {
	t.Helper()
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var out any
	require.NoError(t, dec.Decode(&out))
	return out
}

func servicePayload(id string) string {
	return `{"serviceID":"` + id + `","REST_endpoint":"http://localhost:8080","MQTT_sub":["glucose/+"],"MQTT_pub":[]}`
}

func devicePayload(id string) string {
	return `{"deviceID":"` + id + `","deviceName":"CGM","measureType":["glucose"],"availableServices":["MQTT"],"servicesDetails":[{"serviceType":"MQTT","topic":["glucose/` + id + `"]}]}`
}

func doctorPayload(id, role string) string {
	return `{"userID":"` + id + `","userName":"Dr ` + id + `","role":"` + role + `","password":"secret-` + id + `","telegram_chat_id":1000}`
}

func patientPayload(id, doctorID string) string {
	doctor := "null"
	if doctorID != "" {
		doctor = `"` + doctorID + `"`
	}
	return `{"userID":"` + id + `","role":"Patient","doctorID":` + doctor + `,"user_information":{"name":"` + id + `"},"threshold_parameters":{"min":70,"max":180},"connected_devices":[]}`
}

func mustDoctor(t *testing.T, svc *Service, id, role string) Doctor {
	t.Helper()
	d, err := svc.CreateDoctor(context.Background(), payload(t, doctorPayload(id, role)))
	require.NoError(t, err)
	return d
}

func mustPatient(t *testing.T, svc *Service, id, doctorID string) Patient {
	t.Helper()
	p, err := svc.CreatePatient(context.Background(), payload(t, patientPayload(id, doctorID)))
	require.NoError(t, err)
	return p
}

// requireLinksConsistent checks both directions of the doctor/patient relation.
func requireLinksConsistent(t *testing.T, svc *Service) {
	t.Helper()
	doc, err := svc.Document(context.Background())
	require.NoError(t, err)
	res, err := DoctorPatientLinkRule().Evaluate(context.Background(), docView(doc), []domain.Change{{Entity: domain.EntityPatient}})
	require.NoError(t, err)
	require.Empty(t, res.Violations)
}

type docView domain.Document

func (v docView) ListServices() []domain.Service { return v.Services }
func (v docView) ListDevices() []domain.Device   { return v.Devices }
func (v docView) ListDoctors() []domain.Doctor   { return v.Doctors }
func (v docView) ListPatients() []domain.Patient { return v.Patients }
func (v docView) FindService(id string) (domain.Service, bool) {
	for _, s := range v.Services {
		if s.ServiceID == id {
			return s, true
		}
	}
	return domain.Service{}, false
}
func (v docView) FindDevice(id string) (domain.Device, bool) {
	for _, d := range v.Devices {
		if d.DeviceID == id {
			return d, true
		}
	}
	return domain.Device{}, false
}
func (v docView) FindDoctor(id string) (domain.Doctor, bool) {
	for _, d := range v.Doctors {
		if d.UserID == id {
			return d, true
		}
	}
	return domain.Doctor{}, false
}
func (v docView) FindPatient(id string) (domain.Patient, bool) {
	for _, p := range v.Patients {
		if p.UserID == id {
			return p, true
		}
	}
	return domain.Patient{}, false
}
