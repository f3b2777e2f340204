package memory

import (
	"encoding/json"
	"testing"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

func TestDecodeDocumentEmptyInputUsesDefaults(t *testing.T) {
	defaults := domain.Metadata{
		CatalogURL:    "http://localhost:9080",
		Broker:        domain.BrokerConfig{"IP": "test.mosquitto.org", "port": 1883},
		ProjectOwners: []string{"team"},
		ProjectName:   "GlucoseIoT",
	}
	for _, input := range [][]byte{nil, []byte("   "), []byte("{not json"), []byte(`[1,2]`)} {
		doc, notes := DecodeDocument(input, defaults)
		if len(notes) == 0 {
			t.Fatalf("expected notes for %q", input)
		}
		if doc.CatalogURL != defaults.CatalogURL || doc.Broker["IP"] != "test.mosquitto.org" {
			t.Fatalf("expected defaults for %q, got %+v", input, doc.Meta())
		}
		if doc.Services == nil || doc.Devices == nil || doc.Doctors == nil || doc.Patients == nil {
			t.Fatalf("expected empty collections for %q", input)
		}
	}
}

func TestDecodeDocumentCoercesNonListCollections(t *testing.T) {
	doc, notes := DecodeDocument([]byte(`{
		"servicesList": {"serviceID": "x"},
		"devicesList": "nope",
		"doctorsList": null,
		"patientsList": 3
	}`), domain.Metadata{})
	if len(doc.Services)+len(doc.Devices)+len(doc.Doctors)+len(doc.Patients) != 0 {
		t.Fatalf("expected every collection reset")
	}
	if len(notes) < 4 {
		t.Fatalf("expected a note per coerced collection, got %v", notes)
	}
}

func TestDecodeDocumentDropsBadRecordsAndKeepsNumbers(t *testing.T) {
	doc, _ := DecodeDocument([]byte(`{
		"patientsList": [
			{"userID": "p1", "role": "Patient", "doctorID": null, "telegram_chat_id": 123456789012,
			 "threshold_parameters": {"max": 180}},
			{"userID": "", "role": "Patient"},
			{"userID": "p2", "role": "Patient", "telegram_chat_id": "not-a-number"}
		]
	}`), domain.Metadata{})
	if len(doc.Patients) != 1 {
		t.Fatalf("expected only the valid patient, got %+v", doc.Patients)
	}
	p := doc.Patients[0]
	if p.TelegramChatID == nil || *p.TelegramChatID != 123456789012 {
		t.Fatalf("expected telegram chat id preserved, got %v", p.TelegramChatID)
	}
	if _, ok := p.ThresholdParameters["max"].(json.Number); !ok {
		t.Fatalf("expected numbers decoded as json.Number, got %T", p.ThresholdParameters["max"])
	}
	if p.ThingspeakInfo == nil || p.DashboardInfo == nil {
		t.Fatalf("expected optional maps defaulted")
	}
}

func TestDecodeDocumentSplitsLegacyUsers(t *testing.T) {
	doc, notes := DecodeDocument([]byte(`{
		"usersList": [
			{"userID": "d1", "role": "MasterDoctor", "patients_id": ["p1"]},
			{"userID": "p1", "role": "Patient", "doctorID": "d1"},
			{"userID": "x", "role": "Nurse"}
		]
	}`), domain.Metadata{})
	if len(doc.Doctors) != 1 || len(doc.Patients) != 1 {
		t.Fatalf("unexpected split: %d doctors, %d patients", len(doc.Doctors), len(doc.Patients))
	}
	if len(notes) == 0 {
		t.Fatalf("expected split notes")
	}
}

func TestHealRepairsBothLinkDirections(t *testing.T) {
	d1 := "d1"
	ghost := "ghost"
	doc := domain.Document{
		Doctors: []domain.Doctor{
			{UserID: "d1", Role: domain.RoleDoctor, PatientsID: []string{"p2", "p2", "missing"}},
			{UserID: "d2", Role: domain.RoleMasterDoctor},
			{UserID: "d1", Role: domain.RoleDoctor},
			{UserID: "bad", Role: "Surgeon"},
		},
		Patients: []domain.Patient{
			{UserID: "p1", Role: domain.RolePatient, DoctorID: &d1},
			{UserID: "p2", Role: "patient", DoctorID: &ghost},
		},
	}
	healed, notes := Heal(doc)
	if len(notes) == 0 {
		t.Fatalf("expected notes")
	}
	if len(healed.Doctors) != 2 {
		t.Fatalf("expected duplicate and invalid-role doctors dropped, got %+v", healed.Doctors)
	}
	if got := healed.Doctors[0].PatientsID; len(got) != 1 || got[0] != "p1" {
		t.Fatalf("expected d1 to list only p1, got %v", got)
	}
	if healed.Patients[1].DoctorID != nil || healed.Patients[1].Role != domain.RolePatient {
		t.Fatalf("expected dangling doctorID cleared and role normalized: %+v", healed.Patients[1])
	}
	if healed.Doctors[1].PatientsID == nil {
		t.Fatalf("expected empty patients_id list")
	}
}

func TestFilterIDs(t *testing.T) {
	out, changed := filterIDs([]string{"a", "b", "a", "c"}, func(id string) bool { return id != "b" })
	if !changed || len(out) != 2 || out[0] != "a" || out[1] != "c" {
		t.Fatalf("unexpected filter result %v %v", out, changed)
	}
	out, changed = filterIDs(nil, func(string) bool { return true })
	if changed || out != nil {
		t.Fatalf("expected nil passthrough")
	}
}
