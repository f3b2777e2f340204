package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var res Result
	res.Merge(Result{})
	if res.HasBlocking() {
		t.Fatalf("empty result must not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if res.HasBlocking() {
		t.Fatalf("warn violation must not block")
	}
	res.Merge(Result{Violations: []Violation{{Rule: "link", Severity: SeverityBlock, Message: "patient p1 missing from doctor d1"}}})
	if !res.HasBlocking() {
		t.Fatalf("expected blocking result")
	}
	err := RuleViolationError{Result: res}
	if err.Error() != "patient p1 missing from doctor d1" {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if (RuleViolationError{}).Error() != "transaction blocked by rules" {
		t.Fatalf("expected generic message for empty result")
	}
}

func TestTimestampRoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	formatted := FormatTimestamp(at)
	if formatted != "2025-03-04 05:06:07" {
		t.Fatalf("unexpected layout %q", formatted)
	}
	parsed, err := ParseTimestamp(formatted)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !parsed.Equal(at) {
		t.Fatalf("expected %v, got %v", at, parsed)
	}
}

func TestParseEntityType(t *testing.T) {
	cases := map[string]EntityType{
		"services":  EntityService,
		"Devices":   EntityDevice,
		"doctors":   EntityDoctor,
		" patients": EntityPatient,
	}
	for in, want := range cases {
		got, ok := ParseEntityType(in)
		if !ok || got != want {
			t.Fatalf("ParseEntityType(%q) = %q, %v", in, got, ok)
		}
	}
	for _, bad := range []string{"users", "broker", "thermostats", ""} {
		if _, ok := ParseEntityType(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
	if EntityPatient.KeyField() != "userID" || EntityService.KeyField() != "serviceID" || EntityDevice.KeyField() != "deviceID" {
		t.Fatalf("unexpected key fields")
	}
}

func TestPatientCloneIsDeep(t *testing.T) {
	doctor := "d1"
	chat := int64(42)
	p := Patient{
		UserID:           "p1",
		DoctorID:         &doctor,
		TelegramChatID:   &chat,
		UserInformation:  map[string]any{"address": map[string]any{"city": "Turin"}},
		ConnectedDevices: []any{map[string]any{"deviceID": "dev1"}},
	}
	clone := p.Clone()
	*clone.DoctorID = "d2"
	*clone.TelegramChatID = 7
	clone.UserInformation["address"].(map[string]any)["city"] = "Milan"
	clone.ConnectedDevices[0].(map[string]any)["deviceID"] = "dev2"

	if *p.DoctorID != "d1" || *p.TelegramChatID != 42 {
		t.Fatalf("pointer fields leaked through clone")
	}
	if p.UserInformation["address"].(map[string]any)["city"] != "Turin" {
		t.Fatalf("nested map leaked through clone")
	}
	if p.ConnectedDevices[0].(map[string]any)["deviceID"] != "dev1" {
		t.Fatalf("nested list leaked through clone")
	}
}

func TestDoctorSanitizedDropsHash(t *testing.T) {
	d := Doctor{UserID: "d1", Role: RoleMasterDoctor, PasswordHash: "$2a$10$x", PatientsID: []string{"p1"}}
	out := d.Sanitized()
	if out.PasswordHash != "" {
		t.Fatalf("expected hash stripped")
	}
	data, err := json.Marshal(out)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := decoded["password_hash"]; ok {
		t.Fatalf("password_hash must not be serialized: %s", data)
	}
	if !d.IsMaster() || !d.HasPatient("p1") || d.HasPatient("p2") {
		t.Fatalf("unexpected doctor helpers result")
	}
}

func TestDocumentNormalizeProducesLists(t *testing.T) {
	var doc Document
	doc.Normalize()
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"servicesList", "devicesList", "doctorsList", "patientsList", "projectOwners"} {
		if _, ok := decoded[key].([]any); !ok {
			t.Fatalf("expected %s to serialize as a list, got %T", key, decoded[key])
		}
	}
	if _, ok := decoded["broker"].(map[string]any); !ok {
		t.Fatalf("expected broker object")
	}
}

func TestErrorMessages(t *testing.T) {
	if got := (NotFoundError{Entity: EntityService, ID: "s"}).Error(); got != "Service not found" {
		t.Fatalf("unexpected not found message %q", got)
	}
	if got := (ConflictError{Entity: EntityPatient, ID: "p1"}).Error(); got != "Patient with ID 'p1' already exists" {
		t.Fatalf("unexpected conflict message %q", got)
	}
	if got := (ValidationError{Entity: EntityDevice}).Error(); got != "Invalid device format" {
		t.Fatalf("unexpected validation message %q", got)
	}
	cause := errors.New("disk full")
	perr := PersistenceError{Op: "save", Err: cause}
	if !errors.Is(perr, cause) {
		t.Fatalf("expected PersistenceError to unwrap")
	}
}

func TestParseTimestampReadsUTC(t *testing.T) {
	parsed, err := ParseTimestamp("2024-06-01 12:00:00")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", parsed.Location())
	}
	if parsed.Hour() != 12 {
		t.Fatalf("expected wall clock kept as-is, got %v", parsed)
	}
}
