package memory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/almecha/GlucoseIoT/pkg/domain"
)

// legacyUsersKey is the single user collection older catalog files carried
// before doctors and patients were split.
const legacyUsersKey = "usersList"

// DecodeDocument parses a stored document without ever failing. Every
// top-level field is decoded on its own so one damaged section does not take
// down the others; defaults fill whatever is missing. The decoded document
// is then healed.
//
//nolint:gocyclo // decoding walks each top-level section once for parity with older files.
func DecodeDocument(data []byte, defaults domain.Metadata) (Document, []string) {
	var notes []string
	doc := Document{
		CatalogURL:    defaults.CatalogURL,
		Broker:        defaults.Broker.Clone(),
		ProjectOwners: append([]string(nil), defaults.ProjectOwners...),
		ProjectName:   defaults.ProjectName,
	}

	if len(bytes.TrimSpace(data)) == 0 {
		notes = append(notes, "no stored document; starting from defaults")
		healed, healNotes := Heal(doc)
		return healed, append(notes, healNotes...)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		notes = append(notes, fmt.Sprintf("stored document is not a JSON object (%v); starting from defaults", err))
		healed, healNotes := Heal(doc)
		return healed, append(notes, healNotes...)
	}

	decodeField(top, "catalog_url", &doc.CatalogURL, &notes)
	decodeField(top, "project_name", &doc.ProjectName, &notes)
	decodeField(top, "lastUpdate", &doc.LastUpdate, &notes)
	decodeField(top, "projectOwners", &doc.ProjectOwners, &notes)
	var broker map[string]any
	if decodeField(top, "broker", &broker, &notes) && broker != nil {
		doc.Broker = broker
	}

	doc.Services = decodeList[Service](top, "servicesList", domain.EntityService, &notes)
	doc.Devices = decodeList[Device](top, "devicesList", domain.EntityDevice, &notes)

	_, hasDoctors := top["doctorsList"]
	_, hasPatients := top["patientsList"]
	if legacy, ok := top[legacyUsersKey]; ok && !hasDoctors && !hasPatients {
		doc.Doctors, doc.Patients = splitLegacyUsers(legacy, &notes)
	} else {
		doc.Doctors = decodeList[Doctor](top, "doctorsList", domain.EntityDoctor, &notes)
		doc.Patients = decodeList[Patient](top, "patientsList", domain.EntityPatient, &notes)
	}

	healed, healNotes := Heal(doc)
	return healed, append(notes, healNotes...)
}

func decodeField(top map[string]json.RawMessage, key string, target any, notes *[]string) bool {
	raw, ok := top[key]
	if !ok || isNull(raw) {
		return false
	}
	if err := unmarshalNumbers(raw, target); err != nil {
		*notes = append(*notes, fmt.Sprintf("%s is malformed (%v); using default", key, err))
		return false
	}
	return true
}

func decodeList[T record[T]](top map[string]json.RawMessage, key string, entity domain.EntityType, notes *[]string) []T {
	raw, ok := top[key]
	if !ok {
		*notes = append(*notes, fmt.Sprintf("%s missing; initialized to empty list", key))
		return []T{}
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil || elems == nil {
		*notes = append(*notes, fmt.Sprintf("%s was not a list; re-initialized to empty list", key))
		return []T{}
	}
	out := make([]T, 0, len(elems))
	for i, elem := range elems {
		var item T
		if err := unmarshalNumbers(elem, &item); err != nil {
			*notes = append(*notes, fmt.Sprintf("%s[%d] dropped: %v", key, i, err))
			continue
		}
		if item.Key() == "" {
			*notes = append(*notes, fmt.Sprintf("%s[%d] dropped: missing %s", key, i, entity.KeyField()))
			continue
		}
		out = append(out, item)
	}
	return out
}

func splitLegacyUsers(raw json.RawMessage, notes *[]string) ([]Doctor, []Patient) {
	doctors := []Doctor{}
	patients := []Patient{}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		*notes = append(*notes, legacyUsersKey+" was not a list; ignored")
		return doctors, patients
	}
	for i, elem := range elems {
		var probe struct {
			Role string `json:"role"`
		}
		if err := json.Unmarshal(elem, &probe); err != nil {
			*notes = append(*notes, fmt.Sprintf("%s[%d] dropped: %v", legacyUsersKey, i, err))
			continue
		}
		switch probe.Role {
		case domain.RolePatient:
			var p Patient
			if err := unmarshalNumbers(elem, &p); err == nil && p.UserID != "" {
				patients = append(patients, p)
				continue
			}
		case domain.RoleDoctor, domain.RoleMasterDoctor:
			var d Doctor
			if err := unmarshalNumbers(elem, &d); err == nil && d.UserID != "" {
				doctors = append(doctors, d)
				continue
			}
		}
		*notes = append(*notes, fmt.Sprintf("%s[%d] dropped: unrecognized user record", legacyUsersKey, i))
	}
	*notes = append(*notes, fmt.Sprintf("split %s into %d doctors and %d patients", legacyUsersKey, len(doctors), len(patients)))
	return doctors, patients
}

// Heal normalizes a decoded document: nil collections become empty, records
// with duplicate keys or invalid roles are dropped (first occurrence wins),
// and the doctor/patient links are repaired so that both directions agree.
func Heal(doc Document) (Document, []string) {
	var notes []string
	doc.Normalize()

	doc.Services = dedupe(doc.Services, "servicesList", &notes)
	doc.Devices = dedupe(doc.Devices, "devicesList", &notes)
	doc.Doctors = dedupe(doc.Doctors, "doctorsList", &notes)
	doc.Patients = dedupe(doc.Patients, "patientsList", &notes)

	doctors := doc.Doctors[:0]
	for _, d := range doc.Doctors {
		if d.Role != domain.RoleDoctor && d.Role != domain.RoleMasterDoctor {
			notes = append(notes, fmt.Sprintf("doctor %s dropped: invalid role %q", d.UserID, d.Role))
			continue
		}
		if d.PatientsID == nil {
			d.PatientsID = []string{}
		}
		doctors = append(doctors, d)
	}
	doc.Doctors = doctors

	doctorPos := make(map[string]int, len(doc.Doctors))
	for i, d := range doc.Doctors {
		doctorPos[d.UserID] = i
	}
	for i := range doc.Patients {
		p := &doc.Patients[i]
		if p.Role != domain.RolePatient {
			notes = append(notes, fmt.Sprintf("patient %s role %q normalized to %s", p.UserID, p.Role, domain.RolePatient))
			p.Role = domain.RolePatient
		}
		normalizePatient(p)
		if p.DoctorID != nil {
			if _, ok := doctorPos[*p.DoctorID]; !ok {
				notes = append(notes, fmt.Sprintf("patient %s referenced missing doctor %s; unassigned", p.UserID, *p.DoctorID))
				p.DoctorID = nil
			}
		}
	}

	patientDoctor := make(map[string]string, len(doc.Patients))
	for _, p := range doc.Patients {
		if p.DoctorID != nil {
			patientDoctor[p.UserID] = *p.DoctorID
		}
	}
	for i := range doc.Doctors {
		d := &doc.Doctors[i]
		filtered, changed := filterIDs(d.PatientsID, func(id string) bool {
			return patientDoctor[id] == d.UserID
		})
		if changed {
			notes = append(notes, fmt.Sprintf("doctor %s patients_id pruned to assigned patients", d.UserID))
			d.PatientsID = filtered
		}
	}
	for _, p := range doc.Patients {
		if p.DoctorID == nil {
			continue
		}
		d := &doc.Doctors[doctorPos[*p.DoctorID]]
		if !d.HasPatient(p.UserID) {
			notes = append(notes, fmt.Sprintf("patient %s appended to doctor %s", p.UserID, d.UserID))
			d.PatientsID = append(d.PatientsID, p.UserID)
		}
	}
	return doc, notes
}

func dedupe[T record[T]](items []T, key string, notes *[]string) []T {
	seen := make(map[string]struct{}, len(items))
	out := make([]T, 0, len(items))
	for _, item := range items {
		if _, dup := seen[item.Key()]; dup {
			*notes = append(*notes, fmt.Sprintf("%s duplicate %s dropped", key, item.Key()))
			continue
		}
		seen[item.Key()] = struct{}{}
		out = append(out, item)
	}
	return out
}

// filterIDs keeps values accepted by keep, dropping duplicates. The second
// return value reports whether anything was removed.
func filterIDs(values []string, keep func(string) bool) ([]string, bool) {
	if len(values) == 0 {
		return values, false
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup || !keep(v) {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out, len(out) != len(values)
}

func unmarshalNumbers(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(target)
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}
