// Package domain defines the catalog document, its record types, and the
// rule evaluation primitives shared by the store and the service layer.
package domain

import (
	"strings"
	"time"
)

// TimestampLayout is the wall-clock format used for every server-assigned
// timestamp in the catalog document.
const TimestampLayout = "2006-01-02 15:04:05"

// FormatTimestamp renders t in TimestampLayout (UTC).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses a value produced by FormatTimestamp. The layout
// carries no zone, so values are always read as UTC, including values from
// older documents that were stamped in local time.
func ParseTimestamp(value string) (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, value, time.UTC)
}

// EntityType identifies the kind of record stored in the catalog.
type EntityType string

// Supported entity types. The string values double as URL path segments.
const (
	// EntityService identifies a registered microservice.
	EntityService EntityType = "services"
	// EntityDevice identifies a sensor or actuator publisher.
	EntityDevice EntityType = "devices"
	// EntityDoctor identifies a clinician account.
	EntityDoctor EntityType = "doctors"
	// EntityPatient identifies a monitored person.
	EntityPatient EntityType = "patients"
	// EntityBroker identifies the MQTT broker configuration object.
	EntityBroker EntityType = "broker"
	// EntityUser is the read-only union of doctors and patients.
	EntityUser EntityType = "users"
)

// Label returns the singular, capitalized name used in client-facing messages.
func (e EntityType) Label() string {
	switch e {
	case EntityService:
		return "Service"
	case EntityDevice:
		return "Device"
	case EntityDoctor:
		return "Doctor"
	case EntityPatient:
		return "Patient"
	case EntityBroker:
		return "Broker"
	case EntityUser:
		return "User"
	default:
		return string(e)
	}
}

// KeyField returns the JSON field holding the primary key of the entity.
func (e EntityType) KeyField() string {
	switch e {
	case EntityService:
		return "serviceID"
	case EntityDevice:
		return "deviceID"
	case EntityDoctor, EntityPatient, EntityUser:
		return "userID"
	default:
		return ""
	}
}

// ParseEntityType maps a path segment onto a collection entity type.
func ParseEntityType(segment string) (EntityType, bool) {
	switch EntityType(strings.ToLower(strings.TrimSpace(segment))) {
	case EntityService:
		return EntityService, true
	case EntityDevice:
		return EntityDevice, true
	case EntityDoctor:
		return EntityDoctor, true
	case EntityPatient:
		return EntityPatient, true
	default:
		return "", false
	}
}

// Role values accepted for doctors and patients.
const (
	RoleDoctor       = "Doctor"
	RoleMasterDoctor = "MasterDoctor"
	RolePatient      = "Patient"
)

// BrokerConfig is the opaque MQTT broker object (host, port, topics).
type BrokerConfig map[string]any

// Clone deep-copies the broker configuration.
func (b BrokerConfig) Clone() BrokerConfig {
	if b == nil {
		return BrokerConfig{}
	}
	return BrokerConfig(CloneObject(b))
}

// Service is a registered microservice.
type Service struct {
	ServiceID    string   `json:"serviceID"`
	RESTEndpoint string   `json:"REST_endpoint"`
	MQTTSub      []string `json:"MQTT_sub"`
	MQTTPub      []string `json:"MQTT_pub"`
	Timestamp    string   `json:"timestamp"`
}

// Key returns the service identifier.
func (s Service) Key() string { return s.ServiceID }

// Clone deep-copies the service.
func (s Service) Clone() Service {
	s.MQTTSub = cloneStrings(s.MQTTSub)
	s.MQTTPub = cloneStrings(s.MQTTPub)
	return s
}

// Device is a measurement publisher whose presence is refreshed by PUT.
type Device struct {
	DeviceID          string   `json:"deviceID"`
	DeviceName        string   `json:"deviceName"`
	MeasureType       []string `json:"measureType"`
	AvailableServices []string `json:"availableServices"`
	ServicesDetails   []any    `json:"servicesDetails"`
	LastUpdate        string   `json:"lastUpdate"`
}

// Key returns the device identifier.
func (d Device) Key() string { return d.DeviceID }

// Clone deep-copies the device.
func (d Device) Clone() Device {
	d.MeasureType = cloneStrings(d.MeasureType)
	d.AvailableServices = cloneStrings(d.AvailableServices)
	d.ServicesDetails = CloneList(d.ServicesDetails)
	return d
}

// Doctor is a clinician account. PatientsID is maintained by patient
// assignment and never edited directly.
type Doctor struct {
	UserID         string   `json:"userID"`
	UserName       string   `json:"userName"`
	Role           string   `json:"role"`
	TelegramChatID *int64   `json:"telegram_chat_id"`
	PasswordHash   string   `json:"password_hash,omitempty"`
	PatientsID     []string `json:"patients_id"`
	LastUpdate     string   `json:"lastUpdate"`
}

// Key returns the doctor identifier.
func (d Doctor) Key() string { return d.UserID }

// Clone deep-copies the doctor.
func (d Doctor) Clone() Doctor {
	d.TelegramChatID = cloneInt64(d.TelegramChatID)
	d.PatientsID = cloneStrings(d.PatientsID)
	return d
}

// Sanitized returns a copy safe for read responses.
func (d Doctor) Sanitized() Doctor {
	out := d.Clone()
	out.PasswordHash = ""
	return out
}

// IsMaster reports whether the doctor can adopt orphaned patients.
func (d Doctor) IsMaster() bool { return d.Role == RoleMasterDoctor }

// HasPatient reports whether id is already listed in PatientsID.
func (d Doctor) HasPatient(id string) bool {
	for _, existing := range d.PatientsID {
		if existing == id {
			return true
		}
	}
	return false
}

// Patient is a monitored person. DoctorID is nil when unassigned.
type Patient struct {
	UserID              string         `json:"userID"`
	UserName            string         `json:"userName,omitempty"`
	Role                string         `json:"role"`
	DoctorID            *string        `json:"doctorID"`
	UserInformation     map[string]any `json:"user_information"`
	ThresholdParameters map[string]any `json:"threshold_parameters"`
	ConnectedDevices    []any          `json:"connected_devices"`
	TelegramChatID      *int64         `json:"telegram_chat_id"`
	ThingspeakInfo      map[string]any `json:"thingspeak_info"`
	DashboardInfo       map[string]any `json:"dashboard_info"`
	LastUpdate          string         `json:"lastUpdate"`
}

// Key returns the patient identifier.
func (p Patient) Key() string { return p.UserID }

// Clone deep-copies the patient.
func (p Patient) Clone() Patient {
	if p.DoctorID != nil {
		id := *p.DoctorID
		p.DoctorID = &id
	}
	p.TelegramChatID = cloneInt64(p.TelegramChatID)
	p.UserInformation = CloneObject(p.UserInformation)
	p.ThresholdParameters = CloneObject(p.ThresholdParameters)
	p.ConnectedDevices = CloneList(p.ConnectedDevices)
	p.ThingspeakInfo = CloneObject(p.ThingspeakInfo)
	p.DashboardInfo = CloneObject(p.DashboardInfo)
	return p
}

// AssignedTo reports whether the patient references doctorID.
func (p Patient) AssignedTo(doctorID string) bool {
	return p.DoctorID != nil && *p.DoctorID == doctorID
}

// Document is the whole persisted catalog.
type Document struct {
	CatalogURL    string       `json:"catalog_url"`
	Broker        BrokerConfig `json:"broker"`
	ProjectOwners []string     `json:"projectOwners"`
	ProjectName   string       `json:"project_name"`
	LastUpdate    string       `json:"lastUpdate"`
	Services      []Service    `json:"servicesList"`
	Devices       []Device     `json:"devicesList"`
	Doctors       []Doctor     `json:"doctorsList"`
	Patients      []Patient    `json:"patientsList"`
}

// Metadata is the catalog-level configuration exposed by GET /config.
type Metadata struct {
	CatalogURL    string       `json:"catalog_url"`
	Broker        BrokerConfig `json:"broker"`
	ProjectOwners []string     `json:"projectOwners"`
	ProjectName   string       `json:"project_name"`
	LastUpdate    string       `json:"lastUpdate"`
}

// Clone deep-copies the metadata.
func (m Metadata) Clone() Metadata {
	m.Broker = m.Broker.Clone()
	m.ProjectOwners = cloneStrings(m.ProjectOwners)
	return m
}

// Normalize replaces nil collections with empty ones so the document always
// serializes with list-valued collections.
func (d *Document) Normalize() {
	if d.Broker == nil {
		d.Broker = BrokerConfig{}
	}
	if d.ProjectOwners == nil {
		d.ProjectOwners = []string{}
	}
	if d.Services == nil {
		d.Services = []Service{}
	}
	if d.Devices == nil {
		d.Devices = []Device{}
	}
	if d.Doctors == nil {
		d.Doctors = []Doctor{}
	}
	if d.Patients == nil {
		d.Patients = []Patient{}
	}
}

// Meta extracts the catalog-level metadata.
func (d Document) Meta() Metadata {
	return Metadata{
		CatalogURL:    d.CatalogURL,
		Broker:        d.Broker,
		ProjectOwners: d.ProjectOwners,
		ProjectName:   d.ProjectName,
		LastUpdate:    d.LastUpdate,
	}.Clone()
}

// Change describes a mutation applied to a record during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations.
const (
	// ActionCreate indicates a record was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates a record was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Message != "" {
			return v.Message
		}
	}
	return "transaction blocked by rules"
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}
