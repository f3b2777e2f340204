package core

import "github.com/almecha/GlucoseIoT/pkg/domain"

type (
	EntityType         = domain.EntityType
	Device             = domain.Device
	Doctor             = domain.Doctor
	Patient            = domain.Patient
	Document           = domain.Document
	Metadata           = domain.Metadata
	BrokerConfig       = domain.BrokerConfig
	Change             = domain.Change
	Action             = domain.Action
	Severity           = domain.Severity
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
)

const (
	EntityService = domain.EntityService
	EntityDevice  = domain.EntityDevice
	EntityDoctor  = domain.EntityDoctor
	EntityPatient = domain.EntityPatient
	EntityBroker  = domain.EntityBroker
	EntityUser    = domain.EntityUser
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)

const (
	ActionCreate = domain.ActionCreate
	ActionUpdate = domain.ActionUpdate
	ActionDelete = domain.ActionDelete
)
