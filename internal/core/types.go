package core

import "github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Base               = domain.Base
	Workspace          = domain.Workspace
	Framework          = domain.Framework
	Control            = domain.Control
	Risk               = domain.Risk
	Dataset            = domain.Dataset
	DatasetFile        = domain.DatasetFile
	Event              = domain.Event
	EventKind          = domain.EventKind
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	Rule               = domain.Rule
	RulesEngine        = domain.RulesEngine
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	EntityWorkspace   = domain.EntityWorkspace
	EntityFramework   = domain.EntityFramework
	EntityControl     = domain.EntityControl
	EntityRisk        = domain.EntityRisk
	EntityDataset     = domain.EntityDataset
	EntityDatasetFile = domain.EntityDatasetFile
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
