// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives shared by the plugin host and its plugins.
package domain

import "time"

// EntityType identifies the type of record stored in the core domain.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityWorkspace identifies a governance workspace record.
	EntityWorkspace EntityType = "workspace"
	// EntityFramework identifies an installed compliance framework record.
	EntityFramework EntityType = "framework"
	// EntityControl identifies a framework control record.
	EntityControl EntityType = "control"
	// EntityRisk identifies a risk register record.
	EntityRisk EntityType = "risk"
	// EntityDataset identifies a dataset record.
	EntityDataset EntityType = "dataset"
	// EntityDatasetFile identifies an uploaded dataset file record.
	EntityDatasetFile EntityType = "dataset_file"
	// EntityActivity identifies an activity feed record.
	EntityActivity EntityType = "activity"
)

// ControlStatus enumerates the implementation states a framework control moves through.
type ControlStatus string

// Canonical control statuses used by compliance reporting.
const (
	ControlStatusNotStarted    ControlStatus = "not_started"
	ControlStatusInProgress    ControlStatus = "in_progress"
	ControlStatusImplemented   ControlStatus = "implemented"
	ControlStatusNotApplicable ControlStatus = "not_applicable"
)

// RiskStatus enumerates risk register workflow states.
type RiskStatus string

// Canonical risk statuses used for register filtering and reporting.
const (
	RiskStatusOpen      RiskStatus = "open"
	RiskStatusMitigated RiskStatus = "mitigated"
	RiskStatusAccepted  RiskStatus = "accepted"
	RiskStatusClosed    RiskStatus = "closed"
)

// RiskLevel grades likelihood, impact, and the derived risk severity.
type RiskLevel string

// Canonical risk levels ordered from negligible to critical.
const (
	RiskLevelNegligible RiskLevel = "negligible"
	RiskLevelLow        RiskLevel = "low"
	RiskLevelMedium     RiskLevel = "medium"
	RiskLevelHigh       RiskLevel = "high"
	RiskLevelCritical   RiskLevel = "critical"
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

// Base contains common fields for all domain records.
type Base struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Workspace scopes governance records to a single tenant project.
type Workspace struct {
	Base
	Name           string  `json:"name"`
	OrganizationID string  `json:"organization_id"`
	Owner          string  `json:"owner"`
	Description    *string `json:"description,omitempty"`
}

// Framework represents a compliance framework installed into a workspace.
type Framework struct {
	Base
	WorkspaceID string   `json:"workspace_id"`
	TemplateID  string   `json:"template_id"`
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description *string  `json:"description,omitempty"`
	ControlIDs  []string `json:"control_ids"`
}

// Control represents a single requirement within an installed framework.
type Control struct {
	Base
	FrameworkID string        `json:"framework_id"`
	Code        string        `json:"code"`
	Title       string        `json:"title"`
	Description *string       `json:"description,omitempty"`
	Status      ControlStatus `json:"status"`
	Owner       *string       `json:"owner,omitempty"`
	Evidence    []string      `json:"evidence"`
}

// Risk represents an entry in a workspace risk register.
type Risk struct {
	Base
	WorkspaceID string     `json:"workspace_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description,omitempty"`
	Category    string     `json:"category"`
	Likelihood  RiskLevel  `json:"likelihood"`
	Impact      RiskLevel  `json:"impact"`
	Severity    RiskLevel  `json:"severity"`
	Status      RiskStatus `json:"status"`
	Owner       *string    `json:"owner,omitempty"`
	Mitigation  *string    `json:"mitigation,omitempty"`
	Source      *string    `json:"source,omitempty"`
}

// Dataset groups uploaded files under a single named collection.
type Dataset struct {
	Base
	WorkspaceID string   `json:"workspace_id"`
	Name        string   `json:"name"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags"`
	FileIDs     []string `json:"file_ids"`
}

// DatasetFile records one uploaded file and its blob location.
type DatasetFile struct {
	Base
	DatasetID   string `json:"dataset_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
	BlobKey     string `json:"blob_key"`
	Checksum    string `json:"checksum"`
	UploadedBy  string `json:"uploaded_by"`
}

// ActivityRecord captures a single entry in the workspace activity feed.
type ActivityRecord struct {
	Base
	WorkspaceID string     `json:"workspace_id"`
	Kind        EventKind  `json:"kind"`
	Actor       string     `json:"actor"`
	Entity      EntityType `json:"entity"`
	EntityID    string     `json:"entity_id"`
	Message     string     `json:"message"`
	OccurredAt  time.Time  `json:"occurred_at"`
}

// LevelRank orders risk levels from negligible (0) to critical (4) for comparison.
func LevelRank(l RiskLevel) int {
	switch l {
	case RiskLevelNegligible:
		return 0
	case RiskLevelLow:
		return 1
	case RiskLevelMedium:
		return 2
	case RiskLevelHigh:
		return 3
	case RiskLevelCritical:
		return 4
	default:
		return 0
	}
}

// DeriveSeverity combines likelihood and impact into the register severity,
// taking the higher of the two grades.
func DeriveSeverity(likelihood, impact RiskLevel) RiskLevel {
	if LevelRank(likelihood) >= LevelRank(impact) {
		return likelihood
	}
	return impact
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported CRUD operations captured in audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
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
	return "transaction blocked by rules"
}
