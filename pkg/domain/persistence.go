package domain

import "context"

// Transaction exposes the domain operations that a persistence implementation
// must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateWorkspace(Workspace) (Workspace, error)
	UpdateWorkspace(id string, mutator func(*Workspace) error) (Workspace, error)
	DeleteWorkspace(id string) error
	CreateFramework(Framework) (Framework, error)
	UpdateFramework(id string, mutator func(*Framework) error) (Framework, error)
	DeleteFramework(id string) error
	CreateControl(Control) (Control, error)
	UpdateControl(id string, mutator func(*Control) error) (Control, error)
	DeleteControl(id string) error
	CreateRisk(Risk) (Risk, error)
	UpdateRisk(id string, mutator func(*Risk) error) (Risk, error)
	DeleteRisk(id string) error
	CreateDataset(Dataset) (Dataset, error)
	UpdateDataset(id string, mutator func(*Dataset) error) (Dataset, error)
	DeleteDataset(id string) error
	CreateDatasetFile(DatasetFile) (DatasetFile, error)
	DeleteDatasetFile(id string) error
	FindWorkspace(id string) (Workspace, bool)
	FindFramework(id string) (Framework, bool)
	FindDataset(id string) (Dataset, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	RuleView
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetWorkspace(id string) (Workspace, bool)
	ListWorkspaces() []Workspace
	GetFramework(id string) (Framework, bool)
	ListFrameworks() []Framework
	ListControls() []Control
	GetRisk(id string) (Risk, bool)
	ListRisks() []Risk
	GetDataset(id string) (Dataset, bool)
	ListDatasets() []Dataset
	ListDatasetFiles() []DatasetFile
}
