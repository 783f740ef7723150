// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interfaces.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Workspace aliases domain.Workspace for in-memory persistence operations.
	Workspace = domain.Workspace
	// Framework aliases domain.Framework.
	Framework = domain.Framework
	// Control aliases domain.Control.
	Control = domain.Control
	// Risk aliases domain.Risk.
	Risk = domain.Risk
	// Dataset aliases domain.Dataset.
	Dataset = domain.Dataset
	// DatasetFile aliases domain.DatasetFile.
	DatasetFile = domain.DatasetFile
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	workspaces   map[string]Workspace
	frameworks   map[string]Framework
	controls     map[string]Control
	risks        map[string]Risk
	datasets     map[string]Dataset
	datasetFiles map[string]DatasetFile
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Workspaces   map[string]Workspace   `json:"workspaces"`
	Frameworks   map[string]Framework   `json:"frameworks"`
	Controls     map[string]Control     `json:"controls"`
	Risks        map[string]Risk        `json:"risks"`
	Datasets     map[string]Dataset     `json:"datasets"`
	DatasetFiles map[string]DatasetFile `json:"dataset_files"`
}

func newMemoryState() memoryState {
	return memoryState{
		workspaces:   make(map[string]Workspace),
		frameworks:   make(map[string]Framework),
		controls:     make(map[string]Control),
		risks:        make(map[string]Risk),
		datasets:     make(map[string]Dataset),
		datasetFiles: make(map[string]DatasetFile),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Workspaces:   make(map[string]Workspace, len(state.workspaces)),
		Frameworks:   make(map[string]Framework, len(state.frameworks)),
		Controls:     make(map[string]Control, len(state.controls)),
		Risks:        make(map[string]Risk, len(state.risks)),
		Datasets:     make(map[string]Dataset, len(state.datasets)),
		DatasetFiles: make(map[string]DatasetFile, len(state.datasetFiles)),
	}
	for k, v := range state.workspaces {
		s.Workspaces[k] = v
	}
	for k, v := range state.frameworks {
		s.Frameworks[k] = cloneFramework(v)
	}
	for k, v := range state.controls {
		s.Controls[k] = cloneControl(v)
	}
	for k, v := range state.risks {
		s.Risks[k] = v
	}
	for k, v := range state.datasets {
		s.Datasets[k] = cloneDataset(v)
	}
	for k, v := range state.datasetFiles {
		s.DatasetFiles[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Workspaces {
		state.workspaces[k] = v
	}
	for k, v := range s.Frameworks {
		state.frameworks[k] = cloneFramework(v)
	}
	for k, v := range s.Controls {
		state.controls[k] = cloneControl(v)
	}
	for k, v := range s.Risks {
		state.risks[k] = v
	}
	for k, v := range s.Datasets {
		state.datasets[k] = cloneDataset(v)
	}
	for k, v := range s.DatasetFiles {
		state.datasetFiles[k] = v
	}
	return state
}

// migrateSnapshot normalizes persisted snapshots: nil buckets become empty,
// records referencing missing parents are dropped, and derived ID lists are
// rebuilt from the authoritative child records.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Workspaces == nil {
		snapshot.Workspaces = map[string]Workspace{}
	}
	if snapshot.Frameworks == nil {
		snapshot.Frameworks = map[string]Framework{}
	}
	if snapshot.Controls == nil {
		snapshot.Controls = map[string]Control{}
	}
	if snapshot.Risks == nil {
		snapshot.Risks = map[string]Risk{}
	}
	if snapshot.Datasets == nil {
		snapshot.Datasets = map[string]Dataset{}
	}
	if snapshot.DatasetFiles == nil {
		snapshot.DatasetFiles = map[string]DatasetFile{}
	}

	workspaceExists := func(id string) bool {
		_, ok := snapshot.Workspaces[id]
		return ok
	}
	frameworkExists := func(id string) bool {
		_, ok := snapshot.Frameworks[id]
		return ok
	}
	datasetExists := func(id string) bool {
		_, ok := snapshot.Datasets[id]
		return ok
	}

	for id, framework := range snapshot.Frameworks {
		if framework.WorkspaceID == "" || !workspaceExists(framework.WorkspaceID) {
			delete(snapshot.Frameworks, id)
		}
	}
	for id, control := range snapshot.Controls {
		if control.FrameworkID == "" || !frameworkExists(control.FrameworkID) {
			delete(snapshot.Controls, id)
			continue
		}
		if control.Status == "" {
			control.Status = domain.ControlStatusNotStarted
			snapshot.Controls[id] = control
		}
	}
	for id, risk := range snapshot.Risks {
		if risk.WorkspaceID == "" || !workspaceExists(risk.WorkspaceID) {
			delete(snapshot.Risks, id)
			continue
		}
		if risk.Severity == "" {
			risk.Severity = domain.DeriveSeverity(risk.Likelihood, risk.Impact)
			snapshot.Risks[id] = risk
		}
	}
	for id, dataset := range snapshot.Datasets {
		if dataset.WorkspaceID == "" || !workspaceExists(dataset.WorkspaceID) {
			delete(snapshot.Datasets, id)
		}
	}
	for id, file := range snapshot.DatasetFiles {
		if file.DatasetID == "" || !datasetExists(file.DatasetID) {
			delete(snapshot.DatasetFiles, id)
		}
	}

	for id, framework := range snapshot.Frameworks {
		var controlIDs []string
		for _, control := range snapshot.Controls {
			if control.FrameworkID == id {
				controlIDs = append(controlIDs, control.ID)
			}
		}
		sort.Strings(controlIDs)
		framework.ControlIDs = controlIDs
		snapshot.Frameworks[id] = framework
	}
	for id, dataset := range snapshot.Datasets {
		var fileIDs []string
		for _, file := range snapshot.DatasetFiles {
			if file.DatasetID == id {
				fileIDs = append(fileIDs, file.ID)
			}
		}
		sort.Strings(fileIDs)
		dataset.FileIDs = fileIDs
		snapshot.Datasets[id] = dataset
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.workspaces {
		cloned.workspaces[k] = v
	}
	for k, v := range s.frameworks {
		cloned.frameworks[k] = cloneFramework(v)
	}
	for k, v := range s.controls {
		cloned.controls[k] = cloneControl(v)
	}
	for k, v := range s.risks {
		cloned.risks[k] = v
	}
	for k, v := range s.datasets {
		cloned.datasets[k] = cloneDataset(v)
	}
	for k, v := range s.datasetFiles {
		cloned.datasetFiles[k] = v
	}
	return cloned
}

func cloneFramework(f Framework) Framework {
	cp := f
	cp.ControlIDs = append([]string(nil), f.ControlIDs...)
	return cp
}

func cloneControl(c Control) Control {
	cp := c
	cp.Evidence = append([]string(nil), c.Evidence...)
	return cp
}

func cloneDataset(d Dataset) Dataset {
	cp := d
	cp.Tags = append([]string(nil), d.Tags...)
	cp.FileIDs = append([]string(nil), d.FileIDs...)
	return cp
}

func frameworkControlIDs(state *memoryState, frameworkID string) []string {
	var ids []string
	for _, control := range state.controls {
		if control.FrameworkID == frameworkID {
			ids = append(ids, control.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func decorateFramework(state *memoryState, framework Framework) Framework {
	framework.ControlIDs = frameworkControlIDs(state, framework.ID)
	return framework
}

func datasetFileIDs(state *memoryState, datasetID string) []string {
	var ids []string
	for _, file := range state.datasetFiles {
		if file.DatasetID == datasetID {
			ids = append(ids, file.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func decorateDataset(state *memoryState, dataset Dataset) Dataset {
	dataset.FileIDs = datasetFileIDs(state, dataset.ID)
	return dataset
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) newID() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b[:])
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine for integration points like plugins.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// NowFunc returns the time provider used by the in-memory store.
func (s *Store) NowFunc() func() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowFn
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListWorkspaces returns all workspaces within the transaction snapshot.
func (v transactionView) ListWorkspaces() []Workspace {
	out := make([]Workspace, 0, len(v.state.workspaces))
	for _, w := range v.state.workspaces {
		out = append(out, w)
	}
	return out
}

// ListFrameworks returns all frameworks with derived control IDs attached.
func (v transactionView) ListFrameworks() []Framework {
	out := make([]Framework, 0, len(v.state.frameworks))
	for _, f := range v.state.frameworks {
		out = append(out, cloneFramework(decorateFramework(v.state, f)))
	}
	return out
}

// ListControls returns all controls in the snapshot.
func (v transactionView) ListControls() []Control {
	out := make([]Control, 0, len(v.state.controls))
	for _, c := range v.state.controls {
		out = append(out, cloneControl(c))
	}
	return out
}

// ListRisks returns all risks in the snapshot.
func (v transactionView) ListRisks() []Risk {
	out := make([]Risk, 0, len(v.state.risks))
	for _, r := range v.state.risks {
		out = append(out, r)
	}
	return out
}

// ListDatasets returns all datasets with derived file IDs attached.
func (v transactionView) ListDatasets() []Dataset {
	out := make([]Dataset, 0, len(v.state.datasets))
	for _, d := range v.state.datasets {
		out = append(out, cloneDataset(decorateDataset(v.state, d)))
	}
	return out
}

// ListDatasetFiles returns all dataset files in the snapshot.
func (v transactionView) ListDatasetFiles() []DatasetFile {
	out := make([]DatasetFile, 0, len(v.state.datasetFiles))
	for _, f := range v.state.datasetFiles {
		out = append(out, f)
	}
	return out
}

// FindWorkspace retrieves a workspace by ID from the snapshot.
func (v transactionView) FindWorkspace(id string) (Workspace, bool) {
	w, ok := v.state.workspaces[id]
	return w, ok
}

// FindFramework retrieves a framework by ID from the snapshot.
func (v transactionView) FindFramework(id string) (Framework, bool) {
	f, ok := v.state.frameworks[id]
	if !ok {
		return Framework{}, false
	}
	return cloneFramework(decorateFramework(v.state, f)), true
}

// FindControl retrieves a control by ID from the snapshot.
func (v transactionView) FindControl(id string) (Control, bool) {
	c, ok := v.state.controls[id]
	if !ok {
		return Control{}, false
	}
	return cloneControl(c), true
}

// FindRisk retrieves a risk by ID from the snapshot.
func (v transactionView) FindRisk(id string) (Risk, bool) {
	r, ok := v.state.risks[id]
	return r, ok
}

// FindDataset retrieves a dataset by ID from the snapshot.
func (v transactionView) FindDataset(id string) (Dataset, bool) {
	d, ok := v.state.datasets[id]
	if !ok {
		return Dataset{}, false
	}
	return cloneDataset(decorateDataset(v.state, d)), true
}

// FindDatasetFile retrieves a dataset file by ID from the snapshot.
func (v transactionView) FindDatasetFile(id string) (DatasetFile, bool) {
	f, ok := v.state.datasetFiles[id]
	return f, ok
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules are evaluated against the mutated copy before commit; blocking
// violations abort the swap.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// FindWorkspace exposes workspace lookup within the transaction scope.
func (tx *transaction) FindWorkspace(id string) (Workspace, bool) {
	w, ok := tx.state.workspaces[id]
	return w, ok
}

// FindFramework exposes framework lookup within the transaction scope.
func (tx *transaction) FindFramework(id string) (Framework, bool) {
	f, ok := tx.state.frameworks[id]
	if !ok {
		return Framework{}, false
	}
	return cloneFramework(decorateFramework(&tx.state, f)), true
}

// FindDataset exposes dataset lookup within the transaction scope.
func (tx *transaction) FindDataset(id string) (Dataset, bool) {
	d, ok := tx.state.datasets[id]
	if !ok {
		return Dataset{}, false
	}
	return cloneDataset(decorateDataset(&tx.state, d)), true
}

// CreateWorkspace stores a new workspace within the transaction.
func (tx *transaction) CreateWorkspace(w Workspace) (Workspace, error) {
	if w.ID == "" {
		w.ID = tx.store.newID()
	}
	if _, exists := tx.state.workspaces[w.ID]; exists {
		return Workspace{}, fmt.Errorf("workspace %q already exists", w.ID)
	}
	if w.Name == "" {
		return Workspace{}, fmt.Errorf("workspace name required")
	}
	w.CreatedAt = tx.now
	w.UpdatedAt = tx.now
	tx.state.workspaces[w.ID] = w
	tx.recordChange(Change{Entity: domain.EntityWorkspace, Action: domain.ActionCreate, After: w})
	return w, nil
}

// UpdateWorkspace mutates a workspace using the provided mutator function.
func (tx *transaction) UpdateWorkspace(id string, mutator func(*Workspace) error) (Workspace, error) {
	current, ok := tx.state.workspaces[id]
	if !ok {
		return Workspace{}, fmt.Errorf("workspace %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Workspace{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.workspaces[id] = current
	tx.recordChange(Change{Entity: domain.EntityWorkspace, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteWorkspace removes a workspace from the transaction state.
func (tx *transaction) DeleteWorkspace(id string) error {
	current, ok := tx.state.workspaces[id]
	if !ok {
		return fmt.Errorf("workspace %q not found", id)
	}
	for _, framework := range tx.state.frameworks {
		if framework.WorkspaceID == id {
			return fmt.Errorf("workspace %q still referenced by framework %q", id, framework.ID)
		}
	}
	for _, risk := range tx.state.risks {
		if risk.WorkspaceID == id {
			return fmt.Errorf("workspace %q still referenced by risk %q", id, risk.ID)
		}
	}
	for _, dataset := range tx.state.datasets {
		if dataset.WorkspaceID == id {
			return fmt.Errorf("workspace %q still referenced by dataset %q", id, dataset.ID)
		}
	}
	delete(tx.state.workspaces, id)
	tx.recordChange(Change{Entity: domain.EntityWorkspace, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateFramework stores a new framework within the transaction.
func (tx *transaction) CreateFramework(f Framework) (Framework, error) {
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.frameworks[f.ID]; exists {
		return Framework{}, fmt.Errorf("framework %q already exists", f.ID)
	}
	if _, ok := tx.state.workspaces[f.WorkspaceID]; !ok {
		return Framework{}, fmt.Errorf("framework workspace %q not found", f.WorkspaceID)
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.frameworks[f.ID] = cloneFramework(f)
	tx.recordChange(Change{Entity: domain.EntityFramework, Action: domain.ActionCreate, After: cloneFramework(f)})
	return cloneFramework(f), nil
}

// UpdateFramework mutates a framework using the provided mutator function.
func (tx *transaction) UpdateFramework(id string, mutator func(*Framework) error) (Framework, error) {
	current, ok := tx.state.frameworks[id]
	if !ok {
		return Framework{}, fmt.Errorf("framework %q not found", id)
	}
	before := cloneFramework(current)
	if err := mutator(&current); err != nil {
		return Framework{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.frameworks[id] = cloneFramework(current)
	tx.recordChange(Change{Entity: domain.EntityFramework, Action: domain.ActionUpdate, Before: before, After: cloneFramework(current)})
	return cloneFramework(current), nil
}

// DeleteFramework removes a framework and rejects when controls still reference it.
func (tx *transaction) DeleteFramework(id string) error {
	current, ok := tx.state.frameworks[id]
	if !ok {
		return fmt.Errorf("framework %q not found", id)
	}
	for _, control := range tx.state.controls {
		if control.FrameworkID == id {
			return fmt.Errorf("framework %q still referenced by control %q", id, control.ID)
		}
	}
	delete(tx.state.frameworks, id)
	tx.recordChange(Change{Entity: domain.EntityFramework, Action: domain.ActionDelete, Before: cloneFramework(current)})
	return nil
}

// CreateControl stores a new control within the transaction.
func (tx *transaction) CreateControl(c Control) (Control, error) {
	if c.ID == "" {
		c.ID = tx.store.newID()
	}
	if _, exists := tx.state.controls[c.ID]; exists {
		return Control{}, fmt.Errorf("control %q already exists", c.ID)
	}
	if _, ok := tx.state.frameworks[c.FrameworkID]; !ok {
		return Control{}, fmt.Errorf("control framework %q not found", c.FrameworkID)
	}
	if c.Status == "" {
		c.Status = domain.ControlStatusNotStarted
	}
	c.CreatedAt = tx.now
	c.UpdatedAt = tx.now
	tx.state.controls[c.ID] = cloneControl(c)
	tx.recordChange(Change{Entity: domain.EntityControl, Action: domain.ActionCreate, After: cloneControl(c)})
	return cloneControl(c), nil
}

// UpdateControl mutates a control using the provided mutator function.
func (tx *transaction) UpdateControl(id string, mutator func(*Control) error) (Control, error) {
	current, ok := tx.state.controls[id]
	if !ok {
		return Control{}, fmt.Errorf("control %q not found", id)
	}
	before := cloneControl(current)
	if err := mutator(&current); err != nil {
		return Control{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.controls[id] = cloneControl(current)
	tx.recordChange(Change{Entity: domain.EntityControl, Action: domain.ActionUpdate, Before: before, After: cloneControl(current)})
	return cloneControl(current), nil
}

// DeleteControl removes a control from the transaction state.
func (tx *transaction) DeleteControl(id string) error {
	current, ok := tx.state.controls[id]
	if !ok {
		return fmt.Errorf("control %q not found", id)
	}
	delete(tx.state.controls, id)
	tx.recordChange(Change{Entity: domain.EntityControl, Action: domain.ActionDelete, Before: cloneControl(current)})
	return nil
}

// CreateRisk stores a new risk within the transaction. Severity is derived
// from likelihood and impact when not supplied.
func (tx *transaction) CreateRisk(r Risk) (Risk, error) {
	if r.ID == "" {
		r.ID = tx.store.newID()
	}
	if _, exists := tx.state.risks[r.ID]; exists {
		return Risk{}, fmt.Errorf("risk %q already exists", r.ID)
	}
	if _, ok := tx.state.workspaces[r.WorkspaceID]; !ok {
		return Risk{}, fmt.Errorf("risk workspace %q not found", r.WorkspaceID)
	}
	if r.Title == "" {
		return Risk{}, fmt.Errorf("risk title required")
	}
	if r.Status == "" {
		r.Status = domain.RiskStatusOpen
	}
	if r.Severity == "" {
		r.Severity = domain.DeriveSeverity(r.Likelihood, r.Impact)
	}
	r.CreatedAt = tx.now
	r.UpdatedAt = tx.now
	tx.state.risks[r.ID] = r
	tx.recordChange(Change{Entity: domain.EntityRisk, Action: domain.ActionCreate, After: r})
	return r, nil
}

// UpdateRisk mutates a risk using the provided mutator function.
func (tx *transaction) UpdateRisk(id string, mutator func(*Risk) error) (Risk, error) {
	current, ok := tx.state.risks[id]
	if !ok {
		return Risk{}, fmt.Errorf("risk %q not found", id)
	}
	before := current
	if err := mutator(&current); err != nil {
		return Risk{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.risks[id] = current
	tx.recordChange(Change{Entity: domain.EntityRisk, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteRisk removes a risk from the transaction state.
func (tx *transaction) DeleteRisk(id string) error {
	current, ok := tx.state.risks[id]
	if !ok {
		return fmt.Errorf("risk %q not found", id)
	}
	delete(tx.state.risks, id)
	tx.recordChange(Change{Entity: domain.EntityRisk, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateDataset stores a new dataset within the transaction.
func (tx *transaction) CreateDataset(d Dataset) (Dataset, error) {
	if d.ID == "" {
		d.ID = tx.store.newID()
	}
	if _, exists := tx.state.datasets[d.ID]; exists {
		return Dataset{}, fmt.Errorf("dataset %q already exists", d.ID)
	}
	if _, ok := tx.state.workspaces[d.WorkspaceID]; !ok {
		return Dataset{}, fmt.Errorf("dataset workspace %q not found", d.WorkspaceID)
	}
	if d.Name == "" {
		return Dataset{}, fmt.Errorf("dataset name required")
	}
	d.CreatedAt = tx.now
	d.UpdatedAt = tx.now
	tx.state.datasets[d.ID] = cloneDataset(d)
	tx.recordChange(Change{Entity: domain.EntityDataset, Action: domain.ActionCreate, After: cloneDataset(d)})
	return cloneDataset(d), nil
}

// UpdateDataset mutates a dataset using the provided mutator function.
func (tx *transaction) UpdateDataset(id string, mutator func(*Dataset) error) (Dataset, error) {
	current, ok := tx.state.datasets[id]
	if !ok {
		return Dataset{}, fmt.Errorf("dataset %q not found", id)
	}
	before := cloneDataset(current)
	if err := mutator(&current); err != nil {
		return Dataset{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.datasets[id] = cloneDataset(current)
	tx.recordChange(Change{Entity: domain.EntityDataset, Action: domain.ActionUpdate, Before: before, After: cloneDataset(current)})
	return cloneDataset(current), nil
}

// DeleteDataset removes a dataset and rejects when files still reference it.
func (tx *transaction) DeleteDataset(id string) error {
	current, ok := tx.state.datasets[id]
	if !ok {
		return fmt.Errorf("dataset %q not found", id)
	}
	for _, file := range tx.state.datasetFiles {
		if file.DatasetID == id {
			return fmt.Errorf("dataset %q still referenced by file %q", id, file.ID)
		}
	}
	delete(tx.state.datasets, id)
	tx.recordChange(Change{Entity: domain.EntityDataset, Action: domain.ActionDelete, Before: cloneDataset(current)})
	return nil
}

// CreateDatasetFile stores a new dataset file record within the transaction.
func (tx *transaction) CreateDatasetFile(f DatasetFile) (DatasetFile, error) {
	if f.ID == "" {
		f.ID = tx.store.newID()
	}
	if _, exists := tx.state.datasetFiles[f.ID]; exists {
		return DatasetFile{}, fmt.Errorf("dataset file %q already exists", f.ID)
	}
	if _, ok := tx.state.datasets[f.DatasetID]; !ok {
		return DatasetFile{}, fmt.Errorf("dataset file dataset %q not found", f.DatasetID)
	}
	if f.Filename == "" {
		return DatasetFile{}, fmt.Errorf("dataset file name required")
	}
	f.CreatedAt = tx.now
	f.UpdatedAt = tx.now
	tx.state.datasetFiles[f.ID] = f
	tx.recordChange(Change{Entity: domain.EntityDatasetFile, Action: domain.ActionCreate, After: f})
	return f, nil
}

// DeleteDatasetFile removes a dataset file record from the transaction state.
func (tx *transaction) DeleteDatasetFile(id string) error {
	current, ok := tx.state.datasetFiles[id]
	if !ok {
		return fmt.Errorf("dataset file %q not found", id)
	}
	delete(tx.state.datasetFiles, id)
	tx.recordChange(Change{Entity: domain.EntityDatasetFile, Action: domain.ActionDelete, Before: current})
	return nil
}

// GetWorkspace returns a workspace by ID from committed state.
func (s *Store) GetWorkspace(id string) (Workspace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.state.workspaces[id]
	return w, ok
}

// ListWorkspaces returns all committed workspaces sorted by ID.
func (s *Store) ListWorkspaces() []Workspace {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Workspace, 0, len(s.state.workspaces))
	for _, w := range s.state.workspaces {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetFramework returns a framework by ID from committed state.
func (s *Store) GetFramework(id string) (Framework, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.state.frameworks[id]
	if !ok {
		return Framework{}, false
	}
	return cloneFramework(decorateFramework(&s.state, f)), true
}

// ListFrameworks returns all committed frameworks sorted by ID.
func (s *Store) ListFrameworks() []Framework {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Framework, 0, len(s.state.frameworks))
	for _, f := range s.state.frameworks {
		out = append(out, cloneFramework(decorateFramework(&s.state, f)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListControls returns all committed controls sorted by ID.
func (s *Store) ListControls() []Control {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Control, 0, len(s.state.controls))
	for _, c := range s.state.controls {
		out = append(out, cloneControl(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetRisk returns a risk by ID from committed state.
func (s *Store) GetRisk(id string) (Risk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.state.risks[id]
	return r, ok
}

// ListRisks returns all committed risks sorted by ID.
func (s *Store) ListRisks() []Risk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Risk, 0, len(s.state.risks))
	for _, r := range s.state.risks {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetDataset returns a dataset by ID from committed state.
func (s *Store) GetDataset(id string) (Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.datasets[id]
	if !ok {
		return Dataset{}, false
	}
	return cloneDataset(decorateDataset(&s.state, d)), true
}

// ListDatasets returns all committed datasets sorted by ID.
func (s *Store) ListDatasets() []Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Dataset, 0, len(s.state.datasets))
	for _, d := range s.state.datasets {
		out = append(out, cloneDataset(decorateDataset(&s.state, d)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListDatasetFiles returns all committed dataset files sorted by ID.
func (s *Store) ListDatasetFiles() []DatasetFile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DatasetFile, 0, len(s.state.datasetFiles))
	for _, f := range s.state.datasetFiles {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
