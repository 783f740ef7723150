package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/verifywise-ai/plugin-marketplace-sub002/pkg/domain"
)

func seedWorkspace(t *testing.T, store *Store) Workspace {
	t.Helper()
	var ws Workspace
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.CreateWorkspace(Workspace{Name: "governance"})
		ws = created
		return err
	}); err != nil {
		t.Fatalf("seed workspace: %v", err)
	}
	return ws
}

func TestTransactionCommitAndRollback(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)

	// failed transaction leaves no trace
	sentinel := errors.New("boom")
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		if _, err := tx.CreateRisk(Risk{WorkspaceID: ws.ID, Title: "shadow model"}); err != nil {
			return err
		}
		return sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected sentinel error, got %v", err)
	}
	if got := store.ListRisks(); len(got) != 0 {
		t.Fatalf("expected rollback, found %d risks", len(got))
	}

	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateRisk(Risk{WorkspaceID: ws.ID, Title: "shadow model", Likelihood: domain.RiskLevelLow, Impact: domain.RiskLevelHigh})
		return err
	}); err != nil {
		t.Fatalf("create risk: %v", err)
	}
	risks := store.ListRisks()
	if len(risks) != 1 {
		t.Fatalf("expected 1 risk, got %d", len(risks))
	}
	if risks[0].Severity != domain.RiskLevelHigh {
		t.Fatalf("expected derived severity high, got %s", risks[0].Severity)
	}
	if risks[0].Status != domain.RiskStatusOpen {
		t.Fatalf("expected default status open, got %s", risks[0].Status)
	}
}

func TestCreateRequiresParentRecords(t *testing.T) {
	store := NewStore(nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateRisk(Risk{WorkspaceID: "missing", Title: "orphan"})
		return err
	}); err == nil {
		t.Fatalf("expected workspace reference error")
	}
	ws := seedWorkspace(t, store)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateControl(Control{FrameworkID: "missing", Code: "A.1", Title: "orphan"})
		return err
	}); err == nil {
		t.Fatalf("expected framework reference error")
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateDatasetFile(DatasetFile{DatasetID: "missing", Filename: "x.csv"})
		return err
	}); err == nil {
		t.Fatalf("expected dataset reference error")
	}
	_ = ws
}

func TestFrameworkControlDerivedIDs(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	var fw Framework
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.CreateFramework(Framework{WorkspaceID: ws.ID, TemplateID: "soc2", Name: "SOC 2", Version: "2017"})
		if err != nil {
			return err
		}
		fw = created
		for _, code := range []string{"CC1.1", "CC1.2"} {
			if _, err := tx.CreateControl(Control{FrameworkID: fw.ID, Code: code, Title: code}); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("install framework: %v", err)
	}
	got, ok := store.GetFramework(fw.ID)
	if !ok || len(got.ControlIDs) != 2 {
		t.Fatalf("expected framework with 2 control ids, got %+v", got)
	}
	// delete is rejected while controls reference the framework
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		return tx.DeleteFramework(fw.ID)
	}); err == nil {
		t.Fatalf("expected referential delete rejection")
	}
}

func TestUpdateMutatorErrorsDoNotMutate(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	var risk Risk
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		created, err := tx.CreateRisk(Risk{WorkspaceID: ws.ID, Title: "bias drift"})
		risk = created
		return err
	}); err != nil {
		t.Fatalf("create risk: %v", err)
	}
	boom := errors.New("mutator failure")
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.UpdateRisk(risk.ID, func(r *Risk) error {
			r.Title = "mutated"
			return boom
		})
		return err
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutator error, got %v", err)
	}
	current, _ := store.GetRisk(risk.ID)
	if current.Title != "bias drift" {
		t.Fatalf("expected title unchanged, got %q", current.Title)
	}
}

func TestBlockingRuleAbortsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	store := NewStore(engine)
	_, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		_, err := tx.CreateWorkspace(Workspace{Name: "blocked"})
		return err
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation, got %v", err)
	}
	if len(store.ListWorkspaces()) != 0 {
		t.Fatalf("expected no committed workspaces")
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block-everything" }

func (blockEverything) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if len(changes) == 0 {
		return domain.Result{}, nil
	}
	return domain.Result{Violations: []domain.Violation{{Rule: "block-everything", Severity: domain.SeverityBlock}}}, nil
}

func TestSnapshotExportImportMigration(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	if _, err := store.RunInTransaction(context.Background(), func(tx Transaction) error {
		ds, err := tx.CreateDataset(Dataset{WorkspaceID: ws.ID, Name: "training-set"})
		if err != nil {
			return err
		}
		_, err = tx.CreateDatasetFile(DatasetFile{DatasetID: ds.ID, Filename: "data.csv", Size: 42})
		return err
	}); err != nil {
		t.Fatalf("seed dataset: %v", err)
	}

	snapshot := store.ExportState()
	// add an orphan that migration must drop
	snapshot.Risks["orphan"] = Risk{Base: domain.Base{ID: "orphan"}, WorkspaceID: "gone", Title: "orphan"}

	restored := NewStore(nil)
	restored.ImportState(snapshot)
	if len(restored.ListRisks()) != 0 {
		t.Fatalf("expected orphan risk dropped by migration")
	}
	datasets := restored.ListDatasets()
	if len(datasets) != 1 || len(datasets[0].FileIDs) != 1 {
		t.Fatalf("expected dataset with derived file id, got %+v", datasets)
	}
}

func TestViewSeesCommittedStateOnly(t *testing.T) {
	store := NewStore(nil)
	ws := seedWorkspace(t, store)
	err := store.View(context.Background(), func(v TransactionView) error {
		if _, ok := v.FindWorkspace(ws.ID); !ok {
			t.Fatalf("expected workspace visible in view")
		}
		if len(v.ListRisks()) != 0 {
			t.Fatalf("expected no risks")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
}
