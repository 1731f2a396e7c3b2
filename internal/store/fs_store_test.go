package store

import (
	"errors"
	"testing"

	"github.com/photonforge/couplerfit/internal/config"
)

func testRecord(runID string) *RunRecord {
	cfg := config.Default()
	cfg.Cells = 4
	return NewRunRecord(runID,
		[]float64{0.1, 0.2, 0.3, 0.4},
		[]float64{0.05, 0.06},
		0.07, 25, true, cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	fs, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	record := testRecord("run-1")
	if err := fs.SaveRun("run-1", record); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	loaded, err := fs.LoadRun("run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}

	if loaded.RunID != "run-1" {
		t.Errorf("RunID = %q, want run-1", loaded.RunID)
	}
	if loaded.Epigraph != record.Epigraph {
		t.Errorf("Epigraph = %v, want %v", loaded.Epigraph, record.Epigraph)
	}
	if len(loaded.Design) != 4 {
		t.Errorf("Design length = %d, want 4", len(loaded.Design))
	}
	if loaded.Config.Solver != record.Config.Solver {
		t.Errorf("Config.Solver = %q, want %q", loaded.Config.Solver, record.Config.Solver)
	}
}

func TestSaveOverwrites(t *testing.T) {
	fs, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	if err := fs.SaveRun("run-1", testRecord("run-1")); err != nil {
		t.Fatalf("first SaveRun failed: %v", err)
	}

	updated := testRecord("run-1")
	updated.Epigraph = 0.01
	if err := fs.SaveRun("run-1", updated); err != nil {
		t.Fatalf("second SaveRun failed: %v", err)
	}

	loaded, err := fs.LoadRun("run-1")
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if loaded.Epigraph != 0.01 {
		t.Errorf("Epigraph = %v, want 0.01", loaded.Epigraph)
	}
}

func TestLoadMissingRun(t *testing.T) {
	fs, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	_, err = fs.LoadRun("nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListRuns(t *testing.T) {
	fs, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	infos, err := fs.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns on empty store failed: %v", err)
	}
	if len(infos) != 0 {
		t.Errorf("expected empty listing, got %d entries", len(infos))
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := fs.SaveRun(id, testRecord(id)); err != nil {
			t.Fatalf("SaveRun(%s) failed: %v", id, err)
		}
	}

	infos, err = fs.ListRuns()
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(infos) != 3 {
		t.Errorf("expected 3 entries, got %d", len(infos))
	}
	for _, info := range infos {
		if info.Cells != 4 {
			t.Errorf("info.Cells = %d, want 4", info.Cells)
		}
	}
}

func TestDeleteRun(t *testing.T) {
	fs, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	if err := fs.SaveRun("run-1", testRecord("run-1")); err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if err := fs.DeleteRun("run-1"); err != nil {
		t.Fatalf("DeleteRun failed: %v", err)
	}
	if _, err := fs.LoadRun("run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := fs.DeleteRun("run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for double delete, got %v", err)
	}
}

func TestRecordValidate(t *testing.T) {
	record := testRecord("run-1")
	if err := record.Validate(); err != nil {
		t.Errorf("valid record rejected: %v", err)
	}

	bad := testRecord("")
	if err := bad.Validate(); err == nil {
		t.Error("expected error for empty RunID")
	}

	bad = testRecord("run-1")
	bad.Design = bad.Design[:2]
	if err := bad.Validate(); err == nil {
		t.Error("expected error for design/cells mismatch")
	}
}
