package server

import (
	"testing"

	"github.com/photonforge/couplerfit/internal/config"
	"github.com/photonforge/couplerfit/internal/store"
)

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.Cells = 8
	cfg.Wavelengths = []float64{1.55}
	cfg.FilterRadius = 1
	cfg.Beta = 2
	cfg.MaxIterations = 25
	return cfg
}

func TestRunJobCompletes(t *testing.T) {
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	jm := NewJobManager()
	job := jm.CreateJob(smallConfig())

	if err := runJob(jm, st, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	got, _ := jm.GetJob(job.ID)
	if got.State != StateCompleted {
		t.Fatalf("state = %q, want completed (error: %s)", got.State, got.Error)
	}
	if got.EndTime == nil {
		t.Error("expected EndTime to be set")
	}
	if len(got.Design) != 8 {
		t.Errorf("design length = %d, want 8", len(got.Design))
	}

	// The record and trace were persisted.
	record, err := st.LoadRun(job.ID)
	if err != nil {
		t.Fatalf("LoadRun failed: %v", err)
	}
	if record.Epigraph != got.Epigraph {
		t.Errorf("record epigraph = %v, job epigraph = %v", record.Epigraph, got.Epigraph)
	}

	entries, err := store.ReadTrace(st.BaseDir(), job.ID)
	if err != nil {
		t.Fatalf("ReadTrace failed: %v", err)
	}
	if len(entries) == 0 {
		t.Error("expected at least one trace entry")
	}
	for i, entry := range entries {
		if entry.Iteration != i {
			t.Errorf("trace entry %d has iteration %d", i, entry.Iteration)
		}
	}
}

func TestRunJobInvalidConfigFails(t *testing.T) {
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	cfg := smallConfig()
	cfg.Margin = 0.5 // rejected by the driver

	jm := NewJobManager()
	job := jm.CreateJob(cfg)

	if err := runJob(jm, st, job.ID); err == nil {
		t.Fatal("expected runJob to fail")
	}

	got, _ := jm.GetJob(job.ID)
	if got.State != StateFailed {
		t.Errorf("state = %q, want failed", got.State)
	}
	if got.Error == "" {
		t.Error("expected error message on failed job")
	}
}

func TestRunJobUnknownID(t *testing.T) {
	st, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore failed: %v", err)
	}

	if err := runJob(NewJobManager(), st, "missing"); err == nil {
		t.Error("expected error for unknown job ID")
	}
}
