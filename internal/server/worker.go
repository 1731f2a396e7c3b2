package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/photonforge/couplerfit/internal/epigraph"
	"github.com/photonforge/couplerfit/internal/solver"
	"github.com/photonforge/couplerfit/internal/store"
)

// runJob executes an optimization job in the background. Progress flows to
// SSE subscribers and the run trace via driver observers; the final record
// is persisted when the run completes. In-flight evaluations are never
// cancelled: a job runs to its configured evaluation budget.
func runJob(jm *JobManager, st *store.FSStore, jobID string) error {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("job not found: %s", jobID)
	}

	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateRunning
	}); err != nil {
		return err
	}

	cfg := job.Config
	problem := cfg.Problem()
	slog.Info("Starting job", "job_id", jobID, "solver", cfg.Solver,
		"cells", problem.Cells, "rows", problem.Rows())

	tw, err := store.NewTraceWriter(st.BaseDir(), jobID, false)
	if err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to open trace: %w", err))
		return err
	}
	defer tw.Close()

	progress := func(s epigraph.Snapshot) {
		worst := worstObjective(s.Objectives)

		if err := jm.UpdateJob(jobID, func(j *Job) {
			j.Iterations = s.Iteration + 1
			j.Epigraph = s.Epigraph
			j.Objectives = s.Objectives
		}); err != nil {
			slog.Warn("Failed to update job progress", "job_id", jobID, "error", err)
			return
		}

		jm.Broadcaster().Broadcast(ProgressEvent{
			JobID:     jobID,
			State:     StateRunning,
			Iteration: s.Iteration,
			Epigraph:  s.Epigraph,
			Worst:     worst,
			Timestamp: time.Now(),
		})
	}

	drv, err := epigraph.New(epigraph.Config{
		Oracle:     problem.Oracle(),
		Param:      problem.Param(),
		Dim:        problem.Cells,
		Tolerances: problem.Tolerances(),
		Margin:     cfg.Margin,
		Observers:  []epigraph.Observer{tw.Observer(), progress},
	})
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	var sv solver.Solver
	if cfg.Solver == "mayfly" {
		sv = solver.NewMayfly(cfg.MaxIterations, cfg.PopSize, cfg.Seed)
	} else {
		sv = solver.NewSLSQP(cfg.MaxIterations, cfg.Accuracy)
	}

	result, err := sv.Solve(drv, problem.InitialDesign())
	if err != nil {
		markJobFailed(jm, jobID, err)
		return err
	}

	// Flush before the state flips to completed so the history endpoint
	// never reads a partially buffered trace.
	if err := tw.Flush(); err != nil {
		slog.Warn("Failed to flush trace", "job_id", jobID, "error", err)
	}

	record := store.NewRunRecord(jobID, result.Design, result.Objectives,
		result.Epigraph, result.Iterations, result.Converged, cfg)
	if err := st.SaveRun(jobID, record); err != nil {
		markJobFailed(jm, jobID, fmt.Errorf("failed to save run: %w", err))
		return err
	}

	now := time.Now()
	if err := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Design = result.Design
		j.Epigraph = result.Epigraph
		j.Objectives = result.Objectives
		j.Iterations = result.Iterations
		j.Converged = result.Converged
		j.EndTime = &now
	}); err != nil {
		return err
	}

	jm.Broadcaster().Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateCompleted,
		Iteration: result.Iterations,
		Epigraph:  result.Epigraph,
		Worst:     worstObjective(result.Objectives),
		Timestamp: now,
	})
	jm.Broadcaster().CleanupJob(jobID)

	slog.Info("Job completed", "job_id", jobID, "epigraph", result.Epigraph,
		"converged", result.Converged)
	return nil
}

// markJobFailed records a failure and notifies subscribers.
func markJobFailed(jm *JobManager, jobID string, err error) {
	slog.Error("Job failed", "job_id", jobID, "error", err)

	now := time.Now()
	if uerr := jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &now
	}); uerr != nil {
		slog.Error("Failed to mark job failed", "job_id", jobID, "error", uerr)
		return
	}

	jm.Broadcaster().Broadcast(ProgressEvent{
		JobID:     jobID,
		State:     StateFailed,
		Timestamp: now,
	})
	jm.Broadcaster().CleanupJob(jobID)
}

func worstObjective(objectives []float64) float64 {
	if len(objectives) == 0 {
		return 0
	}
	worst := objectives[0]
	for _, v := range objectives[1:] {
		if v > worst {
			worst = v
		}
	}
	return worst
}
