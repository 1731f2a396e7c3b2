package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/photonforge/couplerfit/internal/config"
	"github.com/photonforge/couplerfit/internal/epigraph"
	"github.com/photonforge/couplerfit/internal/solver"
	"github.com/photonforge/couplerfit/internal/store"
	"github.com/spf13/cobra"
)

var (
	configPath string
	dataDir    string
	runID      string
	solverName string
	cells      int
	iters      int
	popSize    int
	seed       int64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run single-shot optimization",
	Long:  `Runs a worst-case coupler optimization and persists the result and iteration trace.`,
	RunE:  runOptimization,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "", "Run configuration YAML (defaults used when omitted)")
	runCmd.Flags().StringVar(&dataDir, "data-dir", "data", "Directory for run records and traces")
	runCmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (generated when omitted)")
	runCmd.Flags().StringVar(&solverName, "solver", "", "Solver backend: slsqp, mayfly")
	runCmd.Flags().IntVar(&cells, "cells", 0, "Number of design cells")
	runCmd.Flags().IntVar(&iters, "iters", 0, "Max iterations")
	runCmd.Flags().IntVar(&popSize, "pop", 0, "Population size (mayfly)")
	runCmd.Flags().Int64Var(&seed, "seed", 0, "Random seed (mayfly)")

	rootCmd.AddCommand(runCmd)
}

// loadRunConfig builds a run configuration from the optional YAML file and
// any flags the user set explicitly.
func loadRunConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("solver") {
		cfg.Solver = solverName
	}
	if cmd.Flags().Changed("cells") {
		cfg.Cells = cells
	}
	if cmd.Flags().Changed("iters") {
		cfg.MaxIterations = iters
	}
	if cmd.Flags().Changed("pop") {
		cfg.PopSize = popSize
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func runOptimization(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}

	id := runID
	if id == "" {
		id = uuid.New().String()
	}

	return executeRun(id, cfg, nil, false)
}

// executeRun drives one optimization from the given starting design (the
// problem's initial design when nil) and persists the record and trace.
func executeRun(id string, cfg config.Config, design []float64, resume bool) error {
	problem := cfg.Problem()
	slog.Info("Starting run", "run_id", id, "solver", cfg.Solver,
		"cells", problem.Cells, "rows", problem.Rows())

	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	tw, err := store.NewTraceWriter(st.BaseDir(), id, resume)
	if err != nil {
		return fmt.Errorf("failed to open trace: %w", err)
	}
	defer tw.Close()

	progress := func(s epigraph.Snapshot) {
		slog.Debug("Iteration", "run_id", id, "iteration", s.Iteration,
			"epigraph", s.Epigraph)
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
		return err
	}

	var sv solver.Solver
	if cfg.Solver == config.SolverMayfly {
		sv = solver.NewMayfly(cfg.MaxIterations, cfg.PopSize, cfg.Seed)
	} else {
		sv = solver.NewSLSQP(cfg.MaxIterations, cfg.Accuracy)
	}

	if design == nil {
		design = problem.InitialDesign()
	}

	start := time.Now()
	result, err := sv.Solve(drv, design)
	if err != nil {
		return fmt.Errorf("optimization failed: %w", err)
	}
	elapsed := time.Since(start)

	record := store.NewRunRecord(id, result.Design, result.Objectives,
		result.Epigraph, result.Iterations, result.Converged, cfg)
	if err := st.SaveRun(id, record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	slog.Info("Run complete",
		"run_id", id,
		"elapsed", elapsed,
		"epigraph", result.Epigraph,
		"iterations", result.Iterations,
		"converged", result.Converged,
	)

	fmt.Printf("Run %s: worst objective %.6g after %d iterations (converged: %v)\n",
		id, result.Epigraph, result.Iterations, result.Converged)
	for i, v := range result.Objectives {
		fmt.Printf("  %-24s %.6g (tolerance %.3g)\n", problem.RowLabel(i), v, problem.Tolerance)
	}

	return nil
}
