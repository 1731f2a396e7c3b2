package main

import (
	"errors"
	"fmt"

	"github.com/photonforge/couplerfit/internal/store"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [run-id]",
	Short: "Show saved runs",
	Long: `Lists saved optimization runs from the data directory.
If a run-id is provided, shows the full record and trace summary for that run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&dataDir, "data-dir", "data", "Directory for run records and traces")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	if len(args) == 0 {
		return listRuns(st)
	}
	return showRun(st, args[0])
}

func listRuns(st *store.FSStore) error {
	runs, err := st.ListRuns()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs found")
		return nil
	}

	fmt.Printf("Found %d run(s):\n\n", len(runs))
	for _, run := range runs {
		fmt.Printf("Run ID: %s\n", run.RunID)
		fmt.Printf("  Solver: %s (%d cells)\n", run.Solver, run.Cells)
		fmt.Printf("  Worst objective: %.6g after %d iterations\n", run.Epigraph, run.Iterations)
		fmt.Printf("  Converged: %v\n", run.Converged)
		fmt.Printf("  Saved: %s\n", run.Timestamp.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}

	return nil
}

func showRun(st *store.FSStore, id string) error {
	record, err := st.LoadRun(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("run not found: %s", id)
		}
		return fmt.Errorf("failed to load run: %w", err)
	}

	problem := record.Config.Problem()

	fmt.Printf("Run: %s\n", record.RunID)
	fmt.Printf("Saved: %s\n", record.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Solver: %s\n", record.Config.Solver)
	fmt.Printf("  Cells: %d\n", record.Config.Cells)
	fmt.Printf("  Wavelengths: %v\n", record.Config.Wavelengths)
	fmt.Printf("  Max iterations: %d\n", record.Config.MaxIterations)
	fmt.Println()

	fmt.Println("Result:")
	fmt.Printf("  Worst objective: %.6g\n", record.Epigraph)
	fmt.Printf("  Iterations: %d\n", record.Iterations)
	fmt.Printf("  Converged: %v\n", record.Converged)
	for i, v := range record.Objectives {
		fmt.Printf("  %-24s %.6g\n", problem.RowLabel(i), v)
	}

	trace, err := store.ReadTrace(st.BaseDir(), id)
	if err != nil {
		fmt.Println("\nNo trace available")
		return nil
	}
	if len(trace) > 0 {
		first := trace[0]
		last := trace[len(trace)-1]
		fmt.Println()
		fmt.Printf("Trace: %d evaluations, epigraph %.6g -> %.6g\n",
			len(trace), first.Epigraph, last.Epigraph)
	}

	return nil
}
