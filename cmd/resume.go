package main

import (
	"fmt"

	"github.com/photonforge/couplerfit/internal/store"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume [run-id]",
	Short: "Resume optimization from a saved run",
	Long: `Restarts optimization from the final design of a previous run.
The iteration trace is appended to and the run record is overwritten
with the new result.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

func init() {
	resumeCmd.Flags().StringVar(&dataDir, "data-dir", "data", "Directory for run records and traces")
	resumeCmd.Flags().IntVar(&iters, "iters", 0, "Max iterations")
	rootCmd.AddCommand(resumeCmd)
}

func runResume(cmd *cobra.Command, args []string) error {
	id := args[0]

	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	record, err := st.LoadRun(id)
	if err != nil {
		return fmt.Errorf("failed to load run %s: %w", id, err)
	}

	cfg := record.Config
	if cmd.Flags().Changed("iters") {
		cfg.MaxIterations = iters
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("saved config is invalid: %w", err)
	}

	return executeRun(id, cfg, record.Design, true)
}
