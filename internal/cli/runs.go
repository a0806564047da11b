package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/orchid-dev/orchid/pkg/trace"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs",
	Long:  `List recent runs from the local history database, newest first.`,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "maximum number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	boot, err := loadBootstrap()
	if err != nil {
		return err
	}
	defer boot.close()

	store, err := trace.NewStore(filepath.Join(boot.cfg.DataDir, "runs.db"), boot.log.GetZerolog())
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer store.Close()

	runs, err := store.ListRuns(runsLimit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	fmt.Printf("%-24s %-20s %-16s %6s %8s  %s\n", "RUN", "SCENARIO", "STATUS", "STEPS", "ELAPSED", "WHEN")
	for _, r := range runs {
		scenarioName := r.Scenario
		if scenarioName == "" {
			scenarioName = "-"
		}
		fmt.Printf("%-24s %-20s %-16s %6d %7.1fs  %s\n",
			r.RunID, scenarioName, r.Status, r.TotalSteps, r.ElapsedSeconds,
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	}
	return nil
}
