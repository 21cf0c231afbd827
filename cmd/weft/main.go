package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pengelbrecht/weft/internal/engine"
	"github.com/pengelbrecht/weft/internal/schedule"
	"github.com/pengelbrecht/weft/internal/task"
	"github.com/pengelbrecht/weft/internal/update"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "Dependency-aware parallel task runner for AI coding agents",
	Long: `Weft reads a task file, works out which tasks can safely run together,
and executes them with an AI coding agent. Independent tasks run
concurrently in isolated git worktrees and are merged back one at a
time; dependent tasks wait for their prerequisites to land.`,
	Version: version,
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the execution plan without running anything",
	Long: `Plan prints the dependency layers and, within each layer, the
conflict-free batches that would execute together.`,
	Run: func(cmd *cobra.Command, args []string) {
		store := mustLoadStore(cmd)
		tasks := store.Tasks()

		if cyclic, offending := schedule.DetectCycle(tasks); cyclic {
			fmt.Fprintf(os.Stderr, "Error: dependency cycle involving %s\n", strings.Join(offending, ", "))
			os.Exit(engine.ExitRefused)
		}

		byID := make(map[string]task.Task, len(tasks))
		for _, t := range tasks {
			byID[t.ID] = t
		}

		for i, layer := range schedule.Layers(tasks) {
			fmt.Printf("Layer %d:\n", i+1)
			for j, batch := range schedule.ConflictFreeBatches(tasks, layer) {
				fmt.Printf("  Batch %d:\n", j+1)
				for _, id := range batch {
					t := byID[id]
					marker := " "
					if t.Done {
						marker = "x"
					}
					line := fmt.Sprintf("    [%s] %s - %s", marker, t.ID, t.Title)
					if files := t.TouchedFiles(); len(files) > 0 {
						line += fmt.Sprintf("  (%s)", strings.Join(files, ", "))
					}
					fmt.Println(line)
				}
			}
		}
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show task completion status",
	Run: func(cmd *cobra.Command, args []string) {
		store := mustLoadStore(cmd)
		tasks := store.Tasks()

		done := 0
		for _, t := range tasks {
			marker := " "
			if t.Done {
				marker = "x"
				done++
			}
			line := fmt.Sprintf("[%s] %s - %s", marker, t.ID, t.Title)
			if len(t.DependsOn) > 0 {
				line += fmt.Sprintf("  (after %s)", strings.Join(t.DependsOn, ", "))
			}
			fmt.Println(line)
		}
		fmt.Printf("\n%d/%d tasks complete\n", done, len(tasks))
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Mark every task as not done",
	Run: func(cmd *cobra.Command, args []string) {
		store := mustLoadStore(cmd)
		store.ResetAll()
		if err := store.Save(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(engine.ExitFailure)
		}
		fmt.Println("All tasks reset")
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Upgrade weft to the latest release",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Current version: %s\n", version)

		release, hasUpdate, err := update.CheckForUpdate(version)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking for updates: %v\n", err)
			os.Exit(1)
		}
		if !hasUpdate {
			fmt.Println("Already up to date")
			return
		}

		fmt.Printf("Upgrading to %s...\n", release.Version)
		if err := update.Update(version); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Upgraded to %s\n", release.Version)
	},
}

// mustLoadStore loads the task file named by --file, exiting with the
// refusal code when it is missing or invalid.
func mustLoadStore(cmd *cobra.Command) *task.Store {
	path, _ := cmd.Flags().GetString("file")
	store, err := task.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(engine.ExitRefused)
	}
	return store
}

// projectRoot is the directory holding the task file; workspaces, logs
// and configuration all live beneath it.
func projectRoot(taskFile string) string {
	abs, err := filepath.Abs(taskFile)
	if err != nil {
		return "."
	}
	return filepath.Dir(abs)
}

func init() {
	for _, c := range []*cobra.Command{runCmd, planCmd, statusCmd, resetCmd} {
		c.Flags().StringP("file", "f", task.DefaultFilename, "Task file to use")
	}

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(upgradeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
