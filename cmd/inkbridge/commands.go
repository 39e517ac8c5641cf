package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tkoster/inkbridge/internal/bridge"
	"github.com/tkoster/inkbridge/internal/config"
	"github.com/tkoster/inkbridge/internal/registry"
)

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "inkbridge",
	Short: "Sync handwritten notes into a knowledge vault",
	Long: `inkbridge converts handwriting-recognition exports into Markdown
notes in a knowledge vault and pushes checkbox tasks to a task tracker.

Bridges are defined in bridges.yaml (or the file named by
INKBRIDGE_CONFIG); secrets can live in a .env file or the environment.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(versionCmd)
}

func setupLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("INKBRIDGE_LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func openStore(cfg config.Config) (*registry.Store, error) {
	store, err := registry.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening task registry: %w", err)
	}
	return store, nil
}

// --- run ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Sync all bridges (or one with --bridge)",
	Long: `Sync bridges: convert new and changed source notes into vault
Markdown, extract checkbox tasks, and push open tasks to the configured
provider.

Examples:
  inkbridge run
  inkbridge run --bridge personal
  inkbridge run --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		only, _ := cmd.Flags().GetString("bridge")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if len(cfg.Bridges) == 0 {
			return fmt.Errorf("no bridges configured")
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		runner := bridge.New(cfg, store, dryRun)
		sums, runErr := runner.Run(cmd.Context(), only)

		for _, sum := range sums {
			if sum.Bridge == "" {
				continue
			}
			line := fmt.Sprintf("%s: %d notes, %d converted, %d skipped",
				sum.Bridge, sum.NotesFound, sum.Converted, sum.Skipped)
			if sum.HasErrors() {
				printError("%s (errors)", line)
			} else {
				printSuccess("%s", line)
			}
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().String("bridge", "", "sync only the named bridge")
	runCmd.Flags().Bool("dry-run", false, "report what would change without writing")
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the latest run per bridge",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		sums, err := store.LatestSummaries()
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sums)
		}

		if len(sums) == 0 {
			printWarning("no runs recorded yet")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BRIDGE\tLAST RUN\tNOTES\tCONVERTED\tSKIPPED\tTASKS OPEN\tERRORS")
		for _, s := range sums {
			errs := "-"
			if s.HasErrors() {
				errs = "yes"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
				s.Bridge, s.FinishedAt.Format("2006-01-02 15:04"),
				s.NotesFound, s.Converted, s.Skipped, s.TasksOpen, errs)
		}
		return w.Flush()
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "print JSON instead of a table")
}

// --- tasks ---

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List extracted tasks and their sync state",
	RunE: func(cmd *cobra.Command, args []string) error {
		provider, _ := cmd.Flags().GetString("provider")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		states, err := store.ListTaskStates(provider, limit)
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(states)
		}

		if len(states) == 0 {
			printWarning("no tasks recorded yet")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "BRIDGE\tNOTE\tLINE\tTITLE\tSTATUS")
		for _, s := range states {
			status := s.Status
			if status == "" {
				status = "pending"
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				s.Bridge, s.NotePath, s.Line, s.Title, status)
		}
		return w.Flush()
	},
}

func init() {
	tasksCmd.Flags().String("provider", "noop", "task provider to show sync state for")
	tasksCmd.Flags().Int("limit", 50, "maximum tasks to list")
	tasksCmd.Flags().Bool("json", false, "print JSON instead of a table")
}

// --- version ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the inkbridge version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("inkbridge version %s\n", version)
	},
}
