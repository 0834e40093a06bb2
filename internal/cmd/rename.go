package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nametidy/nametidy/internal/core"
	"github.com/nametidy/nametidy/internal/fsops"
	"github.com/nametidy/nametidy/internal/history"
	"github.com/nametidy/nametidy/internal/pipeline"
	"github.com/nametidy/nametidy/internal/rename"
	"github.com/nametidy/nametidy/internal/scan"
	"github.com/spf13/cobra"
)

var (
	renameRecursive     bool
	renameMaxDepth      int
	renameIncludeHidden bool
	renameDryRun        bool
	renameForce         bool
	renameYes           bool
	renamePolicy        string
)

var renameCmd = &cobra.Command{
	Use:   "rename [path]",
	Short: "Scan a directory, preview normalized names, and apply the batch",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRename,
}

func init() {
	renameCmd.Flags().BoolVarP(&renameRecursive, "recursive", "r", false, "Descend into subdirectories")
	renameCmd.Flags().IntVar(&renameMaxDepth, "max-depth", 0, "Limit recursion depth (0 = unlimited)")
	renameCmd.Flags().BoolVar(&renameIncludeHidden, "include-hidden", false, "Include hidden files and directories")
	renameCmd.Flags().BoolVarP(&renameDryRun, "dry-run", "n", false, "Show what would be renamed without touching the filesystem")
	renameCmd.Flags().BoolVar(&renameForce, "force", false, "Allow overwriting existing destinations")
	renameCmd.Flags().BoolVarP(&renameYes, "yes", "y", false, "Apply without asking for confirmation")
	renameCmd.Flags().StringVar(&renamePolicy, "policy", string(rename.SkipAndContinue),
		"Partial-failure policy: skip-and-continue, stop-on-first-error, or rollback-all")
	rootCmd.AddCommand(renameCmd)
}

func runRename(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	policy, err := parsePolicy(renamePolicy)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	var store *history.Store
	if cfg.EnableHistory && !renameDryRun {
		dir, err := history.DefaultDir()
		if err != nil {
			return err
		}
		if store, err = history.New(dir); err != nil {
			return err
		}
		if err := store.Cleanup(cfg.RetentionDays); err != nil {
			logger.Warn().Err(err).Msg("history cleanup failed")
		}
	}

	p := pipeline.New(cfg, fsops.OS(), store, logger)
	defer p.Close()

	// Ctrl-C cancels cooperatively: in-flight renames finish, the rest skip.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go p.Governor().Run(ctx)

	plan, err := p.Preview(ctx, root, scan.Options{
		Recursive:     renameRecursive,
		MaxDepth:      renameMaxDepth,
		IncludeHidden: renameIncludeHidden,
	}, func(progress pipeline.Progress) {
		fmt.Fprintf(os.Stderr, "\rscanning %3.0f%%  %s", progress.Percent, trimName(progress.CurrentFile))
	})
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	selected := printPlan(plan)
	if selected == 0 {
		fmt.Println("Nothing to rename.")
		return nil
	}

	if !renameYes && !renameDryRun {
		if !confirm(fmt.Sprintf("Rename %d file(s)?", selected)) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	p.SetProgressFunc(func(done int, current string, total int) {
		fmt.Fprintf(os.Stderr, "\rrenaming %d/%d  %s", done, total, trimName(current))
	})
	batch, report := p.Execute(ctx, plan, rename.Options{
		Policy: policy,
		DryRun: renameDryRun,
		Force:  renameForce,
	})
	fmt.Fprintln(os.Stderr)

	printSummary(batch, report)
	if batch.Status == core.BatchFailed {
		return fmt.Errorf("batch %s finished with failures", batch.ID)
	}
	return nil
}

func parsePolicy(s string) (rename.FailurePolicy, error) {
	switch rename.FailurePolicy(s) {
	case rename.SkipAndContinue, rename.StopOnFirstError, rename.RollbackAll:
		return rename.FailurePolicy(s), nil
	default:
		return "", fmt.Errorf("unknown policy %q", s)
	}
}

func printPlan(plan []*core.RenamePlanEntry) int {
	selected := 0
	for _, entry := range plan {
		if !entry.Selected {
			if entry.Conflict == core.ConflictUnresolved {
				fmt.Printf("  !! %s (conflict not resolvable)\n", entry.Source.Name)
			}
			continue
		}
		selected++
		marker := " "
		if entry.Conflict == core.ConflictDuplicate {
			marker = "*"
		}
		fmt.Printf("  %s %s -> %s\n", marker, entry.Source.Name, entry.EffectiveTarget())
	}
	return selected
}

func printSummary(batch *core.BatchOperation, report *rename.Report) {
	success, failed, skipped := batch.Counts()
	fmt.Printf("%s: %d renamed, %d failed, %d skipped\n", batch.Status, success, failed, skipped)

	if len(report.Failed) == 0 {
		return
	}
	fmt.Println("Failures:")
	for _, f := range report.Failed {
		fmt.Printf("  %s -> %s: %s\n", f.SourcePath, f.TargetName, f.Reason)
	}
	strategies := make([]string, len(report.Strategies))
	for i, s := range report.Strategies {
		strategies[i] = string(s)
	}
	fmt.Printf("Available recovery strategies: %s\n", strings.Join(strategies, ", "))
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N] ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func trimName(name string) string {
	const max = 50
	if len(name) <= max {
		return name
	}
	return "…" + name[len(name)-max+1:]
}
