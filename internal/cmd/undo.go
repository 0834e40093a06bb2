package cmd

import (
	"context"
	"fmt"

	"github.com/nametidy/nametidy/internal/fsops"
	"github.com/nametidy/nametidy/internal/history"
	"github.com/nametidy/nametidy/internal/undo"
	"github.com/spf13/cobra"
)

var undoLast bool

var undoCmd = &cobra.Command{
	Use:   "undo [operation-id]",
	Short: "Reverse a completed rename batch",
	Long: `Reverse the renames of a recorded batch. Every entry is checked first:
the renamed file must still exist and the original name must be free.
Entries failing the check are reported and left alone. Batches older than
the configured undo window are refused.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUndo,
}

func init() {
	undoCmd.Flags().BoolVar(&undoLast, "last", false, "Undo the most recent batch")
	rootCmd.AddCommand(undoCmd)
}

func runUndo(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !undoLast {
		return fmt.Errorf("provide an operation id or --last")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	dir, err := history.DefaultDir()
	if err != nil {
		return err
	}
	store, err := history.New(dir)
	if err != nil {
		return err
	}

	coordinator := undo.New(fsops.OS(), store, logger, cfg.Undo.StalenessWindow())

	var result *undo.Result
	if len(args) == 1 {
		result, err = coordinator.UndoByID(context.Background(), args[0])
	} else {
		result, err = coordinator.UndoLast(context.Background())
	}
	if err != nil {
		return err
	}

	fmt.Printf("undo of %s: %d restored, %d not undoable\n", result.RecordID, result.Undone, result.Failed)
	for _, status := range result.Entries {
		if status.Undone {
			continue
		}
		fmt.Printf("  %s: %s\n", status.Entry.NewName, status.Reason)
	}
	return nil
}
