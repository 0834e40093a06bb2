package cmd

import (
	"fmt"

	"github.com/nametidy/nametidy/internal/history"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded rename batches, newest first",
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Maximum number of records to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	dir, err := history.DefaultDir()
	if err != nil {
		return err
	}
	store, err := history.New(dir)
	if err != nil {
		return err
	}

	records, err := store.Query(history.Filter{Limit: historyLimit})
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No operations recorded.")
		return nil
	}

	for _, record := range records {
		success := len(record.Successes())
		undone := ""
		if record.UndoneBy != "" {
			undone = "  (undone)"
		}
		fmt.Printf("%s  %-7s %-9s %3d/%d ok  %s%s\n",
			record.EndedAt.Format("2006-01-02 15:04:05"),
			record.Kind, record.Status,
			success, len(record.Entries),
			record.ID, undone)
	}
	return nil
}
