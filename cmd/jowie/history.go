package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/liuscraft/jowie/internal/journal"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent conversation turns",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, err := setup(ctx, false, false)
		if err != nil {
			return err
		}
		defer a.close()

		if !a.cfg.Journal.Enable {
			return errors.New("journal is disabled in config")
		}
		j, err := a.openJournal()
		if err != nil {
			return err
		}
		entries, err := j.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}
		printHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "number of turns to show")
}

func printHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "no turns recorded yet")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "[%s] #%d (%v)\n", e.StartedAt.Format("2006-01-02 15:04:05"), e.TurnID, e.Duration)
		fmt.Fprintf(w, "  you:   %s\n", e.UserText)
		for _, tc := range e.ToolCalls {
			status := "ok"
			switch {
			case tc.Skipped:
				status = "skipped"
			case tc.Error != "":
				status = "failed: " + tc.Error
			}
			fmt.Fprintf(w, "  tool:  %s(%s) %s\n", tc.Name, tc.Arguments, status)
		}
		for _, r := range e.Replies {
			fmt.Fprintf(w, "  jowie: %s\n", r)
		}
		if e.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", strings.TrimSpace(e.Error))
		}
	}
}
