package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/healthchat/internal/types"
)

func init() {
	rootCmd.AddCommand(syncCmd, countsCmd)
}

var syncCmd = &cobra.Command{
	Use:   "sync [subject]",
	Short: "Download every record of a subject into the local store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		subject, err := a.subjectArg(args)
		if err != nil {
			return err
		}

		summary, err := a.syncer.FetchAll(cmd.Context(), subject, func(p types.FetchProgress) {
			switch p.Status {
			case types.FetchCompleted:
				fmt.Fprintf(os.Stdout, "  %-20s %d\n", p.ResourceType, *p.Count)
			case types.FetchError:
				fmt.Fprintf(os.Stdout, "  %-20s failed: %s\n", p.ResourceType, p.Error)
			}
		})
		if err != nil {
			return fmt.Errorf("sync %s: %w", subject, err)
		}

		fmt.Fprintf(os.Stdout, "Synced %d resources for %s in %s.\n",
			summary.TotalResources, subject, summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
		if n := len(summary.Errors); n > 0 {
			fmt.Fprintf(os.Stdout, "%d resource types failed.\n", n)
		}
		return nil
	},
}

var countsCmd = &cobra.Command{
	Use:   "counts [subject]",
	Short: "Show how many records of each type are stored locally",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(loadConfig())
		if err != nil {
			return err
		}
		defer a.Close()

		subject, err := a.subjectArg(args)
		if err != nil {
			return err
		}
		counts, err := a.records.GetCounts(cmd.Context(), subject)
		if err != nil {
			return fmt.Errorf("get counts: %w", err)
		}
		if len(counts) == 0 {
			fmt.Println("No records stored. Run: healthchat sync")
			return nil
		}

		rts := make([]string, 0, len(counts))
		for rt := range counts {
			rts = append(rts, string(rt))
		}
		sort.Strings(rts)

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TYPE\tCOUNT")
		for _, rt := range rts {
			fmt.Fprintf(w, "%s\t%d\n", rt, counts[types.ResourceType(rt)])
		}
		return w.Flush()
	},
}
