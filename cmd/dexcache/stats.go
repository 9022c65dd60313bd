package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pario-ai/dexcache/pkg/tracker"
)

func newStatsCmd(configPath *string) *cobra.Command {
	var (
		name   string
		recent int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show lookup history statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer tr.Close()

			ctx := context.Background()

			if recent > 0 {
				events, err := tr.Recent(ctx, recent)
				if err != nil {
					return err
				}
				if len(events) == 0 {
					fmt.Println("No lookups recorded.")
					return nil
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tNAME\tOUTCOME\tDIALECT\tFALLBACK\tERROR\tDURATION")
				for _, e := range events {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
						e.CreatedAt.Format("2006-01-02T15:04:05"), e.Name, e.Outcome, e.Dialect, e.Fallback, e.ErrorKind, e.Duration)
				}
				return w.Flush()
			}

			rows, err := tr.Summary(ctx, name)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No lookups recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tREQUESTS\tHITS\tMISSES\tERRORS\tFALLBACKS\tLAST SEEN")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
					r.Name, r.RequestCount, r.Hits, r.Misses, r.Errors, r.Fallbacks, r.LastSeen.Format("2006-01-02T15:04:05"))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "filter by species name")
	cmd.Flags().IntVar(&recent, "recent", 0, "show the N most recent lookups instead of the summary")
	return cmd
}
