package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newLookupCmd(configPath *string) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "lookup NAME...",
		Short: "Look up species descriptions and print them as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			var failed int
			for _, name := range args {
				res, err := a.lookups.Lookup(ctx, name)
				if err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
					failed++
					continue
				}
				if raw {
					res = res.Plain()
				}
				if err := enc.Encode(res); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d lookups failed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the original description instead of the translation")
	return cmd
}
