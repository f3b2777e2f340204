package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/almecha/GlucoseIoT/internal/core"
)

func newCheckCmd(opts *rootOptions) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Inspect a stored catalog document without modifying it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			report, err := core.CheckDocument(cmd.Context(), data, catalogDefaults(cfg.Catalog), nil, nil)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			kinds := make([]string, 0, len(report.Schemas))
			for _, k := range report.Schemas {
				kinds = append(kinds, string(k))
			}
			fmt.Fprintf(out, "schemas: %s\n", strings.Join(kinds, ", "))
			for _, r := range report.Repairs {
				fmt.Fprintf(out, "repair: %s\n", r)
			}
			for _, r := range report.Invalid {
				fmt.Fprintf(out, "invalid: %s\n", r)
			}
			for _, v := range report.Violations {
				fmt.Fprintf(out, "%s: %s (%s %s)\n", v.Rule, v.Message, v.Entity, v.EntityID)
			}
			problems := len(report.Repairs) + len(report.Invalid) + len(report.Violations)
			if problems > 0 {
				return fmt.Errorf("%s: %d problem(s) found", path, problems)
			}
			fmt.Fprintf(out, "%s: ok\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "file", "service_catalog.json", "catalog document to inspect")
	return cmd
}
