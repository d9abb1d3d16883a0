package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"
	"github.com/upb/functions-gateway/config"
	"github.com/upb/functions-gateway/functions"
)

func newRoutesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "routes",
		Short: "Print the discovered route table and exit",
		Long: `Discover handler modules the same way serve does and print the routes
they would be mounted at. Exits non-zero when two modules map to one route.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fnCfg, err := config.LoadFunctionsConfig()
			if err != nil {
				return err
			}
			if opts.functionsDir != "" {
				fnCfg.Dir = opts.functionsDir
			}

			table, err := functions.Discover(fnCfg.Dir, functions.DiscoverOptions{
				Prefix: fnCfg.MountPrefix,
			})
			if err != nil {
				return err
			}
			return renderRoutes(cmd.OutOrStdout(), table)
		},
	}
}

// renderRoutes writes the mounted routes, then any skipped modules
func renderRoutes(w io.Writer, table *functions.Table) error {
	if table.Len() == 0 {
		fmt.Fprintln(w, "No handler modules found.")
	} else {
		if err := renderTable(w, []string{"Method", "Route", "Kind", "Resolution", "Source"}, routeRows(table)); err != nil {
			return err
		}
	}

	skipped := table.Skipped()
	if len(skipped) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	rows := make([][]string, 0, len(skipped))
	for _, s := range skipped {
		rows = append(rows, []string{s.Source, s.Reason})
	}
	return renderTable(w, []string{"Skipped", "Reason"}, rows)
}

func routeRows(table *functions.Table) [][]string {
	rows := make([][]string, 0, table.Len())
	for _, e := range table.Entries() {
		rows = append(rows, []string{"POST", e.Route, e.Kind, e.Resolution, e.Source})
	}
	return rows
}

func renderTable(w io.Writer, headers []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	table.Options(
		tablewriter.WithHeader(headers),
		tablewriter.WithAlignment(tw.MakeAlign(len(headers), tw.AlignLeft)),
	)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to append row: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}
