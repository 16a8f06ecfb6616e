package main

import (
	"fmt"

	guard "github.com/goliatone/go-route-guard"
	"github.com/goliatone/go-print"
	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the guarded route table",
	// the table is static, no config needed
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		table := guard.DefaultRoutes(guard.Pages{})
		fmt.Fprintln(cmd.OutOrStdout(), print.MaybePrettyJSON(table))
		return nil
	},
}
