package main

import (
	"fmt"
	"os"

	guard "github.com/goliatone/go-route-guard"
	"github.com/spf13/cobra"
)

var (
	cfgPath string
	cfg     guard.Config
)

var rootCmd = &cobra.Command{
	Use:   "guardserver",
	Short: "Guarded web shell for the employee portal",
	Long: `guardserver serves the login, signup and password recovery pages
together with the protected receiver and admin pages.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = guard.LoadConfig(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to a YAML config file (env: GUARD_*)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(routesCmd)
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
