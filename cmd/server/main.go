package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "a2a-travel",
	Short: "Agent-to-agent travel planning server",
	Long: `a2a-travel runs an orchestrator with travel safety, flight booking and
accommodation agents. Tasks are routed to agents by type; agents exchange
information requests through the orchestrator.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: config.yaml in . or ./config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(planCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
