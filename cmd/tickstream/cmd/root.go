package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "tickstream",
	Short: "Market event fan-out service",
	Long: `tickstream consumes pattern, indicator, and tick events from the
analytics producer's broker channels, classifies them by priority, and
fans them out to connected websocket sessions with per-session filters.`,
	Version: "0.1.0",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")
}
