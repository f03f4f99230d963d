package cmd

import (
	"os"

	"github.com/spf13/cobra"
	configx "github.com/tanpawarit/factory-copilot/pkg/config"
	logx "github.com/tanpawarit/factory-copilot/pkg/logger"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "Factory operations copilot",
	Long: `copilot answers questions about inventory, orders, production, demand forecasts
and alerts by selecting and running data tools for each query.

Settings come from COPILOT_* environment variables, optionally loaded from an env file.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configx.SetEnvFile(envFile)

		logCfg, err := configx.New[logx.Config]("LOG")
		if err != nil {
			return err
		}
		// stdout carries command output.
		logCfg.Output = os.Stderr
		logx.Init(*logCfg)
		return nil
	},
}

// Execute runs the root command. It is called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "path to .env file (default ./.env when present)")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(toolsCmd)
}

func openApp(cmd *cobra.Command) (*App, error) {
	cfg, err := LoadAppConfig()
	if err != nil {
		return nil, err
	}
	return NewApp(cmd.Context(), *cfg)
}
