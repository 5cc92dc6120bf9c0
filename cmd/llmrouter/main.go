package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	var flags globalFlags

	root := &cobra.Command{
		Use:           "llmrouter",
		Short:         "llmrouter: cost-aware routing of LLM requests across providers",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(flags.envFile)
		},
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "llmrouter.yaml", "path to config file (yaml or toml)")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file with provider credentials")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(
		newServeCmd(&flags),
		newRouteCmd(&flags),
		newSuggestCmd(&flags),
		newCompleteCmd(&flags),
		newBudgetCmd(&flags),
		newCostCmd(&flags),
		newTopCmd(&flags),
		newHealthCmd(&flags),
		newMCPCmd(&flags),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadEnv loads path into the environment without overriding variables that
// are already set. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}
