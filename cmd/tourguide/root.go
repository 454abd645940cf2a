package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/museum-robotics/tourguide-core/internal/infrastructure/config"
)

// defaultConfigPath is used when neither --config nor TOURGUIDE_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tourguide",
		Short:         "Museum tour robot connection controller",
		Long:          "tourguide keeps an authenticated connection to the tour robot's broker, relays its telemetry to dashboards, uploads narration and starts tours.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default $TOURGUIDE_CONFIG or "+defaultConfigPath+")")

	root.AddCommand(
		newServeCmd(),
		newStreamCmd(),
		newTourCmd(),
		newTokenCmd(),
		newDBCmd(),
		newVersionCmd(),
	)
	return root
}

// configPath resolves the config file: flag, then environment, then default.
func configPath(cmd *cobra.Command) string {
	if p, err := cmd.Flags().GetString("config"); err == nil && p != "" {
		return p
	}
	if p := os.Getenv("TOURGUIDE_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configPath(cmd)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// addJSONFlag registers the --json output switch shared by listing commands.
func addJSONFlag(fs *pflag.FlagSet, dst *bool, what string) {
	fs.BoolVar(dst, "json", false, "print "+what+" as JSON")
}
