package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"webpush-demo-backend/config"
)

var (
	version = "dev"
	commit  = "none"
)

const defaultConfigPath = "./config/config.yaml"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "pushd",
		Short:         "Web push subscription demo server",
		Long:          "pushd stores browser push subscriptions and broadcasts a demonstration notification to every subscriber.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config (default $CONFIG_PATH or "+defaultConfigPath+")")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(&configPath))
	cmd.AddCommand(newKeysCmd())
	cmd.AddCommand(newTokenCmd(&configPath))
	return cmd
}

// NewRootCmdForTest returns the root command for testing.
func NewRootCmdForTest() *cobra.Command {
	return newRootCmd()
}

func Execute() error {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error: "+err.Error()))
	}
	return err
}

// resolveConfigPath prefers the flag, then CONFIG_PATH, then the default.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		return env
	}
	return defaultConfigPath
}

func loadConfig(flag string) (*config.Config, string, error) {
	path := resolveConfigPath(flag)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("failed to load configuration from %s: %w", path, err)
	}
	return cfg, path, nil
}
