// Package cmd holds the nxmeta command line.
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/emunx/nxmeta/internal/config"
	"github.com/emunx/nxmeta/internal/logging"
)

var (
	configFile string
	logCloser  io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "nxmeta",
	Short:         "Extract and catalog Switch ROM metadata",
	Long:          `nxmeta reads the title id, name and icon of .nsp and .xci files and keeps a searchable catalog of a ROM folder.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logCloser != nil {
			return logCloser.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default ./nxmeta.yaml or $HOME/.config/nxmeta/nxmeta.yaml)")
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadConfig reads the configuration and installs the logger it describes.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %q: %w", configFile, err)
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	logCloser = closer
	return cfg, nil
}
