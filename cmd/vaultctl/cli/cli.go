// Package cli implements the "vaultctl" command tree for operating a
// storage engine directly against its backing device file.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"vaultfs/internal/device"
	"vaultfs/internal/engine"
	"vaultfs/internal/engineconfig"
	"vaultfs/internal/logging"
)

// NewRootCommand returns the top-level "vaultctl" command with every
// subcommand wired in.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vaultctl",
		Short: "Operate a fault-tolerant content-addressed block store",
		Long:  "vaultctl opens an engine directly against its backing device file and performs a single operation.",
	}

	cmd.PersistentFlags().String("config", "", "path to an engine config TOML file")
	cmd.PersistentFlags().String("device", "vault.img", "path to the backing device file (used when --config is not given)")
	cmd.PersistentFlags().Uint64("size", 64<<20, "device size in bytes, for a fresh device file (used when --config is not given)")
	cmd.PersistentFlags().StringP("output", "o", "table", "output format: table or json")

	cmd.AddCommand(
		newPutCmd(),
		newGetCmd(),
		newRmCmd(),
		newLsCmd(),
		newScanCmd(),
		newDefragCmd(),
		newRebalanceCmd(),
		newSweepCmd(),
	)
	return cmd
}

// openEngine builds an engine config from cmd's flags and opens the engine
// against its backing device, creating the device file if it doesn't
// already exist.
func openEngine(cmd *cobra.Command) (*engine.Engine, func(), error) {
	cfg, err := configFromCmd(cmd)
	if err != nil {
		return nil, nil, err
	}

	dev, err := device.OpenFileDevice(cfg.DevicePath, cfg.DeviceSize)
	if err != nil {
		return nil, nil, fmt.Errorf("open device %s: %w", cfg.DevicePath, err)
	}

	// Base handler allows all levels through; the ComponentFilterHandler
	// does the actual filtering, same split as cmd/gastrolog/main.go.
	baseHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})
	filterHandler := logging.NewComponentFilterHandler(baseHandler, slog.LevelWarn)
	logger := slog.New(filterHandler)
	e, err := engine.Open(dev, cfg, logger, nil)
	if err != nil {
		_ = dev.Close()
		return nil, nil, fmt.Errorf("open engine: %w", err)
	}
	cleanup := func() {
		e.Shutdown()
		_ = dev.Close()
	}
	return e, cleanup, nil
}

func configFromCmd(cmd *cobra.Command) (engineconfig.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	if configPath != "" {
		return engineconfig.Load(configPath)
	}

	devicePath, _ := cmd.Flags().GetString("device")
	size, _ := cmd.Flags().GetUint64("size")
	cfg := engineconfig.Default()
	cfg.DevicePath = devicePath
	cfg.DeviceSize = size
	if err := cfg.Validate(); err != nil {
		return engineconfig.Config{}, err
	}
	return cfg, nil
}

func outputFormat(cmd *cobra.Command) string {
	f, _ := cmd.Flags().GetString("output")
	return f
}
