// ABOUTME: Root cobra command and shared facade wiring for the notedock client
// ABOUTME: Builds a storage facade per invocation from the detected execution context

package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/notedock/notedock/internal/localkv"
	"github.com/notedock/notedock/internal/origin"
	"github.com/notedock/notedock/internal/storage"
)

var (
	configPath string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "notedock",
	Short: "Sticky note and overlay layout storage client",
	Long: `notedock reads and writes the sticky note and overlay layouts managed
by the notedockd daemon. When the daemon is unreachable, values degrade to a
local fallback file so nothing is ever lost to a dead socket.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
}

// newFacade wires a storage facade from the client config and the detected
// execution context. CLI invocations carry no privileged origin, so every
// durable operation goes through the daemon's broker socket.
func newFacade() (*storage.Facade, *Config, error) {
	path := configPath
	if path == "" {
		path = defaultConfigPath()
	}
	cfg, err := loadClientConfig(path)
	if err != nil {
		return nil, nil, err
	}

	f := storage.New(storage.Options{
		Env:      origin.Detect(cfg.Daemon.SocketPath),
		Fallback: localkv.New(cfg.Storage.FallbackPath),
		Logger:   slog.Default(),
	})
	return f, cfg, nil
}
