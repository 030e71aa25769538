// ABOUTME: Status subcommand reporting dispatch mode, daemon reachability, and migration state
// ABOUTME: Reads only local state plus one socket probe; never mutates storage

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/notedock/notedock/internal/localkv"
	"github.com/notedock/notedock/internal/migrate"
	"github.com/notedock/notedock/internal/origin"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show where storage operations are going",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		path := configPath
		if path == "" {
			path = defaultConfigPath()
		}
		cfg, err := loadClientConfig(path)
		if err != nil {
			fatal("Error loading config", err)
		}

		env := origin.Detect(cfg.Daemon.SocketPath)

		mode := "delegated"
		if env.Privileged() {
			mode = "privileged"
		}
		fmt.Printf("mode:      %s\n", mode)
		fmt.Printf("socket:    %s\n", cfg.Daemon.SocketPath)

		reachable := "no"
		if env.Valid() {
			reachable = "yes"
		}
		fmt.Printf("daemon:    %s\n", reachable)

		flags := localkv.New(cfg.Storage.FallbackPath)
		state := migrate.StateNotStarted
		if v, err := flags.Get(localkv.KeyMigrationDone); err == nil {
			state = migrate.State(v)
		} else if !errors.Is(err, localkv.ErrNotFound) {
			fmt.Printf("fallback:  unreadable (%v)\n", err)
			return
		}

		if state == migrate.StateCompleted {
			fmt.Println("migration: completed")
		} else {
			fmt.Println("migration: not started")
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
