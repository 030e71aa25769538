// ABOUTME: Layout subcommands for the overlay panel and floating button
// ABOUTME: Set commands send only the flags actually given, exercising partial saves

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notedock/notedock/internal/store"
)

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Read or write the overlay panel layout",
}

var layoutGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the panel layout as JSON",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		f, _, err := newFacade()
		if err != nil {
			fatal("Error loading config", err)
		}
		defer f.Close()

		printJSON(f.LoadLayout(cmd.Context()))
	},
}

var (
	layoutX         float64
	layoutY         float64
	layoutWidth     float64
	layoutHeight    float64
	layoutVisible   bool
	layoutMinimized bool
)

var layoutSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update panel layout fields",
	Long: `Update the panel layout. Only the flags given are changed; every
other stored field keeps its value.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var partial store.PanelLayout
		if cmd.Flags().Changed("x") {
			partial.X = &layoutX
		}
		if cmd.Flags().Changed("y") {
			partial.Y = &layoutY
		}
		if cmd.Flags().Changed("width") {
			partial.Width = &layoutWidth
		}
		if cmd.Flags().Changed("height") {
			partial.Height = &layoutHeight
		}
		if cmd.Flags().Changed("visible") {
			partial.Visible = &layoutVisible
		}
		if cmd.Flags().Changed("minimized") {
			partial.Minimized = &layoutMinimized
		}
		if partial.IsZero() {
			fmt.Fprintln(os.Stderr, "nothing to set: pass at least one flag")
			os.Exit(1)
		}

		f, _, err := newFacade()
		if err != nil {
			fatal("Error loading config", err)
		}
		defer f.Close()

		f.SaveLayout(cmd.Context(), partial)
	},
}

var buttonCmd = &cobra.Command{
	Use:   "button",
	Short: "Read or write the floating button layout",
}

var buttonGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the button layout as JSON",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		f, _, err := newFacade()
		if err != nil {
			fatal("Error loading config", err)
		}
		defer f.Close()

		printJSON(f.LoadButtonLayout(cmd.Context()))
	},
}

var (
	buttonX float64
	buttonY float64
)

var buttonSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Update button layout fields",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var partial store.ButtonLayout
		if cmd.Flags().Changed("x") {
			partial.X = &buttonX
		}
		if cmd.Flags().Changed("y") {
			partial.Y = &buttonY
		}
		if partial.X == nil && partial.Y == nil {
			fmt.Fprintln(os.Stderr, "nothing to set: pass at least one flag")
			os.Exit(1)
		}

		f, _, err := newFacade()
		if err != nil {
			fatal("Error loading config", err)
		}
		defer f.Close()

		f.SaveButtonLayout(cmd.Context(), partial)
	},
}

func printJSON(v any) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fatal("Error encoding JSON", err)
	}
}

func init() {
	rootCmd.AddCommand(layoutCmd)
	layoutCmd.AddCommand(layoutGetCmd)
	layoutCmd.AddCommand(layoutSetCmd)
	layoutSetCmd.Flags().Float64Var(&layoutX, "x", 0, "Panel x position")
	layoutSetCmd.Flags().Float64Var(&layoutY, "y", 0, "Panel y position")
	layoutSetCmd.Flags().Float64Var(&layoutWidth, "width", 0, "Panel width")
	layoutSetCmd.Flags().Float64Var(&layoutHeight, "height", 0, "Panel height")
	layoutSetCmd.Flags().BoolVar(&layoutVisible, "visible", false, "Panel visibility")
	layoutSetCmd.Flags().BoolVar(&layoutMinimized, "minimized", false, "Panel minimized state")

	rootCmd.AddCommand(buttonCmd)
	buttonCmd.AddCommand(buttonGetCmd)
	buttonCmd.AddCommand(buttonSetCmd)
	buttonSetCmd.Flags().Float64Var(&buttonX, "x", 0, "Button x position")
	buttonSetCmd.Flags().Float64Var(&buttonY, "y", 0, "Button y position")
}
