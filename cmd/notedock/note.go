// ABOUTME: Note subcommands for reading and writing the sticky note text
// ABOUTME: Supports argument or stdin input for set

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var noteCmd = &cobra.Command{
	Use:   "note",
	Short: "Read or write the sticky note",
}

var noteGetCmd = &cobra.Command{
	Use:   "get",
	Short: "Print the note text",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		f, _, err := newFacade()
		if err != nil {
			fatal("Error loading config", err)
		}
		defer f.Close()

		fmt.Println(f.LoadNote(cmd.Context()))
	},
}

var noteSetCmd = &cobra.Command{
	Use:   "set [text]",
	Short: "Replace the note text",
	Long:  `Replace the note text with the given argument, or with stdin when no argument is given.`,
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var content string
		if len(args) == 1 {
			content = args[0]
		} else {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fatal("Error reading stdin", err)
			}
			content = strings.TrimRight(string(data), "\n")
		}

		f, _, err := newFacade()
		if err != nil {
			fatal("Error loading config", err)
		}
		defer f.Close()

		f.SaveNote(cmd.Context(), content)
	},
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", msg, err)
	os.Exit(1)
}

func init() {
	rootCmd.AddCommand(noteCmd)
	noteCmd.AddCommand(noteGetCmd)
	noteCmd.AddCommand(noteSetCmd)
}
