// ABOUTME: Export subcommand rendering the note as a standalone HTML page
// ABOUTME: Treats note content as markdown and converts it with goldmark

package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/yuin/goldmark"
)

var exportOutput string

const exportPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>notedock</title>
<style>
body { max-width: 42em; margin: 2em auto; font-family: sans-serif; line-height: 1.5; }
</style>
</head>
<body>
%s</body>
</html>
`

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the note as HTML",
	Long:  `Render the note content as markdown and write a standalone HTML page to stdout or a file.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		f, _, err := newFacade()
		if err != nil {
			fatal("Error loading config", err)
		}
		defer f.Close()

		content := f.LoadNote(cmd.Context())

		var htmlBuf bytes.Buffer
		if err := goldmark.Convert([]byte(content), &htmlBuf); err != nil {
			fatal("Error converting markdown", err)
		}

		page := fmt.Sprintf(exportPage, htmlBuf.String())
		if exportOutput == "" {
			fmt.Print(page)
			return
		}
		if err := os.WriteFile(exportOutput, []byte(page), 0644); err != nil {
			fatal("Error writing output file", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Write HTML to a file instead of stdout")
}
