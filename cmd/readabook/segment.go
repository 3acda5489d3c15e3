package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/Sternrassler/readabook/pkg/segment"
)

var (
	segmentJSON  bool
	sectionChars int
)

var segmentCmd = &cobra.Command{
	Use:   "segment <file>",
	Short: "Split a local plain-text book into chapters",
	Long: `Segment a local plain-text book the same way the server does and print
the resulting chapters.

Use "-" to read from standard input.

Examples:
  readabook segment pg1342.txt
  readabook segment --json pg1342.txt
  curl -s https://www.gutenberg.org/cache/epub/84/pg84.txt | readabook segment -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}

		res := segment.New(segment.Config{SectionChars: sectionChars}).Segment(string(raw))
		return printSegments(cmd.OutOrStdout(), res, segmentJSON)
	},
}

func init() {
	segmentCmd.Flags().BoolVar(&segmentJSON, "json", false, "Print the full result as JSON")
	segmentCmd.Flags().IntVar(&sectionChars, "section-chars", segment.DefaultSectionChars, "Fallback section size in characters")

	rootCmd.AddCommand(segmentCmd)
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

func printSegments(w io.Writer, res *segment.ParseResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintf(w, "%d chapters (strategy: %s)\n", res.TotalChapters, res.Strategy)
	for i, ch := range res.Chapters {
		fmt.Fprintf(w, "%4d  %-50s %8d chars\n", i+1, ch.Title, utf8.RuneCountInString(ch.Content))
	}
	return nil
}
