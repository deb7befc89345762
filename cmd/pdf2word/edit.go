package main

import (
	"fmt"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adverant/nexus/docconvert-worker/internal/processor"
)

const (
	maxSearchResults = 10
	maxResultRunes   = 100
)

func newSearchCmd() *cobra.Command {
	var doc, keyword string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "List paragraphs containing a keyword (case-insensitive)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := processor.NewMutator().Search(doc, keyword)
			if err != nil {
				return err
			}

			stdout := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintf(stdout, "No paragraphs contain %q\n", keyword)
				return nil
			}

			fmt.Fprintf(stdout, "Found %d paragraphs containing %q:\n", len(results), keyword)
			for i, r := range results {
				if i == maxSearchResults {
					fmt.Fprintf(stdout, "... and %d more\n", len(results)-maxSearchResults)
					break
				}
				fmt.Fprintf(stdout, "[paragraph %d] %s\n", r.ParagraphIndex, truncate(r.Text, maxResultRunes))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&doc, "doc", "", "input .docx")
	cmd.Flags().StringVar(&keyword, "keyword", "", "keyword to find")
	_ = cmd.MarkFlagRequired("doc")
	_ = cmd.MarkFlagRequired("keyword")
	return cmd
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func newHighlightCmd() *cobra.Command {
	var doc, keyword, out string

	cmd := &cobra.Command{
		Use:   "highlight",
		Short: "Highlight runs containing a keyword in yellow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := processor.NewMutator().Highlight(doc, keyword, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Highlighted %d runs containing %q, saved to %s\n", res.Count, keyword, res.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&doc, "doc", "", "input .docx")
	cmd.Flags().StringVar(&keyword, "keyword", "", "keyword to highlight")
	cmd.Flags().StringVar(&out, "out", "", "output .docx (default: <name>_highlighted.docx)")
	_ = cmd.MarkFlagRequired("doc")
	_ = cmd.MarkFlagRequired("keyword")
	return cmd
}

func newReplaceCmd() *cobra.Command {
	var doc, oldText, newText, out string

	cmd := &cobra.Command{
		Use:   "replace",
		Short: "Replace text (case-sensitive) in paragraphs and tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if oldText == "" {
				return fmt.Errorf("--old must not be empty")
			}
			res, err := processor.NewMutator().Replace(doc, oldText, newText, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replaced %d occurrences, saved to %s\n", res.Count, res.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&doc, "doc", "", "input .docx")
	cmd.Flags().StringVar(&oldText, "old", "", "text to replace")
	cmd.Flags().StringVar(&newText, "new", "", "replacement text")
	cmd.Flags().StringVar(&out, "out", "", "output .docx (default: <name>_edited.docx)")
	_ = cmd.MarkFlagRequired("doc")
	_ = cmd.MarkFlagRequired("old")
	return cmd
}

func newAppendCmd() *cobra.Command {
	var doc, text, out string

	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append a paragraph to the end of a document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := processor.NewMutator().Append(doc, text, out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Appended paragraph, saved to %s\n", res.Path)
			return nil
		},
	}

	cmd.Flags().StringVar(&doc, "doc", "", "input .docx")
	cmd.Flags().StringVar(&text, "text", "", "paragraph text")
	cmd.Flags().StringVar(&out, "out", "", "output .docx (default: rewrite input)")
	_ = cmd.MarkFlagRequired("doc")
	_ = cmd.MarkFlagRequired("text")
	return cmd
}

func newInfoCmd() *cobra.Command {
	var doc string

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Count paragraphs, tables and characters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := processor.NewMutator().Info(doc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paragraphs: %s\nTables:     %s\nCharacters: %s\n",
				humanize.Comma(int64(info.Paragraphs)),
				humanize.Comma(int64(info.Tables)),
				humanize.Comma(int64(info.Characters)))
			return nil
		},
	}

	cmd.Flags().StringVar(&doc, "doc", "", "input .docx")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}
