package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"sanitykit/internal/blocks"
)

func newBlocksCmd(structured *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "Convert between paragraph text and block content",
	}

	codec := blocks.NewCodec(nil)
	cmd.AddCommand(
		newBlocksFromHTMLCmd(codec),
		newBlocksFromMarkdownCmd(codec),
		newBlocksToTextCmd(structured),
	)
	return cmd
}

func newBlocksFromHTMLCmd(codec *blocks.Codec) *cobra.Command {
	var sanitize bool

	cmd := &cobra.Command{
		Use:   "from-html [file]",
		Short: "Convert <p> paragraphs to blocks",
		Args:  requireArgsBetween(0, 1, "at most one input file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args)
			if err != nil {
				return err
			}
			text := string(raw)
			if sanitize {
				text = blocks.NewSanitizer().Sanitize(text)
			}
			return writeJSON(codec.TextToBlocks(text))
		},
	}

	cmd.Flags().BoolVar(&sanitize, "sanitize", false, "strip markup other than <p> before converting")
	return cmd
}

func newBlocksFromMarkdownCmd(codec *blocks.Codec) *cobra.Command {
	return &cobra.Command{
		Use:   "from-markdown [file]",
		Short: "Convert markdown paragraphs, headings and list items to blocks",
		Args:  requireArgsBetween(0, 1, "at most one input file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args)
			if err != nil {
				return err
			}
			out, err := codec.MarkdownToBlocks(raw)
			if err != nil {
				return err
			}
			return writeJSON(out)
		},
	}
}

func newBlocksToTextCmd(structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "to-text [file]",
		Short: "Flatten a JSON block list to plain text",
		Args:  requireArgsBetween(0, 1, "at most one input file"),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(args)
			if err != nil {
				return err
			}
			var list any
			if err := json.Unmarshal(raw, &list); err != nil {
				return fmt.Errorf("decode blocks: %w", err)
			}
			text := blocks.BlocksToString(list)
			if *structured {
				return writeJSON(map[string]string{"text": text})
			}
			return writePlain("%s\n", text)
		},
	}
}

// readInput reads the named file, or stdin when no file is given or it is "-".
func readInput(args []string) ([]byte, error) {
	if len(args) == 0 || args[0] == "-" {
		return io.ReadAll(stdin)
	}
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return raw, nil
}
