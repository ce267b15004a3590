package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sanitykit/internal/config"
	"sanitykit/internal/gateway"
)

func newBatchCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var fieldNames []string

	cmd := &cobra.Command{
		Use:   "batch <type> <file>",
		Short: "Create documents from a YAML or JSON list",
		Long: "Create one document per element of a YAML (or JSON) list. Elements are " +
			"mappings of field names to values, or lists of values when --fields is given.",
		Args: requireExactlyArgs(2, "schema type and file are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			documents, err := readBatchFile(args[1])
			if err != nil {
				return err
			}

			var names []string
			if cmd.Flags().Changed("fields") {
				names = fieldNames
				if names == nil {
					names = []string{}
				}
			}

			return withGateway(cmd, cfg, nil, nil, func(ctx context.Context, gw *gateway.Gateway) error {
				ids, err := gw.BatchCreate(ctx, args[0], documents, names)
				if writeErr := writeCreatedIDs(ids, *structured); writeErr != nil && err == nil {
					err = writeErr
				}
				return err
			})
		},
	}

	cmd.Flags().StringSliceVar(&fieldNames, "fields", nil, "field names for list elements (comma-separated)")
	return cmd
}

// readBatchFile decodes a list of documents. YAML is a superset of JSON so
// both formats are accepted.
func readBatchFile(path string) ([]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var documents []any
	if err := yaml.Unmarshal(raw, &documents); err != nil {
		return nil, fmt.Errorf("parse batch file %s: %w", path, err)
	}
	return documents, nil
}
