package main

import (
	"context"

	"github.com/spf13/cobra"

	"sanitykit/internal/config"
	"sanitykit/internal/fields"
	"sanitykit/internal/gateway"
)

type delimitedCmdOptions struct {
	fieldNames []string
	separator  string
}

func bindDelimitedFlags(cmd *cobra.Command, opts *delimitedCmdOptions) {
	cmd.Flags().StringSliceVar(&opts.fieldNames, "fields", nil, "field names, one per column (comma-separated)")
	cmd.Flags().StringVar(&opts.separator, "sep", ",", `column separator (a single character, or \t)`)
	_ = cmd.MarkFlagRequired("fields")
}

func newCreateLineCmd(cfg *config.Config, structured *bool) *cobra.Command {
	opts := &delimitedCmdOptions{}
	cmd := &cobra.Command{
		Use:   "create-line <type> <line>",
		Short: "Create one document from a delimited line",
		Args:  requireExactlyArgs(2, "schema type and line are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			sep, err := fields.Separator(opts.separator)
			if err != nil {
				return err
			}
			return withGateway(cmd, cfg, nil, nil, func(ctx context.Context, gw *gateway.Gateway) error {
				id, err := gw.CreateFromDelimited(ctx, args[0], args[1], opts.fieldNames, sep)
				if err != nil {
					return err
				}
				return writeCreated(id, *structured)
			})
		},
	}

	bindDelimitedFlags(cmd, opts)
	return cmd
}

func newImportCmd(cfg *config.Config, structured *bool) *cobra.Command {
	opts := &delimitedCmdOptions{}
	cmd := &cobra.Command{
		Use:   "import <type> <file>",
		Short: "Create one document per line of a delimited file",
		Args:  requireExactlyArgs(2, "schema type and file are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			sep, err := fields.Separator(opts.separator)
			if err != nil {
				return err
			}
			return withGateway(cmd, cfg, nil, nil, func(ctx context.Context, gw *gateway.Gateway) error {
				ids, err := gw.BatchCreateFromFile(ctx, args[0], args[1], opts.fieldNames, sep)
				if writeErr := writeCreatedIDs(ids, *structured); writeErr != nil && err == nil {
					err = writeErr
				}
				return err
			})
		},
	}

	bindDelimitedFlags(cmd, opts)
	return cmd
}
