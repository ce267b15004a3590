package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sanitykit/internal/config"
	"sanitykit/internal/gateway"
	"sanitykit/internal/models"
)

func newListCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var selectFields []string

	cmd := &cobra.Command{
		Use:   "list <type>",
		Short: "List every document of a schema type",
		Long: "List every document of a schema type. With --select each document is projected " +
			`to the given paths under camelCase aliases ("seo title" becomes seoTitle).`,
		Args: requireExactlyArgs(1, "schema type is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, cfg, nil, nil, func(ctx context.Context, gw *gateway.Gateway) error {
				docs, err := gw.ListAll(ctx, args[0], selectFields)
				if err != nil {
					return err
				}
				return writeDocumentResult(docs, *structured)
			})
		},
	}

	cmd.Flags().StringSliceVar(&selectFields, "select", nil, "field paths to project (comma-separated)")
	return cmd
}

func newQueryCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var rawParams []string

	cmd := &cobra.Command{
		Use:   "query <query>",
		Short: "Run a query and print the matching documents",
		Args:  requireExactlyArgs(1, "query is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseQueryParams(rawParams)
			if err != nil {
				return err
			}
			return withGateway(cmd, cfg, nil, nil, func(ctx context.Context, gw *gateway.Gateway) error {
				docs, err := gw.Fetch(ctx, args[0], params)
				if err != nil {
					return err
				}
				return writeDocumentResult(docs, *structured)
			})
		},
	}

	cmd.Flags().StringArrayVar(&rawParams, "param", nil, "query parameter as name=value (repeatable; JSON values are decoded)")
	return cmd
}

// parseQueryParams turns name=value pairs into query parameters. A leading $
// on the name is optional.
func parseQueryParams(raw []string) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]any, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimPrefix(strings.TrimSpace(name), "$")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param %q (want name=value)", kv)
		}
		params[name] = parseFieldValue(value)
	}
	return params, nil
}

func writeDocumentResult(docs []models.Document, structured bool) error {
	if structured {
		if docs == nil {
			docs = []models.Document{}
		}
		return writeJSON(docs)
	}
	return writeDocuments(docs)
}
