package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"sanitykit/internal/config"
	"sanitykit/internal/gateway"
)

type createCmdOptions struct {
	fieldNames []string
	setKV      []string
	dataJSON   string
}

// names returns the --fields value, or nil when the flag was not given so
// values are treated as a mapping.
func (o *createCmdOptions) names(cmd *cobra.Command) []string {
	if !cmd.Flags().Changed("fields") {
		return nil
	}
	if o.fieldNames == nil {
		return []string{}
	}
	return o.fieldNames
}

func newCreateCmd(cfg *config.Config, structured *bool) *cobra.Command {
	opts := &createCmdOptions{}
	cmd := &cobra.Command{
		Use:   "create <type> [values...]",
		Short: "Create one document of a schema type",
		Args:  requireAtLeastArgs(1, "schema type is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCreate(cmd, cfg, opts, structured, args)
		},
	}

	bindCreateFlags(cmd, opts)
	return cmd
}

func bindCreateFlags(cmd *cobra.Command, opts *createCmdOptions) {
	cmd.Flags().StringSliceVar(&opts.fieldNames, "fields", nil, "field names for positional values (comma-separated)")
	cmd.Flags().StringArrayVar(&opts.setKV, "set", nil, "field value as key=value (repeatable; JSON values are decoded)")
	cmd.Flags().StringVar(&opts.dataJSON, "data", "", "fields as a JSON object")
}

func runCreate(cmd *cobra.Command, cfg *config.Config, opts *createCmdOptions, structured *bool, args []string) error {
	schemaType, values := args[0], args[1:]
	names := opts.names(cmd)

	var input any
	if names != nil {
		if opts.dataJSON != "" || len(opts.setKV) > 0 {
			return errors.New("--fields cannot be combined with --set or --data")
		}
		input = stringsToAny(values)
	} else {
		if len(values) > 0 {
			return errors.New("positional values need --fields")
		}
		mapped, err := buildFieldMap(opts.dataJSON, opts.setKV)
		if err != nil {
			return err
		}
		input = mapped
	}

	return withGateway(cmd, cfg, nil, nil, func(ctx context.Context, gw *gateway.Gateway) error {
		id, err := gw.Create(ctx, schemaType, input, names)
		if err != nil {
			return err
		}
		return writeCreated(id, *structured)
	})
}

// buildFieldMap merges --data and --set, with --set winning.
func buildFieldMap(dataJSON string, setKV []string) (map[string]any, error) {
	out := map[string]any{}
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &out); err != nil {
			return nil, fmt.Errorf("--data must be a JSON object: %w", err)
		}
	}
	for _, kv := range setKV {
		key, raw, ok := strings.Cut(kv, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q (want key=value)", kv)
		}
		out[key] = parseFieldValue(raw)
	}
	return out, nil
}

// parseFieldValue decodes raw as JSON when it is valid JSON and keeps it as
// a plain string otherwise.
func parseFieldValue(raw string) any {
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err == nil {
		return v
	}
	return raw
}

func stringsToAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func writeCreated(id string, structured bool) error {
	if structured {
		return writeJSON(map[string]string{"id": id})
	}
	return writePlain("%s\n", id)
}

func writeCreatedIDs(ids []string, structured bool) error {
	if structured {
		if ids == nil {
			ids = []string{}
		}
		return writeJSON(map[string]any{"ids": ids, "count": len(ids)})
	}
	return writeIDs(ids)
}
