package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"sanitykit/internal/config"
	"sanitykit/internal/gateway"
)

// isInteractive reports whether the delete-all prompt can be shown.
var isInteractive = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newDeleteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one document",
		Args:  requireExactlyArgs(1, "document id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, cfg, nil, nil, func(ctx context.Context, gw *gateway.Gateway) error {
				return gw.DeleteByID(ctx, args[0])
			})
		},
	}
}

func newDeleteAllCmd(cfg *config.Config) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-all <type>",
		Short: "Delete every document of a schema type",
		Long:  "Delete every document of a schema type. This cannot be undone.",
		Args:  requireExactlyArgs(1, "schema type is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			schemaType := args[0]
			if !yes {
				confirmed, err := confirmDeleteAll(schemaType)
				if err != nil {
					return err
				}
				if !confirmed {
					return errors.New("aborted")
				}
			}
			return withGateway(cmd, cfg, nil, nil, func(ctx context.Context, gw *gateway.Gateway) error {
				return gw.DeleteAll(ctx, schemaType)
			})
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

// confirmDeleteAll asks on a terminal. Without one, --yes is required.
func confirmDeleteAll(schemaType string) (bool, error) {
	if !isInteractive() {
		return false, errors.New("refusing to delete without confirmation; pass --yes")
	}
	fmt.Fprintf(os.Stderr, "Delete every %q document? Type the type name to confirm: ", schemaType)
	answer, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && answer == "" {
		return false, err
	}
	return strings.TrimSpace(answer) == schemaType, nil
}
