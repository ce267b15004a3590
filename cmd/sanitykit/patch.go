package main

import (
	"context"

	"github.com/spf13/cobra"

	"sanitykit/internal/config"
	"sanitykit/internal/gateway"
	"sanitykit/internal/models"
)

func newSetCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var (
		documentID string
		policies   policyFlags
	)

	cmd := &cobra.Command{
		Use:   "set <field> <value>",
		Short: "Set one field of a document",
		Long:  "Set one field of a document. Values that parse as JSON are stored decoded, anything else as a string.",
		Args:  requireExactlyArgs(2, "field and value are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, cfg, flags, &policies, func(ctx context.Context, gw *gateway.Gateway) error {
				return gw.Set(ctx, args[0], parseFieldValue(args[1]), documentID)
			})
		},
	}

	cmd.Flags().StringVar(&documentID, "id", "", "document id (defaults to --document)")
	policies.bind(cmd)
	return cmd
}

func newAttachCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var (
		documentID string
		policies   policyFlags
	)

	cmd := &cobra.Command{
		Use:   "attach <field> <target-id>",
		Short: "Point a field at another document",
		Args:  requireExactlyArgs(2, "field and target id are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, cfg, flags, &policies, func(ctx context.Context, gw *gateway.Gateway) error {
				return gw.Attach(ctx, args[0], args[1], documentID)
			})
		},
	}

	cmd.Flags().StringVar(&documentID, "id", "", "document id (defaults to --document)")
	policies.bind(cmd)
	return cmd
}

func newAttachImageCmd(cfg *config.Config, flags *globalFlags) *cobra.Command {
	var (
		documentID string
		imageType  string
		policies   policyFlags
	)

	cmd := &cobra.Command{
		Use:   "attach-image <field> <url-or-path>",
		Short: "Upload an image and link it from a field",
		Args:  requireExactlyArgs(2, "field and image url are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, cfg, flags, &policies, func(ctx context.Context, gw *gateway.Gateway) error {
				return gw.AttachImage(ctx, args[1], args[0], imageType, documentID)
			})
		},
	}

	cmd.Flags().StringVar(&documentID, "id", "", "document id (defaults to --document)")
	cmd.Flags().StringVar(&imageType, "image-type", models.DefaultImageType, "_type of the image field")
	policies.bind(cmd)
	return cmd
}

func newCopyFieldCmd(cfg *config.Config, structured *bool) *cobra.Command {
	var policies policyFlags

	cmd := &cobra.Command{
		Use:   "copy-field <type> <target-field> <source-field>",
		Short: "Copy one field into another on every document of a type",
		Args:  requireExactlyArgs(3, "schema type, target field and source field are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withGateway(cmd, cfg, nil, &policies, func(ctx context.Context, gw *gateway.Gateway) error {
				report, err := gw.CopyField(ctx, args[0], args[1], args[2])
				if err != nil {
					return err
				}
				if *structured {
					return writeJSON(report)
				}
				if err := writePlain("updated %d of %d\n", len(report.Updated), report.Total); err != nil {
					return err
				}
				for _, failure := range report.Failed {
					if err := writePlain("failed %s: %s\n", failure.ID, failure.Error); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	policies.bind(cmd)
	return cmd
}
