package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"sanitykit/internal/config"
	"sanitykit/internal/format"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	json       bool
	yaml       bool
	logLevel   string
	documentID string
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	flags := &globalFlags{}
	// structured is true when --json or --yaml is set.
	structured := new(bool)

	cmd := &cobra.Command{
		Use:           "sanitykit",
		Short:         "Create, patch, query and delete documents in a Sanity-style document store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if flags.json && flags.yaml {
				return errors.New("--json and --yaml are mutually exclusive")
			}
			name := "json"
			if flags.yaml {
				name = "yaml"
			}
			formatter, err := format.ForName(name)
			if err != nil {
				return err
			}
			outputFormatter = formatter
			*structured = flags.json || flags.yaml

			warning, err := configureLoggerForCLI(flags.logLevel, cfg.LogLevel)
			if err != nil {
				return err
			}
			if warning != "" {
				fmt.Fprintln(os.Stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().BoolVar(&flags.json, "json", false, "output JSON")
	cmd.PersistentFlags().BoolVar(&flags.yaml, "yaml", false, "output YAML")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&flags.documentID, "document", "", "current document id for field commands")

	cmd.AddCommand(
		newCreateCmd(cfg, structured),
		newCreateLineCmd(cfg, structured),
		newBatchCmd(cfg, structured),
		newImportCmd(cfg, structured),
		newSetCmd(cfg, flags),
		newAttachCmd(cfg, flags),
		newAttachImageCmd(cfg, flags),
		newCopyFieldCmd(cfg, structured),
		newListCmd(cfg, structured),
		newQueryCmd(cfg, structured),
		newDeleteCmd(cfg),
		newDeleteAllCmd(cfg),
		newBlocksCmd(structured),
		newConfigCmd(cfg),
		newDevstoreCmd(cfg, structured),
	)

	return cmd
}
