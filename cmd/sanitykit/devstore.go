package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"sanitykit/internal/auth"
	"sanitykit/internal/blobstore"
	"sanitykit/internal/config"
	"sanitykit/internal/server"
	"sanitykit/internal/store"

	_ "modernc.org/sqlite"
)

func newDevstoreCmd(cfg *config.Config, structured *bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devstore",
		Short: "Run and manage the local document store",
	}

	cmd.AddCommand(
		newDevstoreServeCmd(cfg),
		newDevstoreHashTokenCmd(structured),
		newDevstoreMigrateStatusCmd(cfg, structured),
	)
	return cmd
}

func newDevstoreServeCmd(cfg *config.Config) *cobra.Command {
	var (
		addr          string
		publicURL     string
		maxAssetBytes int64
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the document store API from a local SQLite database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg == nil {
				return fmt.Errorf("config not initialized")
			}
			if cfg.Devstore.DBPath == "" {
				return fmt.Errorf("devstore db path is required")
			}
			if addr == "" {
				addr = cfg.Devstore.Addr
			}

			logger := slog.Default().With("component", "devstore")

			listenAddr, err := server.ListenAddr(addr)
			if err != nil {
				return err
			}

			logger.Info("opening database", "path", cfg.Devstore.DBPath)
			st, err := store.Open(cfg.Devstore.DBPath)
			if err != nil {
				return err
			}
			defer st.Close()

			bs, err := blobstore.NewLocalCAS(cfg.Devstore.BlobDir, maxAssetBytes)
			if err != nil {
				return err
			}

			if cfg.Devstore.TokenHash == "" {
				logger.Warn("auth disabled; set devstore.token_hash to require a bearer token")
			}

			srv := server.New(listenAddr, st, bs, server.Options{
				TokenHash:     cfg.Devstore.TokenHash,
				PublicURL:     publicURL,
				MaxAssetBytes: maxAssetBytes,
				Logger:        logger,
			})
			logger.Info("listening", "addr", listenAddr)
			return srv.ListenAndServe()
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to devstore.addr)")
	cmd.Flags().StringVar(&publicURL, "public-url", "", "base URL used in asset urls (defaults to the request host)")
	cmd.Flags().Int64Var(&maxAssetBytes, "max-asset-bytes", 0, "largest accepted upload in bytes (0 uses the default)")
	return cmd
}

func newDevstoreHashTokenCmd(structured *bool) *cobra.Command {
	var generate bool

	cmd := &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Hash an API token for devstore.token_hash",
		Long: "Hash an API token with bcrypt for the devstore.token_hash config key. " +
			"With --generate a new random token is created and printed with its hash.",
		Args: requireArgsBetween(0, 1, "at most one token"),
		RunE: func(cmd *cobra.Command, args []string) error {
			var token string
			switch {
			case generate && len(args) > 0:
				return errors.New("--generate cannot be combined with a token argument")
			case generate:
				generated, err := auth.GenerateToken()
				if err != nil {
					return err
				}
				token = generated
			case len(args) == 1:
				token = args[0]
			default:
				raw, err := readInput(nil)
				if err != nil {
					return err
				}
				token = strings.TrimSpace(string(raw))
			}

			hash, err := auth.HashToken(token)
			if err != nil {
				return err
			}

			if *structured {
				payload := map[string]string{"token_hash": hash}
				if generate {
					payload["token"] = token
				}
				return writeJSON(payload)
			}
			if generate {
				if err := writePlain("token: %s\n", token); err != nil {
					return err
				}
			}
			return writePlain("token_hash: %s\n", hash)
		},
	}

	cmd.Flags().BoolVar(&generate, "generate", false, "generate a new random token")
	return cmd
}

func newDevstoreMigrateStatusCmd(cfg *config.Config, structured *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-status",
		Short: "Show devstore schema migration status without applying anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openRawDB(cfg.Devstore.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			plan, err := store.MigrationPlan(db)
			if err != nil {
				return fmt.Errorf("inspect migrations: %w", err)
			}

			if *structured {
				return writeJSON(plan)
			}

			if err := writePlain("Current version: %d\nAvailable version: %d\n", plan.CurrentVersion, plan.AvailableVersion); err != nil {
				return err
			}
			if len(plan.Pending) == 0 {
				return writePlain("No pending migrations.\n")
			}
			if err := writePlain("Pending migrations: %d\n", len(plan.Pending)); err != nil {
				return err
			}
			for _, m := range plan.Pending {
				if err := writePlain("  %d: %s\n", m.Version, m.Description); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func openRawDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return sql.Open("sqlite", u.String())
}
