package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"sanitykit/internal/api"
	"sanitykit/internal/config"
	"sanitykit/internal/gateway"
	"sanitykit/internal/pacing"
)

// policyFlags overrides the error policy of patching commands.
type policyFlags struct {
	onError string
}

func (p *policyFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.onError, "on-error", "", "patch failure handling: propagate or log (default per command)")
}

// apply returns policies with every patching operation set to the
// --on-error value, or nil when the flag is unset.
func (p *policyFlags) apply() (*gateway.Policies, error) {
	if p == nil || p.onError == "" {
		return nil, nil
	}
	policy, err := gateway.ParseErrorPolicy(p.onError)
	if err != nil {
		return nil, err
	}
	return &gateway.Policies{
		Attach:      policy,
		AttachImage: policy,
		Set:         policy,
		CopyField:   policy,
	}, nil
}

func newAPIClient(cfg *config.Config) (*api.Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config not initialized")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return api.NewClient(api.Options{
		ProjectID:   cfg.ProjectID,
		Dataset:     cfg.Dataset,
		APIVersion:  cfg.APIVersion,
		Token:       cfg.Token,
		APIHost:     cfg.APIHost,
		UseCDN:      cfg.UseCDN,
		HTTPTimeout: cfg.HTTPTimeoutDuration(),
	})
}

func newGateway(cfg *config.Config, documentID string, policies *policyFlags) (*gateway.Gateway, error) {
	client, err := newAPIClient(cfg)
	if err != nil {
		return nil, err
	}
	pacingOpts, err := cfg.PacingOptions()
	if err != nil {
		return nil, err
	}
	pacer, err := pacing.New(pacingOpts)
	if err != nil {
		return nil, err
	}
	overrides, err := policies.apply()
	if err != nil {
		return nil, err
	}

	gw := gateway.New(client, gateway.Options{
		Logger:   slog.Default(),
		Pacer:    pacer,
		Policies: overrides,
	})
	gw.SetDocumentID(documentID)
	return gw, nil
}

// withGateway builds a gateway from cfg and runs fn with the command context.
func withGateway(cmd *cobra.Command, cfg *config.Config, flags *globalFlags, policies *policyFlags, fn func(context.Context, *gateway.Gateway) error) error {
	documentID := ""
	if flags != nil {
		documentID = flags.documentID
	}
	gw, err := newGateway(cfg, documentID, policies)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, gw)
}
