package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/config"
	"github.com/angelmondragon/snapstudio-backend/pkg/db"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox"
)

// app holds what the subcommands share. Config is loaded for every command;
// the database is opened only by commands that need it.
type app struct {
	cfg  *config.Config
	logg *logger.Logger
	db   *db.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tooling for the credit ledger",
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logg = logger.New(logger.Options{
				ServiceName: "ledgerctl",
				Level:       logger.ParseLevel(cfg.App.LogLevel),
				Output:      cmd.ErrOrStderr(),
			})
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.db != nil {
				return a.db.Close()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		newReconcileCmd(a),
		newPricesCmd(a),
		newTokenCmd(a),
		newDLQCmd(a),
	)
	return root
}

func (a *app) openDB(ctx context.Context) (*db.Client, error) {
	if a.db != nil {
		return a.db, nil
	}
	client, err := db.New(ctx, a.cfg.DB, a.cfg.FeatureFlags.UseSQLite, a.logg)
	if err != nil {
		return nil, err
	}
	a.db = client
	return client, nil
}

func (a *app) ledgerService(ctx context.Context) (*ledger.Service, error) {
	client, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.NewService(ledger.ServiceParams{
		Repo:        ledger.NewRepository(client.DB()),
		TxRunner:    client,
		Outbox:      outbox.NewService(outbox.NewRepository(client.DB()), a.logg),
		Logger:      a.logg,
		SignupGrant: a.cfg.Credits.SignupGrant,
		MaxAttempts: a.cfg.Credits.AuthorizeMaxAttempts,
	})
}

func (a *app) pricingService(ctx context.Context) (*pricing.Service, error) {
	client, err := a.openDB(ctx)
	if err != nil {
		return nil, err
	}
	return pricing.NewService(pricing.ServiceParams{
		Repo:     pricing.NewRepository(client.DB()),
		TxRunner: client,
		Logger:   a.logg,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
