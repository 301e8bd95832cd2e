package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/snapstudio-backend/internal/ledger"
)

var errDrift = errors.New("ledger drift detected")

func newReconcileCmd(a *app) *cobra.Command {
	var (
		all   bool
		batch int
	)

	cmd := &cobra.Command{
		Use:   "reconcile [accountId]",
		Short: "Replay transaction logs and compare with stored balances",
		Long:  "Replays the transaction log of one account, or every account with --all, and exits non-zero when any balance drifted.",
		Args: func(cmd *cobra.Command, args []string) error {
			if all && len(args) > 0 {
				return errors.New("pass an account id or --all, not both")
			}
			if !all && len(args) != 1 {
				return errors.New("account id required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.ledgerService(ctx)
			if err != nil {
				return err
			}

			if !all {
				rec, err := svc.Reconcile(ctx, args[0])
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), rec); err != nil {
					return err
				}
				if !rec.Consistent {
					return errDrift
				}
				return nil
			}

			var checked, drifted int
			err = svc.ReconcileAll(ctx, batch, func(rec *ledger.Reconciliation) error {
				checked++
				if rec.Consistent {
					return nil
				}
				drifted++
				return printJSON(cmd.OutOrStdout(), rec)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "checked %d accounts, %d drifted\n", checked, drifted)
			if drifted > 0 {
				return errDrift
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Reconcile every account")
	cmd.Flags().IntVar(&batch, "batch", 200, "Accounts loaded per page with --all")
	return cmd
}
