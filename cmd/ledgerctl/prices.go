package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/snapstudio-backend/internal/pricing"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

func newPricesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Inspect or change the credit price table",
	}
	cmd.AddCommand(newPricesShowCmd(a), newPricesSetCmd(a))
	return cmd
}

func newPricesShowCmd(a *app) *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the current price table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.pricingService(ctx)
			if err != nil {
				return err
			}
			if history > 0 {
				tables, err := svc.History(ctx, history)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tables)
			}
			table, err := svc.CurrentTable(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), table)
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "Print the last N versions instead")
	return cmd
}

func newPricesSetCmd(a *app) *cobra.Command {
	var (
		note  string
		actor string
	)

	cmd := &cobra.Command{
		Use:     "set key=cost [key=cost...]",
		Short:   "Publish a new price table version",
		Example: "ledgerctl prices set basic=1 professional=3 --note \"spring pricing\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := parseEntries(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			svc, err := a.pricingService(ctx)
			if err != nil {
				return err
			}
			table, err := svc.UpdateTable(ctx, pricing.UpdateTableInput{
				Actor:   actor,
				Note:    note,
				Entries: entries,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), table)
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "Reason recorded with the new version")
	cmd.Flags().StringVar(&actor, "actor", "ledgerctl", "Who made the change")
	return cmd
}

func parseEntries(args []string) (map[enums.PriceKey]int64, error) {
	entries := make(map[enums.PriceKey]int64, len(args))
	for _, arg := range args {
		rawKey, rawCost, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("expected key=cost, got %q", arg)
		}
		key := enums.PriceKey(strings.TrimSpace(rawKey))
		if !key.IsValid() {
			return nil, fmt.Errorf("unknown price key %q", rawKey)
		}
		cost, err := strconv.ParseInt(strings.TrimSpace(rawCost), 10, 64)
		if err != nil || cost <= 0 {
			return nil, fmt.Errorf("cost for %s must be a positive integer", key)
		}
		if _, dup := entries[key]; dup {
			return nil, fmt.Errorf("price key %s given twice", key)
		}
		entries[key] = cost
	}
	return entries, nil
}
