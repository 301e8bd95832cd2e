package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
	"github.com/angelmondragon/snapstudio-backend/pkg/outbox"
)

func newDLQCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect credit events the outbox publisher dead-lettered",
	}
	cmd.AddCommand(newDLQListCmd(a), newDLQStatsCmd(a))
	return cmd
}

func newDLQListCmd(a *app) *cobra.Command {
	var (
		reason  string
		aggregate string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print dead-lettered events, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := outbox.DLQFilter{AggregateID: aggregate, Limit: limit}
			if reason != "" {
				parsed, err := enums.ParseOutboxDLQErrorReason(reason)
				if err != nil {
					return err
				}
				filter.Reason = parsed
			}
			client, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			rows, err := outbox.NewDLQRepository(client.DB()).List(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rows)
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "Only entries with this reason (unresolvable, non_retryable, max_attempts)")
	cmd.Flags().StringVar(&aggregate, "aggregate", "", "Only entries for this account or operation id")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum entries to print")
	return cmd
}

func newDLQStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count dead-lettered events by reason",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := outbox.NewDLQRepository(client.DB()).CountByReason(cmd.Context())
			if err != nil {
				return err
			}
			reasons := make([]string, 0, len(counts))
			for reason := range counts {
				reasons = append(reasons, reason.String())
			}
			sort.Strings(reasons)
			for _, reason := range reasons {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", reason, counts[enums.OutboxDLQErrorReason(reason)])
			}
			return nil
		},
	}
}
