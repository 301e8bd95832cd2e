package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/snapstudio-backend/pkg/auth"
	"github.com/angelmondragon/snapstudio-backend/pkg/enums"
)

func newTokenCmd(a *app) *cobra.Command {
	var (
		subject string
		role    string
		email   string
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for local testing or service callers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if subject == "" {
				return errors.New("--sub is required")
			}
			parsed, err := enums.ParseRole(role)
			if err != nil {
				return err
			}
			token, err := auth.MintAccessToken(a.cfg.JWT, time.Now(), auth.AccessTokenPayload{
				UserID: subject,
				Email:  email,
				Role:   parsed,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "sub", "", "Account or service id")
	cmd.Flags().StringVar(&role, "role", string(enums.RoleUser), "user, service or admin")
	cmd.Flags().StringVar(&email, "email", "", "Optional email claim")
	return cmd
}
