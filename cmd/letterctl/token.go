package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"letters-backend/internal/shared/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		name string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token <operatorId>",
		Short: "Sign an operator token with JWT_SECRET for calling the API",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			claims := auth.Claims{Sub: args[0], Name: name}
			if ttl > 0 {
				claims.Exp = time.Now().Add(ttl).Unix()
			}
			token, err := auth.SignJWT(claims)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "operator display name")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime; the signer default applies when zero")
	return cmd
}
