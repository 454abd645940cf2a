package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/museum-robotics/tourguide-core/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		subject string
		role    string
		control bool
		ttl     int
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API access token signed with the configured secret",
		Long:  "token prints a bearer token for the HTTP API and the dashboard. Only one operator should hold --control at a time.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !auth.IsValidRole(auth.Role(role)) {
				return fmt.Errorf("%w: %q", auth.ErrInvalidRole, role)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Security.JWT.AccessTokenTTL
			}

			token, err := auth.GenerateAccessToken(auth.Principal{
				ID:         subject,
				Role:       auth.Role(role),
				HasControl: control,
			}, cfg.Security.JWT.Secret, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, e.g. the operator's user id")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleUser), "role: admin, tourManager, robotOperator, contentManager or user")
	cmd.Flags().BoolVar(&control, "control", false, "grant robot control")
	cmd.Flags().IntVar(&ttl, "ttl", 0, "lifetime in minutes (default security.jwt.access_token_ttl)")
	_ = cmd.MarkFlagRequired("subject") //nolint:errcheck // flag is defined above
	return cmd
}
