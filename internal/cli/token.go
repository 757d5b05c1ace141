package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"

	"carepay/internal/auth"
)

func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		role       string
		employerID string
		subject    string
		ttl        time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a collaborator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := rootOpts.Config
			if cfg.JWTSecret == "" {
				return errors.New("JWT_SECRET must be set to issue tokens")
			}
			if role == auth.RoleEmployer && employerID == "" {
				return errors.New("--employer is required for employer tokens")
			}
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			if subject == "" {
				subject = role
			}
			token, err := auth.GenerateToken(cfg.JWTSecret, auth.Claims{
				Role:             role,
				EmployerID:       employerID,
				RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
			}, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&role, "role", auth.RoleGateway, "employer or gateway")
	cmd.Flags().StringVar(&employerID, "employer", "", "employer id for employer tokens")
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (defaults to the role)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	return cmd
}
