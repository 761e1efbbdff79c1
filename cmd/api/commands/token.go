package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tripboard/core/internal/application/services"
)

// NewTokenCommand creates the API token command
func NewTokenCommand() *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "API token commands",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed API bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, appLogger, err := loadCLI()
			if err != nil {
				return err
			}
			defer appLogger.Sync()

			if len(cfg.Auth.Secret) < 32 {
				return fmt.Errorf("JWT_SECRET must be set to at least 32 characters")
			}

			token, err := services.NewAuthService(cfg.Auth, appLogger).IssueToken(subject, ttl)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token.AccessToken)
			fmt.Fprintf(cmd.ErrOrStderr(), "Expires at %s\n", token.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	issueCmd.Flags().String("subject", "", "Token subject, e.g. the device or person (required)")
	issueCmd.Flags().Duration("ttl", 0, "Token lifetime (defaults to JWT_EXPIRES_IN)")
	issueCmd.MarkFlagRequired("subject")

	tokenCmd.AddCommand(issueCmd)
	return tokenCmd
}
