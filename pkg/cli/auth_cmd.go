package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authentication helpers for the HTTP server",
	}
	cmd.AddCommand(newAuthTokenCmd())
	return cmd
}

func newAuthTokenCmd() *cobra.Command {
	var (
		subject string
		email   string
		secret  string
		expires time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 development token",
		Long:  "Signs a token with JWT_SECRET (or --secret) that the server accepts when OIDC is not configured.",
		Example: `  export JWT_SECRET=dev-secret
  curl -H "Authorization: Bearer $(talk2data auth token --email alice@example.com)" localhost:8080/v1/info`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := mintToken(firstNonEmpty(secret, os.Getenv("JWT_SECRET")), subject, email, expires, time.Now())
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]string{"token": token})
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "dev-user", "Token subject")
	cmd.Flags().StringVar(&email, "email", "", "Email claim")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (default $JWT_SECRET)")
	cmd.Flags().DurationVar(&expires, "expires", 24*time.Hour, "Token lifetime")
	return cmd
}

func mintToken(secret, subject, email string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is required: set JWT_SECRET or --secret")
	}
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if email != "" {
		claims["email"] = email
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
