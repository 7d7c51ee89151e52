package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/bibbank/risk-engine/internal/auth"
)

// tokenCmd mints a development token for riskd.
func tokenCmd(opts *rootOptions) *cobra.Command {
	var (
		secret  string
		keyFile string
		issuer  string
		subject string
		roles   []string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for riskd",
		Long: `Sign a JWT that riskd accepts. Use --secret for HS256 deployments or
--key-file with a PEM RSA private key for RS256.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenantID, err := uuid.Parse(opts.tenant)
			if err != nil {
				return fmt.Errorf("invalid --tenant: %w", err)
			}

			jwtCfg := auth.JWTConfig{Secret: secret, Issuer: issuer, Expiration: ttl}
			if keyFile != "" {
				pem, err := os.ReadFile(keyFile)
				if err != nil {
					return fmt.Errorf("failed to read key file: %w", err)
				}
				jwtCfg.PrivateKeyPEM = string(pem)
			}
			if jwtCfg.Secret == "" && jwtCfg.PrivateKeyPEM == "" {
				return errors.New("one of --secret or --key-file is required")
			}

			svc, err := auth.NewJWTService(jwtCfg)
			if err != nil {
				return err
			}
			token, err := svc.GenerateToken(subject, tenantID, roles)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&secret, "secret", os.Getenv("RISK_AUTH_JWT_SECRET"), "HMAC secret")
	flags.StringVar(&keyFile, "key-file", "", "PEM RSA private key")
	flags.StringVar(&issuer, "issuer", "bib-identity", "token issuer")
	flags.StringVar(&subject, "subject", "riskctl", "token subject")
	flags.StringSliceVar(&roles, "roles", []string{auth.RoleAnalyst}, "granted roles")
	flags.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")

	return cmd
}
