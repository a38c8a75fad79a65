package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/turtacn/ache-predictor/internal/interfaces/http/middleware"
)

type tokenResult struct {
	Token     string    `json:"token"`
	Subject   string    `json:"subject"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (t tokenResult) String() string { return t.Token }

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token signed with auth.jwt_secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cc.Config.Auth.TokenTTL
			}
			tok, exp, err := middleware.IssueToken(cc.Config.Auth.JWTSecret, cc.Config.Auth.Issuer, subject, ttl)
			if err != nil {
				return err
			}
			return PrintResult(cmd, tokenResult{Token: tok, Subject: subject, ExpiresAt: exp.UTC()})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject (required)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default: auth.token_ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

//Personal.AI order the ending
