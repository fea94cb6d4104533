package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/offboardpro/offboardpro/api/auth"
	"github.com/offboardpro/offboardpro/api/config"
)

var (
	tokenEmail string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <uid>",
	Short: "Mint a development bearer token (AUTH_MODE=jwt)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AuthMode != config.AuthJWT {
			return fmt.Errorf("tokens can only be minted with AUTH_MODE=%s", config.AuthJWT)
		}
		tok, err := auth.NewJWTVerifier(cfg.JWTSecret).IssueToken(args[0], tokenEmail, time.Now(), tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenEmail, "email", "", "email claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
}
