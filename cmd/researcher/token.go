package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/researcher/config"
	"github.com/mohammad-safakhou/researcher/internal/runtime"
)

func tokenCMD(cfgPath *string) *cobra.Command {
	var ttl time.Duration
	var scopes []string
	var hashSecret string
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Sign an API token, or hash a client secret with --hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if hashSecret != "" {
				hash, err := bcrypt.GenerateFromPassword([]byte(hashSecret), bcrypt.DefaultCost)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(hash))
				return nil
			}
			if len(args) == 0 {
				return fmt.Errorf("subject is required")
			}

			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			secret, err := runtime.LoadJWTSecret(cfg)
			if err != nil {
				return err
			}
			if ttl <= 0 {
				ttl = cfg.Server.TokenTTL
			}
			for i := range scopes {
				scopes[i] = strings.TrimSpace(scopes[i])
			}
			tok, err := runtime.SignJWT(args[0], secret, ttl, scopes...)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (default server.token_ttl)")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{runtime.ScopeRun, runtime.ScopeRead}, "scopes to grant")
	cmd.Flags().StringVar(&hashSecret, "hash", "", "print the bcrypt hash of a client secret for server.clients")
	return cmd
}
