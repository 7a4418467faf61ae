package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweetlink/sweetlink/internal/secret"
	"github.com/sweetlink/sweetlink/internal/token"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a signed token from the shared secret",
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeFlag, _ := cmd.Flags().GetString("scope")
		subject, _ := cmd.Flags().GetString("subject")
		ttlSec, _ := cmd.Flags().GetInt("ttl")
		sessionID, _ := cmd.Flags().GetString("session-id")

		var scope token.Scope
		var ttl time.Duration
		switch scopeFlag {
		case "cli":
			scope, ttl = token.ScopeCLI, token.CLITokenTTL
		case "session":
			scope, ttl = token.ScopeSession, token.SessionTokenTTL
		default:
			return fmt.Errorf("scope must be cli or session, got %q", scopeFlag)
		}
		if ttlSec > 0 {
			ttl = time.Duration(ttlSec) * time.Second
		}

		sec, err := secret.Resolve("")
		if err != nil {
			return err
		}
		tok, err := token.Sign(sec, scope, subject, ttl, sessionID)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().String("scope", "cli", "token scope (cli or session)")
	tokenCmd.Flags().String("subject", "operator", "token subject")
	tokenCmd.Flags().Int("ttl", 0, "lifetime in seconds (default per scope)")
	tokenCmd.Flags().String("session-id", "", "bind a session-scoped token to this session")
	rootCmd.AddCommand(tokenCmd)
}
