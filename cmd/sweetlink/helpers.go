package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sweetlink/sweetlink/internal/client"
	"github.com/sweetlink/sweetlink/internal/relay"
	"github.com/sweetlink/sweetlink/internal/secret"
	"github.com/sweetlink/sweetlink/internal/token"
)

// tokenCache is re-minted per process; invalidation is expiry-based.
var tokenCache = client.NewTokenCache(30 * time.Second)

func relayBaseURL() string {
	return envOr("SWEETLINK_RELAY_HTTP", fmt.Sprintf("http://localhost:%d", relay.DefaultPort))
}

// relayClient builds an authenticated client: with the shared secret it
// self-signs a cli token, otherwise it exchanges the admin key through
// the relay's token endpoint.
func relayClient(ctx context.Context) (*client.Client, error) {
	base := relayBaseURL()

	tok, err := tokenCache.Get(func() (string, time.Time, error) {
		if sec, err := secret.Resolve(""); err == nil {
			t, err := token.Sign(sec, token.ScopeCLI, "operator", token.CLITokenTTL, "")
			if err != nil {
				return "", time.Time{}, err
			}
			return t, time.Now().Add(token.CLITokenTTL), nil
		}
		adminKey := os.Getenv("SWEETLINK_ADMIN_KEY")
		if adminKey == "" {
			return "", time.Time{}, fmt.Errorf("no shared secret and no SWEETLINK_ADMIN_KEY set")
		}
		return client.ExchangeCLIToken(ctx, base, adminKey, "operator")
	})
	if err != nil {
		return nil, err
	}
	return client.New(base, tok), nil
}
