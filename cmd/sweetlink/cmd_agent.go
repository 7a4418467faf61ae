package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sweetlink/sweetlink/internal/agent"
	"github.com/sweetlink/sweetlink/internal/agent/cdp"
	"github.com/sweetlink/sweetlink/internal/secret"
)

var (
	agentRelayURL string
	agentCDPURL   string
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Attach a browser tab to the relay",
	Long: `Connects to a running Chrome's DevTools endpoint, registers the
first page target as a session on the relay, and serves commands
against it until interrupted.`,
	RunE: runAgent,
}

func init() {
	agentCmd.Flags().StringVar(&agentRelayURL, "relay", "", "bridge websocket url (default ws://localhost:4455/bridge)")
	agentCmd.Flags().StringVar(&agentCDPURL, "cdp", "", "chrome debug url (default http://localhost:9222)")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	sec, err := secret.Resolve("")
	if err != nil {
		return fmt.Errorf("failed to resolve secret: %w", err)
	}

	relayURL := agentRelayURL
	if relayURL == "" {
		relayURL = envOr("SWEETLINK_RELAY_URL", "ws://localhost:4455/bridge")
	}
	cdpURL := agentCDPURL
	if cdpURL == "" {
		cdpURL = envOr("SWEETLINK_CDP_URL", "http://localhost:9222")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	page, cancel, err := cdp.Attach(ctx, cdpURL)
	if err != nil {
		return err
	}
	defer cancel()
	log.Printf("✓ Attached to Chrome at %s", cdpURL)

	client := agent.NewClient(relayURL, sec, page)
	log.Printf("✓ Session id %s", client.SessionID())
	return client.Run(ctx)
}
