package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweetlink/sweetlink/internal/relay"
	"github.com/sweetlink/sweetlink/internal/secret"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bridge relay",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", relay.DefaultPort, "port to listen on")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	sec, err := secret.Resolve("")
	if err != nil {
		return fmt.Errorf("failed to resolve secret: %w", err)
	}

	registry := relay.NewRegistry()
	server := relay.NewServer(registry, sec, os.Getenv("SWEETLINK_ADMIN_KEY"))
	router := server.SetupRoutes()
	log.Println("✓ Relay routes configured")

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", servePort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("🚀 Relay listening on http://localhost:%d", servePort)
		log.Printf("🔌 Bridge websocket at ws://localhost:%d%s", servePort, relay.BridgePath)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("⏳ Shutting down relay gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Println("✅ Relay stopped cleanly")
	return nil
}
