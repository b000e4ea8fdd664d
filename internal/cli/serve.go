package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"tgmatch/internal/config"
	"tgmatch/internal/dashboard"
	"tgmatch/internal/events"
	"tgmatch/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		if err := cfg.Validate(); err != nil {
			if !errors.Is(err, config.ErrMissingBotToken) {
				log.Fatalf("Invalid config: %v", err)
			}
			log.Printf("WARNING: %v; every Telegram sign-in will fail until it is set", err)
		}
		if cfg.IsSecure() {
			gin.SetMode(gin.ReleaseMode)
		}

		store, err := storage.Open(cfg.DBPath, storeOptions(cfg))
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer store.Close()

		h := dashboard.NewHandler(cfg, store)
		defer h.Close()
		eventLog := h.Bus.Subscribe()
		defer h.Bus.Unsubscribe(eventLog)
		go logEvents(eventLog)

		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           h.Router(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			log.Printf("Listening on %s (domain %s)", cfg.Addr, cfg.Domain)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Server error: %v", err)
			}
			return
		case <-ctx.Done():
			fmt.Println("\nShutdown signal received, draining connections...")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
		fmt.Println("Server stopped")
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		// Open migrates.
		store, err := storage.Open(cfg.DBPath, storeOptions(cfg))
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		store.Close()
		fmt.Printf("Database %s is up to date\n", cfg.DBPath)
	},
}

func storeOptions(cfg *config.Config) storage.Options {
	return storage.Options{
		AdminTelegramIDs: cfg.AdminTelegramIDs,
		SuperLikesPerDay: cfg.Dating.SuperLikesPerDay,
	}
}

// logEvents writes notable bus events to the server log until ch closes.
func logEvents(ch <-chan events.Event) {
	for ev := range ch {
		switch data := ev.Data.(type) {
		case events.AuthData:
			if ev.Type == events.EventAuthRejected {
				log.Printf("[event] %s %s from %s: %s", ev.Type, data.Protocol, data.RemoteAddr, data.Reason)
			}
		case events.MatchData:
			log.Printf("[event] match %d between users %d and %d", data.MatchID, data.User1ID, data.User2ID)
		case events.ErrorData:
			log.Printf("[event] error in %s: %v", data.Context, data.Error)
		default:
			log.Printf("[event] %s %v", ev.Type, ev.Data)
		}
	}
}
