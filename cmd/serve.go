package cmd

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

	"github.com/craftlink/craftlink/internal/binding"
	"github.com/craftlink/craftlink/internal/cache"
	"github.com/craftlink/craftlink/internal/db/bunx"
	"github.com/craftlink/craftlink/internal/discord"
	"github.com/craftlink/craftlink/internal/mojang"
	"github.com/craftlink/craftlink/internal/repository"
	"github.com/craftlink/craftlink/internal/server"
	"github.com/craftlink/craftlink/internal/session"
	"github.com/craftlink/craftlink/internal/whitelist"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the craftlink API server",
	Long:  `Starts the HTTP server with the Discord login flow and account binding endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := bunx.NewDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		log.Printf("Connected to database")

		userRepo := repository.NewBunUserRepository(db)
		sessionRepo := repository.NewBunSessionRepository(db)

		discordClient := discord.NewClient(cfg.Discord)
		mojangClient := mojang.NewClient()

		var allowlist whitelist.Service
		if cfg.Whitelist.Addr != "" {
			allowlist = whitelist.NewRCON(cfg.Whitelist)
			log.Printf("Whitelist propagation enabled via RCON at %s", cfg.Whitelist.Addr)
		} else {
			allowlist = whitelist.Disabled{}
			log.Printf("Whitelist propagation disabled (RCON_ADDR not set)")
		}

		responses := cache.New(time.Duration(cfg.CacheTTLSeconds) * time.Second)
		sessions := session.NewManager(userRepo, sessionRepo, discordClient, cfg.Cookie)
		bindings := binding.NewCoordinator(userRepo, mojangClient, discordClient, allowlist, responses)

		srv := &http.Server{
			Addr:         cfg.ServerAddr,
			Handler:      server.New(cfg, discordClient, sessions, bindings, userRepo).Router(),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Printf("Starting server on %s", cfg.ServerAddr)
			log.Printf("Base URL: %s", cfg.BaseURL)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)

		case sig := <-shutdown:
			log.Printf("Received signal %v, shutting down gracefully", sig)

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				srv.Close()
				return fmt.Errorf("graceful shutdown failed: %w", err)
			}

			log.Printf("Server stopped")
			return nil
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
