/*
Package main is the entry point for the Relay Chat application.

It runs in one of two modes selected by the first argument:

	server  starts the chat listener and, when ADMIN_PORT is set, the HTTP admin surface
	client  connects to SERVER_ADDRESS and runs an interactive console (the default)

Configuration comes from environment variables. Interrupt signals (SIGINT, SIGTERM)
trigger a graceful shutdown in both modes.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relaychat/internal/app/chat"
	"relaychat/internal/configs"
	"relaychat/internal/handler"
	"relaychat/internal/pkg/logx"
)

func main() {
	mode := "client"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}
	if mode != "server" && mode != "client" {
		fmt.Fprintf(os.Stderr, "usage: %s [server|client]\n", os.Args[0])
		os.Exit(2)
	}

	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mode == "server" {
		logx.InitGlobalLogger(logx.Options{
			Development: cfg.IsDevelopment(),
			Mode:        mode,
		})
		runServer(ctx, cfg)
		return
	}

	// The console owns stdout; logs go to stderr and stay quiet unless something is wrong.
	logx.InitGlobalLogger(logx.Options{
		Development: cfg.IsDevelopment(),
		Mode:        mode,
		Out:         os.Stderr,
		Level:       "warn",
	})
	if err := runClient(ctx, cfg, os.Stdin, os.Stdout); err != nil {
		logx.Fatal(err, "Client stopped with an error")
	}
}

func runServer(ctx context.Context, cfg *configs.AppConfig) {
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Str("listen", cfg.ListenAddr()).
		Int("admin_port", cfg.AdminPort).
		Int("max_clients", cfg.MaxClients).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Configuration loaded successfully")

	server := chat.NewServer(cfg)
	if err := server.Init(); err != nil {
		logx.Fatal(err, "Chat listener failed to start")
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		if err := server.Run(ctx); err != nil {
			logx.Error(err, "Accept loop stopped")
		}
	}()
	logx.Info(fmt.Sprintf("Relay Chat listening on %s", server.Addr()))

	var (
		adminServer *http.Server
		stopRouter  func()
	)
	if cfg.AdminPort != 0 {
		var router http.Handler
		router, stopRouter = handler.Router(&handler.AppDeps{Server: server, Config: cfg})

		adminAddr := fmt.Sprintf(":%d", cfg.AdminPort)
		adminServer = &http.Server{
			Addr:         adminAddr,
			Handler:      router,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		}

		go func() {
			logx.Info(fmt.Sprintf("Admin surface starting on http://localhost%s", adminAddr))
			if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.Fatal(err, "Admin server failed to start")
			}
		}()
	}

	// Wait for interrupt signal to gracefully shutdown with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	if adminServer != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logx.Error(err, "Admin server forced to shutdown")
		}
		stopRouter()
	}

	server.Shutdown()
	<-runDone

	logx.Info("Server gracefully stopped.")
}
