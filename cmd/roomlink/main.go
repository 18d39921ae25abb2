// roomlink joins a collaborative workshop room and mirrors the shared
// document live: foreign edits trigger a refetch of the authoritative room,
// own edits are written through the API and broadcast to peers. A local
// status server exposes health, metrics, and a session snapshot.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
	"github.com/sprintroom/roomlink/internal/api"
	"github.com/sprintroom/roomlink/internal/domain"
	"github.com/sprintroom/roomlink/internal/platform/config"
	"github.com/sprintroom/roomlink/internal/platform/logging"
	"github.com/sprintroom/roomlink/internal/realtime"
	"github.com/sprintroom/roomlink/internal/session"
	"github.com/sprintroom/roomlink/internal/statusserver"
)

func main() {
	var (
		roomID      = pflag.String("room", "", "room ID to join")
		createName  = pflag.String("create-room", "", "create a room with this name instead of joining")
		displayName = pflag.String("name", "", "display name to join as (required)")
		serverURL   = pflag.String("server", "", "workshop server base URL (overrides SERVER_URL)")
		statusPort  = pflag.String("status-port", "", "local status server port (overrides STATUS_PORT)")
	)
	pflag.Parse()

	cfg := setupConfig()
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	if *statusPort != "" {
		cfg.StatusPort = *statusPort
	}

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if *displayName == "" {
		slog.Error("--name is required")
		os.Exit(1)
	}
	if (*roomID == "") == (*createName == "") {
		slog.Error("Exactly one of --room or --create-room is required")
		os.Exit(1)
	}

	client := api.NewClient(cfg.ServerURL)

	if *createName != "" {
		room, err := client.CreateRoom(context.Background(), *createName, *displayName)
		if err != nil {
			slog.Error("Failed to create room", "error", err)
			os.Exit(1)
		}
		slog.Info("Created room", "room", room.ID, "name", room.Name)
		*roomID = room.ID
	}

	wsBase := cfg.WebsocketURL
	if wsBase == "" {
		wsBase = realtime.WebsocketBaseURL(cfg.ServerURL)
	}

	channel := realtime.NewChannel(realtime.Options{
		WebsocketBaseURL:     wsBase,
		HeartbeatInterval:    cfg.HeartbeatInterval,
		HeartbeatTimeout:     cfg.HeartbeatTimeout,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		ReconnectMaxBackoff:  cfg.ReconnectMaxBackoff,
		ReconnectMaxAttempts: cfg.ReconnectMaxAttempts,
	}, clockwork.NewRealClock())

	sess := session.New(client, channel, *roomID, *displayName, clockwork.NewRealClock())
	sess.OnChat(func(msg domain.ChatPayload) {
		fmt.Printf("[%s] %s\n", msg.UserName, msg.Text)
	})

	joinCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sess.Join(joinCtx); err != nil {
		slog.Error("Failed to join room", "room", *roomID, "error", err)
		os.Exit(1)
	}

	srv := statusserver.NewServer(cfg.StatusPort, sess, client)
	go func() {
		if err := srv.Start(); err != nil {
			slog.Error("Status server error", "error", err)
		}
	}()

	<-runGracefulShutdown(sess, srv)
	slog.Info("Shutdown complete")
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func runGracefulShutdown(sess *session.Session, srv *statusserver.Server) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		sess.Leave()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Status server shutdown error", "error", err)
		}

		close(done)
	}()

	return done
}
