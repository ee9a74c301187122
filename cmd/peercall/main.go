package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/arden/peercall/internal/adapters/http"
	"github.com/arden/peercall/internal/adapters/rtc"
	sigclient "github.com/arden/peercall/internal/adapters/signal"
	"github.com/arden/peercall/internal/app"
	"github.com/arden/peercall/internal/config"
	"github.com/arden/peercall/internal/core"
	"github.com/arden/peercall/internal/domain"
	"github.com/arden/peercall/internal/media"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// godotenv.Load does not overwrite existing env vars.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	localID := domain.PeerID(cfg.PeerID)
	if localID == "" {
		localID = domain.PeerID(uuid.NewString())
	}

	acquirer := media.NewAcquirer(media.FileOpener{
		AudioPath: cfg.AudioFile,
		VideoPath: cfg.VideoFile,
	})

	iceConfig := rtc.ConfigFromURLs(cfg.ICEServers)
	newLink := func() (core.MediaLink, error) {
		return rtc.NewLink(iceConfig)
	}

	var orch *app.Orchestrator
	relay := sigclient.NewClient(cfg.RelayURL, core.RouterFunc(func(env domain.Envelope) {
		orch.Inbound(env)
	}), cfg.PingPeriod)

	orch = app.NewOrchestrator(ctx, app.OrchestratorConfig{
		LocalID:       localID,
		Provider:      acquirer,
		Sender:        relay,
		NewLink:       newLink,
		Events:        logEvents{},
		Constraints:   cfg.Media,
		InitiateDelay: cfg.InitiateDelay,
		KeepMediaWarm: cfg.KeepMediaWarm,
	})

	if err := relay.Dial(ctx); err != nil {
		log.Fatal().Err(err).Str("url", cfg.RelayURL).Msg("relay dial")
	}
	defer relay.Close()

	r := router.SetupRouter(cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("peer_id", string(localID)).Msg("peercall started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	orch.PeerGone()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Exited gracefully")
}

// logEvents projects engine events into the log; a UI would subscribe
// here instead.
type logEvents struct{}

func (logEvents) ConnectionStateChanged(s core.Status) {
	log.Info().Str("module", "events").Str("status", string(s)).Msg("connection state")
}

func (logEvents) RemoteMediaAvailable(b *media.Bundle) {
	log.Info().Str("module", "events").Msg("remote media available")
}

func (logEvents) MediaError(kind domain.MediaErrorKind, message string) {
	log.Error().Str("module", "events").Str("kind", string(kind)).Msg(message)
}
