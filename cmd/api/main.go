package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/karen-os/backend/internal/config"
	"github.com/zhouzirui/karen-os/backend/internal/handler"
	"github.com/zhouzirui/karen-os/backend/internal/handler/realtime"
	"github.com/zhouzirui/karen-os/backend/internal/logging"
	"github.com/zhouzirui/karen-os/backend/internal/model/persona"
	"github.com/zhouzirui/karen-os/backend/internal/model/settings"
	"github.com/zhouzirui/karen-os/backend/internal/render/avatar"
	"github.com/zhouzirui/karen-os/backend/internal/service/ai"
	"github.com/zhouzirui/karen-os/backend/internal/service/chat"
	"github.com/zhouzirui/karen-os/backend/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fallback := logging.New(config.LogConfig{})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logging.New(cfg.Log)
	if envErr != nil {
		log.Debug().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	personaStore := persona.NewMemoryStore(persona.Seed())
	activePersona, ok := personaStore.FindByID(cfg.Session.PersonaID)
	if !ok {
		log.Fatal().Str("persona", cfg.Session.PersonaID).Msg("persona not found")
	}

	initial := settings.Defaults()
	if cfg.Session.SettingsFile != "" {
		initial, err = settings.LoadFile(cfg.Session.SettingsFile)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load settings file")
		}
		log.Info().Str("file", cfg.Session.SettingsFile).Msg("settings loaded")
	}

	generator, provider, err := ai.NewGenerator(ctx, cfg.AI)
	if err != nil {
		log.Warn().Err(err).Msg("failed to initialize generation service, replies will use the fallback line")
		generator = ai.Unavailable{}
	} else if provider == "" {
		log.Warn().Msg("no GEMINI_API_KEY or Ark credentials configured, replies will use the fallback line")
	} else {
		log.Info().Str("provider", provider).Msg("generation service initialized")
	}

	hub := realtime.NewHub(log, cfg.Server.AllowedOrigins)
	avatarLoop := avatar.NewLoop(hub, avatar.DefaultGeometry(cfg.Session.AvatarSampleStep), cfg.Session.AvatarFPS, log)

	transcript := chat.NewService(activePersona.ID)
	controller := session.New(transcript, generator, activePersona, hub, hub, session.Options{
		Language:   cfg.Session.Language,
		MaxPending: cfg.Session.MaxPending,
		Timeout:    cfg.AI.Timeout,
		Settings:   initial,
		Avatar:     avatarLoop,
	}, log)
	hub.Attach(controller)

	router := handler.NewRouter(handler.Deps{
		Personas:       personaStore,
		ActivePersona:  activePersona.ID,
		Session:        controller,
		Transcript:     transcript,
		Hub:            hub,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Logger:         log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ignoreCanceled(controller.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(hub.Run(gctx)) })
	g.Go(func() error { return ignoreCanceled(avatarLoop.Run(gctx)) })
	g.Go(func() error { return startServer(gctx, log, cfg.Server, router) })

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("shutdown complete")
}

func startServer(ctx context.Context, log zerolog.Logger, serverCfg config.ServerConfig, router http.Handler) error {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", addr).Msg("Karen OS backend listening")
	return runServer(ctx, srv)
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
