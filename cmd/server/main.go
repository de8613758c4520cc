package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/quillhq/quill/backend/internal/api"
	"github.com/quillhq/quill/backend/internal/auth"
	"github.com/quillhq/quill/backend/internal/config"
	"github.com/quillhq/quill/backend/internal/gateway"
	"github.com/quillhq/quill/backend/internal/logging"
	"github.com/quillhq/quill/backend/internal/room"
	"github.com/quillhq/quill/backend/internal/store"
)

const devToken = "dev"

func main() {
	cfg, err := config.FromEnv()
	log := logging.New(os.Stdout, cfg.LogLevel, cfg.Dev)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	st, err := store.OpenSQL(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	defer st.Close()

	var authorizer auth.Authorizer
	if cfg.Dev {
		// Single shared token, any room. Local use only.
		static := auth.NewStatic()
		static.AddToken(devToken, "dev")
		static.AddMember("default", "dev")
		authorizer = static
		log.Warn().Msg("dev mode: static authorizer enabled")
	} else {
		sqlAuth, err := auth.NewSQL(st.DB())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize authorizer")
		}
		authorizer = sqlAuth
	}

	registry := room.NewRegistry(st, cfg.SaveDebounce, log)

	evictorCfg := room.DefaultEvictorConfig()
	evictorCfg.IdleTTL = cfg.RoomIdleTTL
	evictor := room.NewEvictor(registry, evictorCfg, log)
	evictor.Start()
	defer evictor.Stop()

	gw := gateway.New(registry, authorizer, log)
	apiHandler := api.New(registry, st, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.ServeWS)
	mux.HandleFunc("/health", apiHandler.HealthHandler)
	mux.HandleFunc("/api/stats", apiHandler.StatsHandler)

	server := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan

		log.Info().Str("signal", sig.String()).Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		registry.FlushAll(shutdownCtx)
		server.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("addr", cfg.Addr).
		Str("db", cfg.DBPath).
		Dur("save_debounce", cfg.SaveDebounce).
		Dur("room_idle_ttl", cfg.RoomIdleTTL).
		Msg("quill hub starting")

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("listen failed")
	}
}
