package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"schemacanvas/server/internal/auth"
	"schemacanvas/server/internal/config"
	"schemacanvas/server/internal/httpapi"
	"schemacanvas/server/internal/logger"
	"schemacanvas/server/internal/realtime"
	"schemacanvas/server/internal/store"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("SCHEMACANVAS_CONFIG"))
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.Redis.URL).Msg("invalid redis url")
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("could not connect to redis")
	}
	log.Info().Str("addr", opts.Addr).Msg("connected to redis")

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid database config")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("could not connect to postgres")
	}
	log.Info().Msg("connected to postgres")

	registry := realtime.NewRegistry(log)
	cursors := realtime.NewCursorCache()
	publisher := realtime.NewPublisher(rdb, cfg.Redis.ChannelPrefix, log)
	schemas := store.NewSchemaStore(pool)

	dispatcher := realtime.NewDispatcher(registry, log,
		realtime.NewCursorHandler(registry, cursors, publisher, log),
		realtime.NewJoinHandler(registry, publisher),
		realtime.NewLeaveHandler(registry, cursors, publisher),
		store.NewSchemaUpdateHandler(schemas, publisher, log),
	)

	relay := realtime.NewRelay(rdb, cfg.Redis.ChannelPrefix, dispatcher, log)
	go relay.Run(ctx)
	defer relay.Close()

	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, log)
	identify := func(r *http.Request) realtime.Identity {
		id := verifier.FromRequest(r)
		return realtime.Identity{UserID: id.UserID, Name: id.Name}
	}

	wsHandler := realtime.NewWSHandler(
		registry, cursors, dispatcher, publisher,
		identify, cfg.WebSocket.MaxMessageBytes, log,
	)

	router := httpapi.NewRouter(wsHandler, registry, map[string]httpapi.HealthCheck{
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		"postgres": schemas.Ping,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		relay.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("http shutdown")
		}
	}()

	log.Info().Str("addr", cfg.Server.Addr).Msg("schemacanvas realtime server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server failed")
	}
}
