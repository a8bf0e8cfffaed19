package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mfalan/stock-ledger/internal/adapter/handler"
	"github.com/mfalan/stock-ledger/internal/adapter/messaging"
	"github.com/mfalan/stock-ledger/internal/adapter/storage"
	"github.com/mfalan/stock-ledger/internal/config"
	"github.com/mfalan/stock-ledger/internal/core/service"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	_ = godotenv.Load()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	must(err, "open mysql")
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	must(db.PingContext(ctx), "ping mysql")

	store := storage.NewMySQLAdapter(db)
	must(store.Migrate(ctx), "migrate")
	log.Info().Msg("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
	must(rdb.Ping(ctx).Err(), "ping redis")
	cache := storage.NewRedisAdapter(rdb)
	log.Info().Msg("connected to redis")

	// RabbitMQ
	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.MovementQueue)
	must(err, "connect rabbitmq")
	log.Info().Str("queue", cfg.MovementQueue).Msg("connected to rabbitmq")

	registry, err := storage.NewCachedRegistry(store, cfg.BOMCacheSize)
	must(err, "init BOM cache")

	movementService := service.NewMovementService(store, cache, publisher)
	kitService := service.NewKitService(registry, store, movementService, cache)
	queryService := service.NewQueryService(store, store, cache)
	catalogService := service.NewCatalogService(store, registry)

	mux := http.NewServeMux()
	httpHandler := handler.NewHTTPHandler(movementService, kitService, queryService, catalogService)
	httpHandler.Register(mux)

	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: mux,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Warn().Msg("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("HTTP server stopped")

	publisher.Close()
	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}

func must(err error, msg string) {
	if err != nil {
		log.Fatal().Err(err).Msg(msg)
	}
}
