package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/infinitelocus/canteen/internal/adapter/handler"
	"github.com/infinitelocus/canteen/internal/adapter/storage"
	"github.com/infinitelocus/canteen/internal/config"
	"github.com/infinitelocus/canteen/internal/core/service"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "canteen").Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open mysql")
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping mysql")
	}
	log.Info().Msg("connected to mysql")

	// Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect redis")
	}
	log.Info().Msg("connected to redis")

	// Adapters
	store := storage.NewMySQLStore(db)
	cache := storage.NewRedisAdapter(rdb)

	if err := store.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	// Core services
	orders := service.NewOrderService(store, cache, log, cfg.Orders.TTL.Std())
	sweeper := service.NewSweeper(store, cache, orders, cfg.Orders.SweepInterval.Std(), log)

	go sweeper.Run(ctx)

	// HTTP server
	httpHandler := handler.NewHTTPHandler(orders, store, cache, log)
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: httpHandler.Routes(),
	}

	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			log.Error().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
	log.Info().Msg("http server stopped")

	rdb.Close()
	db.Close()
	log.Info().Msg("connections closed")
}
