// cmd/loyalty-service/main.go
package main

import (
	"context"
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"lumen/internal/pkg/bootstrap"
	"lumen/internal/pkg/logger"
	"lumen/internal/pkg/redis"
	"lumen/internal/service/loyalty/application"
	"lumen/internal/service/loyalty/infrastructure"
	"lumen/internal/service/loyalty/infrastructure/adapter"
	"lumen/internal/service/loyalty/interfaces"
)

const serviceName = "loyalty-service"

// main 是组装根：创建并组装所有依赖项，然后启动应用
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()
	logger.Init(serviceName, zerolog.InfoLevel)
	tracer := otel.Tracer(serviceName)

	db, err := infrastructure.NewDB(infrastructure.MySQLConfig{
		Host:     cfg.Infra.MySQL.Host,
		Port:     cfg.Infra.MySQL.Port,
		User:     cfg.Infra.MySQL.User,
		Password: cfg.Infra.MySQL.Password,
		Database: cfg.Infra.MySQL.Database,
	})
	if err != nil {
		log.Fatalf("failed to connect to mysql: %v", err)
	}

	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addr, cfg.Infra.Redis.Password, cfg.Infra.Redis.DB)
	if err != nil {
		log.Fatalf("failed to connect to redis: %v", err)
	}

	svc := application.NewLoyaltyService(
		infrastructure.NewGormLedgerRepository(db),
		infrastructure.NewGormProgramRepository(db),
		adapter.NewBalanceCacheRedisAdapter(redisClient),
		tracer,
	)
	handler := interfaces.NewLoyaltyHandler(svc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8083,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		},
	})
}
