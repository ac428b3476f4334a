// cmd/referral-service/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"lumen/internal/pkg/bootstrap"
	"lumen/internal/pkg/httpclient"
	"lumen/internal/pkg/logger"
	"lumen/internal/pkg/zookeeper"
	"lumen/internal/service/referral/application"
	"lumen/internal/service/referral/infrastructure"
	"lumen/internal/service/referral/infrastructure/adapter"
	"lumen/internal/service/referral/interfaces"
)

const serviceName = "referral-service"

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

	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 5*time.Second)
	if err != nil {
		log.Fatalf("failed to connect to zookeeper: %v", err)
	}

	httpClient := httpclient.NewClient(tracer)
	loyaltyAdapter := adapter.NewLoyaltyHTTPAdapter(httpClient, cfg.Services.LoyaltyBaseURL)

	svc := application.NewReferralService(
		application.Config{
			ValidityDays:   cfg.Referral.ValidityDays,
			ReferrerPoints: cfg.Referral.ReferrerPoints,
			RefereePoints:  cfg.Referral.RefereePoints,
		},
		infrastructure.NewGormReferralRepository(db),
		infrastructure.NewGormCodeRepository(db),
		infrastructure.NewGormShopRepository(db),
		loyaltyAdapter,
		tracer,
	)

	sweeper := infrastructure.NewExpirySweeper(svc, zkConn,
		time.Duration(cfg.Referral.SweepInterval)*time.Second)
	sweeper.Start(context.Background())

	handler := interfaces.NewReferralHandler(svc)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8082,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			sweeper.Stop()
			zkConn.Close()
		},
	})
}
