// cmd/campaign-service/main.go
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
	"lumen/internal/pkg/mq"
	"lumen/internal/pkg/redis"
	"lumen/internal/service/campaign/application"
	"lumen/internal/service/campaign/domain"
	"lumen/internal/service/campaign/infrastructure"
	"lumen/internal/service/campaign/infrastructure/adapter"
	"lumen/internal/service/campaign/infrastructure/rule"
	"lumen/internal/service/campaign/interfaces"
)

const serviceName = "campaign-service"

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

	deduper, err := adapter.NewDedupRedisAdapter(redisClient, 24*time.Hour)
	if err != nil {
		log.Fatalf("failed to create event deduper: %v", err)
	}

	exprEngine, err := rule.NewCELEngine()
	if err != nil {
		log.Fatalf("failed to create expression engine: %v", err)
	}
	selector := domain.NewSelector(domain.NewEvaluator(exprEngine))

	httpClient := httpclient.NewClient(tracer)
	pointsAdapter := adapter.NewPointsHTTPAdapter(httpClient, cfg.Services.LoyaltyBaseURL)
	referralAdapter := adapter.NewReferralHTTPAdapter(httpClient, cfg.Services.ReferralBaseURL)

	allocationWriter := mq.NewWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.AllocationTopic)
	notifier := infrastructure.NewAllocationProducerAdapter(allocationWriter)

	allocRepo := infrastructure.NewGormAllocationRepository(db)
	guardrails := infrastructure.NewGormGuardrailTracker(db)
	allocator := application.NewAllocator(allocRepo, guardrails, pointsAdapter, notifier, tracer)

	logStream := interfaces.NewTriggerLogStream()
	svc := application.NewCampaignService(
		application.Config{
			FireAllMatches:    cfg.Campaign.FireAllMatches,
			ProcessingTimeout: time.Duration(cfg.Campaign.ProcessingTimeout) * time.Second,
		},
		infrastructure.NewGormRuleRepository(db),
		infrastructure.NewGormTenantScopeRepository(db),
		infrastructure.NewGormTriggerLogRepository(db),
		deduper,
		selector,
		allocator,
		pointsAdapter,
		referralAdapter,
		logStream,
		tracer,
	)

	reader := mq.NewReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.ConsumerGroup, cfg.Infra.Kafka.OrderEventTopic)
	consumer := infrastructure.NewOrderEventConsumer(reader, svc,
		cfg.Infra.Kafka.ConsumerWorkers, cfg.Infra.Kafka.MaxRetryAttempts)
	consumer.Start(context.Background())

	handler := interfaces.NewCampaignHandler(svc, logStream)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        8081,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			handler.RegisterRoutes(appCtx.Mux)
		},
		OnShutdown: func(ctx context.Context) {
			consumer.Stop()
			logStream.Close()
			if err := allocationWriter.Close(); err != nil {
				log.Printf("Error closing kafka writer: %v", err)
			}
			if err := redisClient.Close(); err != nil {
				log.Printf("Error closing redis client: %v", err)
			}
		},
	})
}
