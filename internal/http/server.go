package http

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jmehdipour/optin-gateway/internal/config"
	"github.com/jmehdipour/optin-gateway/internal/http/middleware"
	"github.com/jmehdipour/optin-gateway/internal/metrics"
	"github.com/jmehdipour/optin-gateway/internal/repository"
	"github.com/jmehdipour/optin-gateway/internal/reward"
	"github.com/jmehdipour/optin-gateway/internal/service/confirm"
	"github.com/jmehdipour/optin-gateway/internal/service/intake"
	"github.com/jmehdipour/optin-gateway/internal/token"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct{ e *echo.Echo }

func NewServer(
	cfg config.Config,
	mysqlDB, clickhouseDB *sqlx.DB,
	rds *redis.Client,
	producer intake.JobProducer,
	tokens *token.Codec,
	presigner reward.Presigner,
) *Server {
	// repos (MySQL)
	campaignsRepo := repository.NewCampaignsRepository(mysqlDB)
	outboxRepo := repository.NewOutboxRepository(mysqlDB)
	subscriptionsRepo := repository.NewSubscriptionsRepository(mysqlDB, outboxRepo)
	ownersRepo := repository.NewOwnersRepository(mysqlDB)

	// repos (ClickHouse)
	chConfirmationsRepo := repository.NewCHConfirmationsRepository(clickhouseDB)

	// services
	intakeSvc := intake.New(campaignsRepo, subscriptionsRepo, producer)
	confirmSvc := confirm.New(tokens, campaignsRepo, subscriptionsRepo, presigner, cfg.Kafka.EventsTopic)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.Use(echoMid.Recover(), echoMid.Logger())

	metrics.MustRegister(prometheus.DefaultRegisterer)

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	// health
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	// middlewares
	authMW := middleware.APIKeyMiddleware(ownersRepo)
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         time.Second,
		RetryAfterHint: true,
	})

	// public routes (rate limited by source IP)
	v1 := e.Group("/v1", rlMW)
	v1.POST("/campaigns/:campaign_id/subscriptions", subscribeHandler(intakeSvc))
	v1.GET("/confirm", confirmHandler(confirmSvc))

	// owner routes
	reports := e.Group("/v1/reports", authMW)
	reports.GET("/confirmations", listConfirmationsHandler(campaignsRepo, chConfirmationsRepo))

	return &Server{e: e}
}

func (s *Server) Start(addr string) error {
	log.Printf("http: listening on %s", addr)
	return s.e.Start(addr)
}
func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
