package notificator

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"order-platform/internal/common/auth"
	"order-platform/internal/common/httpx"
	"order-platform/internal/common/logger"
	"order-platform/internal/common/metrics"
	"order-platform/internal/config"
	"order-platform/internal/connections/rabbitmq"
	"order-platform/internal/microservices/notificator/handlers"
	"order-platform/internal/microservices/notificator/service"
	"order-platform/internal/microservices/tracker"
)

// Run serves /ws and the timeline API and consumes notifications.q until ctx
// is done.
func Run(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, rmqClient *rabbitmq.Client, rdb *goredis.Client, m *metrics.Metrics, log *logger.Logger) error {
	v := auth.NewVerifier(cfg.Auth.JWTSecret)
	srv := httpx.New(cfg.HTTP.Port, log)
	srv.MountMetrics(m.Registry)

	trackerSvc := tracker.Start(srv.App, v, db)
	instance, _ := os.Hostname()
	hub := service.NewHub(service.NewRedisRegistry(rdb), m.LiveConnections, instance, log)
	svc := service.New(rmqClient, trackerSvc, hub, log, cfg.Kitchen.Prefetch)
	handlers.NewWSHandler(hub).Routes(srv.App, v)

	httpErr := make(chan error, 1)
	go func() { httpErr <- srv.Run(ctx) }()

	log.Info("service_started", map[string]any{"service": "notification-subscriber", "port": cfg.HTTP.Port})
	if err := svc.NotificatorService.Notify(ctx); err != nil {
		return err
	}
	return <-httpErr
}
