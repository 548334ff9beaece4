package order

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"order-platform/internal/common/auth"
	"order-platform/internal/common/httpx"
	"order-platform/internal/common/logger"
	"order-platform/internal/common/metrics"
	"order-platform/internal/common/postcommit"
	"order-platform/internal/config"
	"order-platform/internal/connections/rabbitmq"
	"order-platform/internal/events"
	"order-platform/internal/microservices/kitchen"
	kitchenhandlers "order-platform/internal/microservices/kitchen/handlers"
	"order-platform/internal/microservices/order/handlers"
	"order-platform/internal/microservices/order/repository"
	"order-platform/internal/microservices/order/service"
	"order-platform/internal/waitingqueue"
)

// Run serves the order API until ctx is done.
func Run(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, rmqClient *rabbitmq.Client, rdb *goredis.Client, m *metrics.Metrics, log *logger.Logger) error {
	queue := waitingqueue.NewRabbit(rmqClient, log)
	defer queue.Close()

	ksvc, krepo := kitchen.NewService(db, rmqClient, queue, m, log, cfg.Kitchen)
	repo := repository.New(db, rdb)
	svc := service.New(service.Deps{
		Orders:      repo.OrderRepo,
		Idempotency: repo.Idempotency,
		Workers:     krepo.WorkerRepo,
		Kitchen:     ksvc,
		Bus:         events.NewRabbitBus(rmqClient),
		Hooks:       postcommit.NewRunner(log, 3, 200*time.Millisecond),
		Metrics:     m,
		Log:         log,
	})

	v := auth.NewVerifier(cfg.Auth.JWTSecret)
	srv := httpx.New(cfg.HTTP.Port, log)
	srv.MountMetrics(m.Registry)
	srv.App.Get("/health", func(c *fiber.Ctx) error {
		if err := db.Ping(c.UserContext()); err != nil {
			return httpx.WriteProblem(c, fiber.StatusServiceUnavailable, "StoreUnavailable", "database unreachable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})
	handlers.New(svc).Routes(srv.App, v)
	kitchenhandlers.NewKitchenHandler(ksvc).Routes(srv.App, v)

	log.Info("service_started", map[string]any{"service": "order-service", "port": cfg.HTTP.Port})
	return srv.Run(ctx)
}
