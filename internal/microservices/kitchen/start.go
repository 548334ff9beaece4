package kitchen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"order-platform/internal/common/logger"
	"order-platform/internal/common/metrics"
	"order-platform/internal/common/postcommit"
	"order-platform/internal/config"
	"order-platform/internal/connections/rabbitmq"
	"order-platform/internal/events"
	"order-platform/internal/microservices/kitchen/repository"
	"order-platform/internal/microservices/kitchen/service"
	orderrepo "order-platform/internal/microservices/order/repository"
	"order-platform/internal/waitingqueue"
)

// NewService wires the admission workflow over Postgres and RabbitMQ.
func NewService(db *pgxpool.Pool, rmqClient *rabbitmq.Client, queue waitingqueue.Queue, m *metrics.Metrics, log *logger.Logger, cfg config.KitchenConfig) (*service.KitchenService, *repository.Repository) {
	repo := repository.New(db)
	svc := service.NewKitchenService(service.Deps{
		Capacity: repo.CapacityRepo,
		Workers:  repo.WorkerRepo,
		Orders:   orderrepo.NewOrderRepository(db),
		Queue:    queue,
		Bus:      events.NewRabbitBus(rmqClient),
		Hooks:    postcommit.NewRunner(log, 3, 200*time.Millisecond),
		Metrics:  m,
		Log:      log,
	}, service.Options{
		DefaultMaxCooking: cfg.DefaultMaxCooking,
		DrainBatch:        cfg.DrainBatch,
		DrainWait:         cfg.DrainWait,
		DrainRounds:       cfg.DrainRounds,
	})
	return svc, repo
}

// Run is the kitchen-allocator mode: it blocks until ctx is done.
func Run(ctx context.Context, db *pgxpool.Pool, rmqClient *rabbitmq.Client, m *metrics.Metrics, log *logger.Logger, cfg config.KitchenConfig, workerName string) error {
	queue := waitingqueue.NewRabbit(rmqClient, log)
	defer queue.Close()

	svc, repo := NewService(db, rmqClient, queue, m, log, cfg)
	allocator := service.NewAllocator(svc, repo.WorkerRepo, rmqClient, log, workerName, cfg.Prefetch, cfg.Heartbeat)
	return allocator.Run(ctx)
}
