package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"order-platform/internal/common/logger"
	"order-platform/internal/common/metrics"
	"order-platform/internal/config"
	"order-platform/internal/connections/database"
	"order-platform/internal/connections/rabbitmq"
	"order-platform/internal/connections/redis"
	"order-platform/internal/microservices/kitchen"
	"order-platform/internal/microservices/notificator"
	"order-platform/internal/microservices/order"
)

func main() {
	mode := flag.String("mode", "", "order-service | kitchen-allocator | notification-subscriber")
	cfgPath := flag.String("config", "", "path to YAML config (default: config.yaml or deploy/config.example.yaml)")
	port := flag.Int("port", 0, "http port override for order-service and notification-subscriber")
	workerName := flag.String("worker-name", "", "kitchen-allocator: unique worker name")
	flag.Parse()

	lg := logger.New(*mode)
	defer lg.Sync()

	if *cfgPath == "" {
		p, err := config.FindConfig()
		if err != nil {
			fmt.Fprintln(os.Stderr, "no config file found: pass --config")
			os.Exit(2)
		}
		*cfgPath = p
	}
	cfg, err := config.LoadConfig(*cfgPath)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": *cfgPath})
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "order-service", "kitchen-allocator", "notification-subscriber":
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: order-service | kitchen-allocator | notification-subscriber")
		os.Exit(2)
	}
	if *mode == "kitchen-allocator" && *workerName == "" {
		fmt.Fprintln(os.Stderr, "--worker-name is required for kitchen-allocator")
		os.Exit(2)
	}
	if *mode != "kitchen-allocator" && cfg.Auth.JWTSecret == "" {
		fmt.Fprintln(os.Stderr, "auth.jwt_secret (or JWT_SECRET) is required for HTTP modes")
		os.Exit(2)
	}

	db, err := database.ConnectDB(ctx, cfg.Database)
	if err != nil {
		lg.Error("db_connection_failed", err, nil)
		os.Exit(1)
	}
	defer db.Close()
	lg.Info("db_connected", map[string]any{"host": cfg.Database.Host, "database": cfg.Database.Database})

	rmq, err := rabbitmq.Dial(cfg.RabbitMQ)
	if err != nil {
		lg.Error("rabbitmq_connection_failed", err, nil)
		os.Exit(1)
	}
	defer rmq.Close()
	if err := rabbitmq.DeclareTopology(rmq.Channel()); err != nil {
		lg.Error("rabbitmq_topology_failed", err, nil)
		os.Exit(1)
	}
	lg.Info("rabbitmq_connected", map[string]any{"host": cfg.RabbitMQ.Host, "vhost": cfg.RabbitMQ.VHost})

	m := metrics.New()

	switch *mode {
	case "order-service":
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			lg.Error("redis_connection_failed", err, nil)
			os.Exit(1)
		}
		defer rdb.Close()
		err = order.Run(ctx, cfg, db, rmq, rdb, m, lg)
		exit(lg, err)
	case "kitchen-allocator":
		lg.Info("service_started", map[string]any{"service": "kitchen-allocator", "worker": *workerName})
		exit(lg, kitchen.Run(ctx, db, rmq, m, lg, cfg.Kitchen, *workerName))
	case "notification-subscriber":
		rdb, err := redis.Connect(ctx, cfg.Redis)
		if err != nil {
			lg.Error("redis_connection_failed", err, nil)
			os.Exit(1)
		}
		defer rdb.Close()
		exit(lg, notificator.Run(ctx, cfg, db, rmq, rdb, m, lg))
	}
}

func exit(lg *logger.Logger, err error) {
	if err != nil {
		lg.Error("fatal", err, nil)
		lg.Sync()
		os.Exit(1)
	}
	lg.Info("service_stopped", nil)
}
