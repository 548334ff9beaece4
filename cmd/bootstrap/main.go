package main

import (
	"context"
	"flag"
	"log"
	"time"

	"order-platform/internal/config"
	"order-platform/internal/connections/database"
	"order-platform/internal/connections/rabbitmq"
	"order-platform/internal/connections/redis"
)

// bootstrap checks connectivity, applies the schema and declares the broker
// topology, then exits.
func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.yaml", "path to YAML config")
	flag.Parse()

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// DB connect
	dbPool, err := database.ConnectDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer dbPool.Close()
	if err := database.Migrate(ctx, dbPool); err != nil {
		log.Fatalf("db migrate error: %v", err)
	}
	log.Printf("Postgres ready: %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	// Rabbit connect
	rmq, err := rabbitmq.Dial(cfg.RabbitMQ)
	if err != nil {
		log.Fatalf("rabbitmq connect error: %v", err)
	}
	defer rmq.Close()
	if err := rmq.Ping(); err != nil {
		log.Fatalf("rabbitmq ping error: %v", err)
	}
	if err := rabbitmq.DeclareTopology(rmq.Channel()); err != nil {
		log.Fatalf("rabbitmq topology error: %v", err)
	}
	log.Printf("RabbitMQ ready: %s:%d vhost=%q", cfg.RabbitMQ.Host, cfg.RabbitMQ.Port, cfg.RabbitMQ.VHost)

	rdb, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		log.Fatalf("redis connect error: %v", err)
	}
	defer rdb.Close()
	log.Printf("Redis ready: %s", cfg.Redis.Addr)
}
