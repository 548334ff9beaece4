package service

import (
	"order-platform/internal/common/logger"
	"order-platform/internal/connections/rabbitmq"
	trackersvc "order-platform/internal/microservices/tracker/service"
)

type Service struct {
	NotificatorService *NotificatorService
	Hub                *Hub
}

func New(client *rabbitmq.Client, tracker trackersvc.TrackerServiceInterface, hub *Hub, log *logger.Logger, prefetch int) *Service {
	return &Service{
		NotificatorService: NewNotificatorService(client, tracker, hub, log, prefetch),
		Hub:                hub,
	}
}
