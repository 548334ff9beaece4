package service

import (
	kitchensvc "order-platform/internal/microservices/kitchen/service"
)

type Service struct {
	OrderService   OrderServiceInterface
	KitchenService kitchensvc.KitchenServiceInterface
}

func New(d Deps) *Service {
	return &Service{
		OrderService:   NewOrderService(d),
		KitchenService: d.Kitchen,
	}
}
