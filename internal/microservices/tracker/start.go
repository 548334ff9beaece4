package tracker

import (
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"

	"order-platform/internal/common/auth"
	orderrepo "order-platform/internal/microservices/order/repository"
	"order-platform/internal/microservices/tracker/handler"
	"order-platform/internal/microservices/tracker/repository"
	"order-platform/internal/microservices/tracker/service"
)

// Start wires the timeline store on db and mounts its routes on r. The
// returned service is what the notification consumer appends through.
func Start(r fiber.Router, v *auth.Verifier, db *pgxpool.Pool) *service.TrackerService {
	repo := repository.NewTrackerRepo(db)
	svc := service.NewTrackerService(repo, orderrepo.NewOrderRepository(db))
	handler.New(svc).Routes(r, v)
	return svc
}
