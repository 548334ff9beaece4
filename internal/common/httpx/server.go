package httpx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"order-platform/internal/common/apperr"
	"order-platform/internal/common/logger"
)

type Server struct {
	App  *fiber.App
	addr string
}

// New builds a fiber app whose error handler answers in the problem format.
func New(port int, log *logger.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           120 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return WriteProblem(c, fe.Code, "http_error", fe.Message)
			}
			log.Error("http_request_failed", err, map[string]any{"path": c.Path(), "method": c.Method()})
			return WriteError(c, err)
		},
	})
	return &Server{App: app, addr: fmt.Sprintf(":%d", port)}
}

// MountMetrics exposes the registry at /metrics.
func (s *Server) MountMetrics(reg *prometheus.Registry) {
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
}

func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.App.Listen(s.addr) }()
	select {
	case <-ctx.Done():
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.App.ShutdownWithContext(ctx2)
		return nil
	case err := <-errCh:
		return err
	}
}

// WriteError maps a typed error to its status and writes a problem body.
func WriteError(c *fiber.Ctx, err error) error {
	code := apperr.HTTPStatus(err)
	detail := err.Error()
	if code == fiber.StatusInternalServerError {
		detail = "internal error"
	}
	return WriteProblem(c, code, apperr.CodeOf(err), detail)
}

// WriteProblem пишет ошибку в упрощённом формате RFC7807
func WriteProblem(c *fiber.Ctx, code int, typ, detail string) error {
	return c.Status(code).JSON(fiber.Map{
		"type":   typ,
		"title":  utils.StatusMessage(code),
		"status": code,
		"detail": detail,
	})
}
