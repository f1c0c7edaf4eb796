package server

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"consultancy-auth/backend/internal/server/middleware"
)

const (
	readTimeout  = 15 * time.Second
	writeTimeout = 15 * time.Second
	bodyLimit    = 1 << 20
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r fiber.Router)
}

// NewHTTPApp returns a fiber app with the kinded error handler, panic recovery, request
// logging and SessionContext derivation installed. logger may be nil.
func NewHTTPApp(logger *zap.Logger, routes ...Registrar) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               "consultancy-auth",
		ErrorHandler:          ErrorHandler(logger),
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		BodyLimit:             bodyLimit,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(requestLogger(logger))
	app.Use(middleware.WithSession())
	for _, r := range routes {
		r.Register(app)
	}
	return app
}

// requestLogger logs one line per request after the error handler has set the status.
func requestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		logger.Debug("http request",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	}
}
