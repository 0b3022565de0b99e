package middleware

import (
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"debiasapi/internal/logger"
)

// Logger logs one structured line per request with request_id, method, path,
// status and latency in milliseconds.
func Logger(l *logger.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		l.Info("http_request",
			"request_id", RequestIDFromCtx(c),
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"latency", float64(time.Since(start).Microseconds())/1000,
		)
		return err
	}
}

// LoggerWithWriter is Logger writing JSON lines to w, timestamps in loc.
func LoggerWithWriter(w io.Writer, loc *time.Location) fiber.Handler {
	return Logger(logger.NewWithWriter(w, loc))
}
