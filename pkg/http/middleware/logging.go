package middleware

import (
	"log"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestLogging writes one access-log line per request. Probe and
// scrape endpoints are skipped to keep the log readable.
func RequestLogging() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if path == "/healthz" || path == "/metrics" {
				return next(c)
			}

			start := time.Now()
			err := next(c)

			log.Printf("%s %s from %s status=%d took=%s",
				c.Request().Method,
				c.Request().RequestURI,
				c.RealIP(),
				c.Response().Status,
				time.Since(start),
			)
			return err
		}
	}
}
