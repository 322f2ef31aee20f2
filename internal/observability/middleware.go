package observability

import (
	"path"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RequestLogger logs one line per request. Codec and registry routes carry
// the schema, type and operation they addressed.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		event := logger.Info()
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("error", c.Errors.Last().Error())
		}

		msg := "http_request"
		if name := c.Param("name"); name != "" {
			msg = "schema_request"
			event = event.Str("schema", name)
			if v := c.Query("version"); v != "" {
				event = event.Str("version", v)
			}
		}
		if typ := c.Param("type"); typ != "" {
			msg = "codec_request"
			event = event.
				Str("type", typ).
				Str("op", path.Base(route)).
				Int64("request_bytes", c.Request.ContentLength)
			if strict := c.Query("strict"); strict != "" {
				event = event.Str("strict", strict)
			}
		}

		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int("response_bytes", c.Writer.Size()).
			Msg(msg)
	}
}

// RequestMetricsMiddleware labels by route template so schema names do not
// grow the label set.
func RequestMetricsMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RecordHTTPRequest(service, c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
