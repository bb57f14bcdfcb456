// Package httpapi is the engine's HTTP surface (spec.md §6.1), built on
// labstack/echo/v4 the way the teacher's pkg/server wires its API group:
// one echo.Echo, CORS + request logging middleware, routes grouped under
// a versioned prefix.
package httpapi

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/forgewright/enginecore/pkg/capabilities"
	"github.com/forgewright/enginecore/pkg/dispatch"
	"github.com/forgewright/enginecore/pkg/enginerr"
	"github.com/forgewright/enginecore/pkg/scratchpad"
	"github.com/forgewright/enginecore/pkg/streamproxy"
)

// Server exposes the engine's chat and at-command endpoints (spec.md
// §6.1).
type Server struct {
	e          *echo.Echo
	scratchpad *scratchpad.Scratchpad
	dispatcher *dispatch.Dispatcher
	models     *capabilities.Registry
	proxy      *streamproxy.Proxy
	logger     *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// New constructs a Server wiring the scratchpad, dispatcher, capability
// registry and streaming proxy behind the four routes of spec.md §6.1.
func New(sp *scratchpad.Scratchpad, d *dispatch.Dispatcher, models *capabilities.Registry, proxy *streamproxy.Proxy, opts ...Option) *Server {
	e := echo.New()
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.HideBanner = true

	s := &Server{e: e, scratchpad: sp, dispatcher: d, models: models, proxy: proxy, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	group := e.Group("/v1")
	group.POST("/chat", s.postChat)
	group.POST("/code-completion", s.postCodeCompletion)
	group.POST("/at-command-execute", s.postAtCommandExecute)
	group.POST("/prepend-system-prompt-and-maybe-more-initial-messages", s.postPrependSystemPrompt)

	return s
}

// Start runs the HTTP server on addr, blocking until it returns (spec.md
// §6.4 CLI surface owns the listen lifecycle).
func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// Shutdown gracefully drains in-flight requests (spec.md §5 "A global
// shutdown flag drains background tasks; in-flight HTTP replies
// complete, new requests are rejected").
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

// writeError maps an enginerr.Kind to the HTTP status spec.md §7
// prescribes and writes a JSON error body.
func writeError(c echo.Context, err error) error {
	kind := enginerr.KindOf(err)
	return c.JSON(enginerr.HTTPStatus(kind), map[string]string{
		"error":  string(kind),
		"detail": err.Error(),
	})
}
