// Package web serves the coaching dashboard and its HTTP API.
package web

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-coach/pkg/coach"
	"github.com/teslashibe/go-coach/pkg/device"
	"github.com/teslashibe/go-coach/pkg/hub"
	"github.com/teslashibe/go-coach/pkg/state"
)

//go:embed static
var staticFiles embed.FS

// Coach is the session control surface the server drives.
type Coach interface {
	Start(ctx context.Context, opts state.Options) (string, error)
	Stop() error
	Active() bool
	Store() *state.Store
	Catalogue() coach.Catalogue
}

// Config holds server settings.
type Config struct {
	// Address to listen on, e.g. ":8080".
	Address string

	// Gatherer is served at /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer

	// Devices, when set, accepts browser audio devices on /ws/device.
	Devices *device.Hub

	Logger *slog.Logger
}

// Server is the dashboard web server.
type Server struct {
	app    *fiber.App
	cfg    Config
	coach  Coach
	state  *hub.Hub
	logger *slog.Logger
}

// NewServer creates the fiber app and registers every route.
func NewServer(cfg Config, c Coach) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		cfg:    cfg,
		coach:  c,
		state:  hub.New("state", cfg.Logger),
		logger: cfg.Logger,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Interview Coach",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	// CORS for local development
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/options", s.handleOptions)
	api.Get("/state", s.handleState)
	api.Get("/conversation", s.handleConversation)
	api.Post("/session", s.handleStartSession)
	api.Delete("/session", s.handleStopSession)

	if cfg.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	// WebSocket upgrade middleware
	app.Use("/ws/state", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.state.Handler()))

	if cfg.Devices != nil {
		cfg.Devices.RegisterRoutes(app)
		cfg.Devices.RegisterAPIRoutes(api)
	}

	// Dashboard page
	sub, err := fs.Sub(staticFiles, "static")
	if err == nil {
		app.Use("/", filesystem.New(filesystem.Config{
			Root:  http.FS(sub),
			Index: "index.html",
		}))
	}

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the state hub and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	go s.state.Run(ctx)
	go s.state.Follow(ctx, s.coach.Store())

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("web dashboard listening", "address", s.cfg.Address)
		errc <- s.app.Listen(s.cfg.Address)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return s.app.Shutdown()
	}
}
