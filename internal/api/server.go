// Package api serves the title catalog over HTTP.
package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/sync/singleflight"

	"github.com/emunx/nxmeta/internal/database"
	"github.com/emunx/nxmeta/internal/scanner"
)

// Catalog is the read side of the title database.
type Catalog interface {
	ListTitles(ctx context.Context) ([]*database.Title, error)
	GetTitle(ctx context.Context, titleID string) (*database.Title, error)
	ListFailures(ctx context.Context) ([]*database.ScanFailure, error)
	LatestScanRun(ctx context.Context) (*database.ScanRun, error)
}

// Scanner runs a library scan.
type Scanner interface {
	Scan(ctx context.Context) (*scanner.Summary, error)
	Progress() scanner.ProgressSnapshot
}

// Server holds the HTTP handlers.
type Server struct {
	ctx     context.Context
	catalog Catalog
	scanner Scanner
	scans   singleflight.Group
	ready   atomic.Bool
}

// NewServer creates a server. Scans triggered over HTTP run with ctx so they
// outlive the request that started them.
func NewServer(ctx context.Context, catalog Catalog, s Scanner) *Server {
	return &Server{ctx: ctx, catalog: catalog, scanner: s}
}

// SetReady marks whether the server accepts API calls.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

// IsReady reports whether the server accepts API calls.
func (s *Server) IsReady() bool {
	return s.ready.Load()
}

// App builds the fiber application.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "nxmeta",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			slog.ErrorContext(c.Context(), "Unhandled API error", "path", c.Path(), "error", err)
			return RespondInternalError(c, "Internal server error", err.Error())
		},
	})
	s.RegisterRoutes(app)
	return app
}

// RegisterRoutes mounts the API under /api.
func (s *Server) RegisterRoutes(app *fiber.App) {
	api := app.Group("/api", s.requireReady)

	api.Get("/titles", s.handleListTitles)
	api.Get("/titles/:id", s.handleGetTitle)
	api.Get("/titles/:id/icon", s.handleGetTitleIcon)
	api.Get("/failures", s.handleListFailures)
	api.Get("/system/status", s.handleGetSystemStatus)
	api.Post("/scan", s.handleStartScan)
	api.Get("/scan/progress", s.handleGetScanProgress)
}

func (s *Server) requireReady(c *fiber.Ctx) error {
	if !s.IsReady() {
		return RespondServiceUnavailable(c, "Service is initializing", "Please wait")
	}
	return c.Next()
}
