package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/emunx/nxmeta/internal/database"
	"github.com/emunx/nxmeta/internal/titleid"
)

// handleListTitles handles GET /api/titles
func (s *Server) handleListTitles(c *fiber.Ctx) error {
	titles, err := s.catalog.ListTitles(c.Context())
	if err != nil {
		return RespondInternalError(c, "Failed to list titles", err.Error())
	}
	if titles == nil {
		titles = []*database.Title{}
	}
	return RespondSuccess(c, titles)
}

func (s *Server) lookupTitle(c *fiber.Ctx) (*database.Title, error) {
	id, err := titleid.ParseHex(c.Params("id"))
	if err != nil {
		return nil, RespondBadRequest(c, "Invalid title id", err.Error())
	}

	title, err := s.catalog.GetTitle(c.Context(), id.Hex())
	if err != nil {
		return nil, RespondInternalError(c, "Failed to get title", err.Error())
	}
	if title == nil {
		return nil, RespondNotFound(c, "Title", id.Hex())
	}
	return title, nil
}

// handleGetTitle handles GET /api/titles/:id
func (s *Server) handleGetTitle(c *fiber.Ctx) error {
	title, err := s.lookupTitle(c)
	if title == nil {
		return err
	}
	return RespondSuccess(c, title)
}

// handleGetTitleIcon handles GET /api/titles/:id/icon
func (s *Server) handleGetTitleIcon(c *fiber.Ctx) error {
	title, err := s.lookupTitle(c)
	if title == nil {
		return err
	}
	if len(title.Icon) == 0 {
		return RespondNotFound(c, "Icon", title.TitleID)
	}

	c.Set(fiber.HeaderContentType, "image/jpeg")
	c.Set(fiber.HeaderCacheControl, "public, max-age=3600")
	return c.Send(title.Icon)
}

// handleListFailures handles GET /api/failures
func (s *Server) handleListFailures(c *fiber.Ctx) error {
	failures, err := s.catalog.ListFailures(c.Context())
	if err != nil {
		return RespondInternalError(c, "Failed to list failures", err.Error())
	}
	if failures == nil {
		failures = []*database.ScanFailure{}
	}
	return RespondSuccess(c, failures)
}

// SystemStatusResponse reports the latest scan.
type SystemStatusResponse struct {
	Ready    bool              `json:"ready"`
	LastScan *database.ScanRun `json:"last_scan,omitempty"`
}

// handleGetSystemStatus handles GET /api/system/status
func (s *Server) handleGetSystemStatus(c *fiber.Ctx) error {
	run, err := s.catalog.LatestScanRun(c.Context())
	if err != nil {
		slog.WarnContext(c.Context(), "Failed to read latest scan run", "error", err)
	}
	return RespondSuccess(c, SystemStatusResponse{Ready: s.IsReady(), LastScan: run})
}
