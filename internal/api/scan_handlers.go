package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/emunx/nxmeta/internal/parser"
	"github.com/emunx/nxmeta/internal/scanner"
)

// ScanResponse summarizes a finished scan.
type ScanResponse struct {
	RunID      string        `json:"run_id"`
	Scanned    int           `json:"scanned"`
	Failed     int           `json:"failed"`
	Pruned     int64         `json:"pruned"`
	DurationMs int64         `json:"duration_ms"`
	Failures   []ScanFailure `json:"failures"`
	Shared     bool          `json:"shared"`
}

// ScanFailure is one ROM that failed during the scan.
type ScanFailure struct {
	RomPath string `json:"rom_path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// RunScan scans the library on the server context. Callers that arrive while
// a scan is in progress share its result; shared reports whether this call
// joined an existing run.
func (s *Server) RunScan() (summary *scanner.Summary, shared bool, err error) {
	v, err, shared := s.scans.Do("scan", func() (interface{}, error) {
		return s.scanner.Scan(s.ctx)
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*scanner.Summary), shared, nil
}

// handleStartScan handles POST /api/scan. Concurrent requests join the scan
// already in progress.
func (s *Server) handleStartScan(c *fiber.Ctx) error {
	if s.scanner == nil {
		return RespondServiceUnavailable(c, "Scanning is not available", "")
	}

	summary, shared, err := s.RunScan()
	if err != nil {
		slog.ErrorContext(c.Context(), "Scan failed", "error", err)
		if code := parser.CodeOf(err); code != parser.CodeUnknown {
			return respondError(c, fiber.StatusUnprocessableEntity, code.String(), "Scan failed", err.Error())
		}
		return RespondInternalError(c, "Scan failed", err.Error())
	}

	resp := ScanResponse{
		RunID:      summary.RunID,
		Scanned:    summary.Scanned,
		Failed:     summary.Failed,
		Pruned:     summary.Pruned,
		DurationMs: summary.Duration.Milliseconds(),
		Failures:   []ScanFailure{},
		Shared:     shared,
	}
	for _, r := range summary.Results {
		if r.Err != nil {
			resp.Failures = append(resp.Failures, ScanFailure{
				RomPath: r.RomPath,
				Code:    r.Code().String(),
				Message: r.Err.Error(),
			})
		}
	}
	return RespondSuccess(c, resp)
}

// handleGetScanProgress handles GET /api/scan/progress
func (s *Server) handleGetScanProgress(c *fiber.Ctx) error {
	if s.scanner == nil {
		return RespondServiceUnavailable(c, "Scanning is not available", "")
	}
	return RespondSuccess(c, s.scanner.Progress())
}
