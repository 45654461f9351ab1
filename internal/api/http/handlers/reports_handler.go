package handlers

import (
	"bytes"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/unidesk/request-service/internal/repository"
	"github.com/unidesk/request-service/internal/service"
)

// ReportsHandler serves aggregate reporting and export endpoints. The
// router restricts this group to upper management.
type ReportsHandler struct {
	service *service.ReportService
}

// NewReportsHandler constructs handler.
func NewReportsHandler(reportService *service.ReportService) *ReportsHandler {
	return &ReportsHandler{service: reportService}
}

// Stats GET /reports/stats.
func (h *ReportsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.Context(), sinceQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// DepartmentPerformance GET /reports/departments.
func (h *ReportsHandler) DepartmentPerformance(c *fiber.Ctx) error {
	perf, err := h.service.DepartmentPerformance(c.Context(), sinceQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": perf})
}

// UserLeaderboard GET /reports/penalties/users.
func (h *ReportsHandler) UserLeaderboard(c *fiber.Ctx) error {
	board, err := h.service.UserLeaderboard(c.Context(), sinceQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": board})
}

// DepartmentLeaderboard GET /reports/penalties/departments.
func (h *ReportsHandler) DepartmentLeaderboard(c *fiber.Ctx) error {
	board, err := h.service.DepartmentLeaderboard(c.Context(), sinceQuery(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": board})
}

// ExportCSV GET /reports/tickets/export.csv.
func (h *ReportsHandler) ExportCSV(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.service.ExportTicketsCSV(c.Context(), exportQuery(c), &buf); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="tickets.csv"`)
	return c.Send(buf.Bytes())
}

// ExportExcel GET /reports/tickets/export.xlsx.
func (h *ReportsHandler) ExportExcel(c *fiber.Ctx) error {
	var buf bytes.Buffer
	if err := h.service.ExportTicketsExcel(c.Context(), exportQuery(c), &buf); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="tickets.xlsx"`)
	return c.Send(buf.Bytes())
}

// sinceQuery defaults the reporting window to the last 30 days.
func sinceQuery(c *fiber.Ctx) time.Time {
	if from := parseTime(c.Query("since")); from != nil {
		return *from
	}
	return time.Now().AddDate(0, 0, -30)
}

// exportQuery reuses the list filters but without the list pagination
// default, so exports are not silently truncated to one page.
func exportQuery(c *fiber.Ctx) repository.TicketFilter {
	filter := parseTicketQuery(c)
	if c.Query("page") == "" && c.Query("page_size") == "" {
		filter.Limit = 10000
		filter.Offset = 0
	}
	return filter
}
