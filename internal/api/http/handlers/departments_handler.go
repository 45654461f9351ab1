package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/unidesk/request-service/internal/domain"
	"github.com/unidesk/request-service/internal/repository"
	apperrors "github.com/unidesk/request-service/pkg/util"
)

// DepartmentsHandler serves department administration endpoints.
type DepartmentsHandler struct {
	departments repository.DepartmentRepository
}

// NewDepartmentsHandler constructs handler.
func NewDepartmentsHandler(departments repository.DepartmentRepository) *DepartmentsHandler {
	return &DepartmentsHandler{departments: departments}
}

type createDepartmentRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func departmentResponse(dept *domain.Department) fiber.Map {
	return fiber.Map{
		"id":          dept.ID,
		"name":        dept.Name,
		"description": dept.Description,
		"is_active":   dept.IsActive,
		"created_at":  dept.CreatedAt,
	}
}

// Create POST /departments. Admin only via router guard.
func (h *DepartmentsHandler) Create(c *fiber.Ctx) error {
	var req createDepartmentRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Name) == "" {
		return apperrors.NewValidationError("name required", nil)
	}

	dept := &domain.Department{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsActive:    true,
	}
	if err := h.departments.Create(c.Context(), dept); err != nil {
		return apperrors.MapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": departmentResponse(dept)})
}

// List GET /departments.
func (h *DepartmentsHandler) List(c *fiber.Ctx) error {
	activeOnly := c.Query("active") != "false"
	departments, err := h.departments.List(c.Context(), activeOnly)
	if err != nil {
		return apperrors.MapError(err)
	}
	items := make([]fiber.Map, 0, len(departments))
	for i := range departments {
		items = append(items, departmentResponse(&departments[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}
