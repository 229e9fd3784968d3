package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-core/internal/api/dto"
	"github.com/spec-kit/helpdesk-core/internal/auth"
	"github.com/spec-kit/helpdesk-core/internal/cache"
	"github.com/spec-kit/helpdesk-core/internal/service"
)

const assignmentStatsKey = "dashboard:assignment-stats"

// AssignmentHandler exposes the toggle workflow and assignment statistics.
type AssignmentHandler struct {
	assignment *service.AssignmentService
	caches     *cache.Caches
}

// NewAssignmentHandler constructs handler.
func NewAssignmentHandler(assignment *service.AssignmentService, caches *cache.Caches) *AssignmentHandler {
	return &AssignmentHandler{assignment: assignment, caches: caches}
}

// RequestToggle handles POST /assignment/toggle-requests.
func (h *AssignmentHandler) RequestToggle(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}

	var req dto.ToggleRequestPayload
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}
	if req.Kind == "" || req.Reason == "" {
		return fiber.NewError(http.StatusBadRequest, "kind and reason required")
	}

	request, err := h.assignment.RequestToggle(c.Context(), principal.ID, req.Kind, req.Reason)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": request})
}

// Decide handles POST /assignment/toggle-requests/:id/decision (admin).
func (h *AssignmentHandler) Decide(c *fiber.Ctx) error {
	actor, ok := auth.PrincipalFromContext(c)
	if !ok {
		return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
	}

	var req dto.DecisionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	request, err := h.assignment.Decide(c.Context(), c.Params("id"), actor.ID, req.Outcome, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": request})
}

// Stats handles GET /assignment/stats (admin). Results are served from
// the query cache under the dashboard tag; any ticket change invalidates
// them.
func (h *AssignmentHandler) Stats(c *fiber.Ctx) error {
	if cached, ok := h.caches.Queries.Get(assignmentStatsKey); ok {
		return c.JSON(fiber.Map{"data": cached})
	}

	stats, err := h.assignment.AssignmentStats(c.Context())
	if err != nil {
		return err
	}
	h.caches.Queries.SetTagged(assignmentStatsKey, stats, 0, cache.TagDashboard)
	return c.JSON(fiber.Map{"data": stats})
}
