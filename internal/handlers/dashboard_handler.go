package handlers

import (
	"context"
	"net/http"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type Dashboards interface {
	Summary(ctx context.Context) (*services.LibrarySummary, error)
	AdminDashboard(ctx context.Context, actor models.Identity) (*services.AdminDashboard, error)
	StudentDashboard(ctx context.Context, actor models.Identity) (*services.StudentDashboard, error)
}

type DashboardHandler struct {
	dashboards Dashboards
}

func NewDashboardHandler(dashboards Dashboards) *DashboardHandler {
	return &DashboardHandler{dashboards: dashboards}
}

// Summary returns the public library figures
// @Summary Library summary
// @Tags Dashboard
// @Produce json
// @Success 200 {object} services.LibrarySummary
// @Router /stats [get]
func (h *DashboardHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.dashboards.Summary(r.Context())
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// @Summary Admin dashboard
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} services.AdminDashboard
// @Failure 403 {object} services.ErrorResponse
// @Router /admin/dashboard [get]
func (h *DashboardHandler) Admin(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboards.AdminDashboard(r.Context(), actor(r))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// @Summary Student dashboard
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} services.StudentDashboard
// @Failure 403 {object} services.ErrorResponse
// @Router /me/dashboard [get]
func (h *DashboardHandler) Student(w http.ResponseWriter, r *http.Request) {
	d, err := h.dashboards.StudentDashboard(r.Context(), actor(r))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
