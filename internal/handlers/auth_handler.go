package handlers

import (
	"context"
	"net/http"

	"github.com/libraryhub/backend/internal/middleware"
	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type Sessions interface {
	Login(ctx context.Context, req services.LoginRequest, previousToken string) (*services.LoginResponse, error)
	Logout(ctx context.Context, token string) error
	CurrentIdentity(ctx context.Context, token string) models.Identity
}

type Registrar interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.Student, error)
	ResetPassword(ctx context.Context, req services.ResetPasswordRequest) error
	GetStudent(ctx context.Context, actor models.Identity, id int64) (*models.Student, error)
}

type AuthHandler struct {
	sessions Sessions
	members  Registrar
}

func NewAuthHandler(sessions Sessions, members Registrar) *AuthHandler {
	return &AuthHandler{sessions: sessions, members: members}
}

// Login opens a session for an admin or a student
// @Summary Login
// @Tags Auth
// @Accept json
// @Produce json
// @Param request body services.LoginRequest true "Credentials"
// @Success 200 {object} services.LoginResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.sessions.Login(r.Context(), req, middleware.BearerToken(r))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout ends the caller's session
// @Summary Logout
// @Tags Auth
// @Security BearerAuth
// @Success 204
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.BearerToken(r); token != "" {
		if err := h.sessions.Logout(r.Context(), token); err != nil {
			services.WriteError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me returns the caller's identity, and the profile for students
// @Summary Current identity
// @Tags Auth
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{identity=models.Identity,student=models.Student}
// @Failure 401 {object} services.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := actor(r)
	if identity.IsAnonymous() {
		services.WriteError(w, services.ErrUnauthenticated)
		return
	}

	body := map[string]any{"identity": identity}
	if identity.IsStudent() {
		student, err := h.members.GetStudent(r.Context(), identity, identity.ID)
		if err != nil {
			services.WriteError(w, err)
			return
		}
		body["student"] = student
	}
	writeJSON(w, http.StatusOK, body)
}

// Register creates a student account
// @Summary Register student
// @Tags Students
// @Accept json
// @Produce json
// @Param request body services.RegisterRequest true "Registration"
// @Success 201 {object} models.Student
// @Failure 400 {object} services.ErrorResponse
// @Router /students/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	student, err := h.members.Register(r.Context(), req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, student)
}

// ResetPassword changes a password given the old one and the student id
// @Summary Reset password
// @Tags Students
// @Accept json
// @Param request body services.ResetPasswordRequest true "Reset"
// @Success 204
// @Failure 401 {object} services.ErrorResponse
// @Router /students/reset-password [post]
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req services.ResetPasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.members.ResetPassword(r.Context(), req); err != nil {
		services.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
