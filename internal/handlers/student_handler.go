package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/libraryhub/backend/internal/models"
	"github.com/libraryhub/backend/internal/services"
)

type Students interface {
	GetStudent(ctx context.Context, actor models.Identity, id int64) (*models.Student, error)
	SearchStudents(ctx context.Context, actor models.Identity, query string) ([]models.Student, error)
	UpdateStudent(ctx context.Context, actor models.Identity, id int64, in services.StudentUpdate) (*models.Student, error)
	UpdateStatus(ctx context.Context, actor models.Identity, id int64, status string) (*models.Student, error)
	SetPassword(ctx context.Context, actor models.Identity, id int64, password string) error
	DeleteStudent(ctx context.Context, actor models.Identity, id int64) error
}

type Notifications interface {
	ListNotifications(ctx context.Context, actor models.Identity) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, actor models.Identity, id int64) (*models.Notification, error)
}

type StudentHandler struct {
	students      Students
	notifications Notifications
}

func NewStudentHandler(students Students, notifications Notifications) *StudentHandler {
	return &StudentHandler{students: students, notifications: notifications}
}

// Search finds active students by name, username, student id, email or phone
// @Summary Search students
// @Tags Students
// @Security BearerAuth
// @Produce json
// @Param q query string false "Search text"
// @Success 200 {array} models.Student
// @Router /students [get]
func (h *StudentHandler) Search(w http.ResponseWriter, r *http.Request) {
	found, err := h.students.SearchStudents(r.Context(), actor(r), strings.TrimSpace(r.URL.Query().Get("q")))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

// @Summary Get student
// @Tags Students
// @Security BearerAuth
// @Produce json
// @Param id path int true "Student ID"
// @Success 200 {object} models.Student
// @Router /students/{id} [get]
func (h *StudentHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	student, err := h.students.GetStudent(r.Context(), actor(r), id)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// Update edits a student's profile
// @Summary Update student
// @Tags Students
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param request body services.StudentUpdate true "Profile"
// @Success 200 {object} models.Student
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /students/{id} [put]
func (h *StudentHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req services.StudentUpdate
	if !decodeJSON(w, r, &req) {
		return
	}

	student, err := h.students.UpdateStudent(r.Context(), actor(r), id, req)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// UpdateStatus activates, deactivates or suspends a student
// @Summary Update student status
// @Tags Students
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Student ID"
// @Param request body object{status=string} true "active, inactive or suspended"
// @Success 200 {object} models.Student
// @Router /students/{id}/status [put]
func (h *StudentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	student, err := h.students.UpdateStatus(r.Context(), actor(r), id, req.Status)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, student)
}

// @Summary Set student password
// @Tags Students
// @Security BearerAuth
// @Accept json
// @Param id path int true "Student ID"
// @Param request body object{password=string} true "New password"
// @Success 204
// @Router /students/{id}/password [put]
func (h *StudentHandler) SetPassword(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		Password string `json:"password"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.students.SetPassword(r.Context(), actor(r), id, req.Password); err != nil {
		services.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *StudentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.students.DeleteStudent(r.Context(), actor(r), id); err != nil {
		services.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// @Summary My notifications
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Success 200 {array} models.Notification
// @Router /me/notifications [get]
func (h *StudentHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	list, err := h.notifications.ListNotifications(r.Context(), actor(r))
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// @Summary Mark notification read
// @Tags Notifications
// @Security BearerAuth
// @Produce json
// @Param id path int true "Notification ID"
// @Success 200 {object} models.Notification
// @Router /me/notifications/{id}/read [post]
func (h *StudentHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}
	n, err := h.notifications.MarkNotificationRead(r.Context(), actor(r), id)
	if err != nil {
		services.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}
