package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/arsenal/internal/metrics"
	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/store"
)

// AssignmentsHandler handles personnel assignment endpoints.
type AssignmentsHandler struct {
	DB      *sql.DB
	Metrics *metrics.Metrics
}

type createAssignmentRequest struct {
	AssetID        int64  `json:"asset" validate:"required"`
	AssignedTo     int64  `json:"assignedTo" validate:"required"`
	BaseID         int64  `json:"base" validate:"required"`
	Quantity       int    `json:"quantity" validate:"required,min=1"`
	Purpose        string `json:"purpose" validate:"required"`
	Notes          string `json:"notes"`
	AssignmentDate *date  `json:"assignmentDate"`
}

type updateAssignmentRequest struct {
	Quantity       *int    `json:"quantity" validate:"omitempty,min=1"`
	Purpose        *string `json:"purpose" validate:"omitempty,min=1"`
	Notes          *string `json:"notes"`
	AssignmentDate *date   `json:"assignmentDate"`
	ReturnDate     *date   `json:"returnDate"`
}

func (h *AssignmentsHandler) filter(w http.ResponseWriter, r *http.Request) (store.AssignmentFilter, bool) {
	f := store.AssignmentFilter{Status: r.URL.Query().Get("status")}

	base, err := queryID(r, "base")
	var assignee *int64
	if err == nil {
		assignee, err = queryID(r, "assignedTo")
	}
	if err == nil {
		f.From, err = queryDate(r, "startDate")
	}
	if err == nil {
		f.To, err = queryDate(r, "endDate")
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return f, false
	}

	if assignee != nil {
		f.AssignedTo = *assignee
	}
	f.Scope = model.ScopeFor(CurrentUser(r.Context()), base)
	return f, true
}

// List handles GET /api/assignments.
func (h *AssignmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	assignments, err := store.ListAssignments(r.Context(), h.DB, f)
	if err != nil {
		respondError(w, r, err, "listing assignments")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(assignments))
}

// Summary handles GET /api/assignments/metrics/summary.
func (h *AssignmentsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	sum, err := store.SummarizeAssignments(r.Context(), h.DB, f)
	if err != nil {
		respondError(w, r, err, "summarizing assignments")
		return
	}
	jsonResponse(w, http.StatusOK, sum)
}

// load fetches the assignment named by the path and checks base access.
func (h *AssignmentsHandler) load(w http.ResponseWriter, r *http.Request) *model.Assignment {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid assignment id")
		return nil
	}

	s, err := store.GetAssignment(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting assignment")
		return nil
	}
	if s == nil {
		jsonError(w, http.StatusNotFound, "assignment not found")
		return nil
	}
	if !model.HasAccessToBase(CurrentUser(r.Context()), s.BaseID) {
		jsonError(w, http.StatusForbidden, "access denied to this base")
		return nil
	}
	return s
}

// Get handles GET /api/assignments/{id}.
func (h *AssignmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := h.load(w, r)
	if s == nil {
		return
	}
	jsonResponse(w, http.StatusOK, s)
}

// Create handles POST /api/assignments. Commanders can only assign from their
// own base.
func (h *AssignmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssignmentRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user := CurrentUser(r.Context())
	if user.Role == model.RoleBaseCommander && !model.CanManageBase(user, req.BaseID) {
		jsonError(w, http.StatusForbidden, "you can only create assignments for your assigned base")
		return
	}

	s := &model.Assignment{
		AssetID:    req.AssetID,
		AssignedTo: req.AssignedTo,
		AssignedBy: user.ID,
		BaseID:     req.BaseID,
		Quantity:   req.Quantity,
		Purpose:    req.Purpose,
		Notes:      req.Notes,
	}
	if req.AssignmentDate != nil {
		s.AssignmentDate = req.AssignmentDate.Time
	}

	created, err := store.CreateAssignment(r.Context(), h.DB, s)
	if err != nil {
		respondError(w, r, err, "creating assignment")
		return
	}

	h.Metrics.Transition("assignment", created.Status)
	h.Metrics.Movement(model.MovementAssignment)
	slog.Info("assignment created", "user", user.Email, "number", created.AssignmentNumber,
		"asset", created.AssetName, "quantity", created.Quantity, "assignee", created.AssignedToName)
	jsonResponse(w, http.StatusCreated, created)
}

// Update handles PUT /api/assignments/{id}.
func (h *AssignmentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	s := h.load(w, r)
	if s == nil {
		return
	}

	var req updateAssignmentRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user := CurrentUser(r.Context())
	updated, err := store.UpdateAssignment(r.Context(), h.DB, s.ID, store.AssignmentUpdate{
		Quantity:       req.Quantity,
		Purpose:        req.Purpose,
		Notes:          req.Notes,
		AssignmentDate: timeOf(req.AssignmentDate),
		ReturnDate:     timeOf(req.ReturnDate),
	}, user.ID)
	if err != nil {
		respondError(w, r, err, "updating assignment")
		return
	}

	if updated.Quantity != s.Quantity {
		h.Metrics.Movement(model.MovementAdjustment)
	}
	slog.Info("assignment updated", "user", user.Email, "number", updated.AssignmentNumber)
	jsonResponse(w, http.StatusOK, updated)
}

// Return handles PATCH /api/assignments/{id}/return.
func (h *AssignmentsHandler) Return(w http.ResponseWriter, r *http.Request) {
	s := h.load(w, r)
	if s == nil {
		return
	}
	if s.Status != model.AssignmentActive {
		jsonError(w, http.StatusBadRequest, "assignment is not active")
		return
	}
	h.transition(w, r, s, model.AssignmentReturned)
}

// SetStatus handles PATCH /api/assignments/{id}/status.
func (h *AssignmentsHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	s := h.load(w, r)
	if s == nil {
		return
	}

	var req statusRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if !model.CanTransitionAssignment(s.Status, req.Status) {
		jsonError(w, http.StatusBadRequest, "invalid status transition")
		return
	}
	h.transition(w, r, s, req.Status)
}

func (h *AssignmentsHandler) transition(w http.ResponseWriter, r *http.Request, s *model.Assignment, status string) {
	user := CurrentUser(r.Context())
	updated, err := store.SetAssignmentStatus(r.Context(), h.DB, s.ID, status, user.ID)
	if err != nil {
		respondError(w, r, err, "setting assignment status")
		return
	}

	h.Metrics.Transition("assignment", updated.Status)
	if updated.Status == model.AssignmentReturned {
		h.Metrics.Movement(model.MovementReturn)
	} else {
		h.Metrics.Movement(model.MovementAdjustment)
	}
	slog.Info("assignment status changed", "user", user.Email, "number", updated.AssignmentNumber,
		"from", s.Status, "to", updated.Status)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/assignments/{id}. The quantity is restored
// whatever the status of the assignment.
func (h *AssignmentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s := h.load(w, r)
	if s == nil {
		return
	}

	user := CurrentUser(r.Context())
	if !model.CanManageBase(user, s.BaseID) {
		jsonError(w, http.StatusForbidden, "access denied to this base")
		return
	}

	if err := store.DeleteAssignment(r.Context(), h.DB, s.ID, user.ID); err != nil {
		respondError(w, r, err, "deleting assignment")
		return
	}

	h.Metrics.Movement(model.MovementAdjustment)
	slog.Info("assignment deleted", "user", user.Email, "number", s.AssignmentNumber, "status", s.Status)
	jsonMessage(w, "assignment deleted")
}
