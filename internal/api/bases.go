package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/store"
)

// BasesHandler handles base registry endpoints.
type BasesHandler struct {
	DB *sql.DB
}

type createBaseRequest struct {
	Name        string `json:"name" validate:"required"`
	Location    string `json:"location" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=air naval army joint"`
	Status      string `json:"status" validate:"omitempty,oneof=active inactive maintenance"`
	Capacity    int    `json:"capacity" validate:"gte=0"`
	Description string `json:"description"`
	Notes       string `json:"notes"`
}

type updateBaseRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1"`
	Location    *string `json:"location" validate:"omitempty,min=1"`
	Type        *string `json:"type" validate:"omitempty,oneof=air naval army joint"`
	Status      *string `json:"status" validate:"omitempty,oneof=active inactive maintenance"`
	Capacity    *int    `json:"capacity" validate:"omitempty,gte=0"`
	Description *string `json:"description"`
	Notes       *string `json:"notes"`
}

// List handles GET /api/bases. Every authenticated user sees every base.
func (h *BasesHandler) List(w http.ResponseWriter, r *http.Request) {
	bases, err := store.ListBases(r.Context(), h.DB, store.BaseFilter{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
	})
	if err != nil {
		respondError(w, r, err, "listing bases")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(bases))
}

// Get handles GET /api/bases/{id}.
func (h *BasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid base id")
		return
	}

	base, err := store.GetBase(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting base")
		return
	}
	if base == nil {
		jsonError(w, http.StatusNotFound, "base not found")
		return
	}
	jsonResponse(w, http.StatusOK, base)
}

// Create handles POST /api/bases.
func (h *BasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBaseRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user := CurrentUser(r.Context())
	base, err := store.CreateBase(r.Context(), h.DB, &model.Base{
		Name:        req.Name,
		Location:    req.Location,
		Type:        req.Type,
		Status:      req.Status,
		Capacity:    req.Capacity,
		Description: req.Description,
		Notes:       req.Notes,
		CreatedBy:   &user.ID,
	})
	if err != nil {
		respondError(w, r, err, "creating base")
		return
	}

	slog.Info("base created", "user", user.Email, "base", base.Name)
	jsonResponse(w, http.StatusCreated, base)
}

// Update handles PUT /api/bases/{id}. A commander without a base claims the
// base on the first update; a commander holding another base is refused.
func (h *BasesHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid base id")
		return
	}

	var req updateBaseRequest
	if !decodeValid(w, r, &req) {
		return
	}

	base, err := store.GetBase(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting base")
		return
	}
	if base == nil {
		jsonError(w, http.StatusNotFound, "base not found")
		return
	}

	user := CurrentUser(r.Context())
	claim := false
	if c, isCommander := user.Affiliation.(model.BaseCommander); isCommander {
		switch {
		case c.Base == nil:
			claim = true
		case *c.Base != id:
			jsonError(w, http.StatusForbidden, "you can only update your assigned base")
			return
		}
	}

	if req.Name != nil {
		base.Name = *req.Name
	}
	if req.Location != nil {
		base.Location = *req.Location
	}
	if req.Type != nil {
		base.Type = *req.Type
	}
	if req.Status != nil {
		base.Status = *req.Status
	}
	if req.Capacity != nil {
		base.Capacity = *req.Capacity
	}
	if req.Description != nil {
		base.Description = *req.Description
	}
	if req.Notes != nil {
		base.Notes = *req.Notes
	}
	base.UpdatedBy = &user.ID

	if claim {
		if err := store.ClaimAndUpdateBase(r.Context(), h.DB, user.ID, base); err != nil {
			respondError(w, r, err, "claiming base")
			return
		}
		slog.Info("base claimed", "user", user.Email, "base", base.Name)
	} else if err := store.UpdateBase(r.Context(), h.DB, base); err != nil {
		respondError(w, r, err, "updating base")
		return
	}

	updated, err := store.GetBase(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting base")
		return
	}
	slog.Info("base updated", "user", user.Email, "base", updated.Name)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/bases/{id}.
func (h *BasesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid base id")
		return
	}

	base, err := store.GetBase(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting base")
		return
	}
	if base == nil {
		jsonError(w, http.StatusNotFound, "base not found")
		return
	}

	user := CurrentUser(r.Context())
	if user.Role == model.RoleBaseCommander && !model.CanManageBase(user, id) {
		jsonError(w, http.StatusForbidden, "you can only delete your assigned base")
		return
	}

	if err := store.DeleteBase(r.Context(), h.DB, id); err != nil {
		respondError(w, r, err, "deleting base")
		return
	}

	slog.Info("base deleted", "user", user.Email, "base", base.Name)
	jsonMessage(w, "base deleted")
}
