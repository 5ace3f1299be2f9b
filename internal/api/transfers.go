package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/arsenal/internal/metrics"
	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/store"
)

// TransfersHandler handles transfer endpoints.
type TransfersHandler struct {
	DB      *sql.DB
	Metrics *metrics.Metrics
}

type createTransferRequest struct {
	AssetID      int64  `json:"asset" validate:"required"`
	FromBaseID   int64  `json:"fromBase" validate:"required"`
	ToBaseID     int64  `json:"toBase" validate:"required,nefield=FromBaseID"`
	Quantity     int    `json:"quantity" validate:"required,min=1"`
	Reason       string `json:"reason"`
	Notes        string `json:"notes"`
	TransferDate *date  `json:"transferDate"`
}

type updateTransferRequest struct {
	Notes        *string `json:"notes"`
	TransferDate *date   `json:"transferDate"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required"`
}

// List handles GET /api/transfers. Transfers are visible when either side is
// in the user's scope.
func (h *TransfersHandler) List(w http.ResponseWriter, r *http.Request) {
	base, err := queryID(r, "base")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	asset, err := queryID(r, "asset")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	f := store.TransferFilter{
		Scope:  model.ScopeFor(CurrentUser(r.Context()), base),
		Status: r.URL.Query().Get("status"),
	}
	if asset != nil {
		f.AssetID = *asset
	}

	transfers, err := store.ListTransfers(r.Context(), h.DB, f)
	if err != nil {
		respondError(w, r, err, "listing transfers")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(transfers))
}

func (h *TransfersHandler) load(w http.ResponseWriter, r *http.Request) *model.Transfer {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid transfer id")
		return nil
	}

	t, err := store.GetTransfer(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting transfer")
		return nil
	}
	if t == nil {
		jsonError(w, http.StatusNotFound, "transfer not found")
		return nil
	}
	return t
}

// Get handles GET /api/transfers/{id}.
func (h *TransfersHandler) Get(w http.ResponseWriter, r *http.Request) {
	t := h.load(w, r)
	if t == nil {
		return
	}

	user := CurrentUser(r.Context())
	if !model.HasAccessToBase(user, t.FromBaseID) && !model.HasAccessToBase(user, t.ToBaseID) {
		jsonError(w, http.StatusForbidden, "access denied to this transfer")
		return
	}
	jsonResponse(w, http.StatusOK, t)
}

// Create handles POST /api/transfers. Commanders can only send from their own
// base.
func (h *TransfersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTransferRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user := CurrentUser(r.Context())
	if user.Role == model.RoleBaseCommander && !model.CanManageBase(user, req.FromBaseID) {
		jsonError(w, http.StatusForbidden, "you can only create transfers from your base")
		return
	}

	t := &model.Transfer{
		AssetID:     req.AssetID,
		FromBaseID:  req.FromBaseID,
		ToBaseID:    req.ToBaseID,
		Quantity:    req.Quantity,
		InitiatedBy: user.ID,
		Reason:      req.Reason,
		Notes:       req.Notes,
	}
	if req.TransferDate != nil {
		t.TransferDate = req.TransferDate.Time
	}

	created, err := store.CreateTransfer(r.Context(), h.DB, t)
	if err != nil {
		respondError(w, r, err, "creating transfer")
		return
	}

	h.Metrics.Transition("transfer", created.Status)
	slog.Info("transfer created", "user", user.Email, "number", created.TransferNumber,
		"asset", created.AssetName, "quantity", created.Quantity,
		"from", created.FromBaseName, "to", created.ToBaseName)
	jsonResponse(w, http.StatusCreated, created)
}

// Update handles PUT /api/transfers/{id}. Only the notes and transfer date can
// change.
func (h *TransfersHandler) Update(w http.ResponseWriter, r *http.Request) {
	t := h.load(w, r)
	if t == nil {
		return
	}

	user := CurrentUser(r.Context())
	if !model.CanManageBase(user, t.FromBaseID) {
		jsonError(w, http.StatusForbidden, "access denied to the source base")
		return
	}

	var req updateTransferRequest
	if !decodeValid(w, r, &req) {
		return
	}

	updated, err := store.UpdateTransfer(r.Context(), h.DB, t.ID, req.Notes, timeOf(req.TransferDate))
	if err != nil {
		respondError(w, r, err, "updating transfer")
		return
	}

	slog.Info("transfer updated", "user", user.Email, "number", updated.TransferNumber)
	jsonResponse(w, http.StatusOK, updated)
}

// SetStatus handles PATCH /api/transfers/{id}/status. Commanders act only for
// their side of the transfer: the source dispatches, the destination
// completes and either may cancel.
func (h *TransfersHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	t := h.load(w, r)
	if t == nil {
		return
	}

	var req statusRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if !model.CanTransitionTransfer(t.Status, req.Status) {
		jsonError(w, http.StatusBadRequest, "cannot transition from "+t.Status+" to "+req.Status)
		return
	}

	user := CurrentUser(r.Context())
	if c, ok := user.Affiliation.(model.BaseCommander); ok {
		own := func(base int64) bool { return c.Base != nil && *c.Base == base }
		switch req.Status {
		case model.TransferInTransit:
			if !own(t.FromBaseID) {
				jsonError(w, http.StatusForbidden, "only the source base can mark a transfer in transit")
				return
			}
		case model.TransferCompleted:
			if !own(t.ToBaseID) {
				jsonError(w, http.StatusForbidden, "only the destination base can complete a transfer")
				return
			}
		case model.TransferCancelled:
			if !own(t.FromBaseID) && !own(t.ToBaseID) {
				jsonError(w, http.StatusForbidden, "only the source or destination base can cancel a transfer")
				return
			}
		}
	}

	updated, err := store.SetTransferStatus(r.Context(), h.DB, t.ID, req.Status, user.ID)
	if err != nil {
		respondError(w, r, err, "setting transfer status")
		return
	}

	h.Metrics.Transition("transfer", updated.Status)
	if updated.Status == model.TransferCompleted || updated.Status == model.TransferCancelled {
		h.Metrics.Movement(model.MovementTransfer)
	}
	slog.Info("transfer status changed", "user", user.Email, "number", updated.TransferNumber,
		"from", t.Status, "to", updated.Status)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/transfers/{id}. Only pending transfers can be
// deleted.
func (h *TransfersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	t := h.load(w, r)
	if t == nil {
		return
	}

	user := CurrentUser(r.Context())
	if !model.CanManageBase(user, t.FromBaseID) {
		jsonError(w, http.StatusForbidden, "access denied to the source base")
		return
	}

	if err := store.DeleteTransfer(r.Context(), h.DB, t.ID, user.ID); err != nil {
		respondError(w, r, err, "deleting transfer")
		return
	}

	h.Metrics.Movement(model.MovementTransfer)
	slog.Info("transfer deleted", "user", user.Email, "number", t.TransferNumber)
	jsonMessage(w, "transfer deleted")
}
