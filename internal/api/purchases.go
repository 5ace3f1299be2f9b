package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/erazemk/arsenal/internal/metrics"
	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/store"
)

// PurchasesHandler handles purchase endpoints.
type PurchasesHandler struct {
	DB      *sql.DB
	Metrics *metrics.Metrics
}

type createPurchaseRequest struct {
	AssetID             int64           `json:"asset" validate:"required"`
	BaseID              int64           `json:"base" validate:"required"`
	Quantity            int             `json:"quantity" validate:"required,min=1"`
	UnitPrice           decimal.Decimal `json:"unitPrice"`
	Supplier            string          `json:"supplier" validate:"required"`
	PurchaseOrderNumber string          `json:"purchaseOrderNumber" validate:"required"`
	PurchaseDate        *date           `json:"purchaseDate"`
	Notes               string          `json:"notes"`
}

// List handles GET /api/purchases.
func (h *PurchasesHandler) List(w http.ResponseWriter, r *http.Request) {
	f := store.PurchaseFilter{Status: r.URL.Query().Get("status")}

	base, err := queryID(r, "base")
	if err == nil {
		f.From, err = queryDate(r, "startDate")
	}
	if err == nil {
		f.To, err = queryDate(r, "endDate")
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	f.Scope = model.ScopeFor(CurrentUser(r.Context()), base)

	purchases, err := store.ListPurchases(r.Context(), h.DB, f)
	if err != nil {
		respondError(w, r, err, "listing purchases")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(purchases))
}

func (h *PurchasesHandler) load(w http.ResponseWriter, r *http.Request) *model.Purchase {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid purchase id")
		return nil
	}

	p, err := store.GetPurchase(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting purchase")
		return nil
	}
	if p == nil {
		jsonError(w, http.StatusNotFound, "purchase not found")
		return nil
	}
	if !model.HasAccessToBase(CurrentUser(r.Context()), p.BaseID) {
		jsonError(w, http.StatusForbidden, "access denied to this base")
		return nil
	}
	return p
}

// Get handles GET /api/purchases/{id}.
func (h *PurchasesHandler) Get(w http.ResponseWriter, r *http.Request) {
	p := h.load(w, r)
	if p == nil {
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

// Create handles POST /api/purchases. The purchase stays pending until it is
// completed.
func (h *PurchasesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPurchaseRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if req.UnitPrice.IsNegative() {
		jsonResponse(w, http.StatusBadRequest, errorBody{
			Message: "validation failed",
			Errors:  map[string]string{"unitPrice": "must be at least 0"},
		})
		return
	}

	user := CurrentUser(r.Context())
	if !model.CanManageBase(user, req.BaseID) {
		jsonError(w, http.StatusForbidden, "you cannot record purchases for this base")
		return
	}

	asset, err := store.GetAsset(r.Context(), h.DB, req.AssetID)
	if err != nil {
		respondError(w, r, err, "getting asset")
		return
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "asset not found")
		return
	}
	if asset.BaseID != req.BaseID {
		jsonError(w, http.StatusBadRequest, "asset is not held at this base")
		return
	}

	p := &model.Purchase{
		AssetID:             req.AssetID,
		BaseID:              req.BaseID,
		Quantity:            req.Quantity,
		UnitPrice:           req.UnitPrice,
		Supplier:            req.Supplier,
		PurchaseOrderNumber: req.PurchaseOrderNumber,
		Notes:               req.Notes,
		CreatedBy:           user.ID,
	}
	if req.PurchaseDate != nil {
		p.PurchaseDate = req.PurchaseDate.Time
	}

	created, err := store.CreatePurchase(r.Context(), h.DB, p)
	if err != nil {
		respondError(w, r, err, "creating purchase")
		return
	}

	h.Metrics.Transition("purchase", created.Status)
	slog.Info("purchase created", "user", user.Email, "order", created.PurchaseOrderNumber,
		"asset", created.AssetName, "quantity", created.Quantity, "total", created.TotalAmount.String())
	jsonResponse(w, http.StatusCreated, created)
}

// SetStatus handles PATCH /api/purchases/{id}/status.
func (h *PurchasesHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	p := h.load(w, r)
	if p == nil {
		return
	}

	user := CurrentUser(r.Context())
	if !model.CanManageBase(user, p.BaseID) {
		jsonError(w, http.StatusForbidden, "access denied to this base")
		return
	}

	var req statusRequest
	if !decodeValid(w, r, &req) {
		return
	}

	updated, err := store.SetPurchaseStatus(r.Context(), h.DB, p.ID, req.Status, user.ID)
	if err != nil {
		respondError(w, r, err, "setting purchase status")
		return
	}

	h.Metrics.Transition("purchase", updated.Status)
	if updated.Status == model.PurchaseCompleted {
		h.Metrics.Movement(model.MovementAdjustment)
	}
	slog.Info("purchase status changed", "user", user.Email, "order", updated.PurchaseOrderNumber,
		"from", p.Status, "to", updated.Status)
	jsonResponse(w, http.StatusOK, updated)
}
