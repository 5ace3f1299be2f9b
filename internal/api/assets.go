package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/photo"
	"github.com/erazemk/arsenal/internal/store"
)

// maxImageSize bounds photo uploads.
const maxImageSize = 5 << 20

// AssetsHandler handles asset ledger endpoints.
type AssetsHandler struct {
	DB *sql.DB
}

type purchaseDetailsRequest struct {
	Supplier            string          `json:"supplier"`
	Cost                decimal.Decimal `json:"cost"`
	PurchaseOrderNumber string          `json:"purchaseOrderNumber"`
}

type createAssetRequest struct {
	Name         string `json:"name" validate:"required"`
	Type         string `json:"type" validate:"required,oneof=weapon vehicle ammunition equipment"`
	SerialNumber string `json:"serialNumber" validate:"required"`
	Base         int64  `json:"base" validate:"required"`
	Location     string `json:"location" validate:"required"`
	Status       string `json:"status" validate:"omitempty,oneof=available assigned maintenance expended"`
	Description  string `json:"description"`
	Quantity     int    `json:"quantity" validate:"gte=0"`
	// OpeningBalance defaults to the quantity.
	OpeningBalance      *int                   `json:"openingBalance" validate:"omitempty,gte=0"`
	PurchaseDate        *date                  `json:"purchaseDate"`
	PurchaseDetails     purchaseDetailsRequest `json:"purchaseDetails"`
	LastMaintenanceDate *date                  `json:"lastMaintenanceDate"`
}

type updateAssetRequest struct {
	Name                *string                 `json:"name" validate:"omitempty,min=1"`
	Type                *string                 `json:"type" validate:"omitempty,oneof=weapon vehicle ammunition equipment"`
	SerialNumber        *string                 `json:"serialNumber" validate:"omitempty,min=1"`
	Base                *int64                  `json:"base" validate:"omitempty,gt=0"`
	Location            *string                 `json:"location"`
	Status              *string                 `json:"status" validate:"omitempty,oneof=available assigned maintenance expended"`
	Description         *string                 `json:"description"`
	Quantity            *int                    `json:"quantity" validate:"omitempty,gte=0"`
	OpeningBalance      *int                    `json:"openingBalance" validate:"omitempty,gte=0"`
	PurchaseDate        *date                   `json:"purchaseDate"`
	PurchaseDetails     *purchaseDetailsRequest `json:"purchaseDetails"`
	LastMaintenanceDate *date                   `json:"lastMaintenanceDate"`
}

type assetType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// List handles GET /api/assets.
func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	f := store.AssetFilter{
		Status: r.URL.Query().Get("status"),
		Type:   r.URL.Query().Get("type"),
		Search: r.URL.Query().Get("search"),
	}

	base, err := queryID(r, "base")
	if err == nil {
		f.MinQuantity, err = queryInt(r, "minQuantity")
	}
	if err == nil {
		f.MaxQuantity, err = queryInt(r, "maxQuantity")
	}
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

	assets, err := store.ListAssets(r.Context(), h.DB, f)
	if err != nil {
		respondError(w, r, err, "listing assets")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(assets))
}

// Types handles GET /api/assets/types.
func (h *AssetsHandler) Types(w http.ResponseWriter, r *http.Request) {
	types := make([]assetType, len(model.AssetTypes))
	for i, t := range model.AssetTypes {
		types[i] = assetType{ID: t, Name: model.AssetTypeName(t)}
	}
	jsonResponse(w, http.StatusOK, types)
}

// Metrics handles GET /api/assets/metrics.
func (h *AssetsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	base, err := queryID(r, "base")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := store.GetInventoryMetrics(r.Context(), h.DB, model.ScopeFor(CurrentUser(r.Context()), base))
	if err != nil {
		respondError(w, r, err, "getting inventory metrics")
		return
	}
	jsonResponse(w, http.StatusOK, m)
}

// Summary handles GET /api/assets/metrics/summary.
func (h *AssetsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	base, err := queryID(r, "base")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	sum, err := store.SummarizeInventory(r.Context(), h.DB, model.ScopeFor(CurrentUser(r.Context()), base))
	if err != nil {
		respondError(w, r, err, "summarizing inventory")
		return
	}
	jsonResponse(w, http.StatusOK, sum)
}

// loadAsset fetches the asset named by the path and checks that the user may
// manage its base. It writes the error response itself and returns nil on
// failure.
func (h *AssetsHandler) loadAsset(w http.ResponseWriter, r *http.Request) *model.Asset {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid asset id")
		return nil
	}

	asset, err := store.GetAsset(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting asset")
		return nil
	}
	if asset == nil {
		jsonError(w, http.StatusNotFound, "asset not found")
		return nil
	}
	if !model.CanManageBase(CurrentUser(r.Context()), asset.BaseID) {
		jsonError(w, http.StatusForbidden, "access denied to this base")
		return nil
	}
	return asset
}

// Get handles GET /api/assets/{id}.
func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	asset := h.loadAsset(w, r)
	if asset == nil {
		return
	}
	jsonResponse(w, http.StatusOK, asset)
}

// Create handles POST /api/assets.
func (h *AssetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAssetRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user := CurrentUser(r.Context())
	if !model.CanManageBase(user, req.Base) {
		jsonError(w, http.StatusForbidden, "you cannot manage assets in this base")
		return
	}

	opening := req.Quantity
	if req.OpeningBalance != nil {
		opening = *req.OpeningBalance
	}

	asset, err := store.CreateAsset(r.Context(), h.DB, &model.Asset{
		Name:           req.Name,
		Type:           req.Type,
		SerialNumber:   req.SerialNumber,
		BaseID:         req.Base,
		Location:       req.Location,
		Status:         req.Status,
		Description:    req.Description,
		Quantity:       req.Quantity,
		OpeningBalance: opening,
		PurchaseDate:   timeOf(req.PurchaseDate),
		PurchaseDetails: model.PurchaseDetails{
			Supplier:            req.PurchaseDetails.Supplier,
			Cost:                req.PurchaseDetails.Cost,
			PurchaseOrderNumber: req.PurchaseDetails.PurchaseOrderNumber,
		},
		LastMaintenanceDate: timeOf(req.LastMaintenanceDate),
		CreatedBy:           &user.ID,
	})
	if err != nil {
		respondError(w, r, err, "creating asset")
		return
	}

	slog.Info("asset created", "user", user.Email, "asset", asset.Name,
		"serial", asset.SerialNumber, "base", asset.BaseName, "quantity", asset.Quantity)
	jsonResponse(w, http.StatusCreated, asset)
}

// Update handles PUT /api/assets/{id}. Only supplied fields change and the
// net movement cannot be set.
func (h *AssetsHandler) Update(w http.ResponseWriter, r *http.Request) {
	asset := h.loadAsset(w, r)
	if asset == nil {
		return
	}

	var req updateAssetRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user := CurrentUser(r.Context())
	if req.Base != nil && !model.CanManageBase(user, *req.Base) {
		jsonError(w, http.StatusForbidden, "you cannot move assets to this base")
		return
	}

	if req.Name != nil {
		asset.Name = *req.Name
	}
	if req.Type != nil {
		asset.Type = *req.Type
	}
	if req.SerialNumber != nil {
		asset.SerialNumber = *req.SerialNumber
	}
	if req.Base != nil {
		asset.BaseID = *req.Base
	}
	if req.Location != nil {
		asset.Location = *req.Location
	}
	if req.Status != nil {
		asset.Status = *req.Status
	}
	if req.Description != nil {
		asset.Description = *req.Description
	}
	if req.Quantity != nil {
		asset.Quantity = *req.Quantity
	}
	if req.OpeningBalance != nil {
		asset.OpeningBalance = *req.OpeningBalance
	}
	if req.PurchaseDate != nil {
		asset.PurchaseDate = timeOf(req.PurchaseDate)
	}
	if req.PurchaseDetails != nil {
		asset.PurchaseDetails = model.PurchaseDetails{
			Supplier:            req.PurchaseDetails.Supplier,
			Cost:                req.PurchaseDetails.Cost,
			PurchaseOrderNumber: req.PurchaseDetails.PurchaseOrderNumber,
		}
	}
	if req.LastMaintenanceDate != nil {
		asset.LastMaintenanceDate = timeOf(req.LastMaintenanceDate)
	}
	asset.UpdatedBy = &user.ID

	if err := store.UpdateAsset(r.Context(), h.DB, asset); err != nil {
		respondError(w, r, err, "updating asset")
		return
	}

	updated, err := store.GetAsset(r.Context(), h.DB, asset.ID)
	if err != nil {
		respondError(w, r, err, "getting asset")
		return
	}
	slog.Info("asset updated", "user", user.Email, "asset", updated.Name)
	jsonResponse(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/assets/{id}.
func (h *AssetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	asset := h.loadAsset(w, r)
	if asset == nil {
		return
	}

	if err := store.DeleteAsset(r.Context(), h.DB, asset.ID); err != nil {
		respondError(w, r, err, "deleting asset")
		return
	}

	slog.Info("asset deleted", "user", CurrentUser(r.Context()).Email, "asset", asset.Name, "serial", asset.SerialNumber)
	jsonMessage(w, "asset deleted")
}

// Movements handles GET /api/assets/{id}/movements.
func (h *AssetsHandler) Movements(w http.ResponseWriter, r *http.Request) {
	asset := h.loadAsset(w, r)
	if asset == nil {
		return
	}

	from, err := queryDate(r, "startDate")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryDate(r, "endDate")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	movements, err := store.ListMovements(r.Context(), h.DB, asset.ID, from, to)
	if err != nil {
		respondError(w, r, err, "listing movements")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(movements))
}

// PeriodMetrics handles GET /api/assets/{id}/metrics.
func (h *AssetsHandler) PeriodMetrics(w http.ResponseWriter, r *http.Request) {
	asset := h.loadAsset(w, r)
	if asset == nil {
		return
	}

	from, err := queryDate(r, "startDate")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := queryDate(r, "endDate")
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	pm, err := store.AssetPeriodMetrics(r.Context(), h.DB, asset.ID, from, to)
	if err != nil {
		respondError(w, r, err, "computing asset metrics")
		return
	}
	jsonResponse(w, http.StatusOK, pm)
}

// UploadImage handles PUT /api/assets/{id}/image.
func (h *AssetsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	asset := h.loadAsset(w, r)
	if asset == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageSize)
	if err := r.ParseMultipartForm(maxImageSize); err != nil {
		jsonError(w, http.StatusBadRequest, "file too large or invalid multipart form")
		return
	}

	file, _, err := r.FormFile("image")
	if err != nil {
		jsonError(w, http.StatusBadRequest, "image file required")
		return
	}
	defer file.Close()

	p, err := photo.Process(file)
	if err != nil {
		respondError(w, r, err, "processing image")
		return
	}

	if err := store.SetAssetImage(r.Context(), h.DB, asset.ID, p.Full, p.Thumb, photo.MIME); err != nil {
		respondError(w, r, err, "saving image")
		return
	}

	slog.Info("asset image uploaded", "user", CurrentUser(r.Context()).Email, "asset", asset.Name, "bytes", len(p.Full))
	jsonMessage(w, "image uploaded")
}

// GetImage handles GET /api/assets/{id}/image. Pass thumb=1 for the thumbnail.
func (h *AssetsHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	asset := h.loadAsset(w, r)
	if asset == nil {
		return
	}

	thumb := r.URL.Query().Get("thumb") != ""
	data, mime, err := store.GetAssetImage(r.Context(), h.DB, asset.ID, thumb)
	if err != nil {
		respondError(w, r, err, "getting image")
		return
	}
	if data == nil {
		jsonError(w, http.StatusNotFound, "no image")
		return
	}

	w.Header().Set("Content-Type", mime)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
