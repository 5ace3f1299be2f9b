package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/store"
)

// BaseInput describes a base to create or the fields to change.
type BaseInput struct {
	Name     string `json:"name,omitempty"`
	Location string `json:"location,omitempty"`
	Type     string `json:"type,omitempty"`
	Status   string `json:"status,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

// AssetInput describes a new asset.
type AssetInput struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	SerialNumber   string `json:"serialNumber"`
	BaseID         int64  `json:"base"`
	Location       string `json:"location"`
	Quantity       int    `json:"quantity"`
	OpeningBalance *int   `json:"openingBalance,omitempty"`
}

// TransferInput describes a new transfer.
type TransferInput struct {
	AssetID    int64  `json:"asset"`
	FromBaseID int64  `json:"fromBase"`
	ToBaseID   int64  `json:"toBase"`
	Quantity   int    `json:"quantity"`
	Reason     string `json:"reason,omitempty"`
}

// AssignmentInput describes a new assignment.
type AssignmentInput struct {
	AssetID    int64  `json:"asset"`
	AssignedTo int64  `json:"assignedTo"`
	BaseID     int64  `json:"base"`
	Quantity   int    `json:"quantity"`
	Purpose    string `json:"purpose"`
}

func idPath(format string, ids ...any) string {
	return fmt.Sprintf(format, ids...)
}

// ListBases returns every base.
func (c *Client) ListBases(ctx context.Context) ([]model.Base, error) {
	var bases []model.Base
	return bases, c.do(ctx, http.MethodGet, "/api/bases", nil, nil, &bases)
}

// CreateBase creates a base.
func (c *Client) CreateBase(ctx context.Context, in BaseInput) (*model.Base, error) {
	var b model.Base
	if err := c.do(ctx, http.MethodPost, "/api/bases", nil, in, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBase changes the non-empty fields of a base. A commander without a
// base claims it this way.
func (c *Client) UpdateBase(ctx context.Context, id int64, in BaseInput) (*model.Base, error) {
	var b model.Base
	if err := c.do(ctx, http.MethodPut, idPath("/api/bases/%d", id), nil, in, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

// ListAssets returns the assets in the caller's scope matching query.
func (c *Client) ListAssets(ctx context.Context, query url.Values) ([]model.Asset, error) {
	var assets []model.Asset
	return assets, c.do(ctx, http.MethodGet, "/api/assets", query, nil, &assets)
}

// CreateAsset creates an asset.
func (c *Client) CreateAsset(ctx context.Context, in AssetInput) (*model.Asset, error) {
	var a model.Asset
	if err := c.do(ctx, http.MethodPost, "/api/assets", nil, in, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// GetAsset returns an asset.
func (c *Client) GetAsset(ctx context.Context, id int64) (*model.Asset, error) {
	var a model.Asset
	if err := c.do(ctx, http.MethodGet, idPath("/api/assets/%d", id), nil, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Movements returns the ledger movements of an asset.
func (c *Client) Movements(ctx context.Context, id int64) ([]model.Movement, error) {
	var ms []model.Movement
	return ms, c.do(ctx, http.MethodGet, idPath("/api/assets/%d/movements", id), nil, nil, &ms)
}

// CreateTransfer starts a pending transfer.
func (c *Client) CreateTransfer(ctx context.Context, in TransferInput) (*model.Transfer, error) {
	var t model.Transfer
	if err := c.do(ctx, http.MethodPost, "/api/transfers", nil, in, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// SetTransferStatus moves a transfer to status.
func (c *Client) SetTransferStatus(ctx context.Context, id int64, status string) (*model.Transfer, error) {
	var t model.Transfer
	err := c.do(ctx, http.MethodPatch, idPath("/api/transfers/%d/status", id), nil,
		map[string]string{"status": status}, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateAssignment issues assets to a person.
func (c *Client) CreateAssignment(ctx context.Context, in AssignmentInput) (*model.Assignment, error) {
	var s model.Assignment
	if err := c.do(ctx, http.MethodPost, "/api/assignments", nil, in, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ReturnAssignment marks an active assignment returned.
func (c *Client) ReturnAssignment(ctx context.Context, id int64) (*model.Assignment, error) {
	var s model.Assignment
	if err := c.do(ctx, http.MethodPatch, idPath("/api/assignments/%d/return", id), nil, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Dashboard returns the overview for query (startDate, endDate, base, type).
func (c *Client) Dashboard(ctx context.Context, query url.Values) (*store.DashboardOverview, error) {
	var o store.DashboardOverview
	if err := c.do(ctx, http.MethodGet, "/api/dashboard", query, nil, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// DashboardMetrics returns the period flow figures for query.
func (c *Client) DashboardMetrics(ctx context.Context, query url.Values) (*store.DashboardMetrics, error) {
	var m store.DashboardMetrics
	if err := c.do(ctx, http.MethodGet, "/api/dashboard/metrics", query, nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
