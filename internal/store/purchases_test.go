package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/arsenal/internal/db"
	"github.com/erazemk/arsenal/internal/model"
)

func TestPurchaseCompletionAddsStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	base := newBase(t, database, "Alpha")
	admin := newUser(t, database, "admin@example.com", model.RoleAdmin, nil)
	asset := newAsset(t, database, base.ID, 2)

	p, err := CreatePurchase(ctx, database, &model.Purchase{
		AssetID: asset.ID, BaseID: base.ID, Quantity: 3,
		UnitPrice: decimal.RequireFromString("19.99"), TotalAmount: decimal.NewFromInt(1),
		Supplier: "Acme", PurchaseOrderNumber: "PO-1", CreatedBy: admin.ID,
	})
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	if !p.TotalAmount.Equal(decimal.RequireFromString("59.97")) {
		t.Errorf("expected total 59.97, got %s", p.TotalAmount)
	}
	if p.Status != model.PurchasePending {
		t.Errorf("expected pending, got %q", p.Status)
	}

	p, err = SetPurchaseStatus(ctx, database, p.ID, model.PurchaseCompleted, admin.ID)
	if err != nil {
		t.Fatalf("SetPurchaseStatus: %v", err)
	}

	a := mustAsset(t, database, asset.ID)
	if a.Quantity != 5 || a.NetMovement != 3 {
		t.Errorf("expected quantity 5 net 3, got quantity %d net %d", a.Quantity, a.NetMovement)
	}
	checkLedger(t, database, asset.ID)

	movements, _ := ListMovements(ctx, database, asset.ID, nil, nil)
	if len(movements) != 1 || movements[0].RefModel != model.RefPurchase || *movements[0].RefID != p.ID {
		t.Errorf("unexpected movements %+v", movements)
	}

	if _, err := SetPurchaseStatus(ctx, database, p.ID, model.PurchaseCancelled, admin.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected completed to be terminal, got %v", err)
	}
}

func TestPurchaseCancelLeavesStock(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	base := newBase(t, database, "Alpha")
	asset := newAsset(t, database, base.ID, 2)

	p, _ := CreatePurchase(ctx, database, &model.Purchase{
		AssetID: asset.ID, BaseID: base.ID, Quantity: 3, UnitPrice: decimal.NewFromInt(5),
		Supplier: "Acme", PurchaseOrderNumber: "PO-1",
	})
	if _, err := SetPurchaseStatus(ctx, database, p.ID, model.PurchaseCancelled, 0); err != nil {
		t.Fatalf("SetPurchaseStatus: %v", err)
	}
	if a := mustAsset(t, database, asset.ID); a.Quantity != 2 || a.NetMovement != 0 {
		t.Errorf("expected untouched asset, got quantity %d net %d", a.Quantity, a.NetMovement)
	}
}

func TestCreatePurchaseValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	base := newBase(t, database, "Alpha")
	asset := newAsset(t, database, base.ID, 1)

	valid := func() *model.Purchase {
		return &model.Purchase{
			AssetID: asset.ID, BaseID: base.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(1),
			Supplier: "Acme", PurchaseOrderNumber: "PO-1",
		}
	}
	if _, err := CreatePurchase(ctx, database, valid()); err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}

	if _, err := CreatePurchase(ctx, database, valid()); !errors.Is(err, ErrConflict) {
		t.Errorf("expected ErrConflict for duplicate order number, got %v", err)
	}

	neg := valid()
	neg.PurchaseOrderNumber = "PO-2"
	neg.UnitPrice = decimal.NewFromInt(-1)
	if _, err := CreatePurchase(ctx, database, neg); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for negative price, got %v", err)
	}

	zero := valid()
	zero.PurchaseOrderNumber = "PO-3"
	zero.Quantity = 0
	if _, err := CreatePurchase(ctx, database, zero); !errors.Is(err, ErrValidation) {
		t.Errorf("expected ErrValidation for zero quantity, got %v", err)
	}

	list, _ := ListPurchases(ctx, database, PurchaseFilter{Scope: model.BaseScope{All: true}})
	if len(list) != 1 {
		t.Errorf("expected 1 purchase, got %d", len(list))
	}
}
