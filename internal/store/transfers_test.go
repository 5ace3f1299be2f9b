package store

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/erazemk/arsenal/internal/db"
	"github.com/erazemk/arsenal/internal/model"
)

func TestTransferLifecycle(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alpha := newBase(t, database, "Alpha")
	bravo := newBase(t, database, "Bravo")
	admin := newUser(t, database, "admin@example.com", model.RoleAdmin, nil)
	asset := newAsset(t, database, alpha.ID, 10)

	tr, err := CreateTransfer(ctx, database, &model.Transfer{
		AssetID: asset.ID, FromBaseID: alpha.ID, ToBaseID: bravo.ID, Quantity: 4, InitiatedBy: admin.ID,
	})
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if tr.Status != model.TransferPending {
		t.Errorf("expected pending, got %q", tr.Status)
	}
	if !regexp.MustCompile(`^TRF-\d+-[0-9A-F]{6}$`).MatchString(tr.TransferNumber) {
		t.Errorf("unexpected transfer number %q", tr.TransferNumber)
	}

	// Creation does not touch the ledger.
	if got := mustAsset(t, database, asset.ID); got.NetMovement != 0 || got.Quantity != 10 {
		t.Errorf("expected untouched asset, got net %d quantity %d", got.NetMovement, got.Quantity)
	}

	tr, err = SetTransferStatus(ctx, database, tr.ID, model.TransferInTransit, admin.ID)
	if err != nil {
		t.Fatalf("in_transit: %v", err)
	}
	if tr.InTransitAt == nil {
		t.Error("expected inTransitAt to be set")
	}

	tr, err = SetTransferStatus(ctx, database, tr.ID, model.TransferCompleted, admin.ID)
	if err != nil {
		t.Fatalf("completed: %v", err)
	}
	if tr.CompletedAt == nil || tr.ApprovedBy == nil || *tr.ApprovedBy != admin.ID {
		t.Errorf("expected completion stamps, got %+v", tr)
	}

	got := mustAsset(t, database, asset.ID)
	if got.BaseID != bravo.ID {
		t.Errorf("expected asset at Bravo, got base %d", got.BaseID)
	}
	if got.NetMovement != 4 || got.ClosingBalance != 14 {
		t.Errorf("expected net 4 closing 14, got net %d closing %d", got.NetMovement, got.ClosingBalance)
	}
	checkLedger(t, database, asset.ID)

	movements, _ := ListMovements(ctx, database, asset.ID, nil, nil)
	if len(movements) != 1 {
		t.Fatalf("expected 1 movement, got %d", len(movements))
	}
	m := movements[0]
	if m.Kind != model.MovementTransfer || m.RefModel != model.RefTransfer || m.RefID == nil || *m.RefID != tr.ID {
		t.Errorf("unexpected movement %+v", m)
	}
	if m.Notes != "Transfer completed from Alpha to Bravo" {
		t.Errorf("unexpected movement note %q", m.Notes)
	}

	if _, err := SetTransferStatus(ctx, database, tr.ID, model.TransferCancelled, admin.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected completed to be terminal, got %v", err)
	}
}

func TestTransferTransitions(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alpha := newBase(t, database, "Alpha")
	bravo := newBase(t, database, "Bravo")
	asset := newAsset(t, database, alpha.ID, 10)

	tr, _ := CreateTransfer(ctx, database, &model.Transfer{AssetID: asset.ID, FromBaseID: alpha.ID, ToBaseID: bravo.ID, Quantity: 1})

	if _, err := SetTransferStatus(ctx, database, tr.ID, model.TransferCompleted, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected pending -> completed to be rejected, got %v", err)
	}
	if _, err := SetTransferStatus(ctx, database, tr.ID, "shipped", 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected unknown status to be rejected, got %v", err)
	}
	if _, err := SetTransferStatus(ctx, database, 999, model.TransferInTransit, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	tr, err := SetTransferStatus(ctx, database, tr.ID, model.TransferCancelled, 0)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if tr.CancelledAt == nil {
		t.Error("expected cancelledAt to be set")
	}

	// Cancelling appends a restoring movement even though nothing was taken.
	got := mustAsset(t, database, asset.ID)
	if got.NetMovement != 1 {
		t.Errorf("expected net movement 1 after cancel, got %d", got.NetMovement)
	}
	if got.BaseID != alpha.ID {
		t.Errorf("expected asset to stay at Alpha, got %d", got.BaseID)
	}
	checkLedger(t, database, asset.ID)
}

func TestCreateTransferValidation(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alpha := newBase(t, database, "Alpha")
	bravo := newBase(t, database, "Bravo")
	asset := newAsset(t, database, alpha.ID, 5)

	tests := []struct {
		name string
		tr   model.Transfer
		want error
	}{
		{"same base", model.Transfer{AssetID: asset.ID, FromBaseID: alpha.ID, ToBaseID: alpha.ID, Quantity: 1}, ErrValidation},
		{"zero quantity", model.Transfer{AssetID: asset.ID, FromBaseID: alpha.ID, ToBaseID: bravo.ID}, ErrValidation},
		{"wrong source", model.Transfer{AssetID: asset.ID, FromBaseID: bravo.ID, ToBaseID: alpha.ID, Quantity: 1}, ErrValidation},
		{"too many", model.Transfer{AssetID: asset.ID, FromBaseID: alpha.ID, ToBaseID: bravo.ID, Quantity: 6}, ErrInsufficientQuantity},
		{"missing asset", model.Transfer{AssetID: 999, FromBaseID: alpha.ID, ToBaseID: bravo.ID, Quantity: 1}, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := tt.tr
			if _, err := CreateTransfer(ctx, database, &tr); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

// Quantity is checked at creation but not reserved, so two transfers can
// together exceed what the source holds.
func TestTransferDoubleBooking(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alpha := newBase(t, database, "Alpha")
	bravo := newBase(t, database, "Bravo")
	asset := newAsset(t, database, alpha.ID, 5)

	for i := range 2 {
		if _, err := CreateTransfer(ctx, database, &model.Transfer{
			AssetID: asset.ID, FromBaseID: alpha.ID, ToBaseID: bravo.ID, Quantity: 5,
		}); err != nil {
			t.Fatalf("transfer %d: %v", i+1, err)
		}
	}

	pending, err := ListTransfers(ctx, database, TransferFilter{Scope: model.BaseScope{All: true}, Status: model.TransferPending})
	if err != nil {
		t.Fatalf("ListTransfers: %v", err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending transfers, got %d", len(pending))
	}
}

func TestDeleteTransfer(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alpha := newBase(t, database, "Alpha")
	bravo := newBase(t, database, "Bravo")
	asset := newAsset(t, database, alpha.ID, 5)

	pending, _ := CreateTransfer(ctx, database, &model.Transfer{AssetID: asset.ID, FromBaseID: alpha.ID, ToBaseID: bravo.ID, Quantity: 2})
	moving, _ := CreateTransfer(ctx, database, &model.Transfer{AssetID: asset.ID, FromBaseID: alpha.ID, ToBaseID: bravo.ID, Quantity: 1})
	if _, err := SetTransferStatus(ctx, database, moving.ID, model.TransferInTransit, 0); err != nil {
		t.Fatal(err)
	}

	if err := DeleteTransfer(ctx, database, moving.ID, 0); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected in-transit delete to be rejected, got %v", err)
	}

	if err := DeleteTransfer(ctx, database, pending.ID, 0); err != nil {
		t.Fatalf("DeleteTransfer: %v", err)
	}
	if got, _ := GetTransfer(ctx, database, pending.ID); got != nil {
		t.Error("expected transfer to be gone")
	}

	// Deleting a pending transfer restores a quantity that was never taken.
	got := mustAsset(t, database, asset.ID)
	if got.NetMovement != 2 {
		t.Errorf("expected net movement 2 after delete, got %d", got.NetMovement)
	}
	checkLedger(t, database, asset.ID)

	if err := DeleteTransfer(ctx, database, pending.ID, 0); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListTransfersScope(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alpha := newBase(t, database, "Alpha")
	bravo := newBase(t, database, "Bravo")
	charlie := newBase(t, database, "Charlie")
	a1 := newAsset(t, database, alpha.ID, 5)
	a2 := newAsset(t, database, bravo.ID, 5)

	CreateTransfer(ctx, database, &model.Transfer{AssetID: a1.ID, FromBaseID: alpha.ID, ToBaseID: charlie.ID, Quantity: 1})
	CreateTransfer(ctx, database, &model.Transfer{AssetID: a2.ID, FromBaseID: bravo.ID, ToBaseID: alpha.ID, Quantity: 1})

	tests := []struct {
		name  string
		scope model.BaseScope
		want  int
	}{
		{"all", model.BaseScope{All: true}, 2},
		{"alpha either side", model.BaseScope{Bases: []int64{alpha.ID}}, 2},
		{"charlie destination", model.BaseScope{Bases: []int64{charlie.ID}}, 1},
		{"nothing", model.BaseScope{}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ListTransfers(ctx, database, TransferFilter{Scope: tt.scope})
			if err != nil {
				t.Fatalf("ListTransfers: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d transfers, got %d", tt.want, len(got))
			}
		})
	}
}
