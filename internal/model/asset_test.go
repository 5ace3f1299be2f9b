package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestAssetApplyKeepsBalance(t *testing.T) {
	a := &Asset{OpeningBalance: 20, Quantity: 20}
	a.Recompute()
	if a.ClosingBalance != 20 {
		t.Fatalf("expected closing 20, got %d", a.ClosingBalance)
	}

	deltas := []int{-5, 10, 5, -3}
	sum := 0
	for _, d := range deltas {
		a.Apply(Movement{Quantity: d})
		sum += d
		if a.ClosingBalance != a.OpeningBalance+a.NetMovement {
			t.Fatalf("closing %d != opening %d + net %d", a.ClosingBalance, a.OpeningBalance, a.NetMovement)
		}
	}
	if a.NetMovement != sum {
		t.Errorf("expected net movement %d, got %d", sum, a.NetMovement)
	}
}

func TestComputePeriodMetrics(t *testing.T) {
	a := &Asset{OpeningBalance: 10, NetMovement: 2, ClosingBalance: 12}
	movements := []Movement{
		{Kind: MovementAssignment, Quantity: -5},
		{Kind: MovementReturn, Quantity: 5},
		{Kind: MovementTransfer, Quantity: 3},
		{Kind: MovementAdjustment, Quantity: -1},
	}

	pm := ComputePeriodMetrics(a, movements)
	if pm.TotalAssignments != 1 || pm.TotalReturns != 1 || pm.TotalTransfers != 1 || pm.TotalAdjustments != 1 {
		t.Errorf("unexpected counts: %+v", pm)
	}
	if pm.NetMovement != 2 {
		t.Errorf("expected net 2, got %d", pm.NetMovement)
	}
	if pm.OpeningBalance != 10 || pm.ClosingBalance != 12 {
		t.Errorf("unexpected balances: %+v", pm)
	}
}

func TestAssetTypeName(t *testing.T) {
	if got := AssetTypeName(AssetTypeAmmunition); got != "Ammunition" {
		t.Errorf("expected Ammunition, got %q", got)
	}
}

func TestTransferTransitions(t *testing.T) {
	statuses := []string{TransferPending, TransferInTransit, TransferCompleted, TransferCancelled}
	allowed := map[[2]string]bool{
		{TransferPending, TransferInTransit}:   true,
		{TransferPending, TransferCancelled}:   true,
		{TransferInTransit, TransferCompleted}: true,
		{TransferInTransit, TransferCancelled}: true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]string{from, to}]
			if got := CanTransitionTransfer(from, to); got != want {
				t.Errorf("CanTransitionTransfer(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestAssignmentTransitions(t *testing.T) {
	for _, to := range []string{AssignmentReturned, AssignmentLost, AssignmentDamaged} {
		if !CanTransitionAssignment(AssignmentActive, to) {
			t.Errorf("expected active -> %s to be allowed", to)
		}
		if CanTransitionAssignment(to, AssignmentActive) {
			t.Errorf("expected %s to be terminal", to)
		}
	}
	if CanTransitionAssignment(AssignmentReturned, AssignmentReturned) {
		t.Error("expected repeated return to be rejected")
	}
	if CanTransitionAssignment(AssignmentActive, AssignmentExpended) {
		t.Error("expected active -> expended to be rejected")
	}
}

func TestPurchaseTotal(t *testing.T) {
	p := &Purchase{Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")}
	if got := p.Total(); !got.Equal(decimal.RequireFromString("59.97")) {
		t.Errorf("expected 59.97, got %s", got)
	}
	if !CanTransitionPurchase(PurchasePending, PurchaseCompleted) {
		t.Error("expected pending -> completed")
	}
	if CanTransitionPurchase(PurchaseCompleted, PurchaseCancelled) {
		t.Error("expected completed to be terminal")
	}
}
