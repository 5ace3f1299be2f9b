package store

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/arsenal/internal/db"
	"github.com/erazemk/arsenal/internal/model"
)

func TestDashboardPeriod(t *testing.T) {
	start := time.Date(2024, 3, 17, 15, 4, 5, 0, time.UTC)
	end := time.Date(2024, 4, 2, 8, 0, 0, 0, time.UTC)

	from, to := DashboardPeriod(&start, &end)
	if want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC); !from.Equal(want) {
		t.Errorf("expected period start %v, got %v", want, from)
	}
	if want := time.Date(2024, 4, 2, 23, 59, 59, 999999999, time.UTC); !to.Equal(want) {
		t.Errorf("expected period end %v, got %v", want, to)
	}

	from, to = DashboardPeriod(nil, nil)
	n := time.Now().UTC()
	if from.Day() != 1 || from.Month() != n.Month() {
		t.Errorf("expected the first of the current month, got %v", from)
	}
	if n.Sub(to) > time.Minute {
		t.Errorf("expected period end near now, got %v", to)
	}
}

func TestDashboardFigures(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	alpha := newBase(t, database, "Alpha")
	bravo := newBase(t, database, "Bravo")
	admin := newUser(t, database, "admin@example.com", model.RoleAdmin, nil)

	rifles := newAsset(t, database, alpha.ID, 10)
	newAsset(t, database, alpha.ID, 3)
	trucks := newAsset(t, database, bravo.ID, 2)

	trucks.Status = model.AssetStatusMaintenance
	if err := UpdateAsset(ctx, database, trucks); err != nil {
		t.Fatal(err)
	}

	if _, err := CreateTransfer(ctx, database, &model.Transfer{
		AssetID: rifles.ID, FromBaseID: alpha.ID, ToBaseID: bravo.ID, Quantity: 2, InitiatedBy: admin.ID,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := CreateAssignment(ctx, database, &model.Assignment{
		AssetID: rifles.ID, AssignedTo: admin.ID, AssignedBy: admin.ID, BaseID: alpha.ID, Quantity: 1, Purpose: "Drill",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := CreatePurchase(ctx, database, &model.Purchase{
		AssetID: trucks.ID, BaseID: bravo.ID, Quantity: 1, UnitPrice: decimal.NewFromInt(100),
		Supplier: "Acme", PurchaseOrderNumber: "PO-1", CreatedBy: admin.ID,
	}); err != nil {
		t.Fatal(err)
	}

	all := model.BaseScope{All: true}
	alphaOnly := model.BaseScope{Bases: []int64{alpha.ID}}

	t.Run("stats", func(t *testing.T) {
		stats, err := GetDashboardStats(ctx, database, all)
		if err != nil {
			t.Fatalf("GetDashboardStats: %v", err)
		}
		want := DashboardStats{TotalAssets: 3, ActiveAssignments: 1, PendingTransfers: 1, ScheduledMaintenance: 1}
		if *stats != want {
			t.Errorf("expected %+v, got %+v", want, *stats)
		}

		stats, _ = GetDashboardStats(ctx, database, alphaOnly)
		want = DashboardStats{TotalAssets: 2, ActiveAssignments: 1, PendingTransfers: 1}
		if *stats != want {
			t.Errorf("expected scoped %+v, got %+v", want, *stats)
		}
	})

	t.Run("activities", func(t *testing.T) {
		activities, err := RecentActivities(ctx, database, all)
		if err != nil {
			t.Fatalf("RecentActivities: %v", err)
		}
		if len(activities) != 2 {
			t.Fatalf("expected 2 activities, got %d", len(activities))
		}
		for i := 1; i < len(activities); i++ {
			if activities[i].Timestamp.After(activities[i-1].Timestamp) {
				t.Errorf("activities not sorted newest first: %+v", activities)
			}
		}
	})

	t.Run("metrics", func(t *testing.T) {
		start, end := DashboardPeriod(nil, nil)
		f := DashboardFilter{Scope: all, Start: start, End: end, Breakdown: true}

		m, err := GetDashboardMetrics(ctx, database, f)
		if err != nil {
			t.Fatalf("GetDashboardMetrics: %v", err)
		}
		if m.OpeningBalance != 0 || m.ClosingBalance != 3 {
			t.Errorf("expected opening 0 closing 3, got %d and %d", m.OpeningBalance, m.ClosingBalance)
		}
		if m.Purchases != 1 || m.TransfersIn != 1 || m.TransfersOut != 1 {
			t.Errorf("unexpected flows %+v", m)
		}
		if m.NetMovement != m.Purchases+m.TransfersIn-m.TransfersOut {
			t.Errorf("expected flow-based net movement, got %d", m.NetMovement)
		}
		if len(m.BaseBreakdown) != 2 || m.BaseBreakdown[0].BaseName != "Alpha" || m.BaseBreakdown[0].Total != 2 {
			t.Errorf("unexpected breakdown %+v", m.BaseBreakdown)
		}

		f.Scope = alphaOnly
		f.Breakdown = false
		m, _ = GetDashboardMetrics(ctx, database, f)
		if m.TransfersIn != 0 || m.TransfersOut != 1 || m.Purchases != 0 {
			t.Errorf("unexpected scoped flows %+v", m)
		}
		if m.BaseBreakdown != nil {
			t.Error("expected no breakdown without asking")
		}

		f.Scope = all
		f.Type = model.AssetTypeVehicle
		m, _ = GetDashboardMetrics(ctx, database, f)
		if m.ClosingBalance != 0 {
			t.Errorf("expected no vehicles, got %d", m.ClosingBalance)
		}
	})

	t.Run("overview", func(t *testing.T) {
		start, end := DashboardPeriod(nil, nil)
		f := DashboardFilter{Scope: all, Start: start, End: end, Breakdown: true}

		first, err := GetDashboardOverview(ctx, database, f)
		if err != nil {
			t.Fatalf("GetDashboardOverview: %v", err)
		}
		if first.Counts != (DashboardCounts{Assets: 3, Transfers: 1, Assignments: 1, Bases: 2}) {
			t.Errorf("unexpected counts %+v", first.Counts)
		}
		if first.Metrics.NetMovement != first.Metrics.ClosingBalance-first.Metrics.OpeningBalance {
			t.Errorf("expected balance-based net movement, got %+v", first.Metrics)
		}
		if len(first.RecentActivities.Assets) != 3 || len(first.Distributions.Base) != 2 {
			t.Errorf("unexpected overview %+v", first)
		}
		wantStatus := []Bucket{{Key: "available", Count: 2}, {Key: "maintenance", Count: 1}}
		if !reflect.DeepEqual(first.Distributions.Status, wantStatus) {
			t.Errorf("expected status distribution %v, got %v", wantStatus, first.Distributions.Status)
		}

		// Aggregation is read only.
		second, err := GetDashboardOverview(ctx, database, f)
		if err != nil {
			t.Fatalf("GetDashboardOverview: %v", err)
		}
		if first.Counts != second.Counts || first.Metrics != second.Metrics {
			t.Errorf("expected identical results, got %+v and %+v", first, second)
		}
		checkLedger(t, database, rifles.ID)
	})
}
