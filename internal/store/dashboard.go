package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erazemk/arsenal/internal/model"
)

// DashboardPeriod returns the reporting period for the given dates. It starts
// on the first day of the month containing start and ends at the last instant
// of end's day. Missing dates default to the current month and now.
func DashboardPeriod(start, end *time.Time) (time.Time, time.Time) {
	ts := now()

	s := ts
	if start != nil {
		s = start.UTC()
	}
	periodStart := time.Date(s.Year(), s.Month(), 1, 0, 0, 0, 0, time.UTC)

	periodEnd := ts
	if end != nil {
		e := end.UTC()
		periodEnd = time.Date(e.Year(), e.Month(), e.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), time.UTC)
	}
	return periodStart, periodEnd
}

// DashboardFilter selects the records a dashboard aggregates.
type DashboardFilter struct {
	Scope model.BaseScope
	// Type limits figures to one asset type.
	Type string
	// Start and End bound the reporting period.
	Start time.Time
	End   time.Time
	// CreatedFrom and CreatedTo restrict record counts by creation time when
	// both are set.
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	// Breakdown adds per-base figures.
	Breakdown bool
}

// assetWhere filters assets aliased as a by scope and type.
func (f DashboardFilter) assetWhere(baseColumn string) (string, []any) {
	where, args := scopeClause(baseColumn, f.Scope)
	if f.Type != "" {
		where += ` AND a.type = ?`
		args = append(args, f.Type)
	}
	return where, args
}

func (f DashboardFilter) createdWhere(column string) (string, []any) {
	if f.CreatedFrom == nil || f.CreatedTo == nil {
		return "", nil
	}
	return ` AND ` + column + ` >= ? AND ` + column + ` <= ?`, []any{f.CreatedFrom.UTC(), f.CreatedTo.UTC()}
}

// transferWhere filters transfers aliased as t joined to their asset a.
func (f DashboardFilter) transferWhere() (string, []any) {
	var where string
	var args []any
	if !f.Scope.All {
		in, inArgs := inClause(f.Scope.Bases)
		where = ` AND (t.from_base_id IN ` + in + ` OR t.to_base_id IN ` + in + `)`
		args = append(append(args, inArgs...), inArgs...)
	}
	if f.Type != "" {
		where += ` AND a.type = ?`
		args = append(args, f.Type)
	}
	return where, args
}

func count(ctx context.Context, db *sql.DB, query string, args ...any) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting: %w", err)
	}
	return n, nil
}

// countInto runs a count query in an errgroup and stores the result in dst.
func countInto(g *errgroup.Group, ctx context.Context, db *sql.DB, dst *int, query string, args ...any) {
	g.Go(func() error {
		n, err := count(ctx, db, query, args...)
		if err != nil {
			return err
		}
		*dst = n
		return nil
	})
}

// DashboardStats holds headline totals.
type DashboardStats struct {
	TotalAssets          int `json:"totalAssets"`
	ActiveAssignments    int `json:"activeAssignments"`
	PendingTransfers     int `json:"pendingTransfers"`
	ScheduledMaintenance int `json:"scheduledMaintenance"`
}

// GetDashboardStats counts assets, active assignments, pending transfers and
// assets under maintenance in scope.
func GetDashboardStats(ctx context.Context, db *sql.DB, scope model.BaseScope) (*DashboardStats, error) {
	f := DashboardFilter{Scope: scope}
	assetWhere, assetArgs := f.assetWhere("a.base_id")
	assignmentWhere, assignmentArgs := scopeClause("s.base_id", scope)
	transferWhere, transferArgs := f.transferWhere()

	var stats DashboardStats
	g, gctx := errgroup.WithContext(ctx)
	countInto(g, gctx, db, &stats.TotalAssets,
		`SELECT COUNT(*) FROM assets a WHERE 1=1`+assetWhere, assetArgs...)
	countInto(g, gctx, db, &stats.ScheduledMaintenance,
		`SELECT COUNT(*) FROM assets a WHERE a.status = 'maintenance'`+assetWhere, assetArgs...)
	countInto(g, gctx, db, &stats.ActiveAssignments,
		`SELECT COUNT(*) FROM assignments s WHERE s.status = 'active'`+assignmentWhere, assignmentArgs...)
	countInto(g, gctx, db, &stats.PendingTransfers,
		`SELECT COUNT(*) FROM transfers t JOIN assets a ON a.id = t.asset_id
		 WHERE t.status = 'pending'`+transferWhere, transferArgs...)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("getting dashboard stats: %w", err)
	}
	return &stats, nil
}

// Activity is one entry of the recent activity feed.
type Activity struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Timestamp time.Time `json:"timestamp"`
	Link      string    `json:"link"`
}

// RecentActivities returns the ten most recent assignment and transfer events
// in scope, newest first.
func RecentActivities(ctx context.Context, db *sql.DB, scope model.BaseScope) ([]Activity, error) {
	f := DashboardFilter{Scope: scope}

	var assignments []model.Assignment
	var transfers []model.Transfer
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		assignments, err = recentAssignments(gctx, db, f, 5)
		return err
	})
	g.Go(func() error {
		var err error
		transfers, err = recentTransfers(gctx, db, f, 5)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	activities := make([]Activity, 0, len(assignments)+len(transfers))
	for _, s := range assignments {
		activities = append(activities, Activity{
			ID:        s.ID,
			Type:      "assignment",
			Title:     fmt.Sprintf("Asset %s assigned to %s", s.AssetName, s.AssignedToName),
			Timestamp: s.CreatedAt,
			Link:      fmt.Sprintf("/assignments/%d", s.ID),
		})
	}
	for _, t := range transfers {
		activities = append(activities, Activity{
			ID:        t.ID,
			Type:      "transfer",
			Title:     fmt.Sprintf("Asset %s transferred from %s to %s", t.AssetName, t.FromBaseName, t.ToBaseName),
			Timestamp: t.CreatedAt,
			Link:      fmt.Sprintf("/transfers/%d", t.ID),
		})
	}

	sort.SliceStable(activities, func(i, j int) bool {
		return activities[i].Timestamp.After(activities[j].Timestamp)
	})
	if len(activities) > 10 {
		activities = activities[:10]
	}
	return activities, nil
}

// periodFigures are the asset flow figures shared by the dashboard views.
type periodFigures struct {
	opening, closing          int
	purchases                 int
	transfersIn, transfersOut int
	assigned, expended        int
}

func getPeriodFigures(ctx context.Context, db *sql.DB, f DashboardFilter) (*periodFigures, error) {
	assetWhere, assetArgs := f.assetWhere("a.base_id")
	createdWhere, createdArgs := f.createdWhere("a.created_at")
	recordArgs := append(append([]any{}, assetArgs...), createdArgs...)

	purchaseWhere, purchaseArgs := f.assetWhere("p.base_id")
	inWhere, inArgs := f.assetWhere("t.to_base_id")
	outWhere, outArgs := f.assetWhere("t.from_base_id")

	var pf periodFigures
	g, gctx := errgroup.WithContext(ctx)
	countInto(g, gctx, db, &pf.opening,
		`SELECT COUNT(*) FROM assets a WHERE a.created_at < ?`+assetWhere,
		append([]any{f.Start}, assetArgs...)...)
	countInto(g, gctx, db, &pf.closing,
		`SELECT COUNT(*) FROM assets a WHERE a.created_at <= ?`+assetWhere,
		append([]any{f.End}, assetArgs...)...)
	countInto(g, gctx, db, &pf.assigned,
		`SELECT COUNT(*) FROM assets a WHERE a.status = 'assigned'`+assetWhere+createdWhere, recordArgs...)
	countInto(g, gctx, db, &pf.expended,
		`SELECT COUNT(*) FROM assets a WHERE a.status = 'expended'`+assetWhere+createdWhere, recordArgs...)
	countInto(g, gctx, db, &pf.purchases,
		`SELECT COUNT(*) FROM purchases p JOIN assets a ON a.id = p.asset_id
		 WHERE p.purchase_date >= ? AND p.purchase_date <= ?`+purchaseWhere,
		append([]any{f.Start, f.End}, purchaseArgs...)...)
	countInto(g, gctx, db, &pf.transfersIn,
		`SELECT COUNT(*) FROM transfers t JOIN assets a ON a.id = t.asset_id
		 WHERE t.transfer_date >= ? AND t.transfer_date <= ?`+inWhere,
		append([]any{f.Start, f.End}, inArgs...)...)
	countInto(g, gctx, db, &pf.transfersOut,
		`SELECT COUNT(*) FROM transfers t JOIN assets a ON a.id = t.asset_id
		 WHERE t.transfer_date >= ? AND t.transfer_date <= ?`+outWhere,
		append([]any{f.Start, f.End}, outArgs...)...)
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("getting period figures: %w", err)
	}
	return &pf, nil
}

// BaseBreakdown counts the assets of one base.
type BaseBreakdown struct {
	BaseID   int64  `json:"id"`
	BaseName string `json:"baseName"`
	Total    int    `json:"total"`
	Assigned int    `json:"assigned"`
	Expended int    `json:"expended"`
}

func baseBreakdown(ctx context.Context, db *sql.DB, f DashboardFilter) ([]BaseBreakdown, error) {
	where, args := f.assetWhere("a.base_id")
	created, createdArgs := f.createdWhere("a.created_at")
	args = append(args, createdArgs...)

	rows, err := db.QueryContext(ctx,
		`SELECT a.base_id, b.name, COUNT(*),
		        COALESCE(SUM(a.status = 'assigned'), 0), COALESCE(SUM(a.status = 'expended'), 0)
		 FROM assets a JOIN bases b ON b.id = a.base_id
		 WHERE 1=1`+where+created+`
		 GROUP BY a.base_id, b.name ORDER BY b.name`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("breaking down assets by base: %w", err)
	}
	defer rows.Close()

	out := []BaseBreakdown{}
	for rows.Next() {
		var b BaseBreakdown
		if err := rows.Scan(&b.BaseID, &b.BaseName, &b.Total, &b.Assigned, &b.Expended); err != nil {
			return nil, fmt.Errorf("scanning base breakdown: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DashboardMetrics are the period flow figures. The net movement is
// purchases plus incoming minus outgoing transfers.
type DashboardMetrics struct {
	OpeningBalance int             `json:"openingBalance"`
	ClosingBalance int             `json:"closingBalance"`
	NetMovement    int             `json:"netMovement"`
	AssignedAssets int             `json:"assignedAssets"`
	ExpendedAssets int             `json:"expendedAssets"`
	Purchases      int             `json:"purchases"`
	TransfersIn    int             `json:"transfersIn"`
	TransfersOut   int             `json:"transfersOut"`
	BaseBreakdown  []BaseBreakdown `json:"baseBreakdown,omitempty"`
}

// GetDashboardMetrics computes the period flow figures for a filter.
func GetDashboardMetrics(ctx context.Context, db *sql.DB, f DashboardFilter) (*DashboardMetrics, error) {
	pf, err := getPeriodFigures(ctx, db, f)
	if err != nil {
		return nil, err
	}

	m := &DashboardMetrics{
		OpeningBalance: pf.opening,
		ClosingBalance: pf.closing,
		NetMovement:    pf.purchases + pf.transfersIn - pf.transfersOut,
		AssignedAssets: pf.assigned,
		ExpendedAssets: pf.expended,
		Purchases:      pf.purchases,
		TransfersIn:    pf.transfersIn,
		TransfersOut:   pf.transfersOut,
	}
	if f.Breakdown {
		if m.BaseBreakdown, err = baseBreakdown(ctx, db, f); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// DashboardCounts are record totals.
type DashboardCounts struct {
	Assets      int `json:"assets"`
	Transfers   int `json:"transfers"`
	Assignments int `json:"assignments"`
	Bases       int `json:"bases"`
}

// OverviewMetrics are the period figures of the overview. The net movement is
// the closing minus the opening balance.
type OverviewMetrics struct {
	OpeningBalance int `json:"openingBalance"`
	ClosingBalance int `json:"closingBalance"`
	NetMovement    int `json:"netMovement"`
	Purchases      int `json:"purchases"`
	TransfersIn    int `json:"transfersIn"`
	TransfersOut   int `json:"transfersOut"`
	Assigned       int `json:"assigned"`
	Expended       int `json:"expended"`
}

// RecentRecords are the latest records of each kind.
type RecentRecords struct {
	Assets      []model.Asset      `json:"assets"`
	Transfers   []model.Transfer   `json:"transfers"`
	Assignments []model.Assignment `json:"assignments"`
}

// Bucket is one group of a distribution.
type Bucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Distributions group assets by base, type and status.
type Distributions struct {
	Base   []BaseBreakdown `json:"base"`
	Type   []Bucket        `json:"type"`
	Status []Bucket        `json:"status"`
}

// DashboardOverview is the combined dashboard document.
type DashboardOverview struct {
	Counts           DashboardCounts `json:"counts"`
	Metrics          OverviewMetrics `json:"metrics"`
	RecentActivities RecentRecords   `json:"recentActivities"`
	Distributions    Distributions   `json:"distributions"`
}

// GetDashboardOverview assembles the overview for a filter. The base
// distribution is only filled when the filter asks for a breakdown.
func GetDashboardOverview(ctx context.Context, db *sql.DB, f DashboardFilter) (*DashboardOverview, error) {
	o := &DashboardOverview{
		Distributions: Distributions{Base: []BaseBreakdown{}},
	}

	assetWhere, assetArgs := f.assetWhere("a.base_id")
	created, createdArgs := f.createdWhere("a.created_at")
	assetArgs = append(assetArgs, createdArgs...)

	transferWhere, transferArgs := f.transferWhere()
	transferCreated, transferCreatedArgs := f.createdWhere("t.created_at")
	transferArgs = append(transferArgs, transferCreatedArgs...)

	assignmentWhere, assignmentArgs := f.assetWhere("s.base_id")
	assignmentCreated, assignmentCreatedArgs := f.createdWhere("s.created_at")
	assignmentArgs = append(assignmentArgs, assignmentCreatedArgs...)

	var pf *periodFigures
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pf, err = getPeriodFigures(gctx, db, f)
		return err
	})
	countInto(g, gctx, db, &o.Counts.Assets,
		`SELECT COUNT(*) FROM assets a WHERE 1=1`+assetWhere+created, assetArgs...)
	countInto(g, gctx, db, &o.Counts.Transfers,
		`SELECT COUNT(*) FROM transfers t JOIN assets a ON a.id = t.asset_id WHERE 1=1`+transferWhere+transferCreated,
		transferArgs...)
	countInto(g, gctx, db, &o.Counts.Assignments,
		`SELECT COUNT(*) FROM assignments s JOIN assets a ON a.id = s.asset_id WHERE 1=1`+assignmentWhere+assignmentCreated,
		assignmentArgs...)
	countInto(g, gctx, db, &o.Counts.Bases, `SELECT COUNT(*) FROM bases`)
	g.Go(func() error {
		var err error
		o.RecentActivities.Assets, err = recentAssets(gctx, db, f, 5)
		return err
	})
	g.Go(func() error {
		var err error
		o.RecentActivities.Transfers, err = recentTransfers(gctx, db, f, 5)
		return err
	})
	g.Go(func() error {
		var err error
		o.RecentActivities.Assignments, err = recentAssignments(gctx, db, f, 5)
		return err
	})
	g.Go(func() error {
		var err error
		o.Distributions.Type, err = distribution(gctx, db, "a.type", f)
		return err
	})
	g.Go(func() error {
		var err error
		o.Distributions.Status, err = distribution(gctx, db, "a.status", f)
		return err
	})
	if f.Breakdown {
		g.Go(func() error {
			var err error
			o.Distributions.Base, err = baseBreakdown(gctx, db, f)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("getting dashboard overview: %w", err)
	}

	o.Metrics = OverviewMetrics{
		OpeningBalance: pf.opening,
		ClosingBalance: pf.closing,
		NetMovement:    pf.closing - pf.opening,
		Purchases:      pf.purchases,
		TransfersIn:    pf.transfersIn,
		TransfersOut:   pf.transfersOut,
		Assigned:       pf.assigned,
		Expended:       pf.expended,
	}
	return o, nil
}

func distribution(ctx context.Context, db *sql.DB, column string, f DashboardFilter) ([]Bucket, error) {
	where, args := f.assetWhere("a.base_id")
	created, createdArgs := f.createdWhere("a.created_at")
	args = append(args, createdArgs...)

	rows, err := db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM assets a WHERE 1=1`+where+created+
			` GROUP BY `+column+` ORDER BY `+column,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("grouping assets by %s: %w", column, err)
	}
	defer rows.Close()

	out := []Bucket{}
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, fmt.Errorf("scanning distribution: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func recentAssets(ctx context.Context, db *sql.DB, f DashboardFilter, limit int) ([]model.Asset, error) {
	where, args := f.assetWhere("a.base_id")
	created, createdArgs := f.createdWhere("a.created_at")
	args = append(append(args, createdArgs...), limit)

	rows, err := db.QueryContext(ctx,
		`SELECT `+assetColumns+assetFrom+` WHERE 1=1`+where+created+
			` ORDER BY a.created_at DESC, a.id DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent assets: %w", err)
	}
	defer rows.Close()

	out := []model.Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning asset: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func recentTransfers(ctx context.Context, db *sql.DB, f DashboardFilter, limit int) ([]model.Transfer, error) {
	where, args := f.transferWhere()
	created, createdArgs := f.createdWhere("t.created_at")
	args = append(append(args, createdArgs...), limit)

	rows, err := db.QueryContext(ctx,
		`SELECT `+transferColumns+transferFrom+` WHERE 1=1`+where+created+
			` ORDER BY t.created_at DESC, t.id DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent transfers: %w", err)
	}
	defer rows.Close()

	out := []model.Transfer{}
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func recentAssignments(ctx context.Context, db *sql.DB, f DashboardFilter, limit int) ([]model.Assignment, error) {
	where, args := f.assetWhere("s.base_id")
	created, createdArgs := f.createdWhere("s.created_at")
	args = append(append(args, createdArgs...), limit)

	rows, err := db.QueryContext(ctx,
		`SELECT `+assignmentColumns+assignmentFrom+` WHERE 1=1`+where+created+
			` ORDER BY s.created_at DESC, s.id DESC LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing recent assignments: %w", err)
	}
	defer rows.Close()

	out := []model.Assignment{}
	for rows.Next() {
		s, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning assignment: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
