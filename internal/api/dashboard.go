package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/store"
)

// DashboardHandler serves read-only rollups.
type DashboardHandler struct {
	DB *sql.DB
}

// filter builds the dashboard filter from the query. The requested base is
// only honored inside the user's own scope.
func (h *DashboardHandler) filter(w http.ResponseWriter, r *http.Request) (store.DashboardFilter, bool) {
	base, err := queryID(r, "base")
	var start, end *time.Time
	if err == nil {
		start, err = queryDate(r, "startDate")
	}
	if err == nil {
		end, err = queryDate(r, "endDate")
	}
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return store.DashboardFilter{}, false
	}

	user := CurrentUser(r.Context())
	f := store.DashboardFilter{
		Scope:     model.ScopeFor(user, base),
		Type:      r.URL.Query().Get("type"),
		Breakdown: user.Role == model.RoleAdmin,
	}
	f.Start, f.End = store.DashboardPeriod(start, end)
	if start != nil && end != nil {
		f.CreatedFrom, f.CreatedTo = &f.Start, &f.End
	}
	return f, true
}

// Overview handles GET /api/dashboard.
func (h *DashboardHandler) Overview(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	o, err := store.GetDashboardOverview(r.Context(), h.DB, f)
	if err != nil {
		respondError(w, r, err, "building dashboard")
		return
	}
	jsonResponse(w, http.StatusOK, o)
}

// Stats handles GET /api/dashboard/stats.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	stats, err := store.GetDashboardStats(r.Context(), h.DB, f.Scope)
	if err != nil {
		respondError(w, r, err, "getting dashboard stats")
		return
	}
	jsonResponse(w, http.StatusOK, stats)
}

// Activities handles GET /api/dashboard/activities.
func (h *DashboardHandler) Activities(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	activities, err := store.RecentActivities(r.Context(), h.DB, f.Scope)
	if err != nil {
		respondError(w, r, err, "getting recent activities")
		return
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(activities))
}

// Metrics handles GET /api/dashboard/metrics.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	f, ok := h.filter(w, r)
	if !ok {
		return
	}

	m, err := store.GetDashboardMetrics(r.Context(), h.DB, f)
	if err != nil {
		respondError(w, r, err, "getting dashboard metrics")
		return
	}
	jsonResponse(w, http.StatusOK, m)
}
