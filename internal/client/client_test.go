package client

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/arsenal/internal/api"
	"github.com/erazemk/arsenal/internal/db"
	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/store"
)

func TestTokenIsPerRequest(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Query().Get("who")] = r.Header.Get("Authorization")
		mu.Unlock()
		w.Write([]byte("[]"))
	}))
	t.Cleanup(server.Close)

	c := New(server.URL)
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, who := range []string{"alice", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.ListAssets(WithToken(ctx, who+"-token"), url.Values{"who": {who}}); err != nil {
				t.Errorf("ListAssets(%s): %v", who, err)
			}
		}()
	}
	wg.Wait()
	if _, err := c.ListAssets(ctx, url.Values{"who": {"anon"}}); err != nil {
		t.Fatalf("ListAssets: %v", err)
	}

	want := map[string]string{"alice": "Bearer alice-token", "bob": "Bearer bob-token", "anon": ""}
	for who, header := range want {
		if seen[who] != header {
			t.Errorf("%s: expected %q, got %q", who, header, seen[who])
		}
	}
}

func TestErrorDecoding(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"message": "validation failed",
			"errors":  map[string]string{"name": "is required"},
		})
	}))
	t.Cleanup(server.Close)

	_, err := New(server.URL).CreateBase(context.Background(), BaseInput{})
	if StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %v", err)
	}
	apiErr := err.(*Error)
	if apiErr.Message != "validation failed" || apiErr.Fields["name"] != "is required" {
		t.Errorf("unexpected error %+v", apiErr)
	}
	if IsUnauthorized(err) {
		t.Error("400 reported as unauthorized")
	}
}

// seedUser creates an active account that can log in with "password".
func seedUser(t *testing.T, database *sql.DB, email, role string, base *int64) *model.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	aff, err := model.NewAffiliation(role, base)
	if err != nil {
		t.Fatalf("NewAffiliation: %v", err)
	}
	u, err := store.CreateUser(context.Background(), database, &model.User{
		Email: email, PasswordHash: string(hash), FullName: "User " + email,
		Role: role, IsActive: true, Affiliation: aff,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", email, err)
	}
	return u
}

func login(t *testing.T, c *Client, email string) context.Context {
	t.Helper()
	s, err := c.Login(context.Background(), email, "password")
	if err != nil {
		t.Fatalf("Login(%s): %v", email, err)
	}
	return WithToken(context.Background(), s.Token)
}

func TestEndToEnd(t *testing.T) {
	database := db.NewTestDB(t)
	server := httptest.NewServer(api.NewRouter(database, api.Options{JWTSecret: "e2e-secret"}))
	t.Cleanup(server.Close)
	c := New(server.URL)

	seedUser(t, database, "admin@example.com", model.RoleAdmin, nil)
	admin := login(t, c, "admin@example.com")

	alpha, err := c.CreateBase(admin, BaseInput{Name: "Alpha", Location: "North", Type: "army", Capacity: 100})
	if err != nil {
		t.Fatalf("CreateBase(Alpha): %v", err)
	}
	bravo, err := c.CreateBase(admin, BaseInput{Name: "Bravo", Location: "South", Type: "army", Capacity: 50})
	if err != nil {
		t.Fatalf("CreateBase(Bravo): %v", err)
	}

	officerUser := seedUser(t, database, "officer@example.com", model.RoleLogisticsOfficer, &alpha.ID)
	seedUser(t, database, "alpha@example.com", model.RoleBaseCommander, &alpha.ID)
	seedUser(t, database, "bravo@example.com", model.RoleBaseCommander, &bravo.ID)
	seedUser(t, database, "new@example.com", model.RoleBaseCommander, nil)
	officer := login(t, c, "officer@example.com")
	alphaCmd := login(t, c, "alpha@example.com")
	bravoCmd := login(t, c, "bravo@example.com")
	newcomer := login(t, c, "new@example.com")

	opening := 20
	rifle, err := c.CreateAsset(officer, AssetInput{
		Name: "Rifle-X", Type: model.AssetTypeWeapon, SerialNumber: "SN-001",
		BaseID: alpha.ID, Location: "Armory", Quantity: 20, OpeningBalance: &opening,
	})
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	if rifle.ClosingBalance != 20 {
		t.Errorf("expected closing balance 20, got %d", rifle.ClosingBalance)
	}

	if _, err := c.CreateAssignment(alphaCmd, AssignmentInput{
		AssetID: rifle.ID, AssignedTo: officerUser.ID, BaseID: alpha.ID, Quantity: 5, Purpose: "Patrol",
	}); err != nil {
		t.Fatalf("CreateAssignment: %v", err)
	}
	got, err := c.GetAsset(admin, rifle.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if got.Quantity != 15 {
		t.Errorf("expected quantity 15, got %d", got.Quantity)
	}

	tr, err := c.CreateTransfer(officer, TransferInput{
		AssetID: rifle.ID, FromBaseID: alpha.ID, ToBaseID: bravo.ID, Quantity: 10,
	})
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if _, err := c.SetTransferStatus(alphaCmd, tr.ID, model.TransferInTransit); err != nil {
		t.Fatalf("in_transit: %v", err)
	}
	if _, err := c.SetTransferStatus(bravoCmd, tr.ID, model.TransferCompleted); err != nil {
		t.Fatalf("completed: %v", err)
	}
	got, _ = c.GetAsset(admin, rifle.ID)
	if got.BaseID != bravo.ID {
		t.Errorf("expected asset at Bravo, got %d", got.BaseID)
	}

	_, err = c.SetTransferStatus(bravoCmd, tr.ID, model.TransferCompleted)
	if StatusOf(err) != http.StatusBadRequest {
		t.Errorf("second completion: expected 400, got %v", err)
	}

	_, err = c.UpdateBase(newcomer, bravo.ID, BaseInput{Name: "Mine"})
	if StatusOf(err) != http.StatusForbidden {
		t.Errorf("claiming a held base: expected 403, got %v", err)
	}

	// Alpha's commander asking for Bravo still sees Alpha only. The rifle now
	// sits at Bravo, so Alpha has nothing.
	o, err := c.Dashboard(alphaCmd, url.Values{"base": {strconv.FormatInt(bravo.ID, 10)}})
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if o.Counts.Assets != 0 {
		t.Errorf("expected no assets in Alpha's scope, got %d", o.Counts.Assets)
	}
	o, _ = c.Dashboard(admin, url.Values{"base": {strconv.FormatInt(bravo.ID, 10)}})
	if o.Counts.Assets != 1 {
		t.Errorf("admin filtered to Bravo: expected 1 asset, got %d", o.Counts.Assets)
	}

	if err := c.Logout(officer); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := c.Me(officer); !IsUnauthorized(err) {
		t.Errorf("expected 401 after logout, got %v", err)
	}
}
