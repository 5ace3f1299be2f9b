package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"slices"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/store"
)

// UsersHandler handles user management endpoints.
type UsersHandler struct {
	DB *sql.DB
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"fullName" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=admin base_commander logistics_officer"`
	Base     *int64 `json:"base"`
	IsActive *bool  `json:"isActive"`
}

type updateUserRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	FullName *string `json:"fullName" validate:"omitempty,min=1"`
	Role     *string `json:"role" validate:"omitempty,oneof=admin base_commander logistics_officer"`
	IsActive *bool   `json:"isActive"`
	Password *string `json:"password" validate:"omitempty,min=8"`
}

type setBaseRequest struct {
	BaseID *int64 `json:"baseId"`
}

type baseIDRequest struct {
	BaseID int64 `json:"baseId" validate:"required"`
}

type userBases struct {
	Base          *int64  `json:"base"`
	AssignedBases []int64 `json:"assignedBases"`
	PrimaryBase   *int64  `json:"primaryBase"`
}

// List handles GET /api/users. Commanders see the users of their base, or
// every non-admin while they hold no base.
func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	f := store.UserFilter{Role: r.URL.Query().Get("role")}

	user := CurrentUser(r.Context())
	c, isCommander := user.Affiliation.(model.BaseCommander)
	if isCommander && c.Base != nil {
		f.BaseID = c.Base
	}

	users, err := store.ListUsers(r.Context(), h.DB, f)
	if err != nil {
		respondError(w, r, err, "listing users")
		return
	}
	if isCommander {
		users = slices.DeleteFunc(users, func(u model.User) bool { return u.Role == model.RoleAdmin })
	}
	jsonResponse(w, http.StatusOK, emptyIfNil(users))
}

// sharesBase reports whether two users are bound to a common base.
func sharesBase(a, b *model.User) bool {
	for _, id := range b.Bases() {
		if slices.Contains(a.Bases(), id) {
			return true
		}
	}
	return false
}

func (h *UsersHandler) load(w http.ResponseWriter, r *http.Request) *model.User {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return nil
	}

	u, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting user")
		return nil
	}
	if u == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return nil
	}
	return u
}

// Get handles GET /api/users/{id}. Non-admins can read themselves and users
// sharing one of their bases.
func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	u := h.load(w, r)
	if u == nil {
		return
	}

	user := CurrentUser(r.Context())
	if user.Role != model.RoleAdmin && user.ID != u.ID && !sharesBase(user, u) {
		jsonError(w, http.StatusForbidden, "access denied")
		return
	}
	jsonResponse(w, http.StatusOK, u)
}

// Bases handles GET /api/users/{id}/bases.
func (h *UsersHandler) Bases(w http.ResponseWriter, r *http.Request) {
	u := h.load(w, r)
	if u == nil {
		return
	}

	user := CurrentUser(r.Context())
	if user.Role != model.RoleAdmin && user.ID != u.ID {
		jsonError(w, http.StatusForbidden, "access denied")
		return
	}

	out := userBases{AssignedBases: emptyIfNil(u.Bases())}
	switch a := u.Affiliation.(type) {
	case model.BaseCommander:
		out.Base = a.Base
		out.PrimaryBase = a.Base
	case model.LogisticsOfficer:
		out.Base = a.PrimaryBase
		out.PrimaryBase = a.PrimaryBase
	}
	jsonResponse(w, http.StatusOK, out)
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !decodeValid(w, r, &req) {
		return
	}

	existing, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		respondError(w, r, err, "checking existing user")
		return
	}
	if existing != nil {
		jsonError(w, http.StatusBadRequest, "user already exists")
		return
	}

	aff, err := model.NewAffiliation(req.Role, req.Base)
	if err != nil {
		respondError(w, r, err, "creating user")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(w, r, err, "hashing password")
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	created, err := store.CreateUser(r.Context(), h.DB, &model.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		IsActive:     active,
		Affiliation:  aff,
	})
	if err != nil {
		respondError(w, r, err, "creating user")
		return
	}

	slog.Info("user created", "admin", CurrentUser(r.Context()).Email, "user", created.Email, "role", created.Role)
	jsonResponse(w, http.StatusCreated, created)
}

// Update handles PUT /api/users/{id}. A role change rebinds the user to its
// current home base.
func (h *UsersHandler) Update(w http.ResponseWriter, r *http.Request) {
	u := h.load(w, r)
	if u == nil {
		return
	}

	var req updateUserRequest
	if !decodeValid(w, r, &req) {
		return
	}

	admin := CurrentUser(r.Context())
	if admin.ID == u.ID && req.Role != nil && *req.Role != model.RoleAdmin {
		jsonError(w, http.StatusBadRequest, "cannot change your own role")
		return
	}

	if req.Email != nil {
		u.Email = *req.Email
	}
	if req.FullName != nil {
		u.FullName = *req.FullName
	}
	if req.IsActive != nil {
		u.IsActive = *req.IsActive
	}
	if req.Role != nil && *req.Role != u.Role {
		aff, err := model.NewAffiliation(*req.Role, u.HomeBase())
		if err != nil {
			respondError(w, r, err, "updating user")
			return
		}
		u.Role = *req.Role
		u.Affiliation = aff
	}

	if err := store.UpdateUser(r.Context(), h.DB, u); err != nil {
		respondError(w, r, err, "updating user")
		return
	}

	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			respondError(w, r, err, "hashing password")
			return
		}
		if err := store.UpdateUserPassword(r.Context(), h.DB, u.ID, string(hash)); err != nil {
			respondError(w, r, err, "updating password")
			return
		}
	}

	h.respondUser(w, r, u.ID, "user updated")
}

// Delete handles DELETE /api/users/{id}.
func (h *UsersHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	admin := CurrentUser(r.Context())
	if admin.ID == id {
		jsonError(w, http.StatusBadRequest, "cannot delete yourself")
		return
	}

	if err := store.DeleteUser(r.Context(), h.DB, id); err != nil {
		respondError(w, r, err, "deleting user")
		return
	}

	slog.Info("user deleted", "admin", admin.Email, "user_id", id)
	jsonMessage(w, "user deleted")
}

// SetBase handles PATCH /api/users/{id}/base. A null base unbinds the user.
func (h *UsersHandler) SetBase(w http.ResponseWriter, r *http.Request) {
	u := h.load(w, r)
	if u == nil {
		return
	}

	var req setBaseRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if req.BaseID != nil && !h.baseExists(w, r, *req.BaseID) {
		return
	}

	if err := u.SetBase(req.BaseID); err != nil {
		respondError(w, r, err, "setting user base")
		return
	}
	h.save(w, r, u, "user base set")
}

// AssignBase handles POST /api/users/{id}/assign-base.
func (h *UsersHandler) AssignBase(w http.ResponseWriter, r *http.Request) {
	u := h.load(w, r)
	if u == nil {
		return
	}

	var req baseIDRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if !h.baseExists(w, r, req.BaseID) {
		return
	}

	if err := u.AddAssignedBase(req.BaseID); err != nil {
		respondError(w, r, err, "assigning base")
		return
	}
	h.save(w, r, u, "base assigned")
}

// RemoveBase handles DELETE /api/users/{id}/remove-base/{baseId}.
func (h *UsersHandler) RemoveBase(w http.ResponseWriter, r *http.Request) {
	u := h.load(w, r)
	if u == nil {
		return
	}

	baseID, ok := pathID(r, "baseId")
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid base id")
		return
	}

	if err := u.RemoveAssignedBase(baseID); err != nil {
		respondError(w, r, err, "removing base")
		return
	}
	h.save(w, r, u, "base removed")
}

// SetPrimaryBase handles PUT /api/users/{id}/set-primary-base.
func (h *UsersHandler) SetPrimaryBase(w http.ResponseWriter, r *http.Request) {
	u := h.load(w, r)
	if u == nil {
		return
	}

	var req baseIDRequest
	if !decodeValid(w, r, &req) {
		return
	}

	if err := u.SetPrimaryBase(req.BaseID); err != nil {
		respondError(w, r, err, "setting primary base")
		return
	}
	h.save(w, r, u, "primary base set")
}

func (h *UsersHandler) baseExists(w http.ResponseWriter, r *http.Request, id int64) bool {
	base, err := store.GetBase(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting base")
		return false
	}
	if base == nil {
		jsonError(w, http.StatusNotFound, "base not found")
		return false
	}
	return true
}

func (h *UsersHandler) save(w http.ResponseWriter, r *http.Request, u *model.User, msg string) {
	if err := store.UpdateUser(r.Context(), h.DB, u); err != nil {
		respondError(w, r, err, "updating user")
		return
	}
	h.respondUser(w, r, u.ID, msg)
}

func (h *UsersHandler) respondUser(w http.ResponseWriter, r *http.Request, id int64, msg string) {
	updated, err := store.GetUser(r.Context(), h.DB, id)
	if err != nil {
		respondError(w, r, err, "getting user")
		return
	}
	if updated == nil {
		jsonError(w, http.StatusNotFound, "user not found")
		return
	}
	slog.Info(msg, "admin", CurrentUser(r.Context()).Email, "user", updated.Email)
	jsonResponse(w, http.StatusOK, updated)
}
