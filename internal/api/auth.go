package api

import (
	"database/sql"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/erazemk/arsenal/internal/auth"
	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/store"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	DB        *sql.DB
	JWTSecret string
	TokenTTL  time.Duration
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	FullName string `json:"fullName" validate:"required"`
	Role     string `json:"role" validate:"omitempty,oneof=base_commander logistics_officer"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type updateProfileRequest struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email" validate:"omitempty,email"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" validate:"omitempty,min=8"`
}

// authPayload is the data part of authentication responses.
type authPayload struct {
	Token string      `json:"token,omitempty"`
	User  *model.User `json:"user"`
}

type authResponse struct {
	Success bool        `json:"success"`
	Data    authPayload `json:"data"`
}

func respondAuth(w http.ResponseWriter, status int, token string, user *model.User) {
	jsonResponse(w, status, authResponse{Success: true, Data: authPayload{Token: token, User: user}})
}

// Register handles POST /api/auth/register. Self registration cannot create
// admins.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeValid(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = model.RoleLogisticsOfficer
	}

	existing, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		respondError(w, r, err, "looking up user")
		return
	}
	if existing != nil {
		jsonError(w, http.StatusBadRequest, "user already exists")
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}

	user, err := store.CreateUser(r.Context(), h.DB, &model.User{
		Email:        req.Email,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		IsActive:     true,
	})
	if err != nil {
		respondError(w, r, err, "registering user")
		return
	}

	token, err := auth.GenerateToken(h.JWTSecret, user.ID, user.Role, h.TokenTTL)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	slog.Info("user registered", "user", user.Email, "role", user.Role)
	respondAuth(w, http.StatusCreated, token, user)
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user, err := store.GetUserByEmail(r.Context(), h.DB, req.Email)
	if err != nil {
		respondError(w, r, err, "looking up user")
		return
	}
	if user == nil {
		jsonError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !user.IsActive {
		slog.Warn("login by inactive user", "user", user.Email, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "account is inactive, contact an administrator")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		slog.Warn("login failed", "user", user.Email, "remote", r.RemoteAddr)
		jsonError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}

	if err := store.TouchLastLogin(r.Context(), h.DB, user.ID); err != nil {
		respondError(w, r, err, "recording login")
		return
	}
	ts := time.Now().UTC()
	user.LastLogin = &ts

	token, err := auth.GenerateToken(h.JWTSecret, user.ID, user.Role, h.TokenTTL)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	slog.Info("user logged in", "user", user.Email, "role", user.Role)
	respondAuth(w, http.StatusOK, token, user)
}

// Verify handles GET /api/auth/verify. It checks the bearer token itself so
// a client can validate a stored token.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	user, _, err := authenticate(r, h.DB, h.JWTSecret)
	if err != nil {
		if isAuthError(err) {
			jsonError(w, http.StatusUnauthorized, err.Error())
			return
		}
		respondError(w, r, err, "verifying token")
		return
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	respondAuth(w, http.StatusOK, token, user)
}

// Me handles GET /api/auth/me and GET /api/users/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	respondAuth(w, http.StatusOK, "", CurrentUser(r.Context()))
}

// UpdateProfile handles PUT /api/auth/profile. Changing the password needs
// the current one.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req updateProfileRequest
	if !decodeValid(w, r, &req) {
		return
	}

	user := *CurrentUser(r.Context())
	if req.FullName != "" {
		user.FullName = req.FullName
	}
	if req.Email != "" {
		user.Email = req.Email
	}

	var hash []byte
	if req.NewPassword != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.CurrentPassword)); err != nil {
			jsonError(w, http.StatusBadRequest, "current password is incorrect")
			return
		}
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "failed to hash password")
			return
		}
	}

	if err := store.UpdateUser(r.Context(), h.DB, &user); err != nil {
		respondError(w, r, err, "updating profile")
		return
	}
	if hash != nil {
		if err := store.UpdateUserPassword(r.Context(), h.DB, user.ID, string(hash)); err != nil {
			respondError(w, r, err, "updating password")
			return
		}
		slog.Info("user changed own password", "user", user.Email)
	}

	jsonMessage(w, "profile updated")
}

// Logout handles POST /api/auth/logout by revoking the presented token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := GetClaims(r.Context())
	expires := time.Now().Add(auth.TokenExpiry)
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}

	if err := store.RevokeToken(r.Context(), h.DB, claims.ID, expires); err != nil {
		respondError(w, r, err, "revoking token")
		return
	}

	slog.Info("user logged out", "user", CurrentUser(r.Context()).Email)
	jsonMessage(w, "logged out")
}
