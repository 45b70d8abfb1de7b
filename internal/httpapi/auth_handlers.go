package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"relive.org/internal/auth"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Role     string `json:"role" validate:"required"`

	// Role-specific contact fields accepted for forward compatibility with
	// richer profiles; not persisted beyond the profile row.
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Location string `json:"location"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type sessionResponse struct {
	User         *auth.User `json:"user"`
	AccessToken  string     `json:"accessToken"`
	RefreshToken string     `json:"refreshToken"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, ok := auth.ParseRole(req.Role)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}

	user, pair, err := a.auth.Register(r.Context(), req.Name, req.Email, req.Password, role)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	if role.HasProfile() {
		if _, err := a.relief.EnsureProfile(r.Context(), user.ID, role, user.Name, user.Email); err != nil {
			a.log.Error("profile creation after register failed",
				zap.String("user_id", user.ID), zap.String("role", string(role)), zap.Error(err))
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	}

	a.auditEvent(r, "auth.register", "user", user.ID, map[string]any{
		"email": user.Email,
		"role":  string(user.Role),
	})
	writeJSON(w, http.StatusCreated, sessionResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, pair, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	a.auditEvent(r, "auth.login", "user", user.ID, map[string]any{
		"email": user.Email,
	})
	writeJSON(w, http.StatusOK, sessionResponse{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := a.decodeValid(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.auth.Rotate(r.Context(), req.RefreshToken)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}

	a.auditEvent(r, "auth.refresh", "token", "", nil)
	writeJSON(w, http.StatusOK, pair)
}

// handleLogout retires the presented refresh token. It always reports
// success: a missing or already-revoked token leaves the caller in the
// logged-out state it asked for.
func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	_ = decodeJSON(r, &req)

	if err := a.auth.Revoke(r.Context(), req.RefreshToken); err != nil {
		a.log.Warn("revoke failed", zap.Error(err))
	}

	a.auditEvent(r, "auth.logout", "token", "", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "logged out",
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	p := principal(r)
	user, err := a.auth.User(r.Context(), p.UserID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
