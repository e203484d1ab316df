package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/service"
)

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "login successful", resp)
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	var actor *domain.Actor
	if current, ok := service.ActorFromContext(r.Context()); ok {
		actor = &current
	}
	user, err := a.auth.Register(r.Context(), req, actor)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "user registered", user)
}

func (a *API) handleProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.auth.Profile(r.Context(), actor.UserID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", user)
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req domain.ProfileUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.auth.UpdateProfile(r.Context(), actor.UserID, req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "profile updated", user)
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req domain.ChangePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.auth.ChangePassword(r.Context(), actor.UserID, req); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "password changed", nil)
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	filter := listFilter(r)
	page, err := a.auth.ListUsers(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writePage(w, filter, page)
}

func (a *API) handleUpdateUserRole(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req domain.RoleUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.auth.UpdateRole(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "role updated", user)
}

func (a *API) handleUpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req domain.UserStatusUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	user, err := a.auth.UpdateStatus(r.Context(), actor, chi.URLParam(r, "id"), req)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "status updated", user)
}
