package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"vivpro-songs/internal/accounts"
)

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

// Register handles POST /api/users/.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.validate(); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.accounts.Register(r.Context(), accounts.RegisterParams{
		Username: req.Username,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: user.ID, Username: user.Username, Name: user.Name})
}

// GetUser handles GET /api/users/{username}. Callers may only read their own
// account.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	user, err := h.accounts.GetUser(r.Context(), identity, mux.Vars(r)["username"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Username: user.Username, Name: user.Name})
}
