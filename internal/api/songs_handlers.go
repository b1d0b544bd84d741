package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"vivpro-songs/internal/apperr"
	"vivpro-songs/internal/models"
)

// ListSongs handles GET /songs/. Anonymous callers see a user_rating of 0.
func (h *Handler) ListSongs(w http.ResponseWriter, r *http.Request) {
	params, err := parseListParams(r.URL.Query())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if identity, ok := IdentityFromContext(r.Context()); ok {
		params.UserID = identity.UserID
	}
	page, err := h.songs.ListSongs(r.Context(), params)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// RateSong handles PUT /songs/{song_idx}/{song_id}/rating.
func (h *Handler) RateSong(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.requireIdentity(w, r)
	if !ok {
		return
	}
	vars := mux.Vars(r)
	idx, err := strconv.Atoi(vars["song_idx"])
	if err != nil {
		h.writeError(w, r, apperr.Invalid("song_idx", "must be an integer"))
		return
	}
	var req ratingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	rating, err := req.value()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	key := models.SongKey{Idx: idx, ID: vars["song_id"]}
	if err := h.songs.RateSong(r.Context(), key, identity.UserID, rating); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.metrics.RatingRecorded()
	writeJSON(w, http.StatusNoContent, nil)
}
