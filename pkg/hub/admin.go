package hub

import (
	"encoding/json"
	"net/http"

	"github.com/fiar-dev/fiar/pkg/auth"
)

// CreateGame is the HTTP entry point the matchmaking frontend calls
// once a challenge is accepted. It requires the admin capability and
// pairs two users into a new game.
func (h *Hub) CreateGame(w http.ResponseWriter, r *http.Request) {
	identity, err := h.identity(r)
	if err != nil {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if err := h.authz.Authorize(identity, auth.CapabilityAdmin); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req struct {
		SeatOneUserID string `json:"seat_one_user_id"`
		SeatTwoUserID string `json:"seat_two_user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	if req.SeatOneUserID == "" || req.SeatTwoUserID == "" {
		http.Error(w, "both user ids are required", http.StatusBadRequest)
		return
	}

	g, ok := h.registry.Add(r.Context(), req.SeatOneUserID, req.SeatTwoUserID)
	if !ok {
		http.Error(w, "could not start game", http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]int64{"game_id": g.ID()})
}
