package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// UpdateRole handles PATCH /users/{userID} {"role": "..."}.
func (h *UserHandlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "userID")
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "user not found"})
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badJSON(w)
		return
	}
	role := rbac.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if err := h.repo.SetRole(r.Context(), id, role); err != nil {
		h.ew.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
