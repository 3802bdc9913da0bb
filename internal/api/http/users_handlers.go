package http

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/users"
)

type UserHandlers struct {
	repo *users.Repo
	ew   errorWriter
}

func newUserHandlers(repo *users.Repo, ew errorWriter) *UserHandlers {
	return &UserHandlers{repo: repo, ew: ew}
}

// BulkUpsert accepts a JSON array, or a multipart "file" holding either JSON
// or CSV with the columns username, role, group and password.
func (h *UserHandlers) BulkUpsert(w http.ResponseWriter, r *http.Request) {
	var rows []users.Row
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		f, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "file required"})
			return
		}
		defer f.Close()
		data, err := io.ReadAll(f)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable file"})
			return
		}
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			err = json.Unmarshal(data, &rows)
		} else {
			rows, err = parseUsersCSV(strings.NewReader(trimmed))
		}
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "bad file: " + err.Error()})
			return
		}
	} else if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "expected JSON array or multipart file"})
		return
	}

	if len(rows) == 0 {
		writeJSON(w, http.StatusOK, map[string]int{"inserted": 0, "updated": 0})
		return
	}
	ins, upd, err := h.repo.BulkUpsert(r.Context(), rows)
	if err != nil {
		h.ew.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": ins, "updated": upd})
}

func (h *UserHandlers) List(w http.ResponseWriter, r *http.Request) {
	role := rbac.Role(r.URL.Query().Get("role"))
	if role != "" && !role.Valid() {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown role"})
		return
	}
	out, err := h.repo.List(r.Context(), role)
	if err != nil {
		h.ew.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *UserHandlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badJSON(w)
		return
	}
	if err := h.repo.ChangePassword(r.Context(), principal(r).ID, req.OldPassword, req.NewPassword); err != nil {
		h.ew.write(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseUsersCSV(r io.Reader) ([]users.Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := idx["username"]; !ok {
		return nil, errors.New("missing column: username")
	}
	col := func(rec []string, name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var rows []users.Row
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, users.Row{
			Username: col(rec, "username"),
			Role:     col(rec, "role"),
			Group:    col(rec, "group"),
			Password: col(rec, "password"),
		})
	}
	return rows, nil
}
