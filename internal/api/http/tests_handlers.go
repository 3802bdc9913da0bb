package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
)

// TestHandlers serves /tests. Authoring routes surface error messages
// verbatim; grading and statistics routes hide storage details.
type TestHandlers struct {
	svc       *exam.Service
	authoring errorWriter
	scoring   errorWriter
}

func newTestHandlers(svc *exam.Service, ew errorWriter) *TestHandlers {
	scoring := ew
	scoring.generic = true
	return &TestHandlers{svc: svc, authoring: ew, scoring: scoring}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

func principal(r *http.Request) rbac.Principal {
	p, _ := rbac.PrincipalFromContext(r.Context())
	return p
}

func (h *TestHandlers) List(w http.ResponseWriter, r *http.Request) {
	tests, err := h.svc.List(r.Context())
	if err != nil {
		h.authoring.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

// Get hides the answer key from students.
func (h *TestHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "testID")
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "test not found"})
		return
	}
	t, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.authoring.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTestOut(t, rbac.CanCreate(principal(r))))
}

func (h *TestHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var in testIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}
	t, err := h.svc.Create(r.Context(), principal(r), in.draft())
	if err != nil {
		h.authoring.write(w, r, err)
		return
	}
	ids := make([]int64, 0, len(t.Questions))
	for _, q := range t.Questions {
		ids = append(ids, q.ID)
	}
	writeJSON(w, http.StatusCreated, createOut{
		Success:     true,
		TestID:      t.ID,
		QuestionIDs: ids,
		Message:     "test created",
	})
}

func (h *TestHandlers) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "testID")
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "test not found"})
		return
	}
	var in testPatchIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}
	t, err := h.svc.Update(r.Context(), principal(r), id, in.patch())
	if err != nil {
		h.authoring.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "test updated",
		"test":    toTestOut(t, true),
	})
}

func (h *TestHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "testID")
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "test not found"})
		return
	}
	if err := h.svc.Delete(r.Context(), principal(r), id); err != nil {
		h.authoring.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "test deleted"})
}

func (h *TestHandlers) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	testID, ok1 := pathID(r, "testID")
	questionID, ok2 := pathID(r, "questionID")
	if !ok1 || !ok2 {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "question not found"})
		return
	}
	if err := h.svc.DeleteQuestion(r.Context(), principal(r), testID, questionID); err != nil {
		h.scoring.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":           true,
		"message":           "question deleted",
		"deletedQuestionId": questionID,
	})
}

func (h *TestHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "testID")
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "test not found"})
		return
	}
	var in submitIn
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badJSON(w)
		return
	}
	sub, err := h.svc.Submit(r.Context(), principal(r), id, in.responses())
	if err != nil {
		h.scoring.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, submitOut{
		Success:        true,
		Message:        "test submitted",
		AttemptID:      sub.AttemptID,
		CorrectAnswers: sub.CorrectAnswers,
		TotalQuestions: sub.TotalQuestions,
		Percentage:     sub.Percentage,
	})
}

func (h *TestHandlers) Statistics(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "testID")
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "test not found"})
		return
	}
	sum, err := h.svc.Statistics(r.Context(), principal(r), id)
	if err != nil {
		h.scoring.write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// Results lists the caller's own attempts.
func (h *TestHandlers) Results(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "testID")
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "test not found"})
		return
	}
	attempts, err := h.svc.Results(r.Context(), principal(r), id)
	if err != nil {
		h.scoring.write(w, r, err)
		return
	}
	out := make([]attemptOut, 0, len(attempts))
	for _, a := range attempts {
		out = append(out, attemptOut{Attempt: a, Percentage: a.Percentage()})
	}
	writeJSON(w, http.StatusOK, out)
}
