package http

import (
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/exam"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

// ---- requests ----

type answerIn struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type questionIn struct {
	Text              string     `json:"text"`
	QuestionType      string     `json:"question_type"`
	Answers           []answerIn `json:"answers"`
	CorrectTextAnswer string     `json:"correct_text_answer"`
}

type testIn struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Questions   []questionIn `json:"questions"`
}

// testPatchIn distinguishes absent fields from empty ones.
type testPatchIn struct {
	Title       *string      `json:"title"`
	Description *string      `json:"description"`
	Questions   []questionIn `json:"questions"`
}

type submitIn struct {
	Answers []responseIn `json:"answers"`
}

type responseIn struct {
	QuestionID int64   `json:"questionId"`
	AnswerID   *int64  `json:"answerId,omitempty"`
	AnswerIDs  []int64 `json:"answerIds,omitempty"`
	TextAnswer *string `json:"textAnswer,omitempty"`
}

func (q questionIn) draft() exam.QuestionDraft {
	d := exam.QuestionDraft{
		Text:        q.Text,
		Type:        exam.QuestionType(q.QuestionType),
		CorrectText: q.CorrectTextAnswer,
	}
	for _, a := range q.Answers {
		d.Answers = append(d.Answers, exam.AnswerDraft{Text: a.Text, IsCorrect: a.IsCorrect})
	}
	return d
}

func draftQuestions(in []questionIn) []exam.QuestionDraft {
	if in == nil {
		return nil
	}
	out := make([]exam.QuestionDraft, 0, len(in))
	for _, q := range in {
		out = append(out, q.draft())
	}
	return out
}

func (t testIn) draft() exam.TestDraft {
	return exam.TestDraft{Title: t.Title, Description: t.Description, Questions: draftQuestions(t.Questions)}
}

func (t testPatchIn) patch() exam.TestPatch {
	return exam.TestPatch{Title: t.Title, Description: t.Description, Questions: draftQuestions(t.Questions)}
}

func (s submitIn) responses() []grading.Response {
	out := make([]grading.Response, 0, len(s.Answers))
	for _, a := range s.Answers {
		out = append(out, grading.Response{
			QuestionID: a.QuestionID,
			AnswerID:   a.AnswerID,
			AnswerIDs:  a.AnswerIDs,
			Text:       a.TextAnswer,
		})
	}
	return out
}

// ---- responses ----

type answerOut struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	IsCorrect *bool  `json:"is_correct,omitempty"`
}

type questionOut struct {
	ID                int64       `json:"id"`
	Text              string      `json:"text"`
	QuestionType      string      `json:"question_type"`
	CorrectTextAnswer *string     `json:"correct_text_answer,omitempty"`
	Answers           []answerOut `json:"answers"`
}

type testOut struct {
	ID          int64         `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	AuthorID    int64         `json:"author_id"`
	Author      string        `json:"author"`
	CreatedAt   time.Time     `json:"created_at"`
	Questions   []questionOut `json:"questions"`
}

// toTestOut renders a test; the answer key is only included when withKey.
func toTestOut(t exam.Test, withKey bool) testOut {
	out := testOut{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		AuthorID:    t.AuthorID,
		Author:      t.Author,
		CreatedAt:   t.CreatedAt,
		Questions:   make([]questionOut, 0, len(t.Questions)),
	}
	for _, q := range t.Questions {
		qo := questionOut{ID: q.ID, Text: q.Text, QuestionType: string(q.Type()), Answers: []answerOut{}}
		if tb, ok := q.Body.(exam.TextBody); ok && withKey {
			c := tb.CorrectText
			qo.CorrectTextAnswer = &c
		}
		for _, a := range q.Answers() {
			ao := answerOut{ID: a.ID, Text: a.Text}
			if withKey {
				c := a.IsCorrect
				ao.IsCorrect = &c
			}
			qo.Answers = append(qo.Answers, ao)
		}
		out.Questions = append(out.Questions, qo)
	}
	return out
}

type createOut struct {
	Success     bool    `json:"success"`
	TestID      int64   `json:"testId"`
	QuestionIDs []int64 `json:"questionIds"`
	Message     string  `json:"message"`
}

type submitOut struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	AttemptID      int64  `json:"attemptId"`
	CorrectAnswers int    `json:"correctAnswers"`
	TotalQuestions int    `json:"totalQuestions"`
	Percentage     int    `json:"percentage"`
}

type attemptOut struct {
	exam.Attempt
	Percentage int `json:"percentage"`
}
