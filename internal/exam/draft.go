package exam

import (
	"strings"

	"github.com/mind-engage/mindengage-quiz/internal/apperr"
)

const minTitleLen = 3

// TestDraft is the authoring input for a new test.
type TestDraft struct {
	Title       string
	Description string
	Questions   []QuestionDraft
}

type QuestionDraft struct {
	Text        string
	Type        QuestionType // empty means single
	Answers     []AnswerDraft
	CorrectText string
}

type AnswerDraft struct {
	Text      string
	IsCorrect bool
}

// TestPatch updates a test. Nil fields are left alone; a non-nil Questions
// replaces every question of the test.
type TestPatch struct {
	Title       *string
	Description *string
	Questions   []QuestionDraft
}

func validateTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if len([]rune(t)) < minTitleLen {
		return "", apperr.Validationf("test title is required (min. %d characters)", minTitleLen)
	}
	return t, nil
}

// buildQuestions validates drafts and turns them into questions without ids.
func buildQuestions(drafts []QuestionDraft) ([]Question, error) {
	if len(drafts) == 0 {
		return nil, apperr.Validationf("test must contain at least one question")
	}
	out := make([]Question, 0, len(drafts))
	for i, d := range drafts {
		q, err := d.build(i + 1)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (d QuestionDraft) build(n int) (Question, error) {
	text := strings.TrimSpace(d.Text)
	if text == "" {
		return Question{}, apperr.Validationf("question %d: text is required", n)
	}

	typ := d.Type
	if typ == "" {
		typ = TypeSingle
	}

	switch typ {
	case TypeText:
		correct := strings.TrimSpace(d.CorrectText)
		if correct == "" {
			return Question{}, apperr.Validationf("question %d: correct text answer is required", n)
		}
		return Question{Text: text, Body: TextBody{CorrectText: correct}}, nil

	case TypeSingle, TypeMultiple:
		if len(d.Answers) == 0 {
			return Question{}, apperr.Validationf("question %d: at least one answer is required", n)
		}
		answers := make([]Answer, 0, len(d.Answers))
		correct := 0
		for j, a := range d.Answers {
			at := strings.TrimSpace(a.Text)
			if at == "" {
				return Question{}, apperr.Validationf("question %d, answer %d: text is required", n, j+1)
			}
			if a.IsCorrect {
				correct++
			}
			answers = append(answers, Answer{Text: at, IsCorrect: a.IsCorrect})
		}
		if correct == 0 {
			return Question{}, apperr.Validationf("question %d: at least one answer must be correct", n)
		}
		if typ == TypeSingle && correct != 1 {
			return Question{}, apperr.Validationf("question %d: single choice needs exactly one correct answer, got %d", n, correct)
		}
		return Question{Text: text, Body: ChoiceBody{Multiple: typ == TypeMultiple, Answers: answers}}, nil

	default:
		return Question{}, apperr.Validationf("question %d: unknown question type %q", n, d.Type)
	}
}
