package exam

import (
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/grading"
)

type QuestionType string

const (
	TypeSingle   QuestionType = "single"
	TypeMultiple QuestionType = "multiple"
	TypeText     QuestionType = "text"
)

type Answer struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
}

// Body is the type-specific part of a question: TextBody or ChoiceBody.
type Body interface {
	Type() QuestionType
	isBody()
}

// TextBody is a free-text question with one accepted answer.
type TextBody struct {
	CorrectText string
}

// ChoiceBody is a single- or multiple-choice question. Answers are owned by
// the question and go away with it.
type ChoiceBody struct {
	Multiple bool
	Answers  []Answer
}

func (TextBody) Type() QuestionType { return TypeText }
func (TextBody) isBody()            {}

func (b ChoiceBody) Type() QuestionType {
	if b.Multiple {
		return TypeMultiple
	}
	return TypeSingle
}
func (ChoiceBody) isBody() {}

type Question struct {
	ID     int64
	TestID int64
	Text   string
	Body   Body
}

func (q Question) Type() QuestionType { return q.Body.Type() }

// Answers is empty for text questions.
func (q Question) Answers() []Answer {
	if c, ok := q.Body.(ChoiceBody); ok {
		return c.Answers
	}
	return nil
}

// GradingKey is the grading view of the question.
func (q Question) GradingKey() grading.Key {
	k := grading.Key{QuestionID: q.ID}
	switch b := q.Body.(type) {
	case TextBody:
		k.Type = grading.Text
		k.CorrectText = b.CorrectText
	case ChoiceBody:
		k.Type = grading.Single
		if b.Multiple {
			k.Type = grading.Multiple
		}
		for _, a := range b.Answers {
			if a.IsCorrect {
				k.CorrectIDs = append(k.CorrectIDs, a.ID)
			}
		}
	}
	return k
}

// Test is the authoring aggregate: a test with its questions and answers.
type Test struct {
	ID          int64
	Title       string
	Description string
	AuthorID    int64
	Author      string // username, empty if unknown
	CreatedAt   time.Time
	Questions   []Question
}

func (t Test) OwnerID() int64 { return t.AuthorID }

func (t Test) AnswerKey() []grading.Key {
	out := make([]grading.Key, 0, len(t.Questions))
	for _, q := range t.Questions {
		out = append(out, q.GradingKey())
	}
	return out
}

type TestSummary struct {
	ID            int64  `json:"id"`
	Title         string `json:"title"`
	Description   string `json:"description"`
	AuthorID      int64  `json:"author_id"`
	Author        string `json:"author"`
	QuestionCount int    `json:"question_count"`
}

// Attempt is one graded submission. Attempts are never updated.
type Attempt struct {
	ID             int64     `json:"id"`
	UserID         int64     `json:"user_id"`
	TestID         int64     `json:"test_id"`
	Score          int       `json:"score"`
	TotalQuestions int       `json:"total_questions"`
	CreatedAt      time.Time `json:"created_at"`
}

// Percentage is 0 for a zero total, which stored attempts cannot have.
func (a Attempt) Percentage() int { return grading.Percentage(a.Score, a.TotalQuestions) }

// Submission is what a caller gets back after submitting answers.
type Submission struct {
	AttemptID      int64
	CorrectAnswers int
	TotalQuestions int
	Percentage     int
	Outcomes       []grading.Outcome
}
