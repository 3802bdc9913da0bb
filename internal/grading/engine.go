package grading

import (
	"math"

	"github.com/mind-engage/mindengage-quiz/internal/apperr"
)

type QuestionType string

const (
	Single   QuestionType = "single"
	Multiple QuestionType = "multiple"
	Text     QuestionType = "text"
)

// Key is the grading view of one question.
// Keep this in sync with exam.Question.GradingKey.
type Key struct {
	QuestionID  int64
	Type        QuestionType
	CorrectText string  // text questions
	CorrectIDs  []int64 // single/multiple questions
}

// Response is one submitted answer. Which field is read depends on the
// question type: AnswerID for single, AnswerIDs for multiple, Text for text.
type Response struct {
	QuestionID int64
	AnswerID   *int64
	AnswerIDs  []int64
	Text       *string
}

// Outcome is the verdict for a single question.
type Outcome struct {
	QuestionID int64
	Correct    bool
}

// Result is the outcome of grading a whole submission.
type Result struct {
	Correct    int
	Total      int
	Percentage int
	Outcomes   []Outcome // in answer-key order
}

// Strategy grades a single question response.
type Strategy interface {
	Grade(k Key, r Response) bool
}

// Grader routes by question type to the correct Strategy.
type Grader struct {
	strategies map[QuestionType]Strategy
}

// NewGrader installs the built-in strategies.
func NewGrader() *Grader {
	return &Grader{
		strategies: map[QuestionType]Strategy{
			Single:   singleStrategy{},
			Multiple: multipleStrategy{},
			Text:     textStrategy{},
		},
	}
}

var defaultGrader = NewGrader()

// Grade grades responses against key with the default strategies.
func Grade(key []Key, responses []Response) (Result, error) {
	return defaultGrader.Grade(key, responses)
}

// Grade requires exactly one response per question of key. Responses that
// reference unknown questions or answer a question twice are rejected.
func (g *Grader) Grade(key []Key, responses []Response) (Result, error) {
	total := len(key)
	if total == 0 {
		return Result{}, apperr.Validationf("test has no questions to grade")
	}
	if len(responses) != total {
		return Result{}, apperr.Validationf("answers are required for all questions: expected %d, got %d", total, len(responses))
	}

	byID := make(map[int64]Key, total)
	for _, k := range key {
		byID[k.QuestionID] = k
	}

	verdicts := make(map[int64]bool, total)
	for _, r := range responses {
		k, ok := byID[r.QuestionID]
		if !ok {
			return Result{}, apperr.Validationf("question %d is not part of this test", r.QuestionID)
		}
		if _, dup := verdicts[r.QuestionID]; dup {
			return Result{}, apperr.Validationf("question %d answered more than once", r.QuestionID)
		}
		s, ok := g.strategies[k.Type]
		if !ok {
			return Result{}, apperr.Validationf("question %d has unsupported type %q", k.QuestionID, k.Type)
		}
		verdicts[r.QuestionID] = s.Grade(k, r)
	}

	res := Result{Total: total, Outcomes: make([]Outcome, 0, total)}
	for _, k := range key {
		ok := verdicts[k.QuestionID]
		if ok {
			res.Correct++
		}
		res.Outcomes = append(res.Outcomes, Outcome{QuestionID: k.QuestionID, Correct: ok})
	}
	res.Percentage = Percentage(res.Correct, res.Total)
	return res, nil
}

// Percentage is correct/total*100 rounded half up. A total of zero yields
// 0; Grade never produces one and test_results rejects it by CHECK, so the
// case only guards hand-built values.
func Percentage(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (correct*200 + total) / (2 * total)
}

// RoundHalfUp rounds x to the nearest integer, halves toward +Inf.
func RoundHalfUp(x float64) int {
	return int(math.Floor(x + 0.5))
}

// --- Strategies ---

type singleStrategy struct{}

func (singleStrategy) Grade(k Key, r Response) bool {
	if r.AnswerID == nil {
		return false
	}
	for _, id := range k.CorrectIDs {
		if id == *r.AnswerID {
			return true
		}
	}
	return false
}

type multipleStrategy struct{}

func (multipleStrategy) Grade(k Key, r Response) bool {
	resp := toSet(r.AnswerIDs)
	if len(resp) != len(r.AnswerIDs) {
		// repeated ids
		return false
	}
	return setEqual(toSet(k.CorrectIDs), resp)
}

type textStrategy struct{}

func (textStrategy) Grade(k Key, r Response) bool {
	if r.Text == nil {
		return false
	}
	got := normalize(*r.Text)
	return got != "" && got == normalize(k.CorrectText)
}

// helpers

func toSet(ids []int64) map[int64]struct{} {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

func setEqual(a, b map[int64]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
