package exam

import (
	"context"

	"github.com/mind-engage/mindengage-quiz/internal/stats"
)

// Store runs units of work against the persistent store. fn's writes are
// committed together when it returns nil and rolled back otherwise.
type Store interface {
	Do(ctx context.Context, fn func(Tx) error) error
}

// Tx is the set of operations available inside one transaction.
type Tx interface {
	// TestHeader loads a test without its questions.
	TestHeader(ctx context.Context, id int64) (Test, error)
	// LoadTest loads a test with ordered questions and answers.
	LoadTest(ctx context.Context, id int64) (Test, error)
	ListTests(ctx context.Context) ([]TestSummary, error)

	// InsertTest assigns ids to t, its questions and their answers.
	InsertTest(ctx context.Context, t *Test) error
	UpdateTestInfo(ctx context.Context, id int64, title, description string) error
	// DeleteTest removes answers, questions, attempts and the test, in that order.
	DeleteTest(ctx context.Context, id int64) error

	InsertQuestions(ctx context.Context, testID int64, qs []Question) error
	// DeleteQuestions removes every question of a test along with its answers.
	DeleteQuestions(ctx context.Context, testID int64) error
	QuestionInTest(ctx context.Context, testID, questionID int64) (bool, error)
	DeleteQuestion(ctx context.Context, questionID int64) error

	CountAttempts(ctx context.Context, testID int64) (int, error)
	InsertAttempt(ctx context.Context, a *Attempt) error
	UserAttempts(ctx context.Context, testID, userID int64) ([]Attempt, error)
	AttemptRecords(ctx context.Context, testID int64) ([]stats.Record, error)

	AppendEvent(ctx context.Context, typ string, key int64, data any) error
	// EventVersion is the sequence of the newest event recorded for a test.
	// Every mutation of a test or its attempts appends one.
	EventVersion(ctx context.Context, testID int64) (int64, error)
}
