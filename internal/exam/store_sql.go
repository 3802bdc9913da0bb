package exam

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/apperr"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/stats"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// SQLStore works on both sqlite and postgres: $n placeholders and
// INSERT ... RETURNING are understood by both drivers.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(d *sql.DB) *SQLStore {
	return &SQLStore{db: d}
}

// Do runs fn inside one transaction. Unclassified errors are reported as
// storage failures; foreign-key violations as conflicts.
func (s *SQLStore) Do(ctx context.Context, fn func(Tx) error) error {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(&sqlTx{tx: tx, events: syncx.NewEventRepo(tx)})
	})
	if err == nil {
		return nil
	}
	if db.IsForeignKeyViolation(err) {
		return &apperr.Error{Kind: apperr.KindConflict, Msg: "operation violates a reference constraint", Err: err}
	}
	return apperr.Storage("storage", err)
}

type sqlTx struct {
	tx     *sql.Tx
	events *syncx.EventRepo
}

func (t *sqlTx) TestHeader(ctx context.Context, id int64) (Test, error) {
	row := t.tx.QueryRowContext(ctx, `
		SELECT t.id, t.title, t.description, t.author_id, COALESCE(u.username, ''), t.created_at
		FROM tests t
		LEFT JOIN users u ON t.author_id = u.id
		WHERE t.id = $1`, id)
	var out Test
	var created int64
	if err := row.Scan(&out.ID, &out.Title, &out.Description, &out.AuthorID, &out.Author, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Test{}, apperr.NotFoundf("test %d not found", id)
		}
		return Test{}, err
	}
	out.CreatedAt = time.Unix(created, 0).UTC()
	return out, nil
}

func (t *sqlTx) LoadTest(ctx context.Context, id int64) (Test, error) {
	out, err := t.TestHeader(ctx, id)
	if err != nil {
		return Test{}, err
	}

	answers, err := t.answersByQuestion(ctx, id)
	if err != nil {
		return Test{}, err
	}

	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, text, question_type, correct_text_answer
		FROM questions WHERE test_id = $1
		ORDER BY position, id`, id)
	if err != nil {
		return Test{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			q       = Question{TestID: id}
			typ     string
			correct sql.NullString
		)
		if err := rows.Scan(&q.ID, &q.Text, &typ, &correct); err != nil {
			return Test{}, err
		}
		switch QuestionType(typ) {
		case TypeText:
			q.Body = TextBody{CorrectText: correct.String}
		case TypeMultiple:
			q.Body = ChoiceBody{Multiple: true, Answers: answers[q.ID]}
		default:
			q.Body = ChoiceBody{Answers: answers[q.ID]}
		}
		out.Questions = append(out.Questions, q)
	}
	return out, rows.Err()
}

func (t *sqlTx) answersByQuestion(ctx context.Context, testID int64) (map[int64][]Answer, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT a.id, a.question_id, a.text, a.is_correct
		FROM answers a
		JOIN questions q ON a.question_id = q.id
		WHERE q.test_id = $1
		ORDER BY a.position, a.id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int64][]Answer{}
	for rows.Next() {
		var a Answer
		if err := rows.Scan(&a.ID, &a.QuestionID, &a.Text, &a.IsCorrect); err != nil {
			return nil, err
		}
		out[a.QuestionID] = append(out[a.QuestionID], a)
	}
	return out, rows.Err()
}

func (t *sqlTx) ListTests(ctx context.Context) ([]TestSummary, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT t.id, t.title, t.description, t.author_id, COALESCE(u.username, ''),
		       (SELECT COUNT(*) FROM questions q WHERE q.test_id = t.id)
		FROM tests t
		LEFT JOIN users u ON t.author_id = u.id
		ORDER BY t.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []TestSummary{}
	for rows.Next() {
		var s TestSummary
		if err := rows.Scan(&s.ID, &s.Title, &s.Description, &s.AuthorID, &s.Author, &s.QuestionCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (t *sqlTx) InsertTest(ctx context.Context, test *Test) error {
	err := t.tx.QueryRowContext(ctx, `
		INSERT INTO tests (title, description, author_id, created_at)
		VALUES ($1,$2,$3,$4)
		RETURNING id`,
		test.Title, test.Description, test.AuthorID, test.CreatedAt.Unix()).Scan(&test.ID)
	if err != nil {
		return err
	}
	return t.InsertQuestions(ctx, test.ID, test.Questions)
}

func (t *sqlTx) UpdateTestInfo(ctx context.Context, id int64, title, description string) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE tests SET title=$1, description=$2 WHERE id=$3`, title, description, id)
	if err != nil {
		return err
	}
	return mustAffect(res, apperr.NotFoundf("test %d not found", id))
}

func (t *sqlTx) DeleteTest(ctx context.Context, id int64) error {
	stmts := []string{
		`DELETE FROM answers WHERE question_id IN (SELECT id FROM questions WHERE test_id = $1)`,
		`DELETE FROM questions WHERE test_id = $1`,
		`DELETE FROM test_results WHERE test_id = $1`,
	}
	for _, q := range stmts {
		if _, err := t.tx.ExecContext(ctx, q, id); err != nil {
			return err
		}
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM tests WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return mustAffect(res, apperr.NotFoundf("test %d not found", id))
}

// InsertQuestions fills in question and answer ids in place.
func (t *sqlTx) InsertQuestions(ctx context.Context, testID int64, qs []Question) error {
	for i := range qs {
		q := &qs[i]
		q.TestID = testID
		var correct sql.NullString
		if tb, ok := q.Body.(TextBody); ok {
			correct = sql.NullString{String: tb.CorrectText, Valid: true}
		}
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO questions (test_id, position, text, question_type, correct_text_answer)
			VALUES ($1,$2,$3,$4,$5)
			RETURNING id`,
			testID, i, q.Text, string(q.Type()), correct).Scan(&q.ID)
		if err != nil {
			return err
		}

		cb, ok := q.Body.(ChoiceBody)
		if !ok {
			continue
		}
		answers := make([]Answer, len(cb.Answers))
		copy(answers, cb.Answers)
		for j := range answers {
			a := &answers[j]
			a.QuestionID = q.ID
			err := t.tx.QueryRowContext(ctx, `
				INSERT INTO answers (question_id, position, text, is_correct)
				VALUES ($1,$2,$3,$4)
				RETURNING id`,
				q.ID, j, a.Text, a.IsCorrect).Scan(&a.ID)
			if err != nil {
				return err
			}
		}
		cb.Answers = answers
		q.Body = cb
	}
	return nil
}

func (t *sqlTx) DeleteQuestions(ctx context.Context, testID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM answers WHERE question_id IN (SELECT id FROM questions WHERE test_id = $1)`, testID); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, `DELETE FROM questions WHERE test_id = $1`, testID)
	return err
}

func (t *sqlTx) QuestionInTest(ctx context.Context, testID, questionID int64) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM questions WHERE id = $1 AND test_id = $2`, questionID, testID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (t *sqlTx) DeleteQuestion(ctx context.Context, questionID int64) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM answers WHERE question_id = $1`, questionID); err != nil {
		return err
	}
	res, err := t.tx.ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, questionID)
	if err != nil {
		return err
	}
	return mustAffect(res, errors.New("question was not deleted"))
}

func (t *sqlTx) CountAttempts(ctx context.Context, testID int64) (int, error) {
	var n int
	err := t.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_results WHERE test_id = $1`, testID).Scan(&n)
	return n, err
}

func (t *sqlTx) InsertAttempt(ctx context.Context, a *Attempt) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO test_results (user_id, test_id, score, total_questions, created_at)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING id`,
		a.UserID, a.TestID, a.Score, a.TotalQuestions, a.CreatedAt.Unix()).Scan(&a.ID)
}

func (t *sqlTx) UserAttempts(ctx context.Context, testID, userID int64) ([]Attempt, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, user_id, test_id, score, total_questions, created_at
		FROM test_results
		WHERE test_id = $1 AND user_id = $2
		ORDER BY id`, testID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		var a Attempt
		var created int64
		if err := rows.Scan(&a.ID, &a.UserID, &a.TestID, &a.Score, &a.TotalQuestions, &created); err != nil {
			return nil, err
		}
		a.CreatedAt = time.Unix(created, 0).UTC()
		out = append(out, a)
	}
	return out, rows.Err()
}

func (t *sqlTx) AttemptRecords(ctx context.Context, testID int64) ([]stats.Record, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT tr.user_id, u.username, COALESCE(g.name, ''), tr.score, tr.total_questions
		FROM test_results tr
		JOIN users u ON tr.user_id = u.id
		LEFT JOIN user_groups g ON u.group_id = g.id
		WHERE tr.test_id = $1
		ORDER BY tr.id`, testID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []stats.Record
	for rows.Next() {
		var r stats.Record
		if err := rows.Scan(&r.UserID, &r.Username, &r.Group, &r.Score, &r.Total); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *sqlTx) AppendEvent(ctx context.Context, typ string, key int64, data any) error {
	return t.events.AppendJSON(ctx, typ, key, data)
}

func (t *sqlTx) EventVersion(ctx context.Context, testID int64) (int64, error) {
	return t.events.LatestSeq(ctx, testID)
}

func mustAffect(res sql.Result, errIfNone error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errIfNone
	}
	return nil
}
