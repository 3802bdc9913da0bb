package exam

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-quiz/internal/apperr"
	"github.com/mind-engage/mindengage-quiz/internal/db"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/stats"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

type fixture struct {
	db      *sql.DB
	svc     *Service
	admin   rbac.Principal
	teacher rbac.Principal
	other   rbac.Principal // second teacher
	alice   rbac.Principal // student, group A-1
	bob     rbac.Principal // student, no group
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx := context.Background()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=foreign_keys(1)"
	d, err := db.Open(ctx, db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	res, err := d.Exec(`INSERT INTO user_groups (name) VALUES ('A-1')`)
	require.NoError(t, err)
	groupID, err := res.LastInsertId()
	require.NoError(t, err)

	addUser := func(name string, role rbac.Role, group any) rbac.Principal {
		var id int64
		err := d.QueryRow(`INSERT INTO users (username, role, group_id, created_at) VALUES ($1,$2,$3,$4) RETURNING id`,
			name, string(role), group, time.Now().Unix()).Scan(&id)
		require.NoError(t, err)
		return rbac.Principal{ID: id, Role: role}
	}

	f := &fixture{db: d}
	f.admin = addUser("root", rbac.RoleAdmin, nil)
	f.teacher = addUser("tess", rbac.RoleTeacher, nil)
	f.other = addUser("otto", rbac.RoleTeacher, nil)
	f.alice = addUser("alice", rbac.RoleStudent, groupID)
	f.bob = addUser("bob", rbac.RoleStudent, nil)

	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	f.svc = NewService(NewSQLStore(d), opts...)
	return f
}

func (f *fixture) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, f.db.QueryRow(query, args...).Scan(&n))
	return n
}

func geographyDraft() TestDraft {
	return TestDraft{
		Title:       "Geography",
		Description: "capitals and rivers",
		Questions: []QuestionDraft{
			{
				Text: "Capital of France?",
				Answers: []AnswerDraft{
					{Text: "Paris", IsCorrect: true},
					{Text: "Lyon"},
				},
			},
			{
				Text: "Which are rivers?",
				Type: TypeMultiple,
				Answers: []AnswerDraft{
					{Text: "Seine", IsCorrect: true},
					{Text: "Alps"},
					{Text: "Loire", IsCorrect: true},
				},
			},
			{
				Text:        "Type the capital of France",
				Type:        TypeText,
				CorrectText: "Paris",
			},
		},
	}
}

func correctIDs(q Question) []int64 {
	var out []int64
	for _, a := range q.Answers() {
		if a.IsCorrect {
			out = append(out, a.ID)
		}
	}
	return out
}

func wrongID(q Question) int64 {
	for _, a := range q.Answers() {
		if !a.IsCorrect {
			return a.ID
		}
	}
	return 0
}

func ptr[T any](v T) *T { return &v }

// perfect answers every question of t correctly.
func perfect(t Test) []grading.Response {
	var out []grading.Response
	for _, q := range t.Questions {
		switch q.Type() {
		case TypeSingle:
			out = append(out, grading.Response{QuestionID: q.ID, AnswerID: ptr(correctIDs(q)[0])})
		case TypeMultiple:
			out = append(out, grading.Response{QuestionID: q.ID, AnswerIDs: correctIDs(q)})
		case TypeText:
			out = append(out, grading.Response{QuestionID: q.ID, Text: ptr(q.Body.(TextBody).CorrectText)})
		}
	}
	return out
}

func TestCreate_AssignsIDsAndPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)
	require.NotZero(t, created.ID)
	require.Len(t, created.Questions, 3)
	for _, q := range created.Questions {
		assert.NotZero(t, q.ID)
		for _, a := range q.Answers() {
			assert.NotZero(t, a.ID)
			assert.Equal(t, q.ID, a.QuestionID)
		}
	}
	assert.Equal(t, f.teacher.ID, created.AuthorID)

	got, err := f.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Geography", got.Title)
	assert.Equal(t, "tess", got.Author)
	require.Len(t, got.Questions, 3)
	assert.Equal(t, TypeSingle, got.Questions[0].Type())
	assert.Equal(t, TypeMultiple, got.Questions[1].Type())
	assert.Equal(t, TypeText, got.Questions[2].Type())
	assert.Equal(t, "Paris", got.Questions[2].Body.(TextBody).CorrectText)

	list, err := f.svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 3, list[0].QuestionCount)

	events, err := syncx.NewEventRepo(f.db).List(ctx, strconv.FormatInt(created.ID, 10))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, syncx.TestCreated, events[0].Type)
}

func TestCreate_StudentForbidden(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), f.alice, geographyDraft())
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM tests`))
}

func TestCreate_ValidationLeavesNothingBehind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := map[string]func(*TestDraft){
		"short title":          func(d *TestDraft) { d.Title = " ab " },
		"no questions":         func(d *TestDraft) { d.Questions = nil },
		"empty question text":  func(d *TestDraft) { d.Questions[0].Text = "  " },
		"no correct answer":    func(d *TestDraft) { d.Questions[0].Answers[0].IsCorrect = false },
		"two correct (single)": func(d *TestDraft) { d.Questions[0].Answers[1].IsCorrect = true },
		"empty answer text":    func(d *TestDraft) { d.Questions[1].Answers[1].Text = "" },
		"no answers":           func(d *TestDraft) { d.Questions[1].Answers = nil },
		"text without answer":  func(d *TestDraft) { d.Questions[2].CorrectText = " " },
		"unknown type":         func(d *TestDraft) { d.Questions[0].Type = "essay" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := geographyDraft()
			mutate(&d)
			_, err := f.svc.Create(ctx, f.teacher, d)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM tests`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM questions`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM answers`))
}

func TestCreate_UnknownAuthorRollsBack(t *testing.T) {
	f := newFixture(t)
	ghost := rbac.Principal{ID: 9999, Role: rbac.RoleTeacher}
	_, err := f.svc.Create(context.Background(), ghost, geographyDraft())
	require.Error(t, err)
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM tests`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM questions`))
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Get(context.Background(), 42)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestSubmit_AllCorrect(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)

	sub, err := f.svc.Submit(ctx, f.alice, test.ID, perfect(test))
	require.NoError(t, err)
	assert.Equal(t, 3, sub.CorrectAnswers)
	assert.Equal(t, 3, sub.TotalQuestions)
	assert.Equal(t, 100, sub.Percentage)
	assert.NotZero(t, sub.AttemptID)

	results, err := f.svc.Results(ctx, f.alice, test.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 3, results[0].Score)
	assert.Equal(t, 100, results[0].Percentage())

	others, err := f.svc.Results(ctx, f.bob, test.ID)
	require.NoError(t, err)
	assert.Empty(t, others)
}

func TestSubmit_PartialAndText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)
	single, multi, text := test.Questions[0], test.Questions[1], test.Questions[2]

	cases := []struct {
		name      string
		responses []grading.Response
		correct   int
		percent   int
	}{
		{
			name: "wrong single, subset, padded text",
			responses: []grading.Response{
				{QuestionID: single.ID, AnswerID: ptr(wrongID(single))},
				{QuestionID: multi.ID, AnswerIDs: correctIDs(multi)[:1]},
				{QuestionID: text.ID, Text: ptr("  paris ")},
			},
			correct: 1, percent: 33,
		},
		{
			name: "superset and misspelled",
			responses: []grading.Response{
				{QuestionID: single.ID, AnswerID: ptr(correctIDs(single)[0])},
				{QuestionID: multi.ID, AnswerIDs: append(correctIDs(multi), wrongID(multi))},
				{QuestionID: text.ID, Text: ptr("Pariss")},
			},
			correct: 1, percent: 33,
		},
		{
			name: "order of multiple ids does not matter",
			responses: []grading.Response{
				{QuestionID: single.ID, AnswerID: ptr(correctIDs(single)[0])},
				{QuestionID: multi.ID, AnswerIDs: []int64{correctIDs(multi)[1], correctIDs(multi)[0]}},
				{QuestionID: text.ID},
			},
			correct: 2, percent: 67,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sub, err := f.svc.Submit(ctx, f.bob, test.ID, tc.responses)
			require.NoError(t, err)
			assert.Equal(t, tc.correct, sub.CorrectAnswers)
			assert.Equal(t, tc.percent, sub.Percentage)
		})
	}
}

func TestSubmit_RejectsIncompleteSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)

	_, err = f.svc.Submit(ctx, f.alice, test.ID, perfect(test)[:2])
	assert.ErrorIs(t, err, apperr.ErrValidation)

	dup := perfect(test)
	dup[2] = dup[0]
	_, err = f.svc.Submit(ctx, f.alice, test.ID, dup)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM test_results`))
}

func TestSubmit_UnknownTest(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Submit(context.Background(), f.alice, 77, nil)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdate_ReplacesQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := geographyDraft()
	d.Questions = d.Questions[:2]
	test, err := f.svc.Create(ctx, f.teacher, d)
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, f.teacher, test.ID, TestPatch{
		Title: ptr("Geography II"),
		Questions: []QuestionDraft{
			{Text: "Longest river in France?", Type: TypeText, CorrectText: "Loire"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Geography II", updated.Title)
	assert.Equal(t, "capitals and rivers", updated.Description)
	require.Len(t, updated.Questions, 1)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM questions WHERE test_id = $1`, test.ID))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM answers`))
}

func TestUpdate_InfoOnlyKeepsQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)

	updated, err := f.svc.Update(ctx, f.admin, test.ID, TestPatch{Description: ptr("")})
	require.NoError(t, err)
	assert.Equal(t, "Geography", updated.Title)
	assert.Equal(t, "", updated.Description)
	assert.Len(t, updated.Questions, 3)
}

func TestUpdate_FailedReplacementRestoresQuestions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)

	svc := NewService(wrapStore{
		Store: NewSQLStore(f.db),
		wrap:  func(tx Tx) Tx { return failingInsertTx{Tx: tx} },
	}, WithLogger(quietLogger()))

	_, err = svc.Update(ctx, f.teacher, test.ID, TestPatch{
		Title:     ptr("Geography II"),
		Questions: []QuestionDraft{{Text: "Longest river?", Type: TypeText, CorrectText: "Loire"}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStorage)

	got, err := f.svc.Get(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, "Geography", got.Title)
	require.Len(t, got.Questions, 3)
	for i, q := range got.Questions {
		assert.Equal(t, test.Questions[i].ID, q.ID)
		assert.Equal(t, test.Questions[i].Answers(), q.Answers())
	}
	assert.Equal(t, 3, f.count(t, `SELECT COUNT(*) FROM questions WHERE test_id = $1`, test.ID))
	assert.Equal(t, 5, f.count(t, `SELECT COUNT(*) FROM answers`))
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM event_log WHERE key = $1`, strconv.FormatInt(test.ID, 10)))
}

func TestUpdate_Authorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.other, test.ID, TestPatch{Title: ptr("Hijacked")})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	_, err = f.svc.Update(ctx, f.alice, test.ID, TestPatch{Title: ptr("Hijacked")})
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	_, err = f.svc.Update(ctx, f.teacher, test.ID+100, TestPatch{Title: ptr("Missing")})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Update(ctx, f.teacher, test.ID, TestPatch{Title: ptr("x")})
	assert.ErrorIs(t, err, apperr.ErrValidation)

	got, err := f.svc.Get(ctx, test.ID)
	require.NoError(t, err)
	assert.Equal(t, "Geography", got.Title)
}

func TestDelete_CascadesEverything(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.alice, test.ID, perfect(test))
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, f.other, test.ID), apperr.ErrAuthorization)
	require.NoError(t, f.svc.Delete(ctx, f.teacher, test.ID))

	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM tests`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM questions`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM answers`))
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM test_results`))

	assert.ErrorIs(t, f.svc.Delete(ctx, f.teacher, test.ID), apperr.ErrNotFound)
}

func TestDelete_AdminMayDeleteAnyTest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)
	require.NoError(t, f.svc.Delete(ctx, f.admin, test.ID))
}

func TestDeleteQuestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)
	other, err := f.svc.Create(ctx, f.other, geographyDraft())
	require.NoError(t, err)

	q := test.Questions[1]
	assert.ErrorIs(t, f.svc.DeleteQuestion(ctx, f.other, test.ID, q.ID), apperr.ErrAuthorization)
	assert.ErrorIs(t, f.svc.DeleteQuestion(ctx, f.teacher, test.ID, other.Questions[0].ID), apperr.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteQuestion(ctx, f.teacher, test.ID+100, q.ID), apperr.ErrNotFound)

	require.NoError(t, f.svc.DeleteQuestion(ctx, f.teacher, test.ID, q.ID))
	got, err := f.svc.Get(ctx, test.ID)
	require.NoError(t, err)
	assert.Len(t, got.Questions, 2)
	assert.Equal(t, 0, f.count(t, `SELECT COUNT(*) FROM answers WHERE question_id = $1`, q.ID))
}

func TestDeleteQuestion_ConflictAfterAttempt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, f.alice, test.ID, perfect(test))
	require.NoError(t, err)

	err = f.svc.DeleteQuestion(ctx, f.teacher, test.ID, test.Questions[0].ID)
	assert.ErrorIs(t, err, apperr.ErrConflict)
	assert.Equal(t, "cannot modify a test that already has attempts", apperr.Message(err))
	assert.Equal(t, 3, f.count(t, `SELECT COUNT(*) FROM questions WHERE test_id = $1`, test.ID))
}

func TestStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := geographyDraft()
	d.Questions = []QuestionDraft{
		{Text: "2+2?", Type: TypeText, CorrectText: "4"},
		{Text: "3+3?", Type: TypeText, CorrectText: "6"},
	}
	test, err := f.svc.Create(ctx, f.teacher, d)
	require.NoError(t, err)
	q1, q2 := test.Questions[0].ID, test.Questions[1].ID

	submit := func(p rbac.Principal, a1, a2 string) {
		_, err := f.svc.Submit(ctx, p, test.ID, []grading.Response{
			{QuestionID: q1, Text: ptr(a1)},
			{QuestionID: q2, Text: ptr(a2)},
		})
		require.NoError(t, err)
	}
	submit(f.alice, "4", "6")
	submit(f.alice, "4", "x")
	submit(f.bob, "x", "x")

	sum, err := f.svc.Statistics(ctx, f.teacher, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.TotalUsers)
	assert.Equal(t, 3, sum.TotalAttempts)
	require.Len(t, sum.UserStats, 2)

	a := sum.UserStats[0]
	assert.Equal(t, "alice", a.Username)
	assert.Equal(t, "A-1", a.Group)
	assert.Equal(t, 2, a.Attempts)
	assert.Equal(t, 100, a.BestScore)
	assert.Equal(t, 50, a.WorstScore)
	assert.Equal(t, 75, a.AverageScore)

	b := sum.UserStats[1]
	assert.Equal(t, "bob", b.Username)
	assert.Equal(t, stats.Unassigned, b.Group)
	assert.Equal(t, 0, b.BestScore)

	_, err = f.svc.Statistics(ctx, f.other, test.ID)
	assert.ErrorIs(t, err, apperr.ErrAuthorization)
	_, err = f.svc.Statistics(ctx, f.alice, test.ID)
	assert.ErrorIs(t, err, apperr.ErrAuthorization)

	_, err = f.svc.Statistics(ctx, f.admin, test.ID)
	assert.NoError(t, err)
	_, err = f.svc.Statistics(ctx, f.admin, test.ID+100)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestStatistics_NoAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)

	sum, err := f.svc.Statistics(ctx, f.teacher, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sum.TotalUsers)
	assert.Equal(t, 0, sum.TotalAttempts)
	assert.Empty(t, sum.UserStats)
}

type cacheKey struct{ test, version int64 }

// memCache counts hits so the service's cache use can be observed.
type memCache struct {
	m           map[cacheKey]stats.Summary
	hits, drops int
}

func newMemCache() *memCache { return &memCache{m: map[cacheKey]stats.Summary{}} }

func (c *memCache) Get(_ context.Context, id, version int64) (stats.Summary, bool, error) {
	s, ok := c.m[cacheKey{id, version}]
	if ok {
		c.hits++
	}
	return s, ok, nil
}

func (c *memCache) Put(_ context.Context, id, version int64, s stats.Summary) error {
	c.m[cacheKey{id, version}] = s
	return nil
}

func (c *memCache) Invalidate(_ context.Context, id int64) error {
	c.drops++
	for k := range c.m {
		if k.test == id {
			delete(c.m, k)
		}
	}
	return nil
}

// wrapStore hands every unit of work a decorated Tx.
type wrapStore struct {
	Store
	wrap func(Tx) Tx
}

func (s wrapStore) Do(ctx context.Context, fn func(Tx) error) error {
	return s.Store.Do(ctx, func(tx Tx) error { return fn(s.wrap(tx)) })
}

// afterRecordsTx runs hook once, right after the attempts were read.
type afterRecordsTx struct {
	Tx
	hook func(Tx)
}

func (t afterRecordsTx) AttemptRecords(ctx context.Context, testID int64) ([]stats.Record, error) {
	recs, err := t.Tx.AttemptRecords(ctx, testID)
	if err == nil && t.hook != nil {
		t.hook(t.Tx)
	}
	return recs, err
}

type failingInsertTx struct{ Tx }

func (failingInsertTx) InsertQuestions(context.Context, int64, []Question) error {
	return errors.New("disk full")
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestStatistics_CacheInvalidatedBySubmit(t *testing.T) {
	cache := newMemCache()
	f := newFixture(t, WithCache(cache))
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)

	first, err := f.svc.Statistics(ctx, f.teacher, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.TotalAttempts)

	_, err = f.svc.Statistics(ctx, f.teacher, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.hits)

	_, err = f.svc.Submit(ctx, f.alice, test.ID, perfect(test))
	require.NoError(t, err)
	assert.Equal(t, 1, cache.drops)

	fresh, err := f.svc.Statistics(ctx, f.teacher, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalAttempts)
}

func TestStatistics_SubmitDuringComputeIsNotHiddenByCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	test, err := f.svc.Create(ctx, f.teacher, geographyDraft())
	require.NoError(t, err)

	cache := newMemCache()
	fired := false
	store := wrapStore{Store: NewSQLStore(f.db), wrap: func(tx Tx) Tx {
		return afterRecordsTx{Tx: tx, hook: func(inner Tx) {
			if fired {
				return
			}
			fired = true
			// an attempt is recorded and the cache dropped after the
			// attempts were read but before the summary is stored
			a := Attempt{UserID: f.alice.ID, TestID: test.ID, Score: 3, TotalQuestions: 3, CreatedAt: time.Now()}
			require.NoError(t, inner.InsertAttempt(ctx, &a))
			require.NoError(t, inner.AppendEvent(ctx, syncx.AttemptSubmitted, test.ID, map[string]any{"attempt_id": a.ID}))
			require.NoError(t, cache.Invalidate(ctx, test.ID))
		}}
	}}
	svc := NewService(store, WithCache(cache), WithLogger(quietLogger()))

	stale, err := svc.Statistics(ctx, f.teacher, test.ID)
	require.NoError(t, err)
	require.True(t, fired)
	assert.Equal(t, 0, stale.TotalAttempts)
	assert.Equal(t, 1, f.count(t, `SELECT COUNT(*) FROM test_results WHERE test_id = $1`, test.ID))

	fresh, err := svc.Statistics(ctx, f.teacher, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.TotalAttempts)
	assert.Equal(t, 1, fresh.TotalUsers)
	assert.Zero(t, cache.hits)

	again, err := svc.Statistics(ctx, f.teacher, test.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, again.TotalAttempts)
	assert.Equal(t, 1, cache.hits)
}
