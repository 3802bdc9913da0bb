package exam

import (
	"context"
	"log/slog"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/apperr"
	"github.com/mind-engage/mindengage-quiz/internal/grading"
	"github.com/mind-engage/mindengage-quiz/internal/rbac"
	"github.com/mind-engage/mindengage-quiz/internal/stats"
	syncx "github.com/mind-engage/mindengage-quiz/internal/sync"
)

// Service is the entry point for authoring, grading and statistics. Every
// call is checked against the access policy before anything is written.
type Service struct {
	store  Store
	grader *grading.Grader
	cache  stats.Cache
	log    *slog.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithCache(c stats.Cache) Option        { return func(s *Service) { s.cache = c } }
func WithLogger(l *slog.Logger) Option      { return func(s *Service) { s.log = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		grader: grading.NewGrader(),
		cache:  stats.NopCache{},
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) List(ctx context.Context) ([]TestSummary, error) {
	var out []TestSummary
	err := s.store.Do(ctx, func(tx Tx) (err error) {
		out, err = tx.ListTests(ctx)
		return err
	})
	return out, s.fail("list tests", err)
}

func (s *Service) Get(ctx context.Context, id int64) (Test, error) {
	var out Test
	err := s.store.Do(ctx, func(tx Tx) (err error) {
		out, err = tx.LoadTest(ctx, id)
		return err
	})
	return out, s.fail("get test", err)
}

func (s *Service) Create(ctx context.Context, p rbac.Principal, d TestDraft) (Test, error) {
	if !rbac.CanCreate(p) {
		return Test{}, s.deny(p, "create test", 0)
	}
	title, err := validateTitle(d.Title)
	if err != nil {
		return Test{}, err
	}
	questions, err := buildQuestions(d.Questions)
	if err != nil {
		return Test{}, err
	}

	t := Test{
		Title:       title,
		Description: d.Description,
		AuthorID:    p.ID,
		CreatedAt:   s.now().UTC().Truncate(time.Second),
		Questions:   questions,
	}
	err = s.store.Do(ctx, func(tx Tx) error {
		if err := tx.InsertTest(ctx, &t); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, syncx.TestCreated, t.ID, map[string]any{
			"author_id": p.ID,
			"questions": len(t.Questions),
		})
	})
	if err != nil {
		return Test{}, s.fail("create test", err)
	}
	s.log.Info("test created", "test_id", t.ID, "author_id", p.ID, "questions", len(t.Questions))
	return t, nil
}

// Update patches title and description independently. A non-nil
// patch.Questions replaces every question of the test.
func (s *Service) Update(ctx context.Context, p rbac.Principal, id int64, patch TestPatch) (Test, error) {
	if !rbac.CanCreate(p) {
		return Test{}, s.deny(p, "update test", id)
	}

	var title *string
	if patch.Title != nil {
		t, err := validateTitle(*patch.Title)
		if err != nil {
			return Test{}, err
		}
		title = &t
	}
	var questions []Question
	if patch.Questions != nil {
		qs, err := buildQuestions(patch.Questions)
		if err != nil {
			return Test{}, err
		}
		questions = qs
	}

	var out Test
	err := s.store.Do(ctx, func(tx Tx) error {
		cur, err := tx.TestHeader(ctx, id)
		if err != nil {
			return err
		}
		if !rbac.CanEdit(p, cur) {
			return s.deny(p, "update test", id)
		}

		if title != nil || patch.Description != nil {
			newTitle, newDesc := cur.Title, cur.Description
			if title != nil {
				newTitle = *title
			}
			if patch.Description != nil {
				newDesc = *patch.Description
			}
			if err := tx.UpdateTestInfo(ctx, id, newTitle, newDesc); err != nil {
				return err
			}
		}

		if questions != nil {
			if err := tx.DeleteQuestions(ctx, id); err != nil {
				return err
			}
			if err := tx.InsertQuestions(ctx, id, questions); err != nil {
				return err
			}
		}

		if err := tx.AppendEvent(ctx, syncx.TestUpdated, id, map[string]any{
			"by":                 p.ID,
			"questions_replaced": questions != nil,
		}); err != nil {
			return err
		}
		out, err = tx.LoadTest(ctx, id)
		return err
	})
	if err != nil {
		return Test{}, s.fail("update test", err)
	}
	s.invalidate(ctx, id)
	return out, nil
}

func (s *Service) Delete(ctx context.Context, p rbac.Principal, id int64) error {
	if !rbac.CanCreate(p) {
		return s.deny(p, "delete test", id)
	}
	err := s.store.Do(ctx, func(tx Tx) error {
		cur, err := tx.TestHeader(ctx, id)
		if err != nil {
			return err
		}
		if !rbac.CanDelete(p, cur) {
			return s.deny(p, "delete test", id)
		}
		if err := tx.DeleteTest(ctx, id); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, syncx.TestDeleted, id, map[string]any{"by": p.ID})
	})
	if err != nil {
		return s.fail("delete test", err)
	}
	s.invalidate(ctx, id)
	s.log.Info("test deleted", "test_id", id, "by", p.ID)
	return nil
}

// DeleteQuestion refuses to touch a test that already has attempts, so
// recorded scores always match the question set they were graded against.
func (s *Service) DeleteQuestion(ctx context.Context, p rbac.Principal, testID, questionID int64) error {
	if !rbac.CanCreate(p) {
		return s.deny(p, "delete question", testID)
	}
	err := s.store.Do(ctx, func(tx Tx) error {
		cur, err := tx.TestHeader(ctx, testID)
		if err != nil {
			return err
		}
		if !rbac.CanEdit(p, cur) {
			return s.deny(p, "delete question", testID)
		}
		ok, err := tx.QuestionInTest(ctx, testID, questionID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFoundf("question %d not found in test %d", questionID, testID)
		}
		n, err := tx.CountAttempts(ctx, testID)
		if err != nil {
			return err
		}
		if n > 0 {
			return apperr.Conflictf("cannot modify a test that already has attempts")
		}
		if err := tx.DeleteQuestion(ctx, questionID); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, syncx.QuestionDeleted, testID, map[string]any{
			"question_id": questionID,
			"by":          p.ID,
		})
	})
	if err != nil {
		return s.fail("delete question", err)
	}
	s.invalidate(ctx, testID)
	return nil
}

// Submit grades responses against the test's answer key and records the
// attempt.
func (s *Service) Submit(ctx context.Context, p rbac.Principal, testID int64, responses []grading.Response) (Submission, error) {
	if !p.Role.Valid() {
		return Submission{}, s.deny(p, "submit attempt", testID)
	}
	var out Submission
	err := s.store.Do(ctx, func(tx Tx) error {
		t, err := tx.LoadTest(ctx, testID)
		if err != nil {
			return err
		}
		res, err := s.grader.Grade(t.AnswerKey(), responses)
		if err != nil {
			return err
		}
		a := Attempt{
			UserID:         p.ID,
			TestID:         testID,
			Score:          res.Correct,
			TotalQuestions: res.Total,
			CreatedAt:      s.now().UTC().Truncate(time.Second),
		}
		if err := tx.InsertAttempt(ctx, &a); err != nil {
			return err
		}
		out = Submission{
			AttemptID:      a.ID,
			CorrectAnswers: res.Correct,
			TotalQuestions: res.Total,
			Percentage:     res.Percentage,
			Outcomes:       res.Outcomes,
		}
		return tx.AppendEvent(ctx, syncx.AttemptSubmitted, testID, map[string]any{
			"attempt_id": a.ID,
			"user_id":    p.ID,
			"score":      a.Score,
			"total":      a.TotalQuestions,
		})
	})
	if err != nil {
		return Submission{}, s.fail("submit attempt", err)
	}
	s.invalidate(ctx, testID)
	return out, nil
}

// Results lists the caller's own attempts at a test.
func (s *Service) Results(ctx context.Context, p rbac.Principal, testID int64) ([]Attempt, error) {
	var out []Attempt
	err := s.store.Do(ctx, func(tx Tx) error {
		if _, err := tx.TestHeader(ctx, testID); err != nil {
			return err
		}
		var err error
		out, err = tx.UserAttempts(ctx, testID, p.ID)
		return err
	})
	return out, s.fail("list results", err)
}

// Statistics summarizes every attempt at a test. Only admins and the
// test's author may read it.
func (s *Service) Statistics(ctx context.Context, p rbac.Principal, testID int64) (stats.Summary, error) {
	if !rbac.CanCreate(p) {
		return stats.Summary{}, s.deny(p, "view statistics", testID)
	}
	var out stats.Summary
	err := s.store.Do(ctx, func(tx Tx) error {
		cur, err := tx.TestHeader(ctx, testID)
		if err != nil {
			return err
		}
		if !rbac.CanViewStatistics(p, cur) {
			return s.deny(p, "view statistics", testID)
		}

		// Read before the attempts: a submit landing in between then leaves
		// this result under a version nobody asks for again.
		version, err := tx.EventVersion(ctx, testID)
		if err != nil {
			return err
		}
		cached, ok, err := s.cache.Get(ctx, testID, version)
		if err != nil {
			s.log.Warn("stats cache unavailable", "test_id", testID, "err", err)
		}
		if ok {
			out = cached
			return nil
		}

		records, err := tx.AttemptRecords(ctx, testID)
		if err != nil {
			return err
		}
		out = stats.Summarize(records)
		if err := s.cache.Put(ctx, testID, version, out); err != nil {
			s.log.Warn("stats cache put failed", "test_id", testID, "err", err)
		}
		return nil
	})
	if err != nil {
		return stats.Summary{}, s.fail("statistics", err)
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, testID int64) {
	if err := s.cache.Invalidate(ctx, testID); err != nil {
		s.log.Warn("stats cache invalidate failed", "test_id", testID, "err", err)
	}
}

func (s *Service) deny(p rbac.Principal, action string, testID int64) error {
	s.log.Warn("access denied", "action", action, "test_id", testID, "user_id", p.ID, "role", p.Role)
	return apperr.Forbidden("not allowed to " + action)
}

// fail logs storage failures; classified errors pass through quietly.
func (s *Service) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) == apperr.KindStorage {
		s.log.Error(op+" failed", "err", err)
	}
	return err
}
