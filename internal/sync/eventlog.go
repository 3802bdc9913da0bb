package syncx

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/mind-engage/mindengage-quiz/internal/db"
)

const (
	TestCreated      = "TestCreated"
	TestUpdated      = "TestUpdated"
	TestDeleted      = "TestDeleted"
	QuestionDeleted  = "QuestionDeleted"
	AttemptSubmitted = "AttemptSubmitted"
)

type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string
	DataJSON  string
	CreatedAt int64
}

// EventRepo appends to event_log through q, which is usually the *sql.Tx of
// the mutation the event describes.
type EventRepo struct {
	q      db.Querier
	siteID string
	now    func() time.Time
}

func NewEventRepo(q db.Querier) *EventRepo {
	return &EventRepo{q: q, siteID: "local", now: time.Now}
}

func (r *EventRepo) Append(ctx context.Context, e Event) error {
	if e.SiteID == "" {
		e.SiteID = r.siteID
	}
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		e.SiteID, e.Type, e.Key, e.DataJSON, r.now().Unix())
	return err
}

// AppendJSON marshals data and appends it under the numeric key.
func (r *EventRepo) AppendJSON(ctx context.Context, typ string, key int64, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return r.Append(ctx, Event{Type: typ, Key: strconv.FormatInt(key, 10), DataJSON: string(buf)})
}

// LatestSeq returns the sequence of the newest event for key, or 0.
func (r *EventRepo) LatestSeq(ctx context.Context, key int64) (int64, error) {
	var seq int64
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) FROM event_log WHERE key=$1`, strconv.FormatInt(key, 10)).Scan(&seq)
	return seq, err
}

// List returns events for key in append order.
func (r *EventRepo) List(ctx context.Context, key string) ([]Event, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT seq, site_id, typ, key, data, created_at FROM event_log WHERE key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
