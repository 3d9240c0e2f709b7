package bookings

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Masterminds/squirrel"

	"github.com/example/teesched/internal/calendar"
	"github.com/example/teesched/internal/db"
)

const table = "bookings"

var columns = []string{
	"id", "owner", "facility", "target_date", "target_time", "participants",
	"secret", "key_material", "attempted_on", "attempts", "last_outcome", "created_at",
}

// Repo is the Record Store. Every method is a single statement, so it is safe to share
// between the scheduler and the API.
type Repo struct {
	db db.Conn
	sq squirrel.StatementBuilderType
}

func NewRepo(d db.Conn) *Repo {
	var ph squirrel.PlaceholderFormat = squirrel.Question
	if d.Dialect() == db.Postgres {
		ph = squirrel.Dollar
	}
	return &Repo{db: d, sq: squirrel.StatementBuilder.PlaceholderFormat(ph)}
}

func (r *Repo) Insert(ctx context.Context, req Request) (int64, error) {
	query, args, err := r.sq.Insert(table).
		Columns("owner", "facility", "target_date", "target_time", "participants", "secret", "key_material").
		Values(req.Owner, req.Facility, req.TargetDate, req.TargetTime, JoinParticipants(req.Participants), req.Secret, req.KeyMaterial).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: Insert: %v", ErrBuildQuery, err)
	}

	var id int64
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("%w: Insert: %v", ErrStoreUnavailable, err)
	}
	return id, nil
}

// ListAll returns every stored request ordered by id. The slice is a snapshot; later
// writes do not affect it.
func (r *Repo) ListAll(ctx context.Context) ([]Request, error) {
	query, args, err := r.sq.Select(columns...).From(table).OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("%w: ListAll: %v", ErrBuildQuery, err)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: ListAll: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		req, err := scan(rows)
		if err != nil {
			// Kept so the scheduler can report it as malformed and leave it in place.
			req.ReadErr = err
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: ListAll: %v", ErrStoreUnavailable, err)
	}
	return out, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (Request, error) {
	query, args, err := r.sq.Select(columns...).From(table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return Request{}, fmt.Errorf("%w: GetByID: %v", ErrBuildQuery, err)
	}

	req, err := scan(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if db.IsNotFound(err) {
			return Request{}, ErrNotFound
		}
		return Request{}, err
	}
	return req, nil
}

// DeleteByID removes the request and reports how many rows went away. A missing id is
// not an error.
func (r *Repo) DeleteByID(ctx context.Context, id int64) (int64, error) {
	query, args, err := r.sq.Delete(table).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("%w: DeleteByID: %v", ErrBuildQuery, err)
	}

	n, err := r.db.ExecRows(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%w: DeleteByID: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// MarkAttempted stamps a retained request with the day it was tried and the outcome.
func (r *Repo) MarkAttempted(ctx context.Context, id int64, day calendar.Date, outcome string) error {
	query, args, err := r.sq.Update(table).
		Set("attempted_on", day.String()).
		Set("attempts", squirrel.Expr("attempts + 1")).
		Set("last_outcome", outcome).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("%w: MarkAttempted: %v", ErrBuildQuery, err)
	}

	if err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: MarkAttempted: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// scan reads every column as the driver's own value and converts afterwards, so a row
// holding a value of the wrong type still yields its id. Such a row comes back together
// with an ErrScanRow error.
func scan(row db.Row) (Request, error) {
	raw := make([]any, len(columns))
	dest := make([]any, len(columns))
	for i := range raw {
		dest[i] = &raw[i]
	}
	if err := row.Scan(dest...); err != nil {
		if db.IsNotFound(err) {
			return Request{}, err
		}
		return Request{}, fmt.Errorf("%w: %v", ErrScanRow, err)
	}

	var (
		d            decoder
		req          Request
		participants string
	)
	req.ID = d.integer(columns[0], raw[0])
	req.Owner = d.str(columns[1], raw[1])
	req.Facility = d.str(columns[2], raw[2])
	req.TargetDate = d.str(columns[3], raw[3])
	req.TargetTime = d.str(columns[4], raw[4])
	participants = d.str(columns[5], raw[5])
	req.Secret = d.str(columns[6], raw[6])
	req.KeyMaterial = d.str(columns[7], raw[7])
	req.AttemptedOn = d.str(columns[8], raw[8])
	req.Attempts = int(d.integer(columns[9], raw[9]))
	req.LastOutcome = d.str(columns[10], raw[10])
	req.CreatedAt = d.timestamp(columns[11], raw[11])
	req.Participants = SplitParticipants(participants)

	if d.err != nil {
		return req, fmt.Errorf("%w: booking %d: %v", ErrScanRow, req.ID, d.err)
	}
	return req, nil
}

// decoder keeps the first conversion error.
type decoder struct{ err error }

func (d *decoder) fail(col string, v any) {
	if d.err == nil {
		d.err = fmt.Errorf("column %s: cannot read %T value", col, v)
	}
}

func (d *decoder) str(col string, v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		d.fail(col, v)
		return ""
	}
}

func (d *decoder) integer(col string, v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case string, []byte:
		n, err := strconv.ParseInt(d.str(col, t), 10, 64)
		if err != nil {
			d.fail(col, v)
		}
		return n
	default:
		d.fail(col, v)
		return 0
	}
}

func (d *decoder) timestamp(col string, v any) time.Time {
	switch t := v.(type) {
	case nil:
		return time.Time{}
	case time.Time:
		return t
	default:
		d.fail(col, v)
		return time.Time{}
	}
}
