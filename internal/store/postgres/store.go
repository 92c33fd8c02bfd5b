// Package postgres is a queue.Store on PostgreSQL through the pgx
// database/sql driver. Conditional writes are single UPDATE statements
// guarded by the expected status.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

//go:embed schema.sql
var schema string

const entryColumns = `id, customer_id, service_type, motorcycle_id, plate, mileage_km, notes, details,
status, position, verification_code, assigned_to, joined_at, called_at, created_at, updated_at,
expires_at, session_id, requeued_from`

const sessionColumns = `id, user_id, created_at, expires_at, is_active, has_generated_ticket`

// Open connects with the pgx driver and applies pool limits.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(15 * time.Minute)
	return db, nil
}

// Store implements queue.Store.
type Store struct {
	db *sql.DB
}

var _ queue.Store = (*Store)(nil)

// New wraps db. The caller owns db.
func New(db *sql.DB) *Store { return &Store{db: db} }

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return classify("migrate", err)
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return classify("ping", s.db.PingContext(ctx))
}

// classify maps unique violations to ErrAlreadyExists and connection or
// serialization failures to transient errors.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return queue.ErrAlreadyExists
		case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "57P01", pgErr.Code == "53300":
			return queue.Transient("postgres "+op, err)
		}
		return fmt.Errorf("postgres %s: %w", op, err)
	}
	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return queue.Transient("postgres "+op, err)
	}
	return fmt.Errorf("postgres %s: %w", op, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(r rowScanner) (queue.Entry, error) {
	var (
		e        queue.Entry
		mileage  sql.NullFloat64
		details  []byte
		calledAt sql.NullTime
	)
	err := r.Scan(&e.ID, &e.CustomerID, &e.ServiceType, &e.MotorcycleID, &e.Plate, &mileage, &e.Notes, &details,
		&e.Status, &e.Position, &e.VerificationCode, &e.AssignedTo, &e.JoinedAt, &calledAt, &e.CreatedAt, &e.UpdatedAt,
		&e.ExpiresAt, &e.SessionID, &e.RequeuedFrom)
	if err != nil {
		return queue.Entry{}, err
	}
	if mileage.Valid {
		v := mileage.Float64
		e.MileageKm = &v
	}
	if calledAt.Valid {
		t := calledAt.Time
		e.CalledAt = &t
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &e.Details); err != nil {
			return queue.Entry{}, fmt.Errorf("decode details: %w", err)
		}
	}
	return e, nil
}

func (s *Store) Get(ctx context.Context, id string) (queue.Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM queue_entries WHERE id = $1`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Entry{}, queue.ErrNotFound
	}
	if err != nil {
		return queue.Entry{}, classify("get entry", err)
	}
	return e, nil
}

func (s *Store) Query(ctx context.Context, f queue.Filter) ([]queue.Entry, error) {
	var (
		q    strings.Builder
		args []any
	)
	q.WriteString(`SELECT ` + entryColumns + ` FROM queue_entries`)
	if len(f.Statuses) > 0 {
		q.WriteString(` WHERE status IN (`)
		for i, st := range f.Statuses {
			if i > 0 {
				q.WriteString(", ")
			}
			args = append(args, string(st))
			q.WriteString("$" + strconv.Itoa(len(args)))
		}
		q.WriteString(`)`)
	}
	q.WriteString(` ORDER BY position ASC`)
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q.WriteString(` LIMIT $` + strconv.Itoa(len(args)))
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, classify("query entries", err)
	}
	defer rows.Close()
	var out []queue.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, classify("scan entry", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("query entries", err)
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, e queue.Entry) (string, error) {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return "", fmt.Errorf("encode details: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO queue_entries (`+entryColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		e.ID, e.CustomerID, string(e.ServiceType), e.MotorcycleID, e.Plate, e.MileageKm, e.Notes, details,
		string(e.Status), e.Position, e.VerificationCode, e.AssignedTo, e.JoinedAt, e.CalledAt, e.CreatedAt, e.UpdatedAt,
		e.ExpiresAt, e.SessionID, e.RequeuedFrom)
	if err != nil {
		return "", classify("insert entry", err)
	}
	return e.ID, nil
}

func (s *Store) ConditionalUpdate(ctx context.Context, id string, expected queue.Status, p queue.Patch) (queue.Entry, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE queue_entries
SET status = COALESCE(NULLIF($1, ''), status),
    assigned_to = COALESCE($2, assigned_to),
    called_at = COALESCE($3, called_at),
    updated_at = $4
WHERE id = $5 AND status = $6
RETURNING `+entryColumns,
		string(p.Status), p.AssignedTo, p.CalledAt, p.UpdatedAt, id, string(expected))
	e, err := scanEntry(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return queue.Entry{}, classify("conditional update", err)
	}
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM queue_entries WHERE id = $1)`, id).Scan(&exists); err != nil {
		return queue.Entry{}, classify("conditional update", err)
	}
	if !exists {
		return queue.Entry{}, queue.ErrNotFound
	}
	return queue.Entry{}, queue.ErrConflict
}

func (s *Store) ReadCounter(ctx context.Context, name string) (int64, error) {
	var v int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM queue_counters WHERE name = $1`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, classify("read counter", err)
	}
	return v, nil
}

func (s *Store) CompareAndSwapCounter(ctx context.Context, name string, prev, next int64) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if prev == 0 {
		// A missing row reads as zero, so the first swap inserts it.
		res, err = s.db.ExecContext(ctx, `INSERT INTO queue_counters (name, value) VALUES ($1, $2)
ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value WHERE queue_counters.value = 0`, name, next)
	} else {
		res, err = s.db.ExecContext(ctx, `UPDATE queue_counters SET value = $1 WHERE name = $2 AND value = $3`, next, name, prev)
	}
	if err != nil {
		return false, classify("counter swap", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, classify("counter swap", err)
	}
	return n == 1, nil
}

func scanSession(r rowScanner) (queue.Session, error) {
	var sess queue.Session
	err := r.Scan(&sess.ID, &sess.UserID, &sess.CreatedAt, &sess.ExpiresAt, &sess.IsActive, &sess.HasGeneratedTicket)
	return sess, err
}

func (s *Store) CreateSession(ctx context.Context, sess queue.Session) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO queue_sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.UserID, sess.CreatedAt, sess.ExpiresAt, sess.IsActive, sess.HasGeneratedTicket)
	return classify("insert session", err)
}

func (s *Store) GetSession(ctx context.Context, id string) (queue.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM queue_sessions WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return queue.Session{}, queue.ErrNotFound
	}
	if err != nil {
		return queue.Session{}, classify("get session", err)
	}
	return sess, nil
}

func (s *Store) SetSessionTicket(ctx context.Context, id string, expected, value bool) (queue.Session, error) {
	sess, err := scanSession(s.db.QueryRowContext(ctx, `UPDATE queue_sessions SET has_generated_ticket = $1
WHERE id = $2 AND has_generated_ticket = $3 RETURNING `+sessionColumns, value, id, expected))
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return queue.Session{}, classify("session ticket", err)
	}
	if _, err := s.GetSession(ctx, id); err != nil {
		return queue.Session{}, err
	}
	return queue.Session{}, queue.ErrConflict
}

func (s *Store) PurgeExpiredSessions(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM queue_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, classify("purge sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, classify("purge sessions", err)
	}
	return int(n), nil
}
