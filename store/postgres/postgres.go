/*
Package postgres provides a PostgreSQL implementation of leave.TxStore on a
pgx connection pool.

The schema mirrors store/sqlite. Differences:
  - DATE / TIMESTAMPTZ columns instead of TEXT
  - RETURNING id instead of LastInsertId
  - EnsureBalance locks the user's row (SELECT ... FOR UPDATE) so two
    applications for the same user inside WithTx are checked one after
    another instead of both reading the same remaining days.

SEE ALSO:
  - leave/store.go: Interface definition
  - store/sqlite: default backend
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/warp/leave-engine/leave"
)

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements leave.TxStore using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, pings and migrates.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	config.MaxConnLifetime = time.Hour
	config.MaxConns = 10
	config.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS users (
		id BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'employee'
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		leave_type TEXT NOT NULL CHECK (leave_type IN ('casual', 'sick', 'annual')),
		start_date DATE NOT NULL,
		end_date DATE NOT NULL,
		total_days INTEGER NOT NULL CHECK (total_days > 0),
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		admin_comments TEXT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_user
		ON leave_requests(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);

	CREATE TABLE IF NOT EXISTS leave_balances (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL UNIQUE,
		casual_leaves INTEGER NOT NULL,
		sick_leaves INTEGER NOT NULL,
		annual_leaves INTEGER NOT NULL,
		casual_taken INTEGER NOT NULL DEFAULT 0,
		sick_taken INTEGER NOT NULL DEFAULT 0,
		annual_taken INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	`)
	return err
}

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{q: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) on() *queries { return &queries{q: s.pool} }

func (s *Store) CreateRequest(ctx context.Context, r *leave.Request) error {
	return s.on().CreateRequest(ctx, r)
}

func (s *Store) GetRequest(ctx context.Context, id int64) (*leave.Request, error) {
	return s.on().GetRequest(ctx, id)
}

func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	return s.on().ListRequests(ctx, filter)
}

func (s *Store) CountRequests(ctx context.Context, status leave.Status) (int, error) {
	return s.on().CountRequests(ctx, status)
}

func (s *Store) TransitionRequest(ctx context.Context, id int64, to leave.Status, comment string, at time.Time) (*leave.Request, error) {
	return s.on().TransitionRequest(ctx, id, to, comment, at)
}

func (s *Store) PendingDays(ctx context.Context, userID int64) (leave.Tally, error) {
	return s.on().PendingDays(ctx, userID)
}

func (s *Store) EnsureBalance(ctx context.Context, userID int64, allotted leave.Tally, at time.Time) (*leave.Balance, error) {
	return s.on().EnsureBalance(ctx, userID, allotted, at)
}

func (s *Store) IncrementTaken(ctx context.Context, userID int64, t leave.Type, days int, at time.Time) error {
	return s.on().IncrementTaken(ctx, userID, t, days, at)
}

func (s *Store) ListBalances(ctx context.Context) ([]leave.Balance, error) {
	return s.on().ListBalances(ctx)
}

func (s *Store) SaveUser(ctx context.Context, u leave.User) error {
	return s.on().SaveUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id int64) (*leave.User, error) {
	return s.on().GetUser(ctx, id)
}

// =============================================================================
// QUERIES - shared by the pool and transactions
// =============================================================================

type queries struct {
	q Querier
}

const selectRequest = `
	SELECT r.id, r.user_id, r.leave_type, r.start_date, r.end_date, r.total_days,
	       COALESCE(r.reason, ''), r.status, COALESCE(r.admin_comments, ''),
	       r.created_at, r.updated_at,
	       COALESCE(u.name, ''), COALESCE(u.email, '')
	FROM leave_requests r
	LEFT JOIN users u ON u.id = r.user_id
`

func (qs *queries) CreateRequest(ctx context.Context, r *leave.Request) error {
	err := qs.q.QueryRow(ctx, `
		INSERT INTO leave_requests
		(user_id, leave_type, start_date, end_date, total_days, reason, status, admin_comments, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, NULLIF($8, ''), $9, $10)
		RETURNING id
	`,
		r.UserID, string(r.Type), r.StartDate, r.EndDate, r.TotalDays,
		r.Reason, string(r.Status), r.AdminComment, r.CreatedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert leave request: %w", err)
	}
	return nil
}

func (qs *queries) GetRequest(ctx context.Context, id int64) (*leave.Request, error) {
	reqs, err := qs.queryRequests(ctx, selectRequest+" WHERE r.id = $1", id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, &leave.NotFoundError{Resource: "leave request", ID: id}
	}
	return &reqs[0], nil
}

func (qs *queries) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	query := selectRequest + " WHERE 1 = 1"
	var args []any
	if filter.UserID != 0 {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND r.user_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND r.status = $%d", len(args))
	}
	query += " ORDER BY r.created_at DESC, r.id DESC"
	return qs.queryRequests(ctx, query, args...)
}

func (qs *queries) CountRequests(ctx context.Context, status leave.Status) (int, error) {
	var count int
	err := qs.q.QueryRow(ctx,
		"SELECT COUNT(*) FROM leave_requests WHERE $1 = '' OR status = $1", string(status),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count leave requests: %w", err)
	}
	return count, nil
}

func (qs *queries) TransitionRequest(ctx context.Context, id int64, to leave.Status, comment string, at time.Time) (*leave.Request, error) {
	tag, err := qs.q.Exec(ctx, `
		UPDATE leave_requests
		SET status = $1, admin_comments = NULLIF($2, ''), updated_at = $3
		WHERE id = $4 AND status = 'pending'
	`, string(to), comment, at, id)
	if err != nil {
		return nil, fmt.Errorf("update leave request %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		var current string
		err := qs.q.QueryRow(ctx, "SELECT status FROM leave_requests WHERE id = $1", id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &leave.NotFoundError{Resource: "leave request", ID: id}
		}
		if err != nil {
			return nil, fmt.Errorf("read leave request %d: %w", id, err)
		}
		return nil, &leave.StateError{ID: id, Status: leave.Status(current)}
	}
	return qs.GetRequest(ctx, id)
}

func (qs *queries) PendingDays(ctx context.Context, userID int64) (leave.Tally, error) {
	var tally leave.Tally
	rows, err := qs.q.Query(ctx, `
		SELECT leave_type, COALESCE(SUM(total_days), 0)
		FROM leave_requests
		WHERE user_id = $1 AND status = 'pending'
		GROUP BY leave_type
	`, userID)
	if err != nil {
		return tally, fmt.Errorf("sum pending days: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			lt   string
			days int
		)
		if err := rows.Scan(&lt, &days); err != nil {
			return tally, fmt.Errorf("scan pending days: %w", err)
		}
		tally = tally.Add(leave.Type(lt), days)
	}
	return tally, rows.Err()
}

func (qs *queries) queryRequests(ctx context.Context, query string, args ...any) ([]leave.Request, error) {
	rows, err := qs.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query leave requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.Request
	for rows.Next() {
		var (
			r                 leave.Request
			leaveType, status string
		)
		err := rows.Scan(
			&r.ID, &r.UserID, &leaveType, &r.StartDate, &r.EndDate, &r.TotalDays,
			&r.Reason, &status, &r.AdminComment, &r.CreatedAt, &r.UpdatedAt,
			&r.UserName, &r.UserEmail,
		)
		if err != nil {
			return nil, fmt.Errorf("scan leave request: %w", err)
		}
		r.Type = leave.Type(leaveType)
		r.Status = leave.Status(status)
		r.CreatedAt = r.CreatedAt.UTC()
		r.UpdatedAt = r.UpdatedAt.UTC()
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

const selectBalance = `
	SELECT user_id, casual_leaves, sick_leaves, annual_leaves,
	       casual_taken, sick_taken, annual_taken, created_at, updated_at
	FROM leave_balances
`

func (qs *queries) EnsureBalance(ctx context.Context, userID int64, allotted leave.Tally, at time.Time) (*leave.Balance, error) {
	_, err := qs.q.Exec(ctx, `
		INSERT INTO leave_balances
		(user_id, casual_leaves, sick_leaves, annual_leaves, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (user_id) DO NOTHING
	`, userID, allotted.Casual, allotted.Sick, allotted.Annual, at)
	if err != nil {
		return nil, fmt.Errorf("insert balance: %w", err)
	}

	balances, err := qs.queryBalances(ctx, selectBalance+" WHERE user_id = $1 FOR UPDATE", userID)
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, &leave.NotFoundError{Resource: "leave balance", ID: userID}
	}
	return &balances[0], nil
}

func (qs *queries) IncrementTaken(ctx context.Context, userID int64, t leave.Type, days int, at time.Time) error {
	var col string
	switch t {
	case leave.TypeCasual:
		col = "casual_taken"
	case leave.TypeSick:
		col = "sick_taken"
	case leave.TypeAnnual:
		col = "annual_taken"
	default:
		return &leave.ValidationError{Field: "leaveType", Message: fmt.Sprintf("unsupported leave type %q", t)}
	}

	tag, err := qs.q.Exec(ctx,
		"UPDATE leave_balances SET "+col+" = "+col+" + $1, updated_at = $2 WHERE user_id = $3",
		days, at, userID,
	)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &leave.NotFoundError{Resource: "leave balance", ID: userID}
	}
	return nil
}

func (qs *queries) ListBalances(ctx context.Context) ([]leave.Balance, error) {
	return qs.queryBalances(ctx, selectBalance+" ORDER BY user_id")
}

func (qs *queries) queryBalances(ctx context.Context, query string, args ...any) ([]leave.Balance, error) {
	rows, err := qs.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query balances: %w", err)
	}
	defer rows.Close()

	var balances []leave.Balance
	for rows.Next() {
		var b leave.Balance
		err := rows.Scan(&b.UserID,
			&b.Allotted.Casual, &b.Allotted.Sick, &b.Allotted.Annual,
			&b.Taken.Casual, &b.Taken.Sick, &b.Taken.Annual,
			&b.CreatedAt, &b.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (qs *queries) SaveUser(ctx context.Context, u leave.User) error {
	role := u.Role
	if role == "" {
		role = "employee"
	}
	_, err := qs.q.Exec(ctx, `
		INSERT INTO users (id, name, email, role) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, role = EXCLUDED.role
	`, u.ID, u.Name, u.Email, role)
	if err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func (qs *queries) GetUser(ctx context.Context, id int64) (*leave.User, error) {
	var u leave.User
	err := qs.q.QueryRow(ctx,
		"SELECT id, name, email, role FROM users WHERE id = $1", id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &leave.NotFoundError{Resource: "user", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

var (
	_ leave.TxStore = (*Store)(nil)
	_ leave.Store   = (*queries)(nil)
)
