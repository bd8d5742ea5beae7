/*
Package sqlite provides a SQLite-backed implementation of leave.TxStore.

PURPOSE:
  Persists leave requests, per-user balances and the user snapshot joined
  onto requests. store/postgres implements the same contract against
  PostgreSQL; only the SQL dialect differs.

KEY TABLES:
  users:           Identity snapshot (name, email, role)
  leave_requests:  One row per request; status moves pending -> approved|rejected
  leave_balances:  One row per user (UNIQUE user_id); allotted and taken per type

CONDITIONAL TRANSITION:
  Status changes are a single statement

    UPDATE leave_requests SET status = ?, ... WHERE id = ? AND status = 'pending'

  and zero affected rows means the request is unknown or already decided.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so writers
  (and WithTx blocks) are serialised. In-memory databases need the single
  connection anyway: each new connection would open an empty database.

WAL MODE:
  File databases are opened with WAL (Write-Ahead Logging).

USAGE:
  store, err := sqlite.New("./data/leave.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - leave/store.go: Interface definition
  - leave/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/leave-engine/leave"
)

const (
	dateLayout = "2006-01-02"
	// Fixed width so timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// Store implements leave.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'employee'
	);

	CREATE TABLE IF NOT EXISTS leave_requests (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		leave_type TEXT NOT NULL CHECK (leave_type IN ('casual', 'sick', 'annual')),
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days INTEGER NOT NULL CHECK (total_days > 0),
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		admin_comments TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leave_requests_user
		ON leave_requests(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_leave_requests_status
		ON leave_requests(status);

	CREATE TABLE IF NOT EXISTS leave_balances (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		casual_leaves INTEGER NOT NULL,
		sick_leaves INTEGER NOT NULL,
		annual_leaves INTEGER NOT NULL,
		casual_taken INTEGER NOT NULL DEFAULT 0,
		sick_taken INTEGER NOT NULL DEFAULT 0,
		annual_taken INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// REQUESTS
// =============================================================================

const selectRequest = `
	SELECT r.id, r.user_id, r.leave_type, r.start_date, r.end_date, r.total_days,
	       r.reason, r.status, r.admin_comments, r.created_at, r.updated_at,
	       u.name, u.email
	FROM leave_requests r
	LEFT JOIN users u ON u.id = r.user_id
`

// CreateRequest inserts r and sets r.ID.
func (s *Store) CreateRequest(ctx context.Context, r *leave.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createRequest(ctx, s.db, r)
}

func createRequest(ctx context.Context, q querier, r *leave.Request) error {
	res, err := q.ExecContext(ctx, `
		INSERT INTO leave_requests
		(user_id, leave_type, start_date, end_date, total_days, reason, status, admin_comments, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.UserID,
		string(r.Type),
		r.StartDate.Format(dateLayout),
		r.EndDate.Format(dateLayout),
		r.TotalDays,
		nullString(r.Reason),
		string(r.Status),
		nullString(r.AdminComment),
		formatTime(r.CreatedAt),
		formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert leave request: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read leave request id: %w", err)
	}
	r.ID = id
	return nil
}

// GetRequest returns a request with the requester's name and email.
func (s *Store) GetRequest(ctx context.Context, id int64) (*leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequest(ctx, s.db, id)
}

func getRequest(ctx context.Context, q querier, id int64) (*leave.Request, error) {
	reqs, err := queryRequests(ctx, q, selectRequest+" WHERE r.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, &leave.NotFoundError{Resource: "leave request", ID: id}
	}
	return &reqs[0], nil
}

// ListRequests returns matching requests, newest first.
func (s *Store) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequests(ctx, s.db, filter)
}

func listRequests(ctx context.Context, q querier, filter leave.RequestFilter) ([]leave.Request, error) {
	query := selectRequest + " WHERE 1 = 1"
	var args []any
	if filter.UserID != 0 {
		query += " AND r.user_id = ?"
		args = append(args, filter.UserID)
	}
	if filter.Status != "" {
		query += " AND r.status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY r.created_at DESC, r.id DESC"

	return queryRequests(ctx, q, query, args...)
}

// CountRequests counts requests with the given status, or all of them.
func (s *Store) CountRequests(ctx context.Context, status leave.Status) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return countRequests(ctx, s.db, status)
}

func countRequests(ctx context.Context, q querier, status leave.Status) (int, error) {
	var count int
	var err error
	if status == "" {
		err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM leave_requests").Scan(&count)
	} else {
		err = q.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM leave_requests WHERE status = ?", string(status),
		).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count leave requests: %w", err)
	}
	return count, nil
}

// TransitionRequest moves a pending request to `to`.
func (s *Store) TransitionRequest(ctx context.Context, id int64, to leave.Status, comment string, at time.Time) (*leave.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return transitionRequest(ctx, s.db, id, to, comment, at)
}

func transitionRequest(ctx context.Context, q querier, id int64, to leave.Status, comment string, at time.Time) (*leave.Request, error) {
	res, err := q.ExecContext(ctx, `
		UPDATE leave_requests
		SET status = ?, admin_comments = ?, updated_at = ?
		WHERE id = ? AND status = 'pending'
	`, string(to), nullString(comment), formatTime(at), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update leave request %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to update leave request %d: %w", id, err)
	}
	if n == 0 {
		var current string
		err := q.QueryRowContext(ctx, "SELECT status FROM leave_requests WHERE id = ?", id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &leave.NotFoundError{Resource: "leave request", ID: id}
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read leave request %d: %w", id, err)
		}
		return nil, &leave.StateError{ID: id, Status: leave.Status(current)}
	}

	return getRequest(ctx, q, id)
}

// PendingDays sums TotalDays of the user's pending requests per type.
func (s *Store) PendingDays(ctx context.Context, userID int64) (leave.Tally, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return pendingDays(ctx, s.db, userID)
}

func pendingDays(ctx context.Context, q querier, userID int64) (leave.Tally, error) {
	var tally leave.Tally

	rows, err := q.QueryContext(ctx, `
		SELECT leave_type, COALESCE(SUM(total_days), 0)
		FROM leave_requests
		WHERE user_id = ? AND status = 'pending'
		GROUP BY leave_type
	`, userID)
	if err != nil {
		return tally, fmt.Errorf("failed to sum pending days: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			lt   string
			days int
		)
		if err := rows.Scan(&lt, &days); err != nil {
			return tally, fmt.Errorf("failed to scan pending days: %w", err)
		}
		tally = tally.Add(leave.Type(lt), days)
	}
	return tally, rows.Err()
}

func queryRequests(ctx context.Context, q querier, query string, args ...any) ([]leave.Request, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leave requests: %w", err)
	}
	defer rows.Close()

	var requests []leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}

	return requests, rows.Err()
}

func scanRequest(rows *sql.Rows) (leave.Request, error) {
	var (
		r                    leave.Request
		leaveType, status    string
		startDate, endDate   string
		reason, comment      sql.NullString
		createdAt, updatedAt string
		name, email          sql.NullString
	)

	err := rows.Scan(
		&r.ID, &r.UserID, &leaveType, &startDate, &endDate, &r.TotalDays,
		&reason, &status, &comment, &createdAt, &updatedAt,
		&name, &email,
	)
	if err != nil {
		return r, fmt.Errorf("failed to scan leave request: %w", err)
	}

	r.Type = leave.Type(leaveType)
	r.Status = leave.Status(status)
	if r.StartDate, err = time.Parse(dateLayout, startDate); err != nil {
		return r, fmt.Errorf("failed to scan leave request %d: start_date: %w", r.ID, err)
	}
	if r.EndDate, err = time.Parse(dateLayout, endDate); err != nil {
		return r, fmt.Errorf("failed to scan leave request %d: end_date: %w", r.ID, err)
	}
	r.Reason = reason.String
	r.AdminComment = comment.String
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.UserName = name.String
	r.UserEmail = email.String

	return r, nil
}

// =============================================================================
// BALANCES
// =============================================================================

const selectBalance = `
	SELECT user_id, casual_leaves, sick_leaves, annual_leaves,
	       casual_taken, sick_taken, annual_taken, created_at, updated_at
	FROM leave_balances
`

// EnsureBalance returns the user's balance, inserting `allotted` if absent.
func (s *Store) EnsureBalance(ctx context.Context, userID int64, allotted leave.Tally, at time.Time) (*leave.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ensureBalance(ctx, s.db, userID, allotted, at)
}

func ensureBalance(ctx context.Context, q querier, userID int64, allotted leave.Tally, at time.Time) (*leave.Balance, error) {
	_, err := q.ExecContext(ctx, `
		INSERT INTO leave_balances
		(user_id, casual_leaves, sick_leaves, annual_leaves, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, userID, allotted.Casual, allotted.Sick, allotted.Annual, formatTime(at), formatTime(at))
	if err != nil {
		return nil, fmt.Errorf("failed to insert balance: %w", err)
	}

	balances, err := queryBalances(ctx, q, selectBalance+" WHERE user_id = ?", userID)
	if err != nil {
		return nil, err
	}
	if len(balances) == 0 {
		return nil, &leave.NotFoundError{Resource: "leave balance", ID: userID}
	}
	return &balances[0], nil
}

// IncrementTaken atomically adds days to the taken column for t.
func (s *Store) IncrementTaken(ctx context.Context, userID int64, t leave.Type, days int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return incrementTaken(ctx, s.db, userID, t, days, at)
}

func incrementTaken(ctx context.Context, q querier, userID int64, t leave.Type, days int, at time.Time) error {
	col, err := takenColumn(t)
	if err != nil {
		return err
	}

	res, err := q.ExecContext(ctx,
		"UPDATE leave_balances SET "+col+" = "+col+" + ?, updated_at = ? WHERE user_id = ?",
		days, formatTime(at), userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	if n == 0 {
		return &leave.NotFoundError{Resource: "leave balance", ID: userID}
	}
	return nil
}

// takenColumn maps a leave type to its column. Only validated types reach SQL.
func takenColumn(t leave.Type) (string, error) {
	switch t {
	case leave.TypeCasual:
		return "casual_taken", nil
	case leave.TypeSick:
		return "sick_taken", nil
	case leave.TypeAnnual:
		return "annual_taken", nil
	}
	return "", &leave.ValidationError{Field: "leaveType", Message: fmt.Sprintf("unsupported leave type %q", t)}
}

// ListBalances returns every balance row ordered by user.
func (s *Store) ListBalances(ctx context.Context) ([]leave.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryBalances(ctx, s.db, selectBalance+" ORDER BY user_id")
}

func queryBalances(ctx context.Context, q querier, query string, args ...any) ([]leave.Balance, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var balances []leave.Balance
	for rows.Next() {
		var (
			b                    leave.Balance
			createdAt, updatedAt string
		)
		err := rows.Scan(&b.UserID,
			&b.Allotted.Casual, &b.Allotted.Sick, &b.Allotted.Annual,
			&b.Taken.Casual, &b.Taken.Sick, &b.Taken.Annual,
			&createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan balance: %w", err)
		}
		b.CreatedAt = parseTime(createdAt)
		b.UpdatedAt = parseTime(updatedAt)
		balances = append(balances, b)
	}

	return balances, rows.Err()
}

// =============================================================================
// USERS
// =============================================================================

// SaveUser inserts or updates a user.
func (s *Store) SaveUser(ctx context.Context, u leave.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveUser(ctx, s.db, u)
}

func saveUser(ctx context.Context, q querier, u leave.User) error {
	role := u.Role
	if role == "" {
		role = "employee"
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO users (id, name, email, role) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, email = excluded.email, role = excluded.role
	`, u.ID, u.Name, u.Email, role)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

// GetUser retrieves a user by ID.
func (s *Store) GetUser(ctx context.Context, id int64) (*leave.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getUser(ctx, s.db, id)
}

func getUser(ctx context.Context, q querier, id int64) (*leave.User, error) {
	var u leave.User
	err := q.QueryRowContext(ctx,
		"SELECT id, name, email, role FROM users WHERE id = ?", id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &leave.NotFoundError{Resource: "user", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

// =============================================================================
// TRANSACTIONAL STORE (leave.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
// The store handed to fn must not be used after fn returns.
func (s *Store) WithTx(ctx context.Context, fn func(store leave.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore runs every statement on the open transaction. The parent's lock is
// already held by WithTx, so nothing here touches it.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateRequest(ctx context.Context, r *leave.Request) error {
	return createRequest(ctx, ts.tx, r)
}

func (ts *txStore) GetRequest(ctx context.Context, id int64) (*leave.Request, error) {
	return getRequest(ctx, ts.tx, id)
}

func (ts *txStore) ListRequests(ctx context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	return listRequests(ctx, ts.tx, filter)
}

func (ts *txStore) CountRequests(ctx context.Context, status leave.Status) (int, error) {
	return countRequests(ctx, ts.tx, status)
}

func (ts *txStore) TransitionRequest(ctx context.Context, id int64, to leave.Status, comment string, at time.Time) (*leave.Request, error) {
	return transitionRequest(ctx, ts.tx, id, to, comment, at)
}

func (ts *txStore) PendingDays(ctx context.Context, userID int64) (leave.Tally, error) {
	return pendingDays(ctx, ts.tx, userID)
}

func (ts *txStore) EnsureBalance(ctx context.Context, userID int64, allotted leave.Tally, at time.Time) (*leave.Balance, error) {
	return ensureBalance(ctx, ts.tx, userID, allotted, at)
}

func (ts *txStore) IncrementTaken(ctx context.Context, userID int64, t leave.Type, days int, at time.Time) error {
	return incrementTaken(ctx, ts.tx, userID, t, days, at)
}

func (ts *txStore) ListBalances(ctx context.Context) ([]leave.Balance, error) {
	return queryBalances(ctx, ts.tx, selectBalance+" ORDER BY user_id")
}

func (ts *txStore) SaveUser(ctx context.Context, u leave.User) error {
	return saveUser(ctx, ts.tx, u)
}

func (ts *txStore) GetUser(ctx context.Context, id int64) (*leave.User, error) {
	return getUser(ctx, ts.tx, id)
}

var (
	_ leave.TxStore = (*Store)(nil)
	_ leave.Store   = (*txStore)(nil)
)

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
