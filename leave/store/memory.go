// Package store provides an in-memory leave.TxStore.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	requests map[int64]leave.Request
	balances map[int64]leave.Balance
	users    map[int64]leave.User
	nextID   int64
}

func NewMemory() *Memory {
	return &Memory{
		requests: make(map[int64]leave.Request),
		balances: make(map[int64]leave.Balance),
		users:    make(map[int64]leave.User),
	}
}

func (m *Memory) CreateRequest(_ context.Context, r *leave.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createRequestLocked(r)
	return nil
}

func (m *Memory) GetRequest(_ context.Context, id int64) (*leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getRequestLocked(id)
}

func (m *Memory) ListRequests(_ context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listRequestsLocked(filter), nil
}

func (m *Memory) CountRequests(_ context.Context, status leave.Status) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.listRequestsLocked(leave.RequestFilter{Status: status})), nil
}

func (m *Memory) TransitionRequest(_ context.Context, id int64, to leave.Status, comment string, at time.Time) (*leave.Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, to, comment, at)
}

func (m *Memory) PendingDays(_ context.Context, userID int64) (leave.Tally, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pendingLocked(userID), nil
}

func (m *Memory) EnsureBalance(_ context.Context, userID int64, allotted leave.Tally, at time.Time) (*leave.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ensureLocked(userID, allotted, at), nil
}

func (m *Memory) IncrementTaken(_ context.Context, userID int64, t leave.Type, days int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.incrementLocked(userID, t, days, at)
}

func (m *Memory) ListBalances(_ context.Context) ([]leave.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listBalancesLocked(), nil
}

func (m *Memory) SaveUser(_ context.Context, u leave.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id int64) (*leave.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getUserLocked(id)
}

func (m *Memory) Ping(_ context.Context) error { return nil }

// =============================================================================
// LOCKED HELPERS - callers hold mu
// =============================================================================

func (m *Memory) createRequestLocked(r *leave.Request) {
	m.nextID++
	r.ID = m.nextID
	m.requests[r.ID] = *r
}

func (m *Memory) getRequestLocked(id int64) (*leave.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, &leave.NotFoundError{Resource: "leave request", ID: id}
	}
	m.attachUser(&r)
	return &r, nil
}

func (m *Memory) attachUser(r *leave.Request) {
	if u, ok := m.users[r.UserID]; ok {
		r.UserName = u.Name
		r.UserEmail = u.Email
	}
}

func (m *Memory) listRequestsLocked(filter leave.RequestFilter) []leave.Request {
	result := make([]leave.Request, 0, len(m.requests))
	for _, r := range m.requests {
		if filter.UserID != 0 && r.UserID != filter.UserID {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		m.attachUser(&r)
		result = append(result, r)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result
}

func (m *Memory) transitionLocked(id int64, to leave.Status, comment string, at time.Time) (*leave.Request, error) {
	r, ok := m.requests[id]
	if !ok {
		return nil, &leave.NotFoundError{Resource: "leave request", ID: id}
	}
	if r.Status != leave.StatusPending {
		return nil, &leave.StateError{ID: id, Status: r.Status}
	}
	r.Status = to
	r.AdminComment = comment
	r.UpdatedAt = at
	m.requests[id] = r
	m.attachUser(&r)
	return &r, nil
}

func (m *Memory) pendingLocked(userID int64) leave.Tally {
	var t leave.Tally
	for _, r := range m.requests {
		if r.UserID == userID && r.Status == leave.StatusPending {
			t = t.Add(r.Type, r.TotalDays)
		}
	}
	return t
}

func (m *Memory) ensureLocked(userID int64, allotted leave.Tally, at time.Time) *leave.Balance {
	b, ok := m.balances[userID]
	if !ok {
		b = leave.Balance{UserID: userID, Allotted: allotted, CreatedAt: at, UpdatedAt: at}
		m.balances[userID] = b
	}
	return &b
}

func (m *Memory) incrementLocked(userID int64, t leave.Type, days int, at time.Time) error {
	b, ok := m.balances[userID]
	if !ok {
		return &leave.NotFoundError{Resource: "leave balance", ID: userID}
	}
	b.Taken = b.Taken.Add(t, days)
	b.UpdatedAt = at
	m.balances[userID] = b
	return nil
}

func (m *Memory) listBalancesLocked() []leave.Balance {
	result := make([]leave.Balance, 0, len(m.balances))
	for _, b := range m.balances {
		result = append(result, b)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result
}

func (m *Memory) getUserLocked(id int64) (*leave.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, &leave.NotFoundError{Resource: "user", ID: id}
	}
	return &u, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
// Transactions are serialised on the store's write lock.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(&txMemoryView{parent: tm}); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	requests map[int64]leave.Request
	balances map[int64]leave.Balance
	users    map[int64]leave.User
	nextID   int64
}

func (tm *TxMemory) snapshot() memorySnapshot {
	s := memorySnapshot{
		requests: make(map[int64]leave.Request, len(tm.requests)),
		balances: make(map[int64]leave.Balance, len(tm.balances)),
		users:    make(map[int64]leave.User, len(tm.users)),
		nextID:   tm.nextID,
	}
	for k, v := range tm.requests {
		s.requests[k] = v
	}
	for k, v := range tm.balances {
		s.balances[k] = v
	}
	for k, v := range tm.users {
		s.users[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.requests = s.requests
	tm.balances = s.balances
	tm.users = s.users
	tm.nextID = s.nextID
}

// txMemoryView runs against the parent's maps while WithTx holds the lock.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) CreateRequest(_ context.Context, r *leave.Request) error {
	tv.parent.createRequestLocked(r)
	return nil
}

func (tv *txMemoryView) GetRequest(_ context.Context, id int64) (*leave.Request, error) {
	return tv.parent.getRequestLocked(id)
}

func (tv *txMemoryView) ListRequests(_ context.Context, filter leave.RequestFilter) ([]leave.Request, error) {
	return tv.parent.listRequestsLocked(filter), nil
}

func (tv *txMemoryView) CountRequests(_ context.Context, status leave.Status) (int, error) {
	return len(tv.parent.listRequestsLocked(leave.RequestFilter{Status: status})), nil
}

func (tv *txMemoryView) TransitionRequest(_ context.Context, id int64, to leave.Status, comment string, at time.Time) (*leave.Request, error) {
	return tv.parent.transitionLocked(id, to, comment, at)
}

func (tv *txMemoryView) PendingDays(_ context.Context, userID int64) (leave.Tally, error) {
	return tv.parent.pendingLocked(userID), nil
}

func (tv *txMemoryView) EnsureBalance(_ context.Context, userID int64, allotted leave.Tally, at time.Time) (*leave.Balance, error) {
	return tv.parent.ensureLocked(userID, allotted, at), nil
}

func (tv *txMemoryView) IncrementTaken(_ context.Context, userID int64, t leave.Type, days int, at time.Time) error {
	return tv.parent.incrementLocked(userID, t, days, at)
}

func (tv *txMemoryView) ListBalances(_ context.Context) ([]leave.Balance, error) {
	return tv.parent.listBalancesLocked(), nil
}

func (tv *txMemoryView) SaveUser(_ context.Context, u leave.User) error {
	tv.parent.users[u.ID] = u
	return nil
}

func (tv *txMemoryView) GetUser(_ context.Context, id int64) (*leave.User, error) {
	return tv.parent.getUserLocked(id)
}

var (
	_ leave.TxStore = (*TxMemory)(nil)
	_ leave.Store   = (*txMemoryView)(nil)
)
