package leave

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Stats is the organisation-wide overview shown to administrators.
type Stats struct {
	TotalRequests int
	Pending       int
	Approved      int
	Rejected      int

	// Balances rolls every known balance into one row with UserID 0.
	// Allotted assumes each user holds the default allotment.
	Balances Balance
	Users    int
}

// Utilization is taken as a percentage of the rolled-up allotment for t,
// rounded to two decimal places.
func (s Stats) Utilization(t Type) decimal.Decimal {
	allotted := s.Balances.Allotted.Get(t)
	if allotted == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.Balances.Taken.Get(t))).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(allotted))).
		Round(2)
}

// QueryService answers the read-side questions: listings, balances, stats.
type QueryService struct {
	store    Store
	balances *BalanceStore
	logger   *slog.Logger
}

// NewQueryService creates a QueryService.
func NewQueryService(store Store, balances *BalanceStore, logger *slog.Logger) *QueryService {
	if balances == nil {
		balances = NewBalanceStore(store, DefaultAllotment)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{store: store, balances: balances.On(store), logger: logger}
}

// ForUser lists a user's requests, newest first.
func (q *QueryService) ForUser(ctx context.Context, userID int64) ([]Request, error) {
	reqs, err := q.store.ListRequests(ctx, RequestFilter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("list leave requests for user %d: %w", userID, err)
	}
	return reqs, nil
}

// All lists every request, newest first.
func (q *QueryService) All(ctx context.Context) ([]Request, error) {
	reqs, err := q.store.ListRequests(ctx, RequestFilter{})
	if err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	return reqs, nil
}

// BalanceOf returns the user's balance, creating it on first access, with
// Pending filled from the user's pending requests.
func (q *QueryService) BalanceOf(ctx context.Context, userID int64) (*Balance, error) {
	bal, err := q.balances.Ensure(ctx, userID)
	if err != nil {
		return nil, err
	}
	pending, err := q.store.PendingDays(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("pending days for user %d: %w", userID, err)
	}
	bal.Pending = pending
	return bal, nil
}

// Stats counts requests by status and rolls up every balance.
func (q *QueryService) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	counts := []struct {
		status Status
		dst    *int
	}{
		{"", &st.TotalRequests},
		{StatusPending, &st.Pending},
		{StatusApproved, &st.Approved},
		{StatusRejected, &st.Rejected},
	}
	for _, c := range counts {
		n, err := q.store.CountRequests(ctx, c.status)
		if err != nil {
			return nil, fmt.Errorf("count leave requests (%q): %w", c.status, err)
		}
		*c.dst = n
	}

	balances, err := q.store.ListBalances(ctx)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}

	var taken Tally
	for _, b := range balances {
		for _, t := range Types {
			taken = taken.Add(t, b.Taken.Get(t))
		}
	}

	st.Users = max(len(balances), 1)
	st.Balances = Balance{
		UserID:   0,
		Allotted: q.balances.Defaults().Scale(st.Users),
		Taken:    taken,
	}

	q.logger.Debug("leave stats computed",
		"total", st.TotalRequests,
		"balances", len(balances),
	)
	return &st, nil
}
