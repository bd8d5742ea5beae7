package leave_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/leave/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const employeeID int64 = 2

var testNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    *store.TxMemory
	balances *leave.BalanceStore
	workflow *leave.Workflow
	query    *leave.QueryService
}

func newFixture(t *testing.T, opts ...leave.WorkflowOption) *fixture {
	t.Helper()

	mem := store.NewTxMemory()
	require.NoError(t, mem.SaveUser(context.Background(), leave.User{
		ID: employeeID, Name: "Jane Doe", Email: "jane@example.com", Role: "employee",
	}))

	// Each call advances the clock so created_at ordering is deterministic.
	tick := testNow
	clock := func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}

	balances := leave.NewBalanceStore(mem, leave.DefaultAllotment)
	opts = append([]leave.WorkflowOption{leave.WithLogger(quietLogger()), leave.WithClock(clock)}, opts...)
	return &fixture{
		store:    mem,
		balances: balances,
		workflow: leave.NewWorkflow(mem, balances, opts...),
		query:    leave.NewQueryService(mem, balances, quietLogger()),
	}
}

func casual(start, end string) leave.ApplyInput {
	return leave.ApplyInput{LeaveType: "casual", StartDate: start, EndDate: end, Reason: "family"}
}

func (f *fixture) balance(t *testing.T) *leave.Balance {
	t.Helper()
	b, err := f.query.BalanceOf(context.Background(), employeeID)
	require.NoError(t, err)
	return b
}

// =============================================================================
// APPLY
// =============================================================================

func TestApply_FiveWorkingDays(t *testing.T) {
	// GIVEN: a user with the default balance
	// WHEN: applying for casual leave Monday to Friday
	// THEN: a pending 5-day request is stored and the balance is untouched
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)

	assert.NotZero(t, req.ID)
	assert.Equal(t, 5, req.TotalDays)
	assert.Equal(t, leave.StatusPending, req.Status)
	assert.Equal(t, leave.TypeCasual, req.Type)
	assert.Empty(t, req.AdminComment)
	assert.Equal(t, "Jane Doe", req.UserName)
	assert.Equal(t, "jane@example.com", req.UserEmail)

	b := f.balance(t)
	assert.Equal(t, 0, b.Taken.Casual)
	assert.Equal(t, 12, b.Remaining(leave.TypeCasual))
	assert.Equal(t, 5, b.Pending.Casual)
}

func TestApply_UppercaseTypeAccepted(t *testing.T) {
	f := newFixture(t)

	req, err := f.workflow.Apply(context.Background(), employeeID, leave.ApplyInput{
		LeaveType: "SICK", StartDate: "2025-03-10", EndDate: "2025-03-10",
	})
	require.NoError(t, err)
	assert.Equal(t, leave.TypeSick, req.Type)
}

func TestApply_InvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input leave.ApplyInput
		field string
	}{
		{"unknown type", leave.ApplyInput{LeaveType: "vacation", StartDate: "2025-03-10", EndDate: "2025-03-10"}, "leaveType"},
		{"missing start", leave.ApplyInput{LeaveType: "casual", EndDate: "2025-03-10"}, "startDate"},
		{"bad end", leave.ApplyInput{LeaveType: "casual", StartDate: "2025-03-10", EndDate: "soon"}, "endDate"},
		{"start after end", casual("2025-03-14", "2025-03-10"), "startDate"},
		{"weekend only", casual("2025-03-15", "2025-03-16"), "endDate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()

			_, err := f.workflow.Apply(ctx, employeeID, tt.input)

			var ve *leave.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, leave.KindInvalidInput, leave.KindOf(err))

			// Nothing was created
			all, err := f.query.All(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestApply_ExceedsRemaining(t *testing.T) {
	// GIVEN: 6 sick days allotted
	// WHEN: applying for 7 working days of sick leave
	// THEN: InsufficientBalance, nothing stored
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.workflow.Apply(ctx, employeeID, leave.ApplyInput{
		LeaveType: "sick", StartDate: "2025-03-10", EndDate: "2025-03-18",
	})

	var ib *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, leave.TypeSick, ib.Type)
	assert.Equal(t, 6, ib.Available)
	assert.Equal(t, 7, ib.Requested)

	all, err := f.query.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestApply_PendingDaysAreHeld(t *testing.T) {
	// GIVEN: a pending 5-day casual request (hold pending, the default)
	// WHEN: applying for 8 more casual working days
	// THEN: InsufficientBalance because 5 pending + 8 > 12
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)

	_, err = f.workflow.Apply(ctx, employeeID, casual("2025-03-17", "2025-03-26"))
	var ib *leave.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.Equal(t, 7, ib.Available)
	assert.Equal(t, 8, ib.Requested)

	// Balance is still untouched
	b := f.balance(t)
	assert.Equal(t, 0, b.Taken.Casual)
}

func TestApply_CheckOnlyIgnoresPending(t *testing.T) {
	// GIVEN: pending holds disabled
	// WHEN: applying for 5 then 8 casual days
	// THEN: both succeed since remaining is computed from taken only
	f := newFixture(t, leave.WithHoldPending(false))
	ctx := context.Background()

	_, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)

	second, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-17", "2025-03-26"))
	require.NoError(t, err)
	assert.Equal(t, 8, second.TotalDays)
	assert.False(t, f.workflow.HoldPending())
}

func TestApply_RejectedDaysAreReleased(t *testing.T) {
	// GIVEN: a pending 10-day casual request that gets rejected
	// WHEN: applying for 10 casual days again
	// THEN: it succeeds
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-21"))
	require.NoError(t, err)
	_, err = f.workflow.UpdateStatus(ctx, first.ID, leave.StatusRejected, "team offsite")
	require.NoError(t, err)

	_, err = f.workflow.Apply(ctx, employeeID, casual("2025-03-24", "2025-04-04"))
	require.NoError(t, err)
}

// =============================================================================
// UPDATE STATUS
// =============================================================================

func TestUpdateStatus_ApproveChargesBalance(t *testing.T) {
	// GIVEN: a pending 5-day casual request
	// WHEN: the admin approves it
	// THEN: casualTaken = 5, casualRemaining = 7
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)

	updated, err := f.workflow.UpdateStatus(ctx, req.ID, leave.StatusApproved, " enjoy ")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, updated.Status)
	assert.Equal(t, "enjoy", updated.AdminComment)
	assert.Equal(t, "Jane Doe", updated.UserName)
	assert.True(t, updated.UpdatedAt.After(req.CreatedAt))

	b := f.balance(t)
	assert.Equal(t, 5, b.Taken.Casual)
	assert.Equal(t, 7, b.Remaining(leave.TypeCasual))
	assert.Equal(t, 0, b.Pending.Casual)
}

func TestUpdateStatus_RejectLeavesBalance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)

	updated, err := f.workflow.UpdateStatus(ctx, req.ID, "REJECTED", "")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, updated.Status)

	b := f.balance(t)
	assert.Equal(t, leave.Tally{}, b.Taken)
	assert.Equal(t, leave.DefaultAllotment, b.Allotted)
}

func TestUpdateStatus_SecondDecisionFails(t *testing.T) {
	// GIVEN: an approved request
	// WHEN: approving (or rejecting) it again
	// THEN: InvalidState, record and balance unchanged
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)
	_, err = f.workflow.UpdateStatus(ctx, req.ID, leave.StatusApproved, "ok")
	require.NoError(t, err)

	for _, to := range []leave.Status{leave.StatusApproved, leave.StatusRejected} {
		_, err = f.workflow.UpdateStatus(ctx, req.ID, to, "again")
		var se *leave.StateError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, leave.StatusApproved, se.Status)
	}

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, stored.Status)
	assert.Equal(t, "ok", stored.AdminComment)

	assert.Equal(t, 5, f.balance(t).Taken.Casual)
}

func TestUpdateStatus_UnknownID(t *testing.T) {
	f := newFixture(t)

	_, err := f.workflow.UpdateStatus(context.Background(), 404, leave.StatusApproved, "")
	assert.ErrorIs(t, err, leave.ErrNotFound)
}

func TestUpdateStatus_InvalidTarget(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)

	_, err = f.workflow.UpdateStatus(ctx, req.ID, leave.StatusPending, "")
	assert.ErrorIs(t, err, leave.ErrInvalidInput)

	stored, err := f.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
}

// failingCredit makes IncrementTaken fail inside the approval transaction.
type failingCredit struct {
	*store.TxMemory
}

func (f failingCredit) WithTx(ctx context.Context, fn func(leave.Store) error) error {
	return f.TxMemory.WithTx(ctx, func(s leave.Store) error {
		return fn(failingCreditView{Store: s})
	})
}

type failingCreditView struct {
	leave.Store
}

func (failingCreditView) IncrementTaken(context.Context, int64, leave.Type, int, time.Time) error {
	return errors.New("write failed")
}

func TestUpdateStatus_CreditFailureRollsBack(t *testing.T) {
	// GIVEN: a store whose balance write fails
	// WHEN: approving a pending request
	// THEN: the transition is rolled back and the request stays pending
	mem := store.NewTxMemory()
	ctx := context.Background()
	wf := leave.NewWorkflow(failingCredit{mem}, nil, leave.WithLogger(quietLogger()))

	req, err := wf.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)

	_, err = wf.UpdateStatus(ctx, req.ID, leave.StatusApproved, "")
	require.Error(t, err)
	assert.Equal(t, leave.KindInternal, leave.KindOf(err))

	stored, err := mem.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, stored.Status)
}

// failingReads makes reads outside a transaction fail.
type failingReads struct {
	*store.TxMemory
}

func (failingReads) GetRequest(context.Context, int64) (*leave.Request, error) {
	return nil, errors.New("read replica unavailable")
}

func TestApply_ReloadsInsideTransaction(t *testing.T) {
	// GIVEN: a store whose non-transactional reads fail
	// WHEN: applying for leave
	// THEN: the created request is returned with the requester snapshot,
	//       and exactly one request is stored
	mem := store.NewTxMemory()
	ctx := context.Background()
	require.NoError(t, mem.SaveUser(ctx, leave.User{ID: employeeID, Name: "Jane Doe", Email: "jane@example.com"}))
	wf := leave.NewWorkflow(failingReads{mem}, nil, leave.WithLogger(quietLogger()))

	req, err := wf.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)
	assert.NotZero(t, req.ID)
	assert.Equal(t, "Jane Doe", req.UserName)
	assert.Equal(t, 5, req.TotalDays)

	n, err := mem.CountRequests(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// =============================================================================
// BALANCE STORE
// =============================================================================

func TestEnsure_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		b, err := f.balances.Ensure(ctx, 77)
		require.NoError(t, err)
		assert.Equal(t, leave.Tally{Casual: 12, Sick: 6, Annual: 12}, b.Allotted)
		assert.Equal(t, leave.Tally{}, b.Taken)
	}

	all, err := f.store.ListBalances(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestEnsure_ConfiguredDefaults(t *testing.T) {
	mem := store.NewTxMemory()
	bs := leave.NewBalanceStore(mem, leave.Tally{Casual: 10, Sick: 8, Annual: 20})

	b, err := bs.Ensure(context.Background(), 5)
	require.NoError(t, err)
	assert.Equal(t, 20, b.Remaining(leave.TypeAnnual))
}

func TestCredit_NoBalanceRow(t *testing.T) {
	f := newFixture(t)

	err := f.balances.Credit(context.Background(), 99, leave.TypeCasual, 1)
	assert.ErrorIs(t, err, leave.ErrNotFound)
}
