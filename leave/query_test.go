package leave_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/leave-engine/leave"
)

func TestStats_ApprovedAndPending(t *testing.T) {
	// GIVEN: one approved 5-day and one pending 8-day casual request for a
	//        single user (check-only, so the second application fits)
	// WHEN: computing stats
	// THEN: total 2, approved 1, pending 1, casualTaken 5
	f := newFixture(t, leave.WithHoldPending(false))
	ctx := context.Background()

	first, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-14"))
	require.NoError(t, err)
	_, err = f.workflow.Apply(ctx, employeeID, casual("2025-03-17", "2025-03-26"))
	require.NoError(t, err)
	_, err = f.workflow.UpdateStatus(ctx, first.ID, leave.StatusApproved, "")
	require.NoError(t, err)

	st, err := f.query.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, st.TotalRequests)
	assert.Equal(t, 1, st.Approved)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, 0, st.Rejected)

	assert.Equal(t, 1, st.Users)
	assert.Equal(t, int64(0), st.Balances.UserID)
	assert.Equal(t, 5, st.Balances.Taken.Casual)
	assert.Equal(t, 12, st.Balances.Allotted.Casual)
	assert.Equal(t, 7, st.Balances.Remaining(leave.TypeCasual))
	assert.Equal(t, "41.67", st.Utilization(leave.TypeCasual).StringFixed(2))
	assert.True(t, st.Utilization(leave.TypeSick).IsZero())
}

func TestStats_Empty(t *testing.T) {
	// GIVEN: no requests and no balances
	// THEN: allotments are scaled by one user
	f := newFixture(t)

	st, err := f.query.Stats(context.Background())
	require.NoError(t, err)

	assert.Zero(t, st.TotalRequests)
	assert.Equal(t, 1, st.Users)
	assert.Equal(t, leave.DefaultAllotment, st.Balances.Allotted)
	assert.Equal(t, 6, st.Balances.Remaining(leave.TypeSick))
}

func TestStats_ScalesByKnownUsers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []int64{1, 2, 3} {
		_, err := f.balances.Ensure(ctx, id)
		require.NoError(t, err)
	}

	st, err := f.query.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Users)
	assert.Equal(t, leave.Tally{Casual: 36, Sick: 18, Annual: 36}, st.Balances.Allotted)
}

func TestForUser_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-10", "2025-03-10"))
	require.NoError(t, err)
	b, err := f.workflow.Apply(ctx, employeeID, casual("2025-03-11", "2025-03-11"))
	require.NoError(t, err)
	_, err = f.workflow.Apply(ctx, 3, casual("2025-03-12", "2025-03-12"))
	require.NoError(t, err)

	mine, err := f.query.ForUser(ctx, employeeID)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, b.ID, mine[0].ID)
	assert.Equal(t, a.ID, mine[1].ID)

	all, err := f.query.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(3), all[0].UserID)
}

func TestBalanceOf_CreatesLazily(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	before, err := f.store.ListBalances(ctx)
	require.NoError(t, err)
	assert.Empty(t, before)

	b := f.balance(t)
	assert.Equal(t, employeeID, b.UserID)
	assert.Equal(t, 12, b.Remaining(leave.TypeAnnual))

	after, err := f.store.ListBalances(ctx)
	require.NoError(t, err)
	assert.Len(t, after, 1)
}
