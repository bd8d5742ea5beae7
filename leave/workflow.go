/*
workflow.go - Apply for leave and decide on requests

PURPOSE:
  The write side of the service. Apply validates input, counts working days,
  checks availability and inserts a pending request. UpdateStatus moves a
  pending request to approved or rejected and, on approval, charges the
  balance.

AVAILABILITY:
  available = allotted - taken                       (check-only)
  available = allotted - taken - pending(same type)  (hold pending, default)

  With holds, the days of requests still awaiting a decision count against
  what a new request may use. Nothing is written to the balance until
  approval, so a rejection needs no compensation.

TRANSACTIONS:
  Apply:        ensure balance, pending tally, insert, reload  one WithTx
  UpdateStatus: conditional transition, ensure, credit         one WithTx

  The transition only updates a row that is still pending, so two admins
  deciding the same request cannot both succeed and the balance is credited
  at most once.
*/
package leave

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ApplyInput is the raw application as submitted by an employee.
type ApplyInput struct {
	LeaveType string
	StartDate string
	EndDate   string
	Reason    string
}

// Workflow handles leave applications and status transitions.
type Workflow struct {
	store       TxStore
	balances    *BalanceStore
	logger      *slog.Logger
	now         func() time.Time
	holdPending bool
}

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithHoldPending toggles whether pending requests reduce availability.
func WithHoldPending(hold bool) WorkflowOption {
	return func(w *Workflow) { w.holdPending = hold }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) WorkflowOption {
	return func(w *Workflow) { w.logger = l }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) WorkflowOption {
	return func(w *Workflow) { w.now = now }
}

// NewWorkflow creates a Workflow. Pending holds are on unless disabled.
func NewWorkflow(store TxStore, balances *BalanceStore, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		store:       store,
		logger:      slog.Default(),
		now:         time.Now,
		holdPending: true,
	}
	for _, opt := range opts {
		opt(w)
	}
	if balances == nil {
		balances = NewBalanceStore(store, DefaultAllotment)
	}
	bs := balances.On(store)
	bs.now = w.now
	w.balances = bs
	return w
}

// HoldPending reports whether pending requests count against availability.
func (w *Workflow) HoldPending() bool {
	return w.holdPending
}

// =============================================================================
// APPLY
// =============================================================================

// Apply creates a pending leave request for userID.
func (w *Workflow) Apply(ctx context.Context, userID int64, in ApplyInput) (*Request, error) {
	lt, err := ParseType(in.LeaveType)
	if err != nil {
		return nil, err
	}
	start, err := ParseDate("startDate", in.StartDate)
	if err != nil {
		return nil, err
	}
	end, err := ParseDate("endDate", in.EndDate)
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, &ValidationError{Field: "startDate", Message: "start date cannot be after end date"}
	}

	days := WorkingDays(start, end)
	if days <= 0 {
		return nil, &ValidationError{Field: "endDate", Message: "leave must be at least 1 working day"}
	}

	now := w.now().UTC()
	req := &Request{
		UserID:    userID,
		Type:      lt,
		StartDate: start,
		EndDate:   end,
		TotalDays: days,
		Reason:    strings.TrimSpace(in.Reason),
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var created *Request
	err = w.store.WithTx(ctx, func(s Store) error {
		bal, err := w.balances.On(s).Ensure(ctx, userID)
		if err != nil {
			return err
		}

		available := bal.Remaining(lt)
		if w.holdPending {
			pending, err := s.PendingDays(ctx, userID)
			if err != nil {
				return fmt.Errorf("pending days for user %d: %w", userID, err)
			}
			available -= pending.Get(lt)
		}
		if days > available {
			return &InsufficientBalanceError{
				UserID:    userID,
				Type:      lt,
				Available: max(available, 0),
				Requested: days,
			}
		}

		if err := s.CreateRequest(ctx, req); err != nil {
			return fmt.Errorf("create leave request: %w", err)
		}

		// Read back inside the transaction for the requester snapshot.
		stored, err := s.GetRequest(ctx, req.ID)
		if err != nil {
			return fmt.Errorf("reload leave request %d: %w", req.ID, err)
		}
		created = stored
		return nil
	})
	if err != nil {
		if !IsClientError(err) {
			w.logger.Error("apply leave failed", "user_id", userID, "error", err)
		}
		return nil, err
	}

	w.logger.Info("leave request created",
		"id", req.ID,
		"user_id", userID,
		"leave_type", lt,
		"total_days", days,
	)
	return created, nil
}

// =============================================================================
// STATUS TRANSITION
// =============================================================================

// ParseDecision normalises an admin decision into approved or rejected.
func ParseDecision(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if s != StatusApproved && s != StatusRejected {
		return "", &ValidationError{
			Field:   "status",
			Message: fmt.Sprintf("invalid status %q (use approved or rejected)", raw),
		}
	}
	return s, nil
}

// UpdateStatus approves or rejects a pending request. Approval charges the
// requester's balance by the request's TotalDays in the same transaction.
func (w *Workflow) UpdateStatus(ctx context.Context, leaveID int64, to Status, comment string) (*Request, error) {
	to, err := ParseDecision(string(to))
	if err != nil {
		return nil, err
	}

	var updated *Request
	err = w.store.WithTx(ctx, func(s Store) error {
		r, err := s.TransitionRequest(ctx, leaveID, to, strings.TrimSpace(comment), w.now().UTC())
		if err != nil {
			return err
		}
		updated = r

		if to != StatusApproved {
			return nil
		}
		bs := w.balances.On(s)
		if _, err := bs.Ensure(ctx, r.UserID); err != nil {
			return err
		}
		return bs.Credit(ctx, r.UserID, r.Type, r.TotalDays)
	})
	if err != nil {
		if !IsClientError(err) {
			w.logger.Error("update leave status failed", "id", leaveID, "status", to, "error", err)
		}
		return nil, err
	}

	w.logger.Info("leave request "+string(to),
		"id", updated.ID,
		"user_id", updated.UserID,
		"leave_type", updated.Type,
		"total_days", updated.TotalDays,
	)
	return updated, nil
}
