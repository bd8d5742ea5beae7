/*
Package leave implements the leave-application and balance-adjustment workflow.

PURPOSE:
  Employees apply for leave against a per-type balance (casual, sick, annual).
  Administrators approve or reject requests. Approval is the only operation
  that charges the balance.

KEY TYPES:
  Request:  A leave request with its working-day count and status
  Balance:  Per-user allotted/taken counters for each leave type
  Tally:    One integer per leave type (allotments, taken, pending)
  Stats:    Organisation-wide counts and balance rollup

STATE MACHINE:
  pending ──▶ approved   (terminal, charges the balance)
     │
     └────▶ rejected    (terminal, balance untouched)

COMPONENTS:
  WorkingDays:   weekday counter (workingdays.go)
  BalanceStore:  ensure / credit over the persistence layer (balance.go)
  Workflow:      apply and status transition (workflow.go)
  QueryService:  read-side listings and stats (query.go)

SEE ALSO:
  - store.go: persistence contract implemented by store/sqlite, store/postgres
  - errors.go: error kinds surfaced to the HTTP layer
*/
package leave

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// LEAVE TYPE
// =============================================================================

// Type is the kind of leave being requested.
type Type string

const (
	TypeCasual Type = "casual"
	TypeSick   Type = "sick"
	TypeAnnual Type = "annual"
)

// Types lists every supported leave type in display order.
var Types = []Type{TypeCasual, TypeSick, TypeAnnual}

// ParseType normalises raw input ("CASUAL", " sick ") into a Type.
func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", &ValidationError{
			Field:   "leaveType",
			Message: fmt.Sprintf("unsupported leave type %q (use casual, sick or annual)", raw),
		}
	}
	return t, nil
}

func (t Type) Valid() bool {
	switch t {
	case TypeCasual, TypeSick, TypeAnnual:
		return true
	}
	return false
}

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle state of a request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// =============================================================================
// REQUEST
// =============================================================================

// Request is a stored leave request.
//
// TotalDays is computed once when the request is created and is never
// recomputed afterwards.
type Request struct {
	ID           int64
	UserID       int64
	Type         Type
	StartDate    time.Time
	EndDate      time.Time
	TotalDays    int
	Reason       string
	Status       Status
	AdminComment string
	CreatedAt    time.Time
	UpdatedAt    time.Time

	// Snapshot of the requester, joined on read.
	UserName  string
	UserEmail string
}

// RequestFilter narrows ListRequests. Zero values mean "any".
type RequestFilter struct {
	UserID int64
	Status Status
}

// =============================================================================
// BALANCE
// =============================================================================

// Tally holds one integer per leave type.
type Tally struct {
	Casual int
	Sick   int
	Annual int
}

// Get returns the value for t.
func (t Tally) Get(lt Type) int {
	switch lt {
	case TypeCasual:
		return t.Casual
	case TypeSick:
		return t.Sick
	case TypeAnnual:
		return t.Annual
	}
	return 0
}

// Add returns t with days added to the lt counter.
func (t Tally) Add(lt Type, days int) Tally {
	switch lt {
	case TypeCasual:
		t.Casual += days
	case TypeSick:
		t.Sick += days
	case TypeAnnual:
		t.Annual += days
	}
	return t
}

// Scale multiplies every counter by n.
func (t Tally) Scale(n int) Tally {
	return Tally{Casual: t.Casual * n, Sick: t.Sick * n, Annual: t.Annual * n}
}

// DefaultAllotment is what a user receives the first time a balance is touched.
var DefaultAllotment = Tally{Casual: 12, Sick: 6, Annual: 12}

// Balance is a user's leave balance.
type Balance struct {
	UserID   int64
	Allotted Tally
	Taken    Tally

	// Pending is derived on read from pending requests. Never stored.
	Pending Tally

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Remaining is allotted minus taken for lt.
func (b Balance) Remaining(lt Type) int {
	return b.Allotted.Get(lt) - b.Taken.Get(lt)
}

// =============================================================================
// USERS
// =============================================================================

// User is the identity snapshot attached to requests.
type User struct {
	ID    int64
	Name  string
	Email string
	Role  string
}
