/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Field names are
  camelCase to match the contract the web UI already consumes.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Requests:  ApplyLeaveRequest, UpdateStatusRequest
  Responses: LeaveRequestDTO, LeaveBalanceDTO, LeaveStatsDTO, HealthDTO
  Errors:    ErrorResponse, FieldErrorDTO

VALIDATION:
  Request types carry `validate` tags checked with go-playground/validator
  before the workflow sees them. Semantic checks (date order, balance)
  stay in the workflow.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ApplyLeaveRequest is the body of POST /api/leaves/apply.
type ApplyLeaveRequest struct {
	LeaveType string `json:"leaveType" validate:"required"`
	StartDate string `json:"startDate" validate:"required"`
	EndDate   string `json:"endDate" validate:"required"`
	Reason    string `json:"reason" validate:"max=1000"`
}

// UpdateStatusRequest is the body of PATCH /api/leaves/{id}/status.
type UpdateStatusRequest struct {
	Status        string `json:"status" validate:"required"`
	AdminComments string `json:"adminComments" validate:"max=1000"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LeaveRequestDTO represents a leave request in API responses.
type LeaveRequestDTO struct {
	ID            int64   `json:"id"`
	LeaveType     string  `json:"leaveType"`
	StartDate     string  `json:"startDate"`
	EndDate       string  `json:"endDate"`
	TotalDays     int     `json:"totalDays"`
	Reason        *string `json:"reason"`
	Status        string  `json:"status"`
	UserID        int64   `json:"userId"`
	UserName      string  `json:"userName,omitempty"`
	UserEmail     string  `json:"userEmail,omitempty"`
	AdminComments *string `json:"adminComments"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

// LeaveBalanceDTO represents a balance. Remaining values are derived.
type LeaveBalanceDTO struct {
	UserID          int64 `json:"userId"`
	CasualLeaves    int   `json:"casualLeaves"`
	SickLeaves      int   `json:"sickLeaves"`
	AnnualLeaves    int   `json:"annualLeaves"`
	CasualTaken     int   `json:"casualTaken"`
	SickTaken       int   `json:"sickTaken"`
	AnnualTaken     int   `json:"annualTaken"`
	CasualRemaining int   `json:"casualRemaining"`
	SickRemaining   int   `json:"sickRemaining"`
	AnnualRemaining int   `json:"annualRemaining"`

	// Days held by requests awaiting a decision. Omitted in stats.
	CasualPending *int `json:"casualPending,omitempty"`
	SickPending   *int `json:"sickPending,omitempty"`
	AnnualPending *int `json:"annualPending,omitempty"`
}

// LeaveStatsDTO is the admin dashboard summary.
type LeaveStatsDTO struct {
	TotalRequests int                `json:"totalRequests"`
	Pending       int                `json:"pending"`
	Approved      int                `json:"approved"`
	Rejected      int                `json:"rejected"`
	LeaveBalances LeaveBalanceDTO    `json:"leaveBalances"`
	Utilization   map[string]float64 `json:"utilization"`
}

// HealthDTO is returned by GET /api/leaves/health.
type HealthDTO struct {
	Status    string   `json:"status"`
	Service   string   `json:"service"`
	Timestamp string   `json:"timestamp"`
	Routes    []string `json:"routes"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// FieldErrorDTO describes one rejected request field.
type FieldErrorDTO struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toLeaveRequestDTO(r leave.Request) LeaveRequestDTO {
	return LeaveRequestDTO{
		ID:            r.ID,
		LeaveType:     string(r.Type),
		StartDate:     isoDate(r.StartDate),
		EndDate:       isoDate(r.EndDate),
		TotalDays:     r.TotalDays,
		Reason:        optional(r.Reason),
		Status:        string(r.Status),
		UserID:        r.UserID,
		UserName:      r.UserName,
		UserEmail:     r.UserEmail,
		AdminComments: optional(r.AdminComment),
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toLeaveRequestDTOs(rs []leave.Request) []LeaveRequestDTO {
	out := make([]LeaveRequestDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toLeaveRequestDTO(r))
	}
	return out
}

func toLeaveBalanceDTO(b leave.Balance, withPending bool) LeaveBalanceDTO {
	dto := LeaveBalanceDTO{
		UserID:          b.UserID,
		CasualLeaves:    b.Allotted.Casual,
		SickLeaves:      b.Allotted.Sick,
		AnnualLeaves:    b.Allotted.Annual,
		CasualTaken:     b.Taken.Casual,
		SickTaken:       b.Taken.Sick,
		AnnualTaken:     b.Taken.Annual,
		CasualRemaining: b.Remaining(leave.TypeCasual),
		SickRemaining:   b.Remaining(leave.TypeSick),
		AnnualRemaining: b.Remaining(leave.TypeAnnual),
	}
	if withPending {
		casual, sick, annual := b.Pending.Casual, b.Pending.Sick, b.Pending.Annual
		dto.CasualPending = &casual
		dto.SickPending = &sick
		dto.AnnualPending = &annual
	}
	return dto
}

func toLeaveStatsDTO(s leave.Stats) LeaveStatsDTO {
	util := make(map[string]float64, len(leave.Types))
	for _, t := range leave.Types {
		util[string(t)] = s.Utilization(t).InexactFloat64()
	}
	return LeaveStatsDTO{
		TotalRequests: s.TotalRequests,
		Pending:       s.Pending,
		Approved:      s.Approved,
		Rejected:      s.Rejected,
		LeaveBalances: toLeaveBalanceDTO(s.Balances, false),
		Utilization:   util,
	}
}

// isoDate renders a calendar date as midnight UTC.
func isoDate(t time.Time) string {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
