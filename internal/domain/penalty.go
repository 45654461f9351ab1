package domain

import "time"

// Penalty rule identifiers, recorded in the dedupe key so reporting can
// distinguish accrual paths.
const (
	PenaltyRuleSLASweep = "sla_sweep"
	PenaltyRuleManual   = "manual_violation"
)

// PenaltyPoint debits accountability points to a user or a department
// (exactly one target). Records accumulate and are never mutated by the
// system. DedupeKey (ticket id + day + rule id) guards against duplicate
// accrual within the same sweep day.
type PenaltyPoint struct {
	ID           string
	UserID       *string
	DepartmentID *string
	Points       int
	Reason       string
	DedupeKey    string
	CreatedAt    time.Time
}
