// Package directory is the person directory collaborator: it lists personnel
// per branch and toggles their active status while they are on leave.
package directory

import (
	"context"
	"time"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// PersonRecord is a person as the directory knows them.
type PersonRecord struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	BranchID   string     `json:"branchId"`
	CompanyID  string     `json:"companyId,omitempty"`
	Status     Status     `json:"status"`
	LeaveStart *time.Time `json:"leaveStart,omitempty"`
}

// Filter narrows ListByBranch. Zero values match everything.
type Filter struct {
	Status Status
	IDs    []string
}

// Matches reports whether p passes the filter.
func (f Filter) Matches(p PersonRecord) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if len(f.IDs) == 0 {
		return true
	}
	for _, want := range f.IDs {
		if p.ID == want {
			return true
		}
	}
	return false
}

type Directory interface {
	// SetPersonStatus marks a person active or inactive. leaveStart is set
	// when a leave begins and nil when it ends.
	SetPersonStatus(ctx context.Context, personID string, status Status, leaveStart *time.Time) error
	ListByBranch(ctx context.Context, branchID string, filter Filter) ([]PersonRecord, error)
}
