package models

import (
	"time"

	registrymodels "safetyaudit/internal/registry/models"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
)

// Kind distinguishes accidents, which track lost workdays, from incidents,
// which only record witnesses.
type Kind string

const (
	KindAccident Kind = "accident"
	KindIncident Kind = "incident"
)

func (k Kind) IsValid() bool {
	return k == KindAccident || k == KindIncident
}

type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// CanTransitionTo reports whether the lifecycle allows moving to target.
// The only transition is open -> closed.
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusOpen && target == StatusClosed
}

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
)

// IsValid accepts the empty severity, which means "not assessed".
func (s Severity) IsValid() bool {
	switch s {
	case "", SeverityMinor, SeverityModerate, SeveritySevere:
		return true
	}
	return false
}

// InvolvedPerson is a person injured in an accident. LeaveEnd and DaysLost
// are only set by closure.
type InvolvedPerson struct {
	PersonID   string     `json:"personId"`
	PersonName string     `json:"personName,omitempty"`
	OnLeave    bool       `json:"onLeave"`
	LeaveStart *time.Time `json:"leaveStart,omitempty"`
	LeaveEnd   *time.Time `json:"leaveEnd,omitempty"`
	DaysLost   *int       `json:"daysLost,omitempty"`
}

type Witness struct {
	PersonID   string `json:"personId"`
	PersonName string `json:"personName,omitempty"`
}

// Accident is a reported safety event.
//
// Invariants:
//   - Status starts open; open -> closed is the only transition and is terminal
//   - ClosedAt is set exactly once, by ApplyClosure
//   - InvolvedPersons is only populated for KindAccident, Witnesses only for KindIncident
type Accident struct {
	ID              id.AccidentID             `json:"id"`
	OwnerID         id.OwnerID                `json:"ownerId"`
	CompanyID       string                    `json:"companyId"`
	BranchID        string                    `json:"branchId"`
	Kind            Kind                      `json:"kind"`
	Description     string                    `json:"description"`
	Severity        Severity                  `json:"severity,omitempty"`
	OccurredAt      time.Time                 `json:"occurredAt"`
	Status          Status                    `json:"status"`
	InvolvedPersons []InvolvedPerson          `json:"involvedPersons"`
	Witnesses       []Witness                 `json:"witnesses"`
	EvidenceRefs    []registrymodels.Evidence `json:"evidenceRefs"`
	ReportedBy      string                    `json:"reportedBy,omitempty"`
	ClosedAt        *time.Time                `json:"closedAt,omitempty"`
	ClosedBy        string                    `json:"closedBy,omitempty"`
	ClosingNotes    string                    `json:"closingNotes,omitempty"`
	CreatedAt       time.Time                 `json:"createdAt"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
	UpdatedBy       string                    `json:"updatedBy,omitempty"`
}

func (a *Accident) IsOpen() bool {
	return a.Status == StatusOpen
}

// CanClose checks the open -> closed transition. A second close is a
// conflict; nothing is recomputed.
func (a *Accident) CanClose() error {
	if !a.Status.CanTransitionTo(StatusClosed) {
		return dErrors.New(dErrors.CodeConflict, "accident is already closed")
	}
	return nil
}

// ApplyClosure closes the accident and finalizes lost workdays for every
// person on leave. It returns the ids of the persons released from leave.
// Call CanClose first.
func (a *Accident) ApplyClosure(closedAt time.Time, closedBy, notes string) []string {
	var released []string
	for i := range a.InvolvedPersons {
		p := &a.InvolvedPersons[i]
		if !p.OnLeave {
			continue
		}
		start := closedAt
		if p.LeaveStart != nil {
			start = *p.LeaveStart
		}
		days := DaysLost(start, closedAt)
		end := closedAt
		p.LeaveEnd = &end
		p.DaysLost = &days
		released = append(released, p.PersonID)
	}
	closed := closedAt
	a.Status = StatusClosed
	a.ClosedAt = &closed
	a.ClosedBy = closedBy
	a.ClosingNotes = notes
	a.UpdatedAt = closedAt
	a.UpdatedBy = closedBy
	return released
}

// DaysLost counts started days between leaveStart and closedAt, never
// negative: max(0, ceil((closedAt - leaveStart) / 24h)).
func DaysLost(leaveStart, closedAt time.Time) int {
	elapsed := closedAt.Sub(leaveStart)
	if elapsed <= 0 {
		return 0
	}
	const day = 24 * time.Hour
	days := int(elapsed / day)
	if elapsed%day != 0 {
		days++
	}
	return days
}

// StartLeave marks every on-leave person without a start as starting now and
// returns their ids.
func (a *Accident) StartLeave(now time.Time) []string {
	var started []string
	for i := range a.InvolvedPersons {
		p := &a.InvolvedPersons[i]
		if !p.OnLeave || p.LeaveStart != nil {
			continue
		}
		start := now
		p.LeaveStart = &start
		started = append(started, p.PersonID)
	}
	return started
}

// TotalDaysLost sums finalized lost workdays.
func (a *Accident) TotalDaysLost() int {
	total := 0
	for _, p := range a.InvolvedPersons {
		if p.DaysLost != nil {
			total += *p.DaysLost
		}
	}
	return total
}

// Stats summarizes the accidents of one company.
type Stats struct {
	Total         int              `json:"total"`
	Open          int              `json:"open"`
	Closed        int              `json:"closed"`
	Accidents     int              `json:"accidents"`
	Incidents     int              `json:"incidents"`
	BySeverity    map[Severity]int `json:"bySeverity"`
	TotalDaysLost int              `json:"totalDaysLost"`
}

// Summarize aggregates a company's accidents.
func Summarize(accidents []*Accident) Stats {
	stats := Stats{BySeverity: map[Severity]int{}}
	for _, a := range accidents {
		stats.Total++
		if a.IsOpen() {
			stats.Open++
		} else {
			stats.Closed++
		}
		switch a.Kind {
		case KindAccident:
			stats.Accidents++
		case KindIncident:
			stats.Incidents++
		}
		if a.Severity != "" {
			stats.BySeverity[a.Severity]++
		}
		stats.TotalDaysLost += a.TotalDaysLost()
	}
	return stats
}

// Clone returns a deep copy so stores never share slices with callers.
func (a *Accident) Clone() *Accident {
	if a == nil {
		return nil
	}
	c := *a
	c.InvolvedPersons = make([]InvolvedPerson, len(a.InvolvedPersons))
	for i, p := range a.InvolvedPersons {
		p.LeaveStart = cloneTime(p.LeaveStart)
		p.LeaveEnd = cloneTime(p.LeaveEnd)
		if p.DaysLost != nil {
			days := *p.DaysLost
			p.DaysLost = &days
		}
		c.InvolvedPersons[i] = p
	}
	c.Witnesses = append([]Witness(nil), a.Witnesses...)
	c.EvidenceRefs = make([]registrymodels.Evidence, len(a.EvidenceRefs))
	for i, ev := range a.EvidenceRefs {
		ev.CreatedAt = cloneTime(ev.CreatedAt)
		c.EvidenceRefs[i] = ev
	}
	c.ClosedAt = cloneTime(a.ClosedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
