package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "safetyaudit/pkg/domain-errors"
)

func TestDaysLost(t *testing.T) {
	d0 := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name     string
		closedAt time.Time
		want     int
	}{
		{"three days two hours rounds up", d0.Add(3*24*time.Hour + 2*time.Hour), 4},
		{"exact days", d0.Add(3 * 24 * time.Hour), 3},
		{"one second", d0.Add(time.Second), 1},
		{"same instant", d0, 0},
		{"closed before leave start", d0.Add(-time.Hour), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysLost(d0, tt.closedAt))
		})
	}
}

func TestDaysLostNeverNegative(t *testing.T) {
	d0 := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	for offset := -72 * time.Hour; offset <= 72*time.Hour; offset += 7 * time.Hour {
		days := DaysLost(d0, d0.Add(offset))
		assert.GreaterOrEqual(t, days, 0)
		if offset > 0 {
			assert.Equal(t, (offset+24*time.Hour-1)/(24*time.Hour), time.Duration(days))
		}
	}
}

func newOpenAccident(d0 time.Time) *Accident {
	start := d0
	return &Accident{
		Kind:   KindAccident,
		Status: StatusOpen,
		InvolvedPersons: []InvolvedPerson{
			{PersonID: "emp-1", OnLeave: true, LeaveStart: &start},
			{PersonID: "emp-2"},
		},
	}
}

func TestApplyClosure(t *testing.T) {
	d0 := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	closedAt := d0.Add(3*24*time.Hour + 2*time.Hour)
	a := newOpenAccident(d0)

	require.NoError(t, a.CanClose())
	released := a.ApplyClosure(closedAt, "supervisor", "back to work")

	assert.Equal(t, []string{"emp-1"}, released)
	assert.Equal(t, StatusClosed, a.Status)
	require.NotNil(t, a.ClosedAt)
	assert.Equal(t, closedAt, *a.ClosedAt)
	assert.Equal(t, "supervisor", a.ClosedBy)
	assert.Equal(t, "back to work", a.ClosingNotes)

	onLeave := a.InvolvedPersons[0]
	require.NotNil(t, onLeave.DaysLost)
	assert.Equal(t, 4, *onLeave.DaysLost)
	require.NotNil(t, onLeave.LeaveEnd)
	assert.Equal(t, closedAt, *onLeave.LeaveEnd)

	notOnLeave := a.InvolvedPersons[1]
	assert.Nil(t, notOnLeave.DaysLost)
	assert.Nil(t, notOnLeave.LeaveEnd)

	assert.Equal(t, 4, a.TotalDaysLost())
}

func TestCanClose(t *testing.T) {
	a := newOpenAccident(time.Now())
	a.ApplyClosure(time.Now(), "", "")

	err := a.CanClose()
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	assert.Equal(t, "accident is already closed", dErrors.MessageOf(err))
	assert.False(t, StatusClosed.CanTransitionTo(StatusOpen))
}

func TestStartLeave(t *testing.T) {
	now := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	earlier := now.Add(-time.Hour)
	a := &Accident{InvolvedPersons: []InvolvedPerson{
		{PersonID: "emp-1", OnLeave: true},
		{PersonID: "emp-2", OnLeave: true, LeaveStart: &earlier},
		{PersonID: "emp-3"},
	}}

	started := a.StartLeave(now)

	assert.Equal(t, []string{"emp-1"}, started)
	assert.Equal(t, now, *a.InvolvedPersons[0].LeaveStart)
	assert.Equal(t, earlier, *a.InvolvedPersons[1].LeaveStart)
	assert.Nil(t, a.InvolvedPersons[2].LeaveStart)
}

func TestSummarize(t *testing.T) {
	four := 4
	accidents := []*Accident{
		{Kind: KindAccident, Status: StatusClosed, Severity: SeveritySevere,
			InvolvedPersons: []InvolvedPerson{{PersonID: "emp-1", DaysLost: &four}}},
		{Kind: KindAccident, Status: StatusOpen, Severity: SeverityMinor},
		{Kind: KindIncident, Status: StatusOpen},
	}

	stats := Summarize(accidents)

	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Open)
	assert.Equal(t, 1, stats.Closed)
	assert.Equal(t, 2, stats.Accidents)
	assert.Equal(t, 1, stats.Incidents)
	assert.Equal(t, map[Severity]int{SeveritySevere: 1, SeverityMinor: 1}, stats.BySeverity)
	assert.Equal(t, 4, stats.TotalDaysLost)
}

func TestCreateAccidentRequestValidate(t *testing.T) {
	valid := func() CreateAccidentRequest {
		return CreateAccidentRequest{CompanyID: " co-1 ", BranchID: "br-1", Kind: " Accident "}
	}

	t.Run("normalizes and accepts", func(t *testing.T) {
		req := valid()
		req.Normalize()
		require.NoError(t, req.Validate())
		assert.Equal(t, "co-1", req.CompanyID)
		assert.Equal(t, KindAccident, req.Kind)
	})

	t.Run("rejects unknown kind", func(t *testing.T) {
		req := valid()
		req.Kind = "nearmiss"
		req.Normalize()
		assert.True(t, dErrors.HasCode(req.Validate(), dErrors.CodeValidation))
	})

	t.Run("rejects unknown severity", func(t *testing.T) {
		req := valid()
		req.Severity = "catastrophic"
		req.Normalize()
		assert.True(t, dErrors.HasCode(req.Validate(), dErrors.CodeValidation))
	})

	t.Run("requires branch", func(t *testing.T) {
		req := valid()
		req.BranchID = ""
		req.Normalize()
		assert.True(t, dErrors.HasCode(req.Validate(), dErrors.CodeValidation))
	})
}
