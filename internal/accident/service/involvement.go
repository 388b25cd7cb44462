package service

import (
	"slices"
	"time"

	"safetyaudit/internal/accident/models"
	dErrors "safetyaudit/pkg/domain-errors"
)

// involvementValidator checks the person lists of one accident kind.
// Accidents and incidents never share a validator.
type involvementValidator interface {
	validate(persons []models.InvolvedPerson, witnesses []models.Witness) error
}

type accidentValidator struct{}

func (accidentValidator) validate(persons []models.InvolvedPerson, witnesses []models.Witness) error {
	if len(persons) == 0 {
		return dErrors.New(dErrors.CodeValidation, "at least one involved person is required")
	}
	if len(witnesses) > 0 {
		return dErrors.New(dErrors.CodeValidation, "witnesses are only recorded for incidents")
	}
	seen := make(map[string]bool, len(persons))
	for i, p := range persons {
		if p.PersonID == "" {
			return dErrors.Newf(dErrors.CodeValidation, "involved person at position %d has no identifier", i)
		}
		if seen[p.PersonID] {
			return dErrors.Newf(dErrors.CodeValidation, "person %s is listed twice", p.PersonID)
		}
		seen[p.PersonID] = true
	}
	return nil
}

type incidentValidator struct{}

func (incidentValidator) validate(persons []models.InvolvedPerson, witnesses []models.Witness) error {
	if len(persons) > 0 {
		return dErrors.New(dErrors.CodeValidation, "involved persons are only recorded for accidents")
	}
	for i, w := range witnesses {
		if w.PersonID == "" {
			return dErrors.Newf(dErrors.CodeValidation, "witness at position %d has no identifier", i)
		}
	}
	return nil
}

func validatorFor(kind models.Kind) involvementValidator {
	if kind == models.KindIncident {
		return incidentValidator{}
	}
	return accidentValidator{}
}

// freshInvolvement drops leave bookkeeping supplied by the caller; leave
// start is set by the service and leave end only by closure.
func freshInvolvement(in []models.InvolvedPerson) []models.InvolvedPerson {
	out := make([]models.InvolvedPerson, 0, len(in))
	for _, p := range in {
		out = append(out, models.InvolvedPerson{
			PersonID:   p.PersonID,
			PersonName: p.PersonName,
			OnLeave:    p.OnLeave,
		})
	}
	return out
}

// replaceInvolvement swaps in a new person list, keeping the leave history of
// persons already listed. On an open accident it starts leave for newly
// on-leave persons and returns them along with persons no longer on leave.
func replaceInvolvement(a *models.Accident, in []models.InvolvedPerson, now time.Time) (started, ended []string) {
	previous := make(map[string]models.InvolvedPerson, len(a.InvolvedPersons))
	for _, p := range a.InvolvedPersons {
		previous[p.PersonID] = p
	}

	next := freshInvolvement(in)
	stillOnLeave := make(map[string]bool, len(next))
	for i := range next {
		p := &next[i]
		if old, ok := previous[p.PersonID]; ok && p.OnLeave && old.OnLeave {
			p.LeaveStart, p.LeaveEnd, p.DaysLost = old.LeaveStart, old.LeaveEnd, old.DaysLost
		}
		if p.OnLeave {
			stillOnLeave[p.PersonID] = true
		}
	}
	a.InvolvedPersons = next
	if !a.IsOpen() {
		return nil, nil
	}

	started = a.StartLeave(now)
	for _, old := range previous {
		if old.OnLeave && !stillOnLeave[old.PersonID] {
			ended = append(ended, old.PersonID)
		}
	}
	slices.Sort(ended)
	return started, ended
}
