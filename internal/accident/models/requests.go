package models

import (
	"strings"
	"time"

	dErrors "safetyaudit/pkg/domain-errors"
)

// CreateAccidentRequest reports a new accident or incident.
type CreateAccidentRequest struct {
	CompanyID       string           `json:"companyId"`
	BranchID        string           `json:"branchId"`
	Kind            Kind             `json:"kind"`
	Description     string           `json:"description"`
	Severity        Severity         `json:"severity,omitempty"`
	OccurredAt      *time.Time       `json:"occurredAt,omitempty"`
	InvolvedPersons []InvolvedPerson `json:"involvedPersons,omitempty"`
	Witnesses       []Witness        `json:"witnesses,omitempty"`
	Evidence        []any            `json:"evidence,omitempty"`
}

func (r *CreateAccidentRequest) Normalize() {
	r.CompanyID = strings.TrimSpace(r.CompanyID)
	r.BranchID = strings.TrimSpace(r.BranchID)
	r.Description = strings.TrimSpace(r.Description)
	r.Kind = Kind(strings.ToLower(strings.TrimSpace(string(r.Kind))))
	for i := range r.InvolvedPersons {
		r.InvolvedPersons[i].PersonID = strings.TrimSpace(r.InvolvedPersons[i].PersonID)
		r.InvolvedPersons[i].PersonName = strings.TrimSpace(r.InvolvedPersons[i].PersonName)
	}
	for i := range r.Witnesses {
		r.Witnesses[i].PersonID = strings.TrimSpace(r.Witnesses[i].PersonID)
		r.Witnesses[i].PersonName = strings.TrimSpace(r.Witnesses[i].PersonName)
	}
}

// Validate checks the fields shared by both kinds. Kind-specific person
// rules live with the service's validators.
func (r *CreateAccidentRequest) Validate() error {
	if r.CompanyID == "" {
		return dErrors.New(dErrors.CodeValidation, "companyId is required")
	}
	if r.BranchID == "" {
		return dErrors.New(dErrors.CodeValidation, "branchId is required")
	}
	if !r.Kind.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "kind must be accident or incident")
	}
	if !r.Severity.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "severity must be minor, moderate or severe")
	}
	return nil
}

// UpdateAccidentRequest edits an accident in any status. Nil fields are left
// unchanged.
type UpdateAccidentRequest struct {
	Description     *string           `json:"description,omitempty"`
	Severity        *Severity         `json:"severity,omitempty"`
	OccurredAt      *time.Time        `json:"occurredAt,omitempty"`
	InvolvedPersons *[]InvolvedPerson `json:"involvedPersons,omitempty"`
	Witnesses       *[]Witness        `json:"witnesses,omitempty"`
	Evidence        *[]any            `json:"evidence,omitempty"`
}

func (r *UpdateAccidentRequest) Validate() error {
	if r.Severity != nil && !r.Severity.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "severity must be minor, moderate or severe")
	}
	if r.OccurredAt != nil && r.OccurredAt.IsZero() {
		return dErrors.New(dErrors.CodeValidation, "occurredAt cannot be empty")
	}
	return nil
}

type CloseAccidentRequest struct {
	Notes string `json:"notes,omitempty"`
}

// Result pairs an accident with the non-fatal warnings raised while
// notifying the person directory.
type Result struct {
	Accident *Accident `json:"accident"`
	Warnings []string  `json:"warnings,omitempty"`
}
