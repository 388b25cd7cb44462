// Package policy holds the per-registry person and evidence rules injected
// into the registry engine.
package policy

import (
	"fmt"
	"strconv"
	"strings"

	"safetyaudit/internal/registry/models"
	dErrors "safetyaudit/pkg/domain-errors"
	platformstrings "safetyaudit/pkg/platform/strings"
)

// PersonPolicy validates and normalizes involved persons.
// Normalize must be idempotent and must accept its own output.
type PersonPolicy interface {
	Validate(raw []any) error
	Normalize(raw []any) []models.Person
}

// EvidencePolicy turns raw evidence items into sanitized references.
type EvidencePolicy interface {
	Sanitize(raw []any) ([]models.Evidence, error)
}

// AliasPersonPolicy accepts plain string ids, {id,...} objects, objects keyed
// by an alias such as employeeId, and canonical Person values.
type AliasPersonPolicy struct {
	// IDAliases are checked, in order, after "id".
	IDAliases []string
	// NameAliases are checked, in order, after "name".
	NameAliases []string
	// Attributes lists the extra keys kept on the canonical person.
	Attributes []string
	// MinPersons is the least number of persons an entry may carry.
	MinPersons int
	// Label names the persons in error messages ("involved employee").
	Label string
}

func (p AliasPersonPolicy) Validate(raw []any) error {
	label := p.Label
	if label == "" {
		label = "person"
	}
	minPersons := max(p.MinPersons, 1)
	if len(raw) < minPersons {
		if minPersons == 1 {
			return dErrors.Newf(dErrors.CodeValidation, "at least one %s is required", label)
		}
		return dErrors.Newf(dErrors.CodeValidation, "at least %d %ss are required", minPersons, label)
	}
	for i, item := range raw {
		if p.personID(item) == "" {
			return dErrors.Newf(dErrors.CodeValidation, "%s at position %d has no identifier", label, i)
		}
	}
	return nil
}

// Normalize maps every recognizable item to a Person. Items without an id
// are skipped; Validate rejects them on the write path.
func (p AliasPersonPolicy) Normalize(raw []any) []models.Person {
	persons := make([]models.Person, 0, len(raw))
	for _, item := range raw {
		personID := p.personID(item)
		if personID == "" {
			continue
		}
		person := models.Person{ID: personID}
		switch v := item.(type) {
		case models.Person:
			person.Name = strings.TrimSpace(v.Name)
			person.Attributes = p.keepAttributes(v.Attributes, nil)
		case *models.Person:
			person.Name = strings.TrimSpace(v.Name)
			person.Attributes = p.keepAttributes(v.Attributes, nil)
		case map[string]any:
			person.Name = platformstrings.FirstNonEmpty(p.lookupStrings(v, "name", p.NameAliases)...)
			nested, _ := v["attributes"].(map[string]any)
			person.Attributes = p.keepAttributes(nested, v)
		}
		persons = append(persons, person)
	}
	return persons
}

func (p AliasPersonPolicy) personID(item any) string {
	switch v := item.(type) {
	case string:
		return strings.TrimSpace(v)
	case models.Person:
		return strings.TrimSpace(v.ID)
	case *models.Person:
		if v == nil {
			return ""
		}
		return strings.TrimSpace(v.ID)
	case map[string]any:
		return platformstrings.FirstNonEmpty(p.lookupStrings(v, "id", p.IDAliases)...)
	default:
		return ""
	}
}

func (p AliasPersonPolicy) lookupStrings(m map[string]any, primary string, aliases []string) []string {
	values := make([]string, 0, len(aliases)+1)
	for _, key := range append([]string{primary}, aliases...) {
		values = append(values, scalarString(m[key]))
	}
	return values
}

// keepAttributes merges allowed keys from the nested attributes map and the
// top-level map. Top-level values win.
func (p AliasPersonPolicy) keepAttributes(nested, top map[string]any) map[string]any {
	if len(p.Attributes) == 0 {
		return nil
	}
	out := make(map[string]any)
	for _, key := range p.Attributes {
		if v, ok := nested[key]; ok && v != nil {
			out[key] = v
		}
		if v, ok := top[key]; ok && v != nil {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// scalarString renders legacy ids, which may be numeric, as strings.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case fmt.Stringer:
		return t.String()
	default:
		return ""
	}
}
