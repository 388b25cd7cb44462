package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetyaudit/internal/registry/models"
	dErrors "safetyaudit/pkg/domain-errors"
)

var employeePolicy = AliasPersonPolicy{
	IDAliases:   []string{"employeeId"},
	NameAliases: []string{"employeeName"},
	Attributes:  []string{"onLeave"},
	Label:       "involved employee",
}

func toAny(persons []models.Person) []any {
	out := make([]any, len(persons))
	for i, p := range persons {
		out[i] = p
	}
	return out
}

func TestNormalizePersons_Shapes(t *testing.T) {
	tests := []struct {
		name string
		raw  []any
		want []models.Person
	}{
		{
			name: "plain string id",
			raw:  []any{" E1 "},
			want: []models.Person{{ID: "E1"}},
		},
		{
			name: "object keyed by id",
			raw:  []any{map[string]any{"id": "E1", "name": "Ana", "department": "ops"}},
			want: []models.Person{{ID: "E1", Name: "Ana"}},
		},
		{
			name: "object keyed by alias",
			raw:  []any{map[string]any{"employeeId": "E1", "employeeName": "Ana", "onLeave": true}},
			want: []models.Person{{ID: "E1", Name: "Ana", Attributes: map[string]any{"onLeave": true}}},
		},
		{
			name: "numeric legacy id",
			raw:  []any{map[string]any{"employeeId": float64(1042)}},
			want: []models.Person{{ID: "1042"}},
		},
		{
			name: "canonical person",
			raw:  []any{models.Person{ID: "E1", Name: "Ana"}},
			want: []models.Person{{ID: "E1", Name: "Ana"}},
		},
		{
			name: "stored document form",
			raw:  []any{map[string]any{"id": "E1", "name": "Ana", "attributes": map[string]any{"onLeave": false}}},
			want: []models.Person{{ID: "E1", Name: "Ana", Attributes: map[string]any{"onLeave": false}}},
		},
		{
			name: "unrecognizable items are skipped",
			raw:  []any{42, map[string]any{"name": "nobody"}, "E2"},
			want: []models.Person{{ID: "E2"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, employeePolicy.Normalize(tt.raw))
		})
	}
}

func TestNormalizePersons_Idempotent(t *testing.T) {
	inputs := map[string][]any{
		"string ids":    {"E1", "E2"},
		"id objects":    {map[string]any{"id": "E1", "name": "Ana"}},
		"alias objects": {map[string]any{"employeeId": "E1", "employeeName": "Ana", "onLeave": true}},
		"mixed":         {"E1", map[string]any{"id": "E2"}, map[string]any{"employeeId": "E3", "onLeave": false}},
	}
	for name, raw := range inputs {
		t.Run(name, func(t *testing.T) {
			once := employeePolicy.Normalize(raw)
			twice := employeePolicy.Normalize(toAny(once))
			assert.Equal(t, once, twice)
		})
	}
}

func TestValidatePersons(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		err := employeePolicy.Validate(nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
		assert.Equal(t, "at least one involved employee is required", dErrors.MessageOf(err))
	})

	t.Run("item without identifier", func(t *testing.T) {
		err := employeePolicy.Validate([]any{"E1", map[string]any{"employeeName": "Ana"}})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("minimum above one", func(t *testing.T) {
		p := AliasPersonPolicy{MinPersons: 2, Label: "attendee"}
		err := p.Validate([]any{"E1"})
		require.Error(t, err)
		assert.Equal(t, "at least 2 attendees are required", dErrors.MessageOf(err))
	})

	t.Run("all shapes accepted", func(t *testing.T) {
		assert.NoError(t, employeePolicy.Validate([]any{
			"E1",
			map[string]any{"id": "E2"},
			map[string]any{"employeeId": "E3"},
			models.Person{ID: "E4"},
		}))
	})
}

func TestSanitizeEvidence(t *testing.T) {
	t.Run("strips unknown fields", func(t *testing.T) {
		got, err := SanitizingEvidencePolicy{}.Sanitize([]any{
			map[string]any{"id": "x", "shareToken": "t", "secretInternalField": "leak"},
		})
		require.NoError(t, err)
		assert.Equal(t, []models.Evidence{{ID: "x", ShareToken: "t"}}, got)
	})

	t.Run("id falls back to source file id", func(t *testing.T) {
		got, err := SanitizingEvidencePolicy{}.Sanitize([]any{
			map[string]any{"sourceFileId": "f1"},
			map[string]any{"fileId": "f2", "name": "photo.jpg"},
		})
		require.NoError(t, err)
		assert.Equal(t, "f1", got[0].ID)
		assert.Equal(t, "f2", got[1].ID)
		assert.Equal(t, "f2", got[1].SourceFileID)
		assert.Equal(t, "photo.jpg", got[1].Name)
	})

	t.Run("missing both ids", func(t *testing.T) {
		_, err := SanitizingEvidencePolicy{}.Sanitize([]any{map[string]any{"name": "photo.jpg"}})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects local preview urls", func(t *testing.T) {
		_, err := SanitizingEvidencePolicy{}.Sanitize([]any{
			map[string]any{"id": "x", "url": "blob:https://app.example/123"},
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

		_, err = SanitizingEvidencePolicy{}.Sanitize([]any{models.Evidence{ID: "data:image/png;base64,AAAA"}})
		require.Error(t, err)

		_, err = SanitizingEvidencePolicy{}.Sanitize([]any{
			map[string]any{"id": "x", "thumbnail": "data:image/png;base64,AAAA"},
		})
		require.Error(t, err, "keys that would be stripped are still checked")
		assert.Contains(t, dErrors.MessageOf(err), "thumbnail")
	})

	t.Run("parses createdAt", func(t *testing.T) {
		got, err := SanitizingEvidencePolicy{}.Sanitize([]any{
			map[string]any{"id": "x", "createdAt": "2026-03-01T10:00:00Z"},
		})
		require.NoError(t, err)
		require.NotNil(t, got[0].CreatedAt)
		assert.True(t, got[0].CreatedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)))

		_, err = SanitizingEvidencePolicy{}.Sanitize([]any{map[string]any{"id": "x", "createdAt": "yesterday"}})
		assert.Error(t, err)
	})

	t.Run("lenient sanitize drops invalid items", func(t *testing.T) {
		got := SanitizeLenient([]any{map[string]any{"id": "a"}, map[string]any{}, "junk"})
		assert.Equal(t, []models.Evidence{{ID: "a"}}, got)
	})
}
