package policy

import (
	"strings"
	"time"

	"safetyaudit/internal/registry/models"
	dErrors "safetyaudit/pkg/domain-errors"
	platformstrings "safetyaudit/pkg/platform/strings"
)

// legacyFileIDKey is the pre-rename name of sourceFileId.
const legacyFileIDKey = "fileId"

// localURLPrefixes mark client-side previews that never reached the evidence store.
var localURLPrefixes = []string{"data:", "blob:"}

// SanitizingEvidencePolicy keeps only id, sourceFileId, shareToken, name and
// createdAt. An item without both id and source file id is rejected, as is
// any item carrying a data: or blob: URL.
type SanitizingEvidencePolicy struct{}

func (SanitizingEvidencePolicy) Sanitize(raw []any) ([]models.Evidence, error) {
	out := make([]models.Evidence, 0, len(raw))
	for i, item := range raw {
		ev, err := sanitizeOne(item)
		if err != nil {
			return nil, dErrors.Newf(dErrors.CodeValidation, "evidence at position %d: %s", i, dErrors.MessageOf(err))
		}
		out = append(out, ev)
	}
	return out, nil
}

// SanitizeLenient drops items Sanitize would reject. Used on read paths over
// stored documents written by older clients.
func SanitizeLenient(raw []any) []models.Evidence {
	out := make([]models.Evidence, 0, len(raw))
	for _, item := range raw {
		if ev, err := sanitizeOne(item); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

func sanitizeOne(item any) (models.Evidence, error) {
	var ev models.Evidence
	switch v := item.(type) {
	case models.Evidence:
		ev = v
	case *models.Evidence:
		if v == nil {
			return ev, dErrors.New(dErrors.CodeValidation, "evidence is empty")
		}
		ev = *v
	case map[string]any:
		// Every key is checked, including unknown ones about to be dropped.
		for key, value := range v {
			if s, ok := value.(string); ok && platformstrings.HasAnyPrefix(s, localURLPrefixes...) {
				return ev, dErrors.New(dErrors.CodeValidation, "field "+key+" holds a local preview URL")
			}
		}
		ev.ID = scalarString(v["id"])
		ev.SourceFileID = platformstrings.FirstNonEmpty(scalarString(v["sourceFileId"]), scalarString(v[legacyFileIDKey]))
		ev.ShareToken = scalarString(v["shareToken"])
		ev.Name = scalarString(v["name"])
		createdAt, err := parseCreatedAt(v["createdAt"])
		if err != nil {
			return ev, err
		}
		ev.CreatedAt = createdAt
	default:
		return ev, dErrors.New(dErrors.CodeValidation, "unsupported evidence shape")
	}

	ev.ID = strings.TrimSpace(ev.ID)
	ev.SourceFileID = strings.TrimSpace(ev.SourceFileID)
	ev.ShareToken = strings.TrimSpace(ev.ShareToken)
	ev.Name = strings.TrimSpace(ev.Name)
	for _, s := range []string{ev.ID, ev.SourceFileID, ev.ShareToken, ev.Name} {
		if platformstrings.HasAnyPrefix(s, localURLPrefixes...) {
			return models.Evidence{}, dErrors.New(dErrors.CodeValidation, "evidence holds a local preview URL")
		}
	}
	if ev.ID == "" {
		ev.ID = ev.SourceFileID
	}
	if ev.ID == "" {
		return models.Evidence{}, dErrors.New(dErrors.CodeValidation, "evidence requires id or sourceFileId")
	}
	return ev, nil
}

func parseCreatedAt(v any) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &t, nil
	case *time.Time:
		return t, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return nil, nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return nil, dErrors.New(dErrors.CodeValidation, "createdAt must be an RFC 3339 timestamp")
		}
		return &parsed, nil
	default:
		return nil, dErrors.New(dErrors.CodeValidation, "createdAt must be an RFC 3339 timestamp")
	}
}
