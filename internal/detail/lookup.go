package detail

import (
	"context"

	accidentmodels "safetyaudit/internal/accident/models"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
)

type AccidentGetter interface {
	GetByID(ctx context.Context, ownerID id.OwnerID, accidentID id.AccidentID) (*accidentmodels.Accident, error)
}

// AccidentLookup resolves detail parents through the accident service.
// Unknown and malformed ids are absent, not errors.
type AccidentLookup struct {
	Accidents AccidentGetter
}

func (l AccidentLookup) GetByID(ctx context.Context, ownerID id.OwnerID, entityID string) (*accidentmodels.Accident, error) {
	accidentID, err := id.ParseAccidentID(entityID)
	if err != nil {
		return nil, nil
	}
	accident, err := l.Accidents.GetByID(ctx, ownerID, accidentID)
	if dErrors.HasCode(err, dErrors.CodeNotFound) {
		return nil, nil
	}
	return accident, err
}
