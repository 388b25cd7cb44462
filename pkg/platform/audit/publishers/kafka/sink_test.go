package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "safetyaudit/pkg/domain"
	audit "safetyaudit/pkg/platform/audit"
)

func TestEncode(t *testing.T) {
	owner := id.OwnerID(uuid.New())
	ts := time.Date(2026, 5, 4, 10, 0, 0, 0, time.FixedZone("CLT", -4*3600))

	b, err := Encode(audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: ts,
		OwnerID:   owner,
		Subject:   "acc-1",
		Action:    string(audit.EventAccidentClosed),
	})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, owner.String(), got["owner_id"])
	assert.Equal(t, "accident_closed", got["action"])
	assert.Equal(t, "2026-05-04T14:00:00Z", got["timestamp"])
	assert.NotContains(t, got, "collection")
}

func TestEncodeOmitsNilOwner(t *testing.T) {
	b, err := Encode(audit.Event{Action: "x"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "owner_id")
}

func TestNewValidatesArguments(t *testing.T) {
	_, err := New(nil, "audit")
	assert.Error(t, err)
	_, err = New([]string{"localhost:9092"}, "")
	assert.Error(t, err)
}
