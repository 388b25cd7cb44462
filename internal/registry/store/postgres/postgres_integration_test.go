//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"safetyaudit/internal/registry/models"
	"safetyaudit/internal/registry/service"
	"safetyaudit/internal/registry/store/postgres"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	service  *service.Service
	owner    id.OwnerID
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	svc, err := service.New(service.AccidentConfig(), postgres.NewPostgres(s.postgres.DB))
	s.Require().NoError(err)
	s.service = svc
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "registry_entries"))
	s.owner = id.OwnerID(uuid.New())
}

func (s *PostgresStoreSuite) TestCreateListAndStats() {
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	_, err := s.service.Create(ctx, s.owner, models.CreateEntryRequest{
		ParentID:   "acc-1",
		RecordedAt: day,
		Persons:    []any{"emp-1", map[string]any{"employeeId": "emp-2"}},
		Evidence:   []any{map[string]any{"id": "img-1"}, map[string]any{"id": "img-2"}},
	})
	s.Require().NoError(err)
	second, err := s.service.Create(ctx, s.owner, models.CreateEntryRequest{
		ParentID:   "acc-1",
		RecordedAt: day.Add(24 * time.Hour),
		Persons:    []any{map[string]any{"id": "emp-2", "name": "Luis"}},
		Evidence:   []any{map[string]any{"id": "img-3"}},
	})
	s.Require().NoError(err)

	entries, err := s.service.GetRegistriesByEntity(ctx, s.owner, "acc-1")
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal(second.ID, entries[0].ID, "newest first")

	stats, err := s.service.GetStatsByEntity(ctx, s.owner, "acc-1")
	s.Require().NoError(err)
	s.Equal(2, stats.TotalEntries)
	s.Equal(2, stats.TotalPersons)
	s.Equal(3, stats.TotalEvidence)

	other, err := s.service.GetRegistriesByEntity(ctx, id.OwnerID(uuid.New()), "acc-1")
	s.Require().NoError(err)
	s.Empty(other)
}

func (s *PostgresStoreSuite) TestAttachEvidence() {
	ctx := context.Background()
	entry, err := s.service.Create(ctx, s.owner, models.CreateEntryRequest{
		ParentID: "acc-2",
		Persons:  []any{"emp-1"},
	})
	s.Require().NoError(err)

	attached, err := s.service.AttachEvidence(ctx, s.owner, entry.ID, []any{map[string]any{"id": "img-9", "shareToken": "t"}})
	s.Require().NoError(err)
	s.Len(attached, 1)

	reloaded, err := s.service.GetEntry(ctx, s.owner, entry.ID)
	s.Require().NoError(err)
	s.Require().Len(reloaded.Evidence, 1)
	s.Equal("img-9", reloaded.Evidence[0].ID)

	_, err = s.service.AttachEvidence(ctx, s.owner, id.NewEntryID(), []any{map[string]any{"id": "x"}})
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
