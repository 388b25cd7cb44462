//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"safetyaudit/internal/accident/models"
	"safetyaudit/internal/accident/store/postgres"
	id "safetyaudit/pkg/domain"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/platform/sentinel"
	"safetyaudit/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.PostgresStore
	owner    id.OwnerID
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = postgres.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "accidents"))
	s.owner = id.OwnerID(uuid.New())
	s.now = time.Date(2026, 2, 2, 7, 30, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) accident(branch string, occurredAt time.Time) *models.Accident {
	start := occurredAt
	a := &models.Accident{
		ID:          id.NewAccidentID(),
		OwnerID:     s.owner,
		CompanyID:   "co-1",
		BranchID:    branch,
		Kind:        models.KindAccident,
		Description: "fall from ladder",
		Severity:    models.SeverityModerate,
		OccurredAt:  occurredAt,
		Status:      models.StatusOpen,
		InvolvedPersons: []models.InvolvedPerson{
			{PersonID: "emp-1", PersonName: "Ana", OnLeave: true, LeaveStart: &start},
		},
		CreatedAt: occurredAt,
		UpdatedAt: occurredAt,
	}
	s.Require().NoError(s.store.Create(context.Background(), a))
	return a
}

func (s *PostgresStoreSuite) TestRoundTripAndListing() {
	ctx := context.Background()
	older := s.accident("br-1", s.now)
	newer := s.accident("br-1", s.now.Add(time.Hour))
	s.accident("br-2", s.now)

	got, err := s.store.FindByID(ctx, s.owner, older.ID)
	s.Require().NoError(err)
	s.Equal("Ana", got.InvolvedPersons[0].PersonName)
	s.True(got.InvolvedPersons[0].LeaveStart.Equal(s.now))
	s.Nil(got.ClosedAt)

	branch, err := s.store.ListByBranch(ctx, s.owner, "br-1")
	s.Require().NoError(err)
	s.Require().Len(branch, 2)
	s.Equal(newer.ID, branch[0].ID)

	company, err := s.store.ListByCompany(ctx, s.owner, "co-1")
	s.Require().NoError(err)
	s.Len(company, 3)

	_, err = s.store.FindByID(ctx, id.OwnerID(uuid.New()), older.ID)
	s.True(errors.Is(err, sentinel.ErrNotFound))
}

func (s *PostgresStoreSuite) TestConcurrentCloseAppliesOnce() {
	a := s.accident("br-1", s.now)
	closedAt := s.now.Add(50 * time.Hour)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Execute(context.Background(), s.owner, a.ID,
				func(cur *models.Accident) error { return cur.CanClose() },
				func(cur *models.Accident) { cur.ApplyClosure(closedAt, "supervisor-1", "") },
			)
			switch {
			case err == nil:
				succeeded.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), succeeded.Load())
	s.Equal(int32(7), conflicts.Load())

	got, err := s.store.FindByID(context.Background(), s.owner, a.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusClosed, got.Status)
	s.Require().NotNil(got.InvolvedPersons[0].DaysLost)
	s.Equal(3, *got.InvolvedPersons[0].DaysLost)
}

func (s *PostgresStoreSuite) TestDelete() {
	ctx := context.Background()
	a := s.accident("br-1", s.now)
	s.Require().NoError(s.store.Delete(ctx, s.owner, a.ID))
	s.True(errors.Is(s.store.Delete(ctx, s.owner, a.ID), sentinel.ErrNotFound))
}
