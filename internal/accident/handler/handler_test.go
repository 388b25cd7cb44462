package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"safetyaudit/internal/accident/models"
	"safetyaudit/internal/accident/service"
	"safetyaudit/internal/accident/store/memory"
	"safetyaudit/internal/directory"
	dirmemory "safetyaudit/internal/directory/memory"
	id "safetyaudit/pkg/domain"
	"safetyaudit/pkg/platform/httputil"
	"safetyaudit/pkg/requestcontext"
)

type HandlerSuite struct {
	suite.Suite
	router    chi.Router
	directory *dirmemory.InMemory
	deleted   *deletedAccidents
	owner     id.OwnerID
	now       time.Time
}

type deletedAccidents struct {
	ids []id.AccidentID
}

func (d *deletedAccidents) AccidentDeleted(_ context.Context, _ id.OwnerID, accidentID id.AccidentID) {
	d.ids = append(d.ids, accidentID)
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.owner = id.OwnerID(uuid.New())
	s.now = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)
	s.directory = dirmemory.NewInMemory(
		directory.PersonRecord{ID: "emp-1", Name: "Ana", BranchID: "br-1", CompanyID: "co-1"},
	)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(memory.NewInMemory(), s.directory, service.WithLogger(logger))

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := requestcontext.WithOwnerID(req.Context(), s.owner)
			ctx = requestcontext.WithTime(ctx, s.now)
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	s.deleted = &deletedAccidents{}
	New(svc, logger, WithDeleteListener(s.deleted)).Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(method, path, reader))
	return rec
}

func (s *HandlerSuite) createAccident() models.Result {
	rec := s.do(http.MethodPost, "/accidents", map[string]any{
		"companyId":       "co-1",
		"branchId":        "br-1",
		"kind":            "accident",
		"description":     "cut on hand",
		"severity":        "moderate",
		"involvedPersons": []any{map[string]any{"personId": "emp-1", "onLeave": true}},
	})
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var result models.Result
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func (s *HandlerSuite) TestLifecycle() {
	created := s.createAccident()
	s.Equal("Ana", created.Accident.InvolvedPersons[0].PersonName)
	record, _ := s.directory.Get("emp-1")
	s.Equal(directory.StatusInactive, record.Status)

	path := "/accidents/" + created.Accident.ID.String()
	rec := s.do(http.MethodGet, path, nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	s.now = s.now.Add(49 * time.Hour)
	rec = s.do(http.MethodPost, path+"/close", map[string]any{"notes": "back to work"})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var closed models.Result
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &closed))
	s.Equal(models.StatusClosed, closed.Accident.Status)
	s.Equal(3, *closed.Accident.InvolvedPersons[0].DaysLost)
	s.Equal("back to work", closed.Accident.ClosingNotes)
	record, _ = s.directory.Get("emp-1")
	s.Equal(directory.StatusActive, record.Status)

	rec = s.do(http.MethodPost, path+"/close", nil)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodDelete, path, nil)
	s.Equal(http.StatusNoContent, rec.Code)
	s.Equal([]id.AccidentID{created.Accident.ID}, s.deleted.ids)
	rec = s.do(http.MethodGet, path, nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, path, nil)
	s.Equal(http.StatusNotFound, rec.Code)
	s.Len(s.deleted.ids, 1, "failed deletes are not announced")
}

func (s *HandlerSuite) TestUpdate() {
	created := s.createAccident()
	rec := s.do(http.MethodPatch, "/accidents/"+created.Accident.ID.String(), map[string]any{
		"description": "deep cut on hand",
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var updated models.Result
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &updated))
	s.Equal("deep cut on hand", updated.Accident.Description)

	rec = s.do(http.MethodPatch, "/accidents/"+created.Accident.ID.String(), map[string]any{"unknown": true})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCreateValidation() {
	rec := s.do(http.MethodPost, "/accidents", map[string]any{
		"companyId": "co-1",
		"branchId":  "br-1",
		"kind":      "accident",
	})
	s.Require().Equal(http.StatusBadRequest, rec.Code)
	var resp httputil.ErrorResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal("validation_error", resp.Error)
	s.Equal("at least one involved person is required", resp.Description)

	rec = s.do(http.MethodGet, "/accidents/not-a-uuid", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestListAndStats() {
	s.createAccident()

	rec := s.do(http.MethodGet, "/accidents?branch_id=br-1", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list accidentsResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	s.Len(list.Accidents, 1)

	rec = s.do(http.MethodGet, "/accidents?company_id=co-2", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"accidents":[]}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/accidents", nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/accidents/stats?company_id=co-1", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var stats models.Stats
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &stats))
	s.Equal(1, stats.Total)
	s.Equal(1, stats.BySeverity[models.SeverityModerate])
}
