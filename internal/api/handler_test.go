package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/metrics"
	"github.com/banking/kyc-risk-service/internal/narrative"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
	"github.com/banking/kyc-risk-service/internal/refdata"
	"github.com/banking/kyc-risk-service/internal/repository"
	"github.com/banking/kyc-risk-service/internal/screening"
)

type recordingPublisher struct {
	published []uuid.UUID
	err       error
}

func (p *recordingPublisher) Publish(_ context.Context, result *domain.BatchResult) ([]*domain.RiskAlert, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.published = append(p.published, result.BatchID)
	var alerts []*domain.RiskAlert
	for _, e := range result.CriticalEntries() {
		alerts = append(alerts, domain.NewRiskAlert(result.BatchID, &e, time.Now()))
	}
	return alerts, nil
}

type HandlerSuite struct {
	suite.Suite
	cfg       *config.Config
	repo      *repository.SQLRepository
	publisher *recordingPublisher
	server    http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.cfg = config.Default()
	s.cfg.Screening.MaxBatchSize = 3
	s.cfg.Database.Driver = "sqlite"
	s.cfg.Database.SQLitePath = ":memory:"

	repo, err := repository.New(&s.cfg.Database)
	s.Require().NoError(err)
	s.repo = repo
	s.publisher = &recordingPublisher{}
	s.server = s.newServer(s.cfg)
}

func (s *HandlerSuite) newServer(cfg *config.Config) http.Handler {
	log := logger.NewNop()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	dob := time.Date(1966, time.May, 5, 0, 0, 0, 0, time.UTC)
	engine := screening.NewEngine(
		screening.NewSanctionsMatcher(&cfg.Screening, log),
		screening.NewRiskCalculator(&cfg.Screening),
		refdata.Defaults(),
		[]domain.SanctionsEntry{{ID: "OFAC-7", Name: "Ali Rezaei", BirthDate: &dob, Country: "IRN", ListID: "OFAC"}},
		&cfg.Screening,
		log,
		m,
	)
	return NewServer(Deps{
		Engine:     engine,
		Repository: s.repo,
		Annotator:  narrative.NewAnnotator(narrative.NewTemplateExplainer(), 2, m),
		Publisher:  s.publisher,
		Gatherer:   reg,
		Config:     cfg,
		Logger:     log,
	})
}

func (s *HandlerSuite) TearDownTest() {
	s.NoError(s.repo.Close())
}

func (s *HandlerSuite) do(method, path, body string, header ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	s.server.ServeHTTP(rec, req)
	return rec
}

const twoRecords = `{"records": [
	{"id": "c-1", "full_name": "Ali Rezaei", "citizenship": "USA", "birth_country": "IRN", "birth_date": "1966-05-05", "occupation": "salaried"},
	{"id": "c-2", "full_name": "Mary Johnson", "citizenship": "GBR", "occupation": "salaried", "email": "mary@example.com"}
]}`

func (s *HandlerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/health", "")
	s.Equal(http.StatusOK, rec.Code)

	var body map[string]any
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("ok", body["status"])
	s.Equal(1.0, body["sanctions_entries"])
}

func (s *HandlerSuite) TestCreateAndGetBatch() {
	rec := s.do(http.MethodPost, "/v1/batches?explain=true", twoRecords)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Equal(domain.PhaseDone, resp.Phase)
	s.Require().Len(resp.Entries, 2)
	s.Equal("c-1", resp.Entries[0].CustomerID)
	s.Equal(domain.RiskLevelCritical, resp.Entries[0].Assessment.Band)
	s.Require().NotNil(resp.Entries[0].Narrative)
	s.Equal(narrative.SourceTemplate, resp.Entries[0].Narrative.Source)
	s.Equal(1, resp.Summary.SanctionsMatch)
	s.Require().Len(resp.Alerts, 1)
	s.Equal(domain.AlertTypeSanctionsMatch, resp.Alerts[0].AlertType)
	s.Equal([]uuid.UUID{resp.BatchID}, s.publisher.published)

	got := s.do(http.MethodGet, "/v1/batches/"+resp.BatchID.String(), "")
	s.Require().Equal(http.StatusOK, got.Code)
	var stored domain.BatchResult
	s.Require().NoError(json.Unmarshal(got.Body.Bytes(), &stored))
	s.Equal(resp.BatchID, stored.BatchID)
	s.Equal(resp.Entries, stored.Entries)

	list := s.do(http.MethodGet, "/v1/batches?limit=5", "")
	s.Require().Equal(http.StatusOK, list.Code)
	var records []repository.BatchRecord
	s.Require().NoError(json.Unmarshal(list.Body.Bytes(), &records))
	s.Require().Len(records, 1)
	s.Equal(resp.BatchID, records[0].BatchID)
}

func (s *HandlerSuite) TestNarrativeOnlyOnRequest() {
	rec := s.do(http.MethodPost, "/v1/batches", twoRecords)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp BatchResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	s.Nil(resp.Entries[0].Narrative)
}

func (s *HandlerSuite) TestValidationErrors() {
	s.Run("duplicates", func() {
		rec := s.do(http.MethodPost, "/v1/batches", `{"records": [{"id": "a"}, {"id": "a"}]}`)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)

		var body ErrorResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal([]string{"a"}, body.DuplicateIDs)
	})

	s.Run("missing id", func() {
		rec := s.do(http.MethodPost, "/v1/batches", `{"records": [{"id": "a"}, {"full_name": "x"}]}`)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)

		var body ErrorResponse
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal([]int{1}, body.MissingRows)
	})

	s.Run("empty", func() {
		rec := s.do(http.MethodPost, "/v1/batches", `{"records": []}`)
		s.Equal(http.StatusUnprocessableEntity, rec.Code)
	})

	s.Run("too large", func() {
		rec := s.do(http.MethodPost, "/v1/batches", `{"records": [{"id": "a"}, {"id": "b"}, {"id": "c"}, {"id": "d"}]}`)
		s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
	})

	s.Run("malformed", func() {
		rec := s.do(http.MethodPost, "/v1/batches", `{"records": [`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Empty(s.publisher.published)
}

func (s *HandlerSuite) TestPublishFailureDoesNotFailRequest() {
	s.publisher.err = errors.New("broker down")
	rec := s.do(http.MethodPost, "/v1/batches", twoRecords)
	s.Equal(http.StatusOK, rec.Code)
}

func (s *HandlerSuite) TestGetBatchErrors() {
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/batches/not-a-uuid", "").Code)
	s.Equal(http.StatusNotFound, s.do(http.MethodGet, "/v1/batches/"+uuid.NewString(), "").Code)
	s.Equal(http.StatusBadRequest, s.do(http.MethodGet, "/v1/batches?limit=-1", "").Code)
}

func (s *HandlerSuite) TestMetricsEndpoint() {
	s.do(http.MethodPost, "/v1/batches", twoRecords)

	rec := s.do(http.MethodGet, "/metrics", "")
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "kyc_risk_batches_total")
}

func (s *HandlerSuite) TestJWT() {
	cfg := config.Default()
	cfg.Database = s.cfg.Database
	cfg.Security.JWTSecret = "test-secret"
	s.server = s.newServer(cfg)

	sign := func(secret string, exp time.Time) string {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "analyst-1",
			ExpiresAt: jwt.NewNumericDate(exp),
		})
		signed, err := token.SignedString([]byte(secret))
		s.Require().NoError(err)
		return signed
	}

	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/v1/batches", twoRecords).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/v1/batches", twoRecords,
		"Authorization", "Bearer "+sign("other-secret", time.Now().Add(time.Hour))).Code)
	s.Equal(http.StatusUnauthorized, s.do(http.MethodPost, "/v1/batches", twoRecords,
		"Authorization", "Bearer "+sign("test-secret", time.Now().Add(-time.Hour))).Code)
	s.Equal(http.StatusOK, s.do(http.MethodPost, "/v1/batches", twoRecords,
		"Authorization", "Bearer "+sign("test-secret", time.Now().Add(time.Hour))).Code)

	s.Equal(http.StatusOK, s.do(http.MethodGet, "/health", "").Code, "health stays public")
}
