package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/metrics"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
)

func scoredEntry(id string, score int, drivers ...string) domain.BatchEntry {
	b := domain.NewBreakdown()
	return domain.BatchEntry{
		CustomerID: id,
		Assessment: &domain.RiskAssessment{
			Score:      score,
			Band:       domain.CalculateRiskLevel(score),
			Breakdown:  b,
			Drivers:    drivers,
			Confidence: 0.8,
		},
		Candidates: []domain.MatchCandidate{},
	}
}

func TestTemplateExplainer(t *testing.T) {
	ex := NewTemplateExplainer()
	ctx := context.Background()

	t.Run("low risk without drivers", func(t *testing.T) {
		entry := scoredEntry("c-1", 0)
		n, err := ex.Explain(ctx, &entry)
		require.NoError(t, err)
		assert.Equal(t, SourceTemplate, n.Source)
		assert.Contains(t, n.Summary, "Customer c-1 is rated LOW risk with a score of 0 (confidence 0.80).")
		assert.Contains(t, n.Summary, "No risk drivers")
		assert.Equal(t, []string{"Proceed with standard onboarding"}, n.SuggestedActions)
	})

	t.Run("many drivers are truncated", func(t *testing.T) {
		entry := scoredEntry("c-2", 60, "a", "b", "c", "d", "e")
		n, err := ex.Explain(ctx, &entry)
		require.NoError(t, err)
		assert.Contains(t, n.Summary, "Main drivers: a; b; c; and 2 more.")
	})

	t.Run("sanctions match and PEP add actions", func(t *testing.T) {
		entry := scoredEntry("c-3", 95, domain.DriverSanctionsMatch)
		entry.Assessment.Breakdown[domain.CategoryPEP] = 30
		entry.Candidates = []domain.MatchCandidate{{
			Entry:   domain.SanctionsEntry{ID: "UN-1", ListID: "UN"},
			IsMatch: true,
		}}
		n, err := ex.Explain(ctx, &entry)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"Verify identity against sanctions entry UN-1 on list UN before onboarding",
			"Obtain senior management approval for the PEP relationship",
			"Escalate to compliance and hold the account pending review",
			"Perform enhanced due diligence including source of funds",
		}, n.SuggestedActions)
	})

	t.Run("band actions", func(t *testing.T) {
		for score, want := range map[int][]string{
			60: {"Perform enhanced due diligence including source of funds"},
			30: {"Request additional KYC documentation"},
			10: {"Proceed with standard onboarding"},
		} {
			entry := scoredEntry("c-5", score, domain.DriverOccupation)
			n, err := ex.Explain(ctx, &entry)
			require.NoError(t, err)
			assert.Equal(t, want, n.SuggestedActions, "score %d", score)
		}
	})

	t.Run("failed entry", func(t *testing.T) {
		_, err := ex.Explain(ctx, &domain.BatchEntry{CustomerID: "bad", Error: "boom"})
		assert.ErrorIs(t, err, ErrNoAssessment)
	})

	t.Run("numbers are never modified", func(t *testing.T) {
		entry := scoredEntry("c-4", 42, "x")
		before := *entry.Assessment
		_, err := ex.Explain(ctx, &entry)
		require.NoError(t, err)
		assert.Equal(t, before, *entry.Assessment)
	})
}

type LLMExplainerSuite struct {
	suite.Suite
	server  *httptest.Server
	calls   atomic.Int32
	reply   func(w http.ResponseWriter, r *http.Request)
	cfg     config.NarrativeConfig
	explain *LLMExplainer
}

func TestLLMExplainerSuite(t *testing.T) {
	suite.Run(t, new(LLMExplainerSuite))
}

func ollamaReply(text string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"model": "llama3", "response": text, "done": true})
	}
}

func (s *LLMExplainerSuite) SetupTest() {
	s.calls.Store(0)
	s.reply = ollamaReply(`{"summary": "ok", "suggested_actions": []}`)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		s.reply(w, r)
	}))

	s.cfg = config.Default().Narrative
	s.cfg.Enabled = true
	s.cfg.Endpoint = s.server.URL + "/"
	s.cfg.Timeout = 2 * time.Second
	s.cfg.BreakerFailures = 2
	s.cfg.BreakerTimeout = time.Minute

	ex, err := NewLLMExplainer(&s.cfg, logger.NewNop())
	s.Require().NoError(err)
	s.explain = ex
}

func (s *LLMExplainerSuite) TearDownTest() {
	s.server.Close()
}

func (s *LLMExplainerSuite) TestModelNarrative() {
	var got generateRequest
	s.reply = func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/api/generate", r.URL.Path)
		s.Equal(http.MethodPost, r.Method)
		s.NoError(json.NewDecoder(r.Body).Decode(&got))
		ollamaReply("Here you go:\n```json\n" +
			`{"summary": " Customer is high risk. ", "suggested_actions": ["Call the customer"], "extra": 1}` +
			"\n```")(w, r)
	}

	entry := scoredEntry("c-1", 80, "High-risk jurisdiction: citizenship IRN (BLACKLIST)")
	n, err := s.explain.Explain(context.Background(), &entry)
	s.Require().NoError(err)

	s.Equal(SourceLLM, n.Source)
	s.Equal("Customer is high risk.", n.Summary)
	s.Equal([]string{"Call the customer"}, n.SuggestedActions)

	s.Equal(s.cfg.Model, got.Model)
	s.False(got.Stream)
	s.Contains(got.Prompt, `"customer_id":"c-1"`)
	s.Contains(got.Prompt, `"score":80`)
}

func (s *LLMExplainerSuite) TestFallbacks() {
	cases := map[string]func(w http.ResponseWriter, r *http.Request){
		"no json":        ollamaReply("I cannot help with that."),
		"schema invalid": ollamaReply(`{"summary": "", "suggested_actions": "call"}`),
		"server error": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		},
		"bad envelope": func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("<html>"))
		},
	}

	for name, reply := range cases {
		s.Run(name, func() {
			ex, err := NewLLMExplainer(&s.cfg, logger.NewNop())
			s.Require().NoError(err)
			s.reply = reply

			entry := scoredEntry("c-1", 30, "x")
			n, err := ex.Explain(context.Background(), &entry)
			s.Require().NoError(err)
			s.Equal(SourceTemplate, n.Source)
			s.Equal(30, entry.Assessment.Score)
		})
	}
}

func (s *LLMExplainerSuite) TestBreakerOpens() {
	s.reply = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}
	entry := scoredEntry("c-1", 30, "x")

	for i := 0; i < 5; i++ {
		n, err := s.explain.Explain(context.Background(), &entry)
		s.Require().NoError(err)
		s.Equal(SourceTemplate, n.Source)
	}
	s.Equal(int32(2), s.calls.Load(), "open breaker stops calling the model")
}

func (s *LLMExplainerSuite) TestParse() {
	_, err := s.explain.parse("no braces here")
	s.ErrorIs(err, ErrNoJSON)

	_, err = s.explain.parse(`{"summary": "missing actions"}`)
	s.ErrorIs(err, ErrInvalidResponse)

	n, err := s.explain.parse(`{"summary": "fine", "suggested_actions": ["a", "b"]}`)
	s.Require().NoError(err)
	s.Equal([]string{"a", "b"}, n.SuggestedActions)
}

type fixedExplainer struct {
	fail string
}

func (f fixedExplainer) Explain(_ context.Context, entry *domain.BatchEntry) (*domain.Narrative, error) {
	if entry.CustomerID == f.fail {
		return nil, errors.New("explainer failed")
	}
	return &domain.Narrative{Summary: "n-" + entry.CustomerID, Source: SourceLLM}, nil
}

func TestAnnotate(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	result := &domain.BatchResult{Entries: []domain.BatchEntry{
		scoredEntry("a", 10),
		{CustomerID: "failed", Error: "boom", Candidates: []domain.MatchCandidate{}},
		scoredEntry("b", 90),
	}}

	err := NewAnnotator(fixedExplainer{}, 4, m).Annotate(context.Background(), result)
	require.NoError(t, err)

	assert.Equal(t, "n-a", result.Entries[0].Narrative.Summary)
	assert.Nil(t, result.Entries[1].Narrative)
	assert.Equal(t, "n-b", result.Entries[2].Narrative.Summary)
	assert.Equal(t, 90, result.Entries[2].Assessment.Score)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Narratives.WithLabelValues(SourceLLM)))

	err = NewAnnotator(fixedExplainer{fail: "b"}, 0, nil).Annotate(context.Background(), result)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewAnnotator(NewTemplateExplainer(), 2, nil).Annotate(ctx, result)
	assert.ErrorIs(t, err, context.Canceled)
}
