package screening

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
)

type SanctionsMatcherSuite struct {
	suite.Suite
	matcher *SanctionsMatcher
}

func TestSanctionsMatcherSuite(t *testing.T) {
	suite.Run(t, new(SanctionsMatcherSuite))
}

func (s *SanctionsMatcherSuite) SetupTest() {
	s.matcher = NewSanctionsMatcher(testScreeningConfig(), logger.NewNop())
}

func (s *SanctionsMatcherSuite) customer(name string, dob *time.Time, birthCountry string) *domain.CustomerRecord {
	return &domain.CustomerRecord{ID: "c-1", FullName: name, Citizenship: "GBR", BirthCountry: birthCountry, BirthDate: dob}
}

func (s *SanctionsMatcherSuite) TestNearNameWithBirthDate() {
	entries := []domain.SanctionsEntry{
		{ID: "UN-1", Name: "Jon Smith", BirthDate: date(1970, time.January, 2), ListID: "UN"},
	}

	s.Run("near name plus birth date stays below threshold", func() {
		got := s.matcher.Match(s.customer("John Smith", date(1970, time.January, 2), ""), entries, 5)
		s.Require().Len(got, 1)

		c := got[0]
		s.InDelta(0.766667, c.NameSimilarity, 1e-6)
		s.GreaterOrEqual(c.Confidence, 0.70)
		s.Less(c.Confidence, 0.80)
		s.False(c.IsMatch)
		s.Equal([]string{"birth_date"}, c.Evidence)
	})

	s.Run("exact name flips the decision", func() {
		got := s.matcher.Match(s.customer("Jon Smith", date(1970, time.January, 2), ""), entries, 5)
		s.Require().Len(got, 1)
		s.Equal(0.8, got[0].Confidence)
		s.True(got[0].IsMatch)
	})

	s.Run("birth date must agree on the calendar day", func() {
		got := s.matcher.Match(s.customer("Jon Smith", date(1970, time.January, 3), ""), entries, 5)
		s.Require().Len(got, 1)
		s.Equal(0.4, got[0].Confidence)
		s.Empty(got[0].Evidence)
	})
}

func (s *SanctionsMatcherSuite) TestAllEvidence() {
	entries := []domain.SanctionsEntry{
		{ID: "OFAC-9", Name: "Ali Rezaei", BirthDate: date(1966, time.May, 5), Country: "IRN", ListID: "OFAC"},
	}
	got := s.matcher.Match(s.customer("Ali Rezaei", date(1966, time.May, 5), "irn"), entries, 5)

	s.Require().Len(got, 1)
	s.Equal(1.0, got[0].Confidence, "capped at 1.0")
	s.True(got[0].IsMatch)
	s.Equal([]string{"birth_date", "birth_country"}, got[0].Evidence)
}

func (s *SanctionsMatcherSuite) TestEmptyList() {
	got := s.matcher.Match(s.customer("John Smith", nil, ""), nil, 5)
	s.NotNil(got)
	s.Empty(got)
}

func (s *SanctionsMatcherSuite) TestOrderingAndTopK() {
	entries := []domain.SanctionsEntry{
		{ID: "A", Name: "John Smith", ListID: "EU"},
		{ID: "B", Name: "John Smith", ListID: "UN"},
		{ID: "C", Name: "Jon Smith", ListID: "UN"},
		{ID: "D", Name: "John Smith", BirthDate: date(1980, time.June, 1), ListID: "OFAC"},
		{ID: "E", Name: "Mr.", ListID: "UN"},
		{ID: "F", Name: "Peter Jones", BirthDate: date(1980, time.June, 1), ListID: "UN"},
	}
	cust := s.customer("John Smith", date(1980, time.June, 1), "")

	s.Run("ranked by confidence then similarity then list order", func() {
		got := s.matcher.Match(cust, entries, 0)
		ids := make([]string, len(got))
		for i, c := range got {
			ids[i] = c.Entry.ID
		}
		// E normalizes to nothing and F shares no name token
		s.Equal([]string{"D", "A", "B", "C"}, ids)
	})

	s.Run("topK truncates", func() {
		got := s.matcher.Match(cust, entries, 2)
		s.Require().Len(got, 2)
		s.Equal("D", got[0].Entry.ID)
		s.Equal("A", got[1].Entry.ID)
	})
}

func (s *SanctionsMatcherSuite) TestDefaultTopK() {
	var entries []domain.SanctionsEntry
	for i := 0; i < 8; i++ {
		entries = append(entries, domain.SanctionsEntry{ID: string(rune('a' + i)), Name: "John Smith", ListID: "UN"})
	}
	got := s.matcher.Match(s.customer("John Smith", nil, ""), entries, -1)
	s.Len(got, defaultTopK)
}

func (s *SanctionsMatcherSuite) TestCandidateFloor() {
	cfg := testScreeningConfig()
	cfg.CandidateFloor = 0.35
	matcher := NewSanctionsMatcher(cfg, logger.NewNop())

	entries := []domain.SanctionsEntry{
		{ID: "weak", Name: "Alice Zhang", ListID: "UN"},
		{ID: "strong", Name: "Alice Wong", ListID: "UN"},
	}
	got := matcher.Match(s.customer("Alice Wong", nil, ""), entries, 5)

	s.Require().Len(got, 1)
	s.Equal("strong", got[0].Entry.ID)
}

type aliasRule struct{}

func (aliasRule) Name() string { return "alias" }
func (aliasRule) Weight() float64 { return 0.6 }
func (aliasRule) Agrees(c *domain.CustomerRecord, e *domain.SanctionsEntry) bool {
	return e.ListID == "LOCAL"
}

func (s *SanctionsMatcherSuite) TestCustomEvidenceRule() {
	matcher := NewSanctionsMatcher(testScreeningConfig(), logger.NewNop(), aliasRule{})
	entries := []domain.SanctionsEntry{{ID: "L-1", Name: "Jon Smith", ListID: "LOCAL"}}

	got := matcher.Match(s.customer("John Smith", nil, ""), entries, 5)
	s.Require().Len(got, 1)
	s.True(got[0].IsMatch)
	s.Equal([]string{"alias"}, got[0].Evidence)
}
