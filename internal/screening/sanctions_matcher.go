package screening

import (
	"sort"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
	"github.com/banking/kyc-risk-service/internal/refdata"
)

const defaultTopK = 5

// EvidenceRule is a secondary biographic check that adds weight to a candidate
// when the customer and the sanctions entry agree on it.
type EvidenceRule interface {
	Name() string
	Weight() float64
	Agrees(customer *domain.CustomerRecord, entry *domain.SanctionsEntry) bool
}

type birthDateRule struct{ weight float64 }

func (r birthDateRule) Name() string { return "birth_date" }
func (r birthDateRule) Weight() float64 { return r.weight }

// Agrees requires both dates to be present and fall on the same calendar day
func (r birthDateRule) Agrees(c *domain.CustomerRecord, e *domain.SanctionsEntry) bool {
	return domain.SameDay(c.BirthDate, e.BirthDate)
}

type birthCountryRule struct{ weight float64 }

func (r birthCountryRule) Name() string { return "birth_country" }
func (r birthCountryRule) Weight() float64 { return r.weight }

func (r birthCountryRule) Agrees(c *domain.CustomerRecord, e *domain.SanctionsEntry) bool {
	return refdata.SameCountry(c.BirthCountry, e.Country)
}

// BirthDateRule matches exact calendar-day birth dates
func BirthDateRule(weight float64) EvidenceRule { return birthDateRule{weight: weight} }

// BirthCountryRule matches the customer's birth country against the entry country
func BirthCountryRule(weight float64) EvidenceRule { return birthCountryRule{weight: weight} }

// SanctionsList is a sanctions list with names pre-tokenized. Read-only once built.
type SanctionsList struct {
	entries []domain.SanctionsEntry
	tokens  [][]string
}

// PrepareSanctionsList normalizes every entry name once
func PrepareSanctionsList(entries []domain.SanctionsEntry) *SanctionsList {
	l := &SanctionsList{
		entries: make([]domain.SanctionsEntry, len(entries)),
		tokens:  make([][]string, len(entries)),
	}
	copy(l.entries, entries)
	for i := range l.entries {
		l.tokens[i] = NormalizeName(l.entries[i].Name)
	}
	return l
}

// Len returns the number of entries
func (l *SanctionsList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

// SanctionsMatcher ranks sanctions entries against a customer identity
type SanctionsMatcher struct {
	log        *logger.Logger
	nameWeight float64
	threshold  float64
	floor      float64
	topK       int
	rules      []EvidenceRule
}

// NewSanctionsMatcher creates a matcher. Without explicit rules the birth date
// and birth country rules are used with the configured weights.
func NewSanctionsMatcher(cfg *config.ScreeningConfig, log *logger.Logger, rules ...EvidenceRule) *SanctionsMatcher {
	if len(rules) == 0 {
		rules = []EvidenceRule{
			BirthDateRule(cfg.BirthDateWeight),
			BirthCountryRule(cfg.BirthCountryWeight),
		}
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	return &SanctionsMatcher{
		log:        log.Named("sanctions_matcher"),
		nameWeight: cfg.NameWeight,
		threshold:  cfg.MatchThreshold,
		floor:      cfg.CandidateFloor,
		topK:       topK,
		rules:      rules,
	}
}

// Match ranks raw entries against the customer. See MatchList.
func (m *SanctionsMatcher) Match(customer *domain.CustomerRecord, entries []domain.SanctionsEntry, topK int) []domain.MatchCandidate {
	return m.MatchList(customer, PrepareSanctionsList(entries), topK)
}

// MatchList returns at most topK candidates sorted by descending confidence,
// then name similarity, then list order. topK <= 0 uses the configured default.
// Candidates under the confidence floor are dropped.
func (m *SanctionsMatcher) MatchList(customer *domain.CustomerRecord, list *SanctionsList, topK int) []domain.MatchCandidate {
	candidates := []domain.MatchCandidate{}
	if list.Len() == 0 || customer == nil {
		return candidates
	}
	if topK <= 0 {
		topK = m.topK
	}

	customerTokens := NormalizeName(customer.FullName)
	if len(customerTokens) == 0 {
		return candidates
	}

	type ranked struct {
		candidate domain.MatchCandidate
		order     int
	}
	var scored []ranked

	for i := range list.entries {
		if len(list.tokens[i]) == 0 {
			continue
		}
		entry := &list.entries[i]
		sim := Similarity(customerTokens, list.tokens[i])
		if sim == 0 {
			// biographic agreement alone never makes a candidate
			continue
		}

		confidence := m.nameWeight * sim
		var evidence []string
		for _, rule := range m.rules {
			if rule.Agrees(customer, entry) {
				confidence += rule.Weight()
				evidence = append(evidence, rule.Name())
			}
		}
		confidence = roundScore(clamp01(confidence))
		if confidence < m.floor {
			continue
		}

		scored = append(scored, ranked{
			candidate: domain.MatchCandidate{
				Entry:          *entry,
				NameSimilarity: sim,
				Confidence:     confidence,
				IsMatch:        confidence >= m.threshold,
				Evidence:       evidence,
			},
			order: i,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i].candidate, scored[j].candidate
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.NameSimilarity != b.NameSimilarity {
			return a.NameSimilarity > b.NameSimilarity
		}
		return scored[i].order < scored[j].order
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	for _, r := range scored {
		candidates = append(candidates, r.candidate)
	}

	if len(candidates) > 0 && candidates[0].IsMatch {
		best := candidates[0]
		m.log.SanctionsMatched(customer.ID, best.Entry.ID, best.Entry.ListID, best.Confidence)
	}
	return candidates
}
