package refdata

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/banking/kyc-risk-service/internal/domain"
)

// Tier represents the risk tier of a jurisdiction
type Tier string

const (
	TierBlacklist Tier = "BLACKLIST"
	TierGreyList  Tier = "GREY_LIST"
	TierStandard  Tier = "STANDARD"
)

var (
	ErrTierConflict   = errors.New("jurisdiction listed in more than one tier")
	ErrWeightOutRange = errors.New("occupation weight out of range")
)

// JurisdictionTable maps country codes to their tier. Codes and names are
// resolved with CanonicalCountry. Unlisted codes are STANDARD.
type JurisdictionTable struct {
	tiers map[string]Tier
}

// NewJurisdictionTable builds a table from black and grey lists.
// A code present in both lists is rejected.
func NewJurisdictionTable(blacklist, greyList []string) (*JurisdictionTable, error) {
	t := &JurisdictionTable{tiers: make(map[string]Tier, len(blacklist)+len(greyList))}
	for _, code := range blacklist {
		if c := CanonicalCountry(code); c != "" {
			t.tiers[c] = TierBlacklist
		}
	}

	var conflicts []string
	for _, code := range greyList {
		c := CanonicalCountry(code)
		if c == "" {
			continue
		}
		if t.tiers[c] == TierBlacklist {
			conflicts = append(conflicts, c)
			continue
		}
		t.tiers[c] = TierGreyList
	}
	if len(conflicts) > 0 {
		sort.Strings(conflicts)
		return nil, fmt.Errorf("%w: %s", ErrTierConflict, strings.Join(conflicts, ", "))
	}
	return t, nil
}

// TierOf returns the tier of a country code
func (t *JurisdictionTable) TierOf(code string) Tier {
	if t == nil {
		return TierStandard
	}
	if tier, ok := t.tiers[CanonicalCountry(code)]; ok {
		return tier
	}
	return TierStandard
}

// Len returns the number of listed countries
func (t *JurisdictionTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.tiers)
}

// OccupationRisk is the weight and tier label of an occupation code
type OccupationRisk struct {
	Weight int    `yaml:"weight" json:"weight"`
	Tier   string `yaml:"tier" json:"tier"`
}

// OccupationRiskTable maps occupation or account-category codes to their risk
type OccupationRiskTable struct {
	entries map[string]OccupationRisk
}

// NewOccupationRiskTable validates weights against the profile category maximum
func NewOccupationRiskTable(entries map[string]OccupationRisk) (*OccupationRiskTable, error) {
	maxWeight := domain.CategoryProfile.MaxPoints()
	t := &OccupationRiskTable{entries: make(map[string]OccupationRisk, len(entries))}
	for code, risk := range entries {
		if risk.Weight < 0 || risk.Weight > maxWeight {
			return nil, fmt.Errorf("%w: %s=%d (allowed 0-%d)", ErrWeightOutRange, code, risk.Weight, maxWeight)
		}
		t.entries[domain.NormalizeCode(code)] = risk
	}
	return t, nil
}

// Lookup returns the risk for an occupation code
func (t *OccupationRiskTable) Lookup(code string) (OccupationRisk, bool) {
	if t == nil {
		return OccupationRisk{}, false
	}
	risk, ok := t.entries[domain.NormalizeCode(code)]
	return risk, ok
}

// Len returns the number of occupation codes
func (t *OccupationRiskTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// EmailDomainSet holds suspicious email domains.
// Entries beginning with "." match as suffixes, all others match exactly.
type EmailDomainSet struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewEmailDomainSet builds a set from raw entries
func NewEmailDomainSet(entries []string) *EmailDomainSet {
	s := &EmailDomainSet{exact: make(map[string]struct{})}
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		switch {
		case e == "" || e == ".":
			continue
		case strings.HasPrefix(e, "."):
			s.suffixes = append(s.suffixes, e)
		default:
			s.exact[e] = struct{}{}
		}
	}
	sort.Strings(s.suffixes)
	return s
}

// IsSuspicious reports whether an email domain is in the set
func (s *EmailDomainSet) IsSuspicious(emailDomain string) bool {
	if s == nil {
		return false
	}
	d := strings.ToLower(strings.TrimSpace(emailDomain))
	if d == "" {
		return false
	}
	if _, ok := s.exact[d]; ok {
		return true
	}
	for _, suffix := range s.suffixes {
		if strings.HasSuffix(d, suffix) {
			return true
		}
	}
	return false
}

// Len returns the number of entries
func (s *EmailDomainSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.exact) + len(s.suffixes)
}

// Tables bundles the reference data the risk engine reads. Read-only once built.
type Tables struct {
	Jurisdictions *JurisdictionTable
	Occupations   *OccupationRiskTable
	EmailDomains  *EmailDomainSet
}
