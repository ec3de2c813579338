package screening

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/refdata"
)

// Confidence bounds for input completeness
const (
	maxConfidence = 0.95
	minConfidence = 0.5

	// matchScoreFloor is the lowest total a confirmed sanctions match may have
	matchScoreFloor = 90
)

// AssessmentInput is everything the calculator needs for one record
type AssessmentInput struct {
	Record        *domain.CustomerRecord
	Tables        *refdata.Tables
	BestCandidate *domain.MatchCandidate
	Ledger        *DeviceLedger
}

// categoryRule scores one category. Rules are pure and independent of each other.
// A rule reports the record-specific detail; the driver label is fixed per rule.
type categoryRule struct {
	category domain.Category
	driver   string
	score    func(in AssessmentInput) (points int, detail string, warning *domain.LookupError)
}

// RiskCalculator combines the category rules into a bounded risk assessment
type RiskCalculator struct {
	rules          []categoryRule
	penalty        float64
	matchThreshold float64
}

// NewRiskCalculator creates a new risk calculator
func NewRiskCalculator(cfg *config.ScreeningConfig) *RiskCalculator {
	return &RiskCalculator{
		rules: []categoryRule{
			{category: domain.CategorySanctions, driver: domain.DriverJurisdiction, score: jurisdictionRisk},
			{category: domain.CategoryPEP, driver: domain.DriverPEP, score: pepRisk},
			{category: domain.CategoryProfile, driver: domain.DriverOccupation, score: profileRisk},
			{category: domain.CategoryDigital, driver: domain.DriverDigital, score: digitalRisk},
			{category: domain.CategoryDevice, driver: domain.DriverSharedDevice, score: deviceRisk},
		},
		penalty:        cfg.ConfidencePenalty,
		matchThreshold: cfg.MatchThreshold,
	}
}

// Assess scores one record. Lookup misses are returned as warnings and contribute zero.
// A missing name or citizenship is not an error: the affected checks contribute
// zero and confidence drops instead.
func (c *RiskCalculator) Assess(in AssessmentInput) (*domain.RiskAssessment, []*domain.LookupError, error) {
	rec := in.Record
	if rec == nil {
		return nil, nil, fmt.Errorf("%w: record", domain.ErrMissingField)
	}

	confidence := c.Confidence(rec)

	if rec.LocalBlacklist {
		breakdown := domain.NewBreakdown()
		breakdown[domain.CategorySanctions] = domain.CategorySanctions.MaxPoints()
		return &domain.RiskAssessment{
			Score:     100,
			Band:      domain.RiskLevelCritical,
			Breakdown: breakdown,
			Drivers:   []string{domain.LocalBlacklistDriver},
			Factors: []domain.RiskFactor{{
				Category: domain.CategorySanctions,
				Driver:   domain.LocalBlacklistDriver,
				Points:   domain.CategorySanctions.MaxPoints(),
			}},
			Confidence: confidence,
		}, nil, nil
	}

	breakdown := domain.NewBreakdown()
	var warnings []*domain.LookupError
	var factors []domain.RiskFactor

	for _, rule := range c.rules {
		points, detail, warning := rule.score(in)
		if warning != nil {
			warnings = append(warnings, warning)
		}
		points = clampInt(points, 0, rule.category.MaxPoints())
		breakdown[rule.category] = points
		if points > 0 {
			factors = append(factors, domain.RiskFactor{
				Category: rule.category,
				Driver:   rule.driver,
				Points:   points,
				Detail:   detail,
			})
		}
	}

	sort.SliceStable(factors, func(i, j int) bool {
		if factors[i].Points != factors[j].Points {
			return factors[i].Points > factors[j].Points
		}
		return factors[i].Category.Precedence() < factors[j].Category.Precedence()
	})

	score := clampInt(breakdown.Sum(), 0, 100)

	if best := in.BestCandidate; best != nil && best.IsMatch && best.Confidence >= c.matchThreshold {
		lift := 0
		if score < matchScoreFloor {
			lift = matchScoreFloor - score
			score = matchScoreFloor
		}
		detail := fmt.Sprintf("%s on list %s (entry %s, confidence %.2f)",
			best.Entry.Name, best.Entry.ListID, best.Entry.ID, best.Confidence)
		factors = append([]domain.RiskFactor{{
			Category: domain.CategorySanctions,
			Driver:   domain.DriverSanctionsMatch,
			Points:   lift,
			Detail:   detail,
		}}, factors...)
	}

	drivers := make([]string, 0, len(factors))
	for _, f := range factors {
		drivers = append(drivers, f.Driver)
	}

	return &domain.RiskAssessment{
		Score:      score,
		Band:       domain.CalculateRiskLevel(score),
		Breakdown:  breakdown,
		Drivers:    drivers,
		Factors:    factors,
		Confidence: confidence,
	}, warnings, nil
}

// Confidence measures input completeness: every absent informative field group
// costs one penalty, floored at the minimum. A missing name or citizenship
// counts like an absent group.
func (c *RiskCalculator) Confidence(rec *domain.CustomerRecord) float64 {
	absent := 0
	for _, present := range []bool{
		rec.HasEmail(), rec.HasDevice(), rec.HasIPData(), rec.HasBirthDate(),
		strings.TrimSpace(rec.FullName) != "", strings.TrimSpace(rec.Citizenship) != "",
	} {
		if !present {
			absent++
		}
	}
	conf := maxConfidence - float64(absent)*c.penalty
	if conf < minConfidence {
		conf = minConfidence
	}
	return math.Round(conf*100) / 100
}

func jurisdictionRisk(in AssessmentInput) (int, string, *domain.LookupError) {
	rec := in.Record
	var jurisdictions *refdata.JurisdictionTable
	if in.Tables != nil {
		jurisdictions = in.Tables.Jurisdictions
	}

	points := 0
	var reasons []string

	citizenship := refdata.CanonicalCountry(rec.Citizenship)
	switch jurisdictions.TierOf(citizenship) {
	case refdata.TierBlacklist:
		points += 40
		reasons = append(reasons, fmt.Sprintf("citizenship %s is on FATF black list", citizenship))
	case refdata.TierGreyList:
		points += 20
		reasons = append(reasons, fmt.Sprintf("citizenship %s is on FATF grey list", citizenship))
	}

	if birth := refdata.CanonicalCountry(rec.BirthCountry); birth != "" {
		switch jurisdictions.TierOf(birth) {
		case refdata.TierBlacklist:
			points += 20
			reasons = append(reasons, fmt.Sprintf("birth country %s is on FATF black list", birth))
		case refdata.TierGreyList:
			points += 10
			reasons = append(reasons, fmt.Sprintf("birth country %s is on FATF grey list", birth))
		}
	}

	if points == 0 {
		return 0, "", nil
	}
	return points, strings.Join(reasons, "; "), nil
}

func pepRisk(in AssessmentInput) (int, string, *domain.LookupError) {
	if !in.Record.PEP {
		return 0, "", nil
	}
	return domain.CategoryPEP.MaxPoints(), "customer is flagged as PEP", nil
}

func profileRisk(in AssessmentInput) (int, string, *domain.LookupError) {
	code := strings.TrimSpace(in.Record.Occupation)
	if code == "" {
		return 0, "", nil
	}
	var occupations *refdata.OccupationRiskTable
	if in.Tables != nil {
		occupations = in.Tables.Occupations
	}
	risk, ok := occupations.Lookup(code)
	if !ok {
		return 0, "", &domain.LookupError{Table: "occupation", Code: code}
	}
	if risk.Weight == 0 {
		return 0, "", nil
	}
	return risk.Weight, fmt.Sprintf("%s (%s)", code, risk.Tier), nil
}

func digitalRisk(in AssessmentInput) (int, string, *domain.LookupError) {
	rec := in.Record
	points := 0
	var reasons []string

	if rec.VPN {
		points += 10
		reasons = append(reasons, "VPN or proxy in use")
	}

	ipCountry := refdata.CanonicalCountry(rec.IPCountry)
	citizenship := refdata.CanonicalCountry(rec.Citizenship)
	if ipCountry != "" && citizenship != "" && ipCountry != citizenship {
		points += 10
		reasons = append(reasons, fmt.Sprintf("IP country %s differs from citizenship", ipCountry))
		if in.Tables != nil && in.Tables.Jurisdictions.TierOf(ipCountry) == refdata.TierBlacklist {
			points += 10
			reasons = append(reasons, fmt.Sprintf("IP country %s is on FATF black list", ipCountry))
		}
	}

	if d := rec.EmailDomain(); d != "" && in.Tables != nil && in.Tables.EmailDomains.IsSuspicious(d) {
		points += 10
		reasons = append(reasons, fmt.Sprintf("suspicious email domain %s", d))
	}

	if points == 0 {
		return 0, "", nil
	}
	return points, strings.Join(reasons, "; "), nil
}

func deviceRisk(in AssessmentInput) (int, string, *domain.LookupError) {
	if !in.Record.HasDevice() {
		return 0, "", nil
	}
	n := in.Ledger.CountFor(in.Record.DeviceID)
	switch {
	case n >= 3:
		return 20, fmt.Sprintf("device shared by %d customers", n), nil
	case n == 2:
		return 10, "device shared by 2 customers", nil
	default:
		return 0, "", nil
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
