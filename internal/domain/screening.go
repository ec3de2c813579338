package domain

import (
	"time"
)

// RiskLevel represents the band a risk score falls into
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// RiskLevels lists every band in ascending severity
func RiskLevels() []RiskLevel {
	return []RiskLevel{RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical}
}

// Category names a scoring category of the breakdown
type Category string

const (
	CategorySanctions Category = "sanctions"
	CategoryPEP       Category = "pep"
	CategoryProfile   Category = "profile"
	CategoryDigital   Category = "digital"
	CategoryDevice    Category = "device"
)

// Categories returns the categories in driver precedence order
func Categories() []Category {
	return []Category{CategorySanctions, CategoryPEP, CategoryProfile, CategoryDigital, CategoryDevice}
}

// MaxPoints returns the highest contribution a category may make
func (c Category) MaxPoints() int {
	switch c {
	case CategorySanctions:
		return 50
	case CategoryPEP:
		return 30
	case CategoryProfile:
		return 40
	case CategoryDigital:
		return 30
	case CategoryDevice:
		return 20
	default:
		return 0
	}
}

// Precedence is the tie-break rank used when ordering drivers (lower wins)
func (c Category) Precedence() int {
	for i, cat := range Categories() {
		if cat == c {
			return i
		}
	}
	return len(Categories())
}

// Breakdown maps each category to the points it contributed
type Breakdown map[Category]int

// NewBreakdown returns a breakdown with every category present at zero
func NewBreakdown() Breakdown {
	b := make(Breakdown, len(Categories()))
	for _, c := range Categories() {
		b[c] = 0
	}
	return b
}

// Sum returns the unclamped total of all categories
func (b Breakdown) Sum() int {
	total := 0
	for _, points := range b {
		total += points
	}
	return total
}

// Driver labels. One stable label per category so that batch summaries can
// count them; record-specific values go to RiskFactor.Detail.
const (
	DriverSanctionsMatch = "Sanctions list match"
	DriverJurisdiction   = "High-risk jurisdiction"
	DriverPEP            = "Politically Exposed Person (PEP)"
	DriverOccupation     = "High-risk occupation"
	DriverDigital        = "Digital footprint risk"
	DriverSharedDevice   = "Device shared within batch"
)

// RiskFactor details one driver of an assessment
type RiskFactor struct {
	Category Category `json:"category"`
	Driver   string   `json:"driver"`
	Points   int      `json:"points"`
	Detail   string   `json:"detail,omitempty"`
}

// RiskAssessment is the scored outcome for one customer.
// Drivers and Factors are in the same order.
type RiskAssessment struct {
	Score      int          `json:"score"` // 0-100
	Band       RiskLevel    `json:"band"`
	Breakdown  Breakdown    `json:"breakdown"`
	Drivers    []string     `json:"drivers"`
	Factors    []RiskFactor `json:"factors,omitempty"`
	Confidence float64      `json:"confidence"` // input completeness, 0.5-0.95
}

// SanctionsEntry represents an entry from a restricted-party list
type SanctionsEntry struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	Country   string     `json:"country,omitempty"` // birth or nationality country
	ListID    string     `json:"list_id"`           // UN, EU, OFAC, LOCAL...
}

// MatchCandidate represents a scored comparison of a customer against one sanctions entry
type MatchCandidate struct {
	Entry          SanctionsEntry `json:"entry"`
	NameSimilarity float64        `json:"name_similarity"`
	Confidence     float64        `json:"confidence"`
	IsMatch        bool           `json:"is_match"`
	Evidence       []string       `json:"evidence,omitempty"`
}

// CalculateRiskLevel returns the band for a score.
// Lower bounds are inclusive: 24 is LOW, 25 is MEDIUM.
func CalculateRiskLevel(score int) RiskLevel {
	switch {
	case score >= 75:
		return RiskLevelCritical
	case score >= 50:
		return RiskLevelHigh
	case score >= 25:
		return RiskLevelMedium
	default:
		return RiskLevelLow
	}
}

// IsHighRisk returns true if the assessment warrants enhanced due diligence
func (a *RiskAssessment) IsHighRisk() bool {
	return a.Band == RiskLevelHigh || a.Band == RiskLevelCritical
}

// RequiresAlert returns true if an alert should be raised for the assessment
func (a *RiskAssessment) RequiresAlert() bool {
	return a.Band == RiskLevelCritical
}
