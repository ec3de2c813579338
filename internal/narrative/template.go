// Package narrative attaches human-readable explanations to scored records.
// Narratives are descriptive only and never change a score, band or driver.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/banking/kyc-risk-service/internal/domain"
)

const (
	SourceTemplate = "template"
	SourceLLM      = "llm"

	maxSummaryDrivers = 3
)

// ErrNoAssessment is returned for entries that failed to score
var ErrNoAssessment = errors.New("entry has no assessment to explain")

// Explainer turns one scored entry into a narrative
type Explainer interface {
	Explain(ctx context.Context, entry *domain.BatchEntry) (*domain.Narrative, error)
}

// TemplateExplainer builds a deterministic narrative from band and drivers
type TemplateExplainer struct{}

// NewTemplateExplainer returns the deterministic explainer
func NewTemplateExplainer() *TemplateExplainer {
	return &TemplateExplainer{}
}

func (TemplateExplainer) Explain(_ context.Context, entry *domain.BatchEntry) (*domain.Narrative, error) {
	a := entry.Assessment
	if a == nil {
		return nil, ErrNoAssessment
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Customer %s is rated %s risk with a score of %d (confidence %.2f).",
		entry.CustomerID, a.Band, a.Score, a.Confidence)
	switch n := len(a.Drivers); {
	case n == 0:
		b.WriteString(" No risk drivers were identified.")
	case n <= maxSummaryDrivers:
		fmt.Fprintf(&b, " Main drivers: %s.", strings.Join(a.Drivers, "; "))
	default:
		fmt.Fprintf(&b, " Main drivers: %s; and %d more.",
			strings.Join(a.Drivers[:maxSummaryDrivers], "; "), n-maxSummaryDrivers)
	}

	return &domain.Narrative{
		Summary:          b.String(),
		SuggestedActions: suggestedActions(entry),
		Source:           SourceTemplate,
	}, nil
}

func suggestedActions(entry *domain.BatchEntry) []string {
	a := entry.Assessment
	var actions []string

	if best := entry.BestCandidate(); best != nil && best.IsMatch {
		actions = append(actions, fmt.Sprintf("Verify identity against sanctions entry %s on list %s before onboarding", best.Entry.ID, best.Entry.ListID))
	}
	if len(a.Drivers) == 1 && a.Drivers[0] == domain.LocalBlacklistDriver {
		actions = append(actions, "Reject onboarding and notify the compliance officer")
	}
	if a.Breakdown[domain.CategoryPEP] > 0 {
		actions = append(actions, "Obtain senior management approval for the PEP relationship")
	}
	if a.Breakdown[domain.CategoryDevice] > 0 {
		actions = append(actions, "Review other customers onboarded from the same device")
	}

	if a.Band == domain.RiskLevelCritical {
		actions = append(actions, "Escalate to compliance and hold the account pending review")
	}
	switch {
	case a.IsHighRisk():
		actions = append(actions, "Perform enhanced due diligence including source of funds")
	case a.Band == domain.RiskLevelMedium:
		actions = append(actions, "Request additional KYC documentation")
	default:
		actions = append(actions, "Proceed with standard onboarding")
	}
	return actions
}
