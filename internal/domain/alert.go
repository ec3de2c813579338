package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AlertType represents the reason an alert was raised
type AlertType string

const (
	AlertTypeSanctionsMatch AlertType = "SANCTIONS_MATCH"
	AlertTypeLocalBlacklist AlertType = "LOCAL_BLACKLIST"
	AlertTypeCriticalScore  AlertType = "CRITICAL_SCORE"
)

// AlertStatus represents the status of an alert
type AlertStatus string

const (
	AlertStatusNew       AlertStatus = "NEW"
	AlertStatusEscalated AlertStatus = "ESCALATED"
)

// RiskAlert represents a system-generated alert for a CRITICAL customer
type RiskAlert struct {
	ID          uuid.UUID `json:"id"`
	AlertNumber string    `json:"alert_number"`
	BatchID     uuid.UUID `json:"batch_id"`

	// Subject
	CustomerID string `json:"customer_id"`

	// Classification
	AlertType AlertType   `json:"alert_type"`
	Status    AlertStatus `json:"status"`
	Priority  RiskLevel   `json:"priority"`
	RiskScore int         `json:"risk_score"`

	// Details
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Drivers     []string `json:"drivers"`

	// Detection metrics
	Confidence      float64 `json:"confidence"`
	MatchedEntryID  string  `json:"matched_entry_id,omitempty"`
	MatchedListID   string  `json:"matched_list_id,omitempty"`
	MatchConfidence float64 `json:"match_confidence,omitempty"`

	DetectedAt time.Time `json:"detected_at"`
}

// RequiresEscalation returns true if alert should be escalated
func (a *RiskAlert) RequiresEscalation() bool {
	return a.AlertType == AlertTypeSanctionsMatch || a.AlertType == AlertTypeLocalBlacklist
}

// NewRiskAlert builds an alert from a CRITICAL batch entry
func NewRiskAlert(batchID uuid.UUID, entry *BatchEntry, detectedAt time.Time) *RiskAlert {
	a := entry.Assessment
	alert := &RiskAlert{
		ID:          uuid.New(),
		BatchID:     batchID,
		CustomerID:  entry.CustomerID,
		AlertType:   AlertTypeCriticalScore,
		Status:      AlertStatusNew,
		Priority:    a.Band,
		RiskScore:   a.Score,
		Drivers:     append([]string(nil), a.Drivers...),
		Confidence:  a.Confidence,
		DetectedAt:  detectedAt.UTC(),
		Title:       fmt.Sprintf("Critical KYC risk for customer %s", entry.CustomerID),
		Description: fmt.Sprintf("Customer %s scored %d (%s)", entry.CustomerID, a.Score, a.Band),
	}
	alert.AlertNumber = fmt.Sprintf("KYC-%s-%s", detectedAt.UTC().Format("20060102"), alert.ID.String()[:8])

	if best := entry.BestCandidate(); best != nil && best.IsMatch {
		alert.AlertType = AlertTypeSanctionsMatch
		alert.MatchedEntryID = best.Entry.ID
		alert.MatchedListID = best.Entry.ListID
		alert.MatchConfidence = best.Confidence
		alert.Title = fmt.Sprintf("Sanctions match for customer %s", entry.CustomerID)
	} else if len(a.Drivers) == 1 && a.Drivers[0] == LocalBlacklistDriver {
		alert.AlertType = AlertTypeLocalBlacklist
	}
	if alert.RequiresEscalation() {
		alert.Status = AlertStatusEscalated
	}
	return alert
}

// LocalBlacklistDriver is the only driver reported for a locally blacklisted customer
const LocalBlacklistDriver = "Customer is on local blacklist"

// AlertSummary is a lean DTO for list views
type AlertSummary struct {
	ID          uuid.UUID   `json:"id"`
	AlertNumber string      `json:"alert_number"`
	CustomerID  string      `json:"customer_id"`
	AlertType   AlertType   `json:"alert_type"`
	Status      AlertStatus `json:"status"`
	Priority    RiskLevel   `json:"priority"`
	Title       string      `json:"title"`
	Confidence  float64     `json:"confidence"`
	DetectedAt  time.Time   `json:"detected_at"`
}

// ToSummary converts RiskAlert to AlertSummary
func (a *RiskAlert) ToSummary() *AlertSummary {
	return &AlertSummary{
		ID:          a.ID,
		AlertNumber: a.AlertNumber,
		CustomerID:  a.CustomerID,
		AlertType:   a.AlertType,
		Status:      a.Status,
		Priority:    a.Priority,
		Title:       a.Title,
		Confidence:  a.Confidence,
		DetectedAt:  a.DetectedAt,
	}
}
