package domain

import (
	"time"

	"github.com/google/uuid"
)

// Phase represents the lifecycle stage of a batch run
type Phase string

const (
	PhaseInit           Phase = "INIT"
	PhaseBuildingLedger Phase = "BUILDING_LEDGER"
	PhaseScoring        Phase = "SCORING"
	PhaseSummarizing    Phase = "SUMMARIZING"
	PhaseDone           Phase = "DONE"
	PhaseAborted        Phase = "ABORTED"
)

// IsTerminal returns true once the batch can no longer change
func (p Phase) IsTerminal() bool {
	return p == PhaseDone || p == PhaseAborted
}

// BatchEntry holds the outcome for one record, in input order
type BatchEntry struct {
	CustomerID string           `json:"customer_id"`
	Assessment *RiskAssessment  `json:"assessment,omitempty"`
	Candidates []MatchCandidate `json:"candidates"`
	Warnings   []string         `json:"warnings,omitempty"`
	Error      string           `json:"error,omitempty"`
	Narrative  *Narrative       `json:"narrative,omitempty"`
}

// Scored returns true if the record produced an assessment
func (e *BatchEntry) Scored() bool {
	return e.Assessment != nil
}

// BestCandidate returns the highest-ranked candidate, if any
func (e *BatchEntry) BestCandidate() *MatchCandidate {
	if len(e.Candidates) == 0 {
		return nil
	}
	return &e.Candidates[0]
}

// DriverCount is a driver label with its frequency across the batch
type DriverCount struct {
	Driver string `json:"driver"`
	Count  int    `json:"count"`
}

// BatchSummary aggregates a finished batch
type BatchSummary struct {
	Total          int               `json:"total"`
	Scored         int               `json:"scored"`
	Failed         int               `json:"failed"`
	BandCounts     map[RiskLevel]int `json:"band_counts"`
	MeanScore      float64           `json:"mean_score"`
	TopDrivers     []DriverCount     `json:"top_drivers"`
	SanctionsMatch int               `json:"sanctions_matches"`
}

// BatchResult is the full outcome of one batch run
type BatchResult struct {
	BatchID     uuid.UUID     `json:"batch_id"`
	Phase       Phase         `json:"phase"`
	Entries     []BatchEntry  `json:"entries"`
	Summary     BatchSummary  `json:"summary"`
	Errors      []RecordError `json:"errors,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
}

// Duration returns how long the batch took
func (r *BatchResult) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// CriticalEntries returns the entries scored in the CRITICAL band
func (r *BatchResult) CriticalEntries() []BatchEntry {
	var out []BatchEntry
	for _, e := range r.Entries {
		if e.Assessment != nil && e.Assessment.RequiresAlert() {
			out = append(out, e)
		}
	}
	return out
}

// RecordError is the serializable form of a RecordScoringError
type RecordError struct {
	CustomerID string `json:"customer_id"`
	Index      int    `json:"index"`
	Message    string `json:"message"`
}

// Narrative is a human-readable explanation attached next to an assessment.
// It never feeds back into the numbers.
type Narrative struct {
	Summary          string   `json:"summary"`
	SuggestedActions []string `json:"suggested_actions"`
	Source           string   `json:"source"` // template or llm
}
