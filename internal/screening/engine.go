package screening

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
	"github.com/banking/kyc-risk-service/internal/metrics"
	"github.com/banking/kyc-risk-service/internal/pkg/logger"
	"github.com/banking/kyc-risk-service/internal/refdata"
)

const (
	tracerName        = "github.com/banking/kyc-risk-service/internal/screening"
	defaultTopDrivers = 5
)

// Engine scores customer batches. Reference tables and the sanctions list are
// shared read-only across batches; everything else lives for one batch only.
type Engine struct {
	matcher    *SanctionsMatcher
	calculator *RiskCalculator
	tables     *refdata.Tables

	sanctions   *SanctionsList
	sanctionsMu sync.RWMutex

	cfg     *config.ScreeningConfig
	log     *logger.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	// Metrics
	batchCount   int64
	avgLatencyMs float64
	latencyMu    sync.RWMutex
}

// NewEngine creates a new batch scoring engine
func NewEngine(
	matcher *SanctionsMatcher,
	calculator *RiskCalculator,
	tables *refdata.Tables,
	sanctions []domain.SanctionsEntry,
	cfg *config.ScreeningConfig,
	log *logger.Logger,
	m *metrics.Metrics,
) *Engine {
	return &Engine{
		matcher:    matcher,
		calculator: calculator,
		tables:     tables,
		sanctions:  PrepareSanctionsList(sanctions),
		cfg:        cfg,
		log:        log.Named("screening_engine"),
		metrics:    m,
		tracer:     otel.Tracer(tracerName),
	}
}

// SetSanctions swaps the sanctions list. Running batches keep the list they started with.
func (e *Engine) SetSanctions(entries []domain.SanctionsEntry) {
	list := PrepareSanctionsList(entries)
	e.sanctionsMu.Lock()
	e.sanctions = list
	e.sanctionsMu.Unlock()
	e.log.Info("sanctions list loaded", logger.IntField("entries", list.Len()))
}

// SanctionsCount returns the size of the current sanctions list
func (e *Engine) SanctionsCount() int {
	e.sanctionsMu.RLock()
	defer e.sanctionsMu.RUnlock()
	return e.sanctions.Len()
}

func (e *Engine) sanctionsSnapshot() *SanctionsList {
	e.sanctionsMu.RLock()
	defer e.sanctionsMu.RUnlock()
	return e.sanctions
}

// batchRun holds the state of one batch. It is discarded when AssessBatch returns.
type batchRun struct {
	id        uuid.UUID
	phase     domain.Phase
	startedAt time.Time
	log       *logger.Logger
}

func (r *batchRun) transition(to domain.Phase) {
	r.log.PhaseChanged(r.id.String(), string(r.phase), string(to))
	r.phase = to
}

// AssessBatch validates, scores and summarizes a batch of customer records.
// Validation failures return a *domain.ValidationError and nothing is scored.
// Per-record failures are reported in the result and do not abort the batch.
// A cancelled context aborts the batch and returns ctx.Err().
func (e *Engine) AssessBatch(ctx context.Context, records []domain.CustomerRecord) (*domain.BatchResult, error) {
	run := &batchRun{
		id:        uuid.New(),
		phase:     domain.PhaseInit,
		startedAt: time.Now().UTC(),
	}
	run.log = e.log.WithBatch(run.id.String(), len(records))

	ctx, span := e.tracer.Start(ctx, "screening.AssessBatch", trace.WithAttributes(
		attribute.String("batch.id", run.id.String()),
		attribute.Int("batch.size", len(records)),
	))
	defer span.End()

	if err := ValidateBatch(records); err != nil {
		return nil, e.abort(run, span, err)
	}

	workers := e.cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	run.log.BatchStarted(run.id.String(), len(records), workers)

	// The ledger is complete before any record is scored.
	run.transition(domain.PhaseBuildingLedger)
	_, ledgerSpan := e.tracer.Start(ctx, "screening.BuildDeviceLedger")
	ledger := BuildDeviceLedger(records)
	ledgerSpan.SetAttributes(attribute.Int("ledger.distinct", ledger.Distinct()))
	ledgerSpan.End()
	if err := ctx.Err(); err != nil {
		return nil, e.abort(run, span, err)
	}

	run.transition(domain.PhaseScoring)
	entries, recordErrs, err := e.scoreAll(ctx, run, records, ledger, workers)
	if err != nil {
		return nil, e.abort(run, span, err)
	}

	run.transition(domain.PhaseSummarizing)
	_, sumSpan := e.tracer.Start(ctx, "screening.Summarize")
	summary := Summarize(entries, e.topDrivers())
	sumSpan.End()

	run.transition(domain.PhaseDone)
	result := &domain.BatchResult{
		BatchID:     run.id,
		Phase:       run.phase,
		Entries:     entries,
		Summary:     summary,
		Errors:      recordErrs,
		StartedAt:   run.startedAt,
		CompletedAt: time.Now().UTC(),
	}

	duration := result.Duration()
	e.recordLatency(duration.Milliseconds())
	e.metrics.ObserveBatchDuration(duration)
	e.metrics.IncrementBatch(string(domain.PhaseDone))
	if budget := e.cfg.MaxBatchLatency; budget > 0 && duration > budget {
		run.log.LatencyWarning("batch", duration.Milliseconds(), budget.Milliseconds())
	}
	span.SetAttributes(
		attribute.Int("batch.scored", summary.Scored),
		attribute.Int("batch.failed", summary.Failed),
		attribute.Int("batch.sanctions_matches", summary.SanctionsMatch),
	)
	run.log.BatchCompleted(run.id.String(), summary.Scored, summary.Failed, summary.MeanScore, duration.Milliseconds())

	return result, nil
}

func (e *Engine) abort(run *batchRun, span trace.Span, err error) error {
	run.transition(domain.PhaseAborted)
	e.metrics.IncrementBatch(string(domain.PhaseAborted))
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		run.log.Warn("batch rejected", logger.ErrorField(err))
	} else {
		run.log.Info("batch aborted", logger.ErrorField(err))
	}
	return err
}

// scoreAll fans records out over a bounded worker pool. Results are written by
// index so the output keeps input order.
func (e *Engine) scoreAll(
	ctx context.Context,
	run *batchRun,
	records []domain.CustomerRecord,
	ledger *DeviceLedger,
	workers int,
) ([]domain.BatchEntry, []domain.RecordError, error) {
	ctx, span := e.tracer.Start(ctx, "screening.ScoreRecords", trace.WithAttributes(
		attribute.Int("workers", workers),
	))
	defer span.End()

	list := e.sanctionsSnapshot()
	entries := make([]domain.BatchEntry, len(records))
	failures := make([]*domain.RecordScoringError, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range records {
		if gctx.Err() != nil {
			break
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec := &records[i]
			entry, err := e.scoreRecord(rec, list, ledger)
			if err != nil {
				failures[i] = &domain.RecordScoringError{RecordID: rec.ID, Index: i, Err: err}
				entries[i] = domain.BatchEntry{
					CustomerID: rec.ID,
					Candidates: []domain.MatchCandidate{},
					Error:      err.Error(),
				}
				e.metrics.IncrementRecordError()
				run.log.RecordFailed(rec.ID, i, err)
				return nil
			}
			entries[i] = entry
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var recordErrs []domain.RecordError
	for _, f := range failures {
		if f == nil {
			continue
		}
		recordErrs = append(recordErrs, domain.RecordError{
			CustomerID: f.RecordID,
			Index:      f.Index,
			Message:    f.Error(),
		})
	}
	span.SetAttributes(attribute.Int("records.failed", len(recordErrs)))
	return entries, recordErrs, nil
}

// scoreRecord matches and scores one record. A panic is converted to an error
// so that one bad record cannot take the batch down.
func (e *Engine) scoreRecord(rec *domain.CustomerRecord, list *SanctionsList, ledger *DeviceLedger) (entry domain.BatchEntry, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while scoring: %v", r)
		}
	}()

	candidates := e.matcher.MatchList(rec, list, e.cfg.TopK)
	var best *domain.MatchCandidate
	if len(candidates) > 0 {
		best = &candidates[0]
	}

	assessment, warnings, err := e.calculator.Assess(AssessmentInput{
		Record:        rec,
		Tables:        e.tables,
		BestCandidate: best,
		Ledger:        ledger,
	})
	if err != nil {
		return domain.BatchEntry{}, err
	}

	entry = domain.BatchEntry{
		CustomerID: rec.ID,
		Assessment: assessment,
		Candidates: candidates,
	}
	for _, w := range warnings {
		entry.Warnings = append(entry.Warnings, w.Error())
		e.metrics.IncrementLookupMiss(w.Table)
		e.log.LookupWarning(rec.ID, w.Table, w.Code)
	}
	if best != nil && best.IsMatch {
		e.metrics.IncrementSanctionsMatch()
	}
	e.metrics.IncrementScored(string(assessment.Band))
	e.log.RecordScored(rec.ID, assessment.Score, string(assessment.Band), assessment.Confidence)
	return entry, nil
}

func (e *Engine) topDrivers() int {
	if e.cfg.TopDrivers > 0 {
		return e.cfg.TopDrivers
	}
	return defaultTopDrivers
}

// ValidateBatch checks that the batch is non-empty and that every record has a
// unique, non-empty identifier. Identifiers are compared after trimming spaces.
func ValidateBatch(records []domain.CustomerRecord) error {
	if len(records) == 0 {
		return &domain.ValidationError{Reason: domain.ErrEmptyBatch}
	}

	seen := make(map[string]int, len(records))
	var missing []int
	var duplicates []string
	for i := range records {
		id := strings.TrimSpace(records[i].ID)
		if id == "" {
			missing = append(missing, i)
			continue
		}
		seen[id]++
		if seen[id] == 2 {
			duplicates = append(duplicates, id)
		}
	}

	var reasons []error
	if len(missing) > 0 {
		reasons = append(reasons, domain.ErrMissingID)
	}
	if len(duplicates) > 0 {
		reasons = append(reasons, domain.ErrDuplicateID)
	}
	if len(reasons) == 0 {
		return nil
	}
	return &domain.ValidationError{
		Reason:       errors.Join(reasons...),
		DuplicateIDs: duplicates,
		MissingRows:  missing,
	}
}

// Summarize aggregates the entries of a batch. Drivers are ranked by frequency,
// ties broken by the order in which they were first seen.
func Summarize(entries []domain.BatchEntry, topN int) domain.BatchSummary {
	summary := domain.BatchSummary{
		Total:      len(entries),
		BandCounts: make(map[domain.RiskLevel]int, 4),
		TopDrivers: []domain.DriverCount{},
	}
	for _, band := range domain.RiskLevels() {
		summary.BandCounts[band] = 0
	}

	type driverStat struct {
		count     int
		firstSeen int
	}
	stats := make(map[string]*driverStat)
	order := 0
	total := 0

	for i := range entries {
		a := entries[i].Assessment
		if a == nil {
			summary.Failed++
			continue
		}
		summary.Scored++
		summary.BandCounts[a.Band]++
		total += a.Score
		if best := entries[i].BestCandidate(); best != nil && best.IsMatch {
			summary.SanctionsMatch++
		}
		for _, d := range a.Drivers {
			st, ok := stats[d]
			if !ok {
				st = &driverStat{firstSeen: order}
				order++
				stats[d] = st
			}
			st.count++
		}
	}

	if summary.Scored > 0 {
		summary.MeanScore = math.Round(float64(total)/float64(summary.Scored)*100) / 100
	}

	for d, st := range stats {
		summary.TopDrivers = append(summary.TopDrivers, domain.DriverCount{Driver: d, Count: st.count})
	}
	sort.Slice(summary.TopDrivers, func(i, j int) bool {
		a, b := summary.TopDrivers[i], summary.TopDrivers[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return stats[a.Driver].firstSeen < stats[b.Driver].firstSeen
	})
	if topN > 0 && len(summary.TopDrivers) > topN {
		summary.TopDrivers = summary.TopDrivers[:topN]
	}
	return summary
}

// recordLatency records batch latency for metrics
func (e *Engine) recordLatency(durationMs int64) {
	e.latencyMu.Lock()
	defer e.latencyMu.Unlock()

	e.batchCount++
	// Exponential moving average
	e.avgLatencyMs = e.avgLatencyMs*0.9 + float64(durationMs)*0.1
}

// GetAverageLatency returns the average batch latency
func (e *Engine) GetAverageLatency() float64 {
	e.latencyMu.RLock()
	defer e.latencyMu.RUnlock()
	return e.avgLatencyMs
}

// GetBatchCount returns total batches completed
func (e *Engine) GetBatchCount() int64 {
	e.latencyMu.RLock()
	defer e.latencyMu.RUnlock()
	return e.batchCount
}
