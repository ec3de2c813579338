// Package repository persists finished batch results.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banking/kyc-risk-service/internal/config"
	"github.com/banking/kyc-risk-service/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Repository stores batch results and reads them back.
type Repository interface {
	SaveBatch(ctx context.Context, result *domain.BatchResult) error
	GetBatch(ctx context.Context, id uuid.UUID) (*domain.BatchResult, error)
	ListBatches(ctx context.Context, limit int) ([]BatchRecord, error)
	Ping(ctx context.Context) error
	Close() error
}

// BatchRecord is the header of a stored batch, without its entries
type BatchRecord struct {
	BatchID     uuid.UUID           `json:"batch_id"`
	Phase       domain.Phase        `json:"phase"`
	Summary     domain.BatchSummary `json:"summary"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
}

// SQLRepository implements Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New opens the configured database and runs migrations.
func New(cfg *config.DatabaseConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 && cfg.SQLitePath != ":memory:" {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	repo := &SQLRepository{db: db, driver: cfg.Driver}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveBatch stores a finished batch and all its entries in one transaction.
// Saving the same batch twice replaces the earlier copy.
func (r *SQLRepository) SaveBatch(ctx context.Context, result *domain.BatchResult) error {
	if result == nil || result.BatchID == uuid.Nil {
		return fmt.Errorf("%w: batch id is required", ErrInvalidInput)
	}
	if !result.Phase.IsTerminal() {
		return fmt.Errorf("%w: batch %s is still %s", ErrInvalidInput, result.BatchID, result.Phase)
	}

	summary, err := json.Marshal(result.Summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	recordErrs := result.Errors
	if recordErrs == nil {
		recordErrs = []domain.RecordError{}
	}
	errs, err := json.Marshal(recordErrs)
	if err != nil {
		return fmt.Errorf("encode record errors: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id := result.BatchID.String()
	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM risk_batch_entries WHERE batch_id = ?`), id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, r.rebind(`DELETE FROM risk_batches WHERE id = ?`), id); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, r.rebind(`
		INSERT INTO risk_batches (
			id, phase, total, scored, failed, mean_score, sanctions_matches,
			summary, errors, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		id, string(result.Phase),
		result.Summary.Total, result.Summary.Scored, result.Summary.Failed,
		result.Summary.MeanScore, result.Summary.SanctionsMatch,
		string(summary), string(errs),
		result.StartedAt.UTC(), result.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert batch: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, r.rebind(`
		INSERT INTO risk_batch_entries (batch_id, position, customer_id, score, band, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range result.Entries {
		entry := &result.Entries[i]
		payload, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode entry %d: %w", i, err)
		}

		var score sql.NullInt64
		var band sql.NullString
		if entry.Assessment != nil {
			score = sql.NullInt64{Int64: int64(entry.Assessment.Score), Valid: true}
			band = sql.NullString{String: string(entry.Assessment.Band), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, id, i, entry.CustomerID, score, band, string(payload)); err != nil {
			return fmt.Errorf("insert entry %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetBatch loads a batch with its entries in input order.
func (r *SQLRepository) GetBatch(ctx context.Context, id uuid.UUID) (*domain.BatchResult, error) {
	query := `
		SELECT id, phase, summary, errors, started_at, completed_at
		FROM risk_batches
		WHERE id = ?
	`
	rec, errs, err := r.scanBatch(r.db.QueryRowContext(ctx, r.rebind(query), id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	result := &domain.BatchResult{
		BatchID:     rec.BatchID,
		Phase:       rec.Phase,
		Summary:     rec.Summary,
		Errors:      errs,
		StartedAt:   rec.StartedAt,
		CompletedAt: rec.CompletedAt,
		Entries:     []domain.BatchEntry{},
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT payload FROM risk_batch_entries
		WHERE batch_id = ?
		ORDER BY position
	`), id.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var entry domain.BatchEntry
		if err := json.Unmarshal([]byte(payload), &entry); err != nil {
			return nil, fmt.Errorf("decode entry: %w", err)
		}
		result.Entries = append(result.Entries, entry)
	}
	return result, rows.Err()
}

// ListBatches returns the most recently completed batches first.
func (r *SQLRepository) ListBatches(ctx context.Context, limit int) ([]BatchRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, r.rebind(`
		SELECT id, phase, summary, errors, started_at, completed_at
		FROM risk_batches
		ORDER BY completed_at DESC, id
		LIMIT ?
	`), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []BatchRecord{}
	for rows.Next() {
		rec, _, err := r.scanBatch(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *SQLRepository) scanBatch(row rowScanner) (*BatchRecord, []domain.RecordError, error) {
	var (
		id, phase, summary, errs string
		rec                      BatchRecord
	)
	if err := row.Scan(&id, &phase, &summary, &errs, &rec.StartedAt, &rec.CompletedAt); err != nil {
		return nil, nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, nil, fmt.Errorf("stored batch id %q: %w", id, err)
	}
	rec.BatchID = parsed
	rec.Phase = domain.Phase(phase)
	rec.StartedAt = rec.StartedAt.UTC()
	rec.CompletedAt = rec.CompletedAt.UTC()

	if err := json.Unmarshal([]byte(summary), &rec.Summary); err != nil {
		return nil, nil, fmt.Errorf("decode summary: %w", err)
	}
	var recordErrs []domain.RecordError
	if err := json.Unmarshal([]byte(errs), &recordErrs); err != nil {
		return nil, nil, fmt.Errorf("decode record errors: %w", err)
	}
	if len(recordErrs) == 0 {
		recordErrs = nil
	}
	return &rec, recordErrs, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func (r *SQLRepository) rebind(query string) string {
	return rebind(r.driver, query)
}
