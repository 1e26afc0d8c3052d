/*
Package sqlite provides a SQLite-backed implementation of the escalation
storage interfaces.

PURPOSE:
  Implements escalation.Store and escalation.ContractStore on SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

APPEND-ONLY ENFORCEMENT:
  The escalations table is append-only:
  - No UPDATE statements
  - No DELETE statements
  - InsertIfAbsent is the only write path

KEY TABLES:
  contracts:    Lease contracts with escalation terms
  escalations:  Immutable ledger of applied increases
  pass_runs:    Audit trail of scheduler passes

INDEXES:
  - idx_escalations_unique_period: THE correctness mechanism. Uniqueness
    on (contract_id, effective_date) makes duplicate computation by
    overlapping passes harmless; a read-then-write check in application
    code would race, the index cannot.
  - idx_escalations_contract_date: (contract_id, effective_date DESC)
    serves the Latest() hot path.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/rent.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  runner := escalation.NewRunner(store, store, notifier)

SEE ALSO:
  - escalation/store.go: Interface definitions
  - escalation/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/rent-engine/escalation"
)

// Store implements the escalation storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Contracts (read model of the lease subsystem)
	CREATE TABLE IF NOT EXISTS contracts (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		end_date TEXT NOT NULL,
		increase_pct TEXT NOT NULL,
		frequency_days INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contracts_status_end
		ON contracts(status, end_date);

	-- Escalations (append-only ledger)
	CREATE TABLE IF NOT EXISTS escalations (
		id TEXT PRIMARY KEY,
		contract_id TEXT NOT NULL,
		effective_date TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		note TEXT,
		period_from TEXT,
		period_to TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: one record per contract per period. Overlapping passes
	-- may compute the same increase; this index makes the second insert
	-- a no-op instead of a duplicate.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_escalations_unique_period
		ON escalations(contract_id, DATE(effective_date));

	-- Latest() hot path
	CREATE INDEX IF NOT EXISTS idx_escalations_contract_date
		ON escalations(contract_id, effective_date DESC);

	-- Pass Runs (scheduler audit trail)
	CREATE TABLE IF NOT EXISTS pass_runs (
		id TEXT PRIMARY KEY,
		run_at TEXT NOT NULL,
		trigger_kind TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		evaluated INTEGER DEFAULT 0,
		created INTEGER DEFAULT 0,
		failed_json TEXT,
		error TEXT,
		started_at TEXT,
		completed_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_pass_runs_run_at
		ON pass_runs(run_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ESCALATION STORE (escalation.Store interface)
// =============================================================================

// InsertIfAbsent appends a record unless its period is already recorded.
// The unique index does the conflict detection; a constraint violation is
// reported as (false, nil), the expected idempotent outcome.
func (s *Store) InsertIfAbsent(ctx context.Context, rec escalation.EscalationRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO escalations
		(id, contract_id, effective_date, amount, currency, note, period_from, period_to, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		string(rec.ID),
		string(rec.ContractID),
		rec.EffectiveDate.UTC().Format(time.RFC3339),
		rec.Amount.StringFixed(2),
		string(rec.Currency),
		nullString(rec.Note),
		nullTime(rec.PeriodFrom),
		nullTime(rec.PeriodTo),
		time.Now().UTC().Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert escalation: %w", err)
	}

	return true, nil
}

// Latest returns the most recent record for the contract, or nil.
func (s *Store) Latest(ctx context.Context, contractID escalation.ContractID) (*escalation.EscalationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, contract_id, effective_date, amount, currency, note, period_from, period_to
		FROM escalations
		WHERE contract_id = ?
		ORDER BY effective_date DESC
		LIMIT 1
	`

	row := s.db.QueryRowContext(ctx, query, string(contractID))
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load latest escalation: %w", err)
	}
	return &rec, nil
}

// History returns all records for the contract, oldest first.
func (s *Store) History(ctx context.Context, contractID escalation.ContractID) ([]escalation.EscalationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, contract_id, effective_date, amount, currency, note, period_from, period_to
		FROM escalations
		WHERE contract_id = ?
		ORDER BY effective_date ASC
	`

	rows, err := s.db.QueryContext(ctx, query, string(contractID))
	if err != nil {
		return nil, fmt.Errorf("failed to load escalation history: %w", err)
	}
	defer rows.Close()

	var result []escalation.EscalationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan escalation: %w", err)
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// =============================================================================
// CONTRACT STORE (escalation.ContractStore interface)
// =============================================================================

// SaveContract inserts or updates a contract.
func (s *Store) SaveContract(ctx context.Context, c escalation.Contract) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO contracts (id, status, end_date, increase_pct, frequency_days, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			end_date = excluded.end_date,
			increase_pct = excluded.increase_pct,
			frequency_days = excluded.frequency_days
	`

	_, err := s.db.ExecContext(ctx, query,
		string(c.ID),
		string(c.Status),
		c.EndDate.UTC().Format(time.RFC3339),
		c.IncreasePct.String(),
		c.FrequencyDays,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save contract: %w", err)
	}
	return nil
}

// ListActive returns contracts with active status ending after now.
func (s *Store) ListActive(ctx context.Context, now time.Time) ([]escalation.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, status, end_date, increase_pct, frequency_days
		FROM contracts
		WHERE status = ? AND end_date > ?
	`

	rows, err := s.db.QueryContext(ctx, query,
		string(escalation.StatusActive),
		now.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active contracts: %w", err)
	}
	defer rows.Close()

	var result []escalation.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// ListContracts returns every contract regardless of status.
func (s *Store) ListContracts(ctx context.Context) ([]escalation.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, end_date, increase_pct, frequency_days FROM contracts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var result []escalation.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

// Get returns the contract or escalation.ErrContractNotFound.
func (s *Store) Get(ctx context.Context, id escalation.ContractID) (escalation.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, end_date, increase_pct, frequency_days FROM contracts WHERE id = ?`,
		string(id))

	c, err := scanContract(row)
	if err == sql.ErrNoRows {
		return escalation.Contract{}, escalation.ErrContractNotFound
	}
	if err != nil {
		return escalation.Contract{}, fmt.Errorf("failed to load contract: %w", err)
	}
	return c, nil
}

// =============================================================================
// PASS RUNS - Scheduler audit trail
// =============================================================================

// PassRun records one scheduler pass for audit and UI display.
type PassRun struct {
	ID          string
	RunAt       time.Time
	TriggerKind string // "scheduled" or "manual"
	Status      string // "running", "completed", "failed"
	Evaluated   int
	Created     int
	FailedJSON  string
	Error       string
	StartedAt   *time.Time
	CompletedAt *time.Time
	CreatedAt   time.Time
}

// SavePassRun inserts or updates a run record.
func (s *Store) SavePassRun(ctx context.Context, run PassRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO pass_runs
		(id, run_at, trigger_kind, status, evaluated, created, failed_json, error, started_at, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			evaluated = excluded.evaluated,
			created = excluded.created,
			failed_json = excluded.failed_json,
			error = excluded.error,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		run.ID,
		run.RunAt.UTC().Format(time.RFC3339),
		run.TriggerKind,
		run.Status,
		run.Evaluated,
		run.Created,
		nullString(run.FailedJSON),
		nullString(run.Error),
		nullTime(run.StartedAt),
		nullTime(run.CompletedAt),
		run.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save pass run: %w", err)
	}
	return nil
}

// ListPassRuns returns the most recent runs, newest first.
func (s *Store) ListPassRuns(ctx context.Context, limit int) ([]PassRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, run_at, trigger_kind, status, evaluated, created, failed_json, error, started_at, completed_at, created_at
		FROM pass_runs
		ORDER BY run_at DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pass runs: %w", err)
	}
	defer rows.Close()

	var result []PassRun
	for rows.Next() {
		var (
			run                    PassRun
			runAt, createdAt       string
			failedJSON, errText    sql.NullString
			startedAt, completedAt sql.NullString
		)
		if err := rows.Scan(&run.ID, &runAt, &run.TriggerKind, &run.Status,
			&run.Evaluated, &run.Created, &failedJSON, &errText,
			&startedAt, &completedAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan pass run: %w", err)
		}
		run.RunAt, _ = time.Parse(time.RFC3339, runAt)
		run.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		run.FailedJSON = failedJSON.String
		run.Error = errText.String
		if t, ok := parseNullTime(startedAt); ok {
			run.StartedAt = &t
		}
		if t, ok := parseNullTime(completedAt); ok {
			run.CompletedAt = &t
		}
		result = append(result, run)
	}
	return result, rows.Err()
}

// =============================================================================
// SCAN HELPERS
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (escalation.EscalationRecord, error) {
	var (
		rec                  escalation.EscalationRecord
		id, contractID       string
		effectiveDate        string
		amount, currency     string
		note                 sql.NullString
		periodFrom, periodTo sql.NullString
	)

	err := row.Scan(&id, &contractID, &effectiveDate, &amount, &currency, &note, &periodFrom, &periodTo)
	if err != nil {
		return escalation.EscalationRecord{}, err
	}

	rec.ID = escalation.RecordID(id)
	rec.ContractID = escalation.ContractID(contractID)
	rec.EffectiveDate, err = time.Parse(time.RFC3339, effectiveDate)
	if err != nil {
		return escalation.EscalationRecord{}, fmt.Errorf("bad effective_date %q: %w", effectiveDate, err)
	}
	rec.Amount = escalation.MustParseDecimal(amount)
	rec.Currency = escalation.Currency(currency)
	rec.Note = note.String
	if t, ok := parseNullTime(periodFrom); ok {
		rec.PeriodFrom = &t
	}
	if t, ok := parseNullTime(periodTo); ok {
		rec.PeriodTo = &t
	}
	return rec, nil
}

func scanContract(row rowScanner) (escalation.Contract, error) {
	var (
		c             escalation.Contract
		id, status    string
		endDate, pct  string
		frequencyDays int
	)

	err := row.Scan(&id, &status, &endDate, &pct, &frequencyDays)
	if err != nil {
		return escalation.Contract{}, err
	}

	c.ID = escalation.ContractID(id)
	c.Status = escalation.ContractStatus(status)
	c.EndDate, err = time.Parse(time.RFC3339, endDate)
	if err != nil {
		return escalation.Contract{}, fmt.Errorf("bad end_date %q: %w", endDate, err)
	}
	c.IncreasePct = escalation.MustParseDecimal(pct)
	c.FrequencyDays = frequencyDays
	return c, nil
}

// =============================================================================
// SQL HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
