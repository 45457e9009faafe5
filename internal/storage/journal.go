package storage

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schema string

// attempt states besides the executor's own
const (
	StateSkipped      = "skipped"
	StateUnprofitable = "unprofitable"
)

// CycleRecord is one scheduler cycle
type CycleRecord struct {
	ID          int64
	BlockNumber uint64
	StartedAt   time.Time
	Duration    time.Duration
	Pools       int
	Candidates  int
	Profitable  int
	Err         string
}

// AttemptRecord is one evaluated opportunity, skipped or executed
type AttemptRecord struct {
	ID            int64
	CycleID       int64
	OpportunityID string
	Kind          string
	PathKind      string
	Route         string
	BorrowToken   string
	BorrowAmount  string
	GrossProfit   string
	NetProfit     string
	GasUnits      uint64
	State         string
	SkipReason    string
	Success       bool
	DryRun        bool
	TxHash        string
	RevertReason  string
	Err           string
	BlockNumber   uint64
	CreatedAt     time.Time
}

// Journal persists cycles and attempts to sqlite
type Journal struct {
	db *sql.DB
}

func NewJournal(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create journal dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal db: %w", err)
	}

	// enable WAL mode, the export command reads while the bot writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise schema: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) RecordCycle(c *CycleRecord) (int64, error) {
	var errText sql.NullString
	if c.Err != "" {
		errText = sql.NullString{String: c.Err, Valid: true}
	}
	res, err := j.db.Exec(`
		INSERT INTO cycles (block_number, started_at, duration_ms, pools, candidates, profitable, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		c.BlockNumber,
		c.StartedAt.UnixMilli(),
		c.Duration.Milliseconds(),
		c.Pools,
		c.Candidates,
		c.Profitable,
		errText,
	)
	if err != nil {
		return 0, fmt.Errorf("insert cycle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("cycle id: %w", err)
	}
	c.ID = id
	return id, nil
}

// RecordAttempts stores a cycle's attempts in one transaction
func (j *Journal) RecordAttempts(attempts []*AttemptRecord) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO attempts
		(cycle_id, opportunity_id, kind, path_kind, route, borrow_token, borrow_amount,
		 gross_profit, net_profit, gas_units, state, skip_reason, success, dry_run,
		 tx_hash, revert_reason, error, block_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range attempts {
		if _, err := stmt.Exec(
			a.CycleID,
			a.OpportunityID,
			a.Kind,
			a.PathKind,
			a.Route,
			a.BorrowToken,
			a.BorrowAmount,
			a.GrossProfit,
			a.NetProfit,
			a.GasUnits,
			a.State,
			a.SkipReason,
			a.Success,
			a.DryRun,
			a.TxHash,
			a.RevertReason,
			a.Err,
			a.BlockNumber,
			a.CreatedAt.UnixMilli(),
		); err != nil {
			return fmt.Errorf("insert attempt %s: %w", a.OpportunityID, err)
		}
	}
	return tx.Commit()
}

// Attempts returns attempts created at or after since, oldest first
func (j *Journal) Attempts(since time.Time) ([]*AttemptRecord, error) {
	rows, err := j.db.Query(`
		SELECT id, cycle_id, opportunity_id, kind, COALESCE(path_kind, ''), route, borrow_token, borrow_amount,
		       COALESCE(gross_profit, ''), COALESCE(net_profit, ''), COALESCE(gas_units, 0), state,
		       COALESCE(skip_reason, ''), success, dry_run, COALESCE(tx_hash, ''), COALESCE(revert_reason, ''),
		       COALESCE(error, ''), block_number, created_at
		FROM attempts
		WHERE created_at >= ?
		ORDER BY id
	`, since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []*AttemptRecord
	for rows.Next() {
		var a AttemptRecord
		var created int64
		if err := rows.Scan(
			&a.ID, &a.CycleID, &a.OpportunityID, &a.Kind, &a.PathKind, &a.Route, &a.BorrowToken, &a.BorrowAmount,
			&a.GrossProfit, &a.NetProfit, &a.GasUnits, &a.State,
			&a.SkipReason, &a.Success, &a.DryRun, &a.TxHash, &a.RevertReason,
			&a.Err, &a.BlockNumber, &created,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		a.CreatedAt = time.UnixMilli(created)
		out = append(out, &a)
	}
	return out, rows.Err()
}

// GetStats counts journal rows for monitoring
func (j *Journal) GetStats() (map[string]int64, error) {
	stats := make(map[string]int64)

	var count int64
	if err := j.db.QueryRow("SELECT COUNT(*) FROM cycles").Scan(&count); err != nil {
		return nil, err
	}
	stats["cycles"] = count

	if err := j.db.QueryRow("SELECT COUNT(*) FROM attempts").Scan(&count); err != nil {
		return nil, err
	}
	stats["attempts"] = count

	if err := j.db.QueryRow("SELECT COUNT(*) FROM attempts WHERE success = 1 AND dry_run = 0").Scan(&count); err != nil {
		return nil, err
	}
	stats["executed"] = count

	return stats, nil
}
