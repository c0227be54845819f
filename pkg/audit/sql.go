package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-labs/warden/core/pkg/contracts"
)

// SQLTrail persists the trail through database/sql. It works against both
// SQLite (modernc driver) and Postgres (lib/pq): $n placeholders are
// understood by both.
//
// Appends are serialized under a mutex so the hash chain stays linear even
// with concurrent recorders sharing one trail instance.
type SQLTrail struct {
	db        *sql.DB
	mu        sync.Mutex
	sequence  uint64
	chainHead string
	clock     func() time.Time
}

const sqlTrailSchema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	entry_id TEXT PRIMARY KEY,
	sequence INTEGER NOT NULL,
	validation TEXT NOT NULL,
	decision TEXT NOT NULL,
	decided_at TIMESTAMP NOT NULL,
	previous_hash TEXT NOT NULL,
	entry_hash TEXT NOT NULL,
	approved BOOLEAN NOT NULL,
	approver TEXT NOT NULL,
	risk_level INTEGER NOT NULL
);
`

// NewSQLTrail migrates the schema and loads the current chain head.
func NewSQLTrail(ctx context.Context, db *sql.DB) (*SQLTrail, error) {
	t := &SQLTrail{db: db, chainHead: "genesis", clock: time.Now}

	if _, err := db.ExecContext(ctx, sqlTrailSchema); err != nil {
		return nil, fmt.Errorf("migrate audit schema: %w", err)
	}

	row := db.QueryRowContext(ctx,
		`SELECT sequence, entry_hash FROM audit_entries ORDER BY sequence DESC LIMIT 1`)
	var seq uint64
	var head string
	switch err := row.Scan(&seq, &head); {
	case err == nil:
		t.sequence = seq
		t.chainHead = head
	case errors.Is(err, sql.ErrNoRows):
		// Empty trail.
	default:
		return nil, fmt.Errorf("load audit chain head: %w", err)
	}

	return t, nil
}

// WithClock overrides the clock for deterministic testing.
func (t *SQLTrail) WithClock(clock func() time.Time) *SQLTrail {
	t.clock = clock
	return t
}

// Record implements Trail.
func (t *SQLTrail) Record(validation contracts.ValidationResult, decision contracts.ApprovalDecision) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry := Entry{
		EntryID:      uuid.New().String(),
		Sequence:     t.sequence + 1,
		Validation:   validation,
		Decision:     decision,
		DecidedAt:    t.clock().UTC(),
		PreviousHash: t.chainHead,
	}

	hash, err := entryHash(entry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	entry.EntryHash = hash

	validationJSON, err := json.Marshal(validation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}
	decisionJSON, err := json.Marshal(decision)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	_, err = t.db.Exec(`
		INSERT INTO audit_entries
			(entry_id, sequence, validation, decision, decided_at, previous_hash, entry_hash, approved, approver, risk_level)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.EntryID, entry.Sequence, string(validationJSON), string(decisionJSON),
		entry.DecidedAt, entry.PreviousHash, entry.EntryHash,
		decision.Approved, decision.Approver, int(validation.RiskLevel),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	t.sequence = entry.Sequence
	t.chainHead = entry.EntryHash

	return &entry, nil
}

// Query implements Trail.
func (t *SQLTrail) Query(f Filter) ([]Entry, error) {
	query := `SELECT entry_id, sequence, validation, decision, decided_at, previous_hash, entry_hash FROM audit_entries`
	var conds []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Approved != nil {
		conds = append(conds, "approved = "+arg(*f.Approved))
	}
	if f.Approver != "" {
		// Quorum decisions store a comma-joined approver list; match the
		// whole token, never a substring of another approver's name.
		conds = append(conds, "(approver = "+arg(f.Approver)+
			" OR approver LIKE "+arg(f.Approver+", %")+
			" OR approver LIKE "+arg("%, "+f.Approver)+
			" OR approver LIKE "+arg("%, "+f.Approver+", %")+")")
	}
	if f.MinRisk != nil {
		conds = append(conds, "risk_level >= "+arg(int(*f.MinRisk)))
	}
	if f.After != nil {
		conds = append(conds, "decided_at >= "+arg(*f.After))
	}
	if f.Before != nil {
		conds = append(conds, "decided_at < "+arg(*f.Before))
	}

	for i, c := range conds {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY sequence ASC"

	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit trail: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Recent implements Trail.
func (t *SQLTrail) Recent(n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	rows, err := t.db.Query(`
		SELECT entry_id, sequence, validation, decision, decided_at, previous_hash, entry_hash
		FROM audit_entries ORDER BY sequence DESC LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	// Reverse to oldest-first, matching MemoryTrail.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		var validationJSON, decisionJSON string
		if err := rows.Scan(&e.EntryID, &e.Sequence, &validationJSON, &decisionJSON,
			&e.DecidedAt, &e.PreviousHash, &e.EntryHash); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		if err := json.Unmarshal([]byte(validationJSON), &e.Validation); err != nil {
			return nil, fmt.Errorf("decode validation: %w", err)
		}
		if err := json.Unmarshal([]byte(decisionJSON), &e.Decision); err != nil {
			return nil, fmt.Errorf("decode decision: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// VerifyChain re-reads the full trail and checks every hash link.
func (t *SQLTrail) VerifyChain() error {
	entries, err := t.Query(Filter{})
	if err != nil {
		return err
	}
	prev := "genesis"
	for i, e := range entries {
		if e.PreviousHash != prev {
			return fmt.Errorf("%w: link broken at sequence %d", ErrChainBroken, i+1)
		}
		prev = e.EntryHash
	}
	return nil
}
