package state

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/leapstack-labs/leapgraph/pkg/core"
)

const nodeRunColumns = `id, run_id, unique_id, status, rows_affected, started_at, completed_at, error, execution_ms`

// RecordNodeRun inserts a node run. An empty ID is filled in and a zero
// StartedAt is set to now.
func (s *SQLiteStore) RecordNodeRun(nr *core.NodeRun) error {
	if s.db == nil {
		return ErrNotOpened
	}
	if nr.ID == "" {
		nr.ID = generateID()
	}
	if nr.StartedAt.IsZero() {
		nr.StartedAt = time.Now().UTC()
	}

	var completedAt sql.NullTime
	if nr.CompletedAt != nil {
		completedAt = sql.NullTime{Time: *nr.CompletedAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx(),
		`INSERT INTO node_runs (`+nodeRunColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nr.ID, nr.RunID, nr.UniqueID, string(nr.Status), nr.RowsAffected,
		nr.StartedAt, completedAt, nullString(nr.Error), nr.ExecutionMS,
	)
	if err != nil {
		return fmt.Errorf("failed to record node run %s: %w", nr.UniqueID, err)
	}
	return nil
}

// UpdateNodeRun sets the outcome of a node run and marks it completed.
func (s *SQLiteStore) UpdateNodeRun(id string, status core.NodeRunStatus, rowsAffected int64, errMsg string, executionMS int64) error {
	if s.db == nil {
		return ErrNotOpened
	}

	res, err := s.db.ExecContext(ctx(),
		`UPDATE node_runs SET status = ?, rows_affected = ?, error = ?, execution_ms = ?, completed_at = ? WHERE id = ?`,
		string(status), rowsAffected, nullString(errMsg), executionMS, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update node run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("node run not found: %s", id)
	}
	return nil
}

// GetNodeRunsForRun returns the node runs of a run in start order.
func (s *SQLiteStore) GetNodeRunsForRun(runID string) ([]*core.NodeRun, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	rows, err := s.db.QueryContext(ctx(),
		`SELECT `+nodeRunColumns+` FROM node_runs WHERE run_id = ? ORDER BY started_at, rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get node runs: %w", err)
	}
	defer rows.Close()

	var out []*core.NodeRun
	for rows.Next() {
		nr, err := scanNodeRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node run: %w", err)
		}
		out = append(out, nr)
	}
	return out, rows.Err()
}

// GetLatestNodeRun returns the most recent run of a node, or nil when the
// node never ran.
func (s *SQLiteStore) GetLatestNodeRun(uniqueID string) (*core.NodeRun, error) {
	if s.db == nil {
		return nil, ErrNotOpened
	}

	nr, err := scanNodeRun(s.db.QueryRowContext(ctx(),
		`SELECT `+nodeRunColumns+` FROM node_runs WHERE unique_id = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, uniqueID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest node run: %w", err)
	}
	return nr, nil
}

func scanNodeRun(row scanner) (*core.NodeRun, error) {
	var (
		nr          core.NodeRun
		status      string
		completedAt sql.NullTime
		errMsg      sql.NullString
	)
	err := row.Scan(&nr.ID, &nr.RunID, &nr.UniqueID, &status, &nr.RowsAffected,
		&nr.StartedAt, &completedAt, &errMsg, &nr.ExecutionMS)
	if err != nil {
		return nil, err
	}
	nr.Status = core.NodeRunStatus(status)
	if completedAt.Valid {
		t := completedAt.Time
		nr.CompletedAt = &t
	}
	nr.Error = errMsg.String
	return &nr, nil
}
