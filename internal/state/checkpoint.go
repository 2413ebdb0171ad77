package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/thomascherickal/agentflow/internal/flow"
)

// ErrNoCheckpoint is returned when no checkpoint exists for a flow.
var ErrNoCheckpoint = errors.New("no checkpoint for flow")

// Store is the persistence surface the engine and CLI depend on.
type Store interface {
	SaveCheckpoint(ctx context.Context, snap flow.Snapshot) error
	LoadCheckpoint(ctx context.Context, flowID string) (flow.Snapshot, error)
	ListCheckpoints(ctx context.Context) ([]CheckpointInfo, error)
	DeleteCheckpoint(ctx context.Context, flowID string) error
	RecordRun(ctx context.Context, rec RunRecord) error
}

var _ Store = (*DB)(nil)

// CheckpointInfo describes a stored checkpoint without its snapshot body.
type CheckpointInfo struct {
	FlowID    string
	Name      string
	UpdatedAt time.Time
}

// RunRecord is one finished run for the flow_runs log.
type RunRecord struct {
	FlowID     string
	Name       string
	Completed  bool
	Error      string
	Iterations int
	Turns      int
	FinishedAt time.Time
}

// SaveCheckpoint stores the snapshot as the flow's single checkpoint,
// replacing any previous one. Tasks, history, and the instruction stack
// are written together in one transaction so a checkpoint is never a
// mix of two points in time.
func (db *DB) SaveCheckpoint(ctx context.Context, snap flow.Snapshot) error {
	if snap.FlowID == "" {
		return fmt.Errorf("save checkpoint: snapshot has no flow id")
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err = db.conn.ExecContext(ctx, `
		INSERT INTO flow_checkpoints (flow_id, name, snapshot, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(flow_id) DO UPDATE SET
			name = excluded.name,
			snapshot = excluded.snapshot,
			updated_at = excluded.updated_at
	`, snap.FlowID, snap.Name, string(body), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint returns the stored snapshot for the given flow.
func (db *DB) LoadCheckpoint(ctx context.Context, flowID string) (flow.Snapshot, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var body string
	row := db.conn.QueryRowContext(ctx, `
		SELECT snapshot FROM flow_checkpoints WHERE flow_id = ?
	`, flowID)
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return flow.Snapshot{}, fmt.Errorf("%w: %s", ErrNoCheckpoint, flowID)
		}
		return flow.Snapshot{}, fmt.Errorf("load checkpoint: %w", err)
	}

	var snap flow.Snapshot
	if err := json.Unmarshal([]byte(body), &snap); err != nil {
		return flow.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// ListCheckpoints returns all stored checkpoints, newest first.
func (db *DB) ListCheckpoints(ctx context.Context) ([]CheckpointInfo, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT flow_id, name, updated_at FROM flow_checkpoints
		ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	defer rows.Close()

	var out []CheckpointInfo
	for rows.Next() {
		var info CheckpointInfo
		var updated string
		if err := rows.Scan(&info.FlowID, &info.Name, &updated); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		if t, err := parseTime(updated); err == nil {
			info.UpdatedAt = t
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// DeleteCheckpoint removes the stored checkpoint for a flow, if any.
func (db *DB) DeleteCheckpoint(ctx context.Context, flowID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.ExecContext(ctx, `
		DELETE FROM flow_checkpoints WHERE flow_id = ?
	`, flowID); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// RecordRun appends a finished run to the flow_runs log and drops the
// flow's checkpoint, since a finished run has nothing to resume.
func (db *DB) RecordRun(ctx context.Context, rec RunRecord) error {
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO flow_runs (flow_id, name, completed, error, iterations, turns, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rec.FlowID, rec.Name, boolToInt(rec.Completed), rec.Error, rec.Iterations, rec.Turns, formatTime(finished)); err != nil {
		tx.Rollback()
		return fmt.Errorf("record run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM flow_checkpoints WHERE flow_id = ?
	`, rec.FlowID); err != nil {
		tx.Rollback()
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return tx.Commit()
}

// Runs returns the most recent finished runs for a flow id, newest
// first, up to limit.
func (db *DB) Runs(ctx context.Context, flowID string, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT flow_id, name, completed, error, iterations, turns, finished_at
		FROM flow_runs WHERE flow_id = ?
		ORDER BY id DESC LIMIT ?
	`, flowID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var rec RunRecord
		var completed int
		var errText sql.NullString
		var finished string
		if err := rows.Scan(&rec.FlowID, &rec.Name, &completed, &errText, &rec.Iterations, &rec.Turns, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.Completed = completed != 0
		rec.Error = errText.String
		if t, err := parseTime(finished); err == nil {
			rec.FinishedAt = t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
