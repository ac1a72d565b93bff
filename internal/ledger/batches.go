package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RecordBatch stores a completed batch and marks its calls analyzed in one
// transaction.
func (s *Store) RecordBatch(ctx context.Context, batch Batch, callIDs []int64) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(batch.ID) == "" {
		return errors.New("batch id is empty")
	}
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}
	if batch.IncidentsJSON == "" {
		batch.IncidentsJSON = "[]"
	}
	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin batch tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batches (id, created_at, call_count, overall_severity, summary, incidents_json, alerted)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			batch.ID, formatTime(batch.CreatedAt), len(callIDs), batch.OverallSeverity, batch.Summary,
			batch.IncidentsJSON, batch.Alerted,
		); err != nil {
			return fmt.Errorf("insert batch: %w", err)
		}
		now := formatTime(time.Now())
		for _, id := range callIDs {
			if _, err := tx.ExecContext(ctx,
				"UPDATE calls SET status = ?, batch_id = ?, updated_at = ? WHERE id = ?",
				StatusAnalyzed, batch.ID, now, id,
			); err != nil {
				return fmt.Errorf("mark call %d analyzed: %w", id, err)
			}
		}
		return tx.Commit()
	})
}

// LastBatchTime returns when the most recent batch was recorded.
func (s *Store) LastBatchTime(ctx context.Context) (time.Time, bool, error) {
	var value string
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COALESCE(MAX(created_at), '') FROM batches").Scan(&value)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("last batch time: %w", err)
	}
	if value == "" {
		return time.Time{}, false, nil
	}
	return parseTime(value), true, nil
}

// ListBatches returns the most recent batches first.
func (s *Store) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, created_at, call_count, overall_severity, summary, incidents_json, alerted
         FROM batches ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		var created string
		if err := rows.Scan(&b.ID, &created, &b.CallCount, &b.OverallSeverity, &b.Summary, &b.IncidentsJSON, &b.Alerted); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.CreatedAt = parseTime(created)
		batches = append(batches, b)
	}
	return batches, rows.Err()
}
