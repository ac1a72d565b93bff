package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const callColumns = `id, source_id, audio_file, talkgroup, received_at, duration_seconds, status,
    transcript, COALESCE(batch_id, ''), attempts, last_error, created_at, updated_at`

// Seen reports whether a call with sourceID has been recorded.
func (s *Store) Seen(ctx context.Context, sourceID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM calls WHERE source_id = ?", sourceID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("lookup call %s: %w", sourceID, err)
	}
	return count > 0, nil
}

// RecordDownloaded inserts a freshly downloaded call. It returns ErrDuplicate
// when the source ID or audio file is already present.
func (s *Store) RecordDownloaded(ctx context.Context, call Call) (*Call, error) {
	if strings.TrimSpace(call.SourceID) == "" || strings.TrimSpace(call.AudioFile) == "" {
		return nil, errors.New("call requires source id and audio file")
	}
	now := time.Now().UTC()
	if call.ReceivedAt.IsZero() {
		call.ReceivedAt = now
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO calls (source_id, audio_file, talkgroup, received_at, duration_seconds, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT DO NOTHING`,
		call.SourceID, call.AudioFile, call.Talkgroup, formatTime(call.ReceivedAt), call.DurationSeconds,
		StatusDownloaded, formatTime(now), formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("insert call %s: %w", call.SourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrDuplicate
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read call id: %w", err)
	}
	call.ID = id
	call.Status = StatusDownloaded
	call.CreatedAt = now
	call.UpdatedAt = now
	return &call, nil
}

// MarkConverted stores the transcript for the call whose audio file is
// audioFile. Files that arrived without a ledger entry are recorded on the fly.
func (s *Store) MarkConverted(ctx context.Context, audioFile, transcript string) error {
	now := formatTime(time.Now())
	_, err := s.execWithRetry(ctx,
		`INSERT INTO calls (source_id, audio_file, received_at, status, transcript, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(audio_file) DO UPDATE SET
             status = excluded.status,
             transcript = excluded.transcript,
             last_error = '',
             updated_at = excluded.updated_at`,
		sourceIDFromFile(audioFile), audioFile, now, StatusConverted, transcript, now, now,
	)
	if err != nil {
		return fmt.Errorf("mark %s converted: %w", audioFile, err)
	}
	return nil
}

// RecordFailure increments the attempt count for audioFile and stores the
// error. When terminal is true the call is marked failed. It returns the
// updated attempt count.
func (s *Store) RecordFailure(ctx context.Context, audioFile, message string, terminal bool) (int, error) {
	ctx = ensureContext(ctx)
	now := formatTime(time.Now())
	status := StatusDownloaded
	if terminal {
		status = StatusFailed
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO calls (source_id, audio_file, received_at, status, attempts, last_error, created_at, updated_at)
         VALUES (?, ?, ?, ?, 1, ?, ?, ?)
         ON CONFLICT(audio_file) DO UPDATE SET
             status = excluded.status,
             attempts = calls.attempts + 1,
             last_error = excluded.last_error,
             updated_at = excluded.updated_at`,
		sourceIDFromFile(audioFile), audioFile, now, status, message, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("record failure for %s: %w", audioFile, err)
	}
	var attempts int
	if err := s.db.QueryRowContext(ctx, "SELECT attempts FROM calls WHERE audio_file = ?", audioFile).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("read attempts for %s: %w", audioFile, err)
	}
	return attempts, nil
}

// MarkFailed parks the call for audioFile as failed without counting another
// attempt.
func (s *Store) MarkFailed(ctx context.Context, audioFile string) error {
	res, err := s.execWithRetry(ctx,
		"UPDATE calls SET status = ?, updated_at = ? WHERE audio_file = ?",
		StatusFailed, formatTime(time.Now()), audioFile)
	if err != nil {
		return fmt.Errorf("mark %s failed: %w", audioFile, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("mark %s failed: %w", audioFile, sql.ErrNoRows)
	}
	return nil
}

// PendingTranscripts returns converted calls not yet analyzed, oldest first.
// A limit of zero or less returns all of them.
func (s *Store) PendingTranscripts(ctx context.Context, limit int) ([]Call, error) {
	query := "SELECT " + callColumns + " FROM calls WHERE status = ? ORDER BY received_at, id"
	args := []any{StatusConverted}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryCalls(ctx, query, args...)
}

// CountByStatus returns the number of calls in status.
func (s *Store) CountByStatus(ctx context.Context, status Status) (int, error) {
	var count int
	err := s.db.QueryRowContext(ensureContext(ctx),
		"SELECT COUNT(1) FROM calls WHERE status = ?", status).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count %s calls: %w", status, err)
	}
	return count, nil
}

// StatusCounts returns call counts grouped by status.
func (s *Store) StatusCounts(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), "SELECT status, COUNT(1) FROM calls GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}
	defer rows.Close()
	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[Status(status)] = count
	}
	return counts, rows.Err()
}

// ListCalls returns the most recent calls first.
func (s *Store) ListCalls(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.queryCalls(ctx,
		"SELECT "+callColumns+" FROM calls ORDER BY received_at DESC, id DESC LIMIT ?", limit)
}

func (s *Store) queryCalls(ctx context.Context, query string, args ...any) ([]Call, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	var calls []Call
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

func scanCall(row interface{ Scan(...any) error }) (Call, error) {
	var (
		c                         Call
		status                    string
		received, created, update string
	)
	if err := row.Scan(&c.ID, &c.SourceID, &c.AudioFile, &c.Talkgroup, &received, &c.DurationSeconds,
		&status, &c.Transcript, &c.BatchID, &c.Attempts, &c.LastError, &created, &update); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, err
		}
		return Call{}, fmt.Errorf("scan call: %w", err)
	}
	c.Status = Status(status)
	c.ReceivedAt = parseTime(received)
	c.CreatedAt = parseTime(created)
	c.UpdatedAt = parseTime(update)
	return c, nil
}

func sourceIDFromFile(audioFile string) string {
	name := audioFile
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		name = name[:idx]
	}
	return "file:" + name
}
