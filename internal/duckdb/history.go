package duckdb

import (
	"fmt"
	"time"

	"github.com/tinytelemetry/logtally/internal/aggregate"
	"github.com/tinytelemetry/logtally/internal/model"
)

// RecordFile stores one processed file and its aggregate in a single transaction.
func (s *Store) RecordFile(rec FileRecord, agg model.Aggregate) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("duckdb: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `INSERT INTO processed_files
		(session_id, request_no, file_name, format, group_by, count_type, status, total, key_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID, rec.RequestNo, rec.FileName, string(rec.Format), string(rec.GroupBy),
		string(rec.Count), rec.Status, aggregate.Total(agg), len(agg), rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("duckdb: insert processed file: %w", err)
	}

	if len(agg) > 0 {
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO aggregate_counts
			(session_id, request_no, file_name, group_key, group_count, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("duckdb: prepare aggregate insert: %w", err)
		}
		defer stmt.Close()

		for _, key := range aggregate.Keys(agg) {
			if _, err := stmt.ExecContext(ctx, rec.SessionID, rec.RequestNo, rec.FileName, key, agg[key], rec.CreatedAt); err != nil {
				return fmt.Errorf("duckdb: insert aggregate row: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("duckdb: commit: %w", err)
	}
	return nil
}

// RecentSessions returns the most recently active sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]SessionInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id,
		       COUNT(DISTINCT request_no),
		       COUNT(*),
		       COALESCE(SUM(total), 0),
		       MIN(created_at),
		       MAX(created_at)
		FROM processed_files
		GROUP BY session_id
		ORDER BY MAX(created_at) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("duckdb: recent sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionInfo
	for rows.Next() {
		var si SessionInfo
		var total int64
		if err := rows.Scan(&si.SessionID, &si.Requests, &si.Files, &total, &si.StartedAt, &si.LastAt); err != nil {
			return nil, fmt.Errorf("duckdb: scan session: %w", err)
		}
		si.Total = int(total)
		out = append(out, si)
	}
	return out, rows.Err()
}

// SessionFiles returns every file recorded for a session in processing order.
func (s *Store) SessionFiles(sessionID string) ([]FileRecord, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, request_no, file_name, format, group_by, count_type, status, total, key_count, created_at
		FROM processed_files
		WHERE session_id = ?
		ORDER BY request_no, created_at`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("duckdb: session files: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var (
			fr                       FileRecord
			format, groupBy, countTy string
			total                    int64
		)
		if err := rows.Scan(&fr.SessionID, &fr.RequestNo, &fr.FileName, &format, &groupBy, &countTy,
			&fr.Status, &total, &fr.Keys, &fr.CreatedAt); err != nil {
			return nil, fmt.Errorf("duckdb: scan file: %w", err)
		}
		fr.Format = model.Format(format)
		fr.GroupBy = model.GroupBy(groupBy)
		fr.Count = model.CountMode(countTy)
		fr.Total = int(total)
		out = append(out, fr)
	}
	return out, rows.Err()
}

// SessionAggregates returns the recorded key/count rows of a session.
func (s *Store) SessionAggregates(sessionID string) ([]AggregateRow, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT request_no, file_name, group_key, group_count
		FROM aggregate_counts
		WHERE session_id = ?
		ORDER BY request_no, file_name, group_key`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("duckdb: session aggregates: %w", err)
	}
	defer rows.Close()

	var out []AggregateRow
	for rows.Next() {
		var row AggregateRow
		var count int64
		if err := rows.Scan(&row.RequestNo, &row.FileName, &row.Key, &count); err != nil {
			return nil, fmt.Errorf("duckdb: scan aggregate: %w", err)
		}
		row.Count = int(count)
		out = append(out, row)
	}
	return out, rows.Err()
}

// FileCount returns the number of recorded files.
func (s *Store) FileCount() (int64, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processed_files").Scan(&n); err != nil {
		return 0, fmt.Errorf("duckdb: file count: %w", err)
	}
	return n, nil
}

// DeleteBefore removes history rows created before cutoff and returns the
// number of processed-file rows deleted.
func (s *Store) DeleteBefore(cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := s.queryCtx()
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("duckdb: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM aggregate_counts WHERE created_at < ?", cutoff); err != nil {
		return 0, fmt.Errorf("duckdb: delete aggregates: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM processed_files WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("duckdb: delete files: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("duckdb: commit: %w", err)
	}
	return res.RowsAffected()
}
