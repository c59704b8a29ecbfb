package model

import "time"

// HistoryWriter records processed files.
type HistoryWriter interface {
	RecordFile(rec FileRecord, agg Aggregate) error
}

// HistoryQuerier provides read-only access to recorded sessions.
type HistoryQuerier interface {
	RecentSessions(limit int) ([]SessionInfo, error)
	SessionFiles(sessionID string) ([]FileRecord, error)
	SessionAggregates(sessionID string) ([]AggregateRow, error)
	FileCount() (int64, error)
}

// HistoryStore is the unified history contract.
type HistoryStore interface {
	HistoryWriter
	HistoryQuerier
	DeleteBefore(cutoff time.Time) (int64, error)
	Close() error
}
