package duckdb

import "github.com/tinytelemetry/logtally/internal/model"

// Type aliases re-export model interfaces and types so consumers that only
// import duckdb can name them.
type (
	FileRecord     = model.FileRecord
	SessionInfo    = model.SessionInfo
	AggregateRow   = model.AggregateRow
	HistoryWriter  = model.HistoryWriter
	HistoryQuerier = model.HistoryQuerier
)

var _ model.HistoryStore = (*Store)(nil)
