package model

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is the canonical shape of one log entry, whatever format it came
// from. An empty field means the source entry did not carry it.
type Record struct {
	Timestamp string // "2006-01-02 15:04:05" when well formed
	Severity  string // INFO/WARN/ERROR/CRITICAL
	UserID    string
	IPAddress string
}

// Aggregate maps a group key to its count. Keys are unique; order is not meaningful.
type Aggregate map[string]int

// Format is the encoding of an uploaded log file and of its result artifact.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatText Format = "txt"
)

// FormatFromName picks the format from a file extension. Files without an
// extension and .log files are read as text; anything else is unsupported.
func FormatFromName(name string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json":
		return FormatJSON, true
	case ".xml":
		return FormatXML, true
	case ".txt", ".log", "":
		return FormatText, true
	default:
		return "", false
	}
}

// Ext returns the file extension used for artifacts in this format.
func (f Format) Ext() string {
	return "." + string(f)
}

// FileRecord is one processed file as recorded in the history store.
type FileRecord struct {
	SessionID string
	RequestNo int
	FileName  string
	Format    Format
	GroupBy   GroupBy
	Count     CountMode
	Status    string // "ok", "invalid format", "unsupported", ...
	Total     int
	Keys      int
	CreatedAt time.Time
}

// SessionInfo summarises one recorded session.
type SessionInfo struct {
	SessionID string
	Requests  int
	Files     int
	Total     int
	StartedAt time.Time
	LastAt    time.Time
}

// AggregateRow is one key/count pair of a recorded aggregate.
type AggregateRow struct {
	RequestNo int
	FileName  string
	Key       string
	Count     int
}
