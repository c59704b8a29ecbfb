package logparse

import (
	"strings"
	"unicode"
)

// Canonical severity levels.
const (
	Info     = "INFO"
	Warn     = "WARN"
	Error    = "ERROR"
	Critical = "CRITICAL"
)

// severityKeywords is the detection order for plain text lines.
var severityKeywords = []string{Info, Warn, Error, Critical}

// NormalizeSeverity maps severity spellings found in structured logs to the
// canonical levels. Levels outside the canonical set return "".
func NormalizeSeverity(severity string) string {
	normalized := strings.ToUpper(strings.TrimSpace(severity))

	switch normalized {
	case "INFO", "INFORMATION", "INF":
		return Info
	case "WARN", "WARNING", "WRNG", "WRN":
		return Warn
	case "ERROR", "ERR", "ERRO":
		return Error
	case "CRITICAL", "CRIT", "CRT", "FATAL", "FATL", "FTL", "PANIC":
		return Critical
	default:
		return ""
	}
}

// DetectSeverity returns the first of INFO, WARN, ERROR, CRITICAL that occurs
// in line as a case-sensitive substring, checked in that order.
func DetectSeverity(line string) string {
	for _, kw := range severityKeywords {
		if strings.Contains(line, kw) {
			return kw
		}
	}
	return ""
}

// LabelValue finds the first occurrence of label in line and returns the
// whitespace-delimited token that follows it.
func LabelValue(line, label string) string {
	idx := strings.Index(line, label)
	if idx < 0 {
		return ""
	}
	rest := strings.TrimLeftFunc(line[idx+len(label):], unicode.IsSpace)
	if end := strings.IndexFunc(rest, unicode.IsSpace); end >= 0 {
		rest = rest[:end]
	}
	return rest
}

// TimestampPrefix returns the fixed-width timestamp at the start of line.
// Lines shorter than the layout are returned whole.
func TimestampPrefix(line string, width int) string {
	if len(line) < width {
		return line
	}
	return line[:width]
}
