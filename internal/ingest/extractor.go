package ingest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/tinytelemetry/logtally/internal/logparse"
	"github.com/tinytelemetry/logtally/internal/model"
)

const (
	userLabel = "UserID:"
	ipLabel   = "IP:"
)

// ErrUnsupported is returned for files whose extension maps to no extractor.
var ErrUnsupported = errors.New("unsupported file type")

// FormatError reports a document that could not be parsed as a whole.
// It is fatal for that one file only.
type FormatError struct {
	Format model.Format
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid %s format: %v", strings.ToUpper(string(e.Format)), e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// ParseJSONRecords reads a JSON array of objects. The whole document is
// validated before the first record is yielded.
func ParseJSONRecords(data []byte) (iter.Seq[model.Record], error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var entries []map[string]interface{}
	if err := dec.Decode(&entries); err != nil {
		return nil, &FormatError{Format: model.FormatJSON, Err: err}
	}
	if dec.More() {
		return nil, &FormatError{Format: model.FormatJSON, Err: errors.New("trailing data after array")}
	}

	return func(yield func(model.Record) bool) {
		for _, raw := range entries {
			if raw == nil {
				continue
			}
			record := model.Record{
				Timestamp: ExtractStringField(raw, "timestamp", "time"),
				Severity:  logparse.NormalizeSeverity(ExtractStringField(raw, "log_level", "level", "severity")),
				UserID:    ExtractStringField(raw, "user_id", "userId", "user"),
				IPAddress: ExtractStringField(raw, "ip_address", "ip"),
			}
			if !yield(record) {
				return
			}
		}
	}, nil
}

type xmlLogs struct {
	XMLName xml.Name   `xml:"logs"`
	Entries []xmlEntry `xml:",any"`
}

type xmlEntry struct {
	Timestamp string `xml:"timestamp"`
	LogLevel  string `xml:"log_level"`
	Level     string `xml:"level"`
	UserID    string `xml:"user_id"`
	IPAddress string `xml:"ip_address"`
	IP        string `xml:"ip"`
}

// ParseXMLRecords reads a <logs> root with one child element per entry.
func ParseXMLRecords(data []byte) (iter.Seq[model.Record], error) {
	var doc xmlLogs
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, &FormatError{Format: model.FormatXML, Err: err}
	}

	return func(yield func(model.Record) bool) {
		for _, e := range doc.Entries {
			record := model.Record{
				Timestamp: strings.TrimSpace(e.Timestamp),
				Severity:  logparse.NormalizeSeverity(firstNonEmpty(e.LogLevel, e.Level)),
				UserID:    strings.TrimSpace(e.UserID),
				IPAddress: strings.TrimSpace(firstNonEmpty(e.IPAddress, e.IP)),
			}
			if !yield(record) {
				return
			}
		}
	}, nil
}

// ParseTextRecords reads one record per line. It never fails.
func ParseTextRecords(data []byte) iter.Seq[model.Record] {
	return func(yield func(model.Record) bool) {
		scanner := bufio.NewScanner(bytes.NewReader(data))
		scanner.Buffer(make([]byte, 0, 64*1024), len(data)+1)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if line == "" {
				continue
			}
			if !yield(ParseTextLine(line)) {
				return
			}
		}
	}
}

// ParseTextLine extracts a record from one plain text line.
func ParseTextLine(line string) model.Record {
	return model.Record{
		Timestamp: logparse.TimestampPrefix(line, len(model.TimestampLayout)),
		Severity:  logparse.DetectSeverity(line),
		UserID:    logparse.LabelValue(line, userLabel),
		IPAddress: logparse.LabelValue(line, ipLabel),
	}
}

func stringifyJSONValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%v", v)
	case bool:
		return fmt.Sprintf("%v", v)
	default:
		// Objects and arrays are not usable as group keys.
		return ""
	}
}

// ExtractStringField returns the first non-empty scalar value found among the given keys.
func ExtractStringField(raw map[string]interface{}, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if str := stringifyJSONValue(v); str != "" {
				return str
			}
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
