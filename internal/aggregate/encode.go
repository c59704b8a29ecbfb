package aggregate

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/tinytelemetry/logtally/internal/model"
)

// SummaryLines renders agg the way it appears in the session summary, one
// "<label> <key>: <n> entries" line per key in key order.
func SummaryLines(agg model.Aggregate, p model.Params) []string {
	unit := "entries"
	if p.Count.Distinct() {
		unit = "unique users"
	}
	lines := make([]string, 0, len(agg))
	for _, k := range Keys(agg) {
		lines = append(lines, fmt.Sprintf("%s %s: %d %s", p.GroupBy, k, agg[k], unit))
	}
	return lines
}

// EncodeJSON renders agg as a {"key": count} object.
func EncodeJSON(agg model.Aggregate) ([]byte, error) {
	if agg == nil {
		agg = model.Aggregate{}
	}
	b, err := json.MarshalIndent(agg, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

type xmlResults struct {
	XMLName xml.Name   `xml:"results"`
	GroupBy string     `xml:"group_by,attr"`
	Count   string     `xml:"count_type,attr"`
	Entries []xmlEntry `xml:"entry"`
}

type xmlEntry struct {
	Key   string `xml:"key,attr"`
	Count int    `xml:"count,attr"`
}

// EncodeXML renders agg as <results><entry key=".." count=".."/></results>.
func EncodeXML(agg model.Aggregate, p model.Params) ([]byte, error) {
	doc := xmlResults{GroupBy: string(p.GroupBy), Count: string(p.Count)}
	for _, k := range Keys(agg) {
		doc.Entries = append(doc.Entries, xmlEntry{Key: k, Count: agg[k]})
	}
	b, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.Write(b)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// EncodeText renders agg as "key: count" lines.
func EncodeText(agg model.Aggregate) []byte {
	var buf bytes.Buffer
	for _, k := range Keys(agg) {
		fmt.Fprintf(&buf, "%s: %d\n", k, agg[k])
	}
	return buf.Bytes()
}

// Encode renders agg in the encoding that matches the source format.
func Encode(format model.Format, agg model.Aggregate, p model.Params) ([]byte, error) {
	switch format {
	case model.FormatJSON:
		return EncodeJSON(agg)
	case model.FormatXML:
		return EncodeXML(agg, p)
	default:
		return EncodeText(agg), nil
	}
}

// ArtifactName derives the result file name from the source base name,
// e.g. "log_file.json" -> "log_file_result.json".
func ArtifactName(source string, format model.Format) string {
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return stem + "_result" + format.Ext()
}
