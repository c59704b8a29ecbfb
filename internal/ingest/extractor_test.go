package ingest

import (
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/logtally/internal/model"
)

func collect(t *testing.T, ex Extractor, data string) []model.Record {
	t.Helper()
	seq, err := ex.Extract([]byte(data))
	require.NoError(t, err)
	return slices.Collect(seq)
}

func TestParseJSONRecords(t *testing.T) {
	t.Parallel()

	data := `[
	  {"timestamp":"2024-01-01 10:00:00","log_level":"INFO","user_id":5,"ip_address":"1.2.3.4"},
	  {"timestamp":"2024-01-01 10:05:00","log_level":"warning","user_id":"u7"},
	  {"level":"ERROR","ip":"5.6.7.8","user_id":{"nested":true}},
	  null
	]`
	ex, err := ExtractorFor(model.FormatJSON)
	require.NoError(t, err)
	got := collect(t, ex, data)

	require.Len(t, got, 3)
	assert.Equal(t, model.Record{Timestamp: "2024-01-01 10:00:00", Severity: "INFO", UserID: "5", IPAddress: "1.2.3.4"}, got[0])
	assert.Equal(t, model.Record{Timestamp: "2024-01-01 10:05:00", Severity: "WARN", UserID: "u7"}, got[1])
	assert.Equal(t, model.Record{Severity: "ERROR", IPAddress: "5.6.7.8"}, got[2])
}

func TestParseJSONRecordsInvalid(t *testing.T) {
	t.Parallel()

	for _, data := range []string{`not json`, `{"timestamp":"x"}`, `[{"a":1}] trailing`, `[1,2]`} {
		_, err := ParseJSONRecords([]byte(data))
		var fe *FormatError
		require.True(t, errors.As(err, &fe), "data %q: err = %v", data, err)
		assert.Equal(t, model.FormatJSON, fe.Format)
		assert.Contains(t, fe.Error(), "invalid JSON format")
	}
}

func TestParseXMLRecords(t *testing.T) {
	t.Parallel()

	data := `<?xml version="1.0"?>
<logs>
  <log>
    <timestamp>2024-01-01 10:00:00</timestamp>
    <log_level>ERROR</log_level>
    <user_id>3</user_id>
    <ip_address> 10.0.0.1 </ip_address>
  </log>
  <entry>
    <level>CRITICAL</level>
  </entry>
</logs>`
	ex, err := ExtractorFor(model.FormatXML)
	require.NoError(t, err)
	got := collect(t, ex, data)

	require.Len(t, got, 2)
	assert.Equal(t, model.Record{Timestamp: "2024-01-01 10:00:00", Severity: "ERROR", UserID: "3", IPAddress: "10.0.0.1"}, got[0])
	assert.Equal(t, model.Record{Severity: "CRITICAL"}, got[1])
}

func TestParseXMLRecordsMissingRoot(t *testing.T) {
	t.Parallel()

	for _, data := range []string{`<events><log/></events>`, `<logs><log>`, ``} {
		_, err := ParseXMLRecords([]byte(data))
		var fe *FormatError
		require.True(t, errors.As(err, &fe), "data %q: err = %v", data, err)
		assert.Equal(t, model.FormatXML, fe.Format)
	}
}

func TestParseTextRecords(t *testing.T) {
	t.Parallel()

	data := "2024-01-01 10:00:00 INFO UserID: 5 IP: 1.2.3.4\r\n" +
		"\n" +
		"2024-01-01 10:01:00 ERROR disk full\n" +
		"short WARN"
	got := slices.Collect(ParseTextRecords([]byte(data)))

	require.Len(t, got, 3)
	assert.Equal(t, model.Record{Timestamp: "2024-01-01 10:00:00", Severity: "INFO", UserID: "5", IPAddress: "1.2.3.4"}, got[0])
	assert.Equal(t, model.Record{Timestamp: "2024-01-01 10:01:00", Severity: "ERROR"}, got[1])
	assert.Equal(t, model.Record{Timestamp: "short WARN", Severity: "WARN"}, got[2])
}

func TestParseTextRecordsStopsEarly(t *testing.T) {
	t.Parallel()

	n := 0
	for range ParseTextRecords([]byte("a INFO\nb INFO\nc INFO\n")) {
		n++
		if n == 2 {
			break
		}
	}
	assert.Equal(t, 2, n)
}

func TestExtractorForName(t *testing.T) {
	t.Parallel()

	for name, want := range map[string]model.Format{
		"log_file.json": model.FormatJSON,
		"log_file.xml":  model.FormatXML,
		"log_file.txt":  model.FormatText,
		"server.log":    model.FormatText,
	} {
		ex, err := ExtractorForName(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, ex.Format(), name)
	}

	_, err := ExtractorForName("blob.bin")
	assert.ErrorIs(t, err, ErrUnsupported)
}
