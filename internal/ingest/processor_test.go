package ingest

import (
	"testing"

	"github.com/tinytelemetry/logtally/internal/model"
)

func TestProcessFile_TextGroupByLevel(t *testing.T) {
	t.Parallel()

	p := NewProcessor(model.Params{GroupBy: model.GroupByLevel, Count: model.CountEntries})
	res := p.ProcessFile("log_file.txt", []byte("2024-01-01 10:00:00 INFO UserID: 5 IP: 1.2.3.4\n"))

	if res.Err != nil {
		t.Fatalf("ProcessFile error: %v", res.Err)
	}
	if res.Status() != StatusOK {
		t.Fatalf("Status() = %q, want %q", res.Status(), StatusOK)
	}
	if res.Format != model.FormatText {
		t.Fatalf("Format = %q, want txt", res.Format)
	}
	if len(res.Aggregate) != 1 || res.Aggregate["INFO"] != 1 {
		t.Fatalf("Aggregate = %v, want map[INFO:1]", res.Aggregate)
	}
}

func TestProcessFile_Unsupported(t *testing.T) {
	t.Parallel()

	p := NewProcessor(model.Params{GroupBy: model.GroupByIP})
	res := p.ProcessFile("blob.bin", []byte{0, 1, 2})
	if res.Status() != StatusUnsupported {
		t.Fatalf("Status() = %q, want %q", res.Status(), StatusUnsupported)
	}
	if len(res.Aggregate) != 0 {
		t.Fatalf("Aggregate = %v, want empty", res.Aggregate)
	}
}

func TestProcessFile_InvalidJSON(t *testing.T) {
	t.Parallel()

	p := NewProcessor(model.Params{GroupBy: model.GroupByIP})
	res := p.ProcessFile("log_file.json", []byte("{broken"))
	if res.Status() != StatusInvalidFormat {
		t.Fatalf("Status() = %q, want %q", res.Status(), StatusInvalidFormat)
	}
	if res.Format != model.FormatJSON {
		t.Fatalf("Format = %q, want json", res.Format)
	}
	if len(res.Aggregate) != 0 {
		t.Fatalf("Aggregate = %v, want empty", res.Aggregate)
	}
}

func TestProcessFile_DateRangeAndDistinct(t *testing.T) {
	t.Parallel()

	rng, err := model.ParseDateRange("2024-01-01 00:00:00", "2024-01-01 23:59:59")
	if err != nil {
		t.Fatalf("ParseDateRange: %v", err)
	}
	data := `[
	  {"timestamp":"2024-01-01 10:00:00","user_id":1,"ip_address":"10.0.0.1"},
	  {"timestamp":"2024-01-01 11:00:00","user_id":2,"ip_address":"10.0.0.1"},
	  {"timestamp":"2024-01-01 12:00:00","user_id":2,"ip_address":"10.0.0.1"},
	  {"timestamp":"2024-01-05 12:00:00","user_id":3,"ip_address":"10.0.0.1"},
	  {"timestamp":"2024-01-01 12:00:00","ip_address":"10.0.0.2"}
	]`
	p := NewProcessor(model.Params{GroupBy: model.GroupByIP, Count: model.CountUsers, Range: rng})
	res := p.ProcessFile("log_file.json", []byte(data))
	if res.Err != nil {
		t.Fatalf("ProcessFile error: %v", res.Err)
	}
	if len(res.Aggregate) != 1 || res.Aggregate["10.0.0.1"] != 2 {
		t.Fatalf("Aggregate = %v, want map[10.0.0.1:2]", res.Aggregate)
	}
}
