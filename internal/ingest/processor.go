package ingest

import (
	"errors"

	"github.com/tinytelemetry/logtally/internal/aggregate"
	"github.com/tinytelemetry/logtally/internal/model"
)

// Status values recorded for a processed file.
const (
	StatusOK            = "ok"
	StatusInvalidFormat = "invalid format"
	StatusUnsupported   = "unsupported"
)

// FileResult is the outcome of one uploaded file: either an aggregate or the
// reason it could not be produced.
type FileResult struct {
	Name      string
	Format    model.Format
	Aggregate model.Aggregate
	Err       error
}

// Status classifies the result for summaries and history.
func (r FileResult) Status() string {
	var fe *FormatError
	switch {
	case r.Err == nil:
		return StatusOK
	case errors.As(r.Err, &fe):
		return StatusInvalidFormat
	case errors.Is(r.Err, ErrUnsupported):
		return StatusUnsupported
	default:
		return r.Err.Error()
	}
}

// Processor extracts and aggregates uploaded files for one request.
type Processor struct {
	params model.Params
}

// NewProcessor creates a processor bound to the request parameters.
func NewProcessor(params model.Params) *Processor {
	return &Processor{params: params}
}

// ProcessFile dispatches data to the extractor matching name and aggregates
// the records. Format and dispatch failures are returned inside the result.
func (p *Processor) ProcessFile(name string, data []byte) FileResult {
	result := FileResult{Name: name, Aggregate: model.Aggregate{}}

	extractor, err := ExtractorForName(name)
	if err != nil {
		result.Err = err
		return result
	}
	result.Format = extractor.Format()

	records, err := extractor.Extract(data)
	if err != nil {
		result.Err = err
		return result
	}

	result.Aggregate = aggregate.Run(records, p.params)
	return result
}
