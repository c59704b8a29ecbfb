package ingest

import (
	"fmt"
	"iter"

	"github.com/tinytelemetry/logtally/internal/model"
)

// Extractor turns the raw bytes of one uploaded file into canonical records.
type Extractor interface {
	Format() model.Format
	Extract(data []byte) (iter.Seq[model.Record], error)
}

type jsonExtractor struct{}

func (jsonExtractor) Format() model.Format { return model.FormatJSON }
func (jsonExtractor) Extract(data []byte) (iter.Seq[model.Record], error) {
	return ParseJSONRecords(data)
}

type xmlExtractor struct{}

func (xmlExtractor) Format() model.Format { return model.FormatXML }
func (xmlExtractor) Extract(data []byte) (iter.Seq[model.Record], error) {
	return ParseXMLRecords(data)
}

type textExtractor struct{}

func (textExtractor) Format() model.Format { return model.FormatText }
func (textExtractor) Extract(data []byte) (iter.Seq[model.Record], error) {
	return ParseTextRecords(data), nil
}

// ExtractorFor returns the extractor for a format.
func ExtractorFor(format model.Format) (Extractor, error) {
	switch format {
	case model.FormatJSON:
		return jsonExtractor{}, nil
	case model.FormatXML:
		return xmlExtractor{}, nil
	case model.FormatText:
		return textExtractor{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, format)
	}
}

// ExtractorForName picks the extractor from the file name's extension.
func ExtractorForName(name string) (Extractor, error) {
	format, ok := model.FormatFromName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	return ExtractorFor(format)
}
