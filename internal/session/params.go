package session

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/tinytelemetry/logtally/internal/model"
	"github.com/tinytelemetry/logtally/internal/wire"
)

// ErrInvalidParams marks a request whose control parameters were rejected.
// The session answers with a summary-only response and keeps going.
var ErrInvalidParams = errors.New("session: invalid parameters")

// readParams reads the control frames: group_by, count_type, the "y"/"n"
// range flag and, when the flag is set, the start and end timestamps.
// The returned error is a transport error; interpretation failures are
// reported through paramErr.
func readParams(r io.Reader, limits wire.Limits) (params model.Params, paramErr error, err error) {
	groupBy, err := wire.RecvString(r, limits.MaxStringBytes)
	if err != nil {
		return params, nil, err
	}
	countType, err := wire.RecvString(r, limits.MaxStringBytes)
	if err != nil {
		return params, nil, shortAfterStart(err)
	}
	flag, err := wire.RecvString(r, limits.MaxStringBytes)
	if err != nil {
		return params, nil, shortAfterStart(err)
	}

	var start, end string
	hasRange := strings.EqualFold(strings.TrimSpace(flag), "y")
	if hasRange {
		if start, err = wire.RecvString(r, limits.MaxStringBytes); err != nil {
			return params, nil, shortAfterStart(err)
		}
		if end, err = wire.RecvString(r, limits.MaxStringBytes); err != nil {
			return params, nil, shortAfterStart(err)
		}
	}

	var errs []error
	if params.GroupBy, err = model.ParseGroupBy(groupBy); err != nil {
		errs = append(errs, err)
	}
	if params.Count, err = model.ParseCountMode(countType); err != nil {
		errs = append(errs, err)
	}
	if hasRange {
		if params.Range, err = model.ParseDateRange(start, end); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return params, fmt.Errorf("%w: %w", ErrInvalidParams, errors.Join(errs...)), nil
	}
	return params, nil, nil
}

// discardFiles reads and drops count file frames so the stream stays in
// sync after a rejected request.
func discardFiles(r io.Reader, count uint32, limits wire.Limits) error {
	for i := uint32(0); i < count; i++ {
		if _, err := wire.RecvFile(r, limits); err != nil {
			return shortAfterStart(err)
		}
	}
	return nil
}

// shortAfterStart turns a clean close into a truncation error once a request
// has begun.
func shortAfterStart(err error) error {
	if errors.Is(err, io.EOF) && !errors.Is(err, wire.ErrShortRead) {
		return fmt.Errorf("%w: connection closed mid-request: %w", wire.ErrShortRead, io.ErrUnexpectedEOF)
	}
	return err
}

// WriteParams is the client half of readParams.
func WriteParams(w io.Writer, p model.Params) error {
	if err := wire.SendString(w, string(p.GroupBy)); err != nil {
		return err
	}
	if err := wire.SendString(w, string(p.Count)); err != nil {
		return err
	}
	if p.Range == nil {
		return wire.SendString(w, "n")
	}
	if err := wire.SendString(w, "y"); err != nil {
		return err
	}
	if err := wire.SendString(w, p.Range.Start.Format(model.TimestampLayout)); err != nil {
		return err
	}
	return wire.SendString(w, p.Range.End.Format(model.TimestampLayout))
}
