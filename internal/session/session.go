// Package session runs the server side of one logtally connection: read the
// request parameters and files, aggregate each file, and answer with a
// summary and the result artifacts. A connection may carry any number of
// requests; a clean close between requests ends the session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/logtally/internal/aggregate"
	"github.com/tinytelemetry/logtally/internal/artifacts"
	"github.com/tinytelemetry/logtally/internal/ingest"
	"github.com/tinytelemetry/logtally/internal/model"
	"github.com/tinytelemetry/logtally/internal/wire"
)

// Handler holds what every session shares: the artifact store, the optional
// history writer and the frame limits.
type Handler struct {
	store   *artifacts.Store
	history model.HistoryWriter
	limits  wire.Limits
	logger  *zerolog.Logger
}

// Option customises a Handler.
type Option func(*Handler)

// WithHistory records every processed file through w.
func WithHistory(w model.HistoryWriter) Option {
	return func(h *Handler) { h.history = w }
}

// WithLimits overrides the default frame limits.
func WithLimits(l wire.Limits) Option {
	return func(h *Handler) { h.limits = l }
}

// WithLogger sends session logs to l instead of the global logger.
func WithLogger(l zerolog.Logger) Option {
	return func(h *Handler) { h.logger = &l }
}

// NewHandler creates a handler writing uploads and results through store.
func NewHandler(store *artifacts.Store, opts ...Option) *Handler {
	h := &Handler{store: store, limits: wire.DefaultLimits()}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Session is the state of one connection.
type Session struct {
	ID       string
	Remote   string
	state    State
	requests int

	h      *Handler
	rw     io.ReadWriter
	logger zerolog.Logger
}

// NewSession binds a new session to rw. remote is used for logging only.
func (h *Handler) NewSession(rw io.ReadWriter, remote string) *Session {
	id := ulid.Make().String()
	base := log.Logger
	if h.logger != nil {
		base = *h.logger
	}
	return &Session{
		ID:     id,
		Remote: remote,
		state:  AwaitParams,
		h:      h,
		rw:     rw,
		logger: base.With().Str("session", id).Str("remote", remote).Logger(),
	}
}

// Serve runs a session over rw until the peer closes or a transport error
// occurs. A clean close between requests returns nil.
func (h *Handler) Serve(ctx context.Context, rw io.ReadWriter, remote string) error {
	return h.NewSession(rw, remote).Run(ctx)
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Requests returns the number of requests answered so far.
func (s *Session) Requests() int { return s.requests }

// Run loops over requests until the session reaches Done or Failed.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info().Msg("session started")
	for {
		if err := ctx.Err(); err != nil {
			s.state = Failed
			return err
		}
		err := s.serveRequest()
		if s.state == Done {
			s.logger.Info().Int("requests", s.requests).Msg("session closed")
			return nil
		}
		if err != nil {
			brokeIn := s.state
			s.state = Failed
			s.logger.Warn().Err(err).
				Str("state", brokeIn.String()).
				Int("requests", s.requests).
				Msg("session aborted")
			return err
		}
	}
}

// batch collects the per-file output of one request.
type batch struct {
	params    model.Params
	proc      *ingest.Processor
	log       zerolog.Logger
	summary   strings.Builder
	results   []wire.File
	uploads   map[string]bool
	artifacts map[string]bool
}

func (s *Session) serveRequest() error {
	s.state = AwaitParams
	params, paramErr, err := readParams(s.rw, s.h.limits)
	if err != nil {
		if errors.Is(err, io.EOF) && !errors.Is(err, wire.ErrShortRead) {
			s.state = Done
			return nil
		}
		return err
	}
	count, err := wire.RecvCount(s.rw, s.h.limits)
	if err != nil {
		return shortAfterStart(err)
	}
	s.requests++
	reqLog := s.logger.With().Int("request", s.requests).Logger()

	if paramErr != nil {
		reqLog.Warn().Err(paramErr).Uint32("files", count).Msg("request rejected")
		s.state = ReceivingFiles
		if err := discardFiles(s.rw, count, s.h.limits); err != nil {
			return err
		}
		s.state = SendingResults
		return s.reply("error: "+paramErr.Error()+"\n", nil)
	}

	reqLog.Info().
		Str("group_by", string(params.GroupBy)).
		Str("count_type", string(params.Count)).
		Bool("date_range", params.Range != nil).
		Uint32("files", count).
		Msg("request received")

	b := &batch{
		params:    params,
		proc:      ingest.NewProcessor(params),
		log:       reqLog,
		uploads:   make(map[string]bool),
		artifacts: make(map[string]bool),
	}
	for i := uint32(0); i < count; i++ {
		s.state = ReceivingFiles
		f, err := wire.RecvFile(s.rw, s.h.limits)
		if err != nil {
			return fmt.Errorf("file %d of %d: %w", i+1, count, shortAfterStart(err))
		}
		s.state = Aggregating
		s.processFile(b, f)
	}
	if count == 0 {
		b.summary.WriteString("no files received\n")
	}

	s.state = SendingResults
	if err := s.reply(b.summary.String(), b.results); err != nil {
		return err
	}
	reqLog.Info().Int("results", len(b.results)).Msg("results sent")
	return nil
}

func (s *Session) reply(summary string, results []wire.File) error {
	summary = truncateSummary(summary, s.h.limits.MaxSummaryBytes)
	if err := wire.SendString(s.rw, summary); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	if err := wire.SendFileList(s.rw, results); err != nil {
		return fmt.Errorf("send results: %w", err)
	}
	return nil
}

const truncatedNote = "... summary truncated\n"

// truncateSummary cuts summary at a line boundary so it fits in max bytes.
func truncateSummary(summary string, max uint32) string {
	if max == 0 || uint64(len(summary)) <= uint64(max) {
		return summary
	}
	if uint64(max) < uint64(len(truncatedNote)) {
		return summary[:max]
	}
	cut := summary[:int(max)-len(truncatedNote)]
	if i := strings.LastIndexByte(cut, '\n'); i >= 0 {
		cut = cut[:i+1]
	} else {
		cut = ""
	}
	return cut + truncatedNote
}

// processFile saves, aggregates and records one file as soon as it has
// arrived, so a later transport failure leaves earlier files on disk.
func (s *Session) processFile(b *batch, f wire.File) {
	fileLog := b.log.With().Str("file", f.Name).Logger()

	name, err := artifacts.SanitizeName(f.Name)
	if err != nil {
		fileLog.Warn().Err(err).Msg("rejected file name")
		fmt.Fprintf(&b.summary, "file %q: invalid file name\n", f.Name)
		return
	}
	if name != f.Name {
		fileLog.Warn().Str("sanitized", name).Msg("directory components stripped from file name")
	}
	if unique := b.uniqueName(name); unique != name {
		fileLog.Warn().Str("stored_as", unique).Msg("duplicate file name in request")
		fmt.Fprintf(&b.summary, "file %s: duplicate name, stored as %s\n", name, unique)
		name = unique
	}

	if _, err := s.h.store.SaveUpload(name, f.Payload); err != nil {
		fileLog.Error().Err(err).Msg("failed to store upload")
		fmt.Fprintf(&b.summary, "file %s: could not store upload\n", name)
	}

	res := b.proc.ProcessFile(name, f.Payload)
	status := res.Status()
	fmt.Fprintf(&b.summary, "file %s:\n", name)

	switch status {
	case ingest.StatusOK:
		for _, line := range aggregate.SummaryLines(res.Aggregate, b.params) {
			b.summary.WriteString(line)
			b.summary.WriteByte('\n')
		}
		if artifact, ok := s.buildArtifact(fileLog, &b.summary, name, res, b.params); ok {
			b.results = append(b.results, artifact)
		}
	case ingest.StatusUnsupported:
		fileLog.Info().Msg("unsupported file type")
		b.summary.WriteString("unsupported file type\n")
	case ingest.StatusInvalidFormat:
		fileLog.Info().Err(res.Err).Msg("invalid format")
		fmt.Fprintf(&b.summary, "invalid format (%v)\n", res.Err)
	default:
		fileLog.Error().Err(res.Err).Msg("processing failed")
		fmt.Fprintf(&b.summary, "error: %v\n", res.Err)
	}

	s.record(fileLog, name, res, b.params, status)
}

// uniqueName returns name, or name with a numeric suffix when an earlier
// file of the request already used it or would share its artifact.
func (b *batch) uniqueName(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	format, supported := model.FormatFromName(name)

	taken := func(candidate string) bool {
		if b.uploads[candidate] {
			return true
		}
		return supported && b.artifacts[aggregate.ArtifactName(candidate, format)]
	}

	candidate := name
	for i := 2; taken(candidate); i++ {
		candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
	}
	b.uploads[candidate] = true
	if supported {
		b.artifacts[aggregate.ArtifactName(candidate, format)] = true
	}
	return candidate
}

// buildArtifact encodes the aggregate and persists it. A persistence failure
// is noted in the summary but the artifact is still returned from memory.
func (s *Session) buildArtifact(fileLog zerolog.Logger, summary *strings.Builder, name string, res ingest.FileResult, p model.Params) (wire.File, bool) {
	data, err := aggregate.Encode(res.Format, res.Aggregate, p)
	if err != nil {
		fileLog.Error().Err(err).Msg("failed to encode result")
		fmt.Fprintf(summary, "error: could not encode result: %v\n", err)
		return wire.File{}, false
	}
	artifactName := aggregate.ArtifactName(name, res.Format)
	if _, err := s.h.store.SaveResult(artifactName, data); err != nil {
		fileLog.Error().Err(err).Str("artifact", artifactName).Msg("failed to write result")
		fmt.Fprintf(summary, "warning: result %s not saved on server\n", artifactName)
	}
	return wire.File{Name: artifactName, Payload: data}, true
}

func (s *Session) record(fileLog zerolog.Logger, name string, res ingest.FileResult, p model.Params, status string) {
	if s.h.history == nil {
		return
	}
	rec := model.FileRecord{
		SessionID: s.ID,
		RequestNo: s.requests,
		FileName:  name,
		Format:    res.Format,
		GroupBy:   p.GroupBy,
		Count:     p.Count,
		Status:    status,
		Total:     aggregate.Total(res.Aggregate),
		Keys:      len(res.Aggregate),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.h.history.RecordFile(rec, res.Aggregate); err != nil {
		fileLog.Warn().Err(err).Msg("failed to record history")
	}
}
