// Package client implements the uploading side of the logtally protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/rs/zerolog/log"

	"github.com/tinytelemetry/logtally/internal/artifacts"
	"github.com/tinytelemetry/logtally/internal/model"
	"github.com/tinytelemetry/logtally/internal/session"
	"github.com/tinytelemetry/logtally/internal/wire"
)

var ErrNoFiles = errors.New("client: no files to send")

// Config holds connection settings for a Client.
type Config struct {
	Addr         string
	DialTimeout  time.Duration
	RetryFor     time.Duration // total time spent retrying the dial; 0 tries once
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
	Limits       wire.Limits
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = fmt.Sprintf("127.0.0.1:%d", model.DefaultPort)
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 5 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = model.DefaultBufferSize
	}
	if c.Limits == (wire.Limits{}) {
		c.Limits = wire.DefaultLimits()
	}
	if c.Limits.MaxSummaryBytes == 0 {
		c.Limits.MaxSummaryBytes = wire.DefaultLimits().MaxSummaryBytes
	}
	return c
}

// Client is one open connection to a logtally server.
type Client struct {
	conf Config
	conn *wire.Conn
}

// Response is the server's answer to one request.
type Response struct {
	Summary string
	Results []wire.File
}

// Dial connects to the server, retrying with exponential backoff for up to
// conf.RetryFor.
func Dial(ctx context.Context, conf Config) (*Client, error) {
	conf = conf.withDefaults()
	dialer := net.Dialer{Timeout: conf.DialTimeout}

	var conn net.Conn
	operation := func() error {
		c, err := dialer.DialContext(ctx, "tcp", conf.Addr)
		if err != nil {
			log.Debug().Err(err).Str("addr", conf.Addr).Msg("dial attempt failed")
			return err
		}
		conn = c
		return nil
	}

	var b backoff.BackOff
	if conf.RetryFor > 0 {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 200 * time.Millisecond
		eb.MaxInterval = 5 * time.Second
		eb.MaxElapsedTime = conf.RetryFor
		b = eb
	} else {
		b = &backoff.StopBackOff{}
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", conf.Addr, err)
	}
	return &Client{conf: conf, conn: wire.NewConn(conn, conf.ReadTimeout, conf.WriteTimeout)}, nil
}

// Close closes the connection. The server ends the session cleanly.
func (c *Client) Close() error {
	return c.conn.Close()
}

type upload struct {
	path string
	name string
	size int64
}

// SendFiles uploads the files at paths under their base names and waits for
// the response. Cancelling ctx closes the connection. Every path is checked
// before anything is written so a missing file never leaves a half-sent
// request on the wire.
func (c *Client) SendFiles(ctx context.Context, params model.Params, paths []string) (*Response, error) {
	if len(paths) == 0 {
		return nil, ErrNoFiles
	}
	uploads := make([]upload, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("client: %w", err)
		}
		if !info.Mode().IsRegular() {
			return nil, fmt.Errorf("client: %s is not a regular file", p)
		}
		uploads = append(uploads, upload{path: p, name: filepath.Base(p), size: info.Size()})
	}

	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	if err := session.WriteParams(c.conn, params); err != nil {
		return nil, fmt.Errorf("client: send params: %w", err)
	}
	if err := wire.SendUint32(c.conn, uint32(len(uploads))); err != nil {
		return nil, fmt.Errorf("client: send count: %w", err)
	}
	for _, u := range uploads {
		if err := c.sendFile(u); err != nil {
			return nil, err
		}
		log.Debug().Str("file", u.name).Int64("bytes", u.size).Msg("file sent")
	}
	return c.receive()
}

func (c *Client) sendFile(u upload) error {
	f, err := os.Open(u.path)
	if err != nil {
		return fmt.Errorf("client: %w", err)
	}
	defer f.Close()
	if err := wire.SendFileFrom(c.conn, u.name, uint64(u.size), f, c.conf.BufferSize); err != nil {
		return fmt.Errorf("client: send %s: %w", u.name, err)
	}
	return nil
}

// Send uploads in-memory files and waits for the response.
func (c *Client) Send(ctx context.Context, params model.Params, files []wire.File) (*Response, error) {
	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	if err := session.WriteParams(c.conn, params); err != nil {
		return nil, fmt.Errorf("client: send params: %w", err)
	}
	if err := wire.SendFileList(c.conn, files); err != nil {
		return nil, fmt.Errorf("client: send files: %w", err)
	}
	return c.receive()
}

func (c *Client) receive() (*Response, error) {
	summary, err := wire.RecvString(c.conn, c.conf.Limits.MaxSummaryBytes)
	if err != nil {
		return nil, fmt.Errorf("client: receive summary: %w", err)
	}
	results, err := wire.RecvFileList(c.conn, c.conf.Limits)
	if err != nil {
		return nil, fmt.Errorf("client: receive results: %w", err)
	}
	return &Response{Summary: summary, Results: results}, nil
}

// SaveResults writes each result file into dir and returns the written paths.
func SaveResults(dir string, results []wire.File) ([]string, error) {
	store := artifacts.NewStore("", dir)
	paths := make([]string, 0, len(results))
	for _, r := range results {
		p, err := store.SaveResult(r.Name, r.Payload)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
