package server

import (
	"context"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tinytelemetry/logtally/internal/artifacts"
	"github.com/tinytelemetry/logtally/internal/model"
	"github.com/tinytelemetry/logtally/internal/session"
	"github.com/tinytelemetry/logtally/internal/wire"
)

func TestNewServer_DefaultAddress(t *testing.T) {
	t.Parallel()

	s := NewServer("", nil)
	if got := s.Addr(); got != DefaultAddr {
		t.Fatalf("Addr() = %q, want %q", got, DefaultAddr)
	}
	if got := s.conf.MaxConnections; got != DefaultMaxConnections {
		t.Fatalf("MaxConnections = %d, want %d", got, DefaultMaxConnections)
	}
}

func TestNewServer_UsesConfiguredAddressAndLimits(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:5000", nil, ServerConfig{
		MaxConnections: 4,
		ReadTimeout:    time.Second,
		WriteTimeout:   2 * time.Second,
	})

	if got := s.Addr(); got != "127.0.0.1:5000" {
		t.Fatalf("Addr() = %q, want %q", got, "127.0.0.1:5000")
	}
	if got := s.conf.MaxConnections; got != 4 {
		t.Fatalf("MaxConnections = %d, want 4", got)
	}
	if got := s.conf.WriteTimeout; got != 2*time.Second {
		t.Fatalf("WriteTimeout = %v, want 2s", got)
	}
}

func TestStopBeforeStart(t *testing.T) {
	t.Parallel()

	if err := NewServer("", nil).Stop(); err != nil {
		t.Fatalf("Stop() before Start = %v", err)
	}
}

func startServer(t *testing.T, h Handler, conf ServerConfig) *Server {
	t.Helper()
	s := NewServer("127.0.0.1:0", h, conf)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { s.Stop() })
	return s
}

func TestServerEndToEnd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store := artifacts.NewStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "results"))
	s := startServer(t, session.NewHandler(store), ServerConfig{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second})

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	params := model.Params{GroupBy: model.GroupByLevel, Count: model.CountEntries}
	if err := session.WriteParams(conn, params); err != nil {
		t.Fatalf("WriteParams: %v", err)
	}
	logs := "2024-01-01 10:00:00 ERROR UserID: u1 IP: 10.0.0.1\n2024-01-01 10:00:05 ERROR UserID: u2 IP: 10.0.0.2\n"
	if err := wire.SendFileList(conn, []wire.File{{Name: "app.log", Payload: []byte(logs)}}); err != nil {
		t.Fatalf("SendFileList: %v", err)
	}

	summary, err := wire.RecvString(conn, 1<<20)
	if err != nil {
		t.Fatalf("RecvString: %v", err)
	}
	if !strings.Contains(summary, "level ERROR: 2 entries") {
		t.Fatalf("summary = %q", summary)
	}
	files, err := wire.RecvFileList(conn, wire.DefaultLimits())
	if err != nil {
		t.Fatalf("RecvFileList: %v", err)
	}
	if len(files) != 1 || files[0].Name != "app_result.txt" {
		t.Fatalf("results = %+v", files)
	}
	if got := string(files[0].Payload); got != "ERROR: 2\n" {
		t.Fatalf("artifact = %q", got)
	}
}

func TestStopClosesActiveConnections(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var returned atomic.Bool
	h := HandlerFunc(func(ctx context.Context, rw io.ReadWriter, remote string) error {
		close(started)
		_, err := wire.RecvUint32(rw)
		returned.Store(true)
		return err
	})

	s := NewServer("127.0.0.1:0", h)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn, err := net.Dial("tcp", s.Addr())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never started")
	}
	if got := s.ActiveConnections(); got != 1 {
		t.Fatalf("ActiveConnections() = %d, want 1", got)
	}

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return with an idle connection open")
	}
	if !returned.Load() {
		t.Fatal("handler did not return before Stop")
	}
	if got := s.ActiveConnections(); got != 0 {
		t.Fatalf("ActiveConnections() after Stop = %d, want 0", got)
	}
}

func TestMaxConnectionsBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var active, peak atomic.Int32
	release := make(chan struct{})
	h := HandlerFunc(func(ctx context.Context, rw io.ReadWriter, remote string) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		<-release
		active.Add(-1)
		return nil
	})
	s := startServer(t, h, ServerConfig{MaxConnections: 2})

	var conns []net.Conn
	for range 4 {
		c, err := net.Dial("tcp", s.Addr())
		if err != nil {
			t.Fatalf("Dial: %v", err)
		}
		conns = append(conns, c)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for active.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if got := peak.Load(); got != 2 {
		t.Fatalf("peak concurrency = %d, want 2", got)
	}
	close(release)
}
