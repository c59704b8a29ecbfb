package client

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/logtally/internal/artifacts"
	"github.com/tinytelemetry/logtally/internal/model"
	"github.com/tinytelemetry/logtally/internal/server"
	"github.com/tinytelemetry/logtally/internal/session"
	"github.com/tinytelemetry/logtally/internal/wire"
)

func startServer(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	store := artifacts.NewStore(filepath.Join(dir, "uploads"), filepath.Join(dir, "results"))
	srv := server.NewServer("127.0.0.1:0", session.NewHandler(store), server.ServerConfig{
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	})
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { srv.Stop() })
	return srv.Addr()
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	return p
}

func TestSendFilesRoundTrip(t *testing.T) {
	t.Parallel()

	addr := startServer(t)
	dir := t.TempDir()
	jsonPath := writeFile(t, dir, "log_file.json",
		`[{"user_id":"u1","ip_address":"10.0.0.1"},{"user_id":"u2","ip_address":"10.0.0.1"}]`)
	xmlPath := writeFile(t, dir, "log_file.xml",
		`<logs><log><user_id>u1</user_id><ip_address>10.0.0.3</ip_address></log></logs>`)

	c, err := Dial(context.Background(), Config{Addr: addr, BufferSize: 8})
	require.NoError(t, err)
	defer c.Close()

	resp, err := c.SendFiles(context.Background(),
		model.Params{GroupBy: model.GroupByIP, Count: model.CountEntries},
		[]string{jsonPath, xmlPath})
	require.NoError(t, err)
	assert.Contains(t, resp.Summary, "ip 10.0.0.1: 2 entries")
	assert.Contains(t, resp.Summary, "ip 10.0.0.3: 1 entries")
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "log_file_result.json", resp.Results[0].Name)
	assert.Equal(t, "log_file_result.xml", resp.Results[1].Name)

	// Same connection, second request.
	resp, err = c.Send(context.Background(),
		model.Params{GroupBy: model.GroupByUser, Count: model.CountEntries},
		[]wire.File{{Name: "more.txt", Payload: []byte("INFO UserID: u7 IP: 1.1.1.1\n")}})
	require.NoError(t, err)
	assert.Contains(t, resp.Summary, "user u7: 1 entries")

	outDir := filepath.Join(t.TempDir(), "out")
	paths, err := SaveResults(outDir, resp.Results)
	require.NoError(t, err)
	require.Len(t, paths, 1)
	got, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "u7: 1\n", string(got))
}

func TestSendFilesChecksPathsFirst(t *testing.T) {
	t.Parallel()

	addr := startServer(t)
	c, err := Dial(context.Background(), Config{Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	p := model.Params{GroupBy: model.GroupByIP, Count: model.CountEntries}
	_, err = c.SendFiles(context.Background(), p, nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = c.SendFiles(context.Background(), p, []string{filepath.Join(t.TempDir(), "missing.txt")})
	assert.ErrorIs(t, err, os.ErrNotExist)

	// Nothing was written, so the connection is still usable.
	resp, err := c.Send(context.Background(), p, []wire.File{{Name: "a.txt", Payload: []byte("IP: 9.9.9.9\n")}})
	require.NoError(t, err)
	assert.Contains(t, resp.Summary, "ip 9.9.9.9: 1 entries")
}

func TestSendReceivesSummaryLargerThanControlStrings(t *testing.T) {
	t.Parallel()

	addr := startServer(t)
	c, err := Dial(context.Background(), Config{Addr: addr})
	require.NoError(t, err)
	defer c.Close()

	var logs strings.Builder
	for i := range 3000 {
		fmt.Fprintf(&logs, "INFO IP: 10.%d.%d.%d\n", i/65536, (i/256)%256, i%256)
	}
	resp, err := c.Send(context.Background(),
		model.Params{GroupBy: model.GroupByIP, Count: model.CountEntries},
		[]wire.File{{Name: "many.txt", Payload: []byte(logs.String())}})
	require.NoError(t, err)
	assert.Greater(t, len(resp.Summary), int(wire.DefaultLimits().MaxStringBytes))
	assert.Contains(t, resp.Summary, "ip 10.0.11.183: 1 entries")
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 3000, strings.Count(string(resp.Results[0].Payload), "\n"))
}

func TestDialFailsWithoutRetry(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	_, err = Dial(context.Background(), Config{Addr: addr, DialTimeout: time.Second})
	assert.Error(t, err)
}

func TestDialRetriesUntilListening(t *testing.T) {
	t.Parallel()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	l.Close()

	accepted := make(chan struct{})
	go func() {
		defer close(accepted)
		time.Sleep(300 * time.Millisecond)
		l2, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer l2.Close()
		conn, err := l2.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c, err := Dial(context.Background(), Config{Addr: addr, RetryFor: 10 * time.Second})
	require.NoError(t, err)
	c.Close()
	<-accepted
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	c := Config{}.withDefaults()
	assert.Equal(t, "127.0.0.1:12345", c.Addr)
	assert.Equal(t, model.DefaultBufferSize, c.BufferSize)
	assert.Equal(t, wire.DefaultLimits(), c.Limits)

	custom := wire.DefaultLimits()
	custom.MaxSummaryBytes = 0
	c = Config{Limits: custom}.withDefaults()
	assert.Equal(t, wire.DefaultLimits().MaxSummaryBytes, c.Limits.MaxSummaryBytes)
}
