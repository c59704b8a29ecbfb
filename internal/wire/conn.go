package wire

import (
	"net"
	"time"
)

// Conn arms a fresh read or write deadline before every call, so a peer that
// stalls for longer than the timeout fails the blocked frame instead of
// holding its goroutine forever. A zero timeout disables that deadline.
type Conn struct {
	net.Conn
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewConn wraps c with per-call deadlines.
func NewConn(c net.Conn, readTimeout, writeTimeout time.Duration) *Conn {
	return &Conn{Conn: c, ReadTimeout: readTimeout, WriteTimeout: writeTimeout}
}

func (c *Conn) Read(p []byte) (int, error) {
	if c.ReadTimeout > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.ReadTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *Conn) Write(p []byte) (int, error) {
	if c.WriteTimeout > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
