package logging

import (
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

// LogstashWriter mirrors log output to a Logstash TCP input without ever
// blocking the standard logger. It keeps one connection open and silently
// drops writes while Logstash is unreachable, retrying on a cool-down.
type LogstashWriter struct {
	addr          string
	dialTimeout   time.Duration
	writeTimeout  time.Duration
	retryInterval time.Duration

	mu        sync.Mutex
	conn      net.Conn
	nextRetry time.Time
	closed    bool
}

// NewLogstashWriter returns a writer safe for concurrent use.
func NewLogstashWriter(addr string) (*LogstashWriter, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, errors.New("logstash: empty address")
	}
	return &LogstashWriter{
		addr:          addr,
		dialTimeout:   2 * time.Second,
		writeTimeout:  time.Second,
		retryInterval: 5 * time.Second,
	}, nil
}

// Write sends p to Logstash when a connection is available. It always
// reports success so a Logstash outage never surfaces as a logging error.
func (w *LogstashWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return len(p), nil
	}

	if w.conn == nil {
		if time.Now().Before(w.nextRetry) {
			return len(p), nil
		}
		conn, err := net.DialTimeout("tcp", w.addr, w.dialTimeout)
		if err != nil {
			w.nextRetry = time.Now().Add(w.retryInterval)
			return len(p), nil
		}
		w.conn = conn
	}

	_ = w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout))
	if _, err := w.conn.Write(p); err != nil {
		_ = w.conn.Close()
		w.conn = nil
		w.nextRetry = time.Now().Add(w.retryInterval)
	}
	return len(p), nil
}

func (w *LogstashWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}
