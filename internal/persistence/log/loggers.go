// Package log persists the board-action audit trail as hourly-rotated,
// zstd-compressed JSONL. Rejected actions never surface on the wire, so
// this journal is where they stay observable.
package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"

	"greyboard.app/internal/session"
)

// ActionLogger writes one JSONL line per submitted board action, accepted
// or rejected. Files live under <dataDir>/audit and rotate hourly, keyed
// by the record's own timestamp.
type ActionLogger struct {
	dir string

	mu   sync.Mutex
	hour string
	f    *os.File
	enc  *zstd.Encoder
	buf  *bufio.Writer
}

func NewActionLogger(dataDir string) *ActionLogger {
	return &ActionLogger{dir: filepath.Join(dataDir, "audit")}
}

// RecordAction implements session.AuditSink. Write failures are dropped;
// the audit trail is best-effort and must never stall the session protocol.
func (l *ActionLogger) RecordAction(rec session.ActionRecord) {
	_ = l.write(rec)
}

func (l *ActionLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *ActionLogger) write(rec session.ActionRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	hour := rec.At.UTC().Format("2006-01-02-15")
	if hour != l.hour {
		if err := l.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := l.buf.Write(b); err != nil {
		return err
	}
	if err := l.buf.WriteByte('\n'); err != nil {
		return err
	}
	// Flush per line so the journal stays readable after a crash.
	return l.buf.Flush()
}

func (l *ActionLogger) rotateLocked(hour string) error {
	if err := l.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(l.dir, "actions-"+hour+".jsonl.zst")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	l.f = f
	l.enc = enc
	l.buf = bufio.NewWriterSize(enc, 128*1024)
	l.hour = hour
	return nil
}

func (l *ActionLogger) closeLocked() error {
	var encErr error
	if l.buf != nil {
		_ = l.buf.Flush()
	}
	if l.enc != nil {
		encErr = l.enc.Close()
		l.enc = nil
	}
	if l.f != nil {
		_ = l.f.Close()
		l.f = nil
	}
	l.buf = nil
	return encErr
}
