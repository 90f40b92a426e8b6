// Package indexdb keeps a read-model index of session activity in sqlite:
// board lifecycles, joins and leaves, saves, and accepted/rejected action
// counts. It is derived telemetry, not board persistence; losing it costs
// nothing but history.
package indexdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteIndex struct {
	db *sql.DB

	// ch is never closed; shutdown travels through it as a reqClose so
	// producers can never hit a send-on-closed-channel panic. done signals
	// that the writer goroutine has exited.
	ch   chan req
	done chan struct{}
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqBoardOpened reqKind = iota + 1
	reqBoardClosed
	reqJoin
	reqLeave
	reqSave
	reqAction
	reqFlush
	reqClose
)

type req struct {
	kind reqKind

	at       time.Time
	slug     string
	connID   string
	userID   string
	name     string
	author   string
	age      int
	accepted bool

	flushDone chan struct{}
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		// Buffered: a burst of joins or actions must never stall the hub.
		ch:   make(chan req, 16384),
		done: make(chan struct{}),
	}
	go s.loop()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads; NORMAL is a decent
	// durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS boards (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			slug TEXT NOT NULL,
			name TEXT NOT NULL,
			author TEXT NOT NULL,
			opened_at TEXT NOT NULL,
			closed_at TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_boards_slug ON boards(slug);`,
		`CREATE TABLE IF NOT EXISTS joins (
			at TEXT NOT NULL,
			slug TEXT NOT NULL,
			conn_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_joins_slug ON joins(slug);`,
		`CREATE TABLE IF NOT EXISTS leaves (
			at TEXT NOT NULL,
			slug TEXT NOT NULL,
			conn_id TEXT NOT NULL,
			user_id TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saves (
			at TEXT NOT NULL,
			slug TEXT NOT NULL,
			age INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			at TEXT NOT NULL,
			slug TEXT NOT NULL,
			user_id TEXT NOT NULL,
			accepted INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_slug ON actions(slug);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		// The writer is still draining, so this send cannot block for long.
		s.ch <- req{kind: reqClose}
		<-s.done
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) enqueue(r req) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		// Index full; drop rather than block the session protocol.
	}
}

func (s *SQLiteIndex) loop() {
	defer close(s.done)
	for r := range s.ch {
		if r.kind == reqClose {
			return
		}
		s.apply(r)
	}
}

func (s *SQLiteIndex) apply(r req) {
	at := r.at.UTC().Format(time.RFC3339Nano)
	switch r.kind {
	case reqFlush:
		close(r.flushDone)
	case reqBoardOpened:
		_, _ = s.db.Exec(`INSERT INTO boards(slug,name,author,opened_at) VALUES(?,?,?,?)`,
			r.slug, r.name, r.author, at)
	case reqBoardClosed:
		_, _ = s.db.Exec(`UPDATE boards SET closed_at=? WHERE slug=? AND closed_at IS NULL`,
			at, r.slug)
	case reqJoin:
		_, _ = s.db.Exec(`INSERT INTO joins(at,slug,conn_id,user_id,name) VALUES(?,?,?,?,?)`,
			at, r.slug, r.connID, r.userID, r.name)
	case reqLeave:
		_, _ = s.db.Exec(`INSERT INTO leaves(at,slug,conn_id,user_id) VALUES(?,?,?,?)`,
			at, r.slug, r.connID, r.userID)
	case reqSave:
		_, _ = s.db.Exec(`INSERT INTO saves(at,slug,age) VALUES(?,?,?)`,
			at, r.slug, r.age)
	case reqAction:
		acc := 0
		if r.accepted {
			acc = 1
		}
		_, _ = s.db.Exec(`INSERT INTO actions(at,slug,user_id,accepted) VALUES(?,?,?,?)`,
			at, r.slug, r.userID, acc)
	}
}

// The session.Index implementation. All methods enqueue and return.

func (s *SQLiteIndex) RecordBoardOpened(at time.Time, slug, name, author string) {
	s.enqueue(req{kind: reqBoardOpened, at: at, slug: slug, name: name, author: author})
}

func (s *SQLiteIndex) RecordBoardClosed(at time.Time, slug string) {
	s.enqueue(req{kind: reqBoardClosed, at: at, slug: slug})
}

func (s *SQLiteIndex) RecordJoin(at time.Time, slug, connectionID, userID, name string) {
	s.enqueue(req{kind: reqJoin, at: at, slug: slug, connID: connectionID, userID: userID, name: name})
}

func (s *SQLiteIndex) RecordLeave(at time.Time, slug, connectionID, userID string) {
	s.enqueue(req{kind: reqLeave, at: at, slug: slug, connID: connectionID, userID: userID})
}

func (s *SQLiteIndex) RecordSave(at time.Time, slug string, age int) {
	s.enqueue(req{kind: reqSave, at: at, slug: slug, age: age})
}

func (s *SQLiteIndex) RecordActionCount(at time.Time, slug, userID string, accepted bool) {
	s.enqueue(req{kind: reqAction, at: at, slug: slug, userID: userID, accepted: accepted})
}

// Flush blocks until every record enqueued so far has been applied. Test
// and stats-endpoint helper; the hub never calls it. Safe to call during or
// after Close, in which case it returns without waiting.
func (s *SQLiteIndex) Flush() {
	if s.closed.Load() {
		return
	}
	fd := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, flushDone: fd}:
	case <-s.done:
		return
	}
	select {
	case <-fd:
	case <-s.done:
	}
}
