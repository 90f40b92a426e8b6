// Package session is the collaborative session engine: the in-memory
// registry of live boards, the presence directory binding transport
// connections to logical users, the join/leave/action protocol with its
// single-writer host election, and the pointer heartbeat broadcaster.
//
// Consistency is purely local: the registry map is guarded by its own
// mutex, every live board carries a mutex serializing join, disconnect,
// host election and journal mutation on that board, and the presence
// directory never hands out references to its own records. Nothing in this
// package blocks on the network while holding a lock; the only outbound
// call is the cold-board fetch, which runs before the board exists.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"greyboard.app/internal/board"
)

// Host is the connection currently authorized to persist the board.
// The zero value means the board is hostless.
type Host struct {
	ConnectionID string
	Assigned     bool
}

// LiveBoard is one active board session. The embedded board.Board is the
// durable shape loaded from the store; host, age and the event journal
// exist only while the session is live.
type LiveBoard struct {
	mu sync.Mutex

	board.Board

	host   Host
	age    int
	events []board.Event
}

func NewLiveBoard(b board.Board) *LiveBoard {
	return &LiveBoard{Board: b}
}

// Snapshot returns the journal and age under the board lock. The returned
// slice is a copy.
func (b *LiveBoard) Snapshot() (events []board.Event, age int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]board.Event(nil), b.events...), b.age
}

// CurrentHost returns the host reference under the board lock.
func (b *LiveBoard) CurrentHost() Host {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.host
}

// Transport is the connection multiplexer the engine fans out through.
// Sends are fire-and-forget; a slow or gone consumer is the transport's
// problem, never the engine's.
type Transport interface {
	Send(connectionID string, msg any)
	SendGroup(slug string, msg any)
	SendGroupExcept(slug, exceptConnectionID string, msg any)
	SendAll(msg any)
	AddToGroup(connectionID, slug string)
	// Close forcibly terminates the connection.
	Close(connectionID string)
}

// ActionRecord is the audit trail entry for one submitted board action,
// accepted or not. Rejected actions are dropped silently on the wire, so
// the journal is the only place they are observable.
type ActionRecord struct {
	At       time.Time       `json:"at"`
	Slug     string          `json:"slug"`
	By       string          `json:"by"`
	Accepted bool            `json:"accepted"`
	Action   json.RawMessage `json:"action,omitempty"`
}

// AuditSink receives one record per submitted action.
type AuditSink interface {
	RecordAction(ActionRecord)
}

// Index receives session lifecycle telemetry for the read-model index.
// All methods must be safe for concurrent use and must not block.
type Index interface {
	RecordBoardOpened(at time.Time, slug, name, author string)
	RecordBoardClosed(at time.Time, slug string)
	RecordJoin(at time.Time, slug, connectionID, userID, name string)
	RecordLeave(at time.Time, slug, connectionID, userID string)
	RecordSave(at time.Time, slug string, age int)
	RecordActionCount(at time.Time, slug, userID string, accepted bool)
}
