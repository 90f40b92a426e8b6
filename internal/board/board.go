// Package board holds the data model shared by the session engine, the
// remote-store client and the wire protocol. Everything here is plain data;
// locking and lifecycle live in the session package.
package board

import "encoding/json"

// Level is the access level granted to a user on a board.
type Level int

const (
	LevelViewer Level = iota
	LevelEditor
	LevelAdmin
)

// PointerType mirrors the pointer device reported by the client.
type PointerType int

const (
	PointerMouse PointerType = iota
	PointerPen
	PointerTouch
)

// User is the logical identity behind one or more connections.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Access is one grant record. The live list on a board is authoritative;
// the durable store's copy is only read once at load time.
type Access struct {
	ID    string `json:"id"`
	Board string `json:"board"`
	User  *User  `json:"user"`
	Level Level  `json:"type"`
}

// Event is one accepted board action. Action is carried verbatim; the
// engine never looks inside it.
type Event struct {
	By     string          `json:"by"`
	Action json.RawMessage `json:"action"`
}

// Client is the per-connection presence record for a joined user.
type Client struct {
	User
	ConnectionID string      `json:"connectionId"`
	Group        string      `json:"group"`
	PointerX     float64     `json:"pointerX"`
	PointerY     float64     `json:"pointerY"`
	PointerType  PointerType `json:"pointerType"`
	Afk          bool        `json:"afk"`
}

// Board is the durable shape of a board as served by the remote store.
type Board struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Slug     string   `json:"slug"`
	Author   *User    `json:"author"`
	Accesses []Access `json:"accesses"`
	IsPublic bool     `json:"isPublic"`
}

// AccessFor returns the access level granted to userID, if any. The author
// does not need a grant record; callers check authorship separately.
func (b *Board) AccessFor(userID string) (Level, bool) {
	for _, a := range b.Accesses {
		if a.User != nil && a.User.ID == userID {
			return a.Level, true
		}
	}
	return LevelViewer, false
}

// IsAuthor reports whether userID owns the board.
func (b *Board) IsAuthor(userID string) bool {
	return b.Author != nil && b.Author.ID == userID
}

// CanEdit reports whether userID is the author or holds an
// Editor-or-higher grant. Public boards are the caller's concern.
func (b *Board) CanEdit(userID string) bool {
	if b.IsAuthor(userID) {
		return true
	}
	lvl, ok := b.AccessFor(userID)
	return ok && lvl >= LevelEditor
}
