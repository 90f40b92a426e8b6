package session

import (
	"log"
	"sort"
	"sync"

	"greyboard.app/internal/board"
)

// Presence owns the mapping from transport connection id to the client
// bound to it. Records never leave the directory by reference: lookups
// return copies and mutation goes through Update, so the heartbeat and the
// protocol handlers can touch the same client without racing.
type Presence struct {
	log *log.Logger

	mu      sync.RWMutex
	clients map[string]*presenceEntry
	seq     uint64
}

// seq preserves arrival order; Go maps iterate in random order and host
// re-election needs the earliest-joined candidate.
type presenceEntry struct {
	client board.Client
	seq    uint64
}

func NewPresence(logger *log.Logger) *Presence {
	return &Presence{
		log:     logger,
		clients: make(map[string]*presenceEntry),
	}
}

// Add binds connectionID to c. Rebinding an already-known connection is a
// legal reconnection path, not an error.
func (p *Presence) Add(connectionID string, c board.Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.clients[connectionID]; ok {
		p.log.Printf("assigning new client (%s) to connection (%s)", c.ID, connectionID)
	} else {
		p.log.Printf("adding new client (%s) for connection (%s)", c.ID, connectionID)
	}
	p.seq++
	p.clients[connectionID] = &presenceEntry{client: c, seq: p.seq}
}

// Remove unbinds connectionID; no-op if absent.
func (p *Presence) Remove(connectionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.clients[connectionID]; ok {
		delete(p.clients, connectionID)
		p.log.Printf("removing client (%s) from connection (%s)", e.client.ID, connectionID)
	}
}

// Resolve returns a copy of the client bound to connectionID.
func (p *Presence) Resolve(connectionID string) (board.Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.clients[connectionID]
	if !ok {
		return board.Client{}, false
	}
	return e.client, true
}

// Update mutates the client bound to connectionID in place and returns the
// updated copy. Silently does nothing if the connection has no client.
func (p *Presence) Update(connectionID string, fn func(*board.Client)) (board.Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.clients[connectionID]
	if !ok {
		return board.Client{}, false
	}
	fn(&e.client)
	return e.client, true
}

// ListByBoard returns copies of all clients bound to slug, in arrival
// order.
func (p *Presence) ListByBoard(slug string) []board.Client {
	p.mu.RLock()
	entries := make([]presenceEntry, 0, 8)
	for _, e := range p.clients {
		if e.client.Group == slug {
			entries = append(entries, *e)
		}
	}
	p.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]board.Client, len(entries))
	for i, e := range entries {
		out[i] = e.client
	}
	return out
}
