package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

type connection struct {
	id   string
	sock *websocket.Conn

	out  chan []byte
	once sync.Once
	done chan struct{}
}

func newConnection(id string, sock *websocket.Conn) *connection {
	return &connection{
		id:   id,
		sock: sock,
		out:  make(chan []byte, outQueue),
		done: make(chan struct{}),
	}
}

// enqueue hands b to the writer goroutine. A full queue drops the message;
// the hub never blocks on a slow consumer.
func (c *connection) enqueue(b []byte) {
	select {
	case <-c.done:
	case c.out <- b:
	default:
	}
}

func (c *connection) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.sock.Close()
	})
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.TextMessage, b); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.shutdown()
				return
			}
		}
	}
}

// registry tracks live connections and their group membership.
type registry struct {
	mu     sync.RWMutex
	conns  map[string]*connection
	groups map[string]map[string]struct{}
}

func newRegistry() *registry {
	return &registry{
		conns:  make(map[string]*connection),
		groups: make(map[string]map[string]struct{}),
	}
}

func (r *registry) add(c *connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.id] = c
}

func (r *registry) remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	for slug, members := range r.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(r.groups, slug)
		}
	}
}

func (r *registry) joinGroup(id, slug string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; !ok {
		return
	}
	members, ok := r.groups[slug]
	if !ok {
		members = make(map[string]struct{})
		r.groups[slug] = members
	}
	members[id] = struct{}{}
}

func (r *registry) get(id string) *connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conns[id]
}

// members returns the connections in slug's group, minus except (pass ""
// to keep everyone).
func (r *registry) members(slug, except string) []*connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*connection, 0, len(r.groups[slug]))
	for id := range r.groups[slug] {
		if id == except {
			continue
		}
		if c, ok := r.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (r *registry) all() []*connection {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*connection, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

// The session.Transport implementation. Marshal failures are programming
// errors in message construction and are logged, not surfaced.

func (s *Server) Send(connectionID string, msg any) {
	c := s.reg.get(connectionID)
	if c == nil {
		return
	}
	if b, ok := s.marshal(msg); ok {
		c.enqueue(b)
	}
}

func (s *Server) SendGroup(slug string, msg any) {
	b, ok := s.marshal(msg)
	if !ok {
		return
	}
	for _, c := range s.reg.members(slug, "") {
		c.enqueue(b)
	}
}

func (s *Server) SendGroupExcept(slug, exceptConnectionID string, msg any) {
	b, ok := s.marshal(msg)
	if !ok {
		return
	}
	for _, c := range s.reg.members(slug, exceptConnectionID) {
		c.enqueue(b)
	}
}

func (s *Server) SendAll(msg any) {
	b, ok := s.marshal(msg)
	if !ok {
		return
	}
	for _, c := range s.reg.all() {
		c.enqueue(b)
	}
}

func (s *Server) AddToGroup(connectionID, slug string) {
	s.reg.joinGroup(connectionID, slug)
}

func (s *Server) Close(connectionID string) {
	if c := s.reg.get(connectionID); c != nil {
		c.shutdown()
	}
}

func (s *Server) marshal(msg any) ([]byte, bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		s.log.Printf("marshal outbound message: %v", err)
		return nil, false
	}
	return b, true
}
