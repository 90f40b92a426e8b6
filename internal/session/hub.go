package session

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"greyboard.app/internal/board"
	"greyboard.app/internal/protocol"
)

// Hub drives the session protocol. One instance serves every board; all
// per-board state lives behind the registry and the presence directory.
type Hub struct {
	log       *log.Logger
	transport Transport
	registry  *Registry
	presence  *Presence

	audit AuditSink // optional
	index Index     // optional
}

func NewHub(transport Transport, registry *Registry, presence *Presence, logger *log.Logger) *Hub {
	return &Hub{
		log:       logger,
		transport: transport,
		registry:  registry,
		presence:  presence,
	}
}

// WithAudit attaches the action audit journal.
func (h *Hub) WithAudit(a AuditSink) *Hub {
	h.audit = a
	return h
}

// WithIndex attaches the session telemetry index.
func (h *Hub) WithIndex(i Index) *Hub {
	h.index = i
	return h
}

// JoinContext carries the transport-level facts about a joining connection
// the engine cannot learn on its own.
type JoinContext struct {
	ConnectionID string
	// Origin is the request's Origin header; empty when the request carried
	// none, in which case the caller substitutes the configured default.
	Origin string
	// AuthToken is the caller's session cookie, forwarded to the store.
	AuthToken string
}

// Connected is called by the transport when a connection is established,
// before any Join.
func (h *Hub) Connected(connectionID string) {
	h.log.Printf("new connection (%s)", connectionID)
}

// Join binds the connection to the board behind slug, loading the board
// from the remote store if this is the first connection to it. Any failure
// terminates the connection: a client without session state cannot proceed.
func (h *Hub) Join(ctx context.Context, jc JoinContext, user board.Client, slug string) {
	defer h.recoverHandler("join", jc.ConnectionID, true)

	b := h.registry.Get(slug)
	coldWinner := false
	if b == nil {
		// Cold board: fetch without holding any lock. The session only
		// becomes visible after a successful fetch, so an aborted join
		// leaves nothing behind.
		fetched, err := h.registry.FetchRemote(ctx, jc.Origin, slug, jc.AuthToken)
		if err != nil {
			h.log.Printf("error while joining client (%s): %v", jc.ConnectionID, err)
			h.transport.Close(jc.ConnectionID)
			return
		}
		fetched.host = Host{ConnectionID: jc.ConnectionID, Assigned: true}
		b = h.registry.Add(fetched)
		coldWinner = b == fetched
		if coldWinner {
			// First writer on a fresh session: host granted with nobody to
			// revoke.
			h.transport.Send(jc.ConnectionID, protocol.UserAllowedToSave(true))
			if h.index != nil {
				author := ""
				if b.Author != nil {
					author = b.Author.ID
				}
				h.index.RecordBoardOpened(time.Now(), slug, b.Name, author)
			}
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !coldWinner {
		// Warm join, or a cold join that lost the insert race to a
		// concurrent one: apply the takeover rule against the canonical
		// session.
		h.grantHostIfEligible(b, user.ID, jc.ConnectionID)
	}

	client := board.Client{
		User:         user.User,
		ConnectionID: jc.ConnectionID,
		Group:        slug,
		PointerX:     user.PointerX,
		PointerY:     user.PointerY,
		PointerType:  user.PointerType,
	}

	// Evict stale tabs: any client on this board with the same logical user
	// id is superseded by the new connection.
	for _, c := range h.presence.ListByBoard(slug) {
		if c.ID != user.ID {
			continue
		}
		h.transport.Send(c.ConnectionID, protocol.ReassignUserToClient())
		h.transport.SendGroup(slug, protocol.ClientDisconnected(c))
		h.presence.Remove(c.ConnectionID)
		// The host role follows the user: an evicted tab that held it hands
		// it to the superseding connection, never to a connection that is no
		// longer on the board.
		if b.host.Assigned && b.host.ConnectionID == c.ConnectionID {
			b.host = Host{ConnectionID: jc.ConnectionID, Assigned: true}
			h.transport.Send(jc.ConnectionID, protocol.UserAllowedToSave(true))
		}
	}

	h.transport.AddToGroup(jc.ConnectionID, slug)
	h.presence.Add(jc.ConnectionID, client)

	events := append([]board.Event(nil), b.events...)
	h.transport.Send(jc.ConnectionID, protocol.ConnectionReady(h.presence.ListByBoard(slug), events, b.age))
	h.transport.SendGroupExcept(slug, jc.ConnectionID, protocol.ClientConnected(client))

	if h.index != nil {
		h.index.RecordJoin(time.Now(), slug, jc.ConnectionID, client.ID, client.Name)
	}
	h.log.Printf("user (%s, %s) joined board (%s)", jc.ConnectionID, client.ID, slug)
}

// grantHostIfEligible applies the warm-join host rule: the author always
// takes over, anyone with an Editor-or-higher grant takes over only a
// hostless board. Caller holds b.mu.
func (h *Hub) grantHostIfEligible(b *LiveBoard, userID, connectionID string) {
	grant, ok := b.AccessFor(userID)
	eligible := b.IsAuthor(userID) || (!b.host.Assigned && ok && grant >= board.LevelEditor)
	if !eligible {
		return
	}
	if b.host.Assigned {
		h.transport.Send(b.host.ConnectionID, protocol.UserAllowedToSave(false))
	}
	b.host = Host{ConnectionID: connectionID, Assigned: true}
	h.transport.Send(connectionID, protocol.UserAllowedToSave(true))
}

// Disconnected is called by the transport when a connection drops. The last
// client leaving garbage-collects the board; a departing host triggers
// re-election.
func (h *Hub) Disconnected(connectionID string, reason error) {
	defer h.recoverHandler("disconnect", connectionID, false)

	c, ok := h.presence.Resolve(connectionID)
	if !ok {
		h.log.Printf("connection lost (%s, %v)", connectionID, reason)
		return
	}

	b := h.registry.Get(c.Group)
	if b != nil {
		b.mu.Lock()
		h.transport.SendGroup(c.Group, protocol.ClientDisconnected(c))
		h.presence.Remove(connectionID)

		remaining := h.presence.ListByBoard(c.Group)
		if len(remaining) == 0 {
			h.registry.Remove(c.Group)
			if h.index != nil {
				h.index.RecordBoardClosed(time.Now(), c.Group)
			}
		} else if b.host.Assigned && b.host.ConnectionID == connectionID {
			h.electHost(b, remaining)
		}
		b.mu.Unlock()
	} else {
		// Board already gone; still drop the client so the directory never
		// outlives the session.
		h.presence.Remove(connectionID)
	}

	if h.index != nil {
		h.index.RecordLeave(time.Now(), c.Group, connectionID, c.ID)
	}
	h.log.Printf("connection lost (%s, %v)", connectionID, reason)
}

// electHost revokes the departing host and promotes the earliest-joined
// remaining client holding an Editor-or-higher grant. With no qualifying
// candidate the board goes hostless until one (re)joins or accesses change.
// Caller holds b.mu.
func (h *Hub) electHost(b *LiveBoard, candidates []board.Client) {
	if b.host.Assigned {
		h.transport.Send(b.host.ConnectionID, protocol.UserAllowedToSave(false))
	}
	for _, c := range candidates {
		if lvl, ok := b.AccessFor(c.ID); ok && lvl >= board.LevelEditor {
			b.host = Host{ConnectionID: c.ConnectionID, Assigned: true}
			h.transport.Send(c.ConnectionID, protocol.UserAllowedToSave(true))
			return
		}
	}
	b.host = Host{}
}

// SetPointerPosition updates the caller's pointer in place. No broadcast:
// the heartbeat picks it up on the next tick.
func (h *Hub) SetPointerPosition(connectionID string, x, y float64, pt board.PointerType) {
	defer h.recoverHandler("set pointer position", connectionID, false)

	h.presence.Update(connectionID, func(c *board.Client) {
		c.PointerX = x
		c.PointerY = y
		c.PointerType = pt
	})
}

// SetAfk flips the caller's afk flag and tells the board about it.
func (h *Hub) SetAfk(connectionID string, afk bool) {
	defer h.recoverHandler("set afk", connectionID, false)

	c, ok := h.presence.Update(connectionID, func(c *board.Client) {
		c.Afk = afk
	})
	if !ok {
		return
	}
	h.transport.SendGroup(c.Group, protocol.ClientAfkUpdated(c))
}

// BoardActionPerformed appends the action to the board journal and fans it
// out to the whole group, sender included, when the caller may edit the
// board. Unauthorized submissions are dropped without a reply; the audit
// journal is the only trace they leave.
func (h *Hub) BoardActionPerformed(connectionID string, action json.RawMessage) {
	defer h.recoverHandler("board action", connectionID, false)

	c, ok := h.presence.Resolve(connectionID)
	if !ok {
		return
	}
	b := h.registry.Get(c.Group)
	if b == nil {
		return
	}

	b.mu.Lock()
	accepted := b.IsPublic || b.CanEdit(c.ID)
	if accepted {
		ev := board.Event{By: c.ID, Action: action}
		b.events = append(b.events, ev)
		h.transport.SendGroup(c.Group, protocol.PerformBoardAction(ev))
	} else {
		h.log.Printf("dropped unauthorized action on board (%s) by user (%s)", c.Group, c.ID)
	}
	b.mu.Unlock()

	if h.audit != nil {
		h.audit.RecordAction(ActionRecord{
			At:       time.Now(),
			Slug:     c.Group,
			By:       c.ID,
			Accepted: accepted,
			Action:   action,
		})
	}
	if h.index != nil {
		h.index.RecordActionCount(time.Now(), c.Group, c.ID, accepted)
	}
}

// AccessesModified replaces the board's access list wholesale and notifies
// everyone but the caller. A host whose grant just dropped below Editor
// loses the host role on the spot.
func (h *Hub) AccessesModified(connectionID string, accesses []board.Access) {
	defer h.recoverHandler("accesses modified", connectionID, false)

	c, ok := h.presence.Resolve(connectionID)
	if !ok {
		return
	}
	b := h.registry.Get(c.Group)
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	h.log.Printf("board accesses modified (%s)", b.Slug)
	b.Accesses = append([]board.Access(nil), accesses...)
	h.transport.SendGroupExcept(b.Slug, connectionID, protocol.BoardAccessesModified(b.Accesses))

	if !b.host.Assigned {
		return
	}
	hostClient, ok := h.presence.Resolve(b.host.ConnectionID)
	if !ok {
		return
	}
	if lvl, ok := b.AccessFor(hostClient.ID); ok && lvl < board.LevelEditor {
		h.electHost(b, h.presence.ListByBoard(b.Slug))
	}
}

// BoardSaved acknowledges a durable write performed by the caller: the
// journal restarts empty and the generation counter advances so clients can
// spot stale local state.
func (h *Hub) BoardSaved(connectionID string) {
	defer h.recoverHandler("board saved", connectionID, false)

	c, ok := h.presence.Resolve(connectionID)
	if !ok {
		return
	}
	b := h.registry.Get(c.Group)
	if b == nil {
		return
	}

	b.mu.Lock()
	b.events = nil
	b.age++
	age := b.age
	b.mu.Unlock()

	h.transport.SendGroup(c.Group, protocol.BoardAged(age))
	if h.index != nil {
		h.index.RecordSave(time.Now(), c.Group, age)
	}
}

// SetBoardName renames the board. Any joined client may rename; the store
// UI is expected to gate this, the engine mirrors the caller as-is.
func (h *Hub) SetBoardName(connectionID, name string) {
	defer h.recoverHandler("set board name", connectionID, false)

	c, ok := h.presence.Resolve(connectionID)
	if !ok {
		return
	}
	b := h.registry.Get(c.Group)
	if b == nil {
		return
	}

	b.mu.Lock()
	b.Name = name
	b.mu.Unlock()

	h.transport.SendGroup(c.Group, protocol.BoardNameChanged(name))
}

// CloseBoard tears the session down for everyone, regardless of role.
func (h *Hub) CloseBoard(connectionID string) {
	defer h.recoverHandler("close board", connectionID, false)

	c, ok := h.presence.Resolve(connectionID)
	if !ok {
		return
	}
	b := h.registry.Get(c.Group)
	if b == nil {
		return
	}

	h.log.Printf("board closed (%s)", b.Slug)
	h.transport.SendGroupExcept(b.Slug, connectionID, protocol.BoardClosed())
	h.registry.Remove(b.Slug)
	if h.index != nil {
		h.index.RecordBoardClosed(time.Now(), b.Slug)
	}
}

// recoverHandler is the handler boundary: an unexpected panic is logged and
// must not take down the process. Join additionally terminates the
// connection, since the client cannot proceed without session state.
func (h *Hub) recoverHandler(op, connectionID string, terminate bool) {
	if r := recover(); r != nil {
		h.log.Printf("failed to handle %s (%s): %v", op, connectionID, r)
		if terminate {
			h.transport.Close(connectionID)
		}
	}
}
