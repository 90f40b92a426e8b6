// Package ws is the websocket transport: it upgrades connections, assigns
// them ids, routes inbound messages to the session hub and implements the
// group fan-out the hub broadcasts through.
package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"greyboard.app/internal/protocol"
	"greyboard.app/internal/session"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	// outQueue bounds per-connection backlog; a consumer that cannot keep
	// up loses messages rather than stalling the hub.
	outQueue = 64
)

// sessionCookie must match what the browser client sends and what the
// store expects forwarded.
const sessionCookie = "jwtToken"

type Options struct {
	// OriginAllowed gates the websocket handshake.
	OriginAllowed func(origin string) bool
	// DefaultOrigin is used for store fetches when the request has no
	// Origin header.
	DefaultOrigin string
}

type Server struct {
	log *log.Logger
	hub *session.Hub
	opt Options

	upgrader websocket.Upgrader

	reg *registry
}

func NewServer(opt Options, logger *log.Logger) *Server {
	s := &Server{
		log: logger,
		opt: opt,
		reg: newRegistry(),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  16 * 1024,
		WriteBufferSize: 16 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			if opt.OriginAllowed == nil {
				return true
			}
			return opt.OriginAllowed(origin)
		},
	}
	return s
}

// SetHub wires the session hub in. The hub needs the server as its
// Transport, so construction is two-phase.
func (s *Server) SetHub(hub *session.Hub) { s.hub = hub }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		sock, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = s.opt.DefaultOrigin
		}
		token := ""
		if c, err := r.Cookie(sessionCookie); err == nil {
			token = c.Value
		}

		conn := newConnection(uuid.NewString(), sock)
		s.reg.add(conn)
		s.hub.Connected(conn.id)

		go conn.writeLoop()
		s.readLoop(conn, origin, token)
	}
}

func (s *Server) readLoop(conn *connection, origin, token string) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var readErr error
	defer func() {
		conn.shutdown()
		s.reg.remove(conn.id)
		s.hub.Disconnected(conn.id, readErr)
	}()

	conn.sock.SetPongHandler(func(string) error {
		return conn.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_ = conn.sock.SetReadDeadline(time.Now().Add(pongWait))
		_, msg, err := conn.sock.ReadMessage()
		if err != nil {
			readErr = err
			return
		}
		s.dispatch(ctx, conn, origin, token, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, conn *connection, origin, token string, msg []byte) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return
	}
	switch base.Type {
	case protocol.TypeJoin:
		var m protocol.JoinMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		jc := session.JoinContext{ConnectionID: conn.id, Origin: origin, AuthToken: token}
		s.hub.Join(ctx, jc, m.User, m.Slug)
	case protocol.TypeSetPointer:
		var m protocol.SetPointerMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		s.hub.SetPointerPosition(conn.id, m.X, m.Y, m.PointerType)
	case protocol.TypeSetAfk:
		var m protocol.SetAfkMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		s.hub.SetAfk(conn.id, m.Afk)
	case protocol.TypeBoardAction:
		var m protocol.BoardActionMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		s.hub.BoardActionPerformed(conn.id, m.Action)
	case protocol.TypeAccessesModified:
		var m protocol.AccessesModifiedMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		s.hub.AccessesModified(conn.id, m.Accesses)
	case protocol.TypeBoardSaved:
		s.hub.BoardSaved(conn.id)
	case protocol.TypeSetBoardName:
		var m protocol.SetBoardNameMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return
		}
		s.hub.SetBoardName(conn.id, m.Name)
	case protocol.TypeCloseBoard:
		s.hub.CloseBoard(conn.id)
	}
}
