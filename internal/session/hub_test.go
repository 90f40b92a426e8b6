package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"

	"greyboard.app/internal/board"
	"greyboard.app/internal/protocol"
)

type sent struct {
	conn   string // non-empty for direct sends
	slug   string // non-empty for group sends
	except string
	msg    any
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []sent
	groups map[string]map[string]bool
	closed []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{groups: make(map[string]map[string]bool)}
}

func (t *fakeTransport) Send(conn string, msg any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sent{conn: conn, msg: msg})
}

func (t *fakeTransport) SendGroup(slug string, msg any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sent{slug: slug, msg: msg})
}

func (t *fakeTransport) SendGroupExcept(slug, except string, msg any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sent{slug: slug, except: except, msg: msg})
}

func (t *fakeTransport) SendAll(msg any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, sent{msg: msg})
}

func (t *fakeTransport) AddToGroup(conn, slug string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.groups[slug] == nil {
		t.groups[slug] = make(map[string]bool)
	}
	t.groups[slug][conn] = true
}

func (t *fakeTransport) Close(conn string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = append(t.closed, conn)
}

func (t *fakeTransport) sentTo(conn string) []any {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []any
	for _, s := range t.sent {
		if s.conn == conn {
			out = append(out, s.msg)
		}
	}
	return out
}

func (t *fakeTransport) lastSaveGrant(conn string) (bool, bool) {
	var allowed, found bool
	for _, m := range t.sentTo(conn) {
		if g, ok := m.(protocol.UserAllowedToSaveMsg); ok {
			allowed, found = g.Allowed, true
		}
	}
	return allowed, found
}

func (t *fakeTransport) wasClosed(conn string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.closed {
		if c == conn {
			return true
		}
	}
	return false
}

type fakeFetcher struct {
	board *board.Board
	err   error
	calls int
}

func (f *fakeFetcher) FetchBoard(_ context.Context, origin, slug, token string) (*board.Board, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	b := *f.board
	return &b, nil
}

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func testHub(f Fetcher) (*Hub, *fakeTransport, *Registry, *Presence) {
	ft := newFakeTransport()
	reg := NewRegistry(f, quietLogger())
	pres := NewPresence(quietLogger())
	hub := NewHub(ft, reg, pres, quietLogger())
	return hub, ft, reg, pres
}

func user(id string) board.Client {
	return board.Client{User: board.User{ID: id, Name: "user " + id}}
}

func editorAccess(userID string) board.Access {
	return board.Access{User: &board.User{ID: userID}, Level: board.LevelEditor}
}

func viewerAccess(userID string) board.Access {
	return board.Access{User: &board.User{ID: userID}, Level: board.LevelViewer}
}

func testBoard(slug, authorID string, accesses ...board.Access) *board.Board {
	return &board.Board{
		ID:       "b-" + slug,
		Name:     "board " + slug,
		Slug:     slug,
		Author:   &board.User{ID: authorID},
		Accesses: accesses,
	}
}

func TestJoin_ColdBoardFetchesAndGrantsHost(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, ft, reg, pres := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1", Origin: "http://x"}, user("alice"), "abc")

	b := reg.Get("abc")
	if b == nil {
		t.Fatalf("board not registered after cold join")
	}
	if h := b.CurrentHost(); !h.Assigned || h.ConnectionID != "c1" {
		t.Fatalf("host = %+v, want c1", h)
	}
	if allowed, ok := ft.lastSaveGrant("c1"); !ok || !allowed {
		t.Fatalf("first joiner should have been granted save, got ok=%v allowed=%v", ok, allowed)
	}
	if f.calls != 1 {
		t.Fatalf("fetch calls = %d, want 1", f.calls)
	}
	if got := pres.ListByBoard("abc"); len(got) != 1 || got[0].ConnectionID != "c1" {
		t.Fatalf("presence after join = %+v", got)
	}

	var ready *protocol.ConnectionReadyMsg
	for _, m := range ft.sentTo("c1") {
		if r, ok := m.(protocol.ConnectionReadyMsg); ok {
			ready = &r
		}
	}
	if ready == nil {
		t.Fatalf("joiner never got the snapshot")
	}
	if len(ready.Clients) != 1 || len(ready.Events) != 0 || ready.Age != 0 {
		t.Fatalf("snapshot = %+v, want 1 client, 0 events, age 0", ready)
	}
}

func TestJoin_FetchFailureTerminatesConnection(t *testing.T) {
	f := &fakeFetcher{err: errors.New("store said no")}
	hub, ft, reg, pres := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")

	if !ft.wasClosed("c1") {
		t.Fatalf("failed join must terminate the connection")
	}
	if reg.Get("abc") != nil {
		t.Fatalf("failed join must leave no board behind")
	}
	if got := pres.ListByBoard("abc"); len(got) != 0 {
		t.Fatalf("failed join must leave no client behind, got %+v", got)
	}
}

func TestJoin_AuthorTakesOverHost(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, ft, reg, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("bob"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("alice"), "abc")

	if h := reg.Get("abc").CurrentHost(); h.ConnectionID != "c2" {
		t.Fatalf("author join should steal host, got %+v", h)
	}
	if allowed, ok := ft.lastSaveGrant("c1"); !ok || allowed {
		t.Fatalf("previous host should have been revoked, got ok=%v allowed=%v", ok, allowed)
	}
	if allowed, _ := ft.lastSaveGrant("c2"); !allowed {
		t.Fatalf("author should hold the save grant")
	}
}

func TestJoin_ViewerDoesNotTakeHostlessBoard(t *testing.T) {
	hub, _, reg, _ := testHub(nil)
	b := NewLiveBoard(*testBoard("abc", "alice", viewerAccess("bob")))
	reg.Add(b)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("bob"), "abc")

	if h := b.CurrentHost(); h.Assigned {
		t.Fatalf("viewer must not become host, got %+v", h)
	}
}

func TestJoin_EditorTakesHostlessBoard(t *testing.T) {
	hub, ft, reg, _ := testHub(nil)
	b := NewLiveBoard(*testBoard("abc", "alice", editorAccess("carol")))
	reg.Add(b)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("carol"), "abc")

	if h := b.CurrentHost(); !h.Assigned || h.ConnectionID != "c1" {
		t.Fatalf("editor should take a hostless board, got %+v", h)
	}
	if allowed, _ := ft.lastSaveGrant("c1"); !allowed {
		t.Fatalf("editor should hold the save grant")
	}
}

func TestJoin_DuplicateIdentityEvicted(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, ft, _, pres := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("alice"), "abc")

	clients := pres.ListByBoard("abc")
	if len(clients) != 1 {
		t.Fatalf("want exactly one client per (board, user), got %d", len(clients))
	}
	if clients[0].ConnectionID != "c2" {
		t.Fatalf("surviving client bound to %s, want c2", clients[0].ConnectionID)
	}

	var reassigned bool
	for _, m := range ft.sentTo("c1") {
		if _, ok := m.(protocol.ReassignUserToClientMsg); ok {
			reassigned = true
		}
	}
	if !reassigned {
		t.Fatalf("superseded connection never told to reassign")
	}
}

func TestJoin_EvictedHostHandsRoleToNewConnection(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice", editorAccess("bob"))}
	hub, ft, reg, pres := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("bob"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("carol"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c3"}, user("bob"), "abc")

	b := reg.Get("abc")
	if h := b.CurrentHost(); !h.Assigned || h.ConnectionID != "c3" {
		t.Fatalf("host = %+v, want the superseding connection c3", h)
	}
	if allowed, ok := ft.lastSaveGrant("c3"); !ok || !allowed {
		t.Fatalf("superseding connection not granted save, got ok=%v allowed=%v", ok, allowed)
	}

	// The evicted tab's socket closing later must not disturb the role.
	hub.Disconnected("c1", nil)

	h := b.CurrentHost()
	if !h.Assigned || h.ConnectionID != "c3" {
		t.Fatalf("host after stale socket closed = %+v, want c3", h)
	}
	var present bool
	for _, c := range pres.ListByBoard("abc") {
		if c.ConnectionID == h.ConnectionID {
			present = true
		}
	}
	if !present {
		t.Fatalf("host %s is not a client present on the board", h.ConnectionID)
	}
}

func TestBoardAction_AccessGate(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice", viewerAccess("bob"), editorAccess("carol"))}
	hub, _, reg, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("bob"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c3"}, user("carol"), "abc")
	b := reg.Get("abc")

	hub.BoardActionPerformed("c2", json.RawMessage(`{"stroke":1}`))
	if ev, _ := b.Snapshot(); len(ev) != 0 {
		t.Fatalf("viewer action must be dropped, journal has %d events", len(ev))
	}

	hub.BoardActionPerformed("c1", json.RawMessage(`{"stroke":2}`))
	hub.BoardActionPerformed("c3", json.RawMessage(`{"stroke":3}`))
	ev, _ := b.Snapshot()
	if len(ev) != 2 {
		t.Fatalf("journal has %d events, want 2", len(ev))
	}
	if ev[0].By != "alice" || ev[1].By != "carol" {
		t.Fatalf("journal order = [%s, %s], want [alice, carol]", ev[0].By, ev[1].By)
	}
}

func TestBoardAction_PublicBoardAcceptsAnyone(t *testing.T) {
	pub := testBoard("abc", "alice")
	pub.IsPublic = true
	f := &fakeFetcher{board: pub}
	hub, _, reg, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("stranger"), "abc")
	hub.BoardActionPerformed("c1", json.RawMessage(`{"stroke":1}`))

	if ev, _ := reg.Get("abc").Snapshot(); len(ev) != 1 {
		t.Fatalf("public board must accept any joined user, journal has %d events", len(ev))
	}
}

func TestBoardAction_AuditRecordsRejections(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice", viewerAccess("bob"))}
	hub, _, _, _ := testHub(f)

	var records []ActionRecord
	hub.WithAudit(auditFunc(func(r ActionRecord) { records = append(records, r) }))

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("bob"), "abc")
	hub.BoardActionPerformed("c1", json.RawMessage(`{"stroke":1}`))

	if len(records) != 1 || records[0].Accepted {
		t.Fatalf("rejected action must leave an audit record, got %+v", records)
	}
}

type auditFunc func(ActionRecord)

func (f auditFunc) RecordAction(r ActionRecord) { f(r) }

func TestJoin_SnapshotCarriesJournalInOrder(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, ft, _, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.BoardActionPerformed("c1", json.RawMessage(`{"n":1}`))
	hub.BoardActionPerformed("c1", json.RawMessage(`{"n":2}`))

	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("bob"), "abc")

	var ready *protocol.ConnectionReadyMsg
	for _, m := range ft.sentTo("c2") {
		if r, ok := m.(protocol.ConnectionReadyMsg); ok {
			ready = &r
		}
	}
	if ready == nil {
		t.Fatalf("second joiner never got the snapshot")
	}
	if len(ready.Events) != 2 {
		t.Fatalf("snapshot has %d events, want 2", len(ready.Events))
	}
	if string(ready.Events[0].Action) != `{"n":1}` || string(ready.Events[1].Action) != `{"n":2}` {
		t.Fatalf("snapshot order wrong: %s then %s", ready.Events[0].Action, ready.Events[1].Action)
	}
}

func TestDisconnect_LastClientRemovesBoard(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, _, reg, pres := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.Disconnected("c1", errors.New("gone"))

	if reg.Get("abc") != nil {
		t.Fatalf("empty board must be garbage-collected")
	}
	if got := pres.ListByBoard("abc"); len(got) != 0 {
		t.Fatalf("presence not empty after last disconnect: %+v", got)
	}
}

func TestDisconnect_HostReelectionSkipsViewers(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice", viewerAccess("bob"), editorAccess("carol"))}
	hub, ft, reg, _ := testHub(f)

	// Arrival order: host alice, viewer bob, editor carol.
	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("bob"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c3"}, user("carol"), "abc")

	hub.Disconnected("c1", errors.New("gone"))

	b := reg.Get("abc")
	if h := b.CurrentHost(); !h.Assigned || h.ConnectionID != "c3" {
		t.Fatalf("re-election picked %+v, want carol's connection c3", h)
	}
	if allowed, _ := ft.lastSaveGrant("c3"); !allowed {
		t.Fatalf("new host never got the save grant")
	}
	if allowed, ok := ft.lastSaveGrant("c2"); ok && allowed {
		t.Fatalf("viewer must never become host")
	}
}

func TestDisconnect_NoEligibleCandidateLeavesBoardHostless(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice", viewerAccess("bob"))}
	hub, _, reg, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("bob"), "abc")
	hub.Disconnected("c1", errors.New("gone"))

	if h := reg.Get("abc").CurrentHost(); h.Assigned {
		t.Fatalf("board should be hostless, got %+v", h)
	}
}

func TestDisconnect_HostEarliestEligibleWins(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice", editorAccess("bob"), editorAccess("carol"))}
	hub, _, reg, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("bob"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c3"}, user("carol"), "abc")
	hub.Disconnected("c1", errors.New("gone"))

	if h := reg.Get("abc").CurrentHost(); h.ConnectionID != "c2" {
		t.Fatalf("earliest-joined eligible client should win, got %+v", h)
	}
}

func TestAccessesModified_DowngradeTriggersReelection(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "zed", editorAccess("bob"), editorAccess("carol"))}
	hub, _, reg, _ := testHub(f)

	// bob joins first and becomes host of the cold board.
	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("bob"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("carol"), "abc")

	hub.AccessesModified("c2", []board.Access{viewerAccess("bob"), editorAccess("carol")})

	if h := reg.Get("abc").CurrentHost(); !h.Assigned || h.ConnectionID != "c2" {
		t.Fatalf("downgraded host should lose the role to carol, got %+v", h)
	}
}

func TestAccessesModified_BroadcastSkipsCaller(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, ft, _, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.AccessesModified("c1", []board.Access{editorAccess("bob")})

	ft.mu.Lock()
	defer ft.mu.Unlock()
	found := false
	for _, s := range ft.sent {
		if _, ok := s.msg.(protocol.BoardAccessesModifiedMsg); ok {
			found = true
			if s.except != "c1" {
				t.Fatalf("access broadcast must skip the caller, except=%q", s.except)
			}
		}
	}
	if !found {
		t.Fatalf("access change never broadcast")
	}
}

func TestBoardSaved_ClearsJournalAndAges(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, _, reg, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.BoardActionPerformed("c1", json.RawMessage(`{"n":1}`))

	hub.BoardSaved("c1")
	ev, age := reg.Get("abc").Snapshot()
	if len(ev) != 0 || age != 1 {
		t.Fatalf("after save: %d events age %d, want 0 events age 1", len(ev), age)
	}

	// Saving an already-empty journal still advances the generation.
	hub.BoardSaved("c1")
	ev, age = reg.Get("abc").Snapshot()
	if len(ev) != 0 || age != 2 {
		t.Fatalf("after second save: %d events age %d, want 0 events age 2", len(ev), age)
	}
}

func TestSetBoardName_BroadcastsRename(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, ft, reg, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.SetBoardName("c1", "retro notes")

	b := reg.Get("abc")
	b.mu.Lock()
	name := b.Name
	b.mu.Unlock()
	if name != "retro notes" {
		t.Fatalf("board name = %q", name)
	}

	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, s := range ft.sent {
		if m, ok := s.msg.(protocol.BoardNameChangedMsg); ok {
			if m.Name != "retro notes" || s.slug != "abc" {
				t.Fatalf("rename broadcast = %+v to %q", m, s.slug)
			}
			return
		}
	}
	t.Fatalf("rename never broadcast")
}

func TestCloseBoard_RemovesBoardForEveryone(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice", viewerAccess("bob"))}
	hub, ft, reg, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.Join(context.Background(), JoinContext{ConnectionID: "c2"}, user("bob"), "abc")

	// Even a viewer can close; the engine mirrors the caller as-is.
	hub.CloseBoard("c2")

	if reg.Get("abc") != nil {
		t.Fatalf("board must be removed unconditionally")
	}
	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, s := range ft.sent {
		if _, ok := s.msg.(protocol.BoardClosedMsg); ok {
			if s.except != "c2" {
				t.Fatalf("close broadcast must skip the caller, except=%q", s.except)
			}
			return
		}
	}
	t.Fatalf("close never broadcast")
}

func TestSetAfk_BroadcastsUpdatedClient(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, ft, _, _ := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	hub.SetAfk("c1", true)

	ft.mu.Lock()
	defer ft.mu.Unlock()
	for _, s := range ft.sent {
		if m, ok := s.msg.(protocol.ClientAfkUpdatedMsg); ok {
			if !m.Client.Afk {
				t.Fatalf("broadcast client not marked afk")
			}
			return
		}
	}
	t.Fatalf("afk change never broadcast")
}

func TestSetPointerPosition_SilentUpdate(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice")}
	hub, ft, _, pres := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "c1"}, user("alice"), "abc")
	before := len(ft.sent)

	hub.SetPointerPosition("c1", 12.5, 7.25, board.PointerPen)

	if len(ft.sent) != before {
		t.Fatalf("pointer update must not broadcast")
	}
	c, _ := pres.Resolve("c1")
	if c.PointerX != 12.5 || c.PointerY != 7.25 || c.PointerType != board.PointerPen {
		t.Fatalf("pointer not updated: %+v", c)
	}
}

func TestRPCsWithoutBoundClientAreNoOps(t *testing.T) {
	hub, ft, _, _ := testHub(nil)

	hub.SetPointerPosition("ghost", 1, 2, board.PointerMouse)
	hub.SetAfk("ghost", true)
	hub.BoardActionPerformed("ghost", json.RawMessage(`{}`))
	hub.AccessesModified("ghost", nil)
	hub.BoardSaved("ghost")
	hub.SetBoardName("ghost", "x")
	hub.CloseBoard("ghost")
	hub.Disconnected("ghost", errors.New("gone"))

	if len(ft.sent) != 0 || len(ft.closed) != 0 {
		t.Fatalf("unbound-connection RPCs must be no-ops, sent=%d closed=%d", len(ft.sent), len(ft.closed))
	}
}

func TestConcurrentJoinDisconnect_HostAlwaysPresent(t *testing.T) {
	f := &fakeFetcher{board: testBoard("abc", "alice", editorAccess("bob"), editorAccess("carol"))}
	hub, _, reg, pres := testHub(f)

	hub.Join(context.Background(), JoinContext{ConnectionID: "seed"}, user("alice"), "abc")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conn := fmt.Sprintf("c%d", i)
			who := []string{"bob", "carol"}[i%2]
			hub.Join(context.Background(), JoinContext{ConnectionID: conn}, user(who), "abc")
			hub.BoardActionPerformed(conn, json.RawMessage(`{}`))
			if i%3 == 0 {
				hub.Disconnected(conn, errors.New("gone"))
			}
		}(i)
	}
	wg.Wait()

	b := reg.Get("abc")
	if b == nil {
		// Every client may have disconnected; that is a legal settle state.
		return
	}
	h := b.CurrentHost()
	if !h.Assigned {
		return
	}
	for _, c := range pres.ListByBoard("abc") {
		if c.ConnectionID == h.ConnectionID {
			return
		}
	}
	t.Fatalf("host %q not present on the board", h.ConnectionID)
}
