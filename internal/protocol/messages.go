package protocol

import (
	"encoding/json"

	"greyboard.app/internal/board"
)

// JOIN (client -> server)
type JoinMsg struct {
	Type string       `json:"type"`
	User board.Client `json:"user"`
	Slug string       `json:"slug"`
}

// SET_POINTER (client -> server)
type SetPointerMsg struct {
	Type        string            `json:"type"`
	X           float64           `json:"x"`
	Y           float64           `json:"y"`
	PointerType board.PointerType `json:"pointerType"`
}

// SET_AFK (client -> server)
type SetAfkMsg struct {
	Type string `json:"type"`
	Afk  bool   `json:"afk"`
}

// BOARD_ACTION (client -> server). Action is forwarded verbatim.
type BoardActionMsg struct {
	Type   string          `json:"type"`
	Action json.RawMessage `json:"action"`
}

// ACCESSES_MODIFIED (client -> server)
type AccessesModifiedMsg struct {
	Type     string         `json:"type"`
	Accesses []board.Access `json:"accesses"`
}

// SET_BOARD_NAME (client -> server)
type SetBoardNameMsg struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

// BOARD_SAVED and CLOSE_BOARD carry no arguments beyond the type.
type EmptyMsg struct {
	Type string `json:"type"`
}

// CONNECTION_READY (server -> client): the full snapshot a freshly joined
// connection needs to render the session.
type ConnectionReadyMsg struct {
	Type    string         `json:"type"`
	Clients []board.Client `json:"clients"`
	Events  []board.Event  `json:"events"`
	Age     int            `json:"age"`
}

type ClientConnectedMsg struct {
	Type   string       `json:"type"`
	Client board.Client `json:"client"`
}

type ClientDisconnectedMsg struct {
	Type   string       `json:"type"`
	Client board.Client `json:"client"`
}

type ClientAfkUpdatedMsg struct {
	Type   string       `json:"type"`
	Client board.Client `json:"client"`
}

// REASSIGN_USER_TO_CLIENT (server -> client): tells a superseded connection
// to re-identify or close.
type ReassignUserToClientMsg struct {
	Type string `json:"type"`
}

type UserAllowedToSaveMsg struct {
	Type    string `json:"type"`
	Allowed bool   `json:"allowed"`
}

type PerformBoardActionMsg struct {
	Type  string      `json:"type"`
	Event board.Event `json:"event"`
}

type BoardAccessesModifiedMsg struct {
	Type     string         `json:"type"`
	Accesses []board.Access `json:"accesses"`
}

type BoardNameChangedMsg struct {
	Type string `json:"type"`
	Name string `json:"name"`
}

type BoardAgedMsg struct {
	Type string `json:"type"`
	Age  int    `json:"age"`
}

type BoardClosedMsg struct {
	Type string `json:"type"`
}

// HEARTBEAT (server -> client): user id -> [pointerX, pointerY, pointerType].
type HeartBeatMsg struct {
	Type     string                `json:"type"`
	Pointers map[string][3]float64 `json:"pointers"`
}

// Constructors for server -> client messages, so senders cannot forget the
// routing type.

func ConnectionReady(clients []board.Client, events []board.Event, age int) ConnectionReadyMsg {
	return ConnectionReadyMsg{Type: TypeConnectionReady, Clients: clients, Events: events, Age: age}
}

func ClientConnected(c board.Client) ClientConnectedMsg {
	return ClientConnectedMsg{Type: TypeClientConnected, Client: c}
}

func ClientDisconnected(c board.Client) ClientDisconnectedMsg {
	return ClientDisconnectedMsg{Type: TypeClientDisconnected, Client: c}
}

func ClientAfkUpdated(c board.Client) ClientAfkUpdatedMsg {
	return ClientAfkUpdatedMsg{Type: TypeClientAfkUpdated, Client: c}
}

func ReassignUserToClient() ReassignUserToClientMsg {
	return ReassignUserToClientMsg{Type: TypeReassignUserToClient}
}

func UserAllowedToSave(allowed bool) UserAllowedToSaveMsg {
	return UserAllowedToSaveMsg{Type: TypeUserAllowedToSave, Allowed: allowed}
}

func PerformBoardAction(ev board.Event) PerformBoardActionMsg {
	return PerformBoardActionMsg{Type: TypePerformBoardAction, Event: ev}
}

func BoardAccessesModified(accesses []board.Access) BoardAccessesModifiedMsg {
	return BoardAccessesModifiedMsg{Type: TypeBoardAccessesModified, Accesses: accesses}
}

func BoardNameChanged(name string) BoardNameChangedMsg {
	return BoardNameChangedMsg{Type: TypeBoardNameChanged, Name: name}
}

func BoardAged(age int) BoardAgedMsg {
	return BoardAgedMsg{Type: TypeBoardAged, Age: age}
}

func BoardClosed() BoardClosedMsg {
	return BoardClosedMsg{Type: TypeBoardClosed}
}

func HeartBeat(pointers map[string][3]float64) HeartBeatMsg {
	return HeartBeatMsg{Type: TypeHeartBeat, Pointers: pointers}
}
