package protocol

import "encoding/json"

// Message types, client -> server.
const (
	TypeJoin             = "JOIN"
	TypeSetPointer       = "SET_POINTER"
	TypeSetAfk           = "SET_AFK"
	TypeBoardAction      = "BOARD_ACTION"
	TypeAccessesModified = "ACCESSES_MODIFIED"
	TypeBoardSaved       = "BOARD_SAVED"
	TypeSetBoardName     = "SET_BOARD_NAME"
	TypeCloseBoard       = "CLOSE_BOARD"
)

// Message types, server -> client.
const (
	TypeConnectionReady       = "CONNECTION_READY"
	TypeClientConnected       = "CLIENT_CONNECTED"
	TypeClientDisconnected    = "CLIENT_DISCONNECTED"
	TypeClientAfkUpdated      = "CLIENT_AFK_UPDATED"
	TypeReassignUserToClient  = "REASSIGN_USER_TO_CLIENT"
	TypeUserAllowedToSave     = "USER_ALLOWED_TO_SAVE"
	TypePerformBoardAction    = "PERFORM_BOARD_ACTION"
	TypeBoardAccessesModified = "BOARD_ACCESSES_MODIFIED"
	TypeBoardNameChanged      = "BOARD_NAME_CHANGED"
	TypeBoardAged             = "BOARD_AGED"
	TypeBoardClosed           = "BOARD_CLOSED"
	TypeHeartBeat             = "HEARTBEAT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type string `json:"type"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
