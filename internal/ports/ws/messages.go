package ws

import "bluff/internal/ports"

// MessageType names a client request or a server notice.
type MessageType string

// Client -> server
const (
	MsgJoinGameRoom  MessageType = "joinGameRoom"
	MsgLeaveGameRoom MessageType = "leaveGameRoom"
	MsgStartGame     MessageType = "startGame"
	MsgPlayCards     MessageType = "playCards"
	MsgChallenge     MessageType = "challenge"
)

// Server -> client, besides the game events relayed from the coordinator.
const (
	MsgGameState MessageType = "gameState"
	MsgError     MessageType = "error"
)

// ClientMessage is every request a connection may send.
type ClientMessage struct {
	Type         MessageType `json:"type"`
	GameID       string      `json:"gameId"`
	Cards        []string    `json:"cards,omitempty"`
	DeclaredRank string      `json:"declaredRank,omitempty"`
}

func notice(t MessageType, data any) ports.Envelope {
	return ports.Envelope{Type: string(t), Data: data}
}
