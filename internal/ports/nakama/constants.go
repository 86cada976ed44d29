package nakama

const (
	// MatchNameBluff is the authoritative match handler name registered with Nakama.
	MatchNameBluff = "bluff_match"

	// StorageCollection holds one system-owned object per game.
	StorageCollection = "bluff_games"
)

// RPC ids.
const (
	RpcCreateGame = "create_game"
	RpcJoinGame   = "join_game"
	RpcListGames  = "list_games"
	RpcGameState  = "game_state"
)

// Op codes for client messages and server events.
const (
	// Client -> Server
	OpStartGame    int64 = 1
	OpPlayCards    int64 = 2
	OpChallenge    int64 = 3
	OpLeaveGame    int64 = 4
	OpRequestState int64 = 5

	// Server -> Client events
	OpGameUpdate   int64 = 101
	OpPlayerAction int64 = 102
	OpGameEnded    int64 = 103
	OpGameClosed   int64 = 104
	OpGameState    int64 = 105 // send privately
	OpError        int64 = 106 // send privately
)

// Match label keys.
const (
	labelKeyGameID = "game_id"
	labelKeyState  = "state"
	labelKeyOpen   = "open"
	labelKeyName   = "name"
)
