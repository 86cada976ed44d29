package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/heroiclabs/nakama-common/runtime"

	"bluff/internal/app"
	"bluff/internal/domain"
)

// gRPC status codes Nakama maps RPC errors onto.
const (
	codeInvalidArgument    = 3
	codeNotFound           = 5
	codePermissionDenied   = 7
	codeFailedPrecondition = 9
	codeInternal           = 13
	codeUnauthenticated    = 16
)

type createGameRequest struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
}

type gameRequest struct {
	GameID string `json:"gameId"`
}

type listGamesRequest struct {
	Limit int `json:"limit"`
}

// MatchResponse tells the client which match hosts a game.
type MatchResponse struct {
	GameID  string       `json:"gameId"`
	MatchID string       `json:"matchId"`
	Game    app.GameView `json:"game"`
}

// rpcHandlers serves the lobby RPCs. Actions inside a game go through the
// match; the coordinator here only creates and reads games.
type rpcHandlers struct {
	games *app.Coordinator
}

// RegisterRPCs registers Nakama RPC endpoints.
func RegisterRPCs(initializer runtime.Initializer, games *app.Coordinator) error {
	h := &rpcHandlers{games: games}
	for id, fn := range map[string]func(context.Context, runtime.Logger, *sql.DB, runtime.NakamaModule, string) (string, error){
		RpcCreateGame: h.createGame,
		RpcJoinGame:   h.joinGame,
		RpcListGames:  h.listGames,
		RpcGameState:  h.gameState,
	} {
		if err := initializer.RegisterRpc(id, fn); err != nil {
			return fmt.Errorf("register rpc %s: %w", id, err)
		}
	}
	return nil
}

func (h *rpcHandlers) createGame(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	var req createGameRequest
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	view, err := h.games.CreateGame(ctx, userID, req.Name, req.MaxPlayers)
	if err != nil {
		return "", rpcError(logger, err)
	}
	matchID, err := nk.MatchCreate(ctx, MatchNameBluff, map[string]interface{}{"game_id": view.ID})
	if err != nil {
		logger.Error("MatchCreate error: %v", err)
		return "", runtime.NewError("could not host game", codeInternal)
	}
	logger.Info("create_game [User:%s]: game %s hosted by match %s", userID, view.ID, matchID)
	return encodeResponse(MatchResponse{GameID: view.ID, MatchID: matchID, Game: view})
}

// joinGame returns the match hosting gameId, starting one when the previous
// match ended while the game was still stored.
func (h *rpcHandlers) joinGame(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	var req gameRequest
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	state, err := h.games.State(ctx, req.GameID, userID)
	if err != nil {
		return "", rpcError(logger, err)
	}

	query := fmt.Sprintf("+label.%s:%q", labelKeyGameID, req.GameID)
	matches, err := nk.MatchList(ctx, 1, true, "", nil, nil, query)
	if err != nil {
		logger.Error("MatchList error: %v", err)
		return "", runtime.NewError("could not find match", codeInternal)
	}
	if len(matches) > 0 {
		return encodeResponse(MatchResponse{GameID: req.GameID, MatchID: matches[0].GetMatchId(), Game: state.Game})
	}

	matchID, err := nk.MatchCreate(ctx, MatchNameBluff, map[string]interface{}{"game_id": req.GameID})
	if err != nil {
		logger.Error("MatchCreate error: %v", err)
		return "", runtime.NewError("could not host game", codeInternal)
	}
	return encodeResponse(MatchResponse{GameID: req.GameID, MatchID: matchID, Game: state.Game})
}

func (h *rpcHandlers) listGames(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	var req listGamesRequest
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	games, err := h.games.ListWaitingGames(ctx, req.Limit)
	if err != nil {
		return "", rpcError(logger, err)
	}
	return encodeResponse(map[string]interface{}{"games": games})
}

func (h *rpcHandlers) gameState(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, payload string) (string, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return "", err
	}
	var req gameRequest
	if err := decodePayload(payload, &req); err != nil {
		return "", err
	}
	state, err := h.games.State(ctx, req.GameID, userID)
	if err != nil {
		return "", rpcError(logger, err)
	}
	return encodeResponse(state)
}

func callerID(ctx context.Context) (string, error) {
	userID, _ := ctx.Value(runtime.RUNTIME_CTX_USER_ID).(string)
	if userID == "" {
		return "", runtime.NewError("authentication required", codeUnauthenticated)
	}
	return userID, nil
}

func decodePayload(payload string, dst interface{}) error {
	if payload == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(payload), dst); err != nil {
		return runtime.NewError("malformed payload", codeInvalidArgument)
	}
	return nil
}

func encodeResponse(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", runtime.NewError("could not encode response", codeInternal)
	}
	return string(b), nil
}

// rpcError maps an app error onto a Nakama runtime error carrying the
// player-safe message.
func rpcError(logger runtime.Logger, err error) error {
	reply := app.Describe(err)
	code := codeFailedPrecondition
	switch reply.Code {
	case domain.CodeGameNotFound:
		code = codeNotFound
	case domain.CodeNotYourTurn, domain.CodeNotCreator, domain.CodeNotSeated:
		code = codePermissionDenied
	case domain.CodeInvalidArgument, domain.CodeInvalidCards, domain.CodeInvalidRank,
		domain.CodeRankNotAllowed, domain.CodeCannotChallengeSelf:
		code = codeInvalidArgument
	case domain.CodeInternal:
		logger.Error("rpc failed: %v", err)
		code = codeInternal
	}
	return runtime.NewError(reply.Message, code)
}
