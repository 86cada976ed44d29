package nakama

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/heroiclabs/nakama-common/runtime"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"bluff/internal/app"
	"bluff/internal/bot"
	"bluff/internal/config"
	"bluff/internal/domain"
	"bluff/internal/ports"
)

const tickRate = 1

// MatchState holds the runtime state of the match hosting one game. The game
// itself lives in storage; the match only tracks who is connected and when
// bots should act.
type MatchState struct {
	GameID               string                      `json:"game_id"`
	Tick                 int64                       `json:"tick"`
	Presences            map[string]runtime.Presence `json:"-"` // Map UserId -> Presence for targeted messaging
	Games                *app.Coordinator            `json:"-"`
	Room                 *roomBroadcaster            `json:"-"`
	Roster               *bot.Roster                 `json:"-"`
	Bots                 bot.Identities              `json:"-"`
	BotsEnabled          bool                        `json:"bots_enabled"`
	BotMinDelay          int64                       `json:"bot_min_delay"`       // Min ticks a bot waits
	BotMaxDelay          int64                       `json:"bot_max_delay"`       // Max ticks a bot waits
	BotAutoFillDelay     int64                       `json:"bot_auto_fill_delay"` // Ticks a lone human waits for bots
	BotWaitUntil         int64                       `json:"bot_wait_until"`
	LastSinglePlayerTick int64                       `json:"last_single_player_tick"`

	logger *slog.Logger
	rng    *rand.Rand
}

func (ms *MatchState) bind(dispatcher runtime.MatchDispatcher, tick int64) {
	ms.Room.bind(dispatcher)
	ms.Tick = tick
}

type matchHandler struct {
	newStore func(nk runtime.NakamaModule) ports.GameStore
}

func newMatchHandler() *matchHandler {
	return &matchHandler{
		newStore: func(nk runtime.NakamaModule) ports.GameStore { return NewStorageStore(nk) },
	}
}

func runtimeEnv(ctx context.Context) map[string]string {
	env, _ := ctx.Value(runtime.RUNTIME_CTX_ENV).(map[string]string)
	return env
}

func toTicks(d time.Duration) int64 {
	return int64(d/time.Second) * tickRate
}

// MatchInit is called when the match is created. params must carry the game_id
// of a stored game.
func (mh *matchHandler) MatchInit(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, params map[string]interface{}) (interface{}, int, string) {
	gameID, _ := params["game_id"].(string)
	if gameID == "" {
		logger.Error("MatchInit: missing game_id param")
		return nil, 0, ""
	}

	rules := config.RulesFromEnv(runtimeEnv(ctx))
	slogger := NewLogger(logger, slog.LevelDebug).With("game_id", gameID)
	svc, err := newService(rules)
	if err != nil {
		logger.Error("MatchInit: %v", err)
		return nil, 0, ""
	}

	identities := bot.DefaultIdentities()
	if rules.BotIdentitiesPath != "" {
		if identities, err = bot.LoadIdentities(rules.BotIdentitiesPath); err != nil {
			logger.Warn("MatchInit: Could not load bot identities: %v", err)
			identities = bot.DefaultIdentities()
		}
	}

	lo, hi := rules.BotDelays()
	state := &MatchState{
		GameID:           gameID,
		Presences:        make(map[string]runtime.Presence),
		Room:             &roomBroadcaster{},
		Roster:           bot.NewRoster(slogger),
		Bots:             identities,
		BotsEnabled:      rules.BotsEnabled,
		BotMinDelay:      toTicks(lo),
		BotMaxDelay:      toTicks(hi),
		BotAutoFillDelay: toTicks(rules.BotAutoFill()),
		logger:           slogger,
		rng:              rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	state.Games = app.NewCoordinator(mh.newStore(nk),
		app.WithLogger(slogger),
		app.WithService(svc),
		app.WithBroadcaster(ports.MultiBroadcaster{state.Room, state.Roster}),
	)

	view, err := state.Games.State(ctx, gameID, "")
	if err != nil {
		logger.Error("MatchInit: game %s: %v", gameID, err)
		state.Games.Close()
		return nil, 0, ""
	}
	if n := state.reseatBots(view.Game); n > 0 {
		logger.Info("MatchInit: Reseated %d bots in game %s", n, gameID)
	}
	label, err := matchLabel(view.Game)
	if err != nil {
		logger.Error("MatchInit: Failed to marshal label: %v", err)
		state.Games.Close()
		return nil, 0, ""
	}
	return state, tickRate, label
}

func (mh *matchHandler) MatchJoinAttempt(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presence runtime.Presence, metadata map[string]string) (interface{}, bool, string) {
	ms, ok := state.(*MatchState)
	if !ok {
		return state, false, "state not found"
	}
	view, err := ms.Games.State(ctx, ms.GameID, presence.GetUserId())
	if err != nil {
		return state, false, app.Describe(err).Message
	}
	if seated(view.Game, presence.GetUserId()) {
		return state, true, ""
	}
	if view.Game.State != domain.StateWaiting {
		return state, false, domain.ErrGameNotWaiting.Message
	}
	if len(view.Players) >= view.Game.MaxPlayers && botSeat(view.Game) == "" {
		return state, false, domain.ErrGameFull.Message
	}
	return state, true, ""
}

// MatchJoin seats newly connected players and sends each their own view.
// In a full lobby a bot gives up its seat to a human.
func (mh *matchHandler) MatchJoin(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	ms, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchJoin: state not found")
		return state
	}
	ms.bind(dispatcher, tick)

	for _, p := range presences {
		userID := p.GetUserId()
		ms.Presences[userID] = p

		view, err := ms.Games.State(ctx, ms.GameID, userID)
		if err != nil {
			mh.sendError(ms, dispatcher, logger, userID, err)
			continue
		}
		if !seated(view.Game, userID) {
			if len(view.Players) >= view.Game.MaxPlayers {
				if botID := botSeat(view.Game); botID != "" {
					logger.Info("MatchJoin: Replacing bot %s with human %s", botID, userID)
					if _, err := ms.Games.LeaveGame(ctx, ms.GameID, botID); err != nil {
						logger.Warn("MatchJoin: bot %s leave failed: %v", botID, err)
					}
					ms.Roster.Unseat(ms.GameID, botID)
				}
			}
			if _, err := ms.Games.JoinGame(ctx, ms.GameID, userID); err != nil {
				mh.sendError(ms, dispatcher, logger, userID, err)
			}
		}
		mh.sendState(ctx, ms, dispatcher, logger, userID)
	}

	mh.updateLabel(ctx, ms, dispatcher, logger)
	return ms
}

// MatchLeave is called when one or more players disconnect. A player leaving a
// lobby gives up the seat; a game in progress keeps it for reconnection.
func (mh *matchHandler) MatchLeave(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, presences []runtime.Presence) interface{} {
	ms, ok := state.(*MatchState)
	if !ok {
		logger.Error("MatchLeave: state not found")
		return state
	}
	ms.bind(dispatcher, tick)

	for _, p := range presences {
		delete(ms.Presences, p.GetUserId())
		mh.leaveLobby(ctx, ms, logger, p.GetUserId())
	}

	if len(ms.Presences) == 0 {
		mh.abandon(ctx, ms, logger)
		logger.Info("MatchLeave: Terminating match with no humans.")
		return mh.end(ms)
	}
	if ms.Room.closed {
		return mh.end(ms)
	}
	mh.updateLabel(ctx, ms, dispatcher, logger)
	return ms
}

func (mh *matchHandler) MatchLoop(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, messages []runtime.MatchData) interface{} {
	ms, ok := state.(*MatchState)
	if !ok {
		return state
	}
	ms.bind(dispatcher, tick)

	changed := false
	for _, msg := range messages {
		userID := msg.GetUserId()
		var err error
		switch msg.GetOpCode() {
		case OpStartGame:
			_, err = ms.Games.StartGame(ctx, ms.GameID, userID)
		case OpPlayCards:
			var req playCardsMessage
			if jsonErr := json.Unmarshal(msg.GetData(), &req); jsonErr != nil {
				err = domain.InvalidArgument("malformed playCards payload")
				break
			}
			_, err = ms.Games.PlayCards(ctx, ms.GameID, userID, req.Cards, req.DeclaredRank)
		case OpChallenge:
			_, err = ms.Games.Challenge(ctx, ms.GameID, userID)
		case OpLeaveGame:
			_, err = ms.Games.LeaveGame(ctx, ms.GameID, userID)
		case OpRequestState:
			mh.sendState(ctx, ms, dispatcher, logger, userID)
			continue
		default:
			logger.Warn("MatchLoop: Unknown opcode received: %d", msg.GetOpCode())
			continue
		}
		if err != nil {
			mh.sendError(ms, dispatcher, logger, userID, err)
			continue
		}
		changed = true
	}

	if ms.Room.closed {
		return mh.end(ms)
	}
	if mh.processBots(ctx, ms, logger) {
		changed = true
	}
	if ms.Room.closed {
		return mh.end(ms)
	}
	if changed {
		mh.updateLabel(ctx, ms, dispatcher, logger)
	}
	return ms
}

type playCardsMessage struct {
	Cards        []string `json:"cards"`
	DeclaredRank string   `json:"declaredRank"`
}

// processBots fills a lobby that a lone human has waited in, then paces bot
// turns with a random think time. It reports whether anything was committed.
func (mh *matchHandler) processBots(ctx context.Context, ms *MatchState, logger runtime.Logger) bool {
	view, err := ms.Games.State(ctx, ms.GameID, "")
	if err != nil {
		return false
	}

	switch view.Game.State {
	case domain.StateWaiting:
		if !ms.BotsEnabled || humanCount(view.Game) != 1 || len(view.Players) >= view.Game.MaxPlayers {
			ms.LastSinglePlayerTick = 0
			return false
		}
		if ms.LastSinglePlayerTick == 0 {
			ms.LastSinglePlayerTick = ms.Tick
			logger.Debug("processBots: Single player detected, starting auto-fill timer.")
			return false
		}
		if ms.Tick-ms.LastSinglePlayerTick < ms.BotAutoFillDelay {
			return false
		}
		ms.LastSinglePlayerTick = 0
		return mh.fillWithBots(ctx, ms, logger, view.Game)

	case domain.StatePlaying:
		if len(ms.Roster.Agents(ms.GameID)) == 0 {
			return false
		}
		if ms.BotWaitUntil == 0 {
			ms.BotWaitUntil = ms.Tick + ms.BotMinDelay
			if spread := ms.BotMaxDelay - ms.BotMinDelay; spread > 0 {
				ms.BotWaitUntil += ms.rng.Int63n(spread + 1)
			}
			return false
		}
		if ms.Tick < ms.BotWaitUntil {
			return false
		}
		ms.BotWaitUntil = 0
		acted, err := ms.Roster.Step(ctx, ms.Games, ms.GameID)
		if err != nil {
			logger.Error("processBots: bot step failed: %v", err)
			return false
		}
		return acted
	}
	return false
}

// reseatBots gives every bot already seated in game an agent. A match taking
// over a stored game in progress would otherwise stall on the first bot turn.
func (ms *MatchState) reseatBots(game app.GameView) int {
	n := 0
	for _, p := range game.Players {
		if !bot.IsBot(p.UserID) {
			continue
		}
		agent, err := bot.NewAgent(ms.Bots.Find(p.UserID), rand.New(rand.NewSource(ms.rng.Int63())))
		if err != nil {
			ms.logger.Error("failed to reseat bot", "user_id", p.UserID, "error", err)
			continue
		}
		ms.Roster.Seat(ms.GameID, agent)
		n++
	}
	return n
}

func (mh *matchHandler) fillWithBots(ctx context.Context, ms *MatchState, logger runtime.Logger, game app.GameView) bool {
	open := game.MaxPlayers - len(game.Players)
	added := false
	for i := 0; i < len(ms.Bots) && open > 0; i++ {
		identity := ms.Bots.Get(i)
		if seated(game, identity.UserID) {
			continue
		}
		agent, err := bot.NewAgent(identity, rand.New(rand.NewSource(ms.rng.Int63())))
		if err != nil {
			logger.Error("Failed to create bot agent for %s: %v", identity.UserID, err)
			continue
		}
		if _, err := ms.Games.JoinGame(ctx, ms.GameID, identity.UserID); err != nil {
			logger.Warn("processBots: bot %s could not join: %v", identity.UserID, err)
			break
		}
		ms.Roster.Seat(ms.GameID, agent)
		logger.Info("processBots: Added bot %s (%s)", identity.DisplayName, identity.UserID)
		open--
		added = true
	}
	return added
}

func (mh *matchHandler) leaveLobby(ctx context.Context, ms *MatchState, logger runtime.Logger, userID string) {
	view, err := ms.Games.State(ctx, ms.GameID, userID)
	if err != nil || view.Game.State != domain.StateWaiting || !seated(view.Game, userID) {
		return
	}
	after, err := ms.Games.LeaveGame(ctx, ms.GameID, userID)
	if err != nil {
		logger.Warn("MatchLeave: %s could not leave: %v", userID, err)
		return
	}
	if bot.IsBot(after.CreatedBy) {
		// Bots never start games, so they must not hold the creator seat.
		mh.abandon(ctx, ms, logger)
	}
}

// abandon takes every bot out of the lobby. With no humans left the game
// empties and is deleted.
func (mh *matchHandler) abandon(ctx context.Context, ms *MatchState, logger runtime.Logger) {
	view, err := ms.Games.State(ctx, ms.GameID, "")
	if err != nil || view.Game.State != domain.StateWaiting {
		return
	}
	for _, p := range view.Players {
		if !bot.IsBot(p.UserID) {
			continue
		}
		if _, err := ms.Games.LeaveGame(ctx, ms.GameID, p.UserID); err != nil {
			logger.Warn("MatchLeave: bot %s could not leave: %v", p.UserID, err)
		}
		ms.Roster.Unseat(ms.GameID, p.UserID)
	}
}

func (mh *matchHandler) sendState(ctx context.Context, ms *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string) {
	presence, ok := ms.Presences[userID]
	if !ok {
		return
	}
	view, err := ms.Games.State(ctx, ms.GameID, userID)
	if err != nil {
		mh.sendError(ms, dispatcher, logger, userID, err)
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		logger.Error("Failed to marshal state: %v", err)
		return
	}
	if err := dispatcher.BroadcastMessage(OpGameState, data, []runtime.Presence{presence}, nil, true); err != nil {
		logger.Warn("Failed to send state to %s: %v", userID, err)
	}
}

// sendError sends an error reply to a specific user.
func (mh *matchHandler) sendError(ms *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger, userID string, cause error) {
	if !app.IsRefusal(cause) {
		logger.Error("Action by %s failed: %v", userID, cause)
	}
	presence, ok := ms.Presences[userID]
	if !ok {
		logger.Warn("Cannot send error to %s: Presence not found", userID)
		return
	}
	data, err := json.Marshal(app.Describe(cause))
	if err != nil {
		logger.Error("Failed to marshal error reply: %v", err)
		return
	}
	if err := dispatcher.BroadcastMessage(OpError, data, []runtime.Presence{presence}, nil, true); err != nil {
		logger.Warn("Failed to send error to %s: %v", userID, err)
	}
}

func (mh *matchHandler) updateLabel(ctx context.Context, ms *MatchState, dispatcher runtime.MatchDispatcher, logger runtime.Logger) {
	view, err := ms.Games.State(ctx, ms.GameID, "")
	if errors.Is(err, domain.ErrGameNotFound) {
		return
	}
	if err != nil {
		logger.Error("UpdateLabel: %v", err)
		return
	}
	label, err := matchLabel(view.Game)
	if err != nil {
		logger.Error("UpdateLabel: Failed to marshal: %v", err)
		return
	}
	if err := dispatcher.MatchLabelUpdate(label); err != nil {
		logger.Error("UpdateLabel: Failed to update: %v", err)
	}
}

// matchLabel renders the JSON label that list_games style queries filter on,
// e.g. "+label.state:waiting +label.open:>=1".
func matchLabel(game app.GameView) (string, error) {
	label, err := structpb.NewStruct(map[string]interface{}{
		labelKeyGameID: game.ID,
		labelKeyName:   game.Name,
		labelKeyState:  string(game.State),
		labelKeyOpen:   game.MaxPlayers - len(game.Players),
	})
	if err != nil {
		return "", err
	}
	data, err := (&protojson.MarshalOptions{EmitUnpopulated: true}).Marshal(label)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func seated(game app.GameView, userID string) bool {
	for _, p := range game.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// botSeat returns a bot that can be replaced by a human, or "".
func botSeat(game app.GameView) string {
	if game.State != domain.StateWaiting {
		return ""
	}
	for _, p := range game.Players {
		if bot.IsBot(p.UserID) && p.UserID != game.CreatedBy {
			return p.UserID
		}
	}
	return ""
}

func humanCount(game app.GameView) int {
	n := 0
	for _, p := range game.Players {
		if !bot.IsBot(p.UserID) {
			n++
		}
	}
	return n
}

// end releases the match resources. Returning nil from a callback stops the
// match without MatchTerminate being called.
func (mh *matchHandler) end(ms *MatchState) interface{} {
	ms.Games.Close()
	ms.Roster.Remove(ms.GameID)
	return nil
}

func (mh *matchHandler) MatchTerminate(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, reason int) interface{} {
	logger.Debug("MatchTerminate: Match terminated for reason %d", reason)
	if ms, ok := state.(*MatchState); ok {
		ms.Games.Close()
		ms.Roster.Remove(ms.GameID)
	}
	return state
}

func (mh *matchHandler) MatchSignal(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, dispatcher runtime.MatchDispatcher, tick int64, state interface{}, data string) (interface{}, string) {
	return state, ""
}
