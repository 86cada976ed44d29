package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bluff/internal/app"
	"bluff/internal/domain"
)

const userIDKey = "userID"

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the router serves.
type Deps struct {
	Games    *app.Coordinator
	Sessions *app.SessionService
	Store    Pinger
	Logger   *slog.Logger
	// WebSocket is mounted at /ws when set.
	WebSocket http.Handler
}

type createGameRequest struct {
	Name       string `json:"name"`
	MaxPlayers int    `json:"maxPlayers"`
}

type playCardsRequest struct {
	Cards        []string `json:"cards"`
	DeclaredRank string   `json:"declaredRank"`
}

// NewRouter builds the HTTP lobby and query surface.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(d.Logger))

	r.GET("/status", func(c *gin.Context) {
		status, storeState := http.StatusOK, "ok"
		if d.Store != nil {
			if err := d.Store.Ping(c.Request.Context()); err != nil {
				status, storeState = http.StatusServiceUnavailable, "unavailable"
			}
		}
		c.JSON(status, gin.H{
			"active_games": d.Games.ActiveGames(),
			"store":        storeState,
		})
	})
	if d.WebSocket != nil {
		r.GET("/ws", gin.WrapH(d.WebSocket))
	}

	games := r.Group("/games", authenticate(d.Sessions))
	games.GET("", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		list, err := d.Games.ListWaitingGames(c.Request.Context(), limit)
		if err != nil {
			writeError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"games": list})
	})
	games.POST("", func(c *gin.Context) {
		var req createGameRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, d.Logger, domain.InvalidArgument("invalid request body"))
			return
		}
		view, err := d.Games.CreateGame(c.Request.Context(), c.GetString(userIDKey), req.Name, req.MaxPlayers)
		if err != nil {
			writeError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusCreated, view)
	})
	games.GET("/:id/state", func(c *gin.Context) {
		state, err := d.Games.State(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
		if err != nil {
			writeError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, state)
	})
	games.POST("/:id/join", action(d, d.Games.JoinGame))
	games.POST("/:id/leave", action(d, d.Games.LeaveGame))
	games.POST("/:id/start", action(d, d.Games.StartGame))
	games.POST("/:id/challenge", action(d, d.Games.Challenge))
	games.POST("/:id/play", func(c *gin.Context) {
		var req playCardsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, d.Logger, domain.InvalidArgument("invalid request body"))
			return
		}
		view, err := d.Games.PlayCards(c.Request.Context(), c.Param("id"), c.GetString(userIDKey), req.Cards, req.DeclaredRank)
		if err != nil {
			writeError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, view)
	})
	return r
}

func action(d Deps, fn func(ctx context.Context, gameID, userID string) (app.GameView, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		view, err := fn(c.Request.Context(), c.Param("id"), c.GetString(userIDKey))
		if err != nil {
			writeError(c, d.Logger, err)
			return
		}
		c.JSON(http.StatusOK, view)
	}
}

// authenticate resolves the caller from a bearer token, or from X-User-ID
// when sessions run in development mode.
func authenticate(sessions *app.SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		credential := c.GetHeader("Authorization")
		if sessions.DevMode() && credential == "" {
			credential = c.GetHeader("X-User-ID")
		}
		userID, err := sessions.Authenticate(credential)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHENTICATED", "message": "missing or invalid session"})
			return
		}
		c.Set(userIDKey, userID)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func writeError(c *gin.Context, logger *slog.Logger, err error) {
	reply := app.Describe(err)
	status := statusFor(reply.Code)
	if status == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, reply)
}

func statusFor(code domain.ErrorCode) int {
	switch code {
	case domain.CodeGameNotFound:
		return http.StatusNotFound
	case domain.CodeNotYourTurn, domain.CodeNotCreator, domain.CodeNotSeated:
		return http.StatusForbidden
	case domain.CodeInvalidCards, domain.CodeInvalidRank, domain.CodeRankNotAllowed,
		domain.CodeInvalidArgument, domain.CodeCannotChallengeSelf:
		return http.StatusBadRequest
	case domain.CodeNothingToChallenge, domain.CodeGameAlreadyFinished, domain.CodeGameNotWaiting,
		domain.CodeGameNotPlaying, domain.CodeGameFull, domain.CodeNotEnoughPlayers:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
