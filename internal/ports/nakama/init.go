package nakama

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/heroiclabs/nakama-common/runtime"

	"bluff/internal/app"
	"bluff/internal/config"
	"bluff/internal/domain"
)

// InitModule wires RPCs and match handlers for Nakama runtime.
func InitModule(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule, initializer runtime.Initializer) error {
	rules := config.RulesFromEnv(runtimeEnv(ctx))
	svc, err := newService(rules)
	if err != nil {
		return err
	}
	games := app.NewCoordinator(NewStorageStore(nk),
		app.WithLogger(NewLogger(logger, slog.LevelDebug)),
		app.WithService(svc),
	)

	if err := RegisterRPCs(initializer, games); err != nil {
		return err
	}

	if err := initializer.RegisterMatch(MatchNameBluff, func(ctx context.Context, logger runtime.Logger, db *sql.DB, nk runtime.NakamaModule) (runtime.Match, error) {
		return newMatchHandler(), nil
	}); err != nil {
		return err
	}

	logger.Info("Bluff Go module loaded.")
	return nil
}

func newService(rules config.Rules) (*app.Service, error) {
	rng, err := domain.NewRand(rules.Shuffle(string(domain.ShuffleSourceMath)))
	if err != nil {
		return nil, fmt.Errorf("shuffle source: %w", err)
	}
	return app.NewService(rng, rules.AppRules()), nil
}
