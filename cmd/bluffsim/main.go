// Command bluffsim seats a table of bots and plays one game to the end in
// process, printing every claim and challenge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/pterm/pterm"

	"bluff/internal/app"
	"bluff/internal/bot"
	"bluff/internal/config"
	"bluff/internal/domain"
	"bluff/internal/platform/logging"
	"bluff/internal/ports"
	"bluff/internal/ports/memory"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

type options struct {
	players    int
	seed       int64
	maxSteps   int
	delay      time.Duration
	identities string
	rulesPath  string
	logLevel   string
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("bluffsim", flag.ContinueOnError)
	var o options
	fs.IntVar(&o.players, "players", 4, "Number of bots at the table")
	fs.Int64Var(&o.seed, "seed", time.Now().UnixNano(), "Random seed for the deal and the bots")
	fs.IntVar(&o.maxSteps, "max-steps", 5000, "Give up after this many bot actions")
	fs.DurationVar(&o.delay, "delay", 0, "Pause between actions")
	fs.StringVar(&o.identities, "identities", "", "Path to a bot identities JSON file")
	fs.StringVar(&o.rulesPath, "rules", "", "Path to a JSON rules file")
	fs.StringVar(&o.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.players < domain.MinPlayers {
		return options{}, fmt.Errorf("need at least %d players", domain.MinPlayers)
	}
	return o, nil
}

func run(args []string) error {
	o, err := parseFlags(args)
	if err != nil {
		return err
	}
	logger, err := logging.New("pretty", o.logLevel, os.Stderr)
	if err != nil {
		return err
	}
	rules, err := config.LoadRules(o.rulesPath)
	if err != nil {
		return err
	}
	ids := bot.DefaultIdentities()
	if o.identities != "" {
		if ids, err = bot.LoadIdentities(o.identities); err != nil {
			return err
		}
	}
	if o.players > len(ids) {
		return fmt.Errorf("only %d bot identities available", len(ids))
	}

	ctx := context.Background()
	bus := memory.NewBus()
	roster := bot.NewRoster(logger)
	games := app.NewCoordinator(memory.NewStore(),
		app.WithLogger(logger),
		app.WithBroadcaster(ports.MultiBroadcaster{roster, bus}),
		app.WithService(app.NewService(rand.New(rand.NewSource(o.seed)), rules.AppRules())),
	)
	defer games.Close()

	names := make(map[string]string, o.players)
	creator := ids.Get(0)
	view, err := games.CreateGame(ctx, creator.UserID, "simulation", o.players)
	if err != nil {
		return err
	}
	for i := 0; i < o.players; i++ {
		identity := ids.Get(i)
		names[identity.UserID] = identity.DisplayName
		if i > 0 {
			if _, err := games.JoinGame(ctx, view.ID, identity.UserID); err != nil {
				return err
			}
		}
		agent, err := bot.NewAgent(identity, rand.New(rand.NewSource(o.seed+int64(i)+1)))
		if err != nil {
			return err
		}
		roster.Seat(view.ID, agent)
		pterm.Info.Printfln("%s joins as a %s bot", identity.DisplayName, identity.Level)
	}

	events, cancel := bus.Subscribe(view.ID, 256)
	defer cancel()
	if _, err := games.StartGame(ctx, view.ID, creator.UserID); err != nil {
		return err
	}
	pterm.Success.Printfln("Cards dealt (seed %d)", o.seed)

	p := printer{names: names}
	for step := 0; step < o.maxSteps; step++ {
		acted, err := roster.Step(ctx, games, view.ID)
		if err != nil {
			return err
		}
		if p.drain(events) {
			return p.finish(ctx, games, view.ID, creator.UserID)
		}
		if !acted {
			return errors.New("no bot could act; the game is stuck")
		}
		if o.delay > 0 {
			time.Sleep(o.delay)
		}
	}
	return fmt.Errorf("no winner after %d actions", o.maxSteps)
}

type printer struct {
	names map[string]string
	ended bool
}

func (p *printer) name(userID string) string {
	if n, ok := p.names[userID]; ok {
		return n
	}
	return userID
}

// drain prints the events queued so far and reports whether the game ended.
func (p *printer) drain(events <-chan ports.Envelope) bool {
	for {
		select {
		case env := <-events:
			p.print(env)
		default:
			return p.ended
		}
	}
}

func (p *printer) print(env ports.Envelope) {
	switch data := env.Data.(type) {
	case app.PlayCardsPayload:
		pterm.Printfln("%s plays %d card(s) as %s", pterm.Cyan(p.name(data.UserID)), data.CardCount, pterm.LightYellow(string(data.DeclaredRank)))
	case app.ChallengeResultPayload:
		verdict := pterm.Green("told the truth")
		if data.Liar {
			verdict = pterm.Red("was lying")
		}
		pterm.Warning.Printfln("%s calls %s, who %s: %v. %s picks up %d card(s)",
			p.name(data.ChallengerID), p.name(data.ChallengedID), verdict, data.Revealed, p.name(data.RecipientID), data.PileSize)
	case app.GameEndedPayload:
		p.ended = true
		pterm.Success.Printfln("%s empties their hand and wins", p.name(data.WinnerID))
	}
}

func (p *printer) finish(ctx context.Context, games *app.Coordinator, gameID, viewer string) error {
	state, err := games.State(ctx, gameID, viewer)
	if err != nil {
		return err
	}
	rows := [][]string{{"Seat", "Player", "Cards left"}}
	for _, pl := range state.Players {
		rows = append(rows, []string{strconv.Itoa(pl.Position), p.name(pl.UserID), strconv.Itoa(pl.CardCount)})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
