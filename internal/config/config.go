package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"bluff/internal/app"
	"bluff/internal/domain"
)

// Config holds settings for the standalone server and the simulator.
type Config struct {
	HTTPAddr         string        `env:"BLUFF_HTTP_ADDR" envDefault:":8080"`
	DBPath           string        `env:"BLUFF_DB_PATH" envDefault:"bluff.db"`
	NATSURL          string        `env:"NATS_URL"`
	NATSName         string        `env:"BLUFF_NATS_NAME" envDefault:"bluff-server"`
	JWTSecret        string        `env:"BLUFF_JWT_SECRET"`
	LogFormat        string        `env:"BLUFF_LOG_FORMAT" envDefault:"pretty"`
	LogLevel         string        `env:"BLUFF_LOG_LEVEL" envDefault:"info"`
	RulesPath        string        `env:"BLUFF_RULES_PATH"`
	ShuffleSource    string        `env:"BLUFF_SHUFFLE_SOURCE" envDefault:"math"`
	ActorIdleTimeout time.Duration `env:"BLUFF_ACTOR_IDLE_TIMEOUT" envDefault:"2m"`
	ShutdownTimeout  time.Duration `env:"BLUFF_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	OTelEndpoint     string        `env:"BLUFF_OTEL_ENDPOINT"`
	OTelSampleRatio  float64       `env:"BLUFF_OTEL_SAMPLE_RATIO" envDefault:"1"`
	// AllowedOrigins lists extra browser origins that may open WebSockets.
	AllowedOrigins []string `env:"BLUFF_ALLOWED_ORIGINS" envSeparator:","`
}

// LoadDotEnv reads a .env file into the process environment when one exists.
// Variables already set are left alone.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// ParseConfig parses environment and flags into a Config. Flags win.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.NATSURL, "nats", cfg.NATSURL, "NATS server URL (empty disables fan-out)")
	fs.StringVar(&cfg.RulesPath, "rules", cfg.RulesPath, "Path to a JSON rules file")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: pretty or json")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.ShuffleSource, "shuffle", cfg.ShuffleSource, "Shuffle randomness: math or crypto")
	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("parse flags: %w", err)
	}
	return cfg, nil
}

// Rules is the JSON rules file format. Zero values fall back to defaults.
type Rules struct {
	MinPlayers        int    `json:"min_players"`
	DefaultMaxPlayers int    `json:"default_max_players"`
	MaxPlayersLimit   int    `json:"max_players_limit"`
	StrictRankLadder  bool   `json:"strict_rank_ladder"`
	ShuffleSource     string `json:"shuffle_source"`
	// BotMinDelaySeconds and BotMaxDelaySeconds bound how long a bot waits before acting.
	BotMinDelaySeconds int `json:"bot_min_delay_seconds"`
	BotMaxDelaySeconds int `json:"bot_max_delay_seconds"`
	// BotsEnabled lets match hosts seat bots next to a lone human after BotAutoFillSeconds.
	BotsEnabled        bool   `json:"bots_enabled"`
	BotAutoFillSeconds int    `json:"bot_auto_fill_seconds"`
	BotIdentitiesPath  string `json:"bot_identities_path"`
}

// LoadRules reads a rules file. An empty path returns the defaults.
func LoadRules(path string) (Rules, error) {
	if path == "" {
		return Rules{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read rules: %w", err)
	}
	var r Rules
	if err := json.Unmarshal(data, &r); err != nil {
		return Rules{}, fmt.Errorf("failed to unmarshal rules: %w", err)
	}
	return r, nil
}

// RulesFromEnv reads rule overrides from a string map such as the Nakama
// runtime environment. Unknown or malformed values are ignored.
func RulesFromEnv(vars map[string]string) Rules {
	var r Rules
	atoi := func(key string, dst *int) {
		if v, ok := vars[key]; ok {
			if i, err := strconv.Atoi(v); err == nil {
				*dst = i
			}
		}
	}
	atoi("bluff_min_players", &r.MinPlayers)
	atoi("bluff_default_max_players", &r.DefaultMaxPlayers)
	atoi("bluff_max_players_limit", &r.MaxPlayersLimit)
	atoi("bluff_bot_min_delay_sec", &r.BotMinDelaySeconds)
	atoi("bluff_bot_max_delay_sec", &r.BotMaxDelaySeconds)
	atoi("bluff_bot_auto_fill_delay_sec", &r.BotAutoFillSeconds)
	r.BotsEnabled = vars["bluff_bots_enabled"] == "true"
	r.BotIdentitiesPath = vars["bluff_bot_identities_path"]
	r.StrictRankLadder = vars["bluff_strict_rank_ladder"] == "true"
	r.ShuffleSource = vars["bluff_shuffle_source"]
	return r
}

// AppRules converts the file format into the rules the app layer enforces.
func (r Rules) AppRules() app.Rules {
	out := app.Rules{
		MinPlayers:        r.MinPlayers,
		DefaultMaxPlayers: r.DefaultMaxPlayers,
		MaxPlayersLimit:   r.MaxPlayersLimit,
		RankPolicy:        domain.RankPolicyAny,
	}
	if r.StrictRankLadder {
		out.RankPolicy = domain.RankPolicyLadder
	}
	return out
}

// BotDelays returns the bot think-time bounds with defaults applied.
func (r Rules) BotDelays() (time.Duration, time.Duration) {
	lo, hi := r.BotMinDelaySeconds, r.BotMaxDelaySeconds
	if lo <= 0 {
		lo = 1
	}
	if hi < lo {
		hi = lo + 2
	}
	return time.Duration(lo) * time.Second, time.Duration(hi) * time.Second
}

// BotAutoFill returns how long a lone human waits before bots take the free seats.
func (r Rules) BotAutoFill() time.Duration {
	if r.BotAutoFillSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(r.BotAutoFillSeconds) * time.Second
}

// Shuffle resolves the shuffle source, letting the rules file override the
// service setting.
func (r Rules) Shuffle(fallback string) domain.ShuffleSource {
	if r.ShuffleSource != "" {
		return domain.ShuffleSource(r.ShuffleSource)
	}
	return domain.ShuffleSource(fallback)
}
