// Package config assembles the run configuration from command-line flags,
// an optional YAML file, .env and ALGOBOT_* environment variables, in that
// order of precedence.
package config

import (
	"strings"
	"time"

	"algo_bot/internal/helper"
	"algo_bot/internal/models"
	"algo_bot/internal/params"
	"algo_bot/pkg/logger"
	"algo_bot/pkg/tracing"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "ALGOBOT"

type Telegram struct {
	Token    string
	ChatID   int64
	Endpoint string
}

type Health struct {
	Enabled bool
	Addr    string
}

type Backtest struct {
	Days     int
	Balance  float64
	FeeRate  float64
	CacheDir string
}

type Search struct {
	Budget   int
	Seed     int64
	TrialsDB string
}

type Venue struct {
	RateLimit     float64
	MaxReconnects int
}

type Config struct {
	Exchange  string
	Pair      string
	Timeframe string
	Account   models.Account
	Strategy  string
	Lookback  int

	Flags   models.Flags
	Mode    string // explicit selector, overrides Flags
	Testnet bool

	SessionFile string
	SessionName string // postgres session row when no file is set
	ParamsFile  string

	ConfirmLive    bool
	ConfirmTimeout time.Duration

	DatabaseDSN string
	Log         logger.Config
	Tracing     tracing.Config
	Telegram    Telegram
	Health      Health
	Backtest    Backtest
	Search      Search
	Venue       Venue
}

// Flags declares the command line. Names double as viper keys.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("algo_bot", pflag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	fs.String("exchange", "", "bitmex | binance | ftx")
	fs.String("pair", "BTCUSDT", "trading pair")
	fs.String("timeframe", "1h", "bar timeframe")
	fs.String("account", "binanceaccount1", "account name; keys come from accounts.<name>")
	fs.String("strategy", "donchian", "strategy name")
	fs.Int("lookback", 0, "window length; 0 uses the strategy's own")
	fs.Bool("optimize", false, "run parameter search")
	fs.Bool("paper", false, "paper trade on live data")
	fs.Bool("stub", false, "alias of --paper")
	fs.Bool("backtest", false, "backtest on history")
	fs.String("mode", "", "explicit mode: optimize | paper | backtest | live")
	fs.Bool("testnet", false, "use the venue's test network")
	fs.String("session", "", "session file")
	fs.String("params", "", "YAML file of strategy parameters")
	return fs
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)
	v.SetDefault("health.enabled", true)
	v.SetDefault("health.addr", ":8080")
	v.SetDefault("backtest.days", 90)
	v.SetDefault("backtest.balance", 10000.0)
	v.SetDefault("backtest.fee_rate", 0.0004)
	v.SetDefault("backtest.cache_dir", "data/history")
	v.SetDefault("search.budget", 200)
	v.SetDefault("search.seed", 0)
	v.SetDefault("search.trials_db", "")
	v.SetDefault("venue.rate_limit", 5.0)
	v.SetDefault("venue.max_reconnects", 8)
	v.SetDefault("confirm_live", false)
	v.SetDefault("confirm_timeout", "60s")
	v.SetDefault("session_name", "")
	v.SetDefault("database_dsn", "")
}

// Load parses args and resolves the configuration.
func Load(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config %s", file)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	name := v.GetString("account")
	cfg := &Config{
		Exchange:  strings.ToLower(v.GetString("exchange")),
		Pair:      v.GetString("pair"),
		Timeframe: helper.NormTF(v.GetString("timeframe")),
		Account: models.Account{
			Name:      name,
			APIKey:    v.GetString("accounts." + name + ".api_key"),
			APISecret: v.GetString("accounts." + name + ".api_secret"),
		},
		Strategy: v.GetString("strategy"),
		Lookback: v.GetInt("lookback"),
		Flags: models.Flags{
			Optimize: v.GetBool("optimize"),
			Paper:    v.GetBool("paper") || v.GetBool("stub"),
			Backtest: v.GetBool("backtest"),
		},
		Mode:           v.GetString("mode"),
		Testnet:        v.GetBool("testnet"),
		SessionFile:    v.GetString("session"),
		SessionName:    v.GetString("session_name"),
		ParamsFile:     v.GetString("params"),
		ConfirmLive:    v.GetBool("confirm_live"),
		ConfirmTimeout: v.GetDuration("confirm_timeout"),
		DatabaseDSN:    v.GetString("database_dsn"),
		Log: logger.Config{
			Level:    v.GetString("log.level"),
			Encoding: v.GetString("log.encoding"),
			Service:  "algo_bot",
		},
		Tracing: tracing.Config{
			Enabled: v.GetBool("tracing.enabled"),
			Host:    v.GetString("tracing.host"),
			Port:    v.GetInt("tracing.port"),
		},
		Telegram: Telegram{
			Token:    v.GetString("telegram.token"),
			Endpoint: v.GetString("telegram.endpoint"),
		},
		Health: Health{
			Enabled: v.GetBool("health.enabled"),
			Addr:    v.GetString("health.addr"),
		},
		Backtest: Backtest{
			Days:     v.GetInt("backtest.days"),
			Balance:  v.GetFloat64("backtest.balance"),
			FeeRate:  v.GetFloat64("backtest.fee_rate"),
			CacheDir: v.GetString("backtest.cache_dir"),
		},
		Search: Search{
			Budget:   v.GetInt("search.budget"),
			Seed:     v.GetInt64("search.seed"),
			TrialsDB: v.GetString("search.trials_db"),
		},
		Venue: Venue{
			RateLimit:     v.GetFloat64("venue.rate_limit"),
			MaxReconnects: v.GetInt("venue.max_reconnects"),
		},
	}

	// chat ids are often quoted in YAML and env
	chatID, err := cast.ToInt64E(v.Get("telegram.chat_id"))
	if err != nil && v.IsSet("telegram.chat_id") {
		return nil, errors.Wrap(err, "telegram.chat_id")
	}
	cfg.Telegram.ChatID = chatID

	if cfg.Timeframe == "" || models.TimeframeDuration(cfg.Timeframe) == 0 {
		return nil, errors.Errorf("unsupported timeframe %q", cfg.Timeframe)
	}
	return cfg, nil
}

// ResolveMode applies the explicit --mode when given, the flag priority
// otherwise. conflict is true when more than one flag was raised.
func (c *Config) ResolveMode() (mode models.Mode, conflict bool, err error) {
	if c.Mode != "" {
		mode, err = models.ParseMode(c.Mode)
		return mode, false, err
	}
	return models.ResolveMode(c.Flags), c.Flags.Count() > 1, nil
}

// Params loads the parameter file, empty when none is configured.
func (c *Config) Params() (params.Values, error) {
	if c.ParamsFile == "" {
		return params.Values{}, nil
	}
	return params.LoadFile(c.ParamsFile)
}
