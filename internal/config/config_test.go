package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"algo_bot/internal/models"
)

func TestLoadFlags(t *testing.T) {
	cfg, err := Load([]string{"--exchange", "BitMEX", "--pair", "XBTUSD", "--stub", "--backtest", "--timeframe", "5m"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exchange != "bitmex" || cfg.Pair != "XBTUSD" || cfg.Timeframe != "5m" {
		t.Fatalf("cfg = %+v", cfg)
	}
	mode, conflict, err := cfg.ResolveMode()
	if err != nil || mode != models.ModePaper || !conflict {
		t.Fatalf("ResolveMode = %s %v %v, want paper with conflict", mode, conflict, err)
	}
	if cfg.Search.Budget != 200 || cfg.Backtest.Days != 90 || cfg.ConfirmTimeout != time.Minute {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestExplicitModeWins(t *testing.T) {
	cfg, err := Load([]string{"--optimize", "--mode", "live"})
	if err != nil {
		t.Fatal(err)
	}
	mode, conflict, err := cfg.ResolveMode()
	if err != nil || mode != models.ModeLive || conflict {
		t.Fatalf("ResolveMode = %s %v %v", mode, conflict, err)
	}

	cfg, _ = Load([]string{"--mode", "sideways"})
	if _, _, err := cfg.ResolveMode(); err == nil {
		t.Fatal("unknown --mode accepted")
	}
}

func TestEnvAndFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bot.yaml")
	yaml := `
exchange: binance
strategy: emarsi
telegram:
  token: abc
  chat_id: "-100123"
accounts:
  main:
    api_key: file-key
    api_secret: file-secret
backtest:
  days: 30
`
	if err := os.WriteFile(file, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ALGOBOT_PAIR", "ETHUSDT")
	t.Setenv("ALGOBOT_ACCOUNTS_MAIN_API_SECRET", "env-secret")

	cfg, err := Load([]string{"--config", file, "--account", "main"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exchange != "binance" || cfg.Strategy != "emarsi" || cfg.Backtest.Days != 30 {
		t.Errorf("file values missing: %+v", cfg)
	}
	if cfg.Pair != "ETHUSDT" {
		t.Errorf("pair = %s, want env value", cfg.Pair)
	}
	if cfg.Account.APIKey != "file-key" || cfg.Account.APISecret != "env-secret" {
		t.Errorf("account = %+v", cfg.Account)
	}
	if cfg.Telegram.Token != "abc" || cfg.Telegram.ChatID != -100123 {
		t.Errorf("telegram = %+v", cfg.Telegram)
	}
}

func TestRejectsBadTimeframe(t *testing.T) {
	if _, err := Load([]string{"--timeframe", "7m"}); err == nil {
		t.Fatal("timeframe 7m accepted")
	}
}

func TestParams(t *testing.T) {
	cfg, _ := Load(nil)
	if p, err := cfg.Params(); err != nil || len(p) != 0 {
		t.Fatalf("Params without file = %v, %v", p, err)
	}

	file := filepath.Join(t.TempDir(), "params.yaml")
	if err := os.WriteFile(file, []byte("period: 30\nqty: 0.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _ = Load([]string{"--params", file})
	p, err := cfg.Params()
	if err != nil || p["period"] != 30 || p["qty"] != 0.5 {
		t.Fatalf("Params = %v, %v", p, err)
	}
}
