package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if cfg.Agent.Levels["hard"].TimeBudget != 980*time.Millisecond {
		t.Errorf("hard time budget = %v, want 980ms", cfg.Agent.Levels["hard"].TimeBudget)
	}
	if cfg.Game.Black != "medium" {
		t.Errorf("Game.Black = %q, want medium", cfg.Game.Black)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Host.FPS != 30 {
		t.Errorf("expected defaults, got FPS=%d", cfg.Host.FPS)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", `
logger:
  level: "debug"
agent:
  workers: 2
  levels:
    hard:
      max_depth: 10
      time_budget: 2s
game:
  white: "easy"
  black: "off"
host:
  call_timeout: 500ms
gateway:
  enabled: true
  addr: "0.0.0.0:9000"
  auth:
    type: "static"
    tokens:
      - name: "local"
        token: "secret"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q", cfg.Logger.Level)
	}
	if cfg.Agent.Workers != 2 {
		t.Errorf("Agent.Workers = %d, want 2", cfg.Agent.Workers)
	}
	if got := cfg.Agent.Levels["hard"]; got.MaxDepth != 10 || got.TimeBudget != 2*time.Second {
		t.Errorf("hard level = %+v", got)
	}
	if cfg.Host.CallTimeout != 500*time.Millisecond {
		t.Errorf("Host.CallTimeout = %v", cfg.Host.CallTimeout)
	}
	if len(cfg.Gateway.Auth.Tokens) != 1 || cfg.Gateway.Auth.Tokens[0].Token != "secret" {
		t.Errorf("gateway tokens = %+v", cfg.Gateway.Auth.Tokens)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", "game: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadRejectsWorldWritable(t *testing.T) {
	path := writeConfigFile(t, t.TempDir(), "config.yaml", "logger:\n  level: info\n")
	if err := os.Chmod(path, 0o666); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "insecure permissions") {
		t.Fatalf("expected permission error, got %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MUEHLE_LOGGER_LEVEL", "debug")
	t.Setenv("MUEHLE_TRACER_ENABLED", "1")
	t.Setenv("MUEHLE_AGENT_WORKERS", "6")
	t.Setenv("MUEHLE_HOST_CALL_TIMEOUT", "750ms")
	t.Setenv("MUEHLE_GATEWAY_TOKEN", "from-env")
	t.Setenv("MUEHLE_GATEWAY_CORS_ORIGINS", "http://a.test, http://b.test")

	cfg := Defaults()
	if err := ApplyEnvOverrides(cfg); err != nil {
		t.Fatalf("ApplyEnvOverrides: %v", err)
	}

	if cfg.Logger.Level != "debug" {
		t.Errorf("Logger.Level = %q, want debug", cfg.Logger.Level)
	}
	if !cfg.Tracer.Enabled {
		t.Error("Tracer.Enabled should be true")
	}
	if cfg.Agent.Workers != 6 {
		t.Errorf("Agent.Workers = %d, want 6", cfg.Agent.Workers)
	}
	if cfg.Host.CallTimeout != 750*time.Millisecond {
		t.Errorf("Host.CallTimeout = %v", cfg.Host.CallTimeout)
	}
	if cfg.Gateway.Auth.Type != "static" || len(cfg.Gateway.Auth.Tokens) != 1 {
		t.Errorf("gateway auth = %+v", cfg.Gateway.Auth)
	}
	if len(cfg.Gateway.CORSOrigins) != 2 || cfg.Gateway.CORSOrigins[1] != "http://b.test" {
		t.Errorf("CORSOrigins = %v", cfg.Gateway.CORSOrigins)
	}
}

func TestEnvOverridesBadValues(t *testing.T) {
	t.Setenv("MUEHLE_AGENT_WORKERS", "many")
	t.Setenv("MUEHLE_METRICS_ENABLED", "perhaps")

	err := ApplyEnvOverrides(Defaults())
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T (%v)", err, err)
	}
	if len(ve.Errors) != 2 {
		t.Errorf("errors = %v, want 2", ve.Errors)
	}
}

func TestDotEnvLoaded(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, ".env", "MUEHLE_SELFPLAY_GAMES=4\n")
	t.Cleanup(func() { os.Unsetenv("MUEHLE_SELFPLAY_GAMES") })

	cfg, err := Load(filepath.Join(dir, "config.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SelfPlay.Games != 4 {
		t.Errorf("SelfPlay.Games = %d, want 4 from .env", cfg.SelfPlay.Games)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	enc, err := EncryptValue("ws-token", "passphrase")
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}
	dec, err := DecryptValue(enc, "passphrase")
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}
	if dec != "ws-token" {
		t.Errorf("got %q, want ws-token", dec)
	}
	if _, err := DecryptValue(enc, "wrong"); err == nil {
		t.Error("expected error with wrong passphrase")
	}
	if _, err := DecryptValue("no-separator", "passphrase"); err == nil {
		t.Error("expected format error")
	}
}

func TestLoadDecryptsGatewaySecrets(t *testing.T) {
	enc, err := EncryptValue("0123456789abcdef0123456789abcdef", "k")
	if err != nil {
		t.Fatal(err)
	}
	t.Setenv("MUEHLE_CONFIG_KEY", "k")

	path := writeConfigFile(t, t.TempDir(), "config.yaml", `
gateway:
  enabled: true
  addr: "127.0.0.1:9000"
  auth:
    type: "jwt"
    jwt_secret: "enc:`+enc+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Auth.JWTSecret != "0123456789abcdef0123456789abcdef" {
		t.Errorf("JWTSecret not decrypted: %q", cfg.Gateway.Auth.JWTSecret)
	}
}
