package config

import (
	"strings"
	"testing"
	"time"
)

func validationErrors(t *testing.T, cfg *Config) []string {
	t.Helper()
	err := Validate(cfg)
	if err == nil {
		return nil
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	return ve.Errors
}

func hasError(errs []string, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestValidateDefaults(t *testing.T) {
	if errs := validationErrors(t, Defaults()); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateAccumulates(t *testing.T) {
	cfg := Defaults()
	cfg.Logger.Level = "loud"
	cfg.Game.White = "genius"
	cfg.Host.FPS = 0

	errs := validationErrors(t, cfg)
	for _, want := range []string{"logger.level", "game.white", "host.fps"} {
		if !hasError(errs, want) {
			t.Errorf("missing error for %s in %v", want, errs)
		}
	}
}

func TestValidateAgentLevels(t *testing.T) {
	cfg := Defaults()
	cfg.Agent.Levels["expert"] = LevelConfig{MaxDepth: 9}
	cfg.Agent.Levels["easy"] = LevelConfig{MaxDepth: 0}
	cfg.Agent.Levels["hard"] = LevelConfig{MaxDepth: 5, TimeBudget: -time.Second}

	errs := validationErrors(t, cfg)
	for _, want := range []string{`unknown level "expert"`, "easy.max_depth", "hard.time_budget"} {
		if !hasError(errs, want) {
			t.Errorf("missing error %q in %v", want, errs)
		}
	}
}

func TestValidateGateway(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GatewayConfig)
		want   string
	}{
		{"bad addr", func(g *GatewayConfig) { g.Addr = "nope" }, "gateway.addr"},
		{"static without tokens", func(g *GatewayConfig) { g.Auth.Type = "static" }, "tokens must not be empty"},
		{"short jwt secret", func(g *GatewayConfig) { g.Auth.Type = "jwt"; g.Auth.JWTSecret = "short" }, "jwt_secret"},
		{"unknown auth", func(g *GatewayConfig) { g.Auth.Type = "oauth" }, "auth.type"},
		{"zero rate", func(g *GatewayConfig) { g.EventsPerSecond = 0 }, "events_per_second"},
		{"unknown role", func(g *GatewayConfig) {
			g.Auth.Type = "static"
			g.Auth.Tokens = []TokenConfig{{Token: "t", Roles: []string{"root"}}}
		}, `unknown role "root"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Gateway.Enabled = true
			tt.mutate(&cfg.Gateway)
			if errs := validationErrors(t, cfg); !hasError(errs, tt.want) {
				t.Errorf("want error containing %q, got %v", tt.want, errs)
			}
		})
	}
}

func TestValidateGatewayDisabledSkipsChecks(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Addr = ""
	if errs := validationErrors(t, cfg); len(errs) != 0 {
		t.Errorf("unexpected errors: %v", errs)
	}
}

func TestValidateScheduler(t *testing.T) {
	cfg := Defaults()
	cfg.Scheduler.Enabled = true
	cfg.Scheduler.Tasks = []ScheduledTaskConfig{
		{Name: "nightly", Schedule: "0 3 * * *", Action: "selfplay"},
		{Name: "often", Schedule: "15m", Action: "selfplay", White: "hard"},
		{Name: "nightly", Schedule: "whenever", Action: "chat", Black: "superb"},
	}

	errs := validationErrors(t, cfg)
	for _, want := range []string{"duplicate task name", "neither a cron expression", `action "chat"`, `black "superb"`} {
		if !hasError(errs, want) {
			t.Errorf("missing error %q in %v", want, errs)
		}
	}
	if len(errs) != 4 {
		t.Errorf("got %d errors, want 4: %v", len(errs), errs)
	}
}

func TestValidateSelfPlayNeedsComputerPlayers(t *testing.T) {
	cfg := Defaults()
	cfg.SelfPlay.White = "off"
	if errs := validationErrors(t, cfg); !hasError(errs, "selfplay.white") {
		t.Errorf("expected selfplay.white error, got %v", errs)
	}
}

func TestIsDifficulty(t *testing.T) {
	for _, s := range []string{"off", "Easy", "MEDIUM", "hard"} {
		if !IsDifficulty(s) {
			t.Errorf("IsDifficulty(%q) = false", s)
		}
	}
	if IsDifficulty("grandmaster") {
		t.Error("IsDifficulty(grandmaster) = true")
	}
}
