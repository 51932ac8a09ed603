package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"muehle-agent/internal/domain"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	validateAgent(cfg, ve)
	validateGame(cfg, ve)
	validateHost(cfg, ve)
	validateGateway(cfg, ve)
	validateStore(cfg, ve)
	validateScheduler(cfg, ve)
	validateSelfPlay(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

// Difficulty names accepted wherever a player strength is configured.
var validDifficulties = map[string]bool{"off": true, "easy": true, "medium": true, "hard": true}

// IsDifficulty reports whether s names a difficulty, ignoring case.
func IsDifficulty(s string) bool {
	return validDifficulties[strings.ToLower(s)]
}

func validateLogger(cfg *Config, ve *ValidationError) {
	switch strings.ToLower(cfg.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
	if cfg.Logger.Output == "" {
		ve.Add("logger.output must not be empty")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "stdout", "stderr", "noop", "":
	case "file":
		if cfg.Tracer.File == "" {
			ve.Add("tracer.file is required for the file exporter")
		}
	default:
		ve.Add("tracer.exporter %q is invalid (want: stdout, stderr, file, noop)", cfg.Tracer.Exporter)
	}
	if r := cfg.Tracer.SampleRatio; r < 0 || r > 1 {
		ve.Add("tracer.sample_ratio must be within [0, 1]")
	}
}

func validateAgent(cfg *Config, ve *ValidationError) {
	if cfg.Agent.Workers < 0 {
		ve.Add("agent.workers must be >= 0")
	}
	for name, lv := range cfg.Agent.Levels {
		switch name {
		case "easy", "medium", "hard":
		default:
			ve.Add("agent.levels: unknown level %q (want: easy, medium, hard)", name)
			continue
		}
		if lv.MaxDepth <= 0 {
			ve.Add("agent.levels.%s.max_depth must be > 0", name)
		}
		if lv.TimeBudget < 0 {
			ve.Add("agent.levels.%s.time_budget must be >= 0", name)
		}
	}
}

func validateGame(cfg *Config, ve *ValidationError) {
	if !IsDifficulty(cfg.Game.White) {
		ve.Add("game.white %q is not a difficulty", cfg.Game.White)
	}
	if !IsDifficulty(cfg.Game.Black) {
		ve.Add("game.black %q is not a difficulty", cfg.Game.Black)
	}
}

func validateHost(cfg *Config, ve *ValidationError) {
	h := cfg.Host
	if h.MaxMemoryMB <= 0 || h.MaxMemoryMB > 4096 {
		ve.Add("host.max_memory_mb must be between 1 and 4096")
	}
	if h.MaxModuleMB <= 0 {
		ve.Add("host.max_module_mb must be > 0")
	}
	if h.CallTimeout <= 0 {
		ve.Add("host.call_timeout must be > 0")
	}
	if h.FetchTimeout <= 0 {
		ve.Add("host.fetch_timeout must be > 0")
	}
	if h.FPS <= 0 || h.FPS > 240 {
		ve.Add("host.fps must be between 1 and 240")
	}
	if h.Width <= 0 || h.Height <= 0 {
		ve.Add("host.width and host.height must be > 0")
	}
	if h.MaxTraps <= 0 {
		ve.Add("host.max_traps must be > 0")
	}
}

func validateGateway(cfg *Config, ve *ValidationError) {
	if !cfg.Gateway.Enabled {
		return
	}
	g := cfg.Gateway
	if g.Addr == "" {
		ve.Add("gateway.addr is required when gateway is enabled")
	} else if _, _, err := net.SplitHostPort(g.Addr); err != nil {
		ve.Add("gateway.addr %q is not a valid host:port", g.Addr)
	}
	if g.EventsPerSecond <= 0 {
		ve.Add("gateway.events_per_second must be > 0")
	}
	if g.EventBurst <= 0 {
		ve.Add("gateway.event_burst must be > 0")
	}
	if g.HTTPRequestsPer < 0 {
		ve.Add("gateway.http_requests_per_minute must be >= 0")
	}

	switch g.Auth.Type {
	case "":
	case "static":
		if len(g.Auth.Tokens) == 0 {
			ve.Add("gateway.auth.tokens must not be empty for static auth")
		}
		for i, tok := range g.Auth.Tokens {
			if tok.Token == "" {
				ve.Add("gateway.auth.tokens[%d].token is required", i)
			}
			for _, r := range tok.Roles {
				if !domain.IsValidAuthRole(r) {
					ve.Add("gateway.auth.tokens[%d] has unknown role %q", i, r)
				}
			}
		}
	case "jwt":
		if len(g.Auth.JWTSecret) < 32 {
			ve.Add("gateway.auth.jwt_secret must be at least 32 bytes")
		}
	default:
		ve.Add("gateway.auth.type %q is invalid (want: static, jwt)", g.Auth.Type)
	}
}

func validateStore(cfg *Config, ve *ValidationError) {
	if cfg.Store.Path == "" {
		ve.Add("store.path must not be empty")
	}
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func validateScheduler(cfg *Config, ve *ValidationError) {
	if !cfg.Scheduler.Enabled {
		return
	}
	seen := make(map[string]bool)
	for i, t := range cfg.Scheduler.Tasks {
		if t.Name == "" {
			ve.Add("scheduler.tasks[%d].name is required", i)
		} else if seen[t.Name] {
			ve.Add("scheduler.tasks[%d]: duplicate task name %q", i, t.Name)
		}
		seen[t.Name] = true

		if t.Schedule == "" {
			ve.Add("scheduler.tasks[%d].schedule is required", i)
		} else if !validSchedule(t.Schedule) {
			ve.Add("scheduler.tasks[%d].schedule %q is neither a cron expression nor a duration", i, t.Schedule)
		}
		if t.Action != "selfplay" {
			ve.Add("scheduler.tasks[%d].action %q is invalid (want: selfplay)", i, t.Action)
		}
		if t.White != "" && !IsDifficulty(t.White) {
			ve.Add("scheduler.tasks[%d].white %q is not a difficulty", i, t.White)
		}
		if t.Black != "" && !IsDifficulty(t.Black) {
			ve.Add("scheduler.tasks[%d].black %q is not a difficulty", i, t.Black)
		}
		if t.Games < 0 {
			ve.Add("scheduler.tasks[%d].games must be >= 0", i)
		}
	}
}

func validSchedule(s string) bool {
	if d, err := time.ParseDuration(s); err == nil {
		return d > 0
	}
	_, err := cronParser.Parse(s)
	return err == nil
}

func validateSelfPlay(cfg *Config, ve *ValidationError) {
	sp := cfg.SelfPlay
	if sp.Games <= 0 {
		ve.Add("selfplay.games must be > 0")
	}
	if sp.MaxPlies <= 0 {
		ve.Add("selfplay.max_plies must be > 0")
	}
	for _, side := range []struct{ name, value string }{{"white", sp.White}, {"black", sp.Black}} {
		if !IsDifficulty(side.value) || strings.EqualFold(side.value, "off") {
			ve.Add("selfplay.%s %q must be easy, medium or hard", side.name, side.value)
		}
	}
}
