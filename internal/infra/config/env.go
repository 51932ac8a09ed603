package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "MUEHLE_"

// ApplyEnvOverrides maps MUEHLE_* env vars to config fields. Values that do
// not parse are reported together as a *ValidationError.
func ApplyEnvOverrides(cfg *Config) error {
	ve := &ValidationError{}
	e := envReader{ve: ve}

	e.str("LOGGER_LEVEL", &cfg.Logger.Level)
	e.str("LOGGER_FORMAT", &cfg.Logger.Format)
	e.str("LOGGER_OUTPUT", &cfg.Logger.Output)
	e.boolean("TRACER_ENABLED", &cfg.Tracer.Enabled)
	e.str("TRACER_EXPORTER", &cfg.Tracer.Exporter)
	e.str("TRACER_FILE", &cfg.Tracer.File)
	e.boolean("METRICS_ENABLED", &cfg.Metrics.Enabled)

	e.integer("AGENT_WORKERS", &cfg.Agent.Workers)
	e.str("GAME_WHITE", &cfg.Game.White)
	e.str("GAME_BLACK", &cfg.Game.Black)
	e.str("GAME_LOAD", &cfg.Game.Load)

	e.integer("HOST_MAX_MEMORY_MB", &cfg.Host.MaxMemoryMB)
	e.duration("HOST_CALL_TIMEOUT", &cfg.Host.CallTimeout)
	e.str("HOST_CACHE_DIR", &cfg.Host.CacheDir)
	e.integer("HOST_FPS", &cfg.Host.FPS)
	e.boolean("HOST_BLOCK_PRIVATE_URLS", &cfg.Host.BlockPrivateURLs)

	e.boolean("GATEWAY_ENABLED", &cfg.Gateway.Enabled)
	e.str("GATEWAY_ADDR", &cfg.Gateway.Addr)
	e.str("GATEWAY_AUTH_TYPE", &cfg.Gateway.Auth.Type)
	e.str("GATEWAY_JWT_SECRET", &cfg.Gateway.Auth.JWTSecret)
	if v := os.Getenv(EnvPrefix + "GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Auth.Tokens = append(cfg.Gateway.Auth.Tokens, TokenConfig{Token: v, Name: "env"})
		if cfg.Gateway.Auth.Type == "" {
			cfg.Gateway.Auth.Type = "static"
		}
	}
	if v := os.Getenv(EnvPrefix + "GATEWAY_CORS_ORIGINS"); v != "" {
		cfg.Gateway.CORSOrigins = splitAndTrim(v, ",")
	}

	e.str("STORE_PATH", &cfg.Store.Path)
	e.integer("SELFPLAY_GAMES", &cfg.SelfPlay.Games)
	e.integer("SELFPLAY_MAX_PLIES", &cfg.SelfPlay.MaxPlies)

	if ve.HasErrors() {
		return ve
	}
	return nil
}

type envReader struct {
	ve *ValidationError
}

func (e envReader) lookup(key string) (string, bool) {
	v := os.Getenv(EnvPrefix + key)
	return v, v != ""
}

func (e envReader) str(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e envReader) boolean(key string, dst *bool) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		e.ve.Add("%s%s: %q is not a boolean", EnvPrefix, key, v)
		return
	}
	*dst = b
}

func (e envReader) integer(key string, dst *int) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		e.ve.Add("%s%s: %q is not an integer", EnvPrefix, key, v)
		return
	}
	*dst = n
}

func (e envReader) duration(key string, dst *time.Duration) {
	v, ok := e.lookup(key)
	if !ok {
		return
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		e.ve.Add("%s%s: %q is not a duration", EnvPrefix, key, v)
		return
	}
	*dst = d
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
