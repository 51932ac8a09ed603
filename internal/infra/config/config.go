package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Logger    LoggerConfig    `yaml:"logger"`
	Tracer    TracerConfig    `yaml:"tracer"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Agent     AgentConfig     `yaml:"agent"`
	Game      GameConfig      `yaml:"game"`
	Host      HostConfig      `yaml:"host"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Store     StoreConfig     `yaml:"store"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	SelfPlay  SelfPlayConfig  `yaml:"selfplay"`
	Includes  []string        `yaml:"includes,omitempty"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`               // stdout, stderr, file or noop
	File        string  `yaml:"file,omitempty"`         // span output for the file exporter
	SampleRatio float64 `yaml:"sample_ratio,omitempty"` // 0 or 1 samples every trace
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// AgentConfig holds computer player settings.
type AgentConfig struct {
	Workers int                    `yaml:"workers"` // 0 = GOMAXPROCS
	Levels  map[string]LevelConfig `yaml:"levels"`  // keyed by easy, medium, hard
}

// LevelConfig is the search budget of one difficulty.
type LevelConfig struct {
	MaxDepth   int           `yaml:"max_depth"`
	TimeBudget time.Duration `yaml:"time_budget"`
}

// GameConfig holds the settings of a local game.
type GameConfig struct {
	White string `yaml:"white"` // difficulty of the white computer player, "off" for a human
	Black string `yaml:"black"`
	Load  string `yaml:"load,omitempty"` // snapshot file loaded at startup
}

// HostConfig holds WASM host settings.
type HostConfig struct {
	MaxMemoryMB  int           `yaml:"max_memory_mb"`
	MaxModuleMB  int           `yaml:"max_module_mb"`
	CallTimeout  time.Duration `yaml:"call_timeout"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	CacheDir     string        `yaml:"cache_dir,omitempty"` // compilation cache, empty = in-memory
	FPS          int           `yaml:"fps"`
	Width        float64       `yaml:"width"`
	Height       float64       `yaml:"height"`
	MaxTraps     int           `yaml:"max_traps"` // consecutive traps before the runner stops

	BlockPrivateURLs bool `yaml:"block_private_urls"` // refuse module URLs on private networks
}

// GatewayConfig holds WebSocket gateway settings.
type GatewayConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Addr            string        `yaml:"addr"`
	Auth            AuthConfig    `yaml:"auth"`
	EventsPerSecond float64       `yaml:"events_per_second"` // per connection
	EventBurst      int           `yaml:"event_burst"`
	HTTPRequestsPer int           `yaml:"http_requests_per_minute"`
	CORSOrigins     []string      `yaml:"cors_origins,omitempty"`
	TrustedProxies  []string      `yaml:"trusted_proxies,omitempty"` // peers whose X-Forwarded-For is honoured
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig holds gateway authentication settings.
type AuthConfig struct {
	Type      string        `yaml:"type"` // "static", "jwt" or ""
	Tokens    []TokenConfig `yaml:"tokens,omitempty"`
	JWTSecret string        `yaml:"jwt_secret,omitempty"`
	JWTIssuer string        `yaml:"jwt_issuer,omitempty"`
}

// TokenConfig holds a single gateway auth token.
type TokenConfig struct {
	Token string   `yaml:"token"`
	Name  string   `yaml:"name"`
	Roles []string `yaml:"roles"`
}

// StoreConfig holds game history settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// SchedulerConfig holds cron/scheduler settings.
type SchedulerConfig struct {
	Enabled bool                  `yaml:"enabled"`
	Tasks   []ScheduledTaskConfig `yaml:"tasks"`
}

// ScheduledTaskConfig defines a single scheduled task.
type ScheduledTaskConfig struct {
	Name     string        `yaml:"name"`
	Schedule string        `yaml:"schedule"` // cron expression or duration string
	Action   string        `yaml:"action"`   // "selfplay"
	Games    int           `yaml:"games,omitempty"`
	White    string        `yaml:"white,omitempty"`
	Black    string        `yaml:"black,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty"`
	OneShot  bool          `yaml:"one_shot,omitempty"`
}

// SelfPlayConfig holds defaults for AI-vs-AI games.
type SelfPlayConfig struct {
	Games    int    `yaml:"games"`
	White    string `yaml:"white"`
	Black    string `yaml:"black"`
	MaxPlies int    `yaml:"max_plies"` // a game reaching this many plies is a draw
}

// defaultDataDir returns the persistent data directory under $HOME/.muehle.
// Falls back to "./data" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".muehle")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "muehle",
		},
		Agent: AgentConfig{
			Levels: map[string]LevelConfig{
				"easy":   {MaxDepth: 1},
				"medium": {MaxDepth: 3},
				"hard":   {MaxDepth: 64, TimeBudget: 980 * time.Millisecond},
			},
		},
		Game: GameConfig{
			White: "off",
			Black: "medium",
		},
		Host: HostConfig{
			MaxMemoryMB:  64,
			MaxModuleMB:  32,
			CallTimeout:  2 * time.Second,
			FetchTimeout: 30 * time.Second,
			FPS:          30,
			Width:        1280,
			Height:       1600,
			MaxTraps:     5,
		},
		Gateway: GatewayConfig{
			Addr:            "127.0.0.1:8790",
			EventsPerSecond: 60,
			EventBurst:      120,
			HTTPRequestsPer: 120,
			ShutdownTimeout: 5 * time.Second,
		},
		Store: StoreConfig{
			Path: filepath.Join(defaultDataDir(), "games.db"),
		},
		SelfPlay: SelfPlayConfig{
			Games:    1,
			White:    "medium",
			Black:    "medium",
			MaxPlies: 200,
		},
	}
}

// Load reads a YAML config file, applies .env and env var overrides, and
// decrypts secrets. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if err := loadDotEnv(filepath.Dir(path)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return finish(cfg)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		if err := mergeIncludes(cfg, absPath); err != nil {
			return nil, err
		}

		// Second pass: the main file takes precedence over its includes.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if passphrase := os.Getenv("MUEHLE_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads dir/.env into the process environment. Variables that are
// already set win.
func loadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// validatePermissions checks the config file has restrictive permissions.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
