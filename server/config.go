package server

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the runtime configuration, loaded from TOWN_* environment
// variables with sensible defaults.
type Config struct {
	Addr    string `env:"TOWN_ADDR" envDefault:":8080"`
	LogFile string `env:"TOWN_LOG_FILE" envDefault:"town.log"`

	// DefaultRoom is the slug used when a client connects without one.
	DefaultRoom string `env:"TOWN_DEFAULT_ROOM" envDefault:"town"`

	// SweepInterval is how often each room scans for stale sessions;
	// StaleAfter is how long a session may stay silent before eviction.
	SweepInterval time.Duration `env:"TOWN_SWEEP_INTERVAL" envDefault:"30s"`
	StaleAfter    time.Duration `env:"TOWN_STALE_AFTER" envDefault:"120s"`

	// ReplicationInterval is the coalescing window for state deltas.
	ReplicationInterval time.Duration `env:"TOWN_REPLICATION_INTERVAL" envDefault:"100ms"`

	// MaxPlayers caps a room's population at join time; 0 disables the cap.
	MaxPlayers int `env:"TOWN_MAX_PLAYERS" envDefault:"50"`

	// EmptyRoomTTL disposes a room that stayed empty this long; 0 keeps
	// empty rooms alive forever.
	EmptyRoomTTL time.Duration `env:"TOWN_EMPTY_ROOM_TTL" envDefault:"0s"`

	// ChatLogPath is the sqlite file for chat history; empty disables it.
	ChatLogPath string `env:"TOWN_CHAT_LOG" envDefault:""`
}

// LoadConfig parses configuration from environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
