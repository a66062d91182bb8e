// Package config handles configuration loading and validation for roomcast.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RoomSeed is a group room created at startup.
type RoomSeed struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// RateLimit defines the per-connection inbound message rate limit.
type RateLimit struct {
	Burst         int `yaml:"burst"`
	RefillSeconds int `yaml:"refill_seconds"`
}

// RefillInterval returns the refill window as a duration.
func (r RateLimit) RefillInterval() time.Duration {
	return time.Duration(r.RefillSeconds) * time.Second
}

// Config holds the server configuration.
type Config struct {
	Listen         string     `yaml:"listen"`
	DataDir        string     `yaml:"data_dir"`
	UploadDir      string     `yaml:"upload_dir"`
	AllowedOrigins []string   `yaml:"allowed_origins"`
	MaxMessageSize int64      `yaml:"max_message_size"`
	MaxUploadSize  int64      `yaml:"max_upload_size"`
	RateLimit      RateLimit  `yaml:"rate_limit"`
	Rooms          []RoomSeed `yaml:"rooms"`
	DefaultRoom    string     `yaml:"default_room"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Listen:         ":8080",
		DataDir:        "data",
		UploadDir:      "uploads",
		AllowedOrigins: []string{"http://localhost:8080"},
		MaxMessageSize: 16 << 10,
		MaxUploadSize:  100 << 20,
		RateLimit: RateLimit{
			Burst:         5,
			RefillSeconds: 1,
		},
		Rooms: []RoomSeed{
			{ID: "general", Name: "General"},
			{ID: "music", Name: "Music"},
			{ID: "games", Name: "Games"},
		},
		DefaultRoom: "general",
	}
}

// Load reads configuration from path, falling back to defaults when path is
// empty or the file does not exist.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// No config file is fine; defaults apply.
		case err != nil:
			return Config{}, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		}
	}

	cfg.sanitize()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// sanitize replaces zero values with defaults.
func (c *Config) sanitize() {
	def := Default()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.UploadDir == "" {
		c.UploadDir = def.UploadDir
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = def.MaxMessageSize
	}
	if c.MaxUploadSize <= 0 {
		c.MaxUploadSize = def.MaxUploadSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = def.RateLimit.Burst
	}
	if c.RateLimit.RefillSeconds <= 0 {
		c.RateLimit.RefillSeconds = def.RateLimit.RefillSeconds
	}
	if len(c.Rooms) == 0 {
		c.Rooms = def.Rooms
	}
	if c.DefaultRoom == "" {
		c.DefaultRoom = c.Rooms[0].ID
	}
}

// Validate checks the room seeds are coherent.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Rooms))
	for _, room := range c.Rooms {
		if room.ID == "" {
			return fmt.Errorf("room with empty id")
		}
		if _, dup := seen[room.ID]; dup {
			return fmt.Errorf("duplicate room id %q", room.ID)
		}
		seen[room.ID] = struct{}{}
	}

	if _, ok := seen[c.DefaultRoom]; !ok {
		return fmt.Errorf("default room %q is not a configured room", c.DefaultRoom)
	}
	return nil
}
