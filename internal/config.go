package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Host               string `env:"HOST,default=0.0.0.0"`
	Port               int    `env:"PORT,default=8080"`
	GrpcPort           int    `env:"GRPC_PORT,default=9090"`
	LogLevel           string `env:"LOG_LEVEL,default=INFO"`
	JwtSecret          string `env:"JWT_SECRET,required=true"`
	DatabaseURL        string `env:"DATABASE_URL,required=true"`
	BadgerFilepath     string `env:"BADGER_FILEPATH,default=./data/badger"`
	FrontendURL        string `env:"FRONTEND_URL,default=http://localhost:3000"`
	DebugInspectorPort int    `env:"DEBUG_INSPECTOR_PORT,default=8081"`

	MaxUserMessages    int `env:"MAX_USER_MESSAGES,default=50"`
	MaxChannelMessages int `env:"MAX_CHANNEL_MESSAGES,default=250"`
	MaxChannelHashtags int `env:"MAX_CHANNEL_HASHTAGS,default=10"`
	DefaultPageSize    int `env:"DEFAULT_PAGE_SIZE,default=20"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	MaxFrameSize         int64         `env:"MAX_FRAME_SIZE,default=65536"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=2s"`
	RetentionWorkers     int           `env:"RETENTION_WORKERS,default=2"`
	RetentionBufferSize  int           `env:"RETENTION_BUFFER_SIZE,default=256"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	HealthInterval       time.Duration `env:"HEALTH_INTERVAL,default=10s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate rejects values the relay cannot run with.
func (c Config) Validate() error {
	positives := []struct {
		name  string
		value int64
	}{
		{"PORT", int64(c.Port)},
		{"GRPC_PORT", int64(c.GrpcPort)},
		{"MAX_USER_MESSAGES", int64(c.MaxUserMessages)},
		{"MAX_CHANNEL_MESSAGES", int64(c.MaxChannelMessages)},
		{"MAX_CHANNEL_HASHTAGS", int64(c.MaxChannelHashtags)},
		{"CONNECTION_BUFFER_SIZE", int64(c.ConnectionBufferSize)},
		{"MAX_FRAME_SIZE", c.MaxFrameSize},
		{"RETENTION_WORKERS", int64(c.RetentionWorkers)},
		{"RETENTION_BUFFER_SIZE", int64(c.RetentionBufferSize)},
		{"DELIVERY_TIMEOUT", int64(c.DeliveryTimeout)},
		{"RESTART_INTERVAL", int64(c.RestartInterval)},
		{"HEALTH_INTERVAL", int64(c.HealthInterval)},
		{"SHUTDOWN_TIMEOUT", int64(c.ShutdownTimeout)},
	}
	for _, p := range positives {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	if c.DefaultPageSize < 1 || c.DefaultPageSize > 100 {
		return fmt.Errorf("DEFAULT_PAGE_SIZE must be within [1, 100], got %d", c.DefaultPageSize)
	}
	if len(c.JwtSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes long")
	}
	if len(c.AllowedOrigins()) == 0 {
		return fmt.Errorf("FRONTEND_URL must name at least one origin")
	}
	return nil
}

// AllowedOrigins splits the comma-separated FRONTEND_URL.
func (c Config) AllowedOrigins() []string {
	var origins []string
	for _, origin := range strings.Split(c.FrontendURL, ",") {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}
