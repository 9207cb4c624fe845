package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_ADDR is the host:port of a running relay, the suite is skipped when empty
	RelayAddr string `envconfig:"RELAY_ADDR"`
	JwtSecret string `envconfig:"JWT_SECRET"`
	Origin    string `envconfig:"E2E_ORIGIN" default:"http://localhost:3000"`
	// Both users must be verified members of the channel
	ChannelID  string `envconfig:"E2E_CHANNEL_ID"`
	SenderID   string `envconfig:"E2E_SENDER_ID"`
	ReceiverID string `envconfig:"E2E_RECEIVER_ID"`
	// E2E_DEBUG_JSON allows dumping every frame received
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
