// Package contacts wires the contacts service command.
package contacts

import (
	"context"
	"flag"

	platformcmd "github.com/walletbook/walletbook/internal/platform/cmd"
	server "github.com/walletbook/walletbook/internal/services/contacts/app"
)

// Config holds contacts command configuration.
type Config struct {
	Port int `env:"WALLETBOOK_CONTACTS_PORT" envDefault:"8080"`
}

// ParseConfig loads env defaults and parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := platformcmd.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The contacts HTTP server port")
	if err := platformcmd.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the contacts server with telemetry configured.
func Run(ctx context.Context, cfg Config) error {
	return platformcmd.RunWithTelemetry(ctx, platformcmd.ServiceContacts, func(ctx context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
