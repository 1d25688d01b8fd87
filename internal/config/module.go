package config

import (
	"go.uber.org/fx"
)

// Module provides *Config loaded from path (may be empty) and the environment.
func Module(path string) fx.Option {
	return fx.Module("config",
		fx.Provide(func() (*Config, error) {
			return Load(path)
		}),
	)
}
