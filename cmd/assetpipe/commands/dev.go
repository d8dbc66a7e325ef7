package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/profile"
)

// DevCmd implements the 'dev' command.
type DevCmd struct {
	PathFlags `embed:""`

	Port         int  `name:"port" help:"Dev server port (overrides server.port)"`
	NoLiveReload bool `name:"no-live-reload" help:"Do not serve the theme or inject the live reload client"`
}

func (d *DevCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(func(cfg *config.Config) {
		d.apply(cfg)
		if d.Port != 0 {
			cfg.Server.Port = d.Port
		}
	})
	if err != nil {
		return err
	}

	var overrides map[profile.Name]profile.OptionSet
	if d.NoLiveReload {
		overrides = map[profile.Name]profile.OptionSet{
			profile.Dev: {profile.OptLiveReload: false},
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return newSequencer(cfg, overrides, g.logger()).Dev(ctx)
}
