package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/assetpipe/internal/config"
)

// ReleaseCmd implements the 'release' command.
type ReleaseCmd struct {
	PathFlags `embed:""`
}

func (r *ReleaseCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(func(cfg *config.Config) { r.apply(cfg) })
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return newSequencer(cfg, nil, g.logger()).Release(ctx)
}
