package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetpipe/internal/config"
)

// Global context passed to subcommands.
type Global struct {
	Logger *slog.Logger
	// Stdout receives user-facing messages; nil means os.Stdout.
	Stdout io.Writer
}

func (g *Global) logger() *slog.Logger {
	if g == nil || g.Logger == nil {
		return slog.Default()
	}
	return g.Logger
}

func (g *Global) stdout() io.Writer {
	if g == nil || g.Stdout == nil {
		return os.Stdout
	}
	return g.Stdout
}

// CLI definition & global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"assetpipe.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Dev     DevCmd     `cmd:"" default:"1" help:"Build once, then watch sources and serve the theme with live reload"`
	Release ReleaseCmd `cmd:"" help:"Build the theme once with production settings"`
	Init    InitCmd    `cmd:"" help:"Write an example configuration file"`

	logOut io.Writer
}

// AfterApply runs after flag parsing; it installs the bootstrap logger used
// until the configuration is loaded.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if v := os.Getenv(config.EnvLogLevel); v != "" {
		level = config.NormalizeLogLevel(v).SlogLevel()
	}
	if c.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(c.logWriter(), &slog.HandlerOptions{Level: level})))
	return nil
}

// SetLogOutput redirects log output; nil means os.Stderr.
func (c *CLI) SetLogOutput(w io.Writer) { c.logOut = w }

func (c *CLI) logWriter() io.Writer {
	if c.logOut == nil {
		return os.Stderr
	}
	return c.logOut
}

// PathFlags override the configured source and destination roots.
type PathFlags struct {
	Src  string `name:"src" help:"Source root (overrides paths.src)"`
	Dest string `name:"dest" help:"Destination theme root (overrides paths.dest)"`
}

func (p PathFlags) apply(cfg *config.Config) {
	if p.Src != "" {
		cfg.Paths.Source = p.Src
	}
	if p.Dest != "" {
		cfg.Paths.Destination = p.Dest
	}
}

// loadConfig reads the configuration file, applies flag overrides through
// adjust, revalidates and reconfigures logging from the result.
func (c *CLI) loadConfig(adjust func(*config.Config)) (*config.Config, error) {
	cfg, err := config.LoadOrDefault(c.Config)
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	level := cfg.Logging.Level.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(c.logWriter(), opts)
	if cfg.Logging.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(c.logWriter(), opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Debug("Configuration loaded",
		slog.String("file", c.Config),
		slog.String("src", cfg.Paths.Source),
		slog.String("dest", cfg.Paths.Destination))
	return cfg, nil
}
