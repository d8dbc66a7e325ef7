// Command assetpipe builds theme assets from a source tree into a destination
// theme directory, either once for release or continuously while developing.
package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/assetpipe/cmd/assetpipe/commands"
	ferrors "git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/assetpipe/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitRequest carries the status kong asks to exit with after --help or --version.
type exitRequest int

func run(args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			req, ok := r.(exitRequest)
			if !ok {
				panic(r)
			}
			code = int(req)
		}
	}()

	cli := &commands.CLI{}
	cli.SetLogOutput(stderr)
	parser, err := kong.New(cli,
		kong.Name("assetpipe"),
		kong.Description("Build theme assets: markup includes, stylesheets, scripts, images, fonts and libraries."),
		kong.Writers(stdout, stderr),
		kong.Vars{"version": version.String()},
		kong.Exit(func(status int) { panic(exitRequest(status)) }),
	)
	if err != nil {
		return ferrors.NewCLIErrorAdapter(false, slog.Default()).
			HandleError(ferrors.WrapError(err, ferrors.CategoryInternal, "invalid command line definition").Build())
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		return ferrors.NewCLIErrorAdapter(false, slog.Default()).
			HandleError(ferrors.WrapError(err, ferrors.CategoryValidation, "invalid arguments").Build())
	}

	err = kctx.Run(&commands.Global{Stdout: stdout}, cli)
	return ferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default()).HandleError(err)
}
