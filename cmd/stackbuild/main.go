package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/specialistvlad/stackbuild/internal/app"
	"github.com/specialistvlad/stackbuild/internal/buildererr"
	"github.com/specialistvlad/stackbuild/internal/cli"
)

// main is the entrypoint for the stackbuild application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the main application logic for easier testing and error
// handling. Results go to outW, logs to errW.
func run(ctx context.Context, outW, errW io.Writer, args []string, opts ...app.Option) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	results, err := app.NewApp(outW, errW, cfg, opts...).Run(ctx)
	if err != nil {
		if errors.Is(err, buildererr.ErrConfig) {
			return &cli.ExitError{Code: 2, Message: err.Error()}
		}
		return err
	}
	if results != nil && results.ExitCode() != 0 {
		return &cli.ExitError{
			Code:    results.ExitCode(),
			Message: fmt.Sprintf("%d image(s) failed to build", len(results.Bad)),
		}
	}
	return nil
}
