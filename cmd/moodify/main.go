// Command moodify serves the Moodify HTTP API and runs the playlist
// pipeline from the terminal.
package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/justestif/go-moodify/internal/logging"
)

func main() {
	logger := logging.New(os.Stderr)
	runner := NewRunner(RunnerOpts{Logger: logger})

	app := &cli.Command{
		Name:     "moodify",
		Usage:    "Turn a mood check-in into a Spotify playlist",
		Version:  "0.1.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatal("application error", "err", err)
	}
}
