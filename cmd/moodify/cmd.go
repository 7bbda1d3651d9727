package main

import (
	"github.com/urfave/cli/v3"

	"github.com/justestif/go-moodify/internal/config"
	"github.com/justestif/go-moodify/internal/store"
)

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   config.DefaultPath,
	}
}

func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Run the HTTP API",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Serve,
	}
}

func loginCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "login",
		Usage:  "Sign in to Spotify and store the token locally",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Login,
	}
}

func logoutCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "logout",
		Usage:  "Forget the stored Spotify token",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Logout,
	}
}

func respondCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "respond",
		Usage: "Store questionnaire answers from a JSON file",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    `JSON array of {"question","answer"} objects, "-" for stdin`,
				Required: true,
			},
		},
		Action: r.Respond,
	}
}

func generateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Build a playlist from the latest stored answers",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Number of latest answers to classify",
				Value: store.DefaultLatestLimit,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.Generate,
	}
}

func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List playlists generated for the signed-in user",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of entries",
				Value: 20,
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
		},
		Action: r.History,
	}
}

func initConfigCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "init-config",
		Usage:  "Write an example configuration file",
		Flags:  []cli.Flag{configFlag()},
		Action: r.InitConfig,
	}
}
