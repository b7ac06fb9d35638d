// Command gradectl is the operator tool for the grader.
package main

import (
	"context"
	"fmt"
	"os"
	"time"
	"tle_zone_grader/internal/platform/config"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func main() {
	config.Load()

	cmd := &cli.Command{
		Name:  "gradectl",
		Usage: "operate the submission grader",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "languages-file",
				Usage:   "TOML language catalog (built-in catalog when empty)",
				Value:   config.AppConfig.LanguagesFile,
				Sources: cli.EnvVars("LANGUAGES_FILE"),
			},
			&cli.BoolFlag{Name: "no-color", Usage: "disable colored output"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if cmd.Bool("no-color") {
				color.NoColor = true
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			languagesCommand(),
			execCommand(),
			requeueCommand(),
			tokenCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "print a bearer token signed with JWT_SECRET",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "user", Required: true},
			&cli.StringFlag{Name: "role", Value: "user"},
			&cli.DurationFlag{Name: "ttl", Value: 24 * time.Hour},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			tok, err := issueToken(config.AppConfig.JWTKey, cmd.String("user"), cmd.String("role"), cmd.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.Root().Writer, tok)
			return nil
		},
	}
}
