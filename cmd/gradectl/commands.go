package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"
	"tle_zone_grader/internal/app/judge"
	"tle_zone_grader/internal/app/service"
	"tle_zone_grader/internal/common/security"
	"tle_zone_grader/internal/domain/model"
	"tle_zone_grader/internal/domain/repository"
	"tle_zone_grader/internal/platform/config"
	"tle_zone_grader/internal/platform/database"
	"tle_zone_grader/internal/platform/executor"
	"tle_zone_grader/internal/platform/queue"

	"github.com/fatih/color"
	"github.com/urfave/cli/v3"
)

func languagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "languages",
		Usage: "list the language catalog",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			catalog, err := config.LoadLanguages(cmd.String("languages-file"))
			if err != nil {
				return err
			}
			printLanguages(cmd.Root().Writer, catalog.List())
			return nil
		},
	}
}

func printLanguages(w io.Writer, langs []model.Language) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLUG\tID\tNAME\tSTATUS")
	for _, l := range langs {
		status := color.GreenString("active")
		if !l.IsActive {
			status = color.YellowString("disabled")
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", l.Slug, l.ID, l.Name, status)
	}
	tw.Flush()
}

func execCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "run a source file once against the execution backend",
		ArgsUsage: "<source-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "language", Aliases: []string{"l"}, Required: true},
			&cli.StringFlag{Name: "stdin", Usage: "file fed to the program's stdin"},
			&cli.StringFlag{Name: "expected", Usage: "file with the expected output; enables a verdict"},
			&cli.DurationFlag{Name: "time-limit", Value: 2 * time.Second},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Args().Len() != 1 {
				return fmt.Errorf("exactly one source file is required")
			}
			catalog, err := config.LoadLanguages(cmd.String("languages-file"))
			if err != nil {
				return err
			}
			lang, ok := catalog.Resolve(cmd.String("language"))
			if !ok {
				return fmt.Errorf("unsupported language %q", cmd.String("language"))
			}
			code, err := os.ReadFile(cmd.Args().First())
			if err != nil {
				return err
			}
			stdin, err := readOptional(cmd.String("stdin"))
			if err != nil {
				return err
			}
			expected, err := readOptional(cmd.String("expected"))
			if err != nil {
				return err
			}

			cfg := config.AppConfig
			client := executor.NewClient(executor.Options{
				BaseURL:        cfg.ExecutorBaseURL,
				AuthToken:      cfg.ExecutorAuthToken,
				RequestTimeout: cfg.ExecutorRequestTimeout,
				MaxRetries:     cfg.ExecutorMaxRetries,
				RetryBase:      cfg.ExecutorRetryBase,
				RetryMax:       cfg.ExecutorRetryMax,
			})
			res, execErr := client.Execute(ctx, executor.Request{
				SourceCode: string(code),
				LanguageID: lang.ID,
				Stdin:      stdin,
				TimeLimit:  cmd.Duration("time-limit"),
			})
			verdict, output := judge.Classify(res, execErr, expected)

			w := cmd.Root().Writer
			fmt.Fprintln(w, output)
			if cmd.String("expected") != "" || execErr != nil {
				verdictColor(verdict).Fprintf(w, "%s\n", verdict)
			}
			if res != nil && res.TimeMs != nil {
				fmt.Fprintf(w, "time: %d ms\n", *res.TimeMs)
			}
			return nil
		},
	}
}

func readOptional(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	return string(b), err
}

func verdictColor(v model.Verdict) *color.Color {
	switch v {
	case model.VerdictAccepted:
		return color.New(color.FgGreen, color.Bold)
	case model.VerdictWrongAnswer:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgYellow, color.Bold)
	}
}

func requeueCommand() *cli.Command {
	return &cli.Command{
		Name:  "requeue",
		Usage: "push stale or dead-lettered progress jobs back onto the queue",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "failed", Usage: "requeue dead-lettered jobs instead of stale queued ones"},
			&cli.DurationFlag{Name: "older-than", Value: time.Minute},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			db, err := database.Open(config.AppConfig.DBConnStr)
			if err != nil {
				return err
			}
			defer db.Close()
			rdb, err := queue.NewClient(config.AppConfig.RedisAddr, config.AppConfig.RedisPassword, config.AppConfig.RedisDB)
			if err != nil {
				return err
			}
			defer rdb.Close()

			jobs := service.NewProgressJobService(repository.NewPgProgressJobRepository(db), rdb, config.AppConfig.ProgressQueueName, config.AppConfig.ProgressProcessingLease)
			var n int
			if cmd.Bool("failed") {
				n, err = jobs.RequeueFailed(ctx, 1000)
			} else {
				n, err = jobs.RequeueStale(ctx, cmd.Duration("older-than"), 1000)
			}
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.Root().Writer, "requeued %d job(s)\n", n)
			return nil
		},
	}
}

func issueToken(key []byte, userID, role string, ttl time.Duration) (string, error) {
	security.InitJWT(key)
	return security.GenerateToken(model.Principal{UserID: userID, Role: role}, ttl)
}
