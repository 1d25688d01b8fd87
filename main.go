package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"

	"github.com/igefined/token-screener/pkg/logger"

	"github.com/igefined/token-screener/internal/config"
	"github.com/igefined/token-screener/internal/enrich"
	"github.com/igefined/token-screener/internal/fetcher"
	"github.com/igefined/token-screener/internal/providers/dexscreener"
	"github.com/igefined/token-screener/internal/providers/helius"
	"github.com/igefined/token-screener/internal/screener"
	"github.com/igefined/token-screener/internal/store"
)

func main() {
	app := cli.App{
		Name:  "token-screener",
		Usage: "fetch, enrich and cache token listings",
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Usage:   "path to a config file (yaml, json or toml)",
			EnvVars: []string{"CONFIG_FILE"},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "serve",
			Usage: "run the scheduler and the metrics server until interrupted",
			Action: func(cctx *cli.Context) error {
				app := fx.New(append(modules(cctx), screener.Runner)...)
				if err := app.Err(); err != nil {
					return err
				}
				app.Run()
				return nil
			},
		},
		{
			Name:  "fetch",
			Usage: "fetch the latest listing and cache it",
			Action: runOnce(func(ctx context.Context, cctx *cli.Context, s *screener.Service) (any, error) {
				return s.FetchBasic(ctx)
			}),
		},
		{
			Name:  "enrich",
			Usage: "fetch the latest listing, enrich it and cache the qualifying tokens",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:  "max",
					Usage: "enrich at most this many tokens (0 for all)",
				},
			},
			Action: runOnce(func(ctx context.Context, cctx *cli.Context, s *screener.Service) (any, error) {
				return s.FetchAndEnrich(ctx, cctx.Int("max"))
			}),
		},
		{
			Name:  "status",
			Usage: "show existence, ttl and size of the cached snapshots",
			Action: runOnce(func(ctx context.Context, cctx *cli.Context, s *screener.Service) (any, error) {
				return s.Status(ctx)
			}),
		},
		{
			Name:  "cleanup",
			Usage: "delete expired rows from the durable tier",
			Action: runOnce(func(ctx context.Context, cctx *cli.Context, s *screener.Service) (any, error) {
				n, err := s.Cleanup(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]int64{"deleted": n}, nil
			}),
		},
		{
			Name:  "stats",
			Usage: "show aggregate statistics of the cached enriched snapshot",
			Action: runOnce(func(ctx context.Context, cctx *cli.Context, s *screener.Service) (any, error) {
				return s.Stats(ctx)
			}),
		},
		{
			Name:      "lookup",
			Usage:     "show the enrichment of a single token",
			ArgsUsage: "<address>",
			Action: runOnce(func(ctx context.Context, cctx *cli.Context, s *screener.Service) (any, error) {
				if cctx.NArg() != 1 {
					return nil, fmt.Errorf("expected exactly one token address, got %d", cctx.NArg())
				}
				return s.LookupToken(ctx, cctx.Args().First())
			}),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func modules(cctx *cli.Context) []fx.Option {
	return []fx.Option{
		config.Module(cctx.String("config")),
		logger.Module,
		logger.EventLogger,
		store.Module,
		// Provider modules
		dexscreener.Module,
		helius.Module,
		// Business logic modules
		fetcher.Module,
		enrich.Module,
		screener.Module,
	}
}

type operation func(ctx context.Context, cctx *cli.Context, s *screener.Service) (any, error)

// runOnce starts the app without the scheduler, runs op and prints its result
// as JSON on stdout.
func runOnce(op operation) cli.ActionFunc {
	return func(cctx *cli.Context) error {
		var service *screener.Service
		app := fx.New(append(modules(cctx), fx.Populate(&service))...)
		if err := app.Err(); err != nil {
			return err
		}

		startCtx, cancel := context.WithTimeout(cctx.Context, app.StartTimeout())
		defer cancel()
		if err := app.Start(startCtx); err != nil {
			return err
		}

		result, opErr := op(cctx.Context, cctx, service)

		stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
		defer cancel()
		stopErr := app.Stop(stopCtx)

		if opErr != nil {
			return opErr
		}
		if stopErr != nil {
			return stopErr
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
}
