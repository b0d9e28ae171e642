// Command vicaya is the thin external-collaborator surface over the
// resident process: search/rebuild/status/daemon subcommands built on
// github.com/urfave/cli/v2, in the style of the teacher's cmd/lci/main.go
// (global flags, a Before hook resolving configuration, a flat subcommand
// table). It exists here as the minimal exerciser of internal/server and
// internal/client, not as a general-purpose developer tool.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/lci/internal/client"
	"github.com/standardbeagle/lci/internal/config"
	lcierrors "github.com/standardbeagle/lci/internal/errors"
	"github.com/standardbeagle/lci/internal/logging"
	"github.com/standardbeagle/lci/internal/query"
	"github.com/standardbeagle/lci/internal/server"
	"github.com/standardbeagle/lci/internal/version"
	"github.com/standardbeagle/lci/internal/wire"
)

// exit codes per spec.md §6's CLI contract.
const (
	exitOK        = 0
	exitTransport = 1
	exitNotReady  = 2
)

func stateDir() string {
	if dir := os.Getenv("VICAYA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "Library", "Application Support", "vicaya")
}

func socketPath() string { return filepath.Join(stateDir(), "daemon.sock") }
func configPath() string { return filepath.Join(stateDir(), "config.toml") }

func main() {
	app := &cli.App{
		Name:    "vicaya",
		Usage:   "name search over a local filesystem",
		Version: version.Version,
		Commands: []*cli.Command{
			searchCommand(),
			rebuildCommand(),
			statusCommand(),
			daemonCommand(),
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitTransport)
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "search the index by name",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Value: 50},
			&cli.StringFlag{Name: "scope"},
			&cli.StringFlag{Name: "format", Value: "table", Usage: "table|json|plain"},
			&cli.StringFlag{Name: "mode", Value: "smart", Usage: "smart|exact|fuzzy"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return cli.Exit("search requires a query argument", exitTransport)
			}
			conn, err := client.Dial(socketPath())
			if err != nil {
				return cli.Exit(fmt.Sprintf("daemon unreachable: %v", err), exitTransport)
			}
			defer conn.Close()

			resp, err := conn.Search(wire.SearchRequest{
				Query: c.Args().First(),
				Limit: c.Int("limit"),
				Scope: c.String("scope"),
				Mode:  c.String("mode"),
			})
			if err != nil {
				if lcierrors.Is(err, lcierrors.KindNotReady) {
					return cli.Exit("index is loading, try again shortly", exitNotReady)
				}
				return cli.Exit(fmt.Sprintf("search failed: %v", err), exitTransport)
			}
			printSearch(c.String("format"), resp)
			return nil
		},
	}
}

func printSearch(format string, resp *wire.SearchResponse) {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.Encode(resp)
	case "plain":
		for _, r := range resp.Results {
			fmt.Println(r.Path)
		}
	default:
		for _, r := range resp.Results {
			fmt.Printf("%-60s %6.3f  %s\n", r.Path, r.Score, r.Strategy)
		}
		if resp.Truncated {
			fmt.Println("... (truncated)")
		}
	}
}

func rebuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "force a full rescan of the configured roots",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "roots"},
			&cli.BoolFlag{Name: "dry-run"},
		},
		Action: func(c *cli.Context) error {
			conn, err := client.Dial(socketPath())
			if err != nil {
				return cli.Exit(fmt.Sprintf("daemon unreachable: %v", err), exitTransport)
			}
			defer conn.Close()

			resp, err := conn.Rebuild(wire.RebuildRequest{
				Roots:  c.StringSlice("roots"),
				DryRun: c.Bool("dry-run"),
			})
			if err != nil {
				return cli.Exit(fmt.Sprintf("rebuild failed: %v", err), exitTransport)
			}
			fmt.Printf("scanned %d files in %dms\n", resp.Scanned, resp.ElapsedMs)
			return nil
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "report the resident process's state",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Value: "table", Usage: "table|json"},
		},
		Action: func(c *cli.Context) error {
			conn, err := client.Dial(socketPath())
			if err != nil {
				return cli.Exit("daemon unreachable", exitNotReady)
			}
			defer conn.Close()

			resp, err := conn.Status()
			if err != nil {
				return cli.Exit(fmt.Sprintf("status failed: %v", err), exitTransport)
			}
			if c.String("format") == "json" {
				json.NewEncoder(os.Stdout).Encode(resp)
				return nil
			}
			fmt.Printf("files:          %d\n", resp.Files)
			fmt.Printf("trigrams:       %d\n", resp.Trigrams)
			fmt.Printf("arena_bytes:    %d\n", resp.ArenaBytes)
			fmt.Printf("generation:     %d\n", resp.Generation)
			fmt.Printf("reconciling:    %v\n", resp.Reconciling)
			fmt.Printf("build:          %s (%s)\n", resp.Build.Version, resp.Build.Commit)
			return nil
		},
	}
}

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "control the resident process's lifecycle",
		Subcommands: []*cli.Command{
			{
				Name:  "start",
				Usage: "start the resident process in the foreground",
				Action: func(c *cli.Context) error {
					return runDaemon(c.Context)
				},
			},
			{
				Name:  "stop",
				Usage: "ask a running resident process to shut down",
				Action: func(c *cli.Context) error {
					conn, err := client.Dial(socketPath())
					if err != nil {
						return cli.Exit("daemon unreachable", exitNotReady)
					}
					defer conn.Close()
					if err := conn.Shutdown(); err != nil {
						return cli.Exit(fmt.Sprintf("shutdown failed: %v", err), exitTransport)
					}
					return nil
				},
			},
			{
				Name:  "status",
				Usage: "report whether the resident process is reachable",
				Action: func(c *cli.Context) error {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if !client.Ping(ctx, socketPath()) {
						fmt.Println("not running")
						return cli.Exit("", exitNotReady)
					}
					fmt.Println("running")
					return nil
				},
			},
		},
	}
}

func runDaemon(ctx context.Context) error {
	cfg, err := config.Load(configPath())
	if err != nil {
		return cli.Exit(fmt.Sprintf("config: %v", err), exitTransport)
	}
	if err := cfg.Validate(); err != nil {
		return cli.Exit(fmt.Sprintf("config: %v", err), exitTransport)
	}

	logger := logging.FromEnv()
	srv := server.New(server.Options{
		StateDir:      stateDir(),
		IndexRoots:    cfg.IndexRoots,
		Exclusions:    cfg.Exclusions,
		MaxFileSize:   0,
		ReconcileHour: cfg.ReconcileHour,
		Weights: query.Weights{
			ScopeBoost:    cfg.ScopeBoostWeight,
			DemotePenalty: cfg.DemotePenaltyWeight,
			DepthWeight:   cfg.DepthWeight,
			DemotePaths:   cfg.DemotePaths,
		},
		Logger: logger,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := srv.Start(runCtx); err != nil {
		return cli.Exit(fmt.Sprintf("start: %v", err), exitTransport)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}

