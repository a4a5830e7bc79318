// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/poiesic/mailrag"
	"github.com/poiesic/mailrag/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// cliApp holds state shared by the commands of one run.
type cliApp struct {
	options  []mailrag.Option
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	server   *http.Server
}

func newApp(opts ...mailrag.Option) *cli.App {
	a := &cliApp{options: opts}
	ownerFlag := &cli.StringFlag{
		Name:     "owner",
		Aliases:  []string{"u"},
		Usage:    "Owner (user) whose mailbox is addressed",
		EnvVars:  []string{"MAILRAG_OWNER"},
		Required: true,
	}

	return &cli.App{
		Name:  "mailrag",
		Usage: "Ingest email into a vector store and retrieve relevant messages",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				EnvVars: []string{"MAILRAG_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "backend",
				Usage: "Vector store backend (badger, chromem, qdrant)",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to the local database directory; empty keeps it in memory",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "metrics-addr",
				Usage: "Serve Prometheus metrics on this address, e.g. :9090",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Ingest .eml, .txt and .html files or directories of them",
				ArgsUsage: "PATH...",
				Action:    a.ingestCommand,
				Flags: []cli.Flag{
					ownerFlag,
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 10,
					},
				},
			},
			{
				Name:      "retrieve",
				Usage:     "Retrieve the owner's messages most relevant to a query",
				ArgsUsage: "QUERY",
				Action:    a.retrieveCommand,
				Flags: []cli.Flag{
					ownerFlag,
					&cli.Float64Flag{
						Name:  "threshold",
						Usage: "Minimum similarity score (overrides retrieval.threshold)",
					},
					&cli.IntFlag{
						Name:    "max-documents",
						Aliases: []string{"n"},
						Usage:   "Maximum number of messages returned (overrides retrieval.max_documents)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Print results as JSON",
					},
				},
			},
			{
				Name:   "purge",
				Usage:  "Delete every stored message of an owner",
				Action: a.purgeCommand,
				Flags:  []cli.Flag{ownerFlag},
			},
			{
				Name:   "stats",
				Usage:  "Show an owner's stored messages and chunk counts",
				Action: a.statsCommand,
				Flags:  []cli.Flag{ownerFlag},
			},
		},
	}
}

// before loads the configuration, applies flag overrides and sets up
// logging and metrics exposition.
func (a *cliApp) before(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("backend") {
		cfg.Store.Backend = c.String("backend")
	}
	if c.IsSet("db") {
		cfg.Store.Path = c.String("db")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if !slices.Contains(config.Backends, cfg.Store.Backend) {
		return fmt.Errorf("invalid backend %q: must be one of %v", cfg.Store.Backend, config.Backends)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := cfg.Log.NewLogger(c.App.ErrWriter)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	a.logger = logger

	if cfg.Metrics.Addr != "" {
		a.serveMetrics(cfg.Metrics.Addr)
	}
	return nil
}

func (a *cliApp) serveMetrics(addr string) {
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	a.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", "addr", addr, "err", err)
		}
	}()
	a.logger.Info("serving metrics", "addr", addr)
}

func (a *cliApp) after(c *cli.Context) error {
	if a.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return a.server.Shutdown(ctx)
}

// openEngine builds an Engine from the loaded configuration.
func (a *cliApp) openEngine(ctx context.Context) (*mailrag.Engine, error) {
	opts := []mailrag.Option{mailrag.WithLogger(a.logger)}
	if a.registry != nil {
		opts = append(opts, mailrag.WithMetrics(a.registry))
	}
	opts = append(opts, a.options...)
	engine, err := mailrag.Open(ctx, a.cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open engine: %w", err)
	}
	return engine, nil
}
