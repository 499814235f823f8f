// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/AleutianAI/obcheck/pkg/ux"
	"github.com/AleutianAI/obcheck/services/phasecheck/diag"
	"github.com/AleutianAI/obcheck/services/phasecheck/layout"
	"github.com/AleutianAI/obcheck/services/phasecheck/session"
	"github.com/AleutianAI/obcheck/services/phasecheck/snapshot"
	snapstore "github.com/AleutianAI/obcheck/services/phasecheck/storage/badger"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
)

const watchDebounce = 250 * time.Millisecond

var (
	errNoSource   = errors.New("need a snapshot file or --name")
	errTwoSources = errors.New("give either a snapshot file or --name, not both")
	errWatchDB    = errors.New("--watch needs a snapshot file")
	errBadFormat  = errors.New("format must be table or json")

	errInterrupted = errors.New("check interrupted")
)

// checkOptions are the flags of `obcheck check`.
type checkOptions struct {
	snapshotPath string
	dbPath       string
	name         string
	layoutPath   string
	format       string
	diag         bool
	watch        bool
	progress     bool
}

// checker runs check sessions and writes their reports.
type checker struct {
	opts     checkOptions
	layout   layout.Layout
	session  *session.Session
	counters *diag.Counters
	logger   *slog.Logger
	out      io.Writer
	styled   bool
}

func runCheckCmd(cmd *cobra.Command, args []string) error {
	opts := checkOpts
	if len(args) == 1 {
		opts.snapshotPath = args[0]
	}
	if opts.format == "" {
		opts.format = cfg.Check.Format
	}
	if opts.layoutPath == "" {
		opts.layoutPath = cfg.Check.Layout
	}
	if opts.dbPath == "" {
		opts.dbPath = cfg.Store.Path
	}

	c, err := newChecker(opts, logger.Slog(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return c.run(cmd.Context())
}

// newChecker validates opts and loads the layout.
func newChecker(opts checkOptions, lg *slog.Logger, out io.Writer) (*checker, error) {
	switch {
	case opts.snapshotPath == "" && opts.name == "":
		return nil, errNoSource
	case opts.snapshotPath != "" && opts.name != "":
		return nil, errTwoSources
	case opts.watch && opts.snapshotPath == "":
		return nil, errWatchDB
	}
	if opts.format != "table" && opts.format != "json" {
		return nil, fmt.Errorf("%w: %q", errBadFormat, opts.format)
	}

	l := layout.Default()
	if opts.layoutPath != "" {
		loaded, err := layout.LoadFile(expandHome(opts.layoutPath))
		if err != nil {
			return nil, err
		}
		l = loaded
	}

	counters := diag.NewCounters()
	return &checker{
		opts:   opts,
		layout: l,
		session: session.New(
			session.WithSink(counters),
			session.WithLogger(lg),
			session.WithCacheCapacity(cfg.Check.PhaseCacheCapacity, cfg.Check.AssemblyCacheCapacity),
		),
		counters: counters,
		logger:   lg,
		out:      out,
		styled:   ux.IsTerminal(out),
	}, nil
}

// run performs one check and, with --watch, repeats it on every change.
func (c *checker) run(ctx context.Context) error {
	if err := c.once(ctx); err != nil {
		return err
	}
	if !c.opts.watch {
		return nil
	}

	c.logger.Info("watching snapshot", slog.String("path", c.opts.snapshotPath))
	return watchFile(ctx, c.opts.snapshotPath, watchDebounce, c.logger, func() {
		if err := c.once(ctx); err != nil {
			c.logger.Error("re-check failed", slog.String("error", err.Error()))
			ux.Error(c.out, err.Error())
		}
	})
}

// once clears the session and checks the current snapshot.
func (c *checker) once(ctx context.Context) error {
	var (
		report *session.Report
		stats  snapshot.QueryStats
	)
	work := func(ctx context.Context) error {
		var err error
		report, stats, err = c.compute(ctx)
		return err
	}

	var err error
	if c.opts.progress && c.styled {
		err = c.withProgress(ctx, work)
	} else {
		err = work(ctx)
	}
	if err != nil {
		return err
	}

	if c.opts.diag {
		c.counters.LogTo(c.logger)
	}
	return c.write(report, stats)
}

func (c *checker) compute(ctx context.Context) (*session.Report, snapshot.QueryStats, error) {
	m, err := c.loadModel(ctx)
	if err != nil {
		return nil, snapshot.QueryStats{}, err
	}

	c.session.ClearSession()
	set, err := c.session.Traverse(ctx, m.Roots(), nil)
	if err != nil {
		return nil, snapshot.QueryStats{}, err
	}
	report, err := c.session.Process(ctx, set, c.layout)
	if err != nil {
		return nil, snapshot.QueryStats{}, err
	}
	return report, m.Stats(), nil
}

// withProgress runs work while a progressView draws the session tracker.
// Quitting the view cancels work.
func (c *checker) withProgress(ctx context.Context, work func(context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newProgressView(c.session.Tracker()), tea.WithOutput(c.out))
	errCh := make(chan error, 1)
	go func() {
		errCh <- work(ctx)
		p.Send(checkDoneMsg{})
	}()

	final, uiErr := p.Run()
	if uiErr != nil {
		c.logger.Warn("progress view failed", slog.String("error", uiErr.Error()))
	}
	if view, ok := final.(progressView); ok && view.interrupted {
		cancel()
		<-errCh
		return errInterrupted
	}
	return <-errCh
}

func (c *checker) loadModel(ctx context.Context) (*snapshot.Model, error) {
	if c.opts.snapshotPath != "" {
		return snapshot.LoadModel(c.opts.snapshotPath)
	}

	store, closeDB, err := openStore(c.opts.dbPath, c.logger)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	entry, err := store.Load(ctx, c.opts.name)
	if err != nil {
		return nil, err
	}
	return snapshot.Build(entry.Document)
}

// jsonOutput is the --format json document.
type jsonOutput struct {
	Report             *session.Report             `json:"report"`
	Queries            snapshot.QueryStats         `json:"queries"`
	Diagnostics        map[string]int64            `json:"diagnostics,omitempty"`
	DiagnosticsByClass map[string]map[string]int64 `json:"diagnostics_by_class,omitempty"`
}

func (c *checker) write(report *session.Report, stats snapshot.QueryStats) error {
	if c.opts.format == "json" {
		out := jsonOutput{Report: report, Queries: stats}
		if c.opts.diag {
			out.Diagnostics = c.counters.Snapshot()
			out.DiagnosticsByClass = c.counters.ScopedSnapshot()
		}
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	r := renderer{styled: c.styled}
	fmt.Fprint(c.out, r.Report(report, c.session.Tracker().Summary()))
	if c.opts.diag {
		fmt.Fprint(c.out, r.Diagnostics(c.counters))
	}
	return nil
}

// openStore opens the badger snapshot database at path.
func openStore(path string, lg *slog.Logger) (*snapstore.SnapshotStore, func(), error) {
	if path == "" {
		return nil, nil, errors.New("no snapshot database: pass --db or set store.path")
	}
	bcfg := snapstore.DefaultConfig(expandHome(path))
	bcfg.Logger = lg
	db, err := snapstore.Open(bcfg)
	if err != nil {
		return nil, nil, err
	}
	return snapstore.NewSnapshotStore(db, lg), func() { _ = db.Close() }, nil
}
