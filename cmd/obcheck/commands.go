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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/obcheck/cmd/obcheck/config"
	"github.com/AleutianAI/obcheck/pkg/logging"
	"github.com/AleutianAI/obcheck/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath string
	logLevel   string
	logDir     string

	cfg    config.ObcheckConfig
	logger *logging.Logger

	checkOpts checkOptions

	importName string
	importDB   string

	snapshotsDB string

	servePort int

	rootCmd = &cobra.Command{
		Use:   "obcheck",
		Short: "Check phase consistency across a structural model",
		Long: `obcheck walks a structural model snapshot, classifies its objects into
parts, fasteners and components, and reports every object whose phase
disagrees with its assembly main member, its welds/cuts/fittings, or its
parent component.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	checkCmd = &cobra.Command{
		Use:   "check [snapshot.yaml]",
		Short: "Run a phase check and print the per-class tables",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runCheckCmd, // Defined in cmd_check.go
	}

	importCmd = &cobra.Command{
		Use:   "import <snapshot.yaml>",
		Short: "Validate a snapshot and store it in the snapshot database",
		Args:  cobra.ExactArgs(1),
		RunE:  runImportCmd, // Defined in cmd_snapshots.go
	}

	snapshotsCmd = &cobra.Command{
		Use:   "snapshots",
		Short: "Manage stored snapshots",
	}
	snapshotsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots",
		Args:  cobra.NoArgs,
		RunE:  runSnapshotsList,
	}
	snapshotsDeleteCmd = &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runSnapshotsDelete,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the phase check HTTP API",
		Args:  cobra.NoArgs,
		RunE:  runServeCmd, // Defined in cmd_serve.go
	}

	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Manage obcheck.yaml",
	}
	configInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Write a default obcheck.yaml",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the obcheck version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.obcheck/obcheck.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "also write JSON logs to this directory")

	checkCmd.Flags().StringVar(&checkOpts.dbPath, "db", "", "snapshot database directory (with --name)")
	checkCmd.Flags().StringVar(&checkOpts.name, "name", "", "stored snapshot name")
	checkCmd.Flags().StringVar(&checkOpts.layoutPath, "layout", "", "column layout file")
	checkCmd.Flags().StringVar(&checkOpts.format, "format", "", "output format: table or json")
	checkCmd.Flags().BoolVar(&checkOpts.diag, "diag", false, "print cache and comparison counters")
	checkCmd.Flags().BoolVar(&checkOpts.watch, "watch", false, "re-run when the snapshot file changes")
	checkCmd.Flags().BoolVar(&checkOpts.progress, "progress", false, "show live progress bars on a terminal")

	importCmd.Flags().StringVar(&importName, "name", "", "name to store the snapshot under")
	importCmd.Flags().StringVar(&importDB, "db", "", "snapshot database directory")
	_ = importCmd.MarkFlagRequired("name")

	snapshotsCmd.PersistentFlags().StringVar(&snapshotsDB, "db", "", "snapshot database directory")
	snapshotsCmd.AddCommand(snapshotsListCmd, snapshotsDeleteCmd)

	serveCmd.Flags().IntVar(&servePort, "port", 0, "listen port (default from config, 8080)")

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(checkCmd, importCmd, snapshotsCmd, serveCmd, configCmd, versionCmd)
}

// setup loads the config file and installs the logger. Flags override
// file values.
func setup(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}

	loaded, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = loaded

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logDir != "" {
		cfg.Logging.Dir = logDir
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "obcheck",
		JSON:    cfg.Logging.JSON,
		Output:  cmd.ErrOrStderr(),
	})
	slog.SetDefault(logger.Slog())

	logger.Slog().Debug("configuration loaded",
		slog.String("path", path),
		slog.String("command", cmd.Name()))
	return nil
}

func closeLogger() {
	if logger != nil {
		_ = logger.Close()
	}
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := config.WriteDefault(path); err != nil {
		return err
	}
	ux.Success(cmd.OutOrStdout(), "wrote "+path)
	return nil
}
