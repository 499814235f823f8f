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

	"github.com/AleutianAI/obcheck/pkg/ux"
	"github.com/AleutianAI/obcheck/pkg/validation"
	"github.com/AleutianAI/obcheck/services/phasecheck/snapshot"
	"github.com/spf13/cobra"
)

func dbOrDefault(flag string) string {
	if flag != "" {
		return flag
	}
	return cfg.Store.Path
}

func runImportCmd(cmd *cobra.Command, args []string) error {
	name, err := validation.SanitizeSnapshotName(importName)
	if err != nil {
		return err
	}
	doc, err := snapshot.LoadFile(args[0])
	if err != nil {
		return err
	}

	store, closeDB, err := openStore(dbOrDefault(importDB), logger.Slog())
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.Save(cmd.Context(), name, doc); err != nil {
		return err
	}

	logger.Slog().Info("snapshot imported",
		slog.String("name", name),
		slog.String("file", args[0]),
		slog.Int("objects", len(doc.Objects)))
	ux.Success(cmd.OutOrStdout(), fmt.Sprintf("stored %s (%d objects)", name, len(doc.Objects)))
	return nil
}

func runSnapshotsList(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openStore(dbOrDefault(snapshotsDB), logger.Slog())
	if err != nil {
		return err
	}
	defer closeDB()

	infos, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	r := renderer{styled: ux.IsTerminal(cmd.OutOrStdout())}
	fmt.Fprint(cmd.OutOrStdout(), r.Snapshots(infos))
	return nil
}

func runSnapshotsDelete(cmd *cobra.Command, args []string) error {
	store, closeDB, err := openStore(dbOrDefault(snapshotsDB), logger.Slog())
	if err != nil {
		return err
	}
	defer closeDB()

	if err := store.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	ux.Success(cmd.OutOrStdout(), "deleted "+args[0])
	return nil
}
