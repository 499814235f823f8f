// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/obcheck/services/phasecheck/layout"
	"github.com/AleutianAI/obcheck/services/phasecheck/model"
	"github.com/AleutianAI/obcheck/services/phasecheck/phase"
	"github.com/AleutianAI/obcheck/services/phasecheck/progress"
	"github.com/AleutianAI/obcheck/services/phasecheck/traverse"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Table is the evaluated column data of one class.
type Table struct {
	Class   string   `json:"class"`
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
}

// Report is the outcome of Process.
//
// A class whose layout has no GUID column is not processed and its table
// is nil.
type Report struct {
	Parts      *Table            `json:"parts,omitempty"`
	Fasteners  *Table            `json:"fasteners,omitempty"`
	Components *Table            `json:"components,omitempty"`
	Others     []string          `json:"others"`
	Progress   progress.Snapshot `json:"progress"`
	DurationMs int64             `json:"duration_ms"`
}

// Table returns the table of class, or nil.
func (r *Report) Table(class phase.Class) *Table {
	switch class {
	case phase.ClassPart:
		return r.Parts
	case phase.ClassFastener:
		return r.Fasteners
	case phase.ClassComponent:
		return r.Components
	default:
		return nil
	}
}

func (r *Report) setTable(class phase.Class, t *Table) {
	switch class {
	case phase.ClassPart:
		r.Parts = t
	case phase.ClassFastener:
		r.Fasteners = t
	case phase.ClassComponent:
		r.Components = t
	}
}

// Process evaluates the layout's columns for every classified row.
//
// Description:
//
//	Runs one goroutine per enabled class. Each walks its bucket in
//	discovery order, evaluates the class's columns row by row and bumps
//	the tracker. Rows of different classes share only the phase and
//	assembly caches. The first model error cancels the other workers at
//	their next row boundary and is returned.
//
// Inputs:
//   - ctx: Context for cancellation and tracing.
//   - set: A set produced by Traverse on this session.
//   - l: The column layout.
//
// Outputs:
//   - *Report: Tables per enabled class plus the unrecognized types.
//   - error: The first model query error or ctx's error.
//
// Thread Safety: Safe to call while no Traverse or ClearSession runs.
func (s *Session) Process(ctx context.Context, set *traverse.ClassifiedSet, l layout.Layout) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "session.Process",
		trace.WithAttributes(attribute.Int("rows", set.Count())),
	)
	defer span.End()

	start := time.Now()
	s.tracker.ResetProcessing()

	report := &Report{Others: set.Others()}
	tables := make([]*Table, phase.NumClasses)

	g, gCtx := errgroup.WithContext(ctx)
	for _, bucket := range set.Buckets() {
		class := bucket.Class()
		cols := l.For(class)
		if !cols.HasGUID() {
			s.logger.Debug("class skipped, layout has no GUID column", slog.String("class", class.String()))
			continue
		}

		g.Go(func() error {
			t, err := s.processBucket(gCtx, bucket, cols)
			if err != nil {
				return fmt.Errorf("process %s: %w", class, err)
			}
			tables[class] = t
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "process failed")
		return nil, err
	}

	for class, t := range tables {
		if t != nil {
			report.setTable(phase.Class(class), t)
		}
	}
	report.Progress = s.tracker.Snapshot()
	report.DurationMs = time.Since(start).Milliseconds()

	s.logger.Debug("process complete",
		slog.Int("rows", set.Count()),
		slog.Int64("duration_ms", report.DurationMs))
	return report, nil
}

func (s *Session) processBucket(ctx context.Context, bucket *traverse.Bucket, cols layout.Columns) (*Table, error) {
	needs := cols.PhaseNeeds()
	t := &Table{
		Class:   bucket.Class().String(),
		Headers: cols.Headers(),
		Rows:    make([][]any, 0, bucket.Len()),
	}

	for _, row := range bucket.Rows() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		values := make([]any, len(cols))
		for i, col := range cols {
			v, err := s.cell(ctx, row, col.Property.Normalize(), needs)
			if err != nil {
				return nil, err
			}
			values[i] = v
		}
		t.Rows = append(t.Rows, values)
		s.tracker.IncDone(bucket.Class())
	}
	return t, nil
}

// cell evaluates one property of a row. A missing phase reads as "" for
// text columns and nil for the number.
func (s *Session) cell(ctx context.Context, row *traverse.Row, prop layout.Property, needs layout.Needs) (any, error) {
	switch prop {
	case layout.PropGUID:
		return row.ID.String(), nil
	case layout.PropType:
		return row.Object.TypeName(), nil
	case layout.PropName:
		if n, ok := row.Object.(model.Named); ok {
			return n.Name(), nil
		}
		return "", nil
	}

	if !needs.Any() {
		return nil, nil
	}

	switch prop {
	case layout.PropPhaseName:
		rec, err := s.resolver.SelfPhase(ctx, row.Object, row.Cache)
		if err != nil {
			return nil, err
		}
		return rec.Name, nil
	case layout.PropPhaseNumber:
		rec, err := s.resolver.SelfPhase(ctx, row.Object, row.Cache)
		if err != nil {
			return nil, err
		}
		if !rec.Has {
			return nil, nil
		}
		return rec.Number, nil
	case layout.PropPhaseOthers:
		return s.resolver.OthersLabel(ctx, row.Object, row.Cache)
	default:
		return nil, nil
	}
}
