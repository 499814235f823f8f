// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package diag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelSink forwards diagnostic events to OpenTelemetry instruments.
//
// Description:
//
//	Every Counter maps to one attribute value of a single Int64Counter
//	named "phasecheck_events_total", and every Timer to an attribute of
//	the "phasecheck_step_duration_seconds" histogram. Attribute sets are
//	built once at construction so the hot path does not allocate. Events
//	whose context carries WithScope also get a "class" attribute; those
//	sets are built on first use per scope.
//
// Thread Safety: Safe for concurrent use.
type OTelSink struct {
	events   metric.Int64Counter
	duration metric.Float64Histogram

	counterAttrs [NumCounters]metric.AddOption
	timerAttrs   [NumTimers]metric.RecordOption

	// scoped maps a scope name to its *scopedAttrs.
	scoped sync.Map
}

type scopedAttrs struct {
	counters [NumCounters]metric.AddOption
	timers   [NumTimers]metric.RecordOption
}

func newScopedAttrs(scope string) *scopedAttrs {
	a := &scopedAttrs{}
	class := attribute.String("class", scope)
	for c := Counter(0); c < NumCounters; c++ {
		a.counters[c] = metric.WithAttributeSet(attribute.NewSet(attribute.String("event", c.String()), class))
	}
	for t := Timer(0); t < NumTimers; t++ {
		a.timers[t] = metric.WithAttributeSet(attribute.NewSet(attribute.String("step", t.String()), class))
	}
	return a
}

func (s *OTelSink) attrsFor(ctx context.Context) *scopedAttrs {
	scope, ok := ScopeFrom(ctx)
	if !ok {
		return nil
	}
	if a, ok := s.scoped.Load(scope); ok {
		return a.(*scopedAttrs)
	}
	a, _ := s.scoped.LoadOrStore(scope, newScopedAttrs(scope))
	return a.(*scopedAttrs)
}

// NewOTelSink registers the diagnostic instruments with the given meter.
//
// Inputs:
//   - meter: The meter to register with. If nil, otel.Meter("obcheck.phasecheck") is used.
//
// Outputs:
//   - *OTelSink: The sink.
//   - error: Non-nil if instrument registration fails.
func NewOTelSink(meter metric.Meter) (*OTelSink, error) {
	if meter == nil {
		meter = otel.Meter("obcheck.phasecheck")
	}

	events, err := meter.Int64Counter(
		"phasecheck_events_total",
		metric.WithDescription("Phase checker cache and comparison events"),
	)
	if err != nil {
		return nil, fmt.Errorf("register events counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"phasecheck_step_duration_seconds",
		metric.WithDescription("Duration of others-label computation steps"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("register step histogram: %w", err)
	}

	s := &OTelSink{events: events, duration: duration}
	for c := Counter(0); c < NumCounters; c++ {
		s.counterAttrs[c] = metric.WithAttributeSet(attribute.NewSet(attribute.String("event", c.String())))
	}
	for t := Timer(0); t < NumTimers; t++ {
		s.timerAttrs[t] = metric.WithAttributeSet(attribute.NewSet(attribute.String("step", t.String())))
	}
	return s, nil
}

// Inc adds one to the event counter for c.
func (s *OTelSink) Inc(ctx context.Context, c Counter) {
	if c < 0 || c >= NumCounters {
		return
	}
	if a := s.attrsFor(ctx); a != nil {
		s.events.Add(ctx, 1, a.counters[c])
		return
	}
	s.events.Add(ctx, 1, s.counterAttrs[c])
}

// Observe records d in the step histogram for t.
func (s *OTelSink) Observe(ctx context.Context, t Timer, d time.Duration) {
	if t < 0 || t >= NumTimers {
		return
	}
	if a := s.attrsFor(ctx); a != nil {
		s.duration.Record(ctx, d.Seconds(), a.timers[t])
		return
	}
	s.duration.Record(ctx, d.Seconds(), s.timerAttrs[t])
}
