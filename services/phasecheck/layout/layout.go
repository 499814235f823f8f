// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package layout describes which columns a check report shows per class.
//
// A layout is a YAML (or JSON) document with one column list per class:
//
//	parts:
//	  - {header: Guid, property: GUID}
//	  - {header: Phase, property: PHASE.NUMBER, type: int}
//	  - {header: Others, property: PHASE.OTHERS}
//	fasteners: [...]
//	components: [...]
//
// Property names are case-insensitive. A class without a GUID column is
// not processed at all.
package layout

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/AleutianAI/obcheck/services/phasecheck/phase"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidLayout indicates a layout document failed validation.
	ErrInvalidLayout = errors.New("invalid layout")
)

// Property names a value a column can show.
type Property string

const (
	PropGUID        Property = "GUID"
	PropType        Property = "TYPE"
	PropName        Property = "NAME"
	PropPhaseName   Property = "PHASE.NAME"
	PropPhaseNumber Property = "PHASE.NUMBER"
	PropPhaseOthers Property = "PHASE.OTHERS"
)

var knownProperties = map[Property]struct{}{
	PropGUID:        {},
	PropType:        {},
	PropName:        {},
	PropPhaseName:   {},
	PropPhaseNumber: {},
	PropPhaseOthers: {},
}

// Normalize returns p in canonical upper case.
func (p Property) Normalize() Property {
	return Property(strings.ToUpper(strings.TrimSpace(string(p))))
}

// IsPhase reports whether reading p requires the row's phase.
func (p Property) IsPhase() bool {
	switch p.Normalize() {
	case PropPhaseName, PropPhaseNumber, PropPhaseOthers:
		return true
	default:
		return false
	}
}

// Column is one report column.
type Column struct {
	Header   string   `yaml:"header" json:"header" validate:"required,max=128"`
	Property Property `yaml:"property" json:"property" validate:"required,property"`
	Type     string   `yaml:"type,omitempty" json:"type,omitempty" validate:"omitempty,oneof=string int double bool"`
}

// Columns is the ordered column list of one class.
type Columns []Column

// Needs records which phase values a column list reads.
type Needs struct {
	Name   bool
	Number bool
	Others bool
}

// Any reports whether any phase value is read.
func (n Needs) Any() bool {
	return n.Name || n.Number || n.Others
}

// PhaseNeeds scans the columns for phase properties.
func (c Columns) PhaseNeeds() Needs {
	var n Needs
	for _, col := range c {
		switch col.Property.Normalize() {
		case PropPhaseName:
			n.Name = true
		case PropPhaseNumber:
			n.Number = true
		case PropPhaseOthers:
			n.Others = true
		}
	}
	return n
}

// HasGUID reports whether the list contains a GUID column.
func (c Columns) HasGUID() bool {
	for _, col := range c {
		if col.Property.Normalize() == PropGUID {
			return true
		}
	}
	return false
}

// Headers returns the column headers in order.
func (c Columns) Headers() []string {
	out := make([]string, len(c))
	for i, col := range c {
		out[i] = col.Header
	}
	return out
}

// Layout holds the column lists of all classes.
type Layout struct {
	Parts      Columns `yaml:"parts" json:"parts" validate:"dive"`
	Fasteners  Columns `yaml:"fasteners" json:"fasteners" validate:"dive"`
	Components Columns `yaml:"components" json:"components" validate:"dive"`
}

// For returns the columns of class.
func (l Layout) For(class phase.Class) Columns {
	switch class {
	case phase.ClassPart:
		return l.Parts
	case phase.ClassFastener:
		return l.Fasteners
	case phase.ClassComponent:
		return l.Components
	default:
		return nil
	}
}

// Enabled reports whether class is processed under this layout.
func (l Layout) Enabled(class phase.Class) bool {
	return l.For(class).HasGUID()
}

// Validate checks field constraints and property names.
func (l *Layout) Validate() error {
	if err := layoutValidate.Struct(l); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	return nil
}

// Default returns a layout showing every property for every class.
func Default() Layout {
	cols := func() Columns {
		return Columns{
			{Header: "Guid", Property: PropGUID, Type: "string"},
			{Header: "Type", Property: PropType, Type: "string"},
			{Header: "Name", Property: PropName, Type: "string"},
			{Header: "Phase", Property: PropPhaseNumber, Type: "int"},
			{Header: "Phase Name", Property: PropPhaseName, Type: "string"},
			{Header: "Other Phases", Property: PropPhaseOthers, Type: "string"},
		}
	}
	return Layout{Parts: cols(), Fasteners: cols(), Components: cols()}
}

// Load decodes and validates a layout document.
func Load(r io.Reader) (Layout, error) {
	var l Layout
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil {
		if errors.Is(err, io.EOF) {
			return Layout{}, fmt.Errorf("%w: empty document", ErrInvalidLayout)
		}
		return Layout{}, fmt.Errorf("%w: %w", ErrInvalidLayout, err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// LoadFile reads a layout from path.
func LoadFile(path string) (Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return Layout{}, fmt.Errorf("open layout: %w", err)
	}
	defer f.Close()
	return Load(f)
}

var layoutValidate *validator.Validate

func init() {
	layoutValidate = validator.New()
	_ = layoutValidate.RegisterValidation("property", validateProperty)
}

// validateProperty accepts the known property names in any case.
func validateProperty(fl validator.FieldLevel) bool {
	_, ok := knownProperties[Property(fl.Field().String()).Normalize()]
	return ok
}
