// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package snapshot provides an in-memory structural model loaded from a
// document, for running the phase checker outside a live CAD session.
//
// # Document Format
//
//	roots: [r1]
//	objects:
//	  - ref: r1
//	    guid: 0f0c2e4a-...
//	    kind: component
//	    name: Stiffener
//	    phase: {number: 2, name: "Phase 2"}
//	    children: [p1, w1]
//	  - ref: p1
//	    guid: 6a1b...
//	    kind: part
//	    assembly: a1
//	    parent: r1
//	assemblies:
//	  - ref: a1
//	    guid: 5d1e...
//	    main: p1
//
// Refs are local to the document. An object without a guid has no
// identity and is ignored by the checker, which is how transient objects
// appear in a live model.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidSnapshot indicates the document failed to parse or validate.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrUnknownRef indicates a reference to an undefined object or assembly.
	ErrUnknownRef = errors.New("unknown reference")

	// ErrDuplicateRef indicates a ref or guid defined more than once.
	ErrDuplicateRef = errors.New("duplicate reference")

	// ErrInvalidGUID indicates a guid that is not a usable identifier.
	ErrInvalidGUID = errors.New("invalid guid")
)

// Document is the serialized form of a structural model.
type Document struct {
	Roots      []string      `yaml:"roots" json:"roots" validate:"required,min=1,dive,required"`
	Objects    []ObjectDoc   `yaml:"objects" json:"objects" validate:"dive"`
	Assemblies []AssemblyDoc `yaml:"assemblies,omitempty" json:"assemblies,omitempty" validate:"dive"`
}

// ObjectDoc describes one model object.
type ObjectDoc struct {
	Ref      string    `yaml:"ref" json:"ref" validate:"required"`
	GUID     string    `yaml:"guid,omitempty" json:"guid,omitempty"`
	Type     string    `yaml:"type,omitempty" json:"type,omitempty"`
	Kind     string    `yaml:"kind,omitempty" json:"kind,omitempty" validate:"omitempty,oneof=other part fastener component weld boolean fitting"`
	Name     string    `yaml:"name,omitempty" json:"name,omitempty"`
	Phase    *PhaseDoc `yaml:"phase,omitempty" json:"phase,omitempty"`
	Children []string  `yaml:"children,omitempty" json:"children,omitempty" validate:"dive,required"`
	Assembly string    `yaml:"assembly,omitempty" json:"assembly,omitempty"`
	Parent   string    `yaml:"parent,omitempty" json:"parent,omitempty"`
}

// PhaseDoc is an object's phase. Number 0 means "no phase".
type PhaseDoc struct {
	Number int    `yaml:"number" json:"number" validate:"gte=0"`
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
}

// AssemblyDoc describes one assembly.
type AssemblyDoc struct {
	Ref  string `yaml:"ref" json:"ref" validate:"required"`
	GUID string `yaml:"guid,omitempty" json:"guid,omitempty"`
	Main string `yaml:"main,omitempty" json:"main,omitempty"`
}

var docValidate = validator.New()

// Validate checks field constraints. Cross references are checked by Build.
func (d *Document) Validate() error {
	if err := docValidate.Struct(d); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return nil
}

// Load decodes a YAML (or JSON) document and validates its fields.
func Load(r io.Reader) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrInvalidSnapshot)
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// LoadFile reads a document from path.
func LoadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// LoadModel loads a document from path and builds its model.
func LoadModel(path string) (*Model, error) {
	doc, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(doc)
}
