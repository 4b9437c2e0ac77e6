// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"fmt"

	"github.com/biogo/biogo/seq"
)

// Peak is a called region of elevated read coverage.
type Peak struct {
	Chrom string
	Range
	Name   string
	Score  int
	Strand seq.Strand

	SignalValue float64
	PValue      float64
	QValue      float64
}

// ID returns the identity used to deduplicate per-peak counts. Peak
// names are unique within a strand.
func (p Peak) ID() string {
	return StrandName(p.Strand) + ":" + p.Name
}

func (p Peak) String() string {
	return fmt.Sprintf("%s %s:%v(%s)", p.Name, p.Chrom, p.Range, FormatStrand(p.Strand))
}

// StrandName returns the read orientation name used for strand-specific
// intermediate files.
func StrandName(s seq.Strand) string {
	switch s {
	case seq.Plus:
		return "forward"
	case seq.Minus:
		return "reverse"
	default:
		return "unstranded"
	}
}

// ParseStrand parses a GFF strand column.
func ParseStrand(s string) (seq.Strand, error) {
	switch s {
	case "+":
		return seq.Plus, nil
	case "-":
		return seq.Minus, nil
	case ".", "?":
		return seq.None, nil
	}
	return seq.None, fmt.Errorf("invalid strand: %q", s)
}

// FormatStrand returns the GFF strand column for s.
func FormatStrand(s seq.Strand) string {
	switch s {
	case seq.Plus:
		return "+"
	case seq.Minus:
		return "-"
	default:
		return "."
	}
}
