// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

// Provenance records how the extent of an inferred UTR was decided.
type Provenance int

const (
	// Extended is a UTR running from the transcript edge to the peak
	// edge, possibly truncated by a neighbouring gene.
	Extended Provenance = iota + 1
	// ExtendedWithSPAT is a UTR whose outer edge is a soft-clipped
	// poly-A/T truncation point.
	ExtendedWithSPAT
	// TruncatedZeroCoverage is a UTR whose outer edge was clamped to a
	// zero coverage gap.
	TruncatedZeroCoverage
)

// Colour returns the colour attribute value used to mark p in output.
func (p Provenance) Colour() string {
	switch p {
	case Extended:
		return "3"
	case ExtendedWithSPAT:
		return "4"
	case TruncatedZeroCoverage:
		return "2"
	}
	return ""
}

func (p Provenance) String() string {
	switch p {
	case Extended:
		return "extended"
	case ExtendedWithSPAT:
		return "extended with SPAT"
	case TruncatedZeroCoverage:
		return "truncated by zero coverage"
	}
	return "unknown"
}

// UTR is a candidate untranslated region.
type UTR struct {
	Range
	Provenance Provenance
}

// IsZeroLength returns whether u was truncated to exactly nothing. This
// is distinct from a UTR that is inverted by more than one position.
func (u UTR) IsZeroLength() bool {
	return u.End == u.Start-1
}
