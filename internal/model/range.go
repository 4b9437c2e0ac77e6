// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package model provides the coordinate, peak and feature types shared by
// the UTR annotation engine.
//
// All coordinates held by the types in this package are 1-based and
// inclusive, as in GFF3 and GTF. Coordinates read from BED-like sources,
// which are 0-based and half-open, must be converted with FromHalfOpen
// at the point they are read.
package model

import "fmt"

// Range is a closed interval of 1-based genomic positions.
type Range struct {
	Start int
	End   int
}

// FromHalfOpen returns the closed 1-based Range corresponding to the
// 0-based half-open interval [start, end).
func FromHalfOpen(start, end int) Range {
	return Range{Start: start + 1, End: end}
}

// HalfOpen returns the 0-based half-open interval corresponding to r.
func (r Range) HalfOpen() (start, end int) {
	return r.Start - 1, r.End
}

// Len returns the number of positions in r. It is zero for an empty
// range and negative for an inverted one.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// Valid returns whether r contains at least one position.
func (r Range) Valid() bool {
	return r.End >= r.Start
}

// IsSubset returns whether every position in r is in o. An empty range
// is a subset of every range.
func (r Range) IsSubset(o Range) bool {
	if !r.Valid() {
		return true
	}
	return o.Start <= r.Start && r.End <= o.End
}

// Intersects returns whether r and o share at least one position.
func (r Range) Intersects(o Range) bool {
	return r.Valid() && o.Valid() && r.Start <= o.End && o.Start <= r.End
}

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}
