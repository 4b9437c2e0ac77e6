// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sidetable provides the per-chromosome read evidence tables
// used to refine inferred UTR boundaries: soft-clipped poly-A/T tail
// truncation points and zero coverage gaps.
package sidetable

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/biogo/biogo/seq"
	"github.com/biogo/store/interval"

	"github.com/kortschak/utr/internal/model"
)

// TruncationPoints holds the positions of soft-clipped poly-A/T read
// extremities for each chromosome. The zero value and nil are empty
// tables.
type TruncationPoints struct {
	points map[string][]int
}

// ReadTruncationPoints reads a JSON object of the form
//
//	{"chrom": {"position": count, ...}, ...}
//
// from r, retaining only positions with at least minPileups counts.
// Positions are 1-based.
func ReadTruncationPoints(r io.Reader, minPileups int) (*TruncationPoints, error) {
	var counts map[string]map[string]int
	err := json.NewDecoder(r).Decode(&counts)
	if err != nil {
		return nil, fmt.Errorf("invalid truncation points: %w", err)
	}
	t := &TruncationPoints{points: make(map[string][]int)}
	for chrom, pos := range counts {
		for p, n := range pos {
			if n < minPileups {
				continue
			}
			v, err := strconv.Atoi(p)
			if err != nil {
				return nil, fmt.Errorf("invalid truncation point position on %s: %w", chrom, err)
			}
			t.points[chrom] = append(t.points[chrom], v)
		}
		sort.Ints(t.points[chrom])
	}
	return t, nil
}

// Len returns the number of truncation points in t.
func (t *TruncationPoints) Len() int {
	if t == nil {
		return 0
	}
	var n int
	for _, p := range t.points {
		n += len(p)
	}
	return n
}

// Intersect returns the truncation points on chrom that lie within r in
// ascending order.
func (t *TruncationPoints) Intersect(chrom string, r model.Range) []int {
	if t == nil || !r.Valid() {
		return nil
	}
	p := t.points[chrom]
	lo := sort.SearchInts(p, r.Start)
	hi := sort.SearchInts(p, r.End+1)
	if lo == hi {
		return nil
	}
	return p[lo:hi:hi]
}

// CoverageGaps holds the intervals of zero read coverage for each
// chromosome. The zero value and nil are empty tables.
type CoverageGaps struct {
	trees map[string]*interval.IntTree
	n     int
}

// ReadCoverageGaps reads BED3 intervals from r. Intervals are 0-based and
// half-open on disk and are held as 1-based closed ranges.
func ReadCoverageGaps(r io.Reader) (*CoverageGaps, error) {
	// column indices for BED3.
	const (
		chrom = iota
		start
		end
		numFields
	)

	g := &CoverageGaps{trees: make(map[string]*interval.IntTree)}
	sc := bufio.NewScanner(r)
	var line int
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(bytes.TrimSpace(b)) == 0 || bytes.HasPrefix(b, []byte("#")) || bytes.HasPrefix(b, []byte("track")) {
			continue
		}
		f := bytes.Split(b, []byte("\t"))
		if len(f) < numFields {
			return nil, fmt.Errorf("unexpected number of fields in coverage gap line %d: %q", line, b)
		}
		s, err := strconv.Atoi(string(bytes.TrimSpace(f[start])))
		if err != nil {
			return nil, fmt.Errorf("error in coverage gap line %d: %w", line, err)
		}
		e, err := strconv.Atoi(string(bytes.TrimSpace(f[end])))
		if err != nil {
			return nil, fmt.Errorf("error in coverage gap line %d: %w", line, err)
		}
		gap := model.FromHalfOpen(s, e)
		if !gap.Valid() {
			return nil, fmt.Errorf("empty coverage gap at line %d: %q", line, b)
		}
		name := string(f[chrom])
		t, ok := g.trees[name]
		if !ok {
			t = &interval.IntTree{}
			g.trees[name] = t
		}
		err = t.Insert(gapInterval{uid: uintptr(g.n), gap: gap}, true)
		if err != nil {
			return nil, fmt.Errorf("error in coverage gap line %d: %w", line, err)
		}
		g.n++
	}
	err := sc.Err()
	if err != nil {
		return nil, err
	}
	for _, t := range g.trees {
		t.AdjustRanges()
	}
	return g, nil
}

// Len returns the number of gaps in g.
func (g *CoverageGaps) Len() int {
	if g == nil {
		return 0
	}
	return g.n
}

// Intersecting returns the gaps on chrom that share a position with r,
// ordered by start.
func (g *CoverageGaps) Intersecting(chrom string, r model.Range) []model.Range {
	if g == nil || !r.Valid() {
		return nil
	}
	t, ok := g.trees[chrom]
	if !ok {
		return nil
	}
	hits := t.Get(gapInterval{gap: r})
	if len(hits) == 0 {
		return nil
	}
	gaps := make([]model.Range, len(hits))
	for i, h := range hits {
		gaps[i] = h.(gapInterval).gap
	}
	sort.Slice(gaps, func(i, j int) bool {
		if gaps[i].Start != gaps[j].Start {
			return gaps[i].Start < gaps[j].Start
		}
		return gaps[i].End < gaps[j].End
	})
	return gaps
}

// gapInterval is a closed gap held as a half-open interval.
type gapInterval struct {
	uid uintptr
	gap model.Range
}

func (i gapInterval) Overlap(b interval.IntRange) bool {
	return b.Start <= i.gap.End && i.gap.Start < b.End
}
func (i gapInterval) ID() uintptr { return i.uid }
func (i gapInterval) Range() interval.IntRange {
	return interval.IntRange{Start: i.gap.Start, End: i.gap.End + 1}
}

// Tables holds the read evidence for one strand.
type Tables struct {
	Points *TruncationPoints
	Gaps   *CoverageGaps
}

// PointsFile and GapsFile return the names of the truncation point and
// coverage gap files for a strand.
func PointsFile(s seq.Strand) string { return model.StrandName(s) + "_unmapped.json" }
func GapsFile(s seq.Strand) string   { return model.StrandName(s) + "_coverage_gaps.bed" }

// Load reads the tables for strand s from dir. A missing file gives an
// empty table.
func Load(dir string, s seq.Strand, minPileups int) (Tables, error) {
	var t Tables
	f, err := os.Open(filepath.Join(dir, PointsFile(s)))
	switch {
	case err == nil:
		t.Points, err = ReadTruncationPoints(f, minPileups)
		f.Close()
		if err != nil {
			return t, fmt.Errorf("%s: %w", f.Name(), err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return t, err
	}
	f, err = os.Open(filepath.Join(dir, GapsFile(s)))
	switch {
	case err == nil:
		t.Gaps, err = ReadCoverageGaps(f)
		f.Close()
		if err != nil {
			return t, fmt.Errorf("%s: %w", f.Name(), err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return t, err
	}
	return t, nil
}
