// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package criteria implements the ordered checks that decide whether a
// peak describes a 3' UTR of a transcript, and how far that UTR extends.
package criteria

import (
	"fmt"
	"sync"

	"github.com/biogo/biogo/seq"

	"github.com/kortschak/utr/internal/model"
)

// Kind is a class of criteria failure.
type Kind int

const (
	// AlreadyAnnotated is the failure of a transcript that already has
	// a 3' UTR when neither override nor extend is requested.
	AlreadyAnnotated Kind = iota
	// PeakWithinTranscript is the failure of a peak wholly contained
	// in the transcript.
	PeakWithinTranscript
	// FivePrimeEnd is the failure of a peak that does not extend beyond
	// the 3' end of the transcript.
	FivePrimeEnd
	// WithinAdjacentGene is the failure of a transcript wholly
	// contained in the transcript of a neighbouring gene.
	WithinAdjacentGene

	numKinds
)

// Kinds is the list of all failure kinds in reporting order.
var Kinds = []Kind{AlreadyAnnotated, PeakWithinTranscript, FivePrimeEnd, WithinAdjacentGene}

func (k Kind) String() string {
	switch k {
	case AlreadyAnnotated:
		return "already annotated"
	case PeakWithinTranscript:
		return "peak within transcript"
	case FivePrimeEnd:
		return "peak at 5' end"
	case WithinAdjacentGene:
		return "transcript within adjacent gene"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Rejection is a failed criterion for a peak and transcript pair.
type Rejection struct {
	Kind   Kind
	Reason string
}

func (r *Rejection) Error() string {
	return r.Kind.String() + ": " + r.Reason
}

func reject(k Kind, format string, args ...any) *Rejection {
	return &Rejection{Kind: k, Reason: fmt.Sprintf(format, args...)}
}

// Failures counts the peaks that have failed each criterion. A peak is
// counted at most once for each kind. Failures is safe for concurrent
// use.
type Failures struct {
	mu    sync.Mutex
	peaks [numKinds]map[string]struct{}
}

// NewFailures returns a new empty set of failure counters.
func NewFailures() *Failures {
	var f Failures
	for i := range f.peaks {
		f.peaks[i] = make(map[string]struct{})
	}
	return &f
}

// Record notes that the peak with the given identity failed k.
func (f *Failures) Record(k Kind, peak string) {
	f.mu.Lock()
	f.peaks[k][peak] = struct{}{}
	f.mu.Unlock()
}

// Count returns the number of distinct peaks that failed k.
func (f *Failures) Count(k Kind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peaks[k])
}

// Mode is the handling of transcripts with an existing 3' UTR.
type Mode int

const (
	// Keep leaves existing 3' UTRs untouched.
	Keep Mode = iota
	// Override replaces existing 3' UTRs with the inferred UTR.
	Override
	// Extend allows the inferred UTR to extend beyond existing 3' UTRs.
	Extend
)

func (m Mode) String() string {
	switch m {
	case Keep:
		return "keep"
	case Override:
		return "override"
	case Extend:
		return "extend"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Neighbour is another gene found near the peak with the transcript used
// to represent its extent.
type Neighbour struct {
	Gene       *model.Feature
	Transcript *model.Feature
}

// Candidate is a peak and transcript pair to be evaluated.
type Candidate struct {
	Peak model.Peak

	// Transcript is the working copy of the outermost transcript of
	// the candidate gene. Its 3' boundary may be altered by evaluation.
	Transcript *model.Feature

	// ExistingUTRs are the 3' UTR children of the transcript.
	ExistingUTRs []*model.Feature

	// Neighbours are the other candidate genes in the order they are
	// to be considered.
	Neighbours []Neighbour

	// Opposite holds the gene-like features on the opposite strand
	// near the peak.
	Opposite []*model.Feature
}

// Engine evaluates candidates against the ordered criteria.
type Engine struct {
	Mode Mode

	// FivePrimeExt is the distance upstream of a neighbouring gene
	// within which a peak is assumed to belong to the neighbour.
	FivePrimeExt int

	// NoStrandOverlap specifies that UTRs must not overlap genes on
	// the opposite strand.
	NoStrandOverlap bool

	// Failures receives failed peaks. It may be nil.
	Failures *Failures
}

// check is a single criterion. It may narrow utr or the transcript
// boundary held by c, or reject the candidate.
type check func(e *Engine, c *Candidate, utr *model.Range) *Rejection

var checks = []check{
	(*Engine).alreadyAnnotated,
	(*Engine).peakNotWithinTranscript,
	(*Engine).threePrimeEnd,
	(*Engine).adjacentGenes,
	(*Engine).oppositeStrand,
}

// Evaluate runs the criteria in order for c, stopping at the first
// failure. On success it returns the candidate UTR range, which may be
// invalid if truncation has consumed it. On failure the peak is recorded
// against the failed criterion.
func (e *Engine) Evaluate(c Candidate) (model.Range, *Rejection) {
	utr := c.Peak.Range
	for _, fn := range checks {
		rej := fn(e, &c, &utr)
		if rej != nil {
			if e.Failures != nil {
				e.Failures.Record(rej.Kind, c.Peak.ID())
			}
			return model.Range{}, rej
		}
	}
	return utr, nil
}

func (e *Engine) alreadyAnnotated(c *Candidate, _ *model.Range) *Rejection {
	if len(c.ExistingUTRs) == 0 {
		return nil
	}
	if e.Mode == Keep {
		return reject(AlreadyAnnotated, "3' UTR already annotated for transcript %s near peak %s", c.Transcript.ID, c.Peak.Name)
	}
	minStart := c.ExistingUTRs[0].Start
	maxEnd := c.ExistingUTRs[0].End
	for _, u := range c.ExistingUTRs[1:] {
		minStart = min(minStart, u.Start)
		maxEnd = max(maxEnd, u.End)
	}
	t := c.Transcript
	switch {
	case t.Strand == seq.Minus && e.Mode == Override:
		t.Start = maxEnd + 1
	case t.Strand == seq.Minus:
		t.Start = minStart
	case e.Mode == Override:
		t.End = minStart - 1
	default:
		t.End = maxEnd
	}
	return nil
}

func (e *Engine) peakNotWithinTranscript(c *Candidate, _ *model.Range) *Rejection {
	if c.Peak.IsSubset(c.Transcript.Range) {
		return reject(PeakWithinTranscript, "peak %s wholly contained within transcript %s", c.Peak.Name, c.Transcript.ID)
	}
	return nil
}

func (e *Engine) threePrimeEnd(c *Candidate, utr *model.Range) *Rejection {
	t := c.Transcript
	switch {
	case c.Peak.Strand == seq.Plus && c.Peak.End > t.End:
		utr.Start = t.End + 1
	case c.Peak.Strand == seq.Minus && c.Peak.Start < t.Start:
		utr.End = t.Start - 1
	default:
		return reject(FivePrimeEnd, "peak %s corresponds to 5' end of transcript %s", c.Peak.Name, t.ID)
	}
	return nil
}

func (e *Engine) adjacentGenes(c *Candidate, utr *model.Range) *Rejection {
	t := c.Transcript
	for _, n := range c.Neighbours {
		adj := n.Transcript
		if t.IsSubset(adj.Range) {
			return reject(WithinAdjacentGene, "transcript %s wholly contained within transcript %s of gene %s", t.ID, adj.ID, n.Gene.ID)
		}
		if !utr.Intersects(adj.Range) {
			continue
		}
		// Truncation leaves FivePrimeExt bases upstream of the
		// neighbour to its 5' end.
		switch {
		case c.Peak.Strand == seq.Plus && adj.Start > t.End:
			utr.End = min(utr.End, adj.Start-1-e.FivePrimeExt)
		case c.Peak.Strand == seq.Minus && adj.End < t.Start:
			utr.Start = max(utr.Start, adj.End+1+e.FivePrimeExt)
		}
	}
	return nil
}

func (e *Engine) oppositeStrand(c *Candidate, utr *model.Range) *Rejection {
	if !e.NoStrandOverlap {
		return nil
	}
	t := c.Transcript
	for _, o := range c.Opposite {
		if !utr.Intersects(o.Range) {
			continue
		}
		switch {
		case c.Peak.Strand == seq.Plus && o.Start > t.End:
			utr.End = min(utr.End, o.Start-1)
		case c.Peak.Strand == seq.Minus && o.End < t.Start:
			utr.Start = max(utr.Start, o.End+1)
		}
	}
	return nil
}
