// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package annotate infers 3' UTRs for the genes near a peak.
package annotate

import (
	"sort"
	"strconv"
	"strings"

	"github.com/biogo/biogo/seq"
	"go.uber.org/zap"

	"github.com/kortschak/utr/internal/criteria"
	"github.com/kortschak/utr/internal/featuredb"
	"github.com/kortschak/utr/internal/model"
	"github.com/kortschak/utr/internal/sidetable"
)

// Source is the default source column of inferred UTR features.
const Source = "peaks2utr"

// Index is a feature lookup. The features returned by an Index must not
// be modified.
type Index interface {
	// Region returns the features of the given types overlapping r on
	// the given strand of chrom, ordered by position.
	Region(chrom string, r model.Range, strand seq.Strand, types ...string) []*model.Feature

	// Children returns all the descendants of the feature with the
	// given id that have one of the given types, in index order.
	Children(id string, types ...string) []*model.Feature

	// ChildrenOrdered returns the descendants as for Children, sorted
	// by the given order and optionally reversed.
	ChildrenOrdered(id string, by featuredb.Order, reverse bool, types ...string) []*model.Feature
}

// Options holds the parameters of an Annotator.
type Options struct {
	// MaxDistance is the distance either side of a peak to search for
	// genes.
	MaxDistance int

	// Mode is the handling of existing 3' UTRs.
	Mode criteria.Mode

	// FivePrimeExt is the distance upstream of a gene within which a
	// peak is assumed to belong to that gene.
	FivePrimeExt int

	// DoPseudo includes pseudogenes in the gene search.
	DoPseudo bool

	// NoStrandOverlap prevents UTRs from overlapping genes on the
	// opposite strand.
	NoStrandOverlap bool

	// Dialect is the attribute dialect of the index.
	Dialect model.Dialect

	// Source is the source column of inferred UTRs. If empty, Source
	// is used.
	Source string
}

// Outcome is the result class of annotating a peak.
type Outcome int

const (
	// NoNearbyFeatures is the outcome for a peak with no gene within
	// the search window.
	NoNearbyFeatures Outcome = iota + 1
	// NoUTR is the outcome for a peak where no candidate gene gave a
	// UTR.
	NoUTR
	// ZeroCoverage is the outcome for a peak where no candidate gene
	// gave a UTR and at least one UTR was truncated to nothing.
	ZeroCoverage
	// Annotated is the outcome for a peak that gave at least one UTR.
	Annotated
)

func (o Outcome) String() string {
	switch o {
	case NoNearbyFeatures:
		return "no nearby features"
	case NoUTR:
		return "no UTR"
	case ZeroCoverage:
		return "zero coverage"
	case Annotated:
		return "annotated"
	}
	return "invalid outcome"
}

// Message is the result of annotating one peak.
type Message struct {
	Peak    model.Peak
	Outcome Outcome

	// Results holds a feature set for each gene given a UTR.
	Results []model.FeatureSet

	// ZeroCoverage is true if a candidate UTR for the peak was
	// truncated to exactly zero length.
	ZeroCoverage bool
}

// Annotator infers UTRs for peaks. An Annotator is not safe for
// concurrent use.
type Annotator struct {
	index  Index
	tables map[seq.Strand]sidetable.Tables
	engine criteria.Engine
	opts   Options
	types  []string
	log    *zap.SugaredLogger
}

// New returns a new Annotator using the given index and read evidence
// tables. Criteria failures are recorded in failures, which may be
// shared between Annotators.
func New(idx Index, tables map[seq.Strand]sidetable.Tables, opts Options, failures *criteria.Failures, log *zap.SugaredLogger) *Annotator {
	if opts.Source == "" {
		opts.Source = Source
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	types := model.GeneTypes
	if opts.DoPseudo {
		types = model.AllGeneTypes()
	}
	return &Annotator{
		index:  idx,
		tables: tables,
		engine: criteria.Engine{
			Mode:            opts.Mode,
			FivePrimeExt:    opts.FivePrimeExt,
			NoStrandOverlap: opts.NoStrandOverlap,
			Failures:        failures,
		},
		opts:  opts,
		types: types,
		log:   log,
	}
}

// candidate is a gene near a peak and the working copy of its outermost
// transcript.
type candidate struct {
	gene *model.Feature
	tx   *model.Feature // nil if the gene has no transcript.
}

// extent returns the feature representing the extent of the candidate
// when it is considered as a neighbour.
func (c candidate) extent() *model.Feature {
	if c.tx == nil {
		return c.gene
	}
	return c.tx
}

// Annotate infers the UTRs described by p.
func (a *Annotator) Annotate(p model.Peak) Message {
	msg := Message{Peak: p}

	window := model.Range{Start: max(1, p.Start-a.opts.MaxDistance), End: p.End + a.opts.MaxDistance}
	genes := a.index.Region(p.Chrom, window, p.Strand, a.types...)
	if len(genes) == 0 {
		a.log.Debugf("no features found near peak %s", p.Name)
		msg.Outcome = NoNearbyFeatures
		return msg
	}
	genes = append([]*model.Feature(nil), genes...)
	sort.SliceStable(genes, func(i, j int) bool {
		if p.Strand == seq.Minus {
			return genes[i].Start > genes[j].Start
		}
		return genes[i].Start < genes[j].Start
	})

	// The arena holds working copies of transcripts for the lifetime
	// of this peak's evaluation.
	cands := make([]candidate, len(genes))
	for i, g := range genes {
		cands[i] = candidate{gene: g}
		if tx := a.outermostTranscript(g); tx != nil {
			cands[i].tx = tx.Clone()
		}
	}

	var opposite []*model.Feature
	if a.opts.NoStrandOverlap {
		opposite = a.index.Region(p.Chrom, window, oppositeOf(p.Strand), a.types...)
	}
	tab := a.tables[p.Strand]

	for i, c := range cands {
		if c.tx == nil {
			a.log.Debugf("gene %s near peak %s has no transcript", c.gene.ID, p.Name)
			continue
		}
		neighbours := make([]criteria.Neighbour, 0, len(cands)-1)
		for j := 1; j < len(cands); j++ {
			n := cands[(i+j)%len(cands)]
			neighbours = append(neighbours, criteria.Neighbour{Gene: n.gene, Transcript: n.extent()})
		}
		existing := a.index.Children(c.tx.ID, model.ThreePrimeUTRTypes...)

		tx := c.tx.Clone()
		r, rej := a.engine.Evaluate(criteria.Candidate{
			Peak:         p,
			Transcript:   tx,
			ExistingUTRs: existing,
			Neighbours:   neighbours,
			Opposite:     opposite,
		})
		if rej != nil {
			a.log.Debugf("%v", rej)
			continue
		}

		utr := refine(p.Chrom, p.Strand, tx, r, tab)
		switch {
		case utr.Valid():
		case utr.IsZeroLength():
			a.log.Debugf("UTR for peak %s at transcript %s removed due to zero coverage", p.Name, tx.ID)
			msg.ZeroCoverage = true
			continue
		default:
			a.log.Warnf("invalid UTR %v for peak %s at transcript %s: please report this", utr.Range, p.Name, tx.ID)
			continue
		}
		a.log.Debugf("peak %s corresponds to 3' UTR %v of gene %s", p.Name, utr.Range, c.gene.ID)

		feat := a.utrFeature(c.gene, tx, utr)
		if tx.Strand == seq.Minus {
			tx.Start = utr.Start
		} else {
			tx.End = utr.End
		}
		cands[i].tx = tx

		msg.Results = append(msg.Results, a.featureSet(c.gene, tx, existing, feat))
	}

	switch {
	case len(msg.Results) != 0:
		msg.Outcome = Annotated
	case msg.ZeroCoverage:
		msg.Outcome = ZeroCoverage
	default:
		msg.Outcome = NoUTR
	}
	return msg
}

// outermostTranscript returns the transcript of g with the most 3'
// edge, or nil if g has no transcript.
func (a *Annotator) outermostTranscript(g *model.Feature) *model.Feature {
	by, reverse := featuredb.ByEnd, true
	if g.Strand == seq.Minus {
		by, reverse = featuredb.ByStart, false
	}
	txs := a.index.ChildrenOrdered(g.ID, by, reverse, model.TranscriptTypes...)
	if len(txs) == 0 {
		return nil
	}
	return txs[0]
}

// refine applies the read evidence for the peak's strand to the UTR
// range r of transcript tx. A coverage gap following the transcript's 3'
// edge clamps the UTR, and is superseded by a soft-clipped poly-A/T
// truncation point within the unclamped UTR.
func refine(chrom string, strand seq.Strand, tx *model.Feature, r model.Range, tab sidetable.Tables) model.UTR {
	utr := model.UTR{Range: r, Provenance: model.Extended}
	if !r.Valid() {
		return utr
	}

	if gaps := tab.Gaps.Intersecting(chrom, r); len(gaps) != 0 {
		if strand == seq.Minus {
			g := gaps[0]
			for _, c := range gaps[1:] {
				if c.End > g.End {
					g = c
				}
			}
			utr.Start = min(g.End+1, tx.ThreePrimeEdge())
		} else {
			utr.End = max(gaps[0].Start-1, tx.ThreePrimeEdge())
		}
		utr.Provenance = model.TruncatedZeroCoverage
	}

	if pts := tab.Points.Intersect(chrom, r); len(pts) != 0 {
		if strand == seq.Minus {
			utr.Start = pts[0]
		} else {
			utr.End = pts[len(pts)-1]
		}
		utr.Provenance = model.ExtendedWithSPAT
	}
	return utr
}

// utrFeature returns a new 3' UTR feature for tx of gene g in the
// dialect of the index.
func (a *Annotator) utrFeature(g, tx *model.Feature, utr model.UTR) *model.Feature {
	siblings := a.index.Children(tx.ID, append(append([]string(nil), model.ThreePrimeUTRTypes...), model.FivePrimeUTRTypes...)...)
	id := NextUTRID(tx.ID, siblings)
	f := &model.Feature{
		ID:     id,
		Chrom:  tx.Chrom,
		Source: a.opts.Source,
		Type:   model.ThreePrimeUTR,
		Range:  utr.Range,
		Strand: tx.Strand,
	}
	switch a.opts.Dialect {
	case model.GTF:
		geneID := g.ID
		if l, ok := g.Attributes.Linkage.(model.GeneTranscriptLinkage); ok && l.GeneID != "" {
			geneID = l.GeneID
		}
		f.Attributes.Linkage = model.GeneTranscriptLinkage{GeneID: geneID, TranscriptID: tx.ID}
	default:
		f.Attributes.Linkage = model.IDLinkage{ID: id, Parents: []string{tx.ID}}
	}
	f.Attributes.Set("colour", utr.Provenance.Colour())
	return f
}

// NextUTRID returns the identifier for a new UTR of the transcript with
// the given id, following the numbering of its existing UTR children.
// The existing child with the highest trailing number is incremented.
// If no existing child is numbered, an identifier based on the
// transcript id is returned.
func NextUTRID(transcript string, existing []*model.Feature) string {
	var (
		prefix  string
		highest = -1
	)
	for _, f := range existing {
		base, n, ok := splitTrailingNumber(f.ID)
		if !ok {
			continue
		}
		if n > highest || (n == highest && base > prefix) {
			prefix, highest = base, n
		}
	}
	if highest < 0 {
		return "utr_" + transcript + "_1"
	}
	return prefix + strconv.Itoa(highest+1)
}

func splitTrailingNumber(s string) (base string, n int, ok bool) {
	i := strings.LastIndexFunc(s, func(r rune) bool { return r < '0' || '9' < r })
	digits := s[i+1:]
	if digits == "" {
		return s, 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return s, 0, false
	}
	return s[:i+1], n, true
}

// featureSet returns the features describing gene g after tx has been
// given the 3' UTR utr. Existing 3' UTRs of tx are omitted when they are
// being overridden.
func (a *Annotator) featureSet(g, tx *model.Feature, existing []*model.Feature, utr *model.Feature) model.FeatureSet {
	gene := g.Clone()
	if tx.Strand == seq.Minus {
		gene.Start = min(gene.Start, tx.Start)
	} else {
		gene.End = max(gene.End, tx.End)
	}

	drop := make(map[string]bool)
	if a.opts.Mode == criteria.Override {
		for _, f := range existing {
			drop[f.ID] = true
		}
	}

	set := model.FeatureSet{Gene: gene, Features: []*model.Feature{gene}, UTR: utr}
	for _, f := range a.index.Children(g.ID) {
		switch {
		case f.ID == tx.ID:
			set.Features = append(set.Features, tx)
		case drop[f.ID]:
		default:
			set.Features = append(set.Features, f)
		}
	}
	return set
}

func oppositeOf(s seq.Strand) seq.Strand {
	switch s {
	case seq.Plus:
		return seq.Minus
	case seq.Minus:
		return seq.Plus
	}
	return seq.None
}
