// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package merge aggregates per-peak annotation results into one feature
// set per gene.
package merge

import (
	"fmt"
	"io"
	"sort"

	"github.com/kortschak/utr/internal/annotate"
	"github.com/kortschak/utr/internal/criteria"
	"github.com/kortschak/utr/internal/model"
)

// Annotations holds the kept feature set for each gene and the peak
// outcome counters. Annotations is not safe for concurrent use.
type Annotations struct {
	sets map[string]model.FeatureSet

	peaks        int
	noFeatures   int
	zeroCoverage int
}

// New returns a new empty Annotations.
func New() *Annotations {
	return &Annotations{sets: make(map[string]model.FeatureSet)}
}

// Add folds msg into a. For each gene given a UTR, the result replaces the
// kept result if its UTR is preferred.
func (a *Annotations) Add(msg annotate.Message) {
	a.peaks++
	if msg.Outcome == annotate.NoNearbyFeatures {
		a.noFeatures++
	}
	if msg.ZeroCoverage {
		a.zeroCoverage++
	}
	for _, set := range msg.Results {
		id := set.Gene.ID
		kept, ok := a.sets[id]
		if !ok || preferred(set.UTR, kept.UTR) {
			a.sets[id] = set
		}
	}
}

// preferred returns whether the candidate UTR c should replace the kept
// UTR k. Longer UTRs are preferred, then UTRs starting earlier, then the
// lower provenance colour. A UTR that is a subset of another is never
// preferred to it.
func preferred(c, k *model.Feature) bool {
	if k == nil {
		return c != nil
	}
	if c == nil {
		return false
	}
	switch {
	case c.Len() != k.Len():
		return c.Len() > k.Len()
	case c.Start != k.Start:
		return c.Start < k.Start
	}
	return colour(c) < colour(k)
}

func colour(f *model.Feature) string {
	c := f.Attributes.Get("colour")
	if len(c) == 0 {
		return ""
	}
	return c[0]
}

// Catalog is the source of genes and their descendants.
type Catalog interface {
	Features(types ...string) []*model.Feature
	Children(id string, types ...string) []*model.Feature
}

// Reconcile adds every gene-like feature of c not already held by a,
// with its native descendants, and returns the number of genes added.
func (a *Annotations) Reconcile(c Catalog) int {
	var n int
	for _, g := range c.Features(model.AllGeneTypes()...) {
		if _, ok := a.sets[g.ID]; ok {
			continue
		}
		feats := append([]*model.Feature{g}, c.Children(g.ID)...)
		a.sets[g.ID] = model.FeatureSet{Gene: g, Features: feats}
		n++
	}
	return n
}

// Len returns the number of genes held by a.
func (a *Annotations) Len() int { return len(a.sets) }

// Set returns the feature set kept for the gene with the given id.
func (a *Annotations) Set(id string) (model.FeatureSet, bool) {
	s, ok := a.sets[id]
	return s, ok
}

// Sets returns the kept feature sets ordered by chromosome, start and
// gene id.
func (a *Annotations) Sets() []model.FeatureSet {
	sets := make([]model.FeatureSet, 0, len(a.sets))
	for _, s := range a.sets {
		sets = append(sets, s)
	}
	sort.Slice(sets, func(i, j int) bool {
		gi, gj := sets[i].Gene, sets[j].Gene
		switch {
		case gi.Chrom != gj.Chrom:
			return gi.Chrom < gj.Chrom
		case gi.Start != gj.Start:
			return gi.Start < gj.Start
		}
		return gi.ID < gj.ID
	})
	return sets
}

// Summary is the run summary.
type Summary struct {
	Peaks        int
	NoFeatures   int
	Failures     map[criteria.Kind]int
	ZeroCoverage int

	// UTRs is the total number of 3' UTRs held, and Inferred is
	// the number of those that were inferred.
	UTRs     int
	Inferred int
}

// Summary returns the summary of a with the given criteria failures.
func (a *Annotations) Summary(failures *criteria.Failures) Summary {
	s := Summary{
		Peaks:        a.peaks,
		NoFeatures:   a.noFeatures,
		ZeroCoverage: a.zeroCoverage,
		Failures:     make(map[criteria.Kind]int),
	}
	if failures != nil {
		for _, k := range criteria.Kinds {
			s.Failures[k] = failures.Count(k)
		}
	}
	for _, set := range a.sets {
		if set.UTR != nil {
			s.Inferred++
			s.UTRs++
		}
		for _, f := range set.Features {
			if model.IsType(f.Type, model.ThreePrimeUTRTypes) {
				s.UTRs++
			}
		}
	}
	return s
}

// WriteSummary writes s to w labelled with the given tool name.
func WriteSummary(w io.Writer, s Summary, tool string) error {
	lines := []struct {
		label string
		n     int
		total int
	}{
		{label: "Total peaks", n: s.Peaks, total: -1},
		{label: "\t...with no nearby features", n: s.NoFeatures, total: s.Peaks},
		{label: "\t...corresponding to an already annotated 3' UTR", n: s.Failures[criteria.AlreadyAnnotated], total: s.Peaks},
		{label: "\t...contained within a feature", n: s.Failures[criteria.PeakWithinTranscript], total: s.Peaks},
		{label: "\t...corresponding to 5'-end of a feature", n: s.Failures[criteria.FivePrimeEnd], total: s.Peaks},
		{label: "\t...contained within a neighbouring gene", n: s.Failures[criteria.WithinAdjacentGene], total: s.Peaks},
		{label: "\t...corresponding to potential 3' UTR removed due to zero read coverage", n: s.ZeroCoverage, total: s.Peaks},
		{label: "Total 3' UTRs", n: s.UTRs, total: -1},
		{label: "\t...annotated by " + tool, n: s.Inferred, total: s.UTRs},
	}
	for _, l := range lines {
		_, err := fmt.Fprintln(w, statsLine(l.label, l.n, l.total))
		if err != nil {
			return err
		}
	}
	return nil
}

// statsLine formats a labelled count, with a truncated percentage of
// total if total is not negative.
func statsLine(label string, n, total int) string {
	if total < 0 {
		return fmt.Sprintf("%s: %d", label, n)
	}
	var pc int
	if total != 0 {
		pc = 100 * n / total
	}
	return fmt.Sprintf("%s: %d (%d%%)", label, n, pc)
}
