// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package featuredb provides a persisted, read-only index of annotation
// features that can be queried by coordinate range, strand and type, and
// by position in the gene hierarchy.
//
// An index is built once with Create and may then be opened any number
// of times with Open. Each DB returned by Open holds its own in-memory
// copy of the index, so DB values may be used by separate workers
// without coordination.
package featuredb

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/biogo/biogo/seq"
	"github.com/biogo/store/interval"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"modernc.org/kv"

	"github.com/kortschak/utr/internal/model"
)

// DB is an opened feature index. The features returned by DB methods
// are shared with the DB and must not be modified.
type DB struct {
	dialect model.Dialect

	features []*model.Feature // in index order.
	byID     map[string]int

	trees map[locus]*interval.IntTree

	hierarchy *simple.DirectedGraph
}

type locus struct {
	chrom  string
	strand seq.Strand
}

// Open opens the feature index at path and loads it into memory.
func Open(path string) (*DB, error) {
	kvMu.Lock()
	defer kvMu.Unlock()
	store, err := kv.Open(path, &kv.Options{Compare: ByPosition})
	if err != nil {
		return nil, err
	}
	defer store.Close()

	meta, err := store.Get(nil, metaDialect)
	if err != nil {
		return nil, err
	}
	if len(meta) != 1 {
		return nil, fmt.Errorf("featuredb: %s is not a feature index", path)
	}
	db := &DB{
		dialect:   model.Dialect(meta[0]),
		byID:      make(map[string]int),
		trees:     make(map[locus]*interval.IntTree),
		hierarchy: simple.NewDirectedGraph(),
	}

	it, err := store.SeekFirst()
	if err != nil {
		if err == io.EOF {
			return db, nil
		}
		return nil, err
	}
	for {
		k, v, err := it.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if k[0] != featureKind {
			continue
		}
		var r Record
		err = json.Unmarshal(v, &r)
		if err != nil {
			return nil, fmt.Errorf("featuredb: invalid record for %s: %w", UnmarshalFeatureKey(k).ID, err)
		}
		db.add(r.Feature(db.dialect))
	}
	err = db.index()
	if err != nil {
		return nil, err
	}
	return db, nil
}

func (db *DB) add(f *model.Feature) {
	db.byID[f.ID] = len(db.features)
	db.features = append(db.features, f)
}

// index builds the interval trees and the hierarchy graph.
func (db *DB) index() error {
	for i, f := range db.features {
		l := locus{chrom: f.Chrom, strand: f.Strand}
		t, ok := db.trees[l]
		if !ok {
			t = &interval.IntTree{}
			db.trees[l] = t
		}
		err := t.Insert(featureInterval{uid: uintptr(i), Feature: f}, true)
		if err != nil {
			return fmt.Errorf("featuredb: %s %v: %w", f.ID, f.Range, err)
		}
		db.hierarchy.AddNode(simple.Node(i))
	}
	for _, t := range db.trees {
		t.AdjustRanges()
	}
	for i, f := range db.features {
		for _, p := range f.Parents() {
			j, ok := db.byID[p]
			if !ok || j == i {
				continue
			}
			db.hierarchy.SetEdge(simple.Edge{F: simple.Node(j), T: simple.Node(i)})
		}
	}
	return nil
}

// Dialect returns the attribute dialect of the indexed annotation.
func (db *DB) Dialect() model.Dialect { return db.dialect }

// Len returns the number of features in the index.
func (db *DB) Len() int { return len(db.features) }

// Feature returns the feature with the given id.
func (db *DB) Feature(id string) (*model.Feature, bool) {
	i, ok := db.byID[id]
	if !ok {
		return nil, false
	}
	return db.features[i], true
}

// Features returns all features with one of the given types in index
// order. If no type is given, all features are returned.
func (db *DB) Features(types ...string) []*model.Feature {
	var feats []*model.Feature
	for _, f := range db.features {
		if len(types) == 0 || model.IsType(f.Type, types) {
			feats = append(feats, f)
		}
	}
	return feats
}

// Chromosomes returns the sorted names of the chromosomes with features.
func (db *DB) Chromosomes() []string {
	seen := make(map[string]bool)
	var chroms []string
	for l := range db.trees {
		if !seen[l.chrom] {
			seen[l.chrom] = true
			chroms = append(chroms, l.chrom)
		}
	}
	sort.Strings(chroms)
	return chroms
}

// Region returns the features on chrom overlapping r with one of the given
// types, ordered by position. If strand is seq.None features on either
// strand are returned. If no type is given, all types are returned.
func (db *DB) Region(chrom string, r model.Range, strand seq.Strand, types ...string) []*model.Feature {
	strands := []seq.Strand{strand}
	if strand == seq.None {
		strands = []seq.Strand{seq.Plus, seq.Minus, seq.None}
	}
	q := query{start: r.Start, end: r.End}
	var idx []int
	for _, s := range strands {
		t, ok := db.trees[locus{chrom: chrom, strand: s}]
		if !ok {
			continue
		}
		for _, h := range t.Get(q) {
			fi := h.(featureInterval)
			if len(types) == 0 || model.IsType(fi.Type, types) {
				idx = append(idx, int(fi.uid))
			}
		}
	}
	sort.Ints(idx)
	feats := make([]*model.Feature, len(idx))
	for i, j := range idx {
		feats[i] = db.features[j]
	}
	return feats
}

// Order specifies the sort key for ordered child queries.
type Order int

const (
	// ByStart orders features by ascending start position.
	ByStart Order = iota
	// ByEnd orders features by ascending end position.
	ByEnd
)

// Children returns all the descendants of the feature with the given id
// that have one of the given types, in index order. If no type is given,
// all descendants are returned.
func (db *DB) Children(id string, types ...string) []*model.Feature {
	i, ok := db.byID[id]
	if !ok {
		return nil
	}
	var idx []int
	seen := make(map[int64]bool)
	var walk func(n int64)
	walk = func(n int64) {
		to := db.hierarchy.From(n)
		for to.Next() {
			c := to.Node().ID()
			if seen[c] {
				continue
			}
			seen[c] = true
			if f := db.features[c]; len(types) == 0 || model.IsType(f.Type, types) {
				idx = append(idx, int(c))
			}
			walk(c)
		}
	}
	walk(int64(i))
	sort.Ints(idx)
	feats := make([]*model.Feature, len(idx))
	for i, j := range idx {
		feats[i] = db.features[j]
	}
	return feats
}

// ChildrenOrdered returns the descendants of the feature with the given
// id, as for Children, sorted by the given order and optionally reversed.
// Ties are broken by index order.
func (db *DB) ChildrenOrdered(id string, by Order, reverse bool, types ...string) []*model.Feature {
	feats := db.Children(id, types...)
	key := func(f *model.Feature) int { return f.Start }
	if by == ByEnd {
		key = func(f *model.Feature) int { return f.End }
	}
	sort.SliceStable(feats, func(i, j int) bool {
		if reverse {
			return key(feats[i]) > key(feats[j])
		}
		return key(feats[i]) < key(feats[j])
	})
	return feats
}

// Hierarchy returns the parent to child graph of the index. Node IDs are
// index order positions of features.
func (db *DB) Hierarchy() graph.Directed { return db.hierarchy }

// FeatureAt returns the feature at position i in index order.
func (db *DB) FeatureAt(i int64) *model.Feature { return db.features[i] }

// featureInterval is a closed feature range held as a half-open interval.
type featureInterval struct {
	uid uintptr
	*model.Feature
}

func (i featureInterval) Overlap(b interval.IntRange) bool {
	return b.Start <= i.End && i.Start < b.End
}
func (i featureInterval) ID() uintptr { return i.uid }
func (i featureInterval) Range() interval.IntRange {
	return interval.IntRange{Start: i.Start, End: i.End + 1}
}

// query is a closed range query against a tree of featureIntervals.
type query struct {
	start, end int
}

// Overlap returns whether the half-open range b shares a position with q.
func (q query) Overlap(b interval.IntRange) bool {
	return b.Start <= q.end && q.start < b.End
}
func (q query) ID() uintptr { return 0 }
func (q query) Range() interval.IntRange {
	return interval.IntRange{Start: q.start, End: q.end + 1}
}
