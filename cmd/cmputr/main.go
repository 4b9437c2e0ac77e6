// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The cmputr program compares the 3' UTR annotations in two files. It
// takes two GFF3 or GTF annotation inputs, a new annotation a, for example
// a peaks2utr output, and a reference annotation b, and compares the bases
// covered by 3' UTRs on each strand. The base level analysis is the number
// of bases where both inputs assign the UTR to the same transcript, the
// number of bases that are covered in one, but not the other, and the
// number of bases where the transcripts differ.
//
// Genes found in either input are also classified by their 3' UTRs. A
// gene with UTRs in both inputs is matched, extended or reduced according
// to the 3' edge of its UTRs in a relative to b. Genes with UTRs only in a
// are new, those with UTRs only in b are existing, and genes without UTRs
// are missing. The analysis is emitted on stdout as a JSON object.
//
// If a dot flag is provided, the discordances between the annotations are
// written as a graph in DOT format, with edge weights representing counts
// of mismatched bases.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sort"

	"github.com/biogo/biogo/seq"
	"github.com/biogo/store/step"
	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/encoding"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kortschak/utr/internal/gff"
	"github.com/kortschak/utr/internal/model"
)

func main() {
	aFile := pflag.StringP("a", "a", "", "specify the input file a name (required)")
	bFile := pflag.StringP("b", "b", "", "specify the input file b name (required)")
	out := pflag.String("dot", "", "specify path for DOT file describing disagreements")
	none := pflag.String("none", "none", "specify label for no annotation")

	pflag.Parse()
	if *aFile == "" || *bFile == "" {
		pflag.Usage()
		os.Exit(2)
	}

	c := newComparison()
	err := c.addFile(*aFile, true)
	if err != nil {
		log.Fatal(err)
	}
	err = c.addFile(*bFile, false)
	if err != nil {
		log.Fatal(err)
	}
	bases, mismatches := c.report()

	m, err := json.Marshal(struct {
		Bases record     `json:"bases"`
		Genes geneRecord `json:"genes"`
	}{
		Bases: bases,
		Genes: c.classify(),
	})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%s\n", m)
	if *out != "" {
		b, err := dotOut(*aFile, *bFile, mismatches, *none)
		if err != nil {
			log.Fatal(err)
		}
		err = os.WriteFile(*out, b, 0o664)
		if err != nil {
			log.Fatal(err)
		}
	}
}

// comparison holds per-base transcript assignments of 3' UTRs for the
// two inputs, keyed by chromosome and strand, and the extent of each
// gene's 3' UTRs in each input.
type comparison struct {
	vectors map[string]*step.Vector

	genes map[string]seq.Strand
	utrs  [2]map[string]model.Range
}

func newComparison() *comparison {
	return &comparison{
		vectors: make(map[string]*step.Vector),
		genes:   make(map[string]seq.Strand),
		utrs:    [2]map[string]model.Range{make(map[string]model.Range), make(map[string]model.Range)},
	}
}

func (c *comparison) addFile(path string, isA bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	err = c.add(f, gff.DialectFromPath(path), isA)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *comparison) add(r io.Reader, dialect model.Dialect, isA bool) error {
	var (
		feats []*model.Feature
		byID  = make(map[string]*model.Feature)
	)
	gr := gff.NewReader(r, dialect)
	for {
		f, err := gr.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		feats = append(feats, f)
		if f.ID != "" {
			byID[f.ID] = f
		}
	}

	utrs := c.utrs[1]
	if isA {
		utrs = c.utrs[0]
	}
	for _, f := range feats {
		if model.IsGeneLike(f.Type) {
			c.genes[f.ID] = f.Strand
			continue
		}
		if !model.IsType(f.Type, model.ThreePrimeUTRTypes) {
			continue
		}
		if g := geneOf(f, byID); g != "" {
			c.genes[g] = f.Strand
			ext, ok := utrs[g]
			if !ok {
				ext = f.Range
			}
			ext.Start = min(ext.Start, f.Start)
			ext.End = max(ext.End, f.End)
			utrs[g] = ext
		}

		tx := transcriptOf(f)
		key := f.Chrom + model.FormatStrand(f.Strand)
		v, ok := c.vectors[key]
		if !ok {
			var err error
			v, err = step.New(0, 1, pair{})
			if err != nil {
				return err
			}
			v.Relaxed = true
			c.vectors[key] = v
		}
		start, end := f.HalfOpen()
		err := v.ApplyRange(start, end, func(e step.Equaler) step.Equaler {
			p := e.(pair)
			if isA {
				p.a = tx
			} else {
				p.b = tx
			}
			return p
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// geneOf returns the id of the gene f belongs to, or the empty string if
// it cannot be found.
func geneOf(f *model.Feature, byID map[string]*model.Feature) string {
	if l, ok := f.Attributes.Linkage.(model.GeneTranscriptLinkage); ok {
		return l.GeneID
	}
	seen := make(map[string]bool)
	for cur := f; !seen[cur.ID]; {
		seen[cur.ID] = true
		p := cur.Parents()
		if len(p) == 0 {
			return ""
		}
		parent, ok := byID[p[0]]
		if !ok {
			return ""
		}
		if model.IsGeneLike(parent.Type) {
			return parent.ID
		}
		cur = parent
	}
	return ""
}

func transcriptOf(f *model.Feature) string {
	p := f.Parents()
	if len(p) == 0 {
		return f.ID
	}
	return p[0]
}

type record struct {
	Agree    int `json:"agree"`
	AMissing int `json:"a-missing"`
	BMissing int `json:"b-missing"`
	Mismatch int `json:"mismatch"`
}

func (c *comparison) report() (record, map[names]int) {
	keys := make([]string, 0, len(c.vectors))
	for k := range c.vectors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var rec record
	mismatches := make(map[names]int)
	for _, k := range keys {
		c.vectors[k].Do(func(start, end int, e step.Equaler) {
			p := e.(pair)
			if p.isZero() {
				return
			}
			len := end - start
			switch {
			case p.a == p.b:
				rec.Agree += len
			case p.a == "":
				rec.AMissing += len
				mismatches[p.names] += len
			case p.b == "":
				rec.BMissing += len
				mismatches[p.names] += len
			default:
				rec.Mismatch += len
				mismatches[p.names] += len
			}
		})
	}
	return rec, mismatches
}

type geneRecord struct {
	Genes    int `json:"genes"`
	Missing  int `json:"missing"`
	New      int `json:"new"`
	Existing int `json:"existing"`
	Matched  int `json:"matched"`
	Extended int `json:"extended"`
	Reduced  int `json:"reduced"`
}

// classify classifies every gene seen by the 3' edge of its UTRs in the
// new annotation relative to the reference.
func (c *comparison) classify() geneRecord {
	var rec geneRecord
	for id, strand := range c.genes {
		rec.Genes++
		a, aok := c.utrs[0][id]
		b, bok := c.utrs[1][id]
		switch {
		case aok && bok:
			diff := a.End - b.End
			if strand == seq.Minus {
				diff = b.Start - a.Start
			}
			switch {
			case diff > 0:
				rec.Extended++
			case diff < 0:
				rec.Reduced++
			default:
				rec.Matched++
			}
		case aok:
			rec.New++
		case bok:
			rec.Existing++
		default:
			rec.Missing++
		}
	}
	return rec
}

// pair is a step vector element holding the transcripts assigned to a
// UTR base by each input.
type pair struct {
	names
}

type names struct {
	a, b string
}

func (p pair) isZero() bool {
	return p.names == names{}
}

func (p pair) Equal(e step.Equaler) bool {
	return p.names == e.(pair).names
}

func dotOut(aFile, bFile string, edges map[names]int, none string) ([]byte, error) {
	g := newNameGraph(none)
	for p, w := range edges {
		e := edge{
			f: g.nodeFor(aFile, p.a),
			t: g.nodeFor(bFile, p.b),
			w: float64(w),
		}
		g.SetWeightedEdge(e)
	}
	return dot.Marshal(g, "discord", "", "\t")
}

type nameGraph struct {
	*simple.WeightedUndirectedGraph
	idFor map[string]int64
	none  string
}

func newNameGraph(none string) nameGraph {
	return nameGraph{
		WeightedUndirectedGraph: simple.NewWeightedUndirectedGraph(0, 0),
		idFor:                   make(map[string]int64),
		none:                    none,
	}
}

func (g nameGraph) nodeFor(file, s string) graph.Node {
	if s == "" {
		s = g.none
	}
	s = file + ":" + s
	id, ok := g.idFor[s]
	if ok {
		return g.Node(id)
	}
	id = g.WeightedUndirectedGraph.NewNode().ID()
	g.idFor[s] = id
	n := node{id: id, name: s}
	g.AddNode(n)
	return n
}

type node struct {
	id   int64
	name string
}

func (n node) ID() int64     { return n.id }
func (n node) DOTID() string { return n.name }

type edge struct {
	f, t graph.Node
	w    float64
}

func (e edge) From() graph.Node         { return e.f }
func (e edge) To() graph.Node           { return e.t }
func (e edge) ReversedEdge() graph.Edge { return edge{f: e.t, t: e.f, w: e.w} }
func (e edge) Weight() float64          { return e.w }
func (e edge) Attributes() []encoding.Attribute {
	return []encoding.Attribute{{Key: "weight", Value: fmt.Sprint(e.w)}}
}
