// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The audit-featdb command allows the feature index generated during a
// run of peaks2utr to be queried. The index is named after the input
// annotation with a .db extension and will be found in the cache
// directory of the run. It remains after peaks2utr completes if it is
// given the --keep-cache flag.
//
// Output from audit-featdb is a JSON stream on stdout with one object per
// feature in index order, corresponding to the following Go struct.
//  struct {
//  	Chrom  string
//  	Start  int64
//  	End    int64
//  	ID     string
//  	Record struct {
//  		ID, Chrom, Source, Type string
//  		Start, End              int
//  		Score                   string
//  		Strand                  int8
//  		Frame                   string
//  		AttrID                  string
//  		Parents                 []string
//  		GeneID, TranscriptID    string
//  		Attributes              []struct{ Key string; Values []string }
//  	}
//  }
//
// If the gene flag is given, only the named feature and its descendants
// are written. If the dot flag is given, the parent to child hierarchy of
// the index is written in DOT format instead.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/pflag"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"modernc.org/kv"

	"github.com/kortschak/utr/internal/featuredb"
)

func main() {
	path := pflag.String("db", "", "specify db file to audit (required)")
	gene := pflag.String("gene", "", "specify a feature to restrict output to")
	dotOut := pflag.Bool("dot", false, "write the feature hierarchy in DOT format")
	pflag.Parse()
	if *path == "" {
		pflag.Usage()
		os.Exit(2)
	}

	var err error
	switch {
	case *dotOut:
		err = writeHierarchy(os.Stdout, *path)
	case *gene != "":
		err = writeFeature(os.Stdout, *path, *gene)
	default:
		err = dump(os.Stdout, *path)
	}
	if err != nil {
		log.Fatal(err)
	}
}

type entry struct {
	Chrom  string
	Start  int64
	End    int64
	ID     string
	Record json.RawMessage
}

// dump writes every feature record held by the index at path to w.
func dump(w io.Writer, path string) error {
	db, err := kv.Open(path, &kv.Options{Compare: featuredb.ByPosition})
	if err != nil {
		return err
	}
	defer db.Close()

	enc := json.NewEncoder(w)
	it, err := db.SeekFirst()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return err
	}
	for {
		k, v, err := it.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if len(k) == 0 || k[0] == 0 {
			// Meta record.
			continue
		}
		fk := featuredb.UnmarshalFeatureKey(k)
		err = enc.Encode(entry{
			Chrom:  fk.Chrom,
			Start:  fk.Start,
			End:    fk.End,
			ID:     fk.ID,
			Record: v,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// writeFeature writes the feature with the given id and its descendants.
func writeFeature(w io.Writer, path, id string) error {
	db, err := featuredb.Open(path)
	if err != nil {
		return err
	}
	f, ok := db.Feature(id)
	if !ok {
		return fmt.Errorf("no feature %q in %s", id, path)
	}
	enc := json.NewEncoder(w)
	err = enc.Encode(f)
	if err != nil {
		return err
	}
	for _, c := range db.Children(id) {
		err = enc.Encode(c)
		if err != nil {
			return err
		}
	}
	return nil
}

// writeHierarchy writes the parent to child graph of the index at path
// in DOT format.
func writeHierarchy(w io.Writer, path string) error {
	db, err := featuredb.Open(path)
	if err != nil {
		return err
	}
	h := db.Hierarchy()
	g := simple.NewDirectedGraph()
	nodes := h.Nodes()
	for nodes.Next() {
		id := nodes.Node().ID()
		g.AddNode(node{id: id, name: db.FeatureAt(id).ID})
	}
	nodes.Reset()
	for nodes.Next() {
		uid := nodes.Node().ID()
		to := h.From(uid)
		for to.Next() {
			vid := to.Node().ID()
			g.SetEdge(simple.Edge{F: g.Node(uid), T: g.Node(vid)})
		}
	}
	b, err := dot.Marshal(g, "hierarchy", "", "\t")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

type node struct {
	id   int64
	name string
}

func (n node) ID() int64     { return n.id }
func (n node) DOTID() string { return n.name }
