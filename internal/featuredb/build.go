// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package featuredb

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/biogo/biogo/seq"
	"modernc.org/kv"

	"github.com/kortschak/utr/internal/gff"
	"github.com/kortschak/utr/internal/model"
)

// DerivedSource is the source column of genes and transcripts inferred
// from the linkage attributes of GTF features.
const DerivedSource = "derived"

// kvMu serialises access to kv files. A kv database holds a lock file
// while it is open, so concurrent opens of the same index would fail.
var kvMu sync.Mutex

// Record is the persisted form of a feature.
type Record struct {
	ID     string
	Chrom  string
	Source string `json:",omitempty"`
	Type   string
	Start  int
	End    int
	Score  string `json:",omitempty"`
	Strand int8
	Frame  string `json:",omitempty"`

	// GFF3 linkage.
	AttrID  string   `json:",omitempty"`
	Parents []string `json:",omitempty"`

	// GTF linkage.
	GeneID       string `json:",omitempty"`
	TranscriptID string `json:",omitempty"`

	Attributes []model.Attribute `json:",omitempty"`
}

func recordOf(f *model.Feature) Record {
	r := Record{
		ID:         f.ID,
		Chrom:      f.Chrom,
		Source:     f.Source,
		Type:       f.Type,
		Start:      f.Start,
		End:        f.End,
		Score:      f.Score,
		Strand:     int8(f.Strand),
		Frame:      f.Frame,
		Attributes: f.Attributes.Extra,
	}
	switch l := f.Attributes.Linkage.(type) {
	case model.IDLinkage:
		r.AttrID = l.ID
		r.Parents = l.Parents
	case model.GeneTranscriptLinkage:
		r.GeneID = l.GeneID
		r.TranscriptID = l.TranscriptID
	}
	return r
}

// Feature returns the feature held by r in dialect d.
func (r Record) Feature(d model.Dialect) *model.Feature {
	f := &model.Feature{
		ID:     r.ID,
		Chrom:  r.Chrom,
		Source: r.Source,
		Type:   r.Type,
		Range:  model.Range{Start: r.Start, End: r.End},
		Score:  r.Score,
		Strand: seq.Strand(r.Strand),
		Frame:  r.Frame,
		Attributes: model.Attributes{
			Extra: r.Attributes,
		},
	}
	switch d {
	case model.GFF3:
		f.Attributes.Linkage = model.IDLinkage{ID: r.AttrID, Parents: r.Parents}
	case model.GTF:
		f.Attributes.Linkage = model.GeneTranscriptLinkage{GeneID: r.GeneID, TranscriptID: r.TranscriptID}
	}
	return f
}

// Create reads an annotation of the given dialect from src and writes a
// feature index to a new kv database at path. It returns the number of
// features stored.
//
// Features without an identifier are given one of the form <type>_<n>
// and duplicated identifiers are made unique with a _<n> suffix. For GTF
// input, genes and transcripts that are only named by the gene_id and
// transcript_id attributes of other features are inferred with an extent
// spanning those features.
func Create(path string, src io.Reader, dialect model.Dialect) (int, error) {
	r := gff.NewReader(src, dialect)
	var feats []*model.Feature
	for {
		f, err := r.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return 0, fmt.Errorf("reading annotation: %w", err)
		}
		feats = append(feats, f)
	}
	if len(feats) == 0 {
		return 0, errors.New("no features in annotation")
	}

	assignIDs(feats)
	if dialect == model.GTF {
		feats = append(feats, inferGTFParents(feats)...)
	}

	kvMu.Lock()
	defer kvMu.Unlock()
	db, err := kv.Create(path, &kv.Options{Compare: ByPosition})
	if err != nil {
		return 0, err
	}
	err = db.BeginTransaction()
	if err != nil {
		db.Close()
		return 0, err
	}
	err = db.Set(metaDialect, []byte{byte(dialect)})
	if err != nil {
		db.Rollback()
		db.Close()
		return 0, err
	}
	for _, f := range feats {
		v, err := json.Marshal(recordOf(f))
		if err != nil {
			db.Rollback()
			db.Close()
			return 0, err
		}
		err = db.Set(MarshalFeatureKey(f), v)
		if err != nil {
			db.Rollback()
			db.Close()
			return 0, err
		}
	}
	err = db.Commit()
	if err != nil {
		db.Close()
		return 0, err
	}
	return len(feats), db.Close()
}

// assignIDs gives every feature a unique ID.
func assignIDs(feats []*model.Feature) {
	seen := make(map[string]bool)
	typeCount := make(map[string]int)
	for _, f := range feats {
		if f.ID == "" {
			typeCount[f.Type]++
			f.ID = fmt.Sprintf("%s_%d", f.Type, typeCount[f.Type])
		}
		if seen[f.ID] {
			base := f.ID
			for n := 1; ; n++ {
				id := fmt.Sprintf("%s_%d", base, n)
				if !seen[id] {
					f.ID = id
					break
				}
			}
		}
		seen[f.ID] = true
	}
}

// inferGTFParents returns the gene and transcript features that are
// referred to by feats but not present.
func inferGTFParents(feats []*model.Feature) []*model.Feature {
	genes := make(map[string]bool)
	transcripts := make(map[string]bool)
	for _, f := range feats {
		switch {
		case model.IsGeneLike(f.Type):
			genes[f.ID] = true
		case model.IsTranscript(f.Type):
			transcripts[f.ID] = true
		}
	}

	type typeID struct{ typ, id string }
	inferred := make(map[typeID]*model.Feature)
	extend := func(id, typ string, link model.GeneTranscriptLinkage, f *model.Feature) {
		p, ok := inferred[typeID{typ, id}]
		if !ok {
			inferred[typeID{typ, id}] = &model.Feature{
				ID:         id,
				Chrom:      f.Chrom,
				Source:     DerivedSource,
				Type:       typ,
				Range:      f.Range,
				Strand:     f.Strand,
				Attributes: model.Attributes{Linkage: link},
			}
			return
		}
		p.Start = min(p.Start, f.Start)
		p.End = max(p.End, f.End)
	}
	for _, f := range feats {
		l, ok := f.Attributes.Linkage.(model.GeneTranscriptLinkage)
		if !ok || model.IsGeneLike(f.Type) {
			continue
		}
		if l.TranscriptID != "" && !transcripts[l.TranscriptID] && !model.IsTranscript(f.Type) {
			extend(l.TranscriptID, model.GTFTranscript, l, f)
		}
		if l.GeneID != "" && !genes[l.GeneID] {
			extend(l.GeneID, model.Gene, model.GeneTranscriptLinkage{GeneID: l.GeneID}, f)
		}
	}

	parents := make([]*model.Feature, 0, len(inferred))
	for _, p := range inferred {
		parents = append(parents, p)
	}
	sort.Slice(parents, func(i, j int) bool {
		if parents[i].Type != parents[j].Type {
			return parents[i].Type < parents[j].Type
		}
		return parents[i].ID < parents[j].ID
	})
	return parents
}
