// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"testing"

	"github.com/biogo/biogo/seq"
)

func TestFromHalfOpen(t *testing.T) {
	tests := []struct {
		start, end int
		want       Range
		wantLen    int
	}{
		{start: 0, end: 1, want: Range{Start: 1, End: 1}, wantLen: 1},
		{start: 13999, end: 17300, want: Range{Start: 14000, End: 17300}, wantLen: 3301},
		{start: 10, end: 10, want: Range{Start: 11, End: 10}, wantLen: 0},
	}
	for _, test := range tests {
		got := FromHalfOpen(test.start, test.end)
		if got != test.want {
			t.Errorf("unexpected range for [%d,%d): got:%v want:%v", test.start, test.end, got, test.want)
		}
		if got.Len() != test.wantLen {
			t.Errorf("unexpected length for %v: got:%d want:%d", got, got.Len(), test.wantLen)
		}
		s, e := got.HalfOpen()
		if s != test.start || e != test.end {
			t.Errorf("round trip failed for [%d,%d): got:[%d,%d)", test.start, test.end, s, e)
		}
	}
}

func TestRangeSetOperations(t *testing.T) {
	tests := []struct {
		a, b       Range
		subset     bool
		intersects bool
	}{
		{a: Range{5, 10}, b: Range{1, 20}, subset: true, intersects: true},
		{a: Range{1, 20}, b: Range{5, 10}, subset: false, intersects: true},
		{a: Range{5, 10}, b: Range{5, 10}, subset: true, intersects: true},
		{a: Range{5, 10}, b: Range{10, 12}, subset: false, intersects: true},
		{a: Range{5, 10}, b: Range{11, 12}, subset: false, intersects: false},
		{a: Range{11, 10}, b: Range{1, 2}, subset: true, intersects: false},
	}
	for _, test := range tests {
		if got := test.a.IsSubset(test.b); got != test.subset {
			t.Errorf("unexpected subset result for %v ⊆ %v: got:%t", test.a, test.b, got)
		}
		if got := test.a.Intersects(test.b); got != test.intersects {
			t.Errorf("unexpected intersection result for %v ∩ %v: got:%t", test.a, test.b, got)
		}
		if got := test.b.Intersects(test.a); got != test.intersects {
			t.Errorf("intersection not symmetric for %v ∩ %v", test.b, test.a)
		}
	}
}

func TestThreePrimeEdge(t *testing.T) {
	for _, test := range []struct {
		strand seq.Strand
		want   int
	}{
		{strand: seq.Plus, want: 14117},
		{strand: seq.None, want: 14117},
		{strand: seq.Minus, want: 10000},
	} {
		f := Feature{Range: Range{Start: 10000, End: 14117}, Strand: test.strand}
		if got := f.ThreePrimeEdge(); got != test.want {
			t.Errorf("unexpected 3' edge for strand %v: got:%d want:%d", test.strand, got, test.want)
		}
	}
}

func TestUTRZeroLength(t *testing.T) {
	for _, test := range []struct {
		utr  UTR
		zero bool
		ok   bool
	}{
		{utr: UTR{Range: Range{100, 100}}, zero: false, ok: true},
		{utr: UTR{Range: Range{100, 99}}, zero: true, ok: false},
		{utr: UTR{Range: Range{100, 98}}, zero: false, ok: false},
	} {
		if got := test.utr.IsZeroLength(); got != test.zero {
			t.Errorf("unexpected zero length state for %v: got:%t", test.utr.Range, got)
		}
		if got := test.utr.Valid(); got != test.ok {
			t.Errorf("unexpected validity for %v: got:%t", test.utr.Range, got)
		}
	}
}

func TestFeatureParents(t *testing.T) {
	tests := []struct {
		f    Feature
		want []string
	}{
		{
			f:    Feature{ID: "g1", Type: Gene, Attributes: Attributes{Linkage: IDLinkage{ID: "g1"}}},
			want: nil,
		},
		{
			f:    Feature{ID: "e1", Type: Exon, Attributes: Attributes{Linkage: IDLinkage{Parents: []string{"t1", "t2"}}}},
			want: []string{"t1", "t2"},
		},
		{
			f:    Feature{ID: "t1", Type: GTFTranscript, Attributes: Attributes{Linkage: GeneTranscriptLinkage{GeneID: "g1", TranscriptID: "t1"}}},
			want: []string{"g1"},
		},
		{
			f:    Feature{ID: "exon_1", Type: Exon, Attributes: Attributes{Linkage: GeneTranscriptLinkage{GeneID: "g1", TranscriptID: "t1"}}},
			want: []string{"t1"},
		},
		{
			f:    Feature{ID: "g1", Type: Gene, Attributes: Attributes{Linkage: GeneTranscriptLinkage{GeneID: "g1"}}},
			want: nil,
		},
	}
	for _, test := range tests {
		got := test.f.Parents()
		if len(got) != len(test.want) {
			t.Errorf("unexpected parents for %s: got:%q want:%q", test.f.ID, got, test.want)
			continue
		}
		for i := range got {
			if got[i] != test.want[i] {
				t.Errorf("unexpected parents for %s: got:%q want:%q", test.f.ID, got, test.want)
			}
		}
	}
}

func TestFeatureCloneIsDeep(t *testing.T) {
	f := &Feature{
		ID: "t1", Type: GFFTranscript, Range: Range{1, 10}, Strand: seq.Plus,
		Attributes: Attributes{
			Linkage: IDLinkage{ID: "t1", Parents: []string{"g1"}},
			Extra:   []Attribute{{Key: "Name", Values: []string{"a"}}},
		},
	}
	c := f.Clone()
	c.End = 20
	c.Attributes.Extra[0].Values[0] = "b"
	c.Attributes.Linkage.(IDLinkage).Parents[0] = "g2"
	if f.End != 10 {
		t.Errorf("clone shares range: got end %d", f.End)
	}
	if f.Attributes.Extra[0].Values[0] != "a" {
		t.Error("clone shares attribute values")
	}
	if f.Attributes.Linkage.(IDLinkage).Parents[0] != "g1" {
		t.Error("clone shares parent linkage")
	}
}
