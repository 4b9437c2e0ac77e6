// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sidetable

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/biogo/biogo/seq"
	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/utr/internal/model"
)

func TestTruncationPoints(t *testing.T) {
	const counts = `{"chr1": {"17000": 12, "15000": 10, "16000": 3, "20000": 40}, "chr2": {"5": 100}}`
	p, err := ReadTruncationPoints(strings.NewReader(counts), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Len() != 4 {
		t.Errorf("unexpected number of points: got:%d want:4", p.Len())
	}
	tests := []struct {
		chrom string
		r     model.Range
		want  []int
	}{
		{chrom: "chr1", r: model.Range{Start: 14118, End: 17222}, want: []int{15000, 17000}},
		{chrom: "chr1", r: model.Range{Start: 15000, End: 15000}, want: []int{15000}},
		{chrom: "chr1", r: model.Range{Start: 15001, End: 16999}, want: nil},
		{chrom: "chr1", r: model.Range{Start: 17222, End: 14118}, want: nil},
		{chrom: "chr3", r: model.Range{Start: 1, End: 100}, want: nil},
	}
	for _, test := range tests {
		got := p.Intersect(test.chrom, test.r)
		if !cmp.Equal(got, test.want) {
			t.Errorf("unexpected points for %s:%v:\n%s", test.chrom, test.r, cmp.Diff(test.want, got))
		}
	}

	var empty *TruncationPoints
	if got := empty.Intersect("chr1", model.Range{Start: 1, End: 100}); got != nil {
		t.Errorf("unexpected points from nil table: %v", got)
	}
}

func TestTruncationPointsErrors(t *testing.T) {
	for _, text := range []string{
		`{"chr1": {"x": 12}}`,
		`{"chr1": [1, 2]}`,
		`not json`,
	} {
		_, err := ReadTruncationPoints(strings.NewReader(text), 1)
		if err == nil {
			t.Errorf("expected error for %q", text)
		}
	}
}

func TestCoverageGaps(t *testing.T) {
	const bed = "chr1\t15499\t15600\nchr1\t18000\t18100\nchr2\t0\t10\n"
	g, err := ReadCoverageGaps(strings.NewReader(bed))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Len() != 3 {
		t.Errorf("unexpected number of gaps: got:%d want:3", g.Len())
	}
	tests := []struct {
		chrom string
		r     model.Range
		want  []model.Range
	}{
		{chrom: "chr1", r: model.Range{Start: 14118, End: 17222}, want: []model.Range{{Start: 15500, End: 15600}}},
		{chrom: "chr1", r: model.Range{Start: 15600, End: 18000}, want: []model.Range{{Start: 15500, End: 15600}}},
		{chrom: "chr1", r: model.Range{Start: 15600, End: 18001}, want: []model.Range{{Start: 15500, End: 15600}, {Start: 18001, End: 18100}}},
		{chrom: "chr1", r: model.Range{Start: 18100, End: 18100}, want: []model.Range{{Start: 18001, End: 18100}}},
		{chrom: "chr1", r: model.Range{Start: 18101, End: 18200}, want: nil},
		{chrom: "chr1", r: model.Range{Start: 15601, End: 17999}, want: nil},
		{chrom: "chr1", r: model.Range{Start: 15499, End: 15499}, want: nil},
		{chrom: "chr2", r: model.Range{Start: 1, End: 1}, want: []model.Range{{Start: 1, End: 10}}},
	}
	for _, test := range tests {
		got := g.Intersecting(test.chrom, test.r)
		if !cmp.Equal(got, test.want) {
			t.Errorf("unexpected gaps for %s:%v:\n%s", test.chrom, test.r, cmp.Diff(test.want, got))
		}
	}
}

func TestCoverageGapsErrors(t *testing.T) {
	for _, text := range []string{
		"chr1\t10\n",
		"chr1\tx\t20\n",
		"chr1\t10\t10\n",
	} {
		_, err := ReadCoverageGaps(strings.NewReader(text))
		if err == nil {
			t.Errorf("expected error for %q", text)
		}
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "reverse_unmapped.json"), []byte(`{"chr1": {"100": 20}}`), 0o664)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(filepath.Join(dir, "reverse_coverage_gaps.bed"), []byte("chr1\t10\t20\n"), 0o664)
	if err != nil {
		t.Fatal(err)
	}

	tab, err := Load(dir, seq.Minus, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tab.Points.Len() != 1 || tab.Gaps.Len() != 1 {
		t.Errorf("unexpected table sizes: points:%d gaps:%d", tab.Points.Len(), tab.Gaps.Len())
	}

	tab, err = Load(dir, seq.Plus, 10)
	if err != nil {
		t.Fatalf("unexpected error for missing tables: %v", err)
	}
	if tab.Points.Len() != 0 || tab.Gaps.Len() != 0 {
		t.Errorf("expected empty tables for missing files")
	}

	err = os.WriteFile(filepath.Join(dir, "forward_unmapped.json"), []byte(`{"chr1": {"x": 20}}`), 0o664)
	if err != nil {
		t.Fatal(err)
	}
	_, err = Load(dir, seq.Plus, 10)
	if err == nil {
		t.Error("expected error for malformed table")
	}
}
