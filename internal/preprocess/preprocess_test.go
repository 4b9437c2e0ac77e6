// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package preprocess

import (
	"bytes"
	"strings"
	"testing"

	"github.com/biogo/biogo/seq"
	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/google/go-cmp/cmp"

	"github.com/kortschak/utr/internal/model"
	"github.com/kortschak/utr/internal/sidetable"
)

type read struct {
	name  string
	ref   int // -1 for unmapped.
	pos   int
	cigar string
	seq   string
	flags sam.Flags
}

var reads = []read{
	{name: "fwd_tail", ref: 0, pos: 99, cigar: "20M12S", seq: strings.Repeat("C", 20) + strings.Repeat("A", 12)},
	{name: "rev_tail", ref: 0, pos: 199, cigar: "12S20M", seq: strings.Repeat("T", 12) + strings.Repeat("G", 20), flags: sam.Reverse},
	{name: "fwd_plain", ref: 0, pos: 299, cigar: "30M", seq: strings.Repeat("C", 30)},
	{name: "fwd_short", ref: 0, pos: 399, cigar: "25M5S", seq: strings.Repeat("C", 25) + strings.Repeat("A", 5)},
	{name: "fwd_spliced", ref: 0, pos: 499, cigar: "10M100N10M", seq: strings.Repeat("C", 20)},
	{name: "unmapped", ref: -1, pos: -1, seq: strings.Repeat("A", 20), flags: sam.Unmapped},
}

func bamData(t *testing.T) []byte {
	t.Helper()
	chr1, err := sam.NewReference("chr1", "", "", 1000, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	chr2, err := sam.NewReference("chr2", "", "", 50, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	h, err := sam.NewHeader(nil, []*sam.Reference{chr1, chr2})
	if err != nil {
		t.Fatal(err)
	}
	refs := h.Refs()

	var buf bytes.Buffer
	w, err := bam.NewWriter(&buf, h, 1)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range reads {
		var ref *sam.Reference
		if r.ref >= 0 {
			ref = refs[r.ref]
		}
		var co []sam.CigarOp
		if r.cigar != "" {
			co, err = sam.ParseCigar([]byte(r.cigar))
			if err != nil {
				t.Fatal(err)
			}
		}
		qual := bytes.Repeat([]byte{30}, len(r.seq))
		rec, err := sam.NewRecord(r.name, ref, nil, r.pos, -1, 0, 60, co, []byte(r.seq), qual, nil)
		if err != nil {
			t.Fatalf("unexpected error making record %s: %v", r.name, err)
		}
		rec.Flags = r.flags
		err = w.Write(rec)
		if err != nil {
			t.Fatal(err)
		}
	}
	err = w.Close()
	if err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func names(t *testing.T, data []byte) []string {
	t.Helper()
	br, err := bam.NewReader(bytes.NewReader(data), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer br.Close()
	var n []string
	for {
		r, err := br.Read()
		if err != nil {
			break
		}
		n = append(n, r.Name)
	}
	return n
}

func TestSplitStrands(t *testing.T) {
	data := bamData(t)
	var fwd, rev bytes.Buffer
	nf, nr, err := SplitStrands(bytes.NewReader(data), &fwd, &rev, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if nf != 4 || nr != 1 {
		t.Errorf("unexpected read counts: forward:%d reverse:%d", nf, nr)
	}
	if got, want := names(t, fwd.Bytes()), []string{"fwd_tail", "fwd_plain", "fwd_short", "fwd_spliced"}; !cmp.Equal(got, want) {
		t.Errorf("unexpected forward reads:\n%s", cmp.Diff(want, got))
	}
	if got, want := names(t, rev.Bytes()), []string{"rev_tail"}; !cmp.Equal(got, want) {
		t.Errorf("unexpected reverse reads:\n%s", cmp.Diff(want, got))
	}
}

func TestPileupSoftClips(t *testing.T) {
	p, err := PileupSoftClips(bytes.NewReader(bamData(t)), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Pileups{"chr1": {119: 1, 200: 1}}
	if !cmp.Equal(p, want) {
		t.Errorf("unexpected pileups:\n%s", cmp.Diff(want, p))
	}

	p.Add("chr1", 119)
	p.Add("chr2", 5)
	var buf bytes.Buffer
	err = p.Filter(2).WriteJSON(&buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, want := buf.String(), "{\"chr1\":{\"119\":2}}\n"; got != want {
		t.Errorf("unexpected JSON: got:%q want:%q", got, want)
	}

	points, err := sidetable.ReadTruncationPoints(&buf, 2)
	if err != nil {
		t.Fatalf("unexpected error reading pileups: %v", err)
	}
	if got := points.Intersect("chr1", model.Range{Start: 1, End: 1000}); !cmp.Equal(got, []int{119}) {
		t.Errorf("unexpected truncation points: %v", got)
	}
}

func TestZeroCoverage(t *testing.T) {
	var buf bytes.Buffer
	err := ZeroCoverage(bytes.NewReader(bamData(t)), &buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `chr1	0	99
chr1	119	199
chr1	219	299
chr1	329	399
chr1	424	499
chr1	509	609
chr1	619	1000
chr2	0	50
`
	if got := buf.String(); got != want {
		t.Errorf("unexpected gaps:\n%s", cmp.Diff(want, got))
	}

	gaps, err := sidetable.ReadCoverageGaps(&buf)
	if err != nil {
		t.Fatalf("unexpected error reading gaps: %v", err)
	}
	if got := gaps.Intersecting("chr1", model.Range{Start: 120, End: 120}); len(got) != 1 || got[0] != (model.Range{Start: 120, End: 199}) {
		t.Errorf("unexpected gap containing chr1:120: %v", got)
	}
}

func TestPolyTail(t *testing.T) {
	for _, test := range []struct {
		cigar string
		seq   string
		flags sam.Flags
		n     int
		pos   int
		ok    bool
	}{
		{cigar: "20M12S", seq: strings.Repeat("C", 20) + strings.Repeat("A", 12), n: 10, pos: 119, ok: true},
		{cigar: "20M12S", seq: strings.Repeat("C", 20) + strings.Repeat("T", 12), n: 10, pos: 119, ok: true},
		{cigar: "20M12S", seq: strings.Repeat("C", 20) + strings.Repeat("AT", 6), n: 10},
		{cigar: "12S20M", seq: strings.Repeat("A", 12) + strings.Repeat("C", 20), n: 10},
		{cigar: "12S20M", seq: strings.Repeat("A", 12) + strings.Repeat("C", 20), flags: sam.Reverse, n: 10, pos: 100, ok: true},
		{cigar: "20M12S", seq: strings.Repeat("C", 20) + strings.Repeat("A", 12), flags: sam.Reverse, n: 10},
		{cigar: "20M12S", seq: strings.Repeat("C", 20) + strings.Repeat("A", 12), n: 13},
	} {
		co, err := sam.ParseCigar([]byte(test.cigar))
		if err != nil {
			t.Fatal(err)
		}
		r := &sam.Record{Pos: 99, Cigar: co, Seq: sam.NewSeq([]byte(test.seq)), Flags: test.flags}
		pos, ok := PolyTail(r, test.n)
		if pos != test.pos || ok != test.ok {
			t.Errorf("unexpected result for %s %s flags=%v n=%d: got:(%d,%t) want:(%d,%t)",
				test.cigar, test.seq, test.flags, test.n, pos, ok, test.pos, test.ok)
		}
	}
}

func TestBlocks(t *testing.T) {
	co, err := sam.ParseCigar([]byte("3S10M2D5M100N10M2I5M"))
	if err != nil {
		t.Fatal(err)
	}
	got := Blocks(&sam.Record{Pos: 10, Cigar: co})
	want := [][2]int{{10, 27}, {127, 142}}
	if !cmp.Equal(got, want) {
		t.Errorf("unexpected blocks:\n%s", cmp.Diff(want, got))
	}
}

func TestStrand(t *testing.T) {
	if Strand(&sam.Record{Flags: sam.Reverse | sam.Paired}) != seq.Minus {
		t.Error("expected reverse read on minus strand")
	}
	if Strand(&sam.Record{}) != seq.Plus {
		t.Error("expected forward read on plus strand")
	}
}

func TestSharedChromosomes(t *testing.T) {
	got := SharedChromosomes([]string{"chr2", "chr1", "chrM"}, []string{"chr1", "chr2", "chr1", "chrX"})
	if want := []string{"chr1", "chr2"}; !cmp.Equal(got, want) {
		t.Errorf("unexpected shared chromosomes: got:%v want:%v", got, want)
	}
	if got := SharedChromosomes([]string{"1"}, []string{"chr1"}); got != nil {
		t.Errorf("unexpected shared chromosomes: %v", got)
	}
}

func TestReferences(t *testing.T) {
	got, err := References(bytes.NewReader(bamData(t)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []string{"chr1", "chr2"}; !cmp.Equal(got, want) {
		t.Errorf("unexpected references: got:%v want:%v", got, want)
	}
}
