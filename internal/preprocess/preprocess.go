// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package preprocess derives the per-strand read evidence used for UTR
// inference from an alignment file: strand-split alignments, soft-clipped
// poly-A/T tail pileups and zero coverage intervals.
package preprocess

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/biogo/biogo/seq"
	"github.com/biogo/hts/bam"
	"github.com/biogo/hts/sam"
	"github.com/biogo/store/step"
)

// Strand returns the transcript strand indicated by the read r.
func Strand(r *sam.Record) seq.Strand {
	if r.Flags&sam.Reverse != 0 {
		return seq.Minus
	}
	return seq.Plus
}

// mapped returns whether r is aligned to a reference.
func mapped(r *sam.Record) bool {
	return r.Flags&sam.Unmapped == 0 && r.Ref != nil && r.Pos >= 0
}

// SplitStrands reads BAM alignments from src and writes mapped forward
// reads to forward and reverse reads to reverse, each as BAM with the
// header of src. It returns the number of reads written to each.
func SplitStrands(src io.Reader, forward, reverse io.Writer, threads int) (nf, nr int, err error) {
	br, err := bam.NewReader(src, threads)
	if err != nil {
		return 0, 0, err
	}
	defer br.Close()

	fw, err := bam.NewWriter(forward, br.Header(), threads)
	if err != nil {
		return 0, 0, err
	}
	rw, err := bam.NewWriter(reverse, br.Header(), threads)
	if err != nil {
		fw.Close()
		return 0, 0, err
	}
	defer func() {
		ferr := fw.Close()
		rerr := rw.Close()
		if err == nil {
			err = ferr
		}
		if err == nil {
			err = rerr
		}
	}()

	for {
		r, err := br.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nf, nr, err
		}
		switch {
		case r.Flags&sam.Reverse != 0:
			err = rw.Write(r)
			nr++
		case mapped(r):
			err = fw.Write(r)
			nf++
		default:
			continue
		}
		if err != nil {
			return nf, nr, err
		}
	}
	return nf, nr, nil
}

// Pileups holds counts of read extremities keyed by chromosome and
// 1-based position.
type Pileups map[string]map[int]int

// Add increments the count at chrom:pos.
func (p Pileups) Add(chrom string, pos int) {
	m, ok := p[chrom]
	if !ok {
		m = make(map[int]int)
		p[chrom] = m
	}
	m[pos]++
}

// Filter returns the counts of p that are at least minCount. Chromosomes
// with no retained counts are omitted.
func (p Pileups) Filter(minCount int) Pileups {
	f := make(Pileups)
	for chrom, pos := range p {
		for k, n := range pos {
			if n >= minCount {
				if f[chrom] == nil {
					f[chrom] = make(map[int]int)
				}
				f[chrom][k] = n
			}
		}
	}
	return f
}

// WriteJSON writes p as a JSON object keyed by chromosome and then by
// position.
func (p Pileups) WriteJSON(w io.Writer) error {
	return json.NewEncoder(w).Encode(p)
}

// PileupSoftClips counts, for each mapped read in the BAM stream src
// whose 3' soft clip contains a poly-A or poly-T run of at least
// minPolyTail bases, the 3' extremity of the aligned part of the read.
func PileupSoftClips(src io.Reader, minPolyTail int) (Pileups, error) {
	br, err := bam.NewReader(src, 0)
	if err != nil {
		return nil, err
	}
	defer br.Close()

	p := make(Pileups)
	for {
		r, err := br.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if !mapped(r) {
			continue
		}
		pos, ok := PolyTail(r, minPolyTail)
		if ok {
			p.Add(r.Ref.Name(), pos)
		}
	}
	return p, nil
}

// PolyTail returns the 1-based 3' extremity of r and whether the soft
// clipped bases at the 3' end of r contain a run of n A or n T bases.
// The 3' end of a reverse read is its leftmost aligned base.
func PolyTail(r *sam.Record, n int) (pos int, ok bool) {
	if len(r.Cigar) == 0 || n <= 0 {
		return 0, false
	}
	var clip int
	reverse := r.Flags&sam.Reverse != 0
	if reverse {
		if co := r.Cigar[0]; co.Type() == sam.CigarSoftClipped {
			clip = co.Len()
		}
	} else {
		if co := r.Cigar[len(r.Cigar)-1]; co.Type() == sam.CigarSoftClipped {
			clip = co.Len()
		}
	}
	if clip < n {
		return 0, false
	}
	s := r.Seq.Expand()
	if clip > len(s) {
		return 0, false
	}
	var clipped []byte
	if reverse {
		clipped = s[:clip]
		pos = r.Pos + 1
	} else {
		clipped = s[len(s)-clip:]
		pos = r.End()
	}
	if bytes.Contains(clipped, bytes.Repeat([]byte{'A'}, n)) || bytes.Contains(clipped, bytes.Repeat([]byte{'T'}, n)) {
		return pos, true
	}
	return 0, false
}

// depth is a step vector element holding read depth.
type depth int

func (d depth) Equal(e step.Equaler) bool { return d == e.(depth) }

// ZeroCoverage writes to dst the intervals of each reference in the BAM
// stream src with no aligned read coverage, as BED3 lines in reference
// order. Skipped reference regions of spliced alignments do not count as
// coverage.
func ZeroCoverage(src io.Reader, dst io.Writer) error {
	br, err := bam.NewReader(src, 0)
	if err != nil {
		return err
	}
	defer br.Close()

	refs := br.Header().Refs()
	vecs := make(map[*sam.Reference]*step.Vector, len(refs))
	for _, ref := range refs {
		if ref.Len() <= 0 {
			continue
		}
		v, err := step.New(0, ref.Len(), depth(0))
		if err != nil {
			return fmt.Errorf("preprocess: %s: %w", ref.Name(), err)
		}
		vecs[ref] = v
	}

	inc := func(e step.Equaler) step.Equaler { return e.(depth) + 1 }
	for {
		r, err := br.Read()
		if err != nil {
			if err == io.EOF {
				break
			}
			return err
		}
		if !mapped(r) {
			continue
		}
		v, ok := vecs[r.Ref]
		if !ok {
			continue
		}
		for _, b := range Blocks(r) {
			end := min(b[1], r.Ref.Len())
			if b[0] >= end {
				continue
			}
			err = v.ApplyRange(b[0], end, inc)
			if err != nil {
				return fmt.Errorf("preprocess: %s: %w", r.Name, err)
			}
		}
	}

	w := bufio.NewWriter(dst)
	for _, ref := range refs {
		v, ok := vecs[ref]
		if !ok {
			continue
		}
		v.Do(func(start, end int, e step.Equaler) {
			if err != nil || e.(depth) != 0 {
				return
			}
			_, err = fmt.Fprintf(w, "%s\t%d\t%d\n", ref.Name(), start, end)
		})
		if err != nil {
			return err
		}
	}
	return w.Flush()
}

// Blocks returns the 0-based half-open reference intervals covered by the
// alignment r. Deletions are covered and skipped regions split blocks.
func Blocks(r *sam.Record) [][2]int {
	var (
		blocks [][2]int
		pos    = r.Pos
		start  = r.Pos
	)
	for _, co := range r.Cigar {
		switch co.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch, sam.CigarDeletion:
			pos += co.Len()
		case sam.CigarSkipped:
			if pos > start {
				blocks = append(blocks, [2]int{start, pos})
			}
			pos += co.Len()
			start = pos
		}
	}
	if pos > start {
		blocks = append(blocks, [2]int{start, pos})
	}
	return blocks
}

// References returns the names of the references in the header of the
// BAM stream src.
func References(src io.Reader) ([]string, error) {
	br, err := bam.NewReader(src, 0)
	if err != nil {
		return nil, err
	}
	defer br.Close()
	var names []string
	for _, r := range br.Header().Refs() {
		names = append(names, r.Name())
	}
	return names, nil
}

// SharedChromosomes returns the sorted chromosome names present in both
// a and b.
func SharedChromosomes(a, b []string) []string {
	in := make(map[string]bool, len(a))
	for _, c := range a {
		in[c] = true
	}
	var shared []string
	seen := make(map[string]bool)
	for _, c := range b {
		if in[c] && !seen[c] {
			shared = append(shared, c)
			seen[c] = true
		}
	}
	sort.Strings(shared)
	return shared
}
