// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

import (
	"github.com/biogo/biogo/seq"
)

// Feature types recognised by the annotation engine.
const (
	Gene              = "gene"
	ProteinCodingGene = "protein_coding_gene"
	NonCodingGene     = "ncRNA_gene"
	Pseudogene        = "pseudogene"

	GFFTranscript         = "mRNA"
	GTFTranscript         = "transcript"
	NonCodingTranscript   = "ncRNA"
	PseudogenicTranscript = "pseudogenic_transcript"

	ThreePrimeUTR = "three_prime_UTR"
	FivePrimeUTR  = "five_prime_UTR"
	Exon          = "exon"
)

var (
	// CodingGeneTypes are the gene types that GTF output represents
	// implicitly through gene_id attributes.
	CodingGeneTypes = []string{Gene, ProteinCodingGene}

	// GeneTypes are the gene-like types searched for near a peak.
	GeneTypes = []string{Gene, ProteinCodingGene, NonCodingGene}

	// PseudogeneTypes are searched for in addition to GeneTypes when
	// pseudogenes are included.
	PseudogeneTypes = []string{Pseudogene}

	TranscriptTypes = []string{
		GFFTranscript, GTFTranscript, NonCodingTranscript, PseudogenicTranscript,
		"lnc_RNA", "snRNA", "snoRNA", "rRNA", "tRNA", "miRNA", "primary_transcript",
	}

	ThreePrimeUTRTypes = []string{ThreePrimeUTR, "three_prime_utr", "3'UTR", "UTR_3"}
	FivePrimeUTRTypes  = []string{FivePrimeUTR, "five_prime_utr", "5'UTR", "UTR_5"}
)

// AllGeneTypes returns every gene-like type, including pseudogenes.
func AllGeneTypes() []string {
	return append(append([]string(nil), GeneTypes...), PseudogeneTypes...)
}

// IsType returns whether typ is one of types.
func IsType(typ string, types []string) bool {
	for _, t := range types {
		if typ == t {
			return true
		}
	}
	return false
}

// IsGeneLike returns whether typ is a gene or pseudogene type.
func IsGeneLike(typ string) bool {
	return IsType(typ, GeneTypes) || IsType(typ, PseudogeneTypes)
}

// IsTranscript returns whether typ is a transcript type.
func IsTranscript(typ string) bool { return IsType(typ, TranscriptTypes) }

// Feature is a single annotation record.
type Feature struct {
	ID     string
	Chrom  string
	Source string
	Type   string
	Range
	Score  string
	Strand seq.Strand
	Frame  string

	Attributes Attributes
}

// Clone returns a deep copy of f.
func (f *Feature) Clone() *Feature {
	c := *f
	c.Attributes = f.Attributes.Clone()
	return &c
}

// Parents returns the identifiers of the features f belongs to.
func (f *Feature) Parents() []string {
	switch l := f.Attributes.Linkage.(type) {
	case IDLinkage:
		return l.Parents
	case GeneTranscriptLinkage:
		switch {
		case IsGeneLike(f.Type):
			return nil
		case IsTranscript(f.Type) || l.TranscriptID == "":
			if l.GeneID == "" || l.GeneID == f.ID {
				return nil
			}
			return []string{l.GeneID}
		default:
			return []string{l.TranscriptID}
		}
	}
	return nil
}

// ThreePrimeEdge returns the position of the 3' end of f.
func (f *Feature) ThreePrimeEdge() int {
	if f.Strand == seq.Minus {
		return f.Start
	}
	return f.End
}

// FeatureSet is the set of features describing one gene in an annotation.
type FeatureSet struct {
	// Gene is the gene feature.
	Gene *Feature

	// Features holds the gene followed by its descendants in index order.
	Features []*Feature

	// UTR is a 3' UTR inferred for the gene. It is nil when the gene
	// was carried through unaltered.
	UTR *Feature
}
