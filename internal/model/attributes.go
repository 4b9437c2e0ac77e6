// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package model

// Dialect is an annotation attribute convention.
type Dialect int

const (
	// GFF3 links features with ID and Parent attributes.
	GFF3 Dialect = iota
	// GTF links features with gene_id and transcript_id attributes.
	GTF
)

func (d Dialect) String() string {
	switch d {
	case GFF3:
		return "gff3"
	case GTF:
		return "gtf"
	}
	return "unknown"
}

// Attribute is a named, ordered sequence of values.
type Attribute struct {
	Key    string
	Values []string
}

// Linkage holds the attributes that place a feature in the gene hierarchy.
// It is either an IDLinkage or a GeneTranscriptLinkage.
type Linkage interface {
	Dialect() Dialect
	clone() Linkage
}

// IDLinkage is the GFF3 ID/Parent linkage.
type IDLinkage struct {
	ID      string
	Parents []string
}

func (IDLinkage) Dialect() Dialect { return GFF3 }
func (l IDLinkage) clone() Linkage {
	l.Parents = append([]string(nil), l.Parents...)
	return l
}

// GeneTranscriptLinkage is the GTF gene_id/transcript_id linkage. Gene
// features have an empty TranscriptID.
type GeneTranscriptLinkage struct {
	GeneID       string
	TranscriptID string
}

func (GeneTranscriptLinkage) Dialect() Dialect { return GTF }
func (l GeneTranscriptLinkage) clone() Linkage { return l }

// Attributes is the attribute column of a feature: the dialect-specific
// linkage and all remaining attributes in their original order.
type Attributes struct {
	Linkage Linkage
	Extra   []Attribute
}

// Dialect returns the dialect of the linkage held by a. Attributes with
// no linkage are treated as GFF3.
func (a Attributes) Dialect() Dialect {
	if a.Linkage == nil {
		return GFF3
	}
	return a.Linkage.Dialect()
}

// Get returns the values of the extra attribute with the given key.
func (a Attributes) Get(key string) []string {
	for _, e := range a.Extra {
		if e.Key == key {
			return e.Values
		}
	}
	return nil
}

// Set replaces or appends the extra attribute with the given key.
func (a *Attributes) Set(key string, values ...string) {
	for i, e := range a.Extra {
		if e.Key == key {
			a.Extra[i].Values = values
			return
		}
	}
	a.Extra = append(a.Extra, Attribute{Key: key, Values: values})
}

// Clone returns a deep copy of a.
func (a Attributes) Clone() Attributes {
	c := Attributes{Extra: make([]Attribute, len(a.Extra))}
	if a.Linkage != nil {
		c.Linkage = a.Linkage.clone()
	}
	for i, e := range a.Extra {
		c.Extra[i] = Attribute{Key: e.Key, Values: append([]string(nil), e.Values...)}
	}
	return c
}
