// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gff

import (
	"github.com/kortschak/utr/internal/model"
)

// Translate returns a copy of f with its attributes rewritten into the
// given dialect. The geneID is the identifier of the gene that f belongs
// to and is used when a GTF gene_id must be synthesized for a feature
// below the transcript level. If f is already in the requested dialect
// the copy is returned unaltered.
//
// Gene features are given an id-only attribute set. Transcripts and
// other children have their parent linkage recomputed from the linkage
// of the source dialect. Other attributes are retained in order.
func Translate(f *model.Feature, to model.Dialect, geneID string) *model.Feature {
	c := f.Clone()
	from := c.Attributes.Dialect()
	if from == to {
		return c
	}

	switch to {
	case model.GTF:
		link, _ := c.Attributes.Linkage.(model.IDLinkage)
		switch {
		case model.IsGeneLike(c.Type):
			id := link.ID
			if id == "" {
				id = c.ID
			}
			c.Attributes = model.Attributes{Linkage: model.GeneTranscriptLinkage{GeneID: id}}
		case model.IsTranscript(c.Type):
			id := link.ID
			if id == "" {
				id = c.ID
			}
			c.Attributes.Linkage = model.GeneTranscriptLinkage{GeneID: first(link.Parents, geneID), TranscriptID: id}
			if c.Type == model.GFFTranscript {
				c.Type = model.GTFTranscript
			}
		default:
			c.Attributes.Linkage = model.GeneTranscriptLinkage{GeneID: geneID, TranscriptID: first(link.Parents, "")}
		}

	case model.GFF3:
		link, _ := c.Attributes.Linkage.(model.GeneTranscriptLinkage)
		switch {
		case model.IsGeneLike(c.Type):
			id := link.GeneID
			if id == "" {
				id = c.ID
			}
			c.Attributes = model.Attributes{Linkage: model.IDLinkage{ID: id}}
		case model.IsTranscript(c.Type):
			id := link.TranscriptID
			if id == "" {
				id = c.ID
			}
			c.Attributes.Linkage = model.IDLinkage{ID: id, Parents: nonEmpty(link.GeneID)}
			if c.Type == model.GTFTranscript {
				c.Type = model.GFFTranscript
			}
		default:
			c.Attributes.Linkage = model.IDLinkage{ID: c.ID, Parents: nonEmpty(link.TranscriptID)}
		}

	default:
		panic("gff: invalid dialect")
	}
	return c
}

func first(s []string, def string) string {
	if len(s) == 0 {
		return def
	}
	return s[0]
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
