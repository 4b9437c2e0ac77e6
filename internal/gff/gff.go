// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gff provides reading and writing of GFF3 and GTF annotation
// lines, and translation of features between the two attribute dialects.
package gff

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kortschak/utr/internal/model"
)

// DialectFromPath returns the annotation dialect implied by the
// extension of path.
func DialectFromPath(path string) model.Dialect {
	if strings.EqualFold(filepath.Ext(path), ".gtf") {
		return model.GTF
	}
	return model.GFF3
}

// Reader reads annotation lines of a single dialect.
type Reader struct {
	sc      *bufio.Scanner
	dialect model.Dialect
	line    int
	done    bool
}

// NewReader returns a new Reader reading features of the given dialect
// from r.
func NewReader(r io.Reader, dialect model.Dialect) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 16<<20)
	return &Reader{sc: sc, dialect: dialect}
}

// Read returns the next feature in the stream. Comment and directive
// lines are skipped and reading stops at a ##FASTA directive. At the end
// of the annotation Read returns io.EOF.
func (r *Reader) Read() (*model.Feature, error) {
	// column indices for GFF3 and GTF.
	const (
		seqID = iota
		source
		typ
		start
		end
		score
		strand
		frame
		attributes
		numFields
	)

	if r.done {
		return nil, io.EOF
	}
	for r.sc.Scan() {
		r.line++
		line := r.sc.Bytes()
		if bytes.HasPrefix(line, []byte("##FASTA")) {
			r.done = true
			return nil, io.EOF
		}
		if len(bytes.TrimSpace(line)) == 0 || bytes.HasPrefix(line, []byte("#")) {
			continue
		}
		f := bytes.Split(line, []byte("\t"))
		if len(f) != numFields {
			if len(f) != numFields-1 {
				return nil, fmt.Errorf("line %d: unexpected number of fields: %d", r.line, len(f))
			}
			// Allow a missing attribute column.
			f = append(f, nil)
		}

		feat := model.Feature{
			Chrom:  string(f[seqID]),
			Source: dot(f[source]),
			Type:   string(f[typ]),
			Score:  dot(f[score]),
			Frame:  dot(f[frame]),
		}
		var err error
		feat.Start, err = strconv.Atoi(string(f[start]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid start: %w", r.line, err)
		}
		feat.End, err = strconv.Atoi(string(f[end]))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid end: %w", r.line, err)
		}
		feat.Strand, err = model.ParseStrand(string(f[strand]))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		switch r.dialect {
		case model.GFF3:
			feat.Attributes, err = parseGFF3Attributes(string(bytes.TrimSpace(f[attributes])))
		case model.GTF:
			feat.Attributes, err = parseGTFAttributes(string(bytes.TrimSpace(f[attributes])))
		default:
			panic("gff: invalid dialect")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		feat.ID = naturalID(&feat)
		return &feat, nil
	}
	err := r.sc.Err()
	if err == nil {
		err = io.EOF
	}
	r.done = true
	return nil, err
}

// naturalID returns the identifier carried by the feature's own
// attributes, or the empty string if it has none.
func naturalID(f *model.Feature) string {
	switch l := f.Attributes.Linkage.(type) {
	case model.IDLinkage:
		return l.ID
	case model.GeneTranscriptLinkage:
		switch {
		case model.IsGeneLike(f.Type):
			return l.GeneID
		case model.IsTranscript(f.Type):
			return l.TranscriptID
		}
	}
	return ""
}

func dot(b []byte) string {
	if len(b) == 1 && b[0] == '.' {
		return ""
	}
	return string(b)
}

func parseGFF3Attributes(s string) (model.Attributes, error) {
	var (
		attrs model.Attributes
		link  model.IDLinkage
	)
	if s == "" || s == "." {
		attrs.Linkage = link
		return attrs, nil
	}
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return attrs, fmt.Errorf("malformed GFF3 attribute: %q", kv)
		}
		k = unescape(k)
		vals := unescapeAll(strings.Split(v, ","))
		switch k {
		case "ID":
			link.ID = unescape(v)
		case "Parent":
			link.Parents = append(link.Parents, vals...)
		default:
			attrs.Extra = append(attrs.Extra, model.Attribute{Key: k, Values: vals})
		}
	}
	attrs.Linkage = link
	return attrs, nil
}

var errUnterminated = errors.New("unterminated quoted GTF attribute value")

func parseGTFAttributes(s string) (model.Attributes, error) {
	var (
		attrs model.Attributes
		link  model.GeneTranscriptLinkage
	)
	for len(s) != 0 {
		s = strings.TrimLeft(s, " \t;")
		if s == "" {
			break
		}
		i := strings.IndexAny(s, " \t")
		if i < 0 {
			return attrs, fmt.Errorf("malformed GTF attribute: %q", s)
		}
		key := s[:i]
		s = strings.TrimLeft(s[i:], " \t")

		var val string
		if strings.HasPrefix(s, `"`) {
			j := strings.IndexByte(s[1:], '"')
			if j < 0 {
				return attrs, errUnterminated
			}
			val = s[1 : j+1]
			s = s[j+2:]
		} else {
			j := strings.IndexByte(s, ';')
			if j < 0 {
				j = len(s)
			}
			val = strings.TrimSpace(s[:j])
			s = s[j:]
		}
		s = strings.TrimLeft(s, " \t")
		if s != "" && s[0] != ';' {
			return attrs, fmt.Errorf("malformed GTF attribute: missing separator after %s", key)
		}

		switch key {
		case "gene_id":
			link.GeneID = val
		case "transcript_id":
			link.TranscriptID = val
		default:
			if vals := attrs.Get(key); vals != nil {
				attrs.Set(key, append(vals, val)...)
			} else {
				attrs.Extra = append(attrs.Extra, model.Attribute{Key: key, Values: []string{val}})
			}
		}
	}
	attrs.Linkage = link
	return attrs, nil
}

// Writer writes features as annotation lines of a single dialect.
type Writer struct {
	w       *bufio.Writer
	dialect model.Dialect
	header  bool
}

// NewWriter returns a new Writer writing features to w in the given
// dialect. If header is true, a version directive is written before the
// first GFF3 feature.
func NewWriter(w io.Writer, dialect model.Dialect, header bool) *Writer {
	return &Writer{w: bufio.NewWriter(w), dialect: dialect, header: header && dialect == model.GFF3}
}

// Write writes f as a single line. The attributes of f must already be in
// the dialect of the Writer.
func (w *Writer) Write(f *model.Feature) error {
	if f.Attributes.Linkage != nil && f.Attributes.Dialect() != w.dialect {
		return fmt.Errorf("gff: %s feature %s written to %s stream", f.Attributes.Dialect(), f.ID, w.dialect)
	}
	if w.header {
		_, err := w.w.WriteString("##gff-version 3\n")
		if err != nil {
			return err
		}
		w.header = false
	}
	_, err := fmt.Fprintf(w.w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\t%s\n",
		f.Chrom, orDot(f.Source), f.Type, f.Start, f.End, orDot(f.Score),
		model.FormatStrand(f.Strand), orDot(f.Frame), FormatAttributes(f.Attributes))
	return err
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

func orDot(s string) string {
	if s == "" {
		return "."
	}
	return s
}

// FormatAttributes returns the attribute column for a.
func FormatAttributes(a model.Attributes) string {
	var parts []string
	switch l := a.Linkage.(type) {
	case model.GeneTranscriptLinkage:
		if l.GeneID != "" {
			parts = append(parts, `gene_id "`+l.GeneID+`";`)
		}
		if l.TranscriptID != "" {
			parts = append(parts, `transcript_id "`+l.TranscriptID+`";`)
		}
		for _, e := range a.Extra {
			for _, v := range e.Values {
				parts = append(parts, e.Key+` "`+v+`";`)
			}
		}
		if len(parts) == 0 {
			return "."
		}
		return strings.Join(parts, " ")

	default:
		var link model.IDLinkage
		if l, ok := a.Linkage.(model.IDLinkage); ok {
			link = l
		}
		if link.ID != "" {
			parts = append(parts, "ID="+escape(link.ID))
		}
		if len(link.Parents) != 0 {
			parts = append(parts, "Parent="+escapeJoin(link.Parents))
		}
		for _, e := range a.Extra {
			parts = append(parts, escape(e.Key)+"="+escapeJoin(e.Values))
		}
		if len(parts) == 0 {
			return "."
		}
		return strings.Join(parts, ";")
	}
}
