// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gff

import "strings"

const hex = "0123456789ABCDEF"

// shouldEscape returns whether c must be percent encoded in a GFF3
// attribute tag or value.
func shouldEscape(c byte) bool {
	switch c {
	case ';', '=', '&', ',', '%', 0x7f:
		return true
	}
	return c < ' '
}

// escape returns s with GFF3 column 9 reserved characters percent
// encoded.
func escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if shouldEscape(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !shouldEscape(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0xf])
	}
	return b.String()
}

func escapeJoin(s []string) string {
	e := make([]string, len(s))
	for i, v := range s {
		e[i] = escape(v)
	}
	return strings.Join(e, ",")
}

// unescape decodes percent encoded bytes in s. Percent signs that do
// not begin a valid escape are retained.
func unescape(s string) string {
	i := strings.IndexByte(s, '%')
	if i < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	b.WriteString(s[:i])
	for ; i < len(s); i++ {
		c := s[i]
		if c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func unescapeAll(s []string) []string {
	for i, v := range s {
		s[i] = unescape(v)
	}
	return s
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}
