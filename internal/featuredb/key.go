// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package featuredb

import (
	"bytes"
	"encoding/binary"

	"github.com/kortschak/utr/internal/model"
)

// Key kinds. Meta keys sort before all feature keys.
const (
	metaKind    byte = 0
	featureKind byte = 1
)

// metaDialect is the key of the record holding the annotation dialect.
var metaDialect = []byte{metaKind, 'd'}

// FeatureKey is the decoded key of a feature record.
type FeatureKey struct {
	Chrom string
	Start int64
	End   int64
	ID    string
}

var order = binary.BigEndian

// ByPosition is a kv compare function, ordering meta records first and
// then features by chromosome, start position, end position and ID.
func ByPosition(x, y []byte) int {
	if bytes.Equal(x, y) {
		return 0
	}

	// Separate meta data from features.
	switch {
	case x[0] < y[0]:
		return -1
	case x[0] > y[0]:
		return 1
	}
	if x[0] == metaKind {
		return bytes.Compare(x, y)
	}

	kx := UnmarshalFeatureKey(x)
	ky := UnmarshalFeatureKey(y)

	switch {
	case kx.Chrom < ky.Chrom:
		return -1
	case kx.Chrom > ky.Chrom:
		return 1
	}
	switch {
	case kx.Start < ky.Start:
		return -1
	case kx.Start > ky.Start:
		return 1
	}
	switch {
	case kx.End < ky.End:
		return -1
	case kx.End > ky.End:
		return 1
	}

	// Ensure key uniqueness.
	switch {
	case kx.ID < ky.ID:
		return -1
	case kx.ID > ky.ID:
		return 1
	}

	panic("unreachable")
}

// MarshalFeatureKey returns the key for f.
func MarshalFeatureKey(f *model.Feature) []byte {
	var (
		buf bytes.Buffer
		b   [8]byte
	)
	buf.WriteByte(featureKind)
	order.PutUint64(b[:], uint64(len(f.Chrom)))
	buf.Write(b[:])
	buf.WriteString(f.Chrom)
	order.PutUint64(b[:], uint64(f.Start))
	buf.Write(b[:])
	order.PutUint64(b[:], uint64(f.End))
	buf.Write(b[:])
	order.PutUint64(b[:], uint64(len(f.ID)))
	buf.Write(b[:])
	buf.WriteString(f.ID)
	return buf.Bytes()
}

// UnmarshalFeatureKey decodes a key written by MarshalFeatureKey.
func UnmarshalFeatureKey(data []byte) FeatureKey {
	var k FeatureKey
	data = data[1:]
	n64 := binary.Size(uint64(0))
	n := order.Uint64(data[:n64])
	data = data[n64:]
	k.Chrom = string(data[:n])
	data = data[n:]
	k.Start = int64(order.Uint64(data[:n64]))
	data = data[n64:]
	k.End = int64(order.Uint64(data[:n64]))
	data = data[n64:]
	n = order.Uint64(data[:n64])
	data = data[n64:]
	k.ID = string(data[:n])
	return k
}
