// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

// EncodeFixedField returns b as a NUL-terminated field of exactly width bytes.
//
// If b is shorter than width, it's padded with zero bytes. Otherwise it's cut
// to width-1 bytes followed by a single zero byte, and truncated is true. The
// returned field always ends with a NUL. A width smaller than one yields an
// empty field.
func EncodeFixedField(b []byte, width int) (field []byte, truncated bool) {
	if width < 1 {
		return []byte{}, len(b) > 0
	}
	field = make([]byte, width)
	if len(b) >= width {
		copy(field, b[:width-1])
		return field, true
	}
	copy(field, b)
	return field, false
}

// decodeFixedField returns the bytes before the first NUL in field.
func decodeFixedField(field []byte) []byte {
	for i, c := range field {
		if c == 0 {
			return field[:i]
		}
	}
	return field
}
