// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeFixedField(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		wantName  string
		truncated bool
	}{
		{"empty", "", "", false},
		{"short", "foo", "foo", false},
		{"55_bytes", strings.Repeat("a", 55), strings.Repeat("a", 55), false},
		{"56_bytes", strings.Repeat("b", 56), strings.Repeat("b", 55), true},
		{"60_bytes", strings.Repeat("x", 60), strings.Repeat("x", 55), true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert := assert.New(t)

			field, truncated := EncodeFixedField([]byte(test.in), NameSize)

			assert.Len(field, NameSize, "Field must always have the full width")
			assert.Equal(test.truncated, truncated)
			assert.Equal(byte(0), field[NameSize-1], "Field must be NUL-terminated")
			assert.Equal(test.wantName, string(decodeFixedField(field)))
			pad := field[len(test.wantName):]
			assert.Equal(make([]byte, len(pad)), pad, "Tail must be zero padded")
		})
	}
}

func TestEncodeFixedFieldEmptyNameIsAllZero(t *testing.T) {
	field, truncated := EncodeFixedField(nil, NameSize)
	assert.False(t, truncated)
	assert.Equal(t, make([]byte, NameSize), field)
}

func TestEncodeFixedFieldDoesNotAliasInput(t *testing.T) {
	in := []byte("symbol")
	field, _ := EncodeFixedField(in, 8)
	field[0] = 'X'
	assert.Equal(t, "symbol", string(in))
}

func TestEncodeFixedFieldSmallWidths(t *testing.T) {
	assert := assert.New(t)

	field, truncated := EncodeFixedField([]byte("a"), 1)
	assert.Equal([]byte{0}, field)
	assert.True(truncated)

	field, truncated = EncodeFixedField([]byte("a"), 0)
	assert.Empty(field)
	assert.True(truncated)

	field, truncated = EncodeFixedField(nil, 0)
	assert.Empty(field)
	assert.False(truncated)
}

func TestDecodeFixedFieldWithoutTerminator(t *testing.T) {
	assert.Equal(t, []byte("abc"), decodeFixedField([]byte("abc")))
	assert.True(t, bytes.Equal([]byte("ab"), decodeFixedField([]byte("ab\x00c\x00"))))
}
