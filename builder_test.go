// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectWarnings(dst *[]error) Option {
	return WithWarningHandler(func(err error) {
		*dst = append(*dst, err)
	})
}

func TestBuilderScenario(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	var warnings []error
	b := NewBuilder(collectWarnings(&warnings))

	long := strings.Repeat("x", 60)
	for _, line := range []string{"1000 T foo", "2000 t bar", "3000 D baz", "4000 T " + long} {
		require.NoError(b.Ingest(line))
	}
	data, err := b.Finalize()
	require.NoError(err)

	require.Len(data, HeaderSize+3*RecordSize)
	assert.Equal(uint64(3), binary.BigEndian.Uint64(data[:8]))

	rec := func(i int) []byte {
		off := HeaderSize + i*RecordSize
		return data[off : off+RecordSize]
	}
	assert.Equal(uint64(0x1000), binary.BigEndian.Uint64(rec(0)[:8]))
	assert.Equal(append([]byte("foo"), make([]byte, NameSize-3)...), rec(0)[8:])
	assert.Equal(uint64(0x2000), binary.BigEndian.Uint64(rec(1)[:8]))
	assert.Equal(append([]byte("bar"), make([]byte, NameSize-3)...), rec(1)[8:])
	assert.Equal(uint64(0x4000), binary.BigEndian.Uint64(rec(2)[:8]))
	assert.Equal(append([]byte(strings.Repeat("x", 55)), 0), rec(2)[8:])

	require.Len(warnings, 1, "Only the long name should produce a warning")
	var tw *TruncationWarning
	require.True(errors.As(warnings[0], &tw))
	assert.Equal(long, tw.Symbol.Name, "Warning should name the original symbol")
	assert.Equal(60, tw.Length)
	assert.Contains(tw.Error(), long)
}

func TestBuilderEmpty(t *testing.T) {
	data, err := NewBuilder().Finalize()
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 8), data)
}

func TestBuilderKindFilter(t *testing.T) {
	kinds := []string{"T", "t", "D", "d", "B", "b", "R", "r", "U", "W", "w", "A", "TT", "?"}
	for _, kind := range kinds {
		t.Run("kind_"+kind, func(t *testing.T) {
			assert := assert.New(t)
			b := NewBuilder()
			assert.NoError(b.Ingest("ffffffff80000000 " + kind + " sym"))
			if kind == "T" || kind == "t" {
				assert.Equal(1, b.Len())
			} else {
				assert.Equal(0, b.Len(), "Kind should be dropped")
			}
		})
	}
}

func TestBuilderCustomKinds(t *testing.T) {
	assert := assert.New(t)
	b := NewBuilder(WithKinds(KindGlobalText, 'W'))
	assert.NoError(b.Ingest("10 T a"))
	assert.NoError(b.Ingest("20 t b"))
	assert.NoError(b.Ingest("30 W c"))
	assert.Equal([]Symbol{{0x10, "a"}, {0x30, "c"}}, b.Symbols())
}

func TestBuilderParseErrors(t *testing.T) {
	tests := []struct {
		line string
		want error
	}{
		{"", ErrTooFewFields},
		{"   ", ErrTooFewFields},
		{"1000 T", ErrTooFewFields},
		{"                 U printf", ErrTooFewFields},
		{"zzzz T foo", ErrInvalidAddress},
		{"0x1000 T foo", ErrInvalidAddress},
		{"1ffffffffffffffff T foo", ErrInvalidAddress},
	}
	for _, test := range tests {
		t.Run(test.line, func(t *testing.T) {
			assert := assert.New(t)
			b := NewBuilder()
			err := b.Ingest(test.line)
			var perr *ParseError
			assert.True(errors.As(err, &perr), "Should be a ParseError")
			assert.ErrorIs(err, test.want)
			assert.Equal(0, b.Len())

			// The builder stays usable.
			assert.NoError(b.Ingest("1000 T foo"))
			assert.Equal(1, b.Len())
		})
	}
}

func TestBuilderIgnoresExtraFields(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Ingest("ffffffffc0001000\tt\tdriver_init [mod]  extra"))
	assert.Equal(t, []Symbol{{0xffffffffc0001000, "driver_init"}}, b.Symbols())
}

func TestBuilderKeepsOrderAndDuplicates(t *testing.T) {
	b := NewBuilder()
	for _, line := range []string{"3000 T c", "1000 T a", "3000 T c", "2000 t a"} {
		require.NoError(t, b.Ingest(line))
	}
	data, err := b.Finalize()
	require.NoError(t, err)
	tab, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, []Symbol{{0x3000, "c"}, {0x1000, "a"}, {0x3000, "c"}, {0x2000, "a"}}, tab.Symbols)
}

func TestBuilderEncodingError(t *testing.T) {
	assert := assert.New(t)
	b := NewBuilder()

	err := b.Ingest("1000 T café")
	var eerr *EncodingError
	assert.True(errors.As(err, &eerr))
	assert.ErrorIs(err, ErrUnencodable)
	assert.Equal(CharsetASCII, eerr.Charset)
	assert.Equal(0, b.Len(), "Unencodable symbols are skipped")

	assert.NoError(b.Ingest("2000 T ok"))
	data, err := b.Finalize()
	assert.NoError(err)
	assert.Equal(uint64(1), binary.BigEndian.Uint64(data[:8]), "Count must match the written records")
}

func TestBuilderRejectsNUL(t *testing.T) {
	for _, c := range Charsets {
		t.Run(string(c), func(t *testing.T) {
			assert := assert.New(t)
			b := NewBuilder(WithCharset(c))

			err := b.Ingest("1000 T a\x00b")
			var eerr *EncodingError
			assert.True(errors.As(err, &eerr))
			assert.ErrorIs(err, ErrUnencodable)
			assert.Equal(0, b.Len(), "A name cut by NUL would not decode back")

			assert.ErrorIs(b.Add(Entry{Symbol: Symbol{Address: 0x2000, Name: "\x00"}, Kind: KindGlobalText}), ErrUnencodable)
			assert.Equal(0, b.Len())
		})
	}
}

func TestBuilderLatin1RawBytes(t *testing.T) {
	require := require.New(t)
	b := NewBuilder(WithCharset(CharsetLatin1))
	_, err := ReadListing(strings.NewReader("1000 T caf\xe9\n"), b)
	require.NoError(err)
	require.Equal(1, b.Len(), "Raw Latin-1 names should be kept")

	data, err := b.Finalize()
	require.NoError(err)
	assert.Equal(t, []byte{'c', 'a', 'f', 0xe9, 0}, data[HeaderSize+AddressSize:HeaderSize+AddressSize+5])
	tab, err := DecodeCharset(data, CharsetLatin1)
	require.NoError(err)
	assert.Equal(t, "café", tab.Symbols[0].Name)
}

func TestBuilderLatin1(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)
	b := NewBuilder(WithCharset(CharsetLatin1))

	require.NoError(b.Ingest("1000 T café"))
	err := b.Ingest("2000 T 中")
	assert.ErrorIs(err, ErrUnencodable)

	data, err := b.Finalize()
	require.NoError(err)
	assert.Equal([]byte{'c', 'a', 'f', 0xe9, 0}, data[HeaderSize+AddressSize:HeaderSize+AddressSize+5])

	tab, err := DecodeCharset(data, CharsetLatin1)
	require.NoError(err)
	assert.Equal("café", tab.Symbols[0].Name)
}

func TestBuilderTruncationCountsBytes(t *testing.T) {
	// 56 bytes as UTF-8 but only 28 once encoded as Latin-1.
	name := strings.Repeat("é", 28)
	var warnings []error
	b := NewBuilder(WithCharset(CharsetLatin1), collectWarnings(&warnings))
	require.NoError(t, b.Ingest("1000 T "+name))
	_, err := b.Finalize()
	require.NoError(t, err)
	assert.Empty(t, warnings, "28 Latin-1 characters fit in 28 bytes")
}

func TestBuilderFinalizeOnce(t *testing.T) {
	assert := assert.New(t)
	b := NewBuilder()
	assert.NoError(b.Ingest("1000 T foo"))

	_, err := b.Finalize()
	assert.NoError(err)

	_, err = b.Finalize()
	assert.ErrorIs(err, ErrFinalized)
	_, err = b.WriteTo(&bytes.Buffer{})
	assert.ErrorIs(err, ErrFinalized)
	assert.ErrorIs(b.Ingest("2000 T bar"), ErrFinalized)
	assert.ErrorIs(b.Add(Entry{Symbol: Symbol{Address: 1, Name: "x"}, Kind: KindGlobalText}), ErrFinalized)
}

func TestBuilderIdempotent(t *testing.T) {
	lines := []string{"ffffffff80001000 T start", "ffffffff80001040 t helper", "ffffffff80002000 r rodata", "ffffffff80003000 T " + strings.Repeat("n", 80)}
	run := func() []byte {
		b := NewBuilder()
		for _, l := range lines {
			require.NoError(t, b.Ingest(l))
		}
		data, err := b.Finalize()
		require.NoError(t, err)
		return data
	}
	assert.Equal(t, run(), run())
}

type onlyWriter struct {
	w *bytes.Buffer
}

func (o onlyWriter) Write(p []byte) (int, error) {
	return o.w.Write(p)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestBuilderWriteToStream(t *testing.T) {
	assert := assert.New(t)
	b := NewBuilder()
	assert.NoError(b.Ingest("1000 T foo"))
	assert.NoError(b.Ingest("2000 T bar"))

	buf := &bytes.Buffer{}
	n, err := b.WriteTo(onlyWriter{buf})
	assert.NoError(err)
	assert.Equal(int64(HeaderSize+2*RecordSize), n)
	assert.Equal(buf.Len(), int(n))
}

func TestBuilderWriteToError(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Ingest("1000 T foo"))
	_, err := b.WriteTo(failingWriter{})
	assert.Error(t, err)
}

func TestBuilderAdd(t *testing.T) {
	assert := assert.New(t)
	b := NewBuilder()
	assert.NoError(b.Add(Entry{Symbol: Symbol{Address: 0x10, Name: "a"}, Kind: KindLocalText}))
	assert.NoError(b.Add(Entry{Symbol: Symbol{Address: 0x20, Name: "weak"}, Kind: 'W'}))
	assert.NoError(b.Add(Entry{Symbol: Symbol{Address: 0x30, Name: "b"}, Kind: KindGlobalText}))
	assert.ErrorIs(b.Add(Entry{Symbol: Symbol{Address: 0x40, Name: "ÿ"}, Kind: KindGlobalText}), ErrUnencodable)
	assert.Equal([]Symbol{{0x10, "a"}, {0x30, "b"}}, b.Symbols())
}
