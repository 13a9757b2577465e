// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Charset is the single-byte character encoding used for the names stored in
// the table.
type Charset string

const (
	// CharsetASCII only accepts 7-bit names. This is the default.
	CharsetASCII Charset = "ascii"
	// CharsetLatin1 encodes names as ISO 8859-1. Names that are valid UTF-8
	// are converted; any other name is taken to be raw Latin-1 already.
	CharsetLatin1 Charset = "latin1"
)

// Charsets lists the supported charsets.
var Charsets = []Charset{CharsetASCII, CharsetLatin1}

// ParseCharset resolves a charset by name. The lookup is case insensitive and
// accepts a few common aliases.
func ParseCharset(s string) (Charset, error) {
	switch strings.ToLower(s) {
	case "", "ascii", "us-ascii":
		return CharsetASCII, nil
	case "latin1", "latin-1", "iso-8859-1", "iso8859-1":
		return CharsetLatin1, nil
	}
	return "", fmt.Errorf("unknown charset %q", s)
}

// Encode returns the raw bytes of name in the charset. NUL is rejected in
// every charset since it terminates the stored name.
func (c Charset) Encode(name string) ([]byte, error) {
	if i := strings.IndexByte(name, 0); i >= 0 {
		return nil, fmt.Errorf("NUL byte at offset %d", i)
	}
	switch c {
	case CharsetASCII, "":
		for i := 0; i < len(name); i++ {
			if name[i] >= utf8.RuneSelf {
				return nil, fmt.Errorf("byte 0x%02x at offset %d is outside of the 7-bit range", name[i], i)
			}
		}
		return []byte(name), nil
	case CharsetLatin1:
		if !utf8.ValidString(name) {
			return []byte(name), nil
		}
		return charmap.ISO8859_1.NewEncoder().Bytes([]byte(name))
	}
	return nil, fmt.Errorf("unknown charset %q", string(c))
}

// Decode converts a stored name back to a Go string.
func (c Charset) Decode(b []byte) (string, error) {
	if c == CharsetLatin1 {
		return charmap.ISO8859_1.NewDecoder().String(string(b))
	}
	return string(b), nil
}
