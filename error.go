// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"errors"
	"fmt"
)

var (
	// ErrTooFewFields is returned for a listing line with less than three fields.
	ErrTooFewFields = errors.New("too few fields")
	// ErrInvalidAddress is returned if the address field is not a base-16 unsigned 64-bit integer.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrUnencodable is returned if a symbol name can't be represented in the table's charset.
	ErrUnencodable = errors.New("name not encodable")
	// ErrFinalized is returned when a builder is used after the table has been emitted.
	ErrFinalized = errors.New("table already finalized")
	// ErrInvalidTable is returned if a blob does not follow the table layout.
	ErrInvalidTable = errors.New("invalid symbol table")
	// ErrSymbolNotFound is returned if no symbol covers the requested address.
	ErrSymbolNotFound = errors.New("symbol not found")
	// ErrNotEnoughBytesRead is returned if read call returned less bytes than what is needed.
	ErrNotEnoughBytesRead = errors.New("not enough bytes read")
	// ErrUnsupportedFile is returned if the file process is unsupported.
	ErrUnsupportedFile = errors.New("unsupported file")
	// ErrSectionDoesNotExist is returned when accessing a section that does not exist.
	ErrSectionDoesNotExist = errors.New("section does not exist")
	// ErrUnsupportedArch is returned when disassembly is requested for an architecture
	// the library can't decode.
	ErrUnsupportedArch = errors.New("unsupported architecture")
)

// ParseError describes a listing line that was skipped.
type ParseError struct {
	// Line is the 1-based line number in the listing, zero if unknown.
	Line int
	// Text is the raw line.
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("%q: %v", e.Text, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// EncodingError is returned when a symbol name contains characters outside of
// the charset. The symbol is not added to the table.
type EncodingError struct {
	Name    string
	Charset Charset
	Err     error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("symbol %q is not encodable as %s: %v", e.Name, e.Charset, e.Err)
}

func (e *EncodingError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnencodable}
	}
	return []error{ErrUnencodable, e.Err}
}

// TruncationWarning is reported when a symbol name does not fit in the name
// field. The symbol is still written, with its name truncated.
type TruncationWarning struct {
	// Symbol is the original, untruncated symbol.
	Symbol Symbol
	// Length is the length of the encoded name before truncation.
	Length int
}

func (w *TruncationWarning) Error() string {
	return fmt.Sprintf("symbol name %s is too long (%d bytes) and will be truncated to %d bytes", w.Symbol.Name, w.Length, NameSize-1)
}
