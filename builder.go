// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Option configures a Builder.
type Option func(*Builder)

// WithCharset sets the charset names are encoded with. The default is ASCII.
func WithCharset(c Charset) Option {
	return func(b *Builder) {
		b.charset = c
	}
}

// WithKinds replaces the allow-list of symbol kinds kept in the table. The
// default is T and t.
func WithKinds(kinds ...Kind) Option {
	return func(b *Builder) {
		b.kinds = append([]Kind(nil), kinds...)
	}
}

// WithWarningHandler sets the function receiving non-fatal diagnostics:
// *ParseError and *EncodingError for skipped lines when fed through
// ReadListing, and *TruncationWarning for names cut during encoding.
func WithWarningHandler(fn func(error)) Option {
	return func(b *Builder) {
		b.warn = fn
	}
}

// Builder accumulates function symbols and serializes them into a symbol
// table. The table is emitted once, by Finalize or WriteTo. A Builder is not
// safe for concurrent use.
type Builder struct {
	charset   Charset
	kinds     []Kind
	warn      func(error)
	records   []record
	finalized bool
}

type record struct {
	sym  Symbol
	name []byte
}

// NewBuilder returns an empty, open Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		charset: CharsetASCII,
		kinds:   textKinds,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.warn == nil {
		b.warn = func(error) {}
	}
	return b
}

// Len returns the number of symbols accepted so far.
func (b *Builder) Len() int {
	return len(b.records)
}

// Symbols returns the accepted symbols in insertion order.
func (b *Builder) Symbols() []Symbol {
	syms := make([]Symbol, len(b.records))
	for i, r := range b.records {
		syms[i] = r.sym
	}
	return syms
}

// Warn reports err to the warning handler.
func (b *Builder) Warn(err error) {
	b.warn(err)
}

// Ingest parses one line of nm output: "<hex-address> <kind> <name> [ignored...]".
//
// Lines whose kind is not in the allow-list are skipped and nil is returned.
// Lines with less than three fields or a malformed address return a
// *ParseError, and names outside of the charset return an *EncodingError; in
// both cases nothing is added and the builder stays usable.
func (b *Builder) Ingest(line string) error {
	if b.finalized {
		return ErrFinalized
	}
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return &ParseError{Text: line, Err: ErrTooFewFields}
	}
	if len(fields[1]) != 1 || !allowed(b.kinds, Kind(fields[1][0])) {
		return nil
	}
	addr, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return &ParseError{Text: line, Err: fmt.Errorf("%w: %q", ErrInvalidAddress, fields[0])}
	}
	return b.add(Symbol{Address: addr, Name: fields[2]})
}

// Add appends an entry read from an object file. The kind allow-list and the
// charset apply the same way as for Ingest.
func (b *Builder) Add(e Entry) error {
	if b.finalized {
		return ErrFinalized
	}
	if !allowed(b.kinds, e.Kind) {
		return nil
	}
	return b.add(e.Symbol)
}

func (b *Builder) add(sym Symbol) error {
	name, err := b.charset.Encode(sym.Name)
	if err != nil {
		return &EncodingError{Name: sym.Name, Charset: b.charset, Err: err}
	}
	b.records = append(b.records, record{sym: sym, name: name})
	return nil
}

// Finalize returns the serialized table. It can only be called once; later
// calls, and calls after WriteTo, return ErrFinalized.
func (b *Builder) Finalize() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderSize+RecordSize*len(b.records)))
	if _, err := b.WriteTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteTo writes the serialized table to w in a single forward pass. The
// count prefix is known up front so w doesn't need to be seekable. Like
// Finalize, it can only be called once.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	if b.finalized {
		return 0, ErrFinalized
	}
	b.finalized = true

	bw := bufio.NewWriter(w)
	var n int64
	var scratch [8]byte

	binary.BigEndian.PutUint64(scratch[:], uint64(len(b.records)))
	c, err := bw.Write(scratch[:])
	n += int64(c)
	if err != nil {
		return n, fmt.Errorf("error when writing the symbol count: %w", err)
	}

	for _, r := range b.records {
		binary.BigEndian.PutUint64(scratch[:], r.sym.Address)
		c, err = bw.Write(scratch[:])
		n += int64(c)
		if err != nil {
			return n, fmt.Errorf("error when writing the address of %s: %w", r.sym.Name, err)
		}

		field, truncated := EncodeFixedField(r.name, NameSize)
		if truncated {
			b.warn(&TruncationWarning{Symbol: r.sym, Length: len(r.name)})
		}
		c, err = bw.Write(field)
		n += int64(c)
		if err != nil {
			return n, fmt.Errorf("error when writing the name of %s: %w", r.sym.Name, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return n, fmt.Errorf("error when flushing the symbol table: %w", err)
	}
	return n, nil
}
