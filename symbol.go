// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"fmt"
	"slices"
)

const (
	// AddressSize is the size of the address field of a record.
	AddressSize = 8
	// NameSize is the size of the name field of a record, including the NUL terminator.
	NameSize = 56
	// RecordSize is the stride of the records in the table.
	RecordSize = AddressSize + NameSize
	// HeaderSize is the size of the count prefix.
	HeaderSize = 8
)

// Symbol is a function symbol as stored in the table.
type Symbol struct {
	Address uint64 `json:"address"`
	Name    string `json:"name"`
}

// String returns the symbol in the nm listing format.
func (s Symbol) String() string {
	return fmt.Sprintf("%016x %s", s.Address, s.Name)
}

// Kind is the single character symbol type code used by nm.
type Kind byte

const (
	// KindGlobalText is a global symbol in the text (code) section.
	KindGlobalText Kind = 'T'
	// KindLocalText is a local symbol in the text (code) section.
	KindLocalText Kind = 't'
)

// String returns the kind code.
func (k Kind) String() string {
	return string(rune(k))
}

// textKinds is the default allow-list of kinds kept in the table.
var textKinds = []Kind{KindGlobalText, KindLocalText}

// Entry is a symbol together with its kind, as listed by nm.
type Entry struct {
	Symbol
	Kind Kind `json:"kind"`
}

// String returns the entry as a line of nm output.
func (e Entry) String() string {
	return fmt.Sprintf("%016x %s %s", e.Address, e.Kind, e.Name)
}

func allowed(kinds []Kind, k Kind) bool {
	return slices.Contains(kinds, k)
}
