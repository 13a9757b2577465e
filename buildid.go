// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

const (
	gnuBuildIDSection = ".note.gnu.build-id"
	ntGNUBuildID      = 3
	noteHeaderSize    = 12
)

var gnuNoteName = []byte("GNU\x00")

// parseGNUBuildID extracts the build ID from the content of a
// .note.gnu.build-id section and returns it hex encoded.
func parseGNUBuildID(data []byte, byteOrder binary.ByteOrder) (string, error) {
	r := bytes.NewReader(data)
	var nameLen uint32
	var descLen uint32
	var tag uint32
	err := binary.Read(r, byteOrder, &nameLen)
	if err != nil {
		return "", fmt.Errorf("error when reading the build ID name length: %w", err)
	}
	err = binary.Read(r, byteOrder, &descLen)
	if err != nil {
		return "", fmt.Errorf("error when reading the build ID length: %w", err)
	}
	err = binary.Read(r, byteOrder, &tag)
	if err != nil {
		return "", fmt.Errorf("error when reading the build ID tag: %w", err)
	}

	if tag != ntGNUBuildID {
		return "", fmt.Errorf("build ID does not match expected value. 0x%x parsed", tag)
	}

	// The descriptor starts at the next 4-byte boundary after the name.
	descStart := uint64(noteHeaderSize) + (uint64(nameLen)+3)&^3
	descEnd := descStart + uint64(descLen)
	if descEnd > uint64(len(data)) {
		return "", fmt.Errorf("build ID note is truncated")
	}
	if !bytes.Equal(data[noteHeaderSize:noteHeaderSize+uint64(nameLen)], gnuNoteName) {
		return "", fmt.Errorf("note name not as expected")
	}
	return hex.EncodeToString(data[descStart:descEnd]), nil
}
