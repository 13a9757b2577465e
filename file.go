// Copyright 2019 The GoRE.tk Authors. All rights reserved.
// Use of this source code is governed by the license that
// can be found in the LICENSE file.

package ksyms

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"sync"
)

var (
	elfMagic       = []byte{0x7f, 0x45, 0x4c, 0x46}
	peMagic        = []byte{0x4d, 0x5a}
	maxMagicBufLen = 4
	machoMagic1    = []byte{0xfe, 0xed, 0xfa, 0xce}
	machoMagic2    = []byte{0xfe, 0xed, 0xfa, 0xcf}
	machoMagic3    = []byte{0xce, 0xfa, 0xed, 0xfe}
	machoMagic4    = []byte{0xcf, 0xfa, 0xed, 0xfe}
)

// Open opens an object file and returns a handler to it. ELF, PE and Mach-O
// files are supported.
func Open(filePath string) (*File, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	file, err := OpenReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return file, nil
}

// OpenReader returns a handler to the object file read from r. If r is an
// io.Closer, it's closed by File.Close.
func OpenReader(r io.ReaderAt) (*File, error) {
	buf := make([]byte, maxMagicBufLen)
	n, err := r.ReadAt(buf, 0)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if n < maxMagicBufLen {
		return nil, ErrNotEnoughBytesRead
	}

	var fh fileHandler
	switch {
	case fileMagicMatch(buf, elfMagic):
		fh, err = openELF(r)
	case fileMagicMatch(buf, peMagic):
		fh, err = openPE(r)
	case fileMagicMatch(buf, machoMagic1) || fileMagicMatch(buf, machoMagic2) ||
		fileMagicMatch(buf, machoMagic3) || fileMagicMatch(buf, machoMagic4):
		fh, err = openMachO(r)
	default:
		return nil, ErrUnsupportedFile
	}
	if err != nil {
		return nil, err
	}

	file := &File{FileInfo: fh.getFileInfo(), fh: fh}
	file.textSymbols = sync.OnceValues(fh.getTextSymbols)
	return file, nil
}

// File is an object file symbols are read from.
type File struct {
	// FileInfo holds information about the file.
	FileInfo    *FileInfo
	fh          fileHandler
	textSymbols func() ([]Entry, error)
}

// TextSymbols returns the symbols defined in executable sections, sorted by
// address the way "nm -n" lists them. Global symbols have the kind T, local
// ones t. Weak definitions are listed with W.
func (f *File) TextSymbols() ([]Entry, error) {
	return f.textSymbols()
}

// CodeSection returns the address and the content of the main code section.
func (f *File) CodeSection() (uint64, []byte, error) {
	return f.fh.getCodeSection()
}

// BuildID returns the hex encoded GNU build ID of the file. Only ELF files
// carry one; other formats return ErrSectionDoesNotExist.
func (f *File) BuildID() (string, error) {
	return f.fh.getBuildID()
}

// Close releases the file handler.
func (f *File) Close() error {
	return f.fh.Close()
}

type fileHandler interface {
	io.Closer
	getTextSymbols() ([]Entry, error)
	getCodeSection() (uint64, []byte, error)
	getBuildID() (string, error)
	getFileInfo() *FileInfo
}

func fileMagicMatch(buf, magic []byte) bool {
	return bytes.HasPrefix(buf, magic)
}

// FileInfo holds information about the file.
type FileInfo struct {
	// Arch is the architecture the binary is compiled for.
	Arch string
	// OS is the operating system the binary is compiled for.
	OS string
	// ByteOrder is the byte order.
	ByteOrder binary.ByteOrder
	// WordSize is the natural integer size used by the file.
	WordSize int
}

const (
	intSize32 = 4
	intSize64 = 8
)

const (
	ArchAMD64 = "amd64"
	ArchARM   = "arm"
	ArchARM64 = "arm64"
	Arch386   = "i386"
	ArchMIPS  = "mips"
)

func tryClose(r io.ReaderAt) error {
	if c, ok := r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
