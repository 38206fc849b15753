// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mbp drains and decodes the ME boot payload, the item stream the
// ME pushes to the host once per boot.
package mbp

import (
	"errors"
	"fmt"
)

// Config space registers of the ME function used by the reader.
const (
	CfgHFS2 uint = 0x48
	CfgHGS2 uint = 0x70

	HFS2MbpReady   uint32 = 1 << 5
	HFS2MbpCleared uint32 = 1 << 13

	// GiveUpValue written to CfgHGS2 tells the ME the host abandoned the MBP.
	GiveUpValue uint32 = 1
)

// Application ids.
const (
	AppKernel  uint8 = 1
	AppIntelAT uint8 = 3
	AppICC     uint8 = 5
	AppNFC     uint8 = 6
)

// Item ids of AppKernel.
const (
	KernelFwVer      uint8 = 1
	KernelFwCap      uint8 = 2
	KernelRomBist    uint8 = 3
	KernelPlatKey    uint8 = 4
	KernelFwType     uint8 = 5
	KernelMfsFailure uint8 = 6
	KernelPlatTime   uint8 = 7
)

const (
	ICCProfile     uint8 = 1
	IntelATState   uint8 = 1
	NFCSupportData uint8 = 1
)

// Ident packs an (app, item) pair into one comparable key.
type Ident uint16

func MakeIdent(app, item uint8) Ident { return Ident(app)<<8 | Ident(item) }

func (id Ident) App() uint8  { return uint8(id >> 8) }
func (id Ident) Item() uint8 { return uint8(id) }

func (id Ident) String() string {
	if s, found := identNames[id]; found {
		return s
	}
	return fmt.Sprintf("app %d item %d", id.App(), id.Item())
}

var identNames = map[Ident]string{
	MakeIdent(AppKernel, KernelFwVer):      "fw version",
	MakeIdent(AppKernel, KernelFwCap):      "fw capabilities",
	MakeIdent(AppKernel, KernelRomBist):    "rom bist",
	MakeIdent(AppKernel, KernelPlatKey):    "platform key",
	MakeIdent(AppKernel, KernelFwType):     "fw platform type",
	MakeIdent(AppKernel, KernelMfsFailure): "mfs integrity",
	MakeIdent(AppKernel, KernelPlatTime):   "platform time",
	MakeIdent(AppICC, ICCProfile):          "icc profile",
	MakeIdent(AppIntelAT, IntelATState):    "at state",
	MakeIdent(AppNFC, NFCSupportData):      "nfc support data",
}

// Header is the first MBP dword: size in dwords including itself, and
// number of items.
type Header uint32

func MakeHeader(size, entries uint8) Header {
	return Header(size) | Header(entries)<<8
}

func (h Header) Size() int    { return int(uint8(h)) }
func (h Header) Entries() int { return int(uint8(h >> 8)) }

func (h Header) String() string {
	return fmt.Sprintf("items: %d, size dw: %d", h.Entries(), h.Size())
}

// ItemHeader leads each item; Length counts dwords including itself.
type ItemHeader uint32

func MakeItemHeader(app, item, length uint8) ItemHeader {
	return ItemHeader(app) | ItemHeader(item)<<8 | ItemHeader(length)<<16
}

func (h ItemHeader) App() uint8   { return uint8(h) }
func (h ItemHeader) Item() uint8  { return uint8(h >> 8) }
func (h ItemHeader) Length() int  { return int(uint8(h >> 16)) }
func (h ItemHeader) Ident() Ident { return MakeIdent(h.App(), h.Item()) }
func (h ItemHeader) String() string {
	return fmt.Sprintf("%v length %d", h.Ident(), h.Length())
}

var (
	ErrNotReady     = errors.New("MBP not ready")
	ErrEmpty        = errors.New("no mbp data")
	ErrClearTimeout = errors.New("timeout waiting for mbp_cleared")
	ErrMalformed    = errors.New("malformed mbp")
)

// HeaderError is an MBP header inconsistent with itself or with the words
// queued by the ME.
type HeaderError struct {
	Header  Header
	Pending uint32
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("mbp of %d entries, total size %d words buffer contains %d words",
		e.Header.Entries(), e.Header.Size(), e.Pending)
}

func (e *HeaderError) Unwrap() error { return ErrMalformed }

// ItemError is an item that cannot be decoded at dword Offset of the
// payload.
type ItemError struct {
	Header ItemHeader
	Offset int
	Reason string
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item 0x%08x @ dw offset 0x%x: %s",
		uint32(e.Header), e.Offset, e.Reason)
}

func (e *ItemError) Unwrap() error { return ErrMalformed }
