// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mei

import "fmt"

// Register window offsets.
const (
	HostCBWW uintptr = 0x00 // host circular buffer write window
	HostCSR  uintptr = 0x04
	MECBRW   uintptr = 0x08 // ME circular buffer read window
	MECSR    uintptr = 0x0c
)

// CSR is a host or ME control/status register.
type CSR uint32

const (
	IntEnable   CSR = 1 << 0
	IntStatus   CSR = 1 << 1
	IntGenerate CSR = 1 << 2
	Ready       CSR = 1 << 3
	Reset       CSR = 1 << 4

	csrReadPtrOff  = 8
	csrWritePtrOff = 16
	csrDepthOff    = 24
	csrByte        = 0xff
)

// MakeCSR packs pointers, depth and flag bits into a register value.
func MakeCSR(depth, rp, wp uint8, flags CSR) CSR {
	return flags&(IntEnable|IntStatus|IntGenerate|Ready|Reset) |
		CSR(rp)<<csrReadPtrOff |
		CSR(wp)<<csrWritePtrOff |
		CSR(depth)<<csrDepthOff
}

func (c CSR) Has(flags CSR) bool { return c&flags == flags }

func (c CSR) ReadPtr() uint8  { return uint8(c >> csrReadPtrOff & csrByte) }
func (c CSR) WritePtr() uint8 { return uint8(c >> csrWritePtrOff & csrByte) }
func (c CSR) Depth() uint8    { return uint8(c >> csrDepthOff & csrByte) }

// Pending is the number of dwords written but not yet read,
// (write - read) mod depth.
func (c CSR) Pending() uint32 { return Pending(c.Depth(), c.ReadPtr(), c.WritePtr()) }

// Room is the number of dwords that may still be written before the write
// pointer reaches the end of the buffer.
func (c CSR) Room() uint32 { return Room(c.Depth(), c.WritePtr()) }

func Pending(depth, rp, wp uint8) uint32 {
	if depth == 0 {
		return 0
	}
	d := int(depth)
	n := (int(wp) - int(rp)) % d
	if n < 0 {
		n += d
	}
	return uint32(n)
}

// Room is the dwords the host may still write, in 1..depth; a rewound
// buffer has the whole depth free.
func Room(depth, wp uint8) uint32 {
	if depth == 0 {
		return 0
	}
	return uint32(depth) - uint32(wp)%uint32(depth)
}

func (c CSR) String() string {
	b := func(f CSR) int {
		if c.Has(f) {
			return 1
		}
		return 0
	}
	return fmt.Sprintf("cbd=%d cbrp=%02d cbwp=%02d ready=%d reset=%d ig=%d is=%d ie=%d",
		c.Depth(), c.ReadPtr(), c.WritePtr(), b(Ready), b(Reset),
		b(IntGenerate), b(IntStatus), b(IntEnable))
}
