// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package hw provides 32-bit access to a memory-mapped register window.
package hw

import (
	"fmt"
	"os"
	"sync/atomic"
	"syscall"
	"unsafe"
)

const DevMem = "/dev/mem"

// Window is a register window addressed by byte offset. Every access is a
// single, uncached, ordered 32-bit load or store.
type Window interface {
	Load32(offset uintptr) uint32
	Store32(offset uintptr, data uint32)
}

// Mapping is a Window over a byte slice, either mmapped from DevMem or
// allocated in memory.
type Mapping struct {
	f    *os.File
	mem  []byte
	regs []byte
	base uint64
}

// Map the physical range [base, base+size) from DevMem.
func Map(base, size uint64) (m *Mapping, err error) {
	if size == 0 {
		return nil, fmt.Errorf("%s: 0x%x: zero length window", DevMem, base)
	}
	m = &Mapping{base: base}
	defer func() {
		if err != nil {
			m.Close()
			m = nil
		}
	}()
	m.f, err = os.OpenFile(DevMem, os.O_RDWR|os.O_SYNC, 0)
	if err != nil {
		return
	}
	pagesz := uint64(os.Getpagesize())
	aligned := base &^ (pagesz - 1)
	skew := base - aligned
	n := (skew + size + pagesz - 1) &^ (pagesz - 1)
	m.mem, err = syscall.Mmap(int(m.f.Fd()), int64(aligned), int(n),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_SHARED)
	if err != nil {
		err = fmt.Errorf("%s: mmap 0x%x: %v", DevMem, aligned, err)
		return
	}
	m.regs = m.mem[skew : skew+size]
	return
}

// NewMem returns a Mapping over ordinary memory.
func NewMem(size int) *Mapping {
	return &Mapping{regs: make([]byte, (size+3)&^3)}
}

func (m *Mapping) Base() uint64 { return m.base }
func (m *Mapping) Len() int     { return len(m.regs) }

func (m *Mapping) Close() (err error) {
	if m.mem != nil {
		err = syscall.Munmap(m.mem)
		m.mem = nil
	}
	m.regs = nil
	if m.f != nil {
		if cerr := m.f.Close(); err == nil {
			err = cerr
		}
		m.f = nil
	}
	return
}

func (m *Mapping) reg(offset uintptr) *uint32 {
	CheckRegAddr(offset, len(m.regs))
	return (*uint32)(unsafe.Pointer(&m.regs[offset]))
}

func (m *Mapping) Load32(offset uintptr) uint32 {
	return atomic.LoadUint32(m.reg(offset))
}

func (m *Mapping) Store32(offset uintptr, data uint32) {
	atomic.StoreUint32(m.reg(offset), data)
}

// CheckRegAddr panics on a misaligned or out of window offset; both are
// programming errors, not device errors.
func CheckRegAddr(offset uintptr, size int) {
	if offset&3 != 0 || offset+4 > uintptr(size) {
		panic(fmt.Errorf("register offset 0x%x outside 0x%x byte window",
			offset, size))
	}
}
