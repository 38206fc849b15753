// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mei moves messages between the host and the Management Engine
// over the pair of memory-mapped circular buffers of the ME interface.
//
// The link is half duplex: the host sends one logical message, split in
// as many packets as the host buffer requires, then drains one response.
// Every wait is a bounded poll; nothing here blocks indefinitely.
package mei

import (
	"github.com/platinasystems/log"
	"github.com/platinasystems/mei/hw"
)

// Link is one host side of the ME interface, bound to its register window
// for the duration of a boot phase.
type Link struct {
	W      hw.Window
	Poller Poller
	// Debug traces every register access.
	Debug bool
}

func New(w hw.Window) *Link { return &Link{W: w} }

func (l *Link) dump(op string, offset uintptr, v uint32) {
	if !l.Debug {
		return
	}
	switch offset {
	case HostCSR, MECSR:
		log.Printf("debug", "%-9s[%02x] : %v", op, offset, CSR(v))
	default:
		log.Printf("debug", "%-9s[%02x] : CB: 0x%08x", op, offset, v)
	}
}

func (l *Link) load(offset uintptr) uint32 {
	v := l.W.Load32(offset)
	l.dump("READ", offset, v)
	return v
}

func (l *Link) store(offset uintptr, v uint32) {
	l.W.Store32(offset, v)
	l.dump("WRITE", offset, v)
}

func (l *Link) HostCSR() CSR     { return CSR(l.load(HostCSR)) }
func (l *Link) MECSR() CSR       { return CSR(l.load(MECSR)) }
func (l *Link) SetHostCSR(c CSR) { l.store(HostCSR, uint32(c)) }

// ReadWord pops one dword from the ME circular buffer.
func (l *Link) ReadWord() uint32 { return l.load(MECBRW) }

func (l *Link) writeWord(v uint32) { l.store(HostCBWW, v) }

// WaitReady polls for the ME ready bit.
func (l *Link) WaitReady() error {
	if l.Poller.Poll(func() bool { return l.MECSR().Has(Ready) }) {
		return nil
	}
	log.Print("err", "ME: failed to become ready")
	return ErrNotReady
}

// Setup clears any stale reset and tells the ME the host is ready.
func (l *Link) Setup() {
	csr := l.HostCSR()
	l.SetHostCSR(csr&^Reset | IntGenerate | Ready)
}

// Reset rewinds both circular buffers and re-synchronizes with the ME.
func (l *Link) Reset() error {
	if err := l.WaitReady(); err != nil {
		return err
	}
	csr := l.HostCSR()
	l.SetHostCSR(csr | Reset | IntGenerate)
	if err := l.WaitReady(); err != nil {
		return err
	}
	csr = l.HostCSR()
	l.SetHostCSR(csr&^Reset | IntGenerate | Ready)
	return nil
}

// AssertReset holds the host buffer in reset without waiting for the ME;
// used to abandon a transfer.
func (l *Link) AssertReset() {
	csr := l.HostCSR()
	l.SetHostCSR(csr | Reset | IntGenerate)
}

// Interrupt raises interrupt-generate to the ME.
func (l *Link) Interrupt() {
	csr := l.HostCSR()
	l.SetHostCSR(csr | IntGenerate)
}

// WordsPending is the number of dwords the ME has queued for the host; zero
// while the ME is not ready.
func (l *Link) WordsPending() uint32 {
	csr := l.MECSR()
	if !csr.Has(Ready) {
		return 0
	}
	return csr.Pending()
}
