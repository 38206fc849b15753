// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package sim is a Management Engine stand-in: it serves the MEI register
// window and the PCI configuration space of the ME function so the host
// side can be exercised without hardware.
package sim

import (
	"fmt"

	"github.com/platinasystems/mei/hw"
	"github.com/platinasystems/mei/mei"
)

// Config space registers the controller reacts to.
const (
	HFS   uint = 0x40
	HFS2  uint = 0x48
	HGS2  uint = 0x70
	HERES uint = 0xbc

	hfs2MbpReady   uint32 = 1 << 5
	hfs2MbpCleared uint32 = 1 << 13
	hgs2MbpGiveUp  uint32 = 1
)

// Packet is one packet as written by the host.
type Packet struct {
	Header mei.Header
	Data   []uint32
}

// Message is a reassembled logical host message.
type Message struct {
	Client, Host uint8
	Data         []byte
}

// Controller implements hw.Window and pci.Function.
type Controller struct {
	Depth uint8
	// NotReady holds the ME ready bit low.
	NotReady bool
	// MbpNeverClears keeps HFS2.mbp_cleared low after the MBP is read.
	MbpNeverClears bool

	// Handler returns the raw dwords, MEI header included, queued in
	// reply to a complete host message.
	Handler func(m Message) []uint32

	Cfg        map[uint]uint32
	Base, Size uint64

	Packets    []Packet
	Messages   []Message
	Resets     int
	Interrupts int
	GiveUps    int
	Overflows  int
	Underflows int

	hostFlags  mei.CSR
	hostRP     uint8
	hostWP     uint8
	inbox      []uint32
	assembling []byte
	outbox     []uint32
	meRP       uint8
	mbpQueued  bool
}

func New(depth uint8) *Controller {
	return &Controller{
		Depth: depth,
		Cfg:   make(map[uint]uint32),
		Base:  0xfed1a000,
		Size:  0x10,
	}
}

// Reply frames data as a single complete ME to host message.
func Reply(client uint8, data []byte) []uint32 {
	words := []uint32{uint32(mei.NewHeader(client, mei.HostAddress, len(data), true))}
	for i := 0; i < len(data); i += 4 {
		var v uint32
		for j := 0; j < 4 && i+j < len(data); j++ {
			v |= uint32(data[i+j]) << uint(8*j)
		}
		words = append(words, v)
	}
	return words
}

// Queue appends raw dwords to the ME to host buffer.
func (c *Controller) Queue(words ...uint32) { c.outbox = append(c.outbox, words...) }

// QueueMBP pushes a boot payload and flags it ready in HFS2.
func (c *Controller) QueueMBP(words ...uint32) {
	c.Queue(words...)
	c.mbpQueued = true
	c.Cfg[HFS2] |= hfs2MbpReady
}

// Unread is the number of queued dwords the host has not read.
func (c *Controller) Unread() int { return len(c.outbox) }

func (c *Controller) mod(n int) uint8 {
	if c.Depth == 0 {
		return 0
	}
	return uint8(n % int(c.Depth))
}

func (c *Controller) Load32(offset uintptr) uint32 {
	hw.CheckRegAddr(offset, 0x10)
	switch offset {
	case mei.HostCSR:
		return uint32(mei.MakeCSR(c.Depth, c.hostRP, c.hostWP, c.hostFlags))
	case mei.MECSR:
		var flags mei.CSR
		if !c.NotReady {
			flags |= mei.Ready
		}
		wp := c.mod(int(c.meRP) + len(c.outbox))
		return uint32(mei.MakeCSR(c.Depth, c.meRP, wp, flags))
	case mei.MECBRW:
		if len(c.outbox) == 0 {
			c.Underflows++
			return 0
		}
		v := c.outbox[0]
		c.outbox = c.outbox[1:]
		c.meRP = c.mod(int(c.meRP) + 1)
		return v
	}
	return 0
}

func (c *Controller) Store32(offset uintptr, v uint32) {
	hw.CheckRegAddr(offset, 0x10)
	switch offset {
	case mei.HostCBWW:
		if len(c.inbox) >= int(c.Depth) {
			c.Overflows++
		}
		c.inbox = append(c.inbox, v)
		c.hostWP = c.mod(int(c.hostWP) + 1)
	case mei.HostCSR:
		csr := mei.CSR(v)
		c.hostFlags = csr & (mei.IntEnable | mei.Ready | mei.Reset)
		if csr.Has(mei.Reset) {
			c.reset()
			return
		}
		if csr.Has(mei.IntGenerate) {
			c.Interrupts++
			c.process()
		}
	}
}

func (c *Controller) reset() {
	c.Resets++
	c.inbox = nil
	c.assembling = nil
	c.outbox = nil
	c.hostRP, c.hostWP, c.meRP = 0, 0, 0
}

func (c *Controller) process() {
	for len(c.inbox) > 0 {
		h := mei.Header(c.inbox[0])
		n := int(h.Words())
		if 1+n > len(c.inbox) {
			break
		}
		p := Packet{Header: h, Data: append([]uint32(nil), c.inbox[1:1+n]...)}
		c.inbox = c.inbox[1+n:]
		c.Packets = append(c.Packets, p)
		for i := 0; i < h.Length(); i++ {
			c.assembling = append(c.assembling, byte(p.Data[i/4]>>uint(8*(i%4))))
		}
		if !h.Complete() {
			continue
		}
		m := Message{Client: h.Client(), Host: h.Host(), Data: c.assembling}
		c.assembling = nil
		c.Messages = append(c.Messages, m)
		if c.Handler != nil {
			c.Queue(c.Handler(m)...)
		}
	}
	c.hostRP = c.hostWP
	if c.mbpQueued && len(c.outbox) == 0 {
		c.mbpQueued = false
		if !c.MbpNeverClears {
			c.Cfg[HFS2] |= hfs2MbpCleared
		}
	}
}

func (c *Controller) ReadConfig32(offset uint) (uint32, error) {
	if offset&3 != 0 || offset > 0xfc {
		return 0, fmt.Errorf("config 0x%x: bad offset", offset)
	}
	return c.Cfg[offset], nil
}

func (c *Controller) WriteConfig32(offset uint, v uint32) error {
	if offset&3 != 0 || offset > 0xfc {
		return fmt.Errorf("config 0x%x: bad offset", offset)
	}
	if offset == HGS2 && v == hgs2MbpGiveUp {
		c.GiveUps++
	}
	c.Cfg[offset] = v
	return nil
}

func (c *Controller) Resource(bar int) (base, size uint64, err error) {
	if bar != 0 {
		return 0, 0, nil
	}
	return c.Base, c.Size, nil
}

// Map returns the controller itself as the register window at base.
func (c *Controller) Map(base, size uint64) (hw.Window, error) {
	if base != c.Base {
		return nil, fmt.Errorf("no window at 0x%x", base)
	}
	return c, nil
}
