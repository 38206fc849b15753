// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mei_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/platinasystems/mei/internal/sim"
	"github.com/platinasystems/mei/mei"
)

var fast = mei.Poller{Retries: 20, Sleep: func(time.Duration) {}}

func newLink(depth uint8) (*mei.Link, *sim.Controller) {
	c := sim.New(depth)
	l := mei.New(c)
	l.Poller = fast
	l.Setup()
	return l, c
}

// csrLog records host CSR writes.
type csrLog struct {
	*sim.Controller
	writes []mei.CSR
}

func (w *csrLog) Store32(offset uintptr, v uint32) {
	if offset == mei.HostCSR {
		w.writes = append(w.writes, mei.CSR(v))
	}
	w.Controller.Store32(offset, v)
}

func TestSetup(t *testing.T) {
	_, c := newLink(16)
	if c.Interrupts != 1 {
		t.Error("setup did not interrupt the ME")
	}
}

func TestReset(t *testing.T) {
	w := &csrLog{Controller: sim.New(16)}
	l := mei.New(w)
	l.Poller = fast
	if err := l.Reset(); err != nil {
		t.Fatal(err)
	}
	if len(w.writes) != 2 {
		t.Fatalf("%d CSR writes", len(w.writes))
	}
	if !w.writes[0].Has(mei.Reset | mei.IntGenerate) {
		t.Error("first write:", w.writes[0])
	}
	if w.writes[1].Has(mei.Reset) || !w.writes[1].Has(mei.Ready|mei.IntGenerate) {
		t.Error("second write:", w.writes[1])
	}
	if w.Resets != 1 {
		t.Error("resets", w.Resets)
	}
}

func TestResetNotReady(t *testing.T) {
	l, c := newLink(16)
	c.NotReady = true
	if err := l.Reset(); !errors.Is(err, mei.ErrNotReady) {
		t.Error("expected ErrNotReady, got", err)
	}
	if c.Resets != 0 {
		t.Error("reset asserted without a ready ME")
	}
}

func TestSendPacket(t *testing.T) {
	l, c := newLink(16)
	h := mei.NewHeader(mei.AddressMKHI, mei.HostAddress, 6, true)
	if err := l.SendPacket(h, []byte{1, 2, 3, 4, 5, 6}); err != nil {
		t.Fatal(err)
	}
	if len(c.Packets) != 1 {
		t.Fatalf("%d packets", len(c.Packets))
	}
	p := c.Packets[0]
	if p.Header != h || len(p.Data) != 2 ||
		p.Data[0] != 0x04030201 || p.Data[1] != 0x0605 {
		t.Errorf("packet %v % x", p.Header, p.Data)
	}
	if len(c.Messages) != 1 ||
		!bytes.Equal(c.Messages[0].Data, []byte{1, 2, 3, 4, 5, 6}) {
		t.Error("message not reassembled")
	}
}

func TestSendPacketNoData(t *testing.T) {
	l, _ := newLink(16)
	h := mei.NewHeader(mei.AddressMKHI, mei.HostAddress, 0, true)
	if err := l.SendPacket(h, nil); !errors.Is(err, mei.ErrNoData) {
		t.Error("expected ErrNoData, got", err)
	}
}

func TestSendPacketCapacity(t *testing.T) {
	l, c := newLink(2)
	h := mei.NewHeader(mei.AddressMKHI, mei.HostAddress, 8, true)
	err := l.SendPacket(h, make([]byte, 8))
	var ce *mei.CapacityError
	if !errors.As(err, &ce) || !errors.Is(err, mei.ErrCapacity) {
		t.Fatal("expected CapacityError, got", err)
	}
	if ce.Words != 3 || ce.Depth != 2 {
		t.Error(ce)
	}
	if c.Resets != 1 {
		t.Error("expected one reset attempt, got", c.Resets)
	}
	if len(c.Packets) != 0 {
		t.Error("oversized packet written")
	}
	// the link survives
	h = mei.NewHeader(mei.AddressMKHI, mei.HostAddress, 4, true)
	if err = l.SendPacket(h, make([]byte, 4)); err != nil {
		t.Error(err)
	}
}

func TestSendPacketResetsFullBuffer(t *testing.T) {
	l, c := newLink(8)
	h := mei.NewHeader(mei.AddressMKHI, mei.HostAddress, 16, true)
	for i := 0; i < 2; i++ {
		if err := l.SendPacket(h, make([]byte, 16)); err != nil {
			t.Fatal(i, err)
		}
	}
	if c.Resets != 1 {
		t.Error("expected a reset before the second packet, got", c.Resets)
	}
	if c.Overflows != 0 {
		t.Error("host buffer overflowed")
	}
}

func TestSendData(t *testing.T) {
	for _, tc := range []struct {
		depth uint8
		n     int
		min   int
	}{
		{4, 20, 2},
		{16, 20, 1},
		{16, 60, 1},
		{16, 61, 2},
		{128, 1000, 2},
		{8, 333, 12},
	} {
		l, c := newLink(tc.depth)
		data := make([]byte, tc.n)
		for i := range data {
			data[i] = byte(i * 7)
		}
		if err := l.SendData(mei.AddressICC, mei.HostAddress, data); err != nil {
			t.Fatalf("depth %d, %d bytes: %v", tc.depth, tc.n, err)
		}
		sum := 0
		for i, p := range c.Packets {
			sum += p.Header.Length()
			if last := i == len(c.Packets)-1; p.Header.Complete() != last {
				t.Errorf("depth %d, %d bytes: packet %d complete %t",
					tc.depth, tc.n, i, p.Header.Complete())
			}
			if p.Header.Client() != mei.AddressICC {
				t.Error("wrong client", p.Header)
			}
		}
		if sum != tc.n || len(c.Packets) < tc.min {
			t.Errorf("depth %d, %d bytes: %d packets summing %d",
				tc.depth, tc.n, len(c.Packets), sum)
		}
		if len(c.Messages) != 1 || !bytes.Equal(c.Messages[0].Data, data) {
			t.Errorf("depth %d, %d bytes: reassembly failed", tc.depth, tc.n)
		}
	}
}

func TestSendDataNoRoom(t *testing.T) {
	l, _ := newLink(1)
	err := l.SendData(mei.AddressICC, mei.HostAddress, make([]byte, 8))
	if !errors.Is(err, mei.ErrCapacity) {
		t.Error("expected ErrCapacity, got", err)
	}
}

func TestSendHeaderTooLong(t *testing.T) {
	l, c := newLink(255)
	err := l.SendHeader(mei.AddressMKHI, mei.HostAddress, make([]byte, 600), true)
	if !errors.Is(err, mei.ErrCapacity) {
		t.Error("expected ErrCapacity, got", err)
	}
	if len(c.Packets) != 0 {
		t.Error("truncated header sent")
	}
}

func TestRecv(t *testing.T) {
	l, c := newLink(16)
	c.Queue(sim.Reply(mei.AddressMKHI, []byte{
		0xff, 0x8c, 0, 0, // protocol header
		1, 2, 3, 4, 5, 6, 7, 8,
	})...)
	interrupts := c.Interrupts
	hdr := make([]byte, 4)
	rsp := make([]byte, 8)
	if err := l.Recv(hdr, rsp); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(hdr, []byte{0xff, 0x8c, 0, 0}) ||
		!bytes.Equal(rsp, []byte{1, 2, 3, 4, 5, 6, 7, 8}) {
		t.Errorf("hdr % x rsp % x", hdr, rsp)
	}
	if c.Interrupts != interrupts+1 {
		t.Error("response not acknowledged")
	}
	if c.Unread() != 0 {
		t.Error("unread", c.Unread())
	}
}

func TestRecvTimeout(t *testing.T) {
	l, c := newLink(16)
	c.Queue(sim.Reply(mei.AddressMKHI, []byte{0, 0, 0, 0})...)
	err := l.Recv(make([]byte, 4), make([]byte, 4))
	if !errors.Is(err, mei.ErrTimeout) {
		t.Error("expected ErrTimeout, got", err)
	}
}

func TestRecvNotComplete(t *testing.T) {
	l, c := newLink(16)
	c.Queue(uint32(mei.NewHeader(mei.AddressMKHI, 0, 8, false)), 0, 0)
	err := l.Recv(make([]byte, 4), make([]byte, 4))
	var de *mei.DesyncError
	if !errors.As(err, &de) || !errors.Is(err, mei.ErrDesync) {
		t.Fatal("expected DesyncError, got", err)
	}
}

func TestRecvLengthMismatch(t *testing.T) {
	l, c := newLink(16)
	c.Queue(sim.Reply(mei.AddressMKHI, make([]byte, 12))...)
	err := l.Recv(make([]byte, 4), make([]byte, 4))
	var de *mei.DesyncError
	if !errors.As(err, &de) {
		t.Fatal("expected DesyncError, got", err)
	}
	if de.Got != 3 || de.Want != 2 {
		t.Error(de)
	}
}

func TestWordsPending(t *testing.T) {
	l, c := newLink(16)
	c.Queue(1, 2, 3)
	if n := l.WordsPending(); n != 3 {
		t.Error("pending", n)
	}
	c.NotReady = true
	if n := l.WordsPending(); n != 0 {
		t.Error("pending while not ready", n)
	}
}
