// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mkhi_test

import (
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/platinasystems/mei/internal/sim"
	"github.com/platinasystems/mei/mei"
	"github.com/platinasystems/mei/mkhi"
)

func TestHeaderBits(t *testing.T) {
	h := mkhi.NewHeader(mkhi.GroupGen, mkhi.CmdEndOfPost)
	if uint32(h) != 0x00000cff {
		t.Errorf("0x%08x", uint32(h))
	}
	h = h.Response().WithResult(3)
	if uint32(h) != 0x03008cff {
		t.Errorf("0x%08x", uint32(h))
	}
	if h.Group() != 0xff || h.Command() != 0x0c || !h.IsResponse() || h.Result() != 3 {
		t.Error("wrong decode:", h)
	}
	if mkhi.NewHeader(1, 0xff).Command() != 0x7f {
		t.Error("command not masked to 7 bits")
	}
}

func TestCorrelate(t *testing.T) {
	req := mkhi.NewHeader(mkhi.GroupFWCaps, mkhi.CmdFWCapsGetRule)
	for _, tc := range []struct {
		name string
		rsp  mkhi.Header
		ok   bool
	}{
		{"echo", req.Response(), true},
		{"echo with result", req.Response().WithResult(1), true},
		{"not response", req, false},
		{"wrong group", mkhi.NewHeader(mkhi.GroupGen, mkhi.CmdFWCapsGetRule).Response(), false},
		{"wrong command", mkhi.NewHeader(mkhi.GroupFWCaps, mkhi.CmdEndOfPost).Response(), false},
	} {
		err := mkhi.Correlate(req, tc.rsp)
		if (err == nil) != tc.ok {
			t.Errorf("%s: %v", tc.name, err)
		}
		if err != nil && !errors.Is(err, mei.ErrDesync) {
			t.Errorf("%s: %v is not a desync", tc.name, err)
		}
	}
}

// controller answers MKHI requests with rsp(req header, request data).
func controller(rsp func(h mkhi.Header, data []byte) []byte) (*mei.Link, *sim.Controller) {
	c := sim.New(16)
	c.Handler = func(m sim.Message) []uint32 {
		if m.Client != mei.AddressMKHI || len(m.Data) < 4 {
			return nil
		}
		h := mkhi.Header(binary.LittleEndian.Uint32(m.Data))
		b := rsp(h, m.Data[4:])
		if b == nil {
			return nil
		}
		return sim.Reply(mei.AddressMKHI, b)
	}
	l := mei.New(c)
	l.Poller = mei.Poller{Retries: 10, Sleep: func(time.Duration) {}}
	l.Setup()
	return l, c
}

func TestFireAndForget(t *testing.T) {
	l, c := controller(func(h mkhi.Header, _ []byte) []byte {
		return append(h.Response().Bytes(), 1, 0, 0, 0)
	})
	err := mkhi.SendRecv(l, mkhi.NewHeader(mkhi.GroupGen, mkhi.CmdEndOfPost), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Packets) != 1 {
		t.Fatalf("%d packets", len(c.Packets))
	}
	p := c.Packets[0]
	if p.Header.Length() != 4 || !p.Header.Complete() ||
		p.Header.Client() != mei.AddressMKHI || len(p.Data) != 1 {
		t.Error("packet", p.Header)
	}
	// the response is still queued: nothing was received
	if c.Unread() != 3 {
		t.Error("receiver ran; unread", c.Unread())
	}
}

func TestGetFWCaps(t *testing.T) {
	var rule []byte
	l, c := controller(func(h mkhi.Header, data []byte) []byte {
		rule = data
		b := h.Response().Bytes()
		b = append(b, 0, 0, 0, 0, 4, 0x27, 0x10, 0x40, 0x00, 0, 0, 0)
		return b
	})
	caps, err := mkhi.GetFWCaps(l)
	if err != nil {
		t.Fatal(err)
	}
	if caps != 0x00401027 {
		t.Errorf("caps 0x%08x", caps)
	}
	if len(rule) != 4 || binary.LittleEndian.Uint32(rule) != mkhi.FWCapsRuleID {
		t.Errorf("rule % x", rule)
	}
	if len(c.Packets) != 2 || c.Packets[0].Header.Complete() ||
		!c.Packets[1].Header.Complete() {
		t.Error("expected header then data packet")
	}
}

func TestGetFWCapsMismatch(t *testing.T) {
	l, _ := controller(func(h mkhi.Header, _ []byte) []byte {
		b := mkhi.NewHeader(mkhi.GroupGen, h.Command()).Response().Bytes()
		return append(b, make([]byte, 12)...)
	})
	_, err := mkhi.GetFWCaps(l)
	var re *mkhi.ResponseError
	if !errors.As(err, &re) {
		t.Fatal("expected ResponseError, got", err)
	}
	if re.Rsp.Group() != mkhi.GroupGen {
		t.Error(re)
	}
}

func TestEndOfPost(t *testing.T) {
	l, _ := controller(func(h mkhi.Header, data []byte) []byte {
		if len(data) != 0 {
			return nil
		}
		return append(h.Response().Bytes(), 7, 0, 0, 0)
	})
	ack, err := mkhi.EndOfPost(l)
	if err != nil {
		t.Fatal(err)
	}
	if ack != 7 {
		t.Error("ack", ack)
	}
}

func TestEndOfPostNoAnswer(t *testing.T) {
	l, _ := controller(func(mkhi.Header, []byte) []byte { return nil })
	if _, err := mkhi.EndOfPost(l); !errors.Is(err, mei.ErrTimeout) {
		t.Error("expected timeout, got", err)
	}
}
