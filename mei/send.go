// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mei

import (
	"fmt"

	"github.com/platinasystems/log"
)

// maxSegment is the largest dword aligned packet payload.
const maxSegment = MaxLength &^ 3

// word returns the i'th little endian dword of b, zero padded.
func word(b []byte, i int) (v uint32) {
	for j := 0; j < 4 && 4*i+j < len(b); j++ {
		v |= uint32(b[4*i+j]) << uint(8*j)
	}
	return
}

// SendPacket writes one header and its payload to the host buffer, raises
// interrupt-generate and waits for the ME to acknowledge with ready.
func (l *Link) SendPacket(h Header, data []byte) error {
	ndata := h.Words()
	if ndata == 0 {
		log.Print("debug", "ME: request has no data")
		return ErrNoData
	}
	if n := h.Length(); n < len(data) {
		data = data[:n]
	}
	ndata++

	csr := l.HostCSR()
	if csr.Room() < ndata {
		log.Print("err", "ME: circular buffer full, resetting...")
		l.Reset()
		csr = l.HostCSR()
	}
	if room := csr.Room(); room < ndata {
		err := &CapacityError{Words: ndata, Room: room, Depth: uint32(csr.Depth())}
		log.Print("err", "ME: ", err)
		return err
	}

	l.writeWord(uint32(h))
	for i := 0; i < int(ndata)-1; i++ {
		l.writeWord(word(data, i))
	}

	l.Interrupt()
	return l.WaitReady()
}

// Segment sizes the next packet of a message with remain bytes left to
// send when the host buffer has room dwords free.
func Segment(remain int, room uint32) (length int, complete bool) {
	max := 0
	if room > 1 {
		max = int(room-1) * 4
	}
	if max > maxSegment {
		max = maxSegment
	}
	if remain <= max {
		return remain, true
	}
	return max, false
}

// SendData sends data as one logical message, in as many packets as the
// host buffer needs; only the last packet is marked complete.
func (l *Link) SendData(client, host uint8, data []byte) error {
	for cur, complete := 0, false; !complete; {
		room := l.HostCSR().Room()
		if room < 2 {
			l.Reset()
			room = l.HostCSR().Room()
		}
		var length int
		length, complete = Segment(len(data)-cur, room)
		if length == 0 && !complete {
			return &CapacityError{Words: Words(len(data) - cur), Room: room}
		}
		h := NewHeader(client, host, length, complete)
		if err := l.SendPacket(h, data[cur:cur+length]); err != nil {
			return fmt.Errorf("packet at %d of %d bytes: %w", cur, len(data), err)
		}
		cur += length
	}
	return nil
}

// SendHeader sends a protocol header as a single packet.
func (l *Link) SendHeader(client, host uint8, header []byte, complete bool) error {
	h, err := EncodeHeader(client, host, len(header), complete)
	if err != nil {
		return err
	}
	return l.SendPacket(h, header)
}
