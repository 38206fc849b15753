// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mei

import (
	"fmt"

	"github.com/platinasystems/log"
)

// Recv drains one complete response: an MEI header followed by exactly
// len(header) bytes of protocol header and len(rsp) bytes of data. The
// protocol header must be dword sized.
func (l *Link) Recv(header, rsp []byte) error {
	hdrWords := uint32(len(header) / 4)
	rspWords := Words(len(rsp))
	expected := 1 + hdrWords + rspWords

	if err := l.WaitReady(); err != nil {
		return err
	}

	// The interrupt status bit does not show that the message has
	// arrived, so wait for the expected number of dwords instead.
	var avail uint32
	if !l.Poller.Poll(func() bool {
		avail = l.MECSR().Pending()
		return avail >= expected
	}) {
		log.Printf("err", "ME: timeout waiting for data: expected %d, available %d",
			expected, avail)
		return fmt.Errorf("%w: expected %d, available %d",
			ErrTimeout, expected, avail)
	}

	h := Header(l.ReadWord())
	if !h.Complete() {
		err := &DesyncError{Reason: "response is not complete"}
		log.Print("err", "ME: ", err)
		return err
	}
	if n := h.Words(); n != expected-1 {
		err := &DesyncError{
			Reason: "response is missing data",
			Got:    n,
			Want:   expected - 1,
		}
		log.Print("err", "ME: ", err)
		return err
	}

	for i := uint32(0); i < hdrWords; i++ {
		put(header, i, l.ReadWord())
	}
	for i := uint32(0); i < rspWords; i++ {
		put(rsp, i, l.ReadWord())
	}

	// Tell the ME that we have consumed the response.
	csr := l.HostCSR()
	l.SetHostCSR(csr | IntStatus | IntGenerate)

	return l.WaitReady()
}

// put stores v little endian at dword i of b, truncated to len(b).
func put(b []byte, i uint32, v uint32) {
	for j := uint32(0); j < 4 && 4*i+j < uint32(len(b)); j++ {
		b[4*i+j] = byte(v >> (8 * j))
	}
}
