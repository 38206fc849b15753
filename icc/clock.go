// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package icc

import (
	"encoding/binary"
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/mei/mei"
)

// ClockEnables gates the clocks selected by Mask to the state in Enables.
type ClockEnables struct {
	Enables    uint32
	Mask       uint32
	NoResponse bool
}

const clockEnablesLen = 12

func (m *ClockEnables) Bytes() []byte {
	b := make([]byte, clockEnablesLen)
	binary.LittleEndian.PutUint32(b[0:], m.Enables)
	binary.LittleEndian.PutUint32(b[4:], m.Mask)
	if m.NoResponse {
		b[8] = 1
	}
	return b
}

// SetClockEnables turns off the clocks in mask. The ME is told not to
// answer, so nothing is received.
func SetClockEnables(l *mei.Link, mask uint32) error {
	msg := &ClockEnables{
		Enables:    0,
		Mask:       mask,
		NoResponse: true,
	}
	req := &Header{
		APIVersion: APIVersionLynxPoint,
		Command:    CmdSetClockEnables,
		Length:     clockEnablesLen,
	}
	if err := SendRecv(l, req, msg.Bytes(), nil); err != nil {
		log.Print("err", "ME: ICC SET CLOCK ENABLES message failed")
		return fmt.Errorf("icc set clock enables: %w", err)
	}
	log.Printf("info", "ME: ICC SET CLOCK ENABLES 0x%08x", mask)
	return nil
}
