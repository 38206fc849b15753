// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mkhi

import (
	"encoding/binary"
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/mei/mei"
)

// FWCapsRuleID selects the firmware capabilities SKU rule.
const FWCapsRuleID uint32 = 0

// fwCapsRspLen is rule id (4), rule data length (1), caps (4), reserved (3).
const fwCapsRspLen = 12

// GetFWCaps returns the raw firmware capabilities word.
func GetFWCaps(l *mei.Link) (uint32, error) {
	req := make([]byte, 4)
	binary.LittleEndian.PutUint32(req, FWCapsRuleID)
	rsp := make([]byte, fwCapsRspLen)
	err := SendRecv(l, NewHeader(GroupFWCaps, CmdFWCapsGetRule), req, rsp)
	if err != nil {
		log.Print("err", "ME: GET FWCAPS message failed")
		return 0, fmt.Errorf("get fwcaps: %w", err)
	}
	return binary.LittleEndian.Uint32(rsp[5:9]), nil
}

// EndOfPost tells the ME the host is done with POST; it stops accepting
// most other commands afterwards. Returns the ME acknowledgment.
func EndOfPost(l *mei.Link) (uint32, error) {
	log.Print("note", "ME: END OF POST")
	rsp := make([]byte, 4)
	if err := SendRecv(l, NewHeader(GroupGen, CmdEndOfPost), nil, rsp); err != nil {
		log.Print("err", "ME: END OF POST message failed")
		return 0, fmt.Errorf("end of post: %w", err)
	}
	ack := binary.LittleEndian.Uint32(rsp)
	log.Printf("info", "ME: END OF POST message successful (%d)", ack)
	return ack, nil
}
