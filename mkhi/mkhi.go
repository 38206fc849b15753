// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package mkhi is the ME kernel host interface command client.
package mkhi

import (
	"encoding/binary"
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/mei/mei"
)

const (
	GroupCBM    uint8 = 0x00
	GroupFWCaps uint8 = 0x03
	GroupGen    uint8 = 0xff
)

const (
	// CmdGlobalReset (GroupCBM) is known but never issued; a rejected
	// reset would have to halt the host.
	CmdGlobalReset   uint8 = 0x0b
	CmdFWCapsGetRule uint8 = 0x02
	CmdEndOfPost     uint8 = 0x0c
)

// Header is the one dword MKHI header.
type Header uint32

const (
	hdrGroupOff    = 0
	hdrCommandOff  = 8
	hdrCommand     = 0x7f
	hdrResponseOff = 15
	hdrResultOff   = 24
)

func NewHeader(group, command uint8) Header {
	return Header(group)<<hdrGroupOff | Header(command&hdrCommand)<<hdrCommandOff
}

func (h Header) Group() uint8     { return uint8(h >> hdrGroupOff) }
func (h Header) Command() uint8   { return uint8(h >> hdrCommandOff & hdrCommand) }
func (h Header) IsResponse() bool { return h>>hdrResponseOff&1 != 0 }
func (h Header) Result() uint8    { return uint8(h >> hdrResultOff) }
func (h Header) Response() Header { return h | 1<<hdrResponseOff }
func (h Header) WithResult(r uint8) Header {
	return h&^(0xff<<hdrResultOff) | Header(r)<<hdrResultOff
}

func (h Header) Bytes() []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, uint32(h))
	return b
}

func (h Header) String() string {
	return fmt.Sprintf("group %d command %d is_response %t result %d",
		h.Group(), h.Command(), h.IsResponse(), h.Result())
}

// ResponseError is a well framed response that does not answer the request.
type ResponseError struct {
	Req, Rsp Header
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("invalid response, group %d ?= %d, command %d ?= %d, is_response %t",
		e.Req.Group(), e.Rsp.Group(), e.Req.Command(), e.Rsp.Command(),
		e.Rsp.IsResponse())
}

func (e *ResponseError) Unwrap() error { return mei.ErrDesync }

// Correlate checks that rsp answers req.
func Correlate(req, rsp Header) error {
	if !rsp.IsResponse() ||
		req.Group() != rsp.Group() ||
		req.Command() != rsp.Command() {
		return &ResponseError{Req: req, Rsp: rsp}
	}
	return nil
}

// SendRecv sends the header, then data if any, then drains a response of
// exactly len(rsp) bytes. No response is read when rsp is empty.
func SendRecv(l *mei.Link, req Header, data, rsp []byte) error {
	err := l.SendHeader(mei.AddressMKHI, mei.HostAddress, req.Bytes(),
		len(data) == 0)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		err = l.SendData(mei.AddressMKHI, mei.HostAddress, data)
		if err != nil {
			return err
		}
	}
	if len(rsp) == 0 {
		return nil
	}
	var b [4]byte
	if err = l.Recv(b[:], rsp); err != nil {
		return err
	}
	if err = Correlate(req, Header(binary.LittleEndian.Uint32(b[:]))); err != nil {
		log.Print("err", "ME: ", err)
	}
	return err
}
