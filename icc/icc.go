// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package icc is the integrated clock control client of the ME.
package icc

import (
	"encoding/binary"
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/mei/mei"
)

const APIVersionLynxPoint uint32 = 0x00030000

const CmdSetClockEnables uint32 = 0x3

// HeaderLen is five dwords.
const HeaderLen = 20

type Header struct {
	APIVersion uint32
	Command    uint32
	Status     uint32
	Length     uint32
	Reserved   uint32
}

func (h *Header) Bytes() []byte {
	b := make([]byte, HeaderLen)
	for i, v := range []uint32{h.APIVersion, h.Command, h.Status,
		h.Length, h.Reserved} {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}

// Parse decodes the first HeaderLen bytes of b.
func Parse(b []byte) (h Header, err error) {
	if len(b) < HeaderLen {
		err = fmt.Errorf("icc header: %d bytes, want %d", len(b), HeaderLen)
		return
	}
	h.APIVersion = binary.LittleEndian.Uint32(b[0:])
	h.Command = binary.LittleEndian.Uint32(b[4:])
	h.Status = binary.LittleEndian.Uint32(b[8:])
	h.Length = binary.LittleEndian.Uint32(b[12:])
	h.Reserved = binary.LittleEndian.Uint32(b[16:])
	return
}

func (h Header) String() string {
	return fmt.Sprintf("api 0x%08x command %d status %d length %d",
		h.APIVersion, h.Command, h.Status, h.Length)
}

// ResponseError is a well framed response that does not answer the request.
type ResponseError struct {
	Req, Rsp Header
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("invalid response, api 0x%08x ?= 0x%08x, command %d ?= %d",
		e.Req.APIVersion, e.Rsp.APIVersion, e.Req.Command, e.Rsp.Command)
}

func (e *ResponseError) Unwrap() error { return mei.ErrDesync }

// Correlate checks that rsp echoes the api version and command of req.
func Correlate(req, rsp Header) error {
	if req.APIVersion != rsp.APIVersion || req.Command != rsp.Command {
		return &ResponseError{Req: req, Rsp: rsp}
	}
	return nil
}

// SendRecv sends the header, then data if any, then drains a response of
// exactly len(rsp) bytes. Nothing is read when rsp is empty.
func SendRecv(l *mei.Link, req *Header, data, rsp []byte) error {
	err := l.SendHeader(mei.AddressICC, mei.HostAddress, req.Bytes(),
		len(data) == 0)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		err = l.SendData(mei.AddressICC, mei.HostAddress, data)
		if err != nil {
			return err
		}
	}
	if len(rsp) == 0 {
		return nil
	}
	b := make([]byte, HeaderLen)
	if err = l.Recv(b, rsp); err != nil {
		return err
	}
	h, _ := Parse(b)
	if err = Correlate(*req, h); err != nil {
		log.Print("err", "ME: ", err)
	}
	return err
}
