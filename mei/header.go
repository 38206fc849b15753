// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mei

import "fmt"

// Client addresses.
const (
	HostAddress uint8 = 0x00
	AddressCore uint8 = 0x01
	AddressAMT  uint8 = 0x02
	AddressWDT  uint8 = 0x04
	AddressMKHI uint8 = 0x07
	AddressICC  uint8 = 0x08
)

// Header is the one dword MEI packet header.
type Header uint32

const (
	hdrClientOff   = 0
	hdrHostOff     = 8
	hdrLengthOff   = 16
	hdrLength      = 0x1ff
	hdrCompleteOff = 31

	// MaxLength is the largest packet payload the length field can carry.
	MaxLength = hdrLength
)

func NewHeader(client, host uint8, length int, complete bool) Header {
	h := Header(client)<<hdrClientOff |
		Header(host)<<hdrHostOff |
		Header(length&hdrLength)<<hdrLengthOff
	if complete {
		h |= 1 << hdrCompleteOff
	}
	return h
}

// EncodeHeader is NewHeader for lengths not yet known to fit the field.
func EncodeHeader(client, host uint8, length int, complete bool) (Header, error) {
	if length < 0 || length > MaxLength {
		return 0, fmt.Errorf("length %d: %w", length, ErrCapacity)
	}
	return NewHeader(client, host, length, complete), nil
}

func (h Header) Client() uint8  { return uint8(h >> hdrClientOff) }
func (h Header) Host() uint8    { return uint8(h >> hdrHostOff) }
func (h Header) Length() int    { return int(h >> hdrLengthOff & hdrLength) }
func (h Header) Complete() bool { return h>>hdrCompleteOff&1 != 0 }

// Words is the payload length rounded up to whole dwords.
func (h Header) Words() uint32 { return Words(h.Length()) }

func Words(bytes int) uint32 { return uint32(bytes+3) / 4 }

func (h Header) String() string {
	return fmt.Sprintf("client=%d host=%d len=%d complete=%t",
		h.Client(), h.Host(), h.Length(), h.Complete())
}
