// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mbp

import "fmt"

type FwVersion struct {
	Major, Minor, Hotfix, Build uint16
}

func (v *FwVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Hotfix, v.Build)
}

// FwCaps is the firmware capabilities SKU bitmap.
type FwCaps uint32

const (
	CapFullNet         FwCaps = 1 << 0
	CapStdNet          FwCaps = 1 << 1
	CapManageability   FwCaps = 1 << 2
	CapIntelAT         FwCaps = 1 << 5
	CapIntelCLS        FwCaps = 1 << 6
	CapIntelMPC        FwCaps = 1 << 10
	CapIccOverClocking FwCaps = 1 << 11
	CapPAVP            FwCaps = 1 << 12
	CapIPv6            FwCaps = 1 << 17
	CapKVM             FwCaps = 1 << 18
	CapOCH             FwCaps = 1 << 19
	CapVLAN            FwCaps = 1 << 20
	CapTLS             FwCaps = 1 << 21
	CapWLAN            FwCaps = 1 << 23
)

// CapNames lists the capabilities in report order.
var CapNames = []struct {
	Cap  FwCaps
	Name string
}{
	{CapFullNet, "Full Network manageability"},
	{CapStdNet, "Regular Network manageability"},
	{CapManageability, "Manageability"},
	{CapIntelAT, "IntelR Anti-Theft (AT)"},
	{CapIntelCLS, "IntelR Capability Licensing Service (CLS)"},
	{CapIntelMPC, "IntelR Power Sharing Technology (MPC)"},
	{CapIccOverClocking, "ICC Over Clocking"},
	{CapPAVP, "Protected Audio Video Path (PAVP)"},
	{CapIPv6, "IPV6"},
	{CapKVM, "KVM Remote Control (KVM)"},
	{CapOCH, "Outbreak Containment Heuristic (OCH)"},
	{CapVLAN, "Virtual LAN (VLAN)"},
	{CapTLS, "TLS"},
	{CapWLAN, "Wireless LAN (WLAN)"},
}

func (c FwCaps) Has(cap FwCaps) bool { return c&cap == cap }

// PlatTime is boot timing in milliseconds.
type PlatTime struct {
	WakeEventMrst uint32
	MrstPltrst    uint32
	PltrstCpurst  uint32
}

type FwPlatType uint32

const (
	PlatMobile FwPlatType = 1 << iota
	PlatDesktop
	PlatServer
	PlatWorkstation
	PlatCorporate
	PlatConsumer
	PlatRegularSuperSKU
)

func (t FwPlatType) Has(bit FwPlatType) bool { return t&bit != 0 }
func (t FwPlatType) ImageType() uint8        { return uint8(t>>8) & 0xf }
func (t FwPlatType) Brand() uint8            { return uint8(t>>12) & 0xf }

type IccProfile struct {
	NumProfiles uint8
	SoftStrap   uint8
	Index       uint8
	RegLockMask [3]uint32
}

type ATState struct {
	State            uint8
	LastTheftTrigger uint8
	LockState        uint8
	AppState         uint8
}

type PlatKey [8]uint32

type RomBist struct {
	DeviceID      uint16
	FuseTestFlags uint16
	UMCHID        [4]uint32
}

type MfsIntegrity uint32

type NfcData uint32

// Item is one raw item of the payload; Data excludes the item header.
type Item struct {
	Header ItemHeader
	Offset int
	Data   []uint32
}

// Payload holds the decoded items. Absent items are nil.
type Payload struct {
	Header Header
	// Words are the size-1 dwords following the header.
	Words []uint32
	Items []Item

	FwVersion    *FwVersion
	FwCaps       *FwCaps
	RomBist      *RomBist
	PlatKey      *PlatKey
	FwPlatType   *FwPlatType
	MfsIntegrity *MfsIntegrity
	PlatTime     *PlatTime
	IccProfile   *IccProfile
	ATState      *ATState
	NfcData      *NfcData
	// Unknown items are kept but not decoded.
	Unknown []Item
}

func lo(v uint32) uint16 { return uint16(v) }
func hi(v uint32) uint16 { return uint16(v >> 16) }

type decoder struct {
	words  int
	decode func(p *Payload, d []uint32)
}

var decoders = map[Ident]decoder{
	MakeIdent(AppKernel, KernelFwVer): {2, func(p *Payload, d []uint32) {
		p.FwVersion = &FwVersion{
			Major:  lo(d[0]),
			Minor:  hi(d[0]),
			Hotfix: lo(d[1]),
			Build:  hi(d[1]),
		}
	}},
	MakeIdent(AppKernel, KernelFwCap): {1, func(p *Payload, d []uint32) {
		c := FwCaps(d[0])
		p.FwCaps = &c
	}},
	MakeIdent(AppKernel, KernelRomBist): {5, func(p *Payload, d []uint32) {
		b := &RomBist{DeviceID: lo(d[0]), FuseTestFlags: hi(d[0])}
		copy(b.UMCHID[:], d[1:5])
		p.RomBist = b
	}},
	MakeIdent(AppKernel, KernelPlatKey): {8, func(p *Payload, d []uint32) {
		k := new(PlatKey)
		copy(k[:], d)
		p.PlatKey = k
	}},
	MakeIdent(AppKernel, KernelFwType): {1, func(p *Payload, d []uint32) {
		t := FwPlatType(d[0])
		p.FwPlatType = &t
	}},
	MakeIdent(AppKernel, KernelMfsFailure): {1, func(p *Payload, d []uint32) {
		m := MfsIntegrity(d[0])
		p.MfsIntegrity = &m
	}},
	MakeIdent(AppKernel, KernelPlatTime): {3, func(p *Payload, d []uint32) {
		p.PlatTime = &PlatTime{
			WakeEventMrst: d[0],
			MrstPltrst:    d[1],
			PltrstCpurst:  d[2],
		}
	}},
	MakeIdent(AppICC, ICCProfile): {4, func(p *Payload, d []uint32) {
		ip := &IccProfile{
			NumProfiles: uint8(d[0]),
			SoftStrap:   uint8(d[0] >> 8),
			Index:       uint8(d[0] >> 16),
		}
		copy(ip.RegLockMask[:], d[1:4])
		p.IccProfile = ip
	}},
	MakeIdent(AppIntelAT, IntelATState): {1, func(p *Payload, d []uint32) {
		p.ATState = &ATState{
			State:            uint8(d[0]),
			LastTheftTrigger: uint8(d[0] >> 8),
			LockState:        uint8(d[0] >> 16),
			AppState:         uint8(d[0] >> 24),
		}
	}},
	MakeIdent(AppNFC, NFCSupportData): {1, func(p *Payload, d []uint32) {
		n := NfcData(d[0])
		p.NfcData = &n
	}},
}
