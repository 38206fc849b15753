// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package me

import (
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/mei/mbp"
)

// Config space registers of the ME function.
const (
	CfgHFS   uint = 0x40
	CfgHFS2       = mbp.CfgHFS2
	CfgHGS2       = mbp.CfgHGS2
	CfgHERES uint = 0xbc
)

// CfgHER is the i'th extend register.
func CfgHER(i int) uint { return 0xc0 + 4*uint(i) }

// Working states.
const (
	WorkingReset   uint8 = 0
	WorkingInit    uint8 = 1
	WorkingRec     uint8 = 2
	WorkingNormal  uint8 = 5
	WorkingWait    uint8 = 6
	WorkingTrans   uint8 = 7
	WorkingInvalid uint8 = 8
)

// Operation modes.
const (
	ModeNormal   uint8 = 0
	ModeDebug    uint8 = 2
	ModeDisable  uint8 = 3
	ModeOverJmpr uint8 = 4
	ModeOverMei  uint8 = 5
)

var workingStates = [...]string{
	WorkingReset:   "Reset",
	WorkingInit:    "Initializing",
	WorkingRec:     "Recovery",
	WorkingNormal:  "Normal",
	WorkingWait:    "Disable Wait",
	WorkingTrans:   "OP State Transition",
	WorkingInvalid: "Invalid CPU plugged in",
}

var opStates = [...]string{
	0: "Preboot",
	1: "M0 with UMA",
	4: "M3 without UMA",
	5: "M0 without UMA",
	6: "Bring up",
	7: "M0 without UMA but with error",
}

var opModes = [...]string{
	ModeNormal:   "Normal",
	ModeDebug:    "Debug",
	ModeDisable:  "Soft Temporary Disable",
	ModeOverJmpr: "Security Override via Jumper",
	ModeOverMei:  "Security Override via MEI Message",
}

var errorCodes = [...]string{
	0: "No Error",
	1: "Uncategorized Failure",
	2: "Disabled",
	3: "Image Failure",
	4: "Debug Failure",
}

func name(names []string, i uint8) string {
	if int(i) < len(names) && len(names[i]) > 0 {
		return names[i]
	}
	return fmt.Sprintf("Unknown (%d)", i)
}

func bit(v uint32, n uint) bool        { return v>>n&1 != 0 }
func field(v uint32, lo, w uint) uint8 { return uint8(v >> lo & (1<<w - 1)) }

// HFS is the host firmware status register.
type HFS uint32

func (h HFS) WorkingState() uint8    { return field(uint32(h), 0, 4) }
func (h HFS) MfgMode() bool          { return bit(uint32(h), 4) }
func (h HFS) FptBad() bool           { return bit(uint32(h), 5) }
func (h HFS) OpState() uint8         { return field(uint32(h), 6, 3) }
func (h HFS) InitComplete() bool     { return bit(uint32(h), 9) }
func (h HFS) BupLoadFailure() bool   { return bit(uint32(h), 10) }
func (h HFS) UpdateInProgress() bool { return bit(uint32(h), 11) }
func (h HFS) ErrorCode() uint8       { return field(uint32(h), 12, 4) }
func (h HFS) OpMode() uint8          { return field(uint32(h), 16, 4) }
func (h HFS) BootOptions() bool      { return bit(uint32(h), 24) }
func (h HFS) AckData() uint8         { return field(uint32(h), 25, 3) }
func (h HFS) BiosMsgAck() uint8      { return field(uint32(h), 28, 4) }

func (h HFS) WorkingStateName() string { return name(workingStates[:], h.WorkingState()) }
func (h HFS) OpStateName() string      { return name(opStates[:], h.OpState()) }
func (h HFS) OpModeName() string       { return name(opModes[:], h.OpMode()) }
func (h HFS) ErrorCodeName() string    { return name(errorCodes[:], h.ErrorCode()) }

// HFS2 is the second host firmware status register.
type HFS2 uint32

func (h HFS2) BistInProgress() bool     { return bit(uint32(h), 0) }
func (h HFS2) IccProgStatus() uint8     { return field(uint32(h), 1, 2) }
func (h HFS2) InvokeMEBx() bool         { return bit(uint32(h), 3) }
func (h HFS2) CPUReplaced() bool        { return bit(uint32(h), 4) }
func (h HFS2) MbpReady() bool           { return bit(uint32(h), 5) }
func (h HFS2) MfsFailure() bool         { return bit(uint32(h), 6) }
func (h HFS2) WarmResetRequest() bool   { return bit(uint32(h), 7) }
func (h HFS2) CPUReplacedValid() bool   { return bit(uint32(h), 8) }
func (h HFS2) FwUpdateInProgress() bool { return bit(uint32(h), 11) }
func (h HFS2) MbpCleared() bool         { return bit(uint32(h), 13) }
func (h HFS2) CurrentState() uint8      { return field(uint32(h), 16, 8) }
func (h HFS2) PMEvent() uint8           { return field(uint32(h), 24, 4) }
func (h HFS2) ProgressCode() uint8      { return field(uint32(h), 28, 4) }

// HERES is the extend register status.
type HERES uint32

const (
	ExtendSHA1   uint8 = 0
	ExtendSHA256 uint8 = 2
)

func (h HERES) Algorithm() uint8     { return field(uint32(h), 0, 4) }
func (h HERES) FeaturePresent() bool { return bit(uint32(h), 30) }
func (h HERES) Valid() bool          { return bit(uint32(h), 31) }

func yes(b bool) string {
	if b {
		return "YES"
	}
	return "NO"
}

// LogStatus prints the decoded status registers.
func LogStatus(hfs HFS, hfs2 HFS2) {
	fpt := "OK"
	if hfs.FptBad() {
		fpt = "BAD"
	}
	for _, kv := range [][2]string{
		{"FW Partition Table", fpt},
		{"Bringup Loader Failure", yes(hfs.BupLoadFailure())},
		{"Firmware Init Complete", yes(hfs.InitComplete())},
		{"Manufacturing Mode", yes(hfs.MfgMode())},
		{"Boot Options Present", yes(hfs.BootOptions())},
		{"Update In Progress", yes(hfs.UpdateInProgress())},
		{"Current Working State", hfs.WorkingStateName()},
		{"Current Operation State", hfs.OpStateName()},
		{"Current Operation Mode", hfs.OpModeName()},
		{"Error Code", hfs.ErrorCodeName()},
		{"MBP Ready", yes(hfs2.MbpReady())},
		{"CPU Replaced", yes(hfs2.CPUReplaced())},
		{"MFS Failure", yes(hfs2.MfsFailure())},
		{"Warm Reset Request", yes(hfs2.WarmResetRequest())},
		{"Progress Phase", fmt.Sprint(hfs2.ProgressCode())},
		{"Power Management Event", fmt.Sprint(hfs2.PMEvent())},
		{"Progress Phase State", fmt.Sprintf("0x%02x", hfs2.CurrentState())},
	} {
		log.Printf("debug", "ME: %-24s: %s", kv[0], kv[1])
	}
}
