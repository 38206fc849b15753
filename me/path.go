// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package me

import "fmt"

// BiosPath is what the host should do with the ME this boot. It is
// computed once from the status registers and never changes.
type BiosPath uint8

const (
	Normal BiosPath = iota
	S3Wake
	Error
	Recovery
	Disable
	FirmwareUpdate
)

var biosPaths = [...]string{
	Normal:         "Normal",
	S3Wake:         "S3 Wake",
	Error:          "Error",
	Recovery:       "Recovery",
	Disable:        "Disable",
	FirmwareUpdate: "Firmware Update",
}

func (p BiosPath) String() string {
	if int(p) < len(biosPaths) {
		return biosPaths[p]
	}
	return fmt.Sprintf("BiosPath(%d)", uint8(p))
}

// Path classifies the ME status. A Normal working state stays Normal only
// in Normal operation mode; any error code, a bad partition table or a
// missing MBP overrides everything with Error.
func Path(hfs HFS, hfs2 HFS2) BiosPath {
	var path BiosPath
	switch hfs.WorkingState() {
	case WorkingNormal:
		path = Normal
	case WorkingRec:
		path = Recovery
	default:
		path = Disable
	}
	if path == Normal && hfs.OpMode() != ModeNormal {
		path = Disable
	}
	if hfs.ErrorCode() != 0 || hfs.FptBad() {
		path = Error
	}
	if !hfs2.MbpReady() {
		path = Error
	}
	return path
}

// ExtendedEvent is the status snapshot logged on a non Normal path.
func ExtendedEvent(hfs HFS, hfs2 HFS2) []byte {
	return []byte{
		hfs.WorkingState(),
		hfs.OpState(),
		hfs.OpMode(),
		hfs.ErrorCode(),
		hfs2.ProgressCode(),
		hfs2.PMEvent(),
		hfs2.CurrentState(),
	}
}
