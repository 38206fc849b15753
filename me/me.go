// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package me brings up the Management Engine: it classifies the ME boot
// path, prepares the MEI link, drains the boot payload and sends the
// boot time messages. Init runs once at device bring-up and Finalize once
// before handing off to the OS.
package me

import (
	"errors"
	"fmt"
	"io"

	"github.com/platinasystems/log"
	"github.com/platinasystems/mei/eventlog"
	"github.com/platinasystems/mei/hw"
	"github.com/platinasystems/mei/icc"
	"github.com/platinasystems/mei/mbp"
	"github.com/platinasystems/mei/mei"
	"github.com/platinasystems/mei/mkhi"
	"github.com/platinasystems/mei/pci"
)

// Device ids of the ME interface function.
var DeviceIDs = []uint16{
	0x8c3a, // Mobile
	0x9c3a, // Low Power
}

// WindowSize is the MEI register window length.
const WindowSize = 0x10

// BAR0 reads as this when the function is hidden.
const hiddenBase = 0xfffffff0

var (
	ErrNoResource = errors.New("MEI resource not present")
	ErrExtend     = errors.New("extend register")
)

type Config struct {
	// IccClockDisable is the mask of clocks turned off at init.
	IccClockDisable uint32
	// MbpClearLate defers the MBP cleared wait to Finalize.
	MbpClearLate bool
	// Debug traces MEI registers, dumps the MBP and reports capabilities.
	Debug  bool
	Poller mei.Poller
}

type Device struct {
	Config
	Func pci.Function
	// Map returns the register window at base; hw.Map for real hardware.
	Map func(base, size uint64) (hw.Window, error)
	Log eventlog.Log

	Path BiosPath
	Link *mei.Link
	MBP  *mbp.Payload
	// Extend is the firmware hash read on the Normal path.
	Extend []uint32
}

func New(f pci.Function, cfg Config) *Device {
	return &Device{
		Config: cfg,
		Func:   f,
		Map: func(base, size uint64) (hw.Window, error) {
			return hw.Map(base, size)
		},
		Log: eventlog.Discard{},
	}
}

func (d *Device) Status() (HFS, HFS2, error) {
	hfs, err := d.Func.ReadConfig32(CfgHFS)
	if err != nil {
		return 0, 0, err
	}
	hfs2, err := d.Func.ReadConfig32(CfgHFS2)
	if err != nil {
		return 0, 0, err
	}
	return HFS(hfs), HFS2(hfs2), nil
}

// Classify reads the status, logs it, and records a non Normal path in
// the event log.
func (d *Device) Classify() (BiosPath, error) {
	hfs, hfs2, err := d.Status()
	if err != nil {
		return Error, err
	}
	LogStatus(hfs, hfs2)
	path := Path(hfs, hfs2)
	if !hfs2.MbpReady() {
		log.Print("err", "ME: mbp is not ready!")
	}
	if path != Normal && d.Log != nil {
		if err = d.Log.Add(eventlog.TypeME, []byte{byte(path)}); err == nil {
			err = d.Log.Add(eventlog.TypeMEExtended,
				ExtendedEvent(hfs, hfs2))
		}
		if err != nil {
			log.Print("warn", "ME: event log: ", err)
		}
	}
	d.Path = path
	return path, nil
}

// ExtendValid returns the firmware hash from the extend registers.
func ExtendValid(cfg pci.Config) ([]uint32, error) {
	v, err := cfg.ReadConfig32(CfgHERES)
	if err != nil {
		return nil, err
	}
	heres := HERES(v)
	if !heres.FeaturePresent() {
		return nil, fmt.Errorf("%w: feature not present", ErrExtend)
	}
	if !heres.Valid() {
		return nil, fmt.Errorf("%w: not valid", ErrExtend)
	}
	var n int
	var alg string
	switch heres.Algorithm() {
	case ExtendSHA1:
		n, alg = 5, "SHA-1"
	case ExtendSHA256:
		n, alg = 8, "SHA-256"
	default:
		return nil, fmt.Errorf("%w: algorithm %d unknown", ErrExtend,
			heres.Algorithm())
	}
	hash := make([]uint32, n)
	s := ""
	for i := range hash {
		if hash[i], err = cfg.ReadConfig32(CfgHER(i)); err != nil {
			return nil, err
		}
		s += fmt.Sprintf("%08x", hash[i])
	}
	log.Printf("debug", "ME: Extend %s: %s", alg, s)
	return hash, nil
}

// Setup maps the MEI window and readies the host side of the link.
func (d *Device) Setup() error {
	base, size, err := d.Func.Resource(0)
	if err != nil {
		return err
	}
	if base == 0 || size == 0 {
		log.Print("debug", "ME: MEI resource not present!")
		return ErrNoResource
	}
	if err = pci.EnableMemoryMaster(d.Func); err != nil {
		return err
	}
	if err = d.open(base, size); err != nil {
		return err
	}
	d.Link.Setup()
	return nil
}

// open maps the window without touching the host CSR.
func (d *Device) open(base, size uint64) error {
	w, err := d.Map(base, size)
	if err != nil {
		return err
	}
	d.Link = mei.New(w)
	d.Link.Poller = d.Poller
	d.Link.Debug = d.Debug
	return nil
}

// Init is the bring-up sequence. Failures leave the ME partially set up;
// the caller reports them and boots on.
func (d *Device) Init() error {
	path, err := d.Classify()
	if err != nil {
		return err
	}
	log.Print("note", "ME: BIOS path: ", path)

	if path == Normal {
		if d.Extend, err = ExtendValid(d.Func); err != nil {
			log.Print("err", "ME: ", err)
		}
	}

	// The MBP is fetched in every boot flow except S3 resume.
	if err = d.Setup(); err != nil {
		return err
	}
	if d.MBP, err = mbp.Read(d.Link, d.Func, d.MbpClearLate); err != nil {
		return err
	}

	d.printFwVersion()
	if d.Debug {
		d.printFwCaps()
	}
	if t := d.MBP.PlatTime; t != nil {
		log.Printf("debug", "ME: Wake Event to ME Reset:      %d ms",
			t.WakeEventMrst)
		log.Printf("debug", "ME: ME Reset to Platform Reset:  %d ms",
			t.MrstPltrst)
		log.Printf("debug", "ME: Platform Reset to CPU Reset: %d ms",
			t.PltrstCpurst)
	}

	if d.IccClockDisable != 0 {
		if err = icc.SetClockEnables(d.Link, d.IccClockDisable); err != nil {
			return err
		}
	}
	// The ME is left unlocked until Finalize.
	return nil
}

func (d *Device) printFwVersion() {
	if d.MBP.FwVersion == nil {
		log.Print("err", "ME: mbp missing version report")
		return
	}
	log.Print("debug", "ME: found version ", d.MBP.FwVersion)
}

func (d *Device) printFwCaps() {
	caps := d.MBP.FwCaps
	if caps == nil {
		log.Print("err", "ME: mbp missing fwcaps report")
		v, err := mkhi.GetFWCaps(d.Link)
		if err != nil {
			return
		}
		c := mbp.FwCaps(v)
		caps = &c
	}
	for _, x := range mbp.CapNames {
		state := "disabled"
		if caps.Has(x.Cap) {
			state = " enabled"
		}
		log.Printf("debug", "ME Capability: %-41s : %s", x.Name, state)
	}
}

// Finalize tells the ME that POST is over. It does nothing when the
// function is hidden or the ME is not in a state that expects it.
func (d *Device) Finalize() error {
	bar, err := d.Func.ReadConfig32(pci.BaseAddress0)
	if err != nil {
		return err
	}
	// S3 path will have hidden this device already
	base := bar &^ 0xf
	if base == 0 || base == hiddenBase {
		log.Print("debug", "ME: hidden, skipping finalize")
		return nil
	}
	if d.Link == nil {
		if err = d.open(uint64(base), WindowSize); err != nil {
			return err
		}
	}

	if d.MbpClearLate {
		if err = mbp.Clear(d.Link, d.Func); err != nil {
			log.Print("warn", "ME: late ", err)
		}
	}

	hfs, _, err := d.Status()
	if err != nil {
		return err
	}
	if hfs.FptBad() ||
		hfs.WorkingState() != WorkingNormal ||
		hfs.OpMode() != ModeNormal {
		log.Print("debug", "ME: not in normal mode, skipping end of post")
		return nil
	}

	_, err = mkhi.EndOfPost(d.Link)
	return err
}

// Close releases the register window.
func (d *Device) Close() error {
	if d.Link == nil {
		return nil
	}
	defer func() { d.Link = nil }()
	if c, ok := d.Link.W.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
