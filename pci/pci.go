// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package pci reads and writes PCI configuration space and BAR resources of
// a single function through Linux sysfs.
package pci

import (
	"bufio"
	"errors"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
)

const (
	VendorID     uint = 0x00
	DeviceID     uint = 0x02
	Command      uint = 0x04
	BaseAddress0 uint = 0x10

	CommandMemory uint32 = 1 << 1
	CommandMaster uint32 = 1 << 2

	VendorIntel uint16 = 0x8086
)

var ErrNotFound = errors.New("no matching PCI device")

var SysBusPciPath = "/sys/bus/pci/devices"

// Config is 32-bit PCI configuration space access.
type Config interface {
	ReadConfig32(offset uint) (uint32, error)
	WriteConfig32(offset uint, v uint32) error
}

// Function is a PCI function with configuration space and BAR resources.
type Function interface {
	Config
	// Resource returns the assigned base and size of the given BAR; a
	// zero base or size means the resource is absent.
	Resource(bar int) (base, size uint64, err error)
}

// Device is a PCI function named by its sysfs address, e.g. 0000:00:16.0.
type Device struct {
	Addr string
}

func (d *Device) String() string { return d.Addr }

func (d *Device) SysfsPath(format string, args ...interface{}) string {
	return filepath.Join(SysBusPciPath, d.Addr, fmt.Sprintf(format, args...))
}

func (d *Device) configRw(offset uint, v uint32, nBytes int, isWrite bool) (uint32, error) {
	mode := os.O_RDONLY
	if isWrite {
		mode = os.O_RDWR
	}
	f, err := os.OpenFile(d.SysfsPath("config"), mode, 0)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	var b [4]byte
	if isWrite {
		for i := range b {
			b[i] = byte(v >> uint(8*i))
		}
		_, err = f.WriteAt(b[:nBytes], int64(offset))
		return v, err
	}
	if _, err = f.ReadAt(b[:nBytes], int64(offset)); err != nil {
		return 0, fmt.Errorf("%s: config 0x%x: %v", d.Addr, offset, err)
	}
	v = 0
	for i := 0; i < nBytes; i++ {
		v |= uint32(b[i]) << uint(8*i)
	}
	return v, nil
}

func (d *Device) ReadConfig16(offset uint) (uint16, error) {
	v, err := d.configRw(offset, 0, 2, false)
	return uint16(v), err
}

func (d *Device) ReadConfig32(offset uint) (uint32, error) {
	return d.configRw(offset, 0, 4, false)
}

func (d *Device) WriteConfig32(offset uint, v uint32) error {
	_, err := d.configRw(offset, v, 4, true)
	return err
}

// Resource parses the sysfs resource table; each line is
// "start end flags" in hex, one line per BAR.
func (d *Device) Resource(bar int) (base, size uint64, err error) {
	f, err := os.Open(d.SysfsPath("resource"))
	if err != nil {
		return
	}
	defer f.Close()
	scan := bufio.NewScanner(f)
	for i := 0; scan.Scan(); i++ {
		if i != bar {
			continue
		}
		var start, end, flags uint64
		if _, err = fmt.Sscanf(scan.Text(), "0x%x 0x%x 0x%x",
			&start, &end, &flags); err != nil {
			err = fmt.Errorf("%s: resource %d: %v", d.Addr, bar, err)
			return
		}
		if start != 0 && end >= start {
			base, size = start, end-start+1
		}
		return
	}
	if err = scan.Err(); err == nil {
		err = fmt.Errorf("%s: resource %d: not listed", d.Addr, bar)
	}
	return
}

// EnableMemoryMaster sets the memory space and bus master command bits.
func EnableMemoryMaster(c Config) error {
	v, err := c.ReadConfig32(Command)
	if err != nil {
		return err
	}
	return c.WriteConfig32(Command, v|CommandMemory|CommandMaster)
}

// Find returns the first device with the given vendor and one of the
// given device ids.
func Find(vendor uint16, devices ...uint16) (*Device, error) {
	fis, err := ioutil.ReadDir(SysBusPciPath)
	if err != nil {
		return nil, err
	}
	for _, fi := range fis {
		d := &Device{Addr: fi.Name()}
		v, err := d.ReadConfig16(VendorID)
		if err != nil || v != vendor {
			continue
		}
		id, err := d.ReadConfig16(DeviceID)
		if err != nil {
			continue
		}
		for _, want := range devices {
			if id == want {
				return d, nil
			}
		}
	}
	return nil, fmt.Errorf("%04x:%04x: %w", vendor, devices, ErrNotFound)
}
