// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

// Package meinit provides the command that initializes and finalizes the
// Intel Management Engine of the host.
package meinit

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/platinasystems/flags"
	"github.com/platinasystems/log"
	"github.com/platinasystems/mei/eventlog"
	"github.com/platinasystems/mei/hw"
	"github.com/platinasystems/mei/mbp"
	"github.com/platinasystems/mei/me"
	"github.com/platinasystems/mei/pci"
	"github.com/platinasystems/parms"
)

type Command struct {
	// Open returns the ME function at the sysfs address, or the first
	// one found if addr is empty.
	Open func(addr string) (pci.Function, error)
	// Map returns the register window; hw.Map if nil.
	Map    func(base, size uint64) (hw.Window, error)
	Stdout io.Writer
}

func (Command) String() string { return "meinit" }

func (Command) Usage() string {
	return "meinit [-finalize|-status] [-late] [-v] [-d <pci addr>] " +
		"[-icc <mask>] [-retry <n>] [-delay <duration>] " +
		"[-redis <addr> [-key <list>]]"
}

func (Command) Apropos() string {
	return "initialize the Intel Management Engine"
}

func (Command) Man() string {
	return `
DESCRIPTION
	Without options, classify the ME boot path, set up the ME interface,
	read the ME boot payload and, with -icc, turn off the given clocks.
	  -finalize          Send END OF POST if the ME is in normal mode
	  -status            Print the ME status registers and boot path
	  -late              Wait for the boot payload clear in -finalize
	  -v                 Trace interface registers and report capabilities
	  -d <addr>          PCI function, e.g. 0000:00:16.0
	  -icc <mask>        Clock enables mask to turn off
	  -retry <n>         Poll count of every wait
	  -delay <duration>  Delay between polls, e.g. 10us
	  -redis <addr>      Record boot path events to this redis server
	  -key <list>        Redis list of the events (default me.eventlog)`
}

func (c Command) Main(args ...string) error {
	flag, args := flags.New(args, "-finalize", "-status", "-late", "-v")
	parm, args := parms.New(args, "-d", "-icc", "-retry", "-delay",
		"-redis", "-key")
	if len(args) > 0 {
		return fmt.Errorf("%v: unexpected", args)
	}
	if flag.ByName["-finalize"] && flag.ByName["-status"] {
		return fmt.Errorf("-finalize and -status are exclusive")
	}

	cfg := me.Config{
		MbpClearLate: flag.ByName["-late"],
		Debug:        flag.ByName["-v"],
	}
	if s := parm.ByName["-icc"]; len(s) > 0 {
		mask, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return fmt.Errorf("-icc %s: %v", s, err)
		}
		cfg.IccClockDisable = uint32(mask)
	}
	if s := parm.ByName["-retry"]; len(s) > 0 {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return fmt.Errorf("-retry %s: invalid", s)
		}
		cfg.Poller.Retries = n
	}
	if s := parm.ByName["-delay"]; len(s) > 0 {
		delay, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("-delay %s: %v", s, err)
		}
		cfg.Poller.Delay = delay
	}

	open := c.Open
	if open == nil {
		open = Open
	}
	fn, err := open(parm.ByName["-d"])
	if err != nil {
		return err
	}
	d := me.New(fn, cfg)
	if c.Map != nil {
		d.Map = c.Map
	}
	defer d.Close()

	if addr := parm.ByName["-redis"]; len(addr) > 0 {
		r, err := eventlog.Dial(addr, parm.ByName["-key"])
		if err != nil {
			log.Print("warn", "meinit: event log: ", err)
		} else {
			defer r.Close()
			d.Log = r
		}
	}

	switch {
	case flag.ByName["-status"]:
		return c.status(d)
	case flag.ByName["-finalize"]:
		return d.Finalize()
	}
	if err = d.Init(); err != nil {
		return err
	}
	return c.summary(d)
}

// Open finds the ME function by address or device id.
func Open(addr string) (pci.Function, error) {
	if len(addr) > 0 {
		return &pci.Device{Addr: addr}, nil
	}
	d, err := pci.Find(pci.VendorIntel, me.DeviceIDs...)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (c Command) output() (io.Writer, bool) {
	if c.Stdout != nil {
		return c.Stdout, false
	}
	return os.Stdout, isatty.IsTerminal(os.Stdout.Fd())
}

// report aligns a table on a terminal and prints "key: value" lines
// otherwise.
func (c Command) report(kvs [][2]string) {
	w, tty := c.output()
	for _, kv := range kvs {
		if tty {
			fmt.Fprintf(w, "%-24s %s\n", kv[0], kv[1])
		} else {
			fmt.Fprintf(w, "%s: %s\n", kv[0], kv[1])
		}
	}
}

func (c Command) status(d *me.Device) error {
	hfs, hfs2, err := d.Status()
	if err != nil {
		return err
	}
	c.report([][2]string{
		{"path", me.Path(hfs, hfs2).String()},
		{"working state", hfs.WorkingStateName()},
		{"operation state", hfs.OpStateName()},
		{"operation mode", hfs.OpModeName()},
		{"error code", hfs.ErrorCodeName()},
		{"fpt", map[bool]string{false: "ok", true: "bad"}[hfs.FptBad()]},
		{"mbp ready", strconv.FormatBool(hfs2.MbpReady())},
		{"mbp cleared", strconv.FormatBool(hfs2.MbpCleared())},
		{"progress", fmt.Sprintf("%d/%d/0x%02x", hfs2.ProgressCode(),
			hfs2.PMEvent(), hfs2.CurrentState())},
	})
	return nil
}

func (c Command) summary(d *me.Device) error {
	kvs := [][2]string{{"path", d.Path.String()}}
	p := d.MBP
	if p.FwVersion != nil {
		kvs = append(kvs, [2]string{"version", p.FwVersion.String()})
	}
	if p.FwCaps != nil {
		kvs = append(kvs, [2]string{"capabilities",
			fmt.Sprintf("0x%08x", uint32(*p.FwCaps))})
		for _, x := range mbp.CapNames {
			if p.FwCaps.Has(x.Cap) {
				kvs = append(kvs, [2]string{"capability", x.Name})
			}
		}
	}
	if p.PlatTime != nil {
		kvs = append(kvs, [2]string{"platform time", fmt.Sprintf(
			"%dms/%dms/%dms", p.PlatTime.WakeEventMrst,
			p.PlatTime.MrstPltrst, p.PlatTime.PltrstCpurst)})
	}
	if len(d.Extend) > 0 {
		s := ""
		for _, w := range d.Extend {
			s += fmt.Sprintf("%08x", w)
		}
		kvs = append(kvs, [2]string{"extend", s})
	}
	c.report(kvs)
	return nil
}
