// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mbp

import (
	"fmt"

	"github.com/platinasystems/log"
	"github.com/platinasystems/mei/mei"
	"github.com/platinasystems/mei/pci"
)

// GiveUp tells the ME the host abandoned the MBP, then holds the host
// buffer in reset. There is no retry.
func GiveUp(l *mei.Link, cfg pci.Config) {
	if err := cfg.WriteConfig32(CfgHGS2, GiveUpValue); err != nil {
		log.Print("err", "ME: mbp give up: ", err)
	}
	l.AssertReset()
}

// Clear waits for the ME to flag the MBP as read and cleared and gives up
// if it never does.
func Clear(l *mei.Link, cfg pci.Config) error {
	var err error
	cleared := l.Poller.Poll(func() bool {
		var hfs2 uint32
		hfs2, err = cfg.ReadConfig32(CfgHFS2)
		return err == nil && hfs2&HFS2MbpCleared != 0
	})
	if !cleared {
		log.Print("warn", "ME: Timeout waiting for mbp_cleared")
		GiveUp(l, cfg)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrClearTimeout, err)
		}
		return ErrClearTimeout
	}
	log.Print("info", "ME: MBP cleared")
	return nil
}

// Read drains the MBP from the ME buffer and decodes it. Unless late is
// set, it also waits for the ME to clear the MBP; a late caller must
// call Clear itself. A failure to read or decode the payload gives up on
// the MBP exactly once.
func Read(l *mei.Link, cfg pci.Config, late bool) (p *Payload, err error) {
	defer func() {
		if err != nil {
			log.Print("err", "ME: ", err)
			GiveUp(l, cfg)
		}
	}()

	hfs2, err := cfg.ReadConfig32(CfgHFS2)
	if err != nil {
		return nil, err
	}
	if hfs2&HFS2MbpReady == 0 {
		return nil, ErrNotReady
	}

	pending := l.WordsPending()
	if pending == 0 {
		return nil, ErrEmpty
	}

	// at least the header is there
	h := Header(l.ReadWord())
	if h.Size() == 0 || h.Entries() > h.Size()/2 ||
		pending < uint32(h.Size()) {
		return nil, &HeaderError{Header: h, Pending: pending}
	}

	words := make([]uint32, h.Size()-1)
	for i := range words {
		words[i] = l.ReadWord()
	}

	// Signal to the ME that the host has finished reading the MBP.
	l.Interrupt()

	log.Printf("info", "ME MBP: Header: %v", h)
	if l.Debug {
		for i, w := range words {
			log.Printf("debug", "ME MBP: %04x: 0x%08x", i, w)
		}
	}

	// A malformed payload gives up here, before any clear wait, so the
	// ME is told at most once.
	if p, err = Parse(h, words); err != nil {
		return nil, err
	}

	if !late {
		if cerr := Clear(l, cfg); cerr != nil {
			// already given up; the words read are still good
			log.Print("warn", "ME: ", cerr)
		}
	}
	return p, nil
}
