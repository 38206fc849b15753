// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

//go:build linux
// +build linux

// This is the Intel Management Engine bring-up program.
package main

import (
	"fmt"
	"os"

	"github.com/platinasystems/mei/cmd/meinit"
)

func main() {
	c := meinit.Command{}
	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "-h" || args[0] == "-help" ||
		args[0] == "--help") {
		fmt.Println("usage:", c.Usage())
		fmt.Println(c.Man())
		return
	}
	if err := c.Main(args...); err != nil {
		fmt.Fprint(os.Stderr, c, ": ", err, "\n")
		os.Exit(1)
	}
}
