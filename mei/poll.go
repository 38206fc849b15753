// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mei

import (
	"time"

	"github.com/jpillora/backoff"
)

const (
	DefaultRetries = 100000
	DefaultDelay   = 10 * time.Microsecond
)

// Poller bounds every wait on the controller: at most Retries checks,
// separated by a fixed Delay. The zero value uses the defaults.
type Poller struct {
	Retries int
	Delay   time.Duration
	// Sleep replaces time.Sleep, e.g. with a no-op for simulation.
	Sleep func(time.Duration)
}

// Poll calls done until it returns true or the retry budget is spent.
func (p Poller) Poll(done func() bool) bool {
	retries, delay, sleep := p.Retries, p.Delay, p.Sleep
	if retries <= 0 {
		retries = DefaultRetries
	}
	if delay <= 0 {
		delay = DefaultDelay
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	b := &backoff.Backoff{
		Min:    delay,
		Max:    delay,
		Factor: 1,
		Jitter: false,
	}
	for try := retries; try > 0; try-- {
		if done() {
			return true
		}
		sleep(b.Duration())
	}
	return false
}
