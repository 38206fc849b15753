// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mei

import (
	"errors"
	"fmt"
)

var (
	ErrNotReady = errors.New("ME failed to become ready")
	ErrTimeout  = errors.New("timeout waiting for data")
	ErrNoData   = errors.New("request has no data")
	ErrCapacity = errors.New("message too large for buffer")
	ErrDesync   = errors.New("invalid response")
)

// CapacityError is returned when a packet does not fit in the host
// circular buffer even after a link reset. The link itself is still usable.
type CapacityError struct {
	Words, Room, Depth uint32
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("message (%d dwords) too large for buffer (%d of %d free)",
		e.Words, e.Room, e.Depth)
}

func (e *CapacityError) Unwrap() error { return ErrCapacity }

// DesyncError reports a response whose framing disagrees with what the
// caller expected. The exchange is not retried.
type DesyncError struct {
	Reason    string
	Got, Want uint32
}

func (e *DesyncError) Error() string {
	if e.Got == e.Want {
		return e.Reason
	}
	return fmt.Sprintf("%s: %d != %d", e.Reason, e.Got, e.Want)
}

func (e *DesyncError) Unwrap() error { return ErrDesync }
