// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package hw

import "testing"

func TestMemLoadStore(t *testing.T) {
	m := NewMem(16)
	if m.Len() != 16 {
		t.Fatalf("len %d != 16", m.Len())
	}
	for i, v := range []uint32{0x11223344, 0, 0xffffffff, 0x80000001} {
		off := uintptr(i * 4)
		m.Store32(off, v)
		if got := m.Load32(off); got != v {
			t.Errorf("0x%x: got 0x%08x, want 0x%08x", off, got, v)
		}
	}
	if err := m.Close(); err != nil {
		t.Error(err)
	}
}

func TestNewMemRoundsUp(t *testing.T) {
	if n := NewMem(13).Len(); n != 16 {
		t.Errorf("len %d != 16", n)
	}
}

func TestCheckRegAddr(t *testing.T) {
	for _, tc := range []struct {
		offset uintptr
		panics bool
	}{
		{0, false},
		{12, false},
		{2, true},
		{16, true},
	} {
		func() {
			defer func() {
				if r := recover(); (r != nil) != tc.panics {
					t.Errorf("0x%x: panic %v, want %v",
						tc.offset, r != nil, tc.panics)
				}
			}()
			CheckRegAddr(tc.offset, 16)
		}()
	}
}
