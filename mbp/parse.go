// Copyright © 2015-2020 Platina Systems, Inc. All rights reserved.
// Use of this source code is governed by the GPL-2 license described in the
// LICENSE file.

package mbp

import "github.com/platinasystems/log"

// Parse walks the item stream following header h. The walk must end
// exactly at the end of words; an item of zero length, or one that runs
// past the end, or a known item too short for its layout, is malformed.
// Unknown items are logged and skipped.
func Parse(h Header, words []uint32) (*Payload, error) {
	p := &Payload{Header: h, Words: words}
	for i := 0; i < len(words); {
		ih := ItemHeader(words[i])
		n := ih.Length()
		switch {
		case n == 0:
			return nil, &ItemError{Header: ih, Offset: i, Reason: "zero length"}
		case i+n > len(words):
			return nil, &ItemError{Header: ih, Offset: i,
				Reason: "overruns payload"}
		}
		it := Item{Header: ih, Offset: i, Data: words[i+1 : i+n]}
		p.Items = append(p.Items, it)
		if d, found := decoders[ih.Ident()]; found {
			if len(it.Data) < d.words {
				return nil, &ItemError{Header: ih, Offset: i,
					Reason: "short item"}
			}
			d.decode(p, it.Data)
		} else {
			log.Printf("warn", "ME MBP: unknown item 0x%x @ dw offset 0x%x",
				uint32(ih), i)
			p.Unknown = append(p.Unknown, it)
		}
		i += n
	}
	if len(p.Items) != h.Entries() {
		log.Printf("warn", "ME MBP: header announced %d items, found %d",
			h.Entries(), len(p.Items))
	}
	return p, nil
}
