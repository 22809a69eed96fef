package mavlink

import (
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/skywave-sdr/payload/internal/workmode"
)

// Send implements modeswitcher.Sender: it transmits one composed sample
// as a single ENCAPSULATED_DATA frame. workmode.EntrySize is well under
// the 253-byte frame payload, so one entry always fits one frame with
// no reassembly needed on the receiving end.
func (t *Transport) Send(mode workmode.Mode, entry workmode.Entry) error {
	var data [253]uint8
	copy(data[:], entry.Encode())
	return t.node.WriteMessageAll(&common.MessageEncapsulatedData{
		Seqnr: uint16(t.encapSeq.Add(1)),
		Data:  data,
	})
}
