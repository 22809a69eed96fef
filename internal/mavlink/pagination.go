package mavlink

import (
	"context"
	"encoding/binary"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/skywave-sdr/payload/internal/payloaderr"
	"github.com/skywave-sdr/payload/internal/store"
)

// Handshake Type codes distinguishing what a DATA_TRANSMISSION_HANDSHAKE
// / ENCAPSULATED_DATA exchange carries — the common dialect's bulk-data
// pair is designed for image tiles, repurposed here for the three list
// responses of spec §6.
const (
	handshakeRecords = 1
	handshakeTags    = 2
	handshakeData    = 3
	handshakeFail    = 0
)

// doListRecords, doListTags, doListData run their handler on a fresh
// goroutine so the paced per-item delay (RecordSendDelayMs) never blocks
// the node's single event-dispatch loop, matching the independently
// scheduled request-handler tasks of spec §5.
func (t *Transport) doListRecords(m *common.MessageCommandLong) {
	skip, count := int(m.Param1), int(m.Param2)
	go t.switcher.ListRecords(context.Background(), skip, count, t, t.cfg.SendDelay)
}

func (t *Transport) doListTags(m *common.MessageCommandLong) {
	id, err := store.ParseRecordId(t.pending.take())
	if err != nil {
		t.Fail(payloaderr.NotFound, "malformed record id")
		return
	}
	skip, count := int(m.Param2), int(m.Param3)
	go t.switcher.ListTags(context.Background(), id, skip, count, t, t.cfg.SendDelay)
}

func (t *Transport) doListData(m *common.MessageCommandLong) {
	id, err := store.ParseRecordId(t.pending.take())
	if err != nil {
		t.Fail(payloaderr.NotFound, "malformed record id")
		return
	}
	skip, count := int(m.Param2), int(m.Param3)
	go t.switcher.ListData(context.Background(), id, skip, count, t, t.cfg.SendDelay)
}

// Fail implements modeswitcher.ResponseSink. The kind travels in the
// handshake's Payload byte; the human-readable text follows as a
// STATUSTEXT.
func (t *Transport) Fail(kind payloaderr.Kind, statusText string) {
	t.writeHandshake(handshakeFail, 0, uint8(kind))
	t.writeStatus(statusText)
}

// Success implements modeswitcher.ResponseSink, announcing the item
// count about to follow as ENCAPSULATED_DATA frames.
func (t *Transport) Success(itemCount int) {
	t.writeHandshake(handshakeRecords, uint32(itemCount), 0)
}

// RecordItem implements modeswitcher.ResponseSink.
func (t *Transport) RecordItem(e store.Entry) {
	buf := make([]byte, 48)
	copy(buf[0:16], e.Id[:])
	binary.BigEndian.PutUint64(buf[16:24], e.Frequency)
	binary.BigEndian.PutUint64(buf[24:32], uint64(e.CreatedUnixUs))
	binary.BigEndian.PutUint32(buf[32:36], e.DataCount)
	binary.BigEndian.PutUint64(buf[36:44], uint64(e.SizeBytes))
	// Name/Mode are variable-length and travel as a STATUSTEXT
	// immediately following the frame, "name|mode".
	t.writeEncapsulated(buf)
	t.writeStatus(e.Name + "|" + e.Mode)
}

// TagItem implements modeswitcher.ResponseSink.
func (t *Transport) TagItem(tag store.Tag) {
	buf := make([]byte, 16+1+store.TagValueSize)
	copy(buf[0:16], tag.Id[:])
	buf[16] = byte(tag.Kind)
	copy(buf[17:], tag.Value[:])
	t.writeEncapsulated(buf)
	t.writeStatus(tag.Name)
}

// DataItem implements modeswitcher.ResponseSink, carrying one raw data
// page.
func (t *Transport) DataItem(pageIndex uint32, payload []byte) {
	buf := make([]byte, 4+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], pageIndex)
	copy(buf[4:], payload)
	t.writeEncapsulated(buf)
}

func (t *Transport) writeHandshake(kind uint8, size uint32, payload uint8) {
	if err := t.node.WriteMessageAll(&common.MessageDataTransmissionHandshake{
		Type:    kind,
		Size:    size,
		Packets: 0,
		Payload: payload,
	}); err != nil {
		t.logger.Printf("mavlink: error sending DATA_TRANSMISSION_HANDSHAKE: %v", err)
	}
}

func (t *Transport) writeEncapsulated(buf []byte) {
	var data [253]uint8
	copy(data[:], buf)
	if err := t.node.WriteMessageAll(&common.MessageEncapsulatedData{
		Seqnr: uint16(t.encapSeq.Add(1)),
		Data:  data,
	}); err != nil {
		t.logger.Printf("mavlink: error sending ENCAPSULATED_DATA: %v", err)
	}
}

func (t *Transport) writeStatus(text string) {
	if len(text) > 50 {
		text = text[:50]
	}
	if err := t.node.WriteMessageAll(&common.MessageStatustext{
		Severity: common.MAV_SEVERITY_INFO,
		Text:     text,
	}); err != nil {
		t.logger.Printf("mavlink: error sending STATUSTEXT: %v", err)
	}
}
