package modeswitcher

import (
	"context"
	"time"

	"github.com/skywave-sdr/payload/internal/payloaderr"
	"github.com/skywave-sdr/payload/internal/store"
)

// ResponseSink is implemented by the MAVLink transport and receives the
// paginated results of a record request handler. Handlers run
// concurrently with the sample tick and take only read handles from the
// store (spec §4.5 note).
type ResponseSink interface {
	Fail(kind payloaderr.Kind, statusText string)
	Success(itemCount int)
	RecordItem(e store.Entry)
	TagItem(t store.Tag)
	DataItem(pageIndex uint32, payload []byte)
}

// ListRecords resolves and paginates the store's records (spec §4.5/§6).
func (s *Switcher) ListRecords(ctx context.Context, skip, count int, sink ResponseSink, sendDelay time.Duration) {
	ids := s.store.GetFiles()
	if skip >= len(ids) {
		sink.Success(0)
		return
	}
	end := skip + count
	if end > len(ids) {
		end = len(ids)
	}
	page := ids[skip:end]
	sink.Success(len(page))
	for _, id := range page {
		entry, ok := s.store.TryGetEntry(id)
		if !ok {
			continue
		}
		sink.RecordItem(entry)
		if !sleepOrDone(ctx, sendDelay) {
			return
		}
	}
}

// ListTags resolves and paginates the tags of one record.
func (s *Switcher) ListTags(ctx context.Context, id store.RecordId, skip, count int, sink ResponseSink, sendDelay time.Duration) {
	r, err := s.store.OpenFile(id)
	if err != nil {
		sink.Fail(payloaderr.KindOf(err), err.Error())
		return
	}
	tagIDs := r.GetTagIds(skip, count)
	sink.Success(len(tagIDs))
	for _, tid := range tagIDs {
		tag, err := r.ReadTag(tid)
		if err != nil {
			continue
		}
		sink.TagItem(tag)
		if !sleepOrDone(ctx, sendDelay) {
			return
		}
	}
}

// ListData resolves and paginates the data pages of one record. A
// corrupt page is reported but does not abort the remaining pagination
// (spec §8 scenario 5: the page is not sent, the response carries the
// CRC error).
func (s *Switcher) ListData(ctx context.Context, id store.RecordId, skip, count int, sink ResponseSink, sendDelay time.Duration) {
	r, err := s.store.OpenFile(id)
	if err != nil {
		sink.Fail(payloaderr.KindOf(err), err.Error())
		return
	}
	n := r.ItemCount(skip, count)
	sink.Success(n)
	for i := 0; i < n; i++ {
		pageIndex := uint32(skip + i)
		buf := make([]byte, 252)
		got, err := r.Read(pageIndex, buf)
		if err != nil {
			sink.Fail(payloaderr.KindOf(err), err.Error())
		} else {
			sink.DataItem(pageIndex, buf[:got])
		}
		if !sleepOrDone(ctx, sendDelay) {
			return
		}
	}
}

// DeleteRecord removes a record. Fails with payloaderr.Busy if the
// record is currently being written (spec §4.5).
func (s *Switcher) DeleteRecord(id store.RecordId) error {
	return s.store.DeleteFile(id)
}

// DeleteTag removes a tag from the record currently open for writing,
// through its Writer. Tags of a closed record cannot be deleted: for any
// record other than the open one it returns a Denied error, and the
// Writer returns NotFound when the open record has no such tag.
func (s *Switcher) DeleteTag(id store.RecordId, tagID store.TagId) error {
	s.fieldsMu.Lock()
	w := s.writer
	recID := s.recordID
	s.fieldsMu.Unlock()

	if w == nil || recID == nil || *recID != id {
		return payloaderr.New(payloaderr.Denied, "record is not currently open for writing")
	}
	return w.DeleteTag(tagID)
}

// sleepOrDone waits d or returns false if ctx is done first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
