package mavlink

import (
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"

	"github.com/skywave-sdr/payload/internal/modeswitcher"
	"github.com/skywave-sdr/payload/internal/payloaderr"
	"github.com/skywave-sdr/payload/internal/store"
	"github.com/skywave-sdr/payload/internal/workmode"
)

// Custom commands occupy MAVLink's user-defined MAV_CMD range
// (31000-31255), since the common dialect has no payload-controller
// commands of its own.
const (
	cmdSetMode          = 31000
	cmdStartRecord      = 31001
	cmdStopRecord       = 31002
	cmdSetRecordTag     = 31003
	cmdDeleteRecord     = 31004
	cmdDeleteTag        = 31005
	cmdListRecords      = 31006
	cmdListTags         = 31007
	cmdListData         = 31008
	cmdStartMission     = 31009
	cmdStopMission      = 31010
	cmdStartCalibration = 31011
	cmdStopCalibration  = 31012
	// 31013 is reserved for WriteCalibrationTable (deferred, see DESIGN.md).
	cmdSystemControl            = 31014
	cmdReadCalibrationTableInfo = 31015
	cmdReadCalibrationTableRow  = 31016
)

// pendingText caches the most recent STATUSTEXT carrying a string
// argument — record name, tag "name:value", record id hex, tag id hex
// — that COMMAND_LONG's all-float parameter list cannot hold. The GCS
// sends one STATUSTEXT immediately before the COMMAND_LONG that
// consumes it.
type pendingText struct {
	mu   sync.Mutex
	text string
}

func (p *pendingText) set(s string) {
	p.mu.Lock()
	p.text = s
	p.mu.Unlock()
}

func (p *pendingText) take() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.text
	p.text = ""
	return s
}

func (t *Transport) handleCommandLong(m *common.MessageCommandLong) {
	var err error
	switch m.Command {
	case cmdSetMode:
		err = t.doSetMode(m)
	case cmdStartRecord:
		err = t.doStartRecord()
	case cmdStopRecord:
		err = t.switcher.StopRecord()
	case cmdSetRecordTag:
		err = t.doSetRecordTag()
	case cmdDeleteRecord:
		err = t.doDeleteRecord()
	case cmdDeleteTag:
		err = t.doDeleteTag()
	case cmdListRecords:
		t.doListRecords(m)
		return
	case cmdListTags:
		t.doListTags(m)
		return
	case cmdListData:
		t.doListData(m)
		return
	case cmdStartMission:
		err = t.mission.StartMission(int(m.Param1))
	case cmdStopMission:
		t.mission.StopMission()
	case cmdStartCalibration:
		t.calib.StartCalibration()
	case cmdStopCalibration:
		t.calib.StopCalibration()
	case cmdSystemControl:
		err = modeswitcher.SystemControl(modeswitcher.SystemAction(int(m.Param1)))
	case cmdReadCalibrationTableInfo:
		err = t.doReadCalibrationTableInfo(m)
	case cmdReadCalibrationTableRow:
		err = t.doReadCalibrationTableRow(m)
	default:
		err = payloaderr.New(payloaderr.Unsupported, "unknown command")
	}
	t.ackCommand(m.Command, err)
}

func (t *Transport) ackCommand(command common.MAV_CMD, err error) {
	result := common.MAV_RESULT_ACCEPTED
	if err != nil {
		switch payloaderr.KindOf(err) {
		case payloaderr.Busy:
			result = common.MAV_RESULT_TEMPORARILY_REJECTED
		case payloaderr.Denied:
			result = common.MAV_RESULT_DENIED
		case payloaderr.Unsupported:
			result = common.MAV_RESULT_UNSUPPORTED
		case payloaderr.InProgress:
			result = common.MAV_RESULT_IN_PROGRESS
		default:
			result = common.MAV_RESULT_FAILED
		}
		t.logger.Printf("mavlink: command %d failed: %v", command, err)
	}
	sysID, compID := t.gcsTarget()
	if werr := t.node.WriteMessageAll(&common.MessageCommandAck{
		Command:         command,
		Result:          result,
		TargetSystem:    sysID,
		TargetComponent: compID,
	}); werr != nil {
		t.logger.Printf("mavlink: error sending COMMAND_ACK: %v", werr)
	}
}

func (t *Transport) doSetMode(m *common.MessageCommandLong) error {
	mode := workmode.Mode(int(m.Param1))
	if mode == workmode.Idle {
		return t.switcher.SetMode(workmode.Idle, "", 0, 0, 0, 0)
	}
	freq := uint64(m.Param2 * 1e6)
	impl := t.analyzerFor(mode)
	return t.switcher.SetMode(mode, impl, freq, m.Param3, uint32(m.Param4), m.Param5)
}

// analyzerFor resolves the implementation name configured for mode; the
// over-the-wire SetMode command carries no string argument, so the
// device picks its own configured implementation rather than accepting
// one named by the caller.
func (t *Transport) analyzerFor(mode workmode.Mode) string {
	if t.analyzerConfig == nil {
		return ""
	}
	return t.analyzerConfig(mode.String())
}

func (t *Transport) doStartRecord() error {
	name := t.pending.take()
	if name == "" {
		name = "record"
	}
	id, err := t.switcher.StartRecord(name)
	if err != nil {
		return err
	}
	t.logger.Printf("mavlink: started record %s (%s)", id, name)
	return nil
}

func (t *Transport) doSetRecordTag() error {
	parts := strings.SplitN(t.pending.take(), ":", 2)
	name := "tag"
	value := ""
	if len(parts) > 0 && parts[0] != "" {
		name = parts[0]
	}
	if len(parts) > 1 {
		value = parts[1]
	}
	_, err := t.switcher.CurrentRecordSetTag(store.TagString, name, value)
	return err
}

func (t *Transport) doDeleteRecord() error {
	id, err := store.ParseRecordId(t.pending.take())
	if err != nil {
		return payloaderr.Wrap(payloaderr.NotFound, "malformed record id", err)
	}
	return t.switcher.DeleteRecord(id)
}

func (t *Transport) doDeleteTag() error {
	parts := strings.SplitN(t.pending.take(), ":", 2)
	if len(parts) != 2 {
		return payloaderr.New(payloaderr.NotFound, "expected recordId:tagId")
	}
	id, err := store.ParseRecordId(parts[0])
	if err != nil {
		return payloaderr.Wrap(payloaderr.NotFound, "malformed record id", err)
	}
	tagID, err := parseTagID(parts[1])
	if err != nil {
		return err
	}
	return t.switcher.DeleteTag(id, tagID)
}

// doReadCalibrationTableInfo answers a READ_CALIBRATION_TABLE_INFO command
// with the table's metadata and row count, both narrow enough to travel as
// a single STATUSTEXT/NAMED_VALUE_FLOAT pair rather than the paginated
// handshake/encapsulated-data flow doListRecords et al. use.
func (t *Transport) doReadCalibrationTableInfo(m *common.MessageCommandLong) error {
	meta, rowCount, err := t.calib.TableInfo(int(m.Param1))
	if err != nil {
		return err
	}
	t.sendNamedFloat(uint32(time.Now().UnixMilli()), "CALROWS", float32(rowCount))
	t.writeStatus(meta.Name + "|" + meta.Description)
	return nil
}

// doReadCalibrationTableRow answers a READ_CALIBRATION_TABLE_ROW command
// with one row's four fields as a burst of NAMED_VALUE_FLOAT messages.
func (t *Transport) doReadCalibrationTableRow(m *common.MessageCommandLong) error {
	row, err := t.calib.TableRow(int(m.Param1), int(m.Param2))
	if err != nil {
		return err
	}
	now := uint32(time.Now().UnixMilli())
	t.sendNamedFloat(now, "CALFREQ", float32(row.Frequency))
	t.sendNamedFloat(now, "CALREFP", float32(row.RefPower))
	t.sendNamedFloat(now, "CALREFV", float32(row.ReferenceValue))
	t.sendNamedFloat(now, "CALADJ", float32(row.Adjustment))
	return nil
}

func parseTagID(s string) (store.TagId, error) {
	var id store.TagId
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != 16 {
		return id, payloaderr.New(payloaderr.NotFound, "malformed tag id")
	}
	copy(id[:], raw)
	return id, nil
}
