package xml

import (
	"encoding/binary"
	"io"
	"strconv"
	"strings"

	"github.com/tommynok/penumbra/internal/auth"
	"github.com/tommynok/penumbra/internal/da"
	"github.com/tommynok/penumbra/internal/model"
	"github.com/tommynok/penumbra/internal/perr"
	"github.com/tommynok/penumbra/internal/transport"
)

const XmlUnknown = perr.XmlUnknown
const XmlUnsupportedCmd = perr.XmlUnsupportedCmd
const XmlCancel = perr.XmlCancel

// Magic matches the XFlash frame header (spec.md §6: "framed by the
// standard XFlash header").
const Magic uint32 = 0xFEEEEEEF

type dataType uint32

const (
	protocolFlow dataType = 1
	bulkData     dataType = 2
)

const headerSize = 12

// DefaultPacketSize is the default negotiated chunk length for the
// download-file sub-protocol (spec.md §4.3).
const DefaultPacketSize = 0x8000

// Stage identifies one point in a command's response lifecycle
// (spec.md §4.3: "SEND → CMD_ACK → (optional progress) → (optional
// UPLOAD/DOWNLOAD) → STATUS → CMD_END").
type Stage string

const (
	StageSend     Stage = "SEND"
	StageCmdAck   Stage = "CMD_ACK"
	StageProgress Stage = "PROGRESS"
	StageUpload   Stage = "UPLOAD"
	StageDownload Stage = "DOWNLOAD"
	StageStatus   Stage = "STATUS"
	StageCmdEnd   Stage = "CMD_END"
)

// Engine is the XML DAProtocol implementation. Unlike xflash.Engine it
// has no RawMemoryAccess: the XML DA surface never exposed raw
// flash/SRAM addressing (spec.md §9's open question, resolved in favor
// of the façade rejecting the capability cleanly).
type Engine struct {
	conn       *transport.Connection
	state      da.BootState
	auth       *auth.Manager
	info       *model.DeviceInfo
	packetSize int
}

func NewEngine(conn *transport.Connection, authMgr *auth.Manager) *Engine {
	return &Engine{conn: conn, state: da.StateNew, auth: authMgr, packetSize: DefaultPacketSize}
}

func (e *Engine) authManager() *auth.Manager {
	if e.auth != nil {
		return e.auth
	}
	return auth.Global()
}

func (e *Engine) State() da.BootState { return e.state }

func (e *Engine) SetDeviceInfo(info *model.DeviceInfo) { e.info = info }

func writeFrame(conn *transport.Connection, dt dataType, payload []byte) error {
	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:8], uint32(dt))
	binary.LittleEndian.PutUint32(hdr[8:12], uint32(len(payload)))
	if err := conn.WriteAll(hdr); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	return conn.WriteAll(payload)
}

func readFrame(conn *transport.Connection) (dataType, []byte, error) {
	hdr := make([]byte, headerSize)
	if _, err := conn.ReadExact(hdr); err != nil {
		return 0, nil, err
	}
	magic := binary.LittleEndian.Uint32(hdr[0:4])
	if magic != Magic {
		return 0, nil, perr.NewProtocol("xml: bad frame magic")
	}
	dt := dataType(binary.LittleEndian.Uint32(hdr[4:8]))
	length := binary.LittleEndian.Uint32(hdr[8:12])
	payload := make([]byte, length)
	if length > 0 {
		if _, err := conn.ReadExact(payload); err != nil {
			return 0, nil, err
		}
	}
	return dt, payload, nil
}

// LifetimeAck acknowledges stage, per spec.md §4.3's
// "lifetime_ack(stage)".
func (e *Engine) LifetimeAck(stage Stage) error {
	return writeFrame(e.conn, protocolFlow, []byte(stage))
}

// sendCommand renders cmd, writes it, and consumes CMD_ACK.
func (e *Engine) sendCommand(cmd any) error {
	doc, err := RenderCommand(cmd)
	if err != nil {
		return perr.NewXml(err.Error(), XmlUnknown)
	}
	if err := writeFrame(e.conn, protocolFlow, []byte(doc)); err != nil {
		return err
	}
	if err := e.LifetimeAck(StageCmdAck); err != nil {
		return err
	}
	_, ack, err := readFrame(e.conn)
	if err != nil {
		return err
	}
	if v, ok := GetTag(string(ack), "command/ack"); ok && v != "CMD_ACK" {
		return perr.NewXml("unexpected ack: "+v, XmlUnknown)
	}
	return nil
}

// readStatus reads the STATUS stage response and maps it per spec.md
// §4.3: "OK" is success; "ERR!UNSUPPORTED", "ERR!CANCEL", anything else
// maps to the XML error kind.
func (e *Engine) readStatus() error {
	_, payload, err := readFrame(e.conn)
	if err != nil {
		return err
	}
	status, ok := GetTag(string(payload), "command/status")
	if !ok {
		return perr.NewXml("missing status tag", XmlUnknown)
	}
	switch status {
	case "OK":
		return nil
	case "ERR!UNSUPPORTED":
		return perr.NewXml(status, XmlUnsupportedCmd)
	case "ERR!CANCEL":
		return perr.NewXml(status, XmlCancel)
	default:
		return perr.NewXml(status, XmlUnknown)
	}
}

func (e *Engine) finishCommand() error {
	if err := e.readStatus(); err != nil {
		return err
	}
	return e.LifetimeAck(StageCmdEnd)
}

// BootTo commands.

type bootToCommand struct {
	Address uint32 `penumbra:"address"`
	Length  uint32 `penumbra:"length"`
}

func (e *Engine) BootTo(addr uint32, payload []byte) error {
	if e.info != nil && e.info.TargetConfig.SLA {
		if err := e.performSLA(); err != nil {
			return err
		}
	}
	cmd := &bootToCommand{Address: addr, Length: uint32(len(payload))}
	if err := e.sendCommand(cmd); err != nil {
		return err
	}
	if err := writeFrame(e.conn, bulkData, payload); err != nil {
		return err
	}
	if _, _, err := readFrame(e.conn); err != nil { // progress/ack frames, ignored here
		return err
	}
	return e.finishCommand()
}

func (e *Engine) performSLA() error {
	purpose := auth.PurposeDaSla
	if e.state < da.StateDA1Uploaded {
		purpose = auth.PurposeBromSla
	}
	_, payload, err := readFrame(e.conn)
	if err != nil {
		return err
	}
	if len(payload) < 8 {
		return perr.NewProtocol("xml: SLA challenge frame too short")
	}
	req := &auth.SignRequest{
		Rnd:     payload,
		SocID:   e.info.SoCID,
		HRID:    e.info.HRID,
		Purpose: purpose,
		PubkMod: payload,
	}
	sig, err := e.authManager().Sign(req)
	if err != nil {
		return err
	}
	return writeFrame(e.conn, bulkData, sig)
}

type rebootCommand struct {
	Mode string `penumbra:"mode"`
}

func (e *Engine) Reboot(mode da.RebootMode) error {
	modeStr := "NORMAL"
	switch mode {
	case da.RebootToMeta:
		modeStr = "META"
	case da.RebootToRecovery:
		modeStr = "RECOVERY"
	}
	if err := e.sendCommand(&rebootCommand{Mode: modeStr}); err != nil {
		return err
	}
	return e.finishCommand()
}

type shutdownCommand struct{}

func (e *Engine) Shutdown() error {
	if err := e.sendCommand(&shutdownCommand{}); err != nil {
		return err
	}
	return e.finishCommand()
}

// Download implements the download-file sub-protocol (spec.md §4.3):
// chunks of at most e.packetSize, each with the standard 12-byte header,
// and a progress ack the sender must consume before continuing.
type downloadFileCommand struct {
	Partition string `penumbra:"partition"`
	Length    uint64 `penumbra:"length"`
}

func (e *Engine) Download(part model.Partition, source io.Reader, size uint64, progress da.ProgressFunc) error {
	cmd := &downloadFileCommand{Partition: part.Name, Length: size}
	if err := e.sendCommand(cmd); err != nil {
		return err
	}

	buf := make([]byte, e.packetSize)
	var written uint64
	for written < size {
		want := e.packetSize
		if remaining := size - written; remaining < uint64(want) {
			want = int(remaining)
		}
		n, err := io.ReadFull(source, buf[:want])
		if n == 0 && err != nil {
			return perr.NewIo("read download-file chunk", err)
		}
		if err := writeFrame(e.conn, bulkData, buf[:n]); err != nil {
			return err
		}
		written += uint64(n)
		if progress != nil {
			progress(written, size)
		}
		if _, _, err := readFrame(e.conn); err != nil { // progress ack
			return err
		}
	}
	return e.finishCommand()
}

type uploadFileCommand struct {
	Partition string `penumbra:"partition"`
}

func (e *Engine) Upload(part model.Partition, sink io.Writer, progress da.ProgressFunc) error {
	cmd := &uploadFileCommand{Partition: part.Name}
	if err := e.sendCommand(cmd); err != nil {
		return err
	}

	var written uint64
	for written < part.Size {
		_, chunk, err := readFrame(e.conn)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}
		if _, err := sink.Write(chunk); err != nil {
			return perr.NewIo("write upload-file chunk to sink", err)
		}
		written += uint64(len(chunk))
		if progress != nil {
			progress(written, part.Size)
		}
		if err := e.LifetimeAck(StageProgress); err != nil {
			return err
		}
	}
	return e.finishCommand()
}

type formatCommand struct {
	Partition string `penumbra:"partition"`
}

func (e *Engine) Format(part model.Partition, progress da.ProgressFunc) error {
	if err := e.sendCommand(&formatCommand{Partition: part.Name}); err != nil {
		return err
	}
	if progress != nil {
		progress(0, part.Size)
	}
	if err := e.finishCommand(); err != nil {
		return err
	}
	if progress != nil {
		progress(part.Size, part.Size)
	}
	return nil
}

type eraseCommand struct {
	Partition string `penumbra:"partition"`
}

func (e *Engine) ErasePartition(part model.Partition, progress da.ProgressFunc) error {
	if err := e.sendCommand(&eraseCommand{Partition: part.Name}); err != nil {
		return err
	}
	if progress != nil {
		progress(0, part.Size)
	}
	if err := e.finishCommand(); err != nil {
		return err
	}
	if progress != nil {
		progress(part.Size, part.Size)
	}
	return nil
}

type getPartitionsCommand struct{}

// GetPartitions fetches the partition table encoded as repeated
// <partition><name/><size/><address/><kind/></partition> elements inside
// <command><partitions>...</partitions></command>.
func (e *Engine) GetPartitions() ([]model.Partition, error) {
	if err := e.sendCommand(&getPartitionsCommand{}); err != nil {
		return nil, err
	}
	_, payload, err := readFrame(e.conn)
	if err != nil {
		return nil, err
	}
	if err := e.finishCommand(); err != nil {
		return nil, err
	}
	return parsePartitionList(string(payload)), nil
}

// parsePartitionList scans payload for repeated <partition>...</partition>
// elements, each carrying name/size/address/kind children, per the XML
// engine's own GetPartitions response shape.
func parsePartitionList(payload string) []model.Partition {
	var out []model.Partition
	remaining := payload
	for {
		start := strings.Index(remaining, "<partition>")
		if start == -1 {
			break
		}
		end := strings.Index(remaining[start:], "</partition>")
		if end == -1 {
			break
		}
		block := remaining[start : start+end+len("</partition>")]
		remaining = remaining[start+end+len("</partition>"):]

		name, _ := GetTag(block, "partition/name")
		sizeStr, _ := GetTag(block, "partition/size")
		addrStr, _ := GetTag(block, "partition/address")
		kindStr, _ := GetTag(block, "partition/kind")

		size, _ := strconv.ParseUint(sizeStr, 10, 64)
		addr, _ := strconv.ParseUint(addrStr, 10, 64)
		kind, _ := strconv.Atoi(kindStr)

		out = append(out, model.Partition{
			Name:    name,
			Size:    size,
			Address: addr,
			Kind:    model.PartitionKind(kind),
		})
	}
	return out
}

var _ da.DAProtocol = (*Engine)(nil)
