package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"

	"golang.org/x/text/unicode/norm"
)

const (
	ProtocolVersion = 1
	MaxStringLen    = math.MaxUint16
	MaxListLen      = math.MaxUint16

	// NoTime is the decoded form of a negative wire duration.
	NoTime time.Duration = -1
)

type PacketType uint8

// relay -> core
const (
	PacketTypeHello            PacketType = 0
	PacketTypeMapStart         PacketType = 1
	PacketTypeMapBegin         PacketType = 2
	PacketTypeRoundStart       PacketType = 3
	PacketTypeRoundEnd         PacketType = 4
	PacketTypeWaypoint         PacketType = 5
	PacketTypeStartLine        PacketType = 6
	PacketTypeFinish           PacketType = 7
	PacketTypePlayerConnect    PacketType = 8
	PacketTypePlayerDisconnect PacketType = 9
	PacketTypePlayerInfo       PacketType = 10
	PacketTypeChat             PacketType = 11
	PacketTypeReply            PacketType = 12
	PacketTypeStandingsAction  PacketType = 13
)

// core -> relay
const (
	PacketTypeCall      PacketType = 32
	PacketTypeMulticall PacketType = 33
	PacketTypeChatSend  PacketType = 34
	PacketTypeStandings PacketType = 35
	PacketTypeTimer     PacketType = 36
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeHello:
		return "hello"
	case PacketTypeMapStart:
		return "map_start"
	case PacketTypeMapBegin:
		return "map_begin"
	case PacketTypeRoundStart:
		return "round_start"
	case PacketTypeRoundEnd:
		return "round_end"
	case PacketTypeWaypoint:
		return "waypoint"
	case PacketTypeStartLine:
		return "start_line"
	case PacketTypeFinish:
		return "finish"
	case PacketTypePlayerConnect:
		return "player_connect"
	case PacketTypePlayerDisconnect:
		return "player_disconnect"
	case PacketTypePlayerInfo:
		return "player_info"
	case PacketTypeChat:
		return "chat"
	case PacketTypeReply:
		return "reply"
	case PacketTypeStandingsAction:
		return "standings_action"
	case PacketTypeCall:
		return "call"
	case PacketTypeMulticall:
		return "multicall"
	case PacketTypeChatSend:
		return "chat_send"
	case PacketTypeStandings:
		return "standings"
	case PacketTypeTimer:
		return "timer"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

type Packet interface {
	Type() PacketType
	Write(w io.Writer) error
	Read(data []byte) error
}

type PacketHello struct {
	Version    uint8
	ServerName string
}

type PacketMapStart struct {
	MapUID  string
	Restart bool
}

type PacketMapBegin struct {
	MapUID string
}

type PacketRoundStart struct {
	Count int32
	Time  time.Duration
}

type PacketRoundEnd struct {
	Count int32
	Time  time.Duration
}

type PacketWaypoint struct {
	Login            string
	RaceTime         time.Duration
	CheckpointInRace int32
}

type PacketStartLine struct {
	Login string
}

type PacketFinish struct {
	Login            string
	RaceTime         time.Duration
	CheckpointInRace int32
	IsEndRace        bool
	Checkpoints      []time.Duration
}

type PacketPlayerConnect struct {
	Login     string
	Nickname  string
	Spectator bool
}

type PacketPlayerDisconnect struct {
	Login string
}

type PacketPlayerInfo struct {
	Login     string
	Spectator bool
	Target    string
}

type PacketChat struct {
	Login   string
	Message string
}

type PacketReply struct {
	ID     uint32
	Fault  string
	Result []byte
}

type PacketStandingsAction struct {
	Login  string
	Action string
}

// PacketCall invokes a race server method. Params is a JSON array.
type PacketCall struct {
	ID     uint32
	Method string
	Params []byte
}

type MulticallEntry struct {
	Method string
	Params []byte
}

type PacketMulticall struct {
	ID    uint32
	Calls []MulticallEntry
}

type PacketChatSend struct {
	Recipients []string
	Message    string
}

// PacketStandings carries a JSON encoded standings view for one viewer. An
// empty viewer with no view hides the widget for everyone.
type PacketStandings struct {
	Viewer string
	View   []byte
}

// PacketTimer shows a countdown title, or hides it when Title is empty.
type PacketTimer struct {
	Title string
}

func (p *PacketHello) Type() PacketType            { return PacketTypeHello }
func (p *PacketMapStart) Type() PacketType         { return PacketTypeMapStart }
func (p *PacketMapBegin) Type() PacketType         { return PacketTypeMapBegin }
func (p *PacketRoundStart) Type() PacketType       { return PacketTypeRoundStart }
func (p *PacketRoundEnd) Type() PacketType         { return PacketTypeRoundEnd }
func (p *PacketWaypoint) Type() PacketType         { return PacketTypeWaypoint }
func (p *PacketStartLine) Type() PacketType        { return PacketTypeStartLine }
func (p *PacketFinish) Type() PacketType           { return PacketTypeFinish }
func (p *PacketPlayerConnect) Type() PacketType    { return PacketTypePlayerConnect }
func (p *PacketPlayerDisconnect) Type() PacketType { return PacketTypePlayerDisconnect }
func (p *PacketPlayerInfo) Type() PacketType       { return PacketTypePlayerInfo }
func (p *PacketChat) Type() PacketType             { return PacketTypeChat }
func (p *PacketReply) Type() PacketType            { return PacketTypeReply }
func (p *PacketStandingsAction) Type() PacketType  { return PacketTypeStandingsAction }
func (p *PacketCall) Type() PacketType             { return PacketTypeCall }
func (p *PacketMulticall) Type() PacketType        { return PacketTypeMulticall }
func (p *PacketChatSend) Type() PacketType         { return PacketTypeChatSend }
func (p *PacketStandings) Type() PacketType        { return PacketTypeStandings }
func (p *PacketTimer) Type() PacketType            { return PacketTypeTimer }

func (p *PacketHello) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.u8(p.Version)
	e.str(p.ServerName)
	return e.flush(w)
}

func (p *PacketHello) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeHello)
	if err != nil {
		return err
	}
	p.Version = d.u8()
	p.ServerName = d.str()
	return d.finish()
}

func (p *PacketMapStart) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.MapUID)
	e.boolean(p.Restart)
	return e.flush(w)
}

func (p *PacketMapStart) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeMapStart)
	if err != nil {
		return err
	}
	p.MapUID = d.str()
	p.Restart = d.boolean()
	return d.finish()
}

func (p *PacketMapBegin) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.MapUID)
	return e.flush(w)
}

func (p *PacketMapBegin) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeMapBegin)
	if err != nil {
		return err
	}
	p.MapUID = d.str()
	return d.finish()
}

func (p *PacketRoundStart) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.i32(p.Count)
	e.duration(p.Time)
	return e.flush(w)
}

func (p *PacketRoundStart) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeRoundStart)
	if err != nil {
		return err
	}
	p.Count = d.i32()
	p.Time = d.duration()
	return d.finish()
}

func (p *PacketRoundEnd) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.i32(p.Count)
	e.duration(p.Time)
	return e.flush(w)
}

func (p *PacketRoundEnd) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeRoundEnd)
	if err != nil {
		return err
	}
	p.Count = d.i32()
	p.Time = d.duration()
	return d.finish()
}

func (p *PacketWaypoint) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Login)
	e.duration(p.RaceTime)
	e.i32(p.CheckpointInRace)
	return e.flush(w)
}

func (p *PacketWaypoint) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeWaypoint)
	if err != nil {
		return err
	}
	p.Login = d.str()
	p.RaceTime = d.duration()
	p.CheckpointInRace = d.i32()
	return d.finish()
}

func (p *PacketStartLine) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Login)
	return e.flush(w)
}

func (p *PacketStartLine) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeStartLine)
	if err != nil {
		return err
	}
	p.Login = d.str()
	return d.finish()
}

func (p *PacketFinish) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Login)
	e.duration(p.RaceTime)
	e.i32(p.CheckpointInRace)
	e.boolean(p.IsEndRace)
	e.u16(uint16(len(p.Checkpoints)))
	for _, cp := range p.Checkpoints {
		e.duration(cp)
	}
	return e.flush(w)
}

func (p *PacketFinish) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeFinish)
	if err != nil {
		return err
	}
	p.Login = d.str()
	p.RaceTime = d.duration()
	p.CheckpointInRace = d.i32()
	p.IsEndRace = d.boolean()
	n := int(d.u16())
	p.Checkpoints = nil
	if n > 0 {
		p.Checkpoints = make([]time.Duration, 0, min(n, len(data)/4))
		for i := 0; i < n && d.err == nil; i++ {
			p.Checkpoints = append(p.Checkpoints, d.duration())
		}
	}
	return d.finish()
}

func (p *PacketPlayerConnect) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Login)
	e.str(p.Nickname)
	e.boolean(p.Spectator)
	return e.flush(w)
}

func (p *PacketPlayerConnect) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypePlayerConnect)
	if err != nil {
		return err
	}
	p.Login = d.str()
	p.Nickname = d.str()
	p.Spectator = d.boolean()
	return d.finish()
}

func (p *PacketPlayerDisconnect) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Login)
	return e.flush(w)
}

func (p *PacketPlayerDisconnect) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypePlayerDisconnect)
	if err != nil {
		return err
	}
	p.Login = d.str()
	return d.finish()
}

func (p *PacketPlayerInfo) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Login)
	e.boolean(p.Spectator)
	e.str(p.Target)
	return e.flush(w)
}

func (p *PacketPlayerInfo) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypePlayerInfo)
	if err != nil {
		return err
	}
	p.Login = d.str()
	p.Spectator = d.boolean()
	p.Target = d.str()
	return d.finish()
}

func (p *PacketChat) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Login)
	e.str(p.Message)
	return e.flush(w)
}

func (p *PacketChat) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeChat)
	if err != nil {
		return err
	}
	p.Login = d.str()
	p.Message = d.str()
	return d.finish()
}

func (p *PacketReply) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.u32(p.ID)
	e.str(p.Fault)
	e.blob(p.Result)
	return e.flush(w)
}

func (p *PacketReply) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeReply)
	if err != nil {
		return err
	}
	p.ID = d.u32()
	p.Fault = d.str()
	p.Result = d.blob()
	return d.finish()
}

func (p *PacketStandingsAction) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Login)
	e.str(p.Action)
	return e.flush(w)
}

func (p *PacketStandingsAction) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeStandingsAction)
	if err != nil {
		return err
	}
	p.Login = d.str()
	p.Action = d.str()
	return d.finish()
}

func (p *PacketCall) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.u32(p.ID)
	e.str(p.Method)
	e.blob(p.Params)
	return e.flush(w)
}

func (p *PacketCall) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeCall)
	if err != nil {
		return err
	}
	p.ID = d.u32()
	p.Method = d.str()
	p.Params = d.blob()
	return d.finish()
}

func (p *PacketMulticall) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.u32(p.ID)
	e.u16(uint16(len(p.Calls)))
	for _, c := range p.Calls {
		e.str(c.Method)
		e.blob(c.Params)
	}
	return e.flush(w)
}

func (p *PacketMulticall) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeMulticall)
	if err != nil {
		return err
	}
	p.ID = d.u32()
	n := int(d.u16())
	p.Calls = nil
	for i := 0; i < n && d.err == nil; i++ {
		p.Calls = append(p.Calls, MulticallEntry{Method: d.str(), Params: d.blob()})
	}
	return d.finish()
}

func (p *PacketChatSend) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.u16(uint16(len(p.Recipients)))
	for _, r := range p.Recipients {
		e.str(r)
	}
	e.str(p.Message)
	return e.flush(w)
}

func (p *PacketChatSend) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeChatSend)
	if err != nil {
		return err
	}
	n := int(d.u16())
	p.Recipients = nil
	for i := 0; i < n && d.err == nil; i++ {
		p.Recipients = append(p.Recipients, d.str())
	}
	p.Message = d.str()
	return d.finish()
}

func (p *PacketStandings) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Viewer)
	e.blob(p.View)
	return e.flush(w)
}

func (p *PacketStandings) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeStandings)
	if err != nil {
		return err
	}
	p.Viewer = d.str()
	p.View = d.blob()
	return d.finish()
}

func (p *PacketTimer) Write(w io.Writer) error {
	e := newEncoder(p.Type())
	e.str(p.Title)
	return e.flush(w)
}

func (p *PacketTimer) Read(data []byte) error {
	d, err := newDecoder(data, PacketTypeTimer)
	if err != nil {
		return err
	}
	p.Title = d.str()
	return d.finish()
}

// Decode reads the packet type byte and decodes the matching packet.
func Decode(data []byte) (Packet, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("empty packet")
	}

	var p Packet
	switch PacketType(data[0]) {
	case PacketTypeHello:
		p = &PacketHello{}
	case PacketTypeMapStart:
		p = &PacketMapStart{}
	case PacketTypeMapBegin:
		p = &PacketMapBegin{}
	case PacketTypeRoundStart:
		p = &PacketRoundStart{}
	case PacketTypeRoundEnd:
		p = &PacketRoundEnd{}
	case PacketTypeWaypoint:
		p = &PacketWaypoint{}
	case PacketTypeStartLine:
		p = &PacketStartLine{}
	case PacketTypeFinish:
		p = &PacketFinish{}
	case PacketTypePlayerConnect:
		p = &PacketPlayerConnect{}
	case PacketTypePlayerDisconnect:
		p = &PacketPlayerDisconnect{}
	case PacketTypePlayerInfo:
		p = &PacketPlayerInfo{}
	case PacketTypeChat:
		p = &PacketChat{}
	case PacketTypeReply:
		p = &PacketReply{}
	case PacketTypeStandingsAction:
		p = &PacketStandingsAction{}
	case PacketTypeCall:
		p = &PacketCall{}
	case PacketTypeMulticall:
		p = &PacketMulticall{}
	case PacketTypeChatSend:
		p = &PacketChatSend{}
	case PacketTypeStandings:
		p = &PacketStandings{}
	case PacketTypeTimer:
		p = &PacketTimer{}
	default:
		return nil, fmt.Errorf("unknown packet type %d", data[0])
	}

	if err := p.Read(data); err != nil {
		return nil, err
	}
	return p, nil
}

func Marshal(p Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := p.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type encoder struct {
	buf bytes.Buffer
	err error
}

func newEncoder(t PacketType) *encoder {
	e := &encoder{}
	e.buf.WriteByte(uint8(t))
	return e
}

func (e *encoder) u8(v uint8) { e.buf.WriteByte(v) }

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) u16(v uint16) {
	e.buf.Write(binary.LittleEndian.AppendUint16(nil, v))
}

func (e *encoder) u32(v uint32) {
	e.buf.Write(binary.LittleEndian.AppendUint32(nil, v))
}

func (e *encoder) i32(v int32) { e.u32(uint32(v)) }

// durations travel as milliseconds; any negative value means "no time" and
// is sent as -1
func (e *encoder) duration(v time.Duration) {
	if v < 0 {
		e.i32(-1)
		return
	}
	ms := v.Milliseconds()
	if ms > math.MaxInt32 {
		e.fail(fmt.Errorf("duration %s out of range", v))
		return
	}
	e.i32(int32(ms))
}

func (e *encoder) str(s string) {
	if len(s) > MaxStringLen {
		e.fail(fmt.Errorf("string of %d bytes exceeds limit", len(s)))
		return
	}
	e.u16(uint16(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) blob(b []byte) {
	e.u32(uint32(len(b)))
	e.buf.Write(b)
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) flush(w io.Writer) error {
	if e.err != nil {
		return e.err
	}
	_, err := w.Write(e.buf.Bytes())
	return err
}

type decoder struct {
	data []byte
	off  int
	err  error
	kind PacketType
}

func newDecoder(data []byte, t PacketType) (*decoder, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("%s packet too small", t)
	}
	if PacketType(data[0]) != t {
		return nil, fmt.Errorf("expected %s packet, got %s", t, PacketType(data[0]))
	}
	return &decoder{data: data, off: 1, kind: t}, nil
}

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.data) {
		d.err = fmt.Errorf("%s packet too small", d.kind)
		return nil
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	b := d.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) boolean() bool { return d.u8() != 0 }

func (d *decoder) u16() uint16 {
	b := d.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) u32() uint32 {
	b := d.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) i32() int32 { return int32(d.u32()) }

func (d *decoder) duration() time.Duration {
	ms := d.i32()
	if ms < 0 {
		return NoTime
	}
	return time.Duration(ms) * time.Millisecond
}

// str decodes a length prefixed string and NFC-normalizes it so logins and
// nicknames compare equal regardless of how the client composed them.
func (d *decoder) str() string {
	n := int(d.u16())
	b := d.take(n)
	if b == nil {
		return ""
	}
	return norm.NFC.String(string(b))
}

func (d *decoder) blob() []byte {
	n := int(d.u32())
	b := d.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.off != len(d.data) {
		return fmt.Errorf("%s packet has %d trailing bytes", d.kind, len(d.data)-d.off)
	}
	return nil
}
