package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Protocol constants shared with the mixing server
const (
	// Protocol version carried in every frame
	Version = 1

	// Message types
	MsgTypeAudio   = 0x00
	MsgTypeControl = 0x01
	MsgTypeAck     = 0x02

	// Control sub-opcodes
	CtrlRegister  = 1
	CtrlHeartbeat = 2
	CtrlPTT       = 3
	CtrlChanUpd   = 4
	CtrlPosition  = 5
	CtrlPresence  = 6

	// Frame structure sizes
	OuterHeaderSize = 12 // 1 + 1 + 2 + 4 + 4 bytes
	CtrlHeaderSize  = 3  // 1 + 2 bytes
	HeaderSize      = OuterHeaderSize + CtrlHeaderSize

	// MaxBodySize is the largest control body the 16-bit length field
	// can describe.
	MaxBodySize = 0xFFFF
)

// ErrBodyTooLarge is returned when a control body exceeds the 16-bit
// length field. This is a caller contract violation, not a transient
// condition: the frame must never be emitted truncated or corrupt.
var ErrBodyTooLarge = errors.New("control body exceeds 65535 bytes")

// Frame is one control frame on the wire.
// Layout (big-endian, no padding):
//
//	[Version:1][MsgType:1][Seq:2][TS48:4][SSRC:4][CtrlCode:1][BodyLen:2][Body:N]
//
// TS48 is a media-clock timestamp in 48 kHz ticks since process start.
// SSRC identifies the subject of the message (player, antenna group, or
// the server itself).
type Frame struct {
	Version  uint8
	MsgType  uint8
	Seq      uint16
	TS48     uint32
	SSRC     uint32
	CtrlCode uint8
	Body     []byte
}

// EncodeFrame serializes a control frame. The returned slice is exactly
// HeaderSize + len(Body) bytes; the body is never truncated or padded.
func EncodeFrame(f *Frame) ([]byte, error) {
	if len(f.Body) > MaxBodySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrBodyTooLarge, len(f.Body))
	}

	buf := make([]byte, HeaderSize+len(f.Body))
	buf[0] = f.Version
	buf[1] = f.MsgType
	binary.BigEndian.PutUint16(buf[2:4], f.Seq)
	binary.BigEndian.PutUint32(buf[4:8], f.TS48)
	binary.BigEndian.PutUint32(buf[8:12], f.SSRC)
	buf[12] = f.CtrlCode
	binary.BigEndian.PutUint16(buf[13:15], uint16(len(f.Body)))
	copy(buf[HeaderSize:], f.Body)
	return buf, nil
}

// Decode parses a control frame, the receive-side mirror of EncodeFrame.
// The bridge itself only transmits; Decode exists so conforming peers
// (and the mock mixer) can consume the stream.
func Decode(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	f := &Frame{
		Version:  data[0],
		MsgType:  data[1],
		Seq:      binary.BigEndian.Uint16(data[2:4]),
		TS48:     binary.BigEndian.Uint32(data[4:8]),
		SSRC:     binary.BigEndian.Uint32(data[8:12]),
		CtrlCode: data[12],
	}

	if f.Version != Version {
		return nil, fmt.Errorf("unsupported protocol version: %d", f.Version)
	}
	if f.MsgType != MsgTypeControl {
		return nil, fmt.Errorf("unsupported message type: 0x%02x", f.MsgType)
	}

	bodyLen := int(binary.BigEndian.Uint16(data[13:15]))
	if len(data) != HeaderSize+bodyLen {
		return nil, fmt.Errorf("frame length mismatch: header says %d body bytes, frame carries %d",
			bodyLen, len(data)-HeaderSize)
	}

	if bodyLen > 0 {
		f.Body = make([]byte, bodyLen)
		copy(f.Body, data[HeaderSize:])
	}
	return f, nil
}

// String returns a human-readable representation of the frame header.
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{Ver:%d, Type:%s, Seq:%d, TS48:%d, SSRC:%d, Ctrl:%s, BodyLen:%d}",
		f.Version, msgTypeString(f.MsgType), f.Seq, f.TS48, f.SSRC, ctrlCodeString(f.CtrlCode), len(f.Body))
}

func msgTypeString(t uint8) string {
	switch t {
	case MsgTypeAudio:
		return "Audio"
	case MsgTypeControl:
		return "Control"
	case MsgTypeAck:
		return "Ack"
	default:
		return fmt.Sprintf("Unknown(0x%02x)", t)
	}
}

func ctrlCodeString(c uint8) string {
	switch c {
	case CtrlRegister:
		return "Register"
	case CtrlHeartbeat:
		return "Heartbeat"
	case CtrlPTT:
		return "PTT"
	case CtrlChanUpd:
		return "ChanUpd"
	case CtrlPosition:
		return "Position"
	case CtrlPresence:
		return "Presence"
	default:
		return fmt.Sprintf("Unknown(%d)", c)
	}
}
