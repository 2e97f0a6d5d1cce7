package tuya

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
)

// Frame markers for the 55AA framing used by protocol 3.1-3.3
const (
	framePrefix uint32 = 0x000055AA
	frameSuffix uint32 = 0x0000AA55

	headerSize  = 16 // prefix, seq, command, length
	trailerSize = 8  // crc32, suffix

	// maxPayload bounds a single frame; real devices stay far below this
	maxPayload = 64 * 1024
)

// Command codes
const (
	CommandControl   uint32 = 0x07
	CommandStatus    uint32 = 0x08
	CommandHeartBeat uint32 = 0x09
	CommandDPQuery   uint32 = 0x0a
)

// versionHeader is prepended to encrypted CONTROL payloads in protocol 3.3
var versionHeader = append([]byte("3.3"), make([]byte, 12)...)

var (
	ErrBadPrefix   = errors.New("bad frame prefix")
	ErrBadSuffix   = errors.New("bad frame suffix")
	ErrBadChecksum = errors.New("frame checksum mismatch")
	ErrFrameSize   = errors.New("frame length out of range")
)

// Frame is one decoded 55AA message
type Frame struct {
	Seq        uint32
	Command    uint32
	ReturnCode uint32
	HasReturn  bool
	Payload    []byte
}

// encodeFrame serializes a client-to-device frame (no return code)
func encodeFrame(seq, command uint32, payload []byte) []byte {
	buf := make([]byte, 0, headerSize+len(payload)+trailerSize)
	buf = binary.BigEndian.AppendUint32(buf, framePrefix)
	buf = binary.BigEndian.AppendUint32(buf, seq)
	buf = binary.BigEndian.AppendUint32(buf, command)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)+trailerSize))
	buf = append(buf, payload...)
	buf = binary.BigEndian.AppendUint32(buf, crc32.ChecksumIEEE(buf))
	buf = binary.BigEndian.AppendUint32(buf, frameSuffix)
	return buf
}

// readFrame reads and verifies one frame.
// Device-originated payloads start with a 4-byte return code whose top three bytes are zero;
// it is split off into ReturnCode when present.
func readFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	if binary.BigEndian.Uint32(header[0:4]) != framePrefix {
		return nil, ErrBadPrefix
	}

	length := binary.BigEndian.Uint32(header[12:16])
	if length < trailerSize || length > maxPayload {
		return nil, fmt.Errorf("%w: %d", ErrFrameSize, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}

	payload := body[:len(body)-trailerSize]
	crc := binary.BigEndian.Uint32(body[len(body)-trailerSize : len(body)-4])
	if binary.BigEndian.Uint32(body[len(body)-4:]) != frameSuffix {
		return nil, ErrBadSuffix
	}

	sum := crc32.NewIEEE()
	sum.Write(header)
	sum.Write(payload)
	if sum.Sum32() != crc {
		return nil, ErrBadChecksum
	}

	f := &Frame{
		Seq:     binary.BigEndian.Uint32(header[4:8]),
		Command: binary.BigEndian.Uint32(header[8:12]),
		Payload: payload,
	}

	if len(payload) >= 4 && payload[0] == 0 && payload[1] == 0 && payload[2] == 0 {
		f.ReturnCode = binary.BigEndian.Uint32(payload[:4])
		f.HasReturn = true
		f.Payload = payload[4:]
	}

	return f, nil
}

// stripVersionHeader removes a leading "3.3" + 12 byte header if present
func stripVersionHeader(payload []byte) []byte {
	if bytes.HasPrefix(payload, []byte("3.3")) && len(payload) >= len(versionHeader) {
		return payload[len(versionHeader):]
	}
	return payload
}
