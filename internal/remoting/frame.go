// Package remoting implements the endpoint transport bridge: per-authority
// association, a versioned handshake, and reliable system-message delivery
// with per-authority sequence numbers. Inbound frames are dispatched by each
// connection's own read goroutine; there is no shared worker pool and no
// bound on how many connections dispatch at once.
package remoting

import "encoding/binary"

// FrameKind is the second byte of every wire frame (the first is a magic
// byte shared by all frames, see Encode/Decode).
type FrameKind byte

const (
	KindOffer        FrameKind = 0x01
	KindAck          FrameKind = 0x02
	KindUser         FrameKind = 0x10
	KindSystem       FrameKind = 0x20
	KindSystemAck    FrameKind = 0x21
	KindSystemNack   FrameKind = 0x22
	KindFlush        FrameKind = 0x30
	KindFlushAck     FrameKind = 0x31
	KindHeartbeat    FrameKind = 0x40
	KindHeartbeatRsp FrameKind = 0x41
)

const frameMagic byte = 0xF7

var instrumentMarker = [2]byte{0xA5, 0x7C}

// Frame is one decoded wire message.
type Frame struct {
	Kind    FrameKind
	Payload []byte
}

// Encode writes the two-byte header followed by payload.
func Encode(kind FrameKind, payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	out[0] = frameMagic
	out[1] = byte(kind)
	copy(out[2:], payload)
	return out
}

// Decode reads the header and returns the remaining payload bytes. It
// does not validate the magic byte's value beyond requiring it be
// present; callers needing strict framing should compare against
// frameMagic explicitly.
func Decode(raw []byte) (Frame, bool) {
	if len(raw) < 2 {
		return Frame{}, false
	}
	return Frame{Kind: FrameKind(raw[1]), Payload: raw[2:]}, true
}

// AppendInstrumentTrailer appends a 6-byte remote-instrument trailer:
// [metadata | metadata_len:u32-le | marker].
func AppendInstrumentTrailer(payload, metadata []byte) []byte {
	out := make([]byte, 0, len(payload)+len(metadata)+6)
	out = append(out, payload...)
	out = append(out, metadata...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(metadata)))
	out = append(out, lenBuf[:]...)
	out = append(out, instrumentMarker[:]...)
	return out
}

// SplitInstrumentTrailer reports whether payload ends with a valid
// trailer and, if so, returns the payload with the trailer stripped and
// the metadata bytes separately. The trailer is only recognized when the
// last two bytes match the marker and payload is at least 6 bytes long.
func SplitInstrumentTrailer(payload []byte) (body, metadata []byte, ok bool) {
	if len(payload) < 6 {
		return payload, nil, false
	}
	if payload[len(payload)-2] != instrumentMarker[0] || payload[len(payload)-1] != instrumentMarker[1] {
		return payload, nil, false
	}
	metaLen := binary.LittleEndian.Uint32(payload[len(payload)-6 : len(payload)-2])
	bodyEnd := len(payload) - 6 - int(metaLen)
	if bodyEnd < 0 {
		return payload, nil, false
	}
	return payload[:bodyEnd], payload[bodyEnd : len(payload)-6], true
}
