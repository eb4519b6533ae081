package gamenet

import (
	"encoding/binary"
	"fmt"
)

// Wire channel tags.
const (
	chanReliable   byte = 0x01
	chanUnreliable byte = 0x02
	chanSACK       byte = 0x03
)

// headerLength is the fixed frame header: chan(1) + seq(2) + ts_ms(4).
const headerLength = 7

// packet is one parsed wire frame. For RELIABLE_DATA frames seq is the
// reliable sequence number, for UNRELIABLE frames the unreliable counter,
// and for SACK frames the cumulative ack.
type packet struct {
	ch      byte
	seq     uint16
	ts      uint32
	payload []byte
}

func marshalPacket(ch byte, seq uint16, ts uint32, payload []byte) []byte {
	buf := make([]byte, headerLength+len(payload))
	buf[0] = ch
	binary.BigEndian.PutUint16(buf[1:3], seq)
	binary.BigEndian.PutUint32(buf[3:7], ts)
	copy(buf[headerLength:], payload)
	return buf
}

func parsePacket(buf []byte) (packet, error) {
	if len(buf) < headerLength {
		return packet{}, fmt.Errorf("frame too short: %d bytes (need at least %d)", len(buf), headerLength)
	}
	ch := buf[0]
	if ch != chanReliable && ch != chanUnreliable && ch != chanSACK {
		return packet{}, fmt.Errorf("unknown channel tag 0x%02x", ch)
	}
	pkt := packet{
		ch:  ch,
		seq: binary.BigEndian.Uint16(buf[1:3]),
		ts:  binary.BigEndian.Uint32(buf[3:7]),
	}
	if len(buf) > headerLength {
		pkt.payload = make([]byte, len(buf)-headerLength)
		copy(pkt.payload, buf[headerLength:])
	}
	return pkt, nil
}

// refreshTimestamp rewrites the ts_ms field of an already-built frame.
// Retransmits reuse the original frame bytes with a current stamp.
func refreshTimestamp(frame []byte, ts uint32) {
	binary.BigEndian.PutUint32(frame[3:7], ts)
}

// seqBefore reports whether a precedes b in the 16-bit modular sequence
// space: a < b iff (b - a) mod 2^16 lies in (0, 2^15).
func seqBefore(a, b uint16) bool {
	d := b - a
	return d != 0 && d < 0x8000
}

// seqLEQ reports a == b or a before b.
func seqLEQ(a, b uint16) bool {
	return a == b || seqBefore(a, b)
}
