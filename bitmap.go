package gamenet

// sackBitmap is the selective-ack bitmap carried in a SACK frame. Bit i of
// byte j represents sequence (base + 8*j + i) mod 2^16, where base is
// cumAck+1. Width is the number of sequences the bitmap can cover.
type sackBitmap struct {
	base  uint16
	width int
	bits  []byte
}

func newSackBitmap(base uint16, width int) *sackBitmap {
	return &sackBitmap{
		base:  base,
		width: width,
		bits:  make([]byte, (width+7)/8),
	}
}

// mark flags seq as received. Sequences before base or beyond the bitmap
// width are ignored.
func (m *sackBitmap) mark(seq uint16) {
	offset := int(seq - m.base)
	if seqBefore(seq, m.base) || offset >= m.width {
		return
	}
	m.bits[offset/8] |= 1 << (offset % 8)
}

func (m *sackBitmap) marked(seq uint16) bool {
	offset := int(seq - m.base)
	if seqBefore(seq, m.base) || offset >= m.width {
		return false
	}
	return m.bits[offset/8]&(1<<(offset%8)) != 0
}

// bytes serializes the bitmap with trailing zero bytes trimmed. An
// all-zero bitmap serializes to nil, the cumulative-only SACK payload.
func (m *sackBitmap) bytes() []byte {
	end := len(m.bits)
	for end > 0 && m.bits[end-1] == 0 {
		end--
	}
	if end == 0 {
		return nil
	}
	out := make([]byte, end)
	copy(out, m.bits)
	return out
}

// forEachMarked calls fn for every flagged sequence of a received bitmap
// payload, in ascending modular order from base = cumAck+1.
func forEachMarked(cumAck uint16, payload []byte, width int, fn func(seq uint16)) {
	maxBytes := (width + 7) / 8
	if len(payload) > maxBytes {
		payload = payload[:maxBytes]
	}
	base := cumAck + 1
	for j, b := range payload {
		for i := 0; i < 8; i++ {
			if b&(1<<i) != 0 {
				fn(base + uint16(8*j+i))
			}
		}
	}
}
