package protocol

import (
	"sync"
	"time"
)

// SeqGen hands out 16-bit sequence numbers, wrapping at 65536. Safe for
// concurrent use.
type SeqGen struct {
	mu  sync.Mutex
	seq uint16
}

// NewSeqGen returns a generator whose first Next call yields initial+1.
func NewSeqGen(initial uint16) *SeqGen {
	return &SeqGen{seq: initial}
}

// Next returns the next sequence number.
func (g *SeqGen) Next() uint16 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return g.seq
}

// Clock converts elapsed wall time since its creation into 48 kHz
// media-clock ticks, the timestamp unit of the frame header. Built on
// the monotonic reading inside time.Time, so it never goes backwards.
type Clock struct {
	origin time.Time
}

// NewClock starts a media clock at the current instant.
func NewClock() *Clock {
	return &Clock{origin: time.Now()}
}

// Now48 returns the current media-clock tick count. Wraps modulo 2^32
// after roughly 24.8 hours, matching the 32-bit timestamp field.
// Whole seconds are converted before the sub-second remainder so the
// intermediate product cannot overflow, no matter the uptime.
func (c *Clock) Now48() uint32 {
	el := time.Since(c.origin)
	ticks := uint64(el/time.Second) * 48000
	ticks += uint64(el%time.Second) * 48000 / uint64(time.Second)
	return uint32(ticks)
}

// Encoder stamps outgoing control frames with sequence numbers and
// media-clock timestamps. One Encoder backs one outbound flow; sequence
// numbers strictly increase (mod 65536) in send order.
type Encoder struct {
	seq   *SeqGen
	clock *Clock
}

// NewEncoder returns an encoder with a fresh sequence generator and
// media clock.
func NewEncoder() *Encoder {
	return &Encoder{seq: NewSeqGen(0), clock: NewClock()}
}

// Encode builds and serializes one control frame carrying the given
// sub-opcode, subject SSRC, and JSON body. Returns ErrBodyTooLarge
// (wrapped) if the body does not fit the 16-bit length field.
func (e *Encoder) Encode(ctrlCode uint8, ssrc uint32, body []byte) ([]byte, error) {
	return EncodeFrame(&Frame{
		Version:  Version,
		MsgType:  MsgTypeControl,
		Seq:      e.seq.Next(),
		TS48:     e.clock.Now48(),
		SSRC:     ssrc,
		CtrlCode: ctrlCode,
		Body:     body,
	})
}
