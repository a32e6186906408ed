// Package buffer recovers sender order from an RTP packet stream: it tracks
// the 16-bit sequence space, holds out-of-order packets in a bounded, time
// limited queue and emits decoded payloads in strictly increasing sequence
// order.
package buffer

import (
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/pion/rtp"
	"go.uber.org/atomic"
)

type JitterBufferConfig struct {
	PayloadType      uint8         `yaml:"payload_type,omitempty"`
	ClockRate        uint32        `yaml:"clock_rate,omitempty"`
	ReorderPackets   bool          `yaml:"reorder_packets,omitempty"`
	ReorderingTime   time.Duration `yaml:"reordering_time,omitempty"`
	MaxJitterPackets int           `yaml:"max_jitter_packets,omitempty"`
	MaxAssemblyBytes int           `yaml:"max_assembly_bytes,omitempty"`
}

var DefaultJitterBufferConfig = JitterBufferConfig{
	PayloadType:      0, // PCMU
	ClockRate:        8000,
	ReorderPackets:   true,
	ReorderingTime:   50 * time.Millisecond,
	MaxJitterPackets: 5,
	MaxAssemblyBytes: 16384,
}

type JitterBufferParams struct {
	Config JitterBufferConfig
	Logger logger.Logger
}

type jitterQueueEntry struct {
	packet  *rtp.Packet
	arrival time.Time
}

// JitterStats is a snapshot of the buffer's counters.
type JitterStats struct {
	PacketsDecoded  uint64
	OutOfOrderCount uint32
	LateCount       uint32
	DuplicateCount  uint32
	MismatchCount   uint32
	QueueLength     int
}

// JitterBuffer reorders packets for a single stream. All methods must be
// called from one goroutine; nothing blocks.
type JitterBuffer struct {
	params JitterBufferParams

	tracker  SequenceTracker
	queue    []jitterQueueEntry // sorted by wrap aware sequence order
	codec    Codec
	assembly []byte

	packetsDecoded  atomic.Uint64
	outOfOrderCount atomic.Uint32
	lateCount       atomic.Uint32
	duplicateCount  atomic.Uint32
	mismatchCount   atomic.Uint32
}

func NewJitterBuffer(params JitterBufferParams) *JitterBuffer {
	return &JitterBuffer{
		params: params,
	}
}

// SetCodec installs the codec capability. A nil codec means raw pass-through:
// payload bytes are emitted as samples unchanged.
func (j *JitterBuffer) SetCodec(codec Codec) {
	j.codec = codec
}

// ProcessPacket runs one packet through the reordering policy and returns
// every payload that became ready, in strictly increasing sequence order.
// Dropped packets (payload type mismatch, too old) produce no output and no
// error.
func (j *JitterBuffer) ProcessPacket(pkt *rtp.Packet, arrival time.Time) ([]*MediaPayload, error) {
	if pkt == nil {
		return nil, ErrNilPacket
	}

	if pkt.PayloadType != j.params.Config.PayloadType {
		j.mismatchCount.Inc()
		j.params.Logger.Warnw(
			"dropping packet with unexpected payload type", nil,
			"expected", j.params.Config.PayloadType,
			"got", pkt.PayloadType,
			"sn", pkt.SequenceNumber,
		)
		return nil, nil
	}

	if !j.params.Config.ReorderPackets {
		var out []*MediaPayload
		return j.decodeInto(out, pkt)
	}

	seq := pkt.SequenceNumber
	if j.tracker.IsTooOld(seq) {
		j.lateCount.Inc()
		j.params.Logger.Debugw("dropping stale packet", "sn", seq, "highest", j.tracker.HighestSeq())
		return nil, nil
	}

	if j.tracker.IsInSequence(seq) {
		out, err := j.decodeInto(nil, pkt)
		if err != nil {
			return out, err
		}
		return j.drainQueue(out)
	}

	if !j.insertSorted(pkt, arrival) {
		j.duplicateCount.Inc()
		return nil, nil
	}
	j.outOfOrderCount.Inc()

	out, err := j.flushTimedOut(nil, arrival)
	if err != nil {
		return out, err
	}
	return j.enforceCapacity(out)
}

// Tick force-decodes queue entries that have waited past the reordering
// deadline. Callers needing bounded output latency under total packet loss
// should invoke it periodically; packet arrival alone only flushes
// reactively.
func (j *JitterBuffer) Tick(now time.Time) ([]*MediaPayload, error) {
	return j.flushTimedOut(nil, now)
}

func (j *JitterBuffer) Stats() JitterStats {
	return JitterStats{
		PacketsDecoded:  j.packetsDecoded.Load(),
		OutOfOrderCount: j.outOfOrderCount.Load(),
		LateCount:       j.lateCount.Load(),
		DuplicateCount:  j.duplicateCount.Load(),
		MismatchCount:   j.mismatchCount.Load(),
		QueueLength:     len(j.queue),
	}
}

// Reset clears tracker, queue and assembly state unconditionally.
func (j *JitterBuffer) Reset() {
	j.tracker.Reset()
	j.queue = nil
	j.assembly = nil
}

// decodeInto decodes one packet, appends any produced payload to out and
// advances the sequence tracker.
func (j *JitterBuffer) decodeInto(out []*MediaPayload, pkt *rtp.Packet) ([]*MediaPayload, error) {
	j.tracker.Update(pkt.SequenceNumber)

	if j.codec == nil {
		samples := append([]byte(nil), pkt.Payload...)
		j.packetsDecoded.Inc()
		return append(out, &MediaPayload{
			Samples:        samples,
			Timestamp:      pkt.Timestamp,
			SequenceNumber: pkt.SequenceNumber,
			Marker:         pkt.Marker,
		}), nil
	}

	j.assembly = append(j.assembly, pkt.Payload...)
	if max := j.params.Config.MaxAssemblyBytes; max > 0 && len(j.assembly) > max {
		j.assembly = nil
		return out, ErrAssemblyOverflow
	}

	samples, ok := j.codec.Decode(j.assembly)
	if !ok {
		// needs more bytes, keep accumulating
		return out, nil
	}

	j.assembly = j.assembly[:0]
	j.packetsDecoded.Inc()
	return append(out, &MediaPayload{
		Samples:        samples,
		Timestamp:      pkt.Timestamp,
		SequenceNumber: pkt.SequenceNumber,
		Marker:         pkt.Marker,
	}), nil
}

// drainQueue pops and decodes queue entries for as long as the front has
// become in-sequence.
func (j *JitterBuffer) drainQueue(out []*MediaPayload) ([]*MediaPayload, error) {
	for len(j.queue) > 0 && j.tracker.IsInSequence(j.queue[0].packet.SequenceNumber) {
		entry := j.queue[0]
		j.queue = j.queue[1:]

		var err error
		out, err = j.decodeInto(out, entry.packet)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// flushTimedOut force-decodes front entries older than the reordering
// deadline regardless of order, then drains anything that became
// in-sequence behind them.
func (j *JitterBuffer) flushTimedOut(out []*MediaPayload, now time.Time) ([]*MediaPayload, error) {
	for len(j.queue) > 0 && now.Sub(j.queue[0].arrival) >= j.params.Config.ReorderingTime {
		entry := j.queue[0]
		j.queue = j.queue[1:]

		var err error
		out, err = j.decodeInto(out, entry.packet)
		if err != nil {
			return out, err
		}
		out, err = j.drainQueue(out)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// enforceCapacity evicts oldest entries while the queue exceeds the
// configured maximum. Evicted entries are decoded rather than discarded so
// their media is not lost; ordering stays strictly increasing because the
// front is always the lowest queued sequence number.
func (j *JitterBuffer) enforceCapacity(out []*MediaPayload) ([]*MediaPayload, error) {
	for len(j.queue) > j.params.Config.MaxJitterPackets {
		entry := j.queue[0]
		j.queue = j.queue[1:]

		var err error
		out, err = j.decodeInto(out, entry.packet)
		if err != nil {
			return out, err
		}
		out, err = j.drainQueue(out)
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// insertSorted places the packet into the queue keeping wrap aware sequence
// order. It reports false for duplicates.
func (j *JitterBuffer) insertSorted(pkt *rtp.Packet, arrival time.Time) bool {
	seq := pkt.SequenceNumber
	pos := len(j.queue)
	for i, entry := range j.queue {
		if entry.packet.SequenceNumber == seq {
			return false
		}
		if isNewerSeq(entry.packet.SequenceNumber, seq) {
			pos = i
			break
		}
	}
	if seq == j.tracker.LastSeq() {
		return false
	}

	j.queue = append(j.queue, jitterQueueEntry{})
	copy(j.queue[pos+1:], j.queue[pos:])
	j.queue[pos] = jitterQueueEntry{packet: pkt, arrival: arrival}
	return true
}
