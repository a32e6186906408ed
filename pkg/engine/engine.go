// Package engine binds the per-stream machinery together: jitter buffering,
// reception statistics, bandwidth estimation, quality scoring and feedback
// generation for a single RTP stream (one SSRC). All methods must be called
// from one goroutine; the playout queue is the only concurrency-safe edge.
package engine

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/livekit/protocol/logger"
	"github.com/pion/rtp"

	"github.com/livekit/rtpengine/pkg/engine/buffer"
	"github.com/livekit/rtpengine/pkg/engine/bwe"
	"github.com/livekit/rtpengine/pkg/engine/connectionquality"
	"github.com/livekit/rtpengine/pkg/engine/feedback"
	"github.com/livekit/rtpengine/pkg/engine/ringbuffer"
	"github.com/livekit/rtpengine/pkg/engine/rtcp"
	"github.com/livekit/rtpengine/pkg/telemetry/prometheus"
)

const (
	rtpHeaderSize = 12

	// units of 1/65536 seconds, per the DLSR field definition
	dlsrResolution = 65536

	// forward jumps larger than this are treated as a stream restart
	// rather than loss
	maxNackGap = 64
)

type EngineConfig struct {
	// SSRC this engine reports as, i.e. the receiver's own
	LocalSSRC uint32 `yaml:"local_ssrc,omitempty"`

	JitterBuffer buffer.JitterBufferConfig      `yaml:"jitter_buffer,omitempty"`
	Congestion   bwe.CongestionControllerConfig `yaml:"congestion,omitempty"`
	Feedback     feedback.DecisionEngineConfig  `yaml:"feedback,omitempty"`

	// decoded payloads waiting for the playout consumer
	PlayoutQueueSize int `yaml:"playout_queue_size,omitempty"`

	NackEnabled bool `yaml:"nack_enabled,omitempty"`
}

var DefaultEngineConfig = EngineConfig{
	JitterBuffer:     buffer.DefaultJitterBufferConfig,
	Congestion:       bwe.DefaultCongestionControllerConfig,
	Feedback:         feedback.DefaultDecisionEngineConfig,
	PlayoutQueueSize: 256,
	NackEnabled:      true,
}

type EngineParams struct {
	Config EngineConfig
	Logger logger.Logger
}

// EngineStats is a snapshot of reception state.
type EngineStats struct {
	SSRC               uint32
	PacketsReceived    uint64
	PacketsLost        int64
	ExtendedHighestSeq uint64
	JitterMs           float64
	EstimatedBitrate   int64
	QualityScore       float64
	MOS                float64
	Jitter             buffer.JitterStats
	PlayoutQueueLength int
	PlayoutDropped     uint64
}

type Engine struct {
	params EngineParams

	jitterBuffer *buffer.JitterBuffer
	congestion   *bwe.CongestionController
	decision     *feedback.DecisionEngine
	nackQueue    *feedback.NackQueue
	playout      *ringbuffer.RingBuffer[*buffer.MediaPayload]

	// reception statistics, RFC 3550 appendix A style
	initialized   bool
	ssrc          uint32
	baseExtSeq    uint64
	extHighestSeq uint64
	received      uint64
	expectedPrior uint64
	receivedPrior uint64

	// interarrival jitter in RTP timestamp units
	firstTime    time.Time
	lastTransit  int64
	lastJitterTS uint32
	jitter       float64

	// from the peer's last sender report
	lastSRNTP     rtcp.NtpTimestamp
	lastSRArrival time.Time
	lastSRRTPTime uint32

	rtt time.Duration

	playoutDropped uint64
}

func NewEngine(params EngineParams) *Engine {
	return &Engine{
		params: params,
		jitterBuffer: buffer.NewJitterBuffer(buffer.JitterBufferParams{
			Config: params.Config.JitterBuffer,
			Logger: params.Logger,
		}),
		congestion: bwe.NewCongestionController(bwe.CongestionControllerParams{
			Config: params.Config.Congestion,
			Logger: params.Logger,
		}),
		decision: feedback.NewDecisionEngine(feedback.DecisionEngineParams{
			Config: params.Config.Feedback,
			Logger: params.Logger,
		}),
		nackQueue: feedback.NewNackQueue(),
		playout:   ringbuffer.New[*buffer.MediaPayload](params.Config.PlayoutQueueSize),
	}
}

// SetCodec installs the decode capability on the jitter buffer. A nil codec
// keeps raw payload pass-through.
func (e *Engine) SetCodec(codec buffer.Codec) {
	e.jitterBuffer.SetCodec(codec)
}

// ProcessPacket runs one received packet through statistics, bandwidth
// estimation and the jitter buffer. Decoded payloads land on the playout
// queue; they are also returned for callers that consume inline.
func (e *Engine) ProcessPacket(pkt *rtp.Packet, arrival time.Time) ([]*buffer.MediaPayload, error) {
	if pkt == nil {
		return nil, buffer.ErrNilPacket
	}

	e.updateReceptionStats(pkt, arrival)
	e.congestion.OnPacketArrival(arrival, rtpHeaderSize+len(pkt.Payload))

	prometheus.IncrementPackets(prometheus.Incoming, 1)
	prometheus.IncrementBytes(prometheus.Incoming, uint64(rtpHeaderSize+len(pkt.Payload)))

	media, err := e.jitterBuffer.ProcessPacket(pkt, arrival)
	e.enqueuePlayout(media)
	return media, err
}

// Tick flushes jitter buffer entries past the reordering deadline. Callers
// needing bounded latency under total loss should drive this from a timer.
func (e *Engine) Tick(now time.Time) ([]*buffer.MediaPayload, error) {
	media, err := e.jitterBuffer.Tick(now)
	e.enqueuePlayout(media)
	return media, err
}

// PopMedia takes the next decoded payload off the playout queue. Safe to
// call from a single consumer goroutine concurrent with ProcessPacket.
func (e *Engine) PopMedia() (*buffer.MediaPayload, bool) {
	return e.playout.Pop()
}

// ProcessRTCP walks a compound RTCP buffer received for this stream and
// records any sender report it carries. Other packet types are parsed and
// ignored.
func (e *Engine) ProcessRTCP(data []byte, arrival time.Time) error {
	for len(data) >= 4 {
		pkt, err := rtcp.Parse(data)
		if err != nil {
			return err
		}
		if sr, ok := pkt.(*rtcp.SenderReport); ok {
			e.SetSenderReportData(sr, arrival)
		}
		data = data[(int(binary.BigEndian.Uint16(data[2:4]))+1)*4:]
	}
	return nil
}

// SetSenderReportData records a sender report received for this stream,
// used for the LSR/DLSR fields of subsequent receiver reports.
func (e *Engine) SetSenderReportData(sr *rtcp.SenderReport, arrival time.Time) {
	e.lastSRNTP = sr.NTPTime
	e.lastSRRTPTime = sr.RTPTime
	e.lastSRArrival = arrival
}

// SetRTT feeds an externally measured round trip time into NACK pacing and
// quality scoring.
func (e *Engine) SetRTT(rtt time.Duration) {
	e.rtt = rtt
	e.nackQueue.SetRTT(rtt)
}

// BuildReceiverReport produces the RFC 3550 receiver report for this stream
// as of now. The fraction lost field covers the interval since the previous
// call.
func (e *Engine) BuildReceiverReport(now time.Time) *rtcp.ReceiverReport {
	rr := &rtcp.ReceiverReport{
		SSRC: e.params.Config.LocalSSRC,
	}
	if !e.initialized {
		return rr
	}

	expected := e.extHighestSeq - e.baseExtSeq + 1

	lost := int64(expected) - int64(e.received)
	if lost > 0x7fffff {
		lost = 0x7fffff
	}
	if lost < 0 {
		// duplicates can push received above expected; the field is signed
		// 24-bit but reported here as clamped to zero
		lost = 0
	}

	expectedInterval := expected - e.expectedPrior
	receivedInterval := e.received - e.receivedPrior
	e.expectedPrior = expected
	e.receivedPrior = e.received

	var fractionLost uint8
	if expectedInterval > 0 && expectedInterval > receivedInterval {
		fractionLost = uint8(((expectedInterval - receivedInterval) << 8) / expectedInterval)
	}

	var lastSR uint32
	var delaySinceLastSR uint32
	if !e.lastSRArrival.IsZero() {
		lastSR = e.lastSRNTP.Middle32()
		delaySinceLastSR = uint32(now.Sub(e.lastSRArrival).Seconds() * dlsrResolution)
	}

	rr.Reports = append(rr.Reports, rtcp.ReportBlock{
		SSRC:             e.ssrc,
		FractionLost:     fractionLost,
		CumulativeLost:   uint32(lost),
		HighestSeq:       uint32(e.extHighestSeq),
		Jitter:           uint32(e.jitter),
		LastSR:           lastSR,
		DelaySinceLastSR: delaySinceLastSR,
	})
	return rr
}

// PollFeedback asks the decision engine what to send and serializes the
// result. NACKs for outstanding losses ride along when enabled.
func (e *Engine) PollFeedback(now time.Time) ([][]byte, error) {
	score := e.qualityScore()
	state := feedback.StreamState{
		CongestionState:  e.congestion.State(),
		EstimatedBitrate: e.congestion.Estimate(),
		QualityScore:     score,
		LossRate:         e.intervalLossRate(),
	}

	var packets [][]byte
	var pliCount, firCount, rembCount int32
	for _, request := range e.decision.Decide(state, now) {
		var data []byte
		var err error
		switch request.Type {
		case feedback.TypePLI:
			pli := &rtcp.PictureLossIndication{
				SenderSSRC: e.params.Config.LocalSSRC,
				MediaSSRC:  e.ssrc,
			}
			data, err = pli.Marshal()
			pliCount++
		case feedback.TypeFIR:
			fir := &rtcp.FullIntraRequest{
				SenderSSRC:     e.params.Config.LocalSSRC,
				MediaSSRC:      e.ssrc,
				SSRC:           e.ssrc,
				SequenceNumber: request.FIRSequence,
			}
			data, err = fir.Marshal()
			firCount++
		case feedback.TypeREMB:
			remb := &rtcp.ReceiverEstimatedMaxBitrate{
				SenderSSRC: e.params.Config.LocalSSRC,
				BitrateBps: uint64(request.Bitrate),
				SSRCs:      []uint32{e.ssrc},
			}
			data, err = remb.Marshal()
			rembCount++
		}
		if err != nil {
			return packets, err
		}
		packets = append(packets, data)
	}

	var nackCount int32
	if e.params.Config.NackEnabled {
		if pairs, numNacked := e.nackQueue.Pairs(now); len(pairs) > 0 {
			nack := &rtcp.TransportLayerNack{
				SenderSSRC: e.params.Config.LocalSSRC,
				MediaSSRC:  e.ssrc,
				Nacks:      pairs,
			}
			data, err := nack.Marshal()
			if err != nil {
				return packets, err
			}
			packets = append(packets, data)
			nackCount = int32(numNacked)
		}
	}

	if len(packets) > 0 {
		prometheus.IncrementRTCP(prometheus.Outgoing, nackCount, pliCount, firCount, rembCount)
		prometheus.RecordQuality(strconv.FormatUint(uint64(e.ssrc), 10), score)
		prometheus.RecordJitter(e.jitterMs())
		prometheus.RecordBandwidthEstimate(state.EstimatedBitrate)
	}
	return packets, nil
}

// Quality returns the current R-factor and its MOS mapping.
func (e *Engine) Quality() (float64, float64) {
	score := e.qualityScore()
	return score, connectionquality.QualityToMOS(score)
}

func (e *Engine) Stats() EngineStats {
	lost := int64(0)
	if e.initialized {
		lost = int64(e.extHighestSeq-e.baseExtSeq+1) - int64(e.received)
	}
	score := e.qualityScore()
	return EngineStats{
		SSRC:               e.ssrc,
		PacketsReceived:    e.received,
		PacketsLost:        lost,
		ExtendedHighestSeq: e.extHighestSeq,
		JitterMs:           e.jitterMs(),
		EstimatedBitrate:   e.congestion.Estimate(),
		QualityScore:       score,
		MOS:                connectionquality.QualityToMOS(score),
		Jitter:             e.jitterBuffer.Stats(),
		PlayoutQueueLength: e.playout.Len(),
		PlayoutDropped:     e.playoutDropped,
	}
}

// Reset returns the engine to its initial state, dropping all buffered
// media and statistics. The stream restarts with the next packet.
func (e *Engine) Reset() {
	e.jitterBuffer.Reset()
	e.congestion.Reset()
	e.decision.Reset()
	e.nackQueue = feedback.NewNackQueue()
	e.nackQueue.SetRTT(e.rtt)
	e.playout.Clear()

	e.initialized = false
	e.ssrc = 0
	e.baseExtSeq = 0
	e.extHighestSeq = 0
	e.received = 0
	e.expectedPrior = 0
	e.receivedPrior = 0
	e.firstTime = time.Time{}
	e.lastTransit = 0
	e.lastJitterTS = 0
	e.jitter = 0
	e.lastSRNTP = rtcp.NtpTimestamp{}
	e.lastSRArrival = time.Time{}
	e.lastSRRTPTime = 0
	e.playoutDropped = 0
}

// ------------------------------------------------

func (e *Engine) updateReceptionStats(pkt *rtp.Packet, arrival time.Time) {
	seq := pkt.SequenceNumber

	if !e.initialized {
		e.initialized = true
		e.ssrc = pkt.SSRC
		e.baseExtSeq = uint64(seq)
		e.extHighestSeq = uint64(seq)
		e.received = 1
		e.firstTime = arrival
		e.lastJitterTS = pkt.Timestamp
		e.lastTransit = int64(e.arrivalRTP(arrival)) - int64(pkt.Timestamp)
		return
	}

	e.received++

	high := uint16(e.extHighestSeq)
	if seq != high && seq-high < 1<<15 {
		cycles := e.extHighestSeq &^ 0xffff
		if seq < high {
			cycles += 1 << 16
		}
		e.extHighestSeq = cycles | uint64(seq)

		if gap := seq - high; gap > 1 {
			prometheus.IncrementPacketsLost(prometheus.Incoming, uint64(gap-1))
			// a jump this large is a stream discontinuity, not loss worth
			// chasing with retransmission requests
			if e.params.Config.NackEnabled && gap <= maxNackGap {
				for missing := high + 1; missing != seq; missing++ {
					e.nackQueue.Push(missing, arrival)
				}
			}
		}
	} else if e.params.Config.NackEnabled {
		// a straggler filled one of the holes
		e.nackQueue.Remove(seq)
	}

	e.updateJitter(pkt, arrival)
}

// updateJitter maintains the RFC 3550 interarrival jitter estimate in RTP
// timestamp units. Packets sharing a timestamp do not contribute.
func (e *Engine) updateJitter(pkt *rtp.Packet, arrival time.Time) {
	if pkt.Timestamp == e.lastJitterTS {
		return
	}
	e.lastJitterTS = pkt.Timestamp

	transit := int64(e.arrivalRTP(arrival)) - int64(pkt.Timestamp)
	d := transit - e.lastTransit
	e.lastTransit = transit
	if d < 0 {
		d = -d
	}
	e.jitter += (float64(d) - e.jitter) / 16.0
}

func (e *Engine) arrivalRTP(arrival time.Time) uint64 {
	return uint64(arrival.Sub(e.firstTime).Nanoseconds() * int64(e.params.Config.JitterBuffer.ClockRate) / 1e9)
}

func (e *Engine) jitterMs() float64 {
	clockRate := e.params.Config.JitterBuffer.ClockRate
	if clockRate == 0 {
		return 0
	}
	return e.jitter * 1000.0 / float64(clockRate)
}

func (e *Engine) qualityScore() float64 {
	return connectionquality.CalculateQuality(connectionquality.QualityMetrics{
		LossRate: e.intervalLossRate(),
		JitterMs: e.jitterMs(),
		RTTMs:    float64(e.rtt) / float64(time.Millisecond),
	})
}

// intervalLossRate computes loss over the current reporting interval
// without consuming it; BuildReceiverReport rolls the interval over.
func (e *Engine) intervalLossRate() float64 {
	if !e.initialized {
		return 0
	}
	expected := e.extHighestSeq - e.baseExtSeq + 1
	expectedInterval := expected - e.expectedPrior
	receivedInterval := e.received - e.receivedPrior
	if expectedInterval == 0 || receivedInterval >= expectedInterval {
		return 0
	}
	return float64(expectedInterval-receivedInterval) / float64(expectedInterval)
}

func (e *Engine) enqueuePlayout(media []*buffer.MediaPayload) {
	for _, payload := range media {
		if !e.playout.Push(payload) {
			e.playoutDropped++
			e.params.Logger.Warnw(
				"playout queue full, dropping payload", nil,
				"sn", payload.SequenceNumber,
				"dropped", e.playoutDropped,
			)
		}
	}
}
