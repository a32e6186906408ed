// Package rtcp implements the RTCP wire format used by the engine: sender
// and receiver reports with their report blocks (RFC 3550) and the feedback
// messages the engine emits (PLI, FIR, REMB). All functions are pure; the
// package holds no state.
package rtcp

import (
	"encoding/binary"
)

const (
	rtcpVersion    = 2
	headerSize     = 4
	senderInfoSize = 20
	ssrcSize       = 4

	// ReportBlockSize is the fixed wire size of one report block.
	ReportBlockSize = 24

	maxReportCount = 31
)

// PacketType identifies an RTCP packet on the wire.
type PacketType uint8

const (
	TypeSenderReport   PacketType = 200
	TypeReceiverReport PacketType = 201
	TypeSDES           PacketType = 202
	TypeBye            PacketType = 203
	TypeApp            PacketType = 204
)

func (p PacketType) String() string {
	switch p {
	case TypeSenderReport:
		return "SR"
	case TypeReceiverReport:
		return "RR"
	case TypeSDES:
		return "SDES"
	case TypeBye:
		return "BYE"
	case TypeApp:
		return "APP"
	default:
		return "UNKNOWN"
	}
}

// Packet is one parsed RTCP packet.
type Packet interface {
	// DestinationSSRC reports the SSRC the packet is about, where applicable.
	DestinationSSRC() uint32

	packetType() PacketType
	reportCount() uint8
	marshalBody(buf []byte) int
	bodySize() int
}

// ReportBlock is the per-source reception report carried in SR/RR packets.
type ReportBlock struct {
	SSRC             uint32
	FractionLost     uint8
	CumulativeLost   uint32 // 24 bits on the wire
	HighestSeq       uint32
	Jitter           uint32
	LastSR           uint32
	DelaySinceLastSR uint32
}

func (b *ReportBlock) marshal(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:], b.SSRC)
	binary.BigEndian.PutUint32(buf[4:], b.CumulativeLost&0x00ffffff)
	buf[4] = b.FractionLost
	binary.BigEndian.PutUint32(buf[8:], b.HighestSeq)
	binary.BigEndian.PutUint32(buf[12:], b.Jitter)
	binary.BigEndian.PutUint32(buf[16:], b.LastSR)
	binary.BigEndian.PutUint32(buf[20:], b.DelaySinceLastSR)
}

func (b *ReportBlock) unmarshal(buf []byte) {
	b.SSRC = binary.BigEndian.Uint32(buf[0:])
	b.FractionLost = buf[4]
	b.CumulativeLost = binary.BigEndian.Uint32(buf[4:]) & 0x00ffffff
	b.HighestSeq = binary.BigEndian.Uint32(buf[8:])
	b.Jitter = binary.BigEndian.Uint32(buf[12:])
	b.LastSR = binary.BigEndian.Uint32(buf[16:])
	b.DelaySinceLastSR = binary.BigEndian.Uint32(buf[20:])
}

// SenderReport is an RTCP SR packet: sender info plus reception reports.
type SenderReport struct {
	SSRC        uint32
	NTPTime     NtpTimestamp
	RTPTime     uint32
	PacketCount uint32
	OctetCount  uint32
	Reports     []ReportBlock
}

func (s *SenderReport) DestinationSSRC() uint32 { return s.SSRC }
func (s *SenderReport) packetType() PacketType  { return TypeSenderReport }
func (s *SenderReport) reportCount() uint8      { return uint8(len(s.Reports)) }

func (s *SenderReport) bodySize() int {
	return ssrcSize + senderInfoSize + len(s.Reports)*ReportBlockSize
}

func (s *SenderReport) marshalBody(buf []byte) int {
	binary.BigEndian.PutUint32(buf[0:], s.SSRC)
	binary.BigEndian.PutUint32(buf[4:], s.NTPTime.Seconds)
	binary.BigEndian.PutUint32(buf[8:], s.NTPTime.Fraction)
	binary.BigEndian.PutUint32(buf[12:], s.RTPTime)
	binary.BigEndian.PutUint32(buf[16:], s.PacketCount)
	binary.BigEndian.PutUint32(buf[20:], s.OctetCount)

	off := ssrcSize + senderInfoSize
	for i := range s.Reports {
		s.Reports[i].marshal(buf[off:])
		off += ReportBlockSize
	}
	return off
}

// ReceiverReport is an RTCP RR packet: reception reports without sender info.
type ReceiverReport struct {
	SSRC    uint32
	Reports []ReportBlock
}

func (r *ReceiverReport) DestinationSSRC() uint32 { return r.SSRC }
func (r *ReceiverReport) packetType() PacketType  { return TypeReceiverReport }
func (r *ReceiverReport) reportCount() uint8      { return uint8(len(r.Reports)) }

func (r *ReceiverReport) bodySize() int {
	return ssrcSize + len(r.Reports)*ReportBlockSize
}

func (r *ReceiverReport) marshalBody(buf []byte) int {
	binary.BigEndian.PutUint32(buf[0:], r.SSRC)

	off := ssrcSize
	for i := range r.Reports {
		r.Reports[i].marshal(buf[off:])
		off += ReportBlockSize
	}
	return off
}

// OpaquePacket is a recognized but uninterpreted packet (SDES, BYE, APP).
// The body is kept verbatim so the packet survives a parse/serialize round
// trip without the engine understanding its contents.
type OpaquePacket struct {
	Type  PacketType
	Count uint8 // the 5-bit count field from the common header
	Body  []byte
}

func (o *OpaquePacket) DestinationSSRC() uint32 {
	if len(o.Body) >= 4 {
		return binary.BigEndian.Uint32(o.Body)
	}
	return 0
}

func (o *OpaquePacket) packetType() PacketType { return o.Type }
func (o *OpaquePacket) reportCount() uint8     { return o.Count }
func (o *OpaquePacket) bodySize() int          { return len(o.Body) }

func (o *OpaquePacket) marshalBody(buf []byte) int {
	return copy(buf, o.Body)
}
