package rtcp

import (
	"encoding/binary"
	"fmt"
)

// Parse decodes a single RTCP packet from the front of data. Trailing bytes
// beyond the declared packet length are ignored, which allows walking a
// compound packet with repeated calls.
func Parse(data []byte) (Packet, error) {
	if len(data) < headerSize {
		return nil, ErrShortPacket
	}

	if version := data[0] >> 6; version != rtcpVersion {
		return nil, fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}

	count := data[0] & 0x1f
	packetType := PacketType(data[1])
	length := (int(binary.BigEndian.Uint16(data[2:4])) + 1) * 4
	if length > len(data) {
		return nil, fmt.Errorf("%w: declared %d, have %d", ErrTruncated, length, len(data))
	}

	body := data[headerSize:length]
	switch packetType {
	case TypeSenderReport:
		return parseSenderReport(count, body)
	case TypeReceiverReport:
		return parseReceiverReport(count, body)
	case TypeSDES, TypeBye, TypeApp:
		// recognized but uninterpreted, kept opaque for round-tripping
		return &OpaquePacket{
			Type:  packetType,
			Count: count,
			Body:  append([]byte(nil), body...),
		}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, packetType)
	}
}

// Serialize encodes the packet into a fresh buffer. The common header count
// field is derived from the packet's report blocks, so a packet with more
// than 31 blocks cannot be encoded.
func Serialize(p Packet) ([]byte, error) {
	switch pkt := p.(type) {
	case *SenderReport:
		if len(pkt.Reports) > maxReportCount {
			return nil, fmt.Errorf("%w: %d", ErrTooManyReports, len(pkt.Reports))
		}
	case *ReceiverReport:
		if len(pkt.Reports) > maxReportCount {
			return nil, fmt.Errorf("%w: %d", ErrTooManyReports, len(pkt.Reports))
		}
	}

	bodySize := p.bodySize()
	if bodySize%4 != 0 {
		return nil, fmt.Errorf("%w: body size %d not 32-bit aligned", ErrShortPacket, bodySize)
	}

	buf := make([]byte, headerSize+bodySize)
	buf[0] = rtcpVersion<<6 | p.reportCount()
	buf[1] = byte(p.packetType())
	binary.BigEndian.PutUint16(buf[2:4], uint16((headerSize+bodySize)/4-1))
	p.marshalBody(buf[headerSize:])
	return buf, nil
}

func parseSenderReport(count uint8, body []byte) (*SenderReport, error) {
	if len(body) < ssrcSize+senderInfoSize+int(count)*ReportBlockSize {
		return nil, fmt.Errorf("%w: sender report with %d blocks", ErrTruncated, count)
	}

	sr := &SenderReport{
		SSRC: binary.BigEndian.Uint32(body[0:]),
		NTPTime: NtpTimestamp{
			Seconds:  binary.BigEndian.Uint32(body[4:]),
			Fraction: binary.BigEndian.Uint32(body[8:]),
		},
		RTPTime:     binary.BigEndian.Uint32(body[12:]),
		PacketCount: binary.BigEndian.Uint32(body[16:]),
		OctetCount:  binary.BigEndian.Uint32(body[20:]),
	}

	off := ssrcSize + senderInfoSize
	for i := 0; i < int(count); i++ {
		var block ReportBlock
		block.unmarshal(body[off:])
		sr.Reports = append(sr.Reports, block)
		off += ReportBlockSize
	}
	return sr, nil
}

func parseReceiverReport(count uint8, body []byte) (*ReceiverReport, error) {
	if len(body) < ssrcSize+int(count)*ReportBlockSize {
		return nil, fmt.Errorf("%w: receiver report with %d blocks", ErrTruncated, count)
	}

	rr := &ReceiverReport{
		SSRC: binary.BigEndian.Uint32(body[0:]),
	}

	off := ssrcSize
	for i := 0; i < int(count); i++ {
		var block ReportBlock
		block.unmarshal(body[off:])
		rr.Reports = append(rr.Reports, block)
		off += ReportBlockSize
	}
	return rr, nil
}
