package rtcp

import (
	"encoding/binary"
	"fmt"
)

// Payload-specific feedback (RFC 4585/5104) and REMB (draft-alvestrand).
// These are produced by the feedback decision engine and are independently
// serializable and parseable; they do not go through Parse, which only
// handles the 200-204 report family.

const (
	typePSFB = 206

	fmtPLI  = 1
	fmtFIR  = 4
	fmtREMB = 15

	psfbHeaderSize = 12 // common header + sender SSRC + media SSRC

	rembIdentifier = "REMB"

	rembMaxMantissa = 1<<18 - 1
	rembMaxExponent = 63
)

// PictureLossIndication asks the sender for a new keyframe after picture
// loss.
type PictureLossIndication struct {
	SenderSSRC uint32
	MediaSSRC  uint32
}

func (p *PictureLossIndication) Marshal() ([]byte, error) {
	buf := make([]byte, psfbHeaderSize)
	writeFeedbackHeader(buf, typePSFB, fmtPLI, p.SenderSSRC, p.MediaSSRC)
	return buf, nil
}

func (p *PictureLossIndication) Unmarshal(data []byte) error {
	if err := checkFeedbackHeader(data, typePSFB, fmtPLI, psfbHeaderSize); err != nil {
		return err
	}
	p.SenderSSRC = binary.BigEndian.Uint32(data[4:])
	p.MediaSSRC = binary.BigEndian.Uint32(data[8:])
	return nil
}

// FullIntraRequest demands a full intra frame. The sequence number
// disambiguates retransmitted requests and increases monotonically per
// requester.
type FullIntraRequest struct {
	SenderSSRC     uint32
	MediaSSRC      uint32
	SSRC           uint32
	SequenceNumber uint8
}

func (f *FullIntraRequest) Marshal() ([]byte, error) {
	buf := make([]byte, psfbHeaderSize+8)
	writeFeedbackHeader(buf, typePSFB, fmtFIR, f.SenderSSRC, f.MediaSSRC)
	binary.BigEndian.PutUint32(buf[12:], f.SSRC)
	buf[16] = f.SequenceNumber
	return buf, nil
}

func (f *FullIntraRequest) Unmarshal(data []byte) error {
	if err := checkFeedbackHeader(data, typePSFB, fmtFIR, psfbHeaderSize+8); err != nil {
		return err
	}
	f.SenderSSRC = binary.BigEndian.Uint32(data[4:])
	f.MediaSSRC = binary.BigEndian.Uint32(data[8:])
	f.SSRC = binary.BigEndian.Uint32(data[12:])
	f.SequenceNumber = data[16]
	return nil
}

// ReceiverEstimatedMaxBitrate reports the receiver's total estimated
// available bitrate across the listed media streams.
type ReceiverEstimatedMaxBitrate struct {
	SenderSSRC uint32
	BitrateBps uint64
	SSRCs      []uint32
}

func (r *ReceiverEstimatedMaxBitrate) Marshal() ([]byte, error) {
	exponent := 0
	mantissa := r.BitrateBps
	for mantissa > rembMaxMantissa {
		mantissa >>= 1
		exponent++
	}
	if exponent > rembMaxExponent {
		return nil, fmt.Errorf("%w: %d bps", ErrBitrateRange, r.BitrateBps)
	}

	buf := make([]byte, psfbHeaderSize+8+4*len(r.SSRCs))
	writeFeedbackHeader(buf, typePSFB, fmtREMB, r.SenderSSRC, 0)
	copy(buf[12:], rembIdentifier)
	buf[16] = byte(len(r.SSRCs))
	buf[17] = byte(exponent<<2) | byte(mantissa>>16)
	buf[18] = byte(mantissa >> 8)
	buf[19] = byte(mantissa)
	for i, ssrc := range r.SSRCs {
		binary.BigEndian.PutUint32(buf[20+4*i:], ssrc)
	}
	return buf, nil
}

func (r *ReceiverEstimatedMaxBitrate) Unmarshal(data []byte) error {
	if err := checkFeedbackHeader(data, typePSFB, fmtREMB, psfbHeaderSize+8); err != nil {
		return err
	}
	if string(data[12:16]) != rembIdentifier {
		return fmt.Errorf("%w: missing REMB identifier", ErrWrongType)
	}

	numSSRC := int(data[16])
	if len(data) < psfbHeaderSize+8+4*numSSRC {
		return fmt.Errorf("%w: REMB with %d SSRCs", ErrTruncated, numSSRC)
	}

	exponent := data[17] >> 2
	mantissa := uint64(data[17]&0x03)<<16 | uint64(data[18])<<8 | uint64(data[19])

	r.SenderSSRC = binary.BigEndian.Uint32(data[4:])
	r.BitrateBps = mantissa << exponent
	r.SSRCs = r.SSRCs[:0]
	for i := 0; i < numSSRC; i++ {
		r.SSRCs = append(r.SSRCs, binary.BigEndian.Uint32(data[20+4*i:]))
	}
	return nil
}

func writeFeedbackHeader(buf []byte, packetType uint8, fmtField uint8, senderSSRC, mediaSSRC uint32) {
	buf[0] = rtcpVersion<<6 | fmtField
	buf[1] = packetType
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(buf)/4-1))
	binary.BigEndian.PutUint32(buf[4:], senderSSRC)
	binary.BigEndian.PutUint32(buf[8:], mediaSSRC)
}

func checkFeedbackHeader(data []byte, wantType uint8, wantFmt uint8, minSize int) error {
	if len(data) < minSize {
		return ErrShortPacket
	}
	if version := data[0] >> 6; version != rtcpVersion {
		return fmt.Errorf("%w: %d", ErrInvalidVersion, version)
	}
	if data[1] != wantType {
		return fmt.Errorf("%w: packet type %d", ErrWrongType, data[1])
	}
	if gotFmt := data[0] & 0x1f; gotFmt != wantFmt {
		return fmt.Errorf("%w: feedback format %d", ErrWrongType, gotFmt)
	}
	if declared := (int(binary.BigEndian.Uint16(data[2:4])) + 1) * 4; declared > len(data) {
		return fmt.Errorf("%w: declared %d, have %d", ErrTruncated, declared, len(data))
	}
	return nil
}
