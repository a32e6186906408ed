package rtcp

import (
	"encoding/binary"
	"fmt"
)

// Generic NACK, RFC 4585 6.2.1. Transport-layer feedback (packet type 205).

const (
	typeRTPFB = 205

	fmtNACK = 1
)

// NackPair names one lost packet and a bitmask of up to 16 losses that
// follow it.
type NackPair struct {
	PacketID    uint16
	LostPackets uint16
}

// PacketList expands the pair into the sequence numbers it covers.
func (n NackPair) PacketList() []uint16 {
	sns := []uint16{n.PacketID}
	for bit := 0; bit < 16; bit++ {
		if n.LostPackets&(1<<bit) != 0 {
			sns = append(sns, n.PacketID+uint16(bit)+1)
		}
	}
	return sns
}

// TransportLayerNack requests retransmission of the listed packets.
type TransportLayerNack struct {
	SenderSSRC uint32
	MediaSSRC  uint32
	Nacks      []NackPair
}

func (t *TransportLayerNack) Marshal() ([]byte, error) {
	buf := make([]byte, psfbHeaderSize+4*len(t.Nacks))
	writeFeedbackHeader(buf, typeRTPFB, fmtNACK, t.SenderSSRC, t.MediaSSRC)
	for i, pair := range t.Nacks {
		binary.BigEndian.PutUint16(buf[12+4*i:], pair.PacketID)
		binary.BigEndian.PutUint16(buf[14+4*i:], pair.LostPackets)
	}
	return buf, nil
}

func (t *TransportLayerNack) Unmarshal(data []byte) error {
	if err := checkFeedbackHeader(data, typeRTPFB, fmtNACK, psfbHeaderSize); err != nil {
		return err
	}
	if (len(data)-psfbHeaderSize)%4 != 0 {
		return fmt.Errorf("%w: NACK FCI not 32-bit aligned", ErrTruncated)
	}

	t.SenderSSRC = binary.BigEndian.Uint32(data[4:])
	t.MediaSSRC = binary.BigEndian.Uint32(data[8:])
	t.Nacks = t.Nacks[:0]
	declared := (int(binary.BigEndian.Uint16(data[2:4])) + 1) * 4
	for off := psfbHeaderSize; off < declared; off += 4 {
		t.Nacks = append(t.Nacks, NackPair{
			PacketID:    binary.BigEndian.Uint16(data[off:]),
			LostPackets: binary.BigEndian.Uint16(data[off+2:]),
		})
	}
	return nil
}
