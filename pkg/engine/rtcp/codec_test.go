package rtcp

import (
	"testing"

	pionrtcp "github.com/pion/rtcp"
	"github.com/stretchr/testify/require"
)

func testReportBlock(i int) ReportBlock {
	return ReportBlock{
		SSRC:             0x12345678 + uint32(i),
		FractionLost:     uint8(10 + i),
		CumulativeLost:   uint32(5 + i),
		HighestSeq:       uint32(100 + i),
		Jitter:           uint32(20 + i),
		LastSR:           uint32(i),
		DelaySinceLastSR: uint32(i * 2),
	}
}

func TestReportBlockWireSize(t *testing.T) {
	block := ReportBlock{
		SSRC:           0x12345678,
		FractionLost:   10,
		CumulativeLost: 5,
		HighestSeq:     100,
		Jitter:         20,
	}

	buf := make([]byte, ReportBlockSize)
	block.marshal(buf)

	var back ReportBlock
	back.unmarshal(buf)
	require.Equal(t, block, back)
}

func TestSenderReportRoundTrip(t *testing.T) {
	for _, numBlocks := range []int{0, 1, 2, 31} {
		sr := &SenderReport{
			SSRC:        0xcafebabe,
			NTPTime:     NtpTimestamp{Seconds: 3927015000, Fraction: 0x40000000},
			RTPTime:     160000,
			PacketCount: 1000,
			OctetCount:  160000,
		}
		for i := 0; i < numBlocks; i++ {
			sr.Reports = append(sr.Reports, testReportBlock(i))
		}

		data, err := Serialize(sr)
		require.NoError(t, err)
		require.Equal(t, 0, len(data)%4)

		parsed, err := Parse(data)
		require.NoError(t, err)
		require.Equal(t, sr, parsed)
	}
}

func TestReceiverReportRoundTrip(t *testing.T) {
	for _, numBlocks := range []int{0, 1, 31} {
		rr := &ReceiverReport{SSRC: 0xdeadbeef}
		for i := 0; i < numBlocks; i++ {
			rr.Reports = append(rr.Reports, testReportBlock(i))
		}

		data, err := Serialize(rr)
		require.NoError(t, err)

		parsed, err := Parse(data)
		require.NoError(t, err)
		require.Equal(t, rr, parsed)
	}
}

func TestSerializeTooManyReports(t *testing.T) {
	rr := &ReceiverReport{SSRC: 1}
	for i := 0; i < 32; i++ {
		rr.Reports = append(rr.Reports, testReportBlock(i))
	}
	_, err := Serialize(rr)
	require.ErrorIs(t, err, ErrTooManyReports)
}

func TestParseErrors(t *testing.T) {
	valid, err := Serialize(&ReceiverReport{SSRC: 1, Reports: []ReportBlock{testReportBlock(0)}})
	require.NoError(t, err)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrShortPacket},
		{"short header", valid[:3], ErrShortPacket},
		{"bad version", append([]byte{0x41}, valid[1:]...), ErrInvalidVersion},
		{"declared length past buffer", valid[:len(valid)-4], ErrTruncated},
		{"unknown type", func() []byte {
			d := append([]byte(nil), valid...)
			d[1] = 195
			return d
		}(), ErrUnknownType},
		{"truncated report block", func() []byte {
			// claim two blocks but carry one
			d := append([]byte(nil), valid...)
			d[0] = 0x82
			return d
		}(), ErrTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestOpaquePacketRoundTrip(t *testing.T) {
	// a minimal BYE for one SSRC
	bye := &OpaquePacket{
		Type:  TypeBye,
		Count: 1,
		Body:  []byte{0x12, 0x34, 0x56, 0x78},
	}

	data, err := Serialize(bye)
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, bye, parsed)
}

func TestSenderReportAgainstPion(t *testing.T) {
	sr := &SenderReport{
		SSRC:        0xcafebabe,
		NTPTime:     NtpTimestamp{Seconds: 3927015000, Fraction: 0x40000000},
		RTPTime:     160000,
		PacketCount: 1000,
		OctetCount:  160000,
		Reports:     []ReportBlock{testReportBlock(0)},
	}

	data, err := Serialize(sr)
	require.NoError(t, err)

	var pion pionrtcp.SenderReport
	require.NoError(t, pion.Unmarshal(data))
	require.Equal(t, sr.SSRC, pion.SSRC)
	require.Equal(t, sr.NTPTime.ToUint64(), pion.NTPTime)
	require.Equal(t, sr.RTPTime, pion.RTPTime)
	require.Equal(t, sr.PacketCount, pion.PacketCount)
	require.Equal(t, sr.OctetCount, pion.OctetCount)
	require.Len(t, pion.Reports, 1)
	require.Equal(t, sr.Reports[0].SSRC, pion.Reports[0].SSRC)
	require.Equal(t, sr.Reports[0].FractionLost, pion.Reports[0].FractionLost)
	require.Equal(t, sr.Reports[0].CumulativeLost, pion.Reports[0].TotalLost)
	require.Equal(t, sr.Reports[0].HighestSeq, pion.Reports[0].LastSequenceNumber)
	require.Equal(t, sr.Reports[0].Jitter, pion.Reports[0].Jitter)
}

func TestReceiverReportParsesPionBytes(t *testing.T) {
	pion := pionrtcp.ReceiverReport{
		SSRC: 0x01020304,
		Reports: []pionrtcp.ReceptionReport{{
			SSRC:               0x11111111,
			FractionLost:       25,
			TotalLost:          300,
			LastSequenceNumber: 0x00010064,
			Jitter:             40,
			LastSenderReport:   0x22222222,
			Delay:              0x33333333,
		}},
	}
	data, err := pion.Marshal()
	require.NoError(t, err)

	parsed, err := Parse(data)
	require.NoError(t, err)
	rr, ok := parsed.(*ReceiverReport)
	require.True(t, ok)
	require.Equal(t, pion.SSRC, rr.SSRC)
	require.Len(t, rr.Reports, 1)
	require.Equal(t, pion.Reports[0].TotalLost, rr.Reports[0].CumulativeLost)
	require.Equal(t, pion.Reports[0].LastSequenceNumber, rr.Reports[0].HighestSeq)
}
