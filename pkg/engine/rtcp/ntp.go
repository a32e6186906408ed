package rtcp

import (
	"time"
)

// ntpEpochOffset is the number of seconds between the NTP epoch (1900) and
// the Unix epoch (1970).
const ntpEpochOffset = 2208988800

// NtpTimestamp is the 64-bit fixed point time format used in RTCP sender
// reports: 32 bits of seconds since 1900 and 32 bits of fraction.
type NtpTimestamp struct {
	Seconds  uint32
	Fraction uint32
}

func (t NtpTimestamp) ToUint64() uint64 {
	return uint64(t.Seconds)<<32 | uint64(t.Fraction)
}

func NtpFromUint64(v uint64) NtpTimestamp {
	return NtpTimestamp{
		Seconds:  uint32(v >> 32),
		Fraction: uint32(v),
	}
}

// NtpFromTime converts a wall clock instant to NTP format. The fraction is
// nanos * 2^32 / 1e9, truncated.
func NtpFromTime(at time.Time) NtpTimestamp {
	return NtpTimestamp{
		Seconds:  uint32(at.Unix() + ntpEpochOffset),
		Fraction: uint32(uint64(at.Nanosecond()) << 32 / 1e9),
	}
}

// Time converts back to a wall clock instant, rounding the fraction down to
// whole nanoseconds.
func (t NtpTimestamp) Time() time.Time {
	nanos := uint64(t.Fraction) * 1e9 >> 32
	return time.Unix(int64(t.Seconds)-ntpEpochOffset, int64(nanos))
}

// Middle32 returns the middle 32 bits of the timestamp, the form carried in
// the LSR field of report blocks.
func (t NtpTimestamp) Middle32() uint32 {
	return uint32(t.ToUint64() >> 16)
}
