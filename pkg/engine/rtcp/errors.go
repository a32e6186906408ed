package rtcp

import "errors"

var (
	ErrShortPacket    = errors.New("packet is not large enough")
	ErrInvalidVersion = errors.New("invalid RTCP version")
	ErrTruncated      = errors.New("declared length exceeds buffer")
	ErrUnknownType    = errors.New("unknown RTCP packet type")
	ErrWrongType      = errors.New("unexpected RTCP packet type")
	ErrTooManyReports = errors.New("too many report blocks")
	ErrBitrateRange   = errors.New("bitrate not representable")
)
